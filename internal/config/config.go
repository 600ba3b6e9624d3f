package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

// Config holds process-wide settings, loaded once at startup from
// environment variables and an optional .env file.
type Config struct {
	ConfigFile      string // instances definition file
	DatabaseFile    string
	ServerPort      string
	LogLevel        string
	HTTPTimeout     time.Duration
	SnapshotHistory int
}

// Load loads configuration from environment variables and .env file
func Load() (*Config, error) {
	viper.SetConfigName(".env")
	viper.SetConfigType("env")
	viper.AddConfigPath(".")
	viper.AutomaticEnv()

	// Load .env file if it exists (ignore if not found)
	_ = viper.ReadInConfig()

	viper.SetDefault("CONFIG_FILE", "arrranger_instances.json")
	viper.SetDefault("DB_NAME", "arrranger.db")
	viper.SetDefault("SERVER_PORT", "8080")
	viper.SetDefault("LOG_LEVEL", "info")
	viper.SetDefault("HTTP_TIMEOUT_SECONDS", 30)
	viper.SetDefault("SNAPSHOT_HISTORY", 3)

	cfg := &Config{
		ConfigFile:      viper.GetString("CONFIG_FILE"),
		DatabaseFile:    viper.GetString("DB_NAME"),
		ServerPort:      viper.GetString("SERVER_PORT"),
		LogLevel:        viper.GetString("LOG_LEVEL"),
		HTTPTimeout:     time.Duration(viper.GetInt("HTTP_TIMEOUT_SECONDS")) * time.Second,
		SnapshotHistory: viper.GetInt("SNAPSHOT_HISTORY"),
	}

	if cfg.HTTPTimeout <= 0 {
		cfg.HTTPTimeout = 30 * time.Second
	}

	if _, err := os.Stat(cfg.ConfigFile); err != nil {
		return nil, fmt.Errorf("instances file %s not readable: %w", cfg.ConfigFile, err)
	}

	return cfg, nil
}
