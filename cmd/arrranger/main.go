package main

import (
	"fmt"
	"os"

	"github.com/LucaNori/arrranger/internal/config"
	"github.com/LucaNori/arrranger/internal/controllers"
	"github.com/LucaNori/arrranger/internal/models"
	"github.com/LucaNori/arrranger/internal/services/arr"
	"github.com/LucaNori/arrranger/internal/utils"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:           "arrranger",
	Short:         "Backup and sync catalogs across Radarr/Sonarr instances",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// app bundles everything a command needs: settings, logger, store,
// validated instance definitions and the engines.
type app struct {
	cfg         *config.Config
	logger      *logrus.Logger
	db          *models.Database
	defs        *config.Instances
	clients     controllers.ClientFactory
	backupCtrl  *controllers.BackupController
	syncCtrl    *controllers.SyncController
	restoreCtrl *controllers.RestoreController
}

// newApp loads configuration, opens the store and registers the configured
// instances. Every command starts here.
func newApp() (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	logger := utils.NewLogger(cfg.LogLevel)

	db, err := models.NewDatabase(cfg.DatabaseFile, cfg.SnapshotHistory)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	defs, err := config.LoadInstances(cfg.ConfigFile)
	if err != nil {
		db.Close()
		return nil, err
	}
	for _, inst := range defs.Registry {
		if err := db.UpsertInstance(inst); err != nil {
			db.Close()
			return nil, err
		}
	}

	clients := controllers.ClientFactory(func(inst models.Instance) controllers.CatalogClient {
		return arr.NewClient(inst, cfg.HTTPTimeout, logger)
	})

	a := &app{
		cfg:         cfg,
		logger:      logger,
		db:          db,
		defs:        defs,
		clients:     clients,
		backupCtrl:  controllers.NewBackupController(db, clients, logger),
		syncCtrl:    controllers.NewSyncController(db, clients, logger),
		restoreCtrl: controllers.NewRestoreController(db, clients, logger),
	}
	return a, nil
}

func (a *app) close() {
	if err := a.db.Close(); err != nil {
		a.logger.WithError(err).Error("Failed to close database")
	}
}

// instance resolves a configured instance by name
func (a *app) instance(name string) (models.Instance, error) {
	for _, inst := range a.defs.Registry {
		if inst.Name == name {
			return inst, nil
		}
	}
	return models.Instance{}, fmt.Errorf("instance %s is not configured", name)
}

// filter returns the configured filter for an instance (empty when none)
func (a *app) filter(name string) models.Filter {
	return a.defs.Filters[name]
}
