package config

import (
	"fmt"
	"strings"

	"github.com/LucaNori/arrranger/internal/models"
	"github.com/LucaNori/arrranger/internal/scheduler"
	"github.com/robfig/cron/v3"
	"github.com/spf13/viper"
)

// ConfigErrorKind classifies configuration rejections
type ConfigErrorKind string

const (
	ErrInvalidCron   ConfigErrorKind = "invalid-cron"
	ErrMissingField  ConfigErrorKind = "missing-field"
	ErrUnknownParent ConfigErrorKind = "unknown-parent"
)

// ConfigError rejects an instance definition before it reaches the
// scheduler.
type ConfigError struct {
	Kind     ConfigErrorKind
	Instance string
	Field    string
	Detail   string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config: instance %s: %s (%s): %s", e.Instance, e.Kind, e.Field, e.Detail)
}

// InstanceConfig is the on-disk shape of one instance definition, matching
// the historical arrranger_instances.json layout.
type InstanceConfig struct {
	URL     string         `mapstructure:"url"`
	APIKey  string         `mapstructure:"api_key"`
	Type    string         `mapstructure:"type"`
	Backup  *BackupConfig  `mapstructure:"backup"`
	Sync    *SyncConfig    `mapstructure:"sync"`
	Filters *FiltersConfig `mapstructure:"filters"`
}

// BackupConfig enables scheduled backups for an instance
type BackupConfig struct {
	Enabled              bool            `mapstructure:"enabled"`
	BackupReleaseHistory bool            `mapstructure:"backup_release_history"`
	Schedule             *ScheduleConfig `mapstructure:"schedule"`
}

// SyncConfig makes an instance a sync child of a parent instance
type SyncConfig struct {
	ParentInstance string          `mapstructure:"parent_instance"`
	Schedule       *ScheduleConfig `mapstructure:"schedule"`
}

// ScheduleConfig is a cron schedule; only type "cron" is supported
type ScheduleConfig struct {
	Type string `mapstructure:"type"`
	Cron string `mapstructure:"cron"`
}

// FiltersConfig narrows what a sync pushes to this instance
type FiltersConfig struct {
	QualityProfiles []int    `mapstructure:"quality_profiles"`
	RootFolders     []string `mapstructure:"root_folders"`
	Tags            []string `mapstructure:"tags"`
	MinYear         int      `mapstructure:"min_year"`
}

var cronParser = cron.NewParser(
	cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// Instances is the validated, immutable result of loading the instances
// file: the registry, the derived schedule entries and each instance's
// filter (applied when the instance is a sync/restore destination).
type Instances struct {
	Registry []models.Instance
	Entries  []scheduler.Entry
	Filters  map[string]models.Filter
}

// LoadInstances reads and validates the instances file. Any malformed
// definition is rejected here; the scheduler never sees an invalid cron
// expression.
func LoadInstances(path string) (*Instances, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("json")
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read instances file: %w", err)
	}

	var raw map[string]InstanceConfig
	if err := v.Unmarshal(&raw); err != nil {
		return nil, fmt.Errorf("failed to parse instances file: %w", err)
	}

	result := &Instances{Filters: make(map[string]models.Filter)}

	for name, ic := range raw {
		inst, err := buildInstance(name, ic)
		if err != nil {
			return nil, err
		}
		result.Registry = append(result.Registry, inst)
		result.Filters[name] = buildFilter(ic.Filters)

		if ic.Backup != nil && ic.Backup.Enabled {
			spec, err := validateSchedule(name, "backup.schedule", ic.Backup.Schedule)
			if err != nil {
				return nil, err
			}
			result.Entries = append(result.Entries, scheduler.Entry{
				Instance:    name,
				Action:      models.ActionBackup,
				Spec:        spec,
				WithHistory: ic.Backup.BackupReleaseHistory,
			})
		}

		if ic.Sync != nil && ic.Sync.ParentInstance != "" {
			if _, ok := raw[ic.Sync.ParentInstance]; !ok {
				return nil, &ConfigError{
					Kind:     ErrUnknownParent,
					Instance: name,
					Field:    "sync.parent_instance",
					Detail:   fmt.Sprintf("parent instance %q is not defined", ic.Sync.ParentInstance),
				}
			}
			spec, err := validateSchedule(name, "sync.schedule", ic.Sync.Schedule)
			if err != nil {
				return nil, err
			}
			result.Entries = append(result.Entries, scheduler.Entry{
				Instance: name,
				Action:   models.ActionSync,
				Parent:   ic.Sync.ParentInstance,
				Spec:     spec,
				Filter:   buildFilter(ic.Filters),
			})
		}
	}

	return result, nil
}

func buildInstance(name string, ic InstanceConfig) (models.Instance, error) {
	if ic.URL == "" {
		return models.Instance{}, &ConfigError{Kind: ErrMissingField, Instance: name, Field: "url", Detail: "url is required"}
	}
	if ic.APIKey == "" {
		return models.Instance{}, &ConfigError{Kind: ErrMissingField, Instance: name, Field: "api_key", Detail: "api_key is required"}
	}

	var kind models.InstanceKind
	switch strings.ToLower(ic.Type) {
	case "radarr":
		kind = models.KindMovie
	case "sonarr":
		kind = models.KindShow
	case "":
		return models.Instance{}, &ConfigError{Kind: ErrMissingField, Instance: name, Field: "type", Detail: "type is required"}
	default:
		return models.Instance{}, &ConfigError{
			Kind:     ErrMissingField,
			Instance: name,
			Field:    "type",
			Detail:   fmt.Sprintf("unsupported instance type %q (want radarr or sonarr)", ic.Type),
		}
	}

	url := ic.URL
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		url = "http://" + url
	}

	return models.Instance{
		Name:   name,
		URL:    url,
		APIKey: ic.APIKey,
		Kind:   kind,
	}, nil
}

func validateSchedule(instance, field string, sc *ScheduleConfig) (string, error) {
	if sc == nil || sc.Cron == "" {
		return "", &ConfigError{Kind: ErrMissingField, Instance: instance, Field: field, Detail: "cron schedule is required"}
	}
	if sc.Type != "cron" {
		return "", &ConfigError{
			Kind:     ErrInvalidCron,
			Instance: instance,
			Field:    field,
			Detail:   fmt.Sprintf("unsupported schedule type %q (only cron is supported)", sc.Type),
		}
	}
	if _, err := cronParser.Parse(sc.Cron); err != nil {
		return "", &ConfigError{
			Kind:     ErrInvalidCron,
			Instance: instance,
			Field:    field,
			Detail:   fmt.Sprintf("invalid cron expression %q: %v", sc.Cron, err),
		}
	}
	return sc.Cron, nil
}

func buildFilter(fc *FiltersConfig) models.Filter {
	if fc == nil {
		return models.Filter{}
	}
	return models.Filter{
		QualityProfiles: fc.QualityProfiles,
		RootFolders:     fc.RootFolders,
		Tags:            fc.Tags,
		MinYear:         fc.MinYear,
	}
}
