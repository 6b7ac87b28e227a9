package config

import (
	"errors"
	"fmt"
	"time"
)

// Config represents a stratum.yaml configuration file.
// Environment variables override file values; see ApplyEnv for the mapping.
type Config struct {
	Queue     QueueConfig     `yaml:"queue"`
	Store     StoreConfig     `yaml:"store"`
	Warehouse WarehouseConfig `yaml:"warehouse"`
	Backup    BackupConfig    `yaml:"backup"`
	Recovery  RecoveryConfig  `yaml:"recovery"`
	Schedule  ScheduleConfig  `yaml:"schedule"`
}

// QueueConfig holds queue store connection settings.
type QueueConfig struct {
	URL       string `yaml:"url"`
	Host      string `yaml:"host"`
	Port      int    `yaml:"port"`
	Password  string `yaml:"password"`
	DB        int    `yaml:"db"`
	KeyPrefix string `yaml:"key_prefix"`
	GPSKey    string `yaml:"gps_key"`
	MobileKey string `yaml:"mobile_key"`
	// AtomicExtract selects the single-script drain path (default true).
	AtomicExtract *bool `yaml:"atomic_extract"`
}

// Addr returns the host:port address, empty when URL is in use.
func (q QueueConfig) Addr() string {
	if q.Host == "" {
		return ""
	}
	return fmt.Sprintf("%s:%d", q.Host, q.Port)
}

// StoreConfig holds object store settings.
type StoreConfig struct {
	// Backend selects the object store implementation: gcs, s3, or fs.
	Backend      string `yaml:"backend"`
	Bucket       string `yaml:"bucket"`
	GPSPrefix    string `yaml:"gps_prefix"`
	MobilePrefix string `yaml:"mobile_prefix"`
	// Endpoint, Region and PathStyle apply to the s3 backend only.
	Endpoint  string `yaml:"endpoint"`
	Region    string `yaml:"region"`
	PathStyle bool   `yaml:"path_style"`
	// Path is the fs backend root directory.
	Path string `yaml:"path"`
	// CleanupOnSuccess deletes staged objects once their load commits.
	CleanupOnSuccess bool `yaml:"cleanup_on_success"`
}

// WarehouseConfig holds warehouse loader settings.
type WarehouseConfig struct {
	ProjectID     string   `yaml:"project_id"`
	Dataset       string   `yaml:"dataset"`
	GPSTable      string   `yaml:"gps_table"`
	MobileTable   string   `yaml:"mobile_table"`
	Location      string   `yaml:"location"`
	JobTimeout    Duration `yaml:"job_timeout"`
	MaxBadRecords int64    `yaml:"max_bad_records"`
}

// BackupConfig holds local backup store settings.
type BackupConfig struct {
	Dir            string `yaml:"dir"`
	MaxRetries     int    `yaml:"max_retries"`
	RetentionHours int    `yaml:"retention_hours"`
}

// Retention returns the entry retention as a duration.
func (b BackupConfig) Retention() time.Duration {
	return time.Duration(b.RetentionHours) * time.Hour
}

// RecoveryConfig holds recovery registry settings.
type RecoveryConfig struct {
	Dir            string `yaml:"dir"`
	MaxRetries     int    `yaml:"max_retries"`
	RetentionHours int    `yaml:"retention_hours"`
}

// Retention returns the entry retention as a duration.
func (r RecoveryConfig) Retention() time.Duration {
	return time.Duration(r.RetentionHours) * time.Hour
}

// ScheduleConfig holds scheduler settings.
type ScheduleConfig struct {
	TickInterval    Duration `yaml:"tick_interval"`
	CleanupInterval Duration `yaml:"cleanup_interval"`
	LockKey         string   `yaml:"lock_key"`
}

// Duration wraps time.Duration for YAML string parsing (e.g. "10s", "5m").
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses a duration string like "10s" or "5m30s".
func (d *Duration) UnmarshalYAML(unmarshal func(any) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	if s == "" {
		return nil
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	d.Duration = parsed
	return nil
}

// Default file-backed state locations.
const (
	DefaultBackupDir   = "tmp/atomic-backups"
	DefaultRecoveryDir = "tmp/atomic-backups/gcs-recovery"
)

// applyDefaults fills unset fields with their defaults.
func (c *Config) applyDefaults() {
	if c.Queue.Port == 0 {
		c.Queue.Port = 6379
	}
	if c.Store.Backend == "" {
		c.Store.Backend = "gcs"
	}
	if c.Store.GPSPrefix == "" {
		c.Store.GPSPrefix = "gps-data/"
	}
	if c.Store.MobilePrefix == "" {
		c.Store.MobilePrefix = "mobile-data/"
	}
	if c.Backup.Dir == "" {
		c.Backup.Dir = DefaultBackupDir
	}
	if c.Backup.MaxRetries == 0 {
		c.Backup.MaxRetries = 3
	}
	if c.Backup.RetentionHours == 0 {
		c.Backup.RetentionHours = 24
	}
	if c.Recovery.Dir == "" {
		c.Recovery.Dir = DefaultRecoveryDir
	}
	if c.Recovery.MaxRetries == 0 {
		c.Recovery.MaxRetries = 3
	}
	if c.Recovery.RetentionHours == 0 {
		c.Recovery.RetentionHours = 24
	}
	if c.Schedule.TickInterval.Duration == 0 {
		c.Schedule.TickInterval.Duration = time.Minute
	}
	if c.Schedule.CleanupInterval.Duration == 0 {
		c.Schedule.CleanupInterval.Duration = time.Hour
	}
	if c.Warehouse.JobTimeout.Duration == 0 {
		c.Warehouse.JobTimeout.Duration = 300 * time.Second
	}
}

// AtomicExtractEnabled reports the drain mode, defaulting to the scripted
// path.
func (q QueueConfig) AtomicExtractEnabled() bool {
	return q.AtomicExtract == nil || *q.AtomicExtract
}

// Validate checks that the configuration is complete enough to start.
func (c *Config) Validate() error {
	if c.Queue.URL == "" && c.Queue.Host == "" {
		return errors.New("config: queue url or host is required")
	}
	switch c.Store.Backend {
	case "gcs", "s3":
		if c.Store.Bucket == "" {
			return fmt.Errorf("config: %s backend requires a bucket", c.Store.Backend)
		}
	case "fs":
		if c.Store.Path == "" {
			return errors.New("config: fs backend requires a path")
		}
	default:
		return fmt.Errorf("config: unknown store backend %q", c.Store.Backend)
	}
	if c.Warehouse.ProjectID == "" || c.Warehouse.Dataset == "" {
		return errors.New("config: warehouse project_id and dataset are required")
	}
	if c.Warehouse.GPSTable == "" || c.Warehouse.MobileTable == "" {
		return errors.New("config: warehouse table names are required")
	}
	if c.Schedule.TickInterval.Duration < time.Second {
		return errors.New("config: tick interval below 1s")
	}
	return nil
}
