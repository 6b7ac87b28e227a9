package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Load reads a YAML config file, expands ${VAR} references, applies
// environment overrides and defaults, and validates the result.
// An empty path yields a config built from environment and defaults alone.
func Load(path string) (*Config, error) {
	var cfg Config

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return nil, fmt.Errorf("config file not found: %s", path)
			}
			return nil, fmt.Errorf("cannot read config file %q: %w", path, err)
		}
		expanded := ExpandEnv(string(data))
		if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
			return nil, fmt.Errorf("invalid YAML in %s: %w", path, err)
		}
	}

	cfg.ApplyEnv()
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ApplyEnv overrides config fields from environment variables. A set
// variable always wins over the file value.
func (c *Config) ApplyEnv() {
	setString(&c.Queue.URL, "REDIS_URL")
	setString(&c.Queue.Host, "REDIS_HOST")
	setInt(&c.Queue.Port, "REDIS_PORT")
	setString(&c.Queue.Password, "REDIS_PASSWORD")
	setInt(&c.Queue.DB, "REDIS_DB")
	setString(&c.Queue.KeyPrefix, "REDIS_KEY_PREFIX")
	setString(&c.Queue.GPSKey, "GPS_QUEUE_KEY")
	setString(&c.Queue.MobileKey, "MOBILE_QUEUE_KEY")
	if v, ok := lookupBool("ATOMIC_PROCESSING"); ok {
		c.Queue.AtomicExtract = &v
	}

	setString(&c.Store.Backend, "STORAGE_BACKEND")
	setString(&c.Store.Bucket, "STORAGE_BUCKET")
	setString(&c.Store.GPSPrefix, "GPS_STORAGE_PREFIX")
	setString(&c.Store.MobilePrefix, "MOBILE_STORAGE_PREFIX")
	setString(&c.Store.Endpoint, "STORAGE_ENDPOINT")
	setString(&c.Store.Region, "STORAGE_REGION")
	setString(&c.Store.Path, "STORAGE_PATH")
	if v, ok := lookupBool("CLEANUP_ON_SUCCESS"); ok {
		c.Store.CleanupOnSuccess = v
	}

	setString(&c.Warehouse.ProjectID, "WAREHOUSE_PROJECT_ID")
	setString(&c.Warehouse.Dataset, "WAREHOUSE_DATASET")
	setString(&c.Warehouse.GPSTable, "WAREHOUSE_GPS_TABLE")
	setString(&c.Warehouse.MobileTable, "WAREHOUSE_MOBILE_TABLE")
	setString(&c.Warehouse.Location, "WAREHOUSE_LOCATION")
	if v, ok := lookupInt("WAREHOUSE_JOB_TIMEOUT_MS"); ok {
		c.Warehouse.JobTimeout.Duration = time.Duration(v) * time.Millisecond
	}
	if v, ok := lookupInt("WAREHOUSE_MAX_BAD_RECORDS"); ok {
		c.Warehouse.MaxBadRecords = int64(v)
	}

	setString(&c.Backup.Dir, "BACKUP_STORAGE_PATH")
	setInt(&c.Backup.MaxRetries, "BACKUP_MAX_RETRIES")
	setInt(&c.Backup.RetentionHours, "BACKUP_RETENTION_HOURS")

	setString(&c.Recovery.Dir, "RECOVERY_STORAGE_PATH")
	setInt(&c.Recovery.MaxRetries, "RECOVERY_MAX_RETRIES")
	setInt(&c.Recovery.RetentionHours, "RECOVERY_RETENTION_HOURS")

	if v, ok := lookupInt("TICK_INTERVAL_MIN"); ok {
		c.Schedule.TickInterval.Duration = time.Duration(v) * time.Minute
	}
	if v, ok := lookupInt("CLEANUP_INTERVAL_MIN"); ok {
		c.Schedule.CleanupInterval.Duration = time.Duration(v) * time.Minute
	}
	setString(&c.Schedule.LockKey, "TICK_LOCK_KEY")
}

func setString(dst *string, name string) {
	if v, ok := os.LookupEnv(name); ok && v != "" {
		*dst = v
	}
}

func setInt(dst *int, name string) {
	if v, ok := lookupInt(name); ok {
		*dst = v
	}
}

func lookupInt(name string) (int, bool) {
	v, ok := os.LookupEnv(name)
	if !ok || v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}

func lookupBool(name string) (bool, bool) {
	v, ok := os.LookupEnv(name)
	if !ok || v == "" {
		return false, false
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, false
	}
	return b, true
}
