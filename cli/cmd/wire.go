package cmd

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/stratum/backup"
	"github.com/pithecene-io/stratum/cli/reader"
	"github.com/pithecene-io/stratum/config"
	"github.com/pithecene-io/stratum/drain"
	"github.com/pithecene-io/stratum/log"
	"github.com/pithecene-io/stratum/pipeline"
	"github.com/pithecene-io/stratum/queue"
	"github.com/pithecene-io/stratum/recovery"
	"github.com/pithecene-io/stratum/schedule"
	"github.com/pithecene-io/stratum/store"
	"github.com/pithecene-io/stratum/validate"
	"github.com/pithecene-io/stratum/warehouse"
)

// loadConfig reads the --config file with environment overrides on top.
func loadConfig(c *cli.Context) (*config.Config, error) {
	return config.Load(c.String("config"))
}

// buildQueue creates the queue store client from config.
func buildQueue(cfg *config.Config) (*queue.Client, error) {
	return queue.New(queue.Config{
		URL:       cfg.Queue.URL,
		Addr:      cfg.Queue.Addr(),
		Password:  cfg.Queue.Password,
		DB:        cfg.Queue.DB,
		KeyPrefix: cfg.Queue.KeyPrefix,
	})
}

// buildObjectStore creates the configured object store backend.
func buildObjectStore(ctx context.Context, cfg *config.Config) (store.ObjectStore, error) {
	switch cfg.Store.Backend {
	case "gcs":
		return store.NewGCS(ctx, store.GCSConfig{Bucket: cfg.Store.Bucket})
	case "s3":
		return store.NewS3(ctx, store.S3Config{
			Bucket:       cfg.Store.Bucket,
			Region:       cfg.Store.Region,
			Endpoint:     cfg.Store.Endpoint,
			UsePathStyle: cfg.Store.PathStyle,
		})
	case "fs":
		return store.NewFS(store.FSConfig{Root: cfg.Store.Path})
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}
}

// runtimeSet is the fully wired pipeline: every component the run and
// health commands need, plus the close functions in reverse-build order.
type runtimeSet struct {
	cfg     *config.Config
	queues  *queue.Client
	orch    *pipeline.Orchestrator
	sched   *schedule.Scheduler
	closers []func() error
}

// Close releases all held clients, last-built first.
func (r *runtimeSet) Close() {
	for i := len(r.closers) - 1; i >= 0; i-- {
		_ = r.closers[i]()
	}
}

// buildRuntime wires the full pipeline from config: queue client, drainer,
// validator, object store, warehouse loader, backup store, recovery
// registry, orchestrator and scheduler.
func buildRuntime(ctx context.Context, cfg *config.Config) (*runtimeSet, error) {
	rs := &runtimeSet{cfg: cfg}

	queues, err := buildQueue(cfg)
	if err != nil {
		return nil, err
	}
	rs.queues = queues
	rs.closers = append(rs.closers, queues.Close)

	objStore, err := buildObjectStore(ctx, cfg)
	if err != nil {
		rs.Close()
		return nil, err
	}
	if closer, ok := objStore.(interface{ Close() error }); ok {
		rs.closers = append(rs.closers, closer.Close)
	}

	loader, err := warehouse.NewBigQuery(ctx, warehouse.BigQueryConfig{
		ProjectID:     cfg.Warehouse.ProjectID,
		Dataset:       cfg.Warehouse.Dataset,
		GPSTable:      cfg.Warehouse.GPSTable,
		MobileTable:   cfg.Warehouse.MobileTable,
		Location:      cfg.Warehouse.Location,
		JobTimeout:    cfg.Warehouse.JobTimeout.Duration,
		MaxBadRecords: cfg.Warehouse.MaxBadRecords,
	})
	if err != nil {
		rs.Close()
		return nil, err
	}
	rs.closers = append(rs.closers, loader.Close)

	backups, err := backup.NewStore(backup.Config{
		Dir:        cfg.Backup.Dir,
		MaxRetries: cfg.Backup.MaxRetries,
		Retention:  cfg.Backup.Retention(),
	}, nil)
	if err != nil {
		rs.Close()
		return nil, err
	}

	registry, err := recovery.NewManager(recovery.Config{
		Dir:              cfg.Recovery.Dir,
		GPSPrefix:        cfg.Store.GPSPrefix,
		MobilePrefix:     cfg.Store.MobilePrefix,
		MaxRetries:       cfg.Recovery.MaxRetries,
		CleanupOnSuccess: cfg.Store.CleanupOnSuccess,
		Retention:        cfg.Recovery.Retention(),
	}, objStore, loader, nil)
	if err != nil {
		rs.Close()
		return nil, err
	}

	drainer := drain.New(queues, drain.Config{
		GPSKey:       cfg.Queue.GPSKey,
		MobileKey:    cfg.Queue.MobileKey,
		AtomicScript: cfg.Queue.AtomicExtractEnabled(),
	}, nil)

	rs.orch = pipeline.New(
		queues,
		drainer,
		validate.New(),
		objStore,
		loader,
		backups,
		registry,
		pipeline.Config{
			GPSPrefix:        cfg.Store.GPSPrefix,
			MobilePrefix:     cfg.Store.MobilePrefix,
			GPSKey:           cfg.Queue.GPSKey,
			MobileKey:        cfg.Queue.MobileKey,
			CleanupOnSuccess: cfg.Store.CleanupOnSuccess,
			StorageBackend:   cfg.Store.Backend,
		},
		log.NewLogger("pipeline"),
	)

	rs.sched = schedule.New(rs.orch, queues, schedule.Config{
		TickInterval:    cfg.Schedule.TickInterval.Duration,
		LockKey:         cfg.Schedule.LockKey,
		CleanupInterval: cfg.Schedule.CleanupInterval.Duration,
		TmpDir:          cfg.Backup.Dir,
	}, nil)

	return rs, nil
}

// newStateReader builds the read-only pipeline state reader. queues may be
// nil for commands that only read the on-disk stores.
//
// The recovery manager is handed nil store and loader handles: the reader
// only lists registry entries and never processes them.
func newStateReader(cfg *config.Config, queues *queue.Client) (*reader.StateReader, error) {
	backups, err := backup.NewStore(backup.Config{
		Dir:        cfg.Backup.Dir,
		MaxRetries: cfg.Backup.MaxRetries,
		Retention:  cfg.Backup.Retention(),
	}, nil)
	if err != nil {
		return nil, err
	}

	registry, err := recovery.NewManager(recovery.Config{
		Dir:          cfg.Recovery.Dir,
		GPSPrefix:    cfg.Store.GPSPrefix,
		MobilePrefix: cfg.Store.MobilePrefix,
		MaxRetries:   cfg.Recovery.MaxRetries,
		Retention:    cfg.Recovery.Retention(),
	}, nil, nil, nil)
	if err != nil {
		return nil, err
	}

	return reader.New(backups, registry, queues, cfg.Queue.GPSKey, cfg.Queue.MobileKey), nil
}
