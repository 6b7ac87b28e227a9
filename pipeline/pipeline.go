// Package pipeline implements the per-tick orchestration: backup retries,
// recovery processing, atomic drain, then the parallel GPS and mobile
// dispatch paths (validate, stage, load).
//
// A tick never panics or returns an error to the scheduler; every outcome,
// including total failure, is a structured TickResult. Failed batches are
// durably parked before the tick ends: upload failures in the backup store,
// load failures in the recovery registry.
package pipeline

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/pithecene-io/stratum/backup"
	"github.com/pithecene-io/stratum/drain"
	"github.com/pithecene-io/stratum/log"
	"github.com/pithecene-io/stratum/metrics"
	"github.com/pithecene-io/stratum/queue"
	"github.com/pithecene-io/stratum/recovery"
	"github.com/pithecene-io/stratum/store"
	"github.com/pithecene-io/stratum/types"
	"github.com/pithecene-io/stratum/validate"
	"github.com/pithecene-io/stratum/warehouse"
)

// Default staging prefixes.
const (
	DefaultGPSPrefix    = "gps-data/"
	DefaultMobilePrefix = "mobile-data/"
)

// metaSource is the source label stamped on every staged object.
const metaSource = "stratum-pipeline"

// Dispatch-path failure stages.
const (
	StageValidation = "validation_failed"
	StageUpload     = "storage_upload_failed"
	StageLoad       = "warehouse_load_failed"
)

// Config configures the orchestrator.
type Config struct {
	// GPSPrefix and MobilePrefix are the staging prefixes per kind.
	GPSPrefix    string
	MobilePrefix string
	// GPSKey and MobileKey are the queue key names, used only by the
	// last-resort requeue path (defaults match the drainer's).
	GPSKey    string
	MobileKey string
	// CleanupOnSuccess deletes staged objects once their load commits.
	CleanupOnSuccess bool
	// StorageBackend is an informational label carried on metrics.
	StorageBackend string
}

// KindResult is the outcome of one dispatch path within a tick.
type KindResult struct {
	Kind        types.Kind
	Extracted   int
	Valid       int
	Invalid     int
	Uploaded    bool
	Loaded      bool
	RowsWritten int64
	ObjectName  string
	// Stage names the step that failed; empty on success.
	Stage string
	Err   string
	// BackupID / RecoveryID reference the durable park when a stage failed.
	BackupID   string
	RecoveryID string
}

// OK reports whether the path ran to completion (an empty queue counts).
func (r *KindResult) OK() bool {
	return r != nil && r.Stage == ""
}

// TickResult is the structured outcome of one tick.
type TickResult struct {
	TickID    string
	StartedAt time.Time
	Elapsed   time.Duration

	BackupsProcessed int
	BackupsFailed    int
	Recovery         *recovery.RunResult

	GPS    *KindResult
	Mobile *KindResult

	Metrics metrics.Snapshot

	// Err is set when the tick failed before dispatch (drain failure).
	Err string
}

// OK reports whether the tick completed with both paths healthy.
func (t *TickResult) OK() bool {
	return t.Err == "" && t.GPS.OK() && t.Mobile.OK()
}

// RecordsProcessed returns the warehouse-committed record count.
func (t *TickResult) RecordsProcessed() int64 {
	return t.Metrics.TotalProcessed()
}

// Health is a point-in-time pipeline health report.
type Health struct {
	OK             bool              `json:"ok"`
	Checks         map[string]string `json:"checks"`
	BackupPressure bool              `json:"backupPressure"`
	OldestBackup   time.Duration     `json:"oldestBackup"`
}

// Orchestrator wires the pipeline components and runs ticks. It owns all
// component handles; the recovery manager sees the store and loader only as
// interfaces, never the orchestrator itself.
type Orchestrator struct {
	queues    *queue.Client
	drainer   *drain.Drainer
	validator *validate.Validator
	store     store.ObjectStore
	loader    warehouse.Loader
	backups   *backup.Store
	registry  *recovery.Manager

	config Config
	logger *log.Logger
}

// New creates an orchestrator over the given components.
func New(
	queues *queue.Client,
	drainer *drain.Drainer,
	validator *validate.Validator,
	objStore store.ObjectStore,
	loader warehouse.Loader,
	backups *backup.Store,
	registry *recovery.Manager,
	cfg Config,
	logger *log.Logger,
) *Orchestrator {
	if cfg.GPSPrefix == "" {
		cfg.GPSPrefix = DefaultGPSPrefix
	}
	if cfg.MobilePrefix == "" {
		cfg.MobilePrefix = DefaultMobilePrefix
	}
	if cfg.GPSKey == "" {
		cfg.GPSKey = queue.DefaultGPSKey
	}
	if cfg.MobileKey == "" {
		cfg.MobileKey = queue.DefaultMobileKey
	}
	if logger == nil {
		logger = log.NewLogger("pipeline")
	}
	return &Orchestrator{
		queues:    queues,
		drainer:   drainer,
		validator: validator,
		store:     objStore,
		loader:    loader,
		backups:   backups,
		registry:  registry,
		config:    cfg,
		logger:    logger,
	}
}

// RunTick executes one full tick. Callers hold the orchestrator lock.
func (o *Orchestrator) RunTick(ctx context.Context) *TickResult {
	start := time.Now()
	result := &TickResult{
		TickID:    fmt.Sprintf("tick_%s_%s", start.UTC().Format("20060102150405"), types.RandSuffix(3)),
		StartedAt: start,
		GPS:       &KindResult{Kind: types.KindGPS},
		Mobile:    &KindResult{Kind: types.KindMobile},
	}
	logger := o.logger.WithTick(result.TickID)
	collector := metrics.NewCollector(o.config.StorageBackend, result.TickID)

	defer func() {
		if r := recover(); r != nil {
			result.Err = fmt.Sprintf("tick panic: %v", r)
			logger.Error("tick panicked", map[string]any{"panic": fmt.Sprint(r)})
		}
		result.Elapsed = time.Since(start)
		collector.SetTotalTime(result.Elapsed)
		result.Metrics = collector.Snapshot()
	}()

	// Stale batches first: backed-up batches get ahead of fresh queue data.
	o.retryBackups(ctx, logger, collector, result)

	// Then registered load failures and orphaned staged objects.
	if run, err := o.registry.ProcessAll(ctx); err != nil {
		logger.Warn("recovery run failed", map[string]any{"error": err.Error()})
	} else {
		result.Recovery = run
		collector.AbsorbRecoveryRun(int64(run.Processed), int64(run.Failed), int64(run.Orphans))
	}

	// Atomic drain of both queues. A drain failure ends the tick: nothing
	// was removed from the failed queue, so there is nothing to park.
	drained, err := o.drainer.ExtractAll(ctx)
	if err != nil {
		result.Err = err.Error()
		logger.Error("drain failed", map[string]any{"error": err.Error()})
		return result
	}
	collector.SetExtractionTime(drained.Elapsed)
	collector.AddExtracted("gps", int64(len(drained.GPS.Raw)))
	collector.AddExtracted("mobile", int64(len(drained.Mobile.Raw)))

	// The two paths are independent; run them truly in parallel.
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		o.dispatch(ctx, logger, collector, drained.GPS, result.GPS)
	}()
	go func() {
		defer wg.Done()
		o.dispatch(ctx, logger, collector, drained.Mobile, result.Mobile)
	}()
	wg.Wait()

	logger.Info("tick complete", map[string]any{
		"ok":            result.OK(),
		"gps_loaded":    result.GPS.RowsWritten,
		"mobile_loaded": result.Mobile.RowsWritten,
		"elapsed_ms":    time.Since(start).Milliseconds(),
	})
	return result
}

// retryBackups processes every retryable backup entry, oldest first. A
// completed entry is deleted; its batch is durably staged and loaded.
func (o *Orchestrator) retryBackups(ctx context.Context, logger *log.Logger, collector *metrics.Collector, result *TickResult) {
	pending, err := o.backups.ListPending()
	if err != nil {
		logger.Warn("backup listing failed", map[string]any{"error": err.Error()})
		return
	}

	for _, entry := range pending {
		collector.IncBackupRetried()
		res, err := o.backups.Process(ctx, entry, o.restageBackup)
		if err != nil {
			logger.Warn("backup processing failed", map[string]any{
				"backup_id": entry.ID,
				"error":     err.Error(),
			})
			result.BackupsFailed++
			continue
		}
		if res.OK {
			result.BackupsProcessed++
			collector.IncBackupRecovered()
			if err := o.backups.Delete(entry.ID); err != nil {
				logger.Warn("backup delete failed", map[string]any{
					"backup_id": entry.ID,
					"error":     err.Error(),
				})
			}
			continue
		}
		result.BackupsFailed++
		if !res.WillRetry {
			collector.IncBackupExhausted()
		}
	}
}

// restageBackup uploads a backed-up batch under its original object name and
// loads it. The preserved processing id keeps the object name and load job
// id stable, so a half-finished earlier attempt dedups instead of doubling.
func (o *Orchestrator) restageBackup(ctx context.Context, entry *backup.Entry) error {
	records, err := entry.DecodedRecords()
	if err != nil {
		return fmt.Errorf("decode backup: %w", err)
	}
	payload, err := types.MarshalNDJSON(records)
	if err != nil {
		return fmt.Errorf("encode backup: %w", err)
	}

	pid := entry.SourceMetadata[store.MetaProcessingID]
	if pid == "" {
		pid = entry.ID
	}
	objectName := types.ObjectName(o.prefixFor(entry.Kind), pid)

	up, err := o.store.UploadNDJSON(ctx, payload, objectName, entry.SourceMetadata)
	if err != nil {
		return fmt.Errorf("stage backup: %w", err)
	}
	if _, err := o.loader.LoadFromURI(ctx, up.URI, entry.Kind, entry.SourceMetadata); err != nil {
		return fmt.Errorf("load backup: %w", err)
	}
	if o.config.CleanupOnSuccess {
		o.deleteStaged(ctx, objectName)
	}
	return nil
}

// dispatch runs one kind's path: validate, stage, load. Failures park the
// batch durably and mark the stage; they never propagate.
func (o *Orchestrator) dispatch(ctx context.Context, logger *log.Logger, collector *metrics.Collector, extract *drain.Extract, out *KindResult) {
	kind := extract.Kind
	out.Extracted = len(extract.Raw)
	if extract.Empty() {
		return
	}

	validated, err := o.validator.ValidateBatch(kind, extract.Raw, extract.ProcessingID)
	if err != nil {
		out.Stage = StageValidation
		out.Err = err.Error()
		return
	}
	out.Valid = validated.Stats.Valid
	out.Invalid = validated.Stats.Invalid
	collector.AbsorbValidation(string(kind), int64(out.Valid), int64(out.Invalid))
	if out.Invalid > 0 {
		logger.Warn("invalid records dropped", map[string]any{
			"kind":    string(kind),
			"invalid": out.Invalid,
			"total":   validated.Stats.Total,
		})
	}
	if len(validated.Valid) == 0 {
		return
	}

	payload, err := types.MarshalNDJSON(validated.Valid)
	if err != nil {
		out.Stage = StageValidation
		out.Err = err.Error()
		return
	}

	out.ObjectName = types.ObjectName(o.prefixFor(kind), extract.ProcessingID)
	metadata := map[string]string{
		store.MetaDataType:     string(kind),
		store.MetaRecordCount:  strconv.Itoa(len(validated.Valid)),
		store.MetaSource:       metaSource,
		store.MetaProcessingID: extract.ProcessingID,
		store.MetaOriginalSize: strconv.Itoa(len(extract.Raw)),
	}

	up, err := o.store.UploadNDJSON(ctx, payload, out.ObjectName, metadata)
	if err != nil {
		// Stage failed: park the validated batch locally and move on.
		out.Stage = StageUpload
		out.Err = err.Error()
		collector.AddFailed(string(kind), int64(len(validated.Valid)))
		entry, saveErr := o.backups.SaveBatch(kind, validated.Valid, metadata)
		if saveErr != nil {
			// Both the store and local disk are failing; the records are
			// still only in RAM. Push them back onto the queue.
			logger.Error("backup save failed after upload failure", map[string]any{
				"kind":  string(kind),
				"error": saveErr.Error(),
			})
			o.requeue(ctx, kind, extract.Raw)
			return
		}
		out.BackupID = entry.ID
		collector.IncBackupSaved()
		return
	}
	out.Uploaded = true
	collector.AddUploaded(string(kind), int64(len(validated.Valid)))

	loadRes, err := o.loader.LoadFromURI(ctx, up.URI, kind, metadata)
	if err != nil {
		// Load failed but the object is staged: register it with the
		// original records for cross-failure resilience.
		out.Stage = StageLoad
		out.Err = err.Error()
		collector.AddFailed(string(kind), int64(len(validated.Valid)))
		entry, regErr := o.registry.Register(out.ObjectName, up.URI, kind, metadata, validated.Valid)
		if regErr != nil {
			logger.Error("recovery registration failed after load failure", map[string]any{
				"kind":   string(kind),
				"object": out.ObjectName,
				"error":  regErr.Error(),
			})
			return
		}
		out.RecoveryID = entry.ID
		collector.IncRecoveryRegistered()
		return
	}

	out.Loaded = true
	out.RowsWritten = loadRes.RowsWritten
	if out.RowsWritten == 0 {
		out.RowsWritten = int64(len(validated.Valid))
	}
	collector.AddLoaded(string(kind), out.RowsWritten)

	if o.config.CleanupOnSuccess {
		o.deleteStaged(ctx, out.ObjectName)
	}
}

// requeue pushes raw payloads back onto their queue when no durable park is
// reachable. Last-resort path; ordering within the batch is preserved.
func (o *Orchestrator) requeue(ctx context.Context, kind types.Kind, raw []string) {
	key := o.queues.Key(o.config.GPSKey)
	if kind == types.KindMobile {
		key = o.queues.Key(o.config.MobileKey)
	}
	if err := o.queues.RPushMany(ctx, key, raw); err != nil {
		o.logger.Error("requeue failed, records lost from this process", map[string]any{
			"kind":  string(kind),
			"count": len(raw),
			"error": err.Error(),
		})
	}
}

// deleteStaged removes a staged object after its load committed. Failure is
// tolerable: the object resurfaces as an orphan and dedups on reload.
func (o *Orchestrator) deleteStaged(ctx context.Context, objectName string) {
	if err := o.store.Delete(ctx, objectName); err != nil {
		o.logger.Warn("staged object cleanup failed", map[string]any{
			"object": objectName,
			"error":  err.Error(),
		})
	}
}

// prefixFor returns the staging prefix for a kind.
func (o *Orchestrator) prefixFor(kind types.Kind) string {
	if kind == types.KindMobile {
		return o.config.MobilePrefix
	}
	return o.config.GPSPrefix
}

// Health probes the pipeline's external dependencies and backup pressure.
// Backup pressure means the oldest retryable backup has consumed 80% of its
// retention window without recovering.
func (o *Orchestrator) Health(ctx context.Context) *Health {
	h := &Health{OK: true, Checks: make(map[string]string)}

	if err := o.queues.Ping(ctx); err != nil {
		h.OK = false
		h.Checks["queue"] = err.Error()
	} else {
		h.Checks["queue"] = "ok"
	}

	if err := o.store.Status(ctx); err != nil {
		h.OK = false
		h.Checks["store"] = err.Error()
	} else {
		h.Checks["store"] = "ok"
	}

	age, ok, err := o.backups.OldestPendingAge()
	switch {
	case err != nil:
		h.OK = false
		h.Checks["backups"] = err.Error()
	case ok:
		h.OldestBackup = age
		threshold := time.Duration(float64(o.backups.Retention()) * 0.8)
		if age > threshold {
			h.BackupPressure = true
			h.Checks["backups"] = fmt.Sprintf("oldest pending backup is %s old", age.Round(time.Second))
		} else {
			h.Checks["backups"] = "ok"
		}
	default:
		h.Checks["backups"] = "ok"
	}

	return h
}

// CleanupStores removes expired backup and recovery entries. Run from the
// scheduler's cleanup timer, not from ticks.
func (o *Orchestrator) CleanupStores() (int, error) {
	removedBackups, err := o.backups.CleanupCompleted(o.backups.Retention())
	if err != nil {
		return removedBackups, err
	}
	removedRecovery, err := o.registry.Cleanup()
	return removedBackups + removedRecovery, err
}
