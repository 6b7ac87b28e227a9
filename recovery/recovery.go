// Package recovery implements the recovery registry: an on-disk record of
// staged objects whose warehouse load failed, plus discovery of orphan
// objects left behind by crashed ticks.
//
// A registry entry points at an object that already reached the store. The
// retry path reloads it; if the object has since disappeared, the entry's
// originalRecords are re-uploaded under the same name first. Orphans are
// objects under the staging prefixes with no registry entry at all, loaded
// directly with the kind inferred from their prefix.
package recovery

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/pithecene-io/stratum/log"
	"github.com/pithecene-io/stratum/store"
	"github.com/pithecene-io/stratum/types"
	"github.com/pithecene-io/stratum/warehouse"
)

// Status is the lifecycle state of a registry entry.
type Status string

// Registry entry states.
const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Defaults.
const (
	DefaultMaxRetries = 3
	DefaultPause      = 1500 * time.Millisecond
	DefaultStaleAfter = 10 * time.Minute

	// terminalRetentionFactor stretches retention for failed entries so an
	// operator can inspect them well after completed entries are gone.
	terminalRetentionFactor = 7
)

// ErrNotFound is returned when the named entry does not exist on disk.
var ErrNotFound = errors.New("recovery entry not found")

// Entry is the on-disk shape of one registered load failure.
type Entry struct {
	ID              string                `json:"id"`
	CreatedAt       time.Time             `json:"createdAt"`
	Status          Status                `json:"status"`
	RetryCount      int                   `json:"retryCount"`
	MaxRetries      int                   `json:"maxRetries"`
	Kind            types.Kind            `json:"kind"`
	ObjectName      string                `json:"objectName"`
	ObjectURI       string                `json:"objectUri"`
	Metadata        map[string]string     `json:"metadata,omitempty"`
	OriginalRecords []json.RawMessage     `json:"originalRecords,omitempty"`
	LastError       string                `json:"lastError,omitempty"`
	ProcessingAt    *time.Time            `json:"processingAt,omitempty"`
	ProcessedAt     *time.Time            `json:"processedAt,omitempty"`
	Result          *warehouse.LoadResult `json:"result,omitempty"`
}

// ItemResult is the outcome of one entry or orphan in a ProcessAll run.
type ItemResult struct {
	ID         string
	ObjectName string
	Orphan     bool
	OK         bool
	WillRetry  bool
	Rows       int64
	Error      string
}

// RunResult aggregates one ProcessAll run.
type RunResult struct {
	Processed int
	Failed    int
	Orphans   int
	Results   []ItemResult
}

// Config configures the registry.
type Config struct {
	// Dir is the registry directory (required).
	Dir string
	// GPSPrefix and MobilePrefix are the staging prefixes scanned for
	// orphans (required).
	GPSPrefix    string
	MobilePrefix string
	// MaxRetries bounds retry attempts per entry (default 3).
	MaxRetries int
	// CleanupOnSuccess deletes the staged object after a successful load.
	CleanupOnSuccess bool
	// Retention is how long completed entries are kept; failed entries are
	// kept seven times as long (default 24h).
	Retention time.Duration
	// Pause is the delay between items in one run (default 1.5s).
	Pause time.Duration
	// StaleAfter bounds how long an entry may stay in processing before a
	// later run treats its attempt as dead and reclaims it (default 10m).
	StaleAfter time.Duration
}

// Manager is the recovery registry.
type Manager struct {
	config Config
	store  store.ObjectStore
	loader warehouse.Loader
	logger *log.Logger

	mu sync.Mutex

	// sleep is swapped out in tests.
	sleep func(time.Duration)
}

// NewManager creates a registry rooted at cfg.Dir.
func NewManager(cfg Config, objStore store.ObjectStore, loader warehouse.Loader, logger *log.Logger) (*Manager, error) {
	if cfg.Dir == "" {
		return nil, errors.New("recovery: directory is required")
	}
	if cfg.GPSPrefix == "" || cfg.MobilePrefix == "" {
		return nil, errors.New("recovery: staging prefixes are required")
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}
	if cfg.Retention <= 0 {
		cfg.Retention = 24 * time.Hour
	}
	if cfg.Pause <= 0 {
		cfg.Pause = DefaultPause
	}
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = DefaultStaleAfter
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("recovery: create dir: %w", err)
	}
	if logger == nil {
		logger = log.NewLogger("recovery")
	}
	return &Manager{
		config: cfg,
		store:  objStore,
		loader: loader,
		logger: logger,
		sleep:  time.Sleep,
	}, nil
}

// Register records a staged object whose load failed. originalRecords is
// the decoded batch, kept as the fallback if the object later disappears.
func (m *Manager) Register(objectName, objectURI string, kind types.Kind, metadata map[string]string, originalRecords []types.Record) (*Entry, error) {
	raws, err := types.EncodeRecords(originalRecords)
	if err != nil {
		return nil, fmt.Errorf("recovery: encode records: %w", err)
	}

	now := time.Now().UTC()
	entry := &Entry{
		ID:              fmt.Sprintf("gcs_recovery_%s_%s", now.Format("20060102150405"), types.RandSuffix(6)),
		CreatedAt:       now,
		Status:          StatusPending,
		MaxRetries:      m.config.MaxRetries,
		Kind:            kind,
		ObjectName:      objectName,
		ObjectURI:       objectURI,
		Metadata:        metadata,
		OriginalRecords: raws,
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.write(entry); err != nil {
		return nil, err
	}
	m.logger.Info("load failure registered", map[string]any{
		"recovery_id": entry.ID,
		"object":      objectName,
		"kind":        string(kind),
		"records":     len(originalRecords),
	})
	return entry, nil
}

// ListPending returns retryable entries, oldest first. Entries left in
// processing by a crashed run are reclaimed here; without this they would
// stay stranded forever, and their staged objects with them, since
// FindOrphans excludes every registered name.
func (m *Manager) ListPending() ([]*Entry, error) {
	entries, err := m.list()
	if err != nil {
		return nil, err
	}
	var pending []*Entry
	for _, e := range entries {
		if e.Status == StatusProcessing && m.staleProcessing(e) {
			if err := m.reclaim(e); err != nil {
				m.logger.Warn("failed to reclaim abandoned entry", map[string]any{
					"recovery_id": e.ID,
					"error":       err.Error(),
				})
				continue
			}
		}
		if e.Status == StatusPending && e.RetryCount < e.MaxRetries {
			pending = append(pending, e)
		}
	}
	sort.Slice(pending, func(i, j int) bool {
		return pending[i].CreatedAt.Before(pending[j].CreatedAt)
	})
	return pending, nil
}

// List returns every entry on disk, any status.
func (m *Manager) List() ([]*Entry, error) {
	return m.list()
}

// FindOrphans lists staged objects under both prefixes that no registry
// entry of any status references. Those are leftovers of a tick that
// crashed after the upload but before the registry write.
func (m *Manager) FindOrphans(ctx context.Context) ([]store.ObjectInfo, error) {
	registered := make(map[string]struct{})
	entries, err := m.list()
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		registered[e.ObjectName] = struct{}{}
	}

	var orphans []store.ObjectInfo
	for _, prefix := range []string{m.config.GPSPrefix, m.config.MobilePrefix} {
		infos, err := m.store.ListByPrefix(ctx, prefix)
		if err != nil {
			return nil, fmt.Errorf("recovery: scan %s: %w", prefix, err)
		}
		for _, info := range infos {
			if _, ok := registered[info.Name]; !ok {
				orphans = append(orphans, info)
			}
		}
	}
	return orphans, nil
}

// ProcessAll runs every retryable entry, then every orphan, pausing between
// items so a backlog does not burst the warehouse. The pause sits between
// items only; no trailing sleep after the last one.
func (m *Manager) ProcessAll(ctx context.Context) (*RunResult, error) {
	run := &RunResult{}

	items := 0
	pause := func() {
		if items > 0 {
			m.sleep(m.config.Pause)
		}
		items++
	}

	pending, err := m.ListPending()
	if err != nil {
		return nil, err
	}
	for _, entry := range pending {
		pause()
		res := m.processEntry(ctx, entry)
		run.Results = append(run.Results, res)
		if res.OK {
			run.Processed++
		} else {
			run.Failed++
		}
	}

	orphans, err := m.FindOrphans(ctx)
	if err != nil {
		// Orphan discovery failing must not void the entry results.
		m.logger.Warn("orphan discovery failed", map[string]any{"error": err.Error()})
		return run, nil
	}
	for _, obj := range orphans {
		pause()
		res := m.processOrphan(ctx, obj)
		run.Results = append(run.Results, res)
		run.Orphans++
		if res.OK {
			run.Processed++
		} else {
			run.Failed++
		}
	}

	return run, nil
}

// processEntry runs one attempt on a registered entry.
func (m *Manager) processEntry(ctx context.Context, entry *Entry) ItemResult {
	res := ItemResult{ID: entry.ID, ObjectName: entry.ObjectName}

	m.mu.Lock()
	now := time.Now().UTC()
	entry.Status = StatusProcessing
	entry.ProcessingAt = &now
	if err := m.write(entry); err != nil {
		m.mu.Unlock()
		res.Error = err.Error()
		return res
	}
	m.mu.Unlock()

	result, attemptErr := m.attempt(ctx, entry)

	m.mu.Lock()
	defer m.mu.Unlock()

	entry.ProcessingAt = nil

	if attemptErr == nil {
		now := time.Now().UTC()
		entry.Status = StatusCompleted
		entry.ProcessedAt = &now
		entry.Result = result
		entry.LastError = ""
		res.OK = true
		res.Rows = result.RowsWritten
		if err := m.write(entry); err != nil {
			res.OK = false
			res.Error = err.Error()
		}
		return res
	}

	entry.RetryCount++
	entry.LastError = attemptErr.Error()
	res.Error = attemptErr.Error()
	if entry.RetryCount >= entry.MaxRetries {
		entry.Status = StatusFailed
		m.logger.Error("recovery entry exhausted retries", map[string]any{
			"recovery_id": entry.ID,
			"object":      entry.ObjectName,
			"retries":     entry.RetryCount,
			"error":       attemptErr.Error(),
		})
	} else {
		entry.Status = StatusPending
		res.WillRetry = true
	}
	if err := m.write(entry); err != nil {
		res.Error = err.Error()
	}
	return res
}

// attempt reloads the entry's object, re-uploading from originalRecords
// when the object is gone.
func (m *Manager) attempt(ctx context.Context, entry *Entry) (*warehouse.LoadResult, error) {
	exists, err := m.objectExists(ctx, entry.ObjectName)
	if err != nil {
		return nil, err
	}

	uri := entry.ObjectURI
	if !exists {
		if len(entry.OriginalRecords) == 0 {
			return nil, fmt.Errorf("object %s is gone and no original records were kept", entry.ObjectName)
		}
		records, err := types.DecodeRecords(entry.Kind, entry.OriginalRecords)
		if err != nil {
			return nil, fmt.Errorf("decode original records: %w", err)
		}
		payload, err := types.MarshalNDJSON(records)
		if err != nil {
			return nil, fmt.Errorf("encode original records: %w", err)
		}
		up, err := m.store.UploadNDJSON(ctx, payload, entry.ObjectName, entry.Metadata)
		if err != nil {
			return nil, fmt.Errorf("re-upload %s: %w", entry.ObjectName, err)
		}
		uri = up.URI
		m.logger.Info("staged object restored from original records", map[string]any{
			"recovery_id": entry.ID,
			"object":      entry.ObjectName,
		})
	}

	result, err := m.loader.LoadFromURI(ctx, uri, entry.Kind, entry.Metadata)
	if err != nil {
		return nil, err
	}

	if m.config.CleanupOnSuccess {
		m.deleteObject(ctx, entry.ObjectName)
	}
	return result, nil
}

// processOrphan loads one unregistered staged object directly.
func (m *Manager) processOrphan(ctx context.Context, obj store.ObjectInfo) ItemResult {
	res := ItemResult{ID: obj.Name, ObjectName: obj.Name, Orphan: true}

	kind, err := m.kindOf(obj.Name)
	if err != nil {
		res.Error = err.Error()
		return res
	}

	result, err := m.loader.LoadFromURI(ctx, obj.URI, kind, obj.Metadata)
	if err != nil {
		res.Error = err.Error()
		m.logger.Warn("orphan load failed", map[string]any{
			"object": obj.Name,
			"error":  err.Error(),
		})
		return res
	}

	res.OK = true
	res.Rows = result.RowsWritten
	m.logger.Info("orphan loaded", map[string]any{
		"object": obj.Name,
		"rows":   result.RowsWritten,
	})
	if m.config.CleanupOnSuccess {
		m.deleteObject(ctx, obj.Name)
	}
	return res
}

// staleProcessing reports whether a processing entry's attempt is presumed
// dead. Entries written before processingAt existed fall back to createdAt.
func (m *Manager) staleProcessing(e *Entry) bool {
	ref := e.CreatedAt
	if e.ProcessingAt != nil {
		ref = *e.ProcessingAt
	}
	return time.Since(ref) > m.config.StaleAfter
}

// reclaim resets an entry abandoned mid-attempt back to pending so it
// re-enters the retry path. The interrupted attempt does not count against
// the retry bound.
func (m *Manager) reclaim(e *Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e.Status = StatusPending
	e.ProcessingAt = nil
	if err := m.write(e); err != nil {
		return err
	}
	m.logger.Warn("reclaimed entry abandoned in processing", map[string]any{
		"recovery_id": e.ID,
		"object":      e.ObjectName,
	})
	return nil
}

// Delete removes a registry entry file.
func (m *Manager) Delete(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := os.Remove(m.path(id)); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return fmt.Errorf("recovery: delete %s: %w", id, err)
	}
	return nil
}

// Cleanup removes terminal entries past retention: completed entries after
// Retention, failed entries after seven times that. Returns the number
// removed.
func (m *Manager) Cleanup() (int, error) {
	entries, err := m.list()
	if err != nil {
		return 0, err
	}

	now := time.Now().UTC()
	removed := 0
	for _, e := range entries {
		var keep time.Duration
		switch e.Status {
		case StatusCompleted:
			keep = m.config.Retention
		case StatusFailed:
			keep = m.config.Retention * terminalRetentionFactor
		default:
			continue
		}
		ref := e.CreatedAt
		if e.ProcessedAt != nil {
			ref = *e.ProcessedAt
		}
		if now.Sub(ref) > keep {
			if err := m.Delete(e.ID); err != nil && !errors.Is(err, ErrNotFound) {
				return removed, err
			}
			removed++
		}
	}
	return removed, nil
}

// objectExists probes the store for an exact object name.
func (m *Manager) objectExists(ctx context.Context, objectName string) (bool, error) {
	infos, err := m.store.ListByPrefix(ctx, objectName)
	if err != nil {
		return false, fmt.Errorf("probe %s: %w", objectName, err)
	}
	for _, info := range infos {
		if info.Name == objectName {
			return true, nil
		}
	}
	return false, nil
}

// deleteObject removes a staged object after a successful load. A failure
// here only means the object lingers until orphan dedup notices the
// registry entry, so it is logged, not propagated.
func (m *Manager) deleteObject(ctx context.Context, objectName string) {
	if err := m.store.Delete(ctx, objectName); err != nil {
		m.logger.Warn("staged object cleanup failed", map[string]any{
			"object": objectName,
			"error":  err.Error(),
		})
	}
}

// kindOf infers a record kind from an object's staging prefix.
func (m *Manager) kindOf(objectName string) (types.Kind, error) {
	switch {
	case strings.HasPrefix(objectName, m.config.GPSPrefix):
		return types.KindGPS, nil
	case strings.HasPrefix(objectName, m.config.MobilePrefix):
		return types.KindMobile, nil
	}
	return "", fmt.Errorf("object %s matches no staging prefix", objectName)
}

// list reads every entry file, skipping unreadable ones.
func (m *Manager) list() ([]*Entry, error) {
	dirents, err := os.ReadDir(m.config.Dir)
	if err != nil {
		return nil, fmt.Errorf("recovery: read dir: %w", err)
	}

	var entries []*Entry
	for _, d := range dirents {
		if d.IsDir() || !strings.HasSuffix(d.Name(), ".json") {
			continue
		}
		e, err := m.read(filepath.Join(m.config.Dir, d.Name()))
		if err != nil {
			m.logger.Warn("skipping unreadable recovery entry", map[string]any{
				"file":  d.Name(),
				"error": err.Error(),
			})
			continue
		}
		entries = append(entries, e)
	}
	return entries, nil
}

func (m *Manager) read(path string) (*Entry, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, filepath.Base(path))
		}
		return nil, fmt.Errorf("recovery: read %s: %w", path, err)
	}
	var e Entry
	if err := json.Unmarshal(raw, &e); err != nil {
		return nil, fmt.Errorf("recovery: decode %s: %w", path, err)
	}
	return &e, nil
}

// write persists an entry via temp file + rename.
func (m *Manager) write(entry *Entry) error {
	raw, err := json.MarshalIndent(entry, "", "  ")
	if err != nil {
		return fmt.Errorf("recovery: encode %s: %w", entry.ID, err)
	}
	path := m.path(entry.ID)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return fmt.Errorf("recovery: write %s: %w", entry.ID, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("recovery: replace %s: %w", entry.ID, err)
	}
	return nil
}

func (m *Manager) path(id string) string {
	return filepath.Join(m.config.Dir, id+".json")
}
