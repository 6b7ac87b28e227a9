// Package backup implements the local backup store: an on-disk durable
// queue of batches whose object-store upload failed.
//
// One JSON file per entry, written via temp+rename so readers never see a
// torn entry. Entries move pending → processing → completed | pending
// (retry) | failed (terminal). A batch's original in-tick upload failure
// counts as its first attempt; the store then grants maxRetries further
// attempts before the entry goes terminal.
package backup

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

	"github.com/google/uuid"

	"github.com/pithecene-io/stratum/log"
	"github.com/pithecene-io/stratum/types"
)

// Status is the lifecycle state of a backup entry.
type Status string

// Backup entry states.
const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// DefaultMaxRetries is the default retry bound for a backup entry.
const DefaultMaxRetries = 3

// DefaultStaleAfter is how long an entry may sit in processing before it is
// presumed abandoned by a crashed run and reclaimed.
const DefaultStaleAfter = 10 * time.Minute

// ErrNotFound is returned when the named entry does not exist on disk.
var ErrNotFound = errors.New("backup entry not found")

// Entry is the on-disk shape of one backed-up batch.
type Entry struct {
	ID             string            `json:"id"`
	Kind           types.Kind        `json:"kind"`
	CreatedAt      time.Time         `json:"createdAt"`
	RetryCount     int               `json:"retryCount"`
	MaxRetries     int               `json:"maxRetries"`
	Records        []json.RawMessage `json:"records"`
	SourceMetadata map[string]string `json:"sourceMetadata,omitempty"`
	LastError      string            `json:"lastError,omitempty"`
	Status         Status            `json:"status"`
	ProcessingAt   *time.Time        `json:"processingAt,omitempty"`
	CompletedAt    *time.Time        `json:"completedAt,omitempty"`
}

// DecodedRecords returns the entry's records as typed values.
func (e *Entry) DecodedRecords() ([]types.Record, error) {
	return types.DecodeRecords(e.Kind, e.Records)
}

// ProcessResult is the outcome of one retry attempt on an entry.
type ProcessResult struct {
	OK               bool
	WillRetry        bool
	RecordsProcessed int
	RetryCount       int
	MaxRetries       int
	Error            string
}

// ProcessFunc re-stages a backed-up batch. A nil error means the batch
// reached durable downstream state (staged and loaded), after which the
// entry is completed and may be deleted.
type ProcessFunc func(ctx context.Context, entry *Entry) error

// Config configures the backup store.
type Config struct {
	// Dir is the backup directory (required).
	Dir string
	// MaxRetries bounds retry attempts per entry (default 3).
	MaxRetries int
	// Retention is how long completed/failed entries are kept (default 24h).
	Retention time.Duration
	// StaleAfter bounds how long an entry may stay in processing before a
	// later run treats its attempt as dead and reclaims it (default 10m).
	StaleAfter time.Duration
}

// Store is the local backup store.
type Store struct {
	config Config
	logger *log.Logger

	// mu serialises writes within this process; cross-reader safety comes
	// from the processing status and atomic file replace.
	mu sync.Mutex
}

// NewStore creates a backup store rooted at cfg.Dir.
func NewStore(cfg Config, logger *log.Logger) (*Store, error) {
	if cfg.Dir == "" {
		return nil, errors.New("backup: directory is required")
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}
	if cfg.Retention <= 0 {
		cfg.Retention = 24 * time.Hour
	}
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = DefaultStaleAfter
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("backup: create dir: %w", err)
	}
	if logger == nil {
		logger = log.NewLogger("backup")
	}
	return &Store{config: cfg, logger: logger}, nil
}

// SaveBatch persists a batch whose staging upload failed. Returns the new
// pending entry.
func (s *Store) SaveBatch(kind types.Kind, records []types.Record, metadata map[string]string) (*Entry, error) {
	raws, err := types.EncodeRecords(records)
	if err != nil {
		return nil, fmt.Errorf("backup: encode records: %w", err)
	}

	now := time.Now().UTC()
	entry := &Entry{
		ID:             fmt.Sprintf("backup_%s_%s", now.Format("20060102150405"), strings.Split(uuid.NewString(), "-")[0]),
		Kind:           kind,
		CreatedAt:      now,
		RetryCount:     0,
		MaxRetries:     s.config.MaxRetries,
		Records:        raws,
		SourceMetadata: metadata,
		Status:         StatusPending,
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.write(entry); err != nil {
		return nil, err
	}
	s.logger.Info("batch backed up", map[string]any{
		"backup_id": entry.ID,
		"kind":      string(kind),
		"records":   len(records),
	})
	return entry, nil
}

// ListPending returns retryable entries (pending with retries remaining),
// oldest first, so stale batches get ahead of fresh ones. Entries left in
// processing by a crashed run are reclaimed here: without this, a crash
// mid-attempt would strand the batch on disk forever.
func (s *Store) ListPending() ([]*Entry, error) {
	entries, err := s.list()
	if err != nil {
		return nil, err
	}
	var pending []*Entry
	for _, e := range entries {
		if e.Status == StatusProcessing && s.staleProcessing(e) {
			if err := s.reclaim(e); err != nil {
				s.logger.Warn("failed to reclaim abandoned entry", map[string]any{
					"backup_id": e.ID,
					"error":     err.Error(),
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

// Process runs one retry attempt: marks the entry processing, invokes fn,
// and records the outcome. Entries seen as processing by other readers are
// in use and must be skipped.
func (s *Store) Process(ctx context.Context, entry *Entry, fn ProcessFunc) (*ProcessResult, error) {
	s.mu.Lock()
	now := time.Now().UTC()
	entry.Status = StatusProcessing
	entry.ProcessingAt = &now
	if err := s.write(entry); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	s.mu.Unlock()

	fnErr := fn(ctx, entry)

	s.mu.Lock()
	defer s.mu.Unlock()

	result := &ProcessResult{
		RecordsProcessed: len(entry.Records),
		MaxRetries:       entry.MaxRetries,
	}

	entry.ProcessingAt = nil

	if fnErr == nil {
		now := time.Now().UTC()
		entry.Status = StatusCompleted
		entry.CompletedAt = &now
		entry.LastError = ""
		result.OK = true
		result.RetryCount = entry.RetryCount
		if err := s.write(entry); err != nil {
			return nil, err
		}
		return result, nil
	}

	entry.RetryCount++
	entry.LastError = fnErr.Error()
	result.RetryCount = entry.RetryCount
	result.Error = fnErr.Error()

	if entry.RetryCount >= entry.MaxRetries {
		entry.Status = StatusFailed
		s.logger.Error("backup entry exhausted retries", map[string]any{
			"backup_id": entry.ID,
			"retries":   entry.RetryCount,
			"error":     fnErr.Error(),
		})
	} else {
		entry.Status = StatusPending
		result.WillRetry = true
	}

	if err := s.write(entry); err != nil {
		return nil, err
	}
	return result, nil
}

// staleProcessing reports whether a processing entry's attempt is presumed
// dead. Entries written before processingAt existed fall back to createdAt.
func (s *Store) staleProcessing(e *Entry) bool {
	ref := e.CreatedAt
	if e.ProcessingAt != nil {
		ref = *e.ProcessingAt
	}
	return time.Since(ref) > s.config.StaleAfter
}

// reclaim resets an entry abandoned mid-attempt back to pending so it
// re-enters the retry path. The interrupted attempt does not count against
// the retry bound.
func (s *Store) reclaim(e *Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e.Status = StatusPending
	e.ProcessingAt = nil
	if err := s.write(e); err != nil {
		return err
	}
	s.logger.Warn("reclaimed entry abandoned in processing", map[string]any{
		"backup_id": e.ID,
		"kind":      string(e.Kind),
	})
	return nil
}

// Delete removes an entry. Called only after the batch reached durable
// downstream state.
func (s *Store) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	path := s.path(id)
	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return fmt.Errorf("backup: delete %s: %w", id, err)
	}
	return nil
}

// Get reads a single entry by id.
func (s *Store) Get(id string) (*Entry, error) {
	return s.read(s.path(id))
}

// List returns every entry on disk, any status.
func (s *Store) List() ([]*Entry, error) {
	return s.list()
}

// CleanupCompleted deletes completed and terminal-failed entries older than
// olderThan. Returns the number removed.
func (s *Store) CleanupCompleted(olderThan time.Duration) (int, error) {
	entries, err := s.list()
	if err != nil {
		return 0, err
	}

	cutoff := time.Now().Add(-olderThan)
	removed := 0
	for _, e := range entries {
		if e.Status != StatusCompleted && e.Status != StatusFailed {
			continue
		}
		ref := e.CreatedAt
		if e.CompletedAt != nil {
			ref = *e.CompletedAt
		}
		if ref.Before(cutoff) {
			if err := s.Delete(e.ID); err != nil && !errors.Is(err, ErrNotFound) {
				return removed, err
			}
			removed++
		}
	}
	return removed, nil
}

// OldestPendingAge returns the age of the oldest retryable entry. The
// second return is false when nothing is pending. Drives the health check's
// retention-pressure warning.
func (s *Store) OldestPendingAge() (time.Duration, bool, error) {
	pending, err := s.ListPending()
	if err != nil {
		return 0, false, err
	}
	if len(pending) == 0 {
		return 0, false, nil
	}
	return time.Since(pending[0].CreatedAt), true, nil
}

// Retention returns the configured entry retention.
func (s *Store) Retention() time.Duration {
	return s.config.Retention
}

// list reads every entry file in the directory. Unreadable or torn files
// are skipped with a warning rather than failing the pass.
func (s *Store) list() ([]*Entry, error) {
	dirents, err := os.ReadDir(s.config.Dir)
	if err != nil {
		return nil, fmt.Errorf("backup: read dir: %w", err)
	}

	var entries []*Entry
	for _, d := range dirents {
		if d.IsDir() || !strings.HasSuffix(d.Name(), ".json") {
			continue
		}
		e, err := s.read(filepath.Join(s.config.Dir, d.Name()))
		if err != nil {
			s.logger.Warn("skipping unreadable backup entry", map[string]any{
				"file":  d.Name(),
				"error": err.Error(),
			})
			continue
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// read loads one entry file.
func (s *Store) read(path string) (*Entry, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, filepath.Base(path))
		}
		return nil, fmt.Errorf("backup: read %s: %w", path, err)
	}
	var e Entry
	if err := json.Unmarshal(raw, &e); err != nil {
		return nil, fmt.Errorf("backup: decode %s: %w", path, err)
	}
	return &e, nil
}

// write persists an entry via temp file + rename.
func (s *Store) write(entry *Entry) error {
	raw, err := json.MarshalIndent(entry, "", "  ")
	if err != nil {
		return fmt.Errorf("backup: encode %s: %w", entry.ID, err)
	}
	path := s.path(entry.ID)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return fmt.Errorf("backup: write %s: %w", entry.ID, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("backup: replace %s: %w", entry.ID, err)
	}
	return nil
}

// path returns the file path for an entry id.
func (s *Store) path(id string) string {
	return filepath.Join(s.config.Dir, id+".json")
}
