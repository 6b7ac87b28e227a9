// Package metrics provides per-tick metrics collection.
//
// The Collector accumulates counters during a single pipeline tick. It is a
// leaf package with no internal dependencies. Validation counts are absorbed
// from the validator's stats at dispatch completion rather than recorded
// live, avoiding double-counting.
package metrics

import (
	"sync"
	"time"
)

// KindSnapshot is the per-record-family slice of a tick snapshot.
type KindSnapshot struct {
	Extracted int64
	Valid     int64
	Invalid   int64
	Uploaded  int64
	Loaded    int64
	Failed    int64
}

// Snapshot is an immutable point-in-time view of one tick's metrics.
// Returned by Collector.Snapshot(). Safe to read concurrently after creation.
type Snapshot struct {
	// Per-kind record flow
	GPS    KindSnapshot
	Mobile KindSnapshot

	// Backup store activity this tick
	BackupsSaved     int64
	BackupsRetried   int64
	BackupsRecovered int64
	BackupsExhausted int64

	// Recovery registry activity this tick
	RecoveryRegistered int64
	RecoveryProcessed  int64
	RecoveryFailed     int64
	OrphansFound       int64

	// Durations
	ExtractionTime time.Duration
	TotalTime      time.Duration

	// Dimensions (informational, set at construction)
	StorageBackend string
	TickID         string
}

type kindCounters struct {
	extracted int64
	valid     int64
	invalid   int64
	uploaded  int64
	loaded    int64
	failed    int64
}

// Collector accumulates metrics during a single tick.
// Thread-safe via sync.Mutex; the GPS and Mobile dispatch paths record into
// it concurrently. All record methods are nil-receiver safe.
type Collector struct {
	mu sync.Mutex

	gps    kindCounters
	mobile kindCounters

	backupsSaved     int64
	backupsRetried   int64
	backupsRecovered int64
	backupsExhausted int64

	recoveryRegistered int64
	recoveryProcessed  int64
	recoveryFailed     int64
	orphansFound       int64

	extractionTime time.Duration
	totalTime      time.Duration

	storageBackend string
	tickID         string
}

// NewCollector creates a Collector with dimension labels.
func NewCollector(storageBackend, tickID string) *Collector {
	return &Collector{
		storageBackend: storageBackend,
		tickID:         tickID,
	}
}

// kind resolves the counter slice for a record family label ("gps" or
// "mobile"); anything else maps to gps to keep record methods total.
func (c *Collector) kind(label string) *kindCounters {
	if label == "mobile" {
		return &c.mobile
	}
	return &c.gps
}

// --- Record flow ---

// AddExtracted records queue records drained for a kind.
func (c *Collector) AddExtracted(kind string, n int64) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.kind(kind).extracted += n
	c.mu.Unlock()
}

// AbsorbValidation copies validator counts for a kind. Called once per
// dispatch path with the final validation stats.
func (c *Collector) AbsorbValidation(kind string, valid, invalid int64) {
	if c == nil {
		return
	}
	c.mu.Lock()
	k := c.kind(kind)
	k.valid = valid
	k.invalid = invalid
	c.mu.Unlock()
}

// AddUploaded records staged records for a kind.
func (c *Collector) AddUploaded(kind string, n int64) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.kind(kind).uploaded += n
	c.mu.Unlock()
}

// AddLoaded records warehouse-committed records for a kind.
func (c *Collector) AddLoaded(kind string, n int64) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.kind(kind).loaded += n
	c.mu.Unlock()
}

// AddFailed records records whose dispatch path failed for a kind. They are
// durably parked in the backup store or recovery registry, not lost.
func (c *Collector) AddFailed(kind string, n int64) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.kind(kind).failed += n
	c.mu.Unlock()
}

// --- Backup store ---

// IncBackupSaved records a batch written to the backup store.
func (c *Collector) IncBackupSaved() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.backupsSaved++
	c.mu.Unlock()
}

// IncBackupRetried records a backup retry attempt.
func (c *Collector) IncBackupRetried() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.backupsRetried++
	c.mu.Unlock()
}

// IncBackupRecovered records a backup entry that completed.
func (c *Collector) IncBackupRecovered() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.backupsRecovered++
	c.mu.Unlock()
}

// IncBackupExhausted records a backup entry that went terminal.
func (c *Collector) IncBackupExhausted() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.backupsExhausted++
	c.mu.Unlock()
}

// --- Recovery registry ---

// IncRecoveryRegistered records a load failure written to the registry.
func (c *Collector) IncRecoveryRegistered() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.recoveryRegistered++
	c.mu.Unlock()
}

// AbsorbRecoveryRun copies the totals of one registry run.
func (c *Collector) AbsorbRecoveryRun(processed, failed, orphans int64) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.recoveryProcessed = processed
	c.recoveryFailed = failed
	c.orphansFound = orphans
	c.mu.Unlock()
}

// --- Durations ---

// SetExtractionTime records the atomic-drain duration.
func (c *Collector) SetExtractionTime(d time.Duration) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.extractionTime = d
	c.mu.Unlock()
}

// SetTotalTime records the whole-tick duration.
func (c *Collector) SetTotalTime(d time.Duration) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.totalTime = d
	c.mu.Unlock()
}

// --- Snapshot ---

// Snapshot returns an immutable point-in-time view of all metrics.
// The returned Snapshot is safe to read concurrently; the Collector can
// continue to be mutated independently.
func (c *Collector) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{}
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	return Snapshot{
		GPS:    kindSnapshot(c.gps),
		Mobile: kindSnapshot(c.mobile),

		BackupsSaved:     c.backupsSaved,
		BackupsRetried:   c.backupsRetried,
		BackupsRecovered: c.backupsRecovered,
		BackupsExhausted: c.backupsExhausted,

		RecoveryRegistered: c.recoveryRegistered,
		RecoveryProcessed:  c.recoveryProcessed,
		RecoveryFailed:     c.recoveryFailed,
		OrphansFound:       c.orphansFound,

		ExtractionTime: c.extractionTime,
		TotalTime:      c.totalTime,

		StorageBackend: c.storageBackend,
		TickID:         c.tickID,
	}
}

// TotalProcessed returns the records committed to the warehouse this tick.
func (s Snapshot) TotalProcessed() int64 {
	return s.GPS.Loaded + s.Mobile.Loaded
}

// TotalExtracted returns the records drained from both queues this tick.
func (s Snapshot) TotalExtracted() int64 {
	return s.GPS.Extracted + s.Mobile.Extracted
}

func kindSnapshot(k kindCounters) KindSnapshot {
	return KindSnapshot{
		Extracted: k.extracted,
		Valid:     k.valid,
		Invalid:   k.invalid,
		Uploaded:  k.uploaded,
		Loaded:    k.loaded,
		Failed:    k.failed,
	}
}
