// Package schedule runs the pipeline on a fixed interval under the
// cluster-wide tick lock.
//
// Each interval the scheduler attempts the lock once; contention means
// another instance is mid-tick, so the interval is skipped, not queued. An
// in-process semaphore additionally caps concurrent ticks at one even if
// the lock backend misbehaves. Independent timers sweep the tmp directory
// and the durable stores.
package schedule

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/pithecene-io/stratum/log"
	"github.com/pithecene-io/stratum/pipeline"
	"github.com/pithecene-io/stratum/queue"
)

// Defaults.
const (
	DefaultTickInterval    = 60 * time.Second
	DefaultLockKey         = "pipeline:tick:lock"
	DefaultCleanupInterval = 60 * time.Minute
	tmpCleanupInterval     = 30 * time.Minute

	// lockTTLSlack is added to the tick interval so a long tick cannot lose
	// its own lock mid-flight.
	lockTTLSlack = 30 * time.Second
)

// ErrTickSkipped is returned by RunOnce when another holder owns the lock.
var ErrTickSkipped = errors.New("tick skipped: lock held elsewhere")

// LastExecution describes the most recent completed tick.
type LastExecution struct {
	Timestamp        time.Time     `json:"timestamp"`
	OK               bool          `json:"ok"`
	RecordsProcessed int64         `json:"recordsProcessed"`
	ProcessingTime   time.Duration `json:"processingTime"`
	BackupsProcessed int           `json:"backupsProcessed"`
	BackupsFailed    int           `json:"backupsFailed"`
}

// Stats is a point-in-time view of scheduler activity.
type Stats struct {
	TotalExecutions int64          `json:"totalExecutions"`
	Successful      int64          `json:"successful"`
	Failed          int64          `json:"failed"`
	Skipped         int64          `json:"skipped"`
	LastExecution   *LastExecution `json:"lastExecution,omitempty"`
	NextExecution   time.Time      `json:"nextExecution"`
	Uptime          time.Duration  `json:"uptime"`
	SuccessRate     float64        `json:"successRate"`
}

// Config configures the scheduler.
type Config struct {
	// TickInterval is the fixed interval between ticks (default 60s).
	TickInterval time.Duration
	// LockKey is the distributed lock key (default pipeline:tick:lock).
	LockKey string
	// CleanupInterval drives the backup/recovery store sweep (default 60m).
	CleanupInterval time.Duration
	// TmpDir, when set, is swept of stale temp files every 30 minutes.
	TmpDir string
}

// Scheduler drives the orchestrator on a timer.
type Scheduler struct {
	orch   *pipeline.Orchestrator
	lock   *queue.Lock
	config Config
	logger *log.Logger

	// sem caps in-process tick concurrency at one.
	sem chan struct{}

	mu        sync.Mutex
	started   time.Time
	next      time.Time
	total     int64
	succeeded int64
	failed    int64
	skipped   int64
	last      *LastExecution

	stopOnce sync.Once
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// New creates a scheduler over the orchestrator and queue store client.
func New(orch *pipeline.Orchestrator, queues *queue.Client, cfg Config, logger *log.Logger) *Scheduler {
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = DefaultTickInterval
	}
	if cfg.LockKey == "" {
		cfg.LockKey = DefaultLockKey
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = DefaultCleanupInterval
	}
	if logger == nil {
		logger = log.NewLogger("schedule")
	}
	return &Scheduler{
		orch:   orch,
		lock:   queue.NewLock(queues, cfg.LockKey),
		config: cfg,
		logger: logger,
		sem:    make(chan struct{}, 1),
		stopCh: make(chan struct{}),
	}
}

// Run drives ticks until Stop is called or ctx is canceled. Blocking.
func (s *Scheduler) Run(ctx context.Context) {
	s.mu.Lock()
	s.started = time.Now()
	s.next = s.started.Add(s.config.TickInterval)
	s.mu.Unlock()

	s.logger.Info("scheduler started", map[string]any{
		"interval": s.config.TickInterval.String(),
		"lock_key": s.config.LockKey,
	})

	s.wg.Add(1)
	go s.cleanupLoop(ctx)

	ticker := time.NewTicker(s.config.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.drain()
			return
		case <-s.stopCh:
			s.drain()
			return
		case <-ticker.C:
			s.mu.Lock()
			s.next = time.Now().Add(s.config.TickInterval)
			s.mu.Unlock()
			s.tick(ctx)
		}
	}
}

// RunOnce executes a single locked tick. Used by the CLI's one-shot mode.
func (s *Scheduler) RunOnce(ctx context.Context) (*pipeline.TickResult, error) {
	s.mu.Lock()
	if s.started.IsZero() {
		s.started = time.Now()
	}
	s.mu.Unlock()

	var result *pipeline.TickResult
	if !s.tryTick(ctx, func(tickCtx context.Context) {
		result = s.orch.RunTick(tickCtx)
		s.record(result)
	}) {
		return nil, ErrTickSkipped
	}
	return result, nil
}

// Stop requests a graceful stop: no new ticks, in-flight tick drained.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
}

// Stats returns a snapshot of scheduler counters.
func (s *Scheduler) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := Stats{
		TotalExecutions: s.total,
		Successful:      s.succeeded,
		Failed:          s.failed,
		Skipped:         s.skipped,
		NextExecution:   s.next,
	}
	if s.last != nil {
		last := *s.last
		st.LastExecution = &last
	}
	if !s.started.IsZero() {
		st.Uptime = time.Since(s.started)
	}
	if s.total > 0 {
		st.SuccessRate = float64(s.succeeded) / float64(s.total) * 100
	}
	return st
}

// tick runs one scheduled execution, skipping silently on contention.
func (s *Scheduler) tick(ctx context.Context) {
	ran := s.tryTick(ctx, func(tickCtx context.Context) {
		result := s.orch.RunTick(tickCtx)
		s.record(result)
	})
	if !ran {
		s.mu.Lock()
		s.skipped++
		s.mu.Unlock()
		s.logger.Info("tick skipped, lock held elsewhere", map[string]any{
			"lock_key": s.config.LockKey,
		})
	}
}

// tryTick acquires semaphore and lock, then runs fn. Returns whether fn ran.
// The lock TTL exceeds the tick interval so a slow tick cannot self-starve.
func (s *Scheduler) tryTick(ctx context.Context, fn func(context.Context)) bool {
	select {
	case s.sem <- struct{}{}:
	default:
		return false
	}
	defer func() { <-s.sem }()

	ttl := s.config.TickInterval + lockTTLSlack
	ok, err := s.lock.Acquire(ctx, ttl)
	if err != nil {
		s.logger.Warn("lock acquisition failed", map[string]any{"error": err.Error()})
		return false
	}
	if !ok {
		return false
	}
	defer func() {
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), queue.DefaultTimeout)
		defer cancel()
		if err := s.lock.Release(releaseCtx); err != nil {
			s.logger.Warn("lock release failed", map[string]any{"error": err.Error()})
		}
	}()

	fn(ctx)
	return true
}

// record folds a tick result into the scheduler counters.
func (s *Scheduler) record(result *pipeline.TickResult) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.total++
	if result.OK() {
		s.succeeded++
	} else {
		s.failed++
	}
	s.last = &LastExecution{
		Timestamp:        result.StartedAt,
		OK:               result.OK(),
		RecordsProcessed: result.RecordsProcessed(),
		ProcessingTime:   result.Elapsed,
		BackupsProcessed: result.BackupsProcessed,
		BackupsFailed:    result.BackupsFailed,
	}
}

// drain waits for cleanup loops and any in-flight tick to finish. An
// in-flight warehouse job is not aborted; the registry resumes it next run.
func (s *Scheduler) drain() {
	s.Stop()
	s.wg.Wait()
	s.sem <- struct{}{}
	<-s.sem
	s.logger.Info("scheduler stopped", map[string]any{
		"total_executions": s.Stats().TotalExecutions,
	})
}

// cleanupLoop sweeps the durable stores and the tmp directory on their own
// timers, independent of ticks.
func (s *Scheduler) cleanupLoop(ctx context.Context) {
	defer s.wg.Done()

	stores := time.NewTicker(s.config.CleanupInterval)
	defer stores.Stop()
	tmp := time.NewTicker(tmpCleanupInterval)
	defer tmp.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-stores.C:
			removed, err := s.orch.CleanupStores()
			if err != nil {
				s.logger.Warn("store cleanup failed", map[string]any{"error": err.Error()})
			} else if removed > 0 {
				s.logger.Info("expired entries removed", map[string]any{"count": removed})
			}
		case <-tmp.C:
			s.sweepTmp()
		}
	}
}

// sweepTmp removes leftover temp files (interrupted atomic writes) from the
// tmp directory. Entry files themselves are owned by their stores.
func (s *Scheduler) sweepTmp() {
	if s.config.TmpDir == "" {
		return
	}
	cutoff := time.Now().Add(-tmpCleanupInterval)
	_ = filepath.WalkDir(s.config.TmpDir, func(path string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if !strings.HasSuffix(path, ".tmp") {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		if info.ModTime().Before(cutoff) {
			if rmErr := os.Remove(path); rmErr == nil {
				s.logger.Debug("stale temp file removed", map[string]any{"path": path})
			}
		}
		return nil
	})
}
