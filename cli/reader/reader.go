// Package reader provides read-only pipeline state access for CLI commands.
//
// The reader looks at the same durable state the pipeline uses: the backup
// and recovery directories on disk and the queue store. It never acquires
// the tick lock and never mutates anything, so it is safe to run alongside
// a live scheduler.
package reader

import (
	"context"
	"sort"

	"github.com/pithecene-io/stratum/backup"
	"github.com/pithecene-io/stratum/queue"
	"github.com/pithecene-io/stratum/recovery"
)

// StateReader is the file-and-queue-backed Reader implementation.
type StateReader struct {
	backups   *backup.Store
	registry  *recovery.Manager
	queues    *queue.Client
	gpsKey    string
	mobileKey string
}

// New creates a StateReader over the given stores and queue client.
// Key names default to the standard queue keys when empty.
func New(backups *backup.Store, registry *recovery.Manager, queues *queue.Client, gpsKey, mobileKey string) *StateReader {
	if gpsKey == "" {
		gpsKey = queue.DefaultGPSKey
	}
	if mobileKey == "" {
		mobileKey = queue.DefaultMobileKey
	}
	return &StateReader{
		backups:   backups,
		registry:  registry,
		queues:    queues,
		gpsKey:    gpsKey,
		mobileKey: mobileKey,
	}
}

// Backups implements Reader.
func (r *StateReader) Backups() ([]BackupSummary, error) {
	entries, err := r.backups.List()
	if err != nil {
		return nil, err
	}

	summaries := make([]BackupSummary, 0, len(entries))
	for _, e := range entries {
		summaries = append(summaries, BackupSummary{
			ID:         e.ID,
			Kind:       string(e.Kind),
			Status:     string(e.Status),
			Records:    len(e.Records),
			RetryCount: e.RetryCount,
			MaxRetries: e.MaxRetries,
			CreatedAt:  e.CreatedAt,
			LastError:  e.LastError,
		})
	}
	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].CreatedAt.Before(summaries[j].CreatedAt)
	})
	return summaries, nil
}

// Recovery implements Reader.
func (r *StateReader) Recovery() ([]RecoverySummary, error) {
	entries, err := r.registry.List()
	if err != nil {
		return nil, err
	}

	summaries := make([]RecoverySummary, 0, len(entries))
	for _, e := range entries {
		summaries = append(summaries, RecoverySummary{
			ID:           e.ID,
			Kind:         string(e.Kind),
			Status:       string(e.Status),
			ObjectName:   e.ObjectName,
			RetryCount:   e.RetryCount,
			MaxRetries:   e.MaxRetries,
			CreatedAt:    e.CreatedAt,
			HasOriginals: len(e.OriginalRecords) > 0,
			LastError:    e.LastError,
		})
	}
	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].CreatedAt.Before(summaries[j].CreatedAt)
	})
	return summaries, nil
}

// Queues implements Reader.
func (r *StateReader) Queues(ctx context.Context) (*QueueDepths, error) {
	gps, err := r.queues.Len(ctx, r.queues.Key(r.gpsKey))
	if err != nil {
		return nil, err
	}
	mobile, err := r.queues.Len(ctx, r.queues.Key(r.mobileKey))
	if err != nil {
		return nil, err
	}
	return &QueueDepths{GPS: gps, Mobile: mobile}, nil
}

// Stats implements Reader.
func (r *StateReader) Stats(ctx context.Context) (*PipelineStats, error) {
	depths, err := r.Queues(ctx)
	if err != nil {
		return nil, err
	}
	backups, err := r.Backups()
	if err != nil {
		return nil, err
	}
	registry, err := r.Recovery()
	if err != nil {
		return nil, err
	}

	stats := &PipelineStats{Queues: *depths}
	for _, b := range backups {
		switch b.Status {
		case string(backup.StatusCompleted):
			stats.BackupsCompleted++
		case string(backup.StatusFailed):
			stats.BackupsFailed++
		default:
			stats.BackupsPending++
		}
	}
	for _, e := range registry {
		switch e.Status {
		case string(recovery.StatusCompleted):
			stats.RecoveryCompleted++
		case string(recovery.StatusFailed):
			stats.RecoveryFailed++
		default:
			stats.RecoveryPending++
		}
	}
	return stats, nil
}

// Verify StateReader implements Reader.
var _ Reader = (*StateReader)(nil)
