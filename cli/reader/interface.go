package reader

import "context"

// Reader provides read-only views of pipeline state for the CLI.
// All methods are side-effect free; the CLI never mutates pipeline state.
type Reader interface {
	// Backups lists every local backup entry, oldest first.
	Backups() ([]BackupSummary, error)

	// Recovery lists every recovery registry entry, oldest first.
	Recovery() ([]RecoverySummary, error)

	// Queues reports the live length of both location queues.
	Queues(ctx context.Context) (*QueueDepths, error)

	// Stats aggregates queue depths and durable-store status counts.
	Stats(ctx context.Context) (*PipelineStats, error)
}
