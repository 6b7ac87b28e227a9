// Package warehouse implements the columnar warehouse loader: load jobs
// submitted from staged object-store URIs into the typed location tables.
package warehouse

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/pithecene-io/stratum/types"
)

// JobState is the terminal-or-not state of a load job.
type JobState string

// Load job states.
const (
	StatePending JobState = "PENDING"
	StateRunning JobState = "RUNNING"
	StateDone    JobState = "DONE"
	StateError   JobState = "ERROR"
)

// ErrJobFailed indicates a load job reached DONE with job errors attached.
// Distinguished from a clean DONE; callers write the batch aside for retry.
var ErrJobFailed = errors.New("load job completed with errors")

// LoadResult is the outcome of a successful load. Persisted inside recovery
// registry entries, hence the JSON tags.
type LoadResult struct {
	JobID       string `json:"jobId"`
	RowsWritten int64  `json:"rowsWritten"`
	BytesRead   int64  `json:"bytesRead"`
}

// JobStatus is a point-in-time view of a submitted job.
type JobStatus struct {
	State  JobState
	Errors []string
}

// Loader is the warehouse boundary. Implementations submit a load job for a
// staged object URI and wait synchronously for a terminal state.
//
// The job id is derived deterministically from the batch processing id, so
// accidental double-submits of the same batch collide and dedup naturally.
type Loader interface {
	// LoadFromURI loads the NDJSON object at uri into the table for kind.
	// metadata carries the staged object's custom metadata; the processingId
	// entry drives job id derivation.
	LoadFromURI(ctx context.Context, uri string, kind types.Kind, metadata map[string]string) (*LoadResult, error)

	// JobStatus reports the state of a previously submitted job.
	JobStatus(ctx context.Context, jobID string) (*JobStatus, error)
}

// jobID derives the load job id for a staged object. The processing id comes
// from object metadata when present, falling back to the object's base name
// for orphans staged by a crashed tick before metadata conventions changed.
func jobID(uri string, kind types.Kind, metadata map[string]string) string {
	pid := metadata["processingId"]
	if pid == "" {
		pid = strings.TrimSuffix(path.Base(uri), ".json")
	}
	return types.LoadJobID(kind, pid)
}

// tableFor maps a record kind to its configured table name.
func tableFor(kind types.Kind, gpsTable, mobileTable string) (string, error) {
	switch kind {
	case types.KindGPS:
		return gpsTable, nil
	case types.KindMobile:
		return mobileTable, nil
	default:
		return "", fmt.Errorf("warehouse: unknown kind %q", kind)
	}
}
