package warehouse

import (
	"context"
	"sync"

	"github.com/pithecene-io/stratum/types"
)

// LoadCall records one LoadFromURI invocation on the stub.
type LoadCall struct {
	URI      string
	Kind     types.Kind
	JobID    string
	Metadata map[string]string
}

// StubLoader is an in-memory Loader for tests. It mirrors the job-id dedup
// of the real loader: re-submitting a batch whose job id was already
// committed returns the original result without committing again.
type StubLoader struct {
	mu sync.Mutex

	// FailLoad injects an error on LoadFromURI when non-nil.
	FailLoad error
	// RowsPerLoad is the RowsWritten reported per fresh commit (default 0
	// means "count is unknown"; tests usually set it).
	RowsPerLoad int64

	// Calls records every LoadFromURI invocation, including failed ones.
	Calls []LoadCall
	// Committed maps job id to the result of its first successful commit.
	Committed map[string]*LoadResult
}

// NewStubLoader creates an empty stub loader.
func NewStubLoader() *StubLoader {
	return &StubLoader{Committed: make(map[string]*LoadResult)}
}

// LoadFromURI implements Loader.
func (s *StubLoader) LoadFromURI(_ context.Context, uri string, kind types.Kind, metadata map[string]string) (*LoadResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := jobID(uri, kind, metadata)
	s.Calls = append(s.Calls, LoadCall{URI: uri, Kind: kind, JobID: id, Metadata: metadata})

	if s.FailLoad != nil {
		return nil, s.FailLoad
	}

	if prev, ok := s.Committed[id]; ok {
		// Duplicate submission: the first job is the job of record.
		return prev, nil
	}

	result := &LoadResult{JobID: id, RowsWritten: s.RowsPerLoad}
	s.Committed[id] = result
	return result, nil
}

// JobStatus implements Loader.
func (s *StubLoader) JobStatus(_ context.Context, id string) (*JobStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.Committed[id]; ok {
		return &JobStatus{State: StateDone}, nil
	}
	return &JobStatus{State: StatePending}, nil
}

// CommitCount returns the number of distinct committed jobs.
func (s *StubLoader) CommitCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.Committed)
}

// TotalRows returns the total rows committed across distinct jobs.
func (s *StubLoader) TotalRows() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	var total int64
	for _, r := range s.Committed {
		total += r.RowsWritten
	}
	return total
}

// Verify StubLoader implements Loader.
var _ Loader = (*StubLoader)(nil)
