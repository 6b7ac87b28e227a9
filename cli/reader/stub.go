package reader

import "context"

// StubReader is an in-memory Reader for CLI and TUI tests.
type StubReader struct {
	BackupList   []BackupSummary
	RecoveryList []RecoverySummary
	Depths       QueueDepths
	PStats       *PipelineStats

	// Err injects a failure on every method when non-nil.
	Err error
}

// Backups implements Reader.
func (s *StubReader) Backups() ([]BackupSummary, error) {
	if s.Err != nil {
		return nil, s.Err
	}
	return s.BackupList, nil
}

// Recovery implements Reader.
func (s *StubReader) Recovery() ([]RecoverySummary, error) {
	if s.Err != nil {
		return nil, s.Err
	}
	return s.RecoveryList, nil
}

// Queues implements Reader.
func (s *StubReader) Queues(context.Context) (*QueueDepths, error) {
	if s.Err != nil {
		return nil, s.Err
	}
	d := s.Depths
	return &d, nil
}

// Stats implements Reader.
func (s *StubReader) Stats(context.Context) (*PipelineStats, error) {
	if s.Err != nil {
		return nil, s.Err
	}
	if s.PStats != nil {
		st := *s.PStats
		return &st, nil
	}
	return &PipelineStats{Queues: s.Depths}, nil
}

// Verify StubReader implements Reader.
var _ Reader = (*StubReader)(nil)
