package backup

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/pithecene-io/stratum/log"
	"github.com/pithecene-io/stratum/types"
)

func testStore(t *testing.T, cfg Config) *Store {
	t.Helper()
	if cfg.Dir == "" {
		cfg.Dir = t.TempDir()
	}
	s, err := NewStore(cfg, log.NewLogger("backup-test").WithOutput(io.Discard))
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	return s
}

func gpsRecords(n int) []types.Record {
	records := make([]types.Record, 0, n)
	for i := 0; i < n; i++ {
		records = append(records, types.GPSRecord{
			DeviceID:     "veh-001",
			Lat:          43.65,
			Lng:          -79.38,
			Timestamp:    "2025-01-15T10:00:00Z",
			ProcessedAt:  "2025-01-15T10:05:00Z",
			ProcessingID: "gps_20250115100500_abc",
		})
	}
	return records
}

func TestSaveBatch_RoundTrip(t *testing.T) {
	s := testStore(t, Config{MaxRetries: 3})

	meta := map[string]string{"processingId": "gps_20250115100500_abc"}
	entry, err := s.SaveBatch(types.KindGPS, gpsRecords(4), meta)
	if err != nil {
		t.Fatalf("SaveBatch: %v", err)
	}
	if entry.Status != StatusPending || entry.RetryCount != 0 {
		t.Errorf("new entry = %s retry=%d", entry.Status, entry.RetryCount)
	}

	got, err := s.Get(entry.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Kind != types.KindGPS || len(got.Records) != 4 {
		t.Errorf("re-read entry: kind=%s records=%d", got.Kind, len(got.Records))
	}
	if got.SourceMetadata["processingId"] != "gps_20250115100500_abc" {
		t.Errorf("metadata lost: %v", got.SourceMetadata)
	}

	// Re-hydration yields the saved records byte-for-byte semantics.
	records, err := got.DecodedRecords()
	if err != nil {
		t.Fatalf("DecodedRecords: %v", err)
	}
	if len(records) != 4 {
		t.Fatalf("decoded %d records, want 4", len(records))
	}
	gps, ok := records[0].(types.GPSRecord)
	if !ok {
		t.Fatalf("decoded record is %T", records[0])
	}
	if gps.DeviceID != "veh-001" || gps.Lat != 43.65 {
		t.Errorf("decoded record = %+v", gps)
	}
}

func TestListPending_OrderAndFilter(t *testing.T) {
	s := testStore(t, Config{MaxRetries: 2})

	first, err := s.SaveBatch(types.KindGPS, gpsRecords(1), nil)
	if err != nil {
		t.Fatalf("SaveBatch: %v", err)
	}
	second, err := s.SaveBatch(types.KindMobile, []types.Record{types.MobileRecord{
		UserID: "u1", Name: "Ada", Email: "ada@example.com",
		Lat: 1, Lng: 2, Timestamp: "2025-01-15T10:00:00Z",
	}}, nil)
	if err != nil {
		t.Fatalf("SaveBatch: %v", err)
	}

	// Force a createdAt ordering: first is older.
	first.CreatedAt = first.CreatedAt.Add(-time.Hour)
	if err := s.write(first); err != nil {
		t.Fatalf("rewrite: %v", err)
	}

	pending, err := s.ListPending()
	if err != nil {
		t.Fatalf("ListPending: %v", err)
	}
	if len(pending) != 2 {
		t.Fatalf("pending = %d, want 2", len(pending))
	}
	if pending[0].ID != first.ID || pending[1].ID != second.ID {
		t.Errorf("order = [%s %s], want oldest first", pending[0].ID, pending[1].ID)
	}

	// Exhausted entries drop out of the retryable set.
	second.RetryCount = 2
	second.Status = StatusFailed
	if err := s.write(second); err != nil {
		t.Fatalf("rewrite: %v", err)
	}
	pending, err = s.ListPending()
	if err != nil {
		t.Fatalf("ListPending: %v", err)
	}
	if len(pending) != 1 || pending[0].ID != first.ID {
		t.Errorf("pending after exhaustion = %d", len(pending))
	}
}

func TestProcess_SuccessCompletes(t *testing.T) {
	s := testStore(t, Config{MaxRetries: 3})
	entry, _ := s.SaveBatch(types.KindGPS, gpsRecords(2), nil)

	var sawProcessing bool
	res, err := s.Process(context.Background(), entry, func(_ context.Context, e *Entry) error {
		// The on-disk copy is marked processing while fn runs.
		got, err := s.Get(e.ID)
		if err != nil {
			return err
		}
		sawProcessing = got.Status == StatusProcessing
		return nil
	})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if !res.OK || res.WillRetry {
		t.Errorf("result = %+v", res)
	}
	if !sawProcessing {
		t.Error("entry not marked processing during fn")
	}

	got, err := s.Get(entry.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Status != StatusCompleted || got.CompletedAt == nil {
		t.Errorf("completed entry = %+v", got)
	}
}

// An entry gets exactly maxRetries attempts through the store (the failed
// in-tick upload was its first), then goes terminal.
func TestProcess_RetryBound(t *testing.T) {
	s := testStore(t, Config{MaxRetries: 3})
	entry, _ := s.SaveBatch(types.KindGPS, gpsRecords(1), nil)

	attempts := 0
	fail := func(context.Context, *Entry) error {
		attempts++
		return errors.New("bucket unavailable")
	}

	for {
		pending, err := s.ListPending()
		if err != nil {
			t.Fatalf("ListPending: %v", err)
		}
		if len(pending) == 0 {
			break
		}
		if _, err := s.Process(context.Background(), pending[0], fail); err != nil {
			t.Fatalf("Process: %v", err)
		}
	}

	if attempts != 3 {
		t.Errorf("store attempts = %d, want 3", attempts)
	}

	got, err := s.Get(entry.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Status != StatusFailed {
		t.Errorf("status = %s, want failed", got.Status)
	}
	if got.RetryCount != 3 {
		t.Errorf("retryCount = %d, want 3", got.RetryCount)
	}
	if got.LastError != "bucket unavailable" {
		t.Errorf("lastError = %q", got.LastError)
	}
}

func TestProcess_FailureThenSuccess(t *testing.T) {
	s := testStore(t, Config{MaxRetries: 3})
	entry, _ := s.SaveBatch(types.KindMobile, []types.Record{types.MobileRecord{
		UserID: "u1", Name: "Ada", Email: "ada@example.com",
		Lat: 1, Lng: 2, Timestamp: "2025-01-15T10:00:00Z",
	}}, nil)

	res, err := s.Process(context.Background(), entry, func(context.Context, *Entry) error {
		return errors.New("transient")
	})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if res.OK || !res.WillRetry || res.RetryCount != 1 {
		t.Errorf("first attempt = %+v", res)
	}

	pending, _ := s.ListPending()
	if len(pending) != 1 {
		t.Fatalf("entry not retryable after transient failure")
	}

	res, err = s.Process(context.Background(), pending[0], func(context.Context, *Entry) error {
		return nil
	})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if !res.OK || res.RetryCount != 1 {
		t.Errorf("second attempt = %+v", res)
	}

	got, _ := s.Get(entry.ID)
	if got.Status != StatusCompleted {
		t.Errorf("status = %s, want completed", got.Status)
	}
}

// A crash mid-attempt leaves the entry on disk as processing. A later run
// over the same directory must reclaim it into the retryable set, or the
// batch is stranded forever.
func TestListPending_ReclaimsAbandonedProcessing(t *testing.T) {
	dir := t.TempDir()
	s := testStore(t, Config{Dir: dir, MaxRetries: 3})

	entry, err := s.SaveBatch(types.KindGPS, gpsRecords(2), nil)
	if err != nil {
		t.Fatalf("SaveBatch: %v", err)
	}

	// The processing write landed, then the process died before the attempt
	// could report back.
	stale := time.Now().UTC().Add(-time.Hour)
	entry.Status = StatusProcessing
	entry.ProcessingAt = &stale
	if err := s.write(entry); err != nil {
		t.Fatalf("rewrite: %v", err)
	}

	restarted := testStore(t, Config{Dir: dir, MaxRetries: 3})
	pending, err := restarted.ListPending()
	if err != nil {
		t.Fatalf("ListPending: %v", err)
	}
	if len(pending) != 1 || pending[0].ID != entry.ID {
		t.Fatalf("abandoned entry not reclaimed: pending = %d", len(pending))
	}

	// The reset is durable, and the interrupted attempt did not consume a
	// retry.
	got, err := restarted.Get(entry.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Status != StatusPending || got.ProcessingAt != nil {
		t.Errorf("reclaimed entry = %+v", got)
	}
	if got.RetryCount != 0 {
		t.Errorf("retryCount = %d, want 0", got.RetryCount)
	}
}

// An entry whose attempt started moments ago is in use by a live run and
// must not be reclaimed out from under it.
func TestListPending_KeepsFreshProcessing(t *testing.T) {
	s := testStore(t, Config{MaxRetries: 3})

	entry, err := s.SaveBatch(types.KindGPS, gpsRecords(1), nil)
	if err != nil {
		t.Fatalf("SaveBatch: %v", err)
	}
	now := time.Now().UTC()
	entry.Status = StatusProcessing
	entry.ProcessingAt = &now
	if err := s.write(entry); err != nil {
		t.Fatalf("rewrite: %v", err)
	}

	pending, err := s.ListPending()
	if err != nil {
		t.Fatalf("ListPending: %v", err)
	}
	if len(pending) != 0 {
		t.Errorf("in-flight entry reclaimed: pending = %d", len(pending))
	}
	got, _ := s.Get(entry.ID)
	if got.Status != StatusProcessing {
		t.Errorf("status = %s, want processing", got.Status)
	}
}

func TestDelete(t *testing.T) {
	s := testStore(t, Config{})
	entry, _ := s.SaveBatch(types.KindGPS, gpsRecords(1), nil)

	if err := s.Delete(entry.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := s.Get(entry.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get after delete = %v", err)
	}
	if err := s.Delete(entry.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("double delete = %v", err)
	}
}

func TestCleanupCompleted(t *testing.T) {
	s := testStore(t, Config{MaxRetries: 1})

	done, _ := s.SaveBatch(types.KindGPS, gpsRecords(1), nil)
	old := time.Now().UTC().Add(-48 * time.Hour)
	done.Status = StatusCompleted
	done.CompletedAt = &old
	if err := s.write(done); err != nil {
		t.Fatalf("rewrite: %v", err)
	}

	dead, _ := s.SaveBatch(types.KindGPS, gpsRecords(1), nil)
	dead.Status = StatusFailed
	dead.CreatedAt = old
	if err := s.write(dead); err != nil {
		t.Fatalf("rewrite: %v", err)
	}

	fresh, _ := s.SaveBatch(types.KindGPS, gpsRecords(1), nil)

	removed, err := s.CleanupCompleted(24 * time.Hour)
	if err != nil {
		t.Fatalf("CleanupCompleted: %v", err)
	}
	if removed != 2 {
		t.Errorf("removed = %d, want 2", removed)
	}
	if _, err := s.Get(fresh.ID); err != nil {
		t.Errorf("pending entry removed by cleanup: %v", err)
	}
}

func TestList_SkipsTornFiles(t *testing.T) {
	dir := t.TempDir()
	s := testStore(t, Config{Dir: dir})
	entry, _ := s.SaveBatch(types.KindGPS, gpsRecords(1), nil)

	if err := os.WriteFile(filepath.Join(dir, "garbage.json"), []byte("{not json"), 0o644); err != nil {
		t.Fatalf("write garbage: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "ignored.txt"), []byte("x"), 0o644); err != nil {
		t.Fatalf("write txt: %v", err)
	}

	entries, err := s.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(entries) != 1 || entries[0].ID != entry.ID {
		t.Errorf("entries = %d", len(entries))
	}
}

func TestOldestPendingAge(t *testing.T) {
	s := testStore(t, Config{})

	if _, ok, err := s.OldestPendingAge(); err != nil || ok {
		t.Errorf("empty store age ok=%v err=%v", ok, err)
	}

	entry, _ := s.SaveBatch(types.KindGPS, gpsRecords(1), nil)
	entry.CreatedAt = entry.CreatedAt.Add(-2 * time.Hour)
	if err := s.write(entry); err != nil {
		t.Fatalf("rewrite: %v", err)
	}

	age, ok, err := s.OldestPendingAge()
	if err != nil || !ok {
		t.Fatalf("age ok=%v err=%v", ok, err)
	}
	if age < 2*time.Hour || age > 3*time.Hour {
		t.Errorf("age = %s", age)
	}
}
