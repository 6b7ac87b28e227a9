package reader

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"github.com/pithecene-io/stratum/backup"
	"github.com/pithecene-io/stratum/log"
	"github.com/pithecene-io/stratum/queue"
	"github.com/pithecene-io/stratum/recovery"
	"github.com/pithecene-io/stratum/store"
	"github.com/pithecene-io/stratum/types"
	"github.com/pithecene-io/stratum/warehouse"
)

func newReader(t *testing.T) (*StateReader, *backup.Store, *recovery.Manager, *queue.Client) {
	t.Helper()
	logger := log.NewLogger("reader-test").WithOutput(io.Discard)

	mr := miniredis.RunT(t)
	queues, err := queue.New(queue.Config{Addr: mr.Addr()})
	if err != nil {
		t.Fatalf("queue.New: %v", err)
	}

	backups, err := backup.NewStore(backup.Config{Dir: t.TempDir()}, logger)
	if err != nil {
		t.Fatalf("backup.NewStore: %v", err)
	}
	registry, err := recovery.NewManager(recovery.Config{
		Dir:          t.TempDir(),
		GPSPrefix:    "gps-data/",
		MobilePrefix: "mobile-data/",
	}, store.NewStub(), warehouse.NewStubLoader(), logger)
	if err != nil {
		t.Fatalf("recovery.NewManager: %v", err)
	}

	return New(backups, registry, queues, "", ""), backups, registry, queues
}

func TestBackups(t *testing.T) {
	r, backups, _, _ := newReader(t)

	if _, err := backups.SaveBatch(types.KindGPS, []types.Record{types.GPSRecord{
		DeviceID: "veh-1", Lat: 1, Lng: 2, Timestamp: "2025-01-15T10:00:00Z",
	}}, nil); err != nil {
		t.Fatalf("SaveBatch: %v", err)
	}

	list, err := r.Backups()
	if err != nil {
		t.Fatalf("Backups: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("backups = %d", len(list))
	}
	if list[0].Kind != "gps" || list[0].Status != "pending" || list[0].Records != 1 {
		t.Errorf("summary = %+v", list[0])
	}
}

func TestRecovery(t *testing.T) {
	r, _, registry, _ := newReader(t)

	if _, err := registry.Register("gps-data/gps_x.json", "stub://gps-data/gps_x.json",
		types.KindGPS, nil, []types.Record{types.GPSRecord{DeviceID: "veh-1"}}); err != nil {
		t.Fatalf("Register: %v", err)
	}

	list, err := r.Recovery()
	if err != nil {
		t.Fatalf("Recovery: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("entries = %d", len(list))
	}
	if list[0].ObjectName != "gps-data/gps_x.json" || !list[0].HasOriginals {
		t.Errorf("summary = %+v", list[0])
	}
}

func TestQueuesAndStats(t *testing.T) {
	r, backups, _, queues := newReader(t)
	ctx := context.Background()

	if err := queues.RPushMany(ctx, queue.DefaultGPSKey, []string{"{}", "{}", "{}"}); err != nil {
		t.Fatalf("push: %v", err)
	}
	if err := queues.RPushMany(ctx, queue.DefaultMobileKey, []string{"{}"}); err != nil {
		t.Fatalf("push: %v", err)
	}
	if _, err := backups.SaveBatch(types.KindMobile, []types.Record{types.MobileRecord{UserID: "u1"}}, nil); err != nil {
		t.Fatalf("SaveBatch: %v", err)
	}

	depths, err := r.Queues(ctx)
	if err != nil {
		t.Fatalf("Queues: %v", err)
	}
	if depths.GPS != 3 || depths.Mobile != 1 {
		t.Errorf("depths = %+v", depths)
	}

	stats, err := r.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.Queues.GPS != 3 || stats.BackupsPending != 1 || stats.RecoveryPending != 0 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestBackups_SortedOldestFirst(t *testing.T) {
	r := &StubReader{
		BackupList: []BackupSummary{
			{ID: "b2", CreatedAt: time.Now()},
			{ID: "b1", CreatedAt: time.Now().Add(-time.Hour)},
		},
	}
	// Stub passthrough: ordering is the caller's responsibility there, but
	// the real reader sorts; assert the stub wiring compiles against the
	// interface and returns data untouched.
	list, err := r.Backups()
	if err != nil || len(list) != 2 {
		t.Fatalf("stub backups = %v, %v", list, err)
	}
}
