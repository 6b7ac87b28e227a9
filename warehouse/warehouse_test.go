package warehouse

import (
	"context"
	"errors"
	"testing"

	"github.com/pithecene-io/stratum/types"
)

func TestJobID_FromMetadata(t *testing.T) {
	id := jobID("gs://b/gps-data/gps_20250115100000_abc.json", types.KindGPS,
		map[string]string{"processingId": "gps_20250115100000_abc"})
	want := types.LoadJobID(types.KindGPS, "gps_20250115100000_abc")
	if id != want {
		t.Errorf("jobID = %q, want %q", id, want)
	}
}

func TestJobID_FallbackToURIBase(t *testing.T) {
	id := jobID("gs://b/gps-data/gps_manual_abc.json", types.KindGPS, nil)
	want := types.LoadJobID(types.KindGPS, "gps_manual_abc")
	if id != want {
		t.Errorf("jobID = %q, want %q", id, want)
	}
}

func TestTableFor(t *testing.T) {
	if tbl, err := tableFor(types.KindGPS, "gps_records", "mobile_records"); err != nil || tbl != "gps_records" {
		t.Errorf("gps table = %q, %v", tbl, err)
	}
	if tbl, err := tableFor(types.KindMobile, "gps_records", "mobile_records"); err != nil || tbl != "mobile_records" {
		t.Errorf("mobile table = %q, %v", tbl, err)
	}
	if _, err := tableFor(types.Kind("bogus"), "g", "m"); err == nil {
		t.Error("expected error for unknown kind")
	}
}

func TestSchemas(t *testing.T) {
	gps := schemaFor(types.KindGPS)
	if len(gps) != 6 {
		t.Errorf("gps schema has %d fields, want 6", len(gps))
	}
	if gps[0].Name != "deviceId" || !gps[0].Required {
		t.Errorf("gps schema[0] = %+v", gps[0])
	}

	mobile := schemaFor(types.KindMobile)
	if len(mobile) != 8 {
		t.Errorf("mobile schema has %d fields, want 8", len(mobile))
	}
	for _, f := range mobile {
		if f.Name == "deviceId" {
			t.Error("mobile schema carries deviceId")
		}
	}
}

// Idempotent retry: replaying the same load K times commits exactly once
// because the job id derivation collides.
func TestStubLoader_DuplicateJobDedup(t *testing.T) {
	s := NewStubLoader()
	s.RowsPerLoad = 3
	ctx := context.Background()
	meta := map[string]string{"processingId": "gps_20250115100000_abc"}

	for i := 0; i < 5; i++ {
		res, err := s.LoadFromURI(ctx, "gs://b/gps-data/gps_20250115100000_abc.json", types.KindGPS, meta)
		if err != nil {
			t.Fatalf("load %d: %v", i, err)
		}
		if res.RowsWritten != 3 {
			t.Errorf("load %d rows = %d", i, res.RowsWritten)
		}
	}

	if s.CommitCount() != 1 {
		t.Errorf("committed jobs = %d, want 1", s.CommitCount())
	}
	if s.TotalRows() != 3 {
		t.Errorf("total rows = %d, want 3", s.TotalRows())
	}
	if len(s.Calls) != 5 {
		t.Errorf("calls = %d, want 5", len(s.Calls))
	}
}

func TestStubLoader_FailLoad(t *testing.T) {
	s := NewStubLoader()
	s.FailLoad = errors.New("unavailable")

	_, err := s.LoadFromURI(context.Background(), "gs://b/x.json", types.KindGPS, nil)
	if err == nil {
		t.Fatal("expected injected failure")
	}
	if s.CommitCount() != 0 {
		t.Error("failed load committed rows")
	}
}

func TestBigQueryConfig_Validate(t *testing.T) {
	cfg := BigQueryConfig{ProjectID: "p", Dataset: "d", GPSTable: "g", MobileTable: "m"}
	if err := cfg.Validate(); err != nil {
		t.Errorf("valid config rejected: %v", err)
	}
	for _, broken := range []BigQueryConfig{
		{Dataset: "d", GPSTable: "g", MobileTable: "m"},
		{ProjectID: "p", GPSTable: "g", MobileTable: "m"},
		{ProjectID: "p", Dataset: "d"},
	} {
		if err := broken.Validate(); err == nil {
			t.Errorf("invalid config accepted: %+v", broken)
		}
	}
}

func TestIsDuplicateJob(t *testing.T) {
	if !isDuplicateJob(errors.New("googleapi: Error 409: Already Exists: Job p:US.load_gps_x")) {
		t.Error("409 already exists not detected")
	}
	if isDuplicateJob(errors.New("googleapi: Error 403: Forbidden")) {
		t.Error("403 detected as duplicate")
	}
}
