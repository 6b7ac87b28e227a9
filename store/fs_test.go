package store

import (
	"context"
	"errors"
	"testing"
)

func testFS(t *testing.T) *FS {
	t.Helper()
	f, err := NewFS(FSConfig{Root: t.TempDir()})
	if err != nil {
		t.Fatalf("new fs: %v", err)
	}
	return f
}

func TestFS_UploadListDelete(t *testing.T) {
	f := testFS(t)
	ctx := context.Background()

	payload := []byte("{\"deviceId\":\"d1\"}\n{\"deviceId\":\"d2\"}\n")
	meta := map[string]string{
		MetaDataType:     "gps",
		MetaRecordCount:  "2",
		MetaProcessingID: "gps_20250115100000_abc",
	}

	res, err := f.UploadNDJSON(ctx, payload, "gps-data/gps_20250115100000_abc.json", meta)
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if res.Size != int64(len(payload)) {
		t.Errorf("size = %d", res.Size)
	}

	// Upload ok implies retrievable by its own name as prefix, metadata intact.
	infos, err := f.ListByPrefix(ctx, "gps-data/gps_20250115100000_abc.json")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(infos) != 1 {
		t.Fatalf("list = %d objects", len(infos))
	}
	if infos[0].Metadata[MetaProcessingID] != "gps_20250115100000_abc" {
		t.Errorf("metadata lost: %+v", infos[0].Metadata)
	}

	// Prefix listing excludes other kinds.
	infos, err = f.ListByPrefix(ctx, "mobile-data/")
	if err != nil {
		t.Fatalf("list mobile: %v", err)
	}
	if len(infos) != 0 {
		t.Errorf("unexpected mobile objects: %v", infos)
	}

	if err := f.Delete(ctx, "gps-data/gps_20250115100000_abc.json"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	infos, err = f.ListByPrefix(ctx, "gps-data/")
	if err != nil {
		t.Fatalf("list after delete: %v", err)
	}
	if len(infos) != 0 {
		t.Errorf("object survived delete: %v", infos)
	}
}

func TestFS_DeleteMissing(t *testing.T) {
	f := testFS(t)
	err := f.Delete(context.Background(), "gps-data/absent.json")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestFS_RejectsEscapingNames(t *testing.T) {
	f := testFS(t)
	_, err := f.UploadNDJSON(context.Background(), []byte("x"), "../outside.json", nil)
	if !errors.Is(err, ErrMalformed) {
		t.Errorf("err = %v, want ErrMalformed", err)
	}
}

func TestFS_Status(t *testing.T) {
	f := testFS(t)
	if err := f.Status(context.Background()); err != nil {
		t.Errorf("status: %v", err)
	}
}

func TestClassify(t *testing.T) {
	cases := []struct {
		msg  string
		want error
	}{
		{"storage: object doesn't exist: not found", ErrNotFound},
		{"googleapi: Error 403: Forbidden", ErrPermission},
		{"operation error S3: PutObject, AccessDenied", ErrPermission},
		{"could not find default credentials", ErrPermission},
		{"dial tcp 10.0.0.1:443: connection refused", ErrUnavailable},
		{"context deadline exceeded", ErrUnavailable},
		{"write /tmp/x: no space left on device", ErrDiskFull},
		{"invalid object name", ErrMalformed},
	}
	for _, tc := range cases {
		got := wrapError("op", "name", errors.New(tc.msg))
		if !errors.Is(got, tc.want) {
			t.Errorf("classify(%q) = %v, want %v", tc.msg, got, tc.want)
		}
	}
}

func TestRetryable(t *testing.T) {
	if !Retryable(wrapError("upload", "x", errors.New("connection refused"))) {
		t.Error("transient error not retryable")
	}
	if Retryable(wrapError("upload", "x", errors.New("AccessDenied"))) {
		t.Error("permission error marked retryable")
	}
}
