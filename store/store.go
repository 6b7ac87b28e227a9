package store

import (
	"context"
	"time"
)

// ContentType is the content type of every staged object.
const ContentType = "application/x-ndjson"

// Well-known custom metadata keys attached to every staged object.
const (
	MetaDataType     = "dataType"
	MetaRecordCount  = "recordCount"
	MetaSource       = "source"
	MetaProcessingID = "processingId"
	MetaOriginalSize = "originalSize"
)

// ObjectInfo describes a stored object returned by listings.
type ObjectInfo struct {
	Name     string
	URI      string
	Size     int64
	Created  time.Time
	Metadata map[string]string
}

// UploadResult is the outcome of a successful upload.
type UploadResult struct {
	URI  string
	Size int64
}

// ObjectStore is the staged-object boundary. A nil-error upload implies the
// object is durably stored with all metadata attached and retrievable via
// ListByPrefix(objectName). The pipeline never branches on which backend is
// in effect.
type ObjectStore interface {
	// UploadNDJSON stores a newline-delimited JSON payload under objectName
	// with the given custom metadata. Each batch attempt uses a unique name,
	// so no locking is needed at the store.
	UploadNDJSON(ctx context.Context, payload []byte, objectName string, metadata map[string]string) (*UploadResult, error)

	// ListByPrefix returns every object whose name starts with prefix.
	ListByPrefix(ctx context.Context, prefix string) ([]ObjectInfo, error)

	// Delete removes the named object. Deleting a missing object returns
	// an ErrNotFound-classified error.
	Delete(ctx context.Context, objectName string) error

	// Status checks the backend is reachable and the bucket exists.
	Status(ctx context.Context) error
}
