package store

import (
	"context"
	"errors"
	"fmt"

	gstorage "cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
)

// GCSConfig holds configuration for the Google Cloud Storage backend.
type GCSConfig struct {
	// Bucket is the bucket name (required).
	Bucket string
}

// Validate checks that required GCS configuration is present.
func (c *GCSConfig) Validate() error {
	if c.Bucket == "" {
		return errors.New("GCS bucket is required")
	}
	return nil
}

// GCS is the Google Cloud Storage implementation of ObjectStore.
// Uses application default credentials.
type GCS struct {
	client *gstorage.Client
	bucket string
}

// NewGCS creates a GCS-backed object store.
func NewGCS(ctx context.Context, cfg GCSConfig) (*GCS, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	client, err := gstorage.NewClient(ctx)
	if err != nil {
		return nil, wrapError("init", cfg.Bucket, err)
	}
	return &GCS{client: client, bucket: cfg.Bucket}, nil
}

// UploadNDJSON implements ObjectStore. The writer attaches custom metadata
// before the first byte, so a nil-error close implies metadata is durable.
func (g *GCS) UploadNDJSON(ctx context.Context, payload []byte, objectName string, metadata map[string]string) (*UploadResult, error) {
	w := g.client.Bucket(g.bucket).Object(objectName).NewWriter(ctx)
	w.ContentType = ContentType
	w.Metadata = metadata

	if _, err := w.Write(payload); err != nil {
		_ = w.Close()
		return nil, wrapError("upload", objectName, err)
	}
	if err := w.Close(); err != nil {
		return nil, wrapError("upload", objectName, err)
	}

	return &UploadResult{
		URI:  g.URI(objectName),
		Size: int64(len(payload)),
	}, nil
}

// ListByPrefix implements ObjectStore.
func (g *GCS) ListByPrefix(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	var infos []ObjectInfo
	it := g.client.Bucket(g.bucket).Objects(ctx, &gstorage.Query{Prefix: prefix})
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, wrapError("list", prefix, err)
		}
		infos = append(infos, ObjectInfo{
			Name:     attrs.Name,
			URI:      g.URI(attrs.Name),
			Size:     attrs.Size,
			Created:  attrs.Created,
			Metadata: attrs.Metadata,
		})
	}
	return infos, nil
}

// Delete implements ObjectStore.
func (g *GCS) Delete(ctx context.Context, objectName string) error {
	err := g.client.Bucket(g.bucket).Object(objectName).Delete(ctx)
	if errors.Is(err, gstorage.ErrObjectNotExist) {
		return &StorageError{Kind: ErrNotFound, Op: "delete", Name: objectName, Err: err}
	}
	return wrapError("delete", objectName, err)
}

// Status implements ObjectStore by fetching bucket attributes.
func (g *GCS) Status(ctx context.Context) error {
	if _, err := g.client.Bucket(g.bucket).Attrs(ctx); err != nil {
		return wrapError("status", g.bucket, err)
	}
	return nil
}

// URI returns the gs:// URI for an object name. Warehouse load jobs consume
// these directly.
func (g *GCS) URI(objectName string) string {
	return fmt.Sprintf("gs://%s/%s", g.bucket, objectName)
}

// Close releases the underlying client.
func (g *GCS) Close() error {
	return g.client.Close()
}

// Verify GCS implements ObjectStore.
var _ ObjectStore = (*GCS)(nil)
