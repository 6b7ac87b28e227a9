package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// metaSuffix is the sidecar file extension holding object metadata.
const metaSuffix = ".meta.json"

// FSConfig holds configuration for the filesystem simulation backend.
type FSConfig struct {
	// Root is the base directory objects are written under (required).
	Root string
}

// Validate checks that required configuration is present.
func (c *FSConfig) Validate() error {
	if c.Root == "" {
		return errors.New("FS root directory is required")
	}
	return nil
}

// FS is a filesystem-backed simulation of ObjectStore for environments
// without cloud credentials. Custom metadata lives in a JSON sidecar next to
// each object; behavior is otherwise identical to the cloud backends, and
// the pipeline never branches on which backend is in effect.
type FS struct {
	root string
}

// fsMeta is the sidecar payload.
type fsMeta struct {
	ContentType string            `json:"contentType"`
	Metadata    map[string]string `json:"metadata"`
	Created     time.Time         `json:"created"`
}

// NewFS creates a filesystem-backed object store rooted at cfg.Root.
func NewFS(cfg FSConfig) (*FS, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(cfg.Root, 0o755); err != nil {
		return nil, wrapError("init", cfg.Root, err)
	}
	return &FS{root: cfg.Root}, nil
}

// UploadNDJSON implements ObjectStore. The object and its sidecar are both
// written via temp+rename so a crashed upload never leaves a torn object.
func (f *FS) UploadNDJSON(_ context.Context, payload []byte, objectName string, metadata map[string]string) (*UploadResult, error) {
	path, err := f.objectPath(objectName)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, wrapError("upload", objectName, err)
	}

	if err := atomicWrite(path, payload); err != nil {
		return nil, wrapError("upload", objectName, err)
	}

	meta, err := json.Marshal(fsMeta{
		ContentType: ContentType,
		Metadata:    metadata,
		Created:     time.Now().UTC(),
	})
	if err != nil {
		return nil, wrapError("upload", objectName, err)
	}
	if err := atomicWrite(path+metaSuffix, meta); err != nil {
		return nil, wrapError("upload", objectName, err)
	}

	return &UploadResult{
		URI:  f.URI(objectName),
		Size: int64(len(payload)),
	}, nil
}

// ListByPrefix implements ObjectStore.
func (f *FS) ListByPrefix(_ context.Context, prefix string) ([]ObjectInfo, error) {
	var infos []ObjectInfo
	err := filepath.WalkDir(f.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || strings.HasSuffix(path, metaSuffix) {
			return nil
		}

		rel, err := filepath.Rel(f.root, path)
		if err != nil {
			return err
		}
		name := filepath.ToSlash(rel)
		if !strings.HasPrefix(name, prefix) {
			return nil
		}

		stat, err := d.Info()
		if err != nil {
			return err
		}
		info := ObjectInfo{
			Name:    name,
			URI:     f.URI(name),
			Size:    stat.Size(),
			Created: stat.ModTime(),
		}

		if raw, err := os.ReadFile(path + metaSuffix); err == nil {
			var meta fsMeta
			if err := json.Unmarshal(raw, &meta); err == nil {
				info.Metadata = meta.Metadata
				info.Created = meta.Created
			}
		}

		infos = append(infos, info)
		return nil
	})
	if err != nil {
		return nil, wrapError("list", prefix, err)
	}
	return infos, nil
}

// Delete implements ObjectStore.
func (f *FS) Delete(_ context.Context, objectName string) error {
	path, err := f.objectPath(objectName)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil {
		return wrapError("delete", objectName, err)
	}
	_ = os.Remove(path + metaSuffix)
	return nil
}

// Status implements ObjectStore by checking the root directory exists.
func (f *FS) Status(_ context.Context) error {
	if _, err := os.Stat(f.root); err != nil {
		return wrapError("status", f.root, err)
	}
	return nil
}

// URI returns the file:// URI for an object name.
func (f *FS) URI(objectName string) string {
	abs, err := filepath.Abs(filepath.Join(f.root, filepath.FromSlash(objectName)))
	if err != nil {
		abs = filepath.Join(f.root, objectName)
	}
	return "file://" + filepath.ToSlash(abs)
}

// objectPath resolves an object name to a filesystem path, rejecting names
// that escape the root.
func (f *FS) objectPath(objectName string) (string, error) {
	if objectName == "" || strings.Contains(objectName, "..") {
		return "", &StorageError{
			Kind: ErrMalformed,
			Op:   "resolve",
			Name: objectName,
			Err:  fmt.Errorf("invalid object name"),
		}
	}
	return filepath.Join(f.root, filepath.FromSlash(objectName)), nil
}

// atomicWrite writes data via temp file + rename to avoid torn reads.
func atomicWrite(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// Verify FS implements ObjectStore.
var _ ObjectStore = (*FS)(nil)
