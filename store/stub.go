package store

import (
	"context"
	"sort"
	"sync"
	"time"
)

// StubStore is an in-memory ObjectStore for tests, with per-operation
// failure injection.
type StubStore struct {
	mu      sync.Mutex
	objects map[string]stubObject

	// FailUpload, FailList, FailDelete inject errors when non-nil.
	FailUpload error
	FailList   error
	FailDelete error

	// Uploads counts UploadNDJSON calls, including failed ones.
	Uploads int
	// Deletes records deleted object names in order.
	Deletes []string
}

type stubObject struct {
	payload  []byte
	metadata map[string]string
	created  time.Time
}

// NewStub creates an empty in-memory object store.
func NewStub() *StubStore {
	return &StubStore{objects: make(map[string]stubObject)}
}

// UploadNDJSON implements ObjectStore.
func (s *StubStore) UploadNDJSON(_ context.Context, payload []byte, objectName string, metadata map[string]string) (*UploadResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Uploads++
	if s.FailUpload != nil {
		return nil, wrapError("upload", objectName, s.FailUpload)
	}

	meta := make(map[string]string, len(metadata))
	for k, v := range metadata {
		meta[k] = v
	}
	s.objects[objectName] = stubObject{
		payload:  append([]byte(nil), payload...),
		metadata: meta,
		created:  time.Now().UTC(),
	}
	return &UploadResult{
		URI:  s.URI(objectName),
		Size: int64(len(payload)),
	}, nil
}

// ListByPrefix implements ObjectStore.
func (s *StubStore) ListByPrefix(_ context.Context, prefix string) ([]ObjectInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailList != nil {
		return nil, wrapError("list", prefix, s.FailList)
	}

	var infos []ObjectInfo
	for name, obj := range s.objects {
		if len(name) >= len(prefix) && name[:len(prefix)] == prefix {
			infos = append(infos, ObjectInfo{
				Name:     name,
				URI:      s.URI(name),
				Size:     int64(len(obj.payload)),
				Created:  obj.created,
				Metadata: obj.metadata,
			})
		}
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos, nil
}

// Delete implements ObjectStore.
func (s *StubStore) Delete(_ context.Context, objectName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailDelete != nil {
		return wrapError("delete", objectName, s.FailDelete)
	}
	if _, ok := s.objects[objectName]; !ok {
		return &StorageError{Kind: ErrNotFound, Op: "delete", Name: objectName, Err: ErrNotFound}
	}
	delete(s.objects, objectName)
	s.Deletes = append(s.Deletes, objectName)
	return nil
}

// Status implements ObjectStore.
func (s *StubStore) Status(context.Context) error {
	return nil
}

// URI returns the stub URI for an object name.
func (s *StubStore) URI(objectName string) string {
	return "stub://" + objectName
}

// Payload returns a stored object's payload, or nil when absent.
func (s *StubStore) Payload(objectName string) []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	obj, ok := s.objects[objectName]
	if !ok {
		return nil
	}
	return append([]byte(nil), obj.payload...)
}

// Len returns the number of stored objects.
func (s *StubStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.objects)
}

// Verify StubStore implements ObjectStore.
var _ ObjectStore = (*StubStore)(nil)
