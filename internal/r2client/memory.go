package r2client

import (
	"bytes"
	"context"
	"io"
	"strconv"
	"sync"
)

// MemoryStore is an in-process ObjectStore with the same conditional-write
// semantics as R2. It backs tests and single-instance development setups.
type MemoryStore struct {
	mu      sync.Mutex
	objects map[string]memObject
	seq     int
}

type memObject struct {
	data        []byte
	etag        string
	contentType string
}

var _ ObjectStore = (*MemoryStore)(nil)

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{objects: make(map[string]memObject)}
}

func (m *MemoryStore) put(key string, body io.Reader, contentType string) (string, error) {
	data, err := io.ReadAll(body)
	if err != nil {
		return "", err
	}
	m.seq++
	etag := "m" + strconv.Itoa(m.seq)
	m.objects[key] = memObject{data: data, etag: etag, contentType: contentType}
	return etag, nil
}

// Upload stores an object unconditionally.
func (m *MemoryStore) Upload(_ context.Context, key string, body io.Reader, contentType string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.put(key, body, contentType)
}

// Download returns a copy of the stored object.
func (m *MemoryStore) Download(_ context.Context, key string) (io.ReadCloser, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	obj, ok := m.objects[key]
	if !ok {
		return nil, "", ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(bytes.Clone(obj.data))), obj.etag, nil
}

// PutObjectIfNotExists stores key only when absent.
func (m *MemoryStore) PutObjectIfNotExists(_ context.Context, key string, body io.Reader, contentType string) (bool, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.objects[key]; ok {
		return false, "", nil
	}
	etag, err := m.put(key, body, contentType)
	return err == nil, etag, err
}

// PutObjectIfMatch replaces key only when its ETag equals etag.
func (m *MemoryStore) PutObjectIfMatch(_ context.Context, key string, body io.Reader, etag, contentType string) (bool, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	obj, ok := m.objects[key]
	if !ok || obj.etag != etag {
		return false, "", nil
	}
	newEtag, err := m.put(key, body, contentType)
	return err == nil, newEtag, err
}

// DeleteObject removes key. Deleting a missing key is not an error.
func (m *MemoryStore) DeleteObject(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, key)
	return nil
}

// Len returns the number of stored objects.
func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.objects)
}

// ContentType returns the content type stored with key.
func (m *MemoryStore) ContentType(key string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.objects[key].contentType
}
