package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"sync"
	"time"
)

type memoryObject struct {
	data        []byte
	contentType string
}

// MemoryStore keeps objects in process memory. It backs tests and dry runs.
type MemoryStore struct {
	mu         sync.RWMutex
	containers map[string]map[string]memoryObject
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{containers: make(map[string]map[string]memoryObject)}
}

// PresignGet implements Presigner. The link names the object but is only
// meaningful to this process.
func (m *MemoryStore) PresignGet(ctx context.Context, container, name string, expiry time.Duration) (string, error) {
	if err := validateObject(container, name); err != nil {
		return "", err
	}
	if ok, _ := m.Exists(ctx, container, name); !ok {
		return "", &StorageError{Op: "presign", Container: container, Name: name, Err: ErrNotFound}
	}
	return fmt.Sprintf("memory://%s/%s?expires=%d", container, url.PathEscape(name), int(expiry.Seconds())), nil
}

// Put implements ObjectStore.
func (m *MemoryStore) Put(ctx context.Context, container, name string, data io.Reader, size int64, contentType string) error {
	if err := validateObject(container, name); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, data); err != nil {
		return &StorageError{Op: "put", Container: container, Name: name, Err: err}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	objects, ok := m.containers[container]
	if !ok {
		return &StorageError{Op: "put", Container: container, Name: name, Err: ErrNotFound}
	}
	objects[name] = memoryObject{data: buf.Bytes(), contentType: contentType}
	return nil
}

// Get implements ObjectStore.
func (m *MemoryStore) Get(ctx context.Context, container, name string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	obj, ok := m.containers[container][name]
	if !ok {
		return nil, &StorageError{Op: "get", Container: container, Name: name, Err: ErrNotFound}
	}
	return bytes.Clone(obj.data), nil
}

// Exists implements ObjectStore.
func (m *MemoryStore) Exists(ctx context.Context, container, name string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.containers[container][name]
	return ok, nil
}

// EnsureContainer implements ObjectStore.
func (m *MemoryStore) EnsureContainer(ctx context.Context, container string) error {
	if err := ValidateContainerName(container); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.containers[container]; !ok {
		m.containers[container] = make(map[string]memoryObject)
	}
	return nil
}

// ContentType returns the stored content type of an object.
func (m *MemoryStore) ContentType(container, name string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	obj, ok := m.containers[container][name]
	return obj.contentType, ok
}
