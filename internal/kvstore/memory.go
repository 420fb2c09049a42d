package kvstore

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

// MemoryStore is an in-process Store. It backs tests and single-process
// deployments that want no files on disk.
type MemoryStore struct {
	now func() time.Time

	mu     sync.Mutex
	data   map[string]memoryEntry
	closed bool
}

// NewMemory creates an empty MemoryStore.
func NewMemory(opts ...Option) *MemoryStore {
	o := applyOptions(opts)
	return &MemoryStore{now: o.now, data: make(map[string]memoryEntry)}
}

// Get implements Store.
func (m *MemoryStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, false, ErrClosed
	}
	e, ok := m.data[key]
	if !ok {
		return nil, false, nil
	}
	if !e.expiresAt.IsZero() && !m.now().Before(e.expiresAt) {
		delete(m.data, key)
		return nil, false, nil
	}
	out := make([]byte, len(e.value))
	copy(out, e.value)
	return out, true, nil
}

// Put implements Store.
func (m *MemoryStore) Put(ctx context.Context, key string, value []byte, opts PutOptions) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	buf := make([]byte, len(value))
	copy(buf, value)

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	m.data[key] = memoryEntry{value: buf, expiresAt: expiryFor(m.now(), opts)}
	return nil
}

// Len returns the number of stored keys, including expired ones not yet read.
func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.data)
}

// Close implements Store.
func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.data = nil
	return nil
}
