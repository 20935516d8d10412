package store

import (
	"context"
	"sync"
)

// Backend is the host key/value store. Every operation is scoped to a user.
//
// Put must return ErrQuotaExceeded (possibly wrapped) when the write would
// exceed the backend's per-user quota, and must leave the previous value in
// place in that case.
type Backend interface {
	Put(ctx context.Context, user, key string, value []byte) error
	Get(ctx context.Context, user, key string) ([]byte, bool, error)
	Delete(ctx context.Context, user, key string) error
	DeleteAll(ctx context.Context, user string) error
	Close() error
}

// MemoryBackend is a session-only backend. A zero quota means unlimited.
//
// Thread-safety: MemoryBackend is safe for concurrent use via internal mutex.
type MemoryBackend struct {
	mu     sync.Mutex
	quota  int
	data   map[string]map[string][]byte
	closed bool
}

// NewMemoryBackend creates an empty in-memory backend.
func NewMemoryBackend(quotaBytes int) *MemoryBackend {
	return &MemoryBackend{
		quota: quotaBytes,
		data:  make(map[string]map[string][]byte),
	}
}

// Put implements Backend.
func (m *MemoryBackend) Put(_ context.Context, user, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrUnavailable
	}

	if m.quota > 0 {
		used := 0
		for k, v := range m.data[user] {
			if k != key {
				used += len(v)
			}
		}
		if used+len(value) > m.quota {
			return ErrQuotaExceeded
		}
	}

	if m.data[user] == nil {
		m.data[user] = make(map[string][]byte)
	}
	buf := make([]byte, len(value))
	copy(buf, value)
	m.data[user][key] = buf
	return nil
}

// Get implements Backend.
func (m *MemoryBackend) Get(_ context.Context, user, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, false, ErrUnavailable
	}
	v, ok := m.data[user][key]
	if !ok {
		return nil, false, nil
	}
	buf := make([]byte, len(v))
	copy(buf, v)
	return buf, true, nil
}

// Delete implements Backend.
func (m *MemoryBackend) Delete(_ context.Context, user, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrUnavailable
	}
	delete(m.data[user], key)
	return nil
}

// DeleteAll implements Backend.
func (m *MemoryBackend) DeleteAll(_ context.Context, user string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrUnavailable
	}
	delete(m.data, user)
	return nil
}

// Close implements Backend.
func (m *MemoryBackend) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}
