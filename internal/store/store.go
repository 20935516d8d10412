package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/roach88/habitsync/internal/model"
)

// Store is a per-user view over a Backend with an in-memory read cache.
//
// Thread-safety: Store is safe for concurrent use via internal mutex.
// Two Stores for the same user on the same backend do not share a cache;
// only one logical writer per user is expected.
type Store struct {
	backend     Backend
	user        string
	persistent  bool
	journalKeep int
	logger      *slog.Logger

	mu          sync.RWMutex
	cache       map[string][]byte
	compactions uint64
}

// Option configures a Store.
type Option func(*Store)

// WithJournalKeep sets how many journal entries survive quota compaction.
//
// Default: 1000 entries (DefaultJournalKeep)
func WithJournalKeep(n int) Option {
	return func(s *Store) {
		s.journalKeep = n
	}
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		s.logger = l
	}
}

// Open binds a Store for user onto backend.
func Open(backend Backend, user string, opts ...Option) *Store {
	s := &Store{
		backend:     backend,
		user:        user,
		persistent:  true,
		journalKeep: DefaultJournalKeep,
		logger:      slog.Default(),
		cache:       make(map[string][]byte),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// OpenWithFallback calls open and binds a Store onto the result. If open
// fails, the Store serves the session from a MemoryBackend and Persistent
// reports false. The degradation is logged once, here.
func OpenWithFallback(open func() (Backend, error), user string, opts ...Option) *Store {
	backend, err := open()
	if err == nil {
		return Open(backend, user, opts...)
	}

	s := Open(NewMemoryBackend(0), user, opts...)
	s.persistent = false
	s.logger.Warn("persistent storage unavailable, using session memory",
		"user", user,
		"error", err,
	)
	return s
}

// ForUser returns a Store for another user on the same backend. The new
// Store starts with an empty cache.
func (s *Store) ForUser(user string) *Store {
	return &Store{
		backend:     s.backend,
		user:        user,
		persistent:  s.persistent,
		journalKeep: s.journalKeep,
		logger:      s.logger,
		cache:       make(map[string][]byte),
	}
}

// User returns the user this Store is bound to.
func (s *Store) User() string {
	return s.user
}

// Persistent reports whether writes reach durable storage.
func (s *Store) Persistent() bool {
	return s.persistent
}

// Set serializes value and writes it under key.
//
// On ErrQuotaExceeded the journal is compacted once and the write retried.
// If the retry still fails the original quota error is returned.
func (s *Store) Set(ctx context.Context, key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("set %s: %w: %v", key, ErrSerialization, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	err = s.backend.Put(ctx, s.user, key, raw)
	if errors.Is(err, ErrQuotaExceeded) {
		raw, err = s.compactAndRetry(ctx, key, raw, err)
	}
	if err != nil {
		return err
	}

	s.cache[key] = raw
	return nil
}

// compactAndRetry truncates the journal and retries the write of key.
// Caller must hold s.mu.
func (s *Store) compactAndRetry(ctx context.Context, key string, raw []byte, quotaErr error) ([]byte, error) {
	if key == KeyJournal {
		var entries []model.JournalEntry
		if err := json.Unmarshal(raw, &entries); err != nil {
			return nil, quotaErr
		}
		kept := model.TruncateJournal(entries, s.journalKeep)
		if len(kept) == len(entries) {
			return nil, quotaErr
		}
		compacted, err := json.Marshal(kept)
		if err != nil {
			return nil, quotaErr
		}
		if err := s.backend.Put(ctx, s.user, key, compacted); err != nil {
			return nil, quotaErr
		}
		s.logCompaction(len(entries), len(kept))
		return compacted, nil
	}

	stored, ok, err := s.readLocked(ctx, KeyJournal)
	if err != nil || !ok {
		return nil, quotaErr
	}
	var entries []model.JournalEntry
	if err := json.Unmarshal(stored, &entries); err != nil {
		return nil, quotaErr
	}
	kept := model.TruncateJournal(entries, s.journalKeep)
	if len(kept) == len(entries) {
		return nil, quotaErr
	}
	compacted, err := json.Marshal(kept)
	if err != nil {
		return nil, quotaErr
	}
	if err := s.backend.Put(ctx, s.user, KeyJournal, compacted); err != nil {
		return nil, quotaErr
	}
	s.cache[KeyJournal] = compacted
	s.logCompaction(len(entries), len(kept))

	if err := s.backend.Put(ctx, s.user, key, raw); err != nil {
		return nil, quotaErr
	}
	return raw, nil
}

// logCompaction records a compaction. Caller must hold s.mu.
func (s *Store) logCompaction(before, after int) {
	s.compactions++
	s.logger.Warn("journal compacted after quota failure",
		"user", s.user,
		"entries_before", before,
		"entries_after", after,
		"dropped", before-after,
	)
}

// Compactions reports how many times this Store truncated the journal to
// satisfy a quota. Holders of a parsed journal compare it to detect that
// the stored journal changed under them.
func (s *Store) Compactions() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.compactions
}

// Get decodes the value under key into dst. Returns false if the key is
// absent, in which case dst is untouched.
func (s *Store) Get(ctx context.Context, key string, dst any) (bool, error) {
	s.mu.RLock()
	raw, ok := s.cache[key]
	s.mu.RUnlock()

	if !ok {
		s.mu.Lock()
		var err error
		raw, ok, err = s.readLocked(ctx, key)
		s.mu.Unlock()
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}

	if err := json.Unmarshal(raw, dst); err != nil {
		return false, fmt.Errorf("get %s: %w: %v", key, ErrSerialization, err)
	}
	return true, nil
}

// readLocked returns the raw value under key, populating the cache on a
// backend hit. Caller must hold s.mu for writing.
func (s *Store) readLocked(ctx context.Context, key string) ([]byte, bool, error) {
	if raw, ok := s.cache[key]; ok {
		return raw, true, nil
	}
	raw, ok, err := s.backend.Get(ctx, s.user, key)
	if err != nil {
		return nil, false, err
	}
	if ok {
		s.cache[key] = raw
	}
	return raw, ok, nil
}

// GetOr returns the value under key decoded as T, or def if it is absent.
func GetOr[T any](ctx context.Context, s *Store, key string, def T) (T, error) {
	var v T
	ok, err := s.Get(ctx, key, &v)
	if err != nil {
		return def, err
	}
	if !ok {
		return def, nil
	}
	return v, nil
}

// Remove deletes key. Removing an absent key is not an error.
func (s *Store) Remove(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.backend.Delete(ctx, s.user, key); err != nil {
		return err
	}
	delete(s.cache, key)
	return nil
}

// Exists reports whether key holds a value.
func (s *Store) Exists(ctx context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok, err := s.readLocked(ctx, key)
	return ok, err
}

// ClearAllForCurrentUser deletes every key of the bound user. Other users'
// data is untouched.
func (s *Store) ClearAllForCurrentUser(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.backend.DeleteAll(ctx, s.user); err != nil {
		return err
	}
	s.cache = make(map[string][]byte)
	return nil
}

// Close closes the underlying backend. Stores created with ForUser share
// the backend and must not be used afterward.
func (s *Store) Close() error {
	return s.backend.Close()
}
