package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/habitsync/internal/model"
)

var t0 = time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)

func makeJournal(n int) []model.JournalEntry {
	entries := make([]model.JournalEntry, n)
	for i := range entries {
		entries[i] = model.JournalEntry{
			ID:        fmt.Sprintf("e-%04d", i),
			Type:      model.EntryProtocolCheckin,
			Timestamp: t0.Add(time.Duration(i) * time.Minute),
			SourceID:  "p1",
			Changes:   map[model.EntityID]float64{"a": 0.1},
		}
	}
	return entries
}

func encodedSize(t *testing.T, v any) int {
	t.Helper()
	raw, err := json.Marshal(v)
	require.NoError(t, err)
	return len(raw)
}

func TestStore_SetGet(t *testing.T) {
	ctx := context.Background()
	s := Open(NewMemoryBackend(0), "alice")

	protocols := []model.Protocol{{ID: "p1", Name: "Run", Weight: 0.5, Targets: model.IDs("a")}}
	require.NoError(t, s.Set(ctx, model.KindProtocols.CatalogKey(), protocols))

	var got []model.Protocol
	ok, err := s.Get(ctx, model.KindProtocols.CatalogKey(), &got)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, protocols, got)
}

func TestStore_GetMissingLeavesDefault(t *testing.T) {
	ctx := context.Background()
	s := Open(NewMemoryBackend(0), "alice")

	got, err := GetOr(ctx, s, KeyLastSyncTimestamp, "never")
	require.NoError(t, err)
	assert.Equal(t, "never", got)

	exists, err := s.Exists(ctx, KeyLastSyncTimestamp)
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestStore_ReadThroughCache(t *testing.T) {
	ctx := context.Background()
	backend := NewMemoryBackend(0)
	s := Open(backend, "alice")

	require.NoError(t, backend.Put(ctx, "alice", "k", []byte(`"from-disk"`)))

	got, err := GetOr(ctx, s, "k", "")
	require.NoError(t, err)
	assert.Equal(t, "from-disk", got)

	// The cached copy is served until this Store writes again.
	require.NoError(t, backend.Put(ctx, "alice", "k", []byte(`"changed-underneath"`)))
	got, err = GetOr(ctx, s, "k", "")
	require.NoError(t, err)
	assert.Equal(t, "from-disk", got)
}

func TestStore_CacheUpdatedOnlyOnSuccess(t *testing.T) {
	ctx := context.Background()
	s := Open(NewMemoryBackend(8), "alice")

	require.NoError(t, s.Set(ctx, "k", "small"))
	err := s.Set(ctx, "k", "far too large for the quota")
	require.Error(t, err)
	assert.True(t, IsQuotaError(err))

	got, err := GetOr(ctx, s, "k", "")
	require.NoError(t, err)
	assert.Equal(t, "small", got)
}

func TestStore_SerializationError(t *testing.T) {
	ctx := context.Background()
	s := Open(NewMemoryBackend(0), "alice")

	err := s.Set(ctx, "k", make(chan int))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSerialization)

	exists, err := s.Exists(ctx, "k")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestStore_RemoveAndExists(t *testing.T) {
	ctx := context.Background()
	s := Open(NewMemoryBackend(0), "alice")

	require.NoError(t, s.Set(ctx, "k", 1))
	exists, err := s.Exists(ctx, "k")
	require.NoError(t, err)
	assert.True(t, exists)

	require.NoError(t, s.Remove(ctx, "k"))
	exists, err = s.Exists(ctx, "k")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestStore_ForUserIsolation(t *testing.T) {
	ctx := context.Background()
	alice := Open(NewMemoryBackend(0), "alice")
	bob := alice.ForUser("bob")

	require.NoError(t, alice.Set(ctx, KeyJournal, makeJournal(2)))

	assert.Equal(t, "bob", bob.User())
	exists, err := bob.Exists(ctx, KeyJournal)
	require.NoError(t, err)
	assert.False(t, exists)

	require.NoError(t, bob.Set(ctx, KeyJournal, makeJournal(1)))
	require.NoError(t, alice.ClearAllForCurrentUser(ctx))

	exists, err = alice.Exists(ctx, KeyJournal)
	require.NoError(t, err)
	assert.False(t, exists)

	journal, err := GetOr(ctx, bob, KeyJournal, []model.JournalEntry(nil))
	require.NoError(t, err)
	assert.Len(t, journal, 1)
}

func TestStore_QuotaTruncatesJournalValue(t *testing.T) {
	ctx := context.Background()
	full := makeJournal(1500)
	quota := encodedSize(t, full[500:]) + 16
	require.Greater(t, encodedSize(t, full), quota)

	s := Open(NewMemoryBackend(quota), "alice")
	require.NoError(t, s.Set(ctx, KeyJournal, full))

	// Read through a fresh Store to see what actually hit the backend.
	var stored []model.JournalEntry
	ok, err := s.ForUser("alice").Get(ctx, KeyJournal, &stored)
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, stored, DefaultJournalKeep)
	assert.Equal(t, "e-0500", stored[0].ID)
	assert.Equal(t, "e-1499", stored[len(stored)-1].ID)

	// The cache holds the compacted journal too.
	var cached []model.JournalEntry
	_, err = s.Get(ctx, KeyJournal, &cached)
	require.NoError(t, err)
	assert.Len(t, cached, DefaultJournalKeep)
}

func TestStore_QuotaCompactsJournalThenRetries(t *testing.T) {
	ctx := context.Background()
	journal := makeJournal(1200)
	quota := encodedSize(t, journal) + 16
	kept := encodedSize(t, journal[200:])

	s := Open(NewMemoryBackend(quota), "alice")
	require.NoError(t, s.Set(ctx, KeyJournal, journal))
	assert.Zero(t, s.Compactions())

	// Fits only once the journal has shrunk to 1000 entries.
	padding := strings.Repeat("x", quota-kept-2)
	require.NoError(t, s.Set(ctx, model.KindProtocols.CatalogKey(), padding))
	assert.Equal(t, uint64(1), s.Compactions())

	stored, err := GetOr(ctx, s.ForUser("alice"), KeyJournal, []model.JournalEntry(nil))
	require.NoError(t, err)
	require.Len(t, stored, DefaultJournalKeep)
	assert.Equal(t, "e-0200", stored[0].ID)

	got, err := GetOr(ctx, s, model.KindProtocols.CatalogKey(), "")
	require.NoError(t, err)
	assert.Equal(t, padding, got)
}

func TestStore_QuotaSurfacesOriginalError(t *testing.T) {
	ctx := context.Background()
	journal := makeJournal(10)
	quota := encodedSize(t, journal) + 4

	s := Open(NewMemoryBackend(quota), "alice", WithJournalKeep(5))
	require.NoError(t, s.Set(ctx, KeyJournal, journal))

	err := s.Set(ctx, "big", strings.Repeat("x", quota*2))
	require.Error(t, err)
	assert.True(t, IsQuotaError(err))

	// Compaction still ran once.
	stored, err := GetOr(ctx, s, KeyJournal, []model.JournalEntry(nil))
	require.NoError(t, err)
	assert.Len(t, stored, 5)
}

func TestStore_QuotaWithoutJournal(t *testing.T) {
	ctx := context.Background()
	s := Open(NewMemoryBackend(4), "alice")

	err := s.Set(ctx, "k", "too large")
	assert.True(t, IsQuotaError(err))
}

func TestOpenWithFallback_Degrades(t *testing.T) {
	ctx := context.Background()
	s := OpenWithFallback(func() (Backend, error) {
		return nil, errors.New("storage disabled")
	}, "alice")
	defer s.Close()

	assert.False(t, s.Persistent())
	require.NoError(t, s.Set(ctx, "k", "v"))
	got, err := GetOr(ctx, s, "k", "")
	require.NoError(t, err)
	assert.Equal(t, "v", got)

	assert.False(t, s.ForUser("bob").Persistent())
}

func TestOpenWithFallback_UsesBackend(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	s := OpenWithFallback(func() (Backend, error) {
		return OpenSQLite(path, 0)
	}, "alice")
	defer s.Close()

	assert.True(t, s.Persistent())
}

func TestStore_DurableAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "test.db")

	b1, err := OpenSQLite(path, 0)
	require.NoError(t, err)
	s1 := Open(b1, "alice")
	require.NoError(t, s1.Set(ctx, KeyJournal, makeJournal(3)))
	require.NoError(t, s1.Close())

	b2, err := OpenSQLite(path, 0)
	require.NoError(t, err)
	s2 := Open(b2, "alice")
	defer s2.Close()

	journal, err := GetOr(ctx, s2, KeyJournal, []model.JournalEntry(nil))
	require.NoError(t, err)
	require.Len(t, journal, 3)
	assert.True(t, journal[2].Timestamp.Equal(t0.Add(2*time.Minute)))
}
