package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"sync"

	"github.com/roach88/habitsync/internal/model"
)

// Memory is an in-process Client. The zero value is not usable; call
// NewMemory.
//
// Thread-safety: Memory is safe for concurrent use via internal mutex.
type Memory struct {
	mu   sync.Mutex
	snap model.Snapshot
}

// NewMemory returns an empty in-process document store.
func NewMemory() *Memory {
	return &Memory{snap: model.EmptySnapshot()}
}

// FetchSnapshot implements Client.
func (m *Memory) FetchSnapshot(_ context.Context) (model.Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return cloneSnapshot(m.snap)
}

// PushSnapshot implements Client.
func (m *Memory) PushSnapshot(_ context.Context, snap model.Snapshot) error {
	patch, err := cloneSnapshot(snap)
	if err != nil {
		return err
	}
	// cloneSnapshot fills every collection; keep the nil-means-unchanged
	// contract by copying only what the caller set.
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snap.Overlay(keepSet(snap, patch))
	return nil
}

// AppendJournalEntry implements Client.
func (m *Memory) AppendJournalEntry(_ context.Context, entry model.JournalEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if slices.ContainsFunc(m.snap.Journal, func(e model.JournalEntry) bool { return e.ID == entry.ID }) {
		return nil
	}
	m.snap.Journal = append(slices.Clip(m.snap.Journal), entry)
	model.SortJournal(m.snap.Journal)
	return nil
}

// DeleteJournalEntry implements Client.
func (m *Memory) DeleteJournalEntry(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.snap.Journal = slices.DeleteFunc(slices.Clone(m.snap.Journal), func(e model.JournalEntry) bool { return e.ID == id })
	return nil
}

// UpsertCatalogRow implements Client.
func (m *Memory) UpsertCatalogRow(_ context.Context, kind model.Kind, raw json.RawMessage) error {
	row, err := model.DecodeRow(kind, raw)
	if err != nil {
		return badRequest("%v", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snap.UpsertRow(row)
}

// DeleteCatalogRow implements Client.
func (m *Memory) DeleteCatalogRow(_ context.Context, kind model.Kind, id model.EntityID) error {
	if !kind.Valid() {
		return badRequest("unknown kind %q", kind)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	_, err := m.snap.DeleteRow(kind, id)
	return err
}

// MemoryDirectory hands out one Memory per user, created on first use.
//
// Thread-safety: MemoryDirectory is safe for concurrent use via internal mutex.
type MemoryDirectory struct {
	mu    sync.Mutex
	users map[string]*Memory
}

// NewMemoryDirectory returns an empty directory.
func NewMemoryDirectory() *MemoryDirectory {
	return &MemoryDirectory{users: make(map[string]*Memory)}
}

// ForUser implements Directory.
func (d *MemoryDirectory) ForUser(user string) Client {
	return d.Memory(user)
}

// Memory returns the concrete store for user.
func (d *MemoryDirectory) Memory(user string) *Memory {
	d.mu.Lock()
	defer d.mu.Unlock()

	m, ok := d.users[user]
	if !ok {
		m = NewMemory()
		d.users[user] = m
	}
	return m
}

// cloneSnapshot deep copies snap through JSON and fills missing
// collections with empty ones.
func cloneSnapshot(snap model.Snapshot) (model.Snapshot, error) {
	raw, err := json.Marshal(snap)
	if err != nil {
		return model.Snapshot{}, fmt.Errorf("clone snapshot: %w", err)
	}
	var out model.Snapshot
	if err := json.Unmarshal(raw, &out); err != nil {
		return model.Snapshot{}, fmt.Errorf("clone snapshot: %w", err)
	}
	full := model.EmptySnapshot()
	full.Overlay(out)
	return full, nil
}

// keepSet returns the collections of clone that were non-nil in orig.
func keepSet(orig, clone model.Snapshot) model.Snapshot {
	var out model.Snapshot
	if orig.Protocols != nil {
		out.Protocols = clone.Protocols
	}
	if orig.Innerfaces != nil {
		out.Innerfaces = clone.Innerfaces
	}
	if orig.States != nil {
		out.States = clone.States
	}
	if orig.QuickActions != nil {
		out.QuickActions = clone.QuickActions
	}
	for _, kind := range model.Kinds {
		if orig.Order(kind) != nil {
			out.SetOrder(kind, clone.Order(kind))
		}
	}
	if orig.Journal != nil {
		out.Journal = clone.Journal
		model.SortJournal(out.Journal)
	}
	return out
}
