package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"

	"github.com/roach88/habitsync/internal/model"
	"github.com/roach88/habitsync/internal/store"
)

// AppendJournalEntry persists entry and queues it for delivery.
//
// Appending an id that is already in the journal is a no-op and returns
// false. Entry shape is not validated here; see model.ValidateJournalEntry.
func (e *Engine) AppendJournalEntry(ctx context.Context, entry model.JournalEntry) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.appendLocked(ctx, entry)
}

func (e *Engine) appendLocked(ctx context.Context, entry model.JournalEntry) (bool, error) {
	journal, err := e.journalLocked(ctx)
	if err != nil {
		return false, err
	}
	for _, existing := range journal {
		if existing.ID == entry.ID {
			e.logger.Debug("journal entry already present", "id", entry.ID)
			return false, nil
		}
	}

	entry.Timestamp = entry.Timestamp.UTC()
	next := append(slices.Clone(journal), entry)
	if err := e.store.Set(ctx, store.KeyJournal, next); err != nil {
		return false, fmt.Errorf("append journal entry %s: %w", entry.ID, err)
	}
	// The store may have compacted the journal; reload on next read.
	e.invalidateJournalLocked()

	e.logger.Debug("journal entry appended",
		"id", entry.ID,
		"type", entry.Type,
		"source", entry.SourceID,
		"targets", len(entry.Changes),
	)
	return true, e.queueChange(ctx, model.ChangeAppendJournalEntry, entry)
}

// DeleteJournalEntry removes the entry with id. Returns false if no such
// entry exists.
func (e *Engine) DeleteJournalEntry(ctx context.Context, id string) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	journal, err := e.journalLocked(ctx)
	if err != nil {
		return false, err
	}
	idx := slices.IndexFunc(journal, func(entry model.JournalEntry) bool { return entry.ID == id })
	if idx < 0 {
		return false, nil
	}

	next := slices.Delete(slices.Clone(journal), idx, idx+1)
	if err := e.store.Set(ctx, store.KeyJournal, next); err != nil {
		return false, fmt.Errorf("delete journal entry %s: %w", id, err)
	}
	e.invalidateJournalLocked()

	e.logger.Debug("journal entry deleted", "id", id)
	return true, e.queueChange(ctx, model.ChangeDeleteJournalEntry, model.JournalDeletePayload{ID: id})
}

// Journal returns a copy of the journal in stored order.
func (e *Engine) Journal(ctx context.Context) ([]model.JournalEntry, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	journal, err := e.journalLocked(ctx)
	if err != nil {
		return nil, err
	}
	return slices.Clone(journal), nil
}

// UpsertCatalogRow replaces the row with the same id, or appends it.
// Row shape is not validated here; see model.ValidateRow.
func (e *Engine) UpsertCatalogRow(ctx context.Context, kind model.Kind, row model.Row) error {
	if k, ok := model.KindOf(row); !ok || k != kind {
		return &KindError{Op: "upsert catalog row", Kind: kind}
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	c, err := e.catalogLocked(ctx, kind)
	if err != nil {
		return err
	}
	rows := slices.Clone(c.rows)
	if idx := slices.IndexFunc(rows, func(r model.Row) bool { return r.RowID() == row.RowID() }); idx >= 0 {
		rows[idx] = row
	} else {
		rows = append(rows, row)
	}
	return e.writeRowLocked(ctx, kind, rows, row)
}

// MutateCatalogRow applies patch to the row with id. Patch keys are the
// row's JSON field names; "id" is ignored. Patching an id that is not in
// the catalog is a no-op and returns false.
func (e *Engine) MutateCatalogRow(ctx context.Context, kind model.Kind, id model.EntityID, patch map[string]any) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	c, err := e.catalogLocked(ctx, kind)
	if err != nil {
		return false, err
	}
	idx := slices.IndexFunc(c.rows, func(r model.Row) bool { return r.RowID() == id })
	if idx < 0 {
		e.logger.Debug("mutate skipped, no such row", "kind", kind, "id", id)
		return false, nil
	}

	patched, err := applyPatch(kind, c.rows[idx], patch)
	if err != nil {
		return false, err
	}
	rows := slices.Clone(c.rows)
	rows[idx] = patched
	return true, e.writeRowLocked(ctx, kind, rows, patched)
}

// writeRowLocked persists rows for kind and queues the upsert of row.
func (e *Engine) writeRowLocked(ctx context.Context, kind model.Kind, rows []model.Row, row model.Row) error {
	raw, err := json.Marshal(row)
	if err != nil {
		return fmt.Errorf("upsert %s row: %w", kind, err)
	}
	if err := e.store.Set(ctx, kind.CatalogKey(), rows); err != nil {
		return fmt.Errorf("upsert %s row %s: %w", kind, row.RowID(), err)
	}
	e.invalidateKindLocked(kind)

	return e.queueChange(ctx, model.ChangeUpsertCatalogRow, model.CatalogRowPayload{Kind: kind, Row: raw})
}

func applyPatch(kind model.Kind, row model.Row, patch map[string]any) (model.Row, error) {
	raw, err := json.Marshal(row)
	if err != nil {
		return nil, fmt.Errorf("patch %s row: %w", kind, err)
	}
	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("patch %s row: %w", kind, err)
	}
	for k, v := range patch {
		if k == "id" {
			continue
		}
		fields[k] = v
	}
	merged, err := json.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("patch %s row: %w", kind, err)
	}
	return model.DecodeRow(kind, merged)
}

// DeleteCatalogRow removes the row with id. Returns false if no such row
// exists. The order list is left as is; MergeOrder skips the dangling id.
func (e *Engine) DeleteCatalogRow(ctx context.Context, kind model.Kind, id model.EntityID) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	c, err := e.catalogLocked(ctx, kind)
	if err != nil {
		return false, err
	}
	if _, ok := c.byID[id]; !ok {
		return false, nil
	}
	rows := slices.DeleteFunc(slices.Clone(c.rows), func(r model.Row) bool { return r.RowID() == id })
	if err := e.store.Set(ctx, kind.CatalogKey(), rows); err != nil {
		return false, fmt.Errorf("delete %s row %s: %w", kind, id, err)
	}
	e.invalidateKindLocked(kind)

	return true, e.queueChange(ctx, model.ChangeDeleteCatalogRow, model.CatalogDeletePayload{Kind: kind, ID: id})
}

// SetOrder replaces the explicit order list for kind.
func (e *Engine) SetOrder(ctx context.Context, kind model.Kind, order []model.EntityID) error {
	if !kind.Valid() {
		return &KindError{Op: "set order", Kind: kind}
	}
	if order == nil {
		order = []model.EntityID{}
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.store.Set(ctx, kind.OrderKey(), order); err != nil {
		return fmt.Errorf("set %s: %w", kind.OrderKey(), err)
	}
	e.scores = make(map[scoreKey]float64)

	return e.queueChange(ctx, model.ChangeReplaceOrder, model.OrderPayload{Kind: kind, Order: order})
}

// ReplaceQuickActions swaps the whole quick action catalog.
func (e *Engine) ReplaceQuickActions(ctx context.Context, actions []model.QuickAction) error {
	if actions == nil {
		actions = []model.QuickAction{}
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.store.Set(ctx, model.KindQuickActions.CatalogKey(), actions); err != nil {
		return fmt.Errorf("replace quick actions: %w", err)
	}
	e.invalidateKindLocked(model.KindQuickActions)

	return e.queueChange(ctx, model.ChangeReplaceQuickActions, model.QuickActionsPayload{QuickActions: actions})
}

// ClearAll removes every catalog, order list and the journal, locally and
// on the remote. The sync queue is kept.
func (e *Engine) ClearAll(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	for _, key := range store.DataKeys() {
		if err := e.store.Remove(ctx, key); err != nil {
			return fmt.Errorf("clear all: %w", err)
		}
	}
	e.catalogs = make(map[model.Kind]*catalog)
	e.invalidateJournalLocked()

	e.logger.Info("local data cleared", "user", e.store.User())
	return e.queueChange(ctx, model.ChangeClearAll, model.ClearAllPayload{})
}

// ReplaceAll overwrites every local collection with snap and queues a
// clear-all that carries snap as the remote replacement. Nil collections
// in snap are written as empty.
func (e *Engine) ReplaceAll(ctx context.Context, snap model.Snapshot) error {
	full := model.EmptySnapshot()
	full.Overlay(snap)

	e.mu.Lock()
	defer e.mu.Unlock()

	if err := store.SaveSnapshot(ctx, e.store, full); err != nil {
		return fmt.Errorf("replace all: %w", err)
	}
	e.catalogs = make(map[model.Kind]*catalog)
	e.invalidateJournalLocked()

	e.logger.Info("local data replaced",
		"user", e.store.User(),
		"journal", len(full.Journal),
	)
	return e.queueChange(ctx, model.ChangeClearAll, model.ClearAllPayload{Replacement: &full})
}

// Snapshot returns the current local snapshot.
func (e *Engine) Snapshot(ctx context.Context) (model.Snapshot, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	return store.LoadSnapshot(ctx, e.store)
}

// ApplyRemote loads the local snapshot, persists merge(local) and drops
// every cache, all under the engine lock so no local mutation can land
// between the load and the save.
//
// Implements syncer.SnapshotApplier.
func (e *Engine) ApplyRemote(ctx context.Context, merge func(local model.Snapshot) model.Snapshot) (model.Snapshot, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	local, err := store.LoadSnapshot(ctx, e.store)
	if err != nil {
		return model.Snapshot{}, fmt.Errorf("apply remote: %w", err)
	}
	merged := merge(local)
	err = store.SaveSnapshot(ctx, e.store, merged)
	// A partial save still changed the store.
	e.catalogs = make(map[model.Kind]*catalog)
	e.invalidateJournalLocked()
	if err != nil {
		return model.Snapshot{}, fmt.Errorf("apply remote: %w", err)
	}

	e.logger.Debug("remote snapshot applied",
		"user", e.store.User(),
		"journal", len(merged.Journal),
	)
	return merged, nil
}
