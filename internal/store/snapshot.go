package store

import (
	"context"
	"fmt"

	"github.com/roach88/habitsync/internal/model"
)

// LoadSnapshot reads every catalog, order list and the journal. Absent
// keys load as empty, non-nil collections.
func LoadSnapshot(ctx context.Context, s *Store) (model.Snapshot, error) {
	snap := model.EmptySnapshot()

	targets := []struct {
		key string
		dst any
	}{
		{model.KindProtocols.CatalogKey(), &snap.Protocols},
		{model.KindInnerfaces.CatalogKey(), &snap.Innerfaces},
		{model.KindStates.CatalogKey(), &snap.States},
		{model.KindQuickActions.CatalogKey(), &snap.QuickActions},
		{model.KindProtocols.OrderKey(), &snap.ProtocolOrder},
		{model.KindInnerfaces.OrderKey(), &snap.InnerfaceOrder},
		{model.KindStates.OrderKey(), &snap.StateOrder},
		{model.KindQuickActions.OrderKey(), &snap.QuickActionOrder},
		{KeyJournal, &snap.Journal},
	}
	for _, t := range targets {
		if _, err := s.Get(ctx, t.key, t.dst); err != nil {
			return model.Snapshot{}, fmt.Errorf("load snapshot: %w", err)
		}
	}

	// A stored JSON null decodes to a nil slice.
	normalized := model.EmptySnapshot()
	normalized.Overlay(snap)
	return normalized, nil
}

// SaveSnapshot writes the non-nil collections of snap. The journal is
// written last so a quota compaction sees every other key in place.
func SaveSnapshot(ctx context.Context, s *Store, snap model.Snapshot) error {
	type write struct {
		key   string
		value any
		set   bool
	}
	writes := []write{
		{model.KindProtocols.CatalogKey(), snap.Protocols, snap.Protocols != nil},
		{model.KindInnerfaces.CatalogKey(), snap.Innerfaces, snap.Innerfaces != nil},
		{model.KindStates.CatalogKey(), snap.States, snap.States != nil},
		{model.KindQuickActions.CatalogKey(), snap.QuickActions, snap.QuickActions != nil},
	}
	for _, kind := range model.Kinds {
		order := snap.Order(kind)
		writes = append(writes, write{kind.OrderKey(), order, order != nil})
	}
	writes = append(writes, write{KeyJournal, snap.Journal, snap.Journal != nil})

	for _, w := range writes {
		if !w.set {
			continue
		}
		if err := s.Set(ctx, w.key, w.value); err != nil {
			return fmt.Errorf("save snapshot: %w", err)
		}
	}
	return nil
}

// DataKeys lists the keys a snapshot occupies.
func DataKeys() []string {
	keys := make([]string, 0, 2*len(model.Kinds)+1)
	for _, kind := range model.Kinds {
		keys = append(keys, kind.CatalogKey())
	}
	for _, kind := range model.Kinds {
		keys = append(keys, kind.OrderKey())
	}
	return append(keys, KeyJournal)
}
