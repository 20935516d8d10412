package engine

import (
	"context"
	"slices"

	"github.com/roach88/habitsync/internal/model"
	"github.com/roach88/habitsync/internal/store"
)

// Entities returns the rows of kind in catalog order.
func (e *Engine) Entities(ctx context.Context, kind model.Kind) ([]model.Row, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	c, err := e.catalogLocked(ctx, kind)
	if err != nil {
		return nil, err
	}
	return slices.Clone(c.rows), nil
}

// EntitiesInOrder returns the rows of kind in display order. See MergeOrder.
func (e *Engine) EntitiesInOrder(ctx context.Context, kind model.Kind) ([]model.Row, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	c, err := e.catalogLocked(ctx, kind)
	if err != nil {
		return nil, err
	}
	order, err := store.GetOr(ctx, e.store, kind.OrderKey(), []model.EntityID(nil))
	if err != nil {
		return nil, err
	}
	return MergeOrder(c.rows, order), nil
}

// Order returns the explicit order list stored for kind.
func (e *Engine) Order(ctx context.Context, kind model.Kind) ([]model.EntityID, error) {
	if !kind.Valid() {
		return nil, &KindError{Op: "order", Kind: kind}
	}
	return store.GetOr(ctx, e.store, kind.OrderKey(), []model.EntityID{})
}

// MergeOrder combines catalog rows with an explicit order list.
//
// Ids in order come first, in that order, if the catalog has them. Every
// remaining row follows in catalog order. Ids in order that are missing
// from the catalog are skipped; the order list itself is never repaired.
func MergeOrder(rows []model.Row, order []model.EntityID) []model.Row {
	byID := make(map[model.EntityID]model.Row, len(rows))
	for _, r := range rows {
		if _, dup := byID[r.RowID()]; !dup {
			byID[r.RowID()] = r
		}
	}

	out := make([]model.Row, 0, len(rows))
	placed := make(map[model.EntityID]bool, len(rows))
	for _, id := range order {
		r, ok := byID[id]
		if !ok || placed[id] {
			continue
		}
		out = append(out, r)
		placed[id] = true
	}
	for _, r := range rows {
		if placed[r.RowID()] {
			continue
		}
		out = append(out, r)
		placed[r.RowID()] = true
	}
	return out
}

// Protocols returns the protocol catalog in catalog order.
func (e *Engine) Protocols(ctx context.Context) ([]model.Protocol, error) {
	return entitiesAs[model.Protocol](ctx, e, model.KindProtocols)
}

// Innerfaces returns the innerface catalog in catalog order.
func (e *Engine) Innerfaces(ctx context.Context) ([]model.Innerface, error) {
	return entitiesAs[model.Innerface](ctx, e, model.KindInnerfaces)
}

// States returns the state catalog in catalog order.
func (e *Engine) States(ctx context.Context) ([]model.State, error) {
	return entitiesAs[model.State](ctx, e, model.KindStates)
}

// QuickActions returns the quick action catalog in catalog order.
func (e *Engine) QuickActions(ctx context.Context) ([]model.QuickAction, error) {
	return entitiesAs[model.QuickAction](ctx, e, model.KindQuickActions)
}

func entitiesAs[T model.Row](ctx context.Context, e *Engine, kind model.Kind) ([]T, error) {
	rows, err := e.Entities(ctx, kind)
	if err != nil {
		return nil, err
	}
	out := make([]T, 0, len(rows))
	for _, r := range rows {
		if v, ok := r.(T); ok {
			out = append(out, v)
		}
	}
	return out, nil
}

// Entity looks up one row by id.
func (e *Engine) Entity(ctx context.Context, kind model.Kind, id model.EntityID) (model.Row, bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	c, err := e.catalogLocked(ctx, kind)
	if err != nil {
		return nil, false, err
	}
	r, ok := c.byID[id]
	return r, ok, nil
}
