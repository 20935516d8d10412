package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/habitsync/internal/model"
)

func rowIDs(rows []model.Row) []model.EntityID {
	ids := make([]model.EntityID, len(rows))
	for i, r := range rows {
		ids[i] = r.RowID()
	}
	return ids
}

func protocolRows(ids ...string) []model.Row {
	rows := make([]model.Row, len(ids))
	for i, id := range ids {
		rows[i] = model.Protocol{ID: model.EntityID(id), Name: id}
	}
	return rows
}

func TestMergeOrder(t *testing.T) {
	tests := []struct {
		name  string
		rows  []model.Row
		order []model.EntityID
		want  []model.EntityID
	}{
		{
			name:  "no order list keeps catalog order",
			rows:  protocolRows("a", "b", "c"),
			order: nil,
			want:  model.IDs("a", "b", "c"),
		},
		{
			name:  "order list first then the rest",
			rows:  protocolRows("a", "b", "c", "d"),
			order: model.IDs("c", "a"),
			want:  model.IDs("c", "a", "b", "d"),
		},
		{
			name:  "ids missing from the catalog are skipped",
			rows:  protocolRows("a", "b"),
			order: model.IDs("gone", "b"),
			want:  model.IDs("b", "a"),
		},
		{
			name:  "duplicates in the order list place once",
			rows:  protocolRows("a", "b"),
			order: model.IDs("b", "b", "a"),
			want:  model.IDs("b", "a"),
		},
		{
			name:  "empty catalog",
			rows:  nil,
			order: model.IDs("a"),
			want:  model.IDs(),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MergeOrder(tt.rows, tt.order)
			assert.Equal(t, tt.want, rowIDs(got))
		})
	}
}

func TestEntitiesInOrder_NeverRepairsOrderList(t *testing.T) {
	ctx := context.Background()
	f := setupEngine(t, model.Snapshot{
		Protocols: []model.Protocol{
			{ID: "p1", Name: "Run", Weight: 0.5, Targets: model.IDs("a")},
			{ID: "p2", Name: "Read", Weight: 0.5, Targets: model.IDs("a")},
		},
		ProtocolOrder: model.IDs("p2", "deleted"),
	})

	rows, err := f.engine.EntitiesInOrder(ctx, model.KindProtocols)
	require.NoError(t, err)
	assert.Equal(t, model.IDs("p2", "p1"), rowIDs(rows))

	order, err := f.engine.Order(ctx, model.KindProtocols)
	require.NoError(t, err)
	assert.Equal(t, model.IDs("p2", "deleted"), order)
}

func TestEntities_TypedAccessors(t *testing.T) {
	ctx := context.Background()
	f := setupEngine(t, model.Snapshot{
		Protocols:    []model.Protocol{{ID: "p1", Name: "Run", Weight: 0.5, Targets: model.IDs("a")}},
		Innerfaces:   []model.Innerface{{ID: "a", Name: "Stamina", InitialScore: 3}},
		States:       []model.State{{ID: "s", Name: "Body", InnerfaceIDs: model.IDs("a")}},
		QuickActions: []model.QuickAction{{ID: "q", ProtocolID: "p1", Direction: 1}},
	})

	protocols, err := f.engine.Protocols(ctx)
	require.NoError(t, err)
	require.Len(t, protocols, 1)
	assert.Equal(t, "Run", protocols[0].Name)

	innerfaces, err := f.engine.Innerfaces(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3.0, innerfaces[0].InitialScore)

	states, err := f.engine.States(ctx)
	require.NoError(t, err)
	assert.Equal(t, model.IDs("a"), states[0].InnerfaceIDs)

	actions, err := f.engine.QuickActions(ctx)
	require.NoError(t, err)
	assert.Equal(t, model.EntityID("p1"), actions[0].ProtocolID)

	row, ok, err := f.engine.Entity(ctx, model.KindStates, "s")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "Body", row.RowName())
}

func TestEntities_UnknownKind(t *testing.T) {
	ctx := context.Background()
	f := setupEngine(t, model.Snapshot{})

	_, err := f.engine.Entities(ctx, "history")
	assert.True(t, IsKindError(err))

	_, err = f.engine.Order(ctx, "history")
	assert.True(t, IsKindError(err))
}

func TestEntities_ReturnsCopy(t *testing.T) {
	ctx := context.Background()
	f := setupEngine(t, model.Snapshot{
		Innerfaces: []model.Innerface{{ID: "a", Name: "A"}},
	})

	rows, err := f.engine.Entities(ctx, model.KindInnerfaces)
	require.NoError(t, err)
	rows[0] = model.Innerface{ID: "zzz"}

	again, err := f.engine.Entities(ctx, model.KindInnerfaces)
	require.NoError(t, err)
	assert.Equal(t, model.EntityID("a"), again[0].RowID())
}
