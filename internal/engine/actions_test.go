package engine

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/habitsync/internal/model"
)

func habitSnapshot() model.Snapshot {
	return model.Snapshot{
		Protocols: []model.Protocol{
			{ID: "run", Name: "Morning run", Weight: 0.5, Targets: model.IDs("stamina", "focus")},
			{ID: "broken", Name: "No targets", Weight: 0.5},
		},
		Innerfaces: []model.Innerface{
			{ID: "stamina", Name: "Stamina", InitialScore: 5},
			{ID: "focus", Name: "Focus", InitialScore: 3},
		},
		QuickActions: []model.QuickAction{
			{ID: "skip", ProtocolID: "run", Direction: -1, Name: "Skipped run"},
			{ID: "go", ProtocolID: "run", Direction: 1},
			{ID: "orphan", ProtocolID: "gone", Direction: 1},
		},
	}
}

func TestCheckIn(t *testing.T) {
	ctx := context.Background()
	f := setupEngine(t, habitSnapshot())

	got, err := f.engine.CheckIn(ctx, "run", 1)
	require.NoError(t, err)

	assert.Equal(t, "e-0001", got.ID)
	assert.Equal(t, model.EntryProtocolCheckin, got.Type)
	assert.Equal(t, t0, got.Timestamp)
	assert.Equal(t, model.EntityID("run"), got.SourceID)
	assert.Equal(t, "Morning run", got.SourceLabel)
	assert.Equal(t, map[model.EntityID]float64{"stamina": 0.5, "focus": 0.5}, got.Changes)

	down, err := f.engine.CheckIn(ctx, "run", -1)
	require.NoError(t, err)
	assert.Equal(t, -0.5, down.Changes["focus"])
	assert.True(t, down.Timestamp.After(got.Timestamp))

	_, err = f.engine.CheckIn(ctx, "run", 1)
	require.NoError(t, err)

	score, err := f.engine.InnerfaceScore(ctx, "stamina")
	require.NoError(t, err)
	assert.InDelta(t, 5.5, score, 1e-9)

	assert.Len(t, f.queue.Changes(), 3)
}

func TestCheckIn_Errors(t *testing.T) {
	ctx := context.Background()
	f := setupEngine(t, habitSnapshot())

	_, err := f.engine.CheckIn(ctx, "run", 2)
	assert.True(t, model.IsValidationError(err))

	_, err = f.engine.CheckIn(ctx, "missing", 1)
	assert.ErrorIs(t, err, ErrUnknownEntity)

	_, err = f.engine.CheckIn(ctx, "broken", 1)
	assert.True(t, model.IsValidationError(err))

	assert.Empty(t, f.queue.Changes(), "rejected check-ins never reach the queue")
}

func TestCheckIn_StoredRowsAreNotRevalidated(t *testing.T) {
	ctx := context.Background()
	f := setupEngine(t, model.Snapshot{
		Protocols: []model.Protocol{
			{ID: "legacy", Name: "Legacy", Weight: 2, Color: "teal", Targets: model.IDs("a")},
		},
		Innerfaces: []model.Innerface{{ID: "a", Name: "A", InitialScore: 5}},
		QuickActions: []model.QuickAction{
			{ID: "q", ProtocolID: "legacy", Direction: 1, Name: strings.Repeat("q", 150)},
			{ID: "sideways", ProtocolID: "legacy", Direction: 0},
		},
	})
	require.Error(t, model.ValidateProtocol(model.Protocol{ID: "legacy", Name: "Legacy", Weight: 2, Targets: model.IDs("a")}))

	got, err := f.engine.CheckIn(ctx, "legacy", 1)
	require.NoError(t, err)
	assert.Equal(t, 2.0, got.Changes["a"])

	_, err = f.engine.RunQuickAction(ctx, "q")
	require.NoError(t, err)

	_, err = f.engine.RunQuickAction(ctx, "sideways")
	assert.True(t, model.IsValidationError(err))

	score, err := f.engine.InnerfaceScore(ctx, "a")
	require.NoError(t, err)
	assert.InDelta(t, 9.0, score, 1e-9)
}

func TestRunQuickAction(t *testing.T) {
	ctx := context.Background()
	f := setupEngine(t, habitSnapshot())

	got, err := f.engine.RunQuickAction(ctx, "skip")
	require.NoError(t, err)
	assert.Equal(t, model.EntryQuickAction, got.Type)
	assert.Equal(t, model.EntityID("skip"), got.SourceID)
	assert.Equal(t, "Skipped run", got.SourceLabel)
	assert.Equal(t, -0.5, got.Changes["stamina"])
	assert.Equal(t, "run", got.Metadata["protocolId"])

	unnamed, err := f.engine.RunQuickAction(ctx, "go")
	require.NoError(t, err)
	assert.Equal(t, "Morning run", unnamed.SourceLabel, "falls back to the protocol name")

	_, err = f.engine.RunQuickAction(ctx, "orphan")
	assert.ErrorIs(t, err, ErrUnknownEntity)

	_, err = f.engine.RunQuickAction(ctx, "nope")
	assert.ErrorIs(t, err, ErrUnknownEntity)
}

func TestManualEdit(t *testing.T) {
	ctx := context.Background()
	f := setupEngine(t, habitSnapshot())

	got, err := f.engine.ManualEdit(ctx, "focus", 1.25, "weekend retreat")
	require.NoError(t, err)
	assert.Equal(t, model.EntryManualEdit, got.Type)
	assert.Empty(t, got.SourceID)
	assert.Equal(t, ManualEditLabel, got.SourceLabel)
	assert.Equal(t, "weekend retreat", got.Metadata["note"])

	score, err := f.engine.InnerfaceScore(ctx, "focus")
	require.NoError(t, err)
	assert.InDelta(t, 4.25, score, 1e-9)

	_, err = f.engine.ManualEdit(ctx, "focus", 0, "")
	assert.True(t, model.IsValidationError(err))

	_, err = f.engine.ManualEdit(ctx, "nope", 1, "")
	assert.ErrorIs(t, err, ErrUnknownEntity)
}
