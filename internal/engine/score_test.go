package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/habitsync/internal/model"
	"github.com/roach88/habitsync/internal/store"
	"github.com/roach88/habitsync/internal/testutil"
)

func TestScore_InnerfaceFold(t *testing.T) {
	ctx := context.Background()
	f := setupEngine(t, model.Snapshot{
		Innerfaces: []model.Innerface{{ID: "a", Name: "Focus", InitialScore: 5}},
		Journal: []model.JournalEntry{
			entry("1", 0, map[model.EntityID]float64{"a": 0.1}),
			entry("2", time.Minute, map[model.EntityID]float64{"a": 0.1}),
			entry("3", 2*time.Minute, map[model.EntityID]float64{"a": -0.05}),
		},
	})

	score, err := f.engine.InnerfaceScore(ctx, "a")
	require.NoError(t, err)
	assert.InDelta(t, 5.15, score, 1e-9)
}

func TestScore_Clamp(t *testing.T) {
	ctx := context.Background()
	f := setupEngine(t, model.Snapshot{
		Innerfaces: []model.Innerface{
			{ID: "hi", Name: "High", InitialScore: 9},
			{ID: "lo", Name: "Low", InitialScore: 1},
		},
		Journal: []model.JournalEntry{
			entry("1", 0, map[model.EntityID]float64{"hi": 5, "lo": -5}),
		},
	})

	hi, err := f.engine.InnerfaceScore(ctx, "hi")
	require.NoError(t, err)
	assert.Equal(t, model.MaxScore, hi)

	lo, err := f.engine.InnerfaceScore(ctx, "lo")
	require.NoError(t, err)
	assert.Equal(t, model.MinScore, lo)
}

func TestScore_CustomBounds(t *testing.T) {
	ctx := context.Background()
	f := setupEngine(t, model.Snapshot{
		Innerfaces: []model.Innerface{{ID: "a", Name: "Focus", InitialScore: 9}},
		Journal:    []model.JournalEntry{entry("1", 0, map[model.EntityID]float64{"a": 50})},
	}, WithScoreBounds(0, 100))

	score, err := f.engine.InnerfaceScore(ctx, "a")
	require.NoError(t, err)
	assert.InDelta(t, 59.0, score, 1e-9)
}

// For every history H: score == clamp(initial + sum of deltas, MIN, MAX).
func TestScore_FoldLawRandomHistories(t *testing.T) {
	ctx := context.Background()
	rng := rand.New(rand.NewSource(42))
	targets := []model.EntityID{"a", "b", "c"}

	for run := 0; run < 25; run++ {
		initial := map[model.EntityID]float64{}
		var innerfaces []model.Innerface
		for _, id := range targets {
			initial[id] = float64(rng.Intn(11))
			innerfaces = append(innerfaces, model.Innerface{ID: id, Name: string(id), InitialScore: initial[id]})
		}

		sums := map[model.EntityID]float64{}
		var journal []model.JournalEntry
		n := rng.Intn(200)
		for i := 0; i < n; i++ {
			changes := map[model.EntityID]float64{}
			for _, id := range targets {
				if rng.Intn(2) == 0 {
					continue
				}
				d := float64(rng.Intn(200)-100) / 100
				changes[id] = d
				sums[id] += d
			}
			journal = append(journal, entry(fmt.Sprintf("%d-%d", run, i), time.Duration(i)*time.Second, changes))
		}

		f := setupEngine(t, model.Snapshot{Innerfaces: innerfaces, Journal: journal})
		for _, id := range targets {
			got, err := f.engine.InnerfaceScore(ctx, id)
			require.NoError(t, err)
			want := clamp(initial[id]+sums[id], model.MinScore, model.MaxScore)
			assert.InDelta(t, want, got, 1e-9, "run %d target %s", run, id)
		}
	}
}

func TestScore_UnknownEntity(t *testing.T) {
	ctx := context.Background()
	f := setupEngine(t, model.Snapshot{})

	_, err := f.engine.InnerfaceScore(ctx, "missing")
	assert.ErrorIs(t, err, ErrUnknownEntity)

	_, err = f.engine.StateScore(ctx, "missing")
	assert.ErrorIs(t, err, ErrUnknownEntity)
}

func TestScore_UnsupportedKind(t *testing.T) {
	ctx := context.Background()
	f := setupEngine(t, model.Snapshot{})

	_, err := f.engine.Score(ctx, model.KindProtocols, "p1")
	assert.True(t, IsKindError(err))
}

func TestScore_StateMean(t *testing.T) {
	ctx := context.Background()
	f := setupEngine(t, model.Snapshot{
		Innerfaces: []model.Innerface{
			{ID: "a", Name: "A", InitialScore: 6},
			{ID: "b", Name: "B", InitialScore: 4},
			{ID: "c", Name: "C", InitialScore: 8},
		},
		States: []model.State{
			{ID: "inner", Name: "Inner", InnerfaceIDs: model.IDs("a", "b")},
			{ID: "outer", Name: "Outer", InnerfaceIDs: model.IDs("c"), StateIDs: model.IDs("inner")},
			{ID: "empty", Name: "Empty"},
			{ID: "dangling", Name: "Dangling", InnerfaceIDs: model.IDs("a", "gone"), StateIDs: model.IDs("nope")},
		},
	})

	tests := []struct {
		id   model.EntityID
		want float64
	}{
		{"inner", 5},    // (6 + 4) / 2
		{"outer", 6.5},  // (8 + 5) / 2
		{"empty", 0},    // no references
		{"dangling", 6}, // unknown ids are not counted
	}
	for _, tt := range tests {
		got, err := f.engine.StateScore(ctx, tt.id)
		require.NoError(t, err)
		assert.InDelta(t, tt.want, got, 1e-9, "state %s", tt.id)
	}
}

func TestScore_StateCycleRevisitScoresZero(t *testing.T) {
	ctx := context.Background()
	f := setupEngine(t, model.Snapshot{
		Innerfaces: []model.Innerface{
			{ID: "a", Name: "A", InitialScore: 6},
			{ID: "b", Name: "B", InitialScore: 4},
		},
		States: []model.State{
			{ID: "A", Name: "State A", InnerfaceIDs: model.IDs("a"), StateIDs: model.IDs("B")},
			{ID: "B", Name: "State B", InnerfaceIDs: model.IDs("b"), StateIDs: model.IDs("A")},
			{ID: "self", Name: "Self", StateIDs: model.IDs("self")},
		},
	})

	// A = (6 + B) / 2, with B = (4 + 0) / 2 = 2 when reached from A
	got, err := f.engine.StateScore(ctx, "A")
	require.NoError(t, err)
	assert.InDelta(t, 4.0, got, 1e-9)

	// B = (4 + A) / 2, with A = (6 + 0) / 2 = 3 when reached from B
	got, err = f.engine.StateScore(ctx, "B")
	require.NoError(t, err)
	assert.InDelta(t, 3.5, got, 1e-9)

	got, err = f.engine.StateScore(ctx, "self")
	require.NoError(t, err)
	assert.Equal(t, 0.0, got)
}

func TestScore_StateDiamondIsNotACycle(t *testing.T) {
	ctx := context.Background()
	f := setupEngine(t, model.Snapshot{
		Innerfaces: []model.Innerface{{ID: "x", Name: "X", InitialScore: 8}},
		States: []model.State{
			{ID: "top", Name: "Top", StateIDs: model.IDs("left", "right")},
			{ID: "left", Name: "Left", StateIDs: model.IDs("bottom")},
			{ID: "right", Name: "Right", StateIDs: model.IDs("bottom")},
			{ID: "bottom", Name: "Bottom", InnerfaceIDs: model.IDs("x")},
		},
	})

	got, err := f.engine.StateScore(ctx, "top")
	require.NoError(t, err)
	assert.InDelta(t, 8.0, got, 1e-9)
}

func TestScore_CacheClearedOnMutation(t *testing.T) {
	ctx := context.Background()
	f := setupEngine(t, model.Snapshot{
		Innerfaces: []model.Innerface{{ID: "a", Name: "A", InitialScore: 5}},
		States:     []model.State{{ID: "s", Name: "S", InnerfaceIDs: model.IDs("a")}},
	})

	before, err := f.engine.StateScore(ctx, "s")
	require.NoError(t, err)
	assert.InDelta(t, 5.0, before, 1e-9)

	_, err = f.engine.AppendJournalEntry(ctx, entry("x", 0, map[model.EntityID]float64{"a": 1}))
	require.NoError(t, err)

	after, err := f.engine.StateScore(ctx, "s")
	require.NoError(t, err)
	assert.InDelta(t, 6.0, after, 1e-9)

	_, err = f.engine.MutateCatalogRow(ctx, model.KindInnerfaces, "a", map[string]any{"initialScore": 1})
	require.NoError(t, err)

	after, err = f.engine.StateScore(ctx, "s")
	require.NoError(t, err)
	assert.InDelta(t, 2.0, after, 1e-9)

	_, err = f.engine.DeleteJournalEntry(ctx, "x")
	require.NoError(t, err)

	after, err = f.engine.InnerfaceScore(ctx, "a")
	require.NoError(t, err)
	assert.InDelta(t, 1.0, after, 1e-9)
}

func TestScore_OrphanedHistoryIgnored(t *testing.T) {
	ctx := context.Background()
	f := setupEngine(t, model.Snapshot{
		Innerfaces: []model.Innerface{{ID: "a", Name: "A", InitialScore: 5}},
		Journal: []model.JournalEntry{
			entry("1", 0, map[model.EntityID]float64{"a": 1, "deleted": 3}),
		},
	})

	got, err := f.engine.InnerfaceScore(ctx, "a")
	require.NoError(t, err)
	assert.InDelta(t, 6.0, got, 1e-9)
}

func jsonSize(t *testing.T, v any) int {
	t.Helper()
	raw, err := json.Marshal(v)
	require.NoError(t, err)
	return len(raw)
}

func TestScore_FollowsJournalCompactedByCatalogWrite(t *testing.T) {
	ctx := context.Background()
	innerfaces := []model.Innerface{{ID: "a", Name: "A"}}
	journal := make([]model.JournalEntry, 1200)
	for i := range journal {
		journal[i] = entry(fmt.Sprintf("e-%04d", i), time.Duration(i)*time.Second, map[model.EntityID]float64{"a": 0.001})
	}
	quota := jsonSize(t, innerfaces) + jsonSize(t, journal) + 16
	freed := jsonSize(t, journal) - jsonSize(t, journal[200:])

	s := store.Open(store.NewMemoryBackend(quota), "alice")
	require.NoError(t, store.SaveSnapshot(ctx, s, model.Snapshot{Innerfaces: innerfaces, Journal: journal}))
	e := New(s, &testutil.RecordingQueue{})

	before, err := e.InnerfaceScore(ctx, "a")
	require.NoError(t, err)
	assert.InDelta(t, 1.2, before, 1e-9)

	// Only fits once the journal is truncated to the newest 1000 entries.
	big := model.Protocol{ID: "p", Name: strings.Repeat("x", freed/2), Weight: 1, Targets: model.IDs("a")}
	require.NoError(t, e.UpsertCatalogRow(ctx, model.KindProtocols, big))
	require.Equal(t, uint64(1), s.Compactions())

	after, err := e.InnerfaceScore(ctx, "a")
	require.NoError(t, err)
	assert.InDelta(t, 1.0, after, 1e-9)

	got, err := e.Journal(ctx)
	require.NoError(t, err)
	require.Len(t, got, store.DefaultJournalKeep)
	assert.Equal(t, "e-0200", got[0].ID)

	// A later rewrite starts from the compacted journal.
	_, err = e.DeleteJournalEntry(ctx, "e-1199")
	require.NoError(t, err)
	stored, err := store.GetOr(ctx, s.ForUser("alice"), store.KeyJournal, []model.JournalEntry(nil))
	require.NoError(t, err)
	assert.Len(t, stored, store.DefaultJournalKeep-1)
}

func TestScore_CacheClearedBySetOrder(t *testing.T) {
	ctx := context.Background()
	f := setupEngine(t, model.Snapshot{
		Innerfaces: []model.Innerface{{ID: "a", Name: "A", InitialScore: 5}},
	})

	_, err := f.engine.InnerfaceScore(ctx, "a")
	require.NoError(t, err)
	require.NotEmpty(t, f.engine.scores)

	require.NoError(t, f.engine.SetOrder(ctx, model.KindInnerfaces, model.IDs("a")))
	assert.Empty(t, f.engine.scores)
}
