package engine

import (
	"context"

	"github.com/roach88/habitsync/internal/model"
)

type scoreKey struct {
	kind model.Kind
	id   model.EntityID
}

// Score returns the derived score of an innerface or state.
//
// Innerface: clamp(initialScore + sum of every journal delta for the id).
// State: mean of its known innerfaces' and nested states' scores; a state
// with no known references scores 0. A state reached again while already
// on the recursion path contributes 0.
//
// Returns ErrUnknownEntity if the id is not in the catalog.
func (e *Engine) Score(ctx context.Context, kind model.Kind, id model.EntityID) (float64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.syncCompactionLocked()
	key := scoreKey{kind: kind, id: id}
	if v, ok := e.scores[key]; ok {
		return v, nil
	}

	var (
		v     float64
		found bool
		err   error
	)
	switch kind {
	case model.KindInnerfaces:
		v, found, err = e.innerfaceScoreLocked(ctx, id)
	case model.KindStates:
		v, found, err = e.stateScoreLocked(ctx, id, newStatePath())
	default:
		return 0, &KindError{Op: "score", Kind: kind}
	}
	if err != nil {
		return 0, err
	}
	if !found {
		return 0, unknownEntity(kind, id)
	}

	e.scores[key] = v
	return v, nil
}

// InnerfaceScore is Score for an innerface.
func (e *Engine) InnerfaceScore(ctx context.Context, id model.EntityID) (float64, error) {
	return e.Score(ctx, model.KindInnerfaces, id)
}

// StateScore is Score for a state.
func (e *Engine) StateScore(ctx context.Context, id model.EntityID) (float64, error) {
	return e.Score(ctx, model.KindStates, id)
}

// innerfaceScoreLocked is path independent, so its results are cached
// even when computed as part of a state.
func (e *Engine) innerfaceScoreLocked(ctx context.Context, id model.EntityID) (float64, bool, error) {
	key := scoreKey{kind: model.KindInnerfaces, id: id}
	if v, ok := e.scores[key]; ok {
		return v, true, nil
	}

	c, err := e.catalogLocked(ctx, model.KindInnerfaces)
	if err != nil {
		return 0, false, err
	}
	row, ok := c.byID[id]
	if !ok {
		return 0, false, nil
	}
	totals, err := e.totalsLocked(ctx)
	if err != nil {
		return 0, false, err
	}

	v := clamp(row.(model.Innerface).InitialScore+totals[id], e.minScore, e.maxScore)
	e.scores[key] = v
	return v, true, nil
}

// stateScoreLocked results depend on the path they were reached by, so
// only top-level results are cached (by Score).
func (e *Engine) stateScoreLocked(ctx context.Context, id model.EntityID, path *statePath) (float64, bool, error) {
	c, err := e.catalogLocked(ctx, model.KindStates)
	if err != nil {
		return 0, false, err
	}
	row, ok := c.byID[id]
	if !ok {
		return 0, false, nil
	}
	if !path.Enter(id) {
		e.logger.Debug("state cycle, revisit scores 0", "state", id, "depth", path.Depth())
		return 0, true, nil
	}
	defer path.Leave(id)

	st := row.(model.State)
	var (
		sum float64
		n   int
	)
	for _, ref := range st.InnerfaceIDs {
		v, found, err := e.innerfaceScoreLocked(ctx, ref)
		if err != nil {
			return 0, false, err
		}
		if found {
			sum += v
			n++
		}
	}
	for _, ref := range st.StateIDs {
		v, found, err := e.stateScoreLocked(ctx, ref, path)
		if err != nil {
			return 0, false, err
		}
		if found {
			sum += v
			n++
		}
	}
	if n == 0 {
		return 0, true, nil
	}
	return sum / float64(n), true, nil
}

// totalsLocked sums every journal delta per target.
func (e *Engine) totalsLocked(ctx context.Context) (map[model.EntityID]float64, error) {
	if e.totals != nil {
		return e.totals, nil
	}
	journal, err := e.journalLocked(ctx)
	if err != nil {
		return nil, err
	}
	totals := make(map[model.EntityID]float64)
	for _, entry := range journal {
		for target, delta := range entry.Changes {
			totals[target] += delta
		}
	}
	e.totals = totals
	return totals, nil
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
