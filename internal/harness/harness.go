package harness

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/roach88/habitsync/internal/engine"
	"github.com/roach88/habitsync/internal/model"
	"github.com/roach88/habitsync/internal/store"
	"github.com/roach88/habitsync/internal/testutil"
)

// Epoch is the fake clock's first reading. Each engine write advances the
// clock by one second.
var Epoch = time.Date(2026, 1, 1, 8, 0, 0, 0, time.UTC)

// Harness is the test execution engine.
// It runs scenarios with a deterministic clock and entry ids.
type Harness struct {
	store  *store.Store
	engine *engine.Engine
	queue  *testutil.RecordingQueue
	logger *slog.Logger
}

// Run executes a test scenario and returns the result.
//
// Each scenario runs against a fresh in-memory store.
//
// Execution flow:
// 1. Seed the store with the scenario snapshot
// 2. Execute flow steps with expect validation
// 3. Evaluate assertions against the trace and final engine state
func Run(scenario *Scenario) (*Result, error) {
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil)) // Suppress logs in tests

	seed, err := decodeSeed(scenario.Seed)
	if err != nil {
		return nil, err
	}
	st := store.Open(store.NewMemoryBackend(0), "harness", store.WithLogger(logger))
	defer st.Close()
	if err := store.SaveSnapshot(ctx, st, seed); err != nil {
		return nil, fmt.Errorf("failed to seed store: %w", err)
	}

	queue := &testutil.RecordingQueue{}
	h := &Harness{
		store: st,
		engine: engine.New(st, queue,
			engine.WithClock(testutil.NewFakeClock(Epoch, time.Second)),
			engine.WithIDGenerator(testutil.NewSequenceIDGenerator("e")),
			engine.WithLogger(logger),
		),
		queue:  queue,
		logger: logger,
	}

	result := NewResult()
	if err := h.executeFlow(ctx, scenario.Flow, result); err != nil {
		return nil, fmt.Errorf("failed to execute flow: %w", err)
	}
	result.Queued = queue.Kinds()

	actx := &AssertionContext{Ctx: ctx, Engine: h.engine}
	for _, errMsg := range EvaluateAssertions(result, scenario.Assertions, actx) {
		result.AddError(errMsg)
	}
	return result, nil
}

// decodeSeed converts the YAML seed into a snapshot via its JSON layout.
func decodeSeed(seed map[string]any) (model.Snapshot, error) {
	if len(seed) == 0 {
		return model.EmptySnapshot(), nil
	}
	raw, err := json.Marshal(seed)
	if err != nil {
		return model.Snapshot{}, fmt.Errorf("failed to encode seed: %w", err)
	}
	var snap model.Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return model.Snapshot{}, fmt.Errorf("failed to decode seed: %w", err)
	}
	return snap, nil
}

// executeFlow runs all flow steps and validates expect clauses.
//
// A step whose outcome differs from its expect clause (or that fails
// without one) is reported in the result, not returned as an error.
// Errors are reserved for harness failures such as unreadable scores.
func (h *Harness) executeFlow(ctx context.Context, flow []FlowStep, result *Result) error {
	for i, step := range flow {
		entryID, err := h.execute(ctx, step)
		outcome := classify(err)

		want := OutcomeOK
		if step.Expect != nil {
			want = step.Expect.Outcome
		}
		if outcome != want {
			msg := fmt.Sprintf("flow step %d (%s): expected outcome %s, got %s", i, step.Invoke, want, outcome)
			if err != nil && !errors.Is(err, errNoop) {
				msg += fmt.Sprintf(": %v", err)
			}
			result.AddError(msg)
		}

		scores, err := h.scores(ctx)
		if err != nil {
			return fmt.Errorf("flow step %d: %w", i, err)
		}
		result.AddStep(TraceEvent{
			Step:    i,
			Action:  step.Invoke,
			Args:    step.Args,
			Outcome: outcome,
			EntryID: entryID,
			Scores:  scores,
		})

		h.logger.Info("flow step completed",
			"step", i,
			"action", step.Invoke,
			"outcome", outcome,
			"entry_id", entryID,
		)
	}
	return nil
}

// errNoop marks an operation that succeeded without changing anything.
var errNoop = errors.New("no change")

// execute runs one step. It returns the id of the journal entry written,
// if any.
func (h *Harness) execute(ctx context.Context, step FlowStep) (string, error) {
	a := args(step.Args)
	switch step.Invoke {
	case OpCheckIn:
		direction, err := a.intOr("direction", 1)
		if err != nil {
			return "", err
		}
		entry, err := h.engine.CheckIn(ctx, a.id("protocol"), direction)
		return entry.ID, err

	case OpQuickAction:
		entry, err := h.engine.RunQuickAction(ctx, a.id("action"))
		return entry.ID, err

	case OpManualEdit:
		delta, err := a.float("delta")
		if err != nil {
			return "", err
		}
		entry, err := h.engine.ManualEdit(ctx, a.id("innerface"), delta, a.str("note"))
		return entry.ID, err

	case OpDeleteEntry:
		removed, err := h.engine.DeleteJournalEntry(ctx, a.str("id"))
		return "", noopUnless(removed, err)

	case OpMutate:
		fields, _ := step.Args["fields"].(map[string]any)
		changed, err := h.engine.MutateCatalogRow(ctx, model.Kind(a.str("kind")), a.id("id"), fields)
		return "", noopUnless(changed, err)

	case OpDeleteRow:
		removed, err := h.engine.DeleteCatalogRow(ctx, model.Kind(a.str("kind")), a.id("id"))
		return "", noopUnless(removed, err)

	case OpSetOrder:
		order, err := a.ids("order")
		if err != nil {
			return "", err
		}
		return "", h.engine.SetOrder(ctx, model.Kind(a.str("kind")), order)

	case OpClearAll:
		return "", h.engine.ClearAll(ctx)
	}
	return "", fmt.Errorf("unknown operation %q", step.Invoke)
}

func noopUnless(changed bool, err error) error {
	if err == nil && !changed {
		return errNoop
	}
	return err
}

// classify maps an engine error to a trace outcome.
func classify(err error) string {
	switch {
	case err == nil:
		return OutcomeOK
	case errors.Is(err, errNoop):
		return OutcomeNoop
	case errors.Is(err, engine.ErrUnknownEntity):
		return OutcomeUnknownEntity
	case model.IsValidationError(err), errors.Is(err, errBadArg):
		return OutcomeInvalid
	case engine.IsKindError(err):
		return OutcomeUnsupportedKind
	default:
		return OutcomeError
	}
}

// scores reads every innerface and state score, keyed "<kind>/<id>".
func (h *Harness) scores(ctx context.Context) (map[string]float64, error) {
	out := map[string]float64{}

	innerfaces, err := h.engine.Innerfaces(ctx)
	if err != nil {
		return nil, fmt.Errorf("read innerfaces: %w", err)
	}
	for _, i := range innerfaces {
		s, err := h.engine.InnerfaceScore(ctx, i.ID)
		if err != nil {
			return nil, err
		}
		out[scoreKey(model.KindInnerfaces, i.ID)] = s
	}

	states, err := h.engine.States(ctx)
	if err != nil {
		return nil, fmt.Errorf("read states: %w", err)
	}
	for _, st := range states {
		s, err := h.engine.StateScore(ctx, st.ID)
		if err != nil {
			return nil, err
		}
		out[scoreKey(model.KindStates, st.ID)] = s
	}
	return out, nil
}

func scoreKey(kind model.Kind, id model.EntityID) string {
	return string(kind) + "/" + string(id)
}
