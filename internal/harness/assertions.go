package harness

import (
	"context"
	"fmt"
	"math"
	"reflect"
	"slices"
	"strings"

	"github.com/roach88/habitsync/internal/engine"
	"github.com/roach88/habitsync/internal/model"
)

// scoreTolerance absorbs float rounding in score assertions.
const scoreTolerance = 1e-9

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for _, event := range e.Trace {
			fmt.Fprintf(&buf, "  [%d] %s %v -> %s\n", event.Step, event.Action, event.Args, event.Outcome)
		}
	}
	return buf.String()
}

// assertTraceContains checks if the trace contains a step matching the
// specified action and args (subset match).
func assertTraceContains(trace []TraceEvent, assertion Assertion) error {
	for _, event := range trace {
		if event.Action == assertion.Action && matchArgs(event.Args, assertion.Args) {
			return nil
		}
	}
	return &AssertionError{
		Type:     AssertTraceContains,
		Expected: fmt.Sprintf("action %s with args %v", assertion.Action, assertion.Args),
		Actual:   "not found in trace",
		Trace:    trace,
	}
}

// assertTraceOrder checks if actions appear in the specified order.
// Actions don't need to be consecutive (intervening actions are allowed).
func assertTraceOrder(trace []TraceEvent, assertion Assertion) error {
	// First position of each expected action, 1-indexed for readability
	positions := make(map[string]int)
	for i, event := range trace {
		if slices.Contains(assertion.Actions, event.Action) && positions[event.Action] == 0 {
			positions[event.Action] = i + 1
		}
	}

	for _, action := range assertion.Actions {
		if positions[action] == 0 {
			return &AssertionError{
				Type:     AssertTraceOrder,
				Expected: fmt.Sprintf("all actions present: %v", assertion.Actions),
				Actual:   fmt.Sprintf("missing action: %s", action),
				Trace:    trace,
			}
		}
	}

	for i := 1; i < len(assertion.Actions); i++ {
		prev := assertion.Actions[i-1]
		curr := assertion.Actions[i]
		if positions[prev] >= positions[curr] {
			return &AssertionError{
				Type:     AssertTraceOrder,
				Expected: fmt.Sprintf("actions in order: %v", assertion.Actions),
				Actual: fmt.Sprintf("%s (pos %d) should be before %s (pos %d)",
					prev, positions[prev], curr, positions[curr]),
				Trace: trace,
			}
		}
	}
	return nil
}

// assertTraceCount checks if the action appears exactly the specified number of times.
func assertTraceCount(trace []TraceEvent, assertion Assertion) error {
	count := 0
	for _, event := range trace {
		if event.Action == assertion.Action {
			count++
		}
	}
	if count != assertion.Count {
		return &AssertionError{
			Type:     AssertTraceCount,
			Expected: fmt.Sprintf("%d occurrences of %s", assertion.Count, assertion.Action),
			Actual:   fmt.Sprintf("%d occurrences", count),
			Trace:    trace,
		}
	}
	return nil
}

// assertScore reads the final score of an innerface or state.
func assertScore(ctx context.Context, eng *engine.Engine, assertion Assertion) error {
	got, err := eng.Score(ctx, assertion.Kind, assertion.ID)
	if err != nil {
		return &AssertionError{
			Type:     AssertScore,
			Expected: fmt.Sprintf("%s %s = %v", assertion.Kind, assertion.ID, assertion.Value),
			Actual:   fmt.Sprintf("score error: %v", err),
		}
	}
	if math.Abs(got-assertion.Value) > scoreTolerance {
		return &AssertionError{
			Type:     AssertScore,
			Expected: fmt.Sprintf("%s %s = %v", assertion.Kind, assertion.ID, assertion.Value),
			Actual:   fmt.Sprintf("%v", got),
		}
	}
	return nil
}

func assertJournalCount(ctx context.Context, eng *engine.Engine, assertion Assertion) error {
	journal, err := eng.Journal(ctx)
	if err != nil {
		return fmt.Errorf("read journal: %w", err)
	}
	if len(journal) != assertion.Count {
		return &AssertionError{
			Type:     AssertJournalCount,
			Expected: fmt.Sprintf("%d journal entries", assertion.Count),
			Actual:   fmt.Sprintf("%d journal entries", len(journal)),
		}
	}
	return nil
}

func assertQueued(queued []model.ChangeKind, assertion Assertion) error {
	want := assertion.Kinds
	if want == nil {
		want = []model.ChangeKind{}
	}
	got := queued
	if got == nil {
		got = []model.ChangeKind{}
	}
	if !slices.Equal(want, got) {
		return &AssertionError{
			Type:     AssertQueued,
			Expected: fmt.Sprintf("queued %v", want),
			Actual:   fmt.Sprintf("queued %v", got),
		}
	}
	return nil
}

// matchArgs checks if actual args contain all expected args (subset match).
// Extra keys in actual are ignored.
func matchArgs(actual, expected map[string]any) bool {
	for key, expectedVal := range expected {
		actualVal, exists := actual[key]
		if !exists {
			return false
		}
		if !valuesEqual(actualVal, expectedVal) {
			return false
		}
	}
	return true
}

// valuesEqual compares two YAML-parsed values. Numbers compare by value so
// 1 and 1.0 match.
func valuesEqual(actual, expected any) bool {
	a, aNum := number(actual)
	e, eNum := number(expected)
	if aNum && eNum {
		return a == e
	}
	return reflect.DeepEqual(actual, expected)
}

func number(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

// AssertionContext provides context for evaluating assertions.
type AssertionContext struct {
	Ctx    context.Context
	Engine *engine.Engine
}

// EvaluateAssertions evaluates all assertions against the result.
// Returns a slice of error messages for failed assertions.
// The actx parameter provides engine access for state assertions.
func EvaluateAssertions(result *Result, assertions []Assertion, actx *AssertionContext) []string {
	var errors []string

	for i, assertion := range assertions {
		var err error

		switch assertion.Type {
		case AssertTraceContains:
			err = assertTraceContains(result.Trace, assertion)
		case AssertTraceOrder:
			err = assertTraceOrder(result.Trace, assertion)
		case AssertTraceCount:
			err = assertTraceCount(result.Trace, assertion)
		case AssertQueued:
			err = assertQueued(result.Queued, assertion)
		case AssertScore, AssertJournalCount:
			if actx == nil || actx.Engine == nil {
				err = fmt.Errorf("assertion[%d]: %s requires engine context", i, assertion.Type)
			} else if assertion.Type == AssertScore {
				err = assertScore(actx.Ctx, actx.Engine, assertion)
			} else {
				err = assertJournalCount(actx.Ctx, actx.Engine, assertion)
			}
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, assertion.Type)
		}

		if err != nil {
			errors = append(errors, err.Error())
		}
	}
	return errors
}
