package testutil

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/roach88/habitsync/internal/model"
)

// QueuedChange is one change captured by RecordingQueue.
type QueuedChange struct {
	Kind    model.ChangeKind
	Payload json.RawMessage
}

// RecordingQueue captures queued changes in memory.
//
// Implements engine.ChangeQueue interface. Set Err to make every
// QueueChange call fail.
//
// Thread-safety: RecordingQueue is safe for concurrent use via internal mutex.
type RecordingQueue struct {
	mu      sync.Mutex
	changes []QueuedChange
	Err     error
}

// QueueChange records the change, or returns Err if set.
func (q *RecordingQueue) QueueChange(_ context.Context, kind model.ChangeKind, payload any) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.Err != nil {
		return q.Err
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	q.changes = append(q.changes, QueuedChange{Kind: kind, Payload: raw})
	return nil
}

// Changes returns a copy of the captured changes in order.
func (q *RecordingQueue) Changes() []QueuedChange {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]QueuedChange, len(q.changes))
	copy(out, q.changes)
	return out
}

// Kinds returns the kinds of the captured changes in order.
func (q *RecordingQueue) Kinds() []model.ChangeKind {
	q.mu.Lock()
	defer q.mu.Unlock()
	kinds := make([]model.ChangeKind, len(q.changes))
	for i, c := range q.changes {
		kinds[i] = c.Kind
	}
	return kinds
}
