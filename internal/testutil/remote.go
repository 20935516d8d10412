package testutil

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/roach88/habitsync/internal/model"
	"github.com/roach88/habitsync/internal/remote"
)

// FlakyRemote wraps a remote.Client and fails calls on demand.
//
// Every call is recorded by operation name. BeforeCall, if set, runs
// before each call outside the lock, which lets a test hold a delivery
// in flight.
//
// Thread-safety: FlakyRemote is safe for concurrent use via internal mutex.
type FlakyRemote struct {
	Client     remote.Client
	BeforeCall func(op string)

	mu       sync.Mutex
	calls    []string
	failNext int // -1 fails every call
	err      error
}

// NewFlakyRemote wraps c. It starts healthy.
func NewFlakyRemote(c remote.Client) *FlakyRemote {
	return &FlakyRemote{Client: c}
}

// FailNext makes the next n calls return err.
func (f *FlakyRemote) FailNext(n int, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failNext = n
	f.err = err
}

// FailAlways makes every call return err until Heal.
func (f *FlakyRemote) FailAlways(err error) {
	f.FailNext(-1, err)
}

// Heal stops injecting failures.
func (f *FlakyRemote) Heal() {
	f.FailNext(0, nil)
}

// Calls returns the operation names seen so far, in order.
func (f *FlakyRemote) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.calls))
	copy(out, f.calls)
	return out
}

func (f *FlakyRemote) enter(op string) error {
	if f.BeforeCall != nil {
		f.BeforeCall(op)
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls = append(f.calls, op)
	switch {
	case f.failNext < 0:
		return f.err
	case f.failNext > 0:
		f.failNext--
		return f.err
	}
	return nil
}

// FetchSnapshot implements remote.Client.
func (f *FlakyRemote) FetchSnapshot(ctx context.Context) (model.Snapshot, error) {
	if err := f.enter("FetchSnapshot"); err != nil {
		return model.Snapshot{}, err
	}
	return f.Client.FetchSnapshot(ctx)
}

// PushSnapshot implements remote.Client.
func (f *FlakyRemote) PushSnapshot(ctx context.Context, snap model.Snapshot) error {
	if err := f.enter("PushSnapshot"); err != nil {
		return err
	}
	return f.Client.PushSnapshot(ctx, snap)
}

// AppendJournalEntry implements remote.Client.
func (f *FlakyRemote) AppendJournalEntry(ctx context.Context, entry model.JournalEntry) error {
	if err := f.enter("AppendJournalEntry"); err != nil {
		return err
	}
	return f.Client.AppendJournalEntry(ctx, entry)
}

// DeleteJournalEntry implements remote.Client.
func (f *FlakyRemote) DeleteJournalEntry(ctx context.Context, id string) error {
	if err := f.enter("DeleteJournalEntry"); err != nil {
		return err
	}
	return f.Client.DeleteJournalEntry(ctx, id)
}

// UpsertCatalogRow implements remote.Client.
func (f *FlakyRemote) UpsertCatalogRow(ctx context.Context, kind model.Kind, row json.RawMessage) error {
	if err := f.enter("UpsertCatalogRow"); err != nil {
		return err
	}
	return f.Client.UpsertCatalogRow(ctx, kind, row)
}

// DeleteCatalogRow implements remote.Client.
func (f *FlakyRemote) DeleteCatalogRow(ctx context.Context, kind model.Kind, id model.EntityID) error {
	if err := f.enter("DeleteCatalogRow"); err != nil {
		return err
	}
	return f.Client.DeleteCatalogRow(ctx, kind, id)
}
