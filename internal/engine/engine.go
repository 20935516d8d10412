package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/roach88/habitsync/internal/model"
	"github.com/roach88/habitsync/internal/store"
)

// ChangeQueue accepts the sync change produced by every mutation.
// Implemented by syncer.Syncer. QueueChange must persist the change before
// returning.
type ChangeQueue interface {
	QueueChange(ctx context.Context, kind model.ChangeKind, payload any) error
}

// Engine folds catalogs and the journal into ordered collections and
// derived scores.
//
// Thread-safety: all methods are safe for concurrent use via internal
// mutex. A single Engine is expected to be the only writer for its user.
type Engine struct {
	store  *store.Store
	queue  ChangeQueue
	clock  Clock
	ids    IDGenerator
	logger *slog.Logger

	minScore float64
	maxScore float64

	mu         sync.Mutex
	catalogs   map[model.Kind]*catalog
	journal    []model.JournalEntry // nil until loaded
	totals     map[model.EntityID]float64
	scores     map[scoreKey]float64
	compactGen uint64 // store.Compactions() the caches reflect
}

// catalog is the parsed form of one kind's rows.
type catalog struct {
	rows []model.Row
	byID map[model.EntityID]model.Row // first row wins on duplicate ids
}

// Option allows configuration of engine parameters.
type Option func(*Engine)

// WithClock sets the timestamp source for journal entries.
func WithClock(c Clock) Option {
	return func(e *Engine) {
		e.clock = c
	}
}

// WithIDGenerator sets the journal entry id source.
func WithIDGenerator(g IDGenerator) Option {
	return func(e *Engine) {
		e.ids = g
	}
}

// WithScoreBounds sets the clamp applied to innerface scores.
//
// Default: [0, 10] (model.MinScore, model.MaxScore)
func WithScoreBounds(lo, hi float64) Option {
	return func(e *Engine) {
		e.minScore = lo
		e.maxScore = hi
	}
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = l
	}
}

// New creates an Engine reading and writing through s and handing every
// mutation to q.
func New(s *store.Store, q ChangeQueue, opts ...Option) *Engine {
	e := &Engine{
		store:    s,
		queue:    q,
		clock:    SystemClock{},
		ids:      UUIDv7Generator{},
		logger:   slog.Default(),
		minScore: model.MinScore,
		maxScore: model.MaxScore,
		catalogs: make(map[model.Kind]*catalog),
		scores:   make(map[scoreKey]float64),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Invalidate drops every cached catalog, the parsed journal and all
// scores. Call it after the store was written outside the engine.
func (e *Engine) Invalidate() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.catalogs = make(map[model.Kind]*catalog)
	e.invalidateJournalLocked()
}

// invalidateKindLocked drops one catalog and every score.
func (e *Engine) invalidateKindLocked(kind model.Kind) {
	delete(e.catalogs, kind)
	e.scores = make(map[scoreKey]float64)
}

// invalidateJournalLocked drops the parsed journal, the per-target totals
// and every score.
func (e *Engine) invalidateJournalLocked() {
	e.journal = nil
	e.totals = nil
	e.scores = make(map[scoreKey]float64)
}

// syncCompactionLocked drops the journal caches if the store compacted
// the journal since they were built. Any write can compact, including the
// sync queue's.
func (e *Engine) syncCompactionLocked() {
	if gen := e.store.Compactions(); gen != e.compactGen {
		e.compactGen = gen
		e.invalidateJournalLocked()
	}
}

// catalogLocked returns the parsed catalog for kind, loading it on a miss.
func (e *Engine) catalogLocked(ctx context.Context, kind model.Kind) (*catalog, error) {
	if c, ok := e.catalogs[kind]; ok {
		return c, nil
	}

	var (
		rows []model.Row
		err  error
	)
	switch kind {
	case model.KindProtocols:
		rows, err = loadRows[model.Protocol](ctx, e.store, kind)
	case model.KindInnerfaces:
		rows, err = loadRows[model.Innerface](ctx, e.store, kind)
	case model.KindStates:
		rows, err = loadRows[model.State](ctx, e.store, kind)
	case model.KindQuickActions:
		rows, err = loadRows[model.QuickAction](ctx, e.store, kind)
	default:
		return nil, &KindError{Op: "load catalog", Kind: kind}
	}
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", kind, err)
	}

	c := &catalog{rows: rows, byID: make(map[model.EntityID]model.Row, len(rows))}
	for _, r := range rows {
		if _, dup := c.byID[r.RowID()]; !dup {
			c.byID[r.RowID()] = r
		}
	}
	e.catalogs[kind] = c
	return c, nil
}

func loadRows[T model.Row](ctx context.Context, s *store.Store, kind model.Kind) ([]model.Row, error) {
	items, err := store.GetOr(ctx, s, kind.CatalogKey(), []T(nil))
	if err != nil {
		return nil, err
	}
	rows := make([]model.Row, len(items))
	for i := range items {
		rows[i] = items[i]
	}
	return rows, nil
}

// journalLocked returns the parsed journal, loading it on a miss.
func (e *Engine) journalLocked(ctx context.Context) ([]model.JournalEntry, error) {
	e.syncCompactionLocked()
	if e.journal != nil {
		return e.journal, nil
	}
	journal, err := store.GetOr(ctx, e.store, store.KeyJournal, []model.JournalEntry{})
	if err != nil {
		return nil, fmt.Errorf("load journal: %w", err)
	}
	if journal == nil {
		journal = []model.JournalEntry{}
	}
	e.journal = journal
	return journal, nil
}

// queueChange hands a change to the sync queue. The local write has
// already been persisted when this runs.
func (e *Engine) queueChange(ctx context.Context, kind model.ChangeKind, payload any) error {
	if err := e.queue.QueueChange(ctx, kind, payload); err != nil {
		e.logger.Error("queue change failed after local write",
			"kind", kind,
			"error", err,
		)
		return fmt.Errorf("queue %s: %w", kind, err)
	}
	return nil
}
