package syncer

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/semaphore"

	"github.com/roach88/habitsync/internal/model"
	"github.com/roach88/habitsync/internal/remote"
	"github.com/roach88/habitsync/internal/store"
)

// Defaults for the retry and periodic sync timing.
const (
	DefaultMaxRetries   = 5
	DefaultRetryDelay   = 2 * time.Second
	DefaultSyncInterval = 60 * time.Second
)

// Clock is the time source for enqueue and sync timestamps.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

// DeadLetter is a change that exhausted its delivery attempts.
type DeadLetter struct {
	Change         model.SyncChange `json:"change"`
	Reason         string           `json:"reason"`
	DeadLetteredAt time.Time        `json:"deadLetteredAt"`
}

// Syncer owns the durable sync queue of one user and delivers it to a
// remote.Client.
//
// Thread-safety: all methods are safe for concurrent use. Queue reads and
// writes are serialized by queueMu; at most one drain runs at a time.
type Syncer struct {
	store  *store.Store
	remote remote.Client
	clock  Clock
	logger *slog.Logger
	m      *metrics

	maxRetries   int
	retryDelay   time.Duration
	syncInterval time.Duration

	applier           SnapshotApplier
	onDeadLetter      func(DeadLetter)
	onSnapshotApplied func(model.Snapshot)

	online  atomic.Bool
	queueMu sync.Mutex // guards the persisted queue and dead-letter list
	drainMu sync.Mutex // held by the single running drain
	full    *semaphore.Weighted
	signal  chan struct{} // buffered, size 1

	periodicMu sync.Mutex
	periodic   *periodicRun
}

// Option allows configuration of syncer parameters.
type Option func(*Syncer)

// WithMaxRetries sets how many failed attempts dead-letter a change.
func WithMaxRetries(n int) Option {
	return func(s *Syncer) {
		if n > 0 {
			s.maxRetries = n
		}
	}
}

// WithRetryDelay sets the fixed pause before re-draining after failures.
func WithRetryDelay(d time.Duration) Option {
	return func(s *Syncer) {
		if d > 0 {
			s.retryDelay = d
		}
	}
}

// WithSyncInterval sets the default periodic full sync interval.
func WithSyncInterval(d time.Duration) Option {
	return func(s *Syncer) {
		if d > 0 {
			s.syncInterval = d
		}
	}
}

// WithClock sets the timestamp source.
func WithClock(c Clock) Option {
	return func(s *Syncer) {
		s.clock = c
	}
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Syncer) {
		s.logger = l
	}
}

// WithRegisterer registers the syncer metrics on reg.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(s *Syncer) {
		s.m = newMetrics(reg)
	}
}

// WithOnDeadLetter sets a callback run after a change is dead-lettered.
func WithOnDeadLetter(fn func(DeadLetter)) Option {
	return func(s *Syncer) {
		s.onDeadLetter = fn
	}
}

// WithSnapshotApplier routes the FullSync merge through a. Pass the Engine
// so the merge is serialized with local mutations and its caches reset.
//
// Default: a store-only applier that holds no engine lock.
func WithSnapshotApplier(a SnapshotApplier) Option {
	return func(s *Syncer) {
		s.applier = a
	}
}

// WithOnSnapshotApplied sets a callback run after FullSync persisted the
// merged snapshot.
func WithOnSnapshotApplied(fn func(model.Snapshot)) Option {
	return func(s *Syncer) {
		s.onSnapshotApplied = fn
	}
}

// WithOnline sets the initial connectivity state. Defaults to online.
func WithOnline(online bool) Option {
	return func(s *Syncer) {
		s.online.Store(online)
	}
}

// New creates a Syncer for the user s is bound to.
func New(s *store.Store, rc remote.Client, opts ...Option) *Syncer {
	sy := &Syncer{
		store:        s,
		remote:       rc,
		clock:        systemClock{},
		logger:       slog.Default(),
		maxRetries:   DefaultMaxRetries,
		retryDelay:   DefaultRetryDelay,
		syncInterval: DefaultSyncInterval,
		full:         semaphore.NewWeighted(1),
		signal:       make(chan struct{}, 1),
	}
	sy.online.Store(true)
	for _, opt := range opts {
		opt(sy)
	}
	if sy.m == nil {
		sy.m = newMetrics(nil)
	}
	if sy.applier == nil {
		sy.applier = storeApplier{s}
	}
	return sy
}

// QueueChange persists a change for delivery and wakes the drain loop when
// online. It returns once the change is durable.
//
// Implements engine.ChangeQueue.
func (s *Syncer) QueueChange(ctx context.Context, kind model.ChangeKind, payload any) error {
	change, err := model.NewSyncChange(kind, payload, s.clock.Now())
	if err != nil {
		return err
	}

	s.queueMu.Lock()
	queue, err := s.loadQueueLocked(ctx)
	if err == nil {
		if n := len(queue); n > 0 && queue[n-1].SameContent(change) {
			s.queueMu.Unlock()
			s.logger.Debug("change already queued", "id", queue[n-1].ID, "kind", kind)
			return nil
		}
		change, err = uniqueID(queue, change)
		if err == nil {
			err = s.saveQueueLocked(ctx, append(queue, change))
		}
	}
	s.queueMu.Unlock()
	if err != nil {
		return fmt.Errorf("queue change %s: %w", kind, err)
	}

	s.logger.Debug("change queued", "id", change.ID, "kind", kind)
	if s.Online() {
		s.notify()
	}
	return nil
}

// uniqueID bumps the ordinal of change until its id is not in queue, so
// an A-B-A sequence at one clock reading queues three records.
func uniqueID(queue []model.SyncChange, change model.SyncChange) (model.SyncChange, error) {
	taken := func(c model.SyncChange) bool { return c.ID == change.ID }
	for n := 1; slices.ContainsFunc(queue, taken); n++ {
		next, err := change.WithOrdinal(n)
		if err != nil {
			return model.SyncChange{}, err
		}
		change = next
	}
	return change, nil
}

// notify wakes the drain loop. Non-blocking; the buffer of 1 coalesces
// repeated signals.
func (s *Syncer) notify() {
	select {
	case s.signal <- struct{}{}:
	default:
	}
}

// SetOnline records a host connectivity signal. Coming online wakes the
// drain loop.
func (s *Syncer) SetOnline(online bool) {
	was := s.online.Swap(online)
	if online && !was {
		s.logger.Info("connectivity restored")
		s.notify()
	} else if !online && was {
		s.logger.Info("connectivity lost")
	}
}

// Online reports the last connectivity signal.
func (s *Syncer) Online() bool {
	return s.online.Load()
}

// Run drains the queue whenever a change is queued or connectivity
// returns, and again RetryDelay after a drain that left failures. It
// blocks until ctx is done.
func (s *Syncer) Run(ctx context.Context) error {
	s.notify()

	var (
		retry  *time.Timer
		retryC <-chan time.Time
	)
	defer func() {
		if retry != nil {
			retry.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.signal:
		case <-retryC:
			retryC = nil
		}

		if !s.Online() {
			continue
		}
		result, err := s.ProcessQueue(ctx)
		if err != nil {
			s.logger.Warn("queue drain failed", "error", err)
		}
		if result.Failed > 0 && retryC == nil {
			if retry == nil {
				retry = time.NewTimer(s.retryDelay)
			} else {
				retry.Reset(s.retryDelay)
			}
			retryC = retry.C
		}
	}
}

// Pending returns the persisted queue in FIFO order.
func (s *Syncer) Pending(ctx context.Context) ([]model.SyncChange, error) {
	s.queueMu.Lock()
	defer s.queueMu.Unlock()
	return s.loadQueueLocked(ctx)
}

// DeadLetters returns every dead-lettered change, oldest first.
func (s *Syncer) DeadLetters(ctx context.Context) ([]DeadLetter, error) {
	s.queueMu.Lock()
	defer s.queueMu.Unlock()
	return store.GetOr(ctx, s.store, store.KeyDeadLetterQueue, []DeadLetter{})
}

// Requeue moves every dead letter back to the end of the queue with its
// attempt count reset. Returns how many changes were moved.
func (s *Syncer) Requeue(ctx context.Context) (int, error) {
	s.queueMu.Lock()
	defer s.queueMu.Unlock()

	dead, err := store.GetOr(ctx, s.store, store.KeyDeadLetterQueue, []DeadLetter{})
	if err != nil || len(dead) == 0 {
		return 0, err
	}
	queue, err := s.loadQueueLocked(ctx)
	if err != nil {
		return 0, err
	}
	for _, d := range dead {
		c, err := uniqueID(queue, d.Change)
		if err != nil {
			return 0, fmt.Errorf("requeue: %w", err)
		}
		c.AttemptCount = 0
		c.LastError = ""
		queue = append(queue, c)
	}
	if err := s.saveQueueLocked(ctx, queue); err != nil {
		return 0, fmt.Errorf("requeue: %w", err)
	}
	if err := s.store.Remove(ctx, store.KeyDeadLetterQueue); err != nil {
		return 0, fmt.Errorf("requeue: %w", err)
	}
	s.logger.Info("dead letters requeued", "count", len(dead))
	if s.Online() {
		s.notify()
	}
	return len(dead), nil
}

func (s *Syncer) loadQueueLocked(ctx context.Context) ([]model.SyncChange, error) {
	queue, err := store.GetOr(ctx, s.store, store.KeyPendingSyncQueue, []model.SyncChange{})
	if err != nil {
		return nil, fmt.Errorf("load sync queue: %w", err)
	}
	return queue, nil
}

func (s *Syncer) saveQueueLocked(ctx context.Context, queue []model.SyncChange) error {
	if err := s.store.Set(ctx, store.KeyPendingSyncQueue, queue); err != nil {
		return fmt.Errorf("save sync queue: %w", err)
	}
	s.m.pending.Set(float64(len(queue)))
	return nil
}
