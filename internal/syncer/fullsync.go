package syncer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/roach88/habitsync/internal/model"
	"github.com/roach88/habitsync/internal/store"
)

// SnapshotApplier persists the result of merging the remote snapshot into
// the local one. ApplyRemote must load, merge and save atomically with
// respect to other local writers.
//
// Implemented by engine.Engine.
type SnapshotApplier interface {
	ApplyRemote(ctx context.Context, merge func(local model.Snapshot) model.Snapshot) (model.Snapshot, error)
}

// SnapshotApplierFunc adapts a function to SnapshotApplier.
type SnapshotApplierFunc func(ctx context.Context, merge func(local model.Snapshot) model.Snapshot) (model.Snapshot, error)

// ApplyRemote calls f.
func (f SnapshotApplierFunc) ApplyRemote(ctx context.Context, merge func(local model.Snapshot) model.Snapshot) (model.Snapshot, error) {
	return f(ctx, merge)
}

// storeApplier writes straight to the store. Only safe when nothing else
// writes the user's data keys.
type storeApplier struct {
	store *store.Store
}

func (a storeApplier) ApplyRemote(ctx context.Context, merge func(local model.Snapshot) model.Snapshot) (model.Snapshot, error) {
	local, err := store.LoadSnapshot(ctx, a.store)
	if err != nil {
		return model.Snapshot{}, err
	}
	merged := merge(local)
	if err := store.SaveSnapshot(ctx, a.store, merged); err != nil {
		return model.Snapshot{}, err
	}
	return merged, nil
}

// SyncResult summarizes a completed full sync.
type SyncResult struct {
	Drain          DrainResult
	JournalEntries int
	At             time.Time
}

// FullSync drains the queue, fetches the remote snapshot, merges it with
// the local one, persists the merge and records the sync time. A second
// call while one is running returns ErrSyncInProgress.
func (s *Syncer) FullSync(ctx context.Context) (SyncResult, error) {
	if !s.full.TryAcquire(1) {
		s.m.fullSyncs.WithLabelValues(statusInProgress).Inc()
		return SyncResult{}, ErrSyncInProgress
	}
	defer s.full.Release(1)

	if !s.Online() {
		s.m.fullSyncs.WithLabelValues(statusOffline).Inc()
		return SyncResult{}, ErrOffline
	}

	result, err := s.fullSync(ctx)
	if err != nil {
		s.m.fullSyncs.WithLabelValues(statusFailed).Inc()
		s.logger.Warn("full sync failed", "user", s.store.User(), "error", err)
		return result, err
	}
	s.m.fullSyncs.WithLabelValues(statusOK).Inc()
	s.m.lastSync.Set(float64(result.At.Unix()))
	s.logger.Info("full sync complete",
		"user", s.store.User(),
		"delivered", result.Drain.Delivered,
		"journal", result.JournalEntries,
	)
	return result, nil
}

func (s *Syncer) fullSync(ctx context.Context) (SyncResult, error) {
	// Wait for any running drain instead of skipping it; the lock is held
	// until the merge is persisted so no delivery interleaves.
	s.drainMu.Lock()
	defer s.drainMu.Unlock()

	var result SyncResult
	drain, err := s.drainLocked(ctx)
	result.Drain = drain
	if err != nil {
		return result, fmt.Errorf("full sync: drain: %w", err)
	}

	remoteSnap, err := s.remote.FetchSnapshot(ctx)
	if err != nil {
		return result, fmt.Errorf("full sync: fetch: %w", err)
	}
	merged, err := s.applier.ApplyRemote(ctx, func(local model.Snapshot) model.Snapshot {
		return Merge(local, remoteSnap)
	})
	if err != nil {
		return result, fmt.Errorf("full sync: persist: %w", err)
	}

	result.At = s.clock.Now().UTC()
	if err := s.store.Set(ctx, store.KeyLastSyncTimestamp, result.At); err != nil {
		return result, fmt.Errorf("full sync: record timestamp: %w", err)
	}
	result.JournalEntries = len(merged.Journal)

	if s.onSnapshotApplied != nil {
		s.onSnapshotApplied(merged)
	}
	return result, nil
}

// LastSync returns the time of the last successful full sync.
func (s *Syncer) LastSync(ctx context.Context) (time.Time, bool, error) {
	var at time.Time
	found, err := s.store.Get(ctx, store.KeyLastSyncTimestamp, &at)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("last sync: %w", err)
	}
	return at, found, nil
}

type periodicRun struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// StartPeriodicSync runs FullSync every interval until StopPeriodicSync or
// ctx is done. A non-positive interval uses the configured SyncInterval.
// Ticks while offline are skipped. Starting again replaces the running
// schedule.
func (s *Syncer) StartPeriodicSync(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = s.syncInterval
	}
	s.StopPeriodicSync()

	ctx, cancel := context.WithCancel(ctx)
	run := &periodicRun{cancel: cancel, done: make(chan struct{})}

	s.periodicMu.Lock()
	s.periodic = run
	s.periodicMu.Unlock()

	go func() {
		defer close(run.done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if !s.Online() {
					s.logger.Debug("periodic sync skipped while offline")
					continue
				}
				if _, err := s.FullSync(ctx); err != nil && !errors.Is(err, ErrSyncInProgress) {
					s.logger.Debug("periodic sync attempt failed", "error", err)
				}
			}
		}
	}()
	s.logger.Debug("periodic sync started", "interval", interval)
}

// StopPeriodicSync stops the periodic schedule and waits for an in-flight
// tick to finish. It is a no-op when nothing is scheduled.
func (s *Syncer) StopPeriodicSync() {
	s.periodicMu.Lock()
	run := s.periodic
	s.periodic = nil
	s.periodicMu.Unlock()

	if run == nil {
		return
	}
	run.cancel()
	<-run.done
}
