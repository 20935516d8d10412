package syncer

import (
	"context"
	"fmt"
	"slices"

	"github.com/roach88/habitsync/internal/model"
	"github.com/roach88/habitsync/internal/store"
)

// DrainResult summarizes one drain.
type DrainResult struct {
	Delivered    int
	Failed       int
	DeadLettered int
	// Skipped is set when another drain was already running.
	Skipped bool
}

// ProcessQueue delivers pending changes in FIFO order. A call made while
// another drain is running returns immediately with Skipped set; the
// running drain picks up anything queued meanwhile.
func (s *Syncer) ProcessQueue(ctx context.Context) (DrainResult, error) {
	if !s.drainMu.TryLock() {
		return DrainResult{Skipped: true}, nil
	}
	defer s.drainMu.Unlock()

	if !s.Online() {
		return DrainResult{}, ErrOffline
	}
	return s.drainLocked(ctx)
}

// drainLocked tries every record at most once. It re-reads the persisted
// queue after each delivery and stops when no untried record remains.
func (s *Syncer) drainLocked(ctx context.Context) (DrainResult, error) {
	var result DrainResult
	tried := make(map[string]bool)

	for {
		change, ok, err := s.nextUntried(ctx, tried)
		if err != nil {
			return result, err
		}
		if !ok {
			break
		}
		tried[change.ID] = true

		if change.AttemptCount >= s.maxRetries {
			if err := s.deadLetter(ctx, change, "retry ceiling reached before delivery"); err != nil {
				return result, err
			}
			result.DeadLettered++
			continue
		}

		deliverErr := s.deliver(ctx, change)
		if deliverErr == nil {
			if err := s.acknowledge(ctx, change); err != nil {
				return result, err
			}
			result.Delivered++
			s.m.delivered.Inc()
			s.logger.Debug("change delivered", "id", change.ID, "kind", change.Kind)
			continue
		}

		change.AttemptCount++
		change.LastError = deliverErr.Error()
		if isPermanent(deliverErr) || change.AttemptCount >= s.maxRetries {
			if err := s.deadLetter(ctx, change, deliverErr.Error()); err != nil {
				return result, err
			}
			result.DeadLettered++
			continue
		}
		if err := s.recordFailure(ctx, change); err != nil {
			return result, err
		}
		result.Failed++
		s.m.failed.Inc()
		s.logger.Warn("change delivery failed",
			"id", change.ID,
			"kind", change.Kind,
			"attempt", change.AttemptCount,
			"error", deliverErr,
		)
	}

	if result.Delivered+result.Failed+result.DeadLettered > 0 {
		s.logger.Info("sync queue drained",
			"delivered", result.Delivered,
			"failed", result.Failed,
			"dead_lettered", result.DeadLettered,
		)
	}
	return result, nil
}

func (s *Syncer) nextUntried(ctx context.Context, tried map[string]bool) (model.SyncChange, bool, error) {
	s.queueMu.Lock()
	defer s.queueMu.Unlock()

	queue, err := s.loadQueueLocked(ctx)
	if err != nil {
		return model.SyncChange{}, false, err
	}
	for _, c := range queue {
		if !tried[c.ID] {
			return c, true, nil
		}
	}
	return model.SyncChange{}, false, nil
}

// acknowledge removes a delivered change from the queue.
func (s *Syncer) acknowledge(ctx context.Context, change model.SyncChange) error {
	s.queueMu.Lock()
	defer s.queueMu.Unlock()

	queue, err := s.loadQueueLocked(ctx)
	if err != nil {
		return err
	}
	queue = slices.DeleteFunc(queue, func(c model.SyncChange) bool { return c.ID == change.ID })
	return s.saveQueueLocked(ctx, queue)
}

// recordFailure writes back the bumped attempt count, keeping the
// record's queue position.
func (s *Syncer) recordFailure(ctx context.Context, change model.SyncChange) error {
	s.queueMu.Lock()
	defer s.queueMu.Unlock()

	queue, err := s.loadQueueLocked(ctx)
	if err != nil {
		return err
	}
	idx := slices.IndexFunc(queue, func(c model.SyncChange) bool { return c.ID == change.ID })
	if idx < 0 {
		return nil
	}
	queue[idx] = change
	return s.saveQueueLocked(ctx, queue)
}

// deadLetter moves change from the queue to the dead-letter list.
func (s *Syncer) deadLetter(ctx context.Context, change model.SyncChange, reason string) error {
	dl := DeadLetter{
		Change:         change,
		Reason:         reason,
		DeadLetteredAt: s.clock.Now().UTC(),
	}

	s.queueMu.Lock()
	dead, err := store.GetOr(ctx, s.store, store.KeyDeadLetterQueue, []DeadLetter{})
	if err == nil {
		err = s.store.Set(ctx, store.KeyDeadLetterQueue, append(dead, dl))
	}
	if err == nil {
		var queue []model.SyncChange
		queue, err = s.loadQueueLocked(ctx)
		if err == nil {
			queue = slices.DeleteFunc(queue, func(c model.SyncChange) bool { return c.ID == change.ID })
			err = s.saveQueueLocked(ctx, queue)
		}
	}
	s.queueMu.Unlock()
	if err != nil {
		return fmt.Errorf("dead-letter %s: %w", change.ID, err)
	}

	s.m.deadLettered.Inc()
	s.logger.Error("change dead-lettered",
		"id", change.ID,
		"kind", change.Kind,
		"attempts", change.AttemptCount,
		"reason", reason,
	)
	if s.onDeadLetter != nil {
		s.onDeadLetter(dl)
	}
	return nil
}

// deliver replays one change against the remote.
func (s *Syncer) deliver(ctx context.Context, change model.SyncChange) error {
	decode := func(dst any) error {
		if err := change.DecodePayload(dst); err != nil {
			return &permanentError{err: err}
		}
		return nil
	}

	switch change.Kind {
	case model.ChangeUpsertCatalogRow:
		var p model.CatalogRowPayload
		if err := decode(&p); err != nil {
			return err
		}
		return s.remote.UpsertCatalogRow(ctx, p.Kind, p.Row)

	case model.ChangeDeleteCatalogRow:
		var p model.CatalogDeletePayload
		if err := decode(&p); err != nil {
			return err
		}
		return s.remote.DeleteCatalogRow(ctx, p.Kind, p.ID)

	case model.ChangeAppendJournalEntry:
		var entry model.JournalEntry
		if err := decode(&entry); err != nil {
			return err
		}
		return s.remote.AppendJournalEntry(ctx, entry)

	case model.ChangeDeleteJournalEntry:
		var p model.JournalDeletePayload
		if err := decode(&p); err != nil {
			return err
		}
		return s.remote.DeleteJournalEntry(ctx, p.ID)

	case model.ChangeReplaceQuickActions:
		var p model.QuickActionsPayload
		if err := decode(&p); err != nil {
			return err
		}
		if p.QuickActions == nil {
			p.QuickActions = []model.QuickAction{}
		}
		return s.remote.PushSnapshot(ctx, model.Snapshot{QuickActions: p.QuickActions})

	case model.ChangeReplaceOrder:
		var p model.OrderPayload
		if err := decode(&p); err != nil {
			return err
		}
		if !p.Kind.Valid() {
			return &permanentError{err: fmt.Errorf("replace order: unknown kind %q", p.Kind)}
		}
		if p.Order == nil {
			p.Order = []model.EntityID{}
		}
		var patch model.Snapshot
		patch.SetOrder(p.Kind, p.Order)
		return s.remote.PushSnapshot(ctx, patch)

	case model.ChangeClearAll:
		var p model.ClearAllPayload
		if err := decode(&p); err != nil {
			return err
		}
		full := model.EmptySnapshot()
		if p.Replacement != nil {
			full.Overlay(*p.Replacement)
		}
		return s.remote.PushSnapshot(ctx, full)
	}
	return &permanentError{err: fmt.Errorf("unknown change kind %q", change.Kind)}
}
