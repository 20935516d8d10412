package engine

import (
	"context"
	"fmt"

	"github.com/roach88/habitsync/internal/model"
)

// ManualEditLabel is the source label of manual-edit entries.
const ManualEditLabel = "Manual edit"

// CheckIn records one check-in of a protocol. Each target moves by
// direction × weight. direction must be +1 or -1.
func (e *Engine) CheckIn(ctx context.Context, protocolID model.EntityID, direction int) (model.JournalEntry, error) {
	if err := checkDirection("check-in", direction); err != nil {
		return model.JournalEntry{}, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	p, err := e.protocolLocked(ctx, protocolID)
	if err != nil {
		return model.JournalEntry{}, err
	}
	entry := model.JournalEntry{
		ID:          e.ids.Generate(),
		Type:        model.EntryProtocolCheckin,
		Timestamp:   e.clock.Now(),
		SourceID:    p.ID,
		SourceLabel: p.Name,
		Changes:     protocolChanges(p, direction),
		Metadata:    map[string]any{"direction": direction},
	}
	return e.recordLocked(ctx, entry)
}

// RunQuickAction checks in the quick action's protocol in the quick
// action's direction.
func (e *Engine) RunQuickAction(ctx context.Context, quickActionID model.EntityID) (model.JournalEntry, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	c, err := e.catalogLocked(ctx, model.KindQuickActions)
	if err != nil {
		return model.JournalEntry{}, err
	}
	row, ok := c.byID[quickActionID]
	if !ok {
		return model.JournalEntry{}, unknownEntity(model.KindQuickActions, quickActionID)
	}
	qa := row.(model.QuickAction)
	if err := checkDirection("quick action", qa.Direction); err != nil {
		return model.JournalEntry{}, err
	}

	p, err := e.protocolLocked(ctx, qa.ProtocolID)
	if err != nil {
		return model.JournalEntry{}, err
	}
	label := qa.Name
	if label == "" {
		label = p.Name
	}
	entry := model.JournalEntry{
		ID:          e.ids.Generate(),
		Type:        model.EntryQuickAction,
		Timestamp:   e.clock.Now(),
		SourceID:    qa.ID,
		SourceLabel: label,
		Changes:     protocolChanges(p, qa.Direction),
		Metadata: map[string]any{
			"direction":  qa.Direction,
			"protocolId": string(p.ID),
		},
	}
	return e.recordLocked(ctx, entry)
}

// ManualEdit moves one innerface by delta. note is kept in metadata.
func (e *Engine) ManualEdit(ctx context.Context, innerfaceID model.EntityID, delta float64, note string) (model.JournalEntry, error) {
	if delta == 0 {
		return model.JournalEntry{}, &model.ValidationError{
			Entity: "manual edit",
			Fields: []model.FieldError{{Field: "Delta", Rule: "nonzero"}},
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	c, err := e.catalogLocked(ctx, model.KindInnerfaces)
	if err != nil {
		return model.JournalEntry{}, err
	}
	if _, ok := c.byID[innerfaceID]; !ok {
		return model.JournalEntry{}, unknownEntity(model.KindInnerfaces, innerfaceID)
	}

	entry := model.JournalEntry{
		ID:          e.ids.Generate(),
		Type:        model.EntryManualEdit,
		Timestamp:   e.clock.Now(),
		SourceLabel: ManualEditLabel,
		Changes:     map[model.EntityID]float64{innerfaceID: delta},
	}
	if note != "" {
		entry.Metadata = map[string]any{"note": note}
	}
	return e.recordLocked(ctx, entry)
}

func (e *Engine) protocolLocked(ctx context.Context, id model.EntityID) (model.Protocol, error) {
	c, err := e.catalogLocked(ctx, model.KindProtocols)
	if err != nil {
		return model.Protocol{}, err
	}
	row, ok := c.byID[id]
	if !ok {
		return model.Protocol{}, unknownEntity(model.KindProtocols, id)
	}
	// Stored rows are not re-validated; a check-in only needs targets.
	p := row.(model.Protocol)
	if len(p.Targets) == 0 {
		return model.Protocol{}, &model.ValidationError{
			Entity: "protocol",
			Fields: []model.FieldError{{Field: "Targets", Rule: "targets"}},
		}
	}
	return p, nil
}

func checkDirection(entity string, direction int) error {
	if direction != 1 && direction != -1 {
		return &model.ValidationError{
			Entity: entity,
			Fields: []model.FieldError{{Field: "Direction", Rule: "oneof=-1 1"}},
		}
	}
	return nil
}

// protocolChanges sums direction × weight per target. A target listed
// twice moves twice.
func protocolChanges(p model.Protocol, direction int) map[model.EntityID]float64 {
	changes := make(map[model.EntityID]float64, len(p.Targets))
	for _, target := range p.Targets {
		changes[target] += float64(direction) * p.Weight
	}
	return changes
}

func (e *Engine) recordLocked(ctx context.Context, entry model.JournalEntry) (model.JournalEntry, error) {
	if err := model.ValidateJournalEntry(entry); err != nil {
		return model.JournalEntry{}, err
	}
	if _, err := e.appendLocked(ctx, entry); err != nil {
		return model.JournalEntry{}, fmt.Errorf("record %s: %w", entry.Type, err)
	}
	entry.Timestamp = entry.Timestamp.UTC()
	return entry, nil
}
