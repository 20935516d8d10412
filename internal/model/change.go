package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// ChangeKind identifies the remote operation a queued change replays.
type ChangeKind string

const (
	ChangeUpsertCatalogRow    ChangeKind = "upsert-catalog-row"
	ChangeDeleteCatalogRow    ChangeKind = "delete-catalog-row"
	ChangeAppendJournalEntry  ChangeKind = "append-journal-entry"
	ChangeDeleteJournalEntry  ChangeKind = "delete-journal-entry"
	ChangeReplaceQuickActions ChangeKind = "replace-quick-actions"
	ChangeReplaceOrder        ChangeKind = "replace-order"
	ChangeClearAll            ChangeKind = "clear-all"
)

// Valid reports whether k is a known change kind.
func (k ChangeKind) Valid() bool {
	switch k {
	case ChangeUpsertCatalogRow, ChangeDeleteCatalogRow, ChangeAppendJournalEntry,
		ChangeDeleteJournalEntry, ChangeReplaceQuickActions, ChangeReplaceOrder, ChangeClearAll:
		return true
	}
	return false
}

// SyncChange is a queued local mutation awaiting remote acknowledgment.
type SyncChange struct {
	ID           string          `json:"id"`
	Kind         ChangeKind      `json:"kind"`
	Payload      json.RawMessage `json:"payload"`
	EnqueuedAt   time.Time       `json:"enqueuedAt"`
	AttemptCount int             `json:"attemptCount"`
	LastError    string          `json:"lastError,omitempty"`
}

// NewSyncChange serializes payload and stamps the change with its
// content-addressed id.
func NewSyncChange(kind ChangeKind, payload any, now time.Time) (SyncChange, error) {
	if !kind.Valid() {
		return SyncChange{}, fmt.Errorf("new sync change: unknown kind %q", kind)
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return SyncChange{}, fmt.Errorf("new sync change: marshal payload: %w", err)
	}
	id, err := ChangeID(kind, raw, now, 0)
	if err != nil {
		return SyncChange{}, fmt.Errorf("new sync change: %w", err)
	}
	return SyncChange{
		ID:         id,
		Kind:       kind,
		Payload:    raw,
		EnqueuedAt: now.UTC(),
	}, nil
}

// WithOrdinal returns c re-stamped with the id for ordinal n, which keeps
// a repeat of an earlier change distinct from it in the queue.
func (c SyncChange) WithOrdinal(n int) (SyncChange, error) {
	id, err := ChangeID(c.Kind, c.Payload, c.EnqueuedAt, n)
	if err != nil {
		return SyncChange{}, fmt.Errorf("sync change ordinal %d: %w", n, err)
	}
	c.ID = id
	return c, nil
}

// SameContent reports whether c and o carry the same mutation enqueued at
// the same instant, regardless of id.
func (c SyncChange) SameContent(o SyncChange) bool {
	return c.Kind == o.Kind && c.EnqueuedAt.Equal(o.EnqueuedAt) && bytes.Equal(c.Payload, o.Payload)
}

// DecodePayload unmarshals the change payload into dst.
func (c SyncChange) DecodePayload(dst any) error {
	if err := json.Unmarshal(c.Payload, dst); err != nil {
		return fmt.Errorf("decode %s payload: %w", c.Kind, err)
	}
	return nil
}

// CatalogRowPayload carries an upserted catalog row.
type CatalogRowPayload struct {
	Kind Kind            `json:"kind"`
	Row  json.RawMessage `json:"row"`
}

// CatalogDeletePayload identifies a deleted catalog row.
type CatalogDeletePayload struct {
	Kind Kind     `json:"kind"`
	ID   EntityID `json:"id"`
}

// JournalDeletePayload identifies a deleted journal entry.
type JournalDeletePayload struct {
	ID string `json:"id"`
}

// OrderPayload carries a replaced order list.
type OrderPayload struct {
	Kind  Kind       `json:"kind"`
	Order []EntityID `json:"order"`
}

// QuickActionsPayload carries the full replacement quick action list.
type QuickActionsPayload struct {
	QuickActions []QuickAction `json:"quickActions"`
}

// ClearAllPayload wipes the remote copy. A non-nil Replacement is pushed
// in the same request, which is how an import replaces everything at once.
type ClearAllPayload struct {
	Replacement *Snapshot `json:"replacement,omitempty"`
}
