package model

import (
	"sort"
	"time"
)

// EntryType classifies what produced a journal entry.
type EntryType string

const (
	EntryProtocolCheckin EntryType = "protocol-checkin"
	EntryDragDrop        EntryType = "drag-drop-reorder"
	EntryQuickAction     EntryType = "quick-action"
	EntryManualEdit      EntryType = "manual-edit"
)

// Valid reports whether t is a known entry type.
func (t EntryType) Valid() bool {
	switch t {
	case EntryProtocolCheckin, EntryDragDrop, EntryQuickAction, EntryManualEdit:
		return true
	}
	return false
}

// JournalEntry is one immutable record in the history log.
//
// SourceLabel is captured at write time so renaming the source protocol
// later never rewrites history. Changes maps target entity ids to signed
// deltas; a single entry may move several targets.
type JournalEntry struct {
	ID          string               `json:"id"`
	Type        EntryType            `json:"type"`
	Timestamp   time.Time            `json:"timestamp"`
	SourceID    EntityID             `json:"sourceId,omitempty"`
	SourceLabel string               `json:"sourceLabel,omitempty"`
	Changes     map[EntityID]float64 `json:"changes"`
	Metadata    map[string]any       `json:"metadata,omitempty"`
}

// Delta returns the change applied to target, or 0 if the entry does not touch it.
func (e JournalEntry) Delta(target EntityID) float64 {
	return e.Changes[target]
}

// SortJournal orders entries by timestamp ascending. Entries with equal
// timestamps are ordered by id so the result is deterministic.
func SortJournal(entries []JournalEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		ti, tj := entries[i].Timestamp, entries[j].Timestamp
		if !ti.Equal(tj) {
			return ti.Before(tj)
		}
		return entries[i].ID < entries[j].ID
	})
}

// TruncateJournal keeps the most recent keep entries of a journal sorted
// ascending. The input slice is not modified.
func TruncateJournal(entries []JournalEntry, keep int) []JournalEntry {
	if keep < 0 {
		keep = 0
	}
	if len(entries) <= keep {
		return entries
	}
	out := make([]JournalEntry, keep)
	copy(out, entries[len(entries)-keep:])
	return out
}
