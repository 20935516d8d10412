package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var t0 = time.Date(2026, 1, 1, 8, 0, 0, 0, time.UTC)

func entryAt(id string, offset time.Duration) JournalEntry {
	return JournalEntry{ID: id, Type: EntryManualEdit, Timestamp: t0.Add(offset)}
}

func TestSortJournal_TimestampThenID(t *testing.T) {
	entries := []JournalEntry{
		entryAt("c", 2*time.Minute),
		entryAt("b", time.Minute),
		entryAt("a", time.Minute),
		entryAt("d", 0),
	}
	SortJournal(entries)

	var ids []string
	for _, e := range entries {
		ids = append(ids, e.ID)
	}
	assert.Equal(t, []string{"d", "a", "b", "c"}, ids)
}

func TestTruncateJournal_KeepsMostRecent(t *testing.T) {
	entries := make([]JournalEntry, 1500)
	for i := range entries {
		entries[i] = entryAt(string(rune('a'+i%26)), time.Duration(i)*time.Second)
	}

	kept := TruncateJournal(entries, 1000)
	assert.Len(t, kept, 1000)
	assert.Equal(t, entries[500].Timestamp, kept[0].Timestamp)
	assert.Equal(t, entries[1499].Timestamp, kept[999].Timestamp)
	assert.Len(t, entries, 1500, "input must not be modified")
}

func TestTruncateJournal_ShortJournalUnchanged(t *testing.T) {
	entries := []JournalEntry{entryAt("a", 0)}
	assert.Equal(t, entries, TruncateJournal(entries, 1000))
}

func TestJournalEntry_Delta(t *testing.T) {
	e := JournalEntry{Changes: map[EntityID]float64{"a": 0.25}}
	assert.Equal(t, 0.25, e.Delta("a"))
	assert.Equal(t, 0.0, e.Delta("missing"))
}
