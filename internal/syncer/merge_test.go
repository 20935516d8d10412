package syncer

import (
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/roach88/habitsync/internal/model"
)

func TestMerge_UnsyncedLocalAndRemoteBothKept(t *testing.T) {
	local := model.EmptySnapshot()
	local.Journal = []model.JournalEntry{entry("X", time.Minute)}
	remote := model.EmptySnapshot()
	remote.Journal = []model.JournalEntry{entry("Y", 0)}

	merged := Merge(local, remote)
	assert.Equal(t, []string{"Y", "X"}, journalIDs(merged.Journal))
}

func TestMerge_EmptyRemoteCatalogKeepsLocal(t *testing.T) {
	local := model.EmptySnapshot()
	local.Protocols = []model.Protocol{{ID: "p1", Name: "Local run"}}
	local.ProtocolOrder = model.IDs("p1")
	local.States = []model.State{{ID: "s", Name: "Local state"}}

	remote := model.EmptySnapshot()
	remote.States = []model.State{{ID: "s", Name: "Remote state"}, {ID: "t", Name: "Other"}}

	merged := Merge(local, remote)
	assert.Equal(t, local.Protocols, merged.Protocols, "empty remote falls back to local")
	assert.Equal(t, model.IDs("p1"), merged.ProtocolOrder)
	assert.Equal(t, remote.States, merged.States, "non-empty remote wins")
}

func TestMerge_NilCollectionsComeBackEmpty(t *testing.T) {
	merged := Merge(model.Snapshot{}, model.Snapshot{})
	assert.Equal(t, model.EmptySnapshot(), merged)
}

func TestMerge_RemoteCopyWinsOnIDCollision(t *testing.T) {
	localX := entry("X", 0)
	localX.SourceLabel = "local"
	remoteX := entry("X", 0)
	remoteX.SourceLabel = "remote"

	merged := MergeJournal([]model.JournalEntry{localX}, []model.JournalEntry{remoteX})
	assert.Len(t, merged, 1)
	assert.Equal(t, "remote", merged[0].SourceLabel)
}

func TestMerge_EqualTimestampsOrderByID(t *testing.T) {
	merged := MergeJournal(
		[]model.JournalEntry{entry("b", 0), entry("c", 0)},
		[]model.JournalEntry{entry("a", 0), entry("c", 0)},
	)
	assert.Equal(t, []string{"a", "b", "c"}, journalIDs(merged))
}

// merge(local, remote).journal holds every id of either side exactly once,
// the remote copy on collision, sorted by timestamp.
func TestMerge_UnionLawRandomJournals(t *testing.T) {
	rng := rand.New(rand.NewSource(7))

	for run := 0; run < 50; run++ {
		var local, remote []model.JournalEntry
		want := map[string]string{}
		n := rng.Intn(40)
		for i := 0; i < n; i++ {
			id := fmt.Sprintf("e%d", rng.Intn(30))
			e := entry(id, time.Duration(rng.Intn(20))*time.Minute)
			switch rng.Intn(3) {
			case 0:
				e.SourceLabel = "local"
				local = append(local, e)
				if _, ok := want[id]; !ok {
					want[id] = "local"
				}
			default:
				e.SourceLabel = "remote"
				remote = append(remote, e)
				want[id] = "remote"
			}
		}

		merged := MergeJournal(local, remote)

		seen := map[string]int{}
		for i, e := range merged {
			seen[e.ID]++
			assert.Equal(t, want[e.ID], e.SourceLabel, "run %d id %s", run, e.ID)
			if i > 0 {
				assert.False(t, e.Timestamp.Before(merged[i-1].Timestamp), "run %d sorted", run)
			}
		}
		assert.Len(t, seen, len(want), "run %d", run)
		for id, n := range seen {
			assert.Equal(t, 1, n, "run %d id %s", run, id)
		}
	}
}
