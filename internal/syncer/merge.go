package syncer

import "github.com/roach88/habitsync/internal/model"

// Merge reconciles a local and a remote snapshot.
//
// Catalogs and order lists: the remote collection wins when it is
// non-empty, otherwise the local one is kept. Journal: the union by entry
// id, remote first, sorted by timestamp with ties broken by id. The
// result has every collection non-nil.
func Merge(local, remote model.Snapshot) model.Snapshot {
	out := model.EmptySnapshot()

	out.Protocols = pick(remote.Protocols, local.Protocols)
	out.Innerfaces = pick(remote.Innerfaces, local.Innerfaces)
	out.States = pick(remote.States, local.States)
	out.QuickActions = pick(remote.QuickActions, local.QuickActions)
	for _, kind := range model.Kinds {
		out.SetOrder(kind, pick(remote.Order(kind), local.Order(kind)))
	}
	out.Journal = MergeJournal(local.Journal, remote.Journal)
	return out
}

// MergeJournal returns the union of both journals by id. When an id is
// present on both sides the remote entry is kept.
func MergeJournal(local, remote []model.JournalEntry) []model.JournalEntry {
	seen := make(map[string]bool, len(remote)+len(local))
	out := make([]model.JournalEntry, 0, len(remote)+len(local))
	for _, side := range [][]model.JournalEntry{remote, local} {
		for _, e := range side {
			if seen[e.ID] {
				continue
			}
			seen[e.ID] = true
			out = append(out, e)
		}
	}
	model.SortJournal(out)
	return out
}

func pick[T any](remote, local []T) []T {
	if len(remote) > 0 {
		return remote
	}
	if local == nil {
		return []T{}
	}
	return local
}
