// Package syncer reconciles a user's local store with the remote copy.
//
// Every local mutation is appended to a durable queue (QueueChange) and
// delivered by a single consumer: either the Run loop, woken by a
// coalesced signal, or an explicit ProcessQueue call. A drain keeps
// re-reading the persisted queue until no record it has not yet tried
// remains, so changes enqueued mid-drain go out in the same drain.
//
// A record that fails MaxRetries times moves to the dead-letter list.
// FullSync drains, fetches the remote snapshot, merges it with the local
// one and persists the result.
package syncer
