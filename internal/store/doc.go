// Package store provides the quota-limited, per-user persistent key/value
// store that holds catalogs, the journal and the sync queue.
//
// A Store is bound to exactly one user. All keys are implicitly namespaced
// by that user, and each Store owns its own read cache, so switching users
// means building a new Store (ForUser) rather than clearing shared state.
//
// # Critical Patterns
//
// Durability before acknowledgment:
//   - Set returns only after the backend write succeeds
//   - The read cache is updated only on write success
//
// Quota compaction:
//   - A quota failure triggers one lossy compaction: the journal is cut to
//     its most recent entries and the write is retried once
//   - If that does not free enough space the original failure surfaces
//
// Degraded mode:
//   - If the persistent backend cannot be opened, OpenWithFallback serves
//     the session from memory and reports Persistent() == false
//
// # Backends
//
//   - SQLiteBackend: WAL mode, embedded schema, user_version migrations
//   - BadgerBackend: embedded LSM key/value store
//   - MemoryBackend: session-only, used for tests and degraded mode
package store
