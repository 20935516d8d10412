// Package engine implements the derived-state engine.
//
// The engine reads catalogs and the journal through a store.Store, folds
// the journal into derived scores on demand, and caches what it computes
// until a mutation invalidates it.
//
// ARCHITECTURE:
//
// Mutation Flow:
// 1. Caller invokes a mutation (AppendJournalEntry, CheckIn, UpsertCatalogRow, ...)
// 2. The new value is written to the store (durable before return)
// 3. The score cache is dropped wholesale
// 4. A typed change is handed to the ChangeQueue, which persists it
//
// Score Derivation:
// Innerface scores fold every journal delta for the id onto initialScore
// and clamp to the score bounds. State scores average their referenced
// innerfaces and nested states recursively; statePath guards the
// recursion against reference cycles.
//
// CRITICAL PATTERNS:
//
// Coarse Invalidation:
// Every mutation clears the entire score cache, not just the affected ids.
//
// Ordering:
// Display order merges an explicit order list with catalog order
// (MergeOrder). The order list is never repaired.
//
// Permissive Mutation:
// Patching or deleting an id that does not exist is a no-op returning
// false. Shape validation lives in package model and is the caller's job,
// except for the CheckIn/RunQuickAction/ManualEdit helpers, which validate
// the entries they build.
package engine
