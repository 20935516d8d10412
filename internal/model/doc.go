// Package model provides the shared data types for habitsync.
//
// This package contains the journal, catalog, snapshot and sync change
// definitions plus their validators. All other internal packages import
// model; model imports nothing internal.
//
// Key design constraints:
//   - Journal entries are immutable once written (append or delete by id only)
//   - Derived scores are never stored; they are folded from the journal
//   - Entity ids may arrive as JSON numbers or strings and are held as strings
//   - All JSON tags use camelCase to match the persisted and remote layouts
package model
