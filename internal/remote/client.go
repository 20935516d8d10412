package remote

import (
	"context"
	"encoding/json"

	"github.com/roach88/habitsync/internal/model"
)

// Client reads and writes one user's remote documents.
type Client interface {
	// FetchSnapshot returns the full remote copy. Missing collections
	// come back empty and non-nil.
	FetchSnapshot(ctx context.Context) (model.Snapshot, error)

	// PushSnapshot replaces every non-nil collection of snap. Nil
	// collections are left as they are.
	PushSnapshot(ctx context.Context, snap model.Snapshot) error

	// AppendJournalEntry adds entry. An id already present is kept.
	AppendJournalEntry(ctx context.Context, entry model.JournalEntry) error

	// DeleteJournalEntry removes the entry with id, if any.
	DeleteJournalEntry(ctx context.Context, id string) error

	// UpsertCatalogRow replaces or appends the JSON encoded row of kind.
	UpsertCatalogRow(ctx context.Context, kind model.Kind, row json.RawMessage) error

	// DeleteCatalogRow removes the row of kind with id, if any.
	DeleteCatalogRow(ctx context.Context, kind model.Kind, id model.EntityID) error
}

// Directory resolves the Client holding a user's documents.
type Directory interface {
	ForUser(user string) Client
}

// DirectoryFunc adapts a function to Directory.
type DirectoryFunc func(user string) Client

// ForUser implements Directory.
func (f DirectoryFunc) ForUser(user string) Client { return f(user) }
