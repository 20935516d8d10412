package store

// Well-known keys outside the catalog and order keys defined on model.Kind.
const (
	KeyJournal           = "history"
	KeyPendingSyncQueue  = "pendingSyncQueue"
	KeyDeadLetterQueue   = "deadLetterQueue"
	KeyLastSyncTimestamp = "lastSyncTimestamp"
)

// DefaultJournalKeep is how many journal entries survive quota compaction.
const DefaultJournalKeep = 1000
