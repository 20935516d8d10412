package model

// Version constants for the persisted layout and export format.
const (
	// ExportVersion is the version tag written into export files.
	ExportVersion = 1

	// EngineVersion is the habitsync engine version.
	EngineVersion = "0.1.0"
)
