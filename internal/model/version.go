package model

// Version constants for persisted state and the engine.
const (
	// SchemaVersion is the version of the persisted snapshot layout.
	SchemaVersion = "1"

	// EngineVersion is the graft engine version.
	EngineVersion = "0.3.0"
)
