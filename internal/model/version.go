package model

// Version constants stamped on events and reported by the CLI.
const (
	// EventVersion is the event envelope schema version.
	EventVersion = "1"

	// ServiceVersion is the schemata service version.
	ServiceVersion = "0.1.0"
)
