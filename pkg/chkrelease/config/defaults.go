package config

// Default configuration values.
const (
	// DefaultRoot is the comparison root when none is given.
	DefaultRoot = "."

	// DefaultProgressInterval is how many entries pass between periodic
	// progress snapshots.
	DefaultProgressInterval = 10

	// DefaultRetentionDays is how long run-history records are kept.
	DefaultRetentionDays = 30
)
