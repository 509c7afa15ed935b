// Package buildinfo holds version metadata printed by the hubconnect binary.
package buildinfo

// Overridden via -ldflags "-X" in release builds.
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)
