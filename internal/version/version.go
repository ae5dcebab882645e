// Package version holds build metadata stamped in by the magefile.
package version

import "fmt"

// Set with -ldflags "-X github.com/dkoosis/runledger/internal/version.Version=..."
var (
	Version    = "dev"
	CommitHash = "unknown"
	BuildDate  = "unknown"
)

// String formats the metadata for the version command.
func String() string {
	return fmt.Sprintf("runledger %s (commit %s, built %s)", Version, CommitHash, BuildDate)
}
