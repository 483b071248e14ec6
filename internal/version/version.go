// Package version holds build metadata for the qa-chatbot binaries,
// injected via ldflags and logged at startup.
package version

//nolint:revive // Set via ldflags at build time.
var (
	Version = "dev"
	Commit  = "unknown"
	Date    = "unknown"
)
