// Package version carries build metadata stamped in with -ldflags -X.
package version

import "fmt"

var (
	// Version is the release tag, or "dev" for local builds.
	Version = "dev"
	// GitSHA is the commit the binary was built from.
	GitSHA = "unknown"
	// BuildTime is the build timestamp.
	BuildTime = "unknown"
)

// String formats the build metadata for the version subcommand.
func String() string {
	return fmt.Sprintf("flyscan version %s (git %s, built %s)", Version, GitSHA, BuildTime)
}

// Info returns the build metadata keyed as served by /api/version.
func Info() map[string]string {
	return map[string]string{
		"version":    Version,
		"git_sha":    GitSHA,
		"build_time": BuildTime,
	}
}
