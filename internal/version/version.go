// Package version carries build identification for the launchlab binaries,
// populated at link time via -ldflags -X.
package version

var (
	// Version is the launchlab release version
	Version = "dev"
	// GitSHA is the git commit SHA
	GitSHA = "unknown"
	// BuildTime is the build timestamp
	BuildTime = "unknown"
)
