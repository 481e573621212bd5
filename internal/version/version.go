package version

import "runtime"

var (
	// Version is the version of the GCP provider adapter (overridden via -ldflags)
	Version = "dev"
	// GitSHA is the git commit SHA (overridden via -ldflags)
	GitSHA = "unknown"
)

// Component is the name reported in build metrics and user agents
const Component = "virtrigaud-gcp"

// String returns a formatted version string
func String() string {
	return Version + " (" + GitSHA + ")"
}

// UserAgent returns the user agent sent to backend APIs
func UserAgent() string {
	return Component + "/" + Version + " (" + runtime.GOOS + "/" + runtime.GOARCH + ")"
}
