// Package version provides build version information.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

var (
	// Version is the semantic version (set by build flags)
	Version = "dev"

	// GitCommit is the git commit hash (set by build flags)
	GitCommit = "unknown"

	// BuildDate is the build timestamp (set by build flags)
	BuildDate = "unknown"

	// GoVersion is the Go version used to build
	GoVersion = runtime.Version()
)

func init() {
	// Fall back to the VCS stamp when built without -ldflags.
	if GitCommit != "unknown" {
		return
	}
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return
	}
	for _, s := range info.Settings {
		if s.Key == "vcs.revision" && s.Value != "" {
			GitCommit = s.Value
		}
	}
}

// String returns a one-line description of the build.
func String() string {
	commit := GitCommit
	if len(commit) > 12 {
		commit = commit[:12]
	}
	return fmt.Sprintf("cpuprof %s (commit %s, built %s, %s %s/%s)",
		Version, commit, BuildDate, GoVersion, runtime.GOOS, runtime.GOARCH)
}

// UserAgent returns the HTTP User-Agent used by the client.
func UserAgent() string {
	return "cpuprof/" + Version
}
