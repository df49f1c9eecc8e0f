// Package constants defines shared defaults.
package constants

import "time"

// Server defaults.
const (
	// DefaultAddr is the default HTTP bind address.
	DefaultAddr = "0.0.0.0:8080"

	DefaultLogLevel = "info"

	// DefaultShutdownTimeout bounds graceful shutdown of the HTTP server.
	DefaultShutdownTimeout = 10 * time.Second
)

// Profiling defaults.
const (
	// DefaultFrequencyHz is the fixed sampling frequency.
	DefaultFrequencyHz = 1000

	// DefaultProfileSeconds is used when a request omits seconds.
	DefaultProfileSeconds = 30

	DefaultBusyPolicy = "reject"

	// DefaultGzipLevel selects the balanced compression level.
	DefaultGzipLevel = -1
)

// DefaultBlocklist names the modules whose frames are dropped from reports.
var DefaultBlocklist = []string{
	"runtime",
	"internal/runtime",
	"syscall",
	"internal/syscall",
}

// Client defaults for `cpuprof fetch`.
const (
	DefaultFetchOutput = "profile.pb.gz"

	// DefaultFetchAttempts is how many times a connection failure is retried.
	DefaultFetchAttempts = 5

	DefaultFetchBackoff = 500 * time.Millisecond

	DefaultFetchMaxBackoff = 5 * time.Second
)
