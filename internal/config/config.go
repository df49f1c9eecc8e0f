// Package config holds the server configuration and loads it from the
// environment.
package config

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/coral-mesh/cpuprof/internal/constants"
	"github.com/coral-mesh/cpuprof/internal/logging"
)

// ServerConfig configures `cpuprof serve`.
type ServerConfig struct {
	// Addr is the HTTP bind address.
	Addr string `env:"CPUPROF_ADDR"`

	Log LogConfig

	Profiler ProfilerConfig
}

// LogConfig configures the process logger.
type LogConfig struct {
	Level  string `env:"CPUPROF_LOG_LEVEL"`
	Pretty bool   `env:"CPUPROF_LOG_PRETTY"`
}

// ProfilerConfig configures profiling sessions.
type ProfilerConfig struct {
	// Blocklist holds module patterns whose frames are dropped from reports.
	Blocklist []string `env:"CPUPROF_BLOCKLIST"`

	// BusyPolicy is "reject" or "queue".
	BusyPolicy string `env:"CPUPROF_BUSY_POLICY"`

	// MaxDuration caps the seconds parameter. Zero disables the cap.
	MaxDuration time.Duration `env:"CPUPROF_MAX_DURATION"`

	// IncludeOffCPU also samples parked goroutines.
	IncludeOffCPU bool `env:"CPUPROF_INCLUDE_OFFCPU"`

	// GzipLevel is the compression level, -1 (default) to 9.
	GzipLevel int `env:"CPUPROF_GZIP_LEVEL"`
}

// DefaultServerConfig returns the configuration used when nothing is set.
func DefaultServerConfig() *ServerConfig {
	return &ServerConfig{
		Addr: constants.DefaultAddr,
		Log: LogConfig{
			Level: constants.DefaultLogLevel,
		},
		Profiler: ProfilerConfig{
			Blocklist:  append([]string(nil), constants.DefaultBlocklist...),
			BusyPolicy: constants.DefaultBusyPolicy,
			GzipLevel:  constants.DefaultGzipLevel,
		},
	}
}

// LoadServerConfig returns the defaults overridden by the environment.
func LoadServerConfig() (*ServerConfig, error) {
	cfg := DefaultServerConfig()
	if err := LoadFromEnv(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports every invalid field at once.
func (c *ServerConfig) Validate() error {
	var errs []error

	if _, _, err := net.SplitHostPort(c.Addr); err != nil {
		errs = append(errs, fmt.Errorf("addr %q: %w", c.Addr, err))
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}
	switch strings.ToLower(c.Profiler.BusyPolicy) {
	case "", "reject", "queue":
	default:
		errs = append(errs, fmt.Errorf("busy policy %q must be reject or queue", c.Profiler.BusyPolicy))
	}
	if c.Profiler.MaxDuration < 0 {
		errs = append(errs, fmt.Errorf("max duration %s is negative", c.Profiler.MaxDuration))
	}
	if c.Profiler.GzipLevel < -1 || c.Profiler.GzipLevel > 9 {
		errs = append(errs, fmt.Errorf("gzip level %d out of range [-1, 9]", c.Profiler.GzipLevel))
	}
	for _, p := range c.Profiler.Blocklist {
		if strings.TrimSpace(p) == "" || p == "*" {
			errs = append(errs, fmt.Errorf("blocklist pattern %q would drop every frame", p))
		}
	}

	return errors.Join(errs...)
}
