// Package serve implements `cpuprof serve`.
package serve

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/coral-mesh/cpuprof/internal/config"
	"github.com/coral-mesh/cpuprof/internal/constants"
	"github.com/coral-mesh/cpuprof/internal/httpapi"
	"github.com/coral-mesh/cpuprof/internal/logging"
	"github.com/coral-mesh/cpuprof/internal/profiler/session"
	"github.com/coral-mesh/cpuprof/pkg/version"
)

type flags struct {
	addr          string
	logLevel      string
	pretty        bool
	blocklist     []string
	busyPolicy    string
	maxDuration   time.Duration
	includeOffCPU bool
	gzipLevel     int
}

// NewServeCmd creates the serve command.
func NewServeCmd() *cobra.Command {
	var f flags

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve CPU profiles of this process over HTTP",
		Long: `Start an HTTP server exposing GET /debug/pprof/profile?seconds=N.

Each request samples the goroutines of this process for N seconds (default 30)
at 1000Hz and returns a gzip-compressed pprof profile.

Configuration is read from CPUPROF_* environment variables; flags override them.

Examples:
  cpuprof serve --addr 127.0.0.1:6060
  CPUPROF_BUSY_POLICY=queue cpuprof serve
  go tool pprof http://127.0.0.1:6060/debug/pprof/profile?seconds=10`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadServerConfig()
			if err != nil {
				return fmt.Errorf("failed to load configuration: %w", err)
			}
			f.apply(cmd, cfg)
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}

			logger := logging.NewWithComponent(logging.Config{
				Level:  cfg.Log.Level,
				Pretty: cfg.Log.Pretty,
				Output: os.Stderr,
			}, "serve")

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return Run(ctx, cfg, logger)
		},
	}

	fs := cmd.Flags()
	fs.StringVar(&f.addr, "addr", constants.DefaultAddr, "HTTP bind address (CPUPROF_ADDR)")
	fs.StringVar(&f.logLevel, "log-level", constants.DefaultLogLevel, "Log level: trace, debug, info, warn, error (CPUPROF_LOG_LEVEL)")
	fs.BoolVar(&f.pretty, "pretty", false, "Human readable logs (CPUPROF_LOG_PRETTY)")
	fs.StringSliceVar(&f.blocklist, "blocklist", constants.DefaultBlocklist, "Module patterns dropped from profiles (CPUPROF_BLOCKLIST)")
	fs.StringVar(&f.busyPolicy, "busy-policy", constants.DefaultBusyPolicy, "Concurrent request handling: reject or queue (CPUPROF_BUSY_POLICY)")
	fs.DurationVar(&f.maxDuration, "max-duration", 0, "Longest accepted profile, 0 for no limit (CPUPROF_MAX_DURATION)")
	fs.BoolVar(&f.includeOffCPU, "include-offcpu", false, "Also sample parked goroutines (CPUPROF_INCLUDE_OFFCPU)")
	fs.IntVar(&f.gzipLevel, "gzip-level", constants.DefaultGzipLevel, "Gzip level, -1 to 9 (CPUPROF_GZIP_LEVEL)")

	return cmd
}

// apply copies explicitly set flags over cfg.
func (f *flags) apply(cmd *cobra.Command, cfg *config.ServerConfig) {
	cmd.Flags().Visit(func(fl *pflag.Flag) {
		switch fl.Name {
		case "addr":
			cfg.Addr = f.addr
		case "log-level":
			cfg.Log.Level = f.logLevel
		case "pretty":
			cfg.Log.Pretty = f.pretty
		case "blocklist":
			cfg.Profiler.Blocklist = f.blocklist
		case "busy-policy":
			cfg.Profiler.BusyPolicy = f.busyPolicy
		case "max-duration":
			cfg.Profiler.MaxDuration = f.maxDuration
		case "include-offcpu":
			cfg.Profiler.IncludeOffCPU = f.includeOffCPU
		case "gzip-level":
			cfg.Profiler.GzipLevel = f.gzipLevel
		}
	})
}

// ControllerConfig maps the server configuration onto the session controller.
func ControllerConfig(cfg *config.ServerConfig) (session.Config, error) {
	policy, err := session.ParseBusyPolicy(cfg.Profiler.BusyPolicy)
	if err != nil {
		return session.Config{}, err
	}
	return session.Config{
		FrequencyHz:   constants.DefaultFrequencyHz,
		Blocklist:     cfg.Profiler.Blocklist,
		MaxDuration:   cfg.Profiler.MaxDuration,
		BusyPolicy:    policy,
		IncludeOffCPU: cfg.Profiler.IncludeOffCPU,
		GzipLevel:     cfg.Profiler.GzipLevel,
	}, nil
}

// Run serves profiles until ctx is done.
func Run(ctx context.Context, cfg *config.ServerConfig, logger zerolog.Logger) error {
	logger.Info().
		Str("version", version.Version).
		Str("addr", cfg.Addr).
		Msg("Starting cpuprof")

	ctrlCfg, err := ControllerConfig(cfg)
	if err != nil {
		return err
	}
	ctrl, err := session.NewController(ctrlCfg, logger)
	if err != nil {
		return fmt.Errorf("failed to create profiling controller: %w", err)
	}

	srv, err := httpapi.New(httpapi.Config{
		Addr:     cfg.Addr,
		Profiler: ctrl,
		Logger:   logger,
	})
	if err != nil {
		return fmt.Errorf("failed to create HTTP server: %w", err)
	}
	if err := srv.Start(); err != nil {
		return err
	}

	<-ctx.Done()
	logger.Info().Msg("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), constants.DefaultShutdownTimeout)
	defer cancel()
	if err := srv.Stop(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("Shutdown did not complete cleanly")
	}
	return nil
}
