package sdk

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/coral-mesh/cpuprof/internal/constants"
	"github.com/coral-mesh/cpuprof/internal/httpapi"
	"github.com/coral-mesh/cpuprof/internal/profiler/session"
)

// ProfilePath is where the profile handler expects to be mounted.
const ProfilePath = httpapi.ProfilePath

// SDK is a profiling endpoint embedded in an application.
type SDK struct {
	logger     zerolog.Logger
	controller *session.Controller
	server     *httpapi.Server
}

// Config contains SDK configuration options. Zero-valued profiler fields keep
// the defaults of session.DefaultConfig.
type Config struct {
	// Addr starts a dedicated listener when set (e.g. "127.0.0.1:6070").
	// Leave empty to mount Handler on an existing server.
	Addr string

	// Blocklist replaces the default module blocklist when non-nil. An empty,
	// non-nil slice keeps every frame.
	Blocklist []string

	// BusyPolicy defaults to session.BusyReject.
	BusyPolicy session.BusyPolicy

	// MaxDuration caps requested profiles. Zero means no cap.
	MaxDuration time.Duration

	// IncludeOffCPU also samples waiting goroutines.
	IncludeOffCPU bool

	// GzipLevel overrides the default compression level when set.
	GzipLevel *int

	// Logger is the logger instance (optional, defaults to zerolog.Nop()).
	Logger zerolog.Logger
}

// sessionConfig overlays the fields set in c on session.DefaultConfig.
func (c Config) sessionConfig() session.Config {
	cfg := session.DefaultConfig()
	if c.Blocklist != nil {
		cfg.Blocklist = c.Blocklist
	}
	if c.BusyPolicy != "" {
		cfg.BusyPolicy = c.BusyPolicy
	}
	cfg.MaxDuration = c.MaxDuration
	cfg.IncludeOffCPU = c.IncludeOffCPU
	if c.GzipLevel != nil {
		cfg.GzipLevel = *c.GzipLevel
	}
	return cfg
}

// New creates an SDK instance and, when Addr is set, starts its listener.
func New(config Config) (*SDK, error) {
	logger := config.Logger
	if logger.GetLevel() == zerolog.Disabled {
		logger = zerolog.Nop()
	}
	logger = logger.With().Str("component", "cpuprof-sdk").Logger()

	cfg := config.sessionConfig()
	controller, err := session.NewController(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create profiling controller: %w", err)
	}

	s := &SDK{
		logger:     logger,
		controller: controller,
	}

	if config.Addr != "" {
		server, err := httpapi.New(httpapi.Config{
			Addr:     config.Addr,
			Profiler: controller,
			Logger:   logger,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create profiling server: %w", err)
		}
		if err := server.Start(); err != nil {
			return nil, err
		}
		s.server = server
	}

	logger.Info().
		Str("addr", s.Addr()).
		Str("busy_policy", string(cfg.BusyPolicy)).
		Msg("Profiling SDK initialized")
	return s, nil
}

// Handler returns the profile handler for mounting at ProfilePath.
func (s *SDK) Handler() http.Handler {
	return httpapi.RequestLog(s.logger)(httpapi.NewProfileHandler(s.controller, s.logger))
}

// Profile runs one session in-process and returns the compressed profile.
// Durations are rounded up to whole seconds.
func (s *SDK) Profile(ctx context.Context, d time.Duration) ([]byte, error) {
	if d < 0 {
		return nil, fmt.Errorf("%w: %s is negative", session.ErrInvalidDuration, d)
	}
	seconds := wholeSeconds(d)
	res, err := s.controller.Profile(ctx, session.Request{Seconds: &seconds})
	if err != nil {
		return nil, err
	}
	return res.Artifact, nil
}

// wholeSeconds rounds a non-negative duration up to whole seconds.
func wholeSeconds(d time.Duration) int {
	return int((d + time.Second - 1) / time.Second)
}

// Addr returns the listener address, or an empty string without one.
func (s *SDK) Addr() string {
	if s.server == nil {
		return ""
	}
	return s.server.Addr()
}

// Close stops the listener, cancelling any running profile.
func (s *SDK) Close() error {
	if s.server == nil {
		return nil
	}
	s.logger.Info().Msg("Shutting down profiling SDK")

	ctx, cancel := context.WithTimeout(context.Background(), constants.DefaultShutdownTimeout)
	defer cancel()
	return s.server.Stop(ctx)
}
