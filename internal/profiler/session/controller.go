// Package session runs on-demand CPU profiling sessions.
//
// A Controller drives one session at a time through sampling, aggregation,
// serialization and compression, and hands back either the compressed
// artifact or a StageError naming the stage that failed.
package session

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	"github.com/coral-mesh/cpuprof/internal/constants"
	"github.com/coral-mesh/cpuprof/internal/profiler/compress"
	"github.com/coral-mesh/cpuprof/internal/profiler/pprof"
	"github.com/coral-mesh/cpuprof/internal/profiler/report"
	"github.com/coral-mesh/cpuprof/internal/profiler/sampler"
	"github.com/coral-mesh/cpuprof/internal/profiler/stack"
)

const (
	// DefaultFrequencyHz is the fixed sampling frequency.
	DefaultFrequencyHz = constants.DefaultFrequencyHz

	// DefaultSeconds is used when a request does not name a duration.
	DefaultSeconds = constants.DefaultProfileSeconds
)

// maxSeconds keeps a requested duration representable as time.Duration.
const maxSeconds = math.MaxInt64 / int64(time.Second)

// ErrInvalidDuration is returned for a malformed or out of range duration.
var ErrInvalidDuration = errors.New("invalid profiling duration")

// BusyPolicy decides what happens to a request while another session runs.
type BusyPolicy string

const (
	// BusyReject fails the request at Starting.
	BusyReject BusyPolicy = "reject"
	// BusyQueue waits until the running session finishes.
	BusyQueue BusyPolicy = "queue"
)

// ParseBusyPolicy parses a policy name. The empty string selects BusyReject.
func ParseBusyPolicy(s string) (BusyPolicy, error) {
	switch BusyPolicy(strings.ToLower(strings.TrimSpace(s))) {
	case "", BusyReject:
		return BusyReject, nil
	case BusyQueue:
		return BusyQueue, nil
	default:
		return "", fmt.Errorf("unknown busy policy %q (expected %q or %q)", s, BusyReject, BusyQueue)
	}
}

// Config configures a Controller.
type Config struct {
	FrequencyHz int
	// Blocklist holds module patterns whose frames are dropped.
	Blocklist []string
	// MaxDuration caps the requested duration. Zero means no cap.
	MaxDuration   time.Duration
	BusyPolicy    BusyPolicy
	IncludeOffCPU bool
	GzipLevel     int
}

// DefaultConfig returns the default controller configuration.
func DefaultConfig() Config {
	return Config{
		FrequencyHz: DefaultFrequencyHz,
		Blocklist:   append([]string(nil), stack.DefaultBlocklist...),
		BusyPolicy:  BusyReject,
		GzipLevel:   compress.DefaultLevel,
	}
}

// Request asks for one profile. A nil Seconds selects DefaultSeconds.
type Request struct {
	Seconds *int
}

// Duration returns the requested sampling window.
func (r Request) Duration() time.Duration {
	if r.Seconds == nil {
		return DefaultSeconds * time.Second
	}
	return time.Duration(*r.Seconds) * time.Second
}

// Result is the outcome of a completed session.
type Result struct {
	SessionID string
	// Artifact is the gzip-compressed pprof profile.
	Artifact []byte
	// Samples is the total sample count in the report.
	Samples int64
	Ticks   int64
	Elapsed time.Duration
	History []State
}

// SourceFactory returns the stack source for a new session.
type SourceFactory func(includeOffCPU bool) sampler.Source

// Option customizes a Controller.
type Option func(*Controller)

// WithSourceFactory replaces the goroutine stack source.
func WithSourceFactory(f SourceFactory) Option {
	return func(c *Controller) {
		c.newSource = f
	}
}

// WithCompressor replaces the gzip compressor.
func WithCompressor(comp compress.Compressor) Option {
	return func(c *Controller) {
		c.compressor = comp
	}
}

// WithMapping sets the mapping recorded in every report instead of
// describing the running executable.
func WithMapping(m report.Mapping) Option {
	return func(c *Controller) {
		c.mapping = &m
	}
}

// sessionPermit is shared by every Controller in the process, like the
// sampler slot it guards, so a queued request waits on sessions started by
// any Controller.
var sessionPermit = semaphore.NewWeighted(1)

// Controller runs profiling sessions. Only one session in the process holds
// the permit at a time; the permit is released on every exit path.
type Controller struct {
	cfg        Config
	logger     zerolog.Logger
	permit     *semaphore.Weighted
	filter     *stack.Filter
	compressor compress.Compressor
	newSource  SourceFactory
	mapping    *report.Mapping
	usage      *usageProbe
}

// NewController creates a controller from cfg.
func NewController(cfg Config, logger zerolog.Logger, opts ...Option) (*Controller, error) {
	if cfg.FrequencyHz == 0 {
		cfg.FrequencyHz = DefaultFrequencyHz
	}
	if cfg.MaxDuration < 0 {
		return nil, fmt.Errorf("%w: maximum %s is negative", ErrInvalidDuration, cfg.MaxDuration)
	}
	policy, err := ParseBusyPolicy(string(cfg.BusyPolicy))
	if err != nil {
		return nil, err
	}
	cfg.BusyPolicy = policy

	c := &Controller{
		cfg:    cfg,
		logger: logger.With().Str("component", "profiler_session").Logger(),
		permit: sessionPermit,
		filter: stack.NewFilter(cfg.Blocklist),
		newSource: func(includeOffCPU bool) sampler.Source {
			return sampler.NewGoroutineSource(includeOffCPU)
		},
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.compressor == nil {
		gz, err := compress.NewGzip(cfg.GzipLevel)
		if err != nil {
			return nil, err
		}
		c.compressor = gz
	}
	if c.mapping == nil {
		m, err := report.SelfMapping()
		if err != nil {
			c.logger.Warn().Err(err).Msg("Executable build ID unavailable")
		}
		c.mapping = &m
	}
	c.usage = newUsageProbe(c.logger)

	c.logger.Debug().
		Int("frequency_hz", cfg.FrequencyHz).
		Strs("blocklist", cfg.Blocklist).
		Str("busy_policy", string(cfg.BusyPolicy)).
		Dur("max_duration", cfg.MaxDuration).
		Msg("Profiling controller ready")
	return c, nil
}

// Config returns the effective configuration.
func (c *Controller) Config() Config {
	return c.cfg
}

// ParseSeconds parses the raw seconds query value. An empty value selects
// the default duration.
func (c *Controller) ParseSeconds(raw string) (Request, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Request{}, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return Request{}, fmt.Errorf("%w: %q is not an integer", ErrInvalidDuration, raw)
	}
	if int64(n) > maxSeconds {
		return Request{}, fmt.Errorf("%w: %d seconds is too long", ErrInvalidDuration, n)
	}
	req := Request{Seconds: &n}
	if err := c.checkDuration(req.Duration()); err != nil {
		return Request{}, err
	}
	return req, nil
}

func (c *Controller) checkDuration(d time.Duration) error {
	if d < 0 {
		return fmt.Errorf("%w: %s is negative", ErrInvalidDuration, d)
	}
	if c.cfg.MaxDuration > 0 && d > c.cfg.MaxDuration {
		return fmt.Errorf("%w: %s exceeds maximum %s", ErrInvalidDuration, d, c.cfg.MaxDuration)
	}
	return nil
}

// Profile runs one session to completion. It blocks for the requested
// duration while samples are captured. Cancelling ctx stops sampling early
// and fails the session.
func (c *Controller) Profile(ctx context.Context, req Request) (*Result, error) {
	duration := req.Duration()
	sess := newSession(duration, c.cfg.FrequencyHz, c.cfg.Blocklist)
	logger := c.logger.With().Str("session_id", sess.ID).Logger()

	sess.mustAdvance() // Idle -> Starting

	if err := c.checkDuration(duration); err != nil {
		return nil, c.failed(logger, sess, err)
	}
	if err := c.acquire(ctx); err != nil {
		return nil, c.failed(logger, sess, err)
	}
	defer c.permit.Release(1)

	s, err := sampler.Start(sampler.Options{
		FrequencyHz: c.cfg.FrequencyHz,
		Duration:    duration,
		Filter:      c.filter,
		Source:      c.newSource(c.cfg.IncludeOffCPU),
		Logger:      logger,
	})
	if err != nil {
		return nil, c.failed(logger, sess, err)
	}
	cpuBefore := c.usage.cpuSeconds(ctx)

	sess.mustAdvance() // Starting -> Sampling
	logger.Info().
		Dur("duration", duration).
		Int("frequency_hz", c.cfg.FrequencyHz).
		Msg("Profiling started")

	var cancelled error
	select {
	case <-s.Done():
	case <-ctx.Done():
		cancelled = ctx.Err()
	}
	samples := s.Stop()
	if cancelled != nil {
		return nil, c.failed(logger, sess, cancelled)
	}
	elapsed := s.Elapsed()
	cpuAfter := c.usage.cpuSeconds(context.WithoutCancel(ctx))

	sess.mustAdvance() // Sampling -> Building
	comments := []string{
		"session_id=" + sess.ID,
		fmt.Sprintf("ticks=%d", s.Ticks()),
	}
	comments = append(comments, c.usage.comments(cpuBefore, cpuAfter)...)
	r := report.Build(samples, report.Options{
		FrequencyHz: c.cfg.FrequencyHz,
		Start:       s.StartedAt(),
		Duration:    elapsed,
		Mapping:     *c.mapping,
		Comments:    comments,
	})
	if err := r.Validate(); err != nil {
		return nil, c.failed(logger, sess, err)
	}

	sess.mustAdvance() // Building -> Serializing
	encoded, err := pprof.Encode(r)
	if err != nil {
		return nil, c.failed(logger, sess, err)
	}

	sess.mustAdvance() // Serializing -> Compressing
	artifact, err := c.compressor.Compress(encoded)
	if err != nil {
		return nil, c.failed(logger, sess, err)
	}

	sess.mustAdvance() // Compressing -> Completed
	result := &Result{
		SessionID: sess.ID,
		Artifact:  artifact,
		Samples:   r.TotalCount(),
		Ticks:     s.Ticks(),
		Elapsed:   elapsed,
		History:   sess.History(),
	}
	logger.Info().
		Dur("elapsed", elapsed).
		Int64("ticks", result.Ticks).
		Int64("samples", result.Samples).
		Int("stacks", len(r.Samples)).
		Int("bytes", len(artifact)).
		Msg("Profiling completed")
	return result, nil
}

// acquire claims the permit according to the busy policy.
func (c *Controller) acquire(ctx context.Context) error {
	if c.cfg.BusyPolicy == BusyQueue {
		if err := c.permit.Acquire(ctx, 1); err != nil {
			return fmt.Errorf("waiting for running session: %w", err)
		}
		return nil
	}
	if !c.permit.TryAcquire(1) {
		return sampler.ErrAlreadyRunning
	}
	return nil
}

func (c *Controller) failed(logger zerolog.Logger, sess *Session, err error) error {
	stageErr := sess.fail(err)
	logger.Warn().
		Err(err).
		Str("stage", stageErr.Stage.String()).
		Msg("Profiling failed")
	return stageErr
}
