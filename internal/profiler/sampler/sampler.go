// Package sampler captures call stacks of the running process at a fixed
// frequency for a bounded wall-clock duration.
//
// At most one Sampler is active per process. Start claims the process-wide
// slot and Stop releases it.
package sampler

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/coral-mesh/cpuprof/internal/profiler/stack"
)

const (
	// MaxFrequency is the highest accepted sampling frequency.
	MaxFrequency = 1000
)

var (
	// ErrInvalidFrequency is returned for a non-positive or too high frequency.
	ErrInvalidFrequency = errors.New("invalid sampling frequency")

	// ErrAlreadyRunning is returned when another sampler is active.
	ErrAlreadyRunning = errors.New("sampler already running")
)

// active guards the process-wide sampler slot.
var active atomic.Bool

// Options configures a sampling run.
type Options struct {
	FrequencyHz int
	Duration    time.Duration
	// Filter drops blocklisted frames. Nil keeps every frame.
	Filter *stack.Filter
	// Source defaults to a GoroutineSource sampling on-CPU goroutines.
	Source Source
	Logger zerolog.Logger
}

// Sampler is one running capture. It is created by Start.
type Sampler struct {
	opts   Options
	logger zerolog.Logger

	mu      sync.Mutex
	samples []stack.Sample
	ticks   atomic.Int64

	stopCh   chan struct{}
	doneCh   chan struct{}
	stopOnce sync.Once
	release  sync.Once

	startedAt time.Time
	stoppedAt time.Time
}

// Start validates opts, claims the process-wide slot and begins ticking.
func Start(opts Options) (*Sampler, error) {
	if opts.FrequencyHz <= 0 {
		return nil, fmt.Errorf("%w: %dHz must be positive", ErrInvalidFrequency, opts.FrequencyHz)
	}
	if opts.FrequencyHz > MaxFrequency {
		return nil, fmt.Errorf("%w: %dHz exceeds maximum %dHz", ErrInvalidFrequency, opts.FrequencyHz, MaxFrequency)
	}
	if opts.Duration < 0 {
		opts.Duration = 0
	}
	if !active.CompareAndSwap(false, true) {
		return nil, ErrAlreadyRunning
	}

	if opts.Source == nil {
		opts.Source = NewGoroutineSource(false)
	}

	s := &Sampler{
		opts:      opts,
		logger:    opts.Logger.With().Str("component", "sampler").Logger(),
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
		startedAt: time.Now(),
	}

	s.logger.Debug().
		Int("frequency_hz", opts.FrequencyHz).
		Dur("duration", opts.Duration).
		Msg("Sampler started")

	go s.loop()
	return s, nil
}

// loop ticks until the duration elapses or Stop is called.
func (s *Sampler) loop() {
	defer close(s.doneCh)

	if s.opts.Duration == 0 {
		return
	}

	ticker := time.NewTicker(time.Second / time.Duration(s.opts.FrequencyHz))
	defer ticker.Stop()
	deadline := time.NewTimer(s.opts.Duration)
	defer deadline.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-deadline.C:
			return
		case <-ticker.C:
			s.tick()
		}
	}
}

// tick captures, filters and records one round of stacks.
func (s *Sampler) tick() {
	s.ticks.Add(1)
	captured := s.opts.Source.Capture()

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, frames := range captured {
		sample := s.opts.Filter.Apply(stack.Sample{Frames: frames})
		if sample.Empty() {
			continue
		}
		s.samples = append(s.samples, sample)
	}
}

// Done is closed once ticking has ended, either because the duration elapsed
// or because Stop was called.
func (s *Sampler) Done() <-chan struct{} {
	return s.doneCh
}

// Stop halts ticking, releases the process-wide slot and returns every sample
// captured. It is safe to call concurrently and more than once; later calls
// return the same samples.
func (s *Sampler) Stop() []stack.Sample {
	s.stopOnce.Do(func() {
		close(s.stopCh)
	})
	<-s.doneCh

	s.release.Do(func() {
		s.mu.Lock()
		s.stoppedAt = time.Now()
		s.mu.Unlock()
		active.Store(false)
		s.logger.Debug().
			Int64("ticks", s.ticks.Load()).
			Int("samples", len(s.samples)).
			Dur("elapsed", s.stoppedAt.Sub(s.startedAt)).
			Msg("Sampler stopped")
	})

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.samples
}

// Ticks returns the number of ticks executed so far.
func (s *Sampler) Ticks() int64 {
	return s.ticks.Load()
}

// StartedAt returns the time ticking began.
func (s *Sampler) StartedAt() time.Time {
	return s.startedAt
}

// Elapsed returns the wall-clock time sampled. It keeps growing until Stop.
func (s *Sampler) Elapsed() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stoppedAt.IsZero() {
		return time.Since(s.startedAt)
	}
	return s.stoppedAt.Sub(s.startedAt)
}
