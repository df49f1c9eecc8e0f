package session

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	cperrors "github.com/coral-mesh/cpuprof/internal/errors"
)

// Session is one profiling request moving through the lifecycle. It is
// created by the Controller and discarded once terminal.
type Session struct {
	ID          string
	Duration    time.Duration
	FrequencyHz int
	Blocklist   []string
	StartedAt   time.Time

	mu      sync.Mutex
	state   State
	history []State
}

func newSession(duration time.Duration, frequencyHz int, blocklist []string) *Session {
	return &Session{
		ID:          uuid.NewString(),
		Duration:    duration,
		FrequencyHz: frequencyHz,
		Blocklist:   blocklist,
		StartedAt:   time.Now(),
		state:       StateIdle,
		history:     []State{StateIdle},
	}
}

// State returns the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// History returns every state the session has been in, oldest first.
func (s *Session) History() []State {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]State, len(s.history))
	copy(out, s.history)
	return out
}

// advance moves to the successor of the current state on the success path.
func (s *Session) advance() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	to, ok := next[s.state]
	if !ok {
		return fmt.Errorf("no transition out of %s", s.state)
	}
	s.state = to
	s.history = append(s.history, to)
	return nil
}

// mustAdvance advances along the success path. A missing transition is a
// controller bug, not a session failure.
func (s *Session) mustAdvance() {
	cperrors.Must(s.advance(), "session "+s.ID)
}

// fail moves the session to Failed and returns the error tagged with the
// stage it failed in.
func (s *Session) fail(err error) *StageError {
	s.mu.Lock()
	defer s.mu.Unlock()
	stage := s.state
	if !stage.Terminal() {
		s.state = StateFailed
		s.history = append(s.history, StateFailed)
	}
	return &StageError{SessionID: s.ID, Stage: stage, Err: err}
}
