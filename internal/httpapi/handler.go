package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/coral-mesh/cpuprof/internal/profiler/session"
)

// ProfilePath is the only endpoint served.
const ProfilePath = "/debug/pprof/profile"

// Profiler runs profiling sessions on behalf of the handler.
type Profiler interface {
	ParseSeconds(raw string) (session.Request, error)
	Profile(ctx context.Context, req session.Request) (*session.Result, error)
}

// ProfileHandler serves GET /debug/pprof/profile?seconds=N.
type ProfileHandler struct {
	profiler Profiler
	logger   zerolog.Logger
}

// NewProfileHandler creates a handler backed by p.
func NewProfileHandler(p Profiler, logger zerolog.Logger) *ProfileHandler {
	return &ProfileHandler{
		profiler: p,
		logger:   logger.With().Str("component", "profile_handler").Logger(),
	}
}

func (h *ProfileHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	req, err := h.profiler.ParseSeconds(r.URL.Query().Get("seconds"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	res, err := h.profiler.Profile(r.Context(), req)
	if err != nil {
		if errors.Is(err, session.ErrInvalidDuration) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		h.logger.Error().Err(err).Msg("Profile request failed")
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition", `attachment; filename="profile.pb.gz"`)
	w.Header().Set("Content-Length", strconv.Itoa(len(res.Artifact)))
	w.Header().Set("X-Profile-Session", res.SessionID)
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(res.Artifact); err != nil {
		h.logger.Debug().Err(err).Str("session_id", res.SessionID).Msg("Client went away before the profile was sent")
	}
}
