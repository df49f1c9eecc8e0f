package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	cperrors "github.com/coral-mesh/cpuprof/internal/errors"
	"github.com/coral-mesh/cpuprof/internal/retry"
	"github.com/coral-mesh/cpuprof/pkg/version"
)

// maxErrorBody bounds how much of a failure response is read.
const maxErrorBody = 4 << 10

// ErrServer is returned when the server answers with a non-200 status.
var ErrServer = errors.New("profile request failed")

// Options configures a profile download.
type Options struct {
	// BaseURL is the server root, e.g. http://localhost:8080.
	BaseURL string
	// Seconds is sent as the seconds parameter when not nil.
	Seconds *int
	// Retry controls reconnection attempts.
	Retry  retry.Config
	Client *http.Client
	Logger zerolog.Logger
}

// ProfileURL returns the full profile endpoint for opts.
func ProfileURL(opts Options) (string, error) {
	base := strings.TrimRight(opts.BaseURL, "/")
	if !strings.Contains(base, "://") {
		base = "http://" + base
	}
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("invalid server URL %q: %w", opts.BaseURL, err)
	}
	if !strings.HasSuffix(u.Path, "/debug/pprof/profile") {
		u.Path += "/debug/pprof/profile"
	}
	if opts.Seconds != nil {
		q := u.Query()
		q.Set("seconds", strconv.Itoa(*opts.Seconds))
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

// Profile downloads one compressed profile. Connection failures are retried;
// error responses are not, since each request starts a new session.
func Profile(ctx context.Context, opts Options) ([]byte, error) {
	target, err := ProfileURL(opts)
	if err != nil {
		return nil, err
	}
	client := opts.Client
	if client == nil {
		client = http.DefaultClient
	}
	logger := opts.Logger.With().Str("url", target).Logger()

	cfg := opts.Retry
	cfg.OnRetry = func(attempt int, err error, backoff time.Duration) {
		logger.Warn().Err(err).Int("attempt", attempt).Dur("backoff", backoff).Msg("Server unreachable, retrying")
	}

	var body []byte
	err = retry.Do(ctx, cfg, func() error {
		b, err := get(ctx, client, target, logger)
		if err != nil {
			return err
		}
		body = b
		return nil
	}, isConnectionError)
	if err != nil {
		return nil, err
	}
	return body, nil
}

func get(ctx context.Context, client *http.Client, target string, logger zerolog.Logger) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, retry.Permanent(err)
	}
	req.Header.Set("User-Agent", version.UserAgent())

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer cperrors.DeferClose(logger, resp.Body, "Failed to close response body")

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, fmt.Errorf("%w: %s: %s", ErrServer, resp.Status, strings.TrimSpace(string(msg)))
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read profile: %w", err)
	}
	return body, nil
}

// isConnectionError reports whether err means the server could not be
// reached at all.
func isConnectionError(err error) bool {
	if errors.Is(err, ErrServer) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return opErr.Op == "dial"
	}
	var urlErr *url.Error
	return errors.As(err, &urlErr) && !urlErr.Timeout()
}
