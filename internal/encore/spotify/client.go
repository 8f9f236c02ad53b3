package spotify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/aussiebroadwan/encore/internal/encore/telemetry"
	"github.com/aussiebroadwan/encore/pkg/resilx"
)

const (
	DefaultAPIBaseURL = "https://api.spotify.com/v1"

	// DefaultRequestTimeout bounds a single attempt. The policy deadline
	// bounds the whole call.
	DefaultRequestTimeout = 5 * time.Second
)

// ErrUnauthorized means the upstream rejected the access token; the caller
// should refresh its session.
var ErrUnauthorized = errors.New("spotify: access token rejected")

// ClientConfig configures a Client.
type ClientConfig struct {
	BaseURL    string
	HTTPClient *http.Client
	Policy     *resilx.Policy
	Metrics    *telemetry.Metrics
}

// Client calls the Web API on behalf of a user. Every call goes through the
// shared resilience policy.
type Client struct {
	baseURL    string
	httpClient *http.Client
	policy     *resilx.Policy
	metrics    *telemetry.Metrics
}

func NewClient(cfg ClientConfig) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultAPIBaseURL
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: DefaultRequestTimeout}
	}
	if cfg.Policy == nil {
		cfg.Policy = &resilx.Policy{}
	}
	if cfg.Metrics == nil {
		cfg.Metrics = telemetry.Noop()
	}

	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: cfg.HTTPClient,
		policy:     cfg.Policy,
		metrics:    cfg.Metrics,
	}
}

// Me returns the current user's profile.
func (c *Client) Me(ctx context.Context, accessToken string) (User, error) {
	var user User
	if err := c.get(ctx, "me", accessToken, "/me", nil, &user); err != nil {
		return User{}, err
	}
	return user, nil
}

// TopTracks returns the user's top tracks for the time range.
func (c *Client) TopTracks(ctx context.Context, accessToken string, tr TimeRange, limit int) ([]Track, error) {
	var p page[Track]
	q := url.Values{"time_range": {string(tr)}, "limit": {strconv.Itoa(ClampLimit(limit))}}
	if err := c.get(ctx, "top_tracks", accessToken, "/me/top/tracks", q, &p); err != nil {
		return nil, err
	}
	return p.Items, nil
}

// TopArtists returns the user's top artists for the time range.
func (c *Client) TopArtists(ctx context.Context, accessToken string, tr TimeRange, limit int) ([]Artist, error) {
	var p page[Artist]
	q := url.Values{"time_range": {string(tr)}, "limit": {strconv.Itoa(ClampLimit(limit))}}
	if err := c.get(ctx, "top_artists", accessToken, "/me/top/artists", q, &p); err != nil {
		return nil, err
	}
	return p.Items, nil
}

// RecentlyPlayed returns the most recent plays, newest first.
func (c *Client) RecentlyPlayed(ctx context.Context, accessToken string, limit int) ([]PlayHistory, error) {
	var p page[PlayHistory]
	q := url.Values{"limit": {strconv.Itoa(ClampLimit(limit))}}
	if err := c.get(ctx, "recently_played", accessToken, "/me/player/recently-played", q, &p); err != nil {
		return nil, err
	}
	return p.Items, nil
}

func (c *Client) get(ctx context.Context, op, accessToken, path string, query url.Values, out any) error {
	if accessToken == "" {
		return ErrUnauthorized
	}

	apiURL := c.baseURL + path
	if len(query) > 0 {
		apiURL += "?" + query.Encode()
	}

	start := time.Now()
	err := c.policy.Do(ctx, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL, nil)
		if err != nil {
			return fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+accessToken)
		req.Header.Set("Accept", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("request failed: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
			return resilx.NewStatusError(resp, errorMessage(body))
		}

		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
		return nil
	})

	c.metrics.RecordUpstreamRequest(ctx, op, outcome(err), float64(time.Since(start).Milliseconds()))

	if err != nil {
		var se *resilx.StatusError
		if errors.As(err, &se) && se.StatusCode == http.StatusUnauthorized {
			return fmt.Errorf("%w: %w", ErrUnauthorized, err)
		}
		return fmt.Errorf("spotify %s: %w", op, err)
	}
	return nil
}

// errorMessage pulls the message out of {"error":{"status":..,"message":..}}.
func errorMessage(body []byte) string {
	var e struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if json.Unmarshal(body, &e) == nil && e.Error.Message != "" {
		return e.Error.Message
	}
	return strings.TrimSpace(string(body))
}

func outcome(err error) string {
	var se *resilx.StatusError
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, resilx.ErrCircuitOpen):
		return "circuit_open"
	case errors.Is(err, resilx.ErrRateLimited):
		return "rate_limited"
	case errors.As(err, &se):
		return "http_" + strconv.Itoa(se.StatusCode)
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	}
	return "error"
}
