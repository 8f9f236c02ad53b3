package http

import (
	"time"

	"github.com/aussiebroadwan/encore/internal/encore/spotify"
)

// HealthResponse is returned by /livez and /readyz.
type HealthResponse struct {
	Status  string        `json:"status"`
	Uptime  string        `json:"uptime"`
	Version string        `json:"version"`
	Checks  *HealthChecks `json:"checks,omitempty"`
}

type HealthChecks struct {
	Database string `json:"database"`
	Cache    string `json:"cache,omitempty"`
	Upstream map[string]string `json:"upstream,omitempty"` // breaker state per dependency
}

// LoginResponse is the JSON form of the login redirect.
type LoginResponse struct {
	URL string `json:"url"`
}

// RefreshResponse reports what /v1/auth/refresh did.
type RefreshResponse struct {
	Status    string    `json:"status"` // still_valid or rotated
	ExpiresAt time.Time `json:"expires_at"`
	Token     string    `json:"token,omitempty"`
}

type LogoutResponse struct {
	Status string `json:"status"`
}

type ProfileResponse struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	Email       string `json:"email,omitempty"`
	Country     string `json:"country,omitempty"`
	Product     string `json:"product,omitempty"`
	ImageURL    string `json:"image_url,omitempty"`
}

type TopTracksResponse struct {
	TimeRange spotify.TimeRange `json:"time_range"`
	Limit     int               `json:"limit"`
	FetchedAt time.Time         `json:"fetched_at"`
	Items     []spotify.Track   `json:"items"`
}

type TopArtistsResponse struct {
	TimeRange spotify.TimeRange `json:"time_range"`
	Limit     int               `json:"limit"`
	FetchedAt time.Time         `json:"fetched_at"`
	Items     []spotify.Artist  `json:"items"`
}

type RecentlyPlayedResponse struct {
	Limit     int                   `json:"limit"`
	FetchedAt time.Time             `json:"fetched_at"`
	Items     []spotify.PlayHistory `json:"items"`
}
