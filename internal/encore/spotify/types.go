// Package spotify talks to the Spotify Web API and accounts service.
//
// Response types follow https://developer.spotify.com/documentation/web-api/reference/
// and keep only the fields the stats endpoints render.
package spotify

import (
	"fmt"
	"time"
)

// MaxLimit is the largest page the top-items and recently-played endpoints return.
const MaxLimit = 50

// DefaultLimit matches the upstream default page size.
const DefaultLimit = 20

// User is the current user's profile.
type User struct {
	ID          string  `json:"id"`
	DisplayName string  `json:"display_name"`
	Email       string  `json:"email"`
	Country     string  `json:"country"`
	Product     string  `json:"product"` // premium, free, etc.
	Images      []Image `json:"images"`
}

// ImageURL returns the first (largest) image, if any.
func (u User) ImageURL() string {
	if len(u.Images) == 0 {
		return ""
	}
	return u.Images[0].URL
}

type Image struct {
	URL    string `json:"url"`
	Height int    `json:"height"`
	Width  int    `json:"width"`
}

type Artist struct {
	ID         string   `json:"id"`
	Name       string   `json:"name"`
	Genres     []string `json:"genres,omitempty"`
	Images     []Image  `json:"images,omitempty"`
	Popularity int      `json:"popularity,omitempty"`
	URI        string   `json:"uri"`
}

type Album struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	ReleaseDate string   `json:"release_date"`
	Images      []Image  `json:"images"`
	Artists     []Artist `json:"artists,omitempty"`
	URI         string   `json:"uri"`
}

type Track struct {
	ID         string   `json:"id"`
	Name       string   `json:"name"`
	Artists    []Artist `json:"artists"`
	Album      Album    `json:"album"`
	DurationMS int      `json:"duration_ms"`
	Explicit   bool     `json:"explicit"`
	Popularity int      `json:"popularity"`
	URI        string   `json:"uri"`
}

// PlayHistory is one entry of the recently-played list.
type PlayHistory struct {
	Track    Track     `json:"track"`
	PlayedAt time.Time `json:"played_at"`
}

type page[T any] struct {
	Items []T     `json:"items"`
	Total int     `json:"total"`
	Limit int     `json:"limit"`
	Next  *string `json:"next"`
}

// TimeRange selects the affinity window for top items.
type TimeRange string

const (
	ShortTerm  TimeRange = "short_term"  // ~4 weeks
	MediumTerm TimeRange = "medium_term" // ~6 months
	LongTerm   TimeRange = "long_term"   // ~1 year
)

// ParseTimeRange accepts the upstream names; empty means MediumTerm.
func ParseTimeRange(s string) (TimeRange, error) {
	switch TimeRange(s) {
	case "":
		return MediumTerm, nil
	case ShortTerm, MediumTerm, LongTerm:
		return TimeRange(s), nil
	}
	return "", fmt.Errorf("invalid time_range %q", s)
}

// Kind is the resource kind half of a cache key.
type Kind string

const (
	KindTopTracks      Kind = "top_tracks"
	KindTopArtists     Kind = "top_artists"
	KindRecentlyPlayed Kind = "recently_played"
)

// ClampLimit pins limit to 1..MaxLimit, mapping zero to DefaultLimit.
func ClampLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultLimit
	case limit > MaxLimit:
		return MaxLimit
	}
	return limit
}
