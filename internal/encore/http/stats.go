package http

import (
	"net/http"
	"strconv"

	"github.com/aussiebroadwan/encore/internal/encore/service"
	"github.com/aussiebroadwan/encore/internal/encore/spotify"
	"github.com/aussiebroadwan/encore/pkg/httpx"
)

const cacheHeader = "X-Cache"

// StatsHandler serves the authenticated listening-history reads.
type StatsHandler struct {
	Stats *service.StatsService

	errs errorMapper
}

// HandleMe godoc
//
//	@Summary		Current profile
//	@Tags			Stats
//	@Produce		json
//	@Security		BearerAuth
//	@Success		200	{object}	ProfileResponse
//	@Failure		401	{object}	httpx.APIError	"invalid_token, access_token_expired"
//	@Failure		502	{object}	httpx.APIError	"error, error_description"
//	@Failure		503	{object}	httpx.APIError	"error, error_description"
//	@Router			/v1/me [get].
func (h *StatsHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	claims, ok := httpx.SessionFromContext(r.Context())
	if !ok {
		httpx.ErrInvalidToken.WriteError(w)
		return
	}

	user, err := h.Stats.Me(r.Context(), claims)
	if err != nil {
		h.errs.write(w, r, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, ProfileResponse{
		ID:          user.ID,
		DisplayName: user.DisplayName,
		Email:       user.Email,
		Country:     user.Country,
		Product:     user.Product,
		ImageURL:    user.ImageURL(),
	})
}

// HandleTop godoc
//
//	@Summary		Top tracks or artists
//	@Description	Served from the response cache when a fresh entry holds at least limit items.
//	@Tags			Stats
//	@Produce		json
//	@Security		BearerAuth
//	@Param			kind		path		string	true	"tracks or artists"	Enums(tracks, artists)
//	@Param			time_range	query		string	false	"Time range"		Enums(short_term, medium_term, long_term)	default(medium_term)
//	@Param			limit		query		int		false	"Number of items"	minimum(1)	maximum(50)	default(20)
//	@Success		200			{object}	TopTracksResponse
//	@Header			200			{string}	X-Cache	"HIT or MISS"
//	@Failure		400			{object}	httpx.APIError	"error, error_description"
//	@Failure		401			{object}	httpx.APIError	"invalid_token, access_token_expired"
//	@Failure		404			{object}	httpx.APIError	"error, error_description"
//	@Failure		429			{object}	httpx.APIError	"error, error_description"
//	@Failure		502			{object}	httpx.APIError	"error, error_description"
//	@Failure		503			{object}	httpx.APIError	"error, error_description"
//	@Router			/v1/me/top/{kind} [get].
func (h *StatsHandler) HandleTop(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	claims, ok := httpx.SessionFromContext(ctx)
	if !ok {
		httpx.ErrInvalidToken.WriteError(w)
		return
	}

	kind := r.PathValue("kind")
	if kind != "tracks" && kind != "artists" {
		httpx.ErrNotFound.WithDescription("kind must be tracks or artists").WriteError(w)
		return
	}

	tr, err := spotify.ParseTimeRange(r.URL.Query().Get("time_range"))
	if err != nil {
		httpx.ErrInvalidRequest.WithDescription(err.Error()).WriteError(w)
		return
	}
	limit, ok := parseLimit(w, r)
	if !ok {
		return
	}

	if kind == "tracks" {
		page, err := h.Stats.TopTracks(ctx, claims, tr, limit)
		if err != nil {
			h.errs.write(w, r, err)
			return
		}
		setCacheHeader(w, page.FromCache)
		httpx.WriteJSON(w, http.StatusOK, TopTracksResponse{
			TimeRange: tr,
			Limit:     limit,
			FetchedAt: page.FetchedAt,
			Items:     nonNil(page.Items),
		})
		return
	}

	page, err := h.Stats.TopArtists(ctx, claims, tr, limit)
	if err != nil {
		h.errs.write(w, r, err)
		return
	}
	setCacheHeader(w, page.FromCache)
	httpx.WriteJSON(w, http.StatusOK, TopArtistsResponse{
		TimeRange: tr,
		Limit:     limit,
		FetchedAt: page.FetchedAt,
		Items:     nonNil(page.Items),
	})
}

// HandleRecentlyPlayed godoc
//
//	@Summary		Recently played tracks
//	@Tags			Stats
//	@Produce		json
//	@Security		BearerAuth
//	@Param			limit	query		int	false	"Number of items"	minimum(1)	maximum(50)	default(20)
//	@Success		200		{object}	RecentlyPlayedResponse
//	@Header			200		{string}	X-Cache	"HIT or MISS"
//	@Failure		400		{object}	httpx.APIError	"error, error_description"
//	@Failure		401		{object}	httpx.APIError	"invalid_token, access_token_expired"
//	@Failure		429		{object}	httpx.APIError	"error, error_description"
//	@Failure		502		{object}	httpx.APIError	"error, error_description"
//	@Failure		503		{object}	httpx.APIError	"error, error_description"
//	@Router			/v1/me/recently-played [get].
func (h *StatsHandler) HandleRecentlyPlayed(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	claims, ok := httpx.SessionFromContext(ctx)
	if !ok {
		httpx.ErrInvalidToken.WriteError(w)
		return
	}

	limit, ok := parseLimit(w, r)
	if !ok {
		return
	}

	page, err := h.Stats.RecentlyPlayed(ctx, claims, limit)
	if err != nil {
		h.errs.write(w, r, err)
		return
	}
	setCacheHeader(w, page.FromCache)
	httpx.WriteJSON(w, http.StatusOK, RecentlyPlayedResponse{
		Limit:     limit,
		FetchedAt: page.FetchedAt,
		Items:     nonNil(page.Items),
	})
}

// parseLimit reads ?limit=, defaulting to spotify.DefaultLimit. Values
// outside 1..MaxLimit are rejected rather than clamped.
func parseLimit(w http.ResponseWriter, r *http.Request) (int, bool) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return spotify.DefaultLimit, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 || n > spotify.MaxLimit {
		httpx.ErrInvalidRequest.
			WithDescription("limit must be an integer between 1 and " + strconv.Itoa(spotify.MaxLimit)).
			WriteError(w)
		return 0, false
	}
	return n, true
}

func setCacheHeader(w http.ResponseWriter, hit bool) {
	if hit {
		w.Header().Set(cacheHeader, "HIT")
	} else {
		w.Header().Set(cacheHeader, "MISS")
	}
}

func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
