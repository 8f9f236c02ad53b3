package service

import (
	"context"
	"time"

	"github.com/aussiebroadwan/encore/internal/encore/spotify"
	"github.com/aussiebroadwan/encore/internal/encore/store"
	"github.com/aussiebroadwan/encore/pkg/jwtx"
	"github.com/aussiebroadwan/encore/pkg/slogx"
	"github.com/jonboulle/clockwork"
)

// StatsService serves the listening-history reads for an authenticated
// session, using the access token carried by the credential.
type StatsService struct {
	Client *spotify.CachedClient
	Store  store.Store
	Clock  clockwork.Clock
}

func (s *StatsService) Me(ctx context.Context, claims jwtx.SessionClaims) (spotify.User, error) {
	return s.Client.Me(ctx, claims.AccessToken)
}

func (s *StatsService) TopTracks(ctx context.Context, claims jwtx.SessionClaims, tr spotify.TimeRange, limit int) (spotify.Page[spotify.Track], error) {
	page, err := s.Client.TopTracks(ctx, claims.AccountID(), claims.AccessToken, tr, limit)
	if err == nil && !page.FromCache {
		s.touch(ctx, claims.AccountID(), page.FetchedAt)
	}
	return page, err
}

func (s *StatsService) TopArtists(ctx context.Context, claims jwtx.SessionClaims, tr spotify.TimeRange, limit int) (spotify.Page[spotify.Artist], error) {
	page, err := s.Client.TopArtists(ctx, claims.AccountID(), claims.AccessToken, tr, limit)
	if err == nil && !page.FromCache {
		s.touch(ctx, claims.AccountID(), page.FetchedAt)
	}
	return page, err
}

func (s *StatsService) RecentlyPlayed(ctx context.Context, claims jwtx.SessionClaims, limit int) (spotify.Page[spotify.PlayHistory], error) {
	page, err := s.Client.RecentlyPlayed(ctx, claims.AccountID(), claims.AccessToken, limit)
	if err == nil && !page.FromCache {
		s.touch(ctx, claims.AccountID(), page.FetchedAt)
	}
	return page, err
}

// touch records a successful upstream fetch; failures only get logged.
func (s *StatsService) touch(ctx context.Context, accountID string, at time.Time) {
	if s.Store == nil {
		return
	}
	if at.IsZero() {
		if s.Clock != nil {
			at = s.Clock.Now()
		} else {
			at = time.Now()
		}
	}
	if err := s.Store.Accounts().TouchLastSynced(ctx, accountID, at); err != nil {
		slogx.FromContext(ctx).Warn("failed to record last sync", "account_id", accountID, "error", err)
	}
}
