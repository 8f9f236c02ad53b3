package service

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aussiebroadwan/encore/internal/encore/domain"
	"github.com/aussiebroadwan/encore/internal/encore/spotify"
	"github.com/aussiebroadwan/encore/pkg/slogx"
	"github.com/stretchr/testify/require"
)

type countingUpstream struct {
	calls atomic.Int32
}

func (u *countingUpstream) Me(context.Context, string) (spotify.User, error) {
	return spotify.User{ID: testSpotifyID}, nil
}

func (u *countingUpstream) TopTracks(_ context.Context, _ string, _ spotify.TimeRange, limit int) ([]spotify.Track, error) {
	u.calls.Add(1)
	out := make([]spotify.Track, limit)
	for i := range out {
		out[i] = spotify.Track{ID: fmt.Sprintf("t%d", i)}
	}
	return out, nil
}

func (u *countingUpstream) TopArtists(context.Context, string, spotify.TimeRange, int) ([]spotify.Artist, error) {
	u.calls.Add(1)
	return []spotify.Artist{{ID: "a0"}}, nil
}

func (u *countingUpstream) RecentlyPlayed(context.Context, string, int) ([]spotify.PlayHistory, error) {
	u.calls.Add(1)
	return nil, nil
}

func TestStatsServiceTouchesOnUpstreamFetch(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	session := f.login(t)
	claims, err := f.svc.Authenticate(session.Credential)
	require.NoError(t, err)

	upstream := &countingUpstream{}
	stats := &StatsService{
		Client: spotify.NewCachedClient(spotify.CachedClientConfig{
			Upstream: upstream,
			Cache:    f.store.ResponseCache(),
			Clock:    f.clock,
		}),
		Store: f.store,
		Clock: f.clock,
	}

	require.Nil(t, f.account(t, session.AccountID).LastSyncedAt)

	page, err := stats.TopTracks(ctx, claims, spotify.ShortTerm, 10)
	require.NoError(t, err)
	require.False(t, page.FromCache)
	require.Len(t, page.Items, 10)

	synced := f.account(t, session.AccountID).LastSyncedAt
	require.NotNil(t, synced)
	require.True(t, synced.Equal(f.clock.Now().UTC()))

	f.clock.Advance(time.Hour)
	page, err = stats.TopTracks(ctx, claims, spotify.ShortTerm, 5)
	require.NoError(t, err)
	require.True(t, page.FromCache)
	require.Len(t, page.Items, 5)
	require.Equal(t, int32(1), upstream.calls.Load())

	// A hit leaves the sync time alone.
	require.True(t, f.account(t, session.AccountID).LastSyncedAt.Equal(*synced))
}

func TestHousekeepingCleanup(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	session := f.login(t)
	key := domain.CacheKey{AccountID: session.AccountID, Kind: string(spotify.KindTopTracks), TimeRange: string(spotify.LongTerm)}
	require.NoError(t, f.store.ResponseCache().PutResponse(ctx, domain.CacheEntry{
		Key:       key,
		Payload:   []byte(`[]`),
		UpdatedAt: f.clock.Now(),
	}))

	hk := NewHousekeepingService(f.store, slogx.Discard(), time.Hour, 24*time.Hour)
	hk.Clock = f.clock

	// Nothing is old enough yet.
	hk.cleanup()
	_, err := f.store.ResponseCache().GetResponse(ctx, key)
	require.NoError(t, err)
	require.True(t, f.account(t, session.AccountID).HasRefreshToken())

	// Past the session lifetime both the cache row and the refresh secret go.
	f.clock.Advance(8 * 24 * time.Hour)
	hk.cleanup()

	_, err = f.store.ResponseCache().GetResponse(ctx, key)
	require.Error(t, err)

	a := f.account(t, session.AccountID)
	require.False(t, a.HasRefreshToken())
	require.Equal(t, int64(2), a.TokenVersion)
}
