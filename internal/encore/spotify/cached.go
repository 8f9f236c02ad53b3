package spotify

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/aussiebroadwan/encore/internal/encore/domain"
	"github.com/aussiebroadwan/encore/internal/encore/store"
	"github.com/aussiebroadwan/encore/internal/encore/telemetry"
	"github.com/aussiebroadwan/encore/pkg/slogx"
	"github.com/jonboulle/clockwork"
)

// DefaultCacheTTL is how long a stored list may be served.
const DefaultCacheTTL = 24 * time.Hour

// Upstream is the subset of Client the cache wraps.
type Upstream interface {
	Me(ctx context.Context, accessToken string) (User, error)
	TopTracks(ctx context.Context, accessToken string, tr TimeRange, limit int) ([]Track, error)
	TopArtists(ctx context.Context, accessToken string, tr TimeRange, limit int) ([]Artist, error)
	RecentlyPlayed(ctx context.Context, accessToken string, limit int) ([]PlayHistory, error)
}

// Page is a list response and where it came from.
type Page[T any] struct {
	Items     []T
	FromCache bool
	FetchedAt time.Time
}

// CachedClient serves list endpoints from the response cache when it can.
// On a miss it always fetches MaxLimit items so later requests for any
// smaller page hit.
type CachedClient struct {
	upstream Upstream
	cache    store.ResponseCache
	ttl      time.Duration
	clock    clockwork.Clock
	metrics  *telemetry.Metrics
}

type CachedClientConfig struct {
	Upstream Upstream
	Cache    store.ResponseCache // nil disables caching
	TTL      time.Duration
	Clock    clockwork.Clock
	Metrics  *telemetry.Metrics
}

func NewCachedClient(cfg CachedClientConfig) *CachedClient {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultCacheTTL
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = telemetry.Noop()
	}
	return &CachedClient{
		upstream: cfg.Upstream,
		cache:    cfg.Cache,
		ttl:      cfg.TTL,
		clock:    cfg.Clock,
		metrics:  cfg.Metrics,
	}
}

// Me is never cached; the profile is cheap and login refreshes it anyway.
func (c *CachedClient) Me(ctx context.Context, accessToken string) (User, error) {
	return c.upstream.Me(ctx, accessToken)
}

func (c *CachedClient) TopTracks(ctx context.Context, accountID, accessToken string, tr TimeRange, limit int) (Page[Track], error) {
	key := domain.CacheKey{AccountID: accountID, Kind: string(KindTopTracks), TimeRange: string(tr)}
	return readThrough(ctx, c, key, limit, func(ctx context.Context) ([]Track, error) {
		return c.upstream.TopTracks(ctx, accessToken, tr, MaxLimit)
	})
}

func (c *CachedClient) TopArtists(ctx context.Context, accountID, accessToken string, tr TimeRange, limit int) (Page[Artist], error) {
	key := domain.CacheKey{AccountID: accountID, Kind: string(KindTopArtists), TimeRange: string(tr)}
	return readThrough(ctx, c, key, limit, func(ctx context.Context) ([]Artist, error) {
		return c.upstream.TopArtists(ctx, accessToken, tr, MaxLimit)
	})
}

func (c *CachedClient) RecentlyPlayed(ctx context.Context, accountID, accessToken string, limit int) (Page[PlayHistory], error) {
	key := domain.CacheKey{AccountID: accountID, Kind: string(KindRecentlyPlayed)}
	return readThrough(ctx, c, key, limit, func(ctx context.Context) ([]PlayHistory, error) {
		return c.upstream.RecentlyPlayed(ctx, accessToken, MaxLimit)
	})
}

func readThrough[T any](
	ctx context.Context,
	c *CachedClient,
	key domain.CacheKey,
	limit int,
	fetch func(context.Context) ([]T, error),
) (Page[T], error) {
	l := slogx.FromContext(ctx).With("cache_key", key.String())
	limit = ClampLimit(limit)

	if c.cache != nil {
		if page, ok := lookup[T](ctx, c, l, key, limit); ok {
			return page, nil
		}
	}

	items, err := fetch(ctx)
	if err != nil {
		return Page[T]{}, err
	}
	now := c.clock.Now().UTC()

	if c.cache != nil {
		save(ctx, c, l, key, items, now)
	}

	if len(items) > limit {
		items = items[:limit]
	}
	return Page[T]{Items: items, FetchedAt: now}, nil
}

func lookup[T any](ctx context.Context, c *CachedClient, l *slog.Logger, key domain.CacheKey, limit int) (Page[T], bool) {
	entry, err := c.cache.GetResponse(ctx, key)
	switch {
	case errors.Is(err, store.ErrNotFound):
		c.metrics.RecordCacheLookup(ctx, key.Kind, "miss")
		return Page[T]{}, false
	case err != nil:
		l.Warn("response cache read failed", "error", err)
		c.metrics.RecordCacheError(ctx, "get")
		return Page[T]{}, false
	}

	if c.clock.Since(entry.UpdatedAt) >= c.ttl {
		c.metrics.RecordCacheLookup(ctx, key.Kind, "stale")
		return Page[T]{}, false
	}
	if entry.ItemCount < limit {
		c.metrics.RecordCacheLookup(ctx, key.Kind, "short")
		return Page[T]{}, false
	}

	var items []T
	if err := json.Unmarshal(entry.Payload, &items); err != nil {
		l.Warn("response cache entry undecodable", "error", err)
		c.metrics.RecordCacheError(ctx, "decode")
		return Page[T]{}, false
	}
	if len(items) < limit {
		c.metrics.RecordCacheLookup(ctx, key.Kind, "short")
		return Page[T]{}, false
	}

	c.metrics.RecordCacheLookup(ctx, key.Kind, "hit")
	return Page[T]{Items: items[:limit], FromCache: true, FetchedAt: entry.UpdatedAt}, true
}

func save[T any](ctx context.Context, c *CachedClient, l *slog.Logger, key domain.CacheKey, items []T, now time.Time) {
	payload, err := json.Marshal(items)
	if err != nil {
		l.Warn("response cache encode failed", "error", err)
		c.metrics.RecordCacheError(ctx, "encode")
		return
	}

	err = c.cache.PutResponse(ctx, domain.CacheEntry{
		Key:       key,
		Payload:   payload,
		ItemCount: len(items),
		UpdatedAt: now,
	})
	if err != nil {
		l.Warn("response cache write failed", "error", err)
		c.metrics.RecordCacheError(ctx, "put")
	}
}
