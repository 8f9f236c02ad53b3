package sqlite

import (
	"context"
	"time"

	"github.com/aussiebroadwan/encore/internal/encore/domain"
	"github.com/aussiebroadwan/encore/internal/encore/store/drivers/sqlite/gen"
)

type responseCacheRepo struct {
	q *gen.Queries
}

func (r *responseCacheRepo) GetResponse(ctx context.Context, key domain.CacheKey) (domain.CacheEntry, error) {
	row, err := r.q.GetResponse(ctx, gen.GetResponseParams{
		AccountID: key.AccountID,
		Kind:      key.Kind,
		TimeRange: key.TimeRange,
	})
	if err != nil {
		return domain.CacheEntry{}, mapNotFound(err)
	}
	return mapCacheEntry(row), nil
}

func (r *responseCacheRepo) PutResponse(ctx context.Context, e domain.CacheEntry) error {
	return r.q.UpsertResponse(ctx, gen.UpsertResponseParams{
		AccountID: e.Key.AccountID,
		Kind:      e.Key.Kind,
		TimeRange: e.Key.TimeRange,
		Payload:   e.Payload,
		ItemCount: int64(e.ItemCount),
		UpdatedAt: dbTime(e.UpdatedAt),
	})
}

func (r *responseCacheRepo) DeleteResponsesBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	return r.q.DeleteResponsesBefore(ctx, dbTime(cutoff))
}
