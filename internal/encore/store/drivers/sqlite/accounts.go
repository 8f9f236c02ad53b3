package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/aussiebroadwan/encore/internal/encore/domain"
	"github.com/aussiebroadwan/encore/internal/encore/store"
	"github.com/aussiebroadwan/encore/internal/encore/store/drivers/sqlite/gen"
)

type accountsRepo struct {
	q *gen.Queries
}

func (r *accountsRepo) GetAccountByID(ctx context.Context, id string) (domain.Account, error) {
	row, err := r.q.GetAccountByID(ctx, id)
	if err != nil {
		return domain.Account{}, mapNotFound(err)
	}
	return mapAccount(row), nil
}

func (r *accountsRepo) GetAccountBySpotifyID(ctx context.Context, spotifyID string) (domain.Account, error) {
	row, err := r.q.GetAccountBySpotifyID(ctx, spotifyID)
	if err != nil {
		return domain.Account{}, mapNotFound(err)
	}
	return mapAccount(row), nil
}

func (r *accountsRepo) CreateAccount(ctx context.Context, a domain.Account) error {
	err := r.q.CreateAccount(ctx, gen.CreateAccountParams{
		ID:          a.ID,
		SpotifyID:   a.SpotifyID,
		DisplayName: a.DisplayName,
		Email:       a.Email,
		Country:     a.Country,
		Product:     a.Product,
		ImageUrl:    a.ImageURL,
	})
	return mapUniqueViolation(err)
}

func (r *accountsRepo) UpdateProfile(ctx context.Context, id string, p domain.Profile) error {
	n, err := r.q.UpdateAccountProfile(ctx, gen.UpdateAccountProfileParams{
		DisplayName: p.DisplayName,
		Email:       p.Email,
		Country:     p.Country,
		Product:     p.Product,
		ImageUrl:    p.ImageURL,
		ID:          id,
	})
	return affected(n, err)
}

func (r *accountsRepo) RotateTokens(
	ctx context.Context,
	id string,
	expectedVersion int64,
	g domain.TokenGrant,
) (int64, error) {
	version, err := r.q.RotateAccountTokens(ctx, gen.RotateAccountTokensParams{
		RefreshTokenEncrypted: mapStringNull(g.RefreshTokenEncrypted),
		RefreshTokenExpiresAt: mapOptionalTime(g.RefreshTokenExpiresAt),
		TokenFamily:           mapStringNull(g.TokenFamily),
		ID:                    id,
		TokenVersion:          expectedVersion,
	})
	if errors.Is(err, sql.ErrNoRows) {
		// Either the account vanished or someone else rotated first.
		if _, getErr := r.q.GetAccountByID(ctx, id); getErr != nil {
			return 0, mapNotFound(getErr)
		}
		return 0, store.ErrVersionConflict
	}
	return version, err
}

func (r *accountsRepo) ClearTokens(ctx context.Context, id string) (int64, error) {
	version, err := r.q.ClearAccountTokens(ctx, id)
	if err != nil {
		return 0, mapNotFound(err)
	}
	return version, nil
}

func (r *accountsRepo) ListAccountsWithRefreshToken(ctx context.Context) ([]domain.Account, error) {
	rows, err := r.q.ListAccountsWithRefreshToken(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Account, 0, len(rows))
	for _, row := range rows {
		out = append(out, mapAccount(row))
	}
	return out, nil
}

func (r *accountsRepo) SetRefreshTokenEncrypted(ctx context.Context, id string, encrypted string) error {
	n, err := r.q.SetAccountRefreshTokenEncrypted(ctx, gen.SetAccountRefreshTokenEncryptedParams{
		RefreshTokenEncrypted: mapStringNull(encrypted),
		ID:                    id,
	})
	return affected(n, err)
}

func (r *accountsRepo) ClearExpiredRefreshTokens(ctx context.Context, now time.Time) (int64, error) {
	return r.q.ClearExpiredRefreshTokens(ctx, sql.NullTime{Time: dbTime(now), Valid: true})
}

func (r *accountsRepo) TouchLastSynced(ctx context.Context, id string, at time.Time) error {
	n, err := r.q.TouchAccountLastSynced(ctx, gen.TouchAccountLastSyncedParams{
		LastSyncedAt: sql.NullTime{Time: dbTime(at), Valid: true},
		ID:           id,
	})
	return affected(n, err)
}

func affected(n int64, err error) error {
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}
