package store

import (
	"context"
	"errors"
	"time"

	"github.com/aussiebroadwan/encore/internal/encore/domain"
)

var (
	ErrNotFound      = errors.New("store: not found")
	ErrAlreadyExists = errors.New("store: already exists")

	// ErrVersionConflict is returned by RotateTokens when the account's
	// token_version moved since the caller read it.
	ErrVersionConflict = errors.New("store: token version conflict")
)

// Store is the root data access interface. Concrete drivers implement it and
// expose sub-repositories so a Tx-scoped store has the same shape as the root.
type Store interface {
	Accounts() Accounts
	ResponseCache() ResponseCache

	ApplyMigrations() error

	// Tx starts a read/write transaction and returns a Tx-scoped Store.
	// The caller MUST call Commit() or Rollback() on the returned Tx.
	Tx(ctx context.Context) (Tx, error)

	// WithTx runs fn in a transaction, committing when fn returns nil and
	// rolling back otherwise.
	WithTx(ctx context.Context, fn func(tx Tx) error) error

	Close() error

	// Ping verifies the database connection is still alive.
	Ping(ctx context.Context) error
}

// Tx is a transactional store. It embeds the same repos but adds Commit/Rollback.
type Tx interface {
	Store
	Commit() error
	Rollback() error
}

type Accounts interface {
	GetAccountByID(ctx context.Context, id string) (domain.Account, error)

	// GetAccountBySpotifyID is the login lookup.
	GetAccountBySpotifyID(ctx context.Context, spotifyID string) (domain.Account, error)

	// CreateAccount inserts a signed-out account (id is provided by app via ULID).
	CreateAccount(ctx context.Context, a domain.Account) error

	// UpdateProfile overwrites the provider profile fields and bumps updated_at.
	UpdateProfile(ctx context.Context, id string, p domain.Profile) error

	// RotateTokens stores a new encrypted refresh secret and family and
	// increments token_version in one statement, but only if token_version
	// still equals expectedVersion. Returns the new version, or
	// ErrVersionConflict when another rotation got there first.
	RotateTokens(ctx context.Context, id string, expectedVersion int64, g domain.TokenGrant) (int64, error)

	// ClearTokens drops the refresh secret and family and increments
	// token_version so every outstanding credential fails. Returns the new version.
	ClearTokens(ctx context.Context, id string) (int64, error)

	// ListAccountsWithRefreshToken is used by the re-encryption migration.
	ListAccountsWithRefreshToken(ctx context.Context) ([]domain.Account, error)

	// SetRefreshTokenEncrypted replaces the stored record without touching
	// family or version.
	SetRefreshTokenEncrypted(ctx context.Context, id string, encrypted string) error

	// ClearExpiredRefreshTokens signs out accounts whose refresh secret is
	// past refresh_token_expires_at. Returns the number of accounts affected.
	ClearExpiredRefreshTokens(ctx context.Context, now time.Time) (int64, error)

	// TouchLastSynced records a successful upstream fetch.
	TouchLastSynced(ctx context.Context, id string, at time.Time) error
}

type ResponseCache interface {
	// GetResponse returns ErrNotFound when there is no entry. Freshness is
	// the caller's decision.
	GetResponse(ctx context.Context, key domain.CacheKey) (domain.CacheEntry, error)

	// PutResponse upserts an entry.
	PutResponse(ctx context.Context, e domain.CacheEntry) error

	// DeleteResponsesBefore is housekeeping. Backends with native expiry may
	// return 0 without doing anything.
	DeleteResponsesBefore(ctx context.Context, cutoff time.Time) (int64, error)
}
