package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aussiebroadwan/encore/internal/encore/domain"
	"github.com/aussiebroadwan/encore/internal/encore/spotify"
	"github.com/aussiebroadwan/encore/internal/encore/store"
	"github.com/aussiebroadwan/encore/internal/encore/telemetry"
	"github.com/aussiebroadwan/encore/pkg/cryptox"
	"github.com/aussiebroadwan/encore/pkg/jwtx"
	"github.com/aussiebroadwan/encore/pkg/pkce"
	"github.com/aussiebroadwan/encore/pkg/slogx"
	"github.com/jonboulle/clockwork"
	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"
)

// DefaultRefreshWindow is how close to expiry an upstream access token must
// be before a refresh actually rotates.
const DefaultRefreshWindow = 5 * time.Minute

var (
	ErrInvalidCredential   = errors.New("invalid_token")
	ErrTokenReuse          = errors.New("token_reuse")
	ErrNoRefreshToken      = errors.New("no_refresh_token")
	ErrRefreshTokenRevoked = errors.New("refresh_token_revoked")

	// ErrTokenFamilyMismatch is a kind of reuse: errors.Is(err, ErrTokenReuse)
	// holds for it.
	ErrTokenFamilyMismatch = fmt.Errorf("token_family_mismatch: %w", ErrTokenReuse)
)

// Provider is the accounts-service side of the login flow.
type Provider interface {
	AuthCodeURL(state, codeChallenge string) string
	Exchange(ctx context.Context, code, verifier string) (*oauth2.Token, error)
	Refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error)
}

// Profiles fetches the provider profile for a fresh access token.
type Profiles interface {
	Me(ctx context.Context, accessToken string) (spotify.User, error)
}

// SessionService owns the session credential lifecycle: login, refresh with
// rotation and reuse detection, and logout.
type SessionService struct {
	Store    store.Store
	Box      *cryptox.SecretBox
	Sessions *jwtx.SessionIssuer
	States   *pkce.StateManager
	Provider Provider
	Profiles Profiles
	Metrics  *telemetry.Metrics
	Clock    clockwork.Clock

	// RefreshWindow defaults to DefaultRefreshWindow.
	RefreshWindow time.Duration

	flight singleflight.Group
}

func (s *SessionService) now() time.Time {
	if s.Clock == nil {
		return time.Now()
	}
	return s.Clock.Now()
}

func (s *SessionService) metrics() *telemetry.Metrics {
	if s.Metrics == nil {
		return telemetry.Noop()
	}
	return s.Metrics
}

func (s *SessionService) refreshWindow() time.Duration {
	if s.RefreshWindow <= 0 {
		return DefaultRefreshWindow
	}
	return s.RefreshWindow
}

// Authenticate verifies a session credential for an ordinary data request.
// It does not touch the store; rotation lineage is only enforced on refresh.
func (s *SessionService) Authenticate(credential string) (jwtx.SessionClaims, error) {
	if credential == "" {
		return jwtx.SessionClaims{}, ErrInvalidCredential
	}
	claims, err := s.Sessions.Verify(credential)
	if err != nil {
		return jwtx.SessionClaims{}, fmt.Errorf("%w: %w", ErrInvalidCredential, err)
	}
	return claims, nil
}

// Logout signs the account out when the credential verifies. It never fails;
// a credential that does not verify has nothing to revoke.
func (s *SessionService) Logout(ctx context.Context, credential string) {
	l := slogx.FromContext(ctx)

	claims, err := s.Authenticate(credential)
	if err != nil {
		l.Debug("logout with unverifiable credential", "error", err)
		return
	}

	version, err := s.Store.Accounts().ClearTokens(ctx, claims.AccountID())
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return
		}
		l.Error("failed to clear tokens on logout", "account_id", claims.AccountID(), "error", err)
		return
	}
	l.Info("account logged out", "account_id", claims.AccountID(), "token_version", version)
}

// revoke clears the refresh secret and family and bumps the version so every
// outstanding credential for the account stops refreshing.
func (s *SessionService) revoke(ctx context.Context, account domain.Account, reason string) {
	l := slogx.FromContext(ctx)

	version, err := s.Store.Accounts().ClearTokens(ctx, account.ID)
	if err != nil {
		l.Error("failed to revoke tokens", "account_id", account.ID, "reason", reason, "error", err)
		return
	}
	l.Warn("revoked account tokens",
		"account_id", account.ID,
		"reason", reason,
		"token_version", version,
	)
}
