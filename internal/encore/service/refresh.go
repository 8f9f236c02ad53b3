package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/aussiebroadwan/encore/internal/encore/domain"
	"github.com/aussiebroadwan/encore/internal/encore/spotify"
	"github.com/aussiebroadwan/encore/internal/encore/store"
	"github.com/aussiebroadwan/encore/pkg/cryptox"
	"github.com/aussiebroadwan/encore/pkg/jwtx"
	"github.com/aussiebroadwan/encore/pkg/slogx"
)

// RefreshResult is the outcome of a successful refresh.
type RefreshResult struct {
	// StillValid means the upstream token has more than the refresh window
	// left and nothing was rotated; Session is empty.
	StillValid bool

	// AccessTokenExpiresAt is the expiry of the upstream token the caller
	// should now be using.
	AccessTokenExpiresAt time.Time

	// Session is the newly issued credential after a rotation.
	Session Session
}

// Refresh checks the credential's lineage against the account and rotates the
// upstream refresh secret when the access token is close to expiry.
//
// Concurrent refreshes presenting the same credential share one rotation and
// all receive the same new credential. A credential from a superseded family
// or version revokes the account's tokens.
func (s *SessionService) Refresh(ctx context.Context, credential string) (RefreshResult, error) {
	claims, err := s.Authenticate(credential)
	if err != nil {
		return RefreshResult{}, err
	}

	key := claims.AccountID() + ":" + strconv.FormatInt(claims.TokenVersion, 10) + ":" + claims.TokenFamily

	// The shared rotation must not be cut short by whichever caller started it.
	flightCtx := context.WithoutCancel(ctx)
	ch := s.flight.DoChan(key, func() (any, error) {
		return s.refresh(flightCtx, claims, cryptox.LogFingerprint(credential))
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return RefreshResult{}, res.Err
		}
		return res.Val.(RefreshResult), nil
	case <-ctx.Done():
		return RefreshResult{}, ctx.Err()
	}
}

func (s *SessionService) refresh(ctx context.Context, claims jwtx.SessionClaims, fingerprint string) (RefreshResult, error) {
	l := slogx.FromContext(ctx).With("account_id", claims.AccountID(), "credential_fp", fingerprint)
	m := s.metrics()

	account, err := s.Store.Accounts().GetAccountByID(ctx, claims.AccountID())
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return RefreshResult{}, ErrInvalidCredential
		}
		return RefreshResult{}, err
	}

	if claims.TokenFamily != "" && account.TokenFamily != "" && claims.TokenFamily != account.TokenFamily {
		l.Warn("token family mismatch on refresh",
			"presented_version", claims.TokenVersion,
			"current_version", account.TokenVersion,
		)
		m.RecordTokenReuse(ctx, "family")
		m.RecordTokenRotation(ctx, "family_mismatch")
		s.revoke(ctx, account, "family_mismatch")
		return RefreshResult{}, ErrTokenFamilyMismatch
	}

	if claims.TokenVersion != account.TokenVersion {
		l.Warn("token reuse detected on refresh",
			"presented_version", claims.TokenVersion,
			"current_version", account.TokenVersion,
		)
		m.RecordTokenReuse(ctx, "version")
		m.RecordTokenRotation(ctx, "reuse")
		s.revoke(ctx, account, "token_reuse")
		return RefreshResult{}, ErrTokenReuse
	}

	now := s.now()
	if expiresAt := claims.AccessTokenExpiresAt(); expiresAt.Sub(now) > s.refreshWindow() {
		m.RecordTokenRotation(ctx, "still_valid")
		return RefreshResult{StillValid: true, AccessTokenExpiresAt: expiresAt}, nil
	}

	if !account.HasRefreshToken() {
		m.RecordTokenRotation(ctx, "no_refresh_token")
		return RefreshResult{}, ErrNoRefreshToken
	}

	refreshToken, err := s.Box.Decrypt(account.RefreshTokenEncrypted)
	if err != nil {
		// Unreadable under the current key; only a new login can recover.
		l.Warn("stored refresh token cannot be decrypted", "error", err)
		m.RecordTokenRotation(ctx, "undecryptable")
		s.revoke(ctx, account, "undecryptable")
		return RefreshResult{}, fmt.Errorf("%w: %w", ErrNoRefreshToken, err)
	}

	tok, err := s.Provider.Refresh(ctx, refreshToken)
	if err != nil {
		if errors.Is(err, spotify.ErrRefreshRevoked) {
			l.Warn("provider revoked refresh token")
			m.RecordTokenRotation(ctx, "revoked")
			// Only the secret goes; family and version stay as they are.
			if err := s.Store.Accounts().SetRefreshTokenEncrypted(ctx, account.ID, ""); err != nil {
				l.Error("failed to clear revoked refresh token", "error", err)
			}
			return RefreshResult{}, ErrRefreshTokenRevoked
		}
		m.RecordTokenRotation(ctx, "upstream_error")
		return RefreshResult{}, err
	}

	encrypted, err := s.Box.Encrypt(tok.RefreshToken)
	if err != nil {
		return RefreshResult{}, fmt.Errorf("encrypt refresh token: %w", err)
	}
	grant := s.grant(encrypted, now)

	version, err := s.Store.Accounts().RotateTokens(ctx, account.ID, account.TokenVersion, grant)
	if err != nil {
		if errors.Is(err, store.ErrVersionConflict) {
			// Another process rotated between our read and write.
			l.Warn("lost rotation race", "expected_version", account.TokenVersion)
			m.RecordTokenReuse(ctx, "race")
			m.RecordTokenRotation(ctx, "reuse")
			return RefreshResult{}, ErrTokenReuse
		}
		if errors.Is(err, store.ErrNotFound) {
			return RefreshResult{}, ErrInvalidCredential
		}
		return RefreshResult{}, fmt.Errorf("rotate tokens: %w", err)
	}

	session, err := s.issue(account.ID, tok.AccessToken, tok.Expiry, grant, version)
	if err != nil {
		return RefreshResult{}, err
	}

	m.RecordTokenRotation(ctx, "rotated")
	l.Info("session rotated", "token_version", version)

	return RefreshResult{AccessTokenExpiresAt: tok.Expiry, Session: session}, nil
}

func (s *SessionService) issue(accountID, accessToken string, accessExpiry time.Time, grant domain.TokenGrant, version int64) (Session, error) {
	credential, expiresAt, err := s.Sessions.Issue(jwtx.SessionParams{
		AccountID:         accountID,
		AccessToken:       accessToken,
		AccessTokenExpiry: accessExpiry,
		TokenFamily:       grant.TokenFamily,
		TokenVersion:      version,
	})
	if err != nil {
		return Session{}, fmt.Errorf("issue session: %w", err)
	}
	return Session{
		AccountID:            accountID,
		Credential:           credential,
		ExpiresAt:            expiresAt,
		AccessTokenExpiresAt: accessExpiry,
	}, nil
}
