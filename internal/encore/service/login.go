package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aussiebroadwan/encore/internal/encore/domain"
	"github.com/aussiebroadwan/encore/internal/encore/store"
	"github.com/aussiebroadwan/encore/pkg/idx"
	"github.com/aussiebroadwan/encore/pkg/slogx"
	"github.com/google/uuid"
)

// LoginRedirect is where the browser goes to start a login.
type LoginRedirect struct {
	URL   string
	State string
}

// Session is a freshly issued session credential.
type Session struct {
	AccountID  string
	Credential string
	ExpiresAt  time.Time

	// AccessTokenExpiresAt is the expiry of the upstream token inside the
	// credential.
	AccessTokenExpiresAt time.Time
}

// BeginLogin creates a PKCE state and returns the provider authorize URL.
func (s *SessionService) BeginLogin() (LoginRedirect, error) {
	st, err := s.States.CreateState()
	if err != nil {
		return LoginRedirect{}, fmt.Errorf("create state: %w", err)
	}
	return LoginRedirect{
		URL:   s.Provider.AuthCodeURL(st.State, st.CodeChallenge),
		State: st.State,
	}, nil
}

// CompleteLogin handles the provider callback. The account is matched on the
// provider user id and created on first login; either way it leaves with a
// fresh token family and a bumped version.
func (s *SessionService) CompleteLogin(ctx context.Context, code, state string) (Session, error) {
	l := slogx.FromContext(ctx)

	verifier, err := s.States.ExtractVerifier(state)
	if err != nil {
		return Session{}, err
	}
	if code == "" {
		return Session{}, fmt.Errorf("missing authorization code")
	}

	tok, err := s.Provider.Exchange(ctx, code, verifier)
	if err != nil {
		return Session{}, err
	}

	user, err := s.Profiles.Me(ctx, tok.AccessToken)
	if err != nil {
		return Session{}, err
	}

	encrypted, err := s.Box.Encrypt(tok.RefreshToken)
	if err != nil {
		return Session{}, fmt.Errorf("encrypt refresh token: %w", err)
	}

	now := s.now()
	profile := domain.Profile{
		SpotifyID:   user.ID,
		DisplayName: user.DisplayName,
		Email:       user.Email,
		Country:     user.Country,
		Product:     user.Product,
		ImageURL:    user.ImageURL(),
	}
	grant := s.grant(encrypted, now)

	var (
		accountID string
		version   int64
		created   bool
	)
	err = s.Store.WithTx(ctx, func(tx store.Tx) error {
		account, err := tx.Accounts().GetAccountBySpotifyID(ctx, user.ID)
		switch {
		case errors.Is(err, store.ErrNotFound):
			account = domain.Account{
				ID:          idx.New().String(),
				SpotifyID:   profile.SpotifyID,
				DisplayName: profile.DisplayName,
				Email:       profile.Email,
				Country:     profile.Country,
				Product:     profile.Product,
				ImageURL:    profile.ImageURL,
			}
			if err := tx.Accounts().CreateAccount(ctx, account); err != nil {
				return err
			}
			created = true
		case err != nil:
			return err
		default:
			if err := tx.Accounts().UpdateProfile(ctx, account.ID, profile); err != nil {
				return err
			}
		}

		accountID = account.ID
		version, err = tx.Accounts().RotateTokens(ctx, account.ID, account.TokenVersion, grant)
		return err
	})
	if err != nil {
		return Session{}, fmt.Errorf("persist login: %w", err)
	}

	session, err := s.issue(accountID, tok.AccessToken, tok.Expiry, grant, version)
	if err != nil {
		return Session{}, err
	}

	s.metrics().RecordLogin(ctx, created)
	l.Info("login completed",
		"account_id", accountID,
		"created", created,
		"token_version", version,
	)

	return session, nil
}

// grant builds the persisted half of a rotation. A refresh secret is only
// useful while some credential that can present it is alive, so it expires
// with the session credential issued alongside it.
func (s *SessionService) grant(encrypted string, now time.Time) domain.TokenGrant {
	g := domain.TokenGrant{
		RefreshTokenEncrypted: encrypted,
		TokenFamily:           uuid.NewString(),
	}
	if encrypted != "" {
		expires := now.Add(s.Sessions.TTL())
		g.RefreshTokenExpiresAt = &expires
	}
	return g
}
