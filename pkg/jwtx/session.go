package jwtx

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// SessionParams are the five values a session credential embeds.
type SessionParams struct {
	AccountID         string
	AccessToken       string
	AccessTokenExpiry time.Time
	TokenFamily       string
	TokenVersion      int64
}

// SessionIssuer mints and verifies session credentials.
type SessionIssuer struct {
	signer *HMAC
	issuer string
	ttl    time.Duration
}

var _ SessionVerifier = (*SessionIssuer)(nil)

// NewSessionIssuer returns an issuer; ttl <= 0 falls back to DefaultSessionTTL.
func NewSessionIssuer(signer *HMAC, issuer string, ttl time.Duration) *SessionIssuer {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &SessionIssuer{signer: signer, issuer: issuer, ttl: ttl}
}

// TTL is the lifetime of credentials minted by Issue.
func (s *SessionIssuer) TTL() time.Duration { return s.ttl }

// Issue signs a new credential and returns it with its expiry.
func (s *SessionIssuer) Issue(p SessionParams) (string, time.Time, error) {
	if p.AccountID == "" {
		return "", time.Time{}, fmt.Errorf("jwtx: session subject is required")
	}

	now := s.signer.Now()
	expiresAt := now.Add(s.ttl)

	claims := SessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   p.AccountID,
			Audience:  jwt.ClaimStrings{SessionAudience},
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			ID:        NewJTI(),
		},
		AccessToken:       p.AccessToken,
		AccessTokenExpiry: p.AccessTokenExpiry.Unix(),
		TokenFamily:       p.TokenFamily,
		TokenVersion:      p.TokenVersion,
	}

	token, err := s.signer.Sign(claims)
	if err != nil {
		return "", time.Time{}, err
	}
	return token, expiresAt, nil
}

// Verify checks signature, issuer, audience and expiry. Errors wrap ErrExpired
// or ErrInvalid.
func (s *SessionIssuer) Verify(token string) (SessionClaims, error) {
	var claims SessionClaims
	if err := s.signer.Parse(token, &claims, VerifyOptions{
		Issuer:   s.issuer,
		Audience: SessionAudience,
	}); err != nil {
		return SessionClaims{}, err
	}

	if claims.Subject == "" {
		return SessionClaims{}, fmt.Errorf("%w: %w: missing subject", ErrInvalid, ErrInvalidClaim)
	}

	return claims, nil
}
