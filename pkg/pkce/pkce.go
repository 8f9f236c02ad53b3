// Package pkce implements the login side of OAuth2 PKCE (RFC 7636) without a
// server-side pending-login table: the code verifier travels inside a signed,
// short-lived state token and comes back on the callback.
package pkce

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/aussiebroadwan/encore/pkg/cryptox"
	"github.com/aussiebroadwan/encore/pkg/jwtx"
	"github.com/golang-jwt/jwt/v5"
)

const (
	// MethodS256 is the only challenge method we emit.
	MethodS256 = "S256"

	// VerifierSize is the number of random bytes behind a code verifier.
	VerifierSize = cryptox.TokenSize256

	// StateTTL bounds how long a user may sit on the provider consent page.
	StateTTL = 10 * time.Minute

	stateAudience = "pkce-state"
)

var (
	ErrExpiredState = errors.New("pkce: state expired")
	ErrInvalidState = errors.New("pkce: invalid state")
)

// State is what the login redirect needs.
type State struct {
	State         string // signed token echoed back by the provider
	CodeVerifier  string // kept only inside State
	CodeChallenge string // sent to the provider
}

type stateClaims struct {
	jwt.RegisteredClaims
	CodeVerifier string `json:"cv"`
}

// StateManager creates and opens state tokens.
type StateManager struct {
	signer *jwtx.HMAC
	issuer string
	ttl    time.Duration
}

// NewStateManager shares the session signing secret but uses its own audience,
// so a state token is never accepted as a session credential or vice versa.
func NewStateManager(signer *jwtx.HMAC, issuer string) *StateManager {
	return &StateManager{
		// State tokens are short enough that skew tolerance would mostly
		// extend their life.
		signer: signer.WithLeeway(0),
		issuer: issuer,
		ttl:    StateTTL,
	}
}

// CreateState generates a verifier, its S256 challenge and the signed state.
func (m *StateManager) CreateState() (State, error) {
	verifier, err := cryptox.GenerateToken(VerifierSize)
	if err != nil {
		return State{}, fmt.Errorf("pkce: generate verifier: %w", err)
	}

	now := m.signer.Now()
	token, err := m.signer.Sign(stateClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    m.issuer,
			Audience:  jwt.ClaimStrings{stateAudience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
			ID:        jwtx.NewJTI(),
		},
		CodeVerifier: verifier,
	})
	if err != nil {
		return State{}, fmt.Errorf("pkce: sign state: %w", err)
	}

	return State{
		State:         token,
		CodeVerifier:  verifier,
		CodeChallenge: Challenge(verifier),
	}, nil
}

// ExtractVerifier opens a state token. ErrExpiredState means the signature
// was good but the token is past its expiry; anything else is ErrInvalidState.
func (m *StateManager) ExtractVerifier(state string) (string, error) {
	if state == "" {
		return "", ErrInvalidState
	}

	var claims stateClaims
	err := m.signer.Parse(state, &claims, jwtx.VerifyOptions{
		Issuer:   m.issuer,
		Audience: stateAudience,
	})
	switch {
	case errors.Is(err, jwtx.ErrExpired):
		return "", fmt.Errorf("%w: %w", ErrExpiredState, err)
	case err != nil:
		return "", fmt.Errorf("%w: %w", ErrInvalidState, err)
	}

	if claims.CodeVerifier == "" {
		return "", ErrInvalidState
	}
	return claims.CodeVerifier, nil
}

// Challenge derives the S256 code challenge for verifier.
func Challenge(verifier string) string {
	sum := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// VerifyChallenge reports whether verifier hashes to challenge, in constant time.
func VerifyChallenge(challenge, verifier string) bool {
	if challenge == "" || verifier == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(Challenge(verifier)), []byte(challenge)) == 1
}
