package jwtx

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jonboulle/clockwork"
)

// MinSecretLength is the shortest HS256 secret we accept (256 bits).
const MinSecretLength = 32

var (
	// ErrInvalid wraps every verification failure that is not plain expiry.
	ErrInvalid = errors.New("jwtx: invalid token")
	ErrExpired = errors.New("jwtx: token expired")

	ErrMalformed    = errors.New("jwtx: malformed token")
	ErrInvalidSig   = errors.New("jwtx: invalid signature")
	ErrIssuer       = errors.New("jwtx: issuer mismatch")
	ErrAudience     = errors.New("jwtx: audience mismatch")
	ErrNotYetValid  = errors.New("jwtx: token not yet valid")
	ErrInvalidClaim = errors.New("jwtx: invalid claims")

	ErrWeakSecret = fmt.Errorf("jwtx: signing secret must be at least %d bytes", MinSecretLength)
)

// SessionVerifier validates a session credential and returns its claims.
type SessionVerifier interface {
	Verify(token string) (SessionClaims, error)
}

// VerifyOptions captures the registered claims a token must carry.
type VerifyOptions struct {
	Issuer   string
	Audience string
}

// HMAC signs and verifies HS256 tokens with one shared secret.
type HMAC struct {
	key    []byte
	clock  clockwork.Clock
	leeway time.Duration
}

// NewHMAC builds an HS256 signer. A nil clock means wall time.
func NewHMAC(secret []byte, clock clockwork.Clock) (*HMAC, error) {
	if len(secret) < MinSecretLength {
		return nil, ErrWeakSecret
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	key := make([]byte, len(secret))
	copy(key, secret)

	return &HMAC{key: key, clock: clock, leeway: DefaultLeeway}, nil
}

// WithLeeway returns a copy of h that tolerates the given clock skew.
func (h *HMAC) WithLeeway(leeway time.Duration) *HMAC {
	cp := *h
	cp.leeway = leeway
	return &cp
}

// Now is the signer's notion of the current time, truncated to the second
// precision JWT numeric dates carry.
func (h *HMAC) Now() time.Time {
	return h.clock.Now().UTC().Truncate(time.Second)
}

// Sign serialises claims as a compact HS256 JWT.
func (h *HMAC) Sign(claims jwt.Claims) (string, error) {
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(h.key)
	if err != nil {
		return "", fmt.Errorf("jwtx: sign: %w", err)
	}
	return token, nil
}

// Parse verifies tokenStr into claims. Failures wrap either ErrExpired (the
// signature checked out but exp has passed) or ErrInvalid.
func (h *HMAC) Parse(tokenStr string, claims jwt.Claims, opts VerifyOptions) error {
	parserOpts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithLeeway(h.leeway),
		jwt.WithTimeFunc(h.clock.Now),
	}
	if opts.Issuer != "" {
		parserOpts = append(parserOpts, jwt.WithIssuer(opts.Issuer))
	}
	if opts.Audience != "" {
		parserOpts = append(parserOpts, jwt.WithAudience(opts.Audience))
	}

	token, err := jwt.NewParser(parserOpts...).ParseWithClaims(tokenStr, claims, func(*jwt.Token) (any, error) {
		return h.key, nil
	})
	if err != nil {
		return classify(err)
	}
	if !token.Valid {
		return fmt.Errorf("%w: %w", ErrInvalid, ErrInvalidClaim)
	}

	return nil
}

// classify maps jwt/v5 errors onto our two caller-facing outcomes. Signature
// problems are checked by the parser before any claim, so an expiry error
// always means the token was authentic.
func classify(err error) error {
	var kind error
	switch {
	case errors.Is(err, jwt.ErrTokenMalformed):
		kind = ErrMalformed
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		kind = ErrInvalidSig
	case errors.Is(err, jwt.ErrTokenInvalidIssuer):
		kind = ErrIssuer
	case errors.Is(err, jwt.ErrTokenInvalidAudience):
		kind = ErrAudience
	case errors.Is(err, jwt.ErrTokenExpired):
		return fmt.Errorf("%w: %w", ErrExpired, err)
	case errors.Is(err, jwt.ErrTokenNotValidYet), errors.Is(err, jwt.ErrTokenUsedBeforeIssued):
		kind = ErrNotYetValid
	default:
		kind = ErrInvalidClaim
	}
	return fmt.Errorf("%w: %w: %w", ErrInvalid, kind, err)
}
