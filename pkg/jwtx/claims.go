package jwtx

import (
	"crypto/rand"
	"encoding/base64"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	// DefaultSessionTTL is how long a session credential stays valid. The
	// upstream access token inside it expires much sooner and is rotated
	// through the refresh endpoint.
	DefaultSessionTTL = 7 * 24 * time.Hour

	// DefaultLeeway absorbs clock skew between replicas.
	DefaultLeeway = 30 * time.Second

	// SessionAudience separates session credentials from other HS256 tokens
	// signed with the same secret (PKCE state tokens use their own audience).
	SessionAudience = "session"
)

// SessionClaims are carried by the session credential handed to the browser.
// They are the only place the live upstream access token is kept between
// requests.
type SessionClaims struct {
	jwt.RegisteredClaims

	// Upstream (Spotify) access token and its expiry in unix seconds.
	AccessToken       string `json:"at"`
	AccessTokenExpiry int64  `json:"ate"`

	// Rotation lineage observed when the credential was issued. Family may
	// be empty for credentials minted before the account had one.
	TokenFamily  string `json:"fam,omitempty"`
	TokenVersion int64  `json:"ver"`
}

// AccountID is the subject of the credential.
func (c SessionClaims) AccountID() string { return c.Subject }

// AccessTokenExpiresAt converts the embedded upstream expiry to a time.
func (c SessionClaims) AccessTokenExpiresAt() time.Time {
	return time.Unix(c.AccessTokenExpiry, 0).UTC()
}

// NewJTI returns a URL-safe random identifier for the "jti" claim.
func NewJTI() string {
	var b [20]byte
	_, _ = rand.Read(b[:])
	return base64.RawURLEncoding.EncodeToString(b[:])
}
