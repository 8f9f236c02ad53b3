package domain

import "time"

type Account struct {
	ID          string
	SpotifyID   string
	DisplayName string
	Email       string
	Country     string
	Product     string
	ImageURL    string

	RefreshTokenEncrypted string     // nonce:tag:ciphertext, empty when signed out
	RefreshTokenExpiresAt *time.Time // nullable
	TokenFamily           string     // empty when signed out
	TokenVersion          int64      // only ever increases

	LastSyncedAt *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// HasRefreshToken reports whether the account holds a live refresh secret.
func (a Account) HasRefreshToken() bool {
	return a.RefreshTokenEncrypted != ""
}

// Profile is the provider-side identity written on every login.
type Profile struct {
	SpotifyID   string
	DisplayName string
	Email       string
	Country     string
	Product     string
	ImageURL    string
}

// TokenGrant is what a successful login or rotation persists.
type TokenGrant struct {
	RefreshTokenEncrypted string
	RefreshTokenExpiresAt *time.Time
	TokenFamily           string
}
