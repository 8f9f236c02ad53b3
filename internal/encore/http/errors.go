package http

import (
	"context"
	"errors"
	"net"
	"net/http"

	"github.com/aussiebroadwan/encore/internal/encore/service"
	"github.com/aussiebroadwan/encore/internal/encore/spotify"
	"github.com/aussiebroadwan/encore/pkg/cryptox"
	"github.com/aussiebroadwan/encore/pkg/httpx"
	"github.com/aussiebroadwan/encore/pkg/pkce"
	"github.com/aussiebroadwan/encore/pkg/resilx"
	"github.com/aussiebroadwan/encore/pkg/slogx"
)

var (
	errTokenReuse = &httpx.APIError{
		StatusCode:  http.StatusUnauthorized,
		Code:        "token_reuse",
		Description: "the session credential was superseded; sign in again",
	}
	errTokenFamilyMismatch = &httpx.APIError{
		StatusCode:  http.StatusUnauthorized,
		Code:        "token_family_mismatch",
		Description: "the session credential belongs to a revoked token family; sign in again",
	}
	errNoRefreshToken = &httpx.APIError{
		StatusCode:  http.StatusUnauthorized,
		Code:        "no_refresh_token",
		Description: "the account has no stored refresh token; sign in again",
	}
	errRefreshTokenRevoked = &httpx.APIError{
		StatusCode:  http.StatusUnauthorized,
		Code:        "refresh_token_revoked",
		Description: "the provider revoked access; sign in again",
	}
	errAccessTokenExpired = &httpx.APIError{
		StatusCode:  http.StatusUnauthorized,
		Code:        "access_token_expired",
		Description: "the upstream access token was rejected; refresh the session",
	}
	errInvalidState = &httpx.APIError{
		StatusCode:  http.StatusBadRequest,
		Code:        "invalid_state",
		Description: "the login state is invalid",
	}
	errExpiredState = &httpx.APIError{
		StatusCode:  http.StatusBadRequest,
		Code:        "expired_state",
		Description: "the login took too long; start again",
	}
	errInvalidGrant = &httpx.APIError{
		StatusCode:  http.StatusBadRequest,
		Code:        "invalid_grant",
		Description: "the authorization code was rejected",
	}
	errMalformedRecord = &httpx.APIError{
		StatusCode:  http.StatusBadRequest,
		Code:        "malformed_ciphertext",
		Description: "a stored credential is malformed",
	}
)

// errorMapper turns errors from the service layer into API errors.
type errorMapper struct{}

func (m errorMapper) apiError(err error) *httpx.APIError {
	var se *resilx.StatusError
	var ne net.Error

	switch {
	// Family mismatch wraps reuse, so it must be matched first.
	case errors.Is(err, service.ErrTokenFamilyMismatch):
		return errTokenFamilyMismatch
	case errors.Is(err, service.ErrTokenReuse):
		return errTokenReuse
	case errors.Is(err, service.ErrNoRefreshToken):
		return errNoRefreshToken
	case errors.Is(err, service.ErrRefreshTokenRevoked):
		return errRefreshTokenRevoked
	case errors.Is(err, service.ErrInvalidCredential):
		return httpx.ErrInvalidToken
	case errors.Is(err, spotify.ErrUnauthorized):
		return errAccessTokenExpired

	case errors.Is(err, pkce.ErrExpiredState):
		return errExpiredState
	case errors.Is(err, pkce.ErrInvalidState):
		return errInvalidState
	case errors.Is(err, spotify.ErrInvalidGrant):
		return errInvalidGrant
	case errors.Is(err, cryptox.ErrMalformedCiphertext):
		return errMalformedRecord

	case errors.Is(err, resilx.ErrCircuitOpen):
		e := httpx.ErrUnavailable
		if d, ok := resilx.CircuitRetryIn(err); ok {
			e = e.WithRetryAfter(d)
		}
		return e
	case errors.Is(err, resilx.ErrRateLimited):
		e := httpx.ErrRateLimited.WithDescription("the upstream service is rate limiting requests")
		if d, ok := resilx.RetryAfter(err); ok {
			e = e.WithRetryAfter(d)
		}
		return e
	case errors.As(err, &se), errors.Is(err, context.DeadlineExceeded), errors.As(err, &ne):
		return httpx.ErrBadGateway
	}
	return httpx.ErrServerError
}

// write logs unexpected errors and writes the mapped response.
func (m errorMapper) write(w http.ResponseWriter, r *http.Request, err error) {
	apiErr := m.apiError(err)

	l := slogx.FromContext(r.Context())
	switch {
	case apiErr.StatusCode >= http.StatusInternalServerError:
		l.Error("request failed", "error", err, "code", apiErr.Code)
	case apiErr.StatusCode == http.StatusUnauthorized:
		l.Info("request unauthorized", "error", err, "code", apiErr.Code)
	default:
		l.Debug("request rejected", "error", err, "code", apiErr.Code)
	}

	apiErr.WriteError(w)
}
