package http

import (
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/aussiebroadwan/encore/internal/encore/service"
	"github.com/aussiebroadwan/encore/pkg/httpx"
	"github.com/aussiebroadwan/encore/pkg/slogx"
	"github.com/jonboulle/clockwork"
)

// AuthHandler serves the login flow and the session lifecycle endpoints.
type AuthHandler struct {
	Sessions *service.SessionService
	Cookie   SessionCookie
	Clock    clockwork.Clock

	errs errorMapper
}

func (h *AuthHandler) now() time.Time {
	if h.Clock == nil {
		return time.Now()
	}
	return h.Clock.Now()
}

// HandleLogin godoc
//
//	@Summary		Start login
//	@Description	Redirects to the provider's consent page with a PKCE challenge and a signed state.
//	@Description	Send Accept: application/json to receive the URL instead of a redirect.
//	@Tags			Auth
//	@Produce		json
//	@Success		200	{object}	LoginResponse		"url"
//	@Success		302	"Redirect to the provider"
//	@Failure		500	{object}	httpx.APIError		"error, error_description"
//	@Router			/v1/auth/login [get].
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	redirect, err := h.Sessions.BeginLogin()
	if err != nil {
		h.errs.write(w, r, err)
		return
	}

	if strings.Contains(r.Header.Get("Accept"), "application/json") {
		httpx.WriteJSON(w, http.StatusOK, LoginResponse{URL: redirect.URL})
		return
	}

	httpx.NoCache(w)
	http.Redirect(w, r, redirect.URL, http.StatusFound)
}

// HandleCallback godoc
//
//	@Summary		Provider callback
//	@Description	Exchanges the authorization code, signs the account in and redirects to the frontend.
//	@Description	The session credential is set as an HttpOnly cookie, and appended as token when cross-origin mode is on.
//	@Description	Failures redirect to the frontend with an error parameter.
//	@Tags			Auth
//	@Param			code	query	string	false	"Authorization code"
//	@Param			state	query	string	true	"Signed PKCE state"
//	@Param			error	query	string	false	"Provider error, e.g. access_denied"
//	@Success		302		"Redirect to the frontend"
//	@Header			302		{string}	Set-Cookie	"encore_session"
//	@Router			/v1/auth/callback [get].
func (h *AuthHandler) HandleCallback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	l := slogx.FromContext(ctx)
	q := r.URL.Query()

	httpx.NoCache(w)

	if providerErr := q.Get("error"); providerErr != "" {
		l.Info("provider declined login", "provider_error", providerErr)
		http.Redirect(w, r, h.Cookie.frontendRedirect(url.Values{"error": {"access_denied"}}), http.StatusFound)
		return
	}

	session, err := h.Sessions.CompleteLogin(ctx, q.Get("code"), q.Get("state"))
	if err != nil {
		apiErr := h.errs.apiError(err)
		if apiErr.StatusCode >= http.StatusInternalServerError {
			l.Error("login failed", "error", err)
		} else {
			l.Info("login rejected", "error", err, "code", apiErr.Code)
		}
		http.Redirect(w, r, h.Cookie.frontendRedirect(url.Values{"error": {apiErr.Code}}), http.StatusFound)
		return
	}

	h.Cookie.set(w, session.Credential, session.ExpiresAt, h.now())

	params := url.Values{}
	if h.Cookie.CrossOrigin {
		params.Set("token", session.Credential)
	}
	http.Redirect(w, r, h.Cookie.frontendRedirect(params), http.StatusFound)
}

// HandleRefresh godoc
//
//	@Summary		Refresh session
//	@Description	Rotates the upstream refresh token when the access token inside the credential is within five minutes of expiry.
//	@Description	A superseded or revoked credential signs the account out everywhere.
//	@Tags			Auth
//	@Produce		json
//	@Security		BearerAuth
//	@Success		200	{object}	RefreshResponse	"status, expires_at, token"
//	@Failure		401	{object}	httpx.APIError	"token_reuse, token_family_mismatch, no_refresh_token, refresh_token_revoked, invalid_token"
//	@Failure		429	{object}	httpx.APIError	"error, error_description"
//	@Failure		502	{object}	httpx.APIError	"error, error_description"
//	@Failure		503	{object}	httpx.APIError	"error, error_description"
//	@Router			/v1/auth/refresh [post].
func (h *AuthHandler) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	credential := httpx.CredentialFromRequest(r, h.Cookie.name())
	res, err := h.Sessions.Refresh(ctx, credential)
	if err != nil {
		if isSignedOut(err) {
			h.Cookie.clear(w)
		}
		h.errs.write(w, r, err)
		return
	}

	if res.StillValid {
		httpx.WriteJSON(w, http.StatusOK, RefreshResponse{
			Status:    "still_valid",
			ExpiresAt: res.AccessTokenExpiresAt,
		})
		return
	}

	h.Cookie.set(w, res.Session.Credential, res.Session.ExpiresAt, h.now())

	resp := RefreshResponse{
		Status:    "rotated",
		ExpiresAt: res.AccessTokenExpiresAt,
	}
	// Callers that sent a bearer header cannot read the cookie.
	if h.Cookie.CrossOrigin || r.Header.Get("Authorization") != "" {
		resp.Token = res.Session.Credential
	}
	httpx.WriteJSON(w, http.StatusOK, resp)
}

// HandleLogout godoc
//
//	@Summary		Log out
//	@Description	Revokes the stored refresh token for the account and clears the cookie. Always succeeds.
//	@Tags			Auth
//	@Produce		json
//	@Success		200	{object}	LogoutResponse	"status"
//	@Router			/v1/auth/logout [post].
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	h.Sessions.Logout(r.Context(), httpx.CredentialFromRequest(r, h.Cookie.name()))
	h.Cookie.clear(w)
	httpx.WriteJSON(w, http.StatusOK, LogoutResponse{Status: "logged_out"})
}

// isSignedOut reports errors after which the cookie is useless.
func isSignedOut(err error) bool {
	return errors.Is(err, service.ErrTokenReuse) ||
		errors.Is(err, service.ErrNoRefreshToken) ||
		errors.Is(err, service.ErrRefreshTokenRevoked) ||
		errors.Is(err, service.ErrInvalidCredential)
}
