package httpx

import (
	"net/http"
	"strings"

	"github.com/aussiebroadwan/encore/pkg/jwtx"
	"github.com/aussiebroadwan/encore/pkg/slogx"
)

// Authenticator verifies a session credential.
type Authenticator interface {
	Authenticate(credential string) (jwtx.SessionClaims, error)
}

// CredentialFromRequest reads the session credential from an
// "Authorization: Bearer" header, falling back to the named cookie.
func CredentialFromRequest(r *http.Request, cookieName string) string {
	if authz := r.Header.Get("Authorization"); authz != "" {
		if len(authz) > 7 && strings.EqualFold(authz[:7], "Bearer ") {
			return strings.TrimSpace(authz[7:])
		}
		return ""
	}
	if cookieName == "" {
		return ""
	}
	if c, err := r.Cookie(cookieName); err == nil {
		return c.Value
	}
	return ""
}

// AuthnMiddleware rejects requests without a valid session credential and
// injects the verified claims into the request context.
func AuthnMiddleware(a Authenticator, cookieName string) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			raw := CredentialFromRequest(r, cookieName)
			if raw == "" {
				ErrInvalidToken.WithDescription("missing session credential").WriteError(w)
				return
			}

			claims, err := a.Authenticate(raw)
			if err != nil {
				slogx.FromContext(ctx).Info("session verify failed", "error", err)
				ErrInvalidToken.WriteError(w)
				return
			}

			ctx = contextWithSession(ctx, claims)
			ctx = slogx.WithAccountID(ctx, claims.AccountID())
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
