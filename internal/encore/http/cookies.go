package http

import (
	"net/http"
	"net/url"
	"time"
)

// DefaultCookieName carries the session credential for same-origin frontends.
const DefaultCookieName = "encore_session"

// SessionCookie controls how the session credential is handed to browsers.
type SessionCookie struct {
	Name   string
	Secure bool // set in production
	Domain string

	// FrontendURL is where the callback lands the browser.
	FrontendURL string

	// CrossOrigin also hands the credential over in the redirect and in
	// refresh responses, for frontends that cannot read the cookie.
	CrossOrigin bool
}

func (c SessionCookie) name() string {
	if c.Name == "" {
		return DefaultCookieName
	}
	return c.Name
}

func (c SessionCookie) set(w http.ResponseWriter, credential string, expiresAt, now time.Time) {
	http.SetCookie(w, &http.Cookie{
		Name:     c.name(),
		Value:    credential,
		Path:     "/",
		Domain:   c.Domain,
		Expires:  expiresAt,
		MaxAge:   max(int(expiresAt.Sub(now).Seconds()), 1),
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (c SessionCookie) clear(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     c.name(),
		Value:    "",
		Path:     "/",
		Domain:   c.Domain,
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// frontendRedirect builds FrontendURL with extra query parameters.
func (c SessionCookie) frontendRedirect(params url.Values) string {
	u, err := url.Parse(c.FrontendURL)
	if err != nil || c.FrontendURL == "" {
		u = &url.URL{Path: "/"}
	}
	q := u.Query()
	for k, vs := range params {
		for _, v := range vs {
			q.Add(k, v)
		}
	}
	u.RawQuery = q.Encode()
	return u.String()
}
