package app

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/aussiebroadwan/encore/pkg/pkce"
	"github.com/aussiebroadwan/encore/pkg/resilx"
	"github.com/stretchr/testify/require"
)

// fakeSpotify plays both the accounts service and the Web API.
type fakeSpotify struct {
	t *testing.T

	mu         sync.Mutex
	challenges map[string]string // code -> code_challenge

	issued   atomic.Int32
	apiCalls atomic.Int32
}

func newFakeSpotify(t *testing.T) (*fakeSpotify, *httptest.Server) {
	f := &fakeSpotify{t: t, challenges: map[string]string{}}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/token", f.token)
	mux.HandleFunc("GET /v1/me", f.api(map[string]any{"id": "wizzler", "display_name": "Wizzler"}))
	mux.HandleFunc("GET /v1/me/top/artists", f.api(map[string]any{
		"items": []map[string]any{{"id": "artist-1", "name": "Band", "uri": "spotify:artist:1"}},
	}))

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return f, srv
}

// authorize stands in for the consent page: it remembers the challenge and
// hands back a code.
func (f *fakeSpotify) authorize(authURL string) (code, state string) {
	u, err := url.Parse(authURL)
	require.NoError(f.t, err)
	q := u.Query()
	require.Equal(f.t, "S256", q.Get("code_challenge_method"))
	require.Equal(f.t, "test-client", q.Get("client_id"))

	f.mu.Lock()
	code = fmt.Sprintf("code-%d", len(f.challenges)+1)
	f.challenges[code] = q.Get("code_challenge")
	f.mu.Unlock()
	return code, q.Get("state")
}

func (f *fakeSpotify) token(w http.ResponseWriter, r *http.Request) {
	id, secret, ok := r.BasicAuth()
	if !ok || id != "test-client" || secret != "test-secret" {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	if err := r.ParseForm(); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	switch r.PostForm.Get("grant_type") {
	case "authorization_code":
		f.mu.Lock()
		challenge, known := f.challenges[r.PostForm.Get("code")]
		delete(f.challenges, r.PostForm.Get("code"))
		f.mu.Unlock()
		if !known || !pkce.VerifyChallenge(challenge, r.PostForm.Get("code_verifier")) {
			tokenError(w, "invalid_grant")
			return
		}
	case "refresh_token":
		if !strings.HasPrefix(r.PostForm.Get("refresh_token"), "rt-") {
			tokenError(w, "invalid_grant")
			return
		}
	default:
		tokenError(w, "unsupported_grant_type")
		return
	}

	n := f.issued.Add(1)
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"access_token":  fmt.Sprintf("at-%d", n),
		"token_type":    "Bearer",
		"expires_in":    120, // inside the refresh window, so every refresh rotates
		"refresh_token": fmt.Sprintf("rt-%d", n),
	})
}

func tokenError(w http.ResponseWriter, code string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusBadRequest)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": code})
}

func (f *fakeSpotify) api(body any) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f.apiCalls.Add(1)
		if !strings.HasPrefix(r.Header.Get("Authorization"), "Bearer at-") {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(body)
	}
}

func newTestApplication(t *testing.T, spotifyURL string) *Application {
	t.Helper()

	cfg := validConfig()
	cfg.LogLevel = "error"
	cfg.DatabaseFile = filepath.Join(t.TempDir(), "encore.db")
	cfg.EncryptionKey = "test-encryption-key"
	cfg.SpotifyClientID = "test-client"
	cfg.SpotifyClientSecret = "test-secret"
	cfg.SpotifyAuthURL = spotifyURL + "/authorize"
	cfg.SpotifyTokenURL = spotifyURL + "/api/token"
	cfg.SpotifyAPIBaseURL = spotifyURL + "/v1"
	cfg.FrontendURL = "https://encore.example/"
	cfg.UpstreamMaxAttempts = 1

	application, err := New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = application.closeStores() })
	return application
}

func (app *Application) serve(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	app.router.ServeHTTP(rec, req)
	return rec
}

func sessionCookie(t *testing.T, rec *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, c := range rec.Result().Cookies() {
		if c.Name == "encore_session" && c.MaxAge > 0 {
			return c
		}
	}
	t.Fatalf("no session cookie in response %d", rec.Code)
	return nil
}

func TestApplicationLoginToStats(t *testing.T) {
	spotify, srv := newFakeSpotify(t)
	app := newTestApplication(t, srv.URL)

	// Login redirect carries a PKCE challenge.
	req := httptest.NewRequest(http.MethodGet, "/v1/auth/login", nil)
	req.Header.Set("Accept", "application/json")
	rec := app.serve(req)
	require.Equal(t, http.StatusOK, rec.Code)

	var login struct {
		URL string `json:"url"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&login))
	require.True(t, strings.HasPrefix(login.URL, srv.URL+"/authorize"))
	code, state := spotify.authorize(login.URL)

	// Callback exchanges the code with the verifier hidden in the state.
	rec = app.serve(httptest.NewRequest(http.MethodGet,
		"/v1/auth/callback?"+url.Values{"code": {code}, "state": {state}}.Encode(), nil))
	require.Equal(t, http.StatusFound, rec.Code)
	require.Equal(t, "https://encore.example/", rec.Header().Get("Location"))
	cookie := sessionCookie(t, rec)

	// Reads go through the cache.
	get := func(path string, c *http.Cookie) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		req.AddCookie(c)
		return app.serve(req)
	}
	rec = get("/v1/me/top/artists", cookie)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "MISS", rec.Header().Get("X-Cache"))
	calls := spotify.apiCalls.Load()

	rec = get("/v1/me/top/artists?limit=1", cookie)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "HIT", rec.Header().Get("X-Cache"))
	require.Equal(t, calls, spotify.apiCalls.Load())

	// The access token is near expiry, so refresh rotates.
	refresh := func(c *http.Cookie) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/v1/auth/refresh", nil)
		req.AddCookie(c)
		return app.serve(req)
	}
	rec = refresh(cookie)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"status":"rotated"`)
	rotated := sessionCookie(t, rec)

	account, err := app.db.Accounts().GetAccountBySpotifyID(t.Context(), "wizzler")
	require.NoError(t, err)
	require.Equal(t, int64(2), account.TokenVersion)
	plain, err := app.box.Decrypt(account.RefreshTokenEncrypted)
	require.NoError(t, err)
	require.Equal(t, "rt-2", plain)

	// The old credential is from a retired family.
	rec = refresh(cookie)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Contains(t, rec.Body.String(), "token_family_mismatch")

	rec = refresh(rotated)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = app.serve(httptest.NewRequest(http.MethodGet, "/readyz", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"upstream":{"accounts":"closed","api":"closed"}`)
}

func TestApplicationRejectsReplayedCode(t *testing.T) {
	spotify, srv := newFakeSpotify(t)
	app := newTestApplication(t, srv.URL)

	req := httptest.NewRequest(http.MethodGet, "/v1/auth/login", nil)
	req.Header.Set("Accept", "application/json")
	var login struct {
		URL string `json:"url"`
	}
	require.NoError(t, json.NewDecoder(app.serve(req).Body).Decode(&login))
	code, state := spotify.authorize(login.URL)

	callback := "/v1/auth/callback?" + url.Values{"code": {code}, "state": {state}}.Encode()
	rec := app.serve(httptest.NewRequest(http.MethodGet, callback, nil))
	require.Equal(t, http.StatusFound, rec.Code)

	rec = app.serve(httptest.NewRequest(http.MethodGet, callback, nil))
	require.Equal(t, http.StatusFound, rec.Code)
	require.Equal(t, "https://encore.example/?error=invalid_grant", rec.Header().Get("Location"))
}

func loginThroughSpotify(t *testing.T, app *Application, spotify *fakeSpotify) *http.Cookie {
	t.Helper()

	req := httptest.NewRequest(http.MethodGet, "/v1/auth/login", nil)
	req.Header.Set("Accept", "application/json")
	var login struct {
		URL string `json:"url"`
	}
	require.NoError(t, json.NewDecoder(app.serve(req).Body).Decode(&login))
	code, state := spotify.authorize(login.URL)

	rec := app.serve(httptest.NewRequest(http.MethodGet,
		"/v1/auth/callback?"+url.Values{"code": {code}, "state": {state}}.Encode(), nil))
	require.Equal(t, http.StatusFound, rec.Code)
	return sessionCookie(t, rec)
}

func TestApplicationUpstreamsTripIndependently(t *testing.T) {
	spotify, srv := newFakeSpotify(t)
	app := newTestApplication(t, srv.URL)
	cookie := loginThroughSpotify(t, app, spotify)

	accounts := app.breakers[upstreamAccounts]
	for accounts.State() != resilx.StateOpen {
		tk, err := accounts.Allow()
		require.NoError(t, err)
		accounts.Failure(tk)
	}

	// Data reads only need the Web API.
	req := httptest.NewRequest(http.MethodGet, "/v1/me/top/artists", nil)
	req.AddCookie(cookie)
	rec := app.serve(req)
	require.Equal(t, http.StatusOK, rec.Code)

	// Rotation needs the accounts service.
	req = httptest.NewRequest(http.MethodPost, "/v1/auth/refresh", nil)
	req.AddCookie(cookie)
	rec = app.serve(req)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	require.Contains(t, rec.Body.String(), "upstream_unavailable")
	require.NotEmpty(t, rec.Header().Get("Retry-After"))

	rec = app.serve(httptest.NewRequest(http.MethodGet, "/readyz", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"upstream":{"accounts":"open","api":"closed"}`)
}
