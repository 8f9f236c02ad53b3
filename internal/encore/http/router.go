package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/aussiebroadwan/encore/internal/encore/service"
	"github.com/aussiebroadwan/encore/internal/encore/store"
	"github.com/aussiebroadwan/encore/pkg/httpx"
	"github.com/aussiebroadwan/encore/pkg/resilx"
	"github.com/aussiebroadwan/encore/pkg/slogx"

	_ "github.com/aussiebroadwan/encore/api/encore" // Swagger docs
	httpSwagger "github.com/swaggo/http-swagger"
)

// RouterConfig carries what the handlers share.
type RouterConfig struct {
	BuildVersion string
	Store        store.Store
	Cache        Pinger // optional shared cache backend
	Breakers     map[string]*resilx.Breaker // keyed by upstream dependency
	Logger       *slog.Logger
	Cookie       SessionCookie
	RateLimits   httpx.RateLimits
}

// Router holds shared dependencies for HTTP handlers.
type Router struct {
	Mux         *http.ServeMux
	middlewares []httpx.Middleware

	buildVersion string
	startTime    time.Time
	logger       *slog.Logger
	store        store.Store
	cache        Pinger
	breakers     map[string]*resilx.Breaker
	cookie       SessionCookie
	limits       httpx.RateLimits

	SessionService *service.SessionService
	StatsService   *service.StatsService
}

func NewRouter(cfg RouterConfig) *Router {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.RateLimits == (httpx.RateLimits{}) {
		cfg.RateLimits = httpx.DefaultRateLimits()
	}

	r := &Router{
		Mux:          http.NewServeMux(),
		buildVersion: cfg.BuildVersion,
		startTime:    time.Now(),
		logger:       cfg.Logger,
		store:        cfg.Store,
		cache:        cfg.Cache,
		breakers:     cfg.Breakers,
		cookie:       cfg.Cookie,
		limits:       cfg.RateLimits,
	}

	r.middlewares = []httpx.Middleware{
		slogx.HTTPMiddleware(r.logger),
	}

	return r
}

func (r *Router) ApplyRoutes() {
	r.registerAuth()
	r.registerStats()
	r.registerSystem()

	r.Mux.Handle("/swagger/", httpSwagger.Handler())
}

// ServeHTTP implements http.Handler for Router and applies the global middleware chain.
//
//	@title			Encore API
//	@version		0.1.0
//	@description	Listening statistics backed by the Spotify Web API.
//	@description
//	@description				Sessions are HS256 credentials carried in the encore_session cookie or an Authorization header.
//
//	@contact.name				AussieBroadWAN Team
//	@contact.url				https://github.com/aussiebroadwan/encore
//
//	@license.name				MIT
//	@license.url				https://opensource.org/licenses/MIT
//
//	@host						localhost:8080
//	@BasePath					/
//
//	@schemes					http https
//
//	@securityDefinitions.apikey	BearerAuth
//	@in							header
//	@name						Authorization
//	@description				Session credential. Format: "Bearer {token}".
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	httpx.Chain(r.Mux, r.middlewares...).ServeHTTP(w, req)
}

func (r *Router) errorMapper() errorMapper {
	return errorMapper{}
}

func (r *Router) registerAuth() {
	h := &AuthHandler{
		Sessions: r.SessionService,
		Cookie:   r.cookie,
		Clock:    r.SessionService.Clock,
		errs:     r.errorMapper(),
	}

	// Login and callback start provider round trips; keep them strict.
	r.Mux.Handle("GET /v1/auth/login",
		httpx.Chain(http.HandlerFunc(h.HandleLogin),
			httpx.RateLimitByIP(r.limits.Strict),
		),
	)
	r.Mux.Handle("GET /v1/auth/callback",
		httpx.Chain(http.HandlerFunc(h.HandleCallback),
			httpx.RateLimitByIP(r.limits.Strict),
		),
	)

	r.Mux.Handle("POST /v1/auth/refresh",
		httpx.Chain(http.HandlerFunc(h.HandleRefresh),
			httpx.RateLimitByIP(r.limits.Moderate),
		),
	)
	r.Mux.Handle("POST /v1/auth/logout",
		httpx.Chain(http.HandlerFunc(h.HandleLogout),
			httpx.RateLimitByIP(r.limits.Moderate),
		),
	)
}

func (r *Router) registerStats() {
	h := &StatsHandler{
		Stats: r.StatsService,
		errs:  r.errorMapper(),
	}

	secured := func(fn http.HandlerFunc) http.Handler {
		return httpx.Chain(fn,
			httpx.AuthnMiddleware(r.SessionService, r.cookie.name()),
			httpx.RateLimitByAccount(r.limits.Lenient),
		)
	}

	r.Mux.Handle("GET /v1/me", secured(h.HandleMe))
	r.Mux.Handle("GET /v1/me/top/{kind}", secured(h.HandleTop))
	r.Mux.Handle("GET /v1/me/recently-played", secured(h.HandleRecentlyPlayed))
}

func (r *Router) registerSystem() {
	r.Mux.Handle("GET /livez",
		httpx.Chain(LivezHandler(r.startTime, r.buildVersion),
			httpx.RateLimitByIP(r.limits.Public),
		),
	)
	r.Mux.Handle("GET /readyz",
		httpx.Chain(ReadyzHandler(r.startTime, r.buildVersion, r.store, r.cache, r.breakers),
			httpx.RateLimitByIP(r.limits.Public),
		),
	)
}
