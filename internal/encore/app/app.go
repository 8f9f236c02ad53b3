package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	httpapi "github.com/aussiebroadwan/encore/internal/encore/http"
	"github.com/aussiebroadwan/encore/internal/encore/service"
	"github.com/aussiebroadwan/encore/internal/encore/spotify"
	"github.com/aussiebroadwan/encore/internal/encore/store"
	"github.com/aussiebroadwan/encore/internal/encore/store/drivers/sqlite"
	"github.com/aussiebroadwan/encore/internal/encore/store/drivers/valkey"
	"github.com/aussiebroadwan/encore/internal/encore/telemetry"
	"github.com/aussiebroadwan/encore/pkg/cryptox"
	"github.com/aussiebroadwan/encore/pkg/jwtx"
	"github.com/aussiebroadwan/encore/pkg/pkce"
	"github.com/aussiebroadwan/encore/pkg/resilx"
	"github.com/aussiebroadwan/encore/pkg/slogx"
	"go.opentelemetry.io/otel"
)

// BuildVersion is overridden at build time via ldflags.
var BuildVersion = "v0.1.0"

// Application encapsulates the encore service with all its dependencies
type Application struct {
	cfg     Config
	logger  *slog.Logger
	metrics *telemetry.Metrics

	// Core dependencies
	db      store.Store
	box     *cryptox.SecretBox
	signer  *jwtx.HMAC
	breakers map[string]*resilx.Breaker // one per upstream dependency
	valkey  *valkey.Cache // only with CACHE_BACKEND=valkey

	// Services
	sessionService      *service.SessionService
	statsService        *service.StatsService
	housekeepingService *service.HousekeepingService

	// HTTP server
	server *http.Server
	router *httpapi.Router
}

// NewLogger builds the process logger from cfg.
func NewLogger(cfg Config) *slog.Logger {
	return slogx.New(slogx.Config{
		Service: "encore",
		Version: BuildVersion,
		Env:     cfg.Env,
		Level:   cfg.LogLevel,
		Format:  cfg.LogFormat,
	})
}

// New creates a new Application instance with all dependencies initialized
func New(cfg Config) (*Application, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	app := &Application{
		cfg:    cfg,
		logger: NewLogger(cfg),
	}

	metrics, err := telemetry.New(otel.GetMeterProvider())
	if err != nil {
		return nil, fmt.Errorf("failed to initialize metrics: %w", err)
	}
	app.metrics = metrics

	if err := app.initDatabase(); err != nil {
		return nil, err
	}

	if err := app.initSecrets(); err != nil {
		_ = app.db.Close()
		return nil, err
	}

	if err := app.initServices(); err != nil {
		app.closeStores()
		return nil, err
	}
	app.initHTTP()

	return app, nil
}

// Run starts the application and blocks until shutdown is requested
func (app *Application) Run() error {
	app.housekeepingService.Start()

	app.logger.Info("encore starting",
		"port", app.cfg.Port,
		"version", BuildVersion,
		"cache_backend", app.cfg.CacheBackend,
	)

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- app.server.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			app.housekeepingService.Stop()
			app.closeStores()
			return fmt.Errorf("server failed: %w", err)
		}
	case sig := <-shutdown:
		app.logger.Info("shutdown signal received", "signal", sig)

		if err := app.Shutdown(); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
	}

	return nil
}

// Shutdown gracefully shuts down the application
func (app *Application) Shutdown() error {
	app.logger.Info("shutting down encore...")

	ctx, cancel := context.WithTimeout(context.Background(), app.cfg.ShutdownGracePeriod)
	defer cancel()

	if err := app.server.Shutdown(ctx); err != nil {
		app.logger.Error("graceful server shutdown failed", "error", err)
		if err := app.server.Close(); err != nil {
			app.logger.Error("error closing server", "error", err)
		}
	}

	app.housekeepingService.Stop()

	if err := app.closeStores(); err != nil {
		return err
	}

	app.logger.Info("encore stopped")
	return nil
}

func (app *Application) closeStores() error {
	if app.valkey != nil {
		app.valkey.Close()
	}
	if err := app.db.Close(); err != nil {
		app.logger.Error("error closing database", "error", err)
		return err
	}
	return nil
}

// initDatabase opens the database and applies migrations
func (app *Application) initDatabase() error {
	db, err := OpenDatabase(app.cfg.DatabaseFile)
	if err != nil {
		return err
	}
	app.db = db

	app.logger.Info("database migrations applied successfully")
	return nil
}

// OpenDatabase opens the SQLite store at path and brings the schema up to date.
func OpenDatabase(path string) (*sqlite.Store, error) {
	db, err := sqlite.NewStore(sqlite.DSN(path))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	if err := db.ApplyMigrations(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply database migrations: %w", err)
	}
	return db, nil
}

func (app *Application) initSecrets() error {
	box, err := cryptox.ResolveSecretBox(app.cfg.EncryptionKey, app.cfg.JWTSecret, app.logger)
	if err != nil {
		return fmt.Errorf("failed to initialize encryption: %w", err)
	}
	app.box = box

	signer, err := jwtx.NewHMAC([]byte(app.cfg.JWTSecret), nil)
	if err != nil {
		return fmt.Errorf("failed to initialize session signer: %w", err)
	}
	app.signer = signer

	return nil
}

// initServices builds the upstream stack and the business logic services
func (app *Application) initServices() error {
	httpClient := &http.Client{Timeout: app.cfg.UpstreamTimeout}

	client := spotify.NewClient(spotify.ClientConfig{
		BaseURL:    app.cfg.SpotifyAPIBaseURL,
		HTTPClient: httpClient,
		Policy:     app.upstreamPolicy(upstreamAPI),
		Metrics:    app.metrics,
	})

	provider, err := spotify.NewProvider(spotify.ProviderConfig{
		ClientID:     app.cfg.SpotifyClientID,
		ClientSecret: app.cfg.SpotifyClientSecret,
		RedirectURL:  app.cfg.SpotifyRedirectURI,
		AuthURL:      app.cfg.SpotifyAuthURL,
		TokenURL:     app.cfg.SpotifyTokenURL,
		Scopes:       app.cfg.SpotifyScopes,
		HTTPClient:   httpClient,
		Policy:       app.upstreamPolicy(upstreamAccounts),
		Metrics:      app.metrics,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize provider: %w", err)
	}

	cache, err := app.responseCache()
	if err != nil {
		return err
	}

	app.sessionService = &service.SessionService{
		Store:    app.db,
		Box:      app.box,
		Sessions: jwtx.NewSessionIssuer(app.signer, app.cfg.SessionIssuer, app.cfg.SessionTTL),
		States:   pkce.NewStateManager(app.signer, app.cfg.SessionIssuer),
		Provider: provider,
		Profiles: client,
		Metrics:  app.metrics,
	}

	app.statsService = &service.StatsService{
		Client: spotify.NewCachedClient(spotify.CachedClientConfig{
			Upstream: client,
			Cache:    cache,
			TTL:      app.cfg.CacheTTL,
			Metrics:  app.metrics,
		}),
		Store: app.db,
	}

	app.housekeepingService = service.NewHousekeepingService(
		app.db,
		app.logger,
		app.cfg.HousekeepingInterval,
		app.cfg.CacheTTL,
	)

	return nil
}

// Upstream dependencies. The accounts service and the Web API fail and rate
// limit independently, so each gets its own breaker and gate.
const (
	upstreamAccounts = "accounts"
	upstreamAPI      = "api"
)

// upstreamPolicy builds the breaker, gate and retry loop for one upstream
// dependency.
func (app *Application) upstreamPolicy(name string) *resilx.Policy {
	l := app.logger.With("upstream", name)
	breaker := resilx.NewBreaker(resilx.BreakerConfig{
		Threshold: app.cfg.BreakerThreshold,
		Cooldown:  app.cfg.BreakerCooldown,
		OnStateChange: func(from, to resilx.State) {
			app.metrics.RecordBreakerTransition(context.Background(), name, from.String(), to.String())
			if to == resilx.StateOpen {
				l.Warn("upstream circuit opened", "from", from.String())
				return
			}
			l.Info("upstream circuit state changed", "from", from.String(), "to", to.String())
		},
	})
	if app.breakers == nil {
		app.breakers = make(map[string]*resilx.Breaker)
	}
	app.breakers[name] = breaker

	return &resilx.Policy{
		Breaker: breaker,
		Gate:    resilx.NewGate(nil, app.cfg.UpstreamRPS, app.cfg.UpstreamBurst),
		Retry: resilx.RetryConfig{
			MaxAttempts: app.cfg.UpstreamMaxAttempts,
			BaseDelay:   app.cfg.UpstreamBaseDelay,
			MaxDelay:    app.cfg.UpstreamMaxDelay,
			Deadline:    app.cfg.UpstreamDeadline,
		},
		OnRetry: func(ev resilx.RetryEvent) {
			app.metrics.RecordUpstreamRetry(context.Background(), name, retryReason(ev.Err))
			l.Debug("retrying upstream call",
				"attempt", ev.Attempt,
				"delay", ev.Delay,
				"error", ev.Err,
			)
		},
	}
}

func retryReason(err error) string {
	var se *resilx.StatusError
	switch {
	case errors.As(err, &se):
		return "http_" + strconv.Itoa(se.StatusCode)
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	}
	return "error"
}

// responseCache picks the backend for the read-through cache. nil disables caching.
func (app *Application) responseCache() (store.ResponseCache, error) {
	switch app.cfg.CacheBackend {
	case CacheBackendNone:
		app.logger.Warn("response cache disabled; every read goes upstream")
		return nil, nil
	case CacheBackendValkey:
		c, err := valkey.New(valkey.Config{
			Address:  app.cfg.ValkeyAddr,
			Password: app.cfg.ValkeyPassword,
			DB:       app.cfg.ValkeyDB,
			TTL:      app.cfg.CacheTTL,
			Logger:   app.logger,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize valkey cache: %w", err)
		}
		app.valkey = c
		return c, nil
	default:
		return app.db.ResponseCache(), nil
	}
}

// initHTTP initializes the HTTP router and server
func (app *Application) initHTTP() {
	routerCfg := httpapi.RouterConfig{
		BuildVersion: BuildVersion,
		Store:        app.db,
		Breakers:     app.breakers,
		Logger:       app.logger,
		RateLimits:   app.cfg.RateLimits,
		Cookie: httpapi.SessionCookie{
			Secure:      app.cfg.CookieSecure,
			Domain:      app.cfg.CookieDomain,
			FrontendURL: app.cfg.FrontendURL,
			CrossOrigin: app.cfg.CrossOrigin,
		},
	}
	if app.valkey != nil {
		routerCfg.Cache = app.valkey
	}

	router := httpapi.NewRouter(routerCfg)
	router.SessionService = app.sessionService
	router.StatsService = app.statsService
	router.ApplyRoutes()

	app.router = router

	app.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", app.cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 3 * time.Second,
		WriteTimeout:      ServerWriteTimeout,
	}
}
