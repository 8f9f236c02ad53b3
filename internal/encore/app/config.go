package app

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/aussiebroadwan/encore/pkg/httpx"
	"github.com/aussiebroadwan/encore/pkg/jwtx"
)

// ConfigFileEnv names the optional TOML file applied before env overrides.
const ConfigFileEnv = "ENCORE_CONFIG_FILE"

// Cache backends.
const (
	CacheBackendSQLite = "sqlite"
	CacheBackendValkey = "valkey"
	CacheBackendNone   = "none"
)

type Config struct {
	Env                  string        // Environment (dev, staging, prod) (default: dev)
	LogLevel             string        // Log level (debug, info, warn, error) (default: info)
	LogFormat            string        // Log format (json, text) (default: json)
	Port                 int           // HTTP server port (default: 8080)
	ShutdownGracePeriod  time.Duration // Graceful shutdown timeout (default: 10s)
	HousekeepingInterval time.Duration // Housekeeping interval (default: 1h)
	DatabaseFile         string        // Path to SQLite database file (default: ./encore.db)

	JWTSecret     string        // Required: HS256 secret for session and state tokens
	EncryptionKey string        // Optional: at-rest key for refresh secrets (falls back to JWTSecret)
	SessionIssuer string        // Issuer claim (default: encore)
	SessionTTL    time.Duration // Session credential lifetime (default: 7d)

	SpotifyClientID     string // Required
	SpotifyClientSecret string // Required
	SpotifyRedirectURI  string // Required: must match the app registration
	SpotifyAPIBaseURL   string
	SpotifyAuthURL      string
	SpotifyTokenURL     string
	SpotifyScopes       []string

	FrontendURL  string // Where the login callback lands (default: /)
	CrossOrigin  bool   // Hand the credential over in redirects and refresh bodies
	CookieDomain string
	CookieSecure bool // default: true outside dev

	cookieSecureSet bool

	CacheBackend   string        // sqlite, valkey or none (default: sqlite)
	CacheTTL       time.Duration // default: 24h
	ValkeyAddr     string
	ValkeyPassword string
	ValkeyDB       int

	BreakerThreshold    int
	BreakerCooldown     time.Duration
	UpstreamMaxAttempts int
	UpstreamBaseDelay   time.Duration
	UpstreamMaxDelay    time.Duration
	UpstreamDeadline    time.Duration
	UpstreamTimeout     time.Duration // per attempt
	UpstreamRPS         float64       // outbound pacing; 0 disables
	UpstreamBurst       int

	RateLimits httpx.RateLimits
}

// fileConfig mirrors Config as TOML sections. Unset keys keep the defaults.
type fileConfig struct {
	Server struct {
		Env                  string        `toml:"env"`
		Port                 int           `toml:"port"`
		ShutdownGracePeriod  time.Duration `toml:"shutdown_grace_period"`
		HousekeepingInterval time.Duration `toml:"housekeeping_interval"`
		FrontendURL          string        `toml:"frontend_url"`
		CrossOrigin          *bool         `toml:"cross_origin"`
		CookieDomain         string        `toml:"cookie_domain"`
		CookieSecure         *bool         `toml:"cookie_secure"`
	} `toml:"server"`

	Log struct {
		Level  string `toml:"level"`
		Format string `toml:"format"`
	} `toml:"log"`

	Database struct {
		Path string `toml:"path"`
	} `toml:"database"`

	Session struct {
		JWTSecret     string        `toml:"jwt_secret"`
		EncryptionKey string        `toml:"encryption_key"`
		Issuer        string        `toml:"issuer"`
		TTL           time.Duration `toml:"ttl"`
	} `toml:"session"`

	Spotify struct {
		ClientID     string   `toml:"client_id"`
		ClientSecret string   `toml:"client_secret"`
		RedirectURI  string   `toml:"redirect_uri"`
		APIBaseURL   string   `toml:"api_base_url"`
		AuthURL      string   `toml:"auth_url"`
		TokenURL     string   `toml:"token_url"`
		Scopes       []string `toml:"scopes"`
	} `toml:"spotify"`

	Cache struct {
		Backend        string        `toml:"backend"`
		TTL            time.Duration `toml:"ttl"`
		ValkeyAddr     string        `toml:"valkey_addr"`
		ValkeyPassword string        `toml:"valkey_password"`
		ValkeyDB       int           `toml:"valkey_db"`
	} `toml:"cache"`

	Upstream struct {
		BreakerThreshold int           `toml:"breaker_threshold"`
		BreakerCooldown  time.Duration `toml:"breaker_cooldown"`
		MaxAttempts      int           `toml:"max_attempts"`
		BaseDelay        time.Duration `toml:"base_delay"`
		MaxDelay         time.Duration `toml:"max_delay"`
		Deadline         time.Duration `toml:"deadline"`
		Timeout          time.Duration `toml:"timeout"`
		RPS              float64       `toml:"rps"`
		Burst            int           `toml:"burst"`
	} `toml:"upstream"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() Config {
	return Config{
		Env:                  "dev",
		LogLevel:             "info",
		LogFormat:            "json",
		Port:                 8080,
		ShutdownGracePeriod:  10 * time.Second,
		HousekeepingInterval: time.Hour,
		DatabaseFile:         "encore.db",
		SessionIssuer:        "encore",
		SessionTTL:           jwtx.DefaultSessionTTL,
		FrontendURL:          "/",
		CacheBackend:         CacheBackendSQLite,
		CacheTTL:             24 * time.Hour,
		UpstreamTimeout:      5 * time.Second,
		RateLimits:           httpx.DefaultRateLimits(),
	}
}

// LoadConfig builds the configuration from defaults, then the TOML file at
// path (or $ENCORE_CONFIG_FILE when path is empty), then the environment.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	if path == "" {
		path = os.Getenv(ConfigFileEnv)
	}
	if path != "" {
		if err := cfg.applyFile(path); err != nil {
			return Config{}, err
		}
	}

	cfg.applyEnv()
	return cfg, nil
}

func (cfg *Config) applyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	var f fileConfig
	if err := toml.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}

	setString(&cfg.Env, f.Server.Env)
	setInt(&cfg.Port, f.Server.Port)
	setDuration(&cfg.ShutdownGracePeriod, f.Server.ShutdownGracePeriod)
	setDuration(&cfg.HousekeepingInterval, f.Server.HousekeepingInterval)
	setString(&cfg.FrontendURL, f.Server.FrontendURL)
	if f.Server.CrossOrigin != nil {
		cfg.CrossOrigin = *f.Server.CrossOrigin
	}
	setString(&cfg.CookieDomain, f.Server.CookieDomain)
	if f.Server.CookieSecure != nil {
		cfg.CookieSecure = *f.Server.CookieSecure
		cfg.cookieSecureSet = true
	}

	setString(&cfg.LogLevel, f.Log.Level)
	setString(&cfg.LogFormat, f.Log.Format)
	setString(&cfg.DatabaseFile, f.Database.Path)

	setString(&cfg.JWTSecret, f.Session.JWTSecret)
	setString(&cfg.EncryptionKey, f.Session.EncryptionKey)
	setString(&cfg.SessionIssuer, f.Session.Issuer)
	setDuration(&cfg.SessionTTL, f.Session.TTL)

	setString(&cfg.SpotifyClientID, f.Spotify.ClientID)
	setString(&cfg.SpotifyClientSecret, f.Spotify.ClientSecret)
	setString(&cfg.SpotifyRedirectURI, f.Spotify.RedirectURI)
	setString(&cfg.SpotifyAPIBaseURL, f.Spotify.APIBaseURL)
	setString(&cfg.SpotifyAuthURL, f.Spotify.AuthURL)
	setString(&cfg.SpotifyTokenURL, f.Spotify.TokenURL)
	if len(f.Spotify.Scopes) > 0 {
		cfg.SpotifyScopes = f.Spotify.Scopes
	}

	setString(&cfg.CacheBackend, f.Cache.Backend)
	setDuration(&cfg.CacheTTL, f.Cache.TTL)
	setString(&cfg.ValkeyAddr, f.Cache.ValkeyAddr)
	setString(&cfg.ValkeyPassword, f.Cache.ValkeyPassword)
	setInt(&cfg.ValkeyDB, f.Cache.ValkeyDB)

	setInt(&cfg.BreakerThreshold, f.Upstream.BreakerThreshold)
	setDuration(&cfg.BreakerCooldown, f.Upstream.BreakerCooldown)
	setInt(&cfg.UpstreamMaxAttempts, f.Upstream.MaxAttempts)
	setDuration(&cfg.UpstreamBaseDelay, f.Upstream.BaseDelay)
	setDuration(&cfg.UpstreamMaxDelay, f.Upstream.MaxDelay)
	setDuration(&cfg.UpstreamDeadline, f.Upstream.Deadline)
	setDuration(&cfg.UpstreamTimeout, f.Upstream.Timeout)
	if f.Upstream.RPS > 0 {
		cfg.UpstreamRPS = f.Upstream.RPS
	}
	setInt(&cfg.UpstreamBurst, f.Upstream.Burst)

	return nil
}

func (cfg *Config) applyEnv() {
	cfg.Env = getEnvOrDefault("ENV", cfg.Env)
	cfg.LogLevel = getEnvOrDefault("LOG_LEVEL", cfg.LogLevel)
	cfg.LogFormat = getEnvOrDefault("LOG_FORMAT", cfg.LogFormat)
	cfg.Port = getEnvIntOrDefault("PORT", cfg.Port)
	cfg.ShutdownGracePeriod = getEnvDurationOrDefault("SHUTDOWN_GRACE_PERIOD", cfg.ShutdownGracePeriod)
	cfg.HousekeepingInterval = getEnvDurationOrDefault("HOUSEKEEPING_INTERVAL", cfg.HousekeepingInterval)
	cfg.DatabaseFile = getEnvOrDefault("DATABASE_FILE", cfg.DatabaseFile)

	cfg.JWTSecret = getEnvOrDefault("JWT_SECRET", cfg.JWTSecret)
	cfg.EncryptionKey = getEnvOrDefault("ENCRYPTION_KEY", cfg.EncryptionKey)
	cfg.SessionIssuer = getEnvOrDefault("SESSION_ISSUER", cfg.SessionIssuer)
	cfg.SessionTTL = getEnvDurationOrDefault("SESSION_TTL", cfg.SessionTTL)

	cfg.SpotifyClientID = getEnvOrDefault("SPOTIFY_CLIENT_ID", cfg.SpotifyClientID)
	cfg.SpotifyClientSecret = getEnvOrDefault("SPOTIFY_CLIENT_SECRET", cfg.SpotifyClientSecret)
	cfg.SpotifyRedirectURI = getEnvOrDefault("SPOTIFY_REDIRECT_URI", cfg.SpotifyRedirectURI)
	cfg.SpotifyAPIBaseURL = getEnvOrDefault("SPOTIFY_API_BASE_URL", cfg.SpotifyAPIBaseURL)
	cfg.SpotifyAuthURL = getEnvOrDefault("SPOTIFY_AUTH_URL", cfg.SpotifyAuthURL)
	cfg.SpotifyTokenURL = getEnvOrDefault("SPOTIFY_TOKEN_URL", cfg.SpotifyTokenURL)
	if scopes := httpx.ParseSpaceDelimitedFields(os.Getenv("SPOTIFY_SCOPES")); scopes != nil {
		cfg.SpotifyScopes = scopes
	}

	cfg.FrontendURL = getEnvOrDefault("FRONTEND_URL", cfg.FrontendURL)
	cfg.CrossOrigin = getEnvBoolOrDefault("CROSS_ORIGIN", cfg.CrossOrigin)
	cfg.CookieDomain = getEnvOrDefault("COOKIE_DOMAIN", cfg.CookieDomain)
	if !cfg.cookieSecureSet {
		cfg.CookieSecure = cfg.Env != "dev"
	}
	cfg.CookieSecure = getEnvBoolOrDefault("COOKIE_SECURE", cfg.CookieSecure)

	cfg.CacheBackend = strings.ToLower(getEnvOrDefault("CACHE_BACKEND", cfg.CacheBackend))
	cfg.CacheTTL = getEnvDurationOrDefault("CACHE_TTL", cfg.CacheTTL)
	cfg.ValkeyAddr = getEnvOrDefault("VALKEY_ADDR", cfg.ValkeyAddr)
	cfg.ValkeyPassword = getEnvOrDefault("VALKEY_PASSWORD", cfg.ValkeyPassword)
	cfg.ValkeyDB = getEnvIntOrDefault("VALKEY_DB", cfg.ValkeyDB)

	cfg.BreakerThreshold = getEnvIntOrDefault("BREAKER_THRESHOLD", cfg.BreakerThreshold)
	cfg.BreakerCooldown = getEnvDurationOrDefault("BREAKER_COOLDOWN", cfg.BreakerCooldown)
	cfg.UpstreamMaxAttempts = getEnvIntOrDefault("UPSTREAM_MAX_ATTEMPTS", cfg.UpstreamMaxAttempts)
	cfg.UpstreamBaseDelay = getEnvDurationOrDefault("UPSTREAM_BASE_DELAY", cfg.UpstreamBaseDelay)
	cfg.UpstreamMaxDelay = getEnvDurationOrDefault("UPSTREAM_MAX_DELAY", cfg.UpstreamMaxDelay)
	cfg.UpstreamDeadline = getEnvDurationOrDefault("UPSTREAM_DEADLINE", cfg.UpstreamDeadline)
	cfg.UpstreamTimeout = getEnvDurationOrDefault("UPSTREAM_TIMEOUT", cfg.UpstreamTimeout)
	cfg.UpstreamRPS = getEnvFloatOrDefault("UPSTREAM_RPS", cfg.UpstreamRPS)
	cfg.UpstreamBurst = getEnvIntOrDefault("UPSTREAM_BURST", cfg.UpstreamBurst)

	cfg.RateLimits = httpx.RateLimitsFromEnv(cfg.RateLimits)
}

// ServerWriteTimeout bounds every inbound request. The upstream deadline has
// to fit inside it.
const ServerWriteTimeout = 30 * time.Second

// Validate reports every problem at once.
func (cfg Config) Validate() error {
	var errs []error

	if len(cfg.JWTSecret) < jwtx.MinSecretLength {
		errs = append(errs, fmt.Errorf("JWT_SECRET must be at least %d bytes", jwtx.MinSecretLength))
	}
	if cfg.SpotifyClientID == "" {
		errs = append(errs, errors.New("SPOTIFY_CLIENT_ID is required"))
	}
	if cfg.SpotifyClientSecret == "" {
		errs = append(errs, errors.New("SPOTIFY_CLIENT_SECRET is required"))
	}
	if cfg.SpotifyRedirectURI == "" {
		errs = append(errs, errors.New("SPOTIFY_REDIRECT_URI is required"))
	}
	if cfg.Port <= 0 || cfg.Port > 65535 {
		errs = append(errs, fmt.Errorf("PORT %d is out of range", cfg.Port))
	}
	if cfg.UpstreamDeadline >= ServerWriteTimeout {
		errs = append(errs, fmt.Errorf("UPSTREAM_DEADLINE %s must be below %s", cfg.UpstreamDeadline, ServerWriteTimeout))
	}

	switch cfg.CacheBackend {
	case CacheBackendSQLite, CacheBackendNone:
	case CacheBackendValkey:
		if cfg.ValkeyAddr == "" {
			errs = append(errs, errors.New("VALKEY_ADDR is required when CACHE_BACKEND=valkey"))
		}
	default:
		errs = append(errs, fmt.Errorf("CACHE_BACKEND %q is not one of sqlite, valkey, none", cfg.CacheBackend))
	}

	return errors.Join(errs...)
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setInt(dst *int, v int) {
	if v != 0 {
		*dst = v
	}
}

func setDuration(dst *time.Duration, v time.Duration) {
	if v != 0 {
		*dst = v
	}
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if intValue, err := strconv.Atoi(value); err == nil {
		return intValue
	}

	return defaultValue
}

func getEnvFloatOrDefault(key string, defaultValue float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if f, err := strconv.ParseFloat(value, 64); err == nil {
		return f
	}

	return defaultValue
}

func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if b, err := strconv.ParseBool(value); err == nil {
		return b
	}

	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	// Try parsing as duration (e.g., "1h", "30m", "90s")
	if duration, err := time.ParseDuration(value); err == nil {
		return duration
	}

	// Bare integers are seconds.
	if seconds, err := strconv.Atoi(value); err == nil {
		return time.Duration(seconds) * time.Second
	}

	return defaultValue
}
