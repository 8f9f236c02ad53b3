package spotify

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/aussiebroadwan/encore/internal/encore/telemetry"
	"github.com/aussiebroadwan/encore/pkg/pkce"
	"github.com/aussiebroadwan/encore/pkg/resilx"
	"golang.org/x/oauth2"
)

const (
	DefaultAuthURL  = "https://accounts.spotify.com/authorize"
	DefaultTokenURL = "https://accounts.spotify.com/api/token"
)

// DefaultScopes covers the profile and the listening-history endpoints.
var DefaultScopes = []string{
	"user-read-private",
	"user-read-email",
	"user-top-read",
	"user-read-recently-played",
}

var (
	// ErrInvalidGrant means the provider rejected an authorization code.
	ErrInvalidGrant = errors.New("spotify: invalid grant")

	// ErrRefreshRevoked means the provider no longer honours a refresh token.
	ErrRefreshRevoked = errors.New("spotify: refresh token revoked")
)

// ProviderConfig configures the accounts-service side of OAuth2.
type ProviderConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	AuthURL      string
	TokenURL     string
	Scopes       []string
	HTTPClient   *http.Client
	Policy       *resilx.Policy
	Metrics      *telemetry.Metrics
}

// Provider runs the authorization-code + PKCE flow against the accounts
// service and refreshes access tokens.
type Provider struct {
	config     *oauth2.Config
	httpClient *http.Client
	policy     *resilx.Policy
	metrics    *telemetry.Metrics
}

func NewProvider(cfg ProviderConfig) (*Provider, error) {
	if cfg.ClientID == "" {
		return nil, fmt.Errorf("missing client_id")
	}
	if cfg.ClientSecret == "" {
		return nil, fmt.Errorf("missing client_secret")
	}
	if cfg.RedirectURL == "" {
		return nil, fmt.Errorf("missing redirect_uri")
	}
	if cfg.AuthURL == "" {
		cfg.AuthURL = DefaultAuthURL
	}
	if cfg.TokenURL == "" {
		cfg.TokenURL = DefaultTokenURL
	}
	if len(cfg.Scopes) == 0 {
		cfg.Scopes = DefaultScopes
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: DefaultRequestTimeout}
	}
	if cfg.Policy == nil {
		cfg.Policy = &resilx.Policy{}
	}
	if cfg.Metrics == nil {
		cfg.Metrics = telemetry.Noop()
	}

	return &Provider{
		config: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       cfg.Scopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:   cfg.AuthURL,
				TokenURL:  cfg.TokenURL,
				AuthStyle: oauth2.AuthStyleInHeader,
			},
		},
		httpClient: cfg.HTTPClient,
		policy:     cfg.Policy,
		metrics:    cfg.Metrics,
	}, nil
}

// AuthCodeURL builds the authorize redirect with an S256 code challenge.
func (p *Provider) AuthCodeURL(state, codeChallenge string) string {
	return p.config.AuthCodeURL(state,
		oauth2.SetAuthURLParam("code_challenge", codeChallenge),
		oauth2.SetAuthURLParam("code_challenge_method", pkce.MethodS256),
	)
}

// Exchange trades an authorization code and its verifier for tokens.
func (p *Provider) Exchange(ctx context.Context, code, verifier string) (*oauth2.Token, error) {
	var token *oauth2.Token
	err := p.call(ctx, "token_exchange", func(ctx context.Context) error {
		t, err := p.config.Exchange(ctx, code, oauth2.VerifierOption(verifier))
		if err != nil {
			return classifyTokenError(err, ErrInvalidGrant)
		}
		token = t
		return nil
	})
	if err != nil {
		return nil, err
	}
	return token, nil
}

// Refresh redeems refreshToken for a new access token. The returned token
// carries the provider's new refresh token, or the old one when the
// provider did not rotate it.
func (p *Provider) Refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
	var token *oauth2.Token
	err := p.call(ctx, "token_refresh", func(ctx context.Context) error {
		// An expired token with only a refresh token forces a round trip.
		src := p.config.TokenSource(ctx, &oauth2.Token{
			RefreshToken: refreshToken,
			Expiry:       time.Unix(1, 0),
		})
		t, err := src.Token()
		if err != nil {
			return classifyTokenError(err, ErrRefreshRevoked)
		}
		if t.RefreshToken == "" {
			t.RefreshToken = refreshToken
		}
		token = t
		return nil
	})
	if err != nil {
		return nil, err
	}
	return token, nil
}

func (p *Provider) call(ctx context.Context, op string, fn func(context.Context) error) error {
	start := time.Now()
	err := p.policy.Do(ctx, func(ctx context.Context) error {
		return fn(context.WithValue(ctx, oauth2.HTTPClient, p.httpClient))
	})
	p.metrics.RecordUpstreamRequest(ctx, op, outcome(err), float64(time.Since(start).Milliseconds()))
	if err != nil {
		return fmt.Errorf("spotify %s: %w", op, err)
	}
	return nil
}

// classifyTokenError turns token-endpoint failures into errors the policy
// understands. invalid_grant maps to grantErr and is never retried.
func classifyTokenError(err error, grantErr error) error {
	var re *oauth2.RetrieveError
	if !errors.As(err, &re) {
		return err
	}

	if re.ErrorCode == "invalid_grant" {
		if re.ErrorDescription != "" {
			return fmt.Errorf("%w: %s", grantErr, re.ErrorDescription)
		}
		return grantErr
	}

	if re.Response == nil {
		return err
	}
	return fmt.Errorf("%w: %w", &resilx.StatusError{
		StatusCode: re.Response.StatusCode,
		RetryAfter: resilx.ParseRetryAfter(re.Response.Header.Get("Retry-After"), time.Now()),
		Message:    re.ErrorCode,
	}, err)
}
