package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aussiebroadwan/encore/internal/encore/domain"
	"github.com/aussiebroadwan/encore/internal/encore/spotify"
	"github.com/aussiebroadwan/encore/internal/encore/store"
	"github.com/aussiebroadwan/encore/internal/encore/store/drivers/sqlite"
	"github.com/aussiebroadwan/encore/pkg/cryptox"
	"github.com/aussiebroadwan/encore/pkg/jwtx"
	"github.com/aussiebroadwan/encore/pkg/pkce"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

const (
	testIssuer    = "encore-test"
	testSpotifyID = "wizzler"
	goodCode      = "good-code"
)

type fakeProvider struct {
	clock clockwork.Clock

	// loginRefreshToken is handed out by Exchange.
	loginRefreshToken string

	mu           sync.Mutex
	refreshErr   error
	refreshGate  chan struct{}
	refreshSeen  []string
	refreshCalls atomic.Int32
}

func (p *fakeProvider) AuthCodeURL(state, codeChallenge string) string {
	return "https://accounts.example/authorize?" + url.Values{
		"state":          {state},
		"code_challenge": {codeChallenge},
	}.Encode()
}

func (p *fakeProvider) Exchange(_ context.Context, code, verifier string) (*oauth2.Token, error) {
	if code != goodCode || verifier == "" {
		return nil, spotify.ErrInvalidGrant
	}
	return &oauth2.Token{
		AccessToken:  "at-login",
		RefreshToken: p.loginRefreshToken,
		Expiry:       p.clock.Now().Add(time.Hour),
	}, nil
}

func (p *fakeProvider) Refresh(_ context.Context, refreshToken string) (*oauth2.Token, error) {
	n := p.refreshCalls.Add(1)

	p.mu.Lock()
	p.refreshSeen = append(p.refreshSeen, refreshToken)
	gate, err := p.refreshGate, p.refreshErr
	p.mu.Unlock()

	if gate != nil {
		<-gate
	}
	if err != nil {
		return nil, err
	}
	return &oauth2.Token{
		AccessToken:  fmt.Sprintf("at-%d", n),
		RefreshToken: fmt.Sprintf("rt-%d", n),
		Expiry:       p.clock.Now().Add(time.Hour),
	}, nil
}

type fakeProfiles struct{}

func (fakeProfiles) Me(_ context.Context, accessToken string) (spotify.User, error) {
	if accessToken == "" {
		return spotify.User{}, spotify.ErrUnauthorized
	}
	return spotify.User{
		ID:          testSpotifyID,
		DisplayName: "Wizzler",
		Country:     "AU",
		Product:     "premium",
		Images:      []spotify.Image{{URL: "https://i.example/w.png"}},
	}, nil
}

type fixture struct {
	svc      *SessionService
	store    *sqlite.Store
	box      *cryptox.SecretBox
	provider *fakeProvider
	clock    *clockwork.FakeClock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	clock := clockwork.NewFakeClockAt(time.Now().Truncate(time.Second))

	st, err := sqlite.NewStore(sqlite.DSN(filepath.Join(t.TempDir(), "encore.db")))
	require.NoError(t, err)
	require.NoError(t, st.ApplyMigrations())
	t.Cleanup(func() { _ = st.Close() })

	box, err := cryptox.NewSecretBox([]byte("test-encryption-key"))
	require.NoError(t, err)

	signer, err := jwtx.NewHMAC([]byte("0123456789abcdef0123456789abcdef"), clock)
	require.NoError(t, err)

	provider := &fakeProvider{clock: clock, loginRefreshToken: "rt-login"}

	return &fixture{
		svc: &SessionService{
			Store:    st,
			Box:      box,
			Sessions: jwtx.NewSessionIssuer(signer, testIssuer, 0),
			States:   pkce.NewStateManager(signer, testIssuer),
			Provider: provider,
			Profiles: fakeProfiles{},
			Clock:    clock,
		},
		store:    st,
		box:      box,
		provider: provider,
		clock:    clock,
	}
}

func (f *fixture) login(t *testing.T) Session {
	t.Helper()
	redirect, err := f.svc.BeginLogin()
	require.NoError(t, err)

	session, err := f.svc.CompleteLogin(context.Background(), goodCode, redirect.State)
	require.NoError(t, err)
	return session
}

func (f *fixture) account(t *testing.T, id string) domain.Account {
	t.Helper()
	a, err := f.store.Accounts().GetAccountByID(context.Background(), id)
	require.NoError(t, err)
	return a
}

// expireAccessToken moves the clock inside the refresh window.
func (f *fixture) expireAccessToken() {
	f.clock.Advance(56 * time.Minute)
}

func TestBeginLogin(t *testing.T) {
	f := newFixture(t)

	redirect, err := f.svc.BeginLogin()
	require.NoError(t, err)
	require.NotEmpty(t, redirect.State)

	u, err := url.Parse(redirect.URL)
	require.NoError(t, err)
	require.Equal(t, redirect.State, u.Query().Get("state"))

	verifier, err := f.svc.States.ExtractVerifier(redirect.State)
	require.NoError(t, err)
	require.Equal(t, pkce.Challenge(verifier), u.Query().Get("code_challenge"))
}

func TestCompleteLogin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first := f.login(t)
	a := f.account(t, first.AccountID)
	require.Equal(t, testSpotifyID, a.SpotifyID)
	require.Equal(t, "https://i.example/w.png", a.ImageURL)
	require.Equal(t, int64(1), a.TokenVersion)
	require.NotEmpty(t, a.TokenFamily)
	require.NotNil(t, a.RefreshTokenExpiresAt)
	require.True(t, cryptox.IsSealed(a.RefreshTokenEncrypted))

	plain, err := f.box.Decrypt(a.RefreshTokenEncrypted)
	require.NoError(t, err)
	require.Equal(t, "rt-login", plain)

	claims, err := f.svc.Authenticate(first.Credential)
	require.NoError(t, err)
	require.Equal(t, a.ID, claims.AccountID())
	require.Equal(t, "at-login", claims.AccessToken)
	require.Equal(t, a.TokenFamily, claims.TokenFamily)
	require.Equal(t, a.TokenVersion, claims.TokenVersion)

	t.Run("second login reuses the account with a new family", func(t *testing.T) {
		second := f.login(t)
		require.Equal(t, first.AccountID, second.AccountID)

		b := f.account(t, second.AccountID)
		require.Equal(t, int64(2), b.TokenVersion)
		require.NotEqual(t, a.TokenFamily, b.TokenFamily)
	})

	t.Run("bad state", func(t *testing.T) {
		_, err := f.svc.CompleteLogin(ctx, goodCode, "not-a-state")
		require.ErrorIs(t, err, pkce.ErrInvalidState)
	})

	t.Run("expired state", func(t *testing.T) {
		redirect, err := f.svc.BeginLogin()
		require.NoError(t, err)
		f.clock.Advance(pkce.StateTTL + time.Second)

		_, err = f.svc.CompleteLogin(ctx, goodCode, redirect.State)
		require.ErrorIs(t, err, pkce.ErrExpiredState)
	})

	t.Run("rejected code", func(t *testing.T) {
		redirect, err := f.svc.BeginLogin()
		require.NoError(t, err)

		_, err = f.svc.CompleteLogin(ctx, "bad-code", redirect.State)
		require.ErrorIs(t, err, spotify.ErrInvalidGrant)
	})
}

func TestAuthenticate(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Authenticate("")
	require.ErrorIs(t, err, ErrInvalidCredential)

	_, err = f.svc.Authenticate("garbage")
	require.ErrorIs(t, err, ErrInvalidCredential)

	// A state token is not a session credential.
	redirect, err := f.svc.BeginLogin()
	require.NoError(t, err)
	_, err = f.svc.Authenticate(redirect.State)
	require.ErrorIs(t, err, ErrInvalidCredential)

	session := f.login(t)
	f.clock.Advance(jwtx.DefaultSessionTTL + time.Minute)
	_, err = f.svc.Authenticate(session.Credential)
	require.ErrorIs(t, err, ErrInvalidCredential)
	require.ErrorIs(t, err, jwtx.ErrExpired)
}

func TestRefreshStillValid(t *testing.T) {
	f := newFixture(t)
	session := f.login(t)

	res, err := f.svc.Refresh(context.Background(), session.Credential)
	require.NoError(t, err)
	require.True(t, res.StillValid)
	require.Empty(t, res.Session.Credential)
	require.True(t, res.AccessTokenExpiresAt.Equal(session.AccessTokenExpiresAt.Truncate(time.Second)))
	require.Zero(t, f.provider.refreshCalls.Load())
	require.Equal(t, int64(1), f.account(t, session.AccountID).TokenVersion)
}

func TestRefreshRotates(t *testing.T) {
	f := newFixture(t)
	session := f.login(t)
	before := f.account(t, session.AccountID)

	f.expireAccessToken()
	res, err := f.svc.Refresh(context.Background(), session.Credential)
	require.NoError(t, err)
	require.False(t, res.StillValid)
	require.NotEmpty(t, res.Session.Credential)
	require.Equal(t, []string{"rt-login"}, f.provider.refreshSeen)

	after := f.account(t, session.AccountID)
	require.Equal(t, before.TokenVersion+1, after.TokenVersion)
	require.NotEqual(t, before.TokenFamily, after.TokenFamily)

	plain, err := f.box.Decrypt(after.RefreshTokenEncrypted)
	require.NoError(t, err)
	require.Equal(t, "rt-1", plain)

	claims, err := f.svc.Authenticate(res.Session.Credential)
	require.NoError(t, err)
	require.Equal(t, "at-1", claims.AccessToken)
	require.Equal(t, after.TokenVersion, claims.TokenVersion)
	require.Equal(t, after.TokenFamily, claims.TokenFamily)
}

func TestRefreshVersionMonotonic(t *testing.T) {
	f := newFixture(t)
	credential := f.login(t).Credential

	claims, err := f.svc.Authenticate(credential)
	require.NoError(t, err)
	last := claims.TokenVersion

	for i := 0; i < 5; i++ {
		f.expireAccessToken()
		res, err := f.svc.Refresh(context.Background(), credential)
		require.NoError(t, err)

		a := f.account(t, claims.AccountID())
		require.Greater(t, a.TokenVersion, last)
		last = a.TokenVersion
		credential = res.Session.Credential
	}
	require.Equal(t, int64(6), last)
}

func TestRefreshFamilyMismatchRevokes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// Two devices hold the same v1/F1 credential.
	b := f.login(t).Credential

	f.expireAccessToken()
	a, err := f.svc.Refresh(ctx, b)
	require.NoError(t, err)

	// B still presents v1/F1 while the account is v2/F2.
	_, err = f.svc.Refresh(ctx, b)
	require.ErrorIs(t, err, ErrTokenFamilyMismatch)
	require.ErrorIs(t, err, ErrTokenReuse)

	acct := f.account(t, a.Session.AccountID)
	require.False(t, acct.HasRefreshToken())
	require.Empty(t, acct.TokenFamily)

	// The legitimate device is signed out as well.
	_, err = f.svc.Refresh(ctx, a.Session.Credential)
	require.ErrorIs(t, err, ErrTokenReuse)
	require.False(t, errors.Is(err, ErrTokenFamilyMismatch))
}

func TestRefreshStaleVersionIsReuse(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	stale := f.login(t).Credential
	claims, err := f.svc.Authenticate(stale)
	require.NoError(t, err)

	// Bump the version without changing the family.
	_, err = f.store.Accounts().RotateTokens(ctx, claims.AccountID(), claims.TokenVersion, domain.TokenGrant{
		RefreshTokenEncrypted: f.account(t, claims.AccountID()).RefreshTokenEncrypted,
		TokenFamily:           claims.TokenFamily,
	})
	require.NoError(t, err)

	_, err = f.svc.Refresh(ctx, stale)
	require.ErrorIs(t, err, ErrTokenReuse)
	require.False(t, errors.Is(err, ErrTokenFamilyMismatch))
	require.False(t, f.account(t, claims.AccountID()).HasRefreshToken())
	require.Zero(t, f.provider.refreshCalls.Load())
}

// racingAccounts runs beforeRotate once, just ahead of the next rotation,
// standing in for another process that rotates the same account first.
type racingAccounts struct {
	store.Accounts
	beforeRotate func()
}

func (a *racingAccounts) RotateTokens(ctx context.Context, id string, expectedVersion int64, g domain.TokenGrant) (int64, error) {
	if hook := a.beforeRotate; hook != nil {
		a.beforeRotate = nil
		hook()
	}
	return a.Accounts.RotateTokens(ctx, id, expectedVersion, g)
}

type racingStore struct {
	store.Store
	accounts *racingAccounts
}

func (s *racingStore) Accounts() store.Accounts { return s.accounts }

func TestRefreshLostRaceAcrossProcesses(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	session := f.login(t)
	f.expireAccessToken()

	// A second instance shares the database but not the singleflight group.
	other := &SessionService{
		Store:    f.store,
		Box:      f.box,
		Sessions: f.svc.Sessions,
		States:   f.svc.States,
		Provider: f.provider,
		Profiles: fakeProfiles{},
		Clock:    f.clock,
	}

	var (
		winner    RefreshResult
		winnerErr error
	)
	accounts := &racingAccounts{Accounts: f.store.Accounts()}
	accounts.beforeRotate = func() {
		winner, winnerErr = other.Refresh(ctx, session.Credential)
	}
	f.svc.Store = &racingStore{Store: f.store, accounts: accounts}

	_, err := f.svc.Refresh(ctx, session.Credential)
	require.NoError(t, winnerErr)
	require.ErrorIs(t, err, ErrTokenReuse)
	require.False(t, errors.Is(err, ErrTokenFamilyMismatch))
	require.Equal(t, int32(2), f.provider.refreshCalls.Load())

	// The loser must not revoke what the winner just stored.
	winnerClaims, err := f.svc.Authenticate(winner.Session.Credential)
	require.NoError(t, err)

	account := f.account(t, session.AccountID)
	require.True(t, account.HasRefreshToken())
	require.Equal(t, winnerClaims.TokenFamily, account.TokenFamily)
	require.Equal(t, int64(2), account.TokenVersion)
	require.Equal(t, winnerClaims.TokenVersion, account.TokenVersion)
	plain, err := f.box.Decrypt(account.RefreshTokenEncrypted)
	require.NoError(t, err)
	require.Equal(t, "rt-2", plain)

	// The winner's credential keeps working.
	f.expireAccessToken()
	res, err := f.svc.Refresh(ctx, winner.Session.Credential)
	require.NoError(t, err)
	require.False(t, res.StillValid)
	require.Equal(t, int64(3), f.account(t, session.AccountID).TokenVersion)
}

func TestRefreshConcurrentCallersShareRotation(t *testing.T) {
	f := newFixture(t)
	session := f.login(t)
	f.expireAccessToken()

	gate := make(chan struct{})
	f.provider.refreshGate = gate

	const callers = 8
	var (
		wg      sync.WaitGroup
		started sync.WaitGroup
		results = make([]RefreshResult, callers)
		errs    = make([]error, callers)
	)
	started.Add(callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			started.Done()
			results[i], errs[i] = f.svc.Refresh(context.Background(), session.Credential)
		}(i)
	}

	started.Wait()
	require.Eventually(t, func() bool { return f.provider.refreshCalls.Load() == 1 }, time.Second, time.Millisecond)
	time.Sleep(100 * time.Millisecond)
	close(gate)
	wg.Wait()

	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		require.Equal(t, results[0].Session.Credential, results[i].Session.Credential)
	}
	require.Equal(t, int32(1), f.provider.refreshCalls.Load())
	require.Equal(t, int64(2), f.account(t, session.AccountID).TokenVersion)
}

func TestRefreshProviderRevoked(t *testing.T) {
	f := newFixture(t)
	session := f.login(t)
	f.provider.refreshErr = fmt.Errorf("spotify token_refresh: %w", spotify.ErrRefreshRevoked)

	f.expireAccessToken()
	_, err := f.svc.Refresh(context.Background(), session.Credential)
	require.ErrorIs(t, err, ErrRefreshTokenRevoked)

	before, err := f.svc.Authenticate(session.Credential)
	require.NoError(t, err)

	a := f.account(t, session.AccountID)
	require.False(t, a.HasRefreshToken())
	require.Equal(t, before.TokenVersion, a.TokenVersion, "a revoked secret does not bump the version")
	require.Equal(t, before.TokenFamily, a.TokenFamily)

	// Nothing left to exchange, and no second provider call.
	_, err = f.svc.Refresh(context.Background(), session.Credential)
	require.ErrorIs(t, err, ErrNoRefreshToken)
	require.Equal(t, int32(1), f.provider.refreshCalls.Load())
}

func TestRefreshUpstreamFailureKeepsTokens(t *testing.T) {
	f := newFixture(t)
	session := f.login(t)
	f.provider.refreshErr = errors.New("connection reset")

	f.expireAccessToken()
	_, err := f.svc.Refresh(context.Background(), session.Credential)
	require.Error(t, err)

	a := f.account(t, session.AccountID)
	require.True(t, a.HasRefreshToken())
	require.Equal(t, int64(1), a.TokenVersion)
}

func TestRefreshWithoutRefreshToken(t *testing.T) {
	f := newFixture(t)
	f.provider.loginRefreshToken = ""
	session := f.login(t)

	f.expireAccessToken()
	_, err := f.svc.Refresh(context.Background(), session.Credential)
	require.ErrorIs(t, err, ErrNoRefreshToken)
	require.Zero(t, f.provider.refreshCalls.Load())
}

func TestLogout(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	session := f.login(t)

	f.svc.Logout(ctx, session.Credential)
	a := f.account(t, session.AccountID)
	require.False(t, a.HasRefreshToken())
	require.Empty(t, a.TokenFamily)
	require.Equal(t, int64(2), a.TokenVersion)

	// Idempotent from the caller's point of view; each verified logout bumps.
	f.svc.Logout(ctx, session.Credential)
	require.Equal(t, int64(3), f.account(t, session.AccountID).TokenVersion)

	f.svc.Logout(ctx, "")
	f.svc.Logout(ctx, "garbage")

	_, err := f.svc.Refresh(ctx, session.Credential)
	require.ErrorIs(t, err, ErrTokenReuse)
}
