package service

import (
	"context"
	"errors"
	"net/url"
	"sync"
	"testing"
	"time"

	domainErrors "github.com/dancingpatinacao/checkout/internal/domain/errors"
	"github.com/dancingpatinacao/checkout/internal/domain/oauth"
	"github.com/dancingpatinacao/checkout/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newOAuthService(store oauth.TokenStore, client OAuthClient, static string) *OAuthService {
	svc := NewOAuthService(client, store, OAuthConfig{
		StaticToken: static,
		RedirectURI: "https://api.example.com/api/mercadopago/oauth/callback",
		StateSecret: []byte("0123456789abcdef0123456789abcdef"),
		StateTTL:    10 * time.Minute,
	}, nil, testutil.NopLogger())
	svc.now = func() time.Time { return testNow }
	return svc
}

func stateFrom(t *testing.T, authURL string) string {
	t.Helper()
	u, err := url.Parse(authURL)
	require.NoError(t, err)
	return u.Query().Get("state")
}

func TestRefresh_NoStoredToken_RequiresReauthorization(t *testing.T) {
	client := &testutil.MockOAuthClient{}
	svc := newOAuthService(testutil.NewMockTokenStore(nil), client, "")

	_, err := svc.Refresh(context.Background())

	assert.ErrorIs(t, err, domainErrors.ErrReauthorizationRequired)
	assert.Zero(t, client.Refreshes(), "no network call without a stored token")
}

func TestRefresh_NoRefreshToken_RequiresReauthorization(t *testing.T) {
	client := &testutil.MockOAuthClient{}
	tok := testutil.NewTestToken(testNow.Add(-time.Hour), 30*time.Minute)
	tok.RefreshToken = ""
	svc := newOAuthService(testutil.NewMockTokenStore(tok), client, "")

	_, err := svc.Refresh(context.Background())

	assert.ErrorIs(t, err, domainErrors.ErrReauthorizationRequired)
	assert.Zero(t, client.Refreshes())
}

func TestRefresh_StoresNewToken(t *testing.T) {
	store := testutil.NewMockTokenStore(testutil.NewTestToken(testNow.Add(-time.Hour), 30*time.Minute))
	client := &testutil.MockOAuthClient{
		RefreshFunc: func(_ context.Context, refreshToken string) (*oauth.Token, error) {
			assert.Equal(t, "TG-current", refreshToken)
			return &oauth.Token{AccessToken: "APP_USR-new", ExpiresIn: 3600, CreatedAt: testNow}, nil
		},
	}
	svc := newOAuthService(store, client, "")

	tok, err := svc.Refresh(context.Background())

	require.NoError(t, err)
	assert.Equal(t, "APP_USR-new", tok.AccessToken)
	assert.Equal(t, "TG-current", store.Token().RefreshToken, "old refresh token kept when none returned")
	assert.Equal(t, int64(987), store.Token().UserID)
}

func TestRefresh_ConcurrentCallsShareOneRequest(t *testing.T) {
	store := testutil.NewMockTokenStore(testutil.NewTestToken(testNow.Add(-time.Hour), 30*time.Minute))
	release := make(chan struct{})
	client := &testutil.MockOAuthClient{
		RefreshFunc: func(context.Context, string) (*oauth.Token, error) {
			<-release
			return &oauth.Token{AccessToken: "APP_USR-new", RefreshToken: "TG-next", ExpiresIn: 3600, CreatedAt: testNow}, nil
		},
	}
	svc := newOAuthService(store, client, "")

	var wg sync.WaitGroup
	for range 5 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Refresh(context.Background())
			assert.NoError(t, err)
		}()
	}
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, 1, client.Refreshes())
}

func TestAccessToken_StaticTokenWins(t *testing.T) {
	client := &testutil.MockOAuthClient{}
	svc := newOAuthService(testutil.NewMockTokenStore(nil), client, "APP_USR-static")

	tok, err := svc.AccessToken(context.Background())

	require.NoError(t, err)
	assert.Equal(t, "APP_USR-static", tok)
}

func TestAccessToken_ValidStoredToken(t *testing.T) {
	client := &testutil.MockOAuthClient{}
	svc := newOAuthService(testutil.NewMockTokenStore(testutil.NewTestToken(testNow, time.Hour)), client, "")

	tok, err := svc.AccessToken(context.Background())

	require.NoError(t, err)
	assert.Equal(t, "APP_USR-current", tok)
	assert.Zero(t, client.Refreshes())
}

func TestAccessToken_ExpiredTokenIsRefreshed(t *testing.T) {
	client := &testutil.MockOAuthClient{}
	svc := newOAuthService(testutil.NewMockTokenStore(testutil.NewTestToken(testNow.Add(-2*time.Hour), time.Hour)), client, "")

	tok, err := svc.AccessToken(context.Background())

	require.NoError(t, err)
	assert.Equal(t, "APP_USR-refreshed", tok)
	assert.Equal(t, 1, client.Refreshes())
}

func TestAccessToken_NothingStored(t *testing.T) {
	svc := newOAuthService(testutil.NewMockTokenStore(nil), &testutil.MockOAuthClient{}, "")

	_, err := svc.AccessToken(context.Background())

	assert.ErrorIs(t, err, domainErrors.ErrReauthorizationRequired)
}

func TestRefreshIfExpiring(t *testing.T) {
	client := &testutil.MockOAuthClient{}
	store := testutil.NewMockTokenStore(testutil.NewTestToken(testNow, 48*time.Hour))
	svc := newOAuthService(store, client, "")

	refreshed, err := svc.RefreshIfExpiring(context.Background(), 24*time.Hour)
	require.NoError(t, err)
	assert.False(t, refreshed)

	refreshed, err = svc.RefreshIfExpiring(context.Background(), 72*time.Hour)
	require.NoError(t, err)
	assert.True(t, refreshed)
	assert.Equal(t, 1, client.Refreshes())
}

func TestRefreshIfExpiring_NothingStored(t *testing.T) {
	svc := newOAuthService(testutil.NewMockTokenStore(nil), &testutil.MockOAuthClient{}, "")

	refreshed, err := svc.RefreshIfExpiring(context.Background(), time.Hour)

	require.NoError(t, err)
	assert.False(t, refreshed)
}

func TestAuthorizationAndCallback(t *testing.T) {
	store := testutil.NewMockTokenStore(nil)
	client := &testutil.MockOAuthClient{}
	svc := newOAuthService(store, client, "")

	authURL, err := svc.AuthorizationURL()
	require.NoError(t, err)
	state := stateFrom(t, authURL)
	require.NotEmpty(t, state)

	tok, err := svc.Callback(context.Background(), "TG-code", state)

	require.NoError(t, err)
	assert.Equal(t, "APP_USR-exchanged", tok.AccessToken)
	assert.Equal(t, 1, store.Sets)
}

func TestCallback_RejectsBadState(t *testing.T) {
	client := &testutil.MockOAuthClient{}
	svc := newOAuthService(testutil.NewMockTokenStore(nil), client, "")

	_, err := svc.Callback(context.Background(), "TG-code", "not-a-jwt")
	assert.ErrorIs(t, err, domainErrors.ErrInvalidOAuthState)

	_, err = svc.Callback(context.Background(), "TG-code", "")
	assert.ErrorIs(t, err, domainErrors.ErrInvalidOAuthState)
	assert.Zero(t, client.Exchanges())
}

func TestCallback_ExpiredState(t *testing.T) {
	client := &testutil.MockOAuthClient{}
	svc := newOAuthService(testutil.NewMockTokenStore(nil), client, "")

	authURL, err := svc.AuthorizationURL()
	require.NoError(t, err)
	svc.now = func() time.Time { return testNow.Add(11 * time.Minute) }

	_, err = svc.Callback(context.Background(), "TG-code", stateFrom(t, authURL))

	assert.ErrorIs(t, err, domainErrors.ErrInvalidOAuthState)
	assert.Zero(t, client.Exchanges())
}

func TestCallback_StateSignedWithOtherSecret(t *testing.T) {
	other := newOAuthService(testutil.NewMockTokenStore(nil), &testutil.MockOAuthClient{}, "")
	other.cfg.StateSecret = []byte("another-secret-another-secret-xx")
	authURL, err := other.AuthorizationURL()
	require.NoError(t, err)

	svc := newOAuthService(testutil.NewMockTokenStore(nil), &testutil.MockOAuthClient{}, "")
	_, err = svc.Callback(context.Background(), "TG-code", stateFrom(t, authURL))

	assert.ErrorIs(t, err, domainErrors.ErrInvalidOAuthState)
}

func TestCallback_StoreFailure(t *testing.T) {
	store := testutil.NewMockTokenStore(nil)
	store.SetFunc = func(context.Context, *oauth.Token) error { return errors.New("disk full") }
	svc := newOAuthService(store, &testutil.MockOAuthClient{}, "")
	authURL, _ := svc.AuthorizationURL()

	_, err := svc.Callback(context.Background(), "TG-code", stateFrom(t, authURL))

	assert.ErrorContains(t, err, "disk full")
}
