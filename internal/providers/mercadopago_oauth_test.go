package providers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	domainErrors "github.com/dancingpatinacao/checkout/internal/domain/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMercadoPagoOAuth_AuthorizationURL(t *testing.T) {
	o := NewMercadoPagoOAuth(MercadoPagoOAuthConfig{ClientID: "123", ClientSecret: "s"}, Options{})

	raw := o.AuthorizationURL("state-jwt", "https://api.example.com/api/mercadopago/oauth/callback")

	u, err := url.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "auth.mercadopago.com", u.Host)
	assert.Equal(t, "123", u.Query().Get("client_id"))
	assert.Equal(t, "code", u.Query().Get("response_type"))
	assert.Equal(t, "state-jwt", u.Query().Get("state"))
	assert.Equal(t, "https://api.example.com/api/mercadopago/oauth/callback", u.Query().Get("redirect_uri"))
}

func TestMercadoPagoOAuth_Exchange(t *testing.T) {
	var grant tokenGrant
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/oauth/token", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&grant))
		_, _ = io.WriteString(w, `{"access_token":"APP_USR-new","refresh_token":"TG-r","user_id":987,"expires_in":15552000,"token_type":"bearer","public_key":"APP_USR-pk"}`)
	}))
	defer srv.Close()

	o := NewMercadoPagoOAuth(MercadoPagoOAuthConfig{ClientID: "123", ClientSecret: "s", BaseURL: srv.URL}, Options{Transport: http.DefaultTransport})
	fixed := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	o.now = func() time.Time { return fixed }

	tok, err := o.Exchange(context.Background(), "TG-code", "https://cb")
	require.NoError(t, err)

	assert.Equal(t, "authorization_code", grant.GrantType)
	assert.Equal(t, "TG-code", grant.Code)
	assert.Equal(t, "s", grant.ClientSecret)
	assert.Equal(t, "APP_USR-new", tok.AccessToken)
	assert.Equal(t, int64(987), tok.UserID)
	assert.Equal(t, fixed, tok.CreatedAt)
	assert.Equal(t, int64(15552000), tok.ExpiresIn)
}

func TestMercadoPagoOAuth_Refresh_InvalidGrant(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"error":"invalid_grant","message":"invalid refresh_token"}`)
	}))
	defer srv.Close()

	o := NewMercadoPagoOAuth(MercadoPagoOAuthConfig{ClientID: "123", ClientSecret: "s", BaseURL: srv.URL}, Options{Transport: http.DefaultTransport})

	_, err := o.Refresh(context.Background(), "TG-old")

	assert.ErrorIs(t, err, domainErrors.ErrReauthorizationRequired)
}

func TestMercadoPagoOAuth_NotConfigured(t *testing.T) {
	o := NewMercadoPagoOAuth(MercadoPagoOAuthConfig{}, Options{})

	_, err := o.Refresh(context.Background(), "TG-old")

	assert.ErrorIs(t, err, domainErrors.ErrProviderNotConfigured)
}
