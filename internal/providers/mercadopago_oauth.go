package providers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	domainErrors "github.com/dancingpatinacao/checkout/internal/domain/errors"
	"github.com/dancingpatinacao/checkout/internal/domain/oauth"
)

const (
	defaultMercadoPagoAPI  = "https://api.mercadopago.com"
	defaultMercadoPagoAuth = "https://auth.mercadopago.com/authorization"
)

type MercadoPagoOAuthConfig struct {
	ClientID     string
	ClientSecret string
	// BaseURL is the API host serving /oauth/token.
	BaseURL string
	// AuthURL is the page the seller is sent to for consent.
	AuthURL string
}

// MercadoPagoOAuth performs the authorization code and refresh grants.
type MercadoPagoOAuth struct {
	cfg     MercadoPagoOAuthConfig
	invoker *httpInvoker
	now     func() time.Time
}

func NewMercadoPagoOAuth(cfg MercadoPagoOAuthConfig, opts Options) *MercadoPagoOAuth {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultMercadoPagoAPI
	}
	if cfg.AuthURL == "" {
		cfg.AuthURL = defaultMercadoPagoAuth
	}
	return &MercadoPagoOAuth{
		cfg:     cfg,
		invoker: newHTTPInvoker(mercadoPagoName, cfg.BaseURL, opts),
		now:     time.Now,
	}
}

// Configured reports whether client credentials are present.
func (o *MercadoPagoOAuth) Configured() bool {
	return o.cfg.ClientID != "" && o.cfg.ClientSecret != ""
}

func (o *MercadoPagoOAuth) AuthorizationURL(state, redirectURI string) string {
	q := url.Values{}
	q.Set("client_id", o.cfg.ClientID)
	q.Set("response_type", "code")
	q.Set("platform_id", "mp")
	q.Set("state", state)
	q.Set("redirect_uri", redirectURI)

	sep := "?"
	if strings.Contains(o.cfg.AuthURL, "?") {
		sep = "&"
	}
	return o.cfg.AuthURL + sep + q.Encode()
}

type tokenGrant struct {
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
	GrantType    string `json:"grant_type"`
	Code         string `json:"code,omitempty"`
	RedirectURI  string `json:"redirect_uri,omitempty"`
	RefreshToken string `json:"refresh_token,omitempty"`
}

type tokenResponse struct {
	AccessToken  string      `json:"access_token"`
	TokenType    string      `json:"token_type"`
	ExpiresIn    int64       `json:"expires_in"`
	Scope        string      `json:"scope"`
	UserID       json.Number `json:"user_id"`
	RefreshToken string      `json:"refresh_token"`
	PublicKey    string      `json:"public_key"`
}

// Exchange trades an authorization code for a token.
func (o *MercadoPagoOAuth) Exchange(ctx context.Context, code, redirectURI string) (*oauth.Token, error) {
	return o.grant(ctx, tokenGrant{
		GrantType:   "authorization_code",
		Code:        code,
		RedirectURI: redirectURI,
	})
}

// Refresh uses a refresh token to obtain a new access token. A refresh token
// the provider no longer accepts yields ErrReauthorizationRequired.
func (o *MercadoPagoOAuth) Refresh(ctx context.Context, refreshToken string) (*oauth.Token, error) {
	tok, err := o.grant(ctx, tokenGrant{
		GrantType:    "refresh_token",
		RefreshToken: refreshToken,
	})
	var ue *domainErrors.UpstreamError
	if errors.As(err, &ue) && errors.Is(err, domainErrors.ErrProviderRejected) && ue.StatusCode >= 400 && ue.StatusCode < 500 {
		return nil, domainErrors.NewUpstreamError(mercadoPagoName, domainErrors.ErrReauthorizationRequired, ue.StatusCode, ue.Body, nil)
	}
	return tok, err
}

func (o *MercadoPagoOAuth) grant(ctx context.Context, g tokenGrant) (*oauth.Token, error) {
	if !o.Configured() {
		return nil, domainErrors.ErrProviderNotConfigured
	}
	g.ClientID = o.cfg.ClientID
	g.ClientSecret = o.cfg.ClientSecret

	raw, err := o.invoker.do(ctx, http.MethodPost, "/oauth/token", "", "", g)
	if err != nil {
		return nil, err
	}

	var resp tokenResponse
	if err := decodeBody(mercadoPagoName, raw, &resp); err != nil {
		return nil, err
	}
	if resp.AccessToken == "" {
		return nil, domainErrors.NewUpstreamError(mercadoPagoName, domainErrors.ErrResponseShapeMismatch, raw.StatusCode, "", errors.New("access_token missing"))
	}

	userID, _ := strconv.ParseInt(resp.UserID.String(), 10, 64)
	return &oauth.Token{
		AccessToken:  resp.AccessToken,
		RefreshToken: resp.RefreshToken,
		UserID:       userID,
		ExpiresIn:    resp.ExpiresIn,
		CreatedAt:    o.now().UTC(),
		TokenType:    resp.TokenType,
		Scope:        resp.Scope,
		PublicKey:    resp.PublicKey,
	}, nil
}
