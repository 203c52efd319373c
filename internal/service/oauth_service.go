package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	domainErrors "github.com/dancingpatinacao/checkout/internal/domain/errors"
	"github.com/dancingpatinacao/checkout/internal/domain/oauth"
	"github.com/dancingpatinacao/checkout/internal/infrastructure/observability"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

const (
	stateIssuer   = "dancingpatinacao-checkout"
	stateAudience = "mercadopago-oauth"
)

// OAuthClient is the provider side of the OAuth flow.
type OAuthClient interface {
	AuthorizationURL(state, redirectURI string) string
	Exchange(ctx context.Context, code, redirectURI string) (*oauth.Token, error)
	Refresh(ctx context.Context, refreshToken string) (*oauth.Token, error)
}

type OAuthConfig struct {
	// StaticToken, when set, is used for every call and the stored grant is
	// ignored.
	StaticToken string
	RedirectURI string
	StateSecret []byte
	StateTTL    time.Duration
}

// OAuthService owns the Mercado Pago OAuth grant: consent redirect, code
// exchange and refresh. Concurrent refreshes collapse into one provider call.
type OAuthService struct {
	client  OAuthClient
	store   oauth.TokenStore
	cfg     OAuthConfig
	metrics *observability.Metrics
	logger  zerolog.Logger
	now     func() time.Time
	group   singleflight.Group
}

func NewOAuthService(client OAuthClient, store oauth.TokenStore, cfg OAuthConfig, metrics *observability.Metrics, logger zerolog.Logger) *OAuthService {
	if cfg.StateTTL <= 0 {
		cfg.StateTTL = 10 * time.Minute
	}
	if metrics == nil {
		metrics = observability.NewNopMetrics()
	}
	return &OAuthService{
		client:  client,
		store:   store,
		cfg:     cfg,
		metrics: metrics,
		logger:  observability.ForComponent(logger, "oauth"),
		now:     time.Now,
	}
}

type stateClaims struct {
	jwt.RegisteredClaims
}

// AuthorizationURL returns the consent page URL carrying a signed, expiring
// state.
func (s *OAuthService) AuthorizationURL() (string, error) {
	if len(s.cfg.StateSecret) == 0 {
		return "", fmt.Errorf("oauth state secret: %w", domainErrors.ErrProviderNotConfigured)
	}
	now := s.now()
	claims := stateClaims{jwt.RegisteredClaims{
		ID:        uuid.NewString(),
		Issuer:    stateIssuer,
		Audience:  jwt.ClaimStrings{stateAudience},
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.cfg.StateTTL)),
	}}
	state, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.cfg.StateSecret)
	if err != nil {
		return "", fmt.Errorf("sign oauth state: %w", err)
	}
	return s.client.AuthorizationURL(state, s.cfg.RedirectURI), nil
}

func (s *OAuthService) verifyState(state string) error {
	if state == "" {
		return domainErrors.ErrInvalidOAuthState
	}
	_, err := jwt.ParseWithClaims(state, &stateClaims{}, func(*jwt.Token) (any, error) {
		return s.cfg.StateSecret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(stateIssuer),
		jwt.WithAudience(stateAudience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return fmt.Errorf("%w: %w", domainErrors.ErrInvalidOAuthState, err)
	}
	return nil
}

// Callback checks state, exchanges code and stores the resulting grant.
func (s *OAuthService) Callback(ctx context.Context, code, state string) (*oauth.Token, error) {
	if strings.TrimSpace(code) == "" {
		return nil, domainErrors.NewValidationError("code", "is required")
	}
	if err := s.verifyState(state); err != nil {
		return nil, err
	}

	tok, err := s.client.Exchange(ctx, code, s.cfg.RedirectURI)
	if err != nil {
		s.metrics.TokenRefreshes.WithLabelValues("authorization", "failed").Inc()
		return nil, err
	}
	if err := s.store.Set(ctx, tok); err != nil {
		return nil, fmt.Errorf("store oauth token: %w", err)
	}

	s.metrics.TokenRefreshes.WithLabelValues("authorization", "success").Inc()
	logger := observability.WithFields(s.logger, map[string]any{
		"user_id":       tok.UserID,
		"refresh_token": tok.RefreshToken,
	})
	logger.Info().Time("expires_at", tok.ExpiresAt()).Msg("oauth token stored")
	return tok, nil
}

// Refresh exchanges the stored refresh token for a new grant. Without a stored
// token or refresh token it returns ErrReauthorizationRequired and makes no
// network call.
func (s *OAuthService) Refresh(ctx context.Context) (*oauth.Token, error) {
	return s.refresh(ctx, "manual")
}

func (s *OAuthService) refresh(ctx context.Context, trigger string) (*oauth.Token, error) {
	v, err, _ := s.group.Do("refresh", func() (any, error) {
		current, err := s.store.Get(ctx)
		if errors.Is(err, domainErrors.ErrTokenNotFound) {
			return nil, domainErrors.ErrReauthorizationRequired
		}
		if err != nil {
			return nil, fmt.Errorf("load oauth token: %w", err)
		}
		if !current.CanRefresh() {
			return nil, domainErrors.ErrReauthorizationRequired
		}

		tok, err := s.client.Refresh(ctx, current.RefreshToken)
		if err != nil {
			return nil, err
		}
		if tok.RefreshToken == "" {
			tok.RefreshToken = current.RefreshToken
		}
		if tok.UserID == 0 {
			tok.UserID = current.UserID
		}
		if err := s.store.Set(ctx, tok); err != nil {
			return nil, fmt.Errorf("store oauth token: %w", err)
		}
		return tok, nil
	})
	if err != nil {
		s.metrics.TokenRefreshes.WithLabelValues(trigger, "failed").Inc()
		s.logger.Warn().Err(err).Str("trigger", trigger).Msg("oauth refresh failed")
		return nil, err
	}

	tok := v.(*oauth.Token)
	s.metrics.TokenRefreshes.WithLabelValues(trigger, "success").Inc()
	s.logger.Info().Str("trigger", trigger).Time("expires_at", tok.ExpiresAt()).Msg("oauth token refreshed")
	return tok, nil
}

// RefreshIfExpiring refreshes the stored grant when it expires within window.
// It reports whether a refresh happened.
func (s *OAuthService) RefreshIfExpiring(ctx context.Context, window time.Duration) (bool, error) {
	current, err := s.store.Get(ctx)
	if errors.Is(err, domainErrors.ErrTokenNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if current.StateAt(s.now()) == oauth.StateValid && !current.ExpiresWithin(s.now(), window) {
		return false, nil
	}
	if _, err := s.refresh(ctx, "scheduled"); err != nil {
		return false, err
	}
	return true, nil
}

// AccessToken returns the credential for Mercado Pago calls: the static token
// when configured, otherwise the stored grant, refreshed first if expired.
func (s *OAuthService) AccessToken(ctx context.Context) (string, error) {
	if s.cfg.StaticToken != "" {
		return s.cfg.StaticToken, nil
	}
	current, err := s.store.Get(ctx)
	if errors.Is(err, domainErrors.ErrTokenNotFound) {
		return "", domainErrors.ErrReauthorizationRequired
	}
	if err != nil {
		return "", fmt.Errorf("load oauth token: %w", err)
	}
	if current.StateAt(s.now()) == oauth.StateValid {
		return current.AccessToken, nil
	}

	tok, err := s.refresh(ctx, "expired")
	if err != nil {
		return "", err
	}
	return tok.AccessToken, nil
}
