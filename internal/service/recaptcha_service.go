package service

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	domainErrors "github.com/dancingpatinacao/checkout/internal/domain/errors"
	"github.com/dancingpatinacao/checkout/internal/infrastructure/observability"
	"github.com/dancingpatinacao/checkout/internal/providers"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const defaultRecaptchaVerifyURL = "https://www.google.com/recaptcha/api/siteverify"

// RecaptchaResult is Google's siteverify answer.
type RecaptchaResult struct {
	Success     bool     `json:"success"`
	ChallengeTS string   `json:"challenge_ts,omitempty"`
	Hostname    string   `json:"hostname,omitempty"`
	Score       *float64 `json:"score,omitempty"`
	Action      string   `json:"action,omitempty"`
	ErrorCodes  []string `json:"error-codes,omitempty"`
}

type RecaptchaService struct {
	secret    string
	verifyURL string
	client    *http.Client
	logger    zerolog.Logger
}

func NewRecaptchaService(secret, verifyURL string, timeout time.Duration, transport http.RoundTripper, logger zerolog.Logger) *RecaptchaService {
	if verifyURL == "" {
		verifyURL = defaultRecaptchaVerifyURL
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if transport == nil {
		transport = otelhttp.NewTransport(http.DefaultTransport)
	}
	return &RecaptchaService{
		secret:    secret,
		verifyURL: verifyURL,
		client:    &http.Client{Transport: transport, Timeout: timeout},
		logger:    observability.ForComponent(logger, "recaptcha"),
	}
}

// Verify checks a client token. A token Google does not accept returns the
// result together with ErrRecaptchaVerifyFailed.
func (s *RecaptchaService) Verify(ctx context.Context, token, remoteIP string) (*RecaptchaResult, error) {
	if strings.TrimSpace(token) == "" {
		return nil, domainErrors.NewValidationError("recaptchaToken", "is required")
	}
	if s.secret == "" {
		return nil, domainErrors.ErrRecaptchaNotConfigured
	}

	form := url.Values{}
	form.Set("secret", s.secret)
	form.Set("response", token)
	if remoteIP != "" {
		form.Set("remoteip", remoteIP)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.verifyURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("build recaptcha request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, providers.TransportError("recaptcha", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return nil, domainErrors.NewUpstreamError("recaptcha", domainErrors.ErrProviderUnreachable, resp.StatusCode, "", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, domainErrors.NewUpstreamError("recaptcha", domainErrors.ErrProviderRejected, resp.StatusCode, string(body), nil)
	}

	var result RecaptchaResult
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, domainErrors.Unparseable("recaptcha", resp.StatusCode, string(body), err)
	}
	if !result.Success {
		s.logger.Info().Strs("error_codes", result.ErrorCodes).Msg("recaptcha token rejected")
		return &result, domainErrors.ErrRecaptchaVerifyFailed
	}
	return &result, nil
}
