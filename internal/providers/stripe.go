package providers

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/dancingpatinacao/checkout/internal/domain/checkout"
	domainErrors "github.com/dancingpatinacao/checkout/internal/domain/errors"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/checkout/session"
)

const stripeName = string(checkout.ProviderStripe)

type StripeConfig struct {
	SecretKey string
	// BaseURL overrides https://api.stripe.com.
	BaseURL  string
	Currency string
}

// Stripe creates hosted Checkout Sessions.
type Stripe struct {
	cfg     StripeConfig
	opts    Options
	backend stripe.Backend
	timeout time.Duration
}

func NewStripe(cfg StripeConfig, opts Options) (*Stripe, error) {
	transport, err := newCaptureTransport(newTransport(opts.Transport), "")
	if err != nil {
		return nil, err
	}
	timeout := timeoutOrDefault(opts.Timeout)

	bc := &stripe.BackendConfig{
		HTTPClient:        &http.Client{Transport: transport, Timeout: timeout},
		MaxNetworkRetries: stripe.Int64(0),
		LeveledLogger:     &stripe.LeveledLogger{Level: stripe.LevelNull},
	}
	if cfg.BaseURL != "" {
		bc.URL = stripe.String(strings.TrimRight(cfg.BaseURL, "/"))
	}
	if cfg.Currency == "" {
		cfg.Currency = strings.ToLower(checkout.DefaultCurrency)
	}

	return &Stripe{
		cfg:     cfg,
		opts:    opts,
		backend: stripe.GetBackendWithConfig(stripe.APIBackend, bc),
		timeout: timeout,
	}, nil
}

func (s *Stripe) Name() string { return stripeName }

func (s *Stripe) BuildPayload(req checkout.BookingRequest) (*Payload, error) {
	key := checkout.NewIdempotencyKey()
	ref := referenceOrKey(req.Reference, key)

	lines := req.Lines()
	items := make([]*stripe.CheckoutSessionLineItemParams, 0, len(lines))
	for _, l := range lines {
		cents, err := checkout.ToCents(l.UnitPrice)
		if err != nil {
			return nil, err
		}
		items = append(items, &stripe.CheckoutSessionLineItemParams{
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:   stripe.String(s.cfg.Currency),
				UnitAmount: stripe.Int64(cents),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name:        stripe.String(l.Title),
					Description: stripe.String(req.Description()),
				},
			},
			Quantity: stripe.Int64(int64(l.Quantity)),
		})
	}

	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL:        stripe.String(s.opts.returnURL("/pagamento/sucesso?session_id={CHECKOUT_SESSION_ID}")),
		CancelURL:         stripe.String(s.opts.returnURL("/pagamento/falha")),
		CustomerEmail:     stripe.String(req.Email),
		ClientReferenceID: stripe.String(ref),
		LineItems:         items,
	}
	params.AddMetadata("reference", ref)
	if req.TeacherID != "" {
		params.AddMetadata("teacher_id", req.TeacherID)
	}
	if req.ScheduledDate != "" {
		params.AddMetadata("scheduled_at", strings.TrimSpace(req.ScheduledDate+" "+req.ScheduledTime))
	}
	params.SetIdempotencyKey(key)

	return &Payload{Provider: stripeName, IdempotencyKey: key, Body: params}, nil
}

func (s *Stripe) client() (*session.Client, error) {
	if s.cfg.SecretKey == "" {
		return nil, domainErrors.ErrProviderNotConfigured
	}
	return &session.Client{B: s.backend, Key: s.cfg.SecretKey}, nil
}

func (s *Stripe) Invoke(ctx context.Context, p *Payload) (*RawResponse, error) {
	params, ok := p.Body.(*stripe.CheckoutSessionParams)
	if !ok {
		return nil, fmt.Errorf("%w: %T", domainErrors.ErrUnsupportedPayload, p.Body)
	}
	sc, err := s.client()
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	rec := &callRecord{}
	params.Context = withCall(ctx, rec)
	_, sdkErr := sc.New(params)
	raw, err := rec.outcome(stripeName, sdkErr)
	if err != nil {
		return nil, err
	}
	raw.IdempotencyKey = p.IdempotencyKey
	return raw, nil
}

type stripeSession struct {
	ID                string `json:"id"`
	URL               string `json:"url"`
	Status            string `json:"status"`
	PaymentStatus     string `json:"payment_status"`
	ClientReferenceID string `json:"client_reference_id"`
}

func (s *Stripe) NormalizeResponse(raw *RawResponse) (*checkout.PaymentResult, error) {
	return normalizeStripe(raw)
}

func normalizeStripe(raw *RawResponse) (*checkout.PaymentResult, error) {
	var sess stripeSession
	if err := decodeBody(stripeName, raw, &sess); err != nil {
		return nil, err
	}
	if sess.URL == "" || sess.ID == "" {
		return nil, urlNotFound(stripeName, raw)
	}
	return &checkout.PaymentResult{
		Success:         true,
		Provider:        checkout.ProviderStripe,
		RedirectURL:     sess.URL,
		ProviderOrderID: sess.ID,
		Status:          sess.Status,
		IdempotencyKey:  raw.IdempotencyKey,
		Raw:             append([]byte(nil), raw.Body...),
	}, nil
}

// Status retrieves a Checkout Session.
func (s *Stripe) Status(ctx context.Context, id string) (*checkout.PaymentStatus, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, domainErrors.NewValidationError("sessionId", "is required")
	}
	sc, err := s.client()
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	rec := &callRecord{}
	params := &stripe.CheckoutSessionParams{}
	params.Context = withCall(ctx, rec)
	_, sdkErr := sc.Get(id, params)
	raw, err := rec.outcome(stripeName, sdkErr)
	if err != nil {
		return nil, err
	}

	var sess stripeSession
	if err := decodeBody(stripeName, raw, &sess); err != nil {
		return nil, err
	}
	return &checkout.PaymentStatus{
		Provider:     checkout.ProviderStripe,
		ID:           sess.ID,
		Status:       sess.PaymentStatus,
		StatusDetail: sess.Status,
		Reference:    sess.ClientReferenceID,
	}, nil
}
