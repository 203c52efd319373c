package providers

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dancingpatinacao/checkout/internal/domain/checkout"
	domainErrors "github.com/dancingpatinacao/checkout/internal/domain/errors"
	mpconfig "github.com/mercadopago/sdk-go/pkg/config"
	"github.com/mercadopago/sdk-go/pkg/payment"
	"github.com/mercadopago/sdk-go/pkg/preference"
)

const mercadoPagoName = string(checkout.ProviderMercadoPago)

// TokenSource yields the bearer token for a provider call.
type TokenSource interface {
	AccessToken(ctx context.Context) (string, error)
}

// StaticToken is a TokenSource for a fixed credential.
type StaticToken string

func (s StaticToken) AccessToken(context.Context) (string, error) {
	if s == "" {
		return "", domainErrors.ErrProviderNotConfigured
	}
	return string(s), nil
}

type MercadoPagoConfig struct {
	// BaseURL overrides the SDK's API host.
	BaseURL string
	Sandbox bool
}

// MercadoPago creates Checkout Pro preferences through the official SDK.
type MercadoPago struct {
	cfg     MercadoPagoConfig
	opts    Options
	tokens  TokenSource
	client  *http.Client
	timeout time.Duration
}

func NewMercadoPago(cfg MercadoPagoConfig, tokens TokenSource, opts Options) (*MercadoPago, error) {
	base := cfg.BaseURL
	if base == "https://api.mercadopago.com" {
		base = ""
	}
	transport, err := newCaptureTransport(newTransport(opts.Transport), base)
	if err != nil {
		return nil, err
	}
	timeout := timeoutOrDefault(opts.Timeout)
	return &MercadoPago{
		cfg:     cfg,
		opts:    opts,
		tokens:  tokens,
		client:  &http.Client{Transport: transport, Timeout: timeout},
		timeout: timeout,
	}, nil
}

func (m *MercadoPago) Name() string { return mercadoPagoName }

func (m *MercadoPago) BuildPayload(req checkout.BookingRequest) (*Payload, error) {
	key := checkout.NewIdempotencyKey()
	lines := req.Lines()

	items := make([]preference.ItemRequest, 0, len(lines))
	for _, l := range lines {
		cents, err := checkout.ToCents(l.UnitPrice)
		if err != nil {
			return nil, err
		}
		items = append(items, preference.ItemRequest{
			ID:          l.ID,
			Title:       l.Title,
			Description: req.Description(),
			Quantity:    l.Quantity,
			UnitPrice:   checkout.FromCents(cents),
			CurrencyID:  checkout.DefaultCurrency,
		})
	}

	body := &preference.Request{
		Items: items,
		Payer: &preference.PayerRequest{
			Name:  req.NameOrDefault(),
			Email: req.Email,
			Identification: &preference.IdentificationRequest{
				Type:   "CPF",
				Number: req.TaxIDOrDefault(),
			},
		},
		ExternalReference:   referenceOrKey(req.Reference, key),
		NotificationURL:     m.opts.notificationURL("/api/mercadopago/webhook"),
		StatementDescriptor: "DANCINGPATINACAO",
	}
	if phone := digits(req.Phone); len(phone) >= 10 {
		body.Payer.Phone = &preference.PhoneRequest{AreaCode: phone[:2], Number: phone[2:]}
	}
	if m.opts.FrontendURL != "" {
		body.BackURLs = &preference.BackURLsRequest{
			Success: m.opts.returnURL("/pagamento/sucesso"),
			Pending: m.opts.returnURL("/pagamento/pendente"),
			Failure: m.opts.returnURL("/pagamento/falha"),
		}
		body.AutoReturn = "approved"
	}

	return &Payload{Provider: mercadoPagoName, IdempotencyKey: key, Body: body}, nil
}

func (m *MercadoPago) sdkConfig(ctx context.Context) (*mpconfig.Config, error) {
	token, err := m.tokens.AccessToken(ctx)
	if err != nil {
		return nil, err
	}
	cfg, err := mpconfig.New(token, mpconfig.WithHTTPClient(m.client))
	if err != nil {
		return nil, fmt.Errorf("mercadopago sdk config: %w", err)
	}
	return cfg, nil
}

func (m *MercadoPago) Invoke(ctx context.Context, p *Payload) (*RawResponse, error) {
	body, ok := p.Body.(*preference.Request)
	if !ok {
		return nil, fmt.Errorf("%w: %T", domainErrors.ErrUnsupportedPayload, p.Body)
	}
	cfg, err := m.sdkConfig(ctx)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	rec := &callRecord{idempotencyKey: p.IdempotencyKey}
	_, sdkErr := preference.NewClient(cfg).Create(withCall(ctx, rec), *body)
	return rec.outcome(mercadoPagoName, sdkErr)
}

type mercadoPagoPreference struct {
	ID               string `json:"id"`
	InitPoint        string `json:"init_point"`
	SandboxInitPoint string `json:"sandbox_init_point"`
}

func (m *MercadoPago) NormalizeResponse(raw *RawResponse) (*checkout.PaymentResult, error) {
	return normalizeMercadoPago(raw, m.cfg.Sandbox)
}

func normalizeMercadoPago(raw *RawResponse, sandbox bool) (*checkout.PaymentResult, error) {
	var pref mercadoPagoPreference
	if err := decodeBody(mercadoPagoName, raw, &pref); err != nil {
		return nil, err
	}

	redirect := pref.InitPoint
	if sandbox && pref.SandboxInitPoint != "" {
		redirect = pref.SandboxInitPoint
	}
	if redirect == "" || pref.ID == "" {
		return nil, urlNotFound(mercadoPagoName, raw)
	}

	return &checkout.PaymentResult{
		Success:         true,
		Provider:        checkout.ProviderMercadoPago,
		RedirectURL:     redirect,
		ProviderOrderID: pref.ID,
		IdempotencyKey:  raw.IdempotencyKey,
		Raw:             append([]byte(nil), raw.Body...),
	}, nil
}

type mercadoPagoPayment struct {
	ID                int64  `json:"id"`
	Status            string `json:"status"`
	StatusDetail      string `json:"status_detail"`
	ExternalReference string `json:"external_reference"`
}

// Status looks up a payment by its numeric id.
func (m *MercadoPago) Status(ctx context.Context, id string) (*checkout.PaymentStatus, error) {
	paymentID, err := strconv.Atoi(strings.TrimSpace(id))
	if err != nil || paymentID <= 0 {
		return nil, domainErrors.NewValidationError("paymentId", "must be a numeric payment id")
	}
	cfg, err := m.sdkConfig(ctx)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	rec := &callRecord{}
	_, sdkErr := payment.NewClient(cfg).Get(withCall(ctx, rec), paymentID)
	raw, err := rec.outcome(mercadoPagoName, sdkErr)
	if err != nil {
		return nil, err
	}

	var p mercadoPagoPayment
	if err := decodeBody(mercadoPagoName, raw, &p); err != nil {
		return nil, err
	}
	if p.Status == "" {
		return nil, domainErrors.NewUpstreamError(mercadoPagoName, domainErrors.ErrResponseShapeMismatch, raw.StatusCode, string(raw.Body), nil)
	}
	return &checkout.PaymentStatus{
		Provider:     checkout.ProviderMercadoPago,
		ID:           strconv.FormatInt(p.ID, 10),
		Status:       p.Status,
		StatusDetail: p.StatusDetail,
		Reference:    p.ExternalReference,
	}, nil
}

func referenceOrKey(reference, key string) string {
	if reference != "" {
		return reference
	}
	return key
}

func digits(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
