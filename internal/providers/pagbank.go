package providers

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dancingpatinacao/checkout/internal/domain/checkout"
	domainErrors "github.com/dancingpatinacao/checkout/internal/domain/errors"
)

const (
	pagBankName    = string(checkout.ProviderPagBank)
	PagBankPixName = "pagbank_pix"

	defaultPixExpiration = 30 * time.Minute
)

// PagBank request bodies. Amounts are integer centavos.
type (
	PagBankCustomer struct {
		Name   string         `json:"name"`
		Email  string         `json:"email"`
		TaxID  string         `json:"tax_id"`
		Phones []PagBankPhone `json:"phones,omitempty"`
	}

	PagBankPhone struct {
		Country string `json:"country"`
		Area    string `json:"area"`
		Number  string `json:"number"`
		Type    string `json:"type"`
	}

	PagBankItem struct {
		ReferenceID string `json:"reference_id,omitempty"`
		Name        string `json:"name"`
		Quantity    int    `json:"quantity"`
		UnitAmount  int64  `json:"unit_amount"`
	}

	PagBankPaymentMethod struct {
		Type string `json:"type"`
	}

	PagBankCheckoutRequest struct {
		ReferenceID             string                 `json:"reference_id"`
		Customer                PagBankCustomer        `json:"customer"`
		Items                   []PagBankItem          `json:"items"`
		PaymentMethods          []PagBankPaymentMethod `json:"payment_methods,omitempty"`
		RedirectURL             string                 `json:"redirect_url,omitempty"`
		NotificationURLs        []string               `json:"notification_urls,omitempty"`
		PaymentNotificationURLs []string               `json:"payment_notification_urls,omitempty"`
	}

	PagBankAmount struct {
		Value int64 `json:"value"`
	}

	PagBankQRCode struct {
		Amount         PagBankAmount `json:"amount"`
		ExpirationDate string        `json:"expiration_date,omitempty"`
	}

	PagBankOrderRequest struct {
		ReferenceID      string          `json:"reference_id"`
		Customer         PagBankCustomer `json:"customer"`
		Items            []PagBankItem   `json:"items"`
		QRCodes          []PagBankQRCode `json:"qr_codes"`
		NotificationURLs []string        `json:"notification_urls,omitempty"`
	}
)

type pagBankLink struct {
	Rel   string `json:"rel"`
	Href  string `json:"href"`
	Media string `json:"media"`
}

type pagBankResponse struct {
	ID          string        `json:"id"`
	ReferenceID string        `json:"reference_id"`
	Status      string        `json:"status"`
	Links       []pagBankLink `json:"links"`
	QRCodes     []struct {
		ID    string        `json:"id"`
		Text  string        `json:"text"`
		Links []pagBankLink `json:"links"`
	} `json:"qr_codes"`
	Charges []struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	} `json:"charges"`
}

type PagBankConfig struct {
	Token         string
	BaseURL       string
	PixExpiration time.Duration
}

// PagBank talks to the PagBank (PagSeguro) REST API. In PIX mode it creates
// orders with a QR code instead of hosted checkouts.
type PagBank struct {
	cfg     PagBankConfig
	opts    Options
	pix     bool
	invoker *httpInvoker
	now     func() time.Time
}

// NewPagBank returns the hosted checkout variant.
func NewPagBank(cfg PagBankConfig, opts Options) *PagBank {
	return &PagBank{
		cfg:     cfg,
		opts:    opts,
		invoker: newHTTPInvoker(pagBankName, cfg.BaseURL, opts),
		now:     time.Now,
	}
}

// NewPagBankPix returns the PIX order variant.
func NewPagBankPix(cfg PagBankConfig, opts Options) *PagBank {
	p := NewPagBank(cfg, opts)
	p.pix = true
	return p
}

func (p *PagBank) Name() string {
	if p.pix {
		return PagBankPixName
	}
	return pagBankName
}

func (p *PagBank) customer(req checkout.BookingRequest) PagBankCustomer {
	c := PagBankCustomer{
		Name:  req.NameOrDefault(),
		Email: req.Email,
		TaxID: req.TaxIDOrDefault(),
	}
	phone := digits(req.Phone)
	if len(phone) > 11 {
		phone = strings.TrimPrefix(phone, "55")
	}
	if len(phone) == 10 || len(phone) == 11 {
		c.Phones = []PagBankPhone{{Country: "55", Area: phone[:2], Number: phone[2:], Type: "MOBILE"}}
	}
	return c
}

func pagBankItems(req checkout.BookingRequest) ([]PagBankItem, int64, error) {
	lines := req.Lines()
	items := make([]PagBankItem, 0, len(lines))
	for i, l := range lines {
		ref := l.ID
		if ref == "" {
			ref = fmt.Sprintf("item-%d", i+1)
		}
		cents, err := checkout.ToCents(l.UnitPrice)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, PagBankItem{
			ReferenceID: ref,
			Name:        l.Title,
			Quantity:    l.Quantity,
			UnitAmount:  cents,
		})
	}
	total, err := checkout.TotalCents(lines)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

func (p *PagBank) BuildPayload(req checkout.BookingRequest) (*Payload, error) {
	key := checkout.NewIdempotencyKey()
	ref := referenceOrKey(req.Reference, key)
	items, total, err := pagBankItems(req)
	if err != nil {
		return nil, err
	}

	var notify []string
	if u := p.opts.notificationURL("/api/pagbank/webhook"); u != "" {
		notify = []string{u}
	}

	if p.pix {
		exp := p.cfg.PixExpiration
		if exp <= 0 {
			exp = defaultPixExpiration
		}
		return &Payload{
			Provider:       p.Name(),
			IdempotencyKey: key,
			Body: &PagBankOrderRequest{
				ReferenceID: ref,
				Customer:    p.customer(req),
				Items:       items,
				QRCodes: []PagBankQRCode{{
					Amount:         PagBankAmount{Value: total},
					ExpirationDate: p.now().Add(exp).Format(time.RFC3339),
				}},
				NotificationURLs: notify,
			},
		}, nil
	}

	return &Payload{
		Provider:       p.Name(),
		IdempotencyKey: key,
		Body: &PagBankCheckoutRequest{
			ReferenceID: ref,
			Customer:    p.customer(req),
			Items:       items,
			PaymentMethods: []PagBankPaymentMethod{
				{Type: "CREDIT_CARD"},
				{Type: "DEBIT_CARD"},
				{Type: "PIX"},
				{Type: "BOLETO"},
			},
			RedirectURL:             p.opts.returnURL("/pagamento/sucesso"),
			NotificationURLs:        notify,
			PaymentNotificationURLs: notify,
		},
	}, nil
}

func (p *PagBank) token() (string, error) {
	if p.cfg.Token == "" {
		return "", domainErrors.ErrProviderNotConfigured
	}
	return p.cfg.Token, nil
}

func (p *PagBank) Invoke(ctx context.Context, payload *Payload) (*RawResponse, error) {
	token, err := p.token()
	if err != nil {
		return nil, err
	}

	switch body := payload.Body.(type) {
	case *PagBankCheckoutRequest:
		return p.invoker.do(ctx, http.MethodPost, "/checkouts", token, payload.IdempotencyKey, body)
	case *PagBankOrderRequest:
		return p.invoker.do(ctx, http.MethodPost, "/orders", token, payload.IdempotencyKey, body)
	default:
		return nil, fmt.Errorf("%w: %T", domainErrors.ErrUnsupportedPayload, payload.Body)
	}
}

func (p *PagBank) NormalizeResponse(raw *RawResponse) (*checkout.PaymentResult, error) {
	return normalizePagBank(raw)
}

func normalizePagBank(raw *RawResponse) (*checkout.PaymentResult, error) {
	var resp pagBankResponse
	if err := decodeBody(pagBankName, raw, &resp); err != nil {
		return nil, err
	}

	redirect := findLink(resp.Links, "payment", "pay")
	var qrText string
	if len(resp.QRCodes) > 0 {
		qrText = resp.QRCodes[0].Text
		if redirect == "" {
			redirect = findLink(resp.QRCodes[0].Links, "qrcode.png")
		}
	}
	if resp.ID == "" || (redirect == "" && qrText == "") {
		return nil, urlNotFound(pagBankName, raw)
	}

	return &checkout.PaymentResult{
		Success:         true,
		Provider:        checkout.ProviderPagBank,
		RedirectURL:     redirect,
		ProviderOrderID: resp.ID,
		QRCode:          qrText,
		Status:          resp.Status,
		IdempotencyKey:  raw.IdempotencyKey,
		Raw:             append([]byte(nil), raw.Body...),
	}, nil
}

func findLink(links []pagBankLink, rels ...string) string {
	for _, l := range links {
		for _, rel := range rels {
			if strings.EqualFold(l.Rel, rel) && l.Href != "" {
				return l.Href
			}
		}
	}
	return ""
}

// Status reports the state of an order (ORDE_) or hosted checkout (CHEC_).
// For orders the most recent charge status wins.
func (p *PagBank) Status(ctx context.Context, id string) (*checkout.PaymentStatus, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, domainErrors.NewValidationError("orderId", "is required")
	}
	token, err := p.token()
	if err != nil {
		return nil, err
	}

	path := "/orders/" + url.PathEscape(id)
	if strings.HasPrefix(id, "CHEC_") {
		path = "/checkouts/" + url.PathEscape(id)
	}
	raw, err := p.invoker.do(ctx, http.MethodGet, path, token, "", nil)
	if err != nil {
		return nil, err
	}

	var resp pagBankResponse
	if err := decodeBody(pagBankName, raw, &resp); err != nil {
		return nil, err
	}

	status := resp.Status
	if n := len(resp.Charges); n > 0 && resp.Charges[n-1].Status != "" {
		status = resp.Charges[n-1].Status
	}
	if status == "" && len(resp.QRCodes) > 0 {
		status = "WAITING"
	}
	if status == "" {
		return nil, domainErrors.NewUpstreamError(pagBankName, domainErrors.ErrResponseShapeMismatch, raw.StatusCode, string(raw.Body), nil)
	}

	return &checkout.PaymentStatus{
		Provider:  checkout.ProviderPagBank,
		ID:        resp.ID,
		Status:    status,
		Reference: resp.ReferenceID,
	}, nil
}
