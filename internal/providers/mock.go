package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/dancingpatinacao/checkout/internal/domain/checkout"
	domainErrors "github.com/dancingpatinacao/checkout/internal/domain/errors"
	"github.com/google/uuid"
)

// MockProvider is an in-memory provider used for local runs and tests. It
// answers with a fake redirect after an optional latency and can be told to
// fail.
type MockProvider struct {
	name    string
	latency time.Duration
	err     error

	mu      sync.Mutex
	invokes int
	last    *Payload
}

type MockProviderOption func(*MockProvider)

func WithLatency(d time.Duration) MockProviderOption {
	return func(p *MockProvider) { p.latency = d }
}

// WithError makes every Invoke fail with err.
func WithError(err error) MockProviderOption {
	return func(p *MockProvider) { p.err = err }
}

func NewMockProvider(name string, opts ...MockProviderOption) *MockProvider {
	p := &MockProvider{name: name}
	for _, o := range opts {
		o(p)
	}
	return p
}

func (p *MockProvider) Name() string { return p.name }

// MockBody is the payload MockProvider builds. Amount is in cents.
type MockBody struct {
	Reference string `json:"reference"`
	Email     string `json:"email"`
	Amount    int64  `json:"amount"`
}

func (p *MockProvider) BuildPayload(req checkout.BookingRequest) (*Payload, error) {
	key := checkout.NewIdempotencyKey()
	total, err := checkout.TotalCents(req.Lines())
	if err != nil {
		return nil, err
	}
	return &Payload{
		Provider:       p.name,
		IdempotencyKey: key,
		Body:           &MockBody{Reference: referenceOrKey(req.Reference, key), Email: req.Email, Amount: total},
	}, nil
}

func (p *MockProvider) Invoke(ctx context.Context, payload *Payload) (*RawResponse, error) {
	p.mu.Lock()
	p.invokes++
	p.last = payload
	p.mu.Unlock()

	if p.latency > 0 {
		select {
		case <-time.After(p.latency):
		case <-ctx.Done():
			return nil, domainErrors.NewUpstreamError(p.name, domainErrors.ErrProviderTimeout, 0, "", ctx.Err())
		}
	}
	if p.err != nil {
		return nil, p.err
	}

	id := fmt.Sprintf("%s_%s", p.name, uuid.NewString()[:8])
	body, err := json.Marshal(map[string]string{
		"id":  id,
		"url": "https://checkout.example/" + id,
	})
	if err != nil {
		return nil, err
	}
	return &RawResponse{StatusCode: 201, Body: body, IdempotencyKey: payload.IdempotencyKey}, nil
}

func (p *MockProvider) NormalizeResponse(raw *RawResponse) (*checkout.PaymentResult, error) {
	var resp struct {
		ID  string `json:"id"`
		URL string `json:"url"`
	}
	if err := decodeBody(p.name, raw, &resp); err != nil {
		return nil, err
	}
	if resp.ID == "" || resp.URL == "" {
		return nil, urlNotFound(p.name, raw)
	}
	return &checkout.PaymentResult{
		Success:         true,
		Provider:        checkout.Provider(p.name),
		RedirectURL:     resp.URL,
		ProviderOrderID: resp.ID,
		IdempotencyKey:  raw.IdempotencyKey,
		Raw:             append([]byte(nil), raw.Body...),
	}, nil
}

// Invocations reports how many times Invoke ran.
func (p *MockProvider) Invocations() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.invokes
}

// LastPayload returns the payload of the most recent Invoke.
func (p *MockProvider) LastPayload() *Payload {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.last
}
