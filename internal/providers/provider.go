package providers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/dancingpatinacao/checkout/internal/domain/checkout"
)

// Payload is a provider request built from a booking. Body holds the
// provider-specific shape; secrets never go into it.
type Payload struct {
	Provider       string
	IdempotencyKey string
	Body           any
}

// RawResponse is what the provider answered to a successful call.
type RawResponse struct {
	StatusCode     int
	Header         http.Header
	Body           []byte
	IdempotencyKey string
}

// Provider is one way of taking payment for a booking.
type Provider interface {
	// Name is the registration key, e.g. "pagbank" or "pagbank_pix".
	Name() string
	// BuildPayload maps the booking to the provider request. It is pure apart
	// from generating a fresh idempotency key.
	BuildPayload(req checkout.BookingRequest) (*Payload, error)
	// Invoke sends the payload. Non-2xx answers, timeouts and connection
	// failures come back as *errors.UpstreamError.
	Invoke(ctx context.Context, p *Payload) (*RawResponse, error)
	// NormalizeResponse extracts the redirect and identifier from a 2xx body.
	NormalizeResponse(raw *RawResponse) (*checkout.PaymentResult, error)
}

// StatusChecker is implemented by providers that can report the state of a
// previously created payment.
type StatusChecker interface {
	Status(ctx context.Context, id string) (*checkout.PaymentStatus, error)
}

// Options are shared by every provider.
type Options struct {
	// PublicURL is where this API is reachable; webhook URLs derive from it.
	PublicURL string
	// FrontendURL receives the customer after checkout.
	FrontendURL string
	// Timeout bounds every provider call.
	Timeout time.Duration
	// Transport replaces the instrumented default transport.
	Transport http.RoundTripper
}

func (o Options) notificationURL(path string) string {
	if o.PublicURL == "" {
		return ""
	}
	return strings.TrimRight(o.PublicURL, "/") + path
}

func (o Options) returnURL(path string) string {
	if o.FrontendURL == "" {
		return ""
	}
	return strings.TrimRight(o.FrontendURL, "/") + path
}
