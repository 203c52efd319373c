package service

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dancingpatinacao/checkout/internal/domain/checkout"
	domainErrors "github.com/dancingpatinacao/checkout/internal/domain/errors"
	"github.com/dancingpatinacao/checkout/internal/infrastructure/observability"
	"github.com/dancingpatinacao/checkout/internal/providers"
	"github.com/dancingpatinacao/checkout/internal/testutil"
	promtestutil "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- Test Helpers ---

func newCheckoutService(t *testing.T, ps ...providers.Provider) (*CheckoutService, *observability.Metrics) {
	t.Helper()
	metrics := observability.NewNopMetrics()
	factory := providers.NewFactory(providers.BreakerSettings{ConsecutiveFailures: 2, OpenTimeout: time.Minute}, metrics, ps...)
	return NewCheckoutService(factory, metrics, testutil.NopLogger()), metrics
}

// --- CreateCheckout ---

func TestCreateCheckout_Success(t *testing.T) {
	mock := providers.NewMockProvider("mock")
	svc, metrics := newCheckoutService(t, mock)

	result, err := svc.CreateCheckout(context.Background(), "mock", testutil.NewTestBooking(50))

	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.NotEmpty(t, result.RedirectURL)
	assert.NotEmpty(t, result.ProviderOrderID)
	assert.Equal(t, mock.LastPayload().IdempotencyKey, result.IdempotencyKey)
	assert.Equal(t, 1.0, promtestutil.ToFloat64(metrics.CheckoutsTotal.WithLabelValues("mock", "created")))
}

func TestCreateCheckout_ValidationFailureNeverInvokes(t *testing.T) {
	tests := []struct {
		name string
		req  checkout.BookingRequest
	}{
		{"missing email", checkout.BookingRequest{StudentName: "Ana", Amount: 50}},
		{"zero amount", checkout.BookingRequest{Email: "ana@x.com"}},
		{"negative amount", checkout.BookingRequest{Email: "ana@x.com", Amount: -1}},
		{"malformed email", checkout.BookingRequest{Email: "ana", Amount: 50}},
		{"item without price", checkout.BookingRequest{Email: "ana@x.com", Items: []checkout.LineItem{{Title: "Aula", Quantity: 1}}}},
		{"amount beyond maximum", checkout.BookingRequest{Email: "ana@x.com", Amount: 1e17}},
		{"amount below one cent", checkout.BookingRequest{Email: "ana@x.com", Amount: 0.004}},
		{"overflowing quantity", checkout.BookingRequest{Email: "ana@x.com", Items: []checkout.LineItem{{Quantity: 1 << 62, UnitPrice: 50}}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := providers.NewMockProvider("mock")
			svc, _ := newCheckoutService(t, mock)

			_, err := svc.CreateCheckout(context.Background(), "mock", tt.req)

			assert.ErrorIs(t, err, domainErrors.ErrValidationFailed)
			assert.Zero(t, mock.Invocations())
		})
	}
}

func TestCreateCheckout_AmountFromItems(t *testing.T) {
	mock := providers.NewMockProvider("mock")
	svc, _ := newCheckoutService(t, mock)

	req := checkout.BookingRequest{
		Email: "ana@x.com",
		Items: []checkout.LineItem{{Title: "Aula", Quantity: 2, UnitPrice: 40}, {Title: "Patins", Quantity: 1, UnitPrice: 15.5}},
	}
	_, err := svc.CreateCheckout(context.Background(), "mock", req)
	require.NoError(t, err)

	body, ok := mock.LastPayload().Body.(*providers.MockBody)
	require.True(t, ok)
	assert.Equal(t, int64(9550), body.Amount)
}

func TestCreateCheckout_SlowProviderTimesOut(t *testing.T) {
	mock := providers.NewMockProvider("mock", providers.WithLatency(time.Second))
	svc, _ := newCheckoutService(t, mock)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := svc.CreateCheckout(ctx, "mock", testutil.NewTestBooking(50))

	assert.ErrorIs(t, err, domainErrors.ErrProviderTimeout)
	assert.True(t, domainErrors.IsRetryable(err))
	assert.Equal(t, 1, mock.Invocations())
}

func TestCreateCheckout_UnknownProvider(t *testing.T) {
	svc, _ := newCheckoutService(t)

	_, err := svc.CreateCheckout(context.Background(), "paypal", testutil.NewTestBooking(50))

	assert.ErrorIs(t, err, domainErrors.ErrProviderNotFound)
}

func TestCreateCheckout_OpenBreakerIsUnavailable(t *testing.T) {
	unreachable := domainErrors.NewUpstreamError("mock", domainErrors.ErrProviderUnreachable, 0, "", errors.New("connection refused"))
	mock := providers.NewMockProvider("mock", providers.WithError(unreachable))
	svc, metrics := newCheckoutService(t, mock)

	for range 2 {
		_, err := svc.CreateCheckout(context.Background(), "mock", testutil.NewTestBooking(50))
		assert.ErrorIs(t, err, domainErrors.ErrProviderUnreachable)
	}
	_, err := svc.CreateCheckout(context.Background(), "mock", testutil.NewTestBooking(50))

	assert.ErrorIs(t, err, domainErrors.ErrProviderUnavailable)
	assert.Equal(t, 2, mock.Invocations())
	assert.Equal(t, 1.0, promtestutil.ToFloat64(metrics.ProviderErrors.WithLabelValues("mock", "circuit_open")))
}

func TestCreateCheckout_PagBankEndToEnd(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
		_, _ = io.WriteString(w, `{"id":"o1","links":[{"rel":"payment","href":"https://pay/x"}]}`)
	}))
	defer srv.Close()

	pb := providers.NewPagBank(providers.PagBankConfig{Token: "t", BaseURL: srv.URL}, providers.Options{Transport: http.DefaultTransport})
	svc, _ := newCheckoutService(t, pb)

	result, err := svc.CreateCheckout(context.Background(), "pagbank", checkout.BookingRequest{StudentName: "Ana", Email: "ana@x.com", Amount: 50})

	require.NoError(t, err)
	assert.Equal(t, "o1", result.ProviderOrderID)
	assert.Equal(t, "https://pay/x", result.RedirectURL)
}

func TestCreateCheckout_MalformedUpstreamBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `<html>oops</html>`)
	}))
	defer srv.Close()

	pb := providers.NewPagBank(providers.PagBankConfig{Token: "t", BaseURL: srv.URL}, providers.Options{Transport: http.DefaultTransport})
	svc, metrics := newCheckoutService(t, pb)

	_, err := svc.CreateCheckout(context.Background(), "pagbank", testutil.NewTestBooking(50))

	assert.ErrorIs(t, err, domainErrors.ErrResponseShapeMismatch)
	assert.Equal(t, 1.0, promtestutil.ToFloat64(metrics.ProviderErrors.WithLabelValues("pagbank", "response_shape")))
}

// --- Status ---

func TestStatus_ProviderWithoutLookup(t *testing.T) {
	svc, _ := newCheckoutService(t, providers.NewMockProvider("mock"))

	_, err := svc.Status(context.Background(), "mock", "id-1")

	assert.ErrorIs(t, err, domainErrors.ErrProviderNotConfigured)
}

func TestStatus_PagBank(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"id":"ORDE_1","charges":[{"status":"PAID"}]}`)
	}))
	defer srv.Close()

	pb := providers.NewPagBank(providers.PagBankConfig{Token: "t", BaseURL: srv.URL}, providers.Options{Transport: http.DefaultTransport})
	svc, _ := newCheckoutService(t, pb)

	st, err := svc.Status(context.Background(), "pagbank", "ORDE_1")

	require.NoError(t, err)
	assert.Equal(t, "PAID", st.Status)
}

func TestErrorKind(t *testing.T) {
	assert.Equal(t, "timeout", errorKind(domainErrors.NewUpstreamError("p", domainErrors.ErrProviderTimeout, 0, "", nil)))
	assert.Equal(t, "rejected", errorKind(domainErrors.NewUpstreamError("p", domainErrors.ErrProviderRejected, 422, "", nil)))
	assert.Equal(t, "validation", errorKind(domainErrors.NewValidationError("email", "is required")))
	assert.Equal(t, "internal", errorKind(errors.New("boom")))
}
