package providers

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/dancingpatinacao/checkout/internal/domain/checkout"
	domainErrors "github.com/dancingpatinacao/checkout/internal/domain/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v76"
)

func newTestStripe(t *testing.T, handler http.HandlerFunc) *Stripe {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	s, err := NewStripe(StripeConfig{SecretKey: "sk_test_123", BaseURL: srv.URL}, Options{
		FrontendURL: "https://dancing.example.com",
		Timeout:     2 * time.Second,
		Transport:   http.DefaultTransport,
	})
	require.NoError(t, err)
	return s
}

func TestStripe_BuildPayload(t *testing.T) {
	s, err := NewStripe(StripeConfig{}, Options{FrontendURL: "https://dancing.example.com"})
	require.NoError(t, err)

	payload, err := s.BuildPayload(checkout.BookingRequest{Email: "ana@x.com", Amount: 50, TeacherID: "t-1"})
	require.NoError(t, err)

	params, ok := payload.Body.(*stripe.CheckoutSessionParams)
	require.True(t, ok)
	require.Len(t, params.LineItems, 1)
	assert.Equal(t, int64(5000), *params.LineItems[0].PriceData.UnitAmount)
	assert.Equal(t, "brl", *params.LineItems[0].PriceData.Currency)
	assert.Equal(t, "payment", *params.Mode)
	assert.Equal(t, "t-1", params.Metadata["teacher_id"])
	assert.Equal(t, payload.IdempotencyKey, *params.IdempotencyKey)
}

func TestStripe_Invoke_CreatesSession(t *testing.T) {
	var form url.Values
	s := newTestStripe(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/checkout/sessions", r.URL.Path)
		assert.Equal(t, "Bearer sk_test_123", r.Header.Get("Authorization"))
		assert.NotEmpty(t, r.Header.Get("Idempotency-Key"))
		require.NoError(t, r.ParseForm())
		form = r.PostForm

		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"id":"cs_test_1","object":"checkout.session","url":"https://checkout.stripe.com/c/pay/cs_test_1","status":"open"}`)
	})

	payload, err := s.BuildPayload(checkout.BookingRequest{Email: "ana@x.com", Amount: 50})
	require.NoError(t, err)

	raw, err := s.Invoke(context.Background(), payload)
	require.NoError(t, err)
	assert.Equal(t, "5000", form.Get("line_items[0][price_data][unit_amount]"))
	assert.Equal(t, payload.IdempotencyKey, raw.IdempotencyKey)

	result, err := s.NormalizeResponse(raw)
	require.NoError(t, err)
	assert.Equal(t, "cs_test_1", result.ProviderOrderID)
	assert.Equal(t, "https://checkout.stripe.com/c/pay/cs_test_1", result.RedirectURL)
}

func TestStripe_Invoke_Rejected(t *testing.T) {
	s := newTestStripe(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"error":{"type":"invalid_request_error","message":"Missing required param: success_url."}}`)
	})

	payload, _ := s.BuildPayload(checkout.BookingRequest{Email: "ana@x.com", Amount: 50})
	_, err := s.Invoke(context.Background(), payload)

	var ue *domainErrors.UpstreamError
	require.ErrorAs(t, err, &ue)
	assert.Equal(t, http.StatusBadRequest, ue.StatusCode)
	assert.Contains(t, ue.Body, "success_url")
}

func TestStripe_Invoke_MissingKey(t *testing.T) {
	s, err := NewStripe(StripeConfig{}, Options{})
	require.NoError(t, err)

	payload, _ := s.BuildPayload(checkout.BookingRequest{Email: "ana@x.com", Amount: 50})
	_, err = s.Invoke(context.Background(), payload)

	assert.ErrorIs(t, err, domainErrors.ErrProviderNotConfigured)
}

func TestNormalizeStripe_MissingURL(t *testing.T) {
	_, err := normalizeStripe(&RawResponse{StatusCode: 200, Body: []byte(`{"id":"cs_1"}`)})

	assert.ErrorIs(t, err, domainErrors.ErrPaymentURLNotFound)
	assert.ErrorIs(t, err, domainErrors.ErrResponseShapeMismatch)
}

func TestStripe_Status(t *testing.T) {
	s := newTestStripe(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/checkout/sessions/cs_1", r.URL.Path)
		_, _ = io.WriteString(w, `{"id":"cs_1","object":"checkout.session","status":"complete","payment_status":"paid","client_reference_id":"ref-1"}`)
	})

	st, err := s.Status(context.Background(), "cs_1")
	require.NoError(t, err)
	assert.Equal(t, "paid", st.Status)
	assert.Equal(t, "complete", st.StatusDetail)
	assert.Equal(t, "ref-1", st.Reference)
}
