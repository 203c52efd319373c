package providers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dancingpatinacao/checkout/internal/domain/checkout"
	domainErrors "github.com/dancingpatinacao/checkout/internal/domain/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPagBank(t *testing.T, handler http.HandlerFunc) (*PagBank, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	p := NewPagBank(PagBankConfig{Token: "pb-token", BaseURL: srv.URL}, Options{
		PublicURL:   "https://api.example.com",
		FrontendURL: "https://dancing.example.com",
		Timeout:     2 * time.Second,
		Transport:   http.DefaultTransport,
	})
	return p, srv
}

func TestPagBank_BuildPayload_AmountInCents(t *testing.T) {
	p := NewPagBank(PagBankConfig{}, Options{})

	payload, err := p.BuildPayload(checkout.BookingRequest{StudentName: "Ana", Email: "ana@x.com", Amount: 50})
	require.NoError(t, err)

	body, ok := payload.Body.(*PagBankCheckoutRequest)
	require.True(t, ok)
	require.Len(t, body.Items, 1)
	assert.Equal(t, int64(5000), body.Items[0].UnitAmount)
	assert.Equal(t, 1, body.Items[0].Quantity)
	assert.Equal(t, checkout.DefaultItemTitle, body.Items[0].Name)
	assert.Equal(t, checkout.DefaultTaxID, body.Customer.TaxID)
	assert.Equal(t, "Ana", body.Customer.Name)
}

func TestPagBank_BuildPayload_RoundsHalfAwayFromZero(t *testing.T) {
	p := NewPagBank(PagBankConfig{}, Options{})

	payload, err := p.BuildPayload(checkout.BookingRequest{Email: "ana@x.com", Amount: 10.005})
	require.NoError(t, err)

	assert.Equal(t, int64(1001), payload.Body.(*PagBankCheckoutRequest).Items[0].UnitAmount)
}

func TestPagBank_BuildPayload_RefusesOverflowingAmounts(t *testing.T) {
	p := NewPagBank(PagBankConfig{}, Options{})

	_, err := p.BuildPayload(checkout.BookingRequest{Email: "ana@x.com", Amount: 1e17})
	assert.ErrorIs(t, err, domainErrors.ErrAmountOutOfRange)

	_, err = p.BuildPayload(checkout.BookingRequest{Email: "ana@x.com", Items: []checkout.LineItem{
		{Quantity: 1 << 62, UnitPrice: 50},
	}})
	assert.ErrorIs(t, err, domainErrors.ErrAmountOutOfRange)
}

func TestPagBank_BuildPayload_FreshIdempotencyKey(t *testing.T) {
	p := NewPagBank(PagBankConfig{}, Options{})
	req := checkout.BookingRequest{Email: "ana@x.com", Amount: 50}

	a, err := p.BuildPayload(req)
	require.NoError(t, err)
	b, err := p.BuildPayload(req)
	require.NoError(t, err)

	assert.NotEqual(t, a.IdempotencyKey, b.IdempotencyKey)
}

func TestPagBank_BuildPayload_URLsAndPhone(t *testing.T) {
	p := NewPagBank(PagBankConfig{}, Options{PublicURL: "https://api.example.com/", FrontendURL: "https://dancing.example.com"})

	payload, err := p.BuildPayload(checkout.BookingRequest{Email: "ana@x.com", Amount: 50, Phone: "+55 (11) 98765-4321"})
	require.NoError(t, err)

	body := payload.Body.(*PagBankCheckoutRequest)
	assert.Equal(t, []string{"https://api.example.com/api/pagbank/webhook"}, body.NotificationURLs)
	assert.Equal(t, "https://dancing.example.com/pagamento/sucesso", body.RedirectURL)
	require.Len(t, body.Customer.Phones, 1)
	assert.Equal(t, PagBankPhone{Country: "55", Area: "11", Number: "987654321", Type: "MOBILE"}, body.Customer.Phones[0])
}

func TestPagBankPix_BuildPayload_QRCodeTotal(t *testing.T) {
	p := NewPagBankPix(PagBankConfig{PixExpiration: time.Hour}, Options{})
	p.now = func() time.Time { return time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC) }

	payload, err := p.BuildPayload(checkout.BookingRequest{
		Email:  "ana@x.com",
		Amount: 80,
		Items:  []checkout.LineItem{{Title: "Aula", Quantity: 2, UnitPrice: 40}},
	})
	require.NoError(t, err)

	assert.Equal(t, "pagbank_pix", payload.Provider)
	body, ok := payload.Body.(*PagBankOrderRequest)
	require.True(t, ok)
	require.Len(t, body.QRCodes, 1)
	assert.Equal(t, int64(8000), body.QRCodes[0].Amount.Value)
	assert.Equal(t, "2026-01-10T13:00:00Z", body.QRCodes[0].ExpirationDate)
}

func TestPagBank_Invoke_SendsHeadersAndBody(t *testing.T) {
	var got PagBankCheckoutRequest
	p, _ := newTestPagBank(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/checkouts", r.URL.Path)
		assert.Equal(t, "Bearer pb-token", r.Header.Get("Authorization"))
		assert.NotEmpty(t, r.Header.Get(IdempotencyHeader))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.WriteHeader(http.StatusCreated)
		_, _ = io.WriteString(w, `{"id":"o1","links":[{"rel":"PAY","href":"https://pay/x"}]}`)
	})

	payload, err := p.BuildPayload(checkout.BookingRequest{StudentName: "Ana", Email: "ana@x.com", Amount: 50})
	require.NoError(t, err)

	raw, err := p.Invoke(context.Background(), payload)
	require.NoError(t, err)
	assert.Equal(t, payload.IdempotencyKey, raw.IdempotencyKey)
	assert.Equal(t, int64(5000), got.Items[0].UnitAmount)

	result, err := p.NormalizeResponse(raw)
	require.NoError(t, err)
	assert.Equal(t, "o1", result.ProviderOrderID)
	assert.Equal(t, "https://pay/x", result.RedirectURL)
}

func TestPagBank_Invoke_RejectionKeepsBody(t *testing.T) {
	p, _ := newTestPagBank(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = io.WriteString(w, `{"error_messages":[{"code":"40002","description":"invalid_parameter"}]}`)
	})

	payload, _ := p.BuildPayload(checkout.BookingRequest{Email: "ana@x.com", Amount: 50})
	_, err := p.Invoke(context.Background(), payload)

	var ue *domainErrors.UpstreamError
	require.ErrorAs(t, err, &ue)
	assert.ErrorIs(t, err, domainErrors.ErrProviderRejected)
	assert.Equal(t, http.StatusUnprocessableEntity, ue.StatusCode)
	assert.Contains(t, ue.Body, "invalid_parameter")
	assert.False(t, ue.Retryable())
}

func TestPagBank_Invoke_Timeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(srv.Close)
	t.Cleanup(func() { close(release) })

	p := NewPagBank(PagBankConfig{Token: "t", BaseURL: srv.URL}, Options{Timeout: 50 * time.Millisecond, Transport: http.DefaultTransport})
	payload, _ := p.BuildPayload(checkout.BookingRequest{Email: "ana@x.com", Amount: 50})

	_, err := p.Invoke(context.Background(), payload)

	assert.ErrorIs(t, err, domainErrors.ErrProviderTimeout)
	assert.True(t, domainErrors.IsRetryable(err))
}

func TestPagBank_Invoke_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	p := NewPagBank(PagBankConfig{Token: "t", BaseURL: url}, Options{Transport: http.DefaultTransport})
	payload, _ := p.BuildPayload(checkout.BookingRequest{Email: "ana@x.com", Amount: 50})

	_, err := p.Invoke(context.Background(), payload)

	assert.ErrorIs(t, err, domainErrors.ErrProviderUnreachable)
}

func TestPagBank_Invoke_MissingToken(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { calls.Add(1) }))
	t.Cleanup(srv.Close)

	p := NewPagBank(PagBankConfig{BaseURL: srv.URL}, Options{})
	payload, _ := p.BuildPayload(checkout.BookingRequest{Email: "ana@x.com", Amount: 50})

	_, err := p.Invoke(context.Background(), payload)

	assert.ErrorIs(t, err, domainErrors.ErrProviderNotConfigured)
	assert.Zero(t, calls.Load())
}

func TestPagBank_NormalizeResponse(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		redirect string
		qr       string
		wantErr  error
	}{
		{
			name:     "payment link",
			body:     `{"links":[{"rel":"payment","href":"https://pay/x"}],"id":"o1"}`,
			redirect: "https://pay/x",
		},
		{
			name:     "pix order falls back to qr code image",
			body:     `{"id":"ORDE_1","qr_codes":[{"text":"000201...","links":[{"rel":"QRCODE.PNG","href":"https://qr/png"}]}]}`,
			redirect: "https://qr/png",
			qr:       "000201...",
		},
		{
			name:    "no redirect",
			body:    `{"id":"o1","links":[{"rel":"self","href":"https://api/o1"}]}`,
			wantErr: domainErrors.ErrPaymentURLNotFound,
		},
		{
			name:    "no id",
			body:    `{"links":[{"rel":"payment","href":"https://pay/x"}]}`,
			wantErr: domainErrors.ErrPaymentURLNotFound,
		},
		{
			name:    "malformed body",
			body:    `<html>bad gateway</html>`,
			wantErr: domainErrors.ErrUpstreamUnparseable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := normalizePagBank(&RawResponse{StatusCode: 201, Body: []byte(tt.body)})
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.ErrorIs(t, err, domainErrors.ErrResponseShapeMismatch)
				assert.Nil(t, result)
				return
			}
			require.NoError(t, err)
			assert.True(t, result.Success)
			assert.Equal(t, checkout.ProviderPagBank, result.Provider)
			assert.Equal(t, tt.redirect, result.RedirectURL)
			assert.Equal(t, tt.qr, result.QRCode)
		})
	}
}

func TestPagBank_Status(t *testing.T) {
	p, _ := newTestPagBank(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/orders/ORDE_1":
			_, _ = io.WriteString(w, `{"id":"ORDE_1","reference_id":"ref-1","charges":[{"status":"WAITING"},{"status":"PAID"}]}`)
		case "/checkouts/CHEC_1":
			_, _ = io.WriteString(w, `{"id":"CHEC_1","status":"ACTIVE"}`)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})

	st, err := p.Status(context.Background(), "ORDE_1")
	require.NoError(t, err)
	assert.Equal(t, "PAID", st.Status)
	assert.Equal(t, "ref-1", st.Reference)

	st, err = p.Status(context.Background(), "CHEC_1")
	require.NoError(t, err)
	assert.Equal(t, "ACTIVE", st.Status)

	_, err = p.Status(context.Background(), "ORDE_missing")
	assert.ErrorIs(t, err, domainErrors.ErrProviderNotFoundOrder)

	_, err = p.Status(context.Background(), " ")
	assert.ErrorIs(t, err, domainErrors.ErrValidationFailed)
}
