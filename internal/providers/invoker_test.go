package providers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	domainErrors "github.com/dancingpatinacao/checkout/internal/domain/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCaptureTransport_RewritesHostAndSetsKey(t *testing.T) {
	var gotPath, gotKey string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.Header.Get(IdempotencyHeader)
		_, _ = io.WriteString(w, `{"ok":true}`)
	}))
	defer srv.Close()

	transport, err := newCaptureTransport(http.DefaultTransport, srv.URL+"/sandbox/")
	require.NoError(t, err)
	client := &http.Client{Transport: transport}

	rec := &callRecord{idempotencyKey: "1700000000000-abcd1234"}
	req, err := http.NewRequestWithContext(withCall(context.Background(), rec), http.MethodGet, "https://api.provider.test/v1/things", nil)
	require.NoError(t, err)

	resp, err := client.Do(req)
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()

	assert.Equal(t, "/sandbox/v1/things", gotPath)
	assert.Equal(t, "1700000000000-abcd1234", gotKey)
	assert.JSONEq(t, `{"ok":true}`, string(body), "body must still be readable by the caller")

	raw, err := rec.outcome("p", nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, raw.StatusCode)
	assert.JSONEq(t, `{"ok":true}`, string(raw.Body))
}

func TestNewCaptureTransport_InvalidBaseURL(t *testing.T) {
	_, err := newCaptureTransport(http.DefaultTransport, "not a url")

	assert.Error(t, err)
}

func TestCallRecord_Outcome(t *testing.T) {
	t.Run("not found wraps order not found", func(t *testing.T) {
		rec := &callRecord{done: true, status: http.StatusNotFound, body: []byte(`{}`)}

		_, err := rec.outcome("p", errors.New("sdk error"))

		assert.ErrorIs(t, err, domainErrors.ErrProviderRejected)
		assert.ErrorIs(t, err, domainErrors.ErrProviderNotFoundOrder)
	})

	t.Run("deadline is a timeout", func(t *testing.T) {
		rec := &callRecord{err: context.DeadlineExceeded}

		_, err := rec.outcome("p", nil)

		assert.ErrorIs(t, err, domainErrors.ErrProviderTimeout)
	})

	t.Run("cancellation passes through", func(t *testing.T) {
		rec := &callRecord{}

		_, err := rec.outcome("p", context.Canceled)

		assert.ErrorIs(t, err, context.Canceled)
		var ue *domainErrors.UpstreamError
		assert.False(t, errors.As(err, &ue))
	})

	t.Run("nothing recorded", func(t *testing.T) {
		_, err := (&callRecord{}).outcome("p", nil)

		assert.ErrorIs(t, err, domainErrors.ErrProviderUnreachable)
	})
}

func TestDecodeBody_NilResponse(t *testing.T) {
	var v map[string]any

	err := decodeBody("p", nil, &v)

	assert.ErrorIs(t, err, domainErrors.ErrUpstreamUnparseable)
}
