package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	domainErrors "github.com/dancingpatinacao/checkout/internal/domain/errors"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const (
	defaultTimeout  = 15 * time.Second
	maxResponseBody = 1 << 20

	// IdempotencyHeader is sent to Mercado Pago and PagBank.
	IdempotencyHeader = "X-Idempotency-Key"
)

// newTransport returns the instrumented transport, or override when set.
func newTransport(override http.RoundTripper) http.RoundTripper {
	if override != nil {
		return override
	}
	return otelhttp.NewTransport(http.DefaultTransport)
}

func timeoutOrDefault(d time.Duration) time.Duration {
	if d <= 0 {
		return defaultTimeout
	}
	return d
}

// callRecord holds what the wire saw during one SDK call.
type callRecord struct {
	idempotencyKey string

	done   bool
	status int
	header http.Header
	body   []byte
	err    error
}

type callKey struct{}

func withCall(ctx context.Context, c *callRecord) context.Context {
	return context.WithValue(ctx, callKey{}, c)
}

func callFrom(ctx context.Context) *callRecord {
	c, _ := ctx.Value(callKey{}).(*callRecord)
	return c
}

// captureTransport lets SDK-backed providers classify failures from the raw
// status and body instead of SDK-specific error types. When target is set,
// requests are redirected to it, keeping the SDK's path.
type captureTransport struct {
	next   http.RoundTripper
	target *url.URL
}

func newCaptureTransport(next http.RoundTripper, baseURL string) (*captureTransport, error) {
	t := &captureTransport{next: next}
	if baseURL != "" {
		u, err := url.Parse(baseURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return nil, fmt.Errorf("invalid provider base URL %q", baseURL)
		}
		t.target = u
	}
	return t, nil
}

func (t *captureTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	c := callFrom(req.Context())

	out := req.Clone(req.Context())
	if t.target != nil {
		out.URL.Scheme = t.target.Scheme
		out.URL.Host = t.target.Host
		out.URL.Path = strings.TrimRight(t.target.Path, "/") + out.URL.Path
		out.Host = t.target.Host
	}
	if c != nil && c.idempotencyKey != "" {
		out.Header.Set(IdempotencyHeader, c.idempotencyKey)
	}

	resp, err := t.next.RoundTrip(out)
	if c == nil {
		return resp, err
	}
	if err != nil {
		c.err = err
		return nil, err
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	resp.Body.Close()
	if err != nil {
		c.err = err
		return nil, err
	}

	c.done = true
	c.status = resp.StatusCode
	c.header = resp.Header.Clone()
	c.body = body
	resp.Body = io.NopCloser(bytes.NewReader(body))
	return resp, nil
}

// outcome turns what the transport recorded into a RawResponse or an
// upstream error. sdkErr is only consulted when nothing reached the wire.
func (c *callRecord) outcome(provider string, sdkErr error) (*RawResponse, error) {
	switch {
	case c.done:
		if c.status < 200 || c.status > 299 {
			return nil, rejected(provider, c.status, c.body)
		}
		return &RawResponse{
			StatusCode:     c.status,
			Header:         c.header,
			Body:           c.body,
			IdempotencyKey: c.idempotencyKey,
		}, nil
	case c.err != nil:
		return nil, TransportError(provider, c.err)
	case sdkErr != nil:
		return nil, TransportError(provider, sdkErr)
	default:
		return nil, domainErrors.NewUpstreamError(provider, domainErrors.ErrProviderUnreachable, 0, "", errors.New("no response received"))
	}
}

// transportError classifies a failure that produced no HTTP response.
// TransportError classifies a failed round trip as a timeout or an
// unreachable provider. Cancellation by the caller passes through.
func TransportError(provider string, err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	if isTimeout(err) {
		return domainErrors.NewUpstreamError(provider, domainErrors.ErrProviderTimeout, 0, "", err)
	}
	return domainErrors.NewUpstreamError(provider, domainErrors.ErrProviderUnreachable, 0, "", err)
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

func rejected(provider string, status int, body []byte) error {
	kind := domainErrors.ErrProviderRejected
	if status == http.StatusNotFound {
		kind = fmt.Errorf("%w: %w", domainErrors.ErrProviderRejected, domainErrors.ErrProviderNotFoundOrder)
	}
	return domainErrors.NewUpstreamError(provider, kind, status, string(body), nil)
}

// httpInvoker sends JSON requests for providers without an SDK.
type httpInvoker struct {
	provider string
	baseURL  string
	client   *http.Client
	timeout  time.Duration
}

func newHTTPInvoker(provider, baseURL string, opts Options) *httpInvoker {
	timeout := timeoutOrDefault(opts.Timeout)
	return &httpInvoker{
		provider: provider,
		baseURL:  strings.TrimRight(baseURL, "/"),
		client:   &http.Client{Transport: newTransport(opts.Transport), Timeout: timeout},
		timeout:  timeout,
	}
}

// do sends body as JSON with a bearer token and returns the 2xx answer.
func (i *httpInvoker) do(ctx context.Context, method, path, token, idempotencyKey string, body any) (*RawResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, i.timeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode %s payload: %w", i.provider, err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, i.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("build %s request: %w", i.provider, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if idempotencyKey != "" {
		req.Header.Set(IdempotencyHeader, idempotencyKey)
	}

	resp, err := i.client.Do(req)
	if err != nil {
		return nil, TransportError(i.provider, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return nil, TransportError(i.provider, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, rejected(i.provider, resp.StatusCode, raw)
	}
	return &RawResponse{
		StatusCode:     resp.StatusCode,
		Header:         resp.Header.Clone(),
		Body:           raw,
		IdempotencyKey: idempotencyKey,
	}, nil
}

// decodeBody unmarshals a provider body, reporting malformed JSON as an
// unparseable upstream response.
func decodeBody(provider string, raw *RawResponse, v any) error {
	if raw == nil {
		return domainErrors.Unparseable(provider, 0, "", errors.New("empty response"))
	}
	if err := json.Unmarshal(raw.Body, v); err != nil {
		return domainErrors.Unparseable(provider, raw.StatusCode, string(raw.Body), err)
	}
	return nil
}

func urlNotFound(provider string, raw *RawResponse) error {
	return domainErrors.NewUpstreamError(provider, fmt.Errorf("%w: %w", domainErrors.ErrResponseShapeMismatch, domainErrors.ErrPaymentURLNotFound), raw.StatusCode, string(raw.Body), nil)
}
