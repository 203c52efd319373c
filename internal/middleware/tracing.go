package middleware

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/trace"
)

// Tracing starts a server span per request. Once chi has matched the route
// the span is renamed to "<METHOD> <pattern>" to keep span names low
// cardinality, e.g. "GET /api/pagbank/payment-status".
func Tracing() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		rename := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r)

			rctx := chi.RouteContext(r.Context())
			if rctx == nil || rctx.RoutePattern() == "" {
				return
			}
			trace.SpanFromContext(r.Context()).SetName(r.Method + " " + rctx.RoutePattern())
		})

		return otelhttp.NewHandler(rename, "http.request",
			otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
				return r.Method + " " + r.URL.Path
			}),
			otelhttp.WithFilter(func(r *http.Request) bool {
				return r.URL.Path != "/metrics" && r.URL.Path != "/health/live"
			}),
		)
	}
}
