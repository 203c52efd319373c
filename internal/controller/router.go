package controller

import (
	"net/http"
	"time"

	"github.com/dancingpatinacao/checkout/internal/domain/idempotency"
	"github.com/dancingpatinacao/checkout/internal/infrastructure/config"
	"github.com/dancingpatinacao/checkout/internal/infrastructure/observability"
	customMW "github.com/dancingpatinacao/checkout/internal/middleware"
	"github.com/dancingpatinacao/checkout/internal/service"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"
)

type RouterDeps struct {
	Pool             *pgxpool.Pool
	RedisClient      *redis.Client
	CheckoutService  *service.CheckoutService
	OAuthService     *service.OAuthService
	WebhookService   *service.WebhookService
	RecaptchaService *service.RecaptchaService
	IdempotencyStore idempotency.Store
	IdempotencyTTL   time.Duration
	Metrics          *observability.Metrics
	// Gatherer backs /metrics; nil means the default registry.
	Gatherer   prometheus.Gatherer
	Logger     zerolog.Logger
	CORSConfig config.CORSConfig
	RateLimit  int
	// OperatorSecret, when set, guards the manual OAuth refresh.
	OperatorSecret string
	Providers      func() []string
}

func NewRouter(deps RouterDeps) *chi.Mux {
	if deps.Metrics == nil {
		deps.Metrics = observability.NewNopMetrics()
	}

	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(customMW.Tracing())
	r.Use(chimw.RealIP)
	r.Use(hlog.NewHandler(deps.Logger))
	r.Use(hlog.AccessHandler(func(r *http.Request, status, size int, duration time.Duration) {
		hlog.FromRequest(r).Info().
			Str("request_id", chimw.GetReqID(r.Context())).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", status).
			Int("size", size).
			Dur("duration", duration).
			Msg("request")
	}))
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(60 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:     deps.CORSConfig.AllowedOrigins,
		AllowedMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:     []string{"Accept", "Authorization", "Content-Type", customMW.IdempotencyKeyHeader},
		ExposedHeaders:     []string{"X-Idempotency-Replayed"},
		AllowCredentials:   deps.CORSConfig.AllowCredentials,
		MaxAge:             300,
		OptionsPassthrough: true,
	}))
	r.Use(customMW.Preflight())
	r.Use(customMW.SecurityHeaders())
	r.Use(customMW.Metrics(deps.Metrics))

	r.MethodNotAllowed(customMW.MethodNotAllowed)
	r.NotFound(customMW.NotFound)

	healthH := NewHealthController(deps.Pool, deps.RedisClient, deps.Providers)
	mercadoPagoH := NewMercadoPagoController(deps.CheckoutService, deps.OAuthService, deps.WebhookService)
	pagBankH := NewPagBankController(deps.CheckoutService, deps.WebhookService)
	stripeH := NewStripeController(deps.CheckoutService)
	checkoutH := NewCheckoutController(deps.CheckoutService)
	recaptchaH := NewRecaptchaController(deps.RecaptchaService)

	r.Get("/health", healthH.Health)
	r.Get("/health/live", healthH.Liveness)
	r.Get("/health/ready", healthH.Readiness)

	if deps.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{}))
	} else {
		r.Handle("/metrics", promhttp.Handler())
	}

	r.Route("/api", func(r chi.Router) {
		// Payment creation: rate limited and replayable by Idempotency-Key.
		pay := r.With(
			customMW.RateLimit(deps.RateLimit),
			customMW.Idempotency(deps.IdempotencyStore, deps.IdempotencyTTL, deps.Metrics, deps.Logger),
		)

		// Mercado Pago
		pay.Post("/mercadopago/create-preference", mercadoPagoH.CreatePreference)
		r.Get("/mercadopago/oauth", mercadoPagoH.OAuthStart)
		r.Get("/mercadopago/oauth/callback", mercadoPagoH.OAuthCallback)
		r.With(customMW.RequireOperator(deps.OperatorSecret)).Post("/mercadopago/oauth/refresh", mercadoPagoH.OAuthRefresh)
		r.Get("/mercadopago/payment-status", mercadoPagoH.PaymentStatus)
		r.Post("/mercadopago/webhook", mercadoPagoH.Webhook)

		// PagBank / PagSeguro
		pay.Post("/pagbank/checkout", pagBankH.Checkout)
		pay.Post("/pagbank/create-payment", pagBankH.Checkout)
		pay.Post("/pagbank/create-order", pagBankH.CreateOrder)
		r.Get("/pagbank/payment-status", pagBankH.PaymentStatus)
		r.Post("/pagbank/webhook", pagBankH.Webhook)
		r.Post("/pagseguro/webhook", pagBankH.Webhook)

		// Stripe
		pay.Post("/stripe/create-checkout-session", stripeH.CreateCheckoutSession)
		r.Get("/stripe/session-status", stripeH.SessionStatus)

		pay.Post("/checkout", checkoutH.Create)
		r.With(customMW.RateLimit(deps.RateLimit)).Post("/test-recaptcha", recaptchaH.Verify)
	})

	return r
}
