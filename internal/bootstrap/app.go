package bootstrap

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/dancingpatinacao/checkout/internal/domain/checkout"
	"github.com/dancingpatinacao/checkout/internal/domain/idempotency"
	"github.com/dancingpatinacao/checkout/internal/domain/oauth"
	"github.com/dancingpatinacao/checkout/internal/domain/webhook"
	"github.com/dancingpatinacao/checkout/internal/infrastructure/config"
	infraDynamo "github.com/dancingpatinacao/checkout/internal/infrastructure/dynamodb"
	"github.com/dancingpatinacao/checkout/internal/infrastructure/filestore"
	"github.com/dancingpatinacao/checkout/internal/infrastructure/observability"
	infraRedis "github.com/dancingpatinacao/checkout/internal/infrastructure/redis"
	"github.com/dancingpatinacao/checkout/internal/providers"
	"github.com/dancingpatinacao/checkout/internal/repository/postgres"
	"github.com/dancingpatinacao/checkout/internal/service"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// App holds the process-wide dependencies shared by cmd/api and cmd/worker.
// Pool and Redis are nil when the matching backend is disabled.
type App struct {
	Config  *config.Config
	Logger  zerolog.Logger
	Pool    *pgxpool.Pool
	Redis   *redis.Client
	Metrics *observability.Metrics

	tracer *sdktrace.TracerProvider
}

// Services are the application services built from an App.
type Services struct {
	Factory          *providers.Factory
	Checkout         *service.CheckoutService
	OAuth            *service.OAuthService
	Webhook          *service.WebhookService
	Recaptcha        *service.RecaptchaService
	IdempotencyStore idempotency.Store
}

func New(ctx context.Context, serviceName string, metricsNamespace string) (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logger := observability.InitLogger(cfg.Observability.LogLevel, os.Stdout).
		With().Str("service", serviceName).Logger()
	logger.Info().Msg("Starting")

	app := &App{Config: cfg, Logger: logger}

	if cfg.Observability.EnableTracing {
		tp, err := observability.InitTracer(serviceName, cfg.Observability.JaegerEndpoint)
		if err != nil {
			logger.Warn().Err(err).Msg("Failed to initialize tracer, continuing without tracing")
		} else {
			app.tracer = tp
			logger.Info().Msg("Tracing enabled")
		}
	}

	if cfg.Observability.EnableMetrics {
		app.Metrics = observability.NewMetrics(metricsNamespace, nil)
	} else {
		app.Metrics = observability.NewNopMetrics()
	}
	logger.Info().Msg("Metrics initialized")

	if cfg.Database.Enabled {
		pool, err := postgres.NewPool(ctx, &cfg.Database, logger)
		if err != nil {
			app.Close()
			return nil, fmt.Errorf("connect to database: %w", err)
		}
		app.Pool = pool
		logger.Info().Msg("Connected to PostgreSQL")
	}

	if cfg.Redis.Enabled {
		redisClient, err := infraRedis.NewClient(ctx, &cfg.Redis, logger)
		if err != nil {
			app.Close()
			return nil, fmt.Errorf("connect to redis: %w", err)
		}
		app.Redis = redisClient
		logger.Info().Msg("Connected to Redis")
	}

	return app, nil
}

// TokenStore returns the backend selected by oauth.token_store.
func (a *App) TokenStore(ctx context.Context) (oauth.TokenStore, error) {
	provider := string(checkout.ProviderMercadoPago)
	switch a.Config.OAuth.TokenStore {
	case config.TokenStoreRedis:
		return infraRedis.NewTokenStore(a.Redis, "oauth:"+provider+":token"), nil
	case config.TokenStorePostgres:
		return postgres.NewTokenRepository(a.Pool, provider), nil
	case config.TokenStoreDynamoDB:
		client, err := infraDynamo.NewClient(ctx, &a.Config.DynamoDB)
		if err != nil {
			return nil, fmt.Errorf("dynamodb client: %w", err)
		}
		return infraDynamo.NewTokenStore(client, a.Config.DynamoDB.TokenTable, provider), nil
	default:
		return filestore.NewTokenStore(a.Config.OAuth.TokenFile), nil
	}
}

func (a *App) providerOptions() providers.Options {
	return providers.Options{
		PublicURL:   a.Config.App.PublicURL,
		FrontendURL: a.Config.App.FrontendURL,
		Timeout:     a.Config.Providers.Timeout,
	}
}

// Services wires the providers and application services.
func (a *App) Services(ctx context.Context) (*Services, error) {
	cfg := a.Config
	opts := a.providerOptions()

	store, err := a.TokenStore(ctx)
	if err != nil {
		return nil, err
	}
	oauthClient := providers.NewMercadoPagoOAuth(providers.MercadoPagoOAuthConfig{
		ClientID:     cfg.MercadoPago.ClientID,
		ClientSecret: cfg.MercadoPago.ClientSecret,
		BaseURL:      cfg.MercadoPago.BaseURL,
		AuthURL:      cfg.MercadoPago.AuthURL,
	}, opts)
	oauthService := service.NewOAuthService(oauthClient, store, service.OAuthConfig{
		StaticToken: cfg.MercadoPago.AccessToken,
		RedirectURI: strings.TrimRight(cfg.App.PublicURL, "/") + "/api/mercadopago/oauth/callback",
		StateSecret: []byte(cfg.OAuth.StateSecret),
		StateTTL:    cfg.OAuth.StateTTL,
	}, a.Metrics, a.Logger)

	mercadoPago, err := providers.NewMercadoPago(providers.MercadoPagoConfig{
		BaseURL: cfg.MercadoPago.BaseURL,
		Sandbox: cfg.MercadoPago.Sandbox,
	}, oauthService, opts)
	if err != nil {
		return nil, fmt.Errorf("mercadopago provider: %w", err)
	}
	stripeProvider, err := providers.NewStripe(providers.StripeConfig{
		SecretKey: cfg.Stripe.SecretKey,
		BaseURL:   cfg.Stripe.BaseURL,
		Currency:  cfg.Stripe.Currency,
	}, opts)
	if err != nil {
		return nil, fmt.Errorf("stripe provider: %w", err)
	}
	pagBankCfg := providers.PagBankConfig{
		Token:         cfg.PagBank.Token,
		BaseURL:       cfg.PagBank.ResolvedBaseURL(),
		PixExpiration: cfg.PagBank.PixExpiration,
	}

	factory := providers.NewFactory(providers.BreakerSettings{
		ConsecutiveFailures: uint32(cfg.Providers.CircuitBreakerThreshold),
		OpenTimeout:         cfg.Providers.CircuitBreakerTimeout,
	}, a.Metrics,
		mercadoPago,
		providers.NewPagBank(pagBankCfg, opts),
		providers.NewPagBankPix(pagBankCfg, opts),
		stripeProvider,
	)

	var journals []webhook.Journal
	if a.Redis != nil {
		journals = append(journals, infraRedis.NewNotificationProducer(a.Redis, cfg.Webhook.Stream))
	}
	if cfg.Webhook.Persist && a.Pool != nil {
		journals = append(journals, postgres.NewWebhookRepository(a.Pool))
	}

	var idem idempotency.Store
	switch {
	case a.Redis != nil:
		idem = infraRedis.NewIdempotencyStore(a.Redis)
	case a.Pool != nil:
		idem = postgres.NewIdempotencyRepository(a.Pool)
	}

	a.Logger.Info().
		Strs("providers", factory.Names()).
		Str("token_store", cfg.OAuth.TokenStore).
		Int("webhook_journals", len(journals)).
		Bool("idempotency", idem != nil).
		Msg("Services wired")

	return &Services{
		Factory:          factory,
		Checkout:         service.NewCheckoutService(factory, a.Metrics, a.Logger),
		OAuth:            oauthService,
		Webhook:          service.NewWebhookService(a.Metrics, a.Logger, journals...),
		Recaptcha:        service.NewRecaptchaService(cfg.Recaptcha.SecretKey, cfg.Recaptcha.VerifyURL, cfg.Providers.Timeout, nil, a.Logger),
		IdempotencyStore: idem,
	}, nil
}

func (a *App) Close() {
	if a.Redis != nil {
		a.Redis.Close()
	}
	if a.Pool != nil {
		a.Pool.Close()
	}
	if a.tracer != nil {
		if err := observability.Shutdown(context.Background(), a.tracer); err != nil {
			a.Logger.Warn().Err(err).Msg("Tracer shutdown failed")
		}
	}
}
