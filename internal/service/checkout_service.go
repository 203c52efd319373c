package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dancingpatinacao/checkout/internal/domain/checkout"
	domainErrors "github.com/dancingpatinacao/checkout/internal/domain/errors"
	"github.com/dancingpatinacao/checkout/internal/infrastructure/observability"
	"github.com/dancingpatinacao/checkout/internal/providers"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// CheckoutService runs a booking through a payment provider:
// validate, build the payload, invoke behind the breaker, normalize.
type CheckoutService struct {
	factory *providers.Factory
	metrics *observability.Metrics
	logger  zerolog.Logger
	tracer  trace.Tracer
}

func NewCheckoutService(factory *providers.Factory, metrics *observability.Metrics, logger zerolog.Logger) *CheckoutService {
	if metrics == nil {
		metrics = observability.NewNopMetrics()
	}
	return &CheckoutService{
		factory: factory,
		metrics: metrics,
		logger:  observability.ForComponent(logger, "checkout"),
		tracer:  observability.Tracer("checkout"),
	}
}

// CreateCheckout validates req and creates a payment with the named provider.
// Validation failures return before any provider is contacted.
func (s *CheckoutService) CreateCheckout(ctx context.Context, providerName string, req checkout.BookingRequest) (*checkout.PaymentResult, error) {
	start := time.Now()

	if len(req.Items) > 0 {
		total, err := checkout.SumItems(req.Items)
		if err != nil {
			s.metrics.CheckoutsTotal.WithLabelValues(providerName, "invalid").Inc()
			return nil, domainErrors.NewValidationError("items", "total "+err.Error())
		}
		req.Amount = total
	}
	if err := req.Validate(); err != nil {
		s.metrics.CheckoutsTotal.WithLabelValues(providerName, "invalid").Inc()
		return nil, err
	}

	provider, breaker, err := s.factory.Get(providerName)
	if err != nil {
		return nil, err
	}

	ctx, span := s.tracer.Start(ctx, "checkout.create", trace.WithAttributes(
		attribute.String("checkout.provider", providerName),
	))
	defer span.End()

	result, err := s.run(ctx, provider, breaker, req)
	s.metrics.CheckoutDuration.WithLabelValues(providerName).Observe(time.Since(start).Seconds())
	if err != nil {
		s.metrics.CheckoutsTotal.WithLabelValues(providerName, "failed").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, errorKind(err))
		return nil, err
	}

	s.metrics.CheckoutsTotal.WithLabelValues(providerName, "created").Inc()
	span.SetAttributes(attribute.String("checkout.order_id", result.ProviderOrderID))
	s.logger.Info().
		Str("provider", providerName).
		Str("order_id", result.ProviderOrderID).
		Float64("amount", req.Amount).
		Str("idempotency_key", result.IdempotencyKey).
		Dur("duration", time.Since(start)).
		Msg("checkout created")
	return result, nil
}

func (s *CheckoutService) run(ctx context.Context, provider providers.Provider, breaker *providers.Breaker, req checkout.BookingRequest) (*checkout.PaymentResult, error) {
	name := provider.Name()

	payload, err := provider.BuildPayload(req)
	if err != nil {
		return nil, fmt.Errorf("build %s payload: %w", name, err)
	}
	s.logger.Debug().
		Str("provider", name).
		Str("idempotency_key", payload.IdempotencyKey).
		Str("payload", observability.Redact(payload.Body)).
		Msg("invoking provider")

	callStart := time.Now()
	raw, err := breaker.Execute(func() (*providers.RawResponse, error) {
		return provider.Invoke(ctx, payload)
	})
	s.metrics.ProviderRequestDuration.WithLabelValues(name, "create").Observe(time.Since(callStart).Seconds())
	if err != nil {
		err = providers.BreakerError(name, err)
		s.metrics.ProviderErrors.WithLabelValues(name, errorKind(err)).Inc()
		s.logFailure(name, payload.IdempotencyKey, err)
		return nil, err
	}

	result, err := provider.NormalizeResponse(raw)
	if err != nil {
		s.metrics.ProviderErrors.WithLabelValues(name, errorKind(err)).Inc()
		s.logFailure(name, payload.IdempotencyKey, err)
		return nil, err
	}
	return result, nil
}

func (s *CheckoutService) logFailure(provider, key string, err error) {
	ev := s.logger.Error().Err(err).Str("provider", provider).Str("idempotency_key", key)
	var ue *domainErrors.UpstreamError
	if errors.As(err, &ue) && ue.Body != "" {
		ev = ev.Int("upstream_status", ue.StatusCode).Str("upstream_body", observability.RedactJSON([]byte(ue.Body)))
	}
	ev.Msg("provider call failed")
}

// Status asks the provider for the current state of a payment.
func (s *CheckoutService) Status(ctx context.Context, providerName, id string) (*checkout.PaymentStatus, error) {
	sc, err := s.factory.StatusChecker(providerName)
	if err != nil {
		return nil, err
	}

	ctx, span := s.tracer.Start(ctx, "checkout.status", trace.WithAttributes(
		attribute.String("checkout.provider", providerName),
	))
	defer span.End()

	start := time.Now()
	st, err := sc.Status(ctx, id)
	s.metrics.ProviderRequestDuration.WithLabelValues(providerName, "status").Observe(time.Since(start).Seconds())
	if err != nil {
		if !errors.Is(err, domainErrors.ErrValidationFailed) {
			s.metrics.ProviderErrors.WithLabelValues(providerName, errorKind(err)).Inc()
		}
		span.RecordError(err)
		return nil, err
	}
	return st, nil
}

// errorKind is a low-cardinality label for err.
func errorKind(err error) string {
	switch {
	case errors.Is(err, domainErrors.ErrValidationFailed):
		return "validation"
	case errors.Is(err, domainErrors.ErrProviderTimeout):
		return "timeout"
	case errors.Is(err, domainErrors.ErrProviderUnreachable):
		return "unreachable"
	case errors.Is(err, domainErrors.ErrProviderUnavailable):
		return "circuit_open"
	case errors.Is(err, domainErrors.ErrProviderRejected):
		return "rejected"
	case errors.Is(err, domainErrors.ErrResponseShapeMismatch):
		return "response_shape"
	case errors.Is(err, domainErrors.ErrProviderNotConfigured):
		return "not_configured"
	case errors.Is(err, domainErrors.ErrReauthorizationRequired):
		return "reauthorization"
	default:
		return "internal"
	}
}
