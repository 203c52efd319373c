package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	domainErrors "github.com/dancingpatinacao/checkout/internal/domain/errors"
	"github.com/dancingpatinacao/checkout/internal/domain/webhook"
	"github.com/dancingpatinacao/checkout/internal/infrastructure/observability"
	"github.com/rs/zerolog"
)

// WebhookService records provider notifications. It updates no booking or
// order state; journals exist so the worker and operators can inspect them.
type WebhookService struct {
	journals []webhook.Journal
	metrics  *observability.Metrics
	logger   zerolog.Logger
	now      func() time.Time
}

func NewWebhookService(metrics *observability.Metrics, logger zerolog.Logger, journals ...webhook.Journal) *WebhookService {
	if metrics == nil {
		metrics = observability.NewNopMetrics()
	}
	return &WebhookService{
		journals: journals,
		metrics:  metrics,
		logger:   observability.ForComponent(logger, "webhook"),
		now:      time.Now,
	}
}

// Receive logs the notification and appends it to every journal. Any journal
// failure is returned so the provider redelivers.
func (s *WebhookService) Receive(ctx context.Context, provider string, body []byte, query map[string]string) (*webhook.Notification, error) {
	n := webhook.NewNotification(provider, body, query, s.now())

	s.logger.Info().
		Str("provider", provider).
		Str("notification_id", n.ID).
		Str("topic", n.Topic).
		Str("resource_id", n.ResourceID).
		Str("payload", observability.RedactJSON(n.Payload)).
		Msg("webhook received")

	var errs []error
	for _, j := range s.journals {
		if err := j.Append(ctx, n); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		s.metrics.WebhookNotifications.WithLabelValues(provider, "journal_failed").Inc()
		s.logger.Error().Err(err).Str("notification_id", n.ID).Msg("webhook journal failed")
		return n, fmt.Errorf("%w: %w", domainErrors.ErrWebhookJournalUnavailable, err)
	}

	s.metrics.WebhookNotifications.WithLabelValues(provider, "received").Inc()
	return n, nil
}
