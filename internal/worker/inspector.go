package worker

import (
	"context"
	"strings"
	"time"

	"github.com/dancingpatinacao/checkout/internal/domain/checkout"
	domainErrors "github.com/dancingpatinacao/checkout/internal/domain/errors"
	"github.com/dancingpatinacao/checkout/internal/domain/webhook"
	"github.com/dancingpatinacao/checkout/internal/infrastructure/observability"
	infraRedis "github.com/dancingpatinacao/checkout/internal/infrastructure/redis"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// MessageSource is a consumer-group view of the notification stream.
type MessageSource interface {
	Stream() string
	Read(ctx context.Context) ([]redis.XMessage, error)
	Ack(ctx context.Context, messageID string) error
	ClaimStale(ctx context.Context, minIdle time.Duration) ([]redis.XMessage, error)
}

// StatusLookup asks a provider for the current state of a payment.
type StatusLookup interface {
	Status(ctx context.Context, provider, id string) (*checkout.PaymentStatus, error)
}

// Outcome labels for processed messages.
const (
	OutcomeSuccess = "success"
	OutcomeSkipped = "skipped"
	OutcomeFailed  = "failed"
	OutcomeRetry   = "retry"
)

type InspectorConfig struct {
	// StaleAfter is how long a message may stay pending before another
	// consumer claims it.
	StaleAfter time.Duration
	// ClaimEvery is how often stale messages are claimed.
	ClaimEvery time.Duration
}

// Inspector consumes journaled webhook notifications and logs the provider's
// current status for each. It persists nothing.
type Inspector struct {
	cfg     InspectorConfig
	source  MessageSource
	lookup  StatusLookup
	metrics *observability.Metrics
	logger  zerolog.Logger
	now     func() time.Time
}

func NewInspector(cfg InspectorConfig, source MessageSource, lookup StatusLookup, metrics *observability.Metrics, logger zerolog.Logger) *Inspector {
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = 5 * time.Minute
	}
	if cfg.ClaimEvery <= 0 {
		cfg.ClaimEvery = time.Minute
	}
	if metrics == nil {
		metrics = observability.NewNopMetrics()
	}
	return &Inspector{
		cfg:     cfg,
		source:  source,
		lookup:  lookup,
		metrics: metrics,
		logger:  logger.With().Str("component", "webhook_inspector").Logger(),
		now:     time.Now,
	}
}

// Run reads until ctx is done.
func (i *Inspector) Run(ctx context.Context) error {
	var lastClaim time.Time
	for {
		if ctx.Err() != nil {
			return nil
		}

		if i.now().Sub(lastClaim) >= i.cfg.ClaimEvery {
			lastClaim = i.now()
			stale, err := i.source.ClaimStale(ctx, i.cfg.StaleAfter)
			if err != nil {
				i.logger.Error().Err(err).Msg("Failed to claim stale messages")
			}
			i.ProcessBatch(ctx, stale)
		}

		msgs, err := i.source.Read(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			i.logger.Error().Err(err).Msg("Failed to read from stream")
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(time.Second):
			}
			continue
		}
		i.ProcessBatch(ctx, msgs)
	}
}

// ProcessBatch handles each message and acks the ones that need no retry.
func (i *Inspector) ProcessBatch(ctx context.Context, msgs []redis.XMessage) {
	stream := i.source.Stream()
	for _, msg := range msgs {
		start := i.now()
		outcome := i.Process(ctx, msg)
		i.metrics.WorkerMessagesProcessed.WithLabelValues(stream, outcome).Inc()
		i.metrics.WorkerProcessingDuration.WithLabelValues(stream).Observe(i.now().Sub(start).Seconds())

		if outcome == OutcomeRetry {
			continue
		}
		if err := i.source.Ack(ctx, msg.ID); err != nil {
			i.logger.Error().Err(err).Str("message_id", msg.ID).Msg("Failed to ack message")
		}
	}
}

// Process inspects one message and reports its outcome. Transient provider
// failures yield OutcomeRetry so the message stays pending.
func (i *Inspector) Process(ctx context.Context, msg redis.XMessage) string {
	n, err := infraRedis.DecodeNotification(msg)
	if err != nil {
		i.logger.Warn().Err(err).Str("message_id", msg.ID).Msg("Dropping undecodable notification")
		return OutcomeSkipped
	}

	provider, ok := lookupProvider(n)
	if !ok {
		i.logger.Debug().
			Str("provider", n.Provider).
			Str("topic", n.Topic).
			Str("notification_id", n.ID).
			Msg("Notification has no payment to inspect")
		return OutcomeSkipped
	}

	st, err := i.lookup.Status(ctx, provider, n.ResourceID)
	if err != nil {
		if domainErrors.IsRetryable(err) {
			i.logger.Warn().Err(err).Str("notification_id", n.ID).Msg("Status lookup failed, will retry")
			return OutcomeRetry
		}
		i.logger.Error().Err(err).Str("notification_id", n.ID).Str("resource_id", n.ResourceID).Msg("Status lookup failed")
		return OutcomeFailed
	}

	i.logger.Info().
		Str("notification_id", n.ID).
		Str("provider", provider).
		Str("resource_id", n.ResourceID).
		Str("status", st.Status).
		Str("status_detail", st.StatusDetail).
		Str("reference", st.Reference).
		Msg("Payment status observed")
	return OutcomeSuccess
}

// lookupProvider maps a notification to the provider whose status endpoint
// knows its resource.
func lookupProvider(n *webhook.Notification) (string, bool) {
	if n.ResourceID == "" {
		return "", false
	}
	switch n.Provider {
	case string(checkout.ProviderMercadoPago):
		topic := strings.ToLower(n.Topic)
		if topic != "" && !strings.HasPrefix(topic, "payment") {
			return "", false
		}
		return n.Provider, true
	case string(checkout.ProviderPagBank):
		// Legacy transaction notification codes are not order ids.
		if strings.EqualFold(n.Topic, "transaction") {
			return "", false
		}
		return n.Provider, true
	}
	return "", false
}
