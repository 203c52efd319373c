package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dancingpatinacao/checkout/internal/domain/webhook"
	"github.com/redis/go-redis/v9"
)

// DefaultNotificationStream is where webhook notifications are journaled.
const DefaultNotificationStream = "webhooks:notifications"

const streamMaxLen = 10000

// NotificationProducer appends webhook notifications to a Redis stream.
type NotificationProducer struct {
	client redis.Cmdable
	stream string
}

func NewNotificationProducer(client redis.Cmdable, stream string) *NotificationProducer {
	if stream == "" {
		stream = DefaultNotificationStream
	}
	return &NotificationProducer{client: client, stream: stream}
}

// Append implements webhook.Journal.
func (p *NotificationProducer) Append(ctx context.Context, n *webhook.Notification) error {
	_, err := p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: p.stream,
		MaxLen: streamMaxLen,
		Approx: true,
		Values: notificationValues(n),
	}).Result()
	if err != nil {
		return fmt.Errorf("failed to publish webhook notification: %w", err)
	}
	return nil
}

func notificationValues(n *webhook.Notification) map[string]any {
	return map[string]any{
		"notification_id": n.ID,
		"provider":        n.Provider,
		"topic":           n.Topic,
		"resource_id":     n.ResourceID,
		"payload":         string(n.Payload),
		"received_at":     n.ReceivedAt.UnixMilli(),
	}
}

// DecodeNotification rebuilds a notification from a stream entry.
func DecodeNotification(msg redis.XMessage) (*webhook.Notification, error) {
	str := func(k string) string {
		if v, ok := msg.Values[k].(string); ok {
			return v
		}
		return ""
	}

	n := &webhook.Notification{
		ID:         str("notification_id"),
		Provider:   str("provider"),
		Topic:      str("topic"),
		ResourceID: str("resource_id"),
	}
	if n.Provider == "" {
		return nil, fmt.Errorf("stream message %s: missing provider", msg.ID)
	}
	if p := str("payload"); p != "" {
		if !json.Valid([]byte(p)) {
			return nil, fmt.Errorf("stream message %s: payload is not JSON", msg.ID)
		}
		n.Payload = json.RawMessage(p)
	}
	if ms := str("received_at"); ms != "" {
		if v, err := strconv.ParseInt(ms, 10, 64); err == nil {
			n.ReceivedAt = time.UnixMilli(v).UTC()
		}
	}
	return n, nil
}

// StreamConsumer reads a stream through a consumer group.
type StreamConsumer struct {
	client        redis.Cmdable
	stream        string
	group         string
	consumer      string
	batchSize     int64
	blockDuration time.Duration
}

func NewStreamConsumer(
	client redis.Cmdable,
	stream string,
	group string,
	consumer string,
	batchSize int64,
	blockDuration time.Duration,
) *StreamConsumer {
	return &StreamConsumer{
		client:        client,
		stream:        stream,
		group:         group,
		consumer:      consumer,
		batchSize:     batchSize,
		blockDuration: blockDuration,
	}
}

func (c *StreamConsumer) Stream() string {
	return c.stream
}

// CreateGroup creates the group and the stream if needed.
func (c *StreamConsumer) CreateGroup(ctx context.Context) error {
	err := c.client.XGroupCreateMkStream(ctx, c.stream, c.group, "0").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("failed to create consumer group: %w", err)
	}
	return nil
}

// Read blocks up to the configured duration. No messages is (nil, nil).
func (c *StreamConsumer) Read(ctx context.Context) ([]redis.XMessage, error) {
	streams, err := c.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    c.group,
		Consumer: c.consumer,
		Streams:  []string{c.stream, ">"},
		Count:    c.batchSize,
		Block:    c.blockDuration,
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read from stream: %w", err)
	}

	var msgs []redis.XMessage
	for _, s := range streams {
		msgs = append(msgs, s.Messages...)
	}
	return msgs, nil
}

func (c *StreamConsumer) Ack(ctx context.Context, messageID string) error {
	if err := c.client.XAck(ctx, c.stream, c.group, messageID).Err(); err != nil {
		return fmt.Errorf("failed to ack message: %w", err)
	}
	return nil
}

// ClaimStale takes over messages another consumer left pending for longer
// than minIdle.
func (c *StreamConsumer) ClaimStale(ctx context.Context, minIdle time.Duration) ([]redis.XMessage, error) {
	msgs, _, err := c.client.XAutoClaim(ctx, &redis.XAutoClaimArgs{
		Stream:   c.stream,
		Group:    c.group,
		Consumer: c.consumer,
		MinIdle:  minIdle,
		Start:    "0-0",
		Count:    c.batchSize,
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to claim messages: %w", err)
	}
	return msgs, nil
}
