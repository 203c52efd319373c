package redis

import (
	"encoding/json"
	"strconv"
	"testing"
	"time"

	"github.com/dancingpatinacao/checkout/internal/domain/webhook"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNotificationValues_RoundTripThroughStreamMessage(t *testing.T) {
	at := time.Date(2024, 5, 10, 14, 0, 0, 0, time.UTC)
	n := &webhook.Notification{
		ID:         "n-1",
		Provider:   "pagbank",
		Topic:      "order",
		ResourceID: "ORDE_1",
		Payload:    json.RawMessage(`{"id":"ORDE_1"}`),
		ReceivedAt: at,
	}

	// Redis hands every field back as a string.
	values := make(map[string]any)
	for k, v := range notificationValues(n) {
		switch t := v.(type) {
		case string:
			values[k] = t
		case int64:
			values[k] = strconv.FormatInt(t, 10)
		}
	}

	got, err := DecodeNotification(redis.XMessage{ID: "1-0", Values: values})
	require.NoError(t, err)
	assert.Equal(t, n, got)
}

func TestDecodeNotification_MissingProvider(t *testing.T) {
	_, err := DecodeNotification(redis.XMessage{ID: "1-0", Values: map[string]any{"payload": "{}"}})

	assert.Error(t, err)
}

func TestDecodeNotification_InvalidPayload(t *testing.T) {
	_, err := DecodeNotification(redis.XMessage{ID: "1-0", Values: map[string]any{
		"provider": "mercadopago",
		"payload":  "{not json",
	}})

	assert.Error(t, err)
}

func TestNewNotificationProducer_DefaultStream(t *testing.T) {
	p := NewNotificationProducer(nil, "")

	assert.Equal(t, DefaultNotificationStream, p.stream)
}

func TestLockKey(t *testing.T) {
	l := NewDistributedLock(nil, "oauth-refresh", time.Second)

	assert.Equal(t, "lock:oauth-refresh", l.key)
	assert.NotEmpty(t, l.value)
}
