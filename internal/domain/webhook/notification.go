package webhook

import (
	"context"
	"encoding/json"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Notification is one provider callback as it was received.
type Notification struct {
	ID         string          `json:"id"`
	Provider   string          `json:"provider"`
	Topic      string          `json:"topic,omitempty"`
	ResourceID string          `json:"resource_id,omitempty"`
	Payload    json.RawMessage `json:"payload"`
	ReceivedAt time.Time       `json:"received_at"`
}

// Journal records notifications for later inspection. Implementations must
// not interpret the payload.
type Journal interface {
	Append(ctx context.Context, n *Notification) error
}

// NewNotification parses what it can from body. Unknown shapes still yield
// a notification carrying the raw payload.
func NewNotification(provider string, body []byte, query map[string]string, now time.Time) *Notification {
	n := &Notification{
		ID:         uuid.NewString(),
		Provider:   provider,
		ReceivedAt: now.UTC(),
	}
	// PagSeguro posts notificationCode/notificationType form-encoded.
	var form url.Values
	if json.Valid(body) {
		n.Payload = append(json.RawMessage(nil), body...)
	} else {
		raw, _ := json.Marshal(string(body))
		n.Payload = raw
		form, _ = url.ParseQuery(strings.TrimSpace(string(body)))
	}

	var shape struct {
		Type   string `json:"type"`
		Topic  string `json:"topic"`
		Action string `json:"action"`
		ID     any    `json:"id"`
		Data   struct {
			ID any `json:"id"`
		} `json:"data"`
		Reference string `json:"reference_id"`
	}
	_ = json.Unmarshal(body, &shape)

	n.Topic = firstNonEmpty(
		shape.Type,
		shape.Topic,
		form.Get("notificationType"),
		query["type"],
		query["topic"],
		query["notificationType"],
	)
	n.ResourceID = firstNonEmpty(
		idString(shape.Data.ID),
		form.Get("notificationCode"),
		query["data.id"],
		query["id"],
		query["notificationCode"],
		idString(shape.ID),
	)
	if n.Topic == "" && strings.HasPrefix(n.ResourceID, "ORDE_") {
		n.Topic = "order"
	}
	return n
}

func idString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		raw, _ := json.Marshal(t)
		return string(raw)
	default:
		return ""
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
