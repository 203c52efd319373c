package idempotency

import (
	"context"
	"time"
)

// Entry is a stored HTTP response keyed by the client's Idempotency-Key.
type Entry struct {
	Key            string    `json:"key"`
	RequestHash    string    `json:"request_hash"`
	ResponseBody   string    `json:"response_body"`
	ResponseStatus int       `json:"response_status"`
	CreatedAt      time.Time `json:"created_at"`
	ExpiresAt      time.Time `json:"expires_at"`
}

// Expired reports whether the entry may no longer be replayed.
func (e *Entry) Expired(now time.Time) bool {
	return !e.ExpiresAt.IsZero() && !now.Before(e.ExpiresAt)
}

// Store persists replayable responses. Get returns (nil, nil) when the key
// is unknown or expired.
type Store interface {
	Get(ctx context.Context, key string) (*Entry, error)
	Set(ctx context.Context, entry *Entry) error
}
