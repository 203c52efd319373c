package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dancingpatinacao/checkout/internal/domain/idempotency"
	"github.com/redis/go-redis/v9"
)

// IdempotencyStore keeps replayable responses with a Redis TTL.
type IdempotencyStore struct {
	client redis.Cmdable
	prefix string
}

func NewIdempotencyStore(client redis.Cmdable) *IdempotencyStore {
	return &IdempotencyStore{client: client, prefix: "idempotency:"}
}

func (s *IdempotencyStore) Get(ctx context.Context, key string) (*idempotency.Entry, error) {
	raw, err := s.client.Get(ctx, s.prefix+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("get idempotency key: %w", err)
	}

	var e idempotency.Entry
	if err := json.Unmarshal(raw, &e); err != nil {
		return nil, fmt.Errorf("decode idempotency entry: %w", err)
	}
	if e.Expired(time.Now()) {
		return nil, nil
	}
	return &e, nil
}

// Set stores the first response for a key. Later writes for the same key
// are ignored.
func (s *IdempotencyStore) Set(ctx context.Context, e *idempotency.Entry) error {
	raw, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode idempotency entry: %w", err)
	}
	ttl := time.Until(e.ExpiresAt)
	if ttl <= 0 {
		return nil
	}
	if err := s.client.SetNX(ctx, s.prefix+e.Key, raw, ttl).Err(); err != nil {
		return fmt.Errorf("set idempotency key: %w", err)
	}
	return nil
}
