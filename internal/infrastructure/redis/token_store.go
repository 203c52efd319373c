package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	domainErrors "github.com/dancingpatinacao/checkout/internal/domain/errors"
	"github.com/dancingpatinacao/checkout/internal/domain/oauth"
	"github.com/redis/go-redis/v9"
)

const defaultTokenKey = "oauth:mercadopago:token"

// TokenStore keeps the OAuth token as a JSON string under a single key.
type TokenStore struct {
	client redis.Cmdable
	key    string
}

func NewTokenStore(client redis.Cmdable, key string) *TokenStore {
	if key == "" {
		key = defaultTokenKey
	}
	return &TokenStore{client: client, key: key}
}

func (s *TokenStore) Get(ctx context.Context) (*oauth.Token, error) {
	raw, err := s.client.Get(ctx, s.key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, domainErrors.ErrTokenNotFound
		}
		return nil, fmt.Errorf("get token: %w", err)
	}

	var tok oauth.Token
	if err := json.Unmarshal(raw, &tok); err != nil {
		return nil, fmt.Errorf("decode token: %w", err)
	}
	return &tok, nil
}

// Set replaces the stored token. The key has no TTL; expiry is tracked by
// the token itself so an expired token can still be refreshed.
func (s *TokenStore) Set(ctx context.Context, tok *oauth.Token) error {
	raw, err := json.Marshal(tok)
	if err != nil {
		return fmt.Errorf("encode token: %w", err)
	}
	if err := s.client.Set(ctx, s.key, raw, 0).Err(); err != nil {
		return fmt.Errorf("set token: %w", err)
	}
	return nil
}
