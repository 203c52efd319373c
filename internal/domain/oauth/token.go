package oauth

import (
	"context"
	"time"
)

// State is the lifecycle position of the stored token.
type State string

const (
	StateValid            State = "valid"
	StateExpiredOrMissing State = "expired_or_missing"
)

// Token is an OAuth grant as returned by the provider's token endpoint and
// persisted by a TokenStore. The JSON form is the on-disk format.
type Token struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	UserID       int64     `json:"user_id"`
	ExpiresIn    int64     `json:"expires_in"`
	CreatedAt    time.Time `json:"created_at"`
	TokenType    string    `json:"token_type,omitempty"`
	Scope        string    `json:"scope,omitempty"`
	PublicKey    string    `json:"public_key,omitempty"`
}

// ExpiresAt returns when the access token stops being valid.
func (t *Token) ExpiresAt() time.Time {
	return t.CreatedAt.Add(time.Duration(t.ExpiresIn) * time.Second)
}

// StateAt reports whether the token can still be used at now.
func (t *Token) StateAt(now time.Time) State {
	if t == nil || t.AccessToken == "" {
		return StateExpiredOrMissing
	}
	if t.ExpiresIn > 0 && !now.Before(t.ExpiresAt()) {
		return StateExpiredOrMissing
	}
	return StateValid
}

// ExpiresWithin reports whether the token expires before now+window.
func (t *Token) ExpiresWithin(now time.Time, window time.Duration) bool {
	if t == nil || t.ExpiresIn <= 0 {
		return false
	}
	return !now.Add(window).Before(t.ExpiresAt())
}

// CanRefresh reports whether a refresh grant can be attempted.
func (t *Token) CanRefresh() bool {
	return t != nil && t.RefreshToken != ""
}

// TokenStore persists the single OAuth grant of the application.
// Get returns errors.ErrTokenNotFound when nothing is stored. Implementations
// must be safe for concurrent use; Set replaces the stored token wholesale.
type TokenStore interface {
	Get(ctx context.Context) (*Token, error)
	Set(ctx context.Context, token *Token) error
}
