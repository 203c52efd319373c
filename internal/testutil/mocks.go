package testutil

import (
	"context"
	"sync"
	"sync/atomic"

	domainErrors "github.com/dancingpatinacao/checkout/internal/domain/errors"
	"github.com/dancingpatinacao/checkout/internal/domain/idempotency"
	"github.com/dancingpatinacao/checkout/internal/domain/oauth"
	"github.com/dancingpatinacao/checkout/internal/domain/webhook"
)

// --- Token Store Mock ---

// MockTokenStore is an in-memory oauth.TokenStore.
type MockTokenStore struct {
	mu    sync.Mutex
	token *oauth.Token

	GetFunc func(ctx context.Context) (*oauth.Token, error)
	SetFunc func(ctx context.Context, t *oauth.Token) error
	Sets    int
}

func NewMockTokenStore(initial *oauth.Token) *MockTokenStore {
	return &MockTokenStore{token: initial}
}

func (m *MockTokenStore) Get(ctx context.Context) (*oauth.Token, error) {
	if m.GetFunc != nil {
		return m.GetFunc(ctx)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.token == nil {
		return nil, domainErrors.ErrTokenNotFound
	}
	cp := *m.token
	return &cp, nil
}

func (m *MockTokenStore) Set(ctx context.Context, t *oauth.Token) error {
	if m.SetFunc != nil {
		return m.SetFunc(ctx, t)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *t
	m.token = &cp
	m.Sets++
	return nil
}

// Token returns the stored token without going through Get.
func (m *MockTokenStore) Token() *oauth.Token {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.token
}

// --- OAuth Client Mock ---

// MockOAuthClient records calls to the provider's token endpoint.
type MockOAuthClient struct {
	ExchangeFunc func(ctx context.Context, code, redirectURI string) (*oauth.Token, error)
	RefreshFunc  func(ctx context.Context, refreshToken string) (*oauth.Token, error)

	exchanges atomic.Int32
	refreshes atomic.Int32
}

func (m *MockOAuthClient) AuthorizationURL(state, redirectURI string) string {
	return "https://auth.example/authorization?state=" + state + "&redirect_uri=" + redirectURI
}

func (m *MockOAuthClient) Exchange(ctx context.Context, code, redirectURI string) (*oauth.Token, error) {
	m.exchanges.Add(1)
	if m.ExchangeFunc != nil {
		return m.ExchangeFunc(ctx, code, redirectURI)
	}
	return &oauth.Token{AccessToken: "APP_USR-exchanged", RefreshToken: "TG-refresh", ExpiresIn: 3600}, nil
}

func (m *MockOAuthClient) Refresh(ctx context.Context, refreshToken string) (*oauth.Token, error) {
	m.refreshes.Add(1)
	if m.RefreshFunc != nil {
		return m.RefreshFunc(ctx, refreshToken)
	}
	return &oauth.Token{AccessToken: "APP_USR-refreshed", RefreshToken: "TG-next", ExpiresIn: 3600}, nil
}

func (m *MockOAuthClient) Exchanges() int { return int(m.exchanges.Load()) }
func (m *MockOAuthClient) Refreshes() int { return int(m.refreshes.Load()) }

// --- Webhook Journal Mock ---

type MockJournal struct {
	mu            sync.Mutex
	notifications []*webhook.Notification

	AppendFunc func(ctx context.Context, n *webhook.Notification) error
}

func NewMockJournal() *MockJournal {
	return &MockJournal{}
}

func (m *MockJournal) Append(ctx context.Context, n *webhook.Notification) error {
	if m.AppendFunc != nil {
		return m.AppendFunc(ctx, n)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.notifications = append(m.notifications, n)
	return nil
}

func (m *MockJournal) Notifications() []*webhook.Notification {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*webhook.Notification(nil), m.notifications...)
}

// --- Idempotency Store Mock ---

type MockIdempotencyStore struct {
	mu      sync.Mutex
	entries map[string]*idempotency.Entry

	GetFunc func(ctx context.Context, key string) (*idempotency.Entry, error)
}

func NewMockIdempotencyStore() *MockIdempotencyStore {
	return &MockIdempotencyStore{entries: make(map[string]*idempotency.Entry)}
}

func (m *MockIdempotencyStore) Get(ctx context.Context, key string) (*idempotency.Entry, error) {
	if m.GetFunc != nil {
		return m.GetFunc(ctx, key)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[key]
	if !ok {
		return nil, nil
	}
	return e, nil
}

func (m *MockIdempotencyStore) Set(ctx context.Context, e *idempotency.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.entries[e.Key]; !exists {
		m.entries[e.Key] = e
	}
	return nil
}

func (m *MockIdempotencyStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}
