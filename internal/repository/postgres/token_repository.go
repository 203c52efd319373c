package postgres

import (
	"context"
	"errors"
	"fmt"

	domainErrors "github.com/dancingpatinacao/checkout/internal/domain/errors"
	"github.com/dancingpatinacao/checkout/internal/domain/oauth"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// TokenRepository stores one OAuth token row per provider.
type TokenRepository struct {
	pool     *pgxpool.Pool
	provider string
}

func NewTokenRepository(pool *pgxpool.Pool, provider string) *TokenRepository {
	return &TokenRepository{pool: pool, provider: provider}
}

func (r *TokenRepository) db(ctx context.Context) DBTX {
	return ConnFromCtx(ctx, r.pool)
}

func (r *TokenRepository) Get(ctx context.Context) (*oauth.Token, error) {
	t := &oauth.Token{}
	var tokenType, scope, publicKey *string
	err := r.db(ctx).QueryRow(ctx,
		`SELECT access_token, refresh_token, user_id, expires_in, created_at, token_type, scope, public_key
		 FROM oauth_tokens WHERE provider = $1`, r.provider,
	).Scan(&t.AccessToken, &t.RefreshToken, &t.UserID, &t.ExpiresIn, &t.CreatedAt, &tokenType, &scope, &publicKey)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domainErrors.ErrTokenNotFound
		}
		return nil, fmt.Errorf("get oauth token: %w", err)
	}
	t.TokenType = deref(tokenType)
	t.Scope = deref(scope)
	t.PublicKey = deref(publicKey)
	return t, nil
}

// Set upserts the token and appends the refresh to oauth_token_events in the
// same transaction.
func (r *TokenRepository) Set(ctx context.Context, t *oauth.Token) error {
	return WithTransaction(ctx, r.pool, func(ctx context.Context) error {
		_, err := r.db(ctx).Exec(ctx,
			`INSERT INTO oauth_tokens (provider, access_token, refresh_token, user_id, expires_in, created_at, token_type, scope, public_key, updated_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW())
			 ON CONFLICT (provider) DO UPDATE SET
			   access_token = EXCLUDED.access_token,
			   refresh_token = EXCLUDED.refresh_token,
			   user_id = EXCLUDED.user_id,
			   expires_in = EXCLUDED.expires_in,
			   created_at = EXCLUDED.created_at,
			   token_type = EXCLUDED.token_type,
			   scope = EXCLUDED.scope,
			   public_key = EXCLUDED.public_key,
			   updated_at = NOW()`,
			r.provider, t.AccessToken, t.RefreshToken, t.UserID, t.ExpiresIn, t.CreatedAt,
			t.TokenType, t.Scope, t.PublicKey,
		)
		if err != nil {
			return fmt.Errorf("upsert oauth token: %w", err)
		}

		_, err = r.db(ctx).Exec(ctx,
			`INSERT INTO oauth_token_events (provider, user_id, expires_in, created_at) VALUES ($1, $2, $3, $4)`,
			r.provider, t.UserID, t.ExpiresIn, t.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("record oauth token event: %w", err)
		}
		return nil
	})
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
