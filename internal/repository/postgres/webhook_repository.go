package postgres

import (
	"context"
	"fmt"

	"github.com/dancingpatinacao/checkout/internal/domain/webhook"
	"github.com/jackc/pgx/v5/pgxpool"
)

// WebhookRepository journals notifications in webhook_notifications.
type WebhookRepository struct {
	pool *pgxpool.Pool
}

func NewWebhookRepository(pool *pgxpool.Pool) *WebhookRepository {
	return &WebhookRepository{pool: pool}
}

func (r *WebhookRepository) db(ctx context.Context) DBTX {
	return ConnFromCtx(ctx, r.pool)
}

// Append implements webhook.Journal.
func (r *WebhookRepository) Append(ctx context.Context, n *webhook.Notification) error {
	_, err := r.db(ctx).Exec(ctx,
		`INSERT INTO webhook_notifications (id, provider, topic, resource_id, payload, received_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (id) DO NOTHING`,
		n.ID, n.Provider, n.Topic, n.ResourceID, []byte(n.Payload), n.ReceivedAt,
	)
	if err != nil {
		return fmt.Errorf("insert webhook notification: %w", err)
	}
	return nil
}

// ListByResource returns notifications for one provider resource, oldest first.
func (r *WebhookRepository) ListByResource(ctx context.Context, provider, resourceID string) ([]*webhook.Notification, error) {
	rows, err := r.db(ctx).Query(ctx,
		`SELECT id, provider, topic, resource_id, payload, received_at
		 FROM webhook_notifications WHERE provider = $1 AND resource_id = $2
		 ORDER BY received_at`, provider, resourceID,
	)
	if err != nil {
		return nil, fmt.Errorf("list webhook notifications: %w", err)
	}
	defer rows.Close()

	var out []*webhook.Notification
	for rows.Next() {
		n := &webhook.Notification{}
		var payload []byte
		if err := rows.Scan(&n.ID, &n.Provider, &n.Topic, &n.ResourceID, &payload, &n.ReceivedAt); err != nil {
			return nil, fmt.Errorf("scan webhook notification: %w", err)
		}
		n.Payload = payload
		out = append(out, n)
	}
	return out, rows.Err()
}
