package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"paysync-backend/internal/domains/payment/model"
)

// =====================================================
// WEBHOOK AUDIT REPOSITORY IMPLEMENTATION
// =====================================================
type webhookRepository struct {
	pool *pgxpool.Pool
}

func NewWebhookRepository(pool *pgxpool.Pool) WebhookRepository {
	return &webhookRepository{pool: pool}
}

func (r *webhookRepository) Save(ctx context.Context, event *model.WebhookEvent) error {
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	if event.ReceivedAt.IsZero() {
		event.ReceivedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO payment_webhook_events (
			id, webhook_id, event_type, resource_id, order_id,
			verification, raw_body, received_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := r.pool.Exec(ctx, query,
		event.ID,
		event.WebhookID,
		event.EventType,
		event.ResourceID,
		event.OrderID,
		event.Verification,
		event.RawBody,
		event.ReceivedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save webhook event: %w", err)
	}
	return nil
}

func (r *webhookRepository) ListRecent(ctx context.Context, eventType string, limit int) ([]*model.WebhookEvent, error) {
	query := `
		SELECT id, webhook_id, event_type, resource_id, order_id,
			verification, raw_body, received_at
		FROM payment_webhook_events
		WHERE ($1 = '' OR event_type = $1)
		ORDER BY received_at DESC
		LIMIT $2
	`
	rows, err := r.pool.Query(ctx, query, eventType, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list webhook events: %w", err)
	}
	defer rows.Close()

	events := []*model.WebhookEvent{}
	for rows.Next() {
		e := &model.WebhookEvent{}
		if err := rows.Scan(
			&e.ID,
			&e.WebhookID,
			&e.EventType,
			&e.ResourceID,
			&e.OrderID,
			&e.Verification,
			&e.RawBody,
			&e.ReceivedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan webhook event: %w", err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}
