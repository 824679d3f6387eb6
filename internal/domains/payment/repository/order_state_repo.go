package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"paysync-backend/internal/domains/payment/model"
	"paysync-backend/pkg/database"
)

// =====================================================
// ORDER PAYMENT STATE REPOSITORY IMPLEMENTATION
// =====================================================
type orderStateRepository struct {
	pool *pgxpool.Pool
}

func NewOrderStateRepository(pool *pgxpool.Pool) OrderStateRepository {
	return &orderStateRepository{pool: pool}
}

func (r *orderStateRepository) GetStatus(ctx context.Context, orderID string) (string, error) {
	var status string
	err := r.pool.QueryRow(ctx,
		`SELECT status FROM order_payment_state WHERE order_id = $1`,
		orderID,
	).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get order status: %w", err)
	}
	return status, nil
}

// SetStatus locks the state row so concurrent transitions record a correct from_status.
func (r *orderStateRepository) SetStatus(ctx context.Context, orderID, status, changedBy, notes string) error {
	return database.WithTransaction(ctx, r.pool, func(tx pgx.Tx) error {
		var from *string
		var current string
		err := tx.QueryRow(ctx,
			`SELECT status FROM order_payment_state WHERE order_id = $1 FOR UPDATE`,
			orderID,
		).Scan(&current)
		switch {
		case errors.Is(err, pgx.ErrNoRows):
		case err != nil:
			return fmt.Errorf("failed to lock order state: %w", err)
		default:
			from = &current
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO order_payment_state (order_id, status, updated_at)
			VALUES ($1, $2, NOW())
			ON CONFLICT (order_id) DO UPDATE
			SET status = EXCLUDED.status, updated_at = NOW()
		`, orderID, status)
		if err != nil {
			return fmt.Errorf("failed to set order status: %w", err)
		}

		return insertHistory(ctx, tx, orderID, from, status, changedBy, notes)
	})
}

func (r *orderStateRepository) AddNote(ctx context.Context, orderID, changedBy, notes string) error {
	return database.WithTransaction(ctx, r.pool, func(tx pgx.Tx) error {
		var current string
		err := tx.QueryRow(ctx,
			`SELECT status FROM order_payment_state WHERE order_id = $1`,
			orderID,
		).Scan(&current)
		if err != nil && !errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("failed to get order status: %w", err)
		}
		var from *string
		if current != "" {
			from = &current
		}
		return insertHistory(ctx, tx, orderID, from, current, changedBy, notes)
	})
}

func (r *orderStateRepository) ListHistory(ctx context.Context, orderID string) ([]*model.OrderStatusHistory, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, order_id, from_status, to_status, changed_by, notes, changed_at
		FROM order_status_history
		WHERE order_id = $1
		ORDER BY changed_at, id
	`, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to list order history: %w", err)
	}
	defer rows.Close()

	history := []*model.OrderStatusHistory{}
	for rows.Next() {
		h := &model.OrderStatusHistory{}
		if err := rows.Scan(&h.ID, &h.OrderID, &h.FromStatus, &h.ToStatus, &h.ChangedBy, &h.Notes, &h.ChangedAt); err != nil {
			return nil, fmt.Errorf("failed to scan order history: %w", err)
		}
		history = append(history, h)
	}
	return history, rows.Err()
}

func insertHistory(ctx context.Context, tx pgx.Tx, orderID string, from *string, to, changedBy, notes string) error {
	var by *string
	if changedBy != "" {
		by = &changedBy
	}
	_, err := tx.Exec(ctx, `
		INSERT INTO order_status_history (id, order_id, from_status, to_status, changed_by, notes, changed_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
	`, uuid.New(), orderID, from, to, by, notes)
	if err != nil {
		return fmt.Errorf("failed to insert order history: %w", err)
	}
	return nil
}
