package repository

import (
	"context"
	"database/sql"
	"os"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/lib/pq"
	"github.com/pressly/goose/v3"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"paysync-backend/internal/domains/payment/model"
)

func mustDecimal(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(s)
	require.NoError(t, err)
	return d
}

// postgresPool migrates the database named by POSTGRES_URL and truncates the
// payment tables. Tests using it are skipped when the variable is unset.
func postgresPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	url := os.Getenv("POSTGRES_URL")
	if url == "" {
		t.Skip("POSTGRES_URL not set")
	}

	db, err := sql.Open("postgres", url)
	require.NoError(t, err)
	defer db.Close()
	require.NoError(t, goose.SetDialect("postgres"))
	require.NoError(t, goose.Up(db, "../../../../migrations"))

	pool, err := pgxpool.New(context.Background(), url)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	_, err = pool.Exec(context.Background(), `
		TRUNCATE payment_transactions, payment_webhook_events, order_payment_state, order_status_history
	`)
	require.NoError(t, err)
	return pool
}

func TestPostgresTransactionStore(t *testing.T) {
	runStoreContract(t, func(t *testing.T) TransactionStore {
		return NewTransactionRepository(postgresPool(t))
	})
}

func TestPostgresWebhookAndOrderState(t *testing.T) {
	pool := postgresPool(t)
	ctx := context.Background()

	webhooks := NewWebhookRepository(pool)
	orderID := "ord-1"
	require.NoError(t, webhooks.Save(ctx, &model.WebhookEvent{
		WebhookID: "WH-1", EventType: model.EventCaptureCompleted, ResourceID: "CAP1",
		OrderID: &orderID, Verification: model.VerificationVerified, RawBody: []byte(`{}`),
	}))
	events, err := webhooks.ListRecent(ctx, model.EventCaptureCompleted, 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "CAP1", events[0].ResourceID)

	states := NewOrderStateRepository(pool)
	require.NoError(t, states.SetStatus(ctx, orderID, model.OrderStatusPending, "", "created"))
	require.NoError(t, states.SetStatus(ctx, orderID, model.OrderStatusRefunded, "admin", "refund"))
	status, err := states.GetStatus(ctx, orderID)
	require.NoError(t, err)
	assert.Equal(t, model.OrderStatusRefunded, status)

	history, err := states.ListHistory(ctx, orderID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, model.OrderStatusPending, *history[1].FromStatus)
}
