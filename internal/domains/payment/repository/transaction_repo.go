package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"paysync-backend/internal/domains/payment/gateway"
	"paysync-backend/internal/domains/payment/model"
	"paysync-backend/pkg/database"
)

// =====================================================
// POSTGRES TRANSACTION STORE
// =====================================================
type transactionRepository struct {
	pool *pgxpool.Pool
}

func NewTransactionRepository(pool *pgxpool.Pool) TransactionStore {
	return &transactionRepository{pool: pool}
}

const transactionColumns = `
	order_id, txn_id, parent_txn_id, txn_type, payment_status, currency,
	gross_amount, fee, settle_amount, settle_currency, exchange_rate,
	created_at, last_modified, expiration_time, externally_added, memo`

// RecordTransaction inserts the node. The existence check, the graph checks
// and the insert share one transaction; ON CONFLICT and the root index cover
// concurrent syncs and webhook replays.
func (r *transactionRepository) RecordTransaction(
	ctx context.Context,
	orderID string,
	txnType model.TxnType,
	res *gateway.Resource,
	parentTxnID string,
	opts ...RecordOption,
) (string, error) {
	t, err := toTransaction(orderID, txnType, res, parentTxnID, applyOptions(opts))
	if err != nil {
		return "", err
	}
	memoJSON, err := json.Marshal(t.Memo)
	if err != nil {
		return "", fmt.Errorf("failed to marshal memo: %w", err)
	}

	return database.WithTransactionResult(ctx, r.pool, func(tx pgx.Tx) (string, error) {
		var exists bool
		err := tx.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM payment_transactions WHERE order_id = $1 AND txn_id = $2)`,
			orderID, t.TxnID,
		).Scan(&exists)
		if err != nil {
			return "", fmt.Errorf("failed to check transaction %s: %w", t.TxnID, err)
		}
		if exists {
			return t.TxnID, nil
		}
		if err := checkPlacementTx(ctx, tx, t); err != nil {
			return "", err
		}

		query := `
			INSERT INTO payment_transactions (` + transactionColumns + `)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
			ON CONFLICT (order_id, txn_id) DO NOTHING
		`
		_, err = tx.Exec(ctx, query,
			t.OrderID,
			t.TxnID,
			t.ParentTxnID,
			string(t.TxnType),
			t.PaymentStatus,
			t.Currency,
			t.GrossAmount,
			t.Fee,
			t.SettleAmount,
			t.SettleCurrency,
			t.ExchangeRate,
			t.CreatedAt,
			t.LastModified,
			t.ExpirationTime,
			t.ExternallyAdded,
			memoJSON,
		)
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.ConstraintName == rootIndex {
			return "", fmt.Errorf("CREATE %s for order %s: %w", t.TxnID, orderID, model.ErrDuplicateRoot)
		}
		if err != nil {
			return "", fmt.Errorf("failed to record transaction %s: %w", t.TxnID, err)
		}
		return t.TxnID, nil
	})
}

// rootIndex is the partial unique index holding one CREATE per order.
const rootIndex = "uq_payment_transactions_root"

func checkPlacementTx(ctx context.Context, tx pgx.Tx, t *model.Transaction) error {
	var lookupErr error
	parentType := func(txnID string) (model.TxnType, bool) {
		var txnType string
		err := tx.QueryRow(ctx,
			`SELECT txn_type FROM payment_transactions WHERE order_id = $1 AND txn_id = $2`,
			t.OrderID, txnID,
		).Scan(&txnType)
		if err != nil {
			if !errors.Is(err, pgx.ErrNoRows) {
				lookupErr = err
			}
			return "", false
		}
		return model.TxnType(txnType), true
	}
	rootID := func() string {
		var id string
		err := tx.QueryRow(ctx,
			`SELECT txn_id FROM payment_transactions WHERE order_id = $1 AND txn_type = 'CREATE' LIMIT 1`,
			t.OrderID,
		).Scan(&id)
		if err != nil && !errors.Is(err, pgx.ErrNoRows) {
			lookupErr = err
		}
		return id
	}

	err := checkPlacement(t, parentType, rootID)
	if lookupErr != nil {
		return fmt.Errorf("failed to check placement of %s: %w", t.TxnID, lookupErr)
	}
	return err
}

// ListTransactions loads the whole order and sorts in Go; graphs are small.
func (r *transactionRepository) ListTransactions(ctx context.Context, orderID string, types ...model.TxnType) ([]model.Transaction, error) {
	query := `
		SELECT ` + transactionColumns + `
		FROM payment_transactions
		WHERE order_id = $1
		ORDER BY created_at, txn_id
	`
	rows, err := r.pool.Query(ctx, query, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	defer rows.Close()

	var txns []model.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		txns = append(txns, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate transactions: %w", err)
	}

	return model.FilterTransactions(model.SortTransactions(txns), types...), nil
}

func (r *transactionRepository) UpdateParentStatus(ctx context.Context, orderID, txnID, status string, modifiedAt time.Time) error {
	query := `
		UPDATE payment_transactions
		SET payment_status = $1,
			last_modified = $2
		WHERE order_id = $3 AND txn_id = $4
	`
	result, err := r.pool.Exec(ctx, query, status, modifiedAt, orderID, txnID)
	if err != nil {
		return fmt.Errorf("failed to update transaction status: %w", err)
	}
	if result.RowsAffected() == 0 {
		return model.ErrTransactionNotFound
	}
	return nil
}

func (r *transactionRepository) OrderIDFor(ctx context.Context, txnID string) (string, error) {
	var orderID string
	err := r.pool.QueryRow(ctx,
		`SELECT order_id FROM payment_transactions WHERE txn_id = $1 ORDER BY created_at LIMIT 1`,
		txnID,
	).Scan(&orderID)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", model.ErrTransactionNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to resolve order for %s: %w", txnID, err)
	}
	return orderID, nil
}

func (r *transactionRepository) GetTransaction(ctx context.Context, orderID, txnID string) (*model.Transaction, error) {
	query := `
		SELECT ` + transactionColumns + `
		FROM payment_transactions
		WHERE order_id = $1 AND txn_id = $2
	`
	t, err := scanTransaction(r.pool.QueryRow(ctx, query, orderID, txnID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, model.ErrTransactionNotFound
	}
	return t, err
}

func (r *transactionRepository) RootTransaction(ctx context.Context, orderID string) (*model.Transaction, error) {
	query := `
		SELECT ` + transactionColumns + `
		FROM payment_transactions
		WHERE order_id = $1 AND txn_type = $2
		ORDER BY created_at
		LIMIT 1
	`
	t, err := scanTransaction(r.pool.QueryRow(ctx, query, orderID, string(model.TxnTypeCreate)))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, model.ErrRootNotFound
	}
	return t, err
}

func (r *transactionRepository) ListOrdersWithOpenAuthorizations(ctx context.Context, createdBefore time.Time, limit int) ([]string, error) {
	query := `
		SELECT DISTINCT a.order_id
		FROM payment_transactions a
		JOIN payment_transactions c
			ON c.order_id = a.order_id AND c.txn_id = a.parent_txn_id
		WHERE a.txn_type = $1
			AND c.txn_type = $2
			AND a.payment_status = ANY($3)
			AND a.created_at < $4
		ORDER BY a.order_id
		LIMIT $5
	`
	rows, err := r.pool.Query(ctx, query,
		string(model.TxnTypeAuthorize),
		string(model.TxnTypeCreate),
		openAuthorizationStatuses,
		createdBefore,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list open authorizations: %w", err)
	}
	defer rows.Close()

	var orderIDs []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan order id: %w", err)
		}
		orderIDs = append(orderIDs, id)
	}
	return orderIDs, rows.Err()
}

func scanTransaction(row pgx.Row) (*model.Transaction, error) {
	var (
		t        model.Transaction
		txnType  string
		memoJSON []byte
	)
	err := row.Scan(
		&t.OrderID,
		&t.TxnID,
		&t.ParentTxnID,
		&txnType,
		&t.PaymentStatus,
		&t.Currency,
		&t.GrossAmount,
		&t.Fee,
		&t.SettleAmount,
		&t.SettleCurrency,
		&t.ExchangeRate,
		&t.CreatedAt,
		&t.LastModified,
		&t.ExpirationTime,
		&t.ExternallyAdded,
		&memoJSON,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan transaction: %w", err)
	}
	t.TxnType = model.TxnType(txnType)
	if len(memoJSON) > 0 {
		if err := json.Unmarshal(memoJSON, &t.Memo); err != nil {
			return nil, fmt.Errorf("failed to unmarshal memo: %w", err)
		}
	}
	return &t, nil
}
