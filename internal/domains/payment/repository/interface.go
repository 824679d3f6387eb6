package repository

import (
	"context"
	"time"

	"paysync-backend/internal/domains/payment/gateway"
	"paysync-backend/internal/domains/payment/model"
)

// =====================================================
// TRANSACTION STORE INTERFACE
// =====================================================
type TransactionStore interface {
	// RecordTransaction inserts a node of the order's payment graph built from
	// a gateway resource. parentTxnID overrides the resource's "up" link.
	// Inserting an existing (order_id, txn_id) is a no-op returning the id.
	RecordTransaction(ctx context.Context, orderID string, txnType model.TxnType, res *gateway.Resource, parentTxnID string, opts ...RecordOption) (string, error)

	// ListTransactions returns the order's graph parent-before-child,
	// optionally limited to the given types.
	ListTransactions(ctx context.Context, orderID string, types ...model.TxnType) ([]model.Transaction, error)

	// UpdateParentStatus changes only payment_status and last_modified.
	UpdateParentStatus(ctx context.Context, orderID, txnID, status string, modifiedAt time.Time) error

	// OrderIDFor resolves the order owning a gateway transaction id.
	OrderIDFor(ctx context.Context, txnID string) (string, error)

	GetTransaction(ctx context.Context, orderID, txnID string) (*model.Transaction, error)

	// RootTransaction returns the CREATE node of the order.
	RootTransaction(ctx context.Context, orderID string) (*model.Transaction, error)

	// ListOrdersWithOpenAuthorizations returns orders whose primary
	// authorization is still open and was created before the cutoff.
	ListOrdersWithOpenAuthorizations(ctx context.Context, createdBefore time.Time, limit int) ([]string, error)
}

// =====================================================
// WEBHOOK AUDIT REPOSITORY INTERFACE
// =====================================================
type WebhookRepository interface {
	// Save appends an audit row. Rows are never updated.
	Save(ctx context.Context, event *model.WebhookEvent) error

	// ListRecent returns the newest rows first. An empty eventType matches all.
	ListRecent(ctx context.Context, eventType string, limit int) ([]*model.WebhookEvent, error)
}

// =====================================================
// ORDER PAYMENT STATE REPOSITORY INTERFACE
// =====================================================
type OrderStateRepository interface {
	// GetStatus returns the order-visible status, or "" when none was set.
	GetStatus(ctx context.Context, orderID string) (string, error)

	// SetStatus stores the status and appends a history row in one transaction.
	SetStatus(ctx context.Context, orderID, status, changedBy, notes string) error

	// AddNote appends a history row without changing the status.
	AddNote(ctx context.Context, orderID, changedBy, notes string) error

	ListHistory(ctx context.Context, orderID string) ([]*model.OrderStatusHistory, error)
}

// =====================================================
// RECORD OPTIONS
// =====================================================

type recordOptions struct {
	externallyAdded bool
	memo            model.Memo
	now             time.Time
}

type RecordOption func(*recordOptions)

// Externally marks a node discovered by reconciliation rather than created here.
func Externally() RecordOption {
	return func(o *recordOptions) { o.externallyAdded = true }
}

// WithMemo merges annotations into the node's memo.
func WithMemo(memo model.Memo) RecordOption {
	return func(o *recordOptions) {
		if o.memo == nil {
			o.memo = model.Memo{}
		}
		for k, v := range memo {
			o.memo[k] = v
		}
	}
}

// RecordedAt sets the fallback timestamp used when the resource carries none.
func RecordedAt(t time.Time) RecordOption {
	return func(o *recordOptions) { o.now = t }
}

func applyOptions(opts []RecordOption) recordOptions {
	o := recordOptions{now: time.Now().UTC()}
	for _, fn := range opts {
		fn(&o)
	}
	return o
}
