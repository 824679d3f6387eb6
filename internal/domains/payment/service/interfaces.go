package service

import (
	"context"

	"paysync-backend/internal/domains/payment/model"
	"paysync-backend/internal/domains/payment/session"
)

// =====================================================
// COLLABORATORS
// =====================================================

// Alerter notifies the merchant about activity that needs a human.
type Alerter interface {
	Alert(ctx context.Context, alert model.MerchantAlert) error
}

// OrderStatusUpdater owns the order-visible status and its history.
// repository.OrderStateRepository satisfies it.
type OrderStatusUpdater interface {
	GetStatus(ctx context.Context, orderID string) (string, error)
	SetStatus(ctx context.Context, orderID, status, changedBy, notes string) error
	AddNote(ctx context.Context, orderID, changedBy, notes string) error
}

// =====================================================
// SERVICE INTERFACES
// =====================================================

// Syncer aligns the stored graph with the gateway.
type Syncer interface {
	Sync(ctx context.Context, scope session.Scope, orderID string) (*SyncResult, error)
}

type AdminActionService interface {
	// ListTransactions syncs with the gateway, then returns the stored graph.
	ListTransactions(ctx context.Context, scope session.Scope, orderID string) (*model.TransactionListResponse, error)

	Authorize(ctx context.Context, scope session.Scope, orderID string, req model.AuthorizeRequest) (*model.ActionResult, error)
	Reauthorize(ctx context.Context, scope session.Scope, orderID string, req model.ReauthorizeRequest) (*model.ActionResult, error)
	Capture(ctx context.Context, scope session.Scope, orderID string, req model.CaptureRequest) (*model.ActionResult, error)
	Refund(ctx context.Context, scope session.Scope, orderID string, req model.RefundRequest) (*model.ActionResult, error)
	Void(ctx context.Context, scope session.Scope, orderID string, req model.VoidRequest) (*model.ActionResult, error)
}

type CheckoutService interface {
	// CreateOrder submits the order to the gateway once per idempotency key.
	CreateOrder(ctx context.Context, scope session.Scope, req model.CreateOrderRequest) (*model.CreateOrderResponse, error)

	// CompleteOrder captures or authorizes an approved gateway order and
	// records CREATE plus its first child.
	CompleteOrder(ctx context.Context, scope session.Scope, gatewayOrderID string) (*model.CompleteOrderResponse, error)
}
