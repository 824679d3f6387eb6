package webhook

import (
	"context"
	"fmt"
	"slices"
	"time"

	"paysync-backend/internal/domains/payment/model"
	"paysync-backend/internal/domains/payment/repository"
	"paysync-backend/internal/domains/payment/service"
	"paysync-backend/internal/domains/payment/session"
	"paysync-backend/pkg/logger"
)

// changedBy is recorded on status history written by webhooks.
const changedBy = "webhook"

// Deps are the collaborators shared by the event handlers.
type Deps struct {
	Syncer  service.Syncer
	Store   repository.TransactionStore
	Orders  service.OrderStatusUpdater
	Alerter service.Alerter
	Now     func() time.Time
}

// DefaultHandlers is the fixed registry of supported event types.
func DefaultHandlers(deps Deps) []Handler {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	b := base{deps}
	return []Handler{
		&authorizationHandler{b},
		&captureHandler{b},
		&refundHandler{b},
		&checkoutHandler{b},
	}
}

// =====================================================
// SHARED
// =====================================================

type base struct {
	Deps
}

// sync reconciles the order with the gateway. Gateway read failures are
// logged and the event is still applied from its own payload.
func (b base) sync(ctx context.Context, orderID string) error {
	result, err := b.Syncer.Sync(ctx, session.System(changedBy), orderID)
	if err != nil {
		return err
	}
	if result.DetailsError != nil {
		logger.ErrorFields("Webhook sync could not read gateway order", result.DetailsError, map[string]interface{}{
			"order_id": orderID,
		})
	}
	if result.NotFound {
		logger.Warn("Webhook sync found no gateway order", map[string]interface{}{"order_id": orderID})
	}
	return nil
}

// transition moves the order to status when the current status is one of
// from (any status when from is empty). Otherwise only a note is recorded.
func (b base) transition(ctx context.Context, orderID, status, note string, from ...string) error {
	current, err := b.Orders.GetStatus(ctx, orderID)
	if err != nil {
		return err
	}
	if status == "" || current == status || (len(from) > 0 && !slices.Contains(from, current)) {
		return b.Orders.AddNote(ctx, orderID, changedBy, note)
	}
	return b.Orders.SetStatus(ctx, orderID, status, changedBy, note)
}

func (b base) alert(ctx context.Context, kind model.AlertKind, orderID string, event *Event) {
	if b.Alerter == nil {
		return
	}
	alert := model.MerchantAlert{
		Kind:    kind,
		OrderID: orderID,
		Message: fmt.Sprintf("%s received for %s.", event.EventType, event.Resource.ID),
		Details: map[string]string{
			"webhook_id": event.ID,
			"event_type": event.EventType,
			"status":     event.Resource.Status,
		},
		CreatedAt: b.Now().UTC(),
	}
	if err := b.Alerter.Alert(ctx, alert); err != nil {
		logger.Error("Failed to send merchant alert", err)
	}
}

func eventNote(event *Event) string {
	note := fmt.Sprintf("Gateway event %s for %s", event.EventType, event.Resource.ID)
	if event.Resource.Status != "" {
		note += " (" + event.Resource.Status + ")"
	}
	return note + "."
}

// Statuses an order can leave when money first moves.
var unsettled = []string{"", model.OrderStatusPending, model.OrderStatusOnHold}

// =====================================================
// AUTHORIZATIONS
// =====================================================

type authorizationHandler struct{ base }

func (h *authorizationHandler) EventTypes() []string {
	return []string{model.EventAuthorizationCreated, model.EventAuthorizationVoided}
}

func (h *authorizationHandler) Handle(ctx context.Context, orderID string, event *Event) error {
	if err := h.sync(ctx, orderID); err != nil {
		return err
	}
	switch event.EventType {
	case model.EventAuthorizationCreated:
		return h.transition(ctx, orderID, model.OrderStatusOnHold, eventNote(event), "", model.OrderStatusPending)
	default:
		txns, err := h.Store.ListTransactions(ctx, orderID, model.TxnTypeCapture)
		if err != nil {
			return err
		}
		status := model.OrderStatusVoided
		if model.SumGross(txns).IsPositive() {
			status = ""
		}
		return h.transition(ctx, orderID, status, eventNote(event), unsettled...)
	}
}

// =====================================================
// CAPTURES
// =====================================================

type captureHandler struct{ base }

func (h *captureHandler) EventTypes() []string {
	return []string{
		model.EventCaptureCompleted,
		model.EventCapturePending,
		model.EventCaptureDenied,
		model.EventCaptureDeclined,
	}
}

func (h *captureHandler) Handle(ctx context.Context, orderID string, event *Event) error {
	if err := h.sync(ctx, orderID); err != nil {
		return err
	}
	note := eventNote(event)
	switch event.EventType {
	case model.EventCaptureCompleted:
		return h.transition(ctx, orderID, model.OrderStatusProcessing, note, unsettled...)
	case model.EventCapturePending:
		return h.transition(ctx, orderID, model.OrderStatusOnHold, note, "", model.OrderStatusPending)
	default:
		h.alert(ctx, model.AlertPaymentDenied, orderID, event)
		return h.transition(ctx, orderID, model.OrderStatusFailed, note,
			"", model.OrderStatusPending, model.OrderStatusOnHold, model.OrderStatusProcessing)
	}
}

// =====================================================
// REFUNDS AND REVERSALS
// =====================================================

type refundHandler struct{ base }

func (h *refundHandler) EventTypes() []string {
	return []string{model.EventCaptureRefunded, model.EventCaptureReversed}
}

func (h *refundHandler) Handle(ctx context.Context, orderID string, event *Event) error {
	if err := h.sync(ctx, orderID); err != nil {
		return err
	}
	if event.EventType == model.EventCaptureReversed {
		h.alert(ctx, model.AlertPaymentReversed, orderID, event)
	}

	txns, err := h.Store.ListTransactions(ctx, orderID, model.TxnTypeCapture, model.TxnTypeRefund)
	if err != nil {
		return err
	}
	captured := model.SumGross(model.FilterTransactions(txns, model.TxnTypeCapture))
	refunded := model.SumGross(model.FilterTransactions(txns, model.TxnTypeRefund))

	status := model.OrderStatusPartiallyRefunded
	if len(txns) > 0 && model.AmountsEqual(captured, refunded, txns[0].Currency) {
		status = model.OrderStatusRefunded
	}
	if !refunded.IsPositive() {
		// the refund could not be placed in the graph; keep the status
		status = ""
	}
	return h.transition(ctx, orderID, status, eventNote(event))
}

// =====================================================
// CHECKOUT
// =====================================================

type checkoutHandler struct{ base }

func (h *checkoutHandler) EventTypes() []string {
	return []string{
		model.EventCheckoutOrderApproved,
		model.EventCheckoutOrderCompleted,
		model.EventPaymentApprovalReverse,
	}
}

func (h *checkoutHandler) Handle(ctx context.Context, orderID string, event *Event) error {
	if err := h.sync(ctx, orderID); err != nil {
		return err
	}
	if event.EventType == model.EventPaymentApprovalReverse {
		h.alert(ctx, model.AlertPaymentReversed, orderID, event)
		return h.transition(ctx, orderID, model.OrderStatusFailed, eventNote(event), unsettled...)
	}
	return h.transition(ctx, orderID, "", eventNote(event))
}
