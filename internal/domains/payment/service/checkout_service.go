package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"paysync-backend/internal/domains/payment/gateway"
	"paysync-backend/internal/domains/payment/model"
	"paysync-backend/internal/domains/payment/repository"
	"paysync-backend/internal/domains/payment/session"
	"paysync-backend/pkg/logger"
)

// =====================================================
// CHECKOUT SERVICE IMPLEMENTATION
// =====================================================
type checkoutService struct {
	store    repository.TransactionStore
	gateways gateway.Provider
	scopes   *session.Store
	orders   OrderStatusUpdater
	alerter  Alerter
	now      func() time.Time
}

func NewCheckoutService(
	store repository.TransactionStore,
	gateways gateway.Provider,
	scopes *session.Store,
	orders OrderStatusUpdater,
	alerter Alerter,
) CheckoutService {
	return &checkoutService{
		store:    store,
		gateways: gateways,
		scopes:   scopes,
		orders:   orders,
		alerter:  alerter,
		now:      time.Now,
	}
}

// =====================================================
// CREATE ORDER
// =====================================================

// CreateOrder submits the order to the gateway. Re-submitting an unchanged
// order from the same session returns the gateway order created before.
func (s *checkoutService) CreateOrder(ctx context.Context, scope session.Scope, req model.CreateOrderRequest) (*model.CreateOrderResponse, error) {
	if err := scope.Validate(); err != nil {
		return nil, model.NewInvalidRequestError(err)
	}
	if err := req.Validate(); err != nil {
		return nil, model.NewInvalidRequestError(err)
	}
	// CREATE is recorded at completion, so a root means the order was already paid
	if _, err := s.store.RootTransaction(ctx, req.OrderID); err == nil {
		return nil, model.NewOrderAlreadyPaidError(req.OrderID)
	} else if !errors.Is(err, model.ErrRootNotFound) {
		return nil, fmt.Errorf("failed to load order root: %w", err)
	}

	completed, err := s.scopes.CompletedOrders(ctx, scope.SessionID)
	if err != nil {
		return nil, err
	}
	key, err := IdempotencyKey(req, scope.SessionID, completed, req.CardFingerprint)
	if err != nil {
		return nil, err
	}

	state, err := s.scopes.Checkout(ctx, scope.SessionID)
	if err != nil {
		return nil, err
	}
	if state != nil && state.IdempotencyKey == key && state.GatewayOrderID != "" {
		logger.Debug("Reusing gateway order " + state.GatewayOrderID + " for unchanged checkout")
		return &model.CreateOrderResponse{
			OrderID:        req.OrderID,
			GatewayOrderID: state.GatewayOrderID,
			Status:         model.GatewayStatusCreated,
			ApproveURL:     state.ApproveURL,
			Reused:         true,
		}, nil
	}

	unit, dropped, err := buildPurchaseUnit(req)
	if err != nil {
		return nil, model.NewInvalidRequestError(err)
	}
	if dropped {
		s.breakdownMismatch(ctx, req)
	}

	order, err := s.gateways.ForSession(scope.SessionID).CreateOrder(ctx, gateway.CreateOrderRequest{
		Intent:        req.Intent,
		PurchaseUnits: []gateway.PurchaseUnitCreate{unit},
	}, key)
	if err != nil {
		return nil, gatewayFailure(ctx, s.alerter, req.OrderID, "create order", err)
	}

	err = s.scopes.SaveCheckout(ctx, scope.SessionID, session.CheckoutState{
		IdempotencyKey: key,
		GatewayOrderID: order.ID,
		OrderID:        req.OrderID,
		Intent:         req.Intent,
		ApproveURL:     order.ApproveURL(),
		InvoiceID:      req.InvoiceID,
	})
	if err != nil {
		return nil, err
	}

	note := fmt.Sprintf("Gateway order %s created.", order.ID)
	if err := s.orders.SetStatus(ctx, req.OrderID, model.OrderStatusPending, "", note); err != nil {
		return nil, err
	}

	logger.Info("Gateway order created", map[string]interface{}{
		"order_id":         req.OrderID,
		"gateway_order_id": order.ID,
		"intent":           req.Intent,
	})
	return &model.CreateOrderResponse{
		OrderID:        req.OrderID,
		GatewayOrderID: order.ID,
		Status:         order.Status,
		ApproveURL:     order.ApproveURL(),
		BreakdownDrop:  dropped,
	}, nil
}

// IdempotencyKey is the hex sha256 over the canonical JSON of the order, the
// session, the session's completed-order counter and the card fingerprint.
func IdempotencyKey(req model.CreateOrderRequest, sessionID string, completedOrders int64, cardFingerprint string) (string, error) {
	req.CardFingerprint = ""
	payload, err := json.Marshal(struct {
		Order     model.CreateOrderRequest `json:"order"`
		Session   string                   `json:"session"`
		Completed string                   `json:"completed"`
		Card      string                   `json:"card,omitempty"`
	}{
		Order:     req,
		Session:   sessionID,
		Completed: strconv.FormatInt(completedOrders, 10),
		Card:      cardFingerprint,
	})
	if err != nil {
		return "", fmt.Errorf("failed to encode idempotency payload: %w", err)
	}
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:]), nil
}

// buildPurchaseUnit maps the request to the gateway shape. When the breakdown
// does not add up to the total, breakdown and items are left out and dropped
// is true.
func buildPurchaseUnit(req model.CreateOrderRequest) (unit gateway.PurchaseUnitCreate, dropped bool, err error) {
	currency := req.Currency
	total, err := model.ParseCurrencyAmount(req.Total, currency)
	if err != nil {
		return unit, false, err
	}
	unit = gateway.PurchaseUnitCreate{
		ReferenceID: req.OrderID,
		CustomID:    req.OrderID,
		InvoiceID:   req.InvoiceID,
		Amount: gateway.AmountWithBreakdown{
			CurrencyCode: currency,
			Value:        model.FormatAmount(total, currency),
		},
	}
	if req.Breakdown == nil {
		return unit, false, nil
	}

	b := req.Breakdown
	parts := map[string]*decimal.Decimal{}
	for name, value := range map[string]string{
		"item_total":        b.ItemTotal,
		"shipping":          b.Shipping,
		"handling":          b.Handling,
		"tax_total":         b.TaxTotal,
		"insurance":         b.Insurance,
		"discount":          b.Discount,
		"shipping_discount": b.ShippingDiscount,
	} {
		if value == "" {
			continue
		}
		d, err := model.ParseAmount(value)
		if err != nil {
			return unit, false, fmt.Errorf("breakdown %s: %w", name, err)
		}
		parts[name] = &d
	}

	sum := decimal.Zero
	for _, name := range []string{"item_total", "shipping", "handling", "tax_total", "insurance"} {
		if d := parts[name]; d != nil {
			sum = sum.Add(*d)
		}
	}
	for _, name := range []string{"discount", "shipping_discount"} {
		if d := parts[name]; d != nil {
			sum = sum.Sub(*d)
		}
	}
	if !model.AmountsEqual(sum, total, currency) {
		return unit, true, nil
	}

	money := func(name string) *gateway.Money {
		d := parts[name]
		if d == nil {
			return nil
		}
		return &gateway.Money{CurrencyCode: currency, Value: model.FormatAmount(*d, currency)}
	}
	unit.Amount.Breakdown = &gateway.AmountBreakdown{
		ItemTotal:        money("item_total"),
		Shipping:         money("shipping"),
		Handling:         money("handling"),
		TaxTotal:         money("tax_total"),
		Insurance:        money("insurance"),
		Discount:         money("discount"),
		ShippingDiscount: money("shipping_discount"),
	}
	for _, item := range req.Items {
		unitAmount, err := model.ParseAmount(item.UnitAmount)
		if err != nil {
			return unit, false, fmt.Errorf("item %s: %w", item.Name, err)
		}
		gi := gateway.Item{
			Name:       item.Name,
			SKU:        item.SKU,
			Quantity:   strconv.Itoa(item.Quantity),
			UnitAmount: gateway.Money{CurrencyCode: currency, Value: model.FormatAmount(unitAmount, currency)},
		}
		if item.Tax != "" {
			tax, err := model.ParseAmount(item.Tax)
			if err != nil {
				return unit, false, fmt.Errorf("item %s tax: %w", item.Name, err)
			}
			gi.Tax = &gateway.Money{CurrencyCode: currency, Value: model.FormatAmount(tax, currency)}
		}
		unit.Items = append(unit.Items, gi)
	}
	return unit, false, nil
}

func (s *checkoutService) breakdownMismatch(ctx context.Context, req model.CreateOrderRequest) {
	logger.Warn("Order breakdown does not match total; submitting without line items", map[string]interface{}{
		"order_id": req.OrderID,
		"total":    req.Total,
		"currency": req.Currency,
	})
	if s.alerter == nil {
		return
	}
	err := s.alerter.Alert(ctx, model.MerchantAlert{
		Kind:    model.AlertBreakdownMismatch,
		OrderID: req.OrderID,
		Message: "The order total did not match its line items and was sent to the payment gateway without the breakdown.",
		Details: map[string]string{
			"total":    req.Total,
			"currency": req.Currency,
		},
		CreatedAt: s.now().UTC(),
	})
	if err != nil {
		logger.Error("Failed to send merchant alert", err)
	}
}

// duplicatePayment tells the merchant a second gateway order was paid for a
// store order that already had one.
func (s *checkoutService) duplicatePayment(ctx context.Context, orderID, gatewayOrderID string) {
	logger.Warn("Second gateway order completed for an already paid order", map[string]interface{}{
		"order_id":         orderID,
		"gateway_order_id": gatewayOrderID,
	})
	if s.alerter == nil {
		return
	}
	err := s.alerter.Alert(ctx, model.MerchantAlert{
		Kind:    model.AlertDuplicatePayment,
		OrderID: orderID,
		Message: "A second payment was completed for this order and was not recorded. Review it in the gateway dashboard.",
		Details: map[string]string{
			"gateway_order_id": gatewayOrderID,
		},
		CreatedAt: s.now().UTC(),
	})
	if err != nil {
		logger.Error("Failed to send merchant alert", err)
	}
}

// =====================================================
// COMPLETE ORDER
// =====================================================

// CompleteOrder captures or authorizes the approved gateway order and records
// the CREATE node with its first child.
func (s *checkoutService) CompleteOrder(ctx context.Context, scope session.Scope, gatewayOrderID string) (*model.CompleteOrderResponse, error) {
	if err := scope.Validate(); err != nil {
		return nil, model.NewInvalidRequestError(err)
	}
	state, err := s.scopes.Checkout(ctx, scope.SessionID)
	if err != nil {
		return nil, err
	}
	if state == nil || state.GatewayOrderID != gatewayOrderID {
		return nil, model.NewPaymentError(model.ErrCodeOrderNotFound,
			"This checkout session has no pending order "+gatewayOrderID, model.ErrOrderNotFound)
	}

	client := s.gateways.ForSession(scope.SessionID)
	requestID := state.IdempotencyKey + "-complete"
	var order *gateway.Order
	if state.Intent == model.IntentAuthorize {
		order, err = client.AuthorizeOrder(ctx, gatewayOrderID, requestID)
	} else {
		order, err = client.CaptureOrder(ctx, gatewayOrderID, requestID)
	}
	if err != nil {
		return nil, gatewayFailure(ctx, s.alerter, state.OrderID, "complete order", err)
	}

	now := s.now().UTC()
	rootRes := order.AsResource()
	_, err = s.store.RecordTransaction(ctx, state.OrderID, model.TxnTypeCreate, &rootRes, "",
		repository.WithMemo(model.Memo{
			model.MemoSource: model.SourceCheckout,
			model.MemoIntent: state.Intent,
		}),
		repository.RecordedAt(now),
	)
	if errors.Is(err, model.ErrDuplicateRoot) {
		s.duplicatePayment(ctx, state.OrderID, order.ID)
		return nil, model.NewOrderAlreadyPaidError(state.OrderID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to record order: %w", err)
	}

	var (
		child   *gateway.Resource
		txnType model.TxnType
	)
	if state.Intent == model.IntentAuthorize {
		if auths := order.Authorizations(); len(auths) > 0 {
			child, txnType = &auths[0], model.TxnTypeAuthorize
		}
	} else if captures := order.Captures(); len(captures) > 0 {
		child, txnType = &captures[0], model.TxnTypeCapture
	}
	if child == nil {
		return nil, gatewayFailure(ctx, s.alerter, state.OrderID, "complete order", fmt.Errorf("gateway order %s returned no payment", order.ID))
	}

	id, err := s.store.RecordTransaction(ctx, state.OrderID, txnType, child, order.ID,
		repository.WithMemo(model.Memo{model.MemoSource: model.SourceCheckout}),
		repository.RecordedAt(now),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to record %s: %w", txnType, err)
	}
	txn, err := s.store.GetTransaction(ctx, state.OrderID, id)
	if err != nil {
		return nil, err
	}

	status := checkoutOrderStatus(txnType, child.Status)
	note := fmt.Sprintf("Payment %s %s (%s %s %s).", txnType, child.Status, id, model.FormatAmount(txn.GrossAmount, txn.Currency), txn.Currency)
	if err := s.orders.SetStatus(ctx, state.OrderID, status, "", note); err != nil {
		return nil, err
	}

	if _, err := s.scopes.IncrementCompleted(ctx, scope.SessionID); err != nil {
		logger.Error("Failed to bump completed-order counter", err)
	}
	if err := s.scopes.ClearCheckout(ctx, scope.SessionID); err != nil {
		logger.Error("Failed to clear checkout state", err)
	}

	return &model.CompleteOrderResponse{
		OrderID:     state.OrderID,
		Transaction: txn,
		OrderStatus: status,
	}, nil
}

// checkoutOrderStatus maps the first payment's gateway status to the order-visible status.
func checkoutOrderStatus(txnType model.TxnType, gatewayStatus string) string {
	switch gatewayStatus {
	case model.GatewayStatusDeclined, model.GatewayStatusDenied, model.GatewayStatusFailed:
		return model.OrderStatusFailed
	case model.GatewayStatusPending:
		return model.OrderStatusOnHold
	}
	if txnType == model.TxnTypeAuthorize {
		return model.OrderStatusOnHold
	}
	return model.OrderStatusProcessing
}
