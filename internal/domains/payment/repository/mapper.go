package repository

import (
	"fmt"

	"github.com/shopspring/decimal"

	"paysync-backend/internal/domains/payment/gateway"
	"paysync-backend/internal/domains/payment/model"
)

// toTransaction flattens a gateway resource into a graph node.
func toTransaction(orderID string, txnType model.TxnType, res *gateway.Resource, parentTxnID string, o recordOptions) (*model.Transaction, error) {
	if res == nil || res.ID == "" {
		return nil, fmt.Errorf("record %s for order %s: resource has no id", txnType, orderID)
	}
	if !validTxnType(txnType) {
		return nil, model.ErrInvalidTxnType
	}

	t := &model.Transaction{
		OrderID:         orderID,
		TxnID:           res.ID,
		TxnType:         txnType,
		PaymentStatus:   res.Status,
		ExternallyAdded: o.externallyAdded,
		Memo:            model.Memo{},
		ExpirationTime:  res.ExpirationTime,
	}

	if txnType != model.TxnTypeCreate {
		parent := parentTxnID
		if parent == "" {
			parent = res.UpID()
		}
		if parent == "" {
			return nil, fmt.Errorf("%s %s: %w", txnType, res.ID, model.ErrMissingParent)
		}
		t.ParentTxnID = &parent
	}

	if res.Amount != nil {
		gross, err := model.ParseAmount(res.Amount.Value)
		if err != nil {
			return nil, err
		}
		t.Currency = res.Amount.CurrencyCode
		t.GrossAmount = gross
	}
	t.SettleCurrency = t.Currency
	t.SettleAmount = t.GrossAmount
	t.ExchangeRate = decimal.NewFromInt(1)

	breakdown := res.SellerReceivableBreakdown
	if breakdown == nil {
		breakdown = res.SellerPayableBreakdown
	}
	if breakdown != nil {
		if err := applyBreakdown(t, breakdown); err != nil {
			return nil, err
		}
	}

	t.CreatedAt = o.now
	if res.CreateTime != nil {
		t.CreatedAt = res.CreateTime.UTC()
	}
	t.LastModified = t.CreatedAt
	if res.UpdateTime != nil {
		t.LastModified = res.UpdateTime.UTC()
	}

	if res.FinalCapture != nil && txnType == model.TxnTypeCapture {
		t.Memo[model.MemoFinalCapture] = *res.FinalCapture
	}
	if res.InvoiceID != "" {
		t.Memo[model.MemoInvoiceID] = res.InvoiceID
	}
	if res.StatusDetails != nil && res.StatusDetails.Reason != "" {
		t.Memo[model.MemoStatusReason] = res.StatusDetails.Reason
	}
	for k, v := range o.memo {
		t.Memo[k] = v
	}
	return t, nil
}

func applyBreakdown(t *model.Transaction, b *gateway.SellerBreakdown) error {
	if b.PayPalFee != nil {
		fee, err := model.ParseAmount(b.PayPalFee.Value)
		if err != nil {
			return err
		}
		t.Fee = fee
		t.SettleAmount = t.GrossAmount.Sub(fee)
	}
	settled := b.ReceivableAmount
	if settled == nil {
		settled = b.NetAmount
	}
	if settled != nil {
		amount, err := model.ParseAmount(settled.Value)
		if err != nil {
			return err
		}
		t.SettleAmount = amount
		t.SettleCurrency = settled.CurrencyCode
	}
	if b.ExchangeRate != nil && b.ExchangeRate.Value != "" {
		rate, err := decimal.NewFromString(b.ExchangeRate.Value)
		if err != nil {
			return fmt.Errorf("invalid exchange rate %q: %w", b.ExchangeRate.Value, err)
		}
		t.ExchangeRate = rate
	}
	return nil
}

func validTxnType(t model.TxnType) bool {
	for _, v := range model.ValidTxnTypes {
		if v == t {
			return true
		}
	}
	return false
}

// openAuthorizationStatuses are authorization statuses that can still be captured.
var openAuthorizationStatuses = []string{
	model.GatewayStatusCreated,
	model.GatewayStatusPending,
	model.GatewayStatusPartiallyCaptured,
}

func isOpenAuthorization(status string) bool {
	for _, s := range openAuthorizationStatuses {
		if s == status {
			return true
		}
	}
	return false
}

// checkPlacement enforces the graph shape for a new node: one CREATE root per
// order, and every other node hangs off an existing node of the same order
// with a compatible type.
func checkPlacement(t *model.Transaction, parentType func(txnID string) (model.TxnType, bool), rootID func() string) error {
	if t.TxnType == model.TxnTypeCreate {
		if existing := rootID(); existing != "" && existing != t.TxnID {
			return fmt.Errorf("CREATE %s for order %s (root is %s): %w", t.TxnID, t.OrderID, existing, model.ErrDuplicateRoot)
		}
		return nil
	}
	parent := t.Parent()
	pt, ok := parentType(parent)
	if !ok {
		return fmt.Errorf("%s %s: parent %s not recorded for order %s: %w", t.TxnType, t.TxnID, parent, t.OrderID, model.ErrMissingParent)
	}
	if !model.CanParent(pt, t.TxnType) {
		return fmt.Errorf("%s %s under %s %s: %w", t.TxnType, t.TxnID, pt, parent, model.ErrParentTypeMismatch)
	}
	return nil
}
