package model

import (
	"errors"
	"regexp"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	"github.com/shopspring/decimal"
)

var amountPattern = regexp.MustCompile(`^\d{1,10}(\.\d{1,2})?$`)

// positiveAmount accepts gateway decimal strings strictly above zero.
var positiveAmount = validation.By(func(value interface{}) error {
	s, _ := value.(string)
	if s == "" {
		return nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return errors.New("must be a decimal amount")
	}
	if !d.IsPositive() {
		return errors.New("must be greater than zero")
	}
	return nil
})

// ========================================
// ADMIN ACTION DTOs
// ========================================

type AuthorizeRequest struct {
	Note string `json:"note"`
}

func (r AuthorizeRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Note, validation.Length(0, 255)),
	)
}

type ReauthorizeRequest struct {
	AuthorizationID string `json:"authorization_id"`
	Amount          string `json:"amount"`
	Note            string `json:"note"`
}

func (r ReauthorizeRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.AuthorizationID, validation.Required.Error("authorization_id is required")),
		validation.Field(&r.Amount,
			validation.Required.Error("amount is required"),
			validation.Match(amountPattern).Error("amount must be a decimal with at most 2 places"),
			positiveAmount,
		),
		validation.Field(&r.Note, validation.Length(0, 255)),
	)
}

type CaptureRequest struct {
	AuthorizationID string `json:"authorization_id"`
	Amount          string `json:"amount"`
	Final           bool   `json:"final"`
	Remaining       bool   `json:"remaining"`
	Note            string `json:"note"`
}

func (r CaptureRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.AuthorizationID, validation.Required.Error("authorization_id is required")),
		validation.Field(&r.Amount,
			validation.When(!r.Remaining,
				validation.Required.Error("amount is required unless capturing the remaining balance"),
				validation.Match(amountPattern).Error("amount must be a decimal with at most 2 places"),
				positiveAmount,
			),
		),
		validation.Field(&r.Note, validation.Length(0, 255)),
	)
}

type RefundRequest struct {
	CaptureID string `json:"capture_id"`
	Amount    string `json:"amount"`
	Full      bool   `json:"full"`
	Note      string `json:"note"`
}

func (r RefundRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.CaptureID, validation.Required.Error("capture_id is required")),
		validation.Field(&r.Amount,
			validation.When(!r.Full,
				validation.Required.Error("amount is required for a partial refund"),
				validation.Match(amountPattern).Error("amount must be a decimal with at most 2 places"),
				positiveAmount,
			),
		),
		validation.Field(&r.Note, validation.Length(0, 255)),
	)
}

type VoidRequest struct {
	AuthorizationID string `json:"authorization_id"`
	Note            string `json:"note"`
}

func (r VoidRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.AuthorizationID, validation.Required.Error("authorization_id is required")),
		validation.Field(&r.Note, validation.Length(0, 255)),
	)
}

// ActionResult is returned by every admin action.
type ActionResult struct {
	OrderID     string       `json:"order_id"`
	Transaction *Transaction `json:"transaction,omitempty"`
	OrderStatus string       `json:"order_status"`
	Message     string       `json:"message"`
}

// TransactionListResponse is the admin view of an order's payment graph.
type TransactionListResponse struct {
	OrderID      string        `json:"order_id"`
	Transactions []Transaction `json:"transactions"`
	Notices      []string      `json:"notices,omitempty"`
	SyncError    string        `json:"sync_error,omitempty"`
}

// ========================================
// CHECKOUT DTOs
// ========================================

type Breakdown struct {
	ItemTotal        string `json:"item_total,omitempty"`
	Shipping         string `json:"shipping,omitempty"`
	Handling         string `json:"handling,omitempty"`
	TaxTotal         string `json:"tax_total,omitempty"`
	Insurance        string `json:"insurance,omitempty"`
	ShippingDiscount string `json:"shipping_discount,omitempty"`
	Discount         string `json:"discount,omitempty"`
}

type LineItem struct {
	Name       string `json:"name"`
	SKU        string `json:"sku,omitempty"`
	Quantity   int    `json:"quantity"`
	UnitAmount string `json:"unit_amount"`
	Tax        string `json:"tax,omitempty"`
}

func (i LineItem) Validate() error {
	return validation.ValidateStruct(&i,
		validation.Field(&i.Name, validation.Required, validation.Length(1, 127)),
		validation.Field(&i.Quantity, validation.Required, validation.Min(1)),
		validation.Field(&i.UnitAmount, validation.Required, validation.Match(amountPattern)),
	)
}

type CreateOrderRequest struct {
	OrderID         string     `json:"order_id"`
	Intent          string     `json:"intent"`
	Currency        string     `json:"currency"`
	Total           string     `json:"total"`
	Breakdown       *Breakdown `json:"breakdown,omitempty"`
	Items           []LineItem `json:"items,omitempty"`
	InvoiceID       string     `json:"invoice_id,omitempty"`
	CardFingerprint string     `json:"card_fingerprint,omitempty"`
}

func (r CreateOrderRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.OrderID, validation.Required.Error("order_id is required")),
		validation.Field(&r.Intent, validation.Required, validation.In(IntentCapture, IntentAuthorize)),
		validation.Field(&r.Currency, validation.Required, is.CurrencyCode),
		validation.Field(&r.Total,
			validation.Required,
			validation.Match(amountPattern).Error("total must be a decimal with at most 2 places"),
			positiveAmount,
		),
		validation.Field(&r.Items),
	)
}

type CreateOrderResponse struct {
	OrderID        string `json:"order_id"`
	GatewayOrderID string `json:"gateway_order_id"`
	Status         string `json:"status"`
	ApproveURL     string `json:"approve_url,omitempty"`
	Reused         bool   `json:"reused"`
	BreakdownDrop  bool   `json:"breakdown_dropped,omitempty"`
}

type CompleteOrderResponse struct {
	OrderID     string       `json:"order_id"`
	Transaction *Transaction `json:"transaction"`
	OrderStatus string       `json:"order_status"`
}
