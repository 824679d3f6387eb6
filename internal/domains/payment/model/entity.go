package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// =====================================================
// TRANSACTION (node of an order's payment graph)
// =====================================================

// Memo holds free-form annotations stored alongside a transaction.
type Memo map[string]interface{}

type Transaction struct {
	OrderID         string          `json:"order_id" db:"order_id"`
	TxnID           string          `json:"txn_id" db:"txn_id"`
	ParentTxnID     *string         `json:"parent_txn_id,omitempty" db:"parent_txn_id"`
	TxnType         TxnType         `json:"txn_type" db:"txn_type"`
	PaymentStatus   string          `json:"payment_status" db:"payment_status"`
	Currency        string          `json:"currency" db:"currency"`
	GrossAmount     decimal.Decimal `json:"gross_amount" db:"gross_amount"`
	Fee             decimal.Decimal `json:"fee" db:"fee"`
	SettleAmount    decimal.Decimal `json:"settle_amount" db:"settle_amount"`
	SettleCurrency  string          `json:"settle_currency" db:"settle_currency"`
	ExchangeRate    decimal.Decimal `json:"exchange_rate" db:"exchange_rate"`
	CreatedAt       time.Time       `json:"created_at" db:"created_at"`
	LastModified    time.Time       `json:"last_modified" db:"last_modified"`
	ExpirationTime  *time.Time      `json:"expiration_time,omitempty" db:"expiration_time"`
	ExternallyAdded bool            `json:"externally_added" db:"externally_added"`
	Memo            Memo            `json:"memo,omitempty" db:"memo"`
}

// Parent returns the parent txn id or "" for the root.
func (t *Transaction) Parent() string {
	if t.ParentTxnID == nil {
		return ""
	}
	return *t.ParentTxnID
}

func (t *Transaction) IsRoot() bool {
	return t.TxnType == TxnTypeCreate
}

func (t *Transaction) IsVoided() bool {
	return t.PaymentStatus == GatewayStatusVoided
}

// IsFinalCapture reports whether the capture was submitted as final.
func (t *Transaction) IsFinalCapture() bool {
	if t.Memo == nil {
		return false
	}
	v, ok := t.Memo[MemoFinalCapture].(bool)
	return ok && v
}

// IsReauthorization reports whether this authorization was created by reauthorizing another.
func (t *Transaction) IsReauthorization() bool {
	if t.Memo == nil {
		return false
	}
	_, ok := t.Memo[MemoReauthorizationOf]
	return ok
}

// =====================================================
// WEBHOOK EVENT (audit trail, not used for idempotency)
// =====================================================

type WebhookEvent struct {
	ID           uuid.UUID `json:"id" db:"id"`
	WebhookID    string    `json:"webhook_id" db:"webhook_id"`
	EventType    string    `json:"event_type" db:"event_type"`
	ResourceID   string    `json:"resource_id" db:"resource_id"`
	OrderID      *string   `json:"order_id,omitempty" db:"order_id"`
	Verification string    `json:"verification" db:"verification"`
	RawBody      []byte    `json:"-" db:"raw_body"`
	ReceivedAt   time.Time `json:"received_at" db:"received_at"`
}

// =====================================================
// ORDER STATUS HISTORY
// =====================================================

type OrderStatusHistory struct {
	ID         uuid.UUID `json:"id" db:"id"`
	OrderID    string    `json:"order_id" db:"order_id"`
	FromStatus *string   `json:"from_status,omitempty" db:"from_status"`
	ToStatus   string    `json:"to_status" db:"to_status"`
	ChangedBy  *string   `json:"changed_by,omitempty" db:"changed_by"`
	Notes      string    `json:"notes" db:"notes"`
	ChangedAt  time.Time `json:"changed_at" db:"changed_at"`
}

// =====================================================
// MERCHANT ALERT
// =====================================================

type AlertKind string

const (
	AlertExternalActivity  AlertKind = "external_activity"
	AlertUnknownIssueCode  AlertKind = "unknown_issue_code"
	AlertBreakdownMismatch AlertKind = "breakdown_mismatch"
	AlertPaymentReversed   AlertKind = "payment_reversed"
	AlertPaymentDenied     AlertKind = "payment_denied"
	AlertDuplicatePayment  AlertKind = "duplicate_payment"
)

type MerchantAlert struct {
	Kind      AlertKind         `json:"kind"`
	OrderID   string            `json:"order_id,omitempty"`
	Message   string            `json:"message"`
	Details   map[string]string `json:"details,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}
