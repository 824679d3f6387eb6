package model

// =====================================================
// TRANSACTION TYPES
// =====================================================

type TxnType string

const (
	TxnTypeCreate    TxnType = "CREATE"
	TxnTypeAuthorize TxnType = "AUTHORIZE"
	TxnTypeCapture   TxnType = "CAPTURE"
	TxnTypeRefund    TxnType = "REFUND"
)

var ValidTxnTypes = []TxnType{
	TxnTypeCreate,
	TxnTypeAuthorize,
	TxnTypeCapture,
	TxnTypeRefund,
}

// =====================================================
// GATEWAY STATUSES
// =====================================================
// Raw status strings reported by the gateway for orders, authorizations,
// captures and refunds. Stored as-is in payment_status.
const (
	GatewayStatusCreated             = "CREATED"
	GatewayStatusSaved               = "SAVED"
	GatewayStatusApproved            = "APPROVED"
	GatewayStatusPayerActionRequired = "PAYER_ACTION_REQUIRED"
	GatewayStatusCompleted           = "COMPLETED"
	GatewayStatusVoided              = "VOIDED"
	GatewayStatusPending             = "PENDING"
	GatewayStatusCaptured            = "CAPTURED"
	GatewayStatusPartiallyCaptured   = "PARTIALLY_CAPTURED"
	GatewayStatusDenied              = "DENIED"
	GatewayStatusExpired             = "EXPIRED"
	GatewayStatusDeclined            = "DECLINED"
	GatewayStatusRefunded            = "REFUNDED"
	GatewayStatusPartiallyRefunded   = "PARTIALLY_REFUNDED"
	GatewayStatusFailed              = "FAILED"
	GatewayStatusCancelled           = "CANCELLED"
)

// =====================================================
// ORDER-VISIBLE STATUS
// =====================================================
const (
	OrderStatusPending           = "pending"
	OrderStatusProcessing        = "processing"
	OrderStatusOnHold            = "on_hold"
	OrderStatusVoided            = "voided"
	OrderStatusPartiallyRefunded = "partially_refunded"
	OrderStatusRefunded          = "refunded"
	OrderStatusFailed            = "failed"
)

// =====================================================
// GATEWAY ORDER INTENT
// =====================================================
const (
	IntentCapture   = "CAPTURE"
	IntentAuthorize = "AUTHORIZE"
)

// =====================================================
// AUTHORIZATION WINDOWS
// =====================================================
const (
	// HonorPeriodDays is how long the gateway honors the authorized funds.
	HonorPeriodDays = 3
	// AuthorizationValidityDays is the full lifetime of an authorization.
	AuthorizationValidityDays = 30
	// ReauthorizeLastDay is the last day a reauthorization may be requested.
	ReauthorizeLastDay = 29
	// ReauthorizeMaxPercent caps the reauthorized amount relative to the original.
	ReauthorizeMaxPercent = 115
	// ReauthorizeMaxIncrease caps the absolute increase in the order currency.
	ReauthorizeMaxIncrease = 75
)

// =====================================================
// WEBHOOK EVENT TYPES
// =====================================================
const (
	EventAuthorizationCreated   = "PAYMENT.AUTHORIZATION.CREATED"
	EventAuthorizationVoided    = "PAYMENT.AUTHORIZATION.VOIDED"
	EventCaptureCompleted       = "PAYMENT.CAPTURE.COMPLETED"
	EventCapturePending         = "PAYMENT.CAPTURE.PENDING"
	EventCaptureDenied          = "PAYMENT.CAPTURE.DENIED"
	EventCaptureDeclined        = "PAYMENT.CAPTURE.DECLINED"
	EventCaptureRefunded        = "PAYMENT.CAPTURE.REFUNDED"
	EventCaptureReversed        = "PAYMENT.CAPTURE.REVERSED"
	EventCheckoutOrderCompleted = "CHECKOUT.ORDER.COMPLETED"
	EventCheckoutOrderApproved  = "CHECKOUT.ORDER.APPROVED"
	EventPaymentApprovalReverse = "CHECKOUT.PAYMENT-APPROVAL.REVERSED"
)

// =====================================================
// WEBHOOK VERIFICATION OUTCOME (audit column values)
// =====================================================
const (
	VerificationVerified      = "verified"
	VerificationRejected      = "rejected"
	VerificationIndeterminate = "indeterminate"
)

// =====================================================
// MEMO KEYS
// =====================================================
const (
	MemoFinalCapture      = "final_capture"
	MemoNote              = "note"
	MemoReauthorizationOf = "reauthorization_of"
	MemoInvoiceID         = "invoice_id"
	MemoStatusReason      = "status_reason"
	MemoSource            = "source"
	MemoIntent            = "intent"
	MemoActor             = "actor"
)

// Sources recorded in memo[MemoSource].
const (
	SourceCheckout  = "checkout"
	SourceAdmin     = "admin"
	SourceReconcile = "reconcile"
)

// =====================================================
// ERROR CODES
// =====================================================
const (
	ErrCodeTransactionNotFound  = "PAY001"
	ErrCodeOrderNotFound        = "PAY002"
	ErrCodeInvalidRequest       = "PAY003"
	ErrCodeInvalidTarget        = "PAY004"
	ErrCodeReauthorizeDenied    = "PAY010"
	ErrCodeCaptureDenied        = "PAY011"
	ErrCodeVoidDenied           = "PAY012"
	ErrCodeRefundDenied         = "PAY013"
	ErrCodeAmountExceeded       = "PAY014"
	ErrCodeOrderAlreadyPaid     = "PAY015"
	ErrCodeGatewayError         = "PAY020"
	ErrCodeGatewayUnavailable   = "PAY021"
	ErrCodeInvalidSignature     = "PAY030"
	ErrCodeVerificationDeferred = "PAY031"
	ErrCodeBreakdownMismatch    = "PAY040"
	ErrCodeInternal             = "PAY099"
)

// =====================================================
// GATEWAY ISSUE CODE -> USER MESSAGE
// =====================================================
// Messages stay generic on purpose; the raw issue and debug id go to logs.
var IssueCodeMessages = map[string]string{
	"INSTRUMENT_DECLINED":              "The payment method was declined. Please use a different payment method.",
	"PAYER_ACTION_REQUIRED":            "Additional payer action is required to complete this payment.",
	"TRANSACTION_REFUSED":              "The transaction was refused.",
	"CARD_EXPIRED":                     "The card has expired.",
	"ORDER_NOT_APPROVED":               "The payer has not yet approved this order.",
	"ORDER_ALREADY_CAPTURED":           "This order has already been captured.",
	"ORDER_ALREADY_AUTHORIZED":         "This order has already been authorized.",
	"AUTHORIZATION_VOIDED":             "The authorization has been voided.",
	"AUTHORIZATION_EXPIRED":            "The authorization has expired.",
	"AUTHORIZATION_ALREADY_CAPTURED":   "The authorization has already been captured.",
	"PREVIOUSLY_VOIDED":                "The authorization was already voided.",
	"CANNOT_BE_VOIDED":                 "The authorization cannot be voided.",
	"REAUTHORIZATION_TOO_SOON":         "The authorization is still within its honor period.",
	"MAX_AUTHORIZATION_COUNT_EXCEEDED": "No more reauthorizations are allowed for this payment.",
	"MAX_CAPTURE_AMOUNT_EXCEEDED":      "The capture amount exceeds the authorized amount.",
	"MAX_CAPTURE_COUNT_EXCEEDED":       "No more captures are allowed for this authorization.",
	"REFUND_AMOUNT_EXCEEDED":           "The refund amount exceeds the remaining captured amount.",
	"CAPTURE_FULLY_REFUNDED":           "The capture has already been fully refunded.",
	"MAX_NUMBER_OF_REFUNDS_EXCEEDED":   "No more refunds are allowed for this capture.",
	"REFUND_TIME_LIMIT_EXCEEDED":       "The refund window for this capture has closed.",
	"DUPLICATE_INVOICE_ID":             "A payment with this invoice id already exists.",
	"DECIMAL_PRECISION":                "The amount has too many decimal places for the currency.",
	"CURRENCY_NOT_SUPPORTED":           "The currency is not supported.",
	"AMOUNT_MISMATCH":                  "The order amounts do not add up.",
	"ITEM_TOTAL_MISMATCH":              "The item totals do not add up.",
	"PAYEE_ACCOUNT_RESTRICTED":         "The merchant account cannot receive payments right now.",
	"PERMISSION_DENIED":                "The merchant account is not permitted to perform this action.",
	"INVALID_RESOURCE_ID":              "The referenced payment could not be found.",
}

// GenericGatewayMessage is shown for issue codes missing from IssueCodeMessages.
const GenericGatewayMessage = "The payment gateway could not process the request."

// MapIssueCode returns the user-facing message for a gateway issue code and
// whether the code was known.
func MapIssueCode(issue string) (string, bool) {
	if msg, ok := IssueCodeMessages[issue]; ok {
		return msg, true
	}
	return GenericGatewayMessage, false
}
