package model

import (
	"errors"
	"fmt"
)

// =====================================================
// PREDEFINED ERRORS
// =====================================================

var (
	ErrTransactionNotFound = errors.New("transaction not found")
	ErrOrderNotFound       = errors.New("order not found")
	ErrRootNotFound        = errors.New("order has no CREATE transaction")
	ErrMissingParent       = errors.New("transaction parent could not be determined")
	ErrInvalidTxnType      = errors.New("invalid transaction type")
	ErrAmountPrecision     = errors.New("amount has more decimal places than the currency allows")
	ErrParentTypeMismatch  = errors.New("parent transaction type cannot hold this transaction")
	ErrDuplicateRoot       = errors.New("order already has a different CREATE transaction")

	ErrNotAuthorization        = errors.New("target transaction is not an authorization")
	ErrNotCapture              = errors.New("target transaction is not a capture")
	ErrAuthorizationVoided     = errors.New("authorization is voided")
	ErrAuthorizationCaptured   = errors.New("authorization is already fully captured")
	ErrReauthorizeNotRoot      = errors.New("only the original authorization can be reauthorized")
	ErrReauthorizeTooSoon      = errors.New("authorization is still within its honor period")
	ErrReauthorizeTooLate      = errors.New("authorization is too old to reauthorize")
	ErrReauthorizeAmountTooBig = errors.New("reauthorization amount exceeds the allowed maximum")
	ErrReauthorizeRepeated     = errors.New("authorization was already reauthorized in this honor period")
	ErrAlreadyAuthorized       = errors.New("order already has an authorization")
	ErrCaptureAmountInvalid    = errors.New("capture amount must be greater than zero")
	ErrCaptureExceedsAuth      = errors.New("capture amount exceeds the remaining authorized amount")
	ErrVoidNotPrimary          = errors.New("only the primary authorization can be voided")
	ErrRefundAmountInvalid     = errors.New("refund amount must be greater than zero")
	ErrRefundExceedsRemaining  = errors.New("refund amount exceeds the remaining captured amount")
	ErrCurrencyMismatch        = errors.New("amount currency does not match the transaction")

	ErrInvalidSignature      = errors.New("invalid webhook signature")
	ErrVerificationDeferred  = errors.New("webhook verification could not be completed")
	ErrUnknownEventType      = errors.New("no handler registered for event type")
	ErrEventTypeNotSupported = errors.New("handler does not accept event type")

	ErrBreakdownMismatch = errors.New("order total does not equal the sum of its breakdown")
)

// =====================================================
// CUSTOM PAYMENT ERROR
// =====================================================

type PaymentError struct {
	Code    string
	Message string
	Err     error
}

func (e *PaymentError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *PaymentError) Unwrap() error {
	return e.Err
}

// NewPaymentError creates a new payment error
func NewPaymentError(code, message string, err error) *PaymentError {
	return &PaymentError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// =====================================================
// ERROR CONSTRUCTORS
// =====================================================

func NewTransactionNotFoundError(txnID string) *PaymentError {
	return NewPaymentError(
		ErrCodeTransactionNotFound,
		fmt.Sprintf("Transaction not found: %s", txnID),
		ErrTransactionNotFound,
	)
}

func NewOrderNotFoundError(orderID string) *PaymentError {
	return NewPaymentError(
		ErrCodeOrderNotFound,
		fmt.Sprintf("No payment found for order %s", orderID),
		ErrOrderNotFound,
	)
}

func NewInvalidRequestError(err error) *PaymentError {
	return NewPaymentError(ErrCodeInvalidRequest, "Invalid request", err)
}

func NewInvalidTargetError(err error) *PaymentError {
	return NewPaymentError(ErrCodeInvalidTarget, err.Error(), err)
}

func NewReauthorizeDeniedError(err error) *PaymentError {
	return NewPaymentError(ErrCodeReauthorizeDenied, err.Error(), err)
}

func NewCaptureDeniedError(err error) *PaymentError {
	return NewPaymentError(ErrCodeCaptureDenied, err.Error(), err)
}

func NewVoidDeniedError(err error) *PaymentError {
	return NewPaymentError(ErrCodeVoidDenied, err.Error(), err)
}

func NewRefundDeniedError(err error) *PaymentError {
	return NewPaymentError(ErrCodeRefundDenied, err.Error(), err)
}

func NewOrderAlreadyPaidError(orderID string) *PaymentError {
	return NewPaymentError(
		ErrCodeOrderAlreadyPaid,
		fmt.Sprintf("Order %s already has a payment", orderID),
		ErrDuplicateRoot,
	)
}

func NewInvalidSignatureError() *PaymentError {
	return NewPaymentError(ErrCodeInvalidSignature, "Invalid webhook signature", ErrInvalidSignature)
}

// ErrorCode extracts the PaymentError code from err, or "" if err is not one.
func ErrorCode(err error) string {
	var pe *PaymentError
	if errors.As(err, &pe) {
		return pe.Code
	}
	return ""
}
