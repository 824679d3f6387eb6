package service

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"paysync-backend/internal/domains/payment/gateway"
	"paysync-backend/internal/domains/payment/gateway/mock"
	"paysync-backend/internal/domains/payment/model"
	"paysync-backend/internal/domains/payment/session"
)

func TestReauthorizeCap(t *testing.T) {
	tests := []struct {
		original string
		currency string
		want     string
	}{
		{"100.00", "USD", "115"},
		{"1000.00", "USD", "1075"},
		{"99.99", "USD", "114.98"}, // 114.9885 truncated, not rounded
		{"333", "JPY", "382"},      // 382.95 truncated to whole yen
	}
	for _, tt := range tests {
		got := ReauthorizeCap(decimal.RequireFromString(tt.original), tt.currency)
		assert.True(t, got.Equal(decimal.RequireFromString(tt.want)), "%s %s: got %s", tt.original, tt.currency, got)
	}
}

func TestReauthorize_Windows(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	done := f.placeOrder(t, "ord-reauth", model.IntentAuthorize, "100.00")
	authID := done.Transaction.TxnID

	f.clock.Set(t0.Add(day(2)))
	_, err := f.admin.Reauthorize(ctx, operator, "ord-reauth", model.ReauthorizeRequest{AuthorizationID: authID, Amount: "100.00"})
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrReauthorizeTooSoon)
	assert.Equal(t, model.ErrCodeReauthorizeDenied, model.ErrorCode(err))
	assert.Zero(t, f.gw.Calls("Reauthorize"), "guards run before the gateway")

	f.clock.Set(t0.Add(day(10)))
	_, err = f.admin.Reauthorize(ctx, operator, "ord-reauth", model.ReauthorizeRequest{AuthorizationID: authID, Amount: "120.00"})
	assert.ErrorIs(t, err, model.ErrReauthorizeAmountTooBig)

	res, err := f.admin.Reauthorize(ctx, operator, "ord-reauth", model.ReauthorizeRequest{AuthorizationID: authID, Amount: "110.00", Note: "customer added gift wrap"})
	require.NoError(t, err)
	require.NotNil(t, res.Transaction)
	assert.Equal(t, authID, res.Transaction.Parent(), "parent back-filled with the root authorization")
	assert.True(t, res.Transaction.IsReauthorization())
	assert.Equal(t, "customer added gift wrap", res.Transaction.Memo[model.MemoNote])
	assert.Equal(t, 1, f.gw.Calls("Reauthorize"))

	// one reauthorization per honor period
	f.clock.Set(t0.Add(day(11)))
	_, err = f.admin.Reauthorize(ctx, operator, "ord-reauth", model.ReauthorizeRequest{AuthorizationID: authID, Amount: "100.00"})
	assert.ErrorIs(t, err, model.ErrReauthorizeRepeated)

	// only the root authorization
	_, err = f.admin.Reauthorize(ctx, operator, "ord-reauth", model.ReauthorizeRequest{AuthorizationID: res.Transaction.TxnID, Amount: "100.00"})
	assert.ErrorIs(t, err, model.ErrReauthorizeNotRoot)

	f.clock.Set(t0.Add(day(30)))
	_, err = f.admin.Reauthorize(ctx, operator, "ord-reauth", model.ReauthorizeRequest{AuthorizationID: authID, Amount: "100.00"})
	assert.ErrorIs(t, err, model.ErrReauthorizeTooLate)

	history, err := f.orders.ListHistory(ctx, "ord-reauth")
	require.NoError(t, err)
	assert.Contains(t, history[len(history)-1].Notes, "Reauthorized")
	require.NotNil(t, history[len(history)-1].ChangedBy)
	assert.Equal(t, "admin-7", *history[len(history)-1].ChangedBy)
}

func TestCapture_AgainstReauthorizedAmount(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	done := f.placeOrder(t, "ord-cap", model.IntentAuthorize, "100.00")
	authID := done.Transaction.TxnID
	assert.Equal(t, model.OrderStatusOnHold, done.OrderStatus)

	f.clock.Set(t0.Add(day(5)))
	reauth, err := f.admin.Reauthorize(ctx, operator, "ord-cap", model.ReauthorizeRequest{AuthorizationID: authID, Amount: "110.00"})
	require.NoError(t, err)

	_, err = f.admin.Capture(ctx, operator, "ord-cap", model.CaptureRequest{AuthorizationID: authID, Amount: "110.01"})
	assert.ErrorIs(t, err, model.ErrCaptureExceedsAuth)
	assert.Equal(t, model.ErrCodeAmountExceeded, model.ErrorCode(err))

	partial, err := f.admin.Capture(ctx, operator, "ord-cap", model.CaptureRequest{AuthorizationID: authID, Amount: "30.00"})
	require.NoError(t, err)
	assert.Equal(t, reauth.Transaction.TxnID, partial.Transaction.Parent(), "captures use the live reauthorization")
	assert.Equal(t, model.OrderStatusOnHold, partial.OrderStatus, "partial capture leaves status unchanged")

	rest, err := f.admin.Capture(ctx, operator, "ord-cap", model.CaptureRequest{AuthorizationID: authID, Remaining: true})
	require.NoError(t, err)
	assert.True(t, rest.Transaction.GrossAmount.Equal(decimal.RequireFromString("80")))
	assert.True(t, rest.Transaction.IsFinalCapture())
	assert.Equal(t, model.OrderStatusProcessing, rest.OrderStatus)

	_, err = f.admin.Capture(ctx, operator, "ord-cap", model.CaptureRequest{AuthorizationID: authID, Amount: "1.00"})
	assert.ErrorIs(t, err, model.ErrAuthorizationCaptured)
}

func TestCapture_Guards(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	done := f.placeOrder(t, "ord-capg", model.IntentAuthorize, "50.00")

	_, err := f.admin.Capture(ctx, operator, "ord-capg", model.CaptureRequest{AuthorizationID: "ORDER-1", Amount: "1.00"})
	assert.ErrorIs(t, err, model.ErrNotAuthorization)

	_, err = f.admin.Capture(ctx, operator, "ord-capg", model.CaptureRequest{AuthorizationID: "missing", Amount: "1.00"})
	assert.Equal(t, model.ErrCodeTransactionNotFound, model.ErrorCode(err))

	_, err = f.admin.Capture(ctx, operator, "ord-capg", model.CaptureRequest{AuthorizationID: done.Transaction.TxnID})
	assert.Equal(t, model.ErrCodeInvalidRequest, model.ErrorCode(err), "amount required unless remaining")

	final, err := f.admin.Capture(ctx, operator, "ord-capg", model.CaptureRequest{AuthorizationID: done.Transaction.TxnID, Amount: "20.00", Final: true})
	require.NoError(t, err)
	assert.Equal(t, model.OrderStatusProcessing, final.OrderStatus, "final capture moves the order on")

	_, err = f.admin.Capture(ctx, operator, "ord-capg", model.CaptureRequest{AuthorizationID: done.Transaction.TxnID, Amount: "10.00"})
	assert.ErrorIs(t, err, model.ErrAuthorizationCaptured)
}

func TestRefund_Accumulation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	done := f.placeOrder(t, "ord-ref", model.IntentCapture, "100.00")
	captureID := done.Transaction.TxnID
	assert.Equal(t, model.OrderStatusProcessing, done.OrderStatus)

	first, err := f.admin.Refund(ctx, operator, "ord-ref", model.RefundRequest{CaptureID: captureID, Amount: "40.00"})
	require.NoError(t, err)
	assert.Equal(t, model.OrderStatusPartiallyRefunded, first.OrderStatus)
	assert.Equal(t, captureID, first.Transaction.Parent())

	_, err = f.admin.Refund(ctx, operator, "ord-ref", model.RefundRequest{CaptureID: captureID, Amount: "61.00"})
	assert.ErrorIs(t, err, model.ErrRefundExceedsRemaining)
	assert.Equal(t, 1, f.gw.Calls("RefundCapture"))

	second, err := f.admin.Refund(ctx, operator, "ord-ref", model.RefundRequest{CaptureID: captureID, Amount: "60.00"})
	require.NoError(t, err)
	assert.Equal(t, model.OrderStatusRefunded, second.OrderStatus)

	capture, err := f.store.GetTransaction(ctx, "ord-ref", captureID)
	require.NoError(t, err)
	assert.Equal(t, model.GatewayStatusRefunded, capture.PaymentStatus)

	_, err = f.admin.Refund(ctx, operator, "ord-ref", model.RefundRequest{CaptureID: captureID, Full: true})
	assert.ErrorIs(t, err, model.ErrRefundAmountInvalid)
}

func TestZeroDecimalCurrency_Precision(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	done := f.placeOrderIn(t, "ord-jpy", model.IntentAuthorize, "JPY", "10000")
	authID := done.Transaction.TxnID

	_, err := f.admin.Capture(ctx, operator, "ord-jpy", model.CaptureRequest{AuthorizationID: authID, Amount: "9999.5"})
	assert.ErrorIs(t, err, model.ErrAmountPrecision)
	assert.Equal(t, model.ErrCodeInvalidRequest, model.ErrorCode(err))
	assert.Zero(t, f.gw.Calls("CaptureAuthorization"))

	capture, err := f.admin.Capture(ctx, operator, "ord-jpy", model.CaptureRequest{AuthorizationID: authID, Amount: "10000", Final: true})
	require.NoError(t, err)
	assert.True(t, capture.Transaction.GrossAmount.Equal(decimal.NewFromInt(10000)))

	_, err = f.admin.Refund(ctx, operator, "ord-jpy", model.RefundRequest{CaptureID: capture.Transaction.TxnID, Amount: "0.5"})
	assert.ErrorIs(t, err, model.ErrAmountPrecision)
	assert.Zero(t, f.gw.Calls("RefundCapture"))

	refund, err := f.admin.Refund(ctx, operator, "ord-jpy", model.RefundRequest{CaptureID: capture.Transaction.TxnID, Amount: "2500"})
	require.NoError(t, err)
	assert.Equal(t, model.OrderStatusPartiallyRefunded, refund.OrderStatus)

	_, err = f.checkout.CreateOrder(ctx, session.Scope{SessionID: "sess-jpy2"}, model.CreateOrderRequest{
		OrderID:  "ord-jpy2",
		Intent:   model.IntentCapture,
		Currency: "JPY",
		Total:    "99.50",
	})
	assert.ErrorIs(t, err, model.ErrAmountPrecision)
}

func TestCapture_IgnoresDeniedReauthorization(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	done := f.placeOrder(t, "ord-denied", model.IntentAuthorize, "100.00")
	authID := done.Transaction.TxnID

	f.clock.Set(t0.Add(day(4)))
	_, err := f.store.RecordTransaction(ctx, "ord-denied", model.TxnTypeAuthorize, &gateway.Resource{
		ID:     "AUTH-DENIED",
		Status: model.GatewayStatusDenied,
		Amount: &gateway.Money{CurrencyCode: "USD", Value: "110.00"},
	}, authID)
	require.NoError(t, err)

	capture, err := f.admin.Capture(ctx, operator, "ord-denied", model.CaptureRequest{AuthorizationID: authID, Amount: "50.00"})
	require.NoError(t, err)
	assert.Equal(t, authID, capture.Transaction.Parent(), "the denied reauthorization is never live")

	_, err = f.admin.Capture(ctx, operator, "ord-denied", model.CaptureRequest{AuthorizationID: authID, Amount: "50.01"})
	assert.ErrorIs(t, err, model.ErrCaptureExceedsAuth)
}

func TestRefund_TargetMustBeCapture(t *testing.T) {
	f := newFixture(t)
	done := f.placeOrder(t, "ord-reft", model.IntentAuthorize, "10.00")
	_, err := f.admin.Refund(context.Background(), operator, "ord-reft", model.RefundRequest{CaptureID: done.Transaction.TxnID, Full: true})
	assert.ErrorIs(t, err, model.ErrNotCapture)
}

func TestVoid_Guards(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	done := f.placeOrder(t, "ord-void", model.IntentAuthorize, "100.00")
	authID := done.Transaction.TxnID

	f.clock.Set(t0.Add(day(4)))
	reauth, err := f.admin.Reauthorize(ctx, operator, "ord-void", model.ReauthorizeRequest{AuthorizationID: authID, Amount: "100.00"})
	require.NoError(t, err)

	_, err = f.admin.Void(ctx, operator, "ord-void", model.VoidRequest{AuthorizationID: reauth.Transaction.TxnID})
	assert.ErrorIs(t, err, model.ErrVoidNotPrimary)

	voided, err := f.admin.Void(ctx, operator, "ord-void", model.VoidRequest{AuthorizationID: authID})
	require.NoError(t, err)
	assert.Equal(t, model.OrderStatusVoided, voided.OrderStatus, "no captures: order is voided")
	assert.True(t, voided.Transaction.IsVoided())

	_, err = f.admin.Void(ctx, operator, "ord-void", model.VoidRequest{AuthorizationID: authID})
	assert.ErrorIs(t, err, model.ErrAuthorizationVoided)
	assert.Equal(t, 1, f.gw.Calls("VoidAuthorization"))
}

func TestVoid_FullyCapturedAuthorization(t *testing.T) {
	ctx := context.Background()

	t.Run("remaining captured", func(t *testing.T) {
		f := newFixture(t)
		done := f.placeOrder(t, "ord-voidc", model.IntentAuthorize, "100.00")
		authID := done.Transaction.TxnID

		_, err := f.admin.Capture(ctx, operator, "ord-voidc", model.CaptureRequest{AuthorizationID: authID, Remaining: true})
		require.NoError(t, err)

		_, err = f.admin.Void(ctx, operator, "ord-voidc", model.VoidRequest{AuthorizationID: authID})
		assert.ErrorIs(t, err, model.ErrAuthorizationCaptured)
		assert.Zero(t, f.gw.Calls("VoidAuthorization"))
		assert.Equal(t, model.OrderStatusProcessing, f.status(t, "ord-voidc"))
	})

	t.Run("final partial capture", func(t *testing.T) {
		f := newFixture(t)
		done := f.placeOrder(t, "ord-voidf", model.IntentAuthorize, "100.00")
		authID := done.Transaction.TxnID

		_, err := f.admin.Capture(ctx, operator, "ord-voidf", model.CaptureRequest{AuthorizationID: authID, Amount: "40.00", Final: true})
		require.NoError(t, err)

		_, err = f.admin.Void(ctx, operator, "ord-voidf", model.VoidRequest{AuthorizationID: authID})
		assert.ErrorIs(t, err, model.ErrAuthorizationCaptured)
		assert.Zero(t, f.gw.Calls("VoidAuthorization"))
	})
}

func TestVoid_WithCaptureLeavesStatus(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	done := f.placeOrder(t, "ord-void2", model.IntentAuthorize, "100.00")

	_, err := f.admin.Capture(ctx, operator, "ord-void2", model.CaptureRequest{AuthorizationID: done.Transaction.TxnID, Amount: "30.00"})
	require.NoError(t, err)
	before := f.status(t, "ord-void2")

	res, err := f.admin.Void(ctx, operator, "ord-void2", model.VoidRequest{AuthorizationID: done.Transaction.TxnID})
	require.NoError(t, err)
	assert.Equal(t, before, res.OrderStatus)
}

func TestAuthorize(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// seed a CREATE that was never authorized at checkout
	order, err := f.gw.CreateOrder(ctx, gateway.CreateOrderRequest{
		Intent: model.IntentAuthorize,
		PurchaseUnits: []gateway.PurchaseUnitCreate{{
			Amount: gateway.AmountWithBreakdown{CurrencyCode: "USD", Value: "25.00"},
		}},
	}, "")
	require.NoError(t, err)
	root := order.AsResource()
	_, err = f.store.RecordTransaction(ctx, "ord-auth", model.TxnTypeCreate, &root, "")
	require.NoError(t, err)

	res, err := f.admin.Authorize(ctx, operator, "ord-auth", model.AuthorizeRequest{})
	require.NoError(t, err)
	assert.Equal(t, model.TxnTypeAuthorize, res.Transaction.TxnType)
	assert.Equal(t, order.ID, res.Transaction.Parent())
	assert.Equal(t, model.OrderStatusOnHold, res.OrderStatus)

	_, err = f.admin.Authorize(ctx, operator, "ord-auth", model.AuthorizeRequest{})
	assert.ErrorIs(t, err, model.ErrAlreadyAuthorized)
}

func TestGatewayErrors_AreMapped(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	done := f.placeOrder(t, "ord-gwerr", model.IntentCapture, "20.00")

	f.gw.FailNext("RefundCapture", &gateway.APIError{HTTPStatus: 422, IssueCode: "REFUND_TIME_LIMIT_EXCEEDED"})
	_, err := f.admin.Refund(ctx, operator, "ord-gwerr", model.RefundRequest{CaptureID: done.Transaction.TxnID, Full: true})
	var pe *model.PaymentError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, model.ErrCodeGatewayError, pe.Code)
	assert.Equal(t, model.IssueCodeMessages["REFUND_TIME_LIMIT_EXCEEDED"], pe.Message)
	assert.Empty(t, f.alerts.kinds())

	f.gw.FailNext("RefundCapture", &gateway.APIError{HTTPStatus: 422, IssueCode: "SOMETHING_NEW"})
	_, err = f.admin.Refund(ctx, operator, "ord-gwerr", model.RefundRequest{CaptureID: done.Transaction.TxnID, Full: true})
	require.True(t, errors.As(err, &pe))
	assert.Contains(t, pe.Message, "SOMETHING_NEW")
	assert.Equal(t, []model.AlertKind{model.AlertUnknownIssueCode}, f.alerts.kinds())

	f.gw.FailNext("RefundCapture", &gateway.TransportError{Op: "refund", Err: errors.New("connection reset")})
	_, err = f.admin.Refund(ctx, operator, "ord-gwerr", model.RefundRequest{CaptureID: done.Transaction.TxnID, Full: true})
	assert.Equal(t, model.ErrCodeGatewayUnavailable, model.ErrorCode(err))
}

func TestListTransactions_SyncsFirst(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	done := f.placeOrder(t, "ord-list", model.IntentCapture, "80.00")

	_, err := f.gw.ExternalRefund(done.Transaction.TxnID, decimal.RequireFromString("5.00"), mock.LinkEverywhere)
	require.NoError(t, err)

	list, err := f.admin.ListTransactions(ctx, operator, "ord-list")
	require.NoError(t, err)
	require.Len(t, list.Transactions, 3)
	assert.Equal(t, model.TxnTypeCreate, list.Transactions[0].TxnType)
	assert.True(t, list.Transactions[2].ExternallyAdded)
	assert.Len(t, list.Notices, 1)
	assert.Empty(t, list.SyncError)

	f.gw.FailNext("GetOrderStatus", &gateway.TransportError{Op: "get order", Err: errors.New("timeout")})
	list, err = f.admin.ListTransactions(ctx, operator, "ord-list")
	require.NoError(t, err)
	assert.NotEmpty(t, list.SyncError)
	assert.Len(t, list.Transactions, 3)

	_, err = f.admin.ListTransactions(ctx, operator, "ord-unknown")
	assert.Equal(t, model.ErrCodeOrderNotFound, model.ErrorCode(err))
}
