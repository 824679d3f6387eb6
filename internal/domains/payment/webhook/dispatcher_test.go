package webhook

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"paysync-backend/internal/domains/payment/gateway"
	"paysync-backend/internal/domains/payment/gateway/mock"
	"paysync-backend/internal/domains/payment/model"
	"paysync-backend/internal/domains/payment/repository"
	"paysync-backend/internal/domains/payment/service"
	"paysync-backend/internal/domains/payment/session"
	"paysync-backend/pkg/cache"
)

type recordingAlerter struct {
	mu    sync.Mutex
	kinds []model.AlertKind
}

func (a *recordingAlerter) Alert(ctx context.Context, alert model.MerchantAlert) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.kinds = append(a.kinds, alert.Kind)
	return nil
}

type dispatchFixture struct {
	gw         *mock.Gateway
	store      *repository.MemoryTransactionStore
	webhooks   *repository.MemoryWebhookRepository
	orders     *repository.MemoryOrderStateRepository
	alerts     *recordingAlerter
	checkout   service.CheckoutService
	dispatcher *Dispatcher
}

func newDispatchFixture() *dispatchFixture {
	f := &dispatchFixture{
		gw:       mock.NewGateway(),
		store:    repository.NewMemoryTransactionStore(),
		webhooks: repository.NewMemoryWebhookRepository(),
		orders:   repository.NewMemoryOrderStateRepository(),
		alerts:   &recordingAlerter{},
	}
	reconciler := service.NewReconciler(f.store, f.gw, f.alerts)
	f.checkout = service.NewCheckoutService(f.store, f.gw,
		session.NewStore(cache.NewMemoryCache(), 0), f.orders, f.alerts)
	f.dispatcher = NewDispatcher(f.store, f.webhooks, DefaultHandlers(Deps{
		Syncer:  reconciler,
		Store:   f.store,
		Orders:  f.orders,
		Alerter: f.alerts,
	})...)
	return f
}

// authorizedOrder checks out an order with intent AUTHORIZE and returns the
// authorization id.
func (f *dispatchFixture) authorizedOrder(t *testing.T, orderID string) string {
	t.Helper()
	ctx := context.Background()
	scope := session.Scope{SessionID: "sess-" + orderID}
	created, err := f.checkout.CreateOrder(ctx, scope, model.CreateOrderRequest{
		OrderID:  orderID,
		Intent:   model.IntentAuthorize,
		Currency: "USD",
		Total:    "100.00",
	})
	require.NoError(t, err)
	f.gw.Approve(created.GatewayOrderID)
	done, err := f.checkout.CompleteOrder(ctx, scope, created.GatewayOrderID)
	require.NoError(t, err)
	return done.Transaction.TxnID
}

func eventBody(t *testing.T, id, eventType string, res gateway.Resource) []byte {
	t.Helper()
	body, err := json.Marshal(map[string]interface{}{
		"id":            id,
		"event_type":    eventType,
		"resource_type": "capture",
		"resource":      res,
	})
	require.NoError(t, err)
	return body
}

func (f *dispatchFixture) status(t *testing.T, orderID string) string {
	t.Helper()
	s, err := f.orders.GetStatus(context.Background(), orderID)
	require.NoError(t, err)
	return s
}

func TestDispatch_ReplayIsIdempotent(t *testing.T) {
	f := newDispatchFixture()
	ctx := context.Background()
	authID := f.authorizedOrder(t, "1001")
	assert.Equal(t, model.OrderStatusOnHold, f.status(t, "1001"))

	capture, err := f.gw.ExternalCapture(authID, decimal.RequireFromString("100.00"), true)
	require.NoError(t, err)
	body := eventBody(t, "WH-1", model.EventCaptureCompleted, capture)

	require.NoError(t, f.dispatcher.Dispatch(ctx, body, model.VerificationVerified))
	require.NoError(t, f.dispatcher.Dispatch(ctx, body, model.VerificationVerified))

	captures, err := f.store.ListTransactions(ctx, "1001", model.TxnTypeCapture)
	require.NoError(t, err)
	require.Len(t, captures, 1)
	assert.Equal(t, capture.ID, captures[0].TxnID)
	assert.Equal(t, authID, captures[0].Parent())

	audit, err := f.webhooks.ListRecent(ctx, model.EventCaptureCompleted, 10)
	require.NoError(t, err)
	require.Len(t, audit, 2)
	for _, row := range audit {
		require.NotNil(t, row.OrderID)
		assert.Equal(t, "1001", *row.OrderID)
		assert.Equal(t, model.VerificationVerified, row.Verification)
	}

	assert.Equal(t, model.OrderStatusProcessing, f.status(t, "1001"))
	assert.Equal(t, []model.AlertKind{model.AlertExternalActivity}, f.alerts.kinds)
}

func TestDispatch_Refunds(t *testing.T) {
	ctx := context.Background()

	t.Run("partial then full", func(t *testing.T) {
		f := newDispatchFixture()
		authID := f.authorizedOrder(t, "2001")
		capture, err := f.gw.ExternalCapture(authID, decimal.RequireFromString("100.00"), true)
		require.NoError(t, err)

		partial, err := f.gw.ExternalRefund(capture.ID, decimal.RequireFromString("30.00"), mock.LinkEverywhere)
		require.NoError(t, err)
		require.NoError(t, f.dispatcher.Dispatch(ctx, eventBody(t, "WH-2", model.EventCaptureRefunded, partial), model.VerificationVerified))
		assert.Equal(t, model.OrderStatusPartiallyRefunded, f.status(t, "2001"))

		rest, err := f.gw.ExternalRefund(capture.ID, decimal.RequireFromString("70.00"), mock.LinkEverywhere)
		require.NoError(t, err)
		require.NoError(t, f.dispatcher.Dispatch(ctx, eventBody(t, "WH-3", model.EventCaptureRefunded, rest), model.VerificationVerified))
		assert.Equal(t, model.OrderStatusRefunded, f.status(t, "2001"))
	})

	t.Run("reversal alerts the merchant", func(t *testing.T) {
		f := newDispatchFixture()
		authID := f.authorizedOrder(t, "2002")
		capture, err := f.gw.ExternalCapture(authID, decimal.RequireFromString("100.00"), true)
		require.NoError(t, err)
		reversal, err := f.gw.ExternalRefund(capture.ID, decimal.RequireFromString("100.00"), mock.LinkEverywhere)
		require.NoError(t, err)

		require.NoError(t, f.dispatcher.Dispatch(ctx, eventBody(t, "WH-4", model.EventCaptureReversed, reversal), model.VerificationVerified))
		assert.Equal(t, model.OrderStatusRefunded, f.status(t, "2002"))
		assert.Contains(t, f.alerts.kinds, model.AlertPaymentReversed)
	})
}

func TestDispatch_DeniedCapture(t *testing.T) {
	f := newDispatchFixture()
	ctx := context.Background()
	authID := f.authorizedOrder(t, "3001")

	denied := gateway.Resource{
		ID:     "CAP-DENIED",
		Status: model.GatewayStatusDenied,
		Links:  []gateway.Link{{Rel: "up", Href: "https://api.paypal.com/v2/payments/authorizations/" + authID}},
	}
	require.NoError(t, f.dispatcher.Dispatch(ctx, eventBody(t, "WH-5", model.EventCaptureDenied, denied), model.VerificationVerified))

	assert.Equal(t, model.OrderStatusFailed, f.status(t, "3001"))
	assert.Equal(t, []model.AlertKind{model.AlertPaymentDenied}, f.alerts.kinds)
}

func TestDispatch_VoidWithoutCaptures(t *testing.T) {
	f := newDispatchFixture()
	ctx := context.Background()
	authID := f.authorizedOrder(t, "4001")

	voided, err := f.gw.VoidAuthorization(ctx, authID)
	require.NoError(t, err)
	require.NoError(t, f.dispatcher.Dispatch(ctx, eventBody(t, "WH-6", model.EventAuthorizationVoided, *voided), model.VerificationVerified))

	assert.Equal(t, model.OrderStatusVoided, f.status(t, "4001"))
	auth, err := f.store.GetTransaction(ctx, "4001", authID)
	require.NoError(t, err)
	assert.Equal(t, model.GatewayStatusVoided, auth.PaymentStatus)
}

func TestDispatch_AcknowledgedWithoutHandling(t *testing.T) {
	ctx := context.Background()

	t.Run("unregistered event type", func(t *testing.T) {
		f := newDispatchFixture()
		body := eventBody(t, "WH-7", "BILLING.SUBSCRIPTION.CREATED", gateway.Resource{ID: "I-SUB1"})
		require.NoError(t, f.dispatcher.Dispatch(ctx, body, model.VerificationVerified))

		audit, err := f.webhooks.ListRecent(ctx, "", 10)
		require.NoError(t, err)
		require.Len(t, audit, 1)
		assert.Nil(t, audit[0].OrderID)
		assert.False(t, f.dispatcher.Handles("BILLING.SUBSCRIPTION.CREATED"))
	})

	t.Run("unknown order", func(t *testing.T) {
		f := newDispatchFixture()
		body := eventBody(t, "WH-8", model.EventCaptureCompleted, gateway.Resource{ID: "CAP-ELSEWHERE", Status: "COMPLETED"})
		require.NoError(t, f.dispatcher.Dispatch(ctx, body, model.VerificationVerified))

		audit, err := f.webhooks.ListRecent(ctx, model.EventCaptureCompleted, 10)
		require.NoError(t, err)
		require.Len(t, audit, 1)
		assert.Nil(t, audit[0].OrderID)
		assert.Empty(t, f.alerts.kinds)
	})

	t.Run("malformed body", func(t *testing.T) {
		f := newDispatchFixture()
		assert.Error(t, f.dispatcher.Dispatch(ctx, []byte(`{"id":"WH-9"}`), model.VerificationVerified))
	})
}

func TestDispatcher_DuplicateRegistrationPanics(t *testing.T) {
	store := repository.NewMemoryTransactionStore()
	handlers := DefaultHandlers(Deps{Store: store})
	d := NewDispatcher(store, repository.NewMemoryWebhookRepository(), handlers...)

	assert.Panics(t, func() { d.Register(handlers[0]) })
	assert.True(t, d.Handles(model.EventCaptureCompleted))
}
