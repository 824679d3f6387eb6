package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"paysync-backend/internal/domains/payment/gateway/mock"
	"paysync-backend/internal/domains/payment/model"
	"paysync-backend/internal/domains/payment/repository"
	"paysync-backend/internal/domains/payment/session"
	"paysync-backend/pkg/cache"
)

type recordingAlerter struct {
	mu     sync.Mutex
	alerts []model.MerchantAlert
}

func (a *recordingAlerter) Alert(ctx context.Context, alert model.MerchantAlert) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.alerts = append(a.alerts, alert)
	return nil
}

func (a *recordingAlerter) kinds() []model.AlertKind {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]model.AlertKind, len(a.alerts))
	for i, al := range a.alerts {
		out[i] = al.Kind
	}
	return out
}

type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

type fixture struct {
	clock      *manualClock
	gw         *mock.Gateway
	store      *repository.MemoryTransactionStore
	orders     *repository.MemoryOrderStateRepository
	scopes     *session.Store
	alerts     *recordingAlerter
	reconciler *Reconciler
	admin      AdminActionService
	checkout   CheckoutService
}

var (
	t0       = time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)
	shopper  = session.Scope{SessionID: "sess-shopper"}
	operator = session.Scope{SessionID: "sess-admin", ActorID: "admin-7", Source: model.SourceAdmin}
)

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		clock:  &manualClock{now: t0},
		gw:     mock.NewGateway(),
		store:  repository.NewMemoryTransactionStore(),
		orders: repository.NewMemoryOrderStateRepository(),
		scopes: session.NewStore(cache.NewMemoryCache(), 0),
		alerts: &recordingAlerter{},
	}
	f.gw.SetClock(f.clock.Now)
	f.reconciler = NewReconciler(f.store, f.gw, f.alerts).WithClock(f.clock.Now)
	f.admin = NewAdminActionService(f.store, f.gw, f.reconciler, f.orders, f.alerts, WithAdminClock(f.clock.Now))
	f.checkout = NewCheckoutService(f.store, f.gw, f.scopes, f.orders, f.alerts)
	return f
}

// placeOrder runs checkout end to end and returns the completed response.
func (f *fixture) placeOrder(t *testing.T, orderID, intent, total string) *model.CompleteOrderResponse {
	t.Helper()
	return f.placeOrderIn(t, orderID, intent, "USD", total)
}

func (f *fixture) placeOrderIn(t *testing.T, orderID, intent, currency, total string) *model.CompleteOrderResponse {
	t.Helper()
	ctx := context.Background()
	scope := session.Scope{SessionID: "sess-" + orderID}

	created, err := f.checkout.CreateOrder(ctx, scope, model.CreateOrderRequest{
		OrderID:  orderID,
		Intent:   intent,
		Currency: currency,
		Total:    total,
	})
	require.NoError(t, err)
	f.gw.Approve(created.GatewayOrderID)

	done, err := f.checkout.CompleteOrder(ctx, scope, created.GatewayOrderID)
	require.NoError(t, err)
	return done
}

func (f *fixture) status(t *testing.T, orderID string) string {
	t.Helper()
	s, err := f.orders.GetStatus(context.Background(), orderID)
	require.NoError(t, err)
	return s
}

func day(n int) time.Duration {
	return time.Duration(n) * 24 * time.Hour
}
