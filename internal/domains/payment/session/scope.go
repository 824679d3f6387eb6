// Package session carries per-request payment context explicitly instead of
// reading it from ambient storefront session state.
package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"paysync-backend/pkg/cache"
)

// Scope identifies who is acting and on whose behalf. It is built once per
// request by the HTTP layer (or by a job) and passed down.
type Scope struct {
	SessionID string // gateway token and checkout state are keyed by this
	ActorID   string // admin user id; empty for shoppers and webhooks
	Source    string // memo source recorded on new transactions
}

func (s Scope) Validate() error {
	if s.SessionID == "" {
		return errors.New("session id is required")
	}
	return nil
}

// System returns the scope used by webhooks and background jobs.
func System(source string) Scope {
	return Scope{SessionID: "system", Source: source}
}

// CheckoutState is the per-session record of the last order submitted to the gateway.
type CheckoutState struct {
	IdempotencyKey string `json:"idempotency_key"`
	GatewayOrderID string `json:"gateway_order_id"`
	OrderID        string `json:"order_id"`
	Intent         string `json:"intent"`
	ApproveURL     string `json:"approve_url,omitempty"`
	InvoiceID      string `json:"invoice_id,omitempty"`
}

const (
	checkoutKeyPrefix  = "checkout_scope:"
	completedKeyPrefix = "checkout_completed:"
	DefaultStateTTL    = 3 * time.Hour
)

// Store keeps checkout state in the shared cache.
type Store struct {
	cache cache.Cache
	ttl   time.Duration
}

func NewStore(c cache.Cache, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = DefaultStateTTL
	}
	return &Store{cache: c, ttl: ttl}
}

// Checkout returns the session's checkout state, or nil when none is stored.
func (s *Store) Checkout(ctx context.Context, sessionID string) (*CheckoutState, error) {
	var state CheckoutState
	found, err := s.cache.Get(ctx, checkoutKeyPrefix+sessionID, &state)
	if err != nil {
		return nil, fmt.Errorf("load checkout state: %w", err)
	}
	if !found {
		return nil, nil
	}
	return &state, nil
}

func (s *Store) SaveCheckout(ctx context.Context, sessionID string, state CheckoutState) error {
	if err := s.cache.Set(ctx, checkoutKeyPrefix+sessionID, state, s.ttl); err != nil {
		return fmt.Errorf("save checkout state: %w", err)
	}
	return nil
}

func (s *Store) ClearCheckout(ctx context.Context, sessionID string) error {
	return s.cache.Delete(ctx, checkoutKeyPrefix+sessionID)
}

// CompletedOrders is the number of orders the session has completed.
// It changes the idempotency key so a repeat purchase is a new gateway order.
func (s *Store) CompletedOrders(ctx context.Context, sessionID string) (int64, error) {
	var n int64
	if _, err := s.cache.Get(ctx, completedKeyPrefix+sessionID, &n); err != nil {
		return 0, fmt.Errorf("load completed counter: %w", err)
	}
	return n, nil
}

func (s *Store) IncrementCompleted(ctx context.Context, sessionID string) (int64, error) {
	n, err := s.cache.Increment(ctx, completedKeyPrefix+sessionID)
	if err != nil {
		return 0, fmt.Errorf("increment completed counter: %w", err)
	}
	return n, nil
}
