package gateway

import (
	"context"
)

// =====================================================
// GATEWAY INTERFACES
// =====================================================

// Client is the REST payment gateway as seen by the payment core.
// Every call blocks until the gateway answers or the HTTP timeout fires;
// failures are *APIError or *TransportError.
type Client interface {
	// CreateOrder submits a new gateway order. requestID is sent as the
	// idempotency header so the gateway collapses duplicate submissions.
	CreateOrder(ctx context.Context, req CreateOrderRequest, requestID string) (*Order, error)

	// CaptureOrder captures an approved CAPTURE-intent order.
	CaptureOrder(ctx context.Context, orderID, requestID string) (*Order, error)

	// AuthorizeOrder authorizes an approved AUTHORIZE-intent order.
	AuthorizeOrder(ctx context.Context, orderID, requestID string) (*Order, error)

	// Reauthorize re-authorizes an authorization for amount. The returned
	// resource carries no parent link.
	Reauthorize(ctx context.Context, authorizationID string, amount Money) (*Resource, error)

	// CaptureAuthorization captures req.Amount, or the remaining amount when nil.
	CaptureAuthorization(ctx context.Context, authorizationID string, req CaptureRequest) (*Resource, error)

	// RefundCapture refunds req.Amount, or the whole capture when nil.
	RefundCapture(ctx context.Context, captureID string, req RefundRequest) (*Resource, error)

	VoidAuthorization(ctx context.Context, authorizationID string) (*Resource, error)

	GetOrderStatus(ctx context.Context, orderID string) (*Order, error)
	GetAuthorizationStatus(ctx context.Context, authorizationID string) (*Resource, error)
	GetCaptureStatus(ctx context.Context, captureID string) (*Resource, error)
	GetRefundStatus(ctx context.Context, refundID string) (*Resource, error)

	// ValidateCredentials checks the configured client id/secret by requesting a token.
	ValidateCredentials(ctx context.Context) error

	// VerifyWebhookSignature asks the gateway to verify a webhook delivery.
	// Returns VerificationStatusSuccess or VerificationStatusFailure.
	VerifyWebhookSignature(ctx context.Context, req VerifySignatureRequest) (string, error)

	// HasToken reports whether a valid access token is cached or can be obtained.
	HasToken(ctx context.Context) bool
}

// Provider hands out clients bound to one session's cached access token.
type Provider interface {
	ForSession(sessionID string) Client
}
