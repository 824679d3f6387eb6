package paypal

import (
	"fmt"
	"time"
)

// =====================================================
// PAYPAL CONFIGURATION
// =====================================================

type Config struct {
	ClientID       string        // REST app client id
	ClientSecret   string        // REST app secret
	BaseURL        string        // https://api-m.sandbox.paypal.com or https://api-m.paypal.com
	ConnectTimeout time.Duration // dial + TLS handshake
	RequestTimeout time.Duration // whole request including body
	TokenSkew      time.Duration // refresh tokens this long before the gateway expires them
}

// NewConfig creates PayPal configuration with the default timeouts.
func NewConfig(clientID, clientSecret, baseURL string) *Config {
	return &Config{
		ClientID:       clientID,
		ClientSecret:   clientSecret,
		BaseURL:        baseURL,
		ConnectTimeout: 10 * time.Second,
		RequestTimeout: 45 * time.Second,
		TokenSkew:      60 * time.Second,
	}
}

// Validate validates configuration
func (c *Config) Validate() error {
	if c.ClientID == "" {
		return fmt.Errorf("PayPal ClientID is required")
	}
	if c.ClientSecret == "" {
		return fmt.Errorf("PayPal ClientSecret is required")
	}
	if c.BaseURL == "" {
		return fmt.Errorf("PayPal BaseURL is required")
	}
	if c.ConnectTimeout <= 0 || c.RequestTimeout <= 0 {
		return fmt.Errorf("PayPal timeouts must be positive")
	}
	return nil
}

// =====================================================
// PAYPAL ENDPOINTS
// =====================================================

const (
	pathToken            = "/v1/oauth2/token"
	pathVerifyWebhook    = "/v1/notifications/verify-webhook-signature"
	pathOrders           = "/v2/checkout/orders"
	pathAuthorizations   = "/v2/payments/authorizations"
	pathCaptures         = "/v2/payments/captures"
	pathRefunds          = "/v2/payments/refunds"
	headerRequestID      = "PayPal-Request-Id"
	headerPrefer         = "Prefer"
	preferRepresentation = "return=representation"
)
