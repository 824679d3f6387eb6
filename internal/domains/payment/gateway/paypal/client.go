package paypal

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"paysync-backend/internal/domains/payment/gateway"
	"paysync-backend/internal/domains/payment/tokencache"
	"paysync-backend/internal/infrastructure/metrics"
	"paysync-backend/internal/infrastructure/tracing"
	"paysync-backend/pkg/logger"
)

// =====================================================
// PROVIDER
// =====================================================

// Provider owns the HTTP client and token cache shared by all sessions.
type Provider struct {
	config     *Config
	httpClient *http.Client
	tokens     *tokencache.TokenCache
}

func NewProvider(config *Config, tokens *tokencache.TokenCache) (*Provider, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid PayPal config: %w", err)
	}
	if tokens == nil {
		return nil, errors.New("token cache is required")
	}

	dialer := &net.Dialer{Timeout: config.ConnectTimeout}
	return &Provider{
		config: config,
		httpClient: &http.Client{
			Timeout: config.RequestTimeout,
			Transport: &http.Transport{
				Proxy:               http.ProxyFromEnvironment,
				DialContext:         dialer.DialContext,
				TLSHandshakeTimeout: config.ConnectTimeout,
				MaxIdleConns:        20,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		tokens: tokens,
	}, nil
}

// ForSession returns a client whose access token is cached under sessionID.
func (p *Provider) ForSession(sessionID string) gateway.Client {
	return &Client{provider: p, sessionID: sessionID}
}

// =====================================================
// CLIENT
// =====================================================

type Client struct {
	provider  *Provider
	sessionID string
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

type errorDetail struct {
	Issue       string `json:"issue"`
	Description string `json:"description"`
}

type errorBody struct {
	Name             string        `json:"name"`
	Message          string        `json:"message"`
	DebugID          string        `json:"debug_id"`
	Details          []errorDetail `json:"details"`
	Error            string        `json:"error"`
	ErrorDescription string        `json:"error_description"`
}

type verifyResponse struct {
	VerificationStatus string `json:"verification_status"`
}

// =====================================================
// ORDERS
// =====================================================

func (c *Client) CreateOrder(ctx context.Context, req gateway.CreateOrderRequest, requestID string) (*gateway.Order, error) {
	var out gateway.Order
	if err := c.do(ctx, "create_order", http.MethodPost, pathOrders, req, requestID, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) CaptureOrder(ctx context.Context, orderID, requestID string) (*gateway.Order, error) {
	var out gateway.Order
	path := pathOrders + "/" + url.PathEscape(orderID) + "/capture"
	if err := c.do(ctx, "capture_order", http.MethodPost, path, struct{}{}, requestID, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) AuthorizeOrder(ctx context.Context, orderID, requestID string) (*gateway.Order, error) {
	var out gateway.Order
	path := pathOrders + "/" + url.PathEscape(orderID) + "/authorize"
	if err := c.do(ctx, "authorize_order", http.MethodPost, path, struct{}{}, requestID, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) GetOrderStatus(ctx context.Context, orderID string) (*gateway.Order, error) {
	var out gateway.Order
	if err := c.do(ctx, "get_order", http.MethodGet, pathOrders+"/"+url.PathEscape(orderID), nil, "", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// =====================================================
// PAYMENTS
// =====================================================

func (c *Client) Reauthorize(ctx context.Context, authorizationID string, amount gateway.Money) (*gateway.Resource, error) {
	body := struct {
		Amount gateway.Money `json:"amount"`
	}{Amount: amount}
	path := pathAuthorizations + "/" + url.PathEscape(authorizationID) + "/reauthorize"
	return c.resource(ctx, "reauthorize", http.MethodPost, path, body)
}

func (c *Client) CaptureAuthorization(ctx context.Context, authorizationID string, req gateway.CaptureRequest) (*gateway.Resource, error) {
	path := pathAuthorizations + "/" + url.PathEscape(authorizationID) + "/capture"
	return c.resource(ctx, "capture_authorization", http.MethodPost, path, req)
}

func (c *Client) RefundCapture(ctx context.Context, captureID string, req gateway.RefundRequest) (*gateway.Resource, error) {
	path := pathCaptures + "/" + url.PathEscape(captureID) + "/refund"
	return c.resource(ctx, "refund_capture", http.MethodPost, path, req)
}

// VoidAuthorization voids and returns the voided authorization. When the
// gateway answers 204 without a body the authorization is fetched.
func (c *Client) VoidAuthorization(ctx context.Context, authorizationID string) (*gateway.Resource, error) {
	path := pathAuthorizations + "/" + url.PathEscape(authorizationID) + "/void"
	res, err := c.resource(ctx, "void_authorization", http.MethodPost, path, struct{}{})
	if err != nil {
		return nil, err
	}
	if res.ID == "" {
		return c.GetAuthorizationStatus(ctx, authorizationID)
	}
	return res, nil
}

func (c *Client) GetAuthorizationStatus(ctx context.Context, authorizationID string) (*gateway.Resource, error) {
	return c.resource(ctx, "get_authorization", http.MethodGet, pathAuthorizations+"/"+url.PathEscape(authorizationID), nil)
}

func (c *Client) GetCaptureStatus(ctx context.Context, captureID string) (*gateway.Resource, error) {
	return c.resource(ctx, "get_capture", http.MethodGet, pathCaptures+"/"+url.PathEscape(captureID), nil)
}

func (c *Client) GetRefundStatus(ctx context.Context, refundID string) (*gateway.Resource, error) {
	return c.resource(ctx, "get_refund", http.MethodGet, pathRefunds+"/"+url.PathEscape(refundID), nil)
}

func (c *Client) resource(ctx context.Context, op, method, path string, body interface{}) (*gateway.Resource, error) {
	var out gateway.Resource
	if err := c.do(ctx, op, method, path, body, "", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// =====================================================
// CREDENTIALS & WEBHOOK POSTBACK
// =====================================================

func (c *Client) ValidateCredentials(ctx context.Context) error {
	_, _, err := c.fetchToken(ctx)
	return err
}

func (c *Client) VerifyWebhookSignature(ctx context.Context, req gateway.VerifySignatureRequest) (string, error) {
	if !c.HasToken(ctx) {
		return "", gateway.ErrNoToken
	}
	var out verifyResponse
	if err := c.do(ctx, "verify_webhook", http.MethodPost, pathVerifyWebhook, req, "", &out); err != nil {
		return "", err
	}
	return out.VerificationStatus, nil
}

func (c *Client) HasToken(ctx context.Context) bool {
	_, err := c.accessToken(ctx)
	return err == nil
}

// =====================================================
// TRANSPORT
// =====================================================

// do runs one authenticated call. A 401 clears the cached token and the call
// is retried exactly once with a fresh token; nothing else is retried.
func (c *Client) do(ctx context.Context, op, method, path string, body interface{}, requestID string, out interface{}) error {
	var payload []byte
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode %s request: %w", op, err)
		}
		payload = raw
	}

	for attempt := 0; ; attempt++ {
		token, err := c.accessToken(ctx)
		if err != nil {
			return err
		}

		err = c.send(ctx, op, method, path, payload, token, requestID, out)
		if gateway.IsUnauthorized(err) && attempt == 0 {
			logger.Warn("gateway rejected cached token, refreshing", map[string]interface{}{
				"operation": op,
				"session":   c.sessionID,
			})
			if clearErr := c.provider.tokens.Clear(ctx, c.sessionID); clearErr != nil {
				logger.Error("failed to clear gateway token", clearErr)
			}
			continue
		}
		return err
	}
}

func (c *Client) send(ctx context.Context, op, method, path string, payload []byte, token, requestID string, out interface{}) (err error) {
	ctx, span := tracing.StartSpan(ctx, "paypal."+op, tracing.Operation(op))
	start := time.Now()
	defer func() {
		metrics.ObserveGateway(op, outcomeOf(err), time.Since(start))
		tracing.EndSpan(span, err)
	}()

	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, c.provider.config.BaseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to build %s request: %w", op, err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+token)
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set(headerPrefer, preferRepresentation)
	if payload != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if requestID != "" {
		httpReq.Header.Set(headerRequestID, requestID)
	}

	resp, err := c.provider.httpClient.Do(httpReq)
	if err != nil {
		return &gateway.TransportError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return &gateway.TransportError{Op: op, Err: err}
	}

	if resp.StatusCode >= http.StatusBadRequest {
		return parseAPIError(resp, respBody)
	}
	if resp.StatusCode == http.StatusNoContent || len(bytes.TrimSpace(respBody)) == 0 || out == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("failed to parse %s response: %w", op, err)
	}
	return nil
}

func (c *Client) accessToken(ctx context.Context) (string, error) {
	if token, ok := c.provider.tokens.Get(ctx, c.sessionID); ok {
		return token, nil
	}

	token, ttl, err := c.fetchToken(ctx)
	if err != nil {
		return "", err
	}
	if err := c.provider.tokens.Save(ctx, c.sessionID, token, ttl); err != nil {
		// still usable for this request
		logger.Error("failed to cache gateway token", err)
	}
	return token, nil
}

func (c *Client) fetchToken(ctx context.Context) (token string, ttl time.Duration, err error) {
	const op = "oauth_token"
	ctx, span := tracing.StartSpan(ctx, "paypal."+op, tracing.Operation(op))
	start := time.Now()
	defer func() {
		metrics.ObserveGateway(op, outcomeOf(err), time.Since(start))
		tracing.EndSpan(span, err)
	}()

	form := url.Values{"grant_type": {"client_credentials"}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.provider.config.BaseURL+pathToken, strings.NewReader(form.Encode()))
	if err != nil {
		return "", 0, fmt.Errorf("failed to build token request: %w", err)
	}
	req.SetBasicAuth(c.provider.config.ClientID, c.provider.config.ClientSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := c.provider.httpClient.Do(req)
	if err != nil {
		return "", 0, &gateway.TransportError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", 0, &gateway.TransportError{Op: op, Err: err}
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return "", 0, parseAPIError(resp, body)
	}

	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return "", 0, fmt.Errorf("failed to parse token response: %w", err)
	}
	if tr.AccessToken == "" {
		return "", 0, gateway.ErrNoToken
	}

	ttl = time.Duration(tr.ExpiresIn)*time.Second - c.provider.config.TokenSkew
	if ttl < time.Second {
		ttl = time.Second
	}
	return tr.AccessToken, ttl, nil
}

func parseAPIError(resp *http.Response, body []byte) *gateway.APIError {
	apiErr := &gateway.APIError{
		HTTPStatus: resp.StatusCode,
		DebugID:    resp.Header.Get("Paypal-Debug-Id"),
		Message:    http.StatusText(resp.StatusCode),
	}

	var eb errorBody
	if err := json.Unmarshal(body, &eb); err != nil {
		return apiErr
	}
	switch {
	case len(eb.Details) > 0:
		apiErr.IssueCode = eb.Details[0].Issue
		if eb.Details[0].Description != "" {
			apiErr.Message = eb.Details[0].Description
		}
	case eb.Name != "":
		apiErr.IssueCode = eb.Name
	case eb.Error != "":
		apiErr.IssueCode = strings.ToUpper(eb.Error)
	}
	if apiErr.Message == http.StatusText(resp.StatusCode) {
		if eb.Message != "" {
			apiErr.Message = eb.Message
		} else if eb.ErrorDescription != "" {
			apiErr.Message = eb.ErrorDescription
		}
	}
	if eb.DebugID != "" {
		apiErr.DebugID = eb.DebugID
	}
	return apiErr
}

func outcomeOf(err error) string {
	switch {
	case err == nil:
		return "ok"
	case gateway.IsTransport(err):
		return "transport_error"
	default:
		return "api_error"
	}
}
