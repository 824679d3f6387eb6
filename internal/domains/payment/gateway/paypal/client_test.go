package paypal

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"paysync-backend/internal/domains/payment/gateway"
	"paysync-backend/internal/domains/payment/tokencache"
	"paysync-backend/pkg/cache"
)

type fakePayPal struct {
	tokenCalls   atomic.Int32
	unauthorized atomic.Int32 // number of 401s still to return on API calls
	lastReqID    atomic.Value
	handler      http.HandlerFunc
}

func (f *fakePayPal) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path == pathToken {
		n := f.tokenCalls.Add(1)
		user, pass, ok := r.BasicAuth()
		if !ok || user != "client" || pass != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":"invalid_client","error_description":"Client Authentication failed"}`))
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"access_token": "token-" + string(rune('0'+n)),
			"token_type":   "Bearer",
			"expires_in":   32400,
		})
		return
	}
	if f.unauthorized.Load() > 0 {
		f.unauthorized.Add(-1)
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	f.lastReqID.Store(r.Header.Get(headerRequestID))
	f.handler(w, r)
}

func newTestClient(t *testing.T, fake *fakePayPal) (gateway.Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	tokens, err := tokencache.New(cache.NewMemoryCache(), "test-secret")
	require.NoError(t, err)
	provider, err := NewProvider(NewConfig("client", "secret", srv.URL), tokens)
	require.NoError(t, err)
	return provider.ForSession("sess-1"), srv
}

func TestCreateOrder_SendsRequestIDAndCachesToken(t *testing.T) {
	fake := &fakePayPal{handler: func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, pathOrders, r.URL.Path)
		body, _ := io.ReadAll(r.Body)
		var req gateway.CreateOrderRequest
		require.NoError(t, json.Unmarshal(body, &req))
		assert.Equal(t, "CAPTURE", req.Intent)
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":"5O190127TN364715T","status":"CREATED","links":[{"href":"https://www.paypal.com/checkoutnow?token=5O1","rel":"approve","method":"GET"}]}`))
	}}
	client, _ := newTestClient(t, fake)

	req := gateway.CreateOrderRequest{
		Intent: "CAPTURE",
		PurchaseUnits: []gateway.PurchaseUnitCreate{{
			Amount: gateway.AmountWithBreakdown{CurrencyCode: "USD", Value: "10.00"},
		}},
	}
	order, err := client.CreateOrder(context.Background(), req, "key-123")
	require.NoError(t, err)
	assert.Equal(t, "5O190127TN364715T", order.ID)
	assert.Equal(t, "https://www.paypal.com/checkoutnow?token=5O1", order.ApproveURL())
	assert.Equal(t, "key-123", fake.lastReqID.Load())

	_, err = client.GetOrderStatus(context.Background(), "5O190127TN364715T")
	require.NoError(t, err)
	assert.Equal(t, int32(1), fake.tokenCalls.Load(), "token is fetched once and cached")
}

func TestDo_RetriesOnceAfter401(t *testing.T) {
	fake := &fakePayPal{handler: func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"id":"AUTH-1","status":"CREATED"}`))
	}}
	fake.unauthorized.Store(1)
	client, _ := newTestClient(t, fake)

	res, err := client.GetAuthorizationStatus(context.Background(), "AUTH-1")
	require.NoError(t, err)
	assert.Equal(t, "AUTH-1", res.ID)
	assert.Equal(t, int32(2), fake.tokenCalls.Load())
}

func TestDo_GivesUpAfterSecond401(t *testing.T) {
	fake := &fakePayPal{handler: func(w http.ResponseWriter, r *http.Request) {
		t.Error("should not reach handler")
	}}
	fake.unauthorized.Store(2)
	client, _ := newTestClient(t, fake)

	_, err := client.GetCaptureStatus(context.Background(), "CAP-1")
	require.Error(t, err)
	assert.True(t, gateway.IsUnauthorized(err))
}

func TestDo_ParsesStructuredError(t *testing.T) {
	fake := &fakePayPal{handler: func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"name":"UNPROCESSABLE_ENTITY","message":"The requested action could not be performed.","debug_id":"dbg-42","details":[{"issue":"REFUND_AMOUNT_EXCEEDED","description":"The refund amount must be less than or equal to the capture amount that has not yet been refunded."}]}`))
	}}
	client, _ := newTestClient(t, fake)

	amount := gateway.Money{CurrencyCode: "USD", Value: "500.00"}
	_, err := client.RefundCapture(context.Background(), "CAP-1", gateway.RefundRequest{Amount: &amount})
	require.Error(t, err)

	var apiErr *gateway.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnprocessableEntity, apiErr.HTTPStatus)
	assert.Equal(t, "REFUND_AMOUNT_EXCEEDED", apiErr.IssueCode)
	assert.Equal(t, "dbg-42", apiErr.DebugID)
}

func TestDo_NotFound(t *testing.T) {
	fake := &fakePayPal{handler: func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"name":"RESOURCE_NOT_FOUND","message":"The specified resource does not exist.","details":[{"issue":"INVALID_RESOURCE_ID"}]}`))
	}}
	client, _ := newTestClient(t, fake)

	_, err := client.GetOrderStatus(context.Background(), "missing")
	assert.True(t, gateway.IsNotFound(err))
}

func TestDo_TransportErrorIsNotRetried(t *testing.T) {
	fake := &fakePayPal{handler: func(w http.ResponseWriter, r *http.Request) {}}
	client, srv := newTestClient(t, fake)
	require.True(t, client.HasToken(context.Background()))

	srv.Close()
	_, err := client.GetRefundStatus(context.Background(), "REF-1")
	require.Error(t, err)
	assert.True(t, gateway.IsTransport(err))
}

func TestVoidAuthorization_FetchesWhenNoContent(t *testing.T) {
	fake := &fakePayPal{handler: func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			assert.Equal(t, pathAuthorizations+"/AUTH-1/void", r.URL.Path)
			w.WriteHeader(http.StatusNoContent)
			return
		}
		_, _ = w.Write([]byte(`{"id":"AUTH-1","status":"VOIDED"}`))
	}}
	client, _ := newTestClient(t, fake)

	res, err := client.VoidAuthorization(context.Background(), "AUTH-1")
	require.NoError(t, err)
	assert.Equal(t, "VOIDED", res.Status)
}

func TestValidateCredentials(t *testing.T) {
	fake := &fakePayPal{handler: func(w http.ResponseWriter, r *http.Request) {}}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	tokens, err := tokencache.New(cache.NewMemoryCache(), "test-secret")
	require.NoError(t, err)

	good, err := NewProvider(NewConfig("client", "secret", srv.URL), tokens)
	require.NoError(t, err)
	assert.NoError(t, good.ForSession("s").ValidateCredentials(context.Background()))

	bad, err := NewProvider(NewConfig("client", "wrong", srv.URL), tokens)
	require.NoError(t, err)
	err = bad.ForSession("s2").ValidateCredentials(context.Background())
	var apiErr *gateway.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "INVALID_CLIENT", apiErr.IssueCode)
}

func TestVerifyWebhookSignature(t *testing.T) {
	fake := &fakePayPal{handler: func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, pathVerifyWebhook, r.URL.Path)
		var req gateway.VerifySignatureRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		status := gateway.VerificationStatusFailure
		if req.WebhookID == "WH-1" {
			status = gateway.VerificationStatusSuccess
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"verification_status": status})
	}}
	client, _ := newTestClient(t, fake)

	status, err := client.VerifyWebhookSignature(context.Background(), gateway.VerifySignatureRequest{
		WebhookID: "WH-1", WebhookEvent: json.RawMessage(`{"id":"WH-EVT"}`),
	})
	require.NoError(t, err)
	assert.Equal(t, gateway.VerificationStatusSuccess, status)
}
