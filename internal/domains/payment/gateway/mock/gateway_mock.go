package mock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"paysync-backend/internal/domains/payment/gateway"
	"paysync-backend/internal/domains/payment/model"
)

// =====================================================
// MOCK PAYMENT GATEWAY FOR TESTING
// =====================================================
// Keeps orders, authorizations, captures and refunds in memory and follows
// the gateway's status transitions closely enough for reconciliation and
// admin-action tests. Safe for concurrent use.

const linkBase = "https://api.mock.test"

type kind string

const (
	kindAuthorization kind = "authorizations"
	kindCapture       kind = "captures"
	kindRefund        kind = "refunds"
)

// LinkVisibility controls where a refund's parent link is reported.
type LinkVisibility int

const (
	LinkEverywhere LinkVisibility = iota // order view and direct lookup
	LinkOnLookup                         // direct lookup only
	LinkNowhere                          // never; parent must be inferred
)

type entry struct {
	kind    kind
	orderID string
	res     gateway.Resource
	links   LinkVisibility
}

type Gateway struct {
	mu sync.Mutex

	now       func() time.Time
	seq       int
	orders    map[string]*gateway.Order
	entries   map[string]*entry
	sequence  map[string][]string // order id -> resource ids in creation order
	requestID map[string]string   // idempotency header -> order id

	calls map[string]int
	fail  map[string]error

	NoToken      bool
	VerifyStatus string
}

func NewGateway() *Gateway {
	return &Gateway{
		now:          time.Now,
		orders:       make(map[string]*gateway.Order),
		entries:      make(map[string]*entry),
		sequence:     make(map[string][]string),
		requestID:    make(map[string]string),
		calls:        make(map[string]int),
		fail:         make(map[string]error),
		VerifyStatus: gateway.VerificationStatusSuccess,
	}
}

// ForSession lets the mock stand in for a gateway.Provider.
func (m *Gateway) ForSession(string) gateway.Client {
	return m
}

// SetClock replaces the time source used for create/update timestamps.
func (m *Gateway) SetClock(now func() time.Time) {
	m.mu.Lock()
	m.now = now
	m.mu.Unlock()
}

// FailNext makes the next call of op return err.
func (m *Gateway) FailNext(op string, err error) {
	m.mu.Lock()
	m.fail[op] = err
	m.mu.Unlock()
}

// Calls returns how many times op was invoked.
func (m *Gateway) Calls(op string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[op]
}

func (m *Gateway) enter(op string) error {
	m.calls[op]++
	if err, ok := m.fail[op]; ok {
		delete(m.fail, op)
		return err
	}
	return nil
}

func (m *Gateway) nextID(prefix string) string {
	m.seq++
	return fmt.Sprintf("%s-%d", prefix, m.seq)
}

func notFound(id string) error {
	return &gateway.APIError{HTTPStatus: 404, IssueCode: "INVALID_RESOURCE_ID", Message: "resource " + id + " not found"}
}

func unprocessable(issue string) error {
	return &gateway.APIError{HTTPStatus: 422, IssueCode: issue, Message: issue}
}

func upLink(k kind, id string) []gateway.Link {
	path := "/v2/payments/" + string(k) + "/" + id
	if k == "" {
		path = "/v2/checkout/orders/" + id
	}
	return []gateway.Link{
		{Href: linkBase + path, Rel: "up", Method: "GET"},
	}
}

func money(d decimal.Decimal, currency string) *gateway.Money {
	return &gateway.Money{CurrencyCode: currency, Value: model.FormatAmount(d, currency)}
}

func amountOf(res gateway.Resource) decimal.Decimal {
	if res.Amount == nil {
		return decimal.Zero
	}
	d, _ := model.ParseAmount(res.Amount.Value)
	return d
}

func (m *Gateway) add(k kind, orderID string, res gateway.Resource) gateway.Resource {
	now := m.now()
	res.CreateTime = &now
	res.UpdateTime = &now
	m.entries[res.ID] = &entry{kind: k, orderID: orderID, res: res}
	m.sequence[orderID] = append(m.sequence[orderID], res.ID)
	return res
}

func (m *Gateway) touch(e *entry, status string) {
	now := m.now()
	e.res.Status = status
	e.res.UpdateTime = &now
}

func (m *Gateway) sumChildren(parentID string, k kind) decimal.Decimal {
	total := decimal.Zero
	for _, e := range m.entries {
		if e.kind == k && e.res.UpID() == parentID {
			total = total.Add(amountOf(e.res))
		}
	}
	return total
}

func (m *Gateway) snapshot(orderID string) *gateway.Order {
	o := *m.orders[orderID]
	pu := o.PurchaseUnits[0]
	payments := &gateway.Payments{}
	for _, id := range m.sequence[orderID] {
		e := m.entries[id]
		switch e.kind {
		case kindAuthorization:
			payments.Authorizations = append(payments.Authorizations, e.res)
		case kindCapture:
			payments.Captures = append(payments.Captures, e.res)
		case kindRefund:
			payments.Refunds = append(payments.Refunds, m.view(e, false))
		}
	}
	pu.Payments = payments
	o.PurchaseUnits = []gateway.PurchaseUnit{pu}
	return &o
}

// =====================================================
// gateway.Client
// =====================================================

func (m *Gateway) CreateOrder(ctx context.Context, req gateway.CreateOrderRequest, requestID string) (*gateway.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("CreateOrder"); err != nil {
		return nil, err
	}
	if id, ok := m.requestID[requestID]; ok && requestID != "" {
		return m.snapshot(id), nil
	}

	id := m.nextID("ORDER")
	now := m.now()
	pu := gateway.PurchaseUnit{}
	if len(req.PurchaseUnits) > 0 {
		src := req.PurchaseUnits[0]
		amount := src.Amount
		pu = gateway.PurchaseUnit{ReferenceID: src.ReferenceID, CustomID: src.CustomID, InvoiceID: src.InvoiceID, Amount: &amount, Items: src.Items}
	}
	m.orders[id] = &gateway.Order{
		ID:            id,
		Status:        model.GatewayStatusCreated,
		Intent:        req.Intent,
		PurchaseUnits: []gateway.PurchaseUnit{pu},
		CreateTime:    &now,
		UpdateTime:    &now,
		Links: []gateway.Link{
			{Href: linkBase + "/checkoutnow?token=" + id, Rel: "approve", Method: "GET"},
		},
	}
	if requestID != "" {
		m.requestID[requestID] = id
	}
	return m.snapshot(id), nil
}

func (m *Gateway) CaptureOrder(ctx context.Context, orderID, requestID string) (*gateway.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("CaptureOrder"); err != nil {
		return nil, err
	}
	o, ok := m.orders[orderID]
	if !ok {
		return nil, notFound(orderID)
	}
	if o.Status == model.GatewayStatusCompleted {
		return nil, unprocessable("ORDER_ALREADY_CAPTURED")
	}
	a := o.PurchaseUnits[0].Amount
	final := true
	m.add(kindCapture, orderID, gateway.Resource{
		ID:           m.nextID("CAP"),
		Status:       model.GatewayStatusCompleted,
		Amount:       &gateway.Money{CurrencyCode: a.CurrencyCode, Value: a.Value},
		FinalCapture: &final,
		Links:        upLink("", orderID),
	})
	o.Status = model.GatewayStatusCompleted
	return m.snapshot(orderID), nil
}

func (m *Gateway) AuthorizeOrder(ctx context.Context, orderID, requestID string) (*gateway.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("AuthorizeOrder"); err != nil {
		return nil, err
	}
	o, ok := m.orders[orderID]
	if !ok {
		return nil, notFound(orderID)
	}
	if o.Status == model.GatewayStatusCompleted {
		return nil, unprocessable("ORDER_ALREADY_AUTHORIZED")
	}
	a := o.PurchaseUnits[0].Amount
	exp := m.now().AddDate(0, 0, model.AuthorizationValidityDays-1)
	m.add(kindAuthorization, orderID, gateway.Resource{
		ID:             m.nextID("AUTH"),
		Status:         model.GatewayStatusCreated,
		Amount:         &gateway.Money{CurrencyCode: a.CurrencyCode, Value: a.Value},
		ExpirationTime: &exp,
		Links:          upLink("", orderID),
	})
	o.Status = model.GatewayStatusCompleted
	return m.snapshot(orderID), nil
}

func (m *Gateway) Reauthorize(ctx context.Context, authorizationID string, amount gateway.Money) (*gateway.Resource, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("Reauthorize"); err != nil {
		return nil, err
	}
	e, ok := m.entries[authorizationID]
	if !ok || e.kind != kindAuthorization {
		return nil, notFound(authorizationID)
	}
	if e.res.Status == model.GatewayStatusVoided {
		return nil, unprocessable("AUTHORIZATION_VOIDED")
	}
	exp := m.now().AddDate(0, 0, model.HonorPeriodDays)
	res := m.add(kindAuthorization, e.orderID, gateway.Resource{
		ID:             m.nextID("AUTH"),
		Status:         model.GatewayStatusCreated,
		Amount:         &amount,
		ExpirationTime: &exp,
		// the reauthorize response carries no up link
	})
	return &res, nil
}

func (m *Gateway) CaptureAuthorization(ctx context.Context, authorizationID string, req gateway.CaptureRequest) (*gateway.Resource, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("CaptureAuthorization"); err != nil {
		return nil, err
	}
	e, ok := m.entries[authorizationID]
	if !ok || e.kind != kindAuthorization {
		return nil, notFound(authorizationID)
	}
	switch e.res.Status {
	case model.GatewayStatusVoided:
		return nil, unprocessable("AUTHORIZATION_VOIDED")
	case model.GatewayStatusCaptured:
		return nil, unprocessable("AUTHORIZATION_ALREADY_CAPTURED")
	}

	currency := e.res.Amount.CurrencyCode
	remaining := amountOf(e.res).Sub(m.sumChildren(authorizationID, kindCapture))
	amount := remaining
	if req.Amount != nil {
		amount, _ = model.ParseAmount(req.Amount.Value)
	}
	if amount.GreaterThan(remaining) {
		return nil, unprocessable("MAX_CAPTURE_AMOUNT_EXCEEDED")
	}

	final := req.FinalCapture || amount.Equal(remaining)
	res := m.add(kindCapture, e.orderID, gateway.Resource{
		ID:           m.nextID("CAP"),
		Status:       model.GatewayStatusCompleted,
		Amount:       money(amount, currency),
		FinalCapture: &final,
		InvoiceID:    req.InvoiceID,
		Links:        upLink(kindAuthorization, authorizationID),
	})
	if final {
		m.touch(e, model.GatewayStatusCaptured)
	} else {
		m.touch(e, model.GatewayStatusPartiallyCaptured)
	}
	return &res, nil
}

func (m *Gateway) RefundCapture(ctx context.Context, captureID string, req gateway.RefundRequest) (*gateway.Resource, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("RefundCapture"); err != nil {
		return nil, err
	}
	res, err := m.refundLocked(captureID, req.Amount, LinkEverywhere)
	if err != nil {
		return nil, err
	}
	return &res, nil
}

func (m *Gateway) refundLocked(captureID string, amt *gateway.Money, vis LinkVisibility) (gateway.Resource, error) {
	e, ok := m.entries[captureID]
	if !ok || e.kind != kindCapture {
		return gateway.Resource{}, notFound(captureID)
	}
	currency := e.res.Amount.CurrencyCode
	remaining := amountOf(e.res).Sub(m.sumChildren(captureID, kindRefund))
	amount := remaining
	if amt != nil {
		amount, _ = model.ParseAmount(amt.Value)
	}
	if !remaining.IsPositive() {
		return gateway.Resource{}, unprocessable("CAPTURE_FULLY_REFUNDED")
	}
	if amount.GreaterThan(remaining) {
		return gateway.Resource{}, unprocessable("REFUND_AMOUNT_EXCEEDED")
	}

	res := gateway.Resource{
		ID:     m.nextID("REF"),
		Status: model.GatewayStatusCompleted,
		Amount: money(amount, currency),
		Links:  upLink(kindCapture, captureID),
	}
	res = m.add(kindRefund, e.orderID, res)
	m.entries[res.ID].links = vis
	if amount.Equal(remaining) {
		m.touch(e, model.GatewayStatusRefunded)
	} else {
		m.touch(e, model.GatewayStatusPartiallyRefunded)
	}
	return m.view(m.entries[res.ID], true), nil
}

// view returns the resource as the gateway would report it.
func (m *Gateway) view(e *entry, lookup bool) gateway.Resource {
	res := e.res
	hide := e.links == LinkNowhere || (e.links == LinkOnLookup && !lookup)
	if hide {
		res.Links = nil
	}
	return res
}

func (m *Gateway) VoidAuthorization(ctx context.Context, authorizationID string) (*gateway.Resource, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("VoidAuthorization"); err != nil {
		return nil, err
	}
	e, ok := m.entries[authorizationID]
	if !ok || e.kind != kindAuthorization {
		return nil, notFound(authorizationID)
	}
	if e.res.Status == model.GatewayStatusVoided {
		return nil, unprocessable("PREVIOUSLY_VOIDED")
	}
	m.touch(e, model.GatewayStatusVoided)
	res := e.res
	return &res, nil
}

func (m *Gateway) GetOrderStatus(ctx context.Context, orderID string) (*gateway.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("GetOrderStatus"); err != nil {
		return nil, err
	}
	if _, ok := m.orders[orderID]; !ok {
		return nil, notFound(orderID)
	}
	return m.snapshot(orderID), nil
}

func (m *Gateway) get(op, id string, k kind) (*gateway.Resource, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter(op); err != nil {
		return nil, err
	}
	e, ok := m.entries[id]
	if !ok || e.kind != k {
		return nil, notFound(id)
	}
	res := m.view(e, true)
	return &res, nil
}

func (m *Gateway) GetAuthorizationStatus(ctx context.Context, id string) (*gateway.Resource, error) {
	return m.get("GetAuthorizationStatus", id, kindAuthorization)
}

func (m *Gateway) GetCaptureStatus(ctx context.Context, id string) (*gateway.Resource, error) {
	return m.get("GetCaptureStatus", id, kindCapture)
}

func (m *Gateway) GetRefundStatus(ctx context.Context, id string) (*gateway.Resource, error) {
	return m.get("GetRefundStatus", id, kindRefund)
}

func (m *Gateway) ValidateCredentials(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("ValidateCredentials"); err != nil {
		return err
	}
	if m.NoToken {
		return gateway.ErrNoToken
	}
	return nil
}

func (m *Gateway) VerifyWebhookSignature(ctx context.Context, req gateway.VerifySignatureRequest) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("VerifyWebhookSignature"); err != nil {
		return "", err
	}
	if m.NoToken {
		return "", gateway.ErrNoToken
	}
	return m.VerifyStatus, nil
}

func (m *Gateway) HasToken(ctx context.Context) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return !m.NoToken
}

// =====================================================
// OUT-OF-BAND ACTIVITY (what an operator does in the gateway console)
// =====================================================

// ExternalCapture captures amount against an authorization without going
// through this system.
func (m *Gateway) ExternalCapture(authorizationID string, amount decimal.Decimal, final bool) (gateway.Resource, error) {
	m.mu.Lock()
	currency := ""
	if e, ok := m.entries[authorizationID]; ok && e.res.Amount != nil {
		currency = e.res.Amount.CurrencyCode
	}
	m.mu.Unlock()
	res, err := m.CaptureAuthorization(context.Background(), authorizationID, gateway.CaptureRequest{
		Amount:       money(amount, currency),
		FinalCapture: final,
	})
	if err != nil {
		return gateway.Resource{}, err
	}
	m.mu.Lock()
	m.calls["CaptureAuthorization"]--
	m.mu.Unlock()
	return *res, nil
}

// ExternalRefund refunds amount against a capture without going through this
// system.
func (m *Gateway) ExternalRefund(captureID string, amount decimal.Decimal, vis LinkVisibility) (gateway.Resource, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	currency := ""
	if e, ok := m.entries[captureID]; ok && e.res.Amount != nil {
		currency = e.res.Amount.CurrencyCode
	}
	return m.refundLocked(captureID, money(amount, currency), vis)
}

// Approve marks an order as approved by the payer.
func (m *Gateway) Approve(orderID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if o, ok := m.orders[orderID]; ok {
		o.Status = model.GatewayStatusApproved
	}
}
