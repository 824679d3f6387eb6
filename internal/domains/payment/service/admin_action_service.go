package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"paysync-backend/internal/domains/payment/gateway"
	"paysync-backend/internal/domains/payment/model"
	"paysync-backend/internal/domains/payment/repository"
	"paysync-backend/internal/domains/payment/session"
	"paysync-backend/internal/infrastructure/metrics"
	"paysync-backend/pkg/logger"
)

// =====================================================
// ADMIN ACTION SERVICE IMPLEMENTATION
// =====================================================
type adminActionService struct {
	store    repository.TransactionStore
	gateways gateway.Provider
	syncer   Syncer
	orders   OrderStatusUpdater
	alerter  Alerter
	now      func() time.Time
}

type AdminOption func(*adminActionService)

// WithAdminClock replaces the time source used by the authorization windows.
func WithAdminClock(now func() time.Time) AdminOption {
	return func(s *adminActionService) { s.now = now }
}

func NewAdminActionService(
	store repository.TransactionStore,
	gateways gateway.Provider,
	syncer Syncer,
	orders OrderStatusUpdater,
	alerter Alerter,
	opts ...AdminOption,
) AdminActionService {
	s := &adminActionService{
		store:    store,
		gateways: gateways,
		syncer:   syncer,
		orders:   orders,
		alerter:  alerter,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// =====================================================
// LIST (sync first)
// =====================================================

func (s *adminActionService) ListTransactions(ctx context.Context, scope session.Scope, orderID string) (*model.TransactionListResponse, error) {
	resp := &model.TransactionListResponse{OrderID: orderID}

	result, err := s.syncer.Sync(ctx, scope, orderID)
	if err != nil {
		return nil, err
	}
	resp.Notices = append(resp.Notices, result.Notices...)
	if result.NotFound {
		resp.Notices = append(resp.Notices, "The payment gateway no longer has a record of this order.")
	}
	if result.DetailsError != nil {
		resp.SyncError = "Could not refresh from the payment gateway; showing stored transactions."
	}

	txns, err := s.store.ListTransactions(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	resp.Transactions = txns
	return resp, nil
}

// =====================================================
// AUTHORIZE
// =====================================================

// Authorize authorizes an approved order that was created with intent AUTHORIZE.
func (s *adminActionService) Authorize(ctx context.Context, scope session.Scope, orderID string, req model.AuthorizeRequest) (result *model.ActionResult, err error) {
	defer s.observe("authorize", &err)

	if err := req.Validate(); err != nil {
		return nil, model.NewInvalidRequestError(err)
	}
	txns, root, err := s.graph(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if intent, _ := root.Memo[model.MemoIntent].(string); intent == model.IntentCapture {
		return nil, model.NewInvalidTargetError(errors.New("order was created for immediate capture"))
	}
	if len(model.ChildrenOf(txns, root.TxnID, model.TxnTypeAuthorize, model.TxnTypeCapture)) > 0 {
		return nil, model.NewInvalidTargetError(model.ErrAlreadyAuthorized)
	}

	order, err := s.gateways.ForSession(scope.SessionID).AuthorizeOrder(ctx, root.TxnID, uuid.New().String())
	if err != nil {
		return nil, gatewayFailure(ctx, s.alerter, orderID, "authorize", err)
	}

	var recorded *model.Transaction
	for _, auth := range order.Authorizations() {
		auth := auth
		txn, err := s.record(ctx, scope, orderID, model.TxnTypeAuthorize, &auth, root.TxnID, req.Note, nil)
		if err != nil {
			return nil, err
		}
		if recorded == nil {
			recorded = txn
		}
	}
	if recorded == nil {
		return nil, gatewayFailure(ctx, s.alerter, orderID, "authorize", errors.New("gateway returned no authorization"))
	}
	s.refresh(ctx, orderID, root.TxnID, order.Status)

	note := fmt.Sprintf("Authorized %s %s (%s).", model.FormatAmount(recorded.GrossAmount, recorded.Currency), recorded.Currency, recorded.TxnID)
	if err := s.orders.SetStatus(ctx, orderID, model.OrderStatusOnHold, scope.ActorID, withNote(note, req.Note)); err != nil {
		return nil, err
	}
	return s.result(ctx, orderID, recorded, note)
}

// =====================================================
// REAUTHORIZE
// =====================================================

func (s *adminActionService) Reauthorize(ctx context.Context, scope session.Scope, orderID string, req model.ReauthorizeRequest) (result *model.ActionResult, err error) {
	defer s.observe("reauthorize", &err)

	if err := req.Validate(); err != nil {
		return nil, model.NewInvalidRequestError(err)
	}
	txns, _, err := s.graph(ctx, orderID)
	if err != nil {
		return nil, err
	}
	target, err := authorizationTarget(txns, req.AuthorizationID)
	if err != nil {
		return nil, err
	}
	amount, err := model.ParseCurrencyAmount(req.Amount, target.Currency)
	if err != nil {
		return nil, model.NewInvalidRequestError(err)
	}
	if err := s.checkReauthorize(txns, target, amount); err != nil {
		return nil, model.NewReauthorizeDeniedError(err)
	}

	money := gateway.Money{CurrencyCode: target.Currency, Value: model.FormatAmount(amount, target.Currency)}
	res, err := s.gateways.ForSession(scope.SessionID).Reauthorize(ctx, target.TxnID, money)
	if err != nil {
		return nil, gatewayFailure(ctx, s.alerter, orderID, "reauthorize", err)
	}

	// the gateway reports reauthorizations without a parent; back-fill the root authorization
	txn, err := s.record(ctx, scope, orderID, model.TxnTypeAuthorize, res, target.TxnID, req.Note,
		model.Memo{model.MemoReauthorizationOf: target.TxnID})
	if err != nil {
		return nil, err
	}

	note := fmt.Sprintf("Reauthorized %s for %s %s (%s).", target.TxnID, money.Value, money.CurrencyCode, txn.TxnID)
	if err := s.orders.AddNote(ctx, orderID, scope.ActorID, withNote(note, req.Note)); err != nil {
		return nil, err
	}
	return s.result(ctx, orderID, txn, note)
}

// checkReauthorize enforces the reauthorization rules for the root authorization target.
func (s *adminActionService) checkReauthorize(txns []model.Transaction, target model.Transaction, amount decimal.Decimal) error {
	parent, ok := model.FindTransaction(txns, target.Parent())
	if !ok || parent.TxnType != model.TxnTypeCreate {
		return model.ErrReauthorizeNotRoot
	}
	if target.IsVoided() {
		return model.ErrAuthorizationVoided
	}

	now := s.now()
	age := now.Sub(target.CreatedAt)
	if age < days(model.HonorPeriodDays) {
		return model.ErrReauthorizeTooSoon
	}
	if age > days(model.ReauthorizeLastDay) {
		return model.ErrReauthorizeTooLate
	}

	if amount.GreaterThan(ReauthorizeCap(target.GrossAmount, target.Currency)) {
		return model.ErrReauthorizeAmountTooBig
	}

	windowStart := now.Add(-days(model.HonorPeriodDays))
	for _, child := range model.ChildrenOf(txns, target.TxnID, model.TxnTypeAuthorize) {
		if child.CreatedAt.After(windowStart) {
			return model.ErrReauthorizeRepeated
		}
	}
	return nil
}

// ReauthorizeCap is the largest amount an authorization of original may be
// reauthorized for: the smaller of +15% and +75 currency units, truncated to
// the currency's precision so the cap never rounds up.
func ReauthorizeCap(original decimal.Decimal, currency string) decimal.Decimal {
	byPercent := original.Mul(decimal.NewFromInt(model.ReauthorizeMaxPercent)).Div(decimal.NewFromInt(100))
	byIncrease := original.Add(decimal.NewFromInt(model.ReauthorizeMaxIncrease))
	return model.TruncateAmount(decimal.Min(byPercent, byIncrease), currency)
}

// =====================================================
// CAPTURE
// =====================================================

func (s *adminActionService) Capture(ctx context.Context, scope session.Scope, orderID string, req model.CaptureRequest) (result *model.ActionResult, err error) {
	defer s.observe("capture", &err)

	if err := req.Validate(); err != nil {
		return nil, model.NewInvalidRequestError(err)
	}
	txns, _, err := s.graph(ctx, orderID)
	if err != nil {
		return nil, err
	}
	target, err := authorizationTarget(txns, req.AuthorizationID)
	if err != nil {
		return nil, err
	}

	chain := authorizationChain(txns, target)
	current := chain[len(chain)-1]
	for _, auth := range chain {
		if auth.IsVoided() {
			return nil, model.NewCaptureDeniedError(model.ErrAuthorizationVoided)
		}
	}
	captures := capturesOf(txns, chain)
	for _, c := range captures {
		if c.IsFinalCapture() {
			return nil, model.NewCaptureDeniedError(model.ErrAuthorizationCaptured)
		}
	}
	if current.PaymentStatus == model.GatewayStatusCaptured {
		return nil, model.NewCaptureDeniedError(model.ErrAuthorizationCaptured)
	}

	currency := current.Currency
	remaining := current.GrossAmount.Sub(model.SumGross(captures))
	amount := remaining
	if !req.Remaining {
		if amount, err = model.ParseCurrencyAmount(req.Amount, currency); err != nil {
			return nil, model.NewInvalidRequestError(err)
		}
	}
	if !amount.IsPositive() {
		return nil, model.NewCaptureDeniedError(model.ErrCaptureAmountInvalid)
	}
	if amount.GreaterThan(remaining) {
		return nil, model.NewPaymentError(model.ErrCodeAmountExceeded,
			fmt.Sprintf("Capture amount exceeds the remaining authorized amount of %s %s", model.FormatAmount(remaining, currency), currency),
			model.ErrCaptureExceedsAuth)
	}
	final := req.Final || req.Remaining || model.AmountsEqual(amount, remaining, currency)

	client := s.gateways.ForSession(scope.SessionID)
	res, err := client.CaptureAuthorization(ctx, current.TxnID, gateway.CaptureRequest{
		Amount:       &gateway.Money{CurrencyCode: currency, Value: model.FormatAmount(amount, currency)},
		FinalCapture: final,
	})
	if err != nil {
		return nil, gatewayFailure(ctx, s.alerter, orderID, "capture", err)
	}

	txn, err := s.record(ctx, scope, orderID, model.TxnTypeCapture, res, current.TxnID, req.Note,
		model.Memo{model.MemoFinalCapture: final})
	if err != nil {
		return nil, err
	}

	authStatus := model.GatewayStatusPartiallyCaptured
	if final {
		authStatus = model.GatewayStatusCaptured
	}
	if latest, err := client.GetAuthorizationStatus(ctx, current.TxnID); err == nil && latest.Status != "" {
		authStatus = latest.Status
	}
	s.refresh(ctx, orderID, current.TxnID, authStatus)

	note := fmt.Sprintf("Captured %s %s from %s (%s).", model.FormatAmount(amount, currency), currency, current.TxnID, txn.TxnID)
	if final {
		err = s.orders.SetStatus(ctx, orderID, model.OrderStatusProcessing, scope.ActorID, withNote(note, req.Note))
	} else {
		err = s.orders.AddNote(ctx, orderID, scope.ActorID, withNote(note, req.Note))
	}
	if err != nil {
		return nil, err
	}
	return s.result(ctx, orderID, txn, note)
}

// =====================================================
// VOID
// =====================================================

func (s *adminActionService) Void(ctx context.Context, scope session.Scope, orderID string, req model.VoidRequest) (result *model.ActionResult, err error) {
	defer s.observe("void", &err)

	if err := req.Validate(); err != nil {
		return nil, model.NewInvalidRequestError(err)
	}
	txns, root, err := s.graph(ctx, orderID)
	if err != nil {
		return nil, err
	}
	target, err := authorizationTarget(txns, req.AuthorizationID)
	if err != nil {
		return nil, err
	}
	if target.Parent() != root.TxnID {
		return nil, model.NewVoidDeniedError(model.ErrVoidNotPrimary)
	}
	if target.IsVoided() {
		return nil, model.NewVoidDeniedError(model.ErrAuthorizationVoided)
	}
	chain := authorizationChain(txns, target)
	for _, auth := range chain {
		if auth.PaymentStatus == model.GatewayStatusCaptured {
			return nil, model.NewVoidDeniedError(model.ErrAuthorizationCaptured)
		}
	}
	for _, c := range capturesOf(txns, chain) {
		if c.IsFinalCapture() {
			return nil, model.NewVoidDeniedError(model.ErrAuthorizationCaptured)
		}
	}

	res, err := s.gateways.ForSession(scope.SessionID).VoidAuthorization(ctx, target.TxnID)
	if err != nil {
		return nil, gatewayFailure(ctx, s.alerter, orderID, "void", err)
	}
	status := res.Status
	if status == "" {
		status = model.GatewayStatusVoided
	}
	s.refresh(ctx, orderID, target.TxnID, status)

	note := fmt.Sprintf("Voided authorization %s.", target.TxnID)
	if len(model.FilterTransactions(txns, model.TxnTypeCapture)) == 0 {
		err = s.orders.SetStatus(ctx, orderID, model.OrderStatusVoided, scope.ActorID, withNote(note, req.Note))
	} else {
		err = s.orders.AddNote(ctx, orderID, scope.ActorID, withNote(note, req.Note))
	}
	if err != nil {
		return nil, err
	}

	voided, err := s.store.GetTransaction(ctx, orderID, target.TxnID)
	if err != nil {
		return nil, err
	}
	return s.result(ctx, orderID, voided, note)
}

// =====================================================
// REFUND
// =====================================================

func (s *adminActionService) Refund(ctx context.Context, scope session.Scope, orderID string, req model.RefundRequest) (result *model.ActionResult, err error) {
	defer s.observe("refund", &err)

	if err := req.Validate(); err != nil {
		return nil, model.NewInvalidRequestError(err)
	}
	txns, _, err := s.graph(ctx, orderID)
	if err != nil {
		return nil, err
	}
	target, ok := model.FindTransaction(txns, req.CaptureID)
	if !ok {
		return nil, model.NewTransactionNotFoundError(req.CaptureID)
	}
	if target.TxnType != model.TxnTypeCapture {
		return nil, model.NewInvalidTargetError(model.ErrNotCapture)
	}

	currency := target.Currency
	refunded := model.SumGross(model.ChildrenOf(txns, target.TxnID, model.TxnTypeRefund))
	remaining := target.GrossAmount.Sub(refunded)
	amount := remaining
	if !req.Full {
		if amount, err = model.ParseCurrencyAmount(req.Amount, currency); err != nil {
			return nil, model.NewInvalidRequestError(err)
		}
	}
	if !amount.IsPositive() {
		return nil, model.NewRefundDeniedError(model.ErrRefundAmountInvalid)
	}
	if amount.GreaterThan(remaining) {
		return nil, model.NewPaymentError(model.ErrCodeAmountExceeded,
			fmt.Sprintf("Refund amount exceeds the remaining captured amount of %s %s", model.FormatAmount(remaining, currency), currency),
			model.ErrRefundExceedsRemaining)
	}

	client := s.gateways.ForSession(scope.SessionID)
	refundReq := gateway.RefundRequest{}
	if !req.Full {
		refundReq.Amount = &gateway.Money{CurrencyCode: currency, Value: model.FormatAmount(amount, currency)}
	}
	res, err := client.RefundCapture(ctx, target.TxnID, refundReq)
	if err != nil {
		return nil, gatewayFailure(ctx, s.alerter, orderID, "refund", err)
	}

	txn, err := s.record(ctx, scope, orderID, model.TxnTypeRefund, res, target.TxnID, req.Note, nil)
	if err != nil {
		return nil, err
	}

	captureStatus := model.GatewayStatusPartiallyRefunded
	if model.AmountsEqual(amount, remaining, currency) {
		captureStatus = model.GatewayStatusRefunded
	}
	if latest, err := client.GetCaptureStatus(ctx, target.TxnID); err == nil && latest.Status != "" {
		captureStatus = latest.Status
	}
	s.refresh(ctx, orderID, target.TxnID, captureStatus)

	all, err := s.store.ListTransactions(ctx, orderID)
	if err != nil {
		return nil, err
	}
	orderStatus := model.OrderStatusPartiallyRefunded
	totalCaptured := model.SumGross(model.FilterTransactions(all, model.TxnTypeCapture))
	totalRefunded := model.SumGross(model.FilterTransactions(all, model.TxnTypeRefund))
	if model.AmountsEqual(totalCaptured, totalRefunded, currency) {
		orderStatus = model.OrderStatusRefunded
	}

	note := fmt.Sprintf("Refunded %s %s from %s (%s).", model.FormatAmount(amount, currency), currency, target.TxnID, txn.TxnID)
	if err := s.orders.SetStatus(ctx, orderID, orderStatus, scope.ActorID, withNote(note, req.Note)); err != nil {
		return nil, err
	}
	return s.result(ctx, orderID, txn, note)
}

// =====================================================
// HELPERS
// =====================================================

func (s *adminActionService) graph(ctx context.Context, orderID string) ([]model.Transaction, *model.Transaction, error) {
	txns, err := s.store.ListTransactions(ctx, orderID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load transactions: %w", err)
	}
	if len(txns) == 0 || txns[0].TxnType != model.TxnTypeCreate {
		return nil, nil, model.NewOrderNotFoundError(orderID)
	}
	root := txns[0]
	return txns, &root, nil
}

func (s *adminActionService) record(
	ctx context.Context,
	scope session.Scope,
	orderID string,
	txnType model.TxnType,
	res *gateway.Resource,
	parent, note string,
	extra model.Memo,
) (*model.Transaction, error) {
	memo := model.Memo{model.MemoSource: model.SourceAdmin}
	if note != "" {
		memo[model.MemoNote] = note
	}
	if scope.ActorID != "" {
		memo[model.MemoActor] = scope.ActorID
	}
	for k, v := range extra {
		memo[k] = v
	}

	id, err := s.store.RecordTransaction(ctx, orderID, txnType, res, parent,
		repository.WithMemo(memo), repository.RecordedAt(s.now().UTC()))
	if err != nil {
		return nil, fmt.Errorf("failed to record %s: %w", txnType, err)
	}
	return s.store.GetTransaction(ctx, orderID, id)
}

func (s *adminActionService) refresh(ctx context.Context, orderID, txnID, status string) {
	if err := s.store.UpdateParentStatus(ctx, orderID, txnID, status, s.now().UTC()); err != nil {
		logger.ErrorFields("Failed to refresh parent status", err, map[string]interface{}{
			"order_id": orderID,
			"txn_id":   txnID,
		})
	}
}

func (s *adminActionService) result(ctx context.Context, orderID string, txn *model.Transaction, message string) (*model.ActionResult, error) {
	status, err := s.orders.GetStatus(ctx, orderID)
	if err != nil {
		return nil, err
	}
	return &model.ActionResult{
		OrderID:     orderID,
		Transaction: txn,
		OrderStatus: status,
		Message:     message,
	}, nil
}

func (s *adminActionService) observe(action string, err *error) {
	outcome := "ok"
	switch {
	case *err == nil:
	case model.ErrorCode(*err) == model.ErrCodeGatewayError || model.ErrorCode(*err) == model.ErrCodeGatewayUnavailable:
		outcome = "gateway_error"
	default:
		outcome = "denied"
	}
	metrics.AdminActionsTotal.WithLabelValues(action, outcome).Inc()
}

// authorizationTarget finds txnID and checks it is an authorization.
func authorizationTarget(txns []model.Transaction, txnID string) (model.Transaction, error) {
	target, ok := model.FindTransaction(txns, txnID)
	if !ok {
		return model.Transaction{}, model.NewTransactionNotFoundError(txnID)
	}
	if target.TxnType != model.TxnTypeAuthorize {
		return model.Transaction{}, model.NewInvalidTargetError(model.ErrNotAuthorization)
	}
	return target, nil
}

// authorizationChain returns the root authorization of target followed by its
// reauthorizations in creation order. Reauthorizations the gateway refused are
// left out. The last element is the live one.
func authorizationChain(txns []model.Transaction, target model.Transaction) []model.Transaction {
	root := target
	if parent, ok := model.FindTransaction(txns, target.Parent()); ok && parent.TxnType == model.TxnTypeAuthorize {
		root = parent
	}
	chain := []model.Transaction{root}
	for _, reauth := range model.ChildrenOf(txns, root.TxnID, model.TxnTypeAuthorize) {
		if refusedStatus(reauth.PaymentStatus) {
			continue
		}
		chain = append(chain, reauth)
	}
	return chain
}

func refusedStatus(status string) bool {
	switch status {
	case model.GatewayStatusDenied, model.GatewayStatusDeclined, model.GatewayStatusFailed:
		return true
	}
	return false
}

func capturesOf(txns []model.Transaction, chain []model.Transaction) []model.Transaction {
	var out []model.Transaction
	for _, auth := range chain {
		out = append(out, model.ChildrenOf(txns, auth.TxnID, model.TxnTypeCapture)...)
	}
	return out
}

func days(n int) time.Duration {
	return time.Duration(n) * 24 * time.Hour
}

func withNote(summary, note string) string {
	if note == "" {
		return summary
	}
	return summary + " Note: " + note
}
