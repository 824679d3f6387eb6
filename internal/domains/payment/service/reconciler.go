package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"paysync-backend/internal/domains/payment/gateway"
	"paysync-backend/internal/domains/payment/model"
	"paysync-backend/internal/domains/payment/repository"
	"paysync-backend/internal/domains/payment/session"
	"paysync-backend/internal/infrastructure/metrics"
	"paysync-backend/internal/infrastructure/tracing"
	"paysync-backend/pkg/logger"
)

// SyncResult reports what a reconciliation pass changed.
// DetailsError is set when the gateway could not be read; the stored graph is
// still usable in that case.
type SyncResult struct {
	Added        []model.Transaction
	Notices      []string
	DetailsError error
	NotFound     bool
}

// =====================================================
// RECONCILER
// =====================================================
type Reconciler struct {
	store    repository.TransactionStore
	gateways gateway.Provider
	alerter  Alerter
	now      func() time.Time
}

func NewReconciler(store repository.TransactionStore, gateways gateway.Provider, alerter Alerter) *Reconciler {
	return &Reconciler{
		store:    store,
		gateways: gateways,
		alerter:  alerter,
		now:      time.Now,
	}
}

// WithClock replaces the time source.
func (r *Reconciler) WithClock(now func() time.Time) *Reconciler {
	r.now = now
	return r
}

// Sync fetches the gateway order behind the order's CREATE node and records
// every authorization, capture and refund the store does not know about.
func (r *Reconciler) Sync(ctx context.Context, scope session.Scope, orderID string) (result *SyncResult, err error) {
	ctx, span := tracing.StartSpan(ctx, "reconciler.Sync", tracing.OrderID(orderID))
	defer func() { tracing.EndSpan(span, err) }()

	root, err := r.store.RootTransaction(ctx, orderID)
	if errors.Is(err, model.ErrRootNotFound) {
		return nil, model.NewOrderNotFoundError(orderID)
	}
	if err != nil {
		return nil, err
	}

	result = &SyncResult{}
	order, gwErr := r.gateways.ForSession(scope.SessionID).GetOrderStatus(ctx, root.TxnID)
	if gwErr != nil {
		if gateway.IsNotFound(gwErr) {
			result.NotFound = true
			return result, nil
		}
		logger.ErrorFields("Failed to fetch gateway order for reconciliation", gwErr, map[string]interface{}{
			"order_id":         orderID,
			"gateway_order_id": root.TxnID,
		})
		result.DetailsError = gwErr
		return result, nil
	}

	known, err := r.store.ListTransactions(ctx, orderID)
	if err != nil {
		return nil, err
	}
	p := &pass{r: r, scope: scope, orderID: orderID, root: root, result: result, known: indexByID(known)}

	p.refresh(ctx, root.TxnID, order.Status, order.UpdateTime)

	// authorizations, then captures, then refunds: each level needs its parents recorded
	for _, pu := range order.PurchaseUnits {
		if pu.Payments == nil {
			continue
		}
		for i := range pu.Payments.Authorizations {
			if err := p.authorization(ctx, &pu.Payments.Authorizations[i]); err != nil {
				return nil, err
			}
		}
	}
	for _, pu := range order.PurchaseUnits {
		if pu.Payments == nil {
			continue
		}
		for i := range pu.Payments.Captures {
			if err := p.capture(ctx, &pu.Payments.Captures[i], pu.Payments.Authorizations); err != nil {
				return nil, err
			}
		}
	}
	for _, pu := range order.PurchaseUnits {
		if pu.Payments == nil {
			continue
		}
		for i := range pu.Payments.Refunds {
			if err := p.refund(ctx, &pu.Payments.Refunds[i], pu.Payments.Captures); err != nil {
				return nil, err
			}
		}
	}

	if len(result.Added) > 0 {
		logger.Info("Reconciled externally added transactions", map[string]interface{}{
			"order_id": orderID,
			"added":    len(result.Added),
		})
	}
	return result, nil
}

// pass holds the state of one Sync call.
type pass struct {
	r       *Reconciler
	scope   session.Scope
	orderID string
	root    *model.Transaction
	result  *SyncResult
	known   map[string]model.Transaction
}

func indexByID(txns []model.Transaction) map[string]model.Transaction {
	out := make(map[string]model.Transaction, len(txns))
	for _, t := range txns {
		out[t.TxnID] = t
	}
	return out
}

// refresh copies a changed gateway status onto a stored node.
func (p *pass) refresh(ctx context.Context, txnID, status string, updated *time.Time) {
	t, ok := p.known[txnID]
	if !ok || status == "" || t.PaymentStatus == status {
		return
	}
	modified := p.r.now().UTC()
	if updated != nil {
		modified = updated.UTC()
	}
	if err := p.r.store.UpdateParentStatus(ctx, p.orderID, txnID, status, modified); err != nil {
		logger.ErrorFields("Failed to refresh transaction status", err, map[string]interface{}{
			"order_id": p.orderID,
			"txn_id":   txnID,
		})
		return
	}
	t.PaymentStatus = status
	t.LastModified = modified
	p.known[txnID] = t
}

func (p *pass) authorization(ctx context.Context, res *gateway.Resource) error {
	if _, ok := p.known[res.ID]; ok {
		p.refresh(ctx, res.ID, res.Status, res.UpdateTime)
		return nil
	}

	parent := res.UpID()
	var memo model.Memo
	if parent == "" {
		// reauthorizations carry no up link; they hang off the primary authorization
		if primary := p.primaryAuthorization(); primary != "" {
			parent = primary
			memo = model.Memo{model.MemoReauthorizationOf: primary}
		} else {
			parent = p.root.TxnID
		}
	}
	return p.insert(ctx, model.TxnTypeAuthorize, res, parent, memo)
}

func (p *pass) capture(ctx context.Context, res *gateway.Resource, auths []gateway.Resource) error {
	if _, ok := p.known[res.ID]; ok {
		p.refresh(ctx, res.ID, res.Status, res.UpdateTime)
		return nil
	}

	parent := res.UpID()
	if parent == "" && res.SupplementaryData != nil && res.SupplementaryData.RelatedIDs != nil {
		parent = res.SupplementaryData.RelatedIDs.AuthorizationID
	}
	if parent == "" {
		if len(auths) == 1 {
			parent = auths[0].ID
		} else {
			parent = p.root.TxnID
		}
	}
	return p.insert(ctx, model.TxnTypeCapture, res, parent, nil)
}

func (p *pass) refund(ctx context.Context, res *gateway.Resource, captures []gateway.Resource) error {
	if _, ok := p.known[res.ID]; ok {
		p.refresh(ctx, res.ID, res.Status, res.UpdateTime)
		return nil
	}

	parent := refundParent(res)
	if parent == "" {
		// the order view sometimes omits the link; the refund itself usually has it
		detail, err := p.r.gateways.ForSession(p.scope.SessionID).GetRefundStatus(ctx, res.ID)
		if err != nil {
			logger.ErrorFields("Failed to look up refund parent", err, map[string]interface{}{
				"order_id": p.orderID,
				"txn_id":   res.ID,
			})
		} else {
			parent = refundParent(detail)
		}
	}
	if parent == "" && len(captures) == 1 {
		parent = captures[0].ID
	}
	if parent == "" {
		p.result.Notices = append(p.result.Notices,
			fmt.Sprintf("Refund %s could not be matched to a capture and was not recorded.", res.ID))
		return nil
	}
	return p.insert(ctx, model.TxnTypeRefund, res, parent, nil)
}

func refundParent(res *gateway.Resource) string {
	if id := res.UpID(); id != "" {
		return id
	}
	if res.SupplementaryData != nil && res.SupplementaryData.RelatedIDs != nil {
		return res.SupplementaryData.RelatedIDs.CaptureID
	}
	return ""
}

// primaryAuthorization is the first authorization hanging directly off the root.
func (p *pass) primaryAuthorization() string {
	var best *model.Transaction
	for id := range p.known {
		t := p.known[id]
		if t.TxnType != model.TxnTypeAuthorize || t.Parent() != p.root.TxnID {
			continue
		}
		if best == nil || t.CreatedAt.Before(best.CreatedAt) {
			best = &t
		}
	}
	if best == nil {
		return ""
	}
	return best.TxnID
}

func (p *pass) insert(ctx context.Context, txnType model.TxnType, res *gateway.Resource, parent string, memo model.Memo) error {
	known, ok := p.known[parent]
	if !ok {
		p.result.Notices = append(p.result.Notices,
			fmt.Sprintf("%s %s references unknown parent %s and was not recorded.", txnType, res.ID, parent))
		return nil
	}
	if !model.CanParent(known.TxnType, txnType) {
		p.result.Notices = append(p.result.Notices,
			fmt.Sprintf("%s %s cannot be recorded under %s %s.", txnType, res.ID, known.TxnType, parent))
		return nil
	}

	if memo == nil {
		memo = model.Memo{}
	}
	memo[model.MemoSource] = model.SourceReconcile

	id, err := p.r.store.RecordTransaction(ctx, p.orderID, txnType, res, parent,
		repository.Externally(),
		repository.WithMemo(memo),
		repository.RecordedAt(p.r.now().UTC()),
	)
	if err != nil {
		return fmt.Errorf("record external %s %s: %w", txnType, res.ID, err)
	}

	added, err := p.r.store.GetTransaction(ctx, p.orderID, id)
	if err != nil {
		return err
	}
	p.known[id] = *added
	p.result.Added = append(p.result.Added, *added)
	metrics.ReconciledTransactionsTotal.WithLabelValues(string(txnType)).Inc()

	notice := fmt.Sprintf("%s %s for %s %s was made outside this system and has been recorded.",
		txnType, id, model.FormatAmount(added.GrossAmount, added.Currency), added.Currency)
	p.result.Notices = append(p.result.Notices, notice)

	if p.r.alerter != nil {
		alert := model.MerchantAlert{
			Kind:    model.AlertExternalActivity,
			OrderID: p.orderID,
			Message: notice,
			Details: map[string]string{
				"txn_id":   id,
				"txn_type": string(txnType),
				"status":   added.PaymentStatus,
			},
			CreatedAt: p.r.now().UTC(),
		}
		if err := p.r.alerter.Alert(ctx, alert); err != nil {
			logger.Error("Failed to send merchant alert", err)
		}
	}
	return nil
}
