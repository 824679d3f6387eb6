package job

import (
	"context"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"paysync-backend/internal/domains/payment/model"
	"paysync-backend/internal/domains/payment/repository"
	"paysync-backend/internal/domains/payment/service"
	"paysync-backend/internal/domains/payment/session"
	"paysync-backend/internal/shared/utils"
	"paysync-backend/pkg/logger"
)

const (
	// authorizations older than this are close enough to expiry to re-check
	defaultMinAgeDays = model.HonorPeriodDays
	defaultBatchLimit = 200
)

// ReconcileOpenAuthorizationsHandler syncs orders whose primary
// authorization the gateway may have moved without telling us.
type ReconcileOpenAuthorizationsHandler struct {
	store  repository.TransactionStore
	syncer service.Syncer
	now    func() time.Time
}

func NewReconcileOpenAuthorizationsHandler(store repository.TransactionStore, syncer service.Syncer) *ReconcileOpenAuthorizationsHandler {
	return &ReconcileOpenAuthorizationsHandler{store: store, syncer: syncer, now: time.Now}
}

func (h *ReconcileOpenAuthorizationsHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload ReconcileOpenAuthorizationsPayload
	if len(t.Payload()) > 0 {
		if err := utils.UnmarshalTask(t, &payload); err != nil {
			return err
		}
	}
	if payload.MinAgeDays <= 0 {
		payload.MinAgeDays = defaultMinAgeDays
	}
	if payload.Limit <= 0 {
		payload.Limit = defaultBatchLimit
	}

	cutoff := h.now().UTC().Add(-time.Duration(payload.MinAgeDays) * 24 * time.Hour)
	orderIDs, err := h.store.ListOrdersWithOpenAuthorizations(ctx, cutoff, payload.Limit)
	if err != nil {
		return fmt.Errorf("list open authorizations: %w", err)
	}

	scope := session.System(model.SourceReconcile)
	var added, failed int
	for _, orderID := range orderIDs {
		result, err := h.syncer.Sync(ctx, scope, orderID)
		if err != nil {
			failed++
			logger.ErrorFields("Scheduled reconciliation failed", err, map[string]interface{}{"order_id": orderID})
			continue
		}
		if result.DetailsError != nil {
			failed++
			continue
		}
		added += len(result.Added)
	}

	logger.Info("Scheduled reconciliation finished", map[string]interface{}{
		"orders": len(orderIDs),
		"added":  added,
		"failed": failed,
	})
	if failed > 0 && failed == len(orderIDs) {
		return fmt.Errorf("reconciliation failed for all %d orders", failed)
	}
	return nil
}
