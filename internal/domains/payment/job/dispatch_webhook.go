package job

import (
	"context"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"paysync-backend/internal/domains/payment/webhook"
	"paysync-backend/internal/shared"
	"paysync-backend/internal/shared/utils"
	"paysync-backend/pkg/logger"
)

// =====================================================
// PRODUCER
// =====================================================

// WebhookQueue hands verified deliveries to the worker.
type WebhookQueue struct {
	client Enqueuer
}

func NewWebhookQueue(client Enqueuer) *WebhookQueue {
	return &WebhookQueue{client: client}
}

var _ webhook.Scheduler = (*WebhookQueue)(nil)

func (q *WebhookQueue) Schedule(ctx context.Context, body []byte, verification string) error {
	task, err := utils.NewTask(shared.TypeDispatchWebhook, DispatchWebhookPayload{
		Body:         body,
		Verification: verification,
	})
	if err != nil {
		return err
	}
	info, err := q.client.EnqueueContext(ctx, task,
		asynq.Queue(shared.QueueWebhooks),
		asynq.MaxRetry(10),
		asynq.Timeout(2*time.Minute),
	)
	if err != nil {
		return fmt.Errorf("enqueue webhook dispatch: %w", err)
	}
	logger.Debug("Webhook dispatch enqueued as " + info.ID)
	return nil
}

// =====================================================
// HANDLER
// =====================================================

type DispatchWebhookHandler struct {
	dispatcher *webhook.Dispatcher
}

func NewDispatchWebhookHandler(dispatcher *webhook.Dispatcher) *DispatchWebhookHandler {
	return &DispatchWebhookHandler{dispatcher: dispatcher}
}

func (h *DispatchWebhookHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload DispatchWebhookPayload
	if err := utils.UnmarshalTask(t, &payload); err != nil {
		return err
	}
	if err := h.dispatcher.Dispatch(ctx, payload.Body, payload.Verification); err != nil {
		return fmt.Errorf("dispatch webhook: %w", err)
	}
	return nil
}
