package job

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/hibiken/asynq"

	"paysync-backend/internal/domains/payment/model"
	"paysync-backend/internal/domains/payment/service"
	"paysync-backend/internal/infrastructure/email"
	"paysync-backend/internal/shared"
	"paysync-backend/internal/shared/utils"
	"paysync-backend/pkg/logger"
)

// =====================================================
// PRODUCER
// =====================================================

// QueueAlerter sends merchant alerts through the worker. When the queue is
// unreachable the alert is logged in-process instead of being lost.
type QueueAlerter struct {
	client   Enqueuer
	fallback service.Alerter
}

func NewQueueAlerter(client Enqueuer, fallback service.Alerter) *QueueAlerter {
	return &QueueAlerter{client: client, fallback: fallback}
}

var _ service.Alerter = (*QueueAlerter)(nil)

func (a *QueueAlerter) Alert(ctx context.Context, alert model.MerchantAlert) error {
	task, err := utils.NewTask(shared.TypeSendMerchantAlert, alert)
	if err == nil {
		_, err = a.client.EnqueueContext(ctx, task,
			asynq.Queue(shared.QueueAlerts),
			asynq.MaxRetry(5),
			asynq.Timeout(time.Minute),
		)
	}
	if err != nil {
		logger.Error("Failed to enqueue merchant alert, logging inline", err)
		return a.fallback.Alert(ctx, alert)
	}
	return nil
}

// =====================================================
// HANDLER
// =====================================================

type MerchantAlertHandler struct {
	mailer     email.EmailService
	recipients []string
	log        service.Alerter
}

func NewMerchantAlertHandler(mailer email.EmailService, recipients []string) *MerchantAlertHandler {
	return &MerchantAlertHandler{
		mailer:     mailer,
		recipients: recipients,
		log:        service.NewLogAlerter(),
	}
}

func (h *MerchantAlertHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var alert model.MerchantAlert
	if err := utils.UnmarshalTask(t, &alert); err != nil {
		return err
	}

	if retried, _ := asynq.GetRetryCount(ctx); retried == 0 {
		_ = h.log.Alert(ctx, alert)
	}
	if h.mailer == nil || len(h.recipients) == 0 {
		return nil
	}

	if err := h.mailer.Send(ctx, alertEmail(alert, h.recipients)); err != nil {
		return fmt.Errorf("send merchant alert: %w", err)
	}
	return nil
}

func alertEmail(alert model.MerchantAlert, to []string) email.Message {
	subject := "Payment alert: " + strings.ReplaceAll(string(alert.Kind), "_", " ")
	if alert.OrderID != "" {
		subject += " (order " + alert.OrderID + ")"
	}

	var b strings.Builder
	b.WriteString(alert.Message)
	b.WriteString("\n")
	if len(alert.Details) > 0 {
		keys := make([]string, 0, len(alert.Details))
		for k := range alert.Details {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b.WriteString("\n")
		for _, k := range keys {
			fmt.Fprintf(&b, "%s: %s\n", k, alert.Details[k])
		}
	}
	if !alert.CreatedAt.IsZero() {
		fmt.Fprintf(&b, "\nRaised at %s\n", alert.CreatedAt.UTC().Format(time.RFC3339))
	}
	return email.Message{To: to, Subject: subject, Body: b.String()}
}
