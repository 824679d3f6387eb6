package main

import (
	"github.com/hibiken/asynq"

	"paysync-backend/internal/domains/payment/job"
	"paysync-backend/internal/shared"
	"paysync-backend/pkg/container"
)

// HandlerRegistry holds all task handlers
type HandlerRegistry struct {
	dispatchWebhook *job.DispatchWebhookHandler
	merchantAlert   *job.MerchantAlertHandler
	reconcile       *job.ReconcileOpenAuthorizationsHandler
}

func initializeHandlers(c *container.Container) *HandlerRegistry {
	return &HandlerRegistry{
		dispatchWebhook: job.NewDispatchWebhookHandler(c.Dispatcher),
		merchantAlert:   job.NewMerchantAlertHandler(c.Mailer, c.Config.Email.Recipients),
		reconcile:       job.NewReconcileOpenAuthorizationsHandler(c.TransactionStore, c.Reconciler),
	}
}

func (h *HandlerRegistry) RegisterHandlers(mux *asynq.ServeMux) {
	mux.HandleFunc(shared.TypeDispatchWebhook, h.dispatchWebhook.ProcessTask)
	mux.HandleFunc(shared.TypeSendMerchantAlert, h.merchantAlert.ProcessTask)
	mux.HandleFunc(shared.TypeReconcileOpenAuthorizations, h.reconcile.ProcessTask)
}
