// Package job holds the asynq task handlers and producers for payment work
// that runs outside the request path.
package job

import (
	"context"

	"github.com/hibiken/asynq"
)

// DispatchWebhookPayload carries a verified delivery. Body is kept as raw
// bytes so the audit row stores exactly what the gateway sent.
type DispatchWebhookPayload struct {
	Body         []byte `json:"body"`
	Verification string `json:"verification"`
}

// ReconcileOpenAuthorizationsPayload tunes the periodic reconciliation.
type ReconcileOpenAuthorizationsPayload struct {
	MinAgeDays int `json:"min_age_days"`
	Limit      int `json:"limit"`
}

// Enqueuer is satisfied by *asynq.Client.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}
