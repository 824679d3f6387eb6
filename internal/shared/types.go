package shared

// Task types handled by the worker
const (
	TypeDispatchWebhook             = "payment:dispatch_webhook"
	TypeSendMerchantAlert           = "payment:send_merchant_alert"
	TypeReconcileOpenAuthorizations = "payment:reconcile_open_authorizations"
)

// Queues, in priority order
const (
	QueueWebhooks  = "webhooks"
	QueueAlerts    = "alerts"
	QueueReconcile = "reconcile"
)

// QueuePriorities is the weight map passed to the asynq server.
var QueuePriorities = map[string]int{
	QueueWebhooks:  20,
	QueueAlerts:    10,
	QueueReconcile: 5,
}
