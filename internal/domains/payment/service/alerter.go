package service

import (
	"context"

	"paysync-backend/internal/domains/payment/model"
	"paysync-backend/internal/infrastructure/metrics"
	"paysync-backend/pkg/logger"
)

// LogAlerter writes merchant alerts to the log. It is the fallback when no
// queue is configured for email delivery.
type LogAlerter struct{}

func NewLogAlerter() *LogAlerter {
	return &LogAlerter{}
}

func (LogAlerter) Alert(ctx context.Context, alert model.MerchantAlert) error {
	metrics.MerchantAlertsTotal.WithLabelValues(string(alert.Kind)).Inc()

	fields := map[string]interface{}{
		"kind":     alert.Kind,
		"order_id": alert.OrderID,
	}
	for k, v := range alert.Details {
		fields["detail_"+k] = v
	}
	logger.Warn("Merchant alert: "+alert.Message, fields)
	return nil
}
