package handler

import (
	"context"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"paysync-backend/internal/domains/payment/model"
	"paysync-backend/internal/domains/payment/webhook"
	"paysync-backend/internal/infrastructure/metrics"
	res "paysync-backend/internal/shared/response"
	"paysync-backend/pkg/logger"
)

const maxWebhookBody = 1 << 20

// WebhookVerifier is satisfied by *webhook.Verifier.
type WebhookVerifier interface {
	ShouldRespond(h http.Header, body []byte) bool
	Verify(ctx context.Context, h http.Header, body []byte) webhook.Verdict
}

type WebhookHandler struct {
	verifier  WebhookVerifier
	scheduler webhook.Scheduler
}

func NewWebhookHandler(verifier WebhookVerifier, scheduler webhook.Scheduler) *WebhookHandler {
	return &WebhookHandler{verifier: verifier, scheduler: scheduler}
}

// PayPal receives gateway notifications.
// POST /api/v1/webhooks/paypal
func (h *WebhookHandler) PayPal(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		res.BadRequest(c, "Unreadable body")
		return
	}

	// Not a gateway delivery: acknowledge and ignore
	if !h.verifier.ShouldRespond(c.Request.Header, body) {
		metrics.WebhookVerdictsTotal.WithLabelValues("ignored").Inc()
		c.Status(http.StatusNoContent)
		return
	}

	verdict := h.verifier.Verify(c.Request.Context(), c.Request.Header, body)
	switch verdict {
	case webhook.Rejected:
		logger.Warn("Suspicious webhook rejected", map[string]interface{}{
			"ip":              c.ClientIP(),
			"transmission_id": c.GetHeader(webhook.HeaderTransmissionID),
			"request_id":      c.GetString("request_id"),
		})
		res.Error(c, verdict.HTTPStatus(), model.ErrCodeInvalidSignature, "Invalid webhook signature")
		return
	case webhook.Indeterminate:
		// the gateway retries on 5xx
		res.Error(c, verdict.HTTPStatus(), model.ErrCodeVerificationDeferred, "Webhook verification deferred")
		return
	}

	if err := h.scheduler.Schedule(c.Request.Context(), body, verdict.String()); err != nil {
		logger.Error("Failed to schedule webhook dispatch", err)
		res.Error(c, http.StatusServiceUnavailable, model.ErrCodeInternal, "Webhook could not be queued")
		return
	}
	res.Success(c, http.StatusOK, "Webhook accepted", nil)
}
