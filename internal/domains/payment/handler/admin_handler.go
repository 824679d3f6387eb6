package handler

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"paysync-backend/internal/domains/payment/model"
	"paysync-backend/internal/domains/payment/repository"
	"paysync-backend/internal/domains/payment/service"
	"paysync-backend/internal/domains/payment/session"
	res "paysync-backend/internal/shared/response"
	"paysync-backend/pkg/logger"
)

const (
	defaultWebhookLimit = 50
	maxWebhookLimit     = 200
)

type AdminHandler struct {
	actions  service.AdminActionService
	webhooks repository.WebhookRepository
}

func NewAdminHandler(actions service.AdminActionService, webhooks repository.WebhookRepository) *AdminHandler {
	return &AdminHandler{actions: actions, webhooks: webhooks}
}

// =====================================================
// TRANSACTION GRAPH
// =====================================================

// ListTransactions syncs the order with the gateway and returns its graph.
// GET /api/v1/admin/payments/orders/:orderID/transactions
func (h *AdminHandler) ListTransactions(c *gin.Context) {
	scope, ok := adminScope(c)
	if !ok {
		res.Unauthorized(c, "Unauthorized")
		return
	}

	list, err := h.actions.ListTransactions(c.Request.Context(), scope, c.Param("orderID"))
	if err != nil {
		writeError(c, err)
		return
	}
	res.SuccessWithMeta(c, http.StatusOK, "Success", list, &res.Meta{Total: len(list.Transactions)})
}

// ExportTransactions downloads the graph as a spreadsheet.
// GET /api/v1/admin/payments/orders/:orderID/transactions/export
func (h *AdminHandler) ExportTransactions(c *gin.Context) {
	scope, ok := adminScope(c)
	if !ok {
		res.Unauthorized(c, "Unauthorized")
		return
	}

	orderID := c.Param("orderID")
	list, err := h.actions.ListTransactions(c.Request.Context(), scope, orderID)
	if err != nil {
		writeError(c, err)
		return
	}

	f, err := buildTransactionsWorkbook(list)
	if err != nil {
		logger.Error("Failed to build transaction workbook", err)
		res.InternalServerError(c, "Export failed")
		return
	}
	defer f.Close()

	c.Header("Content-Type", xlsxContentType)
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="order-%s-transactions.xlsx"`, orderID))
	c.Status(http.StatusOK)
	if err := f.Write(c.Writer); err != nil {
		logger.Error("Failed to write transaction workbook", err)
	}
}

// =====================================================
// ACTIONS
// =====================================================

// Authorize POST /api/v1/admin/payments/orders/:orderID/authorize
func (h *AdminHandler) Authorize(c *gin.Context) {
	var req model.AuthorizeRequest
	h.runAction(c, &req, func(ctx context.Context, scope session.Scope, orderID string) (*model.ActionResult, error) {
		return h.actions.Authorize(ctx, scope, orderID, req)
	})
}

// Reauthorize POST /api/v1/admin/payments/orders/:orderID/reauthorize
func (h *AdminHandler) Reauthorize(c *gin.Context) {
	var req model.ReauthorizeRequest
	h.runAction(c, &req, func(ctx context.Context, scope session.Scope, orderID string) (*model.ActionResult, error) {
		return h.actions.Reauthorize(ctx, scope, orderID, req)
	})
}

// Capture POST /api/v1/admin/payments/orders/:orderID/capture
func (h *AdminHandler) Capture(c *gin.Context) {
	var req model.CaptureRequest
	h.runAction(c, &req, func(ctx context.Context, scope session.Scope, orderID string) (*model.ActionResult, error) {
		return h.actions.Capture(ctx, scope, orderID, req)
	})
}

// Refund POST /api/v1/admin/payments/orders/:orderID/refund
func (h *AdminHandler) Refund(c *gin.Context) {
	var req model.RefundRequest
	h.runAction(c, &req, func(ctx context.Context, scope session.Scope, orderID string) (*model.ActionResult, error) {
		return h.actions.Refund(ctx, scope, orderID, req)
	})
}

// Void POST /api/v1/admin/payments/orders/:orderID/void
func (h *AdminHandler) Void(c *gin.Context) {
	var req model.VoidRequest
	h.runAction(c, &req, func(ctx context.Context, scope session.Scope, orderID string) (*model.ActionResult, error) {
		return h.actions.Void(ctx, scope, orderID, req)
	})
}

type actionFunc func(ctx context.Context, scope session.Scope, orderID string) (*model.ActionResult, error)

// runAction binds the body into req, then calls the service.
// An empty body is allowed for actions without required fields.
func (h *AdminHandler) runAction(c *gin.Context, req interface{}, call actionFunc) {
	scope, ok := adminScope(c)
	if !ok {
		res.Unauthorized(c, "Unauthorized")
		return
	}

	if c.Request.ContentLength != 0 {
		if err := bindJSON(c, req); err != nil {
			res.Error(c, http.StatusBadRequest, model.ErrCodeInvalidRequest, err.Error())
			return
		}
	}

	result, err := call(c.Request.Context(), scope, c.Param("orderID"))
	if err != nil {
		writeError(c, err)
		return
	}
	res.Success(c, http.StatusOK, result.Message, result)
}

// =====================================================
// WEBHOOK AUDIT
// =====================================================

// ListWebhooks returns the most recent webhook deliveries.
// GET /api/v1/admin/payments/webhooks?event_type=&limit=
func (h *AdminHandler) ListWebhooks(c *gin.Context) {
	limit := defaultWebhookLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			res.BadRequest(c, "limit must be a positive integer")
			return
		}
		limit = min(n, maxWebhookLimit)
	}

	events, err := h.webhooks.ListRecent(c.Request.Context(), c.Query("event_type"), limit)
	if err != nil {
		logger.Error("Failed to list webhook events", err)
		res.InternalServerError(c, "Failed to list webhook events")
		return
	}
	res.SuccessWithMeta(c, http.StatusOK, "Success", events, &res.Meta{Limit: limit, Total: len(events)})
}
