package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"paysync-backend/internal/domains/payment/model"
	"paysync-backend/internal/domains/payment/service"
	res "paysync-backend/internal/shared/response"
)

type CheckoutHandler struct {
	checkout service.CheckoutService
}

func NewCheckoutHandler(checkout service.CheckoutService) *CheckoutHandler {
	return &CheckoutHandler{checkout: checkout}
}

// CreateOrder submits the cart to the gateway, reusing the pending gateway
// order when nothing changed.
// POST /api/v1/checkout/orders
func (h *CheckoutHandler) CreateOrder(c *gin.Context) {
	scope, ok := checkoutScope(c)
	if !ok {
		res.Unauthorized(c, "Missing checkout session")
		return
	}

	var req model.CreateOrderRequest
	if err := bindJSON(c, &req); err != nil {
		res.Error(c, http.StatusBadRequest, model.ErrCodeInvalidRequest, err.Error())
		return
	}

	resp, err := h.checkout.CreateOrder(c.Request.Context(), scope, req)
	if err != nil {
		writeError(c, err)
		return
	}

	status := http.StatusCreated
	if resp.Reused {
		status = http.StatusOK
	}
	res.Success(c, status, "Order submitted", resp)
}

// CompleteOrder captures or authorizes an order the payer approved.
// POST /api/v1/checkout/orders/:id/complete
func (h *CheckoutHandler) CompleteOrder(c *gin.Context) {
	scope, ok := checkoutScope(c)
	if !ok {
		res.Unauthorized(c, "Missing checkout session")
		return
	}

	resp, err := h.checkout.CompleteOrder(c.Request.Context(), scope, c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	res.Success(c, http.StatusOK, "Payment completed", resp)
}
