package handler

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	validation "github.com/go-ozzo/ozzo-validation/v4"

	"paysync-backend/internal/domains/payment/model"
	"paysync-backend/internal/domains/payment/session"
	"paysync-backend/internal/shared/middleware"
	res "paysync-backend/internal/shared/response"
)

// mapPaymentError picks the HTTP status for a service error.
func mapPaymentError(err error) (statusCode int, errorCode string) {
	var paymentErr *model.PaymentError
	if !errors.As(err, &paymentErr) {
		return http.StatusInternalServerError, model.ErrCodeInternal
	}

	switch paymentErr.Code {
	case model.ErrCodeTransactionNotFound, model.ErrCodeOrderNotFound:
		statusCode = http.StatusNotFound
	case model.ErrCodeInvalidRequest, model.ErrCodeInvalidTarget, model.ErrCodeInvalidSignature:
		statusCode = http.StatusBadRequest
	case model.ErrCodeReauthorizeDenied, model.ErrCodeCaptureDenied, model.ErrCodeVoidDenied,
		model.ErrCodeRefundDenied, model.ErrCodeAmountExceeded, model.ErrCodeBreakdownMismatch:
		statusCode = http.StatusUnprocessableEntity
	case model.ErrCodeOrderAlreadyPaid:
		statusCode = http.StatusConflict
	case model.ErrCodeGatewayError:
		statusCode = http.StatusBadGateway
	case model.ErrCodeGatewayUnavailable, model.ErrCodeVerificationDeferred:
		statusCode = http.StatusServiceUnavailable
	default:
		statusCode = http.StatusInternalServerError
	}
	return statusCode, paymentErr.Code
}

// writeError sends the mapped error. Validation details are returned to the
// caller; everything else only carries the generic message.
func writeError(c *gin.Context, err error) {
	statusCode, code := mapPaymentError(err)

	var verrs validation.Errors
	if errors.As(err, &verrs) {
		res.ErrorWithDetails(c, statusCode, code, "Invalid request", verrs)
		return
	}

	var paymentErr *model.PaymentError
	if errors.As(err, &paymentErr) {
		res.Error(c, statusCode, code, paymentErr.Message)
		return
	}
	res.Error(c, statusCode, code, "Internal server error")
}

func bindJSON(c *gin.Context, obj interface{}) error {
	if err := c.ShouldBindJSON(obj); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

// adminScope builds the scope for an authenticated operator. The gateway
// token is cached per operator.
func adminScope(c *gin.Context) (session.Scope, bool) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		return session.Scope{}, false
	}
	return session.Scope{
		SessionID: "admin:" + userID,
		ActorID:   userID,
		Source:    model.SourceAdmin,
	}, true
}

func checkoutScope(c *gin.Context) (session.Scope, bool) {
	sessionID := middleware.GetSessionID(c)
	if sessionID == "" {
		return session.Scope{}, false
	}
	return session.Scope{SessionID: sessionID, Source: model.SourceCheckout}, true
}
