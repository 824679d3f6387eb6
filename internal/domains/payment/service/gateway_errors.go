package service

import (
	"context"
	"errors"
	"time"

	"paysync-backend/internal/domains/payment/gateway"
	"paysync-backend/internal/domains/payment/model"
	"paysync-backend/pkg/logger"
)

const unavailableMessage = "The payment gateway is temporarily unreachable. Please try again later."

// gatewayFailure turns a gateway error into a PaymentError with a user-safe
// message. Unknown issue codes also raise a merchant alert carrying the raw code.
func gatewayFailure(ctx context.Context, alerter Alerter, orderID, op string, err error) error {
	fields := map[string]interface{}{"order_id": orderID, "operation": op}

	if gateway.IsTransport(err) {
		logger.ErrorFields("Payment gateway unreachable", err, fields)
		return model.NewPaymentError(model.ErrCodeGatewayUnavailable, unavailableMessage, err)
	}

	var apiErr *gateway.APIError
	if !errors.As(err, &apiErr) {
		logger.ErrorFields("Payment gateway call failed", err, fields)
		return model.NewPaymentError(model.ErrCodeGatewayError, model.GenericGatewayMessage, err)
	}

	fields["issue"] = apiErr.IssueCode
	fields["debug_id"] = apiErr.DebugID
	fields["http_status"] = apiErr.HTTPStatus
	logger.ErrorFields("Payment gateway rejected request", err, fields)

	msg, known := model.MapIssueCode(apiErr.IssueCode)
	if !known {
		if apiErr.IssueCode != "" {
			msg = msg + " (" + apiErr.IssueCode + ")"
		}
		if alerter != nil {
			alertErr := alerter.Alert(ctx, model.MerchantAlert{
				Kind:    model.AlertUnknownIssueCode,
				OrderID: orderID,
				Message: "The payment gateway returned an unrecognised error during " + op + ".",
				Details: map[string]string{
					"issue":    apiErr.IssueCode,
					"message":  apiErr.Message,
					"debug_id": apiErr.DebugID,
				},
				CreatedAt: time.Now().UTC(),
			})
			if alertErr != nil {
				logger.Error("Failed to send merchant alert", alertErr)
			}
		}
	}
	return model.NewPaymentError(model.ErrCodeGatewayError, msg, err)
}
