package gateway

import (
	"errors"
	"fmt"
	"net/http"
)

// APIError is a structured 4xx/5xx answer from the gateway.
type APIError struct {
	HTTPStatus int
	IssueCode  string
	Message    string
	DebugID    string
}

func (e *APIError) Error() string {
	if e.IssueCode != "" {
		return fmt.Sprintf("gateway error %d %s: %s (debug_id=%s)", e.HTTPStatus, e.IssueCode, e.Message, e.DebugID)
	}
	return fmt.Sprintf("gateway error %d: %s (debug_id=%s)", e.HTTPStatus, e.Message, e.DebugID)
}

// TransportError means the gateway could not be reached or did not answer in time.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("gateway transport error during %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// ErrNoToken is returned when no access token can be obtained.
var ErrNoToken = errors.New("gateway access token unavailable")

// IsNotFound reports whether err is the gateway saying the resource does not exist.
func IsNotFound(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.HTTPStatus == http.StatusNotFound || apiErr.IssueCode == "RESOURCE_NOT_FOUND" ||
		apiErr.IssueCode == "INVALID_RESOURCE_ID"
}

// IsUnauthorized reports a 401 from the gateway.
func IsUnauthorized(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.HTTPStatus == http.StatusUnauthorized
}

// IsTransport reports whether err is a TransportError.
func IsTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}
