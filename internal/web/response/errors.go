// Package response renders call results and errors as JSON
package response

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"google.golang.org/grpc/codes"

	"github.com/conduit-lang/docrud/internal/orm/crud"
	"github.com/conduit-lang/docrud/internal/orm/validation"
)

// ErrorResponse represents a standard error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// ValidationErrorResponse represents validation errors
type ValidationErrorResponse struct {
	Error   string              `json:"error"`
	Message string              `json:"message"`
	Code    string              `json:"code"`
	Fields  map[string][]string `json:"fields"`
}

// JSON writes v with the given status code
func JSON(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(v)
}

// RenderError renders err with the status derived from its code
func RenderError(w http.ResponseWriter, err error) {
	var validationErr *validation.ValidationErrors
	if errors.As(err, &validationErr) {
		RenderValidationError(w, validationErr)
		return
	}
	RenderErrorWithStatus(w, StatusFromCode(crud.CodeOf(err)), err)
}

// RenderErrorWithStatus renders an error response with an explicit status
func RenderErrorWithStatus(w http.ResponseWriter, statusCode int, err error) {
	JSON(w, statusCode, &ErrorResponse{
		Error:   "error",
		Message: err.Error(),
		Code:    errorCodeFromStatus(statusCode),
	})
}

// RenderValidationError renders validation errors
func RenderValidationError(w http.ResponseWriter, validationErr *validation.ValidationErrors) {
	JSON(w, http.StatusBadRequest, &ValidationErrorResponse{
		Error:   "validation_failed",
		Message: "The request contains invalid data",
		Code:    "validation_error",
		Fields:  validationErr.Fields,
	})
}

// RenderNotFound renders a 404 Not Found error
func RenderNotFound(w http.ResponseWriter, message string) {
	if message == "" {
		message = "Resource not found"
	}
	RenderErrorWithStatus(w, http.StatusNotFound, fmt.Errorf("%s", message))
}

// RenderMethodNotAllowed renders a 405 Method Not Allowed error
func RenderMethodNotAllowed(w http.ResponseWriter, allowedMethods []string) {
	w.Header().Set("Allow", strings.Join(allowedMethods, ", "))
	RenderErrorWithStatus(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
}

// RenderServiceUnavailable renders a 503 Service Unavailable error
func RenderServiceUnavailable(w http.ResponseWriter, message string) {
	if message == "" {
		message = "Service temporarily unavailable"
	}
	RenderErrorWithStatus(w, http.StatusServiceUnavailable, fmt.Errorf("%s", message))
}

// StatusFromCode maps a call error code to an HTTP status
func StatusFromCode(code codes.Code) int {
	switch code {
	case codes.OK:
		return http.StatusOK
	case codes.InvalidArgument:
		return http.StatusBadRequest
	case codes.NotFound:
		return http.StatusNotFound
	case codes.AlreadyExists:
		return http.StatusConflict
	case codes.Unimplemented:
		return http.StatusNotFound
	case codes.Unavailable:
		return http.StatusServiceUnavailable
	case codes.Canceled:
		return 499
	case codes.DeadlineExceeded:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// errorCodeFromStatus maps HTTP status codes to error codes
func errorCodeFromStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusMethodNotAllowed:
		return "method_not_allowed"
	case http.StatusConflict:
		return "conflict"
	case http.StatusRequestEntityTooLarge:
		return "request_too_large"
	case 499:
		return "canceled"
	case http.StatusInternalServerError:
		return "internal_error"
	case http.StatusServiceUnavailable:
		return "service_unavailable"
	case http.StatusGatewayTimeout:
		return "gateway_timeout"
	default:
		return "error"
	}
}
