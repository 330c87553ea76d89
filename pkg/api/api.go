// Package api provides the JSON response helpers shared by HTTP handlers and
// middleware, including the single place where application error kinds map to
// HTTP status codes.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	appErrors "forgetful-backend/pkg/errors"
)

// StatusClientClosedRequest is the nginx convention for a request the client
// cancelled before a response was written.
const StatusClientClosedRequest = 499

// ErrorResponse is the uniform error body.
type ErrorResponse struct {
	Error string `json:"error"`
}

// Success writes data as a JSON response with the given status.
func Success(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		_ = json.NewEncoder(w).Encode(data)
	}
}

// Error writes a JSON error body with the given status.
func Error(w http.ResponseWriter, status int, message string) {
	Success(w, status, ErrorResponse{Error: message})
}

// WriteError translates an application error into its HTTP response. Internal
// causes are never exposed to the client.
func WriteError(w http.ResponseWriter, err error) {
	Error(w, StatusOf(err), appErrors.Message(err))
}

// StatusOf maps an error to its HTTP status code.
func StatusOf(err error) int {
	switch {
	case appErrors.IsValidation(err):
		return http.StatusBadRequest
	case appErrors.IsNotFound(err):
		return http.StatusNotFound
	case appErrors.IsAlreadyLinked(err):
		return http.StatusConflict
	case appErrors.IsPermissionDenied(err):
		return http.StatusForbidden
	case errors.Is(err, context.Canceled):
		return StatusClientClosedRequest
	case appErrors.IsTimeout(err), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
