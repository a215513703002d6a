package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
)

// apiError is one of the error taxonomy types named by the specification's
// error envelope: invalid_request_error, not_found_error, provider_error,
// internal_error, unsupported_operation_error.
type apiError struct {
	status  int
	errType string
	message string
}

func (e apiError) Error() string { return e.message }

func badRequest(message string) apiError {
	return apiError{status: http.StatusBadRequest, errType: "invalid_request_error", message: message}
}

func notFound(message string) apiError {
	return apiError{status: http.StatusNotFound, errType: "not_found_error", message: message}
}

func providerError(message string) apiError {
	return apiError{status: http.StatusInternalServerError, errType: "provider_error", message: message}
}

func internalError(message string) apiError {
	return apiError{status: http.StatusInternalServerError, errType: "internal_error", message: message}
}

func unauthorized(message string) apiError {
	return apiError{status: http.StatusUnauthorized, errType: "invalid_request_error", message: message}
}

type errorBody struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type errorEnvelope struct {
	RequestID string    `json:"request_id"`
	Error     errorBody `json:"error"`
}

// writeError renders the error envelope described by the specification's
// external-interfaces section: {request_id, error: {type, message}}.
func writeError(w http.ResponseWriter, apiErr apiError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(apiErr.status)
	_ = json.NewEncoder(w).Encode(errorEnvelope{
		RequestID: uuid.New().String(),
		Error:     errorBody{Type: apiErr.errType, Message: apiErr.message},
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
