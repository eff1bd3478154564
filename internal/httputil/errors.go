package httputil

import (
	"encoding/json"
	"net/http"
)

// APIError is the JSON error envelope returned by every handler.
type APIError struct {
	Error APIErrorBody `json:"error"`
}

type APIErrorBody struct {
	Message   string `json:"message"`
	Type      string `json:"type"`
	Code      string `json:"code"`
	RequestID string `json:"request_id,omitempty"`
}

func WriteError(w http.ResponseWriter, requestID string, statusCode int, errType, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Request-ID", requestID)
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(APIError{
		Error: APIErrorBody{
			Message:   message,
			Type:      errType,
			Code:      code,
			RequestID: requestID,
		},
	})
}

func WriteAuthError(w http.ResponseWriter, requestID, message string) {
	WriteError(w, requestID, http.StatusUnauthorized, "authentication_error", "auth_invalid", message)
}

func WriteForbiddenError(w http.ResponseWriter, requestID, message string) {
	WriteError(w, requestID, http.StatusForbidden, "authorization_error", "auth_forbidden", message)
}

func WriteMissingHeaderError(w http.ResponseWriter, requestID, message string) {
	WriteError(w, requestID, http.StatusBadRequest, "invalid_request_error", "missing_header", message)
}

func WritePolicyDeniedError(w http.ResponseWriter, requestID, message string) {
	WriteError(w, requestID, http.StatusBadRequest, "policy_error", "policy_denied", message)
}

func WriteNotFoundError(w http.ResponseWriter, requestID, message string) {
	WriteError(w, requestID, http.StatusNotFound, "invalid_request_error", "prompt_not_found", message)
}

func WriteUnprocessableError(w http.ResponseWriter, requestID, message string) {
	WriteError(w, requestID, http.StatusUnprocessableEntity, "invalid_request_error", "unprocessable", message)
}

func WriteBadRequestError(w http.ResponseWriter, requestID, message string) {
	WriteError(w, requestID, http.StatusBadRequest, "invalid_request_error", "invalid_request", message)
}

func WriteInternalError(w http.ResponseWriter, requestID, message string) {
	WriteError(w, requestID, http.StatusInternalServerError, "server_error", "internal_error", message)
}

func WriteBadGatewayError(w http.ResponseWriter, requestID, message string) {
	WriteError(w, requestID, http.StatusBadGateway, "server_error", "model_api_error", message)
}

func WriteGatewayTimeoutError(w http.ResponseWriter, requestID, message string) {
	WriteError(w, requestID, http.StatusGatewayTimeout, "server_error", "model_api_timeout", message)
}
