package gateway

import (
	"errors"
	"net/http"

	"gitlab.com/gitlab-org/ai-gateway/internal/httputil"
	"gitlab.com/gitlab-org/ai-gateway/internal/model"
)

// writeModelError maps the model error taxonomy onto 502/504/429.
func writeModelError(w http.ResponseWriter, reqID string, err error) {
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		apiErr = model.WrapError(err)
	}
	switch apiErr.HTTPStatus() {
	case http.StatusGatewayTimeout:
		httputil.WriteGatewayTimeoutError(w, reqID, apiErr.Message)
	case http.StatusTooManyRequests:
		httputil.WriteError(w, reqID, http.StatusTooManyRequests,
			"server_error", "model_api_error", apiErr.Message)
	default:
		httputil.WriteBadGatewayError(w, reqID, apiErr.Message)
	}
}
