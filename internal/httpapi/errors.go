package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"inferd/internal/config"
	"inferd/internal/manager"
	"inferd/pkg/types"
)

// writeError writes an OpenAI-compatible error envelope.
func writeError(w http.ResponseWriter, status int, errType, msg, code string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(types.ErrorResponse{Error: types.ErrorDetail{
		Message: msg,
		Type:    errType,
		Code:    code,
	}})
}

// statusForServiceError maps manager errors to HTTP status codes.
func statusForServiceError(err error) int {
	switch {
	case manager.IsModelNotFound(err):
		return http.StatusNotFound
	case manager.IsPlacement(err),
		manager.IsStartTimeout(err),
		manager.IsStartFailed(err),
		manager.IsCrashed(err),
		manager.IsPermanentFailure(err),
		errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	case config.IsConfigError(err):
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// writeServiceError translates a manager error into the OpenAI error
// envelope. Placement failures, start timeouts, crashes and acquire-wait
// timeouts are retryable: the client gets 503 with a Retry-After hint.
func writeServiceError(w http.ResponseWriter, r *http.Request, model string, err error) {
	switch {
	case manager.IsModelNotFound(err):
		writeError(w, http.StatusNotFound, types.ErrorTypeNotFound, err.Error(), "model_not_found")

	case manager.IsPlacement(err):
		markUnavailable(w, "placement_failed")
		writeError(w, http.StatusServiceUnavailable, types.ErrorTypeServiceUnavailable,
			err.Error(), "placement_failed")

	case manager.IsStartTimeout(err):
		markUnavailable(w, "start_timeout")
		writeError(w, http.StatusServiceUnavailable, types.ErrorTypeServiceUnavailable,
			err.Error(), "start_timeout")

	case manager.IsStartFailed(err), manager.IsCrashed(err):
		markUnavailable(w, "backend_unavailable")
		writeError(w, http.StatusServiceUnavailable, types.ErrorTypeServiceUnavailable,
			err.Error(), "backend_unavailable")

	case manager.IsPermanentFailure(err):
		// Not retryable until an operator resets the model; no Retry-After.
		unavailableTotal.WithLabelValues("permanent_failure").Inc()
		writeError(w, http.StatusServiceUnavailable, types.ErrorTypeServiceUnavailable,
			err.Error(), "permanent_failure")

	case errors.Is(err, context.DeadlineExceeded):
		markUnavailable(w, "acquire_timeout")
		writeError(w, http.StatusServiceUnavailable, types.ErrorTypeServiceUnavailable,
			"model "+model+" did not become available in time", "acquire_timeout")

	default:
		writeError(w, http.StatusInternalServerError, types.ErrorTypeServerError, err.Error(), "")
	}
}

func markUnavailable(w http.ResponseWriter, reason string) {
	w.Header().Set("Retry-After", "1")
	unavailableTotal.WithLabelValues(reason).Inc()
}
