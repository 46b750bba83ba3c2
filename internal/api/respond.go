package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/sagebase/sagebase/internal/extraction"
	"github.com/sagebase/sagebase/internal/model"
	"github.com/sagebase/sagebase/internal/resilience"
	"github.com/sagebase/sagebase/internal/store"
)

type errorResponse struct {
	Error     string `json:"error"`
	Message   string `json:"message,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

// badRequest marks input errors that should be reported back verbatim.
type badRequest struct {
	msg string
}

func (e *badRequest) Error() string { return e.msg }

func invalid(msg string) error { return &badRequest{msg: msg} }

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError translates an error into a JSON envelope. Storage details are
// logged, not returned.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	reqID := getRequestID(r.Context())
	resp := errorResponse{RequestID: reqID}
	status := http.StatusInternalServerError

	var br *badRequest
	var se *store.StorageError
	switch {
	case errors.As(err, &br):
		status, resp.Error, resp.Message = http.StatusBadRequest, "bad_request", br.msg
	case errors.Is(err, model.ErrInvalidPeriod):
		status, resp.Error, resp.Message = http.StatusBadRequest, "bad_request", err.Error()
	case errors.Is(err, extraction.ErrNotFound), errors.Is(err, store.ErrNotFound):
		status, resp.Error = http.StatusNotFound, "not_found"
	case errors.As(err, &se):
		resp.Error = "storage_error"
		if resilience.IsTransient(err) {
			status = http.StatusServiceUnavailable
		}
	default:
		resp.Error = "internal_error"
	}

	if status >= http.StatusInternalServerError {
		zap.L().Error("request failed",
			zap.String("request_id", reqID),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
	}
	writeJSON(w, status, resp)
}
