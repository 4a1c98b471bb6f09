package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/harshees/storefront/internal/service"
)

type ErrorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code,omitempty"`
	Details   string `json:"details,omitempty"`
	ProductID string `json:"product_id,omitempty"`
	Size      string `json:"size,omitempty"`
}

type responder struct {
	logger      *slog.Logger
	maxBodySize int64
}

func (rs responder) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		rs.logger.Warn("failed to encode response", "error", err)
	}
}

func (rs responder) respondError(w http.ResponseWriter, status int, code, message string) {
	rs.respondJSON(w, status, ErrorResponse{Error: message, Code: code})
}

// decode reads a JSON body of at most maxBodySize bytes into dst.
func (rs responder) decode(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	body := r.Body
	if rs.maxBodySize > 0 {
		body = http.MaxBytesReader(w, r.Body, rs.maxBodySize)
	}
	if err := json.NewDecoder(body).Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			rs.respondError(w, http.StatusRequestEntityTooLarge, "body_too_large", "request body too large")
			return false
		}
		rs.respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return false
	}
	return true
}

// handleServiceError converts service failures to HTTP responses. Storage
// and consistency failures are logged in full and answered generically.
func (rs responder) handleServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var oe *service.OrderError
	if !errors.As(err, &oe) {
		rs.logger.Error("unexpected handler error", "path", r.URL.Path, "error", err)
		rs.respondError(w, http.StatusInternalServerError, "internal_error", "internal server error")
		return
	}

	resp := ErrorResponse{Code: string(oe.Kind), Error: oe.Detail()}
	status := http.StatusInternalServerError
	switch oe.Kind {
	case service.KindValidationFailed:
		status = http.StatusBadRequest
	case service.KindProductNotFound:
		status = http.StatusNotFound
		resp.ProductID = oe.ProductID
	case service.KindInsufficientStock:
		status = http.StatusConflict
		resp.ProductID = oe.ProductID
		resp.Size = oe.Size
	case service.KindOrderNotFound:
		status = http.StatusNotFound
	case service.KindForbidden:
		status = http.StatusForbidden
	case service.KindPersistenceFailure:
		rs.logger.Error("storage failure", "path", r.URL.Path, "error", err)
		status = http.StatusServiceUnavailable
		resp.Error = "service temporarily unavailable, please retry"
	case service.KindConsistencyViolation:
		rs.logger.Error("consistency violation", "path", r.URL.Path, "error", err)
		resp.Error = "internal server error"
	default:
		rs.logger.Error("unmapped order error", "path", r.URL.Path, "error", err)
		resp.Code = "internal_error"
		resp.Error = "internal server error"
	}
	rs.respondJSON(w, status, resp)
}
