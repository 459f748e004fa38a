package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"filevault/internal/auth"
	"filevault/internal/domain"
	"filevault/internal/logger"
)

// ErrorBody - тело ответа об ошибке. Limit заполняется только для 413.
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Limit   int64  `json:"limit,omitempty"`
}

type errorResponse struct {
	Error ErrorBody `json:"error"`
}

// classify сопоставляет ошибку ядра со статусом HTTP.
// Внутренние подробности (адрес блоба, причина сбоя) в тело не попадают.
func classify(err error) (int, ErrorBody) {
	var (
		tooLarge *domain.PayloadTooLargeError
		maxBytes *http.MaxBytesError
	)

	switch {
	case errors.As(err, &tooLarge):
		return http.StatusRequestEntityTooLarge, ErrorBody{
			Code:    "payload_too_large",
			Message: "file exceeds maximum allowed size",
			Limit:   tooLarge.Limit,
		}
	case errors.As(err, &maxBytes):
		return http.StatusRequestEntityTooLarge, ErrorBody{
			Code:    "payload_too_large",
			Message: "request body is too large",
			Limit:   maxBytes.Limit,
		}
	case errors.Is(err, domain.ErrPayloadTooLarge):
		return http.StatusRequestEntityTooLarge, ErrorBody{Code: "payload_too_large", Message: "file exceeds maximum allowed size"}
	case errors.Is(err, domain.ErrUnsupportedType):
		return http.StatusBadRequest, ErrorBody{Code: "unsupported_type", Message: err.Error()}
	case errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest, ErrorBody{Code: "validation_error", Message: err.Error()}
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, ErrorBody{Code: "not_found", Message: domain.ErrNotFound.Error()}
	case errors.Is(err, auth.ErrNoToken), errors.Is(err, auth.ErrInvalidToken):
		return http.StatusUnauthorized, ErrorBody{Code: "unauthorized", Message: "authentication required"}
	case domain.IsRetryable(err):
		return http.StatusServiceUnavailable, ErrorBody{Code: "storage_unavailable", Message: "storage is temporarily unavailable, retry later"}
	default:
		return http.StatusInternalServerError, ErrorBody{Code: "internal_error", Message: "internal server error"}
	}
}

func errorBody(err error) *ErrorBody {
	if err == nil {
		return nil
	}
	_, body := classify(err)
	return &body
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, fallback *logger.Logger, err error) {
	status, body := classify(err)

	log := logger.FromContext(r.Context(), fallback)
	if status >= http.StatusInternalServerError {
		log.Warn("request failed", zap.Int("status", status), zap.Error(err))
	} else {
		log.Debug("request rejected", zap.Int("status", status), zap.Error(err))
	}

	writeJSON(w, status, errorResponse{Error: body})
}
