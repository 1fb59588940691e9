package http

import (
	"QRLinks-Backend/internal/auth"
	"QRLinks-Backend/internal/domain"
	"QRLinks-Backend/internal/qr"
	"QRLinks-Backend/internal/service"
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"
)

// ErrorResponse тело ответа любой неуспешной операции
type ErrorResponse struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

// LinkResponse ссылка вместе с ее публичным коротким URL
type LinkResponse struct {
	*domain.Link
	ShortURL string `json:"shortUrl"`
}

func writeJSON(w http.ResponseWriter, log *zap.Logger, data interface{}, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Debug("failed to encode response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, log *zap.Logger, message string, status int) {
	writeJSON(w, log, ErrorResponse{Error: message}, status)
}

// writeServiceError переводит ошибки сервиса в HTTP статусы
func writeServiceError(w http.ResponseWriter, log *zap.Logger, err error) {
	var verr *service.ValidationError
	switch {
	case errors.As(err, &verr):
		writeJSON(w, log, ErrorResponse{Error: verr.Error(), Field: verr.Field}, http.StatusBadRequest)
	case errors.Is(err, service.ErrNotFound):
		writeError(w, log, "link not found", http.StatusNotFound)
	case errors.Is(err, service.ErrSlugConflict):
		writeError(w, log, "slug already in use", http.StatusConflict)
	case errors.Is(err, service.ErrForbidden):
		writeError(w, log, "forbidden", http.StatusForbidden)
	case errors.Is(err, service.ErrStoreUnavailable):
		log.Error("store unavailable", zap.Error(err))
		writeError(w, log, "store unavailable", http.StatusServiceUnavailable)
	case errors.Is(err, qr.ErrRender):
		log.Error("qr render failed", zap.Error(err))
		writeError(w, log, "failed to render qr code", http.StatusInternalServerError)
	default:
		log.Error("unexpected error", zap.Error(err))
		writeError(w, log, "internal server error", http.StatusInternalServerError)
	}
}

// decodeJSON читает JSON тело в dst, при ошибке отвечает 400
func decodeJSON(w http.ResponseWriter, r *http.Request, log *zap.Logger, dst interface{}) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(dst); err != nil {
		log.Debug("invalid request body", zap.Error(err))
		writeError(w, log, "invalid request format", http.StatusBadRequest)
		return false
	}
	return true
}

// callerFrom возвращает владельца из токена. Без токена вызывающий анонимен
func callerFrom(r *http.Request) string {
	owner, _ := auth.OwnerFromContext(r.Context())
	return owner
}
