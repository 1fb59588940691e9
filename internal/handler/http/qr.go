package http

import (
	"QRLinks-Backend/internal/qr"
	"QRLinks-Backend/internal/service"
	"net/http"
	"strconv"

	"go.uber.org/zap"
)

// QRHandler рисует QR-код короткого URL ссылки
type QRHandler struct {
	registry *service.Registry
	renderer *qr.Renderer
	log      *zap.Logger
}

// NewQRHandler создает обработчик QR-кодов
func NewQRHandler(registry *service.Registry, renderer *qr.Renderer, log *zap.Logger) *QRHandler {
	return &QRHandler{
		registry: registry,
		renderer: renderer,
		log:      log,
	}
}

// GetQR отдает PNG ссылки. Кодируется короткий URL, поэтому смена адреса
// назначения не меняет картинку
//
//	@Summary		QR code image
//	@Tags			Links
//	@Produce		png
//	@Param			slug	path		string	true	"Slug"
//	@Param			size	query		int		false	"Edge length in pixels (128..1024)"
//	@Success		200		{file}		binary
//	@Failure		404		{object}	ErrorResponse
//	@Failure		500		{object}	ErrorResponse
//	@Router			/links/{slug}/qr [get]
func (h *QRHandler) GetQR(w http.ResponseWriter, r *http.Request) {
	log := logFrom(r.Context(), h.log)

	shortURL, c, err := h.registry.QRContent(r.Context(), r.PathValue("slug"))
	if err != nil {
		writeServiceError(w, log, err)
		return
	}

	size, _ := strconv.Atoi(r.URL.Query().Get("size"))
	png, err := h.renderer.Render(r.Context(), shortURL, qr.Options{
		FgColor:     c.FgColor,
		BgColor:     c.BgColor,
		BorderColor: c.BorderColor,
		LogoURL:     c.LogoURL,
		Size:        h.renderer.ClampSize(size),
	})
	if err != nil {
		writeServiceError(w, log, err)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Content-Length", strconv.Itoa(len(png)))
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(png); err != nil {
		log.Debug("failed to write qr image", zap.Error(err))
	}
}
