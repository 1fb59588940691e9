package http

import (
	"QRLinks-Backend/internal/service"
	"errors"
	"net/http"

	"go.uber.org/zap"
)

// RedirectHandler обслуживает /r/{slug}, адрес который кодирует каждый QR-код
type RedirectHandler struct {
	resolver *service.Resolver
	clientIP *ClientIP
	log      *zap.Logger
}

func NewRedirectHandler(resolver *service.Resolver, clientIP *ClientIP, log *zap.Logger) *RedirectHandler {
	return &RedirectHandler{
		resolver: resolver,
		clientIP: clientIP,
		log:      log,
	}
}

// HandleRedirect фиксирует сканирование и перенаправляет на текущий адрес
//
//	@Summary		Follow a short link
//	@Tags			Redirect
//	@Param			slug	path	string	true	"Slug"
//	@Success		302
//	@Failure		404	{object}	ErrorResponse
//	@Router			/r/{slug} [get]
func (h *RedirectHandler) HandleRedirect(w http.ResponseWriter, r *http.Request) {
	log := logFrom(r.Context(), h.log)
	slug := r.PathValue("slug")

	dest, err := h.resolver.Resolve(r.Context(), slug, h.clientIP.Address(r), r.UserAgent(), r.Referer())
	if err != nil {
		if errors.Is(err, service.ErrNotFound) {
			log.Debug("slug not found", zap.String("slug", slug))
			http.NotFound(w, r)
			return
		}
		writeServiceError(w, log, err)
		return
	}

	log.Debug("redirect", zap.String("slug", slug), zap.String("destination", dest))
	http.Redirect(w, r, dest, http.StatusFound)
}
