package http

import (
	"QRLinks-Backend/internal/domain"
	"QRLinks-Backend/internal/service"
	"net/http"
	"strconv"

	"go.uber.org/zap"
)

// LinksHandler обработчик для работы со ссылками, историей сканирований и статистикой
type LinksHandler struct {
	registry *service.Registry
	log      *zap.Logger
}

// NewLinksHandler создает новый обработчик ссылок
func NewLinksHandler(registry *service.Registry, log *zap.Logger) *LinksHandler {
	return &LinksHandler{
		registry: registry,
		log:      log,
	}
}

// CreateLinkRequest структура запроса создания ссылки. Владелец берется из токена
type CreateLinkRequest struct {
	DestinationURL string                 `json:"destinationUrl"`
	Slug           string                 `json:"slug,omitempty"`
	Customizations *domain.Customizations `json:"customizations,omitempty"`
}

// UpdateLinkRequest структура запроса PATCH /links/{slug}; отсутствующие поля не меняются
type UpdateLinkRequest struct {
	DestinationURL *string                `json:"destinationUrl,omitempty"`
	Customizations *domain.Customizations `json:"customizations,omitempty"`
}

// RenameLinkRequest структура запроса POST /links/{slug}/rename
type RenameLinkRequest struct {
	NewSlug string `json:"newSlug"`
}

// ScansResponse страница истории сканирований
type ScansResponse struct {
	Slug   string        `json:"slug"`
	Scans  []domain.Scan `json:"scans"`
	Limit  int           `json:"limit"`
	Offset int           `json:"offset"`
}

func (h *LinksHandler) respond(w http.ResponseWriter, r *http.Request, link *domain.Link, status int) {
	writeJSON(w, logFrom(r.Context(), h.log), LinkResponse{Link: link, ShortURL: h.registry.ShortURL(link.Slug)}, status)
}

// CreateLink создает ссылку с пользовательским или сгенерированным слагом
//
//	@Summary		Create a link
//	@Tags			Links
//	@Accept			json
//	@Produce		json
//	@Security		BearerAuth
//	@Param			request	body		CreateLinkRequest	true	"Link"
//	@Success		201		{object}	LinkResponse
//	@Failure		400		{object}	ErrorResponse
//	@Failure		401		{object}	ErrorResponse
//	@Failure		409		{object}	ErrorResponse
//	@Router			/links [post]
func (h *LinksHandler) CreateLink(w http.ResponseWriter, r *http.Request) {
	log := logFrom(r.Context(), h.log)

	var req CreateLinkRequest
	if !decodeJSON(w, r, log, &req) {
		return
	}

	link, err := h.registry.Create(r.Context(), service.CreateRequest{
		DestinationURL: req.DestinationURL,
		Slug:           req.Slug,
		Owner:          callerFrom(r),
		Customizations: req.Customizations,
	})
	if err != nil {
		writeServiceError(w, log, err)
		return
	}
	h.respond(w, r, link, http.StatusCreated)
}

// ListLinks возвращает ссылки вызывающего, новые первыми
//
//	@Summary		List links
//	@Tags			Links
//	@Produce		json
//	@Security		BearerAuth
//	@Success		200	{array}		LinkResponse
//	@Failure		401	{object}	ErrorResponse
//	@Router			/links [get]
func (h *LinksHandler) ListLinks(w http.ResponseWriter, r *http.Request) {
	log := logFrom(r.Context(), h.log)

	links, err := h.registry.List(r.Context(), callerFrom(r))
	if err != nil {
		writeServiceError(w, log, err)
		return
	}

	resp := make([]LinkResponse, 0, len(links))
	for _, link := range links {
		resp = append(resp, LinkResponse{Link: link, ShortURL: h.registry.ShortURL(link.Slug)})
	}
	writeJSON(w, log, resp, http.StatusOK)
}

// GetLink возвращает ссылку с последними сканированиями
//
//	@Summary		Get a link
//	@Tags			Links
//	@Produce		json
//	@Security		BearerAuth
//	@Param			slug	path		string	true	"Slug"
//	@Success		200		{object}	LinkResponse
//	@Failure		401		{object}	ErrorResponse
//	@Failure		404		{object}	ErrorResponse
//	@Router			/links/{slug} [get]
func (h *LinksHandler) GetLink(w http.ResponseWriter, r *http.Request) {
	link, err := h.registry.Get(r.Context(), r.PathValue("slug"), callerFrom(r))
	if err != nil {
		writeServiceError(w, logFrom(r.Context(), h.log), err)
		return
	}
	h.respond(w, r, link, http.StatusOK)
}

// UpdateLink меняет адрес назначения и оформление; слаг и текст QR-кода остаются прежними
//
//	@Summary		Update a link
//	@Tags			Links
//	@Accept			json
//	@Produce		json
//	@Security		BearerAuth
//	@Param			slug	path		string				true	"Slug"
//	@Param			request	body		UpdateLinkRequest	true	"Changes"
//	@Success		200		{object}	LinkResponse
//	@Failure		400		{object}	ErrorResponse
//	@Failure		401		{object}	ErrorResponse
//	@Failure		403		{object}	ErrorResponse
//	@Failure		404		{object}	ErrorResponse
//	@Router			/links/{slug} [patch]
func (h *LinksHandler) UpdateLink(w http.ResponseWriter, r *http.Request) {
	log := logFrom(r.Context(), h.log)

	var req UpdateLinkRequest
	if !decodeJSON(w, r, log, &req) {
		return
	}

	link, err := h.registry.Update(r.Context(), r.PathValue("slug"), service.UpdateRequest{
		DestinationURL: req.DestinationURL,
		Customizations: req.Customizations,
	}, callerFrom(r))
	if err != nil {
		writeServiceError(w, log, err)
		return
	}
	h.respond(w, r, link, http.StatusOK)
}

// RenameLink переносит ссылку, оформление и сканирования на новый слаг
//
//	@Summary		Rename a link
//	@Tags			Links
//	@Accept			json
//	@Produce		json
//	@Security		BearerAuth
//	@Param			slug	path		string				true	"Current slug"
//	@Param			request	body		RenameLinkRequest	true	"New slug"
//	@Success		200		{object}	LinkResponse
//	@Failure		400		{object}	ErrorResponse
//	@Failure		401		{object}	ErrorResponse
//	@Failure		403		{object}	ErrorResponse
//	@Failure		404		{object}	ErrorResponse
//	@Failure		409		{object}	ErrorResponse
//	@Router			/links/{slug}/rename [post]
func (h *LinksHandler) RenameLink(w http.ResponseWriter, r *http.Request) {
	log := logFrom(r.Context(), h.log)

	var req RenameLinkRequest
	if !decodeJSON(w, r, log, &req) {
		return
	}

	link, err := h.registry.Rename(r.Context(), r.PathValue("slug"), req.NewSlug, callerFrom(r))
	if err != nil {
		writeServiceError(w, log, err)
		return
	}
	h.respond(w, r, link, http.StatusOK)
}

// DeleteLink удаляет ссылку и ее сканирования
//
//	@Summary		Delete a link
//	@Tags			Links
//	@Security		BearerAuth
//	@Param			slug	path	string	true	"Slug"
//	@Success		204
//	@Failure		401	{object}	ErrorResponse
//	@Failure		403	{object}	ErrorResponse
//	@Failure		404	{object}	ErrorResponse
//	@Router			/links/{slug} [delete]
func (h *LinksHandler) DeleteLink(w http.ResponseWriter, r *http.Request) {
	err := h.registry.Delete(r.Context(), r.PathValue("slug"), callerFrom(r))
	if err != nil {
		writeServiceError(w, logFrom(r.Context(), h.log), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListScans постранично отдает историю сканирований, от старых к новым
//
//	@Summary		List scans
//	@Tags			Analytics
//	@Produce		json
//	@Security		BearerAuth
//	@Param			slug	path		string	true	"Slug"
//	@Param			limit	query		int		false	"Page size"
//	@Param			offset	query		int		false	"Offset"
//	@Success		200		{object}	ScansResponse
//	@Failure		400		{object}	ErrorResponse
//	@Failure		401		{object}	ErrorResponse
//	@Failure		404		{object}	ErrorResponse
//	@Router			/links/{slug}/scans [get]
func (h *LinksHandler) ListScans(w http.ResponseWriter, r *http.Request) {
	log := logFrom(r.Context(), h.log)

	limit, ok := queryInt(w, r, log, "limit")
	if !ok {
		return
	}
	offset, ok := queryInt(w, r, log, "offset")
	if !ok {
		return
	}

	slug := r.PathValue("slug")
	scans, err := h.registry.Scans(r.Context(), slug, callerFrom(r), limit, offset)
	if err != nil {
		writeServiceError(w, log, err)
		return
	}
	writeJSON(w, log, ScansResponse{Slug: slug, Scans: scans, Limit: limit, Offset: offset}, http.StatusOK)
}

// GetStats считает сканирования ссылки по типам устройств
//
//	@Summary		Link stats
//	@Tags			Analytics
//	@Produce		json
//	@Security		BearerAuth
//	@Param			slug	path		string	true	"Slug"
//	@Success		200		{object}	service.LinkStats
//	@Failure		401		{object}	ErrorResponse
//	@Failure		404		{object}	ErrorResponse
//	@Router			/links/{slug}/stats [get]
func (h *LinksHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	log := logFrom(r.Context(), h.log)

	stats, err := h.registry.Stats(r.Context(), r.PathValue("slug"), callerFrom(r))
	if err != nil {
		writeServiceError(w, log, err)
		return
	}
	writeJSON(w, log, stats, http.StatusOK)
}

func queryInt(w http.ResponseWriter, r *http.Request, log *zap.Logger, name string) (int, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		writeJSON(w, log, ErrorResponse{Error: name + " must be a non-negative integer", Field: name}, http.StatusBadRequest)
		return 0, false
	}
	return n, true
}
