package service

import (
	"QRLinks-Backend/internal/config"
	"QRLinks-Backend/internal/domain"
	"QRLinks-Backend/internal/repository"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

const maxScanPage = 1000

// DestinationCache необязательный кэш slug -> destination перед хранилищем
// Set не должен перезаписывать инвалидацию, сделанную после чтения из хранилища
type DestinationCache interface {
	Get(ctx context.Context, slug string) (string, bool, error)
	Set(ctx context.Context, slug, destination string) error
	Invalidate(ctx context.Context, slugs ...string) error
}

type noopCache struct{}

func (noopCache) Get(context.Context, string) (string, bool, error) { return "", false, nil }
func (noopCache) Set(context.Context, string, string) error { return nil }
func (noopCache) Invalidate(context.Context, ...string) error { return nil }

// CreateRequest входные данные Create. Пустой Slug означает сгенерированный слаг
type CreateRequest struct {
	DestinationURL string
	Slug           string
	Owner          string
	Customizations *domain.Customizations
}

// UpdateRequest частичное обновление: nil поля не меняются.
// Customizations, если заданы, заменяют сохраненные с подставленными значениями по умолчанию
type UpdateRequest struct {
	DestinationURL *string
	Customizations *domain.Customizations
}

// LinkStats агрегированная статистика сканирований ссылки
type LinkStats struct {
	Slug       string           `json:"slug"`
	TotalScans int64            `json:"totalScans"`
	ByDevice   map[string]int64 `json:"byDevice"`
}

// Registry управляет жизненным циклом ссылок: выдача слагов, уникальность, обновления и переименования
type Registry struct {
	store    repository.LinkStore
	slugs    *SlugGenerator
	cache    DestinationCache
	cfg      *config.URLShortener
	validate *validator.Validate
	log      *zap.Logger
	now      func() time.Time
}

type Option func(*Registry)

// WithCache ставит кэш назначений перед хранилищем
func WithCache(c DestinationCache) Option {
	return func(r *Registry) {
		if c != nil {
			r.cache = c
		}
	}
}

// WithClock подменяет источник времени
func WithClock(now func() time.Time) Option {
	return func(r *Registry) {
		r.now = now
	}
}

func NewRegistry(store repository.LinkStore, cfg *config.URLShortener, log *zap.Logger, opts ...Option) *Registry {
	r := &Registry{
		store:    store,
		slugs:    NewSlugGenerator(cfg.SlugLength),
		cache:    noopCache{},
		cfg:      cfg,
		validate: NewValidator(),
		log:      log,
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// OwnershipEnabled сообщает, привязаны ли ссылки к владельцам
func (r *Registry) OwnershipEnabled() bool {
	return r.cfg.MultiTenant && r.store.SupportsOwnership()
}

// ShortURL строит публичный URL редиректа для слага
func (r *Registry) ShortURL(slug string) string {
	return strings.TrimRight(r.cfg.BaseURL, "/") + "/r/" + slug
}

// Create выделяет слаг и сохраняет ссылку. Занятый пользовательский слаг дает ErrSlugConflict
func (r *Registry) Create(ctx context.Context, req CreateRequest) (*domain.Link, error) {
	dest := strings.TrimSpace(req.DestinationURL)
	if err := validateDestination(r.validate, dest); err != nil {
		return nil, err
	}

	custom := domain.DefaultCustomizations()
	if req.Customizations != nil {
		custom = req.Customizations.WithDefaults()
	}
	if err := validateCustomizations(r.validate, custom); err != nil {
		return nil, err
	}

	owner := strings.TrimSpace(req.Owner)
	if r.OwnershipEnabled() {
		if owner == "" {
			return nil, invalid("owner", "is required")
		}
	} else {
		owner = ""
	}

	generated := strings.TrimSpace(req.Slug) == ""
	attempts := 1
	if generated {
		attempts = max(r.cfg.MaxGenerateRetries, 1)
	}

	for attempt := 1; attempt <= attempts; attempt++ {
		slug, err := r.slugs.Allocate(req.Slug)
		if err != nil {
			return nil, err
		}
		if err := r.checkSlug(slug); err != nil {
			return nil, err
		}

		now := r.now()
		link := &domain.Link{
			Slug:           slug,
			DestinationURL: dest,
			Owner:          owner,
			Customizations: custom,
			CreatedAt:      now,
			UpdatedAt:      now,
		}

		err = r.store.InsertLink(ctx, link)
		if err == nil {
			r.log.Info("link created",
				zap.String("slug", slug),
				zap.Bool("generated", generated),
				zap.String("owner", owner))
			link.Scans = []domain.Scan{}
			return link, nil
		}
		if !errors.Is(err, repository.ErrSlugExists) || !generated {
			return nil, storeErr(err)
		}
		r.log.Debug("generated slug collided, retrying", zap.String("slug", slug), zap.Int("attempt", attempt))
	}

	return nil, fmt.Errorf("%w: no free slug after %d attempts", ErrSlugConflict, attempts)
}

// Get возвращает ссылку с последними сканированиями. Чужая ссылка выглядит как отсутствующая
func (r *Registry) Get(ctx context.Context, slug, caller string) (*domain.Link, error) {
	link, err := r.load(ctx, slug)
	if err != nil {
		return nil, err
	}
	if err := r.authorizeRead(link, caller); err != nil {
		return nil, err
	}
	return link, nil
}

// QRContent отдает то, что кодирует QR-код: короткий URL и оформление.
// Доступен без владельца, как и редирект
func (r *Registry) QRContent(ctx context.Context, slug string) (string, domain.Customizations, error) {
	link, err := r.store.GetLink(ctx, slug, 0)
	if err != nil {
		return "", domain.Customizations{}, storeErr(err)
	}
	return r.ShortURL(link.Slug), link.Customizations.WithDefaults(), nil
}

func (r *Registry) load(ctx context.Context, slug string) (*domain.Link, error) {
	link, err := r.store.GetLink(ctx, slug, r.cfg.ScanPageSize)
	if err != nil {
		return nil, storeErr(err)
	}
	return link, nil
}

// Update применяет патч к ссылке и обновляет updatedAt
func (r *Registry) Update(ctx context.Context, slug string, req UpdateRequest, caller string) (*domain.Link, error) {
	patch := repository.LinkPatch{UpdatedAt: r.now()}

	if req.DestinationURL != nil {
		dest := strings.TrimSpace(*req.DestinationURL)
		if err := validateDestination(r.validate, dest); err != nil {
			return nil, err
		}
		patch.DestinationURL = &dest
	}
	if req.Customizations != nil {
		custom := req.Customizations.WithDefaults()
		if err := validateCustomizations(r.validate, custom); err != nil {
			return nil, err
		}
		patch.Customizations = &custom
	}

	link, err := r.store.GetLink(ctx, slug, 0)
	if err != nil {
		return nil, storeErr(err)
	}
	if err := r.authorize(link, caller); err != nil {
		return nil, err
	}

	if err := r.store.UpdateLink(ctx, slug, patch); err != nil {
		return nil, storeErr(err)
	}
	r.invalidate(ctx, slug)

	r.log.Info("link updated",
		zap.String("slug", slug),
		zap.Bool("destination_changed", patch.DestinationURL != nil),
		zap.Bool("customizations_changed", patch.Customizations != nil))
	return r.load(ctx, slug)
}

// Rename переносит ссылку на newSlug вместе с настройками и историей сканирований
func (r *Registry) Rename(ctx context.Context, oldSlug, newSlug, caller string) (*domain.Link, error) {
	if strings.TrimSpace(newSlug) == "" {
		return nil, invalid("newSlug", "is required")
	}
	newSlug = NormalizeSlug(newSlug)
	if err := r.checkSlug(newSlug); err != nil {
		return nil, err
	}

	if _, err := r.store.GetLink(ctx, newSlug, 0); err == nil {
		return nil, ErrSlugConflict
	} else if !errors.Is(err, repository.ErrSlugNotFound) {
		return nil, storeErr(err)
	}

	link, err := r.store.GetLink(ctx, oldSlug, 0)
	if err != nil {
		return nil, storeErr(err)
	}
	if err := r.authorize(link, caller); err != nil {
		return nil, err
	}

	if err := r.store.RenameLink(ctx, oldSlug, newSlug, r.now()); err != nil {
		return nil, storeErr(err)
	}
	r.invalidate(ctx, oldSlug, newSlug)

	r.log.Info("link renamed", zap.String("old_slug", oldSlug), zap.String("new_slug", newSlug))
	return r.load(ctx, newSlug)
}

// List возвращает ссылки от новых к старым: ссылки владельца или все в однопользовательском режиме
func (r *Registry) List(ctx context.Context, owner string) ([]*domain.Link, error) {
	var filter *string
	if r.OwnershipEnabled() {
		owner = strings.TrimSpace(owner)
		if owner == "" {
			return nil, invalid("owner", "is required")
		}
		filter = &owner
	}

	links, err := r.store.ListLinks(ctx, filter)
	if err != nil {
		return nil, storeErr(err)
	}
	return links, nil
}

// Delete удаляет ссылку и ее сканирования
func (r *Registry) Delete(ctx context.Context, slug, caller string) error {
	link, err := r.store.GetLink(ctx, slug, 0)
	if err != nil {
		return storeErr(err)
	}
	if err := r.authorize(link, caller); err != nil {
		return err
	}
	if err := r.store.DeleteLink(ctx, slug); err != nil {
		return storeErr(err)
	}
	r.invalidate(ctx, slug)

	r.log.Info("link deleted", zap.String("slug", slug))
	return nil
}

// Scans возвращает страницу истории сканирований, от старых к новым
func (r *Registry) Scans(ctx context.Context, slug, caller string, limit, offset int) ([]domain.Scan, error) {
	if err := r.checkReader(ctx, slug, caller); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = r.cfg.ScanPageSize
	}
	limit = min(limit, maxScanPage)
	offset = max(offset, 0)

	scans, err := r.store.ListScans(ctx, slug, limit, offset)
	if err != nil {
		return nil, storeErr(err)
	}
	return scans, nil
}

// Stats считает сканирования по типам устройств
func (r *Registry) Stats(ctx context.Context, slug, caller string) (*LinkStats, error) {
	if err := r.checkReader(ctx, slug, caller); err != nil {
		return nil, err
	}
	byDevice, err := r.store.ScansByDevice(ctx, slug)
	if err != nil {
		return nil, storeErr(err)
	}
	stats := &LinkStats{Slug: slug, ByDevice: byDevice}
	for _, n := range byDevice {
		stats.TotalScans += n
	}
	return stats, nil
}

func (r *Registry) checkSlug(slug string) error {
	if slug == "" {
		return invalid("slug", "is empty")
	}
	if r.cfg.MaxSlugLength > 0 && len(slug) > r.cfg.MaxSlugLength {
		return invalid("slug", fmt.Sprintf("must be at most %d characters", r.cfg.MaxSlugLength))
	}
	return nil
}

// authorize в однопользовательском режиме пропускает всех, иначе только владельца
func (r *Registry) authorize(link *domain.Link, caller string) error {
	if !r.OwnershipEnabled() {
		return nil
	}
	if caller == "" || link.Owner != caller {
		return ErrForbidden
	}
	return nil
}

// authorizeRead скрывает чужие ссылки за ErrNotFound, чтобы не раскрывать занятые слаги
func (r *Registry) authorizeRead(link *domain.Link, caller string) error {
	if errors.Is(r.authorize(link, caller), ErrForbidden) {
		return ErrNotFound
	}
	return nil
}

// checkReader проверяет доступ к истории сканирований; без владельцев проверка не нужна
func (r *Registry) checkReader(ctx context.Context, slug, caller string) error {
	if !r.OwnershipEnabled() {
		return nil
	}
	link, err := r.store.GetLink(ctx, slug, 0)
	if err != nil {
		return storeErr(err)
	}
	return r.authorizeRead(link, caller)
}

func (r *Registry) invalidate(ctx context.Context, slugs ...string) {
	if err := r.cache.Invalidate(ctx, slugs...); err != nil {
		r.log.Warn("failed to invalidate destination cache", zap.Strings("slugs", slugs), zap.Error(err))
	}
}
