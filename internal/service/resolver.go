package service

import (
	"QRLinks-Backend/internal/analytics"
	"QRLinks-Backend/internal/repository"
	"context"
	"time"

	"go.uber.org/zap"
)

// ScanRecorder сохраняет события сканирования. Record никогда не возвращает ошибку вызывающему
type ScanRecorder interface {
	Record(ctx context.Context, ev analytics.ScanEvent)
}

// Resolver превращает слаг в адрес назначения и фиксирует сканирование
type Resolver struct {
	store    repository.LinkStore
	cache    DestinationCache
	recorder ScanRecorder
	log      *zap.Logger
	now      func() time.Time
}

func NewResolver(store repository.LinkStore, recorder ScanRecorder, log *zap.Logger, opts ...ResolverOption) *Resolver {
	r := &Resolver{
		store:    store,
		cache:    noopCache{},
		recorder: recorder,
		log:      log,
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

type ResolverOption func(*Resolver)

func WithResolverCache(c DestinationCache) ResolverOption {
	return func(r *Resolver) {
		if c != nil {
			r.cache = c
		}
	}
}

func WithResolverClock(now func() time.Time) ResolverOption {
	return func(r *Resolver) {
		r.now = now
	}
}

// Resolve возвращает адрес назначения и передает событие сканирования в recorder
func (r *Resolver) Resolve(ctx context.Context, slug, clientAddress, userAgent, referer string) (string, error) {
	dest, err := r.lookup(ctx, slug)
	if err != nil {
		return "", err
	}

	r.recorder.Record(ctx, analytics.ScanEvent{
		Slug:          slug,
		ClientAddress: clientAddress,
		UserAgent:     userAgent,
		Referer:       referer,
		Timestamp:     r.now(),
	})
	return dest, nil
}

func (r *Resolver) lookup(ctx context.Context, slug string) (string, error) {
	dest, ok, err := r.cache.Get(ctx, slug)
	if err != nil {
		r.log.Warn("destination cache read failed", zap.String("slug", slug), zap.Error(err))
	}
	if ok {
		return dest, nil
	}

	link, err := r.store.GetLink(ctx, slug, 0)
	if err != nil {
		return "", storeErr(err)
	}

	if err := r.cache.Set(ctx, slug, link.DestinationURL); err != nil {
		r.log.Warn("destination cache write failed", zap.String("slug", slug), zap.Error(err))
	}
	return link.DestinationURL, nil
}
