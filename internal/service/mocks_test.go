package service

import (
	"QRLinks-Backend/internal/analytics"
	"QRLinks-Backend/internal/domain"
	"QRLinks-Backend/internal/repository"
	"context"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"
)

// MockStore is a mock implementation of repository.LinkStore
type MockStore struct {
	mock.Mock
}

func (m *MockStore) SupportsOwnership() bool {
	return m.Called().Bool(0)
}

func (m *MockStore) InsertLink(ctx context.Context, link *domain.Link) error {
	return m.Called(ctx, link).Error(0)
}

func (m *MockStore) GetLink(ctx context.Context, slug string, scanLimit int) (*domain.Link, error) {
	args := m.Called(ctx, slug, scanLimit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Link), args.Error(1)
}

func (m *MockStore) UpdateLink(ctx context.Context, slug string, patch repository.LinkPatch) error {
	return m.Called(ctx, slug, patch).Error(0)
}

func (m *MockStore) RenameLink(ctx context.Context, oldSlug, newSlug string, updatedAt time.Time) error {
	return m.Called(ctx, oldSlug, newSlug, updatedAt).Error(0)
}

func (m *MockStore) DeleteLink(ctx context.Context, slug string) error {
	return m.Called(ctx, slug).Error(0)
}

func (m *MockStore) ListLinks(ctx context.Context, owner *string) ([]*domain.Link, error) {
	args := m.Called(ctx, owner)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Link), args.Error(1)
}

func (m *MockStore) AppendScan(ctx context.Context, slug string, scan *domain.Scan) error {
	return m.Called(ctx, slug, scan).Error(0)
}

func (m *MockStore) ListScans(ctx context.Context, slug string, limit, offset int) ([]domain.Scan, error) {
	args := m.Called(ctx, slug, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Scan), args.Error(1)
}

func (m *MockStore) ScansByDevice(ctx context.Context, slug string) (map[string]int64, error) {
	args := m.Called(ctx, slug)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string]int64), args.Error(1)
}

func (m *MockStore) Ping(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

// MockCache is a mock implementation of DestinationCache
type MockCache struct {
	mock.Mock
}

func (m *MockCache) Get(ctx context.Context, slug string) (string, bool, error) {
	args := m.Called(ctx, slug)
	return args.String(0), args.Bool(1), args.Error(2)
}

func (m *MockCache) Set(ctx context.Context, slug, destination string) error {
	return m.Called(ctx, slug, destination).Error(0)
}

func (m *MockCache) Invalidate(ctx context.Context, slugs ...string) error {
	return m.Called(ctx, slugs).Error(0)
}

// recorderSpy collects scan events in memory
type recorderSpy struct {
	mu     sync.Mutex
	events []analytics.ScanEvent
}

func (r *recorderSpy) Record(_ context.Context, ev analytics.ScanEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorderSpy) Events() []analytics.ScanEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]analytics.ScanEvent, len(r.events))
	copy(out, r.events)
	return out
}

// fakeClock returns strictly increasing timestamps
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}
