package memory

import (
	"QRLinks-Backend/internal/domain"
	"QRLinks-Backend/internal/repository"
	"context"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"
)

// MemStorage keeps links, scans and users in process memory.
// Every mutation happens under one lock, so check-and-insert, append and
// rename are atomic with respect to each other.
type MemStorage struct {
	mu          sync.RWMutex
	links       map[string]*domain.Link
	scans       map[string][]domain.Scan
	usersByID   map[int64]*domain.User
	usersByMail map[string]int64
	userCounter int64
	scanCounter int64
	ownership   bool
}

type Option func(*MemStorage)

// WithoutOwnership makes the store single-tenant: owners are not recorded.
func WithoutOwnership() Option {
	return func(s *MemStorage) {
		s.ownership = false
	}
}

func New(opts ...Option) *MemStorage {
	s := &MemStorage{
		links:       make(map[string]*domain.Link),
		scans:       make(map[string][]domain.Scan),
		usersByID:   make(map[int64]*domain.User),
		usersByMail: make(map[string]int64),
		ownership:   true,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *MemStorage) SupportsOwnership() bool {
	return s.ownership
}

// --- Link Methods ---

func (s *MemStorage) InsertLink(_ context.Context, link *domain.Link) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.links[link.Slug]; exists {
		return repository.ErrSlugExists
	}
	stored := *link
	stored.Scans = nil
	stored.ScanCount = 0
	if !s.ownership {
		stored.Owner = ""
	}
	s.links[link.Slug] = &stored
	return nil
}

func (s *MemStorage) GetLink(_ context.Context, slug string, scanLimit int) (*domain.Link, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	link, ok := s.links[slug]
	if !ok {
		return nil, repository.ErrSlugNotFound
	}
	out := *link
	scans := s.scans[slug]
	out.ScanCount = int64(len(scans))
	out.Scans = recent(scans, scanLimit)
	return &out, nil
}

func (s *MemStorage) UpdateLink(_ context.Context, slug string, patch repository.LinkPatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	link, ok := s.links[slug]
	if !ok {
		return repository.ErrSlugNotFound
	}
	if patch.DestinationURL != nil {
		link.DestinationURL = *patch.DestinationURL
	}
	if patch.Customizations != nil {
		link.Customizations = *patch.Customizations
	}
	link.UpdatedAt = patch.UpdatedAt
	return nil
}

func (s *MemStorage) RenameLink(_ context.Context, oldSlug, newSlug string, updatedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.links[newSlug]; exists {
		return repository.ErrSlugExists
	}
	link, ok := s.links[oldSlug]
	if !ok {
		return repository.ErrSlugNotFound
	}

	renamed := *link
	renamed.Slug = newSlug
	renamed.UpdatedAt = updatedAt
	s.links[newSlug] = &renamed

	if scans, ok := s.scans[oldSlug]; ok {
		for i := range scans {
			scans[i].LinkSlug = newSlug
		}
		s.scans[newSlug] = scans
		delete(s.scans, oldSlug)
	}
	delete(s.links, oldSlug)
	return nil
}

func (s *MemStorage) DeleteLink(_ context.Context, slug string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.links[slug]; !ok {
		return repository.ErrSlugNotFound
	}
	delete(s.links, slug)
	delete(s.scans, slug)
	return nil
}

func (s *MemStorage) ListLinks(_ context.Context, owner *string) ([]*domain.Link, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	links := make([]*domain.Link, 0, len(s.links))
	for _, link := range s.links {
		if owner != nil && link.Owner != *owner {
			continue
		}
		out := *link
		out.ScanCount = int64(len(s.scans[link.Slug]))
		out.Scans = []domain.Scan{}
		links = append(links, &out)
	}
	sort.Slice(links, func(i, j int) bool {
		if links[i].CreatedAt.Equal(links[j].CreatedAt) {
			return links[i].Slug < links[j].Slug
		}
		return links[i].CreatedAt.After(links[j].CreatedAt)
	})
	return links, nil
}

func (s *MemStorage) AppendScan(_ context.Context, slug string, scan *domain.Scan) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.links[slug]; !ok {
		return repository.ErrSlugNotFound
	}
	s.scanCounter++
	stored := *scan
	stored.ID = s.scanCounter
	stored.LinkSlug = slug
	if stored.Timestamp.IsZero() {
		stored.Timestamp = time.Now().UTC()
	}

	// history stays sorted by timestamp; equal timestamps keep arrival order
	list := s.scans[slug]
	i := sort.Search(len(list), func(i int) bool { return list[i].Timestamp.After(stored.Timestamp) })
	s.scans[slug] = slices.Insert(list, i, stored)
	return nil
}

func (s *MemStorage) ListScans(_ context.Context, slug string, limit, offset int) ([]domain.Scan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.links[slug]; !ok {
		return nil, repository.ErrSlugNotFound
	}
	scans := s.scans[slug]
	if offset >= len(scans) {
		return []domain.Scan{}, nil
	}
	end := len(scans)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	out := make([]domain.Scan, end-offset)
	copy(out, scans[offset:end])
	return out, nil
}

func (s *MemStorage) ScansByDevice(_ context.Context, slug string) (map[string]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.links[slug]; !ok {
		return nil, repository.ErrSlugNotFound
	}
	byDevice := make(map[string]int64)
	for i := range s.scans[slug] {
		byDevice[s.scans[slug][i].GetDeviceType()]++
	}
	return byDevice, nil
}

func (s *MemStorage) Ping(_ context.Context) error {
	return nil
}

// --- User Methods ---

func (s *MemStorage) CreateUser(_ context.Context, email, passwordHash string) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := strings.ToLower(email)
	if _, exists := s.usersByMail[key]; exists {
		return nil, repository.ErrUserExists
	}
	s.userCounter++
	now := time.Now().UTC()
	user := &domain.User{
		ID:           s.userCounter,
		Email:        email,
		PasswordHash: passwordHash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	s.usersByID[user.ID] = user
	s.usersByMail[key] = user.ID
	out := *user
	return &out, nil
}

func (s *MemStorage) GetUserByEmail(_ context.Context, email string) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.usersByMail[strings.ToLower(email)]
	if !ok {
		return nil, repository.ErrUserNotFound
	}
	out := *s.usersByID[id]
	return &out, nil
}

func (s *MemStorage) GetUserByID(_ context.Context, id int64) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	user, ok := s.usersByID[id]
	if !ok {
		return nil, repository.ErrUserNotFound
	}
	out := *user
	return &out, nil
}

func (s *MemStorage) TouchLastLogin(_ context.Context, id int64, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.usersByID[id]
	if !ok {
		return repository.ErrUserNotFound
	}
	user.LastLoginAt = &at
	user.UpdatedAt = at
	return nil
}

// recent copies the last n scans; n <= 0 means none.
func recent(scans []domain.Scan, n int) []domain.Scan {
	if n <= 0 || len(scans) == 0 {
		return []domain.Scan{}
	}
	if len(scans) > n {
		scans = scans[len(scans)-n:]
	}
	out := make([]domain.Scan, len(scans))
	copy(out, scans)
	return out
}
