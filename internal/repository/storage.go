package repository

import (
	"QRLinks-Backend/internal/domain"
	"context"
	"errors"
	"time"
)

var (
	ErrSlugNotFound = errors.New("slug not found")
	ErrSlugExists   = errors.New("slug already exists")
	ErrUserNotFound = errors.New("user not found")
	ErrUserExists   = errors.New("user already exists")
)

// LinkPatch is a partial update. Nil fields are left unchanged.
type LinkPatch struct {
	DestinationURL *string
	Customizations *domain.Customizations
	UpdatedAt      time.Time
}

// LinkStore persists links keyed by slug together with their scan history.
type LinkStore interface {
	// SupportsOwnership reports whether the store records link owners.
	SupportsOwnership() bool

	// InsertLink atomically inserts link unless its slug is taken (ErrSlugExists).
	InsertLink(ctx context.Context, link *domain.Link) error
	// GetLink returns the link with ScanCount set and the most recent scanLimit scans, oldest first.
	GetLink(ctx context.Context, slug string, scanLimit int) (*domain.Link, error)
	UpdateLink(ctx context.Context, slug string, patch LinkPatch) error
	// RenameLink moves the link and its scans from oldSlug to newSlug in one unit of work.
	RenameLink(ctx context.Context, oldSlug, newSlug string, updatedAt time.Time) error
	// DeleteLink removes the link and its scans.
	DeleteLink(ctx context.Context, slug string) error
	// ListLinks returns links newest first. A nil owner lists every link.
	ListLinks(ctx context.Context, owner *string) ([]*domain.Link, error)

	// AppendScan adds one scan event without rewriting the link.
	AppendScan(ctx context.Context, slug string, scan *domain.Scan) error
	ListScans(ctx context.Context, slug string, limit, offset int) ([]domain.Scan, error)
	ScansByDevice(ctx context.Context, slug string) (map[string]int64, error)

	Ping(ctx context.Context) error
}

// UserStore persists user accounts.
type UserStore interface {
	CreateUser(ctx context.Context, email, passwordHash string) (*domain.User, error)
	GetUserByEmail(ctx context.Context, email string) (*domain.User, error)
	GetUserByID(ctx context.Context, id int64) (*domain.User, error)
	TouchLastLogin(ctx context.Context, id int64, at time.Time) error
}

type Storage interface {
	LinkStore
	UserStore
}
