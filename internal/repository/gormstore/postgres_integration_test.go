//go:build integration

package gormstore

import (
	"QRLinks-Backend/internal/config"
	"QRLinks-Backend/internal/database"
	"QRLinks-Backend/internal/domain"
	"QRLinks-Backend/internal/repository"
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func setupPostgres(t *testing.T) (*Storage, *gorm.DB) {
	t.Helper()
	ctx := context.Background()
	container, err := postgres.RunContainer(ctx,
		testcontainers.WithImage("postgres:16-alpine"),
		postgres.WithDatabase("qrlinks"),
		postgres.WithUsername("qrlinks"),
		postgres.WithPassword("qrlinks"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	log := zap.NewNop()
	db, err := database.NewConnection(&config.Database{
		Driver:          database.DriverPostgres,
		DSN:             dsn,
		MaxIdleConns:    2,
		MaxOpenConns:    10,
		ConnMaxLifetime: "1h",
	}, log)
	require.NoError(t, err)
	require.NoError(t, database.AutoMigrate(db, log))

	return New(db, log), db
}

func TestPostgres_CreateRenameScan(t *testing.T) {
	ctx := context.Background()
	s, _ := setupPostgres(t)
	now := time.Now().UTC().Truncate(time.Microsecond)

	const n = 10
	var wg sync.WaitGroup
	var mu sync.Mutex
	success := 0
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			err := s.InsertLink(ctx, link("race", fmt.Sprintf("u%d", i), now))
			if err == nil {
				mu.Lock()
				success++
				mu.Unlock()
				return
			}
			assert.ErrorIs(t, err, repository.ErrSlugExists)
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 1, success)

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, s.AppendScan(ctx, "race", &domain.Scan{Timestamp: now}))
		}()
	}
	wg.Wait()

	require.NoError(t, s.RenameLink(ctx, "race", "renamed", now.Add(time.Minute)))
	got, err := s.GetLink(ctx, "renamed", 100)
	require.NoError(t, err)
	assert.Len(t, got.Scans, n)

	_, err = s.GetLink(ctx, "race", 0)
	assert.ErrorIs(t, err, repository.ErrSlugNotFound)
}

func TestPostgres_ScansRacingDeleteAndRename(t *testing.T) {
	ctx := context.Background()
	s, db := setupPostgres(t)
	now := time.Now().UTC().Truncate(time.Microsecond)

	appendConcurrently := func(slug string, during func() error) int {
		const n = 40
		var wg sync.WaitGroup
		var mu sync.Mutex
		stored := 0
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				err := s.AppendScan(ctx, slug, &domain.Scan{Timestamp: now.Add(time.Duration(i) * time.Millisecond)})
				if err == nil {
					mu.Lock()
					stored++
					mu.Unlock()
					return
				}
				assert.True(t, errors.Is(err, repository.ErrSlugNotFound), "unexpected error: %v", err)
			}(i)
		}
		require.NoError(t, during())
		wg.Wait()
		return stored
	}

	require.NoError(t, s.InsertLink(ctx, link("gone", "u1", now)))
	appendConcurrently("gone", func() error { return s.DeleteLink(ctx, "gone") })

	var orphans int64
	require.NoError(t, db.Model(&domain.Scan{}).Where("link_slug = ?", "gone").Count(&orphans).Error)
	assert.Zero(t, orphans)

	require.NoError(t, s.InsertLink(ctx, link("gone", "u2", now)))
	fresh, err := s.GetLink(ctx, "gone", 10)
	require.NoError(t, err)
	assert.Zero(t, fresh.ScanCount)

	require.NoError(t, s.InsertLink(ctx, link("from", "u1", now)))
	stored := appendConcurrently("from", func() error { return s.RenameLink(ctx, "from", "to", now) })

	moved, err := s.GetLink(ctx, "to", 0)
	require.NoError(t, err)
	assert.Equal(t, int64(stored), moved.ScanCount)
	require.NoError(t, db.Model(&domain.Scan{}).Where("link_slug = ?", "from").Count(&orphans).Error)
	assert.Zero(t, orphans)
}
