package gormstore

import (
	"QRLinks-Backend/internal/database"
	"QRLinks-Backend/internal/domain"
	"QRLinks-Backend/internal/repository"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_busy_timeout=5000&_foreign_keys=1", name)

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, database.AutoMigrate(db, zap.NewNop()))
	return db
}

func setupStorage(t *testing.T) (*Storage, *gorm.DB) {
	db := setupDB(t)
	return New(db, zap.NewNop()), db
}

func link(slug, owner string, created time.Time) *domain.Link {
	return &domain.Link{
		Slug:           slug,
		DestinationURL: "https://example.com/" + slug,
		Owner:          owner,
		Customizations: domain.DefaultCustomizations(),
		CreatedAt:      created,
		UpdatedAt:      created,
	}
}

var base = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func TestInsertLink(t *testing.T) {
	s, _ := setupStorage(t)
	ctx := context.Background()

	require.NoError(t, s.InsertLink(ctx, link("demo", "u1", base)))
	err := s.InsertLink(ctx, link("demo", "u2", base))
	assert.ErrorIs(t, err, repository.ErrSlugExists)

	got, err := s.GetLink(ctx, "demo", 10)
	require.NoError(t, err)
	assert.Equal(t, "u1", got.Owner)
	assert.Equal(t, "https://example.com/demo", got.DestinationURL)
	assert.Equal(t, domain.DefaultCustomizations(), got.Customizations)
	assert.True(t, base.Equal(got.CreatedAt))
	assert.NotNil(t, got.Scans)
	assert.Zero(t, got.ScanCount)
}

func TestInsertLink_ConcurrentSameSlug(t *testing.T) {
	s, _ := setupStorage(t)
	ctx := context.Background()
	const n = 20

	var wg sync.WaitGroup
	var mu sync.Mutex
	success, conflicts := 0, 0
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			err := s.InsertLink(ctx, link("race", fmt.Sprintf("u%d", i), base))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				success++
			case errors.Is(err, repository.ErrSlugExists):
				conflicts++
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, success)
	assert.Equal(t, n-1, conflicts)
}

func TestGetLink_NotFound(t *testing.T) {
	s, _ := setupStorage(t)
	_, err := s.GetLink(context.Background(), "missing", 10)
	assert.ErrorIs(t, err, repository.ErrSlugNotFound)
}

func TestAppendScan_ConcurrentKeepsEveryScan(t *testing.T) {
	s, _ := setupStorage(t)
	ctx := context.Background()
	require.NoError(t, s.InsertLink(ctx, link("demo", "", base)))

	const m = 30
	var wg sync.WaitGroup
	for i := 0; i < m; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			assert.NoError(t, s.AppendScan(ctx, "demo", &domain.Scan{
				UserAgent: fmt.Sprintf("ua-%d", i),
				Timestamp: base.Add(time.Duration(i) * time.Second),
			}))
		}(i)
	}
	wg.Wait()

	got, err := s.GetLink(ctx, "demo", 1000)
	require.NoError(t, err)
	assert.Len(t, got.Scans, m)
	assert.Equal(t, int64(m), got.ScanCount)

	assert.ErrorIs(t, s.AppendScan(ctx, "missing", &domain.Scan{}), repository.ErrSlugNotFound)
}

func TestGetLink_ScanLimitKeepsNewestInOrder(t *testing.T) {
	s, _ := setupStorage(t)
	ctx := context.Background()
	require.NoError(t, s.InsertLink(ctx, link("demo", "", base)))
	for i := 0; i < 5; i++ {
		require.NoError(t, s.AppendScan(ctx, "demo", &domain.Scan{UserAgent: fmt.Sprint(i), Timestamp: base}))
	}

	got, err := s.GetLink(ctx, "demo", 3)
	require.NoError(t, err)
	require.Len(t, got.Scans, 3)
	assert.Equal(t, "2", got.Scans[0].UserAgent)
	assert.Equal(t, "4", got.Scans[2].UserAgent)
	assert.Equal(t, int64(5), got.ScanCount)
}

func TestUpdateLink(t *testing.T) {
	s, _ := setupStorage(t)
	ctx := context.Background()
	require.NoError(t, s.InsertLink(ctx, link("demo", "", base)))

	custom := domain.Customizations{FgColor: "#112233"}.WithDefaults()
	later := base.Add(time.Hour)
	require.NoError(t, s.UpdateLink(ctx, "demo", repository.LinkPatch{Customizations: &custom, UpdatedAt: later}))

	got, err := s.GetLink(ctx, "demo", 0)
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/demo", got.DestinationURL)
	assert.Equal(t, "#112233", got.Customizations.FgColor)
	assert.Equal(t, domain.DefaultBgColor, got.Customizations.BgColor)
	assert.True(t, later.Equal(got.UpdatedAt))
	assert.True(t, base.Equal(got.CreatedAt))

	err = s.UpdateLink(ctx, "missing", repository.LinkPatch{UpdatedAt: later})
	assert.ErrorIs(t, err, repository.ErrSlugNotFound)
}

func TestRenameLink(t *testing.T) {
	s, _ := setupStorage(t)
	ctx := context.Background()
	require.NoError(t, s.InsertLink(ctx, link("old", "u1", base)))
	require.NoError(t, s.InsertLink(ctx, link("taken", "u1", base)))
	require.NoError(t, s.AppendScan(ctx, "old", &domain.Scan{UserAgent: "a", Timestamp: base}))
	require.NoError(t, s.AppendScan(ctx, "old", &domain.Scan{UserAgent: "b", Timestamp: base}))
	renamedAt := base.Add(time.Hour)

	assert.ErrorIs(t, s.RenameLink(ctx, "old", "taken", renamedAt), repository.ErrSlugExists)
	assert.ErrorIs(t, s.RenameLink(ctx, "nope", "fresh", renamedAt), repository.ErrSlugNotFound)

	require.NoError(t, s.RenameLink(ctx, "old", "new", renamedAt))

	_, err := s.GetLink(ctx, "old", 0)
	assert.ErrorIs(t, err, repository.ErrSlugNotFound)

	got, err := s.GetLink(ctx, "new", 10)
	require.NoError(t, err)
	assert.Equal(t, "u1", got.Owner)
	assert.True(t, base.Equal(got.CreatedAt))
	assert.True(t, renamedAt.Equal(got.UpdatedAt))
	require.Len(t, got.Scans, 2)
	assert.Equal(t, "a", got.Scans[0].UserAgent)
	assert.Equal(t, "b", got.Scans[1].UserAgent)
}

func TestRenameLink_FailureRollsBack(t *testing.T) {
	s, db := setupStorage(t)
	ctx := context.Background()
	require.NoError(t, s.InsertLink(ctx, link("old", "u1", base)))
	require.NoError(t, s.AppendScan(ctx, "old", &domain.Scan{UserAgent: "a", Timestamp: base}))

	// Ломаем удаление старой строки, чтобы транзакция упала на последнем шаге
	errBoom := errors.New("boom")
	require.NoError(t, db.Callback().Delete().Before("gorm:delete").Register("test:fail_link_delete", func(tx *gorm.DB) {
		if tx.Statement.Schema != nil && tx.Statement.Schema.Table == "links" {
			_ = tx.AddError(errBoom)
		}
	}))

	err := s.RenameLink(ctx, "old", "new", base.Add(time.Hour))
	require.Error(t, err)
	assert.ErrorIs(t, err, errBoom)

	got, err := s.GetLink(ctx, "old", 10)
	require.NoError(t, err)
	assert.Len(t, got.Scans, 1)

	_, err = s.GetLink(ctx, "new", 0)
	assert.ErrorIs(t, err, repository.ErrSlugNotFound)
}

func TestDeleteLink(t *testing.T) {
	s, db := setupStorage(t)
	ctx := context.Background()
	require.NoError(t, s.InsertLink(ctx, link("demo", "", base)))
	require.NoError(t, s.AppendScan(ctx, "demo", &domain.Scan{Timestamp: base}))

	require.NoError(t, s.DeleteLink(ctx, "demo"))
	assert.ErrorIs(t, s.DeleteLink(ctx, "demo"), repository.ErrSlugNotFound)

	var orphans int64
	require.NoError(t, db.Model(&domain.Scan{}).Where("link_slug = ?", "demo").Count(&orphans).Error)
	assert.Zero(t, orphans)
}

func TestListLinks(t *testing.T) {
	s, _ := setupStorage(t)
	ctx := context.Background()
	require.NoError(t, s.InsertLink(ctx, link("a", "u1", base)))
	require.NoError(t, s.InsertLink(ctx, link("b", "u2", base.Add(time.Minute))))
	require.NoError(t, s.InsertLink(ctx, link("c", "u1", base.Add(2*time.Minute))))
	require.NoError(t, s.AppendScan(ctx, "a", &domain.Scan{Timestamp: base}))
	require.NoError(t, s.AppendScan(ctx, "a", &domain.Scan{Timestamp: base}))

	owner := "u1"
	links, err := s.ListLinks(ctx, &owner)
	require.NoError(t, err)
	require.Len(t, links, 2)
	assert.Equal(t, "c", links[0].Slug)
	assert.Equal(t, "a", links[1].Slug)
	assert.Equal(t, int64(2), links[1].ScanCount)
	assert.Zero(t, links[0].ScanCount)

	all, err := s.ListLinks(ctx, nil)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	nobody := "u9"
	none, err := s.ListLinks(ctx, &nobody)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestListScansAndDevices(t *testing.T) {
	s, _ := setupStorage(t)
	ctx := context.Background()
	require.NoError(t, s.InsertLink(ctx, link("demo", "", base)))
	for _, device := range []string{"mobile", "desktop", "mobile", ""} {
		require.NoError(t, s.AppendScan(ctx, "demo", &domain.Scan{DeviceType: device, Timestamp: base}))
	}

	page, err := s.ListScans(ctx, "demo", 2, 1)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, "desktop", page[0].DeviceType)

	byDevice, err := s.ScansByDevice(ctx, "demo")
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"mobile": 2, "desktop": 1, "unknown": 1}, byDevice)

	_, err = s.ListScans(ctx, "missing", 10, 0)
	assert.ErrorIs(t, err, repository.ErrSlugNotFound)
	_, err = s.ScansByDevice(ctx, "missing")
	assert.ErrorIs(t, err, repository.ErrSlugNotFound)
}

func TestUsers(t *testing.T) {
	s, _ := setupStorage(t)
	ctx := context.Background()

	user, err := s.CreateUser(ctx, "Bob@Example.com", "hash")
	require.NoError(t, err)
	assert.NotZero(t, user.ID)

	_, err = s.CreateUser(ctx, "bob@example.com", "hash")
	assert.ErrorIs(t, err, repository.ErrUserExists)

	got, err := s.GetUserByEmail(ctx, "BOB@example.com")
	require.NoError(t, err)
	assert.Equal(t, user.ID, got.ID)

	require.NoError(t, s.TouchLastLogin(ctx, user.ID, base))
	got, err = s.GetUserByID(ctx, user.ID)
	require.NoError(t, err)
	require.NotNil(t, got.LastLoginAt)
	assert.True(t, base.Equal(*got.LastLoginAt))

	_, err = s.GetUserByID(ctx, 999)
	assert.ErrorIs(t, err, repository.ErrUserNotFound)
	_, err = s.GetUserByEmail(ctx, "nobody@example.com")
	assert.ErrorIs(t, err, repository.ErrUserNotFound)
}

func TestPing(t *testing.T) {
	s, _ := setupStorage(t)
	assert.NoError(t, s.Ping(context.Background()))
}

func TestScans_ForeignKeyFollowsLink(t *testing.T) {
	s, db := setupStorage(t)
	ctx := context.Background()

	err := db.Create(&domain.Scan{LinkSlug: "ghost", Timestamp: base}).Error
	assert.ErrorIs(t, err, gorm.ErrForeignKeyViolated)

	require.NoError(t, s.InsertLink(ctx, link("demo", "u1", base)))
	require.NoError(t, s.AppendScan(ctx, "demo", &domain.Scan{Timestamp: base}))
	require.NoError(t, s.DeleteLink(ctx, "demo"))
	assert.ErrorIs(t, s.AppendScan(ctx, "demo", &domain.Scan{Timestamp: base}), repository.ErrSlugNotFound)

	// новая ссылка со старым slug начинает с пустой истории
	require.NoError(t, s.InsertLink(ctx, link("demo", "u2", base.Add(time.Hour))))
	got, err := s.GetLink(ctx, "demo", 10)
	require.NoError(t, err)
	assert.Zero(t, got.ScanCount)
	assert.Empty(t, got.Scans)
}

func TestScans_OrderedByScanTime(t *testing.T) {
	s, _ := setupStorage(t)
	ctx := context.Background()
	require.NoError(t, s.InsertLink(ctx, link("demo", "", base)))

	// запись, повторенная после сбоя, приходит позже более свежих
	for _, offset := range []int{2, 0, 1} {
		require.NoError(t, s.AppendScan(ctx, "demo", &domain.Scan{
			UserAgent: fmt.Sprint(offset),
			Timestamp: base.Add(time.Duration(offset) * time.Second),
		}))
	}

	page, err := s.ListScans(ctx, "demo", 10, 0)
	require.NoError(t, err)
	require.Len(t, page, 3)
	for i, scan := range page {
		assert.Equal(t, fmt.Sprint(i), scan.UserAgent)
	}

	got, err := s.GetLink(ctx, "demo", 2)
	require.NoError(t, err)
	require.Len(t, got.Scans, 2)
	assert.Equal(t, "1", got.Scans[0].UserAgent)
	assert.Equal(t, "2", got.Scans[1].UserAgent)
}
