package gormstore

import (
	"QRLinks-Backend/internal/domain"
	"QRLinks-Backend/internal/repository"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Storage реализует repository.Storage поверх GORM (PostgreSQL, MySQL, SQLite)
type Storage struct {
	db  *gorm.DB
	log *zap.Logger
}

// New создает новый экземпляр хранилища
func New(db *gorm.DB, log *zap.Logger) *Storage {
	return &Storage{
		db:  db,
		log: log,
	}
}

// SupportsOwnership: SQL-хранилище всегда сохраняет владельца
func (s *Storage) SupportsOwnership() bool {
	return true
}

// --- Link Methods ---

// InsertLink вставляет ссылку, если slug свободен. Проверка и вставка выполняются одним запросом.
func (s *Storage) InsertLink(ctx context.Context, link *domain.Link) error {
	result := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(link)
	if errors.Is(result.Error, gorm.ErrDuplicatedKey) {
		return repository.ErrSlugExists
	}
	if result.Error != nil {
		s.log.Error("failed to insert link", zap.String("slug", link.Slug), zap.Error(result.Error))
		return fmt.Errorf("failed to insert link: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return repository.ErrSlugExists
	}

	s.log.Debug("inserted link", zap.String("slug", link.Slug))
	return nil
}

// GetLink получает ссылку по slug вместе с последними scanLimit сканами
func (s *Storage) GetLink(ctx context.Context, slug string, scanLimit int) (*domain.Link, error) {
	var link domain.Link
	db := s.db.WithContext(ctx)

	err := db.Where("slug = ?", slug).First(&link).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, repository.ErrSlugNotFound
	}
	if err != nil {
		s.log.Error("failed to get link", zap.String("slug", slug), zap.Error(err))
		return nil, fmt.Errorf("failed to get link: %w", err)
	}

	if err := db.Model(&domain.Scan{}).Where("link_slug = ?", slug).Count(&link.ScanCount).Error; err != nil {
		return nil, fmt.Errorf("failed to count scans: %w", err)
	}

	link.Scans = []domain.Scan{}
	if scanLimit > 0 && link.ScanCount > 0 {
		// Берем последние scanLimit и разворачиваем в хронологический порядок
		var latest []domain.Scan
		err := db.Where("link_slug = ?", slug).
			Order("scanned_at DESC").Order("id DESC").
			Limit(scanLimit).
			Find(&latest).Error
		if err != nil {
			return nil, fmt.Errorf("failed to load scans: %w", err)
		}
		for i := len(latest) - 1; i >= 0; i-- {
			link.Scans = append(link.Scans, latest[i])
		}
	}

	return &link, nil
}

// UpdateLink применяет частичное обновление
func (s *Storage) UpdateLink(ctx context.Context, slug string, patch repository.LinkPatch) error {
	updates := map[string]interface{}{
		"updated_at": patch.UpdatedAt,
	}
	if patch.DestinationURL != nil {
		updates["destination_url"] = *patch.DestinationURL
	}
	if c := patch.Customizations; c != nil {
		updates["custom_logo_url"] = c.LogoURL
		updates["custom_border_color"] = c.BorderColor
		updates["custom_bg_color"] = c.BgColor
		updates["custom_fg_color"] = c.FgColor
	}

	result := s.db.WithContext(ctx).Model(&domain.Link{}).Where("slug = ?", slug).Updates(updates)
	if result.Error != nil {
		s.log.Error("failed to update link", zap.String("slug", slug), zap.Error(result.Error))
		return fmt.Errorf("failed to update link: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return repository.ErrSlugNotFound
	}
	return nil
}

// RenameLink переносит ссылку и ее сканы на новый slug в одной транзакции.
// При любой ошибке транзакция откатывается и старая ссылка остается как была.
func (s *Storage) RenameLink(ctx context.Context, oldSlug, newSlug string, updatedAt time.Time) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var taken int64
		if err := tx.Model(&domain.Link{}).Where("slug = ?", newSlug).Count(&taken).Error; err != nil {
			return err
		}
		if taken > 0 {
			return repository.ErrSlugExists
		}

		// FOR UPDATE ждет завершения AppendScan по старому slug и не пускает новые
		var link domain.Link
		err := lockLink(tx, "UPDATE").Where("slug = ?", oldSlug).First(&link).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return repository.ErrSlugNotFound
		}
		if err != nil {
			return err
		}

		link.Slug = newSlug
		link.UpdatedAt = updatedAt
		if err := tx.Create(&link).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return repository.ErrSlugExists
			}
			return err
		}

		if err := tx.Model(&domain.Scan{}).
			Where("link_slug = ?", oldSlug).
			Update("link_slug", newSlug).Error; err != nil {
			return err
		}

		result := tx.Where("slug = ?", oldSlug).Delete(&domain.Link{})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return repository.ErrSlugNotFound
		}
		return nil
	})

	if err != nil {
		if errors.Is(err, repository.ErrSlugExists) || errors.Is(err, repository.ErrSlugNotFound) {
			return err
		}
		s.log.Error("failed to rename link",
			zap.String("old_slug", oldSlug),
			zap.String("new_slug", newSlug),
			zap.Error(err))
		return fmt.Errorf("failed to rename link: %w", err)
	}

	s.log.Info("renamed link", zap.String("old_slug", oldSlug), zap.String("new_slug", newSlug))
	return nil
}

// DeleteLink удаляет ссылку вместе с историей сканов
func (s *Storage) DeleteLink(ctx context.Context, slug string) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var link domain.Link
		err := lockLink(tx, "UPDATE").Select("slug").Where("slug = ?", slug).Take(&link).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return repository.ErrSlugNotFound
		}
		if err != nil {
			return err
		}

		if err := tx.Where("link_slug = ?", slug).Delete(&domain.Scan{}).Error; err != nil {
			return err
		}
		result := tx.Where("slug = ?", slug).Delete(&domain.Link{})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return repository.ErrSlugNotFound
		}
		return nil
	})
	if errors.Is(err, repository.ErrSlugNotFound) {
		return err
	}
	if err != nil {
		s.log.Error("failed to delete link", zap.String("slug", slug), zap.Error(err))
		return fmt.Errorf("failed to delete link: %w", err)
	}

	s.log.Info("deleted link", zap.String("slug", slug))
	return nil
}

// ListLinks возвращает ссылки (все или одного владельца), новые первыми
func (s *Storage) ListLinks(ctx context.Context, owner *string) ([]*domain.Link, error) {
	var links []*domain.Link
	db := s.db.WithContext(ctx)

	query := db.Order("created_at DESC").Order("slug ASC")
	if owner != nil {
		query = query.Where("owner = ?", *owner)
	}
	if err := query.Find(&links).Error; err != nil {
		s.log.Error("failed to list links", zap.Error(err))
		return nil, fmt.Errorf("failed to list links: %w", err)
	}
	if len(links) == 0 {
		return links, nil
	}

	slugs := make([]string, len(links))
	for i, l := range links {
		slugs[i] = l.Slug
		l.Scans = []domain.Scan{}
	}

	var counts []struct {
		LinkSlug string `gorm:"column:link_slug"`
		Count    int64  `gorm:"column:count"`
	}
	err := db.Model(&domain.Scan{}).
		Select("link_slug, count(*) as count").
		Where("link_slug IN ?", slugs).
		Group("link_slug").
		Find(&counts).Error
	if err != nil {
		return nil, fmt.Errorf("failed to count scans: %w", err)
	}

	bySlug := make(map[string]int64, len(counts))
	for _, c := range counts {
		bySlug[c.LinkSlug] = c.Count
	}
	for _, l := range links {
		l.ScanCount = bySlug[l.Slug]
	}

	return links, nil
}

// --- Scan Methods ---

// AppendScan добавляет запись о сканировании. Строка ссылки не перезаписывается,
// поэтому параллельные сканы не теряются. Разделяемая блокировка строки ссылки и
// внешний ключ не дают скану пережить параллельные RenameLink и DeleteLink.
func (s *Storage) AppendScan(ctx context.Context, slug string, scan *domain.Scan) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var link domain.Link
		err := lockLink(tx, "SHARE").Select("slug").Where("slug = ?", slug).Take(&link).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return repository.ErrSlugNotFound
		}
		if err != nil {
			return err
		}

		row := *scan
		row.ID = 0
		row.LinkSlug = slug
		if row.Timestamp.IsZero() {
			row.Timestamp = time.Now().UTC()
		}
		err = tx.Create(&row).Error
		if errors.Is(err, gorm.ErrForeignKeyViolated) {
			return repository.ErrSlugNotFound
		}
		return err
	})
	if errors.Is(err, repository.ErrSlugNotFound) {
		return err
	}
	if err != nil {
		s.log.Error("failed to append scan", zap.String("slug", slug), zap.Error(err))
		return fmt.Errorf("failed to append scan: %w", err)
	}
	return nil
}

// ListScans возвращает страницу истории сканов по времени сканирования
func (s *Storage) ListScans(ctx context.Context, slug string, limit, offset int) ([]domain.Scan, error) {
	if err := s.ensureLink(ctx, slug); err != nil {
		return nil, err
	}

	scans := []domain.Scan{}
	query := s.db.WithContext(ctx).Where("link_slug = ?", slug).
		Order("scanned_at ASC").Order("id ASC").
		Offset(offset)
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&scans).Error; err != nil {
		s.log.Error("failed to list scans", zap.String("slug", slug), zap.Error(err))
		return nil, fmt.Errorf("failed to list scans: %w", err)
	}
	return scans, nil
}

// ScansByDevice возвращает статистику сканов по типам устройств для ссылки
func (s *Storage) ScansByDevice(ctx context.Context, slug string) (map[string]int64, error) {
	if err := s.ensureLink(ctx, slug); err != nil {
		return nil, err
	}

	var results []struct {
		DeviceType string `gorm:"column:device_type"`
		Count      int64  `gorm:"column:count"`
	}

	err := s.db.WithContext(ctx).
		Model(&domain.Scan{}).
		Select("COALESCE(NULLIF(device_type, ''), 'unknown') as device_type, count(*) as count").
		Where("link_slug = ?", slug).
		Group("COALESCE(NULLIF(device_type, ''), 'unknown')").
		Find(&results).Error
	if err != nil {
		s.log.Error("failed to get scans by device", zap.String("slug", slug), zap.Error(err))
		return nil, fmt.Errorf("failed to get scans by device: %w", err)
	}

	byDevice := make(map[string]int64, len(results))
	for _, r := range results {
		byDevice[r.DeviceType] += r.Count
	}
	return byDevice, nil
}

// Ping проверяет состояние подключения к базе данных
func (s *Storage) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get sql.DB instance: %w", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	return nil
}

// --- User Methods ---

// CreateUser создает пользователя; email уникален без учета регистра
func (s *Storage) CreateUser(ctx context.Context, email, passwordHash string) (*domain.User, error) {
	user := domain.User{
		Email:        strings.ToLower(email),
		PasswordHash: passwordHash,
	}
	err := s.db.WithContext(ctx).Create(&user).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return nil, repository.ErrUserExists
	}
	if err != nil {
		s.log.Error("failed to create user", zap.String("email", email), zap.Error(err))
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	s.log.Info("created new user", zap.Int64("user_id", user.ID))
	return &user, nil
}

// GetUserByEmail получает пользователя по email
func (s *Storage) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	var user domain.User
	err := s.db.WithContext(ctx).Where("email = ?", strings.ToLower(email)).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, repository.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &user, nil
}

// GetUserByID получает пользователя по ID
func (s *Storage) GetUserByID(ctx context.Context, id int64) (*domain.User, error) {
	var user domain.User
	err := s.db.WithContext(ctx).First(&user, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, repository.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &user, nil
}

// TouchLastLogin обновляет время последнего входа
func (s *Storage) TouchLastLogin(ctx context.Context, id int64, at time.Time) error {
	result := s.db.WithContext(ctx).Model(&domain.User{}).Where("id = ?", id).
		Updates(map[string]interface{}{"last_login_at": at, "updated_at": at})
	if result.Error != nil {
		return fmt.Errorf("failed to update last login: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return repository.ErrUserNotFound
	}
	return nil
}

// --- Helper Methods ---

// lockLink добавляет FOR SHARE/FOR UPDATE к чтению строки ссылки.
// SQLite блокирует базу на запись целиком и блокировок строк не поддерживает
func lockLink(tx *gorm.DB, strength string) *gorm.DB {
	if tx.Dialector.Name() == "sqlite" {
		return tx
	}
	return tx.Clauses(clause.Locking{Strength: strength})
}

func (s *Storage) ensureLink(ctx context.Context, slug string) error {
	var count int64
	if err := s.db.WithContext(ctx).Model(&domain.Link{}).Where("slug = ?", slug).Count(&count).Error; err != nil {
		return fmt.Errorf("failed to check link: %w", err)
	}
	if count == 0 {
		return repository.ErrSlugNotFound
	}
	return nil
}
