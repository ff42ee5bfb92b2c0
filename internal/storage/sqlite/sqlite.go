// Package sqlite implements storage.Storage on an embedded SQLite
// database via gorm.
package sqlite

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"clipvault/internal/storage"
	"clipvault/pkg/types"
)

type SQLiteStorage struct {
	db *gorm.DB
}

// New opens (or creates) the database at config.DBPath and migrates the
// schema. Failure here is fatal to the caller: the system has no useful
// degraded mode without storage.
func New(config storage.Config) (*SQLiteStorage, error) {
	db, err := gorm.Open(sqlite.Open(config.DBPath), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.AutoMigrate(&storage.EntryModel{}); err != nil {
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}

	return &SQLiteStorage{db: db}, nil
}

// Upsert implements storage.Storage.
func (s *SQLiteStorage) Upsert(ctx context.Context, entry *types.Entry) error {
	if entry.ID == "" || entry.ContentHash == "" {
		return storage.ErrInvalid
	}

	model := storage.FromEntry(entry)
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(model).Error
	if err != nil {
		return fmt.Errorf("failed to upsert entry: %w", err)
	}
	return nil
}

// Get implements storage.Storage.
func (s *SQLiteStorage) Get(ctx context.Context, id string) (*types.Entry, error) {
	var model storage.EntryModel
	err := s.db.WithContext(ctx).First(&model, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get entry: %w", err)
	}
	return model.ToEntry(), nil
}

// FindByHash implements storage.Storage. The newest matching entry wins
// when a sync merge has left duplicates behind.
func (s *SQLiteStorage) FindByHash(ctx context.Context, hash string) (*types.Entry, error) {
	var model storage.EntryModel
	err := s.db.WithContext(ctx).
		Where("content_hash = ?", hash).
		Order("created_at DESC").
		First(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find entry by hash: %w", err)
	}
	return model.ToEntry(), nil
}

// Delete implements storage.Storage. Unknown IDs are a no-op.
func (s *SQLiteStorage) Delete(ctx context.Context, id string) error {
	err := s.db.WithContext(ctx).Delete(&storage.EntryModel{}, "id = ?", id).Error
	if err != nil {
		return fmt.Errorf("failed to delete entry: %w", err)
	}
	return nil
}

// DeleteAll implements storage.Storage.
func (s *SQLiteStorage) DeleteAll(ctx context.Context) error {
	err := s.db.WithContext(ctx).
		Session(&gorm.Session{AllowGlobalUpdate: true}).
		Delete(&storage.EntryModel{}).Error
	if err != nil {
		return fmt.Errorf("failed to delete all entries: %w", err)
	}
	return nil
}

// SetFavorite implements storage.Storage.
func (s *SQLiteStorage) SetFavorite(ctx context.Context, id string, favorite bool) error {
	err := s.db.WithContext(ctx).
		Model(&storage.EntryModel{}).
		Where("id = ?", id).
		Update("is_favorite", favorite).Error
	if err != nil {
		return fmt.Errorf("failed to set favorite: %w", err)
	}
	return nil
}

// TotalBytes implements storage.Storage.
func (s *SQLiteStorage) TotalBytes(ctx context.Context) (int64, error) {
	var total int64
	err := s.db.WithContext(ctx).
		Model(&storage.EntryModel{}).
		Select("COALESCE(SUM(payload_bytes + thumbnail_bytes), 0)").
		Scan(&total).Error
	if err != nil {
		return 0, fmt.Errorf("failed to sum stored bytes: %w", err)
	}
	return total, nil
}

// Count implements storage.Storage.
func (s *SQLiteStorage) Count(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&storage.EntryModel{}).Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count entries: %w", err)
	}
	return count, nil
}

// Close implements storage.Storage.
func (s *SQLiteStorage) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("failed to access underlying database: %w", err)
	}
	return sqlDB.Close()
}
