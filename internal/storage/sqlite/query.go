package sqlite

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"clipvault/internal/storage"
	"clipvault/pkg/types"
)

// List implements storage.Storage. Results are ordered by creation time
// descending so repeated copies surface at the top.
func (s *SQLiteStorage) List(ctx context.Context, filter storage.Filter) ([]*types.Entry, error) {
	query := s.applyFilter(s.db.WithContext(ctx).Model(&storage.EntryModel{}), filter).
		Order("created_at DESC")

	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}
	if filter.Offset > 0 {
		query = query.Offset(filter.Offset)
	}

	var models []storage.EntryModel
	if err := query.Find(&models).Error; err != nil {
		return nil, fmt.Errorf("failed to list entries: %w", err)
	}

	return toEntries(models), nil
}

// ListOldestFirst implements storage.Storage.
func (s *SQLiteStorage) ListOldestFirst(ctx context.Context, limit int) ([]*types.Entry, error) {
	query := s.db.WithContext(ctx).
		Model(&storage.EntryModel{}).
		Order("created_at ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}

	var models []storage.EntryModel
	if err := query.Find(&models).Error; err != nil {
		return nil, fmt.Errorf("failed to list oldest entries: %w", err)
	}

	return toEntries(models), nil
}

func (s *SQLiteStorage) applyFilter(query *gorm.DB, filter storage.Filter) *gorm.DB {
	if filter.Kind != "" {
		query = query.Where("kind = ?", filter.Kind)
	}
	if filter.FavoritesOnly {
		query = query.Where("is_favorite = ?", true)
	}
	if filter.Search != "" {
		needle := storage.NormalizeSearchText(filter.Search)
		query = query.Where("search_text LIKE ? ESCAPE '\\'", "%"+escapeLike(needle)+"%")
	}
	if !filter.Since.IsZero() {
		query = query.Where("created_at >= ?", filter.Since)
	}
	return query
}

// escapeLike neutralizes LIKE wildcards in user-supplied search text.
func escapeLike(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '%', '_', '\\':
			out = append(out, '\\')
		}
		out = append(out, s[i])
	}
	return string(out)
}

func toEntries(models []storage.EntryModel) []*types.Entry {
	entries := make([]*types.Entry, len(models))
	for i := range models {
		entries[i] = models[i].ToEntry()
	}
	return entries
}
