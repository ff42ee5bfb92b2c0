package storage

import (
	"time"

	"clipvault/pkg/types"
)

// EntryModel is the persisted row for a clipboard entry. SearchText is a
// lowercased, diacritic-stripped copy of the text/URL content so substring
// search stays case- and accent-insensitive inside SQL.
type EntryModel struct {
	ID          string `gorm:"primaryKey"`
	ContentHash string `gorm:"index;not null"`
	Kind        string `gorm:"index;not null"`
	SmartType   string
	CreatedAt   time.Time `gorm:"index"`
	UpdatedAt   time.Time

	TextContent string
	URLString   string
	ImageData   []byte `gorm:"type:blob"`
	SearchText  string

	SourceAppName string
	SourceAppID   string

	PayloadBytes   int64
	ThumbnailBytes int64
	ThumbnailKey   string
	IsFavorite     bool `gorm:"index"`
}

// TableName keeps the table name stable regardless of struct renames.
func (EntryModel) TableName() string { return "entries" }

// ToEntry converts the row back to the domain type.
func (m *EntryModel) ToEntry() *types.Entry {
	return &types.Entry{
		ID:             m.ID,
		ContentHash:    m.ContentHash,
		Kind:           types.Kind(m.Kind),
		SmartType:      types.SmartType(m.SmartType),
		CreatedAt:      m.CreatedAt,
		UpdatedAt:      m.UpdatedAt,
		TextContent:    m.TextContent,
		URLString:      m.URLString,
		ImageData:      m.ImageData,
		SourceAppName:  m.SourceAppName,
		SourceAppID:    m.SourceAppID,
		PayloadBytes:   m.PayloadBytes,
		ThumbnailBytes: m.ThumbnailBytes,
		ThumbnailKey:   m.ThumbnailKey,
		IsFavorite:     m.IsFavorite,
	}
}

// FromEntry converts a domain entry to its persisted row, deriving the
// normalized search column.
func FromEntry(entry *types.Entry) *EntryModel {
	return &EntryModel{
		ID:             entry.ID,
		ContentHash:    entry.ContentHash,
		Kind:           string(entry.Kind),
		SmartType:      string(entry.SmartType),
		CreatedAt:      entry.CreatedAt,
		UpdatedAt:      entry.UpdatedAt,
		TextContent:    entry.TextContent,
		URLString:      entry.URLString,
		ImageData:      entry.ImageData,
		SearchText:     NormalizeSearchText(entry.TextContent + " " + entry.URLString),
		SourceAppName:  entry.SourceAppName,
		SourceAppID:    entry.SourceAppID,
		PayloadBytes:   entry.PayloadBytes,
		ThumbnailBytes: entry.ThumbnailBytes,
		ThumbnailKey:   entry.ThumbnailKey,
		IsFavorite:     entry.IsFavorite,
	}
}
