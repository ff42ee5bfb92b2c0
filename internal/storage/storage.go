package storage

import (
	"context"
	"time"

	"clipvault/pkg/types"
)

// Storage defines the persistence collaborator owned by the clipboard
// store. The store is the only local writer; an external sync process may
// mutate entries out of band, which is what ChangeSignal surfaces.
type Storage interface {
	// Upsert inserts the entry or replaces the row with the same ID.
	Upsert(ctx context.Context, entry *types.Entry) error

	// Get retrieves an entry by ID. Returns ErrNotFound when absent.
	Get(ctx context.Context, id string) (*types.Entry, error)

	// FindByHash returns the entry with the given content hash, or
	// ErrNotFound. When duplicates exist (e.g. after a sync merge) the
	// newest one is returned.
	FindByHash(ctx context.Context, hash string) (*types.Entry, error)

	// Delete removes an entry. Deleting a nonexistent ID is a no-op.
	Delete(ctx context.Context, id string) error

	// DeleteAll removes every entry.
	DeleteAll(ctx context.Context) error

	// List returns entries matching the filter, newest first.
	List(ctx context.Context, filter Filter) ([]*types.Entry, error)

	// ListOldestFirst returns up to limit entries in ascending creation
	// order. The retention engine walks these during eviction.
	ListOldestFirst(ctx context.Context, limit int) ([]*types.Entry, error)

	// SetFavorite flips the favorite flag. Unknown IDs are a no-op.
	SetFavorite(ctx context.Context, id string, favorite bool) error

	// TotalBytes returns the aggregate payload+thumbnail size across all
	// entries, the quantity bounded by the retention budget.
	TotalBytes(ctx context.Context) (int64, error)

	// Count returns the number of stored entries.
	Count(ctx context.Context) (int64, error)

	// Close releases the underlying database handle.
	Close() error
}

// Filter restricts and pages a List call. Zero values mean "no
// restriction" for their dimension.
type Filter struct {
	// Kind keeps only entries of one kind when set.
	Kind types.Kind

	// FavoritesOnly keeps only favorited entries.
	FavoritesOnly bool

	// Search is a case- and diacritic-insensitive substring match over
	// text content and URL string.
	Search string

	// Since is a creation-time lower bound (today / 7d / 30d windows).
	Since time.Time

	Limit  int
	Offset int
}

// Config holds storage configuration.
type Config struct {
	// DBPath is the SQLite database location.
	DBPath string
}
