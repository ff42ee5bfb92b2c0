//go:build !darwin

package clipboard

import (
	"context"
	"fmt"

	"clipvault/internal/logger"
)

// noIconFetcher is the non-darwin icon source. There is no portable way
// to resolve an application icon from a bundle identifier here, so every
// lookup lands in the negative cache and is not retried until it expires.
type noIconFetcher struct{}

// NewIconFetcher returns the icon source for the icon cache.
func NewIconFetcher(_ *logger.Logger) noIconFetcher {
	return noIconFetcher{}
}

func (noIconFetcher) Fetch(_ context.Context, bundleID string) ([]byte, error) {
	return nil, fmt.Errorf("application icons unavailable for %s on this platform", bundleID)
}
