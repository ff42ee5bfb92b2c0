//go:build darwin

package clipboard

import (
	"context"
	"fmt"

	"github.com/progrium/darwinkit/macos/appkit"

	"clipvault/internal/logger"
)

// workspaceIconFetcher resolves application icons through NSWorkspace.
type workspaceIconFetcher struct {
	log *logger.Logger
}

// NewIconFetcher returns the macOS icon source for the icon cache.
func NewIconFetcher(log *logger.Logger) *workspaceIconFetcher {
	return &workspaceIconFetcher{log: log}
}

func (f *workspaceIconFetcher) Fetch(_ context.Context, bundleID string) ([]byte, error) {
	ws := appkit.Workspace_SharedWorkspace()

	appURL := ws.URLForApplicationWithBundleIdentifier(bundleID)
	path := appURL.Path()
	if path == "" {
		return nil, fmt.Errorf("no application installed for %s", bundleID)
	}

	icon := ws.IconForFile(path)
	data := icon.TIFFRepresentation()
	if len(data) == 0 {
		return nil, fmt.Errorf("no icon representation for %s", bundleID)
	}
	return data, nil
}
