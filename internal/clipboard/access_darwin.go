//go:build darwin

package clipboard

import (
	"fmt"
	"sync"

	"github.com/progrium/darwinkit/macos/appkit"

	"clipvault/internal/logger"
	"clipvault/pkg/types"
)

const (
	pasteboardTypeText = "public.utf8-plain-text"
	pasteboardTypePNG  = "public.png"
	pasteboardTypeTIFF = "public.tiff"
)

// pasteboardAccess reads the general NSPasteboard. The pasteboard keeps a
// native monotonically increasing change count, so no content diffing is
// needed to detect changes.
type pasteboardAccess struct {
	mu sync.Mutex
	pb appkit.Pasteboard
}

// NewAccess returns the macOS clipboard backend.
func NewAccess(_ *logger.Logger) Access {
	return &pasteboardAccess{pb: appkit.Pasteboard_GeneralPasteboard()}
}

func (a *pasteboardAccess) ChangeCounter() int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return int64(a.pb.ChangeCount())
}

func (a *pasteboardAccess) Read() (RawContent, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	var raw RawContent

	if data := a.pb.DataForType(appkit.PasteboardType(pasteboardTypePNG)); len(data) > 0 {
		raw.Image = data
	} else if data := a.pb.DataForType(appkit.PasteboardType(pasteboardTypeTIFF)); len(data) > 0 {
		raw.Image = data
	}

	if text := a.pb.StringForType(appkit.PasteboardType(pasteboardTypeText)); text != "" {
		raw.Text = text
	}

	return raw, nil
}

func (a *pasteboardAccess) Write(kind types.Kind, data []byte) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.pb.ClearContents()

	switch kind {
	case types.KindImage:
		if !a.pb.SetDataForType(data, appkit.PasteboardType(pasteboardTypePNG)) {
			return fmt.Errorf("pasteboard rejected image data")
		}
	case types.KindText, types.KindURL:
		if !a.pb.SetStringForType(string(data), appkit.PasteboardType(pasteboardTypeText)) {
			return fmt.Errorf("pasteboard rejected string data")
		}
	default:
		return fmt.Errorf("unsupported clipboard kind: %s", kind)
	}

	return nil
}

// workspaceFocus attributes captures to the frontmost application via
// NSWorkspace.
type workspaceFocus struct{}

// NewFocusProvider returns the macOS frontmost-application provider.
func NewFocusProvider(_ *logger.Logger) FocusProvider {
	return workspaceFocus{}
}

func (workspaceFocus) FrontmostApp() types.SourceApp {
	app := appkit.Workspace_SharedWorkspace().FrontmostApplication()
	name := app.LocalizedName()
	bundleID := app.BundleIdentifier()
	if name == "" && bundleID == "" {
		return types.Unknown()
	}
	if name == "" {
		name = bundleID
	}
	if bundleID == "" {
		bundleID = types.Unknown().BundleID
	}
	return types.SourceApp{Name: name, BundleID: bundleID}
}
