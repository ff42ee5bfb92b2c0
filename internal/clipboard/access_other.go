//go:build !darwin

package clipboard

import (
	"bytes"
	"fmt"
	"sync"

	atotto "github.com/atotto/clipboard"
	xclip "golang.design/x/clipboard"

	"clipvault/internal/logger"
	"clipvault/pkg/types"
)

// NewAccess returns the clipboard backend for non-darwin platforms:
// golang.design/x/clipboard when a display environment is available,
// otherwise a text-only fallback driven by the platform paste utilities.
func NewAccess(log *logger.Logger) Access {
	if err := xclip.Init(); err != nil {
		log.Warn().Err(err).Msg("display clipboard unavailable, using text-only fallback")
		return &textOnlyAccess{}
	}
	return &displayAccess{}
}

// NewFocusProvider returns the frontmost-application provider. There is no
// portable focus API outside macOS, so attribution is always unknown here.
func NewFocusProvider(_ *logger.Logger) FocusProvider {
	return unknownFocus{}
}

// displayAccess reads text and image formats via golang.design/x/clipboard.
// The platform offers no native change count, so one is synthesized by
// comparing content snapshots between calls.
type displayAccess struct {
	mu       sync.Mutex
	count    int64
	lastText []byte
	lastImg  []byte
}

func (a *displayAccess) ChangeCounter() int64 {
	a.mu.Lock()
	defer a.mu.Unlock()

	text := xclip.Read(xclip.FmtText)
	img := xclip.Read(xclip.FmtImage)
	if !bytes.Equal(text, a.lastText) || !bytes.Equal(img, a.lastImg) {
		a.lastText = text
		a.lastImg = img
		a.count++
	}
	return a.count
}

func (a *displayAccess) Read() (RawContent, error) {
	var raw RawContent
	if img := xclip.Read(xclip.FmtImage); len(img) > 0 {
		raw.Image = img
	}
	if text := xclip.Read(xclip.FmtText); len(text) > 0 {
		raw.Text = string(text)
	}
	return raw, nil
}

func (a *displayAccess) Write(kind types.Kind, data []byte) error {
	switch kind {
	case types.KindImage:
		xclip.Write(xclip.FmtImage, data)
	case types.KindText, types.KindURL:
		xclip.Write(xclip.FmtText, data)
	default:
		return fmt.Errorf("unsupported clipboard kind: %s", kind)
	}

	// The write surfaces as a counter bump on the next poll, where the
	// monitor's skip token consumes it.
	return nil
}

// textOnlyAccess shells out to the platform paste utilities (xclip, xsel,
// wl-clipboard, …) via atotto/clipboard. Images are unsupported.
type textOnlyAccess struct {
	mu    sync.Mutex
	count int64
	last  string
}

func (a *textOnlyAccess) ChangeCounter() int64 {
	a.mu.Lock()
	defer a.mu.Unlock()

	text, err := atotto.ReadAll()
	if err != nil {
		return a.count
	}
	if text != a.last {
		a.last = text
		a.count++
	}
	return a.count
}

func (a *textOnlyAccess) Read() (RawContent, error) {
	text, err := atotto.ReadAll()
	if err != nil {
		return RawContent{}, fmt.Errorf("failed to read clipboard: %w", err)
	}
	return RawContent{Text: text}, nil
}

func (a *textOnlyAccess) Write(kind types.Kind, data []byte) error {
	if kind == types.KindImage {
		return fmt.Errorf("image clipboard writes are not supported without a display environment")
	}
	if err := atotto.WriteAll(string(data)); err != nil {
		return fmt.Errorf("failed to write clipboard: %w", err)
	}
	return nil
}
