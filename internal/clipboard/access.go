// Package clipboard watches the system clipboard and hands new payloads
// to the store. Platform specifics live behind the Access and
// FocusProvider capability interfaces; build constraints select the
// implementation:
//
//	access_darwin.go — macOS via progrium/darwinkit (native changeCount)
//	access_other.go  — everything else via golang.design/x/clipboard,
//	                   falling back to atotto/clipboard (text only) when
//	                   no display environment is available
package clipboard

import "clipvault/pkg/types"

// RawContent is a raw clipboard snapshot. Image and Text may both be set;
// the monitor applies extraction priority (image > URL > text).
type RawContent struct {
	Text  string
	Image []byte
}

// Empty reports whether the snapshot holds nothing usable.
func (r RawContent) Empty() bool {
	return r.Text == "" && len(r.Image) == 0
}

// Access is the platform clipboard capability consumed by the monitor.
type Access interface {
	// ChangeCounter returns a monotonically increasing value that advances
	// whenever the clipboard content changes.
	ChangeCounter() int64

	// Read returns the current clipboard content. An empty snapshot with a
	// nil error means the clipboard holds nothing recognizable.
	Read() (RawContent, error)

	// Write replaces the clipboard content. Used when the user re-copies
	// a stored entry.
	Write(kind types.Kind, data []byte) error
}

// FocusProvider reports the frontmost application for capture provenance.
// Attribution is best effort; implementations return types.Unknown() when
// the platform offers nothing better.
type FocusProvider interface {
	FrontmostApp() types.SourceApp
}

// unknownFocus is the FocusProvider for platforms without a usable
// frontmost-application API.
type unknownFocus struct{}

func (unknownFocus) FrontmostApp() types.SourceApp { return types.Unknown() }
