package types

import "time"

// Kind identifies what a clipboard entry holds.
type Kind string

const (
	KindText  Kind = "text"
	KindURL   Kind = "url"
	KindImage Kind = "image"
)

// SmartType is a recognized semantic sub-type of text content.
type SmartType string

const (
	SmartNone  SmartType = "none"
	SmartColor SmartType = "color"
	SmartEmail SmartType = "email"
	SmartPhone SmartType = "phone"
)

// Color is an RGBA color with channels in [0,1].
type Color struct {
	R float64
	G float64
	B float64
	A float64
}

// Entry is a persisted clipboard history record. Exactly one of
// TextContent, URLString and ImageData is set, determined by Kind.
type Entry struct {
	ID          string
	ContentHash string
	Kind        Kind
	SmartType   SmartType
	CreatedAt   time.Time
	UpdatedAt   time.Time

	TextContent string
	URLString   string
	ImageData   []byte

	SourceAppName string
	SourceAppID   string

	PayloadBytes   int64
	ThumbnailBytes int64
	ThumbnailKey   string
	IsFavorite     bool
}

// StoredBytes is the entry's contribution to the retention budget.
func (e *Entry) StoredBytes() int64 {
	return e.PayloadBytes + e.ThumbnailBytes
}

// Payload is the transient handoff from the monitor to the store.
// It is consumed to build or replace an Entry, never persisted directly.
type Payload struct {
	Kind         Kind
	Text         string
	URL          string
	Image        []byte
	ContentHash  string
	PayloadBytes int64
}

// SourceApp identifies the application that owned clipboard focus when
// content was captured. Best effort; Unknown() is a valid value.
type SourceApp struct {
	Name     string
	BundleID string
}

const unknownApp = "Unknown"

// Unknown returns the sentinel source used when attribution fails.
func Unknown() SourceApp {
	return SourceApp{Name: unknownApp, BundleID: unknownApp}
}

// IsUnknown reports whether the source carries no real attribution.
func (s SourceApp) IsUnknown() bool {
	return s.BundleID == "" || s.BundleID == unknownApp
}

// View is a consistent snapshot of the current entry list handed to
// observers. Observers pull fresh snapshots; deltas are never pushed.
type View struct {
	Entries    []*Entry
	Count      int
	TotalBytes int64
}
