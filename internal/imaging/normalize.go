// Package imaging bounds and re-encodes clipboard images. Capture-time
// normalization keeps the canonical stored copy small; thumbnail
// derivation produces the list-view rendition kept in the cache.
package imaging

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"

	"github.com/nfnt/resize"
)

// Normalization tiers. Capture bounds the canonical copy, Thumbnail the
// cached list-view rendition.
const (
	CaptureMaxDimension = 1920
	CaptureQuality      = 85

	ThumbnailMaxDimension = 360
	ThumbnailQuality      = 72
)

// Normalize decodes raw image bytes, scales the image down so its longest
// edge does not exceed maxDimension (never upscaling) and re-encodes it as
// JPEG at the given quality (1-100). Undecodable input returns an error;
// the caller drops the payload rather than storing a partial entry.
func Normalize(raw []byte, maxDimension uint, quality int) ([]byte, error) {
	img, format, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}

	bounds := img.Bounds()
	if uint(bounds.Dx()) > maxDimension || uint(bounds.Dy()) > maxDimension {
		// Thumbnail preserves aspect ratio and never scales up.
		img = resize.Thumbnail(maxDimension, maxDimension, img, resize.Lanczos3)
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("failed to encode %s image as jpeg: %w", format, err)
	}

	return buf.Bytes(), nil
}

// NormalizeCapture applies the capture-time size tier to raw image bytes.
func NormalizeCapture(raw []byte) ([]byte, error) {
	return Normalize(raw, CaptureMaxDimension, CaptureQuality)
}

// Thumbnail derives the cached list-view rendition from raw image bytes.
func Thumbnail(raw []byte) ([]byte, error) {
	return Normalize(raw, ThumbnailMaxDimension, ThumbnailQuality)
}
