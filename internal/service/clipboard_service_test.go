package service

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clipvault/internal/cache"
	"clipvault/internal/content"
	"clipvault/internal/logger"
	"clipvault/internal/storage"
	"clipvault/internal/storage/sqlite"
	"clipvault/pkg/types"
)

type fixture struct {
	svc      *ClipboardService
	store    storage.Storage
	thumbs   *cache.Cache
	thumbDir string
}

func setup(t *testing.T, budget int64) *fixture {
	t.Helper()

	store, err := sqlite.New(storage.Config{DBPath: filepath.Join(t.TempDir(), "test.db")})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	thumbDir := t.TempDir()
	thumbs, err := cache.New(thumbDir, 32, logger.Nop())
	require.NoError(t, err)

	svc := New(store, thumbs, nil, content.NewClassifier("US"), budget, logger.Nop())
	return &fixture{svc: svc, store: store, thumbs: thumbs, thumbDir: thumbDir}
}

func textPayload(text string) types.Payload {
	return types.Payload{
		Kind:         types.KindText,
		Text:         text,
		ContentHash:  content.Fingerprint(types.KindText, []byte(text)),
		PayloadBytes: int64(len(text)),
	}
}

func imagePayload(t *testing.T, w, h int) types.Payload {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y += 7 {
		for x := 0; x < w; x += 7 {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 200, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))

	raw := buf.Bytes()
	return types.Payload{
		Kind:         types.KindImage,
		Image:        raw,
		ContentHash:  content.Fingerprint(types.KindImage, raw),
		PayloadBytes: int64(len(raw)),
	}
}

func sourceApp() types.SourceApp {
	return types.SourceApp{Name: "Tester", BundleID: "com.example.tester"}
}

func TestCapture_CreatesEntry(t *testing.T) {
	f := setup(t, 1<<30)
	ctx := context.Background()

	require.NoError(t, f.svc.Capture(ctx, textPayload("hello"), sourceApp()))

	entries, err := f.svc.Query(ctx, storage.Filter{})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, types.KindText, entries[0].Kind)
	assert.Equal(t, "hello", entries[0].TextContent)
	assert.Equal(t, "Tester", entries[0].SourceAppName)
	assert.NotEmpty(t, entries[0].ID)
}

func TestCapture_AnnotatesSmartType(t *testing.T) {
	f := setup(t, 1<<30)
	ctx := context.Background()

	require.NoError(t, f.svc.Capture(ctx, textPayload("#336699"), sourceApp()))
	require.NoError(t, f.svc.Capture(ctx, textPayload("user@example.com"), sourceApp()))
	require.NoError(t, f.svc.Capture(ctx, textPayload("just some words"), sourceApp()))

	entries, err := f.svc.Query(ctx, storage.Filter{})
	require.NoError(t, err)
	require.Len(t, entries, 3)

	byText := make(map[string]types.SmartType, len(entries))
	for _, e := range entries {
		byText[e.TextContent] = e.SmartType
	}
	assert.Equal(t, types.SmartColor, byText["#336699"])
	assert.Equal(t, types.SmartEmail, byText["user@example.com"])
	assert.Equal(t, types.SmartNone, byText["just some words"])
}

func TestCapture_DedupIdempotence(t *testing.T) {
	f := setup(t, 1<<30)
	ctx := context.Background()

	var lastCapture time.Time
	for i := 0; i < 5; i++ {
		before := time.Now()
		require.NoError(t, f.svc.Capture(ctx, textPayload("hello"), sourceApp()))
		lastCapture = before
		time.Sleep(2 * time.Millisecond)
	}

	entries, err := f.svc.Query(ctx, storage.Filter{})
	require.NoError(t, err)
	require.Len(t, entries, 1, "identical payloads must collapse to one entry")

	// The surviving entry reflects the most recent capture.
	assert.False(t, entries[0].CreatedAt.Before(lastCapture))
}

func TestCapture_DistinctContentCoexists(t *testing.T) {
	f := setup(t, 1<<30)
	ctx := context.Background()

	require.NoError(t, f.svc.Capture(ctx, textPayload("one"), sourceApp()))
	require.NoError(t, f.svc.Capture(ctx, textPayload("two"), sourceApp()))

	entries, err := f.svc.Query(ctx, storage.Filter{})
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestCapture_EmptyPayloadDropped(t *testing.T) {
	f := setup(t, 1<<30)
	ctx := context.Background()

	require.NoError(t, f.svc.Capture(ctx, types.Payload{}, sourceApp()))
	require.NoError(t, f.svc.Capture(ctx, types.Payload{Kind: types.KindText, ContentHash: "h"}, sourceApp()))

	entries, err := f.svc.Query(ctx, storage.Filter{})
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestCapture_UndecodableImageDropped(t *testing.T) {
	f := setup(t, 1<<30)
	ctx := context.Background()

	payload := types.Payload{
		Kind:         types.KindImage,
		Image:        []byte("not an image"),
		ContentHash:  content.Fingerprint(types.KindImage, []byte("not an image")),
		PayloadBytes: 12,
	}
	require.NoError(t, f.svc.Capture(ctx, payload, sourceApp()))

	entries, err := f.svc.Query(ctx, storage.Filter{})
	require.NoError(t, err)
	assert.Empty(t, entries, "decode failure must not create a partial entry")
}

func TestCapture_UnknownSourceFallback(t *testing.T) {
	f := setup(t, 1<<30)
	ctx := context.Background()

	require.NoError(t, f.svc.Capture(ctx, textPayload("orphan"), types.SourceApp{}))

	entries, err := f.svc.Query(ctx, storage.Filter{})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "Unknown", entries[0].SourceAppName)
}

func TestCapture_ImageNormalizationAndThumbnail(t *testing.T) {
	f := setup(t, 1<<30)
	ctx := context.Background()

	payload := imagePayload(t, 4000, 3000)
	require.NoError(t, f.svc.Capture(ctx, payload, sourceApp()))

	entries, err := f.svc.Query(ctx, storage.Filter{})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	entry := entries[0]

	// Canonical copy bounded by the capture tier.
	img, _, err := image.Decode(bytes.NewReader(entry.ImageData))
	require.NoError(t, err)
	assert.LessOrEqual(t, img.Bounds().Dx(), 1920)
	assert.LessOrEqual(t, img.Bounds().Dy(), 1920)

	// Thumbnail cached under the content hash, bounded by its tier.
	require.Equal(t, payload.ContentHash, entry.ThumbnailKey)
	thumb, ok := f.thumbs.Get(entry.ThumbnailKey)
	require.True(t, ok)
	timg, _, err := image.Decode(bytes.NewReader(thumb))
	require.NoError(t, err)
	assert.LessOrEqual(t, timg.Bounds().Dx(), 360)
	assert.LessOrEqual(t, timg.Bounds().Dy(), 360)
	assert.Equal(t, int64(len(thumb)), entry.ThumbnailBytes)
}

func TestCapture_DuplicateImageKeepsThumbnailCached(t *testing.T) {
	f := setup(t, 1<<30)
	ctx := context.Background()

	payload := imagePayload(t, 900, 700)
	require.NoError(t, f.svc.Capture(ctx, payload, sourceApp()))
	require.NoError(t, f.svc.Capture(ctx, payload, sourceApp()))

	entries, err := f.svc.Query(ctx, storage.Filter{})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	entry := entries[0]

	// The renewed entry and its predecessor share the content-hash key;
	// replacing the duplicate must not evict the live thumbnail.
	require.Equal(t, payload.ContentHash, entry.ThumbnailKey)
	thumb, ok := f.thumbs.Get(entry.ThumbnailKey)
	assert.True(t, ok, "live entry's thumbnail must remain cached after a duplicate capture")
	assert.Equal(t, int64(len(thumb)), entry.ThumbnailBytes)
}

func TestCapture_DuplicateReusesStoredContent(t *testing.T) {
	f := setup(t, 1<<30)
	ctx := context.Background()

	payload := imagePayload(t, 1400, 1000)
	require.NoError(t, f.svc.Capture(ctx, payload, sourceApp()))
	first, err := f.svc.Query(ctx, storage.Filter{})
	require.NoError(t, err)
	require.Len(t, first, 1)

	time.Sleep(2 * time.Millisecond)
	require.NoError(t, f.svc.Capture(ctx, payload, types.SourceApp{Name: "Other", BundleID: "com.example.other"}))

	second, err := f.svc.Query(ctx, storage.Filter{})
	require.NoError(t, err)
	require.Len(t, second, 1)

	// Fresh identity and source, same materialized content.
	assert.NotEqual(t, first[0].ID, second[0].ID)
	assert.Equal(t, "Other", second[0].SourceAppName)
	assert.True(t, second[0].CreatedAt.After(first[0].CreatedAt))
	assert.Equal(t, first[0].ImageData, second[0].ImageData)
	assert.Equal(t, first[0].ThumbnailBytes, second[0].ThumbnailBytes)
}

func TestDelete_RemovesEntryAndThumbnail(t *testing.T) {
	f := setup(t, 1<<30)
	ctx := context.Background()

	payload := imagePayload(t, 800, 600)
	require.NoError(t, f.svc.Capture(ctx, payload, sourceApp()))

	entries, err := f.svc.Query(ctx, storage.Filter{})
	require.NoError(t, err)
	require.Len(t, entries, 1)

	thumbFile := filepath.Join(f.thumbDir, entries[0].ThumbnailKey)
	_, statErr := os.Stat(thumbFile)
	require.NoError(t, statErr)

	require.NoError(t, f.svc.Delete(ctx, entries[0].ID))

	remaining, err := f.svc.Query(ctx, storage.Filter{})
	require.NoError(t, err)
	assert.Empty(t, remaining)
	_, statErr = os.Stat(thumbFile)
	assert.True(t, os.IsNotExist(statErr), "thumbnail file must be removed with its entry")

	// Idempotent: deleting again succeeds silently.
	assert.NoError(t, f.svc.Delete(ctx, entries[0].ID))
}

func TestRetention_BoundHolds(t *testing.T) {
	f := setup(t, 250)
	ctx := context.Background()

	for i := 0; i < 8; i++ {
		text := fmt.Sprintf("%02d-%s", i, strings.Repeat("x", 98)) // 101 bytes each
		require.NoError(t, f.svc.Capture(ctx, textPayload(text), sourceApp()))
		time.Sleep(2 * time.Millisecond)

		total, err := f.store.TotalBytes(ctx)
		require.NoError(t, err)
		assert.LessOrEqual(t, total, int64(250), "budget must hold after every capture")
	}
}

func TestRetention_EvictsOldestFirst(t *testing.T) {
	f := setup(t, 250)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		text := fmt.Sprintf("%02d-%s", i, strings.Repeat("y", 98))
		require.NoError(t, f.svc.Capture(ctx, textPayload(text), sourceApp()))
		time.Sleep(2 * time.Millisecond)
	}

	// Budget fits two entries; the oldest (00-…) must be gone and the
	// newest must survive.
	entries, err := f.svc.Query(ctx, storage.Filter{})
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.True(t, strings.HasPrefix(entries[0].TextContent, "02-"))
	assert.True(t, strings.HasPrefix(entries[1].TextContent, "01-"))
}

func TestRetention_FavoritesAreNotExempt(t *testing.T) {
	f := setup(t, 250)
	ctx := context.Background()

	oldest := fmt.Sprintf("00-%s", strings.Repeat("z", 98))
	require.NoError(t, f.svc.Capture(ctx, textPayload(oldest), sourceApp()))

	entries, err := f.svc.Query(ctx, storage.Filter{})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.NoError(t, f.svc.ToggleFavorite(ctx, entries[0].ID))
	time.Sleep(2 * time.Millisecond)

	for i := 1; i < 4; i++ {
		text := fmt.Sprintf("%02d-%s", i, strings.Repeat("z", 98))
		require.NoError(t, f.svc.Capture(ctx, textPayload(text), sourceApp()))
		time.Sleep(2 * time.Millisecond)
	}

	// The favorited entry was oldest, so it is evicted like any other.
	remaining, err := f.svc.Query(ctx, storage.Filter{})
	require.NoError(t, err)
	for _, e := range remaining {
		assert.NotEqual(t, oldest, e.TextContent)
	}
}

func TestRetention_ImageCaptureEvictsOldEntries(t *testing.T) {
	f := setup(t, 10_000)
	ctx := context.Background()

	first := imagePayload(t, 1200, 900)
	require.NoError(t, f.svc.Capture(ctx, first, sourceApp()))
	time.Sleep(2 * time.Millisecond)

	// Keep capturing distinct images; the budget is far below their
	// combined size, so the first one must get evicted.
	for i := 0; i < 6; i++ {
		require.NoError(t, f.svc.Capture(ctx, imagePayload(t, 1200+i*13, 900+i*11), sourceApp()))
		time.Sleep(2 * time.Millisecond)

		total, err := f.store.TotalBytes(ctx)
		require.NoError(t, err)
		assert.LessOrEqual(t, total, int64(10_000))
	}

	entries, err := f.svc.Query(ctx, storage.Filter{})
	require.NoError(t, err)
	for _, e := range entries {
		assert.NotEqual(t, first.ContentHash, e.ContentHash, "oldest image should have been evicted")
	}
}

func TestToggleFavorite(t *testing.T) {
	f := setup(t, 1<<30)
	ctx := context.Background()

	require.NoError(t, f.svc.Capture(ctx, textPayload("star me"), sourceApp()))
	entries, err := f.svc.Query(ctx, storage.Filter{})
	require.NoError(t, err)
	id := entries[0].ID

	require.NoError(t, f.svc.ToggleFavorite(ctx, id))
	entry, err := f.svc.Get(ctx, id)
	require.NoError(t, err)
	assert.True(t, entry.IsFavorite)

	require.NoError(t, f.svc.ToggleFavorite(ctx, id))
	entry, err = f.svc.Get(ctx, id)
	require.NoError(t, err)
	assert.False(t, entry.IsFavorite)

	assert.Error(t, f.svc.ToggleFavorite(ctx, "missing"))
}

func TestClearAll(t *testing.T) {
	f := setup(t, 1<<30)
	ctx := context.Background()

	require.NoError(t, f.svc.Capture(ctx, textPayload("a"), sourceApp()))
	require.NoError(t, f.svc.Capture(ctx, imagePayload(t, 400, 300), sourceApp()))

	require.NoError(t, f.svc.ClearAll(ctx))

	view, err := f.svc.Snapshot(ctx, storage.Filter{})
	require.NoError(t, err)
	assert.Zero(t, view.Count)
	assert.Zero(t, view.TotalBytes)

	files, err := os.ReadDir(f.thumbDir)
	require.NoError(t, err)
	assert.Empty(t, files, "clear all must empty the thumbnail cache")
}

func TestQuery_FilterAndSearch(t *testing.T) {
	f := setup(t, 1<<30)
	ctx := context.Background()

	require.NoError(t, f.svc.Capture(ctx, textPayload("grocery list"), sourceApp()))
	time.Sleep(2 * time.Millisecond)
	urlPayload := types.Payload{
		Kind:         types.KindURL,
		URL:          "https://example.com/groceries",
		ContentHash:  content.Fingerprint(types.KindURL, []byte("https://example.com/groceries")),
		PayloadBytes: 29,
	}
	require.NoError(t, f.svc.Capture(ctx, urlPayload, sourceApp()))

	urls, err := f.svc.Query(ctx, storage.Filter{Kind: types.KindURL})
	require.NoError(t, err)
	require.Len(t, urls, 1)
	assert.Equal(t, types.KindURL, urls[0].Kind)

	found, err := f.svc.Query(ctx, storage.Filter{Search: "GROCER"})
	require.NoError(t, err)
	assert.Len(t, found, 2)

	recent, err := f.svc.Query(ctx, storage.Filter{Since: time.Now().Add(-time.Minute)})
	require.NoError(t, err)
	assert.Len(t, recent, 2)

	none, err := f.svc.Query(ctx, storage.Filter{Since: time.Now().Add(time.Minute)})
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestThumbnail_RegeneratesOnCacheMiss(t *testing.T) {
	f := setup(t, 1<<30)
	ctx := context.Background()

	require.NoError(t, f.svc.Capture(ctx, imagePayload(t, 900, 700), sourceApp()))
	entries, err := f.svc.Query(ctx, storage.Filter{})
	require.NoError(t, err)
	id := entries[0].ID

	// Simulate losing both cache tiers.
	f.thumbs.Remove(entries[0].ThumbnailKey)

	thumb, err := f.svc.Thumbnail(ctx, id)
	require.NoError(t, err)
	img, _, err := image.Decode(bytes.NewReader(thumb))
	require.NoError(t, err)
	assert.LessOrEqual(t, img.Bounds().Dx(), 360)
}

func TestDedupSweep_KeepsNewestPerHash(t *testing.T) {
	f := setup(t, 1<<30)
	ctx := context.Background()
	base := time.Now()

	// Simulate a sync merge that inserted the same content three times,
	// bypassing capture-time dedup.
	for i := 0; i < 3; i++ {
		entry := &types.Entry{
			ID:           fmt.Sprintf("dup-%d", i),
			ContentHash:  "shared-hash",
			Kind:         types.KindText,
			CreatedAt:    base.Add(time.Duration(i) * time.Second),
			TextContent:  "merged",
			PayloadBytes: 6,
		}
		require.NoError(t, f.store.Upsert(ctx, entry))
	}
	unique := &types.Entry{
		ID:           "unique",
		ContentHash:  "other-hash",
		Kind:         types.KindText,
		CreatedAt:    base,
		TextContent:  "alone",
		PayloadBytes: 5,
	}
	require.NoError(t, f.store.Upsert(ctx, unique))

	require.NoError(t, f.svc.DedupSweep(ctx))

	entries, err := f.svc.Query(ctx, storage.Filter{})
	require.NoError(t, err)
	require.Len(t, entries, 2)

	var survivors []string
	for _, e := range entries {
		survivors = append(survivors, e.ID)
	}
	assert.Contains(t, survivors, "dup-2", "newest duplicate survives")
	assert.Contains(t, survivors, "unique")

	// Idempotent: a second sweep changes nothing.
	require.NoError(t, f.svc.DedupSweep(ctx))
	again, err := f.svc.Query(ctx, storage.Filter{})
	require.NoError(t, err)
	assert.Len(t, again, 2)
}

func TestDedupSweep_KeepsSurvivorThumbnail(t *testing.T) {
	f := setup(t, 1<<30)
	ctx := context.Background()
	base := time.Now()

	// Two merged copies of the same image share one thumbnail key.
	thumb := []byte("thumbnail-bytes")
	_, err := f.thumbs.Put("img-hash", thumb)
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		entry := &types.Entry{
			ID:             fmt.Sprintf("img-%d", i),
			ContentHash:    "img-hash",
			Kind:           types.KindImage,
			CreatedAt:      base.Add(time.Duration(i) * time.Second),
			ImageData:      []byte("canonical"),
			PayloadBytes:   9,
			ThumbnailKey:   "img-hash",
			ThumbnailBytes: int64(len(thumb)),
		}
		require.NoError(t, f.store.Upsert(ctx, entry))
	}

	require.NoError(t, f.svc.DedupSweep(ctx))

	entries, err := f.svc.Query(ctx, storage.Filter{})
	require.NoError(t, err)
	require.Len(t, entries, 1)

	got, ok := f.thumbs.Get(entries[0].ThumbnailKey)
	assert.True(t, ok, "sweep must not evict the surviving entry's thumbnail")
	assert.Equal(t, thumb, got)
}

// recordingHandler captures pushed view snapshots.
type recordingHandler struct {
	mu    sync.Mutex
	views []types.View
}

func (h *recordingHandler) HandleViewChange(view types.View) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.views = append(h.views, view)
}

func (h *recordingHandler) last() (types.View, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.views) == 0 {
		return types.View{}, false
	}
	return h.views[len(h.views)-1], true
}

func TestObservers_NotifiedWithConsistentSnapshot(t *testing.T) {
	f := setup(t, 1<<30)
	ctx := context.Background()

	handler := &recordingHandler{}
	f.svc.RegisterHandler(handler)

	require.NoError(t, f.svc.Capture(ctx, textPayload("observed"), sourceApp()))

	view, ok := handler.last()
	require.True(t, ok, "capture must notify observers")
	assert.Equal(t, 1, view.Count)
	assert.Equal(t, int64(len("observed")), view.TotalBytes)

	entries, err := f.svc.Query(ctx, storage.Filter{})
	require.NoError(t, err)
	require.NoError(t, f.svc.Delete(ctx, entries[0].ID))

	view, ok = handler.last()
	require.True(t, ok)
	assert.Zero(t, view.Count)
}

func TestEndToEnd_TextLifecycle(t *testing.T) {
	f := setup(t, 1<<30)
	ctx := context.Background()

	// Copy "hello": one entry.
	require.NoError(t, f.svc.Capture(ctx, textPayload("hello"), sourceApp()))
	entries, err := f.svc.Query(ctx, storage.Filter{})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	firstCreated := entries[0].CreatedAt

	time.Sleep(2 * time.Millisecond)

	// Copy "hello" again: still one entry, newer timestamp.
	require.NoError(t, f.svc.Capture(ctx, textPayload("hello"), sourceApp()))
	entries, err = f.svc.Query(ctx, storage.Filter{})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.True(t, entries[0].CreatedAt.After(firstCreated))
}
