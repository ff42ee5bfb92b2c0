// Package service hosts the clipboard store: the orchestrator that owns
// entry identity and lifecycle. It deduplicates captures by content hash,
// keeps aggregate storage inside the retention budget, maintains the
// thumbnail cache alongside entry lifecycle, and notifies observers with
// consistent snapshots.
package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"clipvault/internal/cache"
	"clipvault/internal/clipboard"
	"clipvault/internal/content"
	"clipvault/internal/imaging"
	"clipvault/internal/logger"
	"clipvault/internal/storage"
	"clipvault/pkg/types"
)

// evictionBatch is how many oldest entries the retention loop pulls per
// round trip while over budget.
const evictionBatch = 16

// ViewHandler observes store changes. Handlers receive a consistent
// snapshot; they never see partially evicted state.
type ViewHandler interface {
	HandleViewChange(view types.View)
}

// ClipboardService manages clipboard capture, persistence and retention.
type ClipboardService struct {
	store      storage.Storage
	thumbs     *cache.Cache
	monitor    *clipboard.Monitor
	classifier *content.Classifier
	budget     int64
	log        *logger.Logger

	// mu serializes every store mutation so capture→dedup→persist→
	// retention→notify is atomic from the caller's point of view.
	mu sync.Mutex

	handlersMu sync.RWMutex
	handlers   []ViewHandler

	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a clipboard service. monitor may be nil when the service is
// driven externally (tests, read-only tooling); classifier may be nil to
// skip smart-type detection.
func New(store storage.Storage, thumbs *cache.Cache, monitor *clipboard.Monitor, classifier *content.Classifier, budget int64, log *logger.Logger) *ClipboardService {
	ctx, cancel := context.WithCancel(context.Background())
	return &ClipboardService{
		store:      store,
		thumbs:     thumbs,
		monitor:    monitor,
		classifier: classifier,
		budget:     budget,
		log:        log,
		ctx:        ctx,
		cancel:     cancel,
	}
}

// RegisterHandler adds a view-change observer.
func (s *ClipboardService) RegisterHandler(handler ViewHandler) {
	s.handlersMu.Lock()
	defer s.handlersMu.Unlock()
	s.handlers = append(s.handlers, handler)
}

// Start runs the startup dedup sweep, wires the monitor and begins
// polling.
func (s *ClipboardService) Start() error {
	// Repair duplicate states left behind by independent writers (e.g.
	// two synced instances inserting the same content concurrently).
	if err := s.DedupSweep(s.ctx); err != nil {
		s.log.Warn().Err(err).Msg("startup dedup sweep failed")
	}

	if s.monitor == nil {
		return nil
	}

	s.monitor.OnChange(func(payload types.Payload, source types.SourceApp) {
		if err := s.Capture(s.ctx, payload, source); err != nil {
			s.log.Warn().Err(err).Msg("capture failed")
		}
	})

	if err := s.monitor.Start(); err != nil {
		return opError("Start", "failed to start clipboard monitor", err)
	}
	return nil
}

// Stop shuts the service down. No captures are processed after it
// returns.
func (s *ClipboardService) Stop() error {
	s.cancel()
	if s.monitor != nil {
		if err := s.monitor.Stop(); err != nil {
			return opError("Stop", "failed to stop clipboard monitor", err)
		}
	}
	return nil
}

// Capture ingests a new payload from the monitor. Duplicate content
// (same hash) replaces the old entry so its creation time reflects the
// most recent capture; then retention is enforced and observers are
// notified. Capture-path failures are absorbed: a missed capture beats a
// corrupt entry.
func (s *ClipboardService) Capture(ctx context.Context, payload types.Payload, source types.SourceApp) error {
	if payload.ContentHash == "" {
		return nil
	}

	s.mu.Lock()

	// The hash is known up front, so look for a duplicate before doing
	// any payload work. A repeat copy renews the stored entry and skips
	// image normalization entirely.
	var entry *types.Entry
	existing, err := s.store.FindByHash(ctx, payload.ContentHash)
	switch {
	case err == nil:
		entry = renewEntry(existing, source)
		if err := s.store.Delete(ctx, existing.ID); err != nil {
			s.mu.Unlock()
			return opError("Capture", "failed to replace duplicate entry", err)
		}
		// The renewed entry keeps the same thumbnail key (both are the
		// content hash), so the cached thumbnail must stay.
	case errors.Is(err, storage.ErrNotFound):
		var ok bool
		entry, ok = s.buildEntry(payload, source)
		if !ok {
			s.mu.Unlock()
			return nil
		}
	default:
		s.mu.Unlock()
		return opError("Capture", "failed to check for duplicate", err)
	}

	if err := s.store.Upsert(ctx, entry); err != nil {
		s.mu.Unlock()
		return opError("Capture", "failed to persist entry", err)
	}

	s.enforceRetention(ctx)
	s.mu.Unlock()

	s.log.Debug().
		Str("kind", string(entry.Kind)).
		Str("source", entry.SourceAppName).
		Int64("bytes", entry.StoredBytes()).
		Msg("captured clipboard entry")

	s.notify(ctx)
	return nil
}

// buildEntry converts a payload into a persistable entry, normalizing
// image content and deriving its thumbnail. Returns ok=false when the
// payload must be dropped (empty content, undecodable image).
func (s *ClipboardService) buildEntry(payload types.Payload, source types.SourceApp) (*types.Entry, bool) {
	if source.Name == "" {
		source = types.Unknown()
	}

	now := time.Now()
	entry := &types.Entry{
		ID:            newEntryID(),
		ContentHash:   payload.ContentHash,
		Kind:          payload.Kind,
		CreatedAt:     now,
		UpdatedAt:     now,
		SourceAppName: source.Name,
		SourceAppID:   source.BundleID,
		PayloadBytes:  payload.PayloadBytes,
	}

	entry.SmartType = types.SmartNone

	switch payload.Kind {
	case types.KindText:
		if payload.Text == "" {
			return nil, false
		}
		entry.TextContent = payload.Text
		if s.classifier != nil {
			entry.SmartType = s.classifier.Classify(payload.Text).Type
		}
	case types.KindURL:
		if payload.URL == "" {
			return nil, false
		}
		entry.URLString = payload.URL
	case types.KindImage:
		if len(payload.Image) == 0 {
			return nil, false
		}
		canonical, err := imaging.NormalizeCapture(payload.Image)
		if err != nil {
			s.log.Debug().Err(err).Msg("dropping undecodable image payload")
			return nil, false
		}
		entry.ImageData = canonical
		entry.PayloadBytes = int64(len(canonical))

		if thumb, err := imaging.Thumbnail(canonical); err == nil {
			if _, err := s.thumbs.Put(payload.ContentHash, thumb); err == nil {
				entry.ThumbnailKey = payload.ContentHash
				entry.ThumbnailBytes = int64(len(thumb))
			} else {
				s.log.Warn().Err(err).Msg("thumbnail cache write failed")
			}
		}
	default:
		return nil, false
	}

	return entry, true
}

// renewEntry produces the replacement for a re-captured duplicate: the
// stored content, smart type and thumbnail accounting carry over
// unchanged, only identity, timestamps and source are fresh.
func renewEntry(existing *types.Entry, source types.SourceApp) *types.Entry {
	if source.Name == "" {
		source = types.Unknown()
	}

	entry := *existing
	entry.ID = newEntryID()
	now := time.Now()
	entry.CreatedAt = now
	entry.UpdatedAt = now
	entry.SourceAppName = source.Name
	entry.SourceAppID = source.BundleID
	entry.IsFavorite = false
	return &entry
}

// enforceRetention evicts oldest-first until aggregate stored bytes fit
// the budget again. Runs under s.mu, synchronously after every capture,
// so storage never exceeds the budget once Capture returns.
func (s *ClipboardService) enforceRetention(ctx context.Context) {
	total, err := s.store.TotalBytes(ctx)
	if err != nil {
		s.log.Warn().Err(err).Msg("retention: failed to read total size")
		return
	}

	for total > s.budget {
		batch, err := s.store.ListOldestFirst(ctx, evictionBatch)
		if err != nil {
			s.log.Warn().Err(err).Msg("retention: failed to list oldest entries")
			return
		}
		if len(batch) == 0 {
			return
		}

		for _, entry := range batch {
			if err := s.store.Delete(ctx, entry.ID); err != nil {
				s.log.Warn().Err(err).Str("id", entry.ID).Msg("retention: eviction failed")
				return
			}
			s.thumbs.Remove(entry.ThumbnailKey)
			total -= entry.StoredBytes()

			s.log.Debug().
				Str("id", entry.ID).
				Int64("freed", entry.StoredBytes()).
				Msg("evicted entry over storage budget")

			if total <= s.budget {
				return
			}
		}
	}
}

// Delete removes an entry and its cached thumbnail. Deleting a
// nonexistent ID is a no-op.
func (s *ClipboardService) Delete(ctx context.Context, id string) error {
	s.mu.Lock()

	entry, err := s.store.Get(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		s.mu.Unlock()
		return nil
	}
	if err != nil {
		s.mu.Unlock()
		return opError("Delete", "failed to load entry", err)
	}

	if err := s.store.Delete(ctx, id); err != nil {
		s.mu.Unlock()
		return opError("Delete", "failed to delete entry", err)
	}
	s.thumbs.Remove(entry.ThumbnailKey)
	s.mu.Unlock()

	s.notify(ctx)
	return nil
}

// ToggleFavorite flips the favorite flag. Favorited entries remain
// eligible for retention eviction.
func (s *ClipboardService) ToggleFavorite(ctx context.Context, id string) error {
	s.mu.Lock()

	entry, err := s.store.Get(ctx, id)
	if err != nil {
		s.mu.Unlock()
		return opError("ToggleFavorite", "failed to load entry", err)
	}

	if err := s.store.SetFavorite(ctx, id, !entry.IsFavorite); err != nil {
		s.mu.Unlock()
		return opError("ToggleFavorite", "failed to update entry", err)
	}
	s.mu.Unlock()

	s.notify(ctx)
	return nil
}

// ClearAll deletes every entry and every cached thumbnail.
func (s *ClipboardService) ClearAll(ctx context.Context) error {
	s.mu.Lock()

	if err := s.store.DeleteAll(ctx); err != nil {
		s.mu.Unlock()
		return opError("ClearAll", "failed to delete entries", err)
	}
	if err := s.thumbs.Purge(); err != nil {
		s.log.Warn().Err(err).Msg("failed to purge thumbnail cache")
	}
	s.mu.Unlock()

	s.notify(ctx)
	return nil
}

// Query returns entries matching the filter, newest first.
func (s *ClipboardService) Query(ctx context.Context, filter storage.Filter) ([]*types.Entry, error) {
	entries, err := s.store.List(ctx, filter)
	if err != nil {
		return nil, opError("Query", "failed to list entries", err)
	}
	return entries, nil
}

// Get returns a single entry by ID.
func (s *ClipboardService) Get(ctx context.Context, id string) (*types.Entry, error) {
	entry, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, opError("Get", "failed to load entry", err)
	}
	return entry, nil
}

// Snapshot builds the observable view: the filtered entry list plus
// global aggregates.
func (s *ClipboardService) Snapshot(ctx context.Context, filter storage.Filter) (types.View, error) {
	entries, err := s.store.List(ctx, filter)
	if err != nil {
		return types.View{}, opError("Snapshot", "failed to list entries", err)
	}
	count, err := s.store.Count(ctx)
	if err != nil {
		return types.View{}, opError("Snapshot", "failed to count entries", err)
	}
	total, err := s.store.TotalBytes(ctx)
	if err != nil {
		return types.View{}, opError("Snapshot", "failed to sum stored bytes", err)
	}

	return types.View{Entries: entries, Count: int(count), TotalBytes: total}, nil
}

// Thumbnail returns the cached thumbnail for an entry, regenerating it
// from the canonical stored image when the cache lost it.
func (s *ClipboardService) Thumbnail(ctx context.Context, id string) ([]byte, error) {
	entry, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, opError("Thumbnail", "failed to load entry", err)
	}
	if entry.Kind != types.KindImage {
		return nil, opError("Thumbnail", "entry has no thumbnail", storage.ErrNotFound)
	}

	if data, ok := s.thumbs.Get(entry.ThumbnailKey); ok {
		return data, nil
	}

	// Cache miss: fall back to regenerating from the canonical copy.
	thumb, err := imaging.Thumbnail(entry.ImageData)
	if err != nil {
		return nil, opError("Thumbnail", "failed to regenerate thumbnail", err)
	}
	if _, err := s.thumbs.Put(entry.ContentHash, thumb); err != nil {
		s.log.Warn().Err(err).Msg("thumbnail cache write failed")
	}
	return thumb, nil
}

// CopyEntry puts a stored entry back on the system clipboard. The
// monitor's skip token keeps the write from being re-captured.
func (s *ClipboardService) CopyEntry(ctx context.Context, id string) error {
	if s.monitor == nil {
		return opError("CopyEntry", "no clipboard monitor attached", nil)
	}

	entry, err := s.store.Get(ctx, id)
	if err != nil {
		return opError("CopyEntry", "failed to load entry", err)
	}

	var data []byte
	switch entry.Kind {
	case types.KindText:
		data = []byte(entry.TextContent)
	case types.KindURL:
		data = []byte(entry.URLString)
	case types.KindImage:
		data = entry.ImageData
	}

	if err := s.monitor.Write(entry.Kind, data); err != nil {
		return opError("CopyEntry", "failed to write clipboard", err)
	}
	return nil
}

// DedupSweep scans all entries newest-first and deletes every duplicate
// occurrence of a content hash. Idempotent and safe to run more often
// than strictly necessary.
func (s *ClipboardService) DedupSweep(ctx context.Context) error {
	s.mu.Lock()

	entries, err := s.store.List(ctx, storage.Filter{})
	if err != nil {
		s.mu.Unlock()
		return opError("DedupSweep", "failed to list entries", err)
	}

	seen := make(map[string]struct{}, len(entries))
	keptThumbs := make(map[string]struct{})
	removed := 0
	for _, entry := range entries {
		if _, dup := seen[entry.ContentHash]; !dup {
			seen[entry.ContentHash] = struct{}{}
			if entry.ThumbnailKey != "" {
				keptThumbs[entry.ThumbnailKey] = struct{}{}
			}
			continue
		}
		if err := s.store.Delete(ctx, entry.ID); err != nil {
			s.mu.Unlock()
			return opError("DedupSweep", "failed to delete duplicate", err)
		}
		// Duplicates share the survivor's thumbnail key; only drop the
		// cached thumbnail when no surviving entry still points at it.
		if _, shared := keptThumbs[entry.ThumbnailKey]; !shared {
			s.thumbs.Remove(entry.ThumbnailKey)
		}
		removed++
	}
	s.mu.Unlock()

	if removed > 0 {
		s.log.Info().Int("removed", removed).Msg("dedup sweep removed duplicates")
		s.notify(ctx)
	}
	return nil
}

// HandleExternalChange reacts to an out-of-band store mutation (e.g. a
// sync merge): re-run the dedup sweep and push a fresh snapshot.
func (s *ClipboardService) HandleExternalChange(ctx context.Context) {
	if err := s.DedupSweep(ctx); err != nil {
		s.log.Warn().Err(err).Msg("dedup sweep after external change failed")
	}
	s.notify(ctx)
}

// notify pushes a fresh unfiltered snapshot to all observers. Handlers
// run outside the mutation lock.
func (s *ClipboardService) notify(ctx context.Context) {
	s.handlersMu.RLock()
	handlers := make([]ViewHandler, len(s.handlers))
	copy(handlers, s.handlers)
	s.handlersMu.RUnlock()

	if len(handlers) == 0 {
		return
	}

	view, err := s.Snapshot(ctx, storage.Filter{})
	if err != nil {
		s.log.Warn().Err(err).Msg("failed to build view snapshot")
		return
	}

	for _, handler := range handlers {
		handler.HandleViewChange(view)
	}
}

// newEntryID returns a time-ordered UUID, falling back to random when v7
// generation fails.
func newEntryID() string {
	v7, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return v7.String()
}
