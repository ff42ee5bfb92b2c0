package cache

import (
	"context"
	"sync"

	"clipvault/internal/logger"
	"clipvault/pkg/types"
)

// IconFetcher resolves an application icon from a slow external source.
// Implementations are injected by the composition root.
type IconFetcher interface {
	Fetch(ctx context.Context, bundleID string) ([]byte, error)
}

// IconCache layers fetch coordination on top of a two-tier cache keyed by
// application bundle identifier. Synchronous reads only ever touch the
// local tiers; misses trigger at most one background fetch per key, with
// duplicate requests dropped while one is in flight. Failed fetches land
// in the negative cache and are not retried before the cooldown expires.
type IconCache struct {
	cache   *Cache
	neg     *NegativeCache
	fetcher IconFetcher
	log     *logger.Logger

	mu       sync.Mutex
	inflight map[string]struct{}
}

// NewIconCache wires an icon cache. neg may be nil, in which case a
// 24-hour negative cache on the real clock is used.
func NewIconCache(cache *Cache, fetcher IconFetcher, neg *NegativeCache, log *logger.Logger) *IconCache {
	if neg == nil {
		neg = NewNegativeCache(DefaultNegativeTTL, nil)
	}
	return &IconCache{
		cache:    cache,
		neg:      neg,
		fetcher:  fetcher,
		log:      log,
		inflight: make(map[string]struct{}),
	}
}

// Get returns the icon for bundleID if it is locally available. On a miss
// it kicks off a background fetch and reports "not yet available"; the
// caller renders a placeholder and asks again later.
func (ic *IconCache) Get(ctx context.Context, bundleID string) ([]byte, bool) {
	if bundleID == "" || (types.SourceApp{BundleID: bundleID}).IsUnknown() {
		return nil, false
	}

	if data, ok := ic.cache.Get(bundleID); ok {
		return data, true
	}

	if ic.neg.IsKnownNotFound(bundleID) {
		return nil, false
	}

	ic.maybeFetch(ctx, bundleID)
	return nil, false
}

// maybeFetch starts a background lookup unless one is already running
// for this key.
func (ic *IconCache) maybeFetch(ctx context.Context, bundleID string) {
	ic.mu.Lock()
	if _, running := ic.inflight[bundleID]; running {
		ic.mu.Unlock()
		return
	}
	ic.inflight[bundleID] = struct{}{}
	ic.mu.Unlock()

	go func() {
		defer func() {
			ic.mu.Lock()
			delete(ic.inflight, bundleID)
			ic.mu.Unlock()
		}()

		data, err := ic.fetcher.Fetch(ctx, bundleID)
		if err != nil || len(data) == 0 {
			ic.log.Debug().Err(err).Str("bundle_id", bundleID).Msg("icon fetch failed")
			ic.neg.MarkNotFound(bundleID)
			return
		}

		if _, err := ic.cache.Put(bundleID, data); err != nil {
			ic.log.Warn().Err(err).Str("bundle_id", bundleID).Msg("icon cache write failed")
			return
		}
		ic.neg.Clear(bundleID)
	}()
}
