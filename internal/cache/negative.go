package cache

import (
	"sync"
	"time"
)

// DefaultNegativeTTL is how long a failed lookup suppresses retries.
const DefaultNegativeTTL = 24 * time.Hour

// NegativeCache records lookups known to have failed so they are not
// retried before a cooldown elapses. Entries expire after the TTL.
type NegativeCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	entries map[string]time.Time
}

// NewNegativeCache returns a negative cache with the given TTL. A nil
// clock defaults to time.Now; tests inject a fake to simulate expiry.
func NewNegativeCache(ttl time.Duration, clock func() time.Time) *NegativeCache {
	if ttl <= 0 {
		ttl = DefaultNegativeTTL
	}
	if clock == nil {
		clock = time.Now
	}
	return &NegativeCache{
		ttl:     ttl,
		now:     clock,
		entries: make(map[string]time.Time),
	}
}

// MarkNotFound records that a lookup for key failed now.
func (n *NegativeCache) MarkNotFound(key string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.entries[key] = n.now()
}

// IsKnownNotFound reports whether key failed within the cooldown window.
// Expired records are dropped as a side effect.
func (n *NegativeCache) IsKnownNotFound(key string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()

	failedAt, ok := n.entries[key]
	if !ok {
		return false
	}
	if n.now().Sub(failedAt) >= n.ttl {
		delete(n.entries, key)
		return false
	}
	return true
}

// Clear forgets a failure record, typically after a successful fetch.
func (n *NegativeCache) Clear(key string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.entries, key)
}
