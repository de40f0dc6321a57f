package tracker

import (
	"sync"
	"sync/atomic"
)

// Tracker tracks usage statistics per upstream provider.
type Tracker struct {
	mu    sync.RWMutex
	stats map[string]*counters
}

type counters struct {
	cacheHits   atomic.Int64
	cacheMisses atomic.Int64
	apiSuccess  atomic.Int64
	apiFailures atomic.Int64
	rateLimited atomic.Int64
	apiZero     atomic.Int64
}

// ProviderStats is a point-in-time copy of a provider's counters.
type ProviderStats struct {
	CacheHits     int64 `json:"cache_hits"`
	CacheMisses   int64 `json:"cache_misses"`
	APISuccess    int64 `json:"api_success"`
	APIFailures   int64 `json:"api_failures"`
	RateLimited   int64 `json:"rate_limited"`
	APIZeroResult int64 `json:"api_zero"`
}

// New creates a new Tracker.
func New() *Tracker {
	return &Tracker{
		stats: make(map[string]*counters),
	}
}

// get returns the counters for a provider, creating them if needed.
func (t *Tracker) get(provider string) *counters {
	t.mu.RLock()
	c, ok := t.stats[provider]
	t.mu.RUnlock()
	if ok {
		return c
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	// Double check
	if c, ok = t.stats[provider]; ok {
		return c
	}
	c = &counters{}
	t.stats[provider] = c
	return c
}

// TrackCacheHit increments the cache hit counter.
func (t *Tracker) TrackCacheHit(provider string) {
	t.get(provider).cacheHits.Add(1)
}

func (t *Tracker) TrackCacheMiss(provider string) {
	t.get(provider).cacheMisses.Add(1)
}

func (t *Tracker) TrackAPISuccess(provider string) {
	t.get(provider).apiSuccess.Add(1)
}

func (t *Tracker) TrackAPIFailure(provider string) {
	t.get(provider).apiFailures.Add(1)
}

// TrackRateLimited counts an HTTP 429 answer. It is also counted as a failure.
func (t *Tracker) TrackRateLimited(provider string) {
	c := t.get(provider)
	c.rateLimited.Add(1)
	c.apiFailures.Add(1)
}

// TrackAPIZero counts a successful call that returned nothing usable.
func (t *Tracker) TrackAPIZero(provider string) {
	t.get(provider).apiZero.Add(1)
}

// Reset zeroes all counters but keeps the known providers.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for k := range t.stats {
		t.stats[k] = &counters{}
	}
}

// Snapshot returns a copy of the current stats.
func (t *Tracker) Snapshot() map[string]ProviderStats {
	t.mu.RLock()
	defer t.mu.RUnlock()

	result := make(map[string]ProviderStats, len(t.stats))
	for k, v := range t.stats {
		result[k] = ProviderStats{
			CacheHits:     v.cacheHits.Load(),
			CacheMisses:   v.cacheMisses.Load(),
			APISuccess:    v.apiSuccess.Load(),
			APIFailures:   v.apiFailures.Load(),
			RateLimited:   v.rateLimited.Load(),
			APIZeroResult: v.apiZero.Load(),
		}
	}
	return result
}
