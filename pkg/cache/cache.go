package cache

import (
	"context"
	"sync"
	"time"
)

// Cacher defines the caching interface.
type Cacher interface {
	GetCache(ctx context.Context, key string) ([]byte, bool)
	SetCache(ctx context.Context, key string, val []byte) error
}

type entry struct {
	val     []byte
	expires time.Time
}

// Memory is an in-process Cacher with a fixed time-to-live and a size bound.
// Entries live for the lifetime of the process at most.
type Memory struct {
	mu         sync.Mutex
	items      map[string]entry
	ttl        time.Duration
	maxEntries int
	now        func() time.Time
}

// NewMemory creates a cache. A zero ttl keeps entries until evicted by size.
func NewMemory(ttl time.Duration, maxEntries int) *Memory {
	if maxEntries <= 0 {
		maxEntries = 1000
	}
	return &Memory{
		items:      make(map[string]entry),
		ttl:        ttl,
		maxEntries: maxEntries,
		now:        time.Now,
	}
}

func (m *Memory) GetCache(_ context.Context, key string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.items[key]
	if !ok {
		return nil, false
	}
	if !e.expires.IsZero() && m.now().After(e.expires) {
		delete(m.items, key)
		return nil, false
	}
	return e.val, true
}

func (m *Memory) SetCache(_ context.Context, key string, val []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.items[key]; !exists && len(m.items) >= m.maxEntries {
		m.evictLocked()
	}

	var exp time.Time
	if m.ttl > 0 {
		exp = m.now().Add(m.ttl)
	}
	m.items[key] = entry{val: val, expires: exp}
	return nil
}

// Len returns the number of stored entries, expired ones included.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.items)
}

// evictLocked drops expired entries, or the one closest to expiry if none are expired.
func (m *Memory) evictLocked() {
	now := m.now()
	var oldestKey string
	var oldest time.Time
	for k, e := range m.items {
		if !e.expires.IsZero() && now.After(e.expires) {
			delete(m.items, k)
			continue
		}
		if oldestKey == "" || e.expires.Before(oldest) {
			oldestKey, oldest = k, e.expires
		}
	}
	if len(m.items) >= m.maxEntries && oldestKey != "" {
		delete(m.items, oldestKey)
	}
}
