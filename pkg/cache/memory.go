package cache

import (
	"context"
	"sync"
	"time"
)

type memoryItem struct {
	data     []byte
	expireAt time.Time
	lastUsed time.Time
}

// MemoryCache implements Service in process, evicting the least recently used entry when full.
// Values are stored encoded so callers never share memory with the cache.
type MemoryCache struct {
	mu         sync.Mutex
	items      map[string]*memoryItem
	locks      map[string]time.Time
	maxSize    int
	defaultTTL time.Duration
	now        func() time.Time
}

func NewMemoryCache(opts ...MemoryOption) *MemoryCache {
	cfg := &MemoryConfig{MaxSize: 1000, DefaultTTL: 24 * time.Hour}
	for _, opt := range opts {
		opt(cfg)
	}
	return &MemoryCache{
		items:      make(map[string]*memoryItem),
		locks:      make(map[string]time.Time),
		maxSize:    cfg.MaxSize,
		defaultTTL: cfg.DefaultTTL,
		now:        time.Now,
	}
}

func (m *MemoryCache) Set(_ context.Context, key string, value interface{}, expiration time.Duration) error {
	data, err := encode(value)
	if err != nil {
		return err
	}
	if expiration <= 0 {
		expiration = m.defaultTTL
	}
	now := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.items[key]; !ok && len(m.items) >= m.maxSize {
		m.evictLocked(now)
	}
	m.items[key] = &memoryItem{data: append([]byte(nil), data...), expireAt: now.Add(expiration), lastUsed: now}
	return nil
}

func (m *MemoryCache) Get(_ context.Context, key string, dest interface{}) error {
	now := m.now()
	m.mu.Lock()
	it, ok := m.items[key]
	if ok && now.After(it.expireAt) {
		delete(m.items, key)
		ok = false
	}
	var data []byte
	if ok {
		it.lastUsed = now
		data = it.data
	}
	m.mu.Unlock()

	if !ok {
		return ErrCacheMiss
	}
	return decode(data, dest)
}

func (m *MemoryCache) Delete(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.items, k)
	}
	return nil
}

func (m *MemoryCache) TryLock(_ context.Context, key string, ttl time.Duration) (bool, error) {
	now := m.now()
	m.mu.Lock()
	defer m.mu.Unlock()
	if until, ok := m.locks[key]; ok && now.Before(until) {
		return false, nil
	}
	m.locks[key] = now.Add(ttl)
	return true, nil
}

func (m *MemoryCache) Unlock(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.locks, key)
	return nil
}

// evictLocked drops expired entries, or the least recently used one if none expired.
func (m *MemoryCache) evictLocked(now time.Time) {
	var (
		oldestKey string
		oldest    time.Time
		dropped   bool
	)
	for k, it := range m.items {
		if now.After(it.expireAt) {
			delete(m.items, k)
			dropped = true
			continue
		}
		if oldestKey == "" || it.lastUsed.Before(oldest) {
			oldestKey, oldest = k, it.lastUsed
		}
	}
	if !dropped && oldestKey != "" {
		delete(m.items, oldestKey)
	}
}
