package cacheengine

import (
	"sync"
	"time"

	"github.com/chronikcache/chronikcache/internal/domain"
)

const (
	memCacheInitialTTL = 120 * time.Second
	memCacheExtendTTL  = 10 * time.Second
	memCacheSweep      = 10 * time.Second
)

// memView is the cached projection of a subject's durable data.
type memView struct {
	txMap   map[string]domain.Tx
	txOrder []string
}

type memEntry struct {
	view   memView
	expiry time.Time
}

// memCache is the two-tier front cache: one instance covers both
// namespaces, since subject keys already disambiguate a single map keyed
// by the qualified subject key, which is simpler to sweep than one map per
// namespace.
type memCache struct {
	mu      sync.Mutex
	entries map[string]*memEntry
	stop    chan struct{}
}

func newMemCache() *memCache {
	c := &memCache{entries: make(map[string]*memEntry), stop: make(chan struct{})}
	go c.sweepLoop()
	return c
}

func (c *memCache) sweepLoop() {
	t := time.NewTicker(memCacheSweep)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			c.sweep()
		case <-c.stop:
			return
		}
	}
}

func (c *memCache) sweep() {
	now := time.Now()
	c.mu.Lock()
	defer c.mu.Unlock()
	for k, e := range c.entries {
		if now.After(e.expiry) {
			delete(c.entries, k)
		}
	}
}

// get returns the cached view, extending its TTL by memCacheExtendTTL on
// every hit.
func (c *memCache) get(key string) (memView, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return memView{}, false
	}
	if time.Now().After(e.expiry) {
		delete(c.entries, key)
		return memView{}, false
	}
	e.expiry = e.expiry.Add(memCacheExtendTTL)
	return e.view, true
}

func (c *memCache) put(key string, v memView) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = &memEntry{view: v, expiry: time.Now().Add(memCacheInitialTTL)}
}

func (c *memCache) invalidate(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

func (c *memCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *memCache) close() {
	close(c.stop)
}
