// Package cache stores search reports so repeated queries skip the browser.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"sync"
	"time"

	"github.com/use-agent/basket/models"
)

// Store is a search report cache. Implementations are safe for concurrent use.
type Store interface {
	// Get returns the cached report for key, if present and not expired.
	Get(ctx context.Context, key string) (*models.SearchReport, bool)

	// Set stores report under key for the store's TTL.
	Set(ctx context.Context, key string, report *models.SearchReport) error

	Close() error
}

// Key derives the cache key for query. Case and surrounding whitespace do
// not change the shops' results, so they do not change the key.
func Key(query string) string {
	sum := sha256.Sum256([]byte(strings.ToLower(strings.TrimSpace(query))))
	return hex.EncodeToString(sum[:])
}

// entry holds a cached report with its expiry.
type entry struct {
	report    *models.SearchReport
	expiresAt time.Time
}

// Memory is a bounded in-process Store.
type Memory struct {
	mu         sync.RWMutex
	store      map[string]*entry
	maxEntries int
	ttl        time.Duration
	now        func() time.Time

	stop     chan struct{}
	stopOnce sync.Once
}

// NewMemory creates a Memory store. A background goroutine evicts expired
// entries every cleanupEvery until Close is called.
func NewMemory(maxEntries int, ttl, cleanupEvery time.Duration) *Memory {
	if maxEntries <= 0 {
		maxEntries = 1
	}
	c := &Memory{
		store:      make(map[string]*entry),
		maxEntries: maxEntries,
		ttl:        ttl,
		now:        time.Now,
		stop:       make(chan struct{}),
	}
	if cleanupEvery > 0 {
		go c.cleanupLoop(cleanupEvery)
	}
	return c
}

func (c *Memory) Get(_ context.Context, key string) (*models.SearchReport, bool) {
	c.mu.RLock()
	e, ok := c.store[key]
	c.mu.RUnlock()

	if !ok || !c.now().Before(e.expiresAt) {
		return nil, false
	}
	return e.report, true
}

// Set stores report. If the store is at capacity, an arbitrary entry is
// evicted to make room.
func (c *Memory) Set(_ context.Context, key string, report *models.SearchReport) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.store[key]; !exists && len(c.store) >= c.maxEntries {
		// Map iteration order is random.
		for k := range c.store {
			delete(c.store, k)
			break
		}
	}

	c.store[key] = &entry{
		report:    report,
		expiresAt: c.now().Add(c.ttl),
	}
	return nil
}

// Len returns the number of stored entries, expired ones included.
func (c *Memory) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.store)
}

// Close stops the cleanup goroutine.
func (c *Memory) Close() error {
	c.stopOnce.Do(func() { close(c.stop) })
	return nil
}

func (c *Memory) cleanupLoop(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			c.evictExpired()
		}
	}
}

func (c *Memory) evictExpired() {
	now := c.now()
	c.mu.Lock()
	defer c.mu.Unlock()
	for k, e := range c.store {
		if !now.Before(e.expiresAt) {
			delete(c.store, k)
		}
	}
}
