package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/dpup/prefab/errors"
	"github.com/dpup/prefab/logging"
)

// Cache provides thread-safe in-memory caching with TTL. Values are stored as JSON so every
// reader gets its own copy.
type Cache struct {
	entries map[string]*Entry
	mutex   sync.RWMutex
	now     func() time.Time
}

// Entry represents a cached item with metadata
type Entry struct {
	Key       string        `json:"key"`
	Data      []byte        `json:"data"`
	CreatedAt time.Time     `json:"created_at"`
	ExpiresAt time.Time     `json:"expires_at"`
	TTL       time.Duration `json:"ttl"`
	Source    string        `json:"source"`
}

// Option configures a Cache
type Option func(*Cache)

// WithClock overrides the time source, used by tests
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// NewCache creates a new in-memory cache
func NewCache(opts ...Option) *Cache {
	c := &Cache{
		entries: make(map[string]*Entry),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Set stores data under key until ttl elapses
func (c *Cache) Set(key string, data interface{}, ttl time.Duration, source string) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal data for cache: %w", err)
	}

	now := c.now()
	entry := &Entry{
		Key:       key,
		Data:      jsonData,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
		TTL:       ttl,
		Source:    source,
	}

	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.entries[key] = entry
	return nil
}

// Get decodes the entry into result if it exists and is not stale
func (c *Cache) Get(key string, result interface{}) (bool, error) {
	c.mutex.RLock()
	entry, exists := c.entries[key]
	c.mutex.RUnlock()

	if !exists || c.expired(entry) {
		return false, nil
	}

	if err := json.Unmarshal(entry.Data, result); err != nil {
		return false, fmt.Errorf("failed to unmarshal cached data: %w", err)
	}
	return true, nil
}

func (c *Cache) expired(entry *Entry) bool {
	return !c.now().Before(entry.ExpiresAt)
}

// Delete removes an entry from cache
func (c *Cache) Delete(key string) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	delete(c.entries, key)
}

// Stats returns cache statistics
func (c *Cache) Stats() Stats {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	stats := Stats{TotalEntries: len(c.entries)}
	for _, entry := range c.entries {
		if c.expired(entry) {
			stats.StaleEntries++
		} else {
			stats.FreshEntries++
		}
		if stats.OldestEntry.IsZero() || entry.CreatedAt.Before(stats.OldestEntry) {
			stats.OldestEntry = entry.CreatedAt
		}
		if entry.CreatedAt.After(stats.NewestEntry) {
			stats.NewestEntry = entry.CreatedAt
		}
	}
	return stats
}

// CleanupStale removes all stale entries and returns how many were dropped
func (c *Cache) CleanupStale() int {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	var removed int
	for key, entry := range c.entries {
		if c.expired(entry) {
			delete(c.entries, key)
			removed++
		}
	}
	return removed
}

// StartPeriodicCleanup removes stale entries every interval until ctx is cancelled
func (c *Cache) StartPeriodicCleanup(ctx context.Context, interval time.Duration) {
	ctx = logging.EnsureLogger(ctx)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				err, _ := errors.ParseStack(debug.Stack())
				skipFrames := 3
				numFrames := 5
				logging.Errorw(ctx, "Cache cleanup: recovered from panic",
					"error", r, "error.stack_trace", err.MinimalStack(skipFrames, numFrames))
			}
		}()

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if removed := c.CleanupStale(); removed > 0 {
					stats := c.Stats()
					logging.Debugw(ctx, "Cache cleanup removed stale entries",
						"removed", removed, "remaining", stats.TotalEntries, "oldest", stats.OldestEntry)
				}
			}
		}
	}()
}

// Stats provides cache usage statistics
type Stats struct {
	TotalEntries int
	FreshEntries int
	StaleEntries int
	OldestEntry  time.Time
	NewestEntry  time.Time
}
