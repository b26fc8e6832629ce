// ABOUTME: Thread-safe TTL cache mapping client idempotency keys to created task ids
// ABOUTME: Lets a retried POST return the task from the first attempt instead of creating another

package idempotency

import (
	"container/list"
	"strconv"
	"sync"
	"time"
)

// Status describes what Reserve found for a key.
type Status int

const (
	// Reserved means the key was free and now belongs to the caller, who must
	// later call Complete or Release.
	Reserved Status = iota
	// InFlight means another request holds the key and has not finished.
	InFlight
	// Replay means a request with this key already created a task.
	Replay
)

func (s Status) String() string {
	switch s {
	case Reserved:
		return "reserved"
	case InFlight:
		return "in_flight"
	case Replay:
		return "replay"
	default:
		return "unknown"
	}
}

// cacheEntry stores the result, timestamp and list element for a cached key.
type cacheEntry struct {
	taskID    int64
	done      bool
	timestamp time.Time
	element   *list.Element
}

// Cache is a TTL-based, size-limited map of idempotency keys to task ids.
// Uses a doubly-linked list to maintain insertion order for O(1) eviction.
type Cache struct {
	mu      sync.Mutex
	entries map[string]*cacheEntry
	order   *list.List // keys in insertion order, oldest at front
	ttl     time.Duration
	maxSize int
	done    chan struct{}
	closed  bool
}

// New creates a cache with the given TTL and maximum size.
// A background goroutine periodically cleans up expired entries.
func New(ttl time.Duration, maxSize int) *Cache {
	c := &Cache{
		entries: make(map[string]*cacheEntry),
		order:   list.New(),
		ttl:     ttl,
		maxSize: maxSize,
		done:    make(chan struct{}),
	}
	go c.cleanup()
	return c
}

// Key scopes a client-supplied key to its owner so users cannot collide.
func Key(ownerID int64, clientKey string) string {
	return strconv.FormatInt(ownerID, 10) + ":" + clientKey
}

// Reserve atomically looks key up and claims it if free or expired.
// For Replay the returned id is the task created by the first request.
func (c *Cache) Reserve(key string) (int64, Status) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if entry, ok := c.entries[key]; ok && time.Since(entry.timestamp) < c.ttl {
		if entry.done {
			return entry.taskID, Replay
		}
		return 0, InFlight
	}

	c.putLocked(key, &cacheEntry{})
	return 0, Reserved
}

// Complete records the task created for a reserved key.
func (c *Cache) Complete(key string, taskID int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.putLocked(key, &cacheEntry{taskID: taskID, done: true})
}

// Release frees a reserved key after a failed attempt so a retry may run.
// Completed keys are left alone.
func (c *Cache) Release(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok || entry.done {
		return
	}
	c.order.Remove(entry.element)
	delete(c.entries, key)
}

// Len returns the number of entries, expired or not.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// putLocked stores e under key. Must be called with mu held.
func (c *Cache) putLocked(key string, e *cacheEntry) {
	e.timestamp = time.Now()

	// If key already exists, replace in place and move to back
	if old, exists := c.entries[key]; exists {
		e.element = old.element
		c.order.MoveToBack(e.element)
		c.entries[key] = e
		return
	}

	if len(c.entries) >= c.maxSize {
		c.evictOldest()
	}

	e.element = c.order.PushBack(key)
	c.entries[key] = e
}

// evictOldest removes the oldest entry from the cache.
// Must be called with mu held.
func (c *Cache) evictOldest() {
	front := c.order.Front()
	if front == nil {
		return
	}

	key, _ := front.Value.(string)
	c.order.Remove(front)
	delete(c.entries, key)
}

// cleanup runs in a background goroutine, periodically removing expired entries.
func (c *Cache) cleanup() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.runCleanup()
		case <-c.done:
			return
		}
	}
}

// runCleanup removes all expired entries from the cache.
func (c *Cache) runCleanup() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	for key, entry := range c.entries {
		if now.Sub(entry.timestamp) > c.ttl {
			c.order.Remove(entry.element)
			delete(c.entries, key)
		}
	}
}

// Close stops the background cleanup goroutine. It is safe to call multiple times.
func (c *Cache) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.closed {
		close(c.done)
		c.closed = true
	}
}
