// Package memcache implements an in-memory, per-namespace LRU cache
// backend with TTL expiry, built on container/list for strict O(1)
// move-to-front/evict-from-back ordering.
package memcache

import (
	"container/list"
	"context"
	"fmt"
	"path"
	"sync"
	"time"

	"github.com/johanjanssens/taskcore/cache"
)

type node struct {
	key   string
	entry cache.Entry
}

// Backend is an in-memory LRU cache.Backend, one instance per namespace.
type Backend struct {
	cfg cache.Config

	mu    sync.Mutex
	ll    *list.List
	index map[string]*list.Element
	stats cache.Stats
}

var _ cache.Backend = (*Backend)(nil)

// New constructs a memcache.Backend from cfg, which must pass Validate.
func New(cfg cache.Config) (*Backend, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Backend{
		cfg:   cfg,
		ll:    list.New(),
		index: make(map[string]*list.Element),
	}, nil
}

// Get looks up key, moving it to the most-recently-used position on a
// hit and evicting it (reporting expired=true) if its TTL has elapsed.
func (b *Backend) Get(key string) (cache.Result, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	el, ok := b.index[key]
	if !ok {
		b.stats.Misses++
		return cache.Result{Hit: false}, nil
	}
	n := el.Value.(*node)
	now := time.Now()
	if n.entry.Expired(now) {
		b.ll.Remove(el)
		delete(b.index, key)
		b.stats.Misses++
		return cache.Result{Hit: false, Expired: true, Origin: n.entry.CreatedAt, TTL: n.entry.TTL}, nil
	}

	n.entry.LastAccess = now
	n.entry.AccessCount++
	b.ll.MoveToFront(el)
	b.stats.Hits++
	return cache.Result{
		Value:  n.entry.Value,
		Hit:    true,
		Origin: n.entry.CreatedAt,
		TTL:    n.entry.TTL,
	}, nil
}

// Set stores value under key, evicting the least-recently-used entry
// first if the namespace is already at MaxSize.
func (b *Backend) Set(key string, value any, ttl time.Duration) error {
	if key == "" {
		return cache.ErrInvalidKey
	}
	if value == nil {
		b.mu.Lock()
		b.stats.Errors++
		b.mu.Unlock()
		return cache.ErrInvalidValue
	}
	if ttl == cache.UseDefaultTTL {
		ttl = b.cfg.TTL
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	entry := cache.Entry{Key: key, Value: value, CreatedAt: now, TTL: ttl, LastAccess: now}

	if el, ok := b.index[key]; ok {
		el.Value.(*node).entry = entry
		b.ll.MoveToFront(el)
		b.stats.Sets++
		return nil
	}

	if b.ll.Len() >= b.cfg.MaxSize {
		b.evictOldestLocked()
	}
	el := b.ll.PushFront(&node{key: key, entry: entry})
	b.index[key] = el
	b.stats.Sets++
	return nil
}

func (b *Backend) evictOldestLocked() {
	back := b.ll.Back()
	if back == nil {
		return
	}
	n := back.Value.(*node)
	b.ll.Remove(back)
	delete(b.index, n.key)
	b.stats.Evictions++
}

// Invalidate removes key, reporting whether it was present.
func (b *Backend) Invalidate(key string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	el, ok := b.index[key]
	if !ok {
		return false, nil
	}
	b.ll.Remove(el)
	delete(b.index, key)
	return true, nil
}

// InvalidateNamespace clears this instance's entire namespace, since one
// Backend always holds exactly one namespace's entries.
func (b *Backend) InvalidateNamespace() (int, error) {
	return b.Clear()
}

// Clear removes every entry, returning the count removed.
func (b *Backend) Clear() (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := b.ll.Len()
	b.ll.Init()
	b.index = make(map[string]*list.Element)
	return n, nil
}

// GetKeys returns keys matching a glob pattern (path.Match semantics),
// or every key when pattern is empty.
func (b *Backend) GetKeys(pattern string) ([]string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	keys := make([]string, 0, len(b.index))
	for k := range b.index {
		if pattern == "" {
			keys = append(keys, k)
			continue
		}
		matched, err := path.Match(pattern, k)
		if err != nil {
			return nil, fmt.Errorf("cache: bad pattern %q: %w", pattern, err)
		}
		if matched {
			keys = append(keys, k)
		}
	}
	return keys, nil
}

// GetSize returns the current entry count.
func (b *Backend) GetSize() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.ll.Len()
}

// HasKey reports whether key is present and unexpired, without updating
// its LRU position.
func (b *Backend) HasKey(key string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	el, ok := b.index[key]
	if !ok {
		return false
	}
	return !el.Value.(*node).entry.Expired(time.Now())
}

// CleanupExpired eagerly evicts every expired entry, returning the count
// removed.
func (b *Backend) CleanupExpired() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	now := time.Now()
	var removed int
	for el := b.ll.Front(); el != nil; {
		next := el.Next()
		n := el.Value.(*node)
		if n.entry.Expired(now) {
			b.ll.Remove(el)
			delete(b.index, n.key)
			removed++
		}
		el = next
	}
	return removed
}

// GetOrSet returns the cached value for key, computing and storing it
// via produce on a miss or expired hit.
func (b *Backend) GetOrSet(ctx context.Context, key string, ttl time.Duration, produce cache.Producer) (any, error) {
	return cache.GetOrSet(ctx, b, key, ttl, produce)
}

// Statistics returns a copy of the accumulated counters.
func (b *Backend) Statistics() cache.Stats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.stats
}

// Close is a no-op; the in-memory backend owns no external resources.
func (b *Backend) Close() error { return nil }
