// Package filecache implements an on-disk persistent cache.Backend: one
// file per key, named by the hex MD5 hash of the key, holding a
// serialized record. The physical layout
// (<root>/<namespace>/<hex(md5(key))>.cache) is a mandated external
// interface, not an implementation detail, so it is implemented literally
// with the standard library rather than an embedded database.
package filecache

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/johanjanssens/taskcore/cache"
)

const fileSuffix = ".cache"

type record struct {
	Key         string    `json:"key"`
	Value       any       `json:"value"`
	TTL         int64     `json:"ttl_ns"`
	CreatedAt   time.Time `json:"created_ts"`
	LastAccess  time.Time `json:"last_access_ts"`
	AccessCount uint64    `json:"access_count"`
}

// Backend is an on-disk cache.Backend, one instance per namespace
// directory.
type Backend struct {
	cfg cache.Config
	dir string

	mu       sync.Mutex
	registry map[string]string // hash -> original key, rebuilt from disk at startup
	stats    cache.Stats
}

var _ cache.Backend = (*Backend)(nil)

// New opens (creating if necessary) the namespace directory
// <cfg.Root>/<cfg.Namespace> and rebuilds its key registry by scanning
// existing *.cache files. Corrupt files found during the scan are
// deleted and treated as absent.
func New(cfg cache.Config) (*Backend, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Root == "" {
		return nil, fmt.Errorf("%w: root directory required", cache.ErrInvalidConfig)
	}
	dir := filepath.Join(cfg.Root, string(cfg.Namespace))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: %v", cache.ErrBackendIO, err)
	}

	b := &Backend{cfg: cfg, dir: dir, registry: make(map[string]string)}
	if err := b.rebuildRegistry(); err != nil {
		return nil, err
	}
	return b, nil
}

func (b *Backend) rebuildRegistry() error {
	entries, err := os.ReadDir(b.dir)
	if err != nil {
		return fmt.Errorf("%w: %v", cache.ErrBackendIO, err)
	}
	for _, de := range entries {
		if de.IsDir() || filepath.Ext(de.Name()) != fileSuffix {
			continue
		}
		hash := de.Name()[:len(de.Name())-len(fileSuffix)]
		rec, err := b.readRecord(hash)
		if err != nil {
			// Corrupt file encountered during scan: treat as absent.
			_ = os.Remove(b.pathFor(hash))
			continue
		}
		b.registry[hash] = rec.Key
	}
	return nil
}

func hashKey(key string) string {
	sum := md5.Sum([]byte(key))
	return hex.EncodeToString(sum[:])
}

func (b *Backend) pathFor(hash string) string {
	return filepath.Join(b.dir, hash+fileSuffix)
}

func (b *Backend) readRecord(hash string) (record, error) {
	data, err := os.ReadFile(b.pathFor(hash))
	if err != nil {
		return record{}, err
	}
	var rec record
	if err := json.Unmarshal(data, &rec); err != nil {
		return record{}, err
	}
	return rec, nil
}

func (b *Backend) writeRecord(hash string, rec record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return os.WriteFile(b.pathFor(hash), data, 0o644)
}

// Get reads key's file, checks its TTL, and on a hit updates its access
// fields and rewrites the file.
func (b *Backend) Get(key string) (cache.Result, error) {
	hash := hashKey(key)

	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.registry[hash]; !ok {
		b.stats.Misses++
		return cache.Result{Hit: false}, nil
	}

	rec, err := b.readRecord(hash)
	if err != nil {
		_ = os.Remove(b.pathFor(hash))
		delete(b.registry, hash)
		b.stats.Misses++
		return cache.Result{Hit: false}, nil
	}

	ttl := time.Duration(rec.TTL)
	now := time.Now()
	if ttl > 0 && now.Sub(rec.CreatedAt) > ttl {
		_ = os.Remove(b.pathFor(hash))
		delete(b.registry, hash)
		b.stats.Misses++
		return cache.Result{Hit: false, Expired: true, Origin: rec.CreatedAt, TTL: ttl}, nil
	}

	rec.LastAccess = now
	rec.AccessCount++
	if err := b.writeRecord(hash, rec); err != nil {
		b.stats.Errors++
		return cache.Result{}, fmt.Errorf("%w: %v", cache.ErrBackendIO, err)
	}

	b.stats.Hits++
	return cache.Result{Value: rec.Value, Hit: true, Origin: rec.CreatedAt, TTL: ttl}, nil
}

// Set writes key's file, evicting the oldest entries by mtime first if
// the namespace is already at MaxSize.
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

	hash := hashKey(key)

	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.registry[hash]; !exists {
		if err := b.evictIfFullLocked(); err != nil {
			b.stats.Errors++
			return err
		}
	}

	now := time.Now()
	rec := record{Key: key, Value: value, TTL: int64(ttl), CreatedAt: now, LastAccess: now}
	if err := b.writeRecord(hash, rec); err != nil {
		b.stats.Errors++
		return fmt.Errorf("%w: %v", cache.ErrBackendIO, err)
	}
	b.registry[hash] = key
	b.stats.Sets++
	return nil
}

// evictIfFullLocked deletes the oldest-by-mtime entries until the
// namespace is under MaxSize, making room for one new entry. Callers
// must hold b.mu.
func (b *Backend) evictIfFullLocked() error {
	if len(b.registry) < b.cfg.MaxSize {
		return nil
	}
	type aged struct {
		hash  string
		mtime time.Time
	}
	var ordered []aged
	for hash := range b.registry {
		info, err := os.Stat(b.pathFor(hash))
		if err != nil {
			continue
		}
		ordered = append(ordered, aged{hash: hash, mtime: info.ModTime()})
	}
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].mtime.Before(ordered[j].mtime) })

	for _, a := range ordered {
		if len(b.registry) < b.cfg.MaxSize {
			break
		}
		if err := os.Remove(b.pathFor(a.hash)); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("%w: %v", cache.ErrBackendIO, err)
		}
		delete(b.registry, a.hash)
		b.stats.Evictions++
	}
	return nil
}

// Invalidate removes key's file, reporting whether it was present.
func (b *Backend) Invalidate(key string) (bool, error) {
	hash := hashKey(key)
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.registry[hash]; !ok {
		return false, nil
	}
	if err := os.Remove(b.pathFor(hash)); err != nil && !os.IsNotExist(err) {
		b.stats.Errors++
		return false, fmt.Errorf("%w: %v", cache.ErrBackendIO, err)
	}
	delete(b.registry, hash)
	return true, nil
}

// InvalidateNamespace clears this instance's whole namespace directory.
func (b *Backend) InvalidateNamespace() (int, error) {
	return b.Clear()
}

// Clear removes and recreates the namespace directory.
func (b *Backend) Clear() (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := len(b.registry)
	if err := os.RemoveAll(b.dir); err != nil {
		b.stats.Errors++
		return 0, fmt.Errorf("%w: %v", cache.ErrBackendIO, err)
	}
	if err := os.MkdirAll(b.dir, 0o755); err != nil {
		b.stats.Errors++
		return 0, fmt.Errorf("%w: %v", cache.ErrBackendIO, err)
	}
	b.registry = make(map[string]string)
	return n, nil
}

// GetKeys returns matching filename-hash stems, not original keys: the
// pattern is matched against the hex MD5 stems of the files on disk, and
// those stems are what is returned. The registry does hold each entry's
// original key, but GetKeys does not expose it; memcache.GetKeys returns
// original keys.
func (b *Backend) GetKeys(pattern string) ([]string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	hashes := make([]string, 0, len(b.registry))
	for hash := range b.registry {
		if pattern == "" {
			hashes = append(hashes, hash)
			continue
		}
		matched, err := path.Match(pattern, hash)
		if err != nil {
			return nil, fmt.Errorf("cache: bad pattern %q: %w", pattern, err)
		}
		if matched {
			hashes = append(hashes, hash)
		}
	}
	return hashes, nil
}

// GetSize returns the current entry count.
func (b *Backend) GetSize() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.registry)
}

// HasKey reports whether key is present and unexpired, without updating
// access fields.
func (b *Backend) HasKey(key string) bool {
	hash := hashKey(key)
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.registry[hash]; !ok {
		return false
	}
	rec, err := b.readRecord(hash)
	if err != nil {
		return false
	}
	ttl := time.Duration(rec.TTL)
	if ttl > 0 && time.Since(rec.CreatedAt) > ttl {
		return false
	}
	return true
}

// CleanupExpired eagerly deletes every expired file, returning the count
// removed.
func (b *Backend) CleanupExpired() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	now := time.Now()
	var removed int
	for hash := range b.registry {
		rec, err := b.readRecord(hash)
		if err != nil {
			_ = os.Remove(b.pathFor(hash))
			delete(b.registry, hash)
			removed++
			continue
		}
		ttl := time.Duration(rec.TTL)
		if ttl > 0 && now.Sub(rec.CreatedAt) > ttl {
			_ = os.Remove(b.pathFor(hash))
			delete(b.registry, hash)
			removed++
		}
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

// Close is a no-op; every operation already durably writes to disk.
func (b *Backend) Close() error { return nil }
