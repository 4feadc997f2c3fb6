package filecache

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/johanjanssens/taskcore/cache"
)

func newBackend(t *testing.T, maxSize int, ttl time.Duration) (*Backend, string) {
	t.Helper()
	dir := t.TempDir()
	b, err := New(cache.Config{MaxSize: maxSize, TTL: ttl, Namespace: cache.DefaultNamespace, Root: dir})
	require.NoError(t, err)
	return b, dir
}

func TestFilecacheRequiresRoot(t *testing.T) {
	_, err := New(cache.Config{MaxSize: 1, TTL: time.Hour})
	assert.ErrorIs(t, err, cache.ErrInvalidConfig)
}

func TestFilecacheSetGetRoundTrip(t *testing.T) {
	b, _ := newBackend(t, 10, time.Hour)
	require.NoError(t, b.Set("key1", "value1", cache.UseDefaultTTL))

	res, err := b.Get("key1")
	require.NoError(t, err)
	assert.True(t, res.Hit)
	assert.Equal(t, "value1", res.Value)
}

// Mandated external layout: one file per key at
// <root>/<namespace>/<hex(md5(key))>.cache.
func TestFilecacheOnDiskLayoutIsMD5HashedFilename(t *testing.T) {
	b, dir := newBackend(t, 10, time.Hour)
	require.NoError(t, b.Set("my-key", "v", cache.UseDefaultTTL))

	sum := md5.Sum([]byte("my-key"))
	wantPath := filepath.Join(dir, string(cache.DefaultNamespace), hex.EncodeToString(sum[:])+".cache")
	_, err := os.Stat(wantPath)
	assert.NoError(t, err, "expected cache file at mandated path %s", wantPath)
}

func TestFilecacheZeroTTLNeverExpires(t *testing.T) {
	b, _ := newBackend(t, 10, time.Hour)
	require.NoError(t, b.Set("forever", "v", 0))

	res, err := b.Get("forever")
	require.NoError(t, err)
	assert.True(t, res.Hit)
}

func TestFilecacheExpiredEntryBecomesMiss(t *testing.T) {
	b, _ := newBackend(t, 10, time.Hour)
	require.NoError(t, b.Set("k", "v", time.Millisecond))
	time.Sleep(5 * time.Millisecond)

	res, err := b.Get("k")
	require.NoError(t, err)
	assert.False(t, res.Hit)
	assert.False(t, b.HasKey("k"))
}

func TestFilecacheEvictsOldestByMtimeWhenFull(t *testing.T) {
	b, _ := newBackend(t, 2, time.Hour)
	require.NoError(t, b.Set("first", "1", cache.UseDefaultTTL))
	time.Sleep(5 * time.Millisecond)
	require.NoError(t, b.Set("second", "2", cache.UseDefaultTTL))
	time.Sleep(5 * time.Millisecond)
	require.NoError(t, b.Set("third", "3", cache.UseDefaultTTL))

	assert.False(t, b.HasKey("first"))
	assert.True(t, b.HasKey("second"))
	assert.True(t, b.HasKey("third"))
	assert.Equal(t, 2, b.GetSize())
}

func TestFilecacheRebuildsRegistryFromDiskAndSkipsCorruptFiles(t *testing.T) {
	dir := t.TempDir()
	b, err := New(cache.Config{MaxSize: 10, TTL: time.Hour, Namespace: cache.DefaultNamespace, Root: dir})
	require.NoError(t, err)
	require.NoError(t, b.Set("good", "v", cache.UseDefaultTTL))
	require.NoError(t, b.Close())

	nsDir := filepath.Join(dir, string(cache.DefaultNamespace))
	require.NoError(t, os.WriteFile(filepath.Join(nsDir, "deadbeef.cache"), []byte("not json"), 0o644))

	b2, err := New(cache.Config{MaxSize: 10, TTL: time.Hour, Namespace: cache.DefaultNamespace, Root: dir})
	require.NoError(t, err)

	assert.True(t, b2.HasKey("good"))
	_, err = os.Stat(filepath.Join(nsDir, "deadbeef.cache"))
	assert.True(t, os.IsNotExist(err), "corrupt file should have been removed during registry rebuild")
}

func TestFilecacheGetKeysReturnsHashesNotOriginalKeys(t *testing.T) {
	b, _ := newBackend(t, 10, time.Hour)
	require.NoError(t, b.Set("original-key", "v", cache.UseDefaultTTL))

	keys, err := b.GetKeys("")
	require.NoError(t, err)
	require.Len(t, keys, 1)
	assert.NotEqual(t, "original-key", keys[0])

	sum := md5.Sum([]byte("original-key"))
	assert.Equal(t, hex.EncodeToString(sum[:]), keys[0])
}

func TestFilecacheInvalidateAndClear(t *testing.T) {
	b, dir := newBackend(t, 10, time.Hour)
	require.NoError(t, b.Set("a", "1", cache.UseDefaultTTL))

	ok, err := b.Invalidate("a")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.False(t, b.HasKey("a"))

	require.NoError(t, b.Set("b", "2", cache.UseDefaultTTL))
	n, err := b.Clear()
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	nsDir := filepath.Join(dir, string(cache.DefaultNamespace))
	entries, err := os.ReadDir(nsDir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestFilecacheGetOrSetComputesOnMissOnly(t *testing.T) {
	b, _ := newBackend(t, 10, time.Hour)
	calls := 0
	produce := func(ctx context.Context) (any, error) {
		calls++
		return "computed", nil
	}
	v1, err := b.GetOrSet(context.Background(), "k", cache.UseDefaultTTL, produce)
	require.NoError(t, err)
	v2, err := b.GetOrSet(context.Background(), "k", cache.UseDefaultTTL, produce)
	require.NoError(t, err)
	assert.Equal(t, "computed", v1)
	assert.Equal(t, "computed", v2)
	assert.Equal(t, 1, calls)
}
