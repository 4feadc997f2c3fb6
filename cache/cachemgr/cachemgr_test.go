package cachemgr

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/johanjanssens/taskcore/cache"
)

func TestNewManagerProvisionsAllSixTiers(t *testing.T) {
	m, err := NewManager(t.TempDir())
	require.NoError(t, err)
	defer m.Close()

	for _, bt := range []BackendType{Memory, File} {
		for _, tier := range []Tier{Short, Medium, Long} {
			b, err := m.Get(bt, tier)
			require.NoError(t, err)
			assert.NotNil(t, b)
		}
	}
}

func TestManagerGetUnknownInstanceErrors(t *testing.T) {
	m, err := NewManager(t.TempDir())
	require.NoError(t, err)
	defer m.Close()

	_, err = m.Get(BackendType("bogus"), Short)
	assert.ErrorIs(t, err, ErrUnknownInstance)
}

func TestManagerInstancesAreIndependentNamespaces(t *testing.T) {
	m, err := NewManager(t.TempDir())
	require.NoError(t, err)
	defer m.Close()

	shortMem, err := m.Get(Memory, Short)
	require.NoError(t, err)
	longMem, err := m.Get(Memory, Long)
	require.NoError(t, err)

	require.NoError(t, shortMem.Set("k", "v", cache.UseDefaultTTL))
	assert.True(t, shortMem.HasKey("k"))
	assert.False(t, longMem.HasKey("k"))
}

func TestManagerInvalidateAllClearsEveryInstance(t *testing.T) {
	m, err := NewManager(t.TempDir())
	require.NoError(t, err)
	defer m.Close()

	shortMem, err := m.Get(Memory, Short)
	require.NoError(t, err)
	require.NoError(t, shortMem.Set("k1", "v", cache.UseDefaultTTL))

	shortFile, err := m.Get(File, Short)
	require.NoError(t, err)
	require.NoError(t, shortFile.Set("k2", "v", cache.UseDefaultTTL))

	total, err := m.InvalidateAll()
	require.NoError(t, err)
	assert.GreaterOrEqual(t, total, 2)
	assert.False(t, shortMem.HasKey("k1"))
	assert.False(t, shortFile.HasKey("k2"))
}

func TestManagerStatisticsKeyedByTypeAndTier(t *testing.T) {
	m, err := NewManager(t.TempDir())
	require.NoError(t, err)
	defer m.Close()

	stats := m.Statistics()
	_, ok := stats["memory:short"]
	assert.True(t, ok)
	_, ok = stats["file:long"]
	assert.True(t, ok)
}

func TestFactoryBuildUnknownTypeErrors(t *testing.T) {
	f := NewFactory(t.TempDir())
	_, err := f.Build(BackendType("bogus"), cache.DefaultConfig())
	assert.Error(t, err)
}
