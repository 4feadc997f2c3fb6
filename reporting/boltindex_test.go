package reporting

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBoltIndexRecordAndLookup(t *testing.T) {
	idx, err := NewBoltIndex(filepath.Join(t.TempDir(), "index.bolt"))
	require.NoError(t, err)
	defer idx.Close()

	require.NoError(t, idx.Record("*errors.errorString", "/tmp/a.json"))
	require.NoError(t, idx.Record("*errors.errorString", "/tmp/b.json"))

	paths, err := idx.Lookup("*errors.errorString")
	require.NoError(t, err)
	assert.Equal(t, []string{"/tmp/a.json", "/tmp/b.json"}, paths)
}

func TestBoltIndexLookupUnknownTypeReturnsEmpty(t *testing.T) {
	idx, err := NewBoltIndex(filepath.Join(t.TempDir(), "index.bolt"))
	require.NoError(t, err)
	defer idx.Close()

	paths, err := idx.Lookup("never-recorded")
	require.NoError(t, err)
	assert.Empty(t, paths)
}
