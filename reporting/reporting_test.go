package reporting

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/johanjanssens/taskcore/reporting/suggest"
)

func newTestRegistry() *suggest.Registry {
	r := suggest.NewRegistry()
	suggest.RegisterDefaultProviders(r)
	return r
}

func TestBuildCapturesTypeMessageAndTimestamp(t *testing.T) {
	re := build(errors.New("boom"), ErrorContext{}, nil, false, false)
	assert.Equal(t, "*errors.errorString", re.TypeName)
	assert.Equal(t, "boom", re.Message)
	assert.False(t, re.Context.Timestamp.IsZero())
	assert.Empty(t, re.Stack)
	assert.Empty(t, re.Suggestions)
}

func TestBuildCapturesStackWhenRequested(t *testing.T) {
	re := build(errors.New("boom"), ErrorContext{}, nil, false, true)
	assert.NotEmpty(t, re.Stack)
}

func TestBuildPullsSuggestionsFromRegistry(t *testing.T) {
	registry := newTestRegistry()
	re := build(errors.New("connection refused"), ErrorContext{}, registry, true, false)
	require.NotEmpty(t, re.Suggestions)
	assert.Equal(t, suggest.CategoryConnection, re.Suggestions[0].Category)
}

func TestReportedErrorUnwrapAndError(t *testing.T) {
	original := errors.New("original")
	re := build(original, ErrorContext{}, nil, false, false)
	assert.Equal(t, "original", re.Error())
	assert.ErrorIs(t, re, original)
}

func TestConsoleReporterReport(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	registry := newTestRegistry()
	c := NewConsoleReporter(registry, WithConsoleLogger(logger))

	re, err := c.Report(errors.New("permission denied"), ErrorContext{Operation: "op", Component: "comp"})
	require.NoError(t, err)
	assert.Equal(t, "permission denied", re.Message)
	assert.NotEmpty(t, re.Suggestions)
}

func TestFileReporterWritesMandatedFilenameLayout(t *testing.T) {
	dir := t.TempDir()
	registry := newTestRegistry()
	f, err := NewFileReporter(dir, FormatJSON, registry)
	require.NoError(t, err)

	re, err := f.Report(errors.New("boom"), ErrorContext{Operation: "op"})
	require.NoError(t, err)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	name := entries[0].Name()
	assert.True(t, strings.HasPrefix(name, "error_"))
	assert.Equal(t, ".json", filepath.Ext(name))

	data, err := os.ReadFile(filepath.Join(dir, name))
	require.NoError(t, err)
	var decoded ReportedError
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, re.Message, decoded.Message)
}

func TestFileReporterTextFormat(t *testing.T) {
	dir := t.TempDir()
	registry := newTestRegistry()
	f, err := NewFileReporter(dir, FormatText, registry, WithFileStack(true))
	require.NoError(t, err)

	_, err = f.Report(errors.New("dial tcp: connection refused"), ErrorContext{Operation: "fetch"})
	require.NoError(t, err)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, ".txt", filepath.Ext(entries[0].Name()))

	data, err := os.ReadFile(filepath.Join(dir, entries[0].Name()))
	require.NoError(t, err)
	assert.Contains(t, string(data), "Error Type:")
	assert.Contains(t, string(data), "Suggestions:")
}

func TestFileReporterRecordsToBoltIndexWhenConfigured(t *testing.T) {
	dir := t.TempDir()
	registry := newTestRegistry()
	idx, err := NewBoltIndex(filepath.Join(dir, "index.bolt"))
	require.NoError(t, err)
	defer idx.Close()

	f, err := NewFileReporter(dir, FormatJSON, registry, WithBoltIndex(idx))
	require.NoError(t, err)

	re, err := f.Report(errors.New("boom"), ErrorContext{})
	require.NoError(t, err)

	paths, err := idx.Lookup(re.TypeName)
	require.NoError(t, err)
	require.Len(t, paths, 1)
	_, statErr := os.Stat(paths[0])
	assert.NoError(t, statErr)
}

func TestSanitizeTypeNameReplacesNonAlnum(t *testing.T) {
	assert.Equal(t, "_errors_errorString", sanitizeTypeName("*errors.errorString"))
}
