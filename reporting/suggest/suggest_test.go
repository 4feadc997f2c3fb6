package suggest

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeConnErr struct{}

func (fakeConnErr) Error() string { return "boom" }

type otherErr struct{}

func (otherErr) Error() string { return "boom" }

func TestMatchesRequiresAtLeastOneCriterion(t *testing.T) {
	s := ActionableSuggestion{}
	assert.False(t, s.Matches(errors.New("anything")))
}

func TestMatchesByTypeOnly(t *testing.T) {
	s := ActionableSuggestion{AppliesToErrors: []error{fakeConnErr{}}}
	assert.True(t, s.Matches(fakeConnErr{}))
	assert.False(t, s.Matches(otherErr{}))
}

func TestMatchesByPatternOnly(t *testing.T) {
	s := ActionableSuggestion{AppliesToPatterns: []string{"connection refused"}}
	assert.True(t, s.Matches(errors.New("dial tcp: Connection Refused")))
	assert.False(t, s.Matches(errors.New("unrelated failure")))
}

func TestMatchesRequiresBothWhenBothSpecified(t *testing.T) {
	s := ActionableSuggestion{
		AppliesToErrors:   []error{fakeConnErr{}},
		AppliesToPatterns: []string{"timeout"},
	}
	assert.False(t, s.Matches(fakeConnErr{})) // type matches, pattern doesn't
	assert.False(t, s.Matches(errors.New("timeout")))
	assert.True(t, s.Matches(fmt.Errorf("request timeout: %w", fakeConnErr{})))
}

func TestRegistryAggregatesAndSortsBySeverity(t *testing.T) {
	r := NewRegistry()
	r.RegisterProvider(func(err error) ([]ActionableSuggestion, error) {
		return []ActionableSuggestion{{Message: "low", Severity: SeverityLow, AppliesToPatterns: []string{"x"}}}, nil
	})
	r.RegisterProvider(func(err error) ([]ActionableSuggestion, error) {
		return []ActionableSuggestion{{Message: "critical", Severity: SeverityCritical, AppliesToPatterns: []string{"x"}}}, nil
	})

	results := r.GetSuggestions(errors.New("x marks the spot"))
	require.Len(t, results, 2)
	assert.Equal(t, "critical", results[0].Message)
	assert.Equal(t, "low", results[1].Message)
}

func TestRegistryRecoversFromPanickingProvider(t *testing.T) {
	r := NewRegistry()
	r.RegisterProvider(func(err error) ([]ActionableSuggestion, error) {
		panic("provider exploded")
	})
	r.RegisterProvider(func(err error) ([]ActionableSuggestion, error) {
		return []ActionableSuggestion{{Message: "safe", Severity: SeverityInfo, AppliesToPatterns: []string{"x"}}}, nil
	})

	results := r.GetSuggestions(errors.New("x"))
	require.Len(t, results, 1)
	assert.Equal(t, "safe", results[0].Message)
}

func TestRegistrySkipsProviderThatReturnsError(t *testing.T) {
	r := NewRegistry()
	r.RegisterProvider(func(err error) ([]ActionableSuggestion, error) {
		return nil, errors.New("provider broke")
	})
	results := r.GetSuggestions(errors.New("anything"))
	assert.Empty(t, results)
}

func TestRegistryNilErrorReturnsNil(t *testing.T) {
	r := NewRegistry()
	assert.Nil(t, r.GetSuggestions(nil))
}

func TestRegistryMemoizationReturnsCachedResult(t *testing.T) {
	r := NewRegistry(WithMemoization(16))
	calls := 0
	r.RegisterProvider(func(err error) ([]ActionableSuggestion, error) {
		calls++
		return []ActionableSuggestion{{Message: "cached", Severity: SeverityInfo, AppliesToPatterns: []string{"x"}}}, nil
	})

	err := errors.New("x")
	first := r.GetSuggestions(err)
	second := r.GetSuggestions(err)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, calls)
}

func TestDefaultProvidersMatchKnownPatterns(t *testing.T) {
	r := NewRegistry()
	RegisterDefaultProviders(r)

	cases := []struct {
		err      error
		category Category
	}{
		{errors.New("dial tcp 10.0.0.1:80: connection refused"), CategoryConnection},
		{errors.New("open /etc/shadow: permission denied"), CategoryPermission},
		{errors.New("missing required field 'name'"), CategoryConfiguration},
		{errors.New("exec: \"foo\": no such file or directory"), CategoryDependency},
		{errors.New("json: unexpected end of JSON input"), CategoryData},
	}
	for _, tc := range cases {
		results := r.GetSuggestions(tc.err)
		require.NotEmpty(t, results, tc.err.Error())
		assert.Equal(t, tc.category, results[0].Category, tc.err.Error())
	}
}

func TestSeverityString(t *testing.T) {
	assert.Equal(t, "CRITICAL", SeverityCritical.String())
	assert.Equal(t, "INFO", SeverityInfo.String())
}
