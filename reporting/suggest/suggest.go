// Package suggest implements a process-wide registry of providers that
// turn a raw error into a list of ActionableSuggestion advice, matched
// by error type or message pattern and sorted by severity.
package suggest

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"reflect"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/maypok86/otter/v2"
)

// Severity orders suggestions; lower values are more urgent.
type Severity int

const (
	SeverityCritical Severity = iota
	SeverityHigh
	SeverityMedium
	SeverityLow
	SeverityInfo
)

func (s Severity) String() string {
	switch s {
	case SeverityCritical:
		return "CRITICAL"
	case SeverityHigh:
		return "HIGH"
	case SeverityMedium:
		return "MEDIUM"
	case SeverityLow:
		return "LOW"
	case SeverityInfo:
		return "INFO"
	default:
		return "UNKNOWN"
	}
}

// Category classifies the kind of problem a suggestion addresses.
type Category string

const (
	CategoryConfiguration Category = "CONFIGURATION"
	CategoryConnection    Category = "CONNECTION"
	CategoryAuthentication Category = "AUTHENTICATION"
	CategoryPermission    Category = "PERMISSION"
	CategoryData          Category = "DATA"
	CategoryFormat        Category = "FORMAT"
	CategoryCompatibility Category = "COMPATIBILITY"
	CategoryDependency    Category = "DEPENDENCY"
	CategorySystem        Category = "SYSTEM"
	CategoryUsage         Category = "USAGE"
	CategoryGeneral       Category = "GENERAL"
)

// ActionableSuggestion is one piece of structured remediation advice.
type ActionableSuggestion struct {
	Message           string
	Steps             []string
	Severity          Severity
	Category          Category
	DocumentationURL  string
	CodeExample       string
	EstimatedFixTime  time.Duration
	AppliesToErrors   []error
	AppliesToPatterns []string
}

// Matches reports whether s applies to err: a type-list match, a
// pattern match, or both if both lists are non-empty. A type-list match
// is found when err, or any error in its Unwrap chain, has the same
// dynamic type as one of the listed samples.
func (s ActionableSuggestion) Matches(err error) bool {
	hasTypes := len(s.AppliesToErrors) > 0
	hasPatterns := len(s.AppliesToPatterns) > 0
	if !hasTypes && !hasPatterns {
		return false
	}

	var typeMatch bool
	if hasTypes {
		for e := err; e != nil && !typeMatch; e = errors.Unwrap(e) {
			errType := reflect.TypeOf(e)
			for _, sample := range s.AppliesToErrors {
				if reflect.TypeOf(sample) == errType {
					typeMatch = true
					break
				}
			}
		}
	}

	var patternMatch bool
	if hasPatterns {
		lower := strings.ToLower(err.Error())
		for _, pat := range s.AppliesToPatterns {
			if strings.Contains(lower, strings.ToLower(pat)) {
				patternMatch = true
				break
			}
		}
	}

	if hasTypes && hasPatterns {
		return typeMatch && patternMatch
	}
	if hasTypes {
		return typeMatch
	}
	return patternMatch
}

// Provider inspects err and returns whatever suggestions it recognizes.
// A provider that panics is recovered, logged, and skipped; one that
// returns an error is logged and skipped.
type Provider func(err error) ([]ActionableSuggestion, error)

// Option configures a Registry constructed with NewRegistry.
type Option func(*Registry)

// WithLogger injects a structured logger. Defaults to one that discards
// everything.
func WithLogger(l *slog.Logger) Option { return func(r *Registry) { r.logger = l } }

// WithMemoization enables caching GetSuggestions results keyed by error
// identity, bounded to maxSize entries.
func WithMemoization(maxSize int) Option {
	return func(r *Registry) {
		r.memo = otter.Must(&otter.Options[string, []ActionableSuggestion]{
			MaximumSize: maxSize,
		})
	}
}

// Registry is a process-wide collection of suggestion Providers.
type Registry struct {
	mu        sync.RWMutex
	providers []Provider
	logger    *slog.Logger
	memo      *otter.Cache[string, []ActionableSuggestion]
}

// NewRegistry constructs an empty Registry.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return r
}

// RegisterProvider appends p to the registry.
func (r *Registry) RegisterProvider(p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers = append(r.providers, p)
}

// GetSuggestions invokes every registered provider against err,
// aggregates their results, and returns them sorted by severity
// ascending. Results may be served from the memoization cache when
// WithMemoization was configured.
func (r *Registry) GetSuggestions(err error) []ActionableSuggestion {
	if err == nil {
		return nil
	}

	key := memoKey(err)
	if r.memo != nil {
		if cached, ok := r.memo.GetIfPresent(key); ok {
			return cached
		}
	}

	r.mu.RLock()
	providers := append([]Provider(nil), r.providers...)
	r.mu.RUnlock()

	var all []ActionableSuggestion
	for _, p := range providers {
		all = append(all, r.invoke(p, err)...)
	}
	sort.SliceStable(all, func(i, j int) bool { return all[i].Severity < all[j].Severity })

	if r.memo != nil {
		r.memo.Set(key, all)
	}
	return all
}

func (r *Registry) invoke(p Provider, err error) (result []ActionableSuggestion) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("suggestion provider panicked", "recover", rec)
		}
	}()
	suggestions, perr := p(err)
	if perr != nil {
		r.logger.Warn("suggestion provider failed", "error", perr)
		return nil
	}
	return suggestions
}

func memoKey(err error) string {
	return fmt.Sprintf("%T:%s", err, err.Error())
}
