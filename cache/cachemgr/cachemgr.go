// Package cachemgr registers the memory and file cache backends and
// exposes the six named tiers ({memory,file} x {short,medium,long}) the
// rest of the system looks results up through, plus fan-out invalidation
// and statistics across every registered instance.
package cachemgr

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/johanjanssens/taskcore/cache"
	"github.com/johanjanssens/taskcore/cache/filecache"
	"github.com/johanjanssens/taskcore/cache/memcache"
)

// BackendType names which concrete cache.Backend implementation to use.
type BackendType string

const (
	Memory BackendType = "memory"
	File   BackendType = "file"
)

// Tier names the three TTL bands the manager provisions by default.
type Tier string

const (
	Short  Tier = "short"
	Medium Tier = "medium"
	Long   Tier = "long"
)

var tierTTL = map[Tier]time.Duration{
	Short:  300 * time.Second,
	Medium: 3600 * time.Second,
	Long:   86400 * time.Second,
}

var memTierMaxSize = map[Tier]int{
	Short:  1000,
	Medium: 5000,
	Long:   10000,
}

// fileTierMaxSize is scaled up relative to the in-memory tiers since
// disk is cheaper than RAM per entry.
var fileTierMaxSize = map[Tier]int{
	Short:  2000,
	Medium: 10000,
	Long:   20000,
}

// ErrUnknownInstance is returned by Get for a (type, name) pair the
// manager never provisioned.
var ErrUnknownInstance = errors.New("cachemgr: unknown backend instance")

// Factory builds a configured cache.Backend for a given BackendType.
type Factory struct{ fileRoot string }

// NewFactory constructs a Factory; fileRoot is the directory under which
// every file-backend namespace is created.
func NewFactory(fileRoot string) *Factory {
	return &Factory{fileRoot: fileRoot}
}

// Build constructs a backend of the given type from cfg.
func (f *Factory) Build(t BackendType, cfg cache.Config) (cache.Backend, error) {
	switch t {
	case Memory:
		return memcache.New(cfg)
	case File:
		cfg.Root = f.fileRoot
		return filecache.New(cfg)
	default:
		return nil, fmt.Errorf("cachemgr: unknown backend type %q", t)
	}
}

// Manager is the cache manager (C4): it registers backends and
// provisions the six named tiers when it is constructed.
type Manager struct {
	factory *Factory

	mu        sync.Mutex
	instances map[string]cache.Backend
}

// NewManager constructs a Manager and eagerly provisions the six default
// tier instances. fileRoot is the root directory for file-backend
// namespaces.
func NewManager(fileRoot string) (*Manager, error) {
	m := &Manager{
		factory:   NewFactory(fileRoot),
		instances: make(map[string]cache.Backend),
	}
	if err := m.provisionDefaults(); err != nil {
		return nil, err
	}
	return m, nil
}

func instanceKey(t BackendType, tier Tier) string {
	return fmt.Sprintf("%s:%s", t, tier)
}

func (m *Manager) provisionDefaults() error {
	for _, t := range []BackendType{Memory, File} {
		for _, tier := range []Tier{Short, Medium, Long} {
			maxSize := memTierMaxSize[tier]
			if t == File {
				maxSize = fileTierMaxSize[tier]
			}
			cfg := cache.Config{
				TTL:         tierTTL[tier],
				MaxSize:     maxSize,
				Namespace:   cache.Namespace(fmt.Sprintf("%s-%s", t, tier)),
				EnableStats: true,
				Persistent:  t == File,
			}
			backend, err := m.factory.Build(t, cfg)
			if err != nil {
				return err
			}
			m.instances[instanceKey(t, tier)] = backend
		}
	}
	return nil
}

// Get returns the provisioned backend for (backendType, tier).
func (m *Manager) Get(t BackendType, tier Tier) (cache.Backend, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.instances[instanceKey(t, tier)]
	if !ok {
		return nil, fmt.Errorf("%w: %s:%s", ErrUnknownInstance, t, tier)
	}
	return b, nil
}

// InvalidateAll clears every registered instance, returning the total
// entry count removed and the first error encountered (invalidation
// continues across the remaining instances regardless).
func (m *Manager) InvalidateAll() (int, error) {
	m.mu.Lock()
	instances := make([]cache.Backend, 0, len(m.instances))
	for _, b := range m.instances {
		instances = append(instances, b)
	}
	m.mu.Unlock()

	var total int
	var firstErr error
	for _, b := range instances {
		n, err := b.Clear()
		total += n
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return total, firstErr
}

// Statistics returns every registered instance's counters keyed by
// "<type>:<tier>".
func (m *Manager) Statistics() map[string]cache.Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]cache.Stats, len(m.instances))
	for key, b := range m.instances {
		out[key] = b.Statistics()
	}
	return out
}

// Close closes every registered instance.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	var firstErr error
	for _, b := range m.instances {
		if err := b.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
