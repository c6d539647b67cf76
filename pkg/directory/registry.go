package directory

import (
	"fmt"
	"sort"
	"sync"
)

type Registry struct {
	factories map[string]Factory
	mu        sync.RWMutex
}

type Factory func(opts Options) (Directory, error)

var globalRegistry = NewRegistry()

func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]Factory),
	}
}

func (r *Registry) Register(driver string, factory Factory) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.factories[driver]; exists {
		return fmt.Errorf("directory driver %s already registered", driver)
	}

	r.factories[driver] = factory
	return nil
}

// Create builds a directory for the driver. No connection is made; sessions
// are opened per lookup.
func (r *Registry) Create(driver string, opts Options) (Directory, error) {
	r.mu.RLock()
	factory, exists := r.factories[driver]
	r.mu.RUnlock()

	if !exists {
		return nil, fmt.Errorf("directory driver %s not found", driver)
	}

	dir, err := factory(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}
	return dir, nil
}

func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	drivers := make([]string, 0, len(r.factories))
	for driver := range r.factories {
		drivers = append(drivers, driver)
	}
	sort.Strings(drivers)
	return drivers
}

func (r *Registry) Has(driver string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, exists := r.factories[driver]
	return exists
}

func Register(driver string, factory Factory) error {
	return globalRegistry.Register(driver, factory)
}

func Create(driver string, opts Options) (Directory, error) {
	return globalRegistry.Create(driver, opts)
}

func List() []string {
	return globalRegistry.List()
}

func Has(driver string) bool {
	return globalRegistry.Has(driver)
}
