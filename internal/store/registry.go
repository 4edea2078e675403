package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Opener opens a store for a backend-specific connection string.
type Opener func(ctx context.Context, dsn string) (Store, error)

var (
	registry = make(map[string]Opener)
	mu       sync.RWMutex
)

// Register adds a backend to the registry.
func Register(name string, open Opener) {
	mu.Lock()
	defer mu.Unlock()
	registry[name] = open
}

// Open opens a store using the named backend.
func Open(ctx context.Context, backend, dsn string) (Store, error) {
	mu.RLock()
	open, ok := registry[backend]
	mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("unknown store backend: %s", backend)
	}
	return open(ctx, dsn)
}

// List returns all registered backend names, sorted.
func List() []string {
	mu.RLock()
	defer mu.RUnlock()

	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
