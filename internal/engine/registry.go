package engine

import (
	"errors"
	"fmt"
	"slices"
	"sync"
)

// Registry maps node type names to the factories that build them
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

var (
	ErrTypeExists  = errors.New("node type already registered")
	ErrUnknownType = errors.New("unknown node type")
)

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		factories: map[string]Factory{},
	}
}

// Register adds a node type
func (r *Registry) Register(typ string, f Factory) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.factories[typ]; ok {
		return fmt.Errorf("%w: %s", ErrTypeExists, typ)
	}
	r.factories[typ] = f
	return nil
}

// Get returns the factory for a node type
func (r *Registry) Get(typ string) (Factory, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.factories[typ]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownType, typ)
	}
	return f, nil
}

// Types returns the registered type names in sorted order
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	res := make([]string, 0, len(r.factories))
	for typ := range r.factories {
		res = append(res, typ)
	}
	slices.Sort(res)
	return res
}
