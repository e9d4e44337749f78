package lex

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Registry is a table of named callbacks. It is filled during start-up and
// frozen before rendering begins; after Freeze it is safe for concurrent
// lookups. Names are matched with ':' and '_' treated alike, so a callback
// registered as "content_snippet" serves {{ content:snippet }}.
type Registry struct {
	mu        sync.RWMutex
	callbacks map[string]Callback
	names     map[string]string
	frozen    bool
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{callbacks: make(map[string]Callback), names: make(map[string]string)}
}

func registryKey(name string) string {
	return strings.ReplaceAll(name, ":", "_")
}

// Register adds cb under name. Registering a name twice or after Freeze is an
// error.
func (r *Registry) Register(name string, cb Callback) error {
	if name == "" || cb == nil {
		return fmt.Errorf("lex: invalid callback registration %q", name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.frozen {
		return ErrRegistryFrozen
	}
	key := registryKey(name)
	if _, ok := r.callbacks[key]; ok {
		return fmt.Errorf("lex: callback %q already registered", name)
	}
	r.callbacks[key] = cb
	r.names[key] = name
	return nil
}

// Freeze makes the Registry read-only.
func (r *Registry) Freeze() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frozen = true
}

// Frozen reports whether Freeze has been called.
func (r *Registry) Frozen() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.frozen
}

// Lookup returns the callback registered under name.
func (r *Registry) Lookup(name string) (Callback, bool) {
	if r == nil {
		return nil, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	cb, ok := r.callbacks[registryKey(name)]
	return cb, ok
}

// Names returns the registered names, as they were registered, in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.names))
	for _, name := range r.names {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
