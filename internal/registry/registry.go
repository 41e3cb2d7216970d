// Package registry holds the operator kinds known to the process.
//
// Kinds are registered explicitly at startup, usually from
// internal/operators.RegisterAll, and instantiated once per watched namespace
// by the bootstrap.
package registry

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"sigs.k8s.io/controller-runtime/pkg/client"

	"operatorkit/internal/operator"
	"operatorkit/pkg/logging"
)

// ErrDuplicateKind is returned when a kind is registered twice.
var ErrDuplicateKind = errors.New("operator kind already registered")

// Settings are the per-instance values decided by the bootstrap.
type Settings struct {
	// Namespace is the scope of the instance being built.
	Namespace operator.NamespaceScope

	// ForceCRD switches every operator to the custom resource shape.
	ForceCRD bool

	// Client lets handlers write the resources they manage.
	Client client.Client
}

// Factory builds one operator instance.
type Factory func(rt operator.Runtime, settings Settings) operator.Runnable

// Entry describes one registered kind.
type Entry struct {
	Kind        string
	Description string

	// CRD reports whether the kind uses a custom resource by default.
	CRD bool

	Factory Factory
}

// Registry maps kinds to factories.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{entries: make(map[string]Entry)}
}

// Register adds an entry. Kinds are unique.
func (r *Registry) Register(e Entry) error {
	if e.Kind == "" {
		return errors.New("operator kind is empty")
	}
	if e.Factory == nil {
		return fmt.Errorf("operator kind %s has no factory", e.Kind)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[e.Kind]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateKind, e.Kind)
	}
	r.entries[e.Kind] = e
	logging.Debug("Registry", "Registered operator kind %s", e.Kind)
	return nil
}

// Kinds returns the registered kinds sorted by name.
func (r *Registry) Kinds() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	kinds := make([]string, 0, len(r.entries))
	for k := range r.entries {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}

// Entries returns the registered entries sorted by kind.
func (r *Registry) Entries() []Entry {
	kinds := r.Kinds()

	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Entry, 0, len(kinds))
	for _, k := range kinds {
		out = append(out, r.entries[k])
	}
	return out
}

// Len returns the number of registered kinds.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Build instantiates every registered kind for one namespace scope, in kind
// order.
func (r *Registry) Build(rt operator.Runtime, settings Settings) []operator.Runnable {
	entries := r.Entries()
	out := make([]operator.Runnable, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Factory(rt, settings))
	}
	return out
}
