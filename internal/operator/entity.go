package operator

import (
	"reflect"
	"sort"

	"k8s.io/apimachinery/pkg/types"
	"k8s.io/apimachinery/pkg/util/sets"
)

// Entity is the typed domain object produced from a watched resource.
//
// The name is the only compulsory field; it identifies the entity within its
// namespace. Implementations add whatever kind-specific fields they need.
type Entity interface {
	GetName() string
	SetName(name string)
}

// Set holds converted entities keyed by namespace and name.
type Set[T Entity] map[types.NamespacedName]T

// Insert adds the entity under the given namespace, replacing an entry with the same name.
func (s Set[T]) Insert(namespace string, entity T) {
	s[types.NamespacedName{Namespace: namespace, Name: entity.GetName()}] = entity
}

// Has reports whether an entity with the given namespace and name is present.
func (s Set[T]) Has(namespace, name string) bool {
	_, ok := s[types.NamespacedName{Namespace: namespace, Name: name}]
	return ok
}

// Get returns the entity stored under namespace and name.
func (s Set[T]) Get(namespace, name string) (T, bool) {
	e, ok := s[types.NamespacedName{Namespace: namespace, Name: name}]
	return e, ok
}

// Keys returns the keys sorted by namespace, then name.
func (s Set[T]) Keys() []types.NamespacedName {
	keys := make([]types.NamespacedName, 0, len(s))
	for k := range s {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Namespace != keys[j].Namespace {
			return keys[i].Namespace < keys[j].Namespace
		}
		return keys[i].Name < keys[j].Name
	})
	return keys
}

// KeySet returns the keys as a sets.Set so callers can diff desired against actual state.
func (s Set[T]) KeySet() sets.Set[types.NamespacedName] {
	out := sets.New[types.NamespacedName]()
	for k := range s {
		out.Insert(k)
	}
	return out
}

// isNilEntity reports whether e is a nil interface or a typed nil pointer.
func isNilEntity[T Entity](e T) bool {
	v := reflect.ValueOf(any(e))
	if !v.IsValid() {
		return true
	}
	switch v.Kind() {
	case reflect.Ptr, reflect.Interface, reflect.Map:
		return v.IsNil()
	}
	return false
}
