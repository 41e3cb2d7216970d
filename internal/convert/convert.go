// Package convert turns watched ConfigMaps and custom resources into typed
// entities.
//
// ConfigMaps carry the entity as a YAML document under the "config" key.
// Custom resources carry it as their spec. In both cases the entity name
// falls back to the object's name when the payload does not set one.
package convert

import (
	"fmt"

	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/yaml"

	"operatorkit/internal/operator"
)

// ConfigKey is the ConfigMap data key holding the YAML payload.
const ConfigKey = "config"

// Pointer constrains PT to *E implementing operator.Entity.
type Pointer[E any] interface {
	*E
	operator.Entity
}

// FromObject converts a ConfigMap or an unstructured custom resource into a
// new *E. It is usable directly as an operator.ConvertFunc:
//
//	Convert: convert.FromObject[v1.Cluster]
func FromObject[E any, PT Pointer[E]](obj client.Object) (PT, error) {
	switch o := obj.(type) {
	case *corev1.ConfigMap:
		return FromConfigMap[E, PT](o)
	case *unstructured.Unstructured:
		return FromCustomResource[E, PT](o)
	case nil:
		return nil, fmt.Errorf("cannot convert nil object")
	default:
		return nil, fmt.Errorf("cannot convert %T %s/%s", obj, obj.GetNamespace(), obj.GetName())
	}
}

// FromConfigMap parses the "config" document of cm. A missing or empty
// document yields an entity carrying only the ConfigMap's name.
func FromConfigMap[E any, PT Pointer[E]](cm *corev1.ConfigMap) (PT, error) {
	entity := PT(new(E))
	if doc := cm.Data[ConfigKey]; doc != "" {
		if err := yaml.Unmarshal([]byte(doc), entity); err != nil {
			return nil, fmt.Errorf("failed to parse %s of ConfigMap %s/%s: %w", ConfigKey, cm.Namespace, cm.Name, err)
		}
	}
	if entity.GetName() == "" {
		entity.SetName(cm.Name)
	}
	return entity, nil
}

// FromCustomResource converts the spec of u. A missing spec yields an entity
// carrying only the resource name.
func FromCustomResource[E any, PT Pointer[E]](u *unstructured.Unstructured) (PT, error) {
	entity := PT(new(E))
	spec, found, err := unstructured.NestedMap(u.Object, "spec")
	if err != nil {
		return nil, fmt.Errorf("invalid spec of %s %s/%s: %w", u.GetKind(), u.GetNamespace(), u.GetName(), err)
	}
	if found {
		if err := runtime.DefaultUnstructuredConverter.FromUnstructured(spec, entity); err != nil {
			return nil, fmt.Errorf("failed to convert spec of %s %s/%s: %w", u.GetKind(), u.GetNamespace(), u.GetName(), err)
		}
	}
	if entity.GetName() == "" {
		entity.SetName(u.GetName())
	}
	return entity, nil
}
