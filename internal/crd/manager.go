// Package crd looks up and creates the custom resource definitions operators
// watch, and registers their kinds for generic decoding.
package crd

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/sync/singleflight"
	apiextensionsv1 "k8s.io/apiextensions-apiserver/pkg/apis/apiextensions/v1"
	clientset "k8s.io/apiextensions-apiserver/pkg/client/clientset/clientset"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/runtime/schema"
	"k8s.io/utils/ptr"

	"operatorkit/pkg/logging"
)

// ManagedByLabel marks definitions created by this package.
const ManagedByLabel = "app.kubernetes.io/managed-by"

// Manager ensures custom resource definitions exist. Definitions are looked up
// once per group and kind, created when absent and never updated or deleted
// afterwards.
type Manager struct {
	client   clientset.Interface
	scheme   *runtime.Scheme
	platform string

	mu    sync.Mutex
	cache map[schema.GroupKind]*apiextensionsv1.CustomResourceDefinition

	// ensureGroup deduplicates concurrent Ensure calls for the same kind
	ensureGroup singleflight.Group
}

// NewManager creates a manager. platform names the cluster flavour in
// warnings; scheme receives the kinds of ensured definitions and may be nil.
func NewManager(client clientset.Interface, scheme *runtime.Scheme, platform string) *Manager {
	if scheme == nil {
		scheme = runtime.NewScheme()
	}
	if platform == "" {
		platform = "Kubernetes"
	}
	return &Manager{
		client:   client,
		scheme:   scheme,
		platform: platform,
		cache:    make(map[schema.GroupKind]*apiextensionsv1.CustomResourceDefinition),
	}
}

// Scheme returns the scheme that ensured kinds are registered with.
func (m *Manager) Scheme() *runtime.Scheme {
	return m.scheme
}

// Ensure returns the definition of def's kind, creating it when the cluster
// has none. An existing definition is returned unchanged.
//
// If the API server rejects the validation schema, the definition is created
// once more with an open schema. Any other failure is returned.
func (m *Manager) Ensure(ctx context.Context, def Definition) (*apiextensionsv1.CustomResourceDefinition, error) {
	if def.Kind == "" || def.Group == "" {
		return nil, fmt.Errorf("definition needs a kind and a group, got %q and %q", def.Kind, def.Group)
	}

	if cached, ok := m.cached(def.GroupKind()); ok {
		return cached, nil
	}

	result, err, _ := m.ensureGroup.Do(def.GroupKind().String(), func() (interface{}, error) {
		// Double-check the cache after winning the flight.
		if cached, ok := m.cached(def.GroupKind()); ok {
			return cached, nil
		}
		return m.ensure(ctx, def)
	})
	if err != nil {
		return nil, err
	}
	return result.(*apiextensionsv1.CustomResourceDefinition), nil
}

func (m *Manager) cached(gk schema.GroupKind) (*apiextensionsv1.CustomResourceDefinition, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	obj, ok := m.cache[gk]
	return obj, ok
}

func (m *Manager) ensure(ctx context.Context, def Definition) (*apiextensionsv1.CustomResourceDefinition, error) {
	existing, err := m.find(ctx, def)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		logging.Debug("CRDManager", "Custom resource definition %s already present", existing.Name)
		return m.remember(def, existing), nil
	}

	validation, err := ReadSchema(def.Schema, def.Kind)
	if err != nil {
		return nil, err
	}

	created, err := m.create(ctx, Build(def, validation))
	if err != nil && validation != nil && schemaRejected(err) {
		logging.Warn("CRDManager", "Unable to create custom resource definition %s with validation on %s, creating it without: %v",
			def.Name(), m.platform, err)
		created, err = m.create(ctx, Build(def, nil))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create custom resource definition %s: %w", def.Name(), err)
	}

	logging.Info("CRDManager", "Custom resource definition %s created", created.Name)
	return m.remember(def, created), nil
}

// find lists the definitions and returns the one matching kind and group.
func (m *Manager) find(ctx context.Context, def Definition) (*apiextensionsv1.CustomResourceDefinition, error) {
	list, err := m.client.ApiextensionsV1().CustomResourceDefinitions().List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to list custom resource definitions: %w", err)
	}
	for i := range list.Items {
		item := &list.Items[i]
		if item.Spec.Names.Kind == def.Kind && item.Spec.Group == def.Group {
			return item, nil
		}
	}
	return nil, nil
}

func (m *Manager) create(ctx context.Context, obj *apiextensionsv1.CustomResourceDefinition) (*apiextensionsv1.CustomResourceDefinition, error) {
	created, err := m.client.ApiextensionsV1().CustomResourceDefinitions().Create(ctx, obj, metav1.CreateOptions{})
	if apierrors.IsAlreadyExists(err) {
		// Another replica created it in the meantime.
		return m.client.ApiextensionsV1().CustomResourceDefinitions().Get(ctx, obj.Name, metav1.GetOptions{})
	}
	return created, err
}

// remember caches the definition and registers its kind with the scheme.
func (m *Manager) remember(def Definition, obj *apiextensionsv1.CustomResourceDefinition) *apiextensionsv1.CustomResourceDefinition {
	gv := ServedResource(def, obj).GroupVersion()

	m.mu.Lock()
	defer m.mu.Unlock()
	m.scheme.AddKnownTypeWithName(gv.WithKind(def.Kind), &unstructured.Unstructured{})
	m.scheme.AddKnownTypeWithName(gv.WithKind(def.Kind+"List"), &unstructured.UnstructuredList{})
	m.cache[def.GroupKind()] = obj
	return obj
}

func schemaRejected(err error) bool {
	return apierrors.IsInvalid(err) || apierrors.IsBadRequest(err)
}

// StorageVersion returns the stored version of a definition, or "" if none is marked.
func StorageVersion(obj *apiextensionsv1.CustomResourceDefinition) string {
	for _, v := range obj.Spec.Versions {
		if v.Storage {
			return v.Name
		}
	}
	return ""
}

// ServedResource returns the resource the cluster serves for obj. The version
// is the stored one, else the first served one; fields missing from obj fall
// back to def.
func ServedResource(def Definition, obj *apiextensionsv1.CustomResourceDefinition) schema.GroupVersionResource {
	gvr := def.GroupVersionResource()
	if obj == nil {
		return gvr
	}
	if obj.Spec.Group != "" {
		gvr.Group = obj.Spec.Group
	}
	if obj.Spec.Names.Plural != "" {
		gvr.Resource = obj.Spec.Names.Plural
	}
	if v := StorageVersion(obj); v != "" {
		gvr.Version = v
		return gvr
	}
	for _, v := range obj.Spec.Versions {
		if v.Served {
			gvr.Version = v.Name
			break
		}
	}
	return gvr
}

// Build assembles the namespaced definition for def. A nil validation yields
// an open schema that keeps unknown fields.
func Build(def Definition, validation *apiextensionsv1.JSONSchemaProps) *apiextensionsv1.CustomResourceDefinition {
	root := apiextensionsv1.JSONSchemaProps{
		Type:                   "object",
		XPreserveUnknownFields: ptr.To(true),
	}
	if validation != nil {
		root = apiextensionsv1.JSONSchemaProps{
			Type: "object",
			Properties: map[string]apiextensionsv1.JSONSchemaProps{
				"spec": *validation,
				"status": {
					Type:                   "object",
					XPreserveUnknownFields: ptr.To(true),
				},
			},
		}
	}

	return &apiextensionsv1.CustomResourceDefinition{
		ObjectMeta: metav1.ObjectMeta{
			Name:   def.Name(),
			Labels: map[string]string{ManagedByLabel: "operatorkit"},
		},
		Spec: apiextensionsv1.CustomResourceDefinitionSpec{
			Group: def.Group,
			Scope: apiextensionsv1.NamespaceScoped,
			Names: apiextensionsv1.CustomResourceDefinitionNames{
				Plural:     def.PluralName(),
				Singular:   strings.ToLower(def.Kind),
				Kind:       def.Kind,
				ListKind:   def.Kind + "List",
				ShortNames: def.LowerShortNames(),
			},
			Versions: []apiextensionsv1.CustomResourceDefinitionVersion{{
				Name:    def.VersionName(),
				Served:  true,
				Storage: true,
				Schema: &apiextensionsv1.CustomResourceValidation{
					OpenAPIV3Schema: &root,
				},
			}},
		},
	}
}
