package operator

import (
	"context"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/labels"
	"k8s.io/apimachinery/pkg/runtime/schema"
	"k8s.io/apimachinery/pkg/watch"
	"k8s.io/client-go/dynamic"
	"k8s.io/client-go/kubernetes"
	"sigs.k8s.io/controller-runtime/pkg/client"
)

// Source lists and watches the raw resources of one operator.
type Source interface {
	// Shape returns the resource representation delivered by the source.
	Shape() Shape

	// Resource names the watched resource for logs and metrics.
	Resource() string

	// Watch opens a new event stream for the namespace ("" means all namespaces).
	Watch(ctx context.Context, namespace string) (watch.Interface, error)

	// List returns the current resources in the namespace ("" means all namespaces).
	List(ctx context.Context, namespace string) ([]client.Object, error)
}

// ConfigMapSource serves label-selected ConfigMaps.
type ConfigMapSource struct {
	client   kubernetes.Interface
	selector labels.Selector
}

// NewConfigMapSource creates a source for ConfigMaps matching the selector.
func NewConfigMapSource(c kubernetes.Interface, selector labels.Selector) *ConfigMapSource {
	if selector == nil {
		selector = labels.Everything()
	}
	return &ConfigMapSource{client: c, selector: selector}
}

// Shape implements Source.
func (s *ConfigMapSource) Shape() Shape { return ShapeConfigMap }

// Resource implements Source.
func (s *ConfigMapSource) Resource() string {
	return "configmaps{" + s.selector.String() + "}"
}

// Watch implements Source.
func (s *ConfigMapSource) Watch(ctx context.Context, namespace string) (watch.Interface, error) {
	return s.client.CoreV1().ConfigMaps(namespace).Watch(ctx, metav1.ListOptions{
		LabelSelector: s.selector.String(),
	})
}

// List implements Source.
func (s *ConfigMapSource) List(ctx context.Context, namespace string) ([]client.Object, error) {
	list, err := s.client.CoreV1().ConfigMaps(namespace).List(ctx, metav1.ListOptions{
		LabelSelector: s.selector.String(),
	})
	if err != nil {
		return nil, err
	}
	out := make([]client.Object, 0, len(list.Items))
	for i := range list.Items {
		out = append(out, &list.Items[i])
	}
	return out, nil
}

// CustomResourceSource serves custom resources through the dynamic client.
type CustomResourceSource struct {
	client dynamic.Interface
	gvr    schema.GroupVersionResource
}

// NewCustomResourceSource creates a source for the given resource.
func NewCustomResourceSource(c dynamic.Interface, gvr schema.GroupVersionResource) *CustomResourceSource {
	return &CustomResourceSource{client: c, gvr: gvr}
}

// Shape implements Source.
func (s *CustomResourceSource) Shape() Shape { return ShapeCustomResource }

// Resource implements Source.
func (s *CustomResourceSource) Resource() string {
	return s.gvr.GroupResource().String()
}

// Watch implements Source.
func (s *CustomResourceSource) Watch(ctx context.Context, namespace string) (watch.Interface, error) {
	return s.client.Resource(s.gvr).Namespace(namespace).Watch(ctx, metav1.ListOptions{})
}

// List implements Source.
func (s *CustomResourceSource) List(ctx context.Context, namespace string) ([]client.Object, error) {
	list, err := s.client.Resource(s.gvr).Namespace(namespace).List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, err
	}
	out := make([]client.Object, 0, len(list.Items))
	for i := range list.Items {
		out = append(out, &list.Items[i])
	}
	return out, nil
}
