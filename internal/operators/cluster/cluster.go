// Package cluster is the Cluster custom resource operator.
//
// Every Cluster resource is provisioned as a ConfigMap named <name>-cluster in
// the resource's namespace. The periodic full reconciliation re-provisions all
// clusters and removes ConfigMaps whose Cluster no longer exists.
package cluster

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"strconv"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/types"
	utilerrors "k8s.io/apimachinery/pkg/util/errors"
	"k8s.io/apimachinery/pkg/util/sets"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/controller/controllerutil"

	"operatorkit/internal/convert"
	"operatorkit/internal/operator"
	"operatorkit/internal/registry"
	v1 "operatorkit/pkg/apis/operatorkit/v1"
	"operatorkit/pkg/logging"
)

const (
	// NameLabel carries the cluster name on provisioned ConfigMaps.
	NameLabel = "operatorkit.io/cluster"

	// PausedAnnotation set to "true" makes the operator ignore a Cluster.
	PausedAnnotation = "operatorkit.io/paused"

	// Suffix is appended to the cluster name to form the ConfigMap name.
	Suffix = "-cluster"

	DefaultImage = "quay.io/operatorkit/worker:latest"
)

//go:embed schema/*.json
var schemaFiles embed.FS

// Schema returns the validation schemas of the kind.
func Schema() fs.FS {
	sub, err := fs.Sub(schemaFiles, "schema")
	if err != nil {
		panic(err)
	}
	return sub
}

// Descriptor describes the Cluster operator for one namespace scope.
func Descriptor(namespace operator.NamespaceScope) operator.Descriptor {
	return operator.Descriptor{
		Kind:       v1.ClusterKind,
		Prefix:     v1.GroupPrefix,
		CRD:        true,
		Enabled:    true,
		Namespace:  namespace,
		ShortNames: []string{"cl"},
		Schema:     Schema(),
	}
}

// Entry registers the kind.
func Entry() registry.Entry {
	return registry.Entry{
		Kind:        v1.ClusterKind,
		Description: "Provisions a ConfigMap for every Cluster resource",
		CRD:         true,
		Factory:     New,
	}
}

// New is the registry factory.
func New(rt operator.Runtime, settings registry.Settings) operator.Runnable {
	return operator.New(operator.Options[*v1.Cluster]{
		Descriptor: Descriptor(settings.Namespace),
		Handler:    NewHandler(settings.Client),
		Convert:    convert.FromObject[v1.Cluster],
	}, rt)
}

// Handler provisions the ConfigMaps of Cluster resources.
type Handler struct {
	client client.Client
}

// NewHandler creates a handler writing through c.
func NewHandler(c client.Client) *Handler {
	return &Handler{client: c}
}

// ConfigMapName returns the name of the ConfigMap provisioned for a cluster.
func ConfigMapName(cluster string) string {
	return cluster + Suffix
}

// OnInit checks that a client is available.
func (h *Handler) OnInit(context.Context) error {
	if h.client == nil {
		return fmt.Errorf("cluster operator needs a Kubernetes client")
	}
	return nil
}

// IsSupported rejects paused clusters.
func (h *Handler) IsSupported(obj client.Object) bool {
	return obj.GetAnnotations()[PausedAnnotation] != "true"
}

// OnAdd provisions the cluster.
func (h *Handler) OnAdd(ctx context.Context, c *v1.Cluster, namespace string) error {
	return h.provision(ctx, c, namespace)
}

// OnModify re-provisions the cluster in place.
func (h *Handler) OnModify(ctx context.Context, c *v1.Cluster, namespace string) error {
	return h.provision(ctx, c, namespace)
}

// OnDelete removes the provisioned ConfigMap.
func (h *Handler) OnDelete(ctx context.Context, c *v1.Cluster, namespace string) error {
	return h.deprovision(ctx, types.NamespacedName{Namespace: namespace, Name: c.Name})
}

// FullReconciliation provisions every desired cluster and removes ConfigMaps
// without a matching Cluster. Paused clusters keep their ConfigMap untouched.
func (h *Handler) FullReconciliation(ctx context.Context, op *operator.Operator[*v1.Cluster]) error {
	desired, err := op.DesiredSet(ctx)
	if err != nil {
		return err
	}
	existing, err := op.ExistingKeys(ctx)
	if err != nil {
		return err
	}

	opts := []client.ListOption{client.HasLabels{NameLabel}}
	if ns := op.Namespace().ListNamespace(); ns != "" {
		opts = append(opts, client.InNamespace(ns))
	}
	var provisioned corev1.ConfigMapList
	if err := h.client.List(ctx, &provisioned, opts...); err != nil {
		return fmt.Errorf("failed to list provisioned clusters: %w", err)
	}

	actual := sets.New[types.NamespacedName]()
	for i := range provisioned.Items {
		cm := &provisioned.Items[i]
		actual.Insert(types.NamespacedName{Namespace: cm.Namespace, Name: cm.Labels[NameLabel]})
	}
	wanted := desired.KeySet()
	missing := wanted.Difference(actual)
	orphans := actual.Difference(existing)

	var errs []error
	for _, key := range desired.Keys() {
		c, _ := desired.Get(key.Namespace, key.Name)
		if err := h.provision(ctx, c, key.Namespace); err != nil {
			errs = append(errs, err)
		}
	}
	for key := range orphans {
		if err := h.deprovision(ctx, key); err != nil {
			errs = append(errs, err)
		}
	}

	logging.Info("Operator", "Cluster reconciliation: %d desired, %d missing, %d orphaned", len(desired), missing.Len(), orphans.Len())
	return utilerrors.NewAggregate(errs)
}

func (h *Handler) provision(ctx context.Context, c *v1.Cluster, namespace string) error {
	if c.Workers < 0 {
		return fmt.Errorf("cluster %s/%s: workers must not be negative, got %d", namespace, c.Name, c.Workers)
	}
	image := c.Image
	if image == "" {
		image = DefaultImage
	}

	cm := &corev1.ConfigMap{ObjectMeta: metav1.ObjectMeta{Namespace: namespace, Name: ConfigMapName(c.Name)}}
	result, err := controllerutil.CreateOrUpdate(ctx, h.client, cm, func() error {
		labels := make(map[string]string, len(c.Labels)+2)
		for k, v := range c.Labels {
			labels[k] = v
		}
		labels[NameLabel] = c.Name
		labels["app.kubernetes.io/managed-by"] = "operatorkit"
		cm.Labels = labels
		cm.Data = map[string]string{
			"workers": strconv.Itoa(c.Workers),
			"image":   image,
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to provision cluster %s/%s: %w", namespace, c.Name, err)
	}
	if result != controllerutil.OperationResultNone {
		logging.Info("Operator", "Cluster %s/%s %s with %d workers", namespace, c.Name, result, c.Workers)
	}
	return nil
}

func (h *Handler) deprovision(ctx context.Context, key types.NamespacedName) error {
	cm := &corev1.ConfigMap{ObjectMeta: metav1.ObjectMeta{Namespace: key.Namespace, Name: ConfigMapName(key.Name)}}
	if err := client.IgnoreNotFound(h.client.Delete(ctx, cm)); err != nil {
		return fmt.Errorf("failed to delete cluster %s: %w", key, err)
	}
	logging.Info("Operator", "Cluster %s deleted", key)
	return nil
}
