package cluster

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/runtime/schema"
	"k8s.io/apimachinery/pkg/types"
	dynamicfake "k8s.io/client-go/dynamic/fake"
	clientgoscheme "k8s.io/client-go/kubernetes/scheme"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/client/fake"

	"operatorkit/internal/convert"
	"operatorkit/internal/crd"
	"operatorkit/internal/operator"
	v1 "operatorkit/pkg/apis/operatorkit/v1"
)

var (
	_ operator.Handler[*v1.Cluster]    = (*Handler)(nil)
	_ operator.Modifier[*v1.Cluster]   = (*Handler)(nil)
	_ operator.Reconciler[*v1.Cluster] = (*Handler)(nil)
	_ operator.Supporter               = (*Handler)(nil)
	_ operator.Initializer             = (*Handler)(nil)
)

func newClient(objs ...client.Object) client.Client {
	return fake.NewClientBuilder().WithScheme(clientgoscheme.Scheme).WithObjects(objs...).Build()
}

func getConfigMap(t *testing.T, c client.Client, namespace, name string) *corev1.ConfigMap {
	t.Helper()
	cm := &corev1.ConfigMap{}
	require.NoError(t, c.Get(context.Background(), types.NamespacedName{Namespace: namespace, Name: name}, cm))
	return cm
}

func TestHandler_ProvisionLifecycle(t *testing.T) {
	c := newClient()
	h := NewHandler(c)
	ctx := context.Background()

	require.NoError(t, h.OnAdd(ctx, &v1.Cluster{Name: "analytics", Workers: 2, Labels: map[string]string{"team": "data"}}, "team-a"))

	cm := getConfigMap(t, c, "team-a", "analytics-cluster")
	assert.Equal(t, "2", cm.Data["workers"])
	assert.Equal(t, DefaultImage, cm.Data["image"])
	assert.Equal(t, "analytics", cm.Labels[NameLabel])
	assert.Equal(t, "data", cm.Labels["team"])

	require.NoError(t, h.OnModify(ctx, &v1.Cluster{Name: "analytics", Workers: 5, Image: "worker:2"}, "team-a"))
	cm = getConfigMap(t, c, "team-a", "analytics-cluster")
	assert.Equal(t, "5", cm.Data["workers"])
	assert.Equal(t, "worker:2", cm.Data["image"])
	assert.NotContains(t, cm.Labels, "team")

	require.NoError(t, h.OnDelete(ctx, &v1.Cluster{Name: "analytics"}, "team-a"))
	err := c.Get(ctx, types.NamespacedName{Namespace: "team-a", Name: "analytics-cluster"}, &corev1.ConfigMap{})
	assert.True(t, apierrors.IsNotFound(err))

	// Deleting again is not an error.
	assert.NoError(t, h.OnDelete(ctx, &v1.Cluster{Name: "analytics"}, "team-a"))
}

func TestHandler_RejectsNegativeWorkers(t *testing.T) {
	h := NewHandler(newClient())
	err := h.OnAdd(context.Background(), &v1.Cluster{Name: "broken", Workers: -1}, "team-a")
	assert.ErrorContains(t, err, "must not be negative")
}

func TestHandler_IsSupported(t *testing.T) {
	h := NewHandler(nil)

	paused := &unstructured.Unstructured{}
	paused.SetAnnotations(map[string]string{PausedAnnotation: "true"})
	assert.False(t, h.IsSupported(paused))
	assert.True(t, h.IsSupported(&unstructured.Unstructured{}))

	assert.Error(t, h.OnInit(context.Background()), "a client is required")
}

func clusterResource(namespace, name string, workers int64) *unstructured.Unstructured {
	u := &unstructured.Unstructured{}
	u.SetAPIVersion("operatorkit.io/v1")
	u.SetKind("Cluster")
	u.SetNamespace(namespace)
	u.SetName(name)
	_ = unstructured.SetNestedField(u.Object, workers, "spec", "workers")
	return u
}

func TestHandler_FullReconciliation(t *testing.T) {
	gvr := schema.GroupVersionResource{Group: "operatorkit.io", Version: "v1", Resource: "clusters"}
	dyn := dynamicfake.NewSimpleDynamicClientWithCustomListKinds(runtime.NewScheme(),
		map[schema.GroupVersionResource]string{gvr: "ClusterList"},
		clusterResource("team-a", "analytics", 3),
		clusterResource("team-b", "billing", 1),
	)

	orphan := &corev1.ConfigMap{ObjectMeta: metav1.ObjectMeta{
		Namespace: "team-a",
		Name:      "legacy-cluster",
		Labels:    map[string]string{NameLabel: "legacy"},
	}}
	unrelated := &corev1.ConfigMap{ObjectMeta: metav1.ObjectMeta{Namespace: "team-a", Name: "settings"}}
	c := newClient(orphan, unrelated)
	h := NewHandler(c)

	op := operator.New(operator.Options[*v1.Cluster]{
		Descriptor: Descriptor(operator.AllNamespaces),
		Handler:    h,
		Convert:    convert.FromObject[v1.Cluster],
	}, operator.Runtime{Dynamic: dyn})

	require.NoError(t, op.FullReconciliation(context.Background()))

	assert.Equal(t, "3", getConfigMap(t, c, "team-a", "analytics-cluster").Data["workers"])
	assert.Equal(t, "1", getConfigMap(t, c, "team-b", "billing-cluster").Data["workers"])

	err := c.Get(context.Background(), types.NamespacedName{Namespace: "team-a", Name: "legacy-cluster"}, &corev1.ConfigMap{})
	assert.True(t, apierrors.IsNotFound(err), "orphaned ConfigMap is removed")
	getConfigMap(t, c, "team-a", "settings")
}

func TestHandler_FullReconciliationKeepsPausedClusters(t *testing.T) {
	gvr := schema.GroupVersionResource{Group: "operatorkit.io", Version: "v1", Resource: "clusters"}
	paused := clusterResource("team-a", "frozen", 2)
	paused.SetAnnotations(map[string]string{PausedAnnotation: "true"})
	dyn := dynamicfake.NewSimpleDynamicClientWithCustomListKinds(runtime.NewScheme(),
		map[schema.GroupVersionResource]string{gvr: "ClusterList"}, paused)

	provisioned := &corev1.ConfigMap{
		ObjectMeta: metav1.ObjectMeta{
			Namespace: "team-a",
			Name:      "frozen-cluster",
			Labels:    map[string]string{NameLabel: "frozen"},
		},
		Data: map[string]string{"workers": "5"},
	}
	c := newClient(provisioned)

	op := operator.New(operator.Options[*v1.Cluster]{
		Descriptor: Descriptor(operator.AllNamespaces),
		Handler:    NewHandler(c),
		Convert:    convert.FromObject[v1.Cluster],
	}, operator.Runtime{Dynamic: dyn})

	require.NoError(t, op.FullReconciliation(context.Background()))

	cm := getConfigMap(t, c, "team-a", "frozen-cluster")
	assert.Equal(t, "5", cm.Data["workers"], "a paused cluster is neither updated nor removed")
}

func TestDescriptor(t *testing.T) {
	d := Descriptor("team-a")
	require.NoError(t, d.Validate())
	assert.True(t, d.CRD)
	assert.Equal(t, "operatorkit.io", d.Group())

	validation, err := crd.ReadSchema(d.Schema, d.Kind)
	require.NoError(t, err)
	require.NotNil(t, validation)
	assert.Contains(t, validation.Properties, "workers")
}
