package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	apiextensionsfake "k8s.io/apiextensions-apiserver/pkg/client/clientset/clientset/fake"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/runtime/schema"
	dynamicfake "k8s.io/client-go/dynamic/fake"
	k8sfake "k8s.io/client-go/kubernetes/fake"
	clienttesting "k8s.io/client-go/testing"
	ctrlfake "sigs.k8s.io/controller-runtime/pkg/client/fake"

	"operatorkit/internal/config"
	"operatorkit/internal/convert"
	"operatorkit/internal/kube"
	"operatorkit/internal/operator"
	"operatorkit/internal/operators"
	"operatorkit/internal/operators/greeting"
	"operatorkit/internal/registry"
	v1 "operatorkit/pkg/apis/operatorkit/v1"
)

const testTimeout = 5 * time.Second

type fakeCluster struct {
	clients    *kube.Clients
	extensions *apiextensionsfake.Clientset
}

func newFakeCluster() fakeCluster {
	core := k8sfake.NewSimpleClientset()
	extensions := apiextensionsfake.NewSimpleClientset()
	dyn := dynamicfake.NewSimpleDynamicClientWithCustomListKinds(runtime.NewScheme(), map[schema.GroupVersionResource]string{
		{Group: "operatorkit.io", Version: "v1", Resource: "clusters"}:  "ClusterList",
		{Group: "operatorkit.io", Version: "v1", Resource: "greetings"}: "GreetingList",
	})
	scheme := kube.NewScheme()
	return fakeCluster{
		extensions: extensions,
		clients: &kube.Clients{
			Namespace:  "ops",
			Core:       core,
			Dynamic:    dyn,
			Extensions: extensions,
			Discovery:  core.Discovery(),
			Scheme:     scheme,
			Client:     ctrlfake.NewClientBuilder().WithScheme(scheme).Build(),
		},
	}
}

func builtinRegistry(t *testing.T) *registry.Registry {
	t.Helper()
	r := registry.New()
	require.NoError(t, operators.RegisterAll(r))
	return r
}

func runInBackground(t *testing.T, a *Application) (context.CancelFunc, <-chan error) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()
	t.Cleanup(cancel)
	return cancel, done
}

func waitReady(t *testing.T, a *Application, done <-chan error) {
	t.Helper()
	select {
	case <-a.Ready():
	case err := <-done:
		t.Fatalf("run ended before ready: %v", err)
	case <-time.After(testTimeout):
		t.Fatal("timed out waiting for the application")
	}
}

func waitDone(t *testing.T, done <-chan error) error {
	t.Helper()
	select {
	case err := <-done:
		return err
	case <-time.After(testTimeout):
		t.Fatal("timed out waiting for run to return")
		return nil
	}
}

func TestNewApplication_Validation(t *testing.T) {
	_, err := NewApplication(config.Default(), Options{})
	assert.Error(t, err, "a registry is required")

	cfg := config.Default()
	cfg.Reconciliation.Interval = 0
	_, err = NewApplication(cfg, Options{Registry: registry.New()})
	assert.ErrorContains(t, err, "invalid configuration")

	a, err := NewApplication(config.Default(), Options{Registry: registry.New()})
	require.NoError(t, err)
	assert.NotEmpty(t, a.RunID())
}

func TestApplication_RunsBuiltinOperators(t *testing.T) {
	fc := newFakeCluster()
	a, err := NewApplication(config.Default(), Options{Registry: builtinRegistry(t), Clients: fc.clients, Version: "test"})
	require.NoError(t, err)

	cancel, done := runInBackground(t, a)
	waitReady(t, a, done)

	ops := a.Operators()
	require.Len(t, ops, 2)
	for _, op := range ops {
		assert.Equal(t, operator.NamespaceScope("ops"), op.Namespace())
	}

	_, err = fc.extensions.ApiextensionsV1().CustomResourceDefinitions().Get(context.Background(), "clusters.operatorkit.io", metav1.GetOptions{})
	assert.NoError(t, err, "the Cluster definition is created")
	_, err = fc.extensions.ApiextensionsV1().CustomResourceDefinitions().Get(context.Background(), "greetings.operatorkit.io", metav1.GetOptions{})
	assert.True(t, apierrors.IsNotFound(err), "greetings use ConfigMaps")

	assert.Len(t, a.Statuses(), 2)

	gv := schema.GroupVersion{Group: "operatorkit.io", Version: "v1"}
	assert.True(t, fc.clients.Client.Scheme().Recognizes(gv.WithKind(v1.ClusterKind)), "the handler client decodes Clusters")
	assert.True(t, fc.clients.Client.Scheme().Recognizes(gv.WithKind(v1.ClusterKind+"List")))

	cancel()
	assert.NoError(t, waitDone(t, done))
}

func TestApplication_ForcedCRDModeAndDisabledKinds(t *testing.T) {
	fc := newFakeCluster()
	cfg := config.Default()
	cfg.CRD = true
	cfg.DisabledOperators = []string{v1.ClusterKind}

	a, err := NewApplication(cfg, Options{Registry: builtinRegistry(t), Clients: fc.clients})
	require.NoError(t, err)

	cancel, done := runInBackground(t, a)
	waitReady(t, a, done)

	ops := a.Operators()
	require.Len(t, ops, 1)
	assert.Equal(t, v1.GreetingKind, ops[0].Kind())

	_, err = fc.extensions.ApiextensionsV1().CustomResourceDefinitions().Get(context.Background(), "greetings.operatorkit.io", metav1.GetOptions{})
	assert.NoError(t, err)

	cancel()
	assert.NoError(t, waitDone(t, done))
}

func TestApplication_SkipsInvalidOperators(t *testing.T) {
	fc := newFakeCluster()
	r := builtinRegistry(t)
	require.NoError(t, r.Register(registry.Entry{
		Kind: "Broken",
		Factory: func(rt operator.Runtime, s registry.Settings) operator.Runnable {
			return operator.New(operator.Options[*v1.Greeting]{
				Descriptor: operator.Descriptor{Kind: "Broken", Prefix: "operatorkit.io", Enabled: true, Namespace: s.Namespace},
				Handler:    greeting.NewHandler(),
				Convert:    convert.FromObject[v1.Greeting],
			}, rt)
		},
	}))

	a, err := NewApplication(config.Default(), Options{Registry: r, Clients: fc.clients})
	require.NoError(t, err)

	cancel, done := runInBackground(t, a)
	waitReady(t, a, done)
	assert.Len(t, a.Operators(), 2)

	cancel()
	assert.NoError(t, waitDone(t, done))
}

func TestApplication_DefinitionFailureFailsRun(t *testing.T) {
	fc := newFakeCluster()
	fc.extensions.PrependReactor("create", "customresourcedefinitions", func(clienttesting.Action) (bool, runtime.Object, error) {
		return true, nil, apierrors.NewForbidden(schema.GroupResource{Resource: "customresourcedefinitions"}, "clusters.operatorkit.io", errors.New("denied"))
	})

	a, err := NewApplication(config.Default(), Options{Registry: builtinRegistry(t), Clients: fc.clients})
	require.NoError(t, err)

	_, done := runInBackground(t, a)
	err = waitDone(t, done)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "'cluster' operator")
	assert.Empty(t, a.Operators())
}
