// Package kube builds the Kubernetes clients shared by every operator and
// detects which Kubernetes distribution the process is talking to.
package kube

import (
	"fmt"

	apiextensionsclient "k8s.io/apiextensions-apiserver/pkg/client/clientset/clientset"
	"k8s.io/apimachinery/pkg/runtime"
	utilruntime "k8s.io/apimachinery/pkg/util/runtime"
	"k8s.io/client-go/discovery"
	"k8s.io/client-go/dynamic"
	"k8s.io/client-go/kubernetes"
	clientgoscheme "k8s.io/client-go/kubernetes/scheme"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/client"
)

// DefaultNamespace is used when neither the kubeconfig nor the pod environment
// name a namespace.
const DefaultNamespace = "default"

// Clients bundles the typed, dynamic, extensions and discovery clients built
// from one REST config.
type Clients struct {
	Config *rest.Config

	// Namespace is the namespace of the client context, used to resolve the
	// current namespace scope.
	Namespace string

	Core       kubernetes.Interface
	Dynamic    dynamic.Interface
	Extensions apiextensionsclient.Interface
	Discovery  discovery.DiscoveryInterface

	// Scheme backs Client. Custom resource kinds are registered in it once
	// their definitions are ensured.
	Scheme *runtime.Scheme

	// Client is a controller-runtime client for typed writes from handlers.
	Client client.Client
}

// LoadConfig resolves the REST config and the current namespace.
//
// An explicit kubeconfig path is loaded with clientcmd. Without one, the
// controller-runtime lookup applies (--kubeconfig flag, KUBECONFIG, in-cluster,
// ~/.kube/config). The namespace comes from the kubeconfig context or, in
// cluster, from the service account.
func LoadConfig(kubeconfig string) (*rest.Config, string, error) {
	loadingRules := clientcmd.NewDefaultClientConfigLoadingRules()
	if kubeconfig != "" {
		loadingRules.ExplicitPath = kubeconfig
	}
	clientConfig := clientcmd.NewNonInteractiveDeferredLoadingClientConfig(loadingRules, &clientcmd.ConfigOverrides{})

	var (
		restConfig *rest.Config
		err        error
	)
	if kubeconfig != "" {
		restConfig, err = clientConfig.ClientConfig()
	} else {
		restConfig, err = ctrl.GetConfig()
	}
	if err != nil {
		return nil, "", fmt.Errorf("failed to load Kubernetes config: %w", err)
	}

	namespace, _, err := clientConfig.Namespace()
	if err != nil || namespace == "" {
		namespace = DefaultNamespace
	}
	return restConfig, namespace, nil
}

// NewClients creates every client from restConfig.
func NewClients(restConfig *rest.Config, namespace string) (*Clients, error) {
	core, err := kubernetes.NewForConfig(restConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create kubernetes client: %w", err)
	}

	dyn, err := dynamic.NewForConfig(restConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create dynamic client: %w", err)
	}

	extensions, err := apiextensionsclient.NewForConfig(restConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create apiextensions client: %w", err)
	}

	disc, err := discovery.NewDiscoveryClientForConfig(restConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create discovery client: %w", err)
	}

	scheme := NewScheme()
	ctrlClient, err := client.New(restConfig, client.Options{Scheme: scheme})
	if err != nil {
		return nil, fmt.Errorf("failed to create controller-runtime client: %w", err)
	}

	if namespace == "" {
		namespace = DefaultNamespace
	}

	return &Clients{
		Config:     restConfig,
		Namespace:  namespace,
		Core:       core,
		Dynamic:    dyn,
		Extensions: extensions,
		Discovery:  disc,
		Scheme:     scheme,
		Client:     ctrlClient,
	}, nil
}

// SharedScheme returns the scheme custom resource kinds are registered in:
// Scheme when set, else the scheme of Client, else a new one.
func (c *Clients) SharedScheme() *runtime.Scheme {
	switch {
	case c.Scheme != nil:
		return c.Scheme
	case c.Client != nil && c.Client.Scheme() != nil:
		return c.Client.Scheme()
	default:
		return NewScheme()
	}
}

// NewScheme returns a scheme with the built-in Kubernetes types.
func NewScheme() *runtime.Scheme {
	scheme := runtime.NewScheme()
	utilruntime.Must(clientgoscheme.AddToScheme(scheme))
	return scheme
}
