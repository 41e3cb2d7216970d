package operator

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/labels"
)

// NamespaceScope selects the namespaces an operator watches.
//
// It is either a concrete namespace name or one of the sentinels CurrentNamespace
// and AllNamespaces.
type NamespaceScope string

const (
	// CurrentNamespace resolves to the namespace of the client configuration
	// (the pod's namespace when running in-cluster).
	CurrentNamespace NamespaceScope = "~"

	// AllNamespaces watches every namespace; dispatched callbacks receive the
	// namespace embedded in each resource.
	AllNamespaces NamespaceScope = "*"
)

// IsAll reports whether the scope covers all namespaces.
func (s NamespaceScope) IsAll() bool {
	return s == AllNamespaces
}

// Resolve replaces CurrentNamespace with the given namespace.
func (s NamespaceScope) Resolve(current string) NamespaceScope {
	if s == CurrentNamespace || s == "" {
		return NamespaceScope(current)
	}
	return s
}

// ListNamespace returns the namespace argument for list and watch calls.
func (s NamespaceScope) ListNamespace() string {
	if s.IsAll() {
		return metav1.NamespaceAll
	}
	return string(s)
}

// String returns a display string for logs.
func (s NamespaceScope) String() string {
	switch s {
	case AllNamespaces:
		return "all namespaces"
	case CurrentNamespace:
		return "current namespace"
	}
	return string(s)
}

// Shape identifies the raw resource representation an operator watches.
type Shape string

const (
	// ShapeConfigMap watches label-selected ConfigMaps.
	ShapeConfigMap Shape = "ConfigMap"

	// ShapeCustomResource watches custom resources of a registered CRD.
	ShapeCustomResource Shape = "CustomResource"
)

// PrefixSeparator terminates the API group prefix of a Descriptor.
const PrefixSeparator = "/"

// KindLabelSuffix is appended to the prefix to form the label key that selects
// ConfigMaps of a kind, e.g. "operatorkit.io/kind=greeting".
const KindLabelSuffix = "kind"

// ErrInvalidDescriptor is wrapped by every ValidationError.
var ErrInvalidDescriptor = errors.New("invalid operator descriptor")

// Descriptor is the per-kind configuration value handed to New.
type Descriptor struct {
	// Kind is the entity kind, e.g. "Cluster". Required.
	Kind string

	// Prefix is the API group followed by "/", e.g. "operatorkit.io/". Required.
	Prefix string

	// CRD selects the custom resource shape instead of label-selected ConfigMaps.
	CRD bool

	// Enabled marks the operator for startup. Disabled operators are skipped by the bootstrap.
	Enabled bool

	// Namespace is the watched namespace scope.
	Namespace NamespaceScope

	// ShortNames are registered with the CRD (lowercased).
	ShortNames []string

	// Plural overrides the CRD plural name; defaults to lowercase(Kind)+"s".
	Plural string

	// Version is the served CRD version; defaults to "v1".
	Version string

	// Schema holds the optional JSON schema documents for the CRD, looked up by
	// "<kind with lowercase first letter>.json".
	Schema fs.FS

	// Labels adds label requirements to the ConfigMap selector.
	Labels map[string]string
}

// EntityName returns the lowercased kind used in labels and log messages.
func (d Descriptor) EntityName() string {
	return strings.ToLower(d.Kind)
}

// Name returns the display name of the operator, e.g. "'cluster' operator".
func (d Descriptor) Name() string {
	return "'" + d.EntityName() + "' operator"
}

// Group returns the API group, i.e. the prefix without its trailing separator.
func (d Descriptor) Group() string {
	return strings.TrimSuffix(d.Prefix, PrefixSeparator)
}

// Shape returns the resource shape selected by the CRD flag.
func (d Descriptor) Shape() Shape {
	if d.CRD {
		return ShapeCustomResource
	}
	return ShapeConfigMap
}

// LabelSelector returns the selector for ConfigMaps of this kind.
func (d Descriptor) LabelSelector() labels.Selector {
	set := labels.Set{}
	for k, v := range d.Labels {
		set[k] = v
	}
	set[d.Prefix+KindLabelSuffix] = d.EntityName()
	return labels.SelectorFromSet(set)
}

// ValidationError lists every failed integrity check of a Descriptor.
type ValidationError struct {
	Operator string
	Problems []string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Operator, strings.Join(e.Problems, "; "))
}

// Unwrap makes errors.Is(err, ErrInvalidDescriptor) hold.
func (e *ValidationError) Unwrap() error {
	return ErrInvalidDescriptor
}

// Validate runs the startup integrity checks.
//
// The kind must be set, the prefix must be set and end with PrefixSeparator,
// and the derived display name must end with "operator".
func (d Descriptor) Validate() error {
	var problems []string
	if d.Kind == "" {
		problems = append(problems, "kind is empty")
	}
	if d.Prefix == "" {
		problems = append(problems, "prefix is empty")
	} else if !strings.HasSuffix(d.Prefix, PrefixSeparator) {
		problems = append(problems, fmt.Sprintf("prefix %q does not end with %q", d.Prefix, PrefixSeparator))
	}
	if !strings.HasSuffix(d.Name(), "operator") {
		problems = append(problems, fmt.Sprintf("operator name %q does not end with \"operator\"", d.Name()))
	}
	if len(problems) == 0 {
		return nil
	}
	return &ValidationError{Operator: d.Name(), Problems: problems}
}
