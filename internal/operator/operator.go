package operator

import (
	"context"
	"errors"
	"fmt"
	"time"

	apiextensionsv1 "k8s.io/apiextensions-apiserver/pkg/apis/apiextensions/v1"
	"k8s.io/apimachinery/pkg/types"
	"k8s.io/apimachinery/pkg/util/sets"
	"k8s.io/client-go/dynamic"
	"k8s.io/client-go/kubernetes"
	"sigs.k8s.io/controller-runtime/pkg/client"

	"operatorkit/internal/crd"
	"operatorkit/pkg/logging"
)

// DefinitionEnsurer makes sure a custom resource definition exists.
type DefinitionEnsurer interface {
	Ensure(ctx context.Context, def crd.Definition) (*apiextensionsv1.CustomResourceDefinition, error)
}

// Runtime carries the shared collaborators of every operator in the process.
type Runtime struct {
	Core    kubernetes.Interface
	Dynamic dynamic.Interface
	CRDs    DefinitionEnsurer

	// CurrentNamespace replaces the CurrentNamespace scope.
	CurrentNamespace string

	Executor    Executor
	Recorder    Recorder
	Resubscribe ResubscribePolicy

	// OperationTimeout bounds list calls made by DesiredSet. Zero means no timeout.
	OperationTimeout time.Duration
}

// Options configures one operator.
type Options[T Entity] struct {
	Descriptor Descriptor
	Handler    Handler[T]
	Convert    ConvertFunc[T]
}

// StartResult reports the outcome of Start.
type StartResult struct {
	// Skipped is set when the operator failed its integrity checks. Err then
	// wraps ErrSkipped and ErrInvalidDescriptor.
	Skipped bool
	Err     error
}

// Runnable is the kind-independent view of an Operator used by the bootstrap
// and the reconciliation scheduler.
type Runnable interface {
	Name() string
	Kind() string
	Namespace() NamespaceScope
	Enabled() bool
	Start(ctx context.Context) <-chan StartResult
	FullReconciliation(ctx context.Context) error
	MarkReconciled()
	Stop()
}

// Operator is the lifecycle owner for one entity kind in one namespace scope.
type Operator[T Entity] struct {
	desc      Descriptor
	handler   Handler[T]
	convert   ConvertFunc[T]
	rt        Runtime
	namespace NamespaceScope
	source    Source

	watcher *Watcher[T]
}

var _ Runnable = (*Operator[Entity])(nil)

// New creates an operator. Nothing is validated or contacted until Start.
func New[T Entity](opts Options[T], rt Runtime) *Operator[T] {
	if rt.Executor == nil {
		rt.Executor = DefaultExecutor()
	}
	if rt.Recorder == nil {
		rt.Recorder = NopRecorder{}
	}
	if rt.Resubscribe.Backoff.Duration <= 0 {
		rt.Resubscribe = DefaultResubscribePolicy()
	}

	o := &Operator[T]{
		desc:      opts.Descriptor,
		handler:   opts.Handler,
		convert:   opts.Convert,
		rt:        rt,
		namespace: opts.Descriptor.Namespace.Resolve(rt.CurrentNamespace),
	}
	// Start replaces the custom resource source with the one the ensured
	// definition serves.
	if o.desc.CRD {
		o.source = NewCustomResourceSource(rt.Dynamic, o.Definition().GroupVersionResource())
	} else {
		o.source = NewConfigMapSource(rt.Core, o.desc.LabelSelector())
	}
	return o
}

// Name returns the display name, e.g. "'cluster' operator".
func (o *Operator[T]) Name() string { return o.desc.Name() }

// Kind returns the entity kind.
func (o *Operator[T]) Kind() string { return o.desc.Kind }

// Namespace returns the resolved namespace scope.
func (o *Operator[T]) Namespace() NamespaceScope { return o.namespace }

// Enabled reports whether the operator is enabled.
func (o *Operator[T]) Enabled() bool { return o.desc.Enabled }

// Descriptor returns the descriptor the operator was built with.
func (o *Operator[T]) Descriptor() Descriptor { return o.desc }

// Definition returns the custom resource definition descriptor of the kind.
func (o *Operator[T]) Definition() crd.Definition {
	return crd.Definition{
		Group:      o.desc.Group(),
		Kind:       o.desc.Kind,
		Version:    o.desc.Version,
		Plural:     o.desc.Plural,
		ShortNames: o.desc.ShortNames,
		Schema:     o.desc.Schema,
	}
}

// GateState returns the reconciliation gate of the current watcher, or
// GateNotReady before Start.
func (o *Operator[T]) GateState() GateState {
	if o.watcher == nil {
		return GateNotReady
	}
	return o.watcher.GateState()
}

func (o *Operator[T]) validate() error {
	var problems []string
	if o.convert == nil {
		problems = append(problems, "conversion function is missing")
	}
	if o.handler == nil {
		problems = append(problems, "handler is missing")
	}
	if err := o.desc.Validate(); err != nil {
		var verr *ValidationError
		if errors.As(err, &verr) {
			problems = append(problems, verr.Problems...)
		} else {
			problems = append(problems, err.Error())
		}
	}
	if len(problems) == 0 {
		return nil
	}
	return &ValidationError{Operator: o.Name(), Problems: problems}
}

// Start validates the operator, ensures the custom resource definition when
// the kind is a custom resource, runs the handler's OnInit and subscribes.
//
// The returned channel yields exactly one result. Integrity failures yield a
// skipped result immediately; they are logged, never panicked.
func (o *Operator[T]) Start(ctx context.Context) <-chan StartResult {
	out := make(chan StartResult, 1)

	if err := o.validate(); err != nil {
		logging.Warn("Operator", "Skipping %s: %v", o.Name(), err)
		out <- StartResult{Skipped: true, Err: fmt.Errorf("%w: %w", ErrSkipped, err)}
		return out
	}

	if o.desc.CRD {
		if o.rt.CRDs == nil {
			err := fmt.Errorf("%s needs a custom resource definition manager", o.Name())
			out <- StartResult{Err: err}
			return out
		}
		def, err := o.rt.CRDs.Ensure(ctx, o.Definition())
		if err != nil {
			err = fmt.Errorf("failed to ensure custom resource definition for %s: %w", o.desc.Kind, err)
			logging.Error("Operator", err, "Unable to start %s", o.Name())
			out <- StartResult{Err: err}
			return out
		}
		gvr := crd.ServedResource(o.Definition(), def)
		o.source = NewCustomResourceSource(o.rt.Dynamic, gvr)
		logging.Debug("Operator", "Using custom resource definition %s (%s) for %s", def.Name, gvr, o.Name())
	}

	if initializer, ok := o.handler.(Initializer); ok {
		if err := initializer.OnInit(ctx); err != nil {
			err = fmt.Errorf("init of %s failed: %w", o.Name(), err)
			logging.Error("Operator", err, "Unable to start %s", o.Name())
			out <- StartResult{Err: err}
			return out
		}
	}

	w, err := NewWatcher(o.watcherConfig())
	if err != nil {
		out <- StartResult{Err: err}
		return out
	}
	o.watcher = w

	logging.Info("Operator", "Starting %s for %s in %s", o.Name(), o.source.Resource(), o.namespace)
	established := w.Watch(ctx)
	go func() {
		if err := <-established; err != nil {
			logging.Error("Operator", err, "Failed to start %s", o.Name())
			out <- StartResult{Err: err}
			return
		}
		logging.Info("Operator", "%s started", o.Name())
		out <- StartResult{}
	}()
	return out
}

func (o *Operator[T]) watcherConfig() WatcherConfig[T] {
	cfg := WatcherConfig[T]{
		Kind:      o.desc.Kind,
		Namespace: o.namespace,
		Source:    o.source,
		Convert:   o.convert,
		OnAdd:     o.handler.OnAdd,
		OnDelete:  o.handler.OnDelete,
		Policy:    o.rt.Resubscribe,
		Executor:  o.rt.Executor,
		Recorder:  o.rt.Recorder,
	}
	if m, ok := o.handler.(Modifier[T]); ok {
		cfg.OnModify = m.OnModify
	}
	if s, ok := o.handler.(Supporter); ok {
		cfg.IsSupported = s.IsSupported
	}
	return cfg
}

// FullReconciliation runs the handler's reconciliation. Handlers without a
// Reconciler implementation make it a no-op.
func (o *Operator[T]) FullReconciliation(ctx context.Context) error {
	r, ok := o.handler.(Reconciler[T])
	if !ok {
		return nil
	}
	return r.FullReconciliation(ctx, o)
}

// DesiredSet lists the current resources of the kind in the operator's scope
// and converts them. Resources that are unsupported or fail conversion are
// left out.
func (o *Operator[T]) DesiredSet(ctx context.Context) (Set[T], error) {
	objs, err := o.list(ctx)
	if err != nil {
		return nil, err
	}

	supporter, _ := o.handler.(Supporter)
	set := make(Set[T], len(objs))
	for _, obj := range objs {
		if supporter != nil && !supporter.IsSupported(obj) {
			continue
		}
		entity, err := o.convert(obj)
		if err == nil && isNilEntity(entity) {
			err = ErrNoEntity
		}
		if err != nil {
			logging.Warn("Operator", "Leaving %s/%s out of the desired set of %s: %v", obj.GetNamespace(), obj.GetName(), o.Name(), err)
			continue
		}
		if entity.GetName() == "" {
			continue
		}
		set.Insert(o.entityNamespace(obj), entity)
	}
	return set, nil
}

// ExistingKeys lists the namespace and name of every resource of the kind in
// the operator's scope, including the ones DesiredSet leaves out.
func (o *Operator[T]) ExistingKeys(ctx context.Context) (sets.Set[types.NamespacedName], error) {
	objs, err := o.list(ctx)
	if err != nil {
		return nil, err
	}
	keys := sets.New[types.NamespacedName]()
	for _, obj := range objs {
		keys.Insert(types.NamespacedName{Namespace: o.entityNamespace(obj), Name: obj.GetName()})
	}
	return keys, nil
}

func (o *Operator[T]) list(ctx context.Context) ([]client.Object, error) {
	if o.rt.OperationTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.rt.OperationTimeout)
		defer cancel()
	}
	objs, err := o.source.List(ctx, o.namespace.ListNamespace())
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", o.source.Resource(), err)
	}
	return objs, nil
}

func (o *Operator[T]) entityNamespace(obj client.Object) string {
	if o.namespace.IsAll() {
		return obj.GetNamespace()
	}
	return string(o.namespace)
}

// MarkReconciled opens the reconciliation gate of the running watcher.
func (o *Operator[T]) MarkReconciled() {
	if o.watcher == nil {
		logging.Debug("Operator", "Ignoring reconciliation mark for %s before start", o.Name())
		return
	}
	o.watcher.MarkReconciled()
}

// Stop closes the watch. Callbacks already running are not interrupted.
func (o *Operator[T]) Stop() {
	if o.watcher == nil {
		return
	}
	o.watcher.Close()
	logging.Info("Operator", "%s stopped", o.Name())
}
