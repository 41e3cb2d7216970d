package operator

import (
	"context"

	"sigs.k8s.io/controller-runtime/pkg/client"
)

// Handler receives the typed events of one operator.
//
// OnAdd and OnDelete are mandatory. The optional behaviour is picked up through
// the Modifier, Initializer, Supporter and Reconciler interfaces.
type Handler[T Entity] interface {
	OnAdd(ctx context.Context, entity T, namespace string) error
	OnDelete(ctx context.Context, entity T, namespace string) error
}

// Modifier handles Modified events. Without it a modification is dispatched
// as OnDelete followed by OnAdd with the new entity.
type Modifier[T Entity] interface {
	OnModify(ctx context.Context, entity T, namespace string) error
}

// Initializer runs once before the watch is established.
type Initializer interface {
	OnInit(ctx context.Context) error
}

// Supporter filters raw objects before conversion.
type Supporter interface {
	IsSupported(obj client.Object) bool
}

// Reconciler performs the periodic full reconciliation of desired against actual state.
type Reconciler[T Entity] interface {
	FullReconciliation(ctx context.Context, op *Operator[T]) error
}

// ConvertFunc turns a raw watched object into a typed entity.
type ConvertFunc[T Entity] func(obj client.Object) (T, error)

// Callback is the shape of every dispatched handler method.
type Callback[T Entity] func(ctx context.Context, entity T, namespace string) error

// Recorder observes watcher activity. Implementations must be safe for concurrent use.
type Recorder interface {
	EventReceived(kind, action string)
	EventDropped(kind, reason string)
	CallbackFailed(kind, action string)
	Resubscribed(kind, namespace string)
}

// Reasons passed to Recorder.EventDropped.
const (
	DropNotReconciled   = "not-reconciled"
	DropUnsupported     = "unsupported"
	DropConversionError = "conversion-error"
	DropEmptyName       = "empty-name"
	DropUnexpectedType  = "unexpected-type"
	DropErrorEvent      = "error-event"
)

// NopRecorder discards everything.
type NopRecorder struct{}

func (NopRecorder) EventReceived(string, string)  {}
func (NopRecorder) EventDropped(string, string)   {}
func (NopRecorder) CallbackFailed(string, string) {}
func (NopRecorder) Resubscribed(string, string)   {}
