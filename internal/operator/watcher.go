package operator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/watch"
	"sigs.k8s.io/controller-runtime/pkg/client"

	"operatorkit/pkg/logging"
)

// WatcherState is the lifecycle state of a Watcher.
type WatcherState int32

const (
	WatcherUnstarted WatcherState = iota
	WatcherSubscribing
	WatcherActive
	WatcherReconnecting
	WatcherClosed
)

// String returns the state name.
func (s WatcherState) String() string {
	switch s {
	case WatcherUnstarted:
		return "Unstarted"
	case WatcherSubscribing:
		return "Subscribing"
	case WatcherActive:
		return "Active"
	case WatcherReconnecting:
		return "Reconnecting"
	case WatcherClosed:
		return "Closed"
	default:
		return "Unknown"
	}
}

// WatcherConfig holds everything a Watcher needs. Source, Convert, OnAdd and
// OnDelete are required.
type WatcherConfig[T Entity] struct {
	// Kind labels logs and metrics.
	Kind string

	// Namespace is the resolved scope: a namespace name or AllNamespaces.
	Namespace NamespaceScope

	Source  Source
	Convert ConvertFunc[T]

	// IsSupported filters raw objects before conversion. Nil accepts everything.
	IsSupported func(obj client.Object) bool

	OnAdd    Callback[T]
	OnDelete Callback[T]

	// OnModify handles Modified events. Nil dispatches OnDelete then OnAdd.
	OnModify Callback[T]

	Policy   ResubscribePolicy
	Executor Executor
	Recorder Recorder
}

// Watcher owns one subscription for one kind in one namespace scope and turns
// its events into handler callbacks.
type Watcher[T Entity] struct {
	cfg WatcherConfig[T]

	gate   Gate
	state  atomic.Int32
	handle subscriptionHandle

	mu     sync.Mutex
	cancel context.CancelFunc

	// callbackCtx is not cancelled by Close so in-flight callbacks run to completion.
	callbackCtx context.Context

	done       chan struct{}
	doneOnce   sync.Once
	delivering atomic.Bool

	resubscriptions atomic.Int64
	watchCalls      atomic.Int64
}

// NewWatcher validates the config and returns an unstarted Watcher.
func NewWatcher[T Entity](cfg WatcherConfig[T]) (*Watcher[T], error) {
	var missing []string
	if cfg.Source == nil {
		missing = append(missing, "source")
	}
	if cfg.Convert == nil {
		missing = append(missing, "convert")
	}
	if cfg.OnAdd == nil {
		missing = append(missing, "onAdd")
	}
	if cfg.OnDelete == nil {
		missing = append(missing, "onDelete")
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("watcher for %s is missing %v", cfg.Kind, missing)
	}
	if cfg.Executor == nil {
		cfg.Executor = DefaultExecutor()
	}
	if cfg.Recorder == nil {
		cfg.Recorder = NopRecorder{}
	}
	if cfg.Policy.Backoff.Duration <= 0 {
		cfg.Policy = DefaultResubscribePolicy()
	}
	return &Watcher[T]{
		cfg:  cfg,
		done: make(chan struct{}),
	}, nil
}

// State returns the current lifecycle state.
func (w *Watcher[T]) State() WatcherState {
	return WatcherState(w.state.Load())
}

// GateState returns the state of the reconciliation gate.
func (w *Watcher[T]) GateState() GateState {
	return w.gate.State()
}

// Done is closed once the watcher has stopped for good.
func (w *Watcher[T]) Done() <-chan struct{} {
	return w.done
}

// Resubscriptions returns how many stream failures triggered a resubscription.
func (w *Watcher[T]) Resubscriptions() int64 {
	return w.resubscriptions.Load()
}

// WatchCalls returns how many times the source's Watch was called.
func (w *Watcher[T]) WatchCalls() int64 {
	return w.watchCalls.Load()
}

// MarkReconciled opens the gate. Only the first call has an effect.
func (w *Watcher[T]) MarkReconciled() {
	if w.gate.Open() {
		logging.Info("Watcher", "Full reconciliation done for %s in %s, dispatching events", w.cfg.Kind, w.cfg.Namespace)
	}
}

// Watch subscribes asynchronously. The returned channel receives nil once the
// subscription is established, or the establishment error.
func (w *Watcher[T]) Watch(ctx context.Context) <-chan error {
	result := make(chan error, 1)
	if !w.state.CompareAndSwap(int32(WatcherUnstarted), int32(WatcherSubscribing)) {
		if w.State() == WatcherClosed {
			result <- ErrWatcherClosed
		} else {
			result <- ErrAlreadyStarted
		}
		return result
	}

	watchCtx, cancel := context.WithCancel(ctx)
	w.mu.Lock()
	w.cancel = cancel
	w.callbackCtx = context.WithoutCancel(ctx)
	w.mu.Unlock()

	establish := func() {
		stream, err := w.subscribe(watchCtx)
		if err != nil {
			logging.Error("Watcher", err, "Failed to watch %s in %s", w.cfg.Kind, w.cfg.Namespace)
			w.Close()
			result <- err
			return
		}
		w.delivering.Store(true)
		if !w.handle.install(stream) || !w.state.CompareAndSwap(int32(WatcherSubscribing), int32(WatcherActive)) {
			w.finish()
			result <- ErrWatcherClosed
			return
		}
		logging.Info("Watcher", "Watching %s (%s) in %s", w.cfg.Kind, w.cfg.Source.Resource(), w.cfg.Namespace)
		result <- nil
		go w.run(watchCtx, stream)
	}

	if err := w.cfg.Executor.Go(ctx, establish); err != nil {
		w.Close()
		result <- fmt.Errorf("failed to schedule watch for %s: %w", w.cfg.Kind, err)
	}
	return result
}

// Close stops the watcher: the gate is closed, the subscription handle is
// swapped with the closed sentinel and the delivery goroutine exits. Callbacks
// already running are not interrupted.
func (w *Watcher[T]) Close() {
	w.gate.Close()
	w.state.Store(int32(WatcherClosed))
	w.handle.close()

	w.mu.Lock()
	cancel := w.cancel
	w.mu.Unlock()
	if cancel != nil {
		cancel()
	}

	// Nothing else will close done when no delivery goroutine was started.
	if !w.delivering.Load() {
		w.finish()
	}
}

func (w *Watcher[T]) finish() {
	w.doneOnce.Do(func() { close(w.done) })
}

func (w *Watcher[T]) stopped(ctx context.Context) bool {
	return ctx.Err() != nil || w.handle.isClosed() || w.State() == WatcherClosed
}

func (w *Watcher[T]) subscribe(ctx context.Context) (watch.Interface, error) {
	w.watchCalls.Add(1)
	return w.cfg.Source.Watch(ctx, w.cfg.Namespace.ListNamespace())
}

// run delivers events until the watcher stops, resubscribing after stream failures.
func (w *Watcher[T]) run(ctx context.Context, stream watch.Interface) {
	defer func() {
		w.gate.Close()
		w.state.Store(int32(WatcherClosed))
		w.handle.close()
		w.finish()
	}()
	for stream != nil {
		if !w.consume(ctx, stream) {
			logging.Debug("Watcher", "Watch of %s in %s closed", w.cfg.Kind, w.cfg.Namespace)
			return
		}
		stream = w.resubscribe(ctx)
	}
}

// consume reads the stream until it closes. It returns true when the closure
// is a failure that warrants a resubscription.
func (w *Watcher[T]) consume(ctx context.Context, stream watch.Interface) bool {
	for {
		select {
		case <-ctx.Done():
			return false
		case ev, ok := <-stream.ResultChan():
			if !ok {
				return !w.stopped(ctx)
			}
			w.handleEvent(ev)
		}
	}
}

// resubscribe replaces the failed stream. The first Watch call happens right
// away; failing calls are retried without limit, spaced by the policy backoff.
func (w *Watcher[T]) resubscribe(ctx context.Context) watch.Interface {
	if !w.state.CompareAndSwap(int32(WatcherActive), int32(WatcherReconnecting)) {
		return nil
	}
	w.resubscriptions.Add(1)
	w.cfg.Recorder.Resubscribed(w.cfg.Kind, w.cfg.Namespace.String())
	logging.Warn("Watcher", "Watch of %s in %s closed unexpectedly, resubscribing", w.cfg.Kind, w.cfg.Namespace)

	backoff := w.cfg.Policy.newBackoff()
	for {
		if !w.state.CompareAndSwap(int32(WatcherReconnecting), int32(WatcherSubscribing)) {
			return nil
		}
		stream, err := w.subscribe(ctx)
		if err == nil {
			if !w.handle.install(stream) || !w.state.CompareAndSwap(int32(WatcherSubscribing), int32(WatcherActive)) {
				stream.Stop()
				return nil
			}
			logging.Info("Watcher", "Resubscribed to %s in %s", w.cfg.Kind, w.cfg.Namespace)
			return stream
		}
		if !w.state.CompareAndSwap(int32(WatcherSubscribing), int32(WatcherReconnecting)) {
			return nil
		}

		delay := backoff.Step()
		logging.Warn("Watcher", "Resubscribing to %s in %s failed, retrying in %s: %v", w.cfg.Kind, w.cfg.Namespace, delay, err)
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
	}
}

func (w *Watcher[T]) handleEvent(ev watch.Event) {
	kind := w.cfg.Kind
	switch ev.Type {
	case watch.Bookmark:
		return
	case watch.Error:
		// The payload of an error event is a Status, not a resource.
		logging.Warn("Watcher", "Error event on watch of %s in %s: %v", kind, w.cfg.Namespace, apierrors.FromObject(ev.Object))
		w.cfg.Recorder.EventDropped(kind, DropErrorEvent)
		return
	}
	w.cfg.Recorder.EventReceived(kind, string(ev.Type))

	obj, ok := ev.Object.(client.Object)
	if !ok {
		logging.Warn("Watcher", "Dropping %s event of %s with unexpected object type %T", ev.Type, kind, ev.Object)
		w.cfg.Recorder.EventDropped(kind, DropUnexpectedType)
		return
	}

	if w.cfg.IsSupported != nil && !w.cfg.IsSupported(obj) {
		logging.Info("Watcher", "Ignoring unsupported %s %s/%s", kind, obj.GetNamespace(), obj.GetName())
		w.cfg.Recorder.EventDropped(kind, DropUnsupported)
		return
	}

	entity, err := w.cfg.Convert(obj)
	if err == nil && isNilEntity(entity) {
		err = ErrNoEntity
	}
	if err != nil {
		logging.Error("Watcher", err, "Failed to convert %s %s/%s, dropping %s event", kind, obj.GetNamespace(), obj.GetName(), ev.Type)
		w.cfg.Recorder.EventDropped(kind, DropConversionError)
		return
	}
	if entity.GetName() == "" {
		logging.Error("Watcher", errors.New("entity name is empty"), "Dropping %s event of %s %s/%s", ev.Type, kind, obj.GetNamespace(), obj.GetName())
		w.cfg.Recorder.EventDropped(kind, DropEmptyName)
		return
	}

	namespace := w.effectiveNamespace(obj)

	if !w.gate.Admits() {
		logging.Debug("Watcher", "Dropping %s of %s %s/%s before full reconciliation", ev.Type, kind, namespace, entity.GetName())
		w.cfg.Recorder.EventDropped(kind, DropNotReconciled)
		return
	}

	w.dispatch(ev.Type, entity, namespace)
}

func (w *Watcher[T]) effectiveNamespace(obj client.Object) string {
	if w.cfg.Namespace.IsAll() {
		return obj.GetNamespace()
	}
	return string(w.cfg.Namespace)
}

func (w *Watcher[T]) dispatch(action watch.EventType, entity T, namespace string) {
	switch action {
	case watch.Added:
		logging.Info("Watcher", "Creating %s %s in %s", w.cfg.Kind, entity.GetName(), namespace)
		w.invoke(action, w.cfg.OnAdd, entity, namespace)
	case watch.Deleted:
		logging.Info("Watcher", "Deleting %s %s in %s", w.cfg.Kind, entity.GetName(), namespace)
		w.invoke(action, w.cfg.OnDelete, entity, namespace)
	case watch.Modified:
		logging.Info("Watcher", "Modifying %s %s in %s", w.cfg.Kind, entity.GetName(), namespace)
		if w.cfg.OnModify != nil {
			w.invoke(action, w.cfg.OnModify, entity, namespace)
			return
		}
		w.invoke(action, w.cfg.OnDelete, entity, namespace)
		w.invoke(action, w.cfg.OnAdd, entity, namespace)
	default:
		logging.Warn("Watcher", "Unknown event type %q for %s %s", action, w.cfg.Kind, entity.GetName())
	}
}

func (w *Watcher[T]) invoke(action watch.EventType, cb Callback[T], entity T, namespace string) {
	defer func() {
		if r := recover(); r != nil {
			logging.Error("Watcher", fmt.Errorf("panic: %v", r), "Handler for %s of %s %s panicked", action, w.cfg.Kind, entity.GetName())
			w.cfg.Recorder.CallbackFailed(w.cfg.Kind, string(action))
		}
	}()

	w.mu.Lock()
	ctx := w.callbackCtx
	w.mu.Unlock()

	if err := cb(ctx, entity, namespace); err != nil {
		logging.Error("Watcher", err, "Handler for %s of %s %s failed", action, w.cfg.Kind, entity.GetName())
		w.cfg.Recorder.CallbackFailed(w.cfg.Kind, string(action))
	}
}
