package operator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/util/wait"
	"k8s.io/apimachinery/pkg/watch"
	"sigs.k8s.io/controller-runtime/pkg/client"
)

const waitTimeout = 5 * time.Second

type testEntity struct {
	Name  string
	Value string
}

func (e *testEntity) GetName() string     { return e.Name }
func (e *testEntity) SetName(name string) { e.Name = name }

// convertTestEntity converts ConfigMaps. Data key "fail" forces an error,
// "nil" a nil entity and "noname" an empty name.
func convertTestEntity(obj client.Object) (*testEntity, error) {
	cm, ok := obj.(*corev1.ConfigMap)
	if !ok {
		return nil, fmt.Errorf("unexpected %T", obj)
	}
	if _, ok := cm.Data["fail"]; ok {
		return nil, errors.New("malformed payload")
	}
	if _, ok := cm.Data["nil"]; ok {
		return nil, nil
	}
	if _, ok := cm.Data["noname"]; ok {
		return &testEntity{Value: cm.Data["value"]}, nil
	}
	return &testEntity{Name: cm.Name, Value: cm.Data["value"]}, nil
}

func testConfigMap(namespace, name string, data map[string]string) *corev1.ConfigMap {
	return &corev1.ConfigMap{
		ObjectMeta: metav1.ObjectMeta{Namespace: namespace, Name: name},
		Data:       data,
	}
}

type call struct {
	Action    string
	Name      string
	Namespace string
}

// recordingHandler records every callback and optionally fails or panics for
// selected entity names.
type recordingHandler struct {
	mu    sync.Mutex
	calls []call
	ch    chan call

	panicOn string
	failOn  string
}

func newRecordingHandler() *recordingHandler {
	return &recordingHandler{ch: make(chan call, 64)}
}

func (h *recordingHandler) record(action string, e *testEntity, namespace string) error {
	c := call{Action: action, Name: e.Name, Namespace: namespace}
	h.mu.Lock()
	h.calls = append(h.calls, c)
	h.mu.Unlock()
	h.ch <- c
	if e.Name == h.panicOn {
		panic("handler exploded")
	}
	if e.Name == h.failOn {
		return errors.New("handler failed")
	}
	return nil
}

func (h *recordingHandler) OnAdd(_ context.Context, e *testEntity, namespace string) error {
	return h.record("add", e, namespace)
}

func (h *recordingHandler) OnDelete(_ context.Context, e *testEntity, namespace string) error {
	return h.record("delete", e, namespace)
}

func (h *recordingHandler) Calls() []call {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]call(nil), h.calls...)
}

// next waits for the next callback.
func (h *recordingHandler) next(t *testing.T) call {
	t.Helper()
	select {
	case c := <-h.ch:
		return c
	case <-time.After(waitTimeout):
		t.Fatal("timed out waiting for a callback")
		return call{}
	}
}

// modifyingHandler adds OnModify.
type modifyingHandler struct {
	*recordingHandler
}

func (h modifyingHandler) OnModify(_ context.Context, e *testEntity, namespace string) error {
	return h.record("modify", e, namespace)
}

// testRecorder captures watcher activity on channels.
type testRecorder struct {
	drops        chan string
	resubscribed chan string

	mu       sync.Mutex
	received []string
	failed   []string
}

func newTestRecorder() *testRecorder {
	return &testRecorder{
		drops:        make(chan string, 64),
		resubscribed: make(chan string, 64),
	}
}

func (r *testRecorder) EventReceived(_, action string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.received = append(r.received, action)
}

func (r *testRecorder) EventDropped(_, reason string) { r.drops <- reason }

func (r *testRecorder) CallbackFailed(_, action string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failed = append(r.failed, action)
}

func (r *testRecorder) Resubscribed(_, namespace string) { r.resubscribed <- namespace }

func (r *testRecorder) Failed() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.failed...)
}

func (r *testRecorder) nextDrop(t *testing.T) string {
	t.Helper()
	select {
	case reason := <-r.drops:
		return reason
	case <-time.After(waitTimeout):
		t.Fatal("timed out waiting for a dropped event")
		return ""
	}
}

// fakeSource hands out FakeWatchers. Queued errors are returned by the next
// Watch calls before a stream is created.
type fakeSource struct {
	mu         sync.Mutex
	errs       []error
	calls      int
	namespaces []string
	streams    chan *watch.FakeWatcher
	objects    []client.Object
	listErr    error
}

func newFakeSource(errs ...error) *fakeSource {
	return &fakeSource{errs: errs, streams: make(chan *watch.FakeWatcher, 16)}
}

func (s *fakeSource) Shape() Shape     { return ShapeConfigMap }
func (s *fakeSource) Resource() string { return "configmaps" }

func (s *fakeSource) Watch(_ context.Context, namespace string) (watch.Interface, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	s.namespaces = append(s.namespaces, namespace)
	if len(s.errs) > 0 {
		err := s.errs[0]
		s.errs = s.errs[1:]
		return nil, err
	}
	fw := watch.NewFakeWithChanSize(16, false)
	s.streams <- fw
	return fw, nil
}

func (s *fakeSource) List(_ context.Context, _ string) ([]client.Object, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.objects, s.listErr
}

func (s *fakeSource) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func (s *fakeSource) nextStream(t *testing.T) *watch.FakeWatcher {
	t.Helper()
	select {
	case fw := <-s.streams:
		return fw
	case <-time.After(waitTimeout):
		t.Fatal("timed out waiting for a watch stream")
		return nil
	}
}

func fastPolicy() ResubscribePolicy {
	return ResubscribePolicy{Backoff: wait.Backoff{Duration: time.Millisecond, Factor: 2, Steps: 3, Cap: 5 * time.Millisecond}}
}

func waitClosed(t *testing.T, ch <-chan struct{}) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(waitTimeout):
		t.Fatal("timed out waiting for channel to close")
	}
}

func waitErr(t *testing.T, ch <-chan error) error {
	t.Helper()
	select {
	case err := <-ch:
		return err
	case <-time.After(waitTimeout):
		t.Fatal("timed out waiting for result")
		return nil
	}
}
