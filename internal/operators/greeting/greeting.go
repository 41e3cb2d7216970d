// Package greeting is the Greeting operator. Greetings are ConfigMaps labelled
// operatorkit.io/kind=greeting whose "config" key holds the YAML payload, or
// Greeting custom resources when the process runs in CRD mode.
package greeting

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/types"
	"sigs.k8s.io/controller-runtime/pkg/client"

	"operatorkit/internal/convert"
	"operatorkit/internal/operator"
	"operatorkit/internal/registry"
	v1 "operatorkit/pkg/apis/operatorkit/v1"
	"operatorkit/pkg/logging"
)

// DefaultMessage is used when a greeting has no message.
const DefaultMessage = "Hello"

// Descriptor describes the Greeting operator.
func Descriptor(namespace operator.NamespaceScope, crd bool) operator.Descriptor {
	return operator.Descriptor{
		Kind:       v1.GreetingKind,
		Prefix:     v1.GroupPrefix,
		CRD:        crd,
		Enabled:    true,
		Namespace:  namespace,
		ShortNames: []string{"gr"},
	}
}

// Entry registers the kind.
func Entry() registry.Entry {
	return registry.Entry{
		Kind:        v1.GreetingKind,
		Description: "Delivers greetings declared in labelled ConfigMaps",
		Factory:     New,
	}
}

// New is the registry factory.
func New(rt operator.Runtime, settings registry.Settings) operator.Runnable {
	return operator.New(operator.Options[*v1.Greeting]{
		Descriptor: Descriptor(settings.Namespace, settings.ForceCRD),
		Handler:    NewHandler(),
		Convert:    convert.FromObject[v1.Greeting],
	}, rt)
}

// Delivery is a greeting as currently delivered.
type Delivery struct {
	Namespace  string
	Name       string
	Text       string
	Recipients []string
	Revision   int
}

// Handler keeps the board of delivered greetings.
type Handler struct {
	mu    sync.Mutex
	board map[types.NamespacedName]Delivery
}

// NewHandler creates a handler with an empty board.
func NewHandler() *Handler {
	return &Handler{board: make(map[types.NamespacedName]Delivery)}
}

// IsSupported accepts ConfigMaps only when they carry a payload. Custom
// resources are always accepted.
func (h *Handler) IsSupported(obj client.Object) bool {
	if cm, ok := obj.(*corev1.ConfigMap); ok {
		_, found := cm.Data[convert.ConfigKey]
		return found
	}
	return true
}

// OnAdd delivers a new greeting.
func (h *Handler) OnAdd(_ context.Context, g *v1.Greeting, namespace string) error {
	d, err := h.deliver(g, namespace, 0)
	if err != nil {
		return err
	}
	logging.Info("Operator", "Delivered greeting %s/%s: %s", namespace, g.Name, d.Text)
	return nil
}

// OnModify redelivers a changed greeting and bumps its revision.
func (h *Handler) OnModify(_ context.Context, g *v1.Greeting, namespace string) error {
	h.mu.Lock()
	prev := h.board[types.NamespacedName{Namespace: namespace, Name: g.Name}]
	h.mu.Unlock()

	d, err := h.deliver(g, namespace, prev.Revision+1)
	if err != nil {
		return err
	}
	logging.Info("Operator", "Updated greeting %s/%s (revision %d): %s", namespace, g.Name, d.Revision, d.Text)
	return nil
}

// OnDelete withdraws a greeting.
func (h *Handler) OnDelete(_ context.Context, g *v1.Greeting, namespace string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.board, types.NamespacedName{Namespace: namespace, Name: g.Name})
	logging.Info("Operator", "Withdrew greeting %s/%s", namespace, g.Name)
	return nil
}

// FullReconciliation replaces the board with the greetings currently present.
// Unchanged greetings keep their revision.
func (h *Handler) FullReconciliation(ctx context.Context, op *operator.Operator[*v1.Greeting]) error {
	desired, err := op.DesiredSet(ctx)
	if err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	board := make(map[types.NamespacedName]Delivery, len(desired))
	for key, g := range desired {
		d, err := render(g, key.Namespace)
		if err != nil {
			logging.Warn("Operator", "Skipping greeting %s: %v", key, err)
			continue
		}
		if prev, ok := h.board[key]; ok && prev.Text == d.Text {
			d.Revision = prev.Revision
		}
		board[key] = d
	}
	removed := 0
	for key := range h.board {
		if _, ok := board[key]; !ok {
			removed++
		}
	}
	h.board = board

	logging.Info("Operator", "Greeting reconciliation: %d delivered, %d withdrawn", len(board), removed)
	return nil
}

// Deliveries returns the board sorted by namespace and name.
func (h *Handler) Deliveries() []Delivery {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make([]Delivery, 0, len(h.board))
	for _, d := range h.board {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Namespace != out[j].Namespace {
			return out[i].Namespace < out[j].Namespace
		}
		return out[i].Name < out[j].Name
	})
	return out
}

func (h *Handler) deliver(g *v1.Greeting, namespace string, revision int) (Delivery, error) {
	d, err := render(g, namespace)
	if err != nil {
		return Delivery{}, err
	}
	d.Revision = revision

	h.mu.Lock()
	defer h.mu.Unlock()
	h.board[types.NamespacedName{Namespace: namespace, Name: g.Name}] = d
	return d, nil
}

func render(g *v1.Greeting, namespace string) (Delivery, error) {
	if len(g.Recipients) == 0 {
		return Delivery{}, fmt.Errorf("greeting %s/%s has no recipients", namespace, g.Name)
	}
	message := g.Message
	if message == "" {
		message = DefaultMessage
	}
	recipients := append([]string(nil), g.Recipients...)
	sort.Strings(recipients)
	return Delivery{
		Namespace:  namespace,
		Name:       g.Name,
		Text:       fmt.Sprintf("%s, %s!", message, strings.Join(recipients, ", ")),
		Recipients: recipients,
	}, nil
}
