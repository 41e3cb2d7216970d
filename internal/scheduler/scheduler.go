// Package scheduler runs the periodic full reconciliation of every operator.
//
// Each operator gets one timer. The first run happens after a staggered
// initial delay so operators started together do not reconcile at the same
// instant; later runs follow a constant, process-wide interval. A successful
// run opens the operator's reconciliation gate. Failures and panics are
// logged and recorded but never stop the timer.
package scheduler

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"k8s.io/utils/clock"

	"operatorkit/pkg/logging"
)

// Reconcilable is the part of an operator the scheduler drives.
type Reconcilable interface {
	Name() string
	Kind() string
	FullReconciliation(ctx context.Context) error
	MarkReconciled()
}

// Recorder observes completed reconciliation runs.
type Recorder interface {
	ReconciliationCompleted(kind string, duration time.Duration, err error)
}

// Config holds the process-wide timing.
type Config struct {
	// Interval between two runs of the same operator.
	Interval time.Duration

	// Unit is the base of the staggered initial delay.
	Unit time.Duration
}

// InitialDelay staggers the first run of an operator. Operators are numbered
// across namespaces so no two of them share a slot; the offset of two units
// leaves the watches time to establish.
func InitialDelay(unit time.Duration, namespaceIndex, operatorIndex, operatorCount int) time.Duration {
	return unit * time.Duration(namespaceIndex*operatorCount+operatorIndex+2)
}

// Status is the reconciliation history of one operator.
type Status struct {
	Name       string
	Runs       int
	Failures   int
	LastRun    time.Time
	LastError  string
	Reconciled bool
	NextDelay  time.Duration
}

// Scheduler owns the reconciliation timers.
type Scheduler struct {
	mu sync.RWMutex

	config   Config
	clock    clock.WithTicker
	recorder Recorder

	// statuses is keyed by operator name and namespace slot
	statuses map[string]*Status

	wg sync.WaitGroup
}

// Option customises a Scheduler.
type Option func(*Scheduler)

// WithClock replaces the real clock, mainly for tests.
func WithClock(c clock.WithTicker) Option {
	return func(s *Scheduler) { s.clock = c }
}

// WithRecorder reports every run to r.
func WithRecorder(r Recorder) Option {
	return func(s *Scheduler) { s.recorder = r }
}

// New creates a scheduler.
func New(config Config, opts ...Option) *Scheduler {
	if config.Interval <= 0 {
		config.Interval = 180 * time.Second
	}
	if config.Unit <= 0 {
		config.Unit = time.Second
	}
	s := &Scheduler{
		config:   config,
		clock:    clock.RealClock{},
		statuses: make(map[string]*Status),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// InitialDelay staggers the first run of an operator using the configured unit.
func (s *Scheduler) InitialDelay(namespaceIndex, operatorIndex, operatorCount int) time.Duration {
	return InitialDelay(s.config.Unit, namespaceIndex, operatorIndex, operatorCount)
}

// Schedule starts the timer of r. The first run happens after delay; the timer
// stops when ctx is cancelled. key distinguishes instances of the same
// operator in different namespaces.
func (s *Scheduler) Schedule(ctx context.Context, key string, r Reconcilable, delay time.Duration) {
	s.mu.Lock()
	s.statuses[key] = &Status{Name: r.Name(), NextDelay: delay}
	s.mu.Unlock()

	logging.Info("Scheduler", "Full reconciliation of %s scheduled in %s, then every %s", key, delay, s.config.Interval)

	s.wg.Add(1)
	go s.loop(ctx, key, r, delay)
}

func (s *Scheduler) loop(ctx context.Context, key string, r Reconcilable, delay time.Duration) {
	defer s.wg.Done()

	timer := s.clock.NewTimer(delay)
	select {
	case <-ctx.Done():
		timer.Stop()
		return
	case <-timer.C():
	}
	s.run(ctx, key, r)

	ticker := s.clock.NewTicker(s.config.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C():
			s.run(ctx, key, r)
		}
	}
}

func (s *Scheduler) run(ctx context.Context, key string, r Reconcilable) {
	start := s.clock.Now()
	logging.Debug("Scheduler", "Running full reconciliation of %s", key)
	err := reconcile(ctx, r)
	elapsed := s.clock.Since(start)

	if err != nil {
		logging.Error("Scheduler", err, "Full reconciliation of %s failed", key)
	} else {
		r.MarkReconciled()
		logging.Debug("Scheduler", "Full reconciliation of %s done in %s", key, elapsed)
	}

	s.mu.Lock()
	if st, ok := s.statuses[key]; ok {
		st.Runs++
		st.LastRun = start
		st.NextDelay = s.config.Interval
		if err != nil {
			st.Failures++
			st.LastError = err.Error()
		} else {
			st.LastError = ""
			st.Reconciled = true
		}
	}
	s.mu.Unlock()

	if s.recorder != nil {
		s.recorder.ReconciliationCompleted(r.Kind(), elapsed, err)
	}
}

// reconcile runs one full reconciliation and turns a panic into an error.
func reconcile(ctx context.Context, r Reconcilable) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("full reconciliation panicked: %v", p)
		}
	}()
	return r.FullReconciliation(ctx)
}

// Status returns a copy of the status stored under key.
func (s *Scheduler) Status(key string) (Status, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.statuses[key]
	if !ok {
		return Status{}, false
	}
	return *st, true
}

// Statuses returns copies of all statuses sorted by key.
func (s *Scheduler) Statuses() []Status {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]string, 0, len(s.statuses))
	for k := range s.statuses {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]Status, 0, len(keys))
	for _, k := range keys {
		out = append(out, *s.statuses[k])
	}
	return out
}

// Wait blocks until every timer has stopped.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}
