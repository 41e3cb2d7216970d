package app

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/google/uuid"

	"operatorkit/internal/metrics"
	"operatorkit/internal/operator"
	"operatorkit/internal/scheduler"
	"operatorkit/pkg/logging"
)

// Application runs the registered operators until its context ends.
//
// Example usage:
//
//	r := registry.New()
//	if err := operators.RegisterAll(r); err != nil {
//	    return err
//	}
//	a, err := app.NewApplication(cfg, app.Options{Registry: r, Version: version})
//	if err != nil {
//	    return err
//	}
//	return a.Run(ctx)
type Application struct {
	cfg   Config
	opts  Options
	runID string

	mu        sync.RWMutex
	operators []operator.Runnable
	scheduler *scheduler.Scheduler

	ready     chan struct{}
	readyOnce sync.Once
}

// NewApplication validates cfg and prepares a run.
func NewApplication(cfg Config, opts Options) (*Application, error) {
	if opts.Registry == nil {
		return nil, errors.New("application needs an operator registry")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &Application{
		cfg:   cfg,
		opts:  opts,
		runID: uuid.New().String(),
		ready: make(chan struct{}),
	}, nil
}

// RunID identifies this process in logs and metrics.
func (a *Application) RunID() string { return a.runID }

// Ready is closed once every operator is started and scheduled.
func (a *Application) Ready() <-chan struct{} { return a.ready }

// Operators returns the started operators.
func (a *Application) Operators() []operator.Runnable {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return append([]operator.Runnable(nil), a.operators...)
}

// Statuses returns the reconciliation status of every started operator.
func (a *Application) Statuses() []scheduler.Status {
	a.mu.RLock()
	s := a.scheduler
	a.mu.RUnlock()
	if s == nil {
		return nil
	}
	return s.Statuses()
}

// Run starts everything and blocks until ctx is cancelled. It returns an
// error when an enabled operator fails to start.
func (a *Application) Run(ctx context.Context) error {
	logging.Info("Bootstrap", "Starting operatorkit %s (run %s)", a.opts.Version, a.runID)

	svc, err := a.initializeServices(ctx)
	if err != nil {
		logging.Error("Bootstrap", err, "Failed to initialize services")
		return fmt.Errorf("failed to initialize services: %w", err)
	}

	instances := a.instantiate(svc)
	if len(instances) == 0 {
		logging.Warn("Bootstrap", "No operator is enabled")
	}

	started, err := startAll(ctx, instances)
	if err != nil {
		logging.Error("Bootstrap", err, "Failed to start operators")
		stopAll(started)
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	sched := scheduler.New(scheduler.Config{
		Interval: a.cfg.Reconciliation.Interval,
		Unit:     a.cfg.Reconciliation.InitialDelayUnit,
	}, a.schedulerOptions(svc)...)
	a.schedule(runCtx, sched, started)

	a.mu.Lock()
	a.scheduler = sched
	for _, inst := range started {
		a.operators = append(a.operators, inst.op)
	}
	a.mu.Unlock()

	metricsDone := make(chan struct{})
	if svc.metrics != nil {
		svc.metrics.SetInfo(metrics.Info{
			RunID:      a.runID,
			Version:    a.opts.Version,
			Namespaces: a.cfg.Namespaces,
			CRD:        a.cfg.CRD,
			Interval:   a.cfg.Reconciliation.Interval,
		})
		go func() {
			defer close(metricsDone)
			if err := svc.metrics.Serve(runCtx, a.cfg.Metrics.Port); err != nil {
				logging.Error("Metrics", err, "Metrics server stopped")
			}
		}()
	} else {
		close(metricsDone)
	}

	notify(daemon.SdNotifyReady)
	logging.Info("Bootstrap", "%d operators running", len(started))
	a.readyOnce.Do(func() { close(a.ready) })

	<-ctx.Done()

	notify(daemon.SdNotifyStopping)
	logging.Info("Bootstrap", "Shutting down")
	cancel()
	stopAll(started)
	sched.Wait()
	<-metricsDone
	return nil
}

func (a *Application) schedulerOptions(svc *services) []scheduler.Option {
	if svc.metrics == nil {
		return nil
	}
	return []scheduler.Option{scheduler.WithRecorder(svc.metrics)}
}

// schedule staggers the first reconciliation of every operator. Operators are
// numbered within their namespace scope.
func (a *Application) schedule(ctx context.Context, sched *scheduler.Scheduler, started []instance) {
	perNamespace := make(map[int][]operator.Runnable)
	for _, inst := range started {
		perNamespace[inst.namespaceIndex] = append(perNamespace[inst.namespaceIndex], inst.op)
	}
	count := a.opts.Registry.Len()
	for nsIdx, ops := range perNamespace {
		for opIdx, op := range ops {
			delay := sched.InitialDelay(nsIdx, opIdx, count)
			sched.Schedule(ctx, fmt.Sprintf("%s/%s", op.Kind(), op.Namespace()), op, delay)
		}
	}
}

func stopAll(instances []instance) {
	for _, inst := range instances {
		inst.op.Stop()
	}
}

func notify(state string) {
	sent, err := daemon.SdNotify(false, state)
	if err != nil {
		logging.Warn("Bootstrap", "Failed to notify systemd: %v", err)
		return
	}
	if sent {
		logging.Debug("Bootstrap", "Notified systemd: %s", state)
	}
}
