package app

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"operatorkit/internal/crd"
	"operatorkit/internal/kube"
	"operatorkit/internal/metrics"
	"operatorkit/internal/operator"
	"operatorkit/internal/registry"
	"operatorkit/pkg/logging"
)

// instance is one operator bound to the index of its namespace scope.
type instance struct {
	op             operator.Runnable
	namespaceIndex int
}

// services are the shared collaborators of a run.
type services struct {
	clients  *kube.Clients
	platform kube.Platform
	crds     *crd.Manager
	metrics  *metrics.Metrics
	runtime  operator.Runtime
}

func (a *Application) initializeServices(ctx context.Context) (*services, error) {
	clients := a.opts.Clients
	if clients == nil {
		restConfig, namespace, err := kube.LoadConfig(a.cfg.Kubeconfig)
		if err != nil {
			return nil, err
		}
		clients, err = kube.NewClients(restConfig, namespace)
		if err != nil {
			return nil, err
		}
	}

	detectCtx, cancel := context.WithTimeout(ctx, a.cfg.OperationTimeout)
	platform, err := kube.DetectPlatform(detectCtx, clients.Discovery)
	cancel()
	if err != nil {
		logging.Warn("Bootstrap", "Platform detection failed, assuming %s: %v", platform, err)
	}
	logging.Info("Bootstrap", "Running on %s, client namespace %s", platform, clients.Namespace)

	s := &services{
		clients:  clients,
		platform: platform,
		crds:     crd.NewManager(clients.Extensions, clients.SharedScheme(), string(platform)),
	}

	var recorder operator.Recorder = operator.NopRecorder{}
	if a.cfg.Metrics.Enabled {
		s.metrics = metrics.New(a.cfg.Metrics.Runtime)
		recorder = s.metrics
	}

	workers := a.opts.Registry.Len() * len(a.cfg.Scopes())
	if workers < 1 {
		workers = 1
	}
	s.runtime = operator.Runtime{
		Core:             clients.Core,
		Dynamic:          clients.Dynamic,
		CRDs:             s.crds,
		CurrentNamespace: clients.Namespace,
		Executor:         operator.NewBoundedExecutor(int64(workers)),
		Recorder:         recorder,
		Resubscribe:      operator.DefaultResubscribePolicy(),
		OperationTimeout: a.cfg.OperationTimeout,
	}
	return s, nil
}

// instantiate builds every enabled operator for every namespace scope.
func (a *Application) instantiate(s *services) []instance {
	var out []instance
	for nsIdx, scope := range a.cfg.Scopes() {
		ops := a.opts.Registry.Build(s.runtime, registry.Settings{
			Namespace: scope,
			ForceCRD:  a.cfg.CRD,
			Client:    s.clients.Client,
		})
		for _, op := range ops {
			if !op.Enabled() || a.cfg.OperatorDisabled(op.Kind()) {
				logging.Info("Bootstrap", "%s is disabled", op.Name())
				continue
			}
			out = append(out, instance{op: op, namespaceIndex: nsIdx})
		}
	}
	return out
}

// startAll starts every instance in parallel. Skipped operators are dropped
// from the result; any other failure is returned after all starts finished.
func startAll(ctx context.Context, instances []instance) ([]instance, error) {
	results := make([]operator.StartResult, len(instances))

	var g errgroup.Group
	for i, inst := range instances {
		g.Go(func() error {
			res := <-inst.op.Start(ctx)
			results[i] = res
			if res.Err != nil && !res.Skipped {
				return fmt.Errorf("%s in %s failed to start: %w", inst.op.Name(), inst.op.Namespace(), res.Err)
			}
			return nil
		})
	}
	err := g.Wait()

	var started []instance
	for i, inst := range instances {
		switch {
		case results[i].Skipped:
			logging.Warn("Bootstrap", "%s skipped: %v", inst.op.Name(), results[i].Err)
		case results[i].Err == nil:
			started = append(started, inst)
		}
	}
	return started, err
}
