// Package metrics exposes the Prometheus metrics of an operatorkit process.
//
// Metrics implements the watcher and scheduler recorder interfaces, so the
// same value is handed to every operator and to the reconciliation scheduler.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"operatorkit/pkg/logging"
)

// Namespace prefixes every metric name.
const Namespace = "operatorkit"

// Path is where the metrics are served.
const Path = "/metrics"

// Info describes the running process in the info metric.
type Info struct {
	RunID      string
	Version    string
	Namespaces []string
	CRD        bool
	Interval   time.Duration
}

// Metrics holds the collectors on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	info              *prometheus.GaugeVec
	eventsReceived    *prometheus.CounterVec
	eventsDropped     *prometheus.CounterVec
	callbackErrors    *prometheus.CounterVec
	resubscriptions   *prometheus.CounterVec
	reconciliations   *prometheus.CounterVec
	reconcileDuration *prometheus.HistogramVec
}

// New creates the collectors. runtimeCollectors adds the Go runtime and
// process collectors.
func New(runtimeCollectors bool) *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,

		info: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: Namespace,
				Name:      "operator_info",
				Help:      "Information about the running operator process",
			},
			[]string{"run_id", "version", "namespaces", "crd", "interval"},
		),
		eventsReceived: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "watch_events_total",
				Help:      "Total number of watch events received",
			},
			[]string{"kind", "action"},
		),
		eventsDropped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "watch_events_dropped_total",
				Help:      "Total number of watch events dropped before dispatch",
			},
			[]string{"kind", "reason"},
		),
		callbackErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "callback_errors_total",
				Help:      "Total number of handler callbacks that failed or panicked",
			},
			[]string{"kind", "action"},
		),
		resubscriptions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "watch_resubscriptions_total",
				Help:      "Total number of watch streams replaced after a failure",
			},
			[]string{"kind", "namespace"},
		),
		reconciliations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "reconciliations_total",
				Help:      "Total number of full reconciliation runs",
			},
			[]string{"kind", "result"},
		),
		reconcileDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: Namespace,
				Name:      "reconciliation_duration_seconds",
				Help:      "Duration of full reconciliation runs in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"kind"},
		),
	}

	registry.MustRegister(
		m.info,
		m.eventsReceived,
		m.eventsDropped,
		m.callbackErrors,
		m.resubscriptions,
		m.reconciliations,
		m.reconcileDuration,
	)
	if runtimeCollectors {
		registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	return m
}

// Registry returns the private registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// SetInfo publishes the info metric.
func (m *Metrics) SetInfo(info Info) {
	m.info.Reset()
	m.info.WithLabelValues(
		info.RunID,
		info.Version,
		strings.Join(info.Namespaces, ","),
		strconv.FormatBool(info.CRD),
		info.Interval.String(),
	).Set(1)
}

// EventReceived implements operator.Recorder.
func (m *Metrics) EventReceived(kind, action string) {
	m.eventsReceived.WithLabelValues(kind, action).Inc()
}

// EventDropped implements operator.Recorder.
func (m *Metrics) EventDropped(kind, reason string) {
	m.eventsDropped.WithLabelValues(kind, reason).Inc()
}

// CallbackFailed implements operator.Recorder.
func (m *Metrics) CallbackFailed(kind, action string) {
	m.callbackErrors.WithLabelValues(kind, action).Inc()
}

// Resubscribed implements operator.Recorder.
func (m *Metrics) Resubscribed(kind, namespace string) {
	m.resubscriptions.WithLabelValues(kind, namespace).Inc()
}

// ReconciliationCompleted implements scheduler.Recorder.
func (m *Metrics) ReconciliationCompleted(kind string, duration time.Duration, err error) {
	result := "success"
	if err != nil {
		result = "error"
	}
	m.reconciliations.WithLabelValues(kind, result).Inc()
	m.reconcileDuration.WithLabelValues(kind).Observe(duration.Seconds())
}

// Handler returns the HTTP handler of the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// Serve exposes the metrics on port until ctx is cancelled.
func (m *Metrics) Serve(ctx context.Context, port int) error {
	mux := http.NewServeMux()
	mux.Handle(Path, m.Handler())

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logging.Info("Metrics", "Serving metrics on :%d%s", port, Path)
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("metrics server failed: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logging.Warn("Metrics", "Metrics server shutdown: %v", err)
		}
		return nil
	}
}
