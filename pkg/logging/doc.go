// Package logging provides a structured logging system for operatorkit with unified
// log handling and flexible output formatting.
//
// This package implements a logging system built on Go's standard slog package,
// providing consistent logging behavior with structured output and level filtering.
//
// # Log Levels
//   - **Debug**: Detailed information, including dropped watch events
//   - **Info**: Operator lifecycle and dispatched callbacks
//   - **Warn**: Skipped operators, degraded CRD creation, rejected resources
//   - **Error**: Conversion failures, callback failures, stream failures
//
// # Usage Examples
//
//	import "operatorkit/pkg/logging"
//
//	// Initialize with Info level logging to stdout
//	logging.InitForCLI(logging.LevelInfo, os.Stdout)
//
//	// Or JSON lines for in-cluster log collection
//	logging.InitForJSON(logging.LevelInfo, os.Stdout)
//
//	logging.Info("Bootstrap", "Starting %d operators", n)
//	logging.Error("Watcher", err, "Watch for %s closed", kind)
//
// # Subsystem Organization
//
//   - **Bootstrap**: Process startup and shutdown
//   - **Config**: Configuration loading and validation
//   - **Operator**: Operator start, stop and integrity validation
//   - **Watcher**: Subscription lifecycle and event dispatch
//   - **CRDManager**: Custom resource definition bootstrap
//   - **Scheduler**: Periodic full reconciliation
//   - **Metrics**: Prometheus exporter
//
// # Kubernetes Integration
//
// Init also installs the same handler as the controller-runtime logger and the
// klog logger used by client-go, so reflector and REST client messages share the
// configured format and level.
package logging
