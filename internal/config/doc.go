// Package config loads the process-wide operatorkit configuration.
//
// Values are layered, later layers winning:
//
//  1. Built-in defaults (see Default)
//  2. An optional YAML file passed with --config
//  3. Environment variables
//  4. Command line flags, applied by cmd/run
//
// # Environment Variables
//
//   - WATCH_NAMESPACE: "~" for the client namespace, "*" for all namespaces,
//     or a comma separated list of namespaces
//   - FULL_RECONCILIATION_INTERVAL_S: seconds between two full reconciliations
//   - RECONCILIATION_INITIAL_DELAY_UNIT_S: base of the staggered first run
//   - OPERATOR_OPERATION_TIMEOUT_MS: bound of list and discovery calls
//   - CRD: force the custom resource shape for every operator
//   - METRICS, METRICS_PORT, METRICS_RUNTIME: Prometheus exporter
//   - LOG_LEVEL, LOG_FORMAT: logging
//   - KUBECONFIG: explicit kubeconfig path
//
// # File Format
//
//	namespaces: ["team-a", "team-b"]
//	crd: false
//	operationTimeout: 5s
//	reconciliation:
//	  interval: 3m
//	  initialDelayUnit: 1s
//	metrics:
//	  enabled: true
//	  port: 8080
//	log:
//	  level: info
//	  format: json
//	disabledOperators: ["Greeting"]
package config
