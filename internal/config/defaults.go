package config

import "time"

const (
	DefaultInterval         = 180 * time.Second
	DefaultInitialDelayUnit = time.Second
	DefaultOperationTimeout = 5 * time.Second
	DefaultMetricsPort      = 8080
)

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Namespaces:       []string{"~"},
		OperationTimeout: DefaultOperationTimeout,
		Reconciliation: ReconciliationConfig{
			Interval:         DefaultInterval,
			InitialDelayUnit: DefaultInitialDelayUnit,
		},
		Metrics: MetricsConfig{
			Port: DefaultMetricsPort,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}
