package config

import "time"

// Config is the top-level configuration of an operatorkit process.
type Config struct {
	// Namespaces to watch. "~" is the client namespace, "*" all namespaces.
	Namespaces []string `yaml:"namespaces,omitempty"`

	// CRD forces the custom resource shape for every operator.
	CRD bool `yaml:"crd,omitempty"`

	// OperationTimeout bounds list calls of the reconciliation and platform detection.
	OperationTimeout time.Duration `yaml:"operationTimeout,omitempty"`

	Kubeconfig string `yaml:"kubeconfig,omitempty"`

	Reconciliation ReconciliationConfig `yaml:"reconciliation"`
	Metrics        MetricsConfig        `yaml:"metrics"`
	Log            LogConfig            `yaml:"log"`

	// DisabledOperators lists kinds that are registered but not started.
	DisabledOperators []string `yaml:"disabledOperators,omitempty"`
}

// ReconciliationConfig times the periodic full reconciliation.
type ReconciliationConfig struct {
	Interval         time.Duration `yaml:"interval,omitempty"`
	InitialDelayUnit time.Duration `yaml:"initialDelayUnit,omitempty"`
}

// MetricsConfig configures the Prometheus exporter.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled,omitempty"`
	Port    int  `yaml:"port,omitempty"`

	// Runtime adds the Go runtime and process collectors.
	Runtime bool `yaml:"runtime,omitempty"`
}

// LogConfig selects the log level and format.
type LogConfig struct {
	Level  string `yaml:"level,omitempty"`
	Format string `yaml:"format,omitempty"`
}

// OperatorDisabled reports whether kind is listed in DisabledOperators.
func (c Config) OperatorDisabled(kind string) bool {
	for _, k := range c.DisabledOperators {
		if k == kind {
			return true
		}
	}
	return false
}
