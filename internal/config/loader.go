package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"operatorkit/pkg/logging"
)

// Environment variable names.
const (
	EnvWatchNamespace   = "WATCH_NAMESPACE"
	EnvInterval         = "FULL_RECONCILIATION_INTERVAL_S"
	EnvInitialDelayUnit = "RECONCILIATION_INITIAL_DELAY_UNIT_S"
	EnvOperationTimeout = "OPERATOR_OPERATION_TIMEOUT_MS"
	EnvCRD              = "CRD"
	EnvMetrics          = "METRICS"
	EnvMetricsPort      = "METRICS_PORT"
	EnvMetricsRuntime   = "METRICS_RUNTIME"
	EnvLogLevel         = "LOG_LEVEL"
	EnvLogFormat        = "LOG_FORMAT"
	EnvKubeconfig       = "KUBECONFIG"
)

// LookupFunc reads one environment variable.
type LookupFunc func(key string) (string, bool)

// Load builds the configuration from defaults, the optional file at path and
// the process environment, then validates it.
func Load(path string) (Config, error) {
	return LoadWithLookup(path, os.LookupEnv)
}

// LoadWithLookup is Load with a custom environment.
func LoadWithLookup(path string, lookup LookupFunc) (Config, error) {
	cfg := Default()

	if path != "" {
		if err := LoadFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}

	if err := ApplyEnv(&cfg, lookup); err != nil {
		return Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadFile merges the YAML file at path into cfg. A missing file leaves cfg
// unchanged.
func LoadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			logging.Info("Config", "No configuration file found at %s, using defaults", path)
			return nil
		}
		return fmt.Errorf("failed to read configuration from %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("error loading configuration from %s: %w", path, err)
	}
	logging.Info("Config", "Loaded configuration from %s", path)
	return nil
}

// ApplyEnv overrides cfg with the environment variables that are set.
// Unparsable values are reported together.
func ApplyEnv(cfg *Config, lookup LookupFunc) error {
	var errs ValidationErrors

	if v, ok := lookup(EnvWatchNamespace); ok && strings.TrimSpace(v) != "" {
		cfg.Namespaces = SplitNamespaces(v)
	}

	seconds := func(key string, target *time.Duration) {
		if v, ok := lookup(key); ok && v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs.Add(key, "must be a whole number of seconds", v)
				return
			}
			*target = time.Duration(n) * time.Second
		}
	}
	seconds(EnvInterval, &cfg.Reconciliation.Interval)
	seconds(EnvInitialDelayUnit, &cfg.Reconciliation.InitialDelayUnit)

	if v, ok := lookup(EnvOperationTimeout); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			errs.Add(EnvOperationTimeout, "must be a whole number of milliseconds", v)
		} else {
			cfg.OperationTimeout = time.Duration(n) * time.Millisecond
		}
	}

	boolean := func(key string, target *bool) {
		if v, ok := lookup(key); ok && v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs.Add(key, "must be true or false", v)
				return
			}
			*target = b
		}
	}
	boolean(EnvCRD, &cfg.CRD)
	boolean(EnvMetrics, &cfg.Metrics.Enabled)
	boolean(EnvMetricsRuntime, &cfg.Metrics.Runtime)

	if v, ok := lookup(EnvMetricsPort); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			errs.Add(EnvMetricsPort, "must be a port number", v)
		} else {
			cfg.Metrics.Port = n
		}
	}

	if v, ok := lookup(EnvLogLevel); ok && v != "" {
		cfg.Log.Level = v
	}
	if v, ok := lookup(EnvLogFormat); ok && v != "" {
		cfg.Log.Format = v
	}
	if v, ok := lookup(EnvKubeconfig); ok && v != "" {
		cfg.Kubeconfig = v
	}

	if errs.HasErrors() {
		return errs
	}
	return nil
}

// SplitNamespaces parses a comma separated namespace list.
func SplitNamespaces(v string) []string {
	var out []string
	for _, ns := range strings.Split(v, ",") {
		if ns = strings.TrimSpace(ns); ns != "" {
			out = append(out, ns)
		}
	}
	return out
}
