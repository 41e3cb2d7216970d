package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"operatorkit/internal/operator"
)

func env(values map[string]string) LookupFunc {
	return func(key string) (string, bool) {
		v, ok := values[key]
		return v, ok
	}
}

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := LoadWithLookup("", env(nil))
	require.NoError(t, err)

	assert.Equal(t, Default(), cfg)
	assert.Equal(t, []operator.NamespaceScope{operator.CurrentNamespace}, cfg.Scopes())
	assert.Equal(t, 180*time.Second, cfg.Reconciliation.Interval)
}

func TestLoad_FileThenEnv(t *testing.T) {
	path := writeFile(t, `
namespaces: ["team-a", "team-b"]
operationTimeout: 2s
reconciliation:
  interval: 1m
metrics:
  enabled: true
  port: 9090
log:
  format: json
disabledOperators: ["Greeting"]
`)

	cfg, err := LoadWithLookup(path, env(map[string]string{
		EnvInterval:    "30",
		EnvMetricsPort: "9100",
		EnvCRD:         "true",
	}))
	require.NoError(t, err)

	assert.Equal(t, []string{"team-a", "team-b"}, cfg.Namespaces)
	assert.Equal(t, 2*time.Second, cfg.OperationTimeout)
	assert.Equal(t, 30*time.Second, cfg.Reconciliation.Interval, "environment wins over the file")
	assert.Equal(t, time.Second, cfg.Reconciliation.InitialDelayUnit, "unset values keep their default")
	assert.True(t, cfg.Metrics.Enabled)
	assert.Equal(t, 9100, cfg.Metrics.Port)
	assert.True(t, cfg.CRD)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.True(t, cfg.OperatorDisabled("Greeting"))
	assert.False(t, cfg.OperatorDisabled("Cluster"))
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadWithLookup(filepath.Join(t.TempDir(), "absent.yaml"), env(nil))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_MalformedFile(t *testing.T) {
	_, err := LoadWithLookup(writeFile(t, "namespaces: [unterminated"), env(nil))
	assert.Error(t, err)
}

func TestApplyEnv(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		check   func(t *testing.T, cfg Config)
		wantErr string
	}{
		{
			name: "namespace list",
			env:  map[string]string{EnvWatchNamespace: " team-a, ,team-b "},
			check: func(t *testing.T, cfg Config) {
				assert.Equal(t, []string{"team-a", "team-b"}, cfg.Namespaces)
			},
		},
		{
			name: "timeout in milliseconds",
			env:  map[string]string{EnvOperationTimeout: "250"},
			check: func(t *testing.T, cfg Config) {
				assert.Equal(t, 250*time.Millisecond, cfg.OperationTimeout)
			},
		},
		{
			name: "metrics switches",
			env:  map[string]string{EnvMetrics: "true", EnvMetricsRuntime: "1"},
			check: func(t *testing.T, cfg Config) {
				assert.True(t, cfg.Metrics.Enabled)
				assert.True(t, cfg.Metrics.Runtime)
			},
		},
		{
			name:    "bad interval",
			env:     map[string]string{EnvInterval: "3m"},
			wantErr: EnvInterval,
		},
		{
			name:    "bad boolean",
			env:     map[string]string{EnvMetrics: "sometimes"},
			wantErr: EnvMetrics,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			err := ApplyEnv(&cfg, env(tt.env))
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			tt.check(t, cfg)
		})
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(*Config)
		problems int
	}{
		{name: "defaults", mutate: func(*Config) {}},
		{name: "all namespaces", mutate: func(c *Config) { c.Namespaces = []string{"*"} }},
		{name: "invalid namespace", mutate: func(c *Config) { c.Namespaces = []string{"Team_A"} }, problems: 1},
		{name: "no namespaces", mutate: func(c *Config) { c.Namespaces = nil }, problems: 1},
		{name: "zero interval", mutate: func(c *Config) { c.Reconciliation.Interval = 0 }, problems: 1},
		{name: "metrics port out of range", mutate: func(c *Config) {
			c.Metrics.Enabled = true
			c.Metrics.Port = 70000
		}, problems: 1},
		{name: "unknown log level and format", mutate: func(c *Config) {
			c.Log.Level = "loud"
			c.Log.Format = "xml"
		}, problems: 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)

			err := cfg.Validate()
			if tt.problems == 0 {
				assert.NoError(t, err)
				return
			}
			var errs ValidationErrors
			require.ErrorAs(t, err, &errs)
			assert.Len(t, errs, tt.problems)
		})
	}
}

func TestScopes(t *testing.T) {
	tests := []struct {
		name       string
		namespaces []string
		want       []operator.NamespaceScope
	}{
		{name: "empty", want: []operator.NamespaceScope{operator.CurrentNamespace}},
		{name: "current", namespaces: []string{"~"}, want: []operator.NamespaceScope{operator.CurrentNamespace}},
		{name: "all wins", namespaces: []string{"team-a", "*"}, want: []operator.NamespaceScope{operator.AllNamespaces}},
		{name: "deduplicated", namespaces: []string{"team-a", "team-b", "team-a"}, want: []operator.NamespaceScope{"team-a", "team-b"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Config{Namespaces: tt.namespaces}.Scopes())
		})
	}
}
