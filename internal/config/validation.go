package config

import (
	"fmt"
	"strings"

	"k8s.io/apimachinery/pkg/util/validation"

	"operatorkit/internal/operator"
	"operatorkit/pkg/logging"
)

// ValidationError represents a validation error with context
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

// Error implements the error interface
func (ve ValidationError) Error() string {
	if ve.Field == "" {
		return ve.Message
	}
	if ve.Value != nil {
		return fmt.Sprintf("field '%s': %s (got %v)", ve.Field, ve.Message, ve.Value)
	}
	return fmt.Sprintf("field '%s': %s", ve.Field, ve.Message)
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface for multiple validation errors
func (ve ValidationErrors) Error() string {
	if len(ve) == 0 {
		return "no validation errors"
	}
	if len(ve) == 1 {
		return ve[0].Error()
	}

	var messages []string
	for _, err := range ve {
		messages = append(messages, err.Error())
	}
	return fmt.Sprintf("validation failed: %s", strings.Join(messages, "; "))
}

// HasErrors returns true if there are any validation errors
func (ve ValidationErrors) HasErrors() bool {
	return len(ve) > 0
}

// Add adds a new validation error
func (ve *ValidationErrors) Add(field, message string, value ...interface{}) {
	var val interface{}
	if len(value) > 0 {
		val = value[0]
	}
	*ve = append(*ve, ValidationError{
		Field:   field,
		Value:   val,
		Message: message,
	})
}

// Validate checks every value and reports all problems at once.
func (c Config) Validate() error {
	var errs ValidationErrors

	if len(c.Namespaces) == 0 {
		errs.Add("namespaces", "at least one namespace scope is required")
	}
	for _, ns := range c.Namespaces {
		if ns == string(operator.CurrentNamespace) || ns == string(operator.AllNamespaces) {
			continue
		}
		if problems := validation.IsDNS1123Label(ns); len(problems) > 0 {
			errs.Add("namespaces", strings.Join(problems, ", "), ns)
		}
	}

	if c.Reconciliation.Interval <= 0 {
		errs.Add("reconciliation.interval", "must be positive", c.Reconciliation.Interval)
	}
	if c.Reconciliation.InitialDelayUnit <= 0 {
		errs.Add("reconciliation.initialDelayUnit", "must be positive", c.Reconciliation.InitialDelayUnit)
	}
	if c.OperationTimeout < 0 {
		errs.Add("operationTimeout", "must not be negative", c.OperationTimeout)
	}

	if c.Metrics.Enabled && (c.Metrics.Port < 1 || c.Metrics.Port > 65535) {
		errs.Add("metrics.port", "must be between 1 and 65535", c.Metrics.Port)
	}

	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		errs.Add("log.level", err.Error())
	}
	switch logging.Format(c.Log.Format) {
	case logging.FormatText, logging.FormatJSON, "":
	default:
		errs.Add("log.format", "must be text or json", c.Log.Format)
	}

	if errs.HasErrors() {
		return errs
	}
	return nil
}

// Scopes returns the namespace scopes to watch. "*" wins over every other
// entry; duplicates are removed; order is preserved.
func (c Config) Scopes() []operator.NamespaceScope {
	seen := make(map[string]bool)
	var out []operator.NamespaceScope
	for _, ns := range c.Namespaces {
		if ns == string(operator.AllNamespaces) {
			return []operator.NamespaceScope{operator.AllNamespaces}
		}
		if seen[ns] {
			continue
		}
		seen[ns] = true
		out = append(out, operator.NamespaceScope(ns))
	}
	if len(out) == 0 {
		return []operator.NamespaceScope{operator.CurrentNamespace}
	}
	return out
}
