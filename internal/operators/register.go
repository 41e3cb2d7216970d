// Package operators collects the operator kinds shipped with operatorkit.
package operators

import (
	"operatorkit/internal/operators/cluster"
	"operatorkit/internal/operators/greeting"
	"operatorkit/internal/registry"
)

// RegisterAll registers every built-in kind with r.
func RegisterAll(r *registry.Registry) error {
	for _, e := range []registry.Entry{
		cluster.Entry(),
		greeting.Entry(),
	} {
		if err := r.Register(e); err != nil {
			return err
		}
	}
	return nil
}
