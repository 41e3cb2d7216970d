package operators

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"operatorkit/internal/operator"
	"operatorkit/internal/registry"
)

func TestRegisterAll(t *testing.T) {
	r := registry.New()
	require.NoError(t, RegisterAll(r))
	assert.Equal(t, []string{"Cluster", "Greeting"}, r.Kinds())

	assert.ErrorIs(t, RegisterAll(r), registry.ErrDuplicateKind)

	ops := r.Build(operator.Runtime{CurrentNamespace: "ops"}, registry.Settings{Namespace: operator.CurrentNamespace})
	require.Len(t, ops, 2)
	for _, op := range ops {
		assert.True(t, op.Enabled())
		assert.Equal(t, operator.NamespaceScope("ops"), op.Namespace())
	}
}
