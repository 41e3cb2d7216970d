package operator

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"k8s.io/apimachinery/pkg/labels"
)

func TestDescriptor_Validate(t *testing.T) {
	tests := []struct {
		name     string
		desc     Descriptor
		problems int
	}{
		{
			name: "valid",
			desc: Descriptor{Kind: "Cluster", Prefix: "operatorkit.io/"},
		},
		{
			name:     "empty kind",
			desc:     Descriptor{Prefix: "operatorkit.io/"},
			problems: 1,
		},
		{
			name:     "empty prefix",
			desc:     Descriptor{Kind: "Cluster"},
			problems: 1,
		},
		{
			name:     "prefix without separator",
			desc:     Descriptor{Kind: "Cluster", Prefix: "operatorkit.io"},
			problems: 1,
		},
		{
			name:     "everything missing",
			desc:     Descriptor{},
			problems: 2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.desc.Validate()
			if tt.problems == 0 {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidDescriptor))

			var verr *ValidationError
			require.True(t, errors.As(err, &verr))
			assert.Len(t, verr.Problems, tt.problems)
		})
	}
}

func TestDescriptor_Names(t *testing.T) {
	d := Descriptor{Kind: "SparkCluster", Prefix: "radanalytics.io/"}

	assert.Equal(t, "sparkcluster", d.EntityName())
	assert.Equal(t, "'sparkcluster' operator", d.Name())
	assert.Equal(t, "radanalytics.io", d.Group())
	assert.Equal(t, ShapeConfigMap, d.Shape())

	d.CRD = true
	assert.Equal(t, ShapeCustomResource, d.Shape())
}

func TestDescriptor_LabelSelector(t *testing.T) {
	d := Descriptor{Kind: "Greeting", Prefix: "operatorkit.io/", Labels: map[string]string{"team": "a"}}
	sel := d.LabelSelector()

	assert.True(t, sel.Matches(labels.Set{"operatorkit.io/kind": "greeting", "team": "a"}))
	assert.False(t, sel.Matches(labels.Set{"operatorkit.io/kind": "greeting"}))
	assert.False(t, sel.Matches(labels.Set{"operatorkit.io/kind": "cluster", "team": "a"}))
}

func TestNamespaceScope(t *testing.T) {
	tests := []struct {
		scope   NamespaceScope
		current string
		want    NamespaceScope
		list    string
	}{
		{scope: CurrentNamespace, current: "ops", want: "ops", list: "ops"},
		{scope: "", current: "ops", want: "ops", list: "ops"},
		{scope: AllNamespaces, current: "ops", want: AllNamespaces, list: ""},
		{scope: "team-a", current: "ops", want: "team-a", list: "team-a"},
	}

	for _, tt := range tests {
		t.Run(string(tt.scope), func(t *testing.T) {
			got := tt.scope.Resolve(tt.current)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.list, got.ListNamespace())
		})
	}

	assert.True(t, AllNamespaces.IsAll())
	assert.Equal(t, "all namespaces", AllNamespaces.String())
	assert.Equal(t, "team-a", NamespaceScope("team-a").String())
}
