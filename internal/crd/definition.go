package crd

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"unicode"
	"unicode/utf8"

	apiextensionsv1 "k8s.io/apiextensions-apiserver/pkg/apis/apiextensions/v1"
	"k8s.io/apimachinery/pkg/runtime/schema"
	"sigs.k8s.io/yaml"
)

// DefaultVersion is the served and stored version of created definitions.
const DefaultVersion = "v1"

// Definition describes the custom resource definition of one kind.
type Definition struct {
	// Group is the API group, e.g. "operatorkit.io".
	Group string

	// Kind is the resource kind, e.g. "Cluster".
	Kind string

	// Version defaults to DefaultVersion.
	Version string

	// Plural defaults to lowercase(Kind)+"s".
	Plural string

	ShortNames []string

	// Schema optionally holds "<kind with lowercase first letter>.json".
	Schema fs.FS
}

// PluralName returns the plural resource name.
func (d Definition) PluralName() string {
	if d.Plural != "" {
		return strings.ToLower(d.Plural)
	}
	return strings.ToLower(d.Kind) + "s"
}

// VersionName returns the served version.
func (d Definition) VersionName() string {
	if d.Version == "" {
		return DefaultVersion
	}
	return d.Version
}

// Name returns the object name of the definition, "<plural>.<group>".
func (d Definition) Name() string {
	return d.PluralName() + "." + d.Group
}

// LowerShortNames returns the short names in lower case.
func (d Definition) LowerShortNames() []string {
	if len(d.ShortNames) == 0 {
		return nil
	}
	out := make([]string, 0, len(d.ShortNames))
	for _, n := range d.ShortNames {
		out = append(out, strings.ToLower(n))
	}
	return out
}

// GroupKind returns the group and kind.
func (d Definition) GroupKind() schema.GroupKind {
	return schema.GroupKind{Group: d.Group, Kind: d.Kind}
}

// GroupVersionResource returns the resource watched through the dynamic client.
func (d Definition) GroupVersionResource() schema.GroupVersionResource {
	return schema.GroupVersionResource{Group: d.Group, Version: d.VersionName(), Resource: d.PluralName()}
}

// SchemaFileName returns the schema document name for a kind: the kind with
// its first letter lowercased, followed by ".json".
func SchemaFileName(kind string) string {
	r, size := utf8.DecodeRuneInString(kind)
	if r == utf8.RuneError {
		return kind + ".json"
	}
	return string(unicode.ToLower(r)) + kind[size:] + ".json"
}

// ReadSchema loads the JSON schema of kind from fsys. A nil fsys or a missing
// document yields nil without error.
func ReadSchema(fsys fs.FS, kind string) (*apiextensionsv1.JSONSchemaProps, error) {
	if fsys == nil {
		return nil, nil
	}
	name := SchemaFileName(kind)
	data, err := fs.ReadFile(fsys, name)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read schema %s: %w", name, err)
	}
	var props apiextensionsv1.JSONSchemaProps
	if err := yaml.Unmarshal(data, &props); err != nil {
		return nil, fmt.Errorf("failed to parse schema %s: %w", name, err)
	}
	return &props, nil
}
