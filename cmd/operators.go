package cmd

import (
	"io"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"operatorkit/internal/operator"
	"operatorkit/internal/operators"
	"operatorkit/internal/registry"
	"operatorkit/pkg/strings"
)

func newOperatorsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "operators",
		Short: "List the operator kinds built into this binary",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			r := registry.New()
			if err := operators.RegisterAll(r); err != nil {
				return err
			}
			renderOperators(cmd.OutOrStdout(), r)
			return nil
		},
	}
}

func renderOperators(out io.Writer, r *registry.Registry) {
	t := table.NewWriter()
	t.SetOutputMirror(out)
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"Kind", "Shape", "Description"})
	for _, e := range r.Entries() {
		shape := operator.ShapeConfigMap
		if e.CRD {
			shape = operator.ShapeCustomResource
		}
		t.AppendRow(table.Row{e.Kind, shape, strings.Shorten(e.Description, strings.DescriptionWidth)})
	}
	t.Render()
}
