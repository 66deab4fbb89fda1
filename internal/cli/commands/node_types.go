package commands

import (
	"strconv"
	"strings"

	"github.com/leapstack-labs/vectorflow/internal/cli/output"
	"github.com/leapstack-labs/vectorflow/pkg/core"
	"github.com/spf13/cobra"
)

// NewNodeTypesCommand creates the node-types command.
func NewNodeTypesCommand() *cobra.Command {
	var category string

	cmd := &cobra.Command{
		Use:     "node-types",
		Aliases: []string{"types"},
		Short:   "List the node types available to pipelines",
		Long: `List the node type catalog: built-in types overlaid with the
registry file configured as server.registry_file.`,
		Example: `  # All types
  vectorflow node-types

  # Only AI nodes, as JSON
  vectorflow node-types --category AI -o json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cc := NewCommandContext(cmd)
			reg, err := cc.Registry()
			if err != nil {
				return err
			}

			types := reg.List()
			if category != "" {
				filtered := types[:0:0]
				for _, nt := range types {
					if strings.EqualFold(nt.Category, category) {
						filtered = append(filtered, nt)
					}
				}
				types = filtered
			}

			r := cc.Renderer
			if r.EffectiveMode() == output.ModeJSON {
				return r.JSON(types)
			}

			rows := make([][]string, 0, len(types))
			for _, nt := range types {
				rows = append(rows, []string{
					nt.Type,
					nt.Label,
					nt.Category,
					limitLabel(nt.MaxInputs) + "/" + limitLabel(nt.MaxOutputs),
					requiredFields(nt),
					nt.Secret,
				})
			}
			r.Table([]string{"Type", "Label", "Category", "In/Out", "Required", "Secret"}, rows)
			r.Muted(strconv.Itoa(len(types)) + " node types")
			return nil
		},
	}

	cmd.Flags().StringVarP(&category, "category", "c", "", "Only list types in this category")
	return cmd
}

func limitLabel(n int) string {
	if n < 0 {
		return "∞"
	}
	return strconv.Itoa(n)
}

func requiredFields(nt core.NodeType) string {
	var names []string
	for _, f := range nt.Fields {
		if f.Required {
			names = append(names, f.Name)
		}
	}
	return strings.Join(names, ", ")
}
