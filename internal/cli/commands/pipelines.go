package commands

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/leapstack-labs/vectorflow/internal/cli/output"
	"github.com/leapstack-labs/vectorflow/internal/pipefile"
	"github.com/leapstack-labs/vectorflow/internal/state"
	"github.com/spf13/cobra"
)

// NewPipelinesCommand creates the pipelines command group.
func NewPipelinesCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "pipelines",
		Aliases: []string{"pipeline", "pl"},
		Short:   "Manage the saved pipeline library",
		Long: `Manage the pipeline library kept in the state database (or in
Postgres when persistence.postgres_dsn is set). The editor's save and open
actions use the same library.`,
	}

	cmd.AddCommand(newPipelinesListCommand())
	cmd.AddCommand(newPipelinesSaveCommand())
	cmd.AddCommand(newPipelinesShowCommand())
	cmd.AddCommand(newPipelinesDeleteCommand())
	return cmd
}

func newPipelinesListCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List saved pipelines, most recently updated first",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cc := NewCommandContext(cmd)
			stores, err := cc.OpenStores(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = stores.Close() }()

			list, err := stores.Pipelines.ListPipelines(cmd.Context())
			if err != nil {
				return err
			}

			r := cc.Renderer
			if r.EffectiveMode() == output.ModeJSON {
				return r.JSON(list)
			}
			if len(list) == 0 {
				r.Muted("No saved pipelines")
				return nil
			}
			rows := make([][]string, 0, len(list))
			for _, p := range list {
				rows = append(rows, []string{p.ID, p.Name, p.UpdatedAt.Local().Format(time.DateTime)})
			}
			r.Table([]string{"ID", "Name", "Updated"}, rows)
			r.Muted(strconv.Itoa(len(list)) + " pipelines")
			return nil
		},
	}
}

func newPipelinesSaveCommand() *cobra.Command {
	var id, name string

	cmd := &cobra.Command{
		Use:   "save <file>",
		Short: "Save a pipeline file to the library",
		Long: `Save a pipeline file to the library. Without --id a new entry is
created; with --id the entry is replaced and keeps its creation time.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cc := NewCommandContext(cmd)
			p, err := readPipeline(cmd, args[0])
			if err != nil {
				return err
			}
			if name == "" {
				name = pipelineName(p, args[0])
			}

			stores, err := cc.OpenStores(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = stores.Close() }()

			rec, err := stores.Pipelines.SavePipeline(cmd.Context(), id, name, pipefile.Graph(p))
			if err != nil {
				return err
			}

			r := cc.Renderer
			if r.EffectiveMode() == output.ModeJSON {
				return r.JSON(rec.PipelineSummary)
			}
			r.Success(fmt.Sprintf("Saved %q as %s", rec.Name, rec.ID))
			return nil
		},
	}

	cmd.Flags().StringVar(&id, "id", "", "Replace the pipeline with this id")
	cmd.Flags().StringVar(&name, "name", "", "Library name (default: the document name)")
	return cmd
}

func newPipelinesShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Print a saved pipeline as a pipeline file",
		Long: `Print a saved pipeline in the import/export format, ready to be
piped into "vectorflow run -" or "vectorflow layout -".`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cc := NewCommandContext(cmd)
			stores, err := cc.OpenStores(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = stores.Close() }()

			rec, err := stores.Pipelines.GetPipeline(cmd.Context(), args[0])
			if err != nil {
				if errors.Is(err, state.ErrNotFound) {
					return fmt.Errorf("pipeline %s not found", args[0])
				}
				return err
			}
			return pipefile.Write(cmd.OutOrStdout(), pipefile.FromGraph(rec.Name, rec.Data))
		},
	}
}

func newPipelinesDeleteCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "delete <id>",
		Aliases: []string{"rm"},
		Short:   "Delete a saved pipeline",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cc := NewCommandContext(cmd)
			stores, err := cc.OpenStores(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = stores.Close() }()

			deleted, err := stores.Pipelines.DeletePipeline(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if !deleted {
				return fmt.Errorf("pipeline %s: %w", args[0], state.ErrNotFound)
			}
			cc.Renderer.Success("Deleted " + args[0])
			return nil
		},
	}
}
