package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/leapstack-labs/vectorflow/internal/cli/output"
	intconfig "github.com/leapstack-labs/vectorflow/internal/config"
	"github.com/spf13/cobra"
)

// NewInitCommand creates the init command.
func NewInitCommand() *cobra.Command {
	var force bool
	var example bool

	cmd := &cobra.Command{
		Use:   "init [directory]",
		Short: "Initialize a new VectorFlow project",
		Long: `Initialize a new VectorFlow project with a configuration file and a
starter pipeline.

This creates:
  - vectorflow.yaml configuration file
  - pipelines/ directory with a starter pipeline
  - .gitignore excluding the state database and secrets

Use --example to also create a project node type registry, a secrets
template and a support reply pipeline with a human approval step.`,
		Example: `  # Initialize in current directory
  vectorflow init

  # Initialize with a full working example
  vectorflow init --example

  # Initialize in a new directory
  vectorflow init my-pipelines --example`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) > 0 {
				dir = args[0]
			}

			cfg := getConfig()
			r := output.NewRenderer(cmd.OutOrStdout(), cmd.ErrOrStderr(), output.Mode(cfg.Output))

			template := "minimal"
			if example {
				template = "example"
			}
			return runInit(r, dir, template, force)
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite existing configuration")
	cmd.Flags().BoolVar(&example, "example", false, "Create a full example project with a node type registry and an approval pipeline")

	return cmd
}

func runInit(r *output.Renderer, dir, template string, force bool) error {
	if dir != "." {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	configPath := filepath.Join(dir, intconfig.ConfigFileName)
	if _, err := os.Stat(configPath); err == nil && !force {
		return fmt.Errorf("%s already exists. Use --force to overwrite", intconfig.ConfigFileName)
	}

	files, err := scaffold(template, dir, force)
	if err != nil {
		return fmt.Errorf("failed to initialize project: %w", err)
	}

	for i, group := range []struct{ key, title string }{
		{groupConfig, "Configuration"},
		{groupPipelines, "Pipelines"},
	} {
		if i > 0 {
			r.Println("")
		}
		r.Header(2, group.title)
		for _, f := range files {
			if f.Group != group.key {
				continue
			}
			if f.Status == fileKept {
				r.StatusLine(f.Path, "warning", "kept existing file")
				continue
			}
			r.StatusLine(f.Path, "success", f.Status)
		}
	}

	r.Println("")
	r.Success("VectorFlow project initialized!")
	r.Println("")
	r.Println("Next steps:")
	r.Println("  vectorflow validate 'pipelines/*.json'   Check the pipelines")
	r.Println("  vectorflow run pipelines/hello.json      Run one from the terminal")
	r.Println("  vectorflow serve --open                  Edit them in the browser")

	return nil
}
