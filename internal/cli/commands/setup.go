package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/leapstack-labs/vectorflow/internal/cli/config"
	"github.com/leapstack-labs/vectorflow/internal/cli/output"
	"github.com/leapstack-labs/vectorflow/internal/execution"
	"github.com/leapstack-labs/vectorflow/internal/pipefile"
	"github.com/leapstack-labs/vectorflow/internal/registry"
	"github.com/leapstack-labs/vectorflow/internal/simulator"
	"github.com/leapstack-labs/vectorflow/internal/state"
	"github.com/leapstack-labs/vectorflow/internal/validate"
	"github.com/leapstack-labs/vectorflow/pkg/core"
	"github.com/spf13/cobra"
)

// CommandContext holds common dependencies for CLI commands.
type CommandContext struct {
	Cfg      *config.Config
	Logger   *slog.Logger
	Renderer *output.Renderer
}

// NewCommandContext creates a CommandContext from the loaded configuration.
func NewCommandContext(cmd *cobra.Command) *CommandContext {
	cfg := getConfig()
	logger := config.GetLogger(cmd.Context())
	r := output.NewRenderer(cmd.OutOrStdout(), cmd.ErrOrStderr(), output.Mode(cfg.Output))

	return &CommandContext{
		Cfg:      cfg,
		Logger:   logger,
		Renderer: r,
	}
}

// getConfig returns the current configuration, or the defaults when no
// configuration was loaded.
func getConfig() *config.Config {
	if cfg := config.GetCurrentConfig(); cfg != nil {
		return cfg
	}
	return config.Default()
}

// OpenStores opens the persistence backends. The caller closes them.
func (c *CommandContext) OpenStores(ctx context.Context) (*state.Stores, error) {
	if path := c.Cfg.StatePath; path != "" && path != ":memory:" {
		if dir := filepath.Dir(path); dir != "." && dir != "" {
			if err := os.MkdirAll(dir, 0750); err != nil {
				return nil, fmt.Errorf("failed to create state directory: %w", err)
			}
		}
	}
	return state.Open(ctx, c.Cfg.StoreConfig())
}

// Registry returns the node type catalog, overlaid with the configured
// registry file when one is set.
func (c *CommandContext) Registry() (*registry.Registry, error) {
	if c.Cfg.Server.RegistryFile == "" {
		return registry.New(), nil
	}
	reg, err := registry.Load(c.Cfg.Server.RegistryFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load node types: %w", err)
	}
	return reg, nil
}

// Checker returns the remote validation service when validator.url is set
// and the local analyzer otherwise.
func (c *CommandContext) Checker(reg *registry.Registry) validate.Checker {
	if c.Cfg.Validator.URL != "" {
		return validate.NewRemote(c.Cfg.Validator.URL)
	}
	return validate.NewLocal(reg)
}

// Runner returns the execution service when runner.url is set and the
// in-process simulator otherwise.
func (c *CommandContext) Runner() execution.Runner {
	if c.Cfg.Runner.URL != "" {
		return execution.NewHTTPRunner(c.Cfg.Runner.URL, nil)
	}
	return c.Simulator()
}

// Simulator returns an in-process simulated runner.
func (c *CommandContext) Simulator() *simulator.Service {
	return simulator.New(
		simulator.WithStepDelay(c.Cfg.Server.StepDelay),
		simulator.WithLogger(c.Logger),
	)
}

// Secrets returns the env map forwarded to runners.
func (c *CommandContext) Secrets() map[string]string {
	return c.Cfg.Runner.Secrets
}

// readPipeline reads a pipeline file; "-" reads stdin.
func readPipeline(cmd *cobra.Command, path string) (core.PipelineFile, error) {
	if path == "-" {
		return pipefile.Read(cmd.InOrStdin())
	}
	f, err := os.Open(path) //nolint:gosec
	if err != nil {
		return core.PipelineFile{}, fmt.Errorf("failed to open pipeline file: %w", err)
	}
	defer func() { _ = f.Close() }()

	p, err := pipefile.Read(f)
	if err != nil {
		return core.PipelineFile{}, fmt.Errorf("%s: %w", path, err)
	}
	return p, nil
}

// pipelineName falls back to the file name when the document has none.
func pipelineName(p core.PipelineFile, path string) string {
	if p.Name != "" {
		return p.Name
	}
	if path == "-" {
		return "pipeline"
	}
	base := filepath.Base(path)
	return base[:len(base)-len(filepath.Ext(base))]
}
