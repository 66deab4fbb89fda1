package commands

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/leapstack-labs/vectorflow/internal/editor"
	"github.com/leapstack-labs/vectorflow/internal/execution"
	"github.com/leapstack-labs/vectorflow/internal/ui"
	"github.com/leapstack-labs/vectorflow/internal/ui/workspace"
	"github.com/spf13/cobra"
)

// ServeOptions holds options for the serve command.
type ServeOptions struct {
	Port int
	Open bool
	Dev  bool
}

// NewServeCommand creates the serve command.
func NewServeCommand(version string) *cobra.Command {
	opts := &ServeOptions{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the pipeline editor and API server",
		Long: `Start a local web server hosting the pipeline editor and the pipeline API.

The server provides:
- The canvas editor with live validation and autosave
- Pipeline parse, validate, auto-layout and execute endpoints
- The saved pipeline library
- Hot reload of the node type registry file`,
		Example: `  # Start on the default port
  vectorflow serve

  # Start on a custom port and open the browser
  vectorflow serve --port 3000 --open`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd, opts, version)
		},
	}

	cmd.Flags().IntVar(&opts.Port, "port", 0, "Port to serve on (default: server.port)")
	cmd.Flags().BoolVar(&opts.Open, "open", false, "Open the editor in the default browser")
	cmd.Flags().BoolVar(&opts.Dev, "dev", false, "Serve static files from disk and enable live reload")
	_ = cmd.Flags().MarkHidden("dev")

	return cmd
}

func runServe(cmd *cobra.Command, opts *ServeOptions, version string) error {
	cc := NewCommandContext(cmd)
	cfg := cc.Cfg

	port := cfg.Server.Port
	if opts.Port != 0 {
		port = opts.Port
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	stores, err := cc.OpenStores(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = stores.Close() }()

	reg, err := cc.Registry()
	if err != nil {
		return err
	}

	// The in-process simulator backs the execute endpoint either way; editor
	// sessions share it unless an external runner is configured.
	sim := cc.Simulator()
	var runner execution.Runner = sim
	if cfg.Runner.URL != "" {
		runner = cc.Runner()
	}
	checker := cc.Checker(reg)
	base := cfg.SessionConfig()

	factory := func(name string) (*editor.Session, error) {
		sc := base
		sc.DraftKey = workspace.DraftKey(base.DraftKey, name)
		return editor.New(sc, editor.Deps{
			Registry: reg,
			Checker:  checker,
			Runner:   runner,
			Drafts:   stores.Drafts,
			Library:  stores.Pipelines,
			Secrets:  cc.Secrets,
			Logger:   cc.Logger.With("workspace", name),
		})
	}

	server := ui.NewServer(ui.Config{
		Sessions:      factory,
		Registry:      reg,
		Library:       stores.Pipelines,
		Executor:      sim,
		Layout:        cfg.LayoutOptions(),
		Port:          port,
		SessionSecret: cfg.Server.SessionSecret,
		RegistryFile:  cfg.Server.RegistryFile,
		Version:       version,
		Dev:           opts.Dev,
		Logger:        cc.Logger,
	})

	url := fmt.Sprintf("http://localhost:%d", port)
	if opts.Open {
		go openBrowser(ctx, url)
	}

	cc.Renderer.Success(fmt.Sprintf("Editor running on %s", url))
	cc.Renderer.Muted("Press Ctrl+C to stop")

	return server.Serve(ctx)
}

// openBrowser opens the default browser to the specified URL.
func openBrowser(ctx context.Context, url string) {
	var cmd *exec.Cmd

	switch runtime.GOOS {
	case "darwin":
		cmd = exec.CommandContext(ctx, "open", url)
	case "linux":
		cmd = exec.CommandContext(ctx, "xdg-open", url)
	case "windows":
		cmd = exec.CommandContext(ctx, "rundll32", "url.dll,FileProtocolHandler", url)
	default:
		return
	}

	_ = cmd.Start()
}
