package commands

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/bytedance/sonic"
	"github.com/chzyer/readline"
	"github.com/leapstack-labs/vectorflow/internal/cli/output"
	"github.com/leapstack-labs/vectorflow/internal/execution"
	"github.com/leapstack-labs/vectorflow/pkg/core"
	"github.com/spf13/cobra"
)

// RunOptions holds options for the run command.
type RunOptions struct {
	// Inputs answer pauses in order before falling back to the prompt.
	Inputs   []string
	NoPrompt bool
}

// NewRunCommand creates the run command.
func NewRunCommand() *cobra.Command {
	opts := &RunOptions{}

	cmd := &cobra.Command{
		Use:   "run <file>",
		Short: "Execute a pipeline and stream its progress",
		Long: `Execute a pipeline file against the configured runner.

Progress is printed as nodes start and finish. When a node that requires
approval pauses the run, you are prompted for input and the run resumes
with it. Pass --input to answer pauses non-interactively; answers are used
in order. The in-process simulator is used unless --runner names an
execution service.`,
		Example: `  # Run interactively
  vectorflow run pipeline.json

  # Answer the approval step from the command line
  vectorflow run pipeline.json --input "looks good" --no-prompt`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPipeline(cmd, args[0], opts)
		},
	}

	cmd.Flags().StringArrayVarP(&opts.Inputs, "input", "i", nil, "Answer for the next paused node (repeatable)")
	cmd.Flags().BoolVar(&opts.NoPrompt, "no-prompt", false, "Fail instead of prompting when a pause has no --input")

	return cmd
}

func runPipeline(cmd *cobra.Command, path string, opts *RunOptions) error {
	cc := NewCommandContext(cmd)
	r := cc.Renderer

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	p, err := readPipeline(cmd, path)
	if err != nil {
		return err
	}
	g := core.Graph{Nodes: p.Nodes, Edges: p.Edges}
	name := pipelineName(p, path)

	reg, err := cc.Registry()
	if err != nil {
		return err
	}

	changed := make(chan struct{}, 1)
	o := execution.New(cc.Runner(),
		execution.WithGate(cc.Checker(reg)),
		execution.WithLogger(cc.Logger),
		execution.WithSecrets(cc.Secrets),
		execution.WithNotify(func() {
			select {
			case changed <- struct{}{}:
			default:
			}
		}),
	)

	live := r.EffectiveMode() != output.ModeJSON
	if live {
		r.Header(1, "Running "+name)
	}

	if err := o.Start(ctx, g); err != nil {
		var nr *execution.NotRunnableError
		if errors.As(err, &nr) && nr.Verdict != nil && live {
			for _, e := range nr.Verdict.Validation.Errors {
				r.Error(fmt.Sprintf("%s: %s", e.NodeID, e.Message))
			}
		}
		return err
	}

	logs := &logPrinter{r: r, enabled: live}
	inputs := opts.Inputs
	var prompt *readline.Instance
	defer func() {
		if prompt != nil {
			_ = prompt.Close()
		}
	}()

	for {
		select {
		case <-changed:
			logs.flush(o.Snapshot())
			continue
		case <-ctx.Done():
			o.Cancel()
			<-o.Done()
		case <-o.Done():
		}

		snap := o.Snapshot()
		logs.flush(snap)
		if snap.State != core.RunPaused {
			break
		}

		if live {
			r.Println("")
			r.Println(r.Styles().StatusPaused.String() + " " + r.Styles().Bold.Render(snap.PausedNodeID) + ": " + snap.PauseMessage)
		}

		var input string
		switch {
		case len(inputs) > 0:
			input, inputs = inputs[0], inputs[1:]
			if live {
				r.Muted("input: " + input)
			}
		case opts.NoPrompt:
			o.Cancel()
			return fmt.Errorf("run paused at %s and no --input was left to answer it", snap.PausedNodeID)
		default:
			if prompt == nil {
				prompt, err = newPrompt(cmd)
				if err != nil {
					o.Cancel()
					return err
				}
			}
			input, err = readInput(prompt)
			if err != nil {
				o.Cancel()
				return err
			}
		}

		if err := o.Resume(ctx, g, input); err != nil {
			if errors.Is(err, execution.ErrEmptyInput) {
				r.Warning("input cannot be empty")
				continue
			}
			return err
		}
	}

	snap := o.Snapshot()
	if !live {
		if err := r.JSON(snap); err != nil {
			return err
		}
	} else {
		renderRunSummary(r, p, snap)
	}

	switch snap.State {
	case core.RunComplete:
		return nil
	case core.RunCancelled:
		return execution.ErrCancelled
	default:
		if err := o.Err(); err != nil {
			return err
		}
		return fmt.Errorf("run ended in state %s", snap.State)
	}
}

// newPrompt opens the approval prompt on the command's streams.
func newPrompt(cmd *cobra.Command) (*readline.Instance, error) {
	cfg := &readline.Config{
		Prompt:          "approve> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
		Stdout:          cmd.OutOrStdout(),
		Stderr:          cmd.ErrOrStderr(),
	}
	if in, ok := cmd.InOrStdin().(io.ReadCloser); ok {
		cfg.Stdin = in
	} else {
		cfg.Stdin = io.NopCloser(cmd.InOrStdin())
	}
	rl, err := readline.NewEx(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open prompt: %w", err)
	}
	return rl, nil
}

// readInput reads one answer; an interrupt or EOF abandons the run.
func readInput(rl *readline.Instance) (string, error) {
	line, err := rl.Readline()
	if errors.Is(err, readline.ErrInterrupt) || errors.Is(err, io.EOF) {
		return "", execution.ErrCancelled
	}
	if err != nil {
		return "", fmt.Errorf("failed to read input: %w", err)
	}
	return line, nil
}

// logPrinter writes run log entries once each. Streamed output is
// coalesced in place by the orchestrator, so it is left to the summary.
type logPrinter struct {
	r       *output.Renderer
	enabled bool
	printed int
}

func (lp *logPrinter) flush(snap execution.Snapshot) {
	if !lp.enabled {
		return
	}
	styles := lp.r.Styles()
	for ; lp.printed < len(snap.Logs); lp.printed++ {
		e := snap.Logs[lp.printed]
		msg := e.Message
		if e.NodeID != "" {
			msg = styles.NodeID.Render(e.NodeID) + " " + msg
		}
		switch e.Level {
		case core.LogStream:
			continue
		case core.LogSuccess, core.LogResult:
			lp.r.Println(styles.StatusSuccess.String() + " " + msg)
		case core.LogWarning:
			lp.r.Println(styles.Warning.Render("! ") + msg)
		case core.LogError:
			lp.r.Println(styles.StatusFailed.String() + " " + msg)
		default:
			lp.r.Println(styles.StatusRunning.String() + " " + msg)
		}
	}
}

func renderRunSummary(r *output.Renderer, p core.PipelineFile, snap execution.Snapshot) {
	types := make(map[string]string, len(p.Nodes))
	for _, n := range p.Nodes {
		types[n.ID] = n.Type
	}

	rows := make([][]string, 0, len(snap.Plan))
	for _, id := range snap.Plan {
		status := string(snap.Statuses[id])
		if status == "" {
			status = string(core.NodePending)
		}
		result := ""
		if v, ok := snap.Results[id]; ok {
			result = output.Truncate(formatResult(v), 60)
		}
		rows = append(rows, []string{id, types[id], status, result})
	}

	r.Println("")
	if len(rows) > 0 {
		r.Table([]string{"Node", "Type", "Status", "Result"}, rows)
		r.Println("")
	}
	r.KeyValue("Run", snap.RunID)
	r.KeyValue("State", string(snap.State))
	r.KeyValue("Tokens", strconv.FormatInt(snap.Metrics.Tokens, 10))
	r.KeyValue("Cost", output.FormatCost(snap.Metrics.Cost))
	if snap.Error != "" {
		r.Error(snap.Error)
	}
}

func formatResult(v any) string {
	if s, ok := v.(string); ok {
		return strings.ReplaceAll(s, "\n", " ")
	}
	s, err := sonic.MarshalString(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return s
}
