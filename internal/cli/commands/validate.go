package commands

import (
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/leapstack-labs/vectorflow/internal/cli/output"
	"github.com/leapstack-labs/vectorflow/pkg/core"
	"github.com/spf13/cobra"
)

// FileVerdict is the validation outcome for one pipeline file.
type FileVerdict struct {
	File     string        `json:"file"`
	Name     string        `json:"name,omitempty"`
	Runnable bool          `json:"runnable"`
	Verdict  *core.Verdict `json:"verdict,omitempty"`
	Error    string        `json:"error,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <file|glob>...",
		Short: "Check pipelines for cycles and schema errors",
		Long: `Analyze and validate pipeline files.

Each file is checked for cycles, unknown node types, missing required
fields and connection limits. Arguments may be doublestar globs such as
"pipelines/**/*.json". The command fails when any pipeline is not
runnable.`,
		Example: `  # Validate one file
  vectorflow validate pipeline.json

  # Validate a tree of pipelines as JSON
  vectorflow validate 'pipelines/**/*.json' -o json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(cmd, args)
		},
	}
	return cmd
}

// expandGlobs resolves every argument to the files it names. Plain paths
// pass through so a missing file is reported, not silently skipped.
func expandGlobs(args []string) ([]string, error) {
	var files []string
	for _, arg := range args {
		if arg == "-" || !strings.ContainsAny(arg, "*?[{") {
			files = append(files, arg)
			continue
		}
		matches, err := doublestar.FilepathGlob(arg, doublestar.WithFilesOnly())
		if err != nil {
			return nil, fmt.Errorf("invalid pattern %q: %w", arg, err)
		}
		if len(matches) == 0 {
			return nil, fmt.Errorf("no files match %q", arg)
		}
		files = append(files, matches...)
	}
	slices.Sort(files)
	return slices.Compact(files), nil
}

func runValidate(cmd *cobra.Command, args []string) error {
	cc := NewCommandContext(cmd)
	ctx := cmd.Context()

	files, err := expandGlobs(args)
	if err != nil {
		return err
	}

	reg, err := cc.Registry()
	if err != nil {
		return err
	}
	checker := cc.Checker(reg)

	results := make([]FileVerdict, 0, len(files))
	failed := 0
	for _, path := range files {
		fv := FileVerdict{File: path}
		p, err := readPipeline(cmd, path)
		if err != nil {
			fv.Error = err.Error()
		} else {
			fv.Name = pipelineName(p, path)
			v, err := checker.Check(ctx, core.Graph{Nodes: p.Nodes, Edges: p.Edges}, fv.Name)
			if err != nil {
				fv.Error = err.Error()
			} else {
				fv.Verdict = v
				fv.Runnable = v.Runnable()
			}
		}
		if !fv.Runnable {
			failed++
		}
		cc.Logger.Debug("validated pipeline", "file", path, "runnable", fv.Runnable)
		results = append(results, fv)
	}

	r := cc.Renderer
	switch r.EffectiveMode() {
	case output.ModeJSON:
		if err := r.JSON(results); err != nil {
			return err
		}
	default:
		renderVerdicts(r, results)
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d pipelines failed validation", failed, len(results))
	}
	return nil
}

func renderVerdicts(r *output.Renderer, results []FileVerdict) {
	styles := r.Styles()
	for _, fv := range results {
		r.Header(2, fv.File)
		if fv.Error != "" {
			r.Println(styles.StatusFailed.String() + " " + styles.Error.Render(fv.Error))
			r.Println("")
			continue
		}

		a := fv.Verdict.Analysis
		status := styles.StatusSuccess.String() + " runnable"
		if !fv.Runnable {
			status = styles.StatusFailed.String() + " not runnable"
		}
		r.KeyValue("Status", status)
		r.KeyValue("Nodes", strconv.Itoa(a.NumNodes))
		r.KeyValue("Edges", strconv.Itoa(a.NumEdges))
		if a.IsDAG {
			r.KeyValue("Plan", strings.Join(a.ExecutionPlan, " → "))
		} else {
			r.KeyValue("Cycle", strings.Join(a.Cycle, " → "))
		}

		if errs := fv.Verdict.Validation.Errors; len(errs) > 0 {
			rows := make([][]string, 0, len(errs))
			for _, e := range errs {
				rows = append(rows, []string{e.NodeID, e.NodeType, e.Field, e.Message})
			}
			r.Println("")
			r.Table([]string{"Node", "Type", "Field", "Problem"}, rows)
		}

		warnings := append(slices.Clone(a.Warnings), fv.Verdict.Validation.Warnings...)
		for _, w := range warnings {
			r.Println(styles.Warning.Render("! " + w))
		}
		r.Println("")
	}

	if len(results) > 1 {
		ok := 0
		for _, fv := range results {
			if fv.Runnable {
				ok++
			}
		}
		r.Muted(fmt.Sprintf("%d/%d pipelines runnable", ok, len(results)))
	}
}
