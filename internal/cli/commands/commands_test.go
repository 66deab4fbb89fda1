package commands

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/bytedance/sonic"
	"github.com/leapstack-labs/vectorflow/internal/cli/config"
	"github.com/leapstack-labs/vectorflow/internal/cli/testutil"
	"github.com/leapstack-labs/vectorflow/internal/execution"
	"github.com/leapstack-labs/vectorflow/internal/pipefile"
	"github.com/leapstack-labs/vectorflow/internal/state"
	"github.com/leapstack-labs/vectorflow/pkg/core"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupProject creates a test project, loads its config and changes into it.
func setupProject(t *testing.T) string {
	t.Helper()
	dir := testutil.SetupTestProject(t)
	t.Chdir(dir)

	config.ResetConfig()
	t.Cleanup(config.ResetConfig)
	_, err := config.LoadConfig(filepath.Join(dir, "vectorflow.yaml"), nil)
	require.NoError(t, err)
	return dir
}

func execute(t *testing.T, cmd *cobra.Command, stdin string, args ...string) (string, error) {
	t.Helper()
	out := new(bytes.Buffer)
	cmd.SetOut(out)
	cmd.SetErr(new(bytes.Buffer))
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestCommandMetadata(t *testing.T) {
	tests := []struct {
		cmd   *cobra.Command
		use   string
		flags []string
	}{
		{cmd: NewServeCommand("test"), use: "serve", flags: []string{"port", "open"}},
		{cmd: NewLayoutCommand(), use: "layout <file>", flags: []string{"direction", "write"}},
		{cmd: NewValidateCommand(), use: "validate <file|glob>..."},
		{cmd: NewRunCommand(), use: "run <file>", flags: []string{"input", "no-prompt"}},
		{cmd: NewNodeTypesCommand(), use: "node-types", flags: []string{"category"}},
		{cmd: NewPipelinesCommand(), use: "pipelines"},
		{cmd: NewInitCommand(), use: "init [directory]", flags: []string{"force", "example"}},
		{cmd: NewDoctorCommand(), use: "doctor", flags: []string{"format", "timeout"}},
	}

	for _, tt := range tests {
		t.Run(tt.use, func(t *testing.T) {
			assert.Equal(t, tt.use, tt.cmd.Use)
			assert.NotEmpty(t, tt.cmd.Short, "Short should not be empty")
			for _, flag := range tt.flags {
				assert.NotNil(t, tt.cmd.Flags().Lookup(flag), "flag %q should exist", flag)
			}
		})
	}
}

func TestPipelinesSubcommands(t *testing.T) {
	cmd := NewPipelinesCommand()
	var names []string
	for _, sub := range cmd.Commands() {
		names = append(names, sub.Name())
	}
	assert.ElementsMatch(t, []string{"list", "save", "show", "delete"}, names)
}

func TestLayoutCommand(t *testing.T) {
	dir := setupProject(t)

	t.Run("prints the laid out document", func(t *testing.T) {
		out, err := execute(t, NewLayoutCommand(), "", "pipelines/hello.json")
		require.NoError(t, err)

		p, err := pipefile.Parse([]byte(out))
		require.NoError(t, err)
		require.Len(t, p.Nodes, 3)
		assert.Less(t, p.Nodes[0].Position.X, p.Nodes[1].Position.X)
		assert.Less(t, p.Nodes[1].Position.X, p.Nodes[2].Position.X)
		assert.Equal(t, p.Nodes[0].Position.Y, p.Nodes[2].Position.Y)
	})

	t.Run("top to bottom from stdin", func(t *testing.T) {
		out, err := execute(t, NewLayoutCommand(), testutil.HelloPipeline, "-", "--direction", "tb")
		require.NoError(t, err)

		p, err := pipefile.Parse([]byte(out))
		require.NoError(t, err)
		assert.Less(t, p.Nodes[0].Position.Y, p.Nodes[2].Position.Y)
	})

	t.Run("write in place", func(t *testing.T) {
		_, err := execute(t, NewLayoutCommand(), "", "pipelines/hello.json", "--write")
		require.NoError(t, err)

		data, err := os.ReadFile(filepath.Join(dir, "pipelines", "hello.json"))
		require.NoError(t, err)
		p, err := pipefile.Parse(data)
		require.NoError(t, err)
		assert.NotZero(t, p.Nodes[2].Position.X)
	})

	t.Run("invalid direction", func(t *testing.T) {
		_, err := execute(t, NewLayoutCommand(), "", "pipelines/hello.json", "--direction", "RL")
		assert.ErrorContains(t, err, "invalid direction")
	})

	t.Run("write needs a file", func(t *testing.T) {
		_, err := execute(t, NewLayoutCommand(), testutil.HelloPipeline, "-", "--write")
		assert.Error(t, err)
	})
}

func TestExpandGlobs(t *testing.T) {
	setupProject(t)

	files, err := expandGlobs([]string{"pipelines/*.json", "pipelines/hello.json"})
	require.NoError(t, err)
	assert.Equal(t, []string{"pipelines/hello.json", "pipelines/review.json"}, files)

	files, err = expandGlobs([]string{"**/*.json"})
	require.NoError(t, err)
	assert.Len(t, files, 3)

	_, err = expandGlobs([]string{"nothing/**/*.json"})
	assert.ErrorContains(t, err, "no files match")
}

func TestValidateCommand(t *testing.T) {
	setupProject(t)

	t.Run("runnable pipelines", func(t *testing.T) {
		out, err := execute(t, NewValidateCommand(), "", "pipelines/*.json")
		require.NoError(t, err)

		var results []FileVerdict
		require.NoError(t, sonic.UnmarshalString(out, &results))
		require.Len(t, results, 2)
		for _, fv := range results {
			assert.True(t, fv.Runnable, fv.File)
			assert.Empty(t, fv.Error)
		}
		assert.Equal(t, "Hello", results[0].Name)
		assert.Equal(t, []string{"in", "greet", "out"}, results[0].Verdict.Analysis.ExecutionPlan)
	})

	t.Run("cycle fails", func(t *testing.T) {
		out, err := execute(t, NewValidateCommand(), "", "pipelines/hello.json", "broken/loop.json")
		require.ErrorContains(t, err, "1 of 2 pipelines failed validation")

		var results []FileVerdict
		require.NoError(t, sonic.UnmarshalString(out, &results))
		require.Len(t, results, 2)
		assert.Equal(t, "broken/loop.json", results[0].File)
		assert.False(t, results[0].Runnable)
		assert.False(t, results[0].Verdict.Analysis.IsDAG)
	})

	t.Run("missing file is reported", func(t *testing.T) {
		out, err := execute(t, NewValidateCommand(), "", "missing.json")
		require.Error(t, err)
		assert.Contains(t, out, "failed to open pipeline file")
	})
}

func TestRunCommand(t *testing.T) {
	setupProject(t)

	decode := func(t *testing.T, out string) execution.Snapshot {
		t.Helper()
		var snap execution.Snapshot
		require.NoError(t, sonic.UnmarshalString(out, &snap))
		return snap
	}

	t.Run("runs to completion", func(t *testing.T) {
		out, err := execute(t, NewRunCommand(), "", "pipelines/hello.json")
		require.NoError(t, err)

		snap := decode(t, out)
		assert.Equal(t, core.RunComplete, snap.State)
		assert.Equal(t, []string{"in", "greet", "out"}, snap.Plan)
		assert.Equal(t, "Hello there", snap.Results["out"])
	})

	t.Run("answers the approval step from flags", func(t *testing.T) {
		out, err := execute(t, NewRunCommand(), "", "pipelines/review.json", "--input", "ship it")
		require.NoError(t, err)

		snap := decode(t, out)
		assert.Equal(t, core.RunComplete, snap.State)
		assert.Equal(t, "ship it", snap.Results["out"])
		assert.Positive(t, snap.Metrics.Tokens)
	})

	t.Run("no prompt without input", func(t *testing.T) {
		_, err := execute(t, NewRunCommand(), "", "pipelines/review.json", "--no-prompt")
		assert.ErrorContains(t, err, "paused at draft")
	})

	t.Run("not runnable", func(t *testing.T) {
		_, err := execute(t, NewRunCommand(), "", "broken/loop.json")
		assert.ErrorIs(t, err, execution.ErrNotRunnable)
	})
}

func TestNodeTypesCommand(t *testing.T) {
	setupProject(t)

	out, err := execute(t, NewNodeTypesCommand(), "")
	require.NoError(t, err)
	var all []core.NodeType
	require.NoError(t, sonic.UnmarshalString(out, &all))
	assert.NotEmpty(t, all)

	out, err = execute(t, NewNodeTypesCommand(), "", "--category", "ai")
	require.NoError(t, err)
	var ai []core.NodeType
	require.NoError(t, sonic.UnmarshalString(out, &ai))
	require.NotEmpty(t, ai)
	assert.Less(t, len(ai), len(all))
	for _, nt := range ai {
		assert.Equal(t, "AI", nt.Category)
	}
}

func TestPipelinesCommands(t *testing.T) {
	setupProject(t)

	out, err := execute(t, NewPipelinesCommand(), "", "save", "pipelines/hello.json")
	require.NoError(t, err)
	var saved core.PipelineSummary
	require.NoError(t, sonic.UnmarshalString(out, &saved))
	assert.Equal(t, "Hello", saved.Name)
	require.NotEmpty(t, saved.ID)

	_, err = execute(t, NewPipelinesCommand(), "", "save", "pipelines/review.json", "--name", "Approval flow")
	require.NoError(t, err)

	out, err = execute(t, NewPipelinesCommand(), "", "list")
	require.NoError(t, err)
	var list []core.PipelineSummary
	require.NoError(t, sonic.UnmarshalString(out, &list))
	require.Len(t, list, 2)
	assert.Equal(t, "Approval flow", list[0].Name, "most recently updated first")

	out, err = execute(t, NewPipelinesCommand(), "", "show", saved.ID)
	require.NoError(t, err)
	p, err := pipefile.Parse([]byte(out))
	require.NoError(t, err)
	assert.Equal(t, "Hello", p.Name)
	assert.Len(t, p.Nodes, 3)

	_, err = execute(t, NewPipelinesCommand(), "", "delete", saved.ID)
	require.NoError(t, err)

	_, err = execute(t, NewPipelinesCommand(), "", "delete", saved.ID)
	assert.ErrorIs(t, err, state.ErrNotFound)

	_, err = execute(t, NewPipelinesCommand(), "", "show", saved.ID)
	assert.ErrorContains(t, err, "not found")
}

func TestPipelineName(t *testing.T) {
	assert.Equal(t, "Named", pipelineName(core.PipelineFile{Name: "Named"}, "x.json"))
	assert.Equal(t, "support_flow", pipelineName(core.PipelineFile{}, "dir/support_flow.json"))
	assert.Equal(t, "pipeline", pipelineName(core.PipelineFile{}, "-"))
}
