package output_test

import (
	"strings"
	"testing"

	"github.com/leapstack-labs/vectorflow/internal/cli/output"
	"github.com/leapstack-labs/vectorflow/internal/cli/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMode(t *testing.T) {
	tests := []struct {
		in   string
		want output.OutputMode
	}{
		{"", output.ModeAuto},
		{"auto", output.ModeAuto},
		{"TEXT", output.ModeText},
		{"md", output.ModeMarkdown},
		{"markdown", output.ModeMarkdown},
		{" json ", output.ModeJSON},
		{"yaml", output.ModeAuto},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, output.Mode(tt.in))
		})
	}
}

func TestEffectiveMode(t *testing.T) {
	assert.Equal(t, output.ModeText, testutil.NewTestRenderer(output.ModeAuto, true).EffectiveMode())
	assert.Equal(t, output.ModeMarkdown, testutil.NewTestRendererAuto().EffectiveMode())
	assert.Equal(t, output.ModeJSON, testutil.NewTestRendererJSON().EffectiveMode())
	assert.Equal(t, output.ModeText, testutil.NewTestRenderer(output.ModeText, false).EffectiveMode())
}

func TestRenderer_Markdown(t *testing.T) {
	tr := testutil.NewTestRendererMarkdown()

	tr.Header(1, "Pipelines")
	tr.KeyValue("Nodes", "3")
	tr.StatusLine("hello.json", "success", "")
	tr.Table([]string{"Node", "Status"}, [][]string{{"in", "complete"}, {"out", "pending"}})
	tr.Error("boom")

	out := tr.Output()
	testutil.AssertOutputMode(t, tr, output.ModeMarkdown)
	testutil.AssertValidMarkdown(t, out)
	assert.Contains(t, out, "# Pipelines")
	assert.Contains(t, out, "- **Nodes**: 3")
	assert.Contains(t, out, "- [ok] hello.json")
	assert.Contains(t, strings.ToLower(out), "| node | status |")
	assert.Contains(t, out, "| in | complete |")
	assert.Contains(t, tr.ErrorOutput(), "[failed] boom")
}

func TestRenderer_TextTable(t *testing.T) {
	tr := testutil.NewTestRenderer(output.ModeText, false)
	tr.Table([]string{"Type", "Label"}, [][]string{{"llm", "LLM"}})

	out := tr.Output()
	assert.Contains(t, out, "┌")
	assert.Contains(t, out, "TYPE")
	assert.Contains(t, out, "llm")
}

func TestRenderer_JSON(t *testing.T) {
	tr := testutil.NewTestRendererJSON()
	require.NoError(t, tr.JSON(map[string]any{"state": "complete", "tokens": 62}))

	testutil.AssertNoANSI(t, tr.Output())
	assert.JSONEq(t, `{"state":"complete","tokens":62}`, tr.Output())
}

func TestFormatters(t *testing.T) {
	assert.Equal(t, "## Run", output.FormatHeader(2, "Run"))
	assert.Equal(t, "# Run", output.FormatHeader(0, "Run"))
	assert.Equal(t, "- **Cost**: $0.000430", output.FormatKeyValue("Cost", output.FormatCost(0.00043)))
	assert.Equal(t, "abc", output.Truncate("abc", 5))
	assert.Equal(t, "ab…", output.Truncate("abcdef", 3))
	assert.Equal(t, "日本…", output.Truncate("日本語テキスト", 3))
}

func TestRenderer_NoColor(t *testing.T) {
	t.Setenv("NO_COLOR", "1")
	var out, errOut strings.Builder
	r := output.NewRendererWithTTY(&out, &errOut, true, output.ModeText)

	r.StatusLine("hello.json", "success", "")
	assert.Equal(t, "[ok] hello.json\n", out.String())
	assert.Equal(t, output.ModeText, r.EffectiveMode())
}
