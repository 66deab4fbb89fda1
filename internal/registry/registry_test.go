package registry

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/leapstack-labs/vectorflow/internal/testutil"
	"github.com/leapstack-labs/vectorflow/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_Builtin(t *testing.T) {
	r := New()

	tests := []struct {
		nodeType   string
		category   string
		maxInputs  int
		maxOutputs int
	}{
		{"customInput", "I/O", 0, 1},
		{"customOutput", "I/O", 1, 0},
		{"text", "Data", core.Unlimited, 1},
		{"llm", "AI", 2, 1},
		{"transform", "Data", 1, 1},
		{"filter", "Logic", 1, 1},
		{"join", "Data", core.Unlimited, 1},
		{"split", "Data", 1, core.Unlimited},
		{"api", "Automation", 1, 1},
	}

	for _, tt := range tests {
		t.Run(tt.nodeType, func(t *testing.T) {
			nt, ok := r.Lookup(tt.nodeType)
			require.True(t, ok)
			assert.Equal(t, tt.category, nt.Category)
			assert.Equal(t, tt.maxInputs, nt.MaxInputs)
			assert.Equal(t, tt.maxOutputs, nt.MaxOutputs)
			assert.NotEmpty(t, nt.Label)
		})
	}

	_, ok := r.Lookup("nope")
	assert.False(t, ok)
}

func TestRegistry_RequiredFields(t *testing.T) {
	r := New()

	llm, _ := r.Lookup("llm")
	model, ok := llm.Field("model")
	require.True(t, ok)
	assert.True(t, model.Required)
	assert.Contains(t, model.Options, "gpt-4o-mini")

	api, _ := r.Lookup("api")
	url, ok := api.Field("url")
	require.True(t, ok)
	assert.True(t, url.Required)
}

func TestRegistry_Defaults(t *testing.T) {
	r := New()

	assert.Equal(t, map[string]any{"inputName": "input", "inputType": "Text"}, r.Defaults("customInput"))
	assert.Equal(t, "\n", r.Defaults("join")["separator"])
	assert.Equal(t, "GET", r.Defaults("api")["method"])
	assert.Empty(t, r.Defaults("unknown"))

	// Defaults hands out a fresh map each call.
	d := r.Defaults("text")
	d["text"] = "changed"
	assert.Equal(t, "{{input}}", r.Defaults("text")["text"])
}

func TestRegistry_ListOrder(t *testing.T) {
	r := New()
	list := r.List()
	require.NotEmpty(t, list)
	assert.Equal(t, "customInput", list[0].Type)
	assert.Equal(t, "customOutput", list[1].Type)
	assert.Equal(t, len(list), r.Count())
	assert.Contains(t, r.Categories(), "AI")
}

func TestRegistry_Secrets(t *testing.T) {
	r := New()
	assert.Equal(t, []string{"OPENAI_API_KEY", "PINECONE_API_KEY"}, r.Secrets("vectorDb", "embedder", "embedder", "llm"))
	assert.Empty(t, r.Secrets("text", "missing"))
}

func TestRegistry_LoadOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "types.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
types:
  - type: llm
    label: Chat Model
    category: AI
    max_inputs: 4
    max_outputs: 1
  - type: webhook
    category: Automation
    max_inputs: 1
    max_outputs: 0
`), 0o600))

	r, err := Load(path)
	require.NoError(t, err)

	llm, _ := r.Lookup("llm")
	assert.Equal(t, "Chat Model", llm.Label)
	assert.Equal(t, 4, llm.MaxInputs)

	hook, ok := r.Lookup("webhook")
	require.True(t, ok)
	assert.Equal(t, "webhook", hook.Label, "label defaults to the type key")

	// Overridden type keeps its original position.
	var types []string
	for _, nt := range r.List() {
		types = append(types, nt.Type)
	}
	assert.Less(t, indexOf(types, "llm"), indexOf(types, "webhook"))
}

func TestRegistry_LoadErrors(t *testing.T) {
	dir := t.TempDir()

	_, err := Load(filepath.Join(dir, "missing.yaml"))
	require.Error(t, err)

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("types:\n  - label: no key\n"), 0o600))
	_, err = Load(bad)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no type key")

	r := New()
	before := r.Count()
	require.Error(t, r.Reload(bad))
	assert.Equal(t, before, r.Count(), "failed reload keeps the catalog")
}

func TestRegistry_Watch(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "types.yaml")
	require.NoError(t, os.WriteFile(path, []byte("types: []\n"), 0o600))

	r, err := Load(path)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reloaded := make(chan struct{}, 4)
	done := make(chan error, 1)
	go func() {
		done <- r.Watch(ctx, path, testutil.NewTestLogger(t), func() { reloaded <- struct{}{} })
	}()

	// Give the watcher time to register the directory.
	time.Sleep(50 * time.Millisecond)
	require.NoError(t, os.WriteFile(path, []byte("types:\n  - type: custom\n    category: Data\n"), 0o600))

	select {
	case <-reloaded:
	case <-time.After(3 * time.Second):
		t.Fatal("watch did not reload")
	}
	_, ok := r.Lookup("custom")
	assert.True(t, ok)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("watch did not stop")
	}
}

func indexOf(list []string, s string) int {
	for i, v := range list {
		if v == s {
			return i
		}
	}
	return -1
}
