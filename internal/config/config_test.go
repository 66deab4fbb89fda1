package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/vectorflow/internal/editor"
	"github.com/leapstack-labs/vectorflow/pkg/core"
)

func writeConfig(t *testing.T, dir, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ConfigFileName), []byte(body), 0o600))
}

func TestNew_MatchesDefaults(t *testing.T) {
	cfg := New()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 8000, cfg.Server.Port)
	assert.Equal(t, 300*time.Millisecond, cfg.Server.StepDelay)
	assert.Equal(t, editor.DefaultDraftKey, cfg.Editor.DraftKey)
	assert.Equal(t, 50, cfg.History.Limit)
}

func TestLoadFromDir(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, `
name: Support Bot
state_path: data/state.db
history:
  limit: 10
editor:
  autosave_debounce: 2s
layout:
  direction: TB
  rank_sep: 120
server:
  registry_file: nodes.yaml
`)

	cfg, err := LoadFromDir(dir)
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, "Support Bot", cfg.Name)
	assert.Equal(t, filepath.Join(dir, "data", "state.db"), cfg.StatePath)
	assert.Equal(t, filepath.Join(dir, "nodes.yaml"), cfg.Server.RegistryFile)
	assert.Equal(t, 10, cfg.History.Limit)
	assert.Equal(t, 2*time.Second, cfg.Editor.AutosaveDebounce)
	assert.Equal(t, DefaultValidateDebounce, cfg.Editor.ValidateDebounce, "unset keys keep defaults")
	assert.Equal(t, "TB", cfg.Layout.Direction)
	assert.InDelta(t, 120.0, cfg.Layout.RankSep, 0)
	assert.Equal(t, dir, cfg.ProjectRoot)
}

func TestDecode_StringValues(t *testing.T) {
	k := koanf.New(".")
	require.NoError(t, k.Load(confmap.Provider(map[string]any{
		"server.port":               "9000",
		"server.step_delay":         "25ms",
		"editor.validate_debounce":  "1s",
		"layout.rank_sep":           "120",
		"runner.secrets.OPENAI_KEY": "sk-test",
	}, "."), nil))

	var cfg Config
	require.NoError(t, Decode(k, &cfg))
	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, 25*time.Millisecond, cfg.Server.StepDelay)
	assert.Equal(t, time.Second, cfg.Editor.ValidateDebounce)
	assert.Equal(t, 120.0, cfg.Layout.RankSep)
	assert.Equal(t, "sk-test", cfg.Runner.Secrets["OPENAI_KEY"])
}

func TestDecode_BadDuration(t *testing.T) {
	k := koanf.New(".")
	require.NoError(t, k.Load(confmap.Provider(map[string]any{"server.step_delay": "soon"}, "."), nil))

	var cfg Config
	err := Decode(k, &cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unable to decode config")
}

func TestLoadFromDir_NoFile(t *testing.T) {
	cfg, err := LoadFromDir(t.TempDir())
	require.NoError(t, err)
	assert.Nil(t, cfg)
}

func TestLoadFromDir_BadYAML(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "history: [unclosed")
	_, err := LoadFromDir(dir)
	require.Error(t, err)
}

func TestFindProjectRoot(t *testing.T) {
	root := t.TempDir()
	writeConfig(t, root, "name: x\n")
	nested := filepath.Join(root, "a", "b")
	require.NoError(t, os.MkdirAll(nested, 0o750))

	assert.Equal(t, root, FindProjectRoot(nested))
	assert.Empty(t, FindProjectRoot(t.TempDir()))
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "defaults"},
		{name: "upper case level", mutate: func(c *Config) { c.LogLevel = "DEBUG" }},
		{name: "bad level", mutate: func(c *Config) { c.LogLevel = "trace" }, wantErr: "log_level"},
		{name: "bad format", mutate: func(c *Config) { c.LogFormat = "xml" }, wantErr: "log_format"},
		{name: "bad output", mutate: func(c *Config) { c.Output = "yaml" }, wantErr: "output"},
		{name: "bad direction", mutate: func(c *Config) { c.Layout.Direction = "RL" }, wantErr: "layout.direction"},
		{name: "zero history", mutate: func(c *Config) { c.History.Limit = 0 }, wantErr: "history.limit"},
		{name: "port range", mutate: func(c *Config) { c.Server.Port = 70000 }, wantErr: "server.port"},
		{name: "unknown drafts", mutate: func(c *Config) { c.Persistence.Drafts = "etcd" }, wantErr: "persistence.drafts"},
		{name: "redis without url", mutate: func(c *Config) { c.Persistence.Drafts = "redis" }, wantErr: "redis_url"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := New()
			if tt.mutate != nil {
				tt.mutate(cfg)
			}
			err := cfg.Validate()
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestConversions(t *testing.T) {
	cfg := New()
	cfg.StatePath = ":memory:"
	cfg.History.Limit = 7
	cfg.Editor.DraftKey = "custom"
	cfg.Layout.Direction = "TB"
	cfg.Layout.NodeSep = 10
	cfg.Persistence.PostgresDSN = "postgres://x"

	sc := cfg.SessionConfig()
	assert.Equal(t, "custom", sc.DraftKey)
	assert.Equal(t, 7, sc.HistoryLimit)
	assert.Equal(t, core.DirectionTB, sc.Layout.Direction)
	assert.InDelta(t, 10.0, sc.Layout.NodeSep, 0)

	st := cfg.StoreConfig()
	assert.Equal(t, ":memory:", st.Path)
	assert.Equal(t, "postgres://x", st.PostgresDSN)

	cfg.ResolvePaths("/project")
	assert.Equal(t, ":memory:", cfg.StatePath)
}
