package config

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	intconfig "github.com/leapstack-labs/vectorflow/internal/config"
)

func writeFile(t *testing.T, path, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
}

func newFlags() *pflag.FlagSet {
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("config", "", "")
	flags.String("state", "", "")
	flags.String("env-file", "", "")
	flags.String("log-level", "", "")
	flags.String("runner", "", "")
	flags.StringP("output", "o", "", "")
	return flags
}

// TestLoadConfig_Defaults tests loading without a config file.
func TestLoadConfig_Defaults(t *testing.T) {
	ResetConfig()
	t.Chdir(t.TempDir())

	cfg, err := LoadConfig("", nil)
	require.NoError(t, err)

	assert.Equal(t, intconfig.DefaultPort, cfg.Server.Port)
	assert.Equal(t, intconfig.DefaultStepDelay, cfg.Server.StepDelay)
	assert.Equal(t, "LR", cfg.Layout.Direction)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.True(t, filepath.IsAbs(cfg.StatePath), "state path is resolved against the project root")
	assert.Empty(t, GetConfigFileUsed())
	assert.Same(t, cfg, GetCurrentConfig())
}

// TestLoadConfig_File tests that the config file overrides defaults.
func TestLoadConfig_File(t *testing.T) {
	ResetConfig()
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, intconfig.ConfigFileName)
	writeFile(t, cfgPath, `
name: Research Assistant
state_path: state.db
server:
  port: 9100
  step_delay: 50ms
runner:
  secrets:
    OPENAI_API_KEY: from-config
`)

	cfg, err := LoadConfig(cfgPath, nil)
	require.NoError(t, err)

	assert.Equal(t, cfgPath, GetConfigFileUsed())
	assert.Equal(t, "Research Assistant", cfg.Name)
	assert.Equal(t, 9100, cfg.Server.Port)
	assert.Equal(t, 50*time.Millisecond, cfg.Server.StepDelay)
	assert.Equal(t, filepath.Join(dir, "state.db"), cfg.StatePath)
	assert.Equal(t, "from-config", cfg.Runner.Secrets["OPENAI_API_KEY"])
}

// TestLoadConfig_DiscoversFileUpward tests project root inference from the CWD.
func TestLoadConfig_DiscoversFileUpward(t *testing.T) {
	ResetConfig()
	root := t.TempDir()
	writeFile(t, filepath.Join(root, intconfig.ConfigFileName), "name: Upward\n")
	nested := filepath.Join(root, "pipelines", "drafts")
	require.NoError(t, os.MkdirAll(nested, 0o750))
	t.Chdir(nested)

	cfg, err := LoadConfig("", nil)
	require.NoError(t, err)
	assert.Equal(t, "Upward", cfg.Name)

	// macOS temp dirs resolve through a symlink.
	wantRoot, _ := filepath.EvalSymlinks(root)
	gotRoot, _ := filepath.EvalSymlinks(cfg.ProjectRoot)
	assert.Equal(t, wantRoot, gotRoot)
}

// TestLoadConfig_Precedence tests flags > env vars > config file.
func TestLoadConfig_Precedence(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, intconfig.ConfigFileName)
	writeFile(t, cfgPath, "log_level: warn\nserver:\n  port: 9000\nrunner:\n  url: http://from-file\n")

	t.Run("env overrides file", func(t *testing.T) {
		ResetConfig()
		t.Setenv("VECTORFLOW_LOG_LEVEL", "error")
		t.Setenv("VECTORFLOW_SERVER__PORT", "9200")

		cfg, err := LoadConfig(cfgPath, nil)
		require.NoError(t, err)
		assert.Equal(t, "error", cfg.LogLevel)
		assert.Equal(t, 9200, cfg.Server.Port)
	})

	t.Run("flag overrides env", func(t *testing.T) {
		ResetConfig()
		t.Setenv("VECTORFLOW_LOG_LEVEL", "error")
		flags := newFlags()
		require.NoError(t, flags.Set("log-level", "debug"))
		require.NoError(t, flags.Set("runner", "http://from-flag"))

		cfg, err := LoadConfig(cfgPath, flags)
		require.NoError(t, err)
		assert.Equal(t, "debug", cfg.LogLevel)
		assert.Equal(t, "http://from-flag", cfg.Runner.URL)
	})

	t.Run("unset flag falls back to env", func(t *testing.T) {
		ResetConfig()
		t.Setenv("VECTORFLOW_LOG_LEVEL", "error")

		cfg, err := LoadConfig(cfgPath, newFlags())
		require.NoError(t, err)
		assert.Equal(t, "error", cfg.LogLevel)
		assert.Equal(t, "http://from-file", cfg.Runner.URL)
	})
}

// TestLoadConfig_StateFlagRelativeToCWD tests that path flags are not
// re-anchored at the project root.
func TestLoadConfig_StateFlagRelativeToCWD(t *testing.T) {
	ResetConfig()
	project := t.TempDir()
	cfgPath := filepath.Join(project, intconfig.ConfigFileName)
	writeFile(t, cfgPath, "name: x\n")
	cwd := t.TempDir()
	t.Chdir(cwd)

	flags := newFlags()
	require.NoError(t, flags.Set("state", "local.db"))

	cfg, err := LoadConfig(cfgPath, flags)
	require.NoError(t, err)
	wantDir, _ := filepath.EvalSymlinks(cwd)
	gotDir, _ := filepath.EvalSymlinks(filepath.Dir(cfg.StatePath))
	assert.Equal(t, wantDir, gotDir)
}

// TestLoadConfig_Secrets tests merging of the dotenv file into runner secrets.
func TestLoadConfig_Secrets(t *testing.T) {
	ResetConfig()
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, intconfig.ConfigFileName)
	writeFile(t, cfgPath, "runner:\n  secrets:\n    OPENAI_API_KEY: from-config\n")
	writeFile(t, filepath.Join(dir, ".env"), "OPENAI_API_KEY=from-dotenv\nPINECONE_API_KEY=pc-123\n")

	cfg, err := LoadConfig(cfgPath, nil)
	require.NoError(t, err)
	assert.Equal(t, "from-config", cfg.Runner.Secrets["OPENAI_API_KEY"], "configured secrets win")
	assert.Equal(t, "pc-123", cfg.Runner.Secrets["PINECONE_API_KEY"])
}

// TestLoadConfig_Invalid tests that invalid values are rejected.
func TestLoadConfig_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr string
	}{
		{name: "bad yaml", body: "server: [", wantErr: "error reading config file"},
		{name: "bad direction", body: "layout:\n  direction: RL\n", wantErr: "layout.direction"},
		{name: "bad drafts", body: "persistence:\n  drafts: etcd\n", wantErr: "persistence.drafts"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ResetConfig()
			cfgPath := filepath.Join(t.TempDir(), intconfig.ConfigFileName)
			writeFile(t, cfgPath, tt.body)

			_, err := LoadConfig(cfgPath, nil)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
			assert.Nil(t, GetCurrentConfig())
		})
	}
}

func TestLoadSecrets_MissingFile(t *testing.T) {
	secrets, err := LoadSecrets(filepath.Join(t.TempDir(), ".env"))
	require.NoError(t, err)
	assert.Empty(t, secrets)
}

func TestEnvKey(t *testing.T) {
	assert.Equal(t, "server.port", envKey("VECTORFLOW_SERVER__PORT"))
	assert.Equal(t, "log_level", envKey("VECTORFLOW_LOG_LEVEL"))
	assert.Equal(t, "persistence.redis_url", envKey("VECTORFLOW_PERSISTENCE__REDIS_URL"))
}

func TestGetLogger(t *testing.T) {
	assert.NotNil(t, GetLogger(context.Background()), "missing logger falls back to discard")

	var buf bytes.Buffer
	cfg := intconfig.New()
	cfg.LogFormat = "json"
	cfg.LogLevel = "warn"
	logger := NewLogger(cfg, &buf)
	logger.Info("hidden")
	logger.Warn("shown")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), `"msg":"shown"`)

	ctx := context.WithValue(context.Background(), LoggerKey(), logger)
	assert.Same(t, logger, GetLogger(ctx))
}
