// Package config provides the VectorFlow configuration types and defaults.
// It is decoupled from CLI concerns so the server and tests can build
// sessions and stores from a Config without going through cobra.
package config

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/leapstack-labs/vectorflow/internal/editor"
	"github.com/leapstack-labs/vectorflow/internal/layout"
	"github.com/leapstack-labs/vectorflow/internal/state"
	"github.com/leapstack-labs/vectorflow/pkg/core"
)

// Config holds all VectorFlow configuration.
type Config struct {
	Name        string            `koanf:"name"`
	StatePath   string            `koanf:"state_path"`
	LogLevel    string            `koanf:"log_level"`
	LogFormat   string            `koanf:"log_format"`
	Output      string            `koanf:"output"`
	EnvFile     string            `koanf:"env_file"`
	History     HistoryConfig     `koanf:"history"`
	Editor      EditorConfig      `koanf:"editor"`
	Layout      LayoutConfig      `koanf:"layout"`
	Runner      RunnerConfig      `koanf:"runner"`
	Validator   ValidatorConfig   `koanf:"validator"`
	Server      ServerConfig      `koanf:"server"`
	Persistence PersistenceConfig `koanf:"persistence"`

	// ProjectRoot is the directory relative paths were resolved against.
	ProjectRoot string `koanf:"-"`
}

// HistoryConfig bounds the undo stack.
type HistoryConfig struct {
	Limit int `koanf:"limit"`
}

// EditorConfig holds editing session settings.
type EditorConfig struct {
	DraftKey         string        `koanf:"draft_key"`
	AutosaveDebounce time.Duration `koanf:"autosave_debounce"`
	ValidateDebounce time.Duration `koanf:"validate_debounce"`
}

// LayoutConfig holds auto-layout spacing.
type LayoutConfig struct {
	Direction string  `koanf:"direction"`
	RankSep   float64 `koanf:"rank_sep"`
	NodeSep   float64 `koanf:"node_sep"`
	Margin    float64 `koanf:"margin"`
}

// RunnerConfig selects the execution backend. An empty URL runs pipelines
// on the in-process simulator.
type RunnerConfig struct {
	URL     string            `koanf:"url"`
	Secrets map[string]string `koanf:"secrets"`
}

// ValidatorConfig selects the validation backend. An empty URL validates
// locally against the node-type registry.
type ValidatorConfig struct {
	URL string `koanf:"url"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port          int           `koanf:"port"`
	SessionSecret string        `koanf:"session_secret"`
	RegistryFile  string        `koanf:"registry_file"`
	StepDelay     time.Duration `koanf:"step_delay"`
}

// PersistenceConfig selects storage backends.
type PersistenceConfig struct {
	Drafts      string `koanf:"drafts"`
	RedisURL    string `koanf:"redis_url"`
	PostgresDSN string `koanf:"postgres_dsn"`
}

// Accepted enumerations.
var (
	LogLevels   = []string{"debug", "info", "warn", "error"}
	LogFormats  = []string{"text", "json"}
	OutputModes = []string{"auto", "text", "markdown", "json"}
	DraftStores = []string{"sqlite", "redis"}
)

// Validate checks enumerated values and ranges.
func (c *Config) Validate() error {
	checks := []struct {
		key, value string
		allowed    []string
	}{
		{"log_level", strings.ToLower(c.LogLevel), LogLevels},
		{"log_format", strings.ToLower(c.LogFormat), LogFormats},
		{"output", strings.ToLower(c.Output), OutputModes},
		{"persistence.drafts", strings.ToLower(c.Persistence.Drafts), DraftStores},
	}
	for _, chk := range checks {
		if !slices.Contains(chk.allowed, chk.value) {
			return fmt.Errorf("invalid %s %q (want %s)", chk.key, chk.value, strings.Join(chk.allowed, "|"))
		}
	}
	if !core.Direction(c.Layout.Direction).Valid() {
		return fmt.Errorf("invalid layout.direction %q (want LR|TB)", c.Layout.Direction)
	}
	if c.History.Limit < 1 {
		return fmt.Errorf("history.limit must be positive, got %d", c.History.Limit)
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", c.Server.Port)
	}
	if c.Persistence.Drafts == "redis" && c.Persistence.RedisURL == "" {
		return fmt.Errorf("persistence.redis_url is required when persistence.drafts is redis")
	}
	return nil
}

// LayoutOptions converts the layout section to engine options.
func (c *Config) LayoutOptions() layout.Options {
	opts := layout.DefaultOptions(core.Direction(c.Layout.Direction))
	if c.Layout.RankSep > 0 {
		opts.RankSep = c.Layout.RankSep
	}
	if c.Layout.NodeSep > 0 {
		opts.NodeSep = c.Layout.NodeSep
	}
	if c.Layout.Margin >= 0 {
		opts.Margin = c.Layout.Margin
	}
	return opts
}

// SessionConfig converts the editor and history sections to session
// settings.
func (c *Config) SessionConfig() editor.Config {
	cfg := editor.DefaultConfig()
	if c.Editor.DraftKey != "" {
		cfg.DraftKey = c.Editor.DraftKey
	}
	if c.History.Limit > 0 {
		cfg.HistoryLimit = c.History.Limit
	}
	if c.Editor.AutosaveDebounce > 0 {
		cfg.AutosaveDebounce = c.Editor.AutosaveDebounce
	}
	if c.Editor.ValidateDebounce > 0 {
		cfg.ValidateDebounce = c.Editor.ValidateDebounce
	}
	cfg.Layout = c.LayoutOptions()
	return cfg
}

// StoreConfig converts the persistence section to backend settings.
func (c *Config) StoreConfig() state.Config {
	return state.Config{
		Path:        c.StatePath,
		Drafts:      c.Persistence.Drafts,
		RedisURL:    c.Persistence.RedisURL,
		PostgresDSN: c.Persistence.PostgresDSN,
	}
}
