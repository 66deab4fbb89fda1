package config

import (
	"time"

	"github.com/leapstack-labs/vectorflow/internal/editor"
	"github.com/leapstack-labs/vectorflow/internal/history"
)

// Default configuration values.
const (
	DefaultStateFile        = ".vectorflow/state.db"
	DefaultEnvFile          = ".env"
	DefaultLogLevel         = "info"
	DefaultLogFormat        = "text"
	DefaultOutput           = "auto" // TTY=text, non-TTY=markdown
	DefaultDirection        = "LR"
	DefaultRankSep          = 80.0
	DefaultNodeSep          = 50.0
	DefaultMargin           = 40.0
	DefaultPort             = 8000
	DefaultStepDelay        = 300 * time.Millisecond
	DefaultAutosaveDebounce = time.Second
	DefaultValidateDebounce = 500 * time.Millisecond
	DefaultDrafts           = "sqlite"
	DefaultSessionSecret    = "vectorflow-dev-secret-change-in-production" //nolint:gosec
)

// Defaults returns the lowest configuration layer keyed by koanf path.
func Defaults() map[string]any {
	return map[string]any{
		"state_path":               DefaultStateFile,
		"env_file":                 DefaultEnvFile,
		"log_level":                DefaultLogLevel,
		"log_format":               DefaultLogFormat,
		"output":                   DefaultOutput,
		"history.limit":            history.DefaultLimit,
		"editor.draft_key":         editor.DefaultDraftKey,
		"editor.autosave_debounce": DefaultAutosaveDebounce.String(),
		"editor.validate_debounce": DefaultValidateDebounce.String(),
		"layout.direction":         DefaultDirection,
		"layout.rank_sep":          DefaultRankSep,
		"layout.node_sep":          DefaultNodeSep,
		"layout.margin":            DefaultMargin,
		"server.port":              DefaultPort,
		"server.session_secret":    DefaultSessionSecret,
		"server.step_delay":        DefaultStepDelay.String(),
		"persistence.drafts":       DefaultDrafts,
	}
}

// New returns a Config holding every default.
func New() *Config {
	return &Config{
		StatePath: DefaultStateFile,
		EnvFile:   DefaultEnvFile,
		LogLevel:  DefaultLogLevel,
		LogFormat: DefaultLogFormat,
		Output:    DefaultOutput,
		History:   HistoryConfig{Limit: history.DefaultLimit},
		Editor: EditorConfig{
			DraftKey:         editor.DefaultDraftKey,
			AutosaveDebounce: DefaultAutosaveDebounce,
			ValidateDebounce: DefaultValidateDebounce,
		},
		Layout: LayoutConfig{
			Direction: DefaultDirection,
			RankSep:   DefaultRankSep,
			NodeSep:   DefaultNodeSep,
			Margin:    DefaultMargin,
		},
		Server: ServerConfig{
			Port:          DefaultPort,
			SessionSecret: DefaultSessionSecret,
			StepDelay:     DefaultStepDelay,
		},
		Persistence: PersistenceConfig{Drafts: DefaultDrafts},
	}
}
