// Package state persists pipelines and canvas drafts.
//
// Two concerns share the package: the pipeline library (saved pipelines
// with timestamps) and the draft store (the in-progress canvas under a
// fixed key). SQLite serves both; Redis can hold drafts and Postgres the
// library when configured.
package state

import (
	"context"
	"fmt"
	"time"

	"github.com/leapstack-labs/vectorflow/pkg/core"
)

// ErrNotFound is returned, wrapped, when a pipeline does not exist.
var ErrNotFound = core.ErrNotFound

// timeLayout is fixed-width so lexical order matches time order.
const timeLayout = "2006-01-02T15:04:05.000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Parse(time.RFC3339Nano, s)
	}
	return t, nil
}

// Config selects and configures the backends.
type Config struct {
	// Path is the SQLite database file, ":memory:" for a throwaway store.
	Path string
	// Drafts is "sqlite" (default) or "redis".
	Drafts string
	// RedisURL is required when Drafts is "redis".
	RedisURL string
	// PostgresDSN moves the pipeline library to Postgres when set.
	PostgresDSN string
}

// Stores bundles the opened backends.
type Stores struct {
	Drafts    core.DraftStore
	Pipelines core.PipelineStore

	closers []func() error
}

// Close releases every backend.
func (s *Stores) Close() error {
	var first error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil && first == nil {
			first = err
		}
	}
	s.closers = nil
	return first
}

// Open opens the backends named by cfg. The SQLite store is always opened
// and migrated since it is the default for both concerns.
func Open(ctx context.Context, cfg Config) (*Stores, error) {
	if cfg.Path == "" {
		cfg.Path = ":memory:"
	}

	sqlite := NewSQLiteStore()
	if err := sqlite.Open(cfg.Path); err != nil {
		return nil, err
	}
	if err := sqlite.Migrate(); err != nil {
		_ = sqlite.Close()
		return nil, err
	}

	stores := &Stores{Drafts: sqlite, Pipelines: sqlite, closers: []func() error{sqlite.Close}}

	switch cfg.Drafts {
	case "", "sqlite":
	case "redis":
		rs, err := NewRedisDraftStore(ctx, cfg.RedisURL)
		if err != nil {
			_ = stores.Close()
			return nil, err
		}
		stores.Drafts = rs
		stores.closers = append(stores.closers, rs.Close)
	default:
		_ = stores.Close()
		return nil, fmt.Errorf("unknown draft backend %q (want sqlite or redis)", cfg.Drafts)
	}

	if cfg.PostgresDSN != "" {
		pg, err := NewPGStore(ctx, cfg.PostgresDSN)
		if err != nil {
			_ = stores.Close()
			return nil, err
		}
		stores.Pipelines = pg
		stores.closers = append(stores.closers, pg.Close)
	}

	return stores, nil
}
