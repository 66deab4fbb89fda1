package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	"github.com/leapstack-labs/vectorflow/pkg/core"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements core.PipelineStore and core.DraftStore using SQLite.
type SQLiteStore struct {
	db   *sql.DB
	path string
	now  func() time.Time
}

// NewSQLiteStore creates a new SQLite store instance.
func NewSQLiteStore() *SQLiteStore {
	return &SQLiteStore{now: time.Now}
}

// Open opens a connection to the SQLite database.
// Use ":memory:" for an in-memory database.
func (s *SQLiteStore) Open(path string) error {
	dsn := "file:" + path + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
	if path != ":memory:" {
		dsn += "&_pragma=journal_mode(WAL)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("failed to open sqlite database: %w", err)
	}
	if path == ":memory:" {
		// Every connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping sqlite database: %w", err)
	}

	s.db = db
	s.path = path
	return nil
}

// Close closes the SQLite database connection.
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Path returns the database path given to Open.
func (s *SQLiteStore) Path() string {
	return s.path
}

// generateID creates a new UUID.
func generateID() string {
	return uuid.New().String()
}

// --- Pipeline library ---

// SavePipeline inserts or replaces a pipeline, preserving created_at.
func (s *SQLiteStore) SavePipeline(ctx context.Context, id, name string, data core.Graph) (*core.PipelineRecord, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}
	if id == "" {
		id = generateID()
	}
	if strings.TrimSpace(name) == "" {
		name = core.DefaultPipelineName
	}

	payload, err := sonic.Marshal(orEmptyGraph(data))
	if err != nil {
		return nil, fmt.Errorf("failed to encode pipeline: %w", err)
	}
	now := formatTime(s.now())

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	createdAt := now
	err = tx.QueryRowContext(ctx, `SELECT created_at FROM pipelines WHERE id = ?`, id).Scan(&createdAt)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to look up pipeline: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO pipelines (id, name, created_at, updated_at, data)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			updated_at = excluded.updated_at,
			data = excluded.data`,
		id, name, createdAt, now, string(payload),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to save pipeline: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit pipeline: %w", err)
	}

	rec := &core.PipelineRecord{PipelineSummary: core.PipelineSummary{ID: id, Name: name}, Data: data.Clone()}
	if rec.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("invalid created_at %q: %w", createdAt, err)
	}
	rec.UpdatedAt, _ = parseTime(now)
	return rec, nil
}

// ListPipelines returns summaries, most recently updated first.
func (s *SQLiteStore) ListPipelines(ctx context.Context) ([]core.PipelineSummary, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, created_at, updated_at FROM pipelines ORDER BY updated_at DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list pipelines: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := []core.PipelineSummary{}
	for rows.Next() {
		var sum core.PipelineSummary
		var createdAt, updatedAt string
		if err := rows.Scan(&sum.ID, &sum.Name, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan pipeline: %w", err)
		}
		sum.CreatedAt, _ = parseTime(createdAt)
		sum.UpdatedAt, _ = parseTime(updatedAt)
		out = append(out, sum)
	}
	return out, rows.Err()
}

// GetPipeline returns a pipeline with its graph.
func (s *SQLiteStore) GetPipeline(ctx context.Context, id string) (*core.PipelineRecord, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}

	rec := &core.PipelineRecord{}
	var createdAt, updatedAt, data string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, created_at, updated_at, data FROM pipelines WHERE id = ?`, id,
	).Scan(&rec.ID, &rec.Name, &createdAt, &updatedAt, &data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("pipeline %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get pipeline: %w", err)
	}

	if err := sonic.UnmarshalString(data, &rec.Data); err != nil {
		return nil, fmt.Errorf("failed to decode pipeline %s: %w", id, err)
	}
	rec.CreatedAt, _ = parseTime(createdAt)
	rec.UpdatedAt, _ = parseTime(updatedAt)
	return rec, nil
}

// DeletePipeline removes a pipeline and reports whether it existed.
func (s *SQLiteStore) DeletePipeline(ctx context.Context, id string) (bool, error) {
	if s.db == nil {
		return false, fmt.Errorf("database not opened")
	}

	res, err := s.db.ExecContext(ctx, `DELETE FROM pipelines WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("failed to delete pipeline: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to delete pipeline: %w", err)
	}
	return n > 0, nil
}

// --- Drafts ---

// SaveDraft overwrites the draft stored under key.
func (s *SQLiteStore) SaveDraft(ctx context.Context, key string, state *core.CanvasState) error {
	if s.db == nil {
		return fmt.Errorf("database not opened")
	}
	if state == nil {
		return fmt.Errorf("draft %s: nil state", key)
	}

	payload, err := sonic.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to encode draft: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO drafts (key, data, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at`,
		key, string(payload), formatTime(s.now()),
	)
	if err != nil {
		return fmt.Errorf("failed to save draft: %w", err)
	}
	return nil
}

// LoadDraft returns the draft under key, or nil when none exists.
func (s *SQLiteStore) LoadDraft(ctx context.Context, key string) (*core.CanvasState, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}

	var data string
	err := s.db.QueryRowContext(ctx, `SELECT data FROM drafts WHERE key = ?`, key).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load draft: %w", err)
	}

	var state core.CanvasState
	if err := sonic.UnmarshalString(data, &state); err != nil {
		return nil, fmt.Errorf("failed to decode draft %s: %w", key, err)
	}
	return &state, nil
}

// DeleteDraft removes the draft under key.
func (s *SQLiteStore) DeleteDraft(ctx context.Context, key string) error {
	if s.db == nil {
		return fmt.Errorf("database not opened")
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM drafts WHERE key = ?`, key); err != nil {
		return fmt.Errorf("failed to delete draft: %w", err)
	}
	return nil
}

func orEmptyGraph(g core.Graph) core.Graph {
	if g.Nodes == nil {
		g.Nodes = []core.Node{}
	}
	if g.Edges == nil {
		g.Edges = []core.Edge{}
	}
	return g
}
