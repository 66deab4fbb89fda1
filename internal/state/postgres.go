package state

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/leapstack-labs/vectorflow/pkg/core"
)

const pgSchemaSQL = `
CREATE TABLE IF NOT EXISTS vectorflow_pipelines (
    id          TEXT PRIMARY KEY,
    name        TEXT NOT NULL,
    created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
    data        JSONB NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_vectorflow_pipelines_updated_at
    ON vectorflow_pipelines (updated_at DESC);
`

// PGStore implements core.PipelineStore on Postgres.
type PGStore struct {
	db *pgxpool.Pool
}

// NewPGStore connects to dsn and creates the schema if needed.
func NewPGStore(ctx context.Context, dsn string) (*PGStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}

	s := &PGStore{db: pool}
	if err := s.CreateSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// CreateSchema creates the pipelines table if it does not exist.
func (s *PGStore) CreateSchema(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, pgSchemaSQL); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// SavePipeline upserts a pipeline, preserving created_at.
func (s *PGStore) SavePipeline(ctx context.Context, id, name string, data core.Graph) (*core.PipelineRecord, error) {
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

	rec := &core.PipelineRecord{PipelineSummary: core.PipelineSummary{ID: id, Name: name}, Data: data.Clone()}
	err = s.db.QueryRow(ctx, `
		INSERT INTO vectorflow_pipelines (id, name, data)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			updated_at = now(),
			data = EXCLUDED.data
		RETURNING created_at, updated_at`,
		id, name, string(payload),
	).Scan(&rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to save pipeline: %w", err)
	}
	return rec, nil
}

// ListPipelines returns summaries, most recently updated first.
func (s *PGStore) ListPipelines(ctx context.Context) ([]core.PipelineSummary, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, name, created_at, updated_at FROM vectorflow_pipelines ORDER BY updated_at DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list pipelines: %w", err)
	}
	defer rows.Close()

	out := []core.PipelineSummary{}
	for rows.Next() {
		var sum core.PipelineSummary
		if err := rows.Scan(&sum.ID, &sum.Name, &sum.CreatedAt, &sum.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan pipeline: %w", err)
		}
		out = append(out, sum)
	}
	return out, rows.Err()
}

// GetPipeline returns a pipeline with its graph.
func (s *PGStore) GetPipeline(ctx context.Context, id string) (*core.PipelineRecord, error) {
	rec := &core.PipelineRecord{}
	var data []byte
	err := s.db.QueryRow(ctx,
		`SELECT id, name, created_at, updated_at, data FROM vectorflow_pipelines WHERE id = $1`, id,
	).Scan(&rec.ID, &rec.Name, &rec.CreatedAt, &rec.UpdatedAt, &data)
	if isNoRows(err) {
		return nil, fmt.Errorf("pipeline %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get pipeline: %w", err)
	}
	if err := sonic.Unmarshal(data, &rec.Data); err != nil {
		return nil, fmt.Errorf("failed to decode pipeline %s: %w", id, err)
	}
	return rec, nil
}

// DeletePipeline removes a pipeline and reports whether it existed.
func (s *PGStore) DeletePipeline(ctx context.Context, id string) (bool, error) {
	ct, err := s.db.Exec(ctx, `DELETE FROM vectorflow_pipelines WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("failed to delete pipeline: %w", err)
	}
	return ct.RowsAffected() > 0, nil
}

// Close closes the pool.
func (s *PGStore) Close() error {
	s.db.Close()
	return nil
}

func isNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}
