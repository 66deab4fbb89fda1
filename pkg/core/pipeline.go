package core

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by stores when a record does not exist.
var ErrNotFound = errors.New("not found")

// DefaultPipelineName is the name given to a fresh canvas.
const DefaultPipelineName = "Untitled Pipeline"

// CanvasState is the persisted projection of the editor: wider than the
// history snapshot because it also carries the pipeline name and the
// per-type id counters.
type CanvasState struct {
	Name    string         `json:"pipelineName"`
	Nodes   []Node         `json:"nodes"`
	Edges   []Edge         `json:"edges"`
	NodeIDs map[string]int `json:"nodeIDs"`
}

// PipelineFile is the import/export document format.
type PipelineFile struct {
	Name  string `json:"name"`
	Nodes []Node `json:"nodes"`
	Edges []Edge `json:"edges"`
}

// PipelineSummary describes a saved pipeline without its graph.
type PipelineSummary struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// PipelineRecord is a saved pipeline.
type PipelineRecord struct {
	PipelineSummary
	Data Graph `json:"data"`
}

// PipelineStore persists named pipelines.
type PipelineStore interface {
	// SavePipeline inserts or replaces a pipeline. An empty id allocates a new
	// one. The creation timestamp of an existing record is preserved.
	SavePipeline(ctx context.Context, id, name string, data Graph) (*PipelineRecord, error)
	// ListPipelines returns summaries ordered by most recent update first.
	ListPipelines(ctx context.Context) ([]PipelineSummary, error)
	// GetPipeline returns the pipeline or an error wrapping ErrNotFound.
	GetPipeline(ctx context.Context, id string) (*PipelineRecord, error)
	// DeletePipeline reports whether a pipeline was removed.
	DeletePipeline(ctx context.Context, id string) (bool, error)
	Close() error
}

// DraftStore is a key/value store for the in-progress canvas.
type DraftStore interface {
	// SaveDraft overwrites the draft stored under key.
	SaveDraft(ctx context.Context, key string, state *CanvasState) error
	// LoadDraft returns nil, nil when no draft exists.
	LoadDraft(ctx context.Context, key string) (*CanvasState, error)
	DeleteDraft(ctx context.Context, key string) error
	Close() error
}
