// Package pipelines provides the stateless pipeline service API: graph
// analysis, validation, the node-type catalog, auto-layout, simulated
// execution and the saved-pipeline library.
package pipelines

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/leapstack-labs/vectorflow/internal/layout"
	"github.com/leapstack-labs/vectorflow/internal/registry"
	"github.com/leapstack-labs/vectorflow/internal/state"
	"github.com/leapstack-labs/vectorflow/internal/ui/features/common"
	"github.com/leapstack-labs/vectorflow/internal/validate"
	"github.com/leapstack-labs/vectorflow/pkg/core"
)

// Request limits.
const (
	MaxNodes   = 1000
	MaxEdges   = 5000
	MaxNameLen = 200
)

// Handlers provides HTTP handlers for the pipeline service.
type Handlers struct {
	registry *registry.Registry
	library  core.PipelineStore
	runner   http.Handler
	layout   layout.Options
	logger   *slog.Logger
}

// NewHandlers creates a new Handlers instance. runner serves the execute
// stream; library may be nil when no pipeline store is configured.
func NewHandlers(reg *registry.Registry, library core.PipelineStore, runner http.Handler, opts layout.Options, logger *slog.Logger) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handlers{
		registry: reg,
		library:  library,
		runner:   runner,
		layout:   opts,
		logger:   logger,
	}
}

// PipelineRequest is the body of the analysis endpoints and of library saves.
type PipelineRequest struct {
	ID    string      `json:"id,omitempty"`
	Name  string      `json:"name"`
	Nodes []core.Node `json:"nodes"`
	Edges []core.Edge `json:"edges"`
}

func (p PipelineRequest) graph() core.Graph {
	return core.Graph{Nodes: p.Nodes, Edges: p.Edges}
}

// readPipeline decodes and bounds-checks a pipeline body, writing the
// error response itself when it fails.
func readPipeline(w http.ResponseWriter, r *http.Request) (PipelineRequest, bool) {
	var p PipelineRequest
	if err := common.DecodeJSON(r, &p); err != nil {
		common.WriteError(w, http.StatusBadRequest, err)
		return p, false
	}
	switch {
	case len(p.Nodes) > MaxNodes:
		common.WriteError(w, http.StatusUnprocessableEntity, fmt.Errorf("pipeline has %d nodes, at most %d allowed", len(p.Nodes), MaxNodes))
		return p, false
	case len(p.Edges) > MaxEdges:
		common.WriteError(w, http.StatusUnprocessableEntity, fmt.Errorf("pipeline has %d edges, at most %d allowed", len(p.Edges), MaxEdges))
		return p, false
	case len(p.Name) > MaxNameLen:
		common.WriteError(w, http.StatusUnprocessableEntity, fmt.Errorf("name is longer than %d characters", MaxNameLen))
		return p, false
	}
	if p.Name == "" {
		p.Name = core.DefaultPipelineName
	}
	return p, true
}

// Parse analyzes the graph structure.
func (h *Handlers) Parse(w http.ResponseWriter, r *http.Request) {
	p, ok := readPipeline(w, r)
	if !ok {
		return
	}
	if len(p.Nodes) == 0 {
		common.WriteError(w, http.StatusUnprocessableEntity, errors.New("Pipeline must contain at least one node."))
		return
	}
	common.WriteJSON(w, http.StatusOK, validate.Analyze(p.graph()))
}

// Validate checks node fields and connection limits against the catalog.
func (h *Handlers) Validate(w http.ResponseWriter, r *http.Request) {
	p, ok := readPipeline(w, r)
	if !ok {
		return
	}
	common.WriteJSON(w, http.StatusOK, validate.Validate(p.graph(), h.registry))
}

// NodeTypesResponse lists the catalog.
type NodeTypesResponse struct {
	NodeTypes  []core.NodeType `json:"node_types"`
	Categories []string        `json:"categories"`
}

// NodeTypes returns the node-type catalog in declaration order.
func (h *Handlers) NodeTypes(w http.ResponseWriter, _ *http.Request) {
	common.WriteJSON(w, http.StatusOK, NodeTypesResponse{
		NodeTypes:  h.registry.List(),
		Categories: h.registry.Categories(),
	})
}

// LayoutNode is one positioned node of an auto-layout response.
type LayoutNode struct {
	ID       string        `json:"id"`
	Position core.Position `json:"position"`
}

// AutoLayoutResponse carries the new positions in request order.
type AutoLayoutResponse struct {
	Nodes []LayoutNode `json:"nodes"`
}

// AutoLayout computes positions for the posted graph. The direction query
// parameter is LR (default) or TB.
func (h *Handlers) AutoLayout(w http.ResponseWriter, r *http.Request) {
	dir := core.Direction(r.URL.Query().Get("direction"))
	if dir == "" {
		dir = core.DirectionLR
	}
	if !dir.Valid() {
		common.WriteError(w, http.StatusUnprocessableEntity, errors.New("direction must be 'LR' or 'TB'."))
		return
	}
	p, ok := readPipeline(w, r)
	if !ok {
		return
	}

	opts := h.layout
	opts.Direction = dir
	pos := layout.Positions(p.Nodes, p.Edges, opts)
	resp := AutoLayoutResponse{Nodes: make([]LayoutNode, 0, len(p.Nodes))}
	for _, n := range p.Nodes {
		resp.Nodes = append(resp.Nodes, LayoutNode{ID: n.ID, Position: pos[n.ID]})
	}
	common.WriteJSON(w, http.StatusOK, resp)
}

// Execute streams a run as server-sent events.
func (h *Handlers) Execute(w http.ResponseWriter, r *http.Request) {
	if h.runner == nil {
		common.WriteError(w, http.StatusServiceUnavailable, errors.New("no runner configured"))
		return
	}
	h.runner.ServeHTTP(w, r)
}

// --- Library ---

func (h *Handlers) requireLibrary(w http.ResponseWriter) bool {
	if h.library == nil {
		common.WriteError(w, http.StatusServiceUnavailable, errors.New("no pipeline library configured"))
		return false
	}
	return true
}

// ListSaved returns saved pipeline summaries, most recent first.
func (h *Handlers) ListSaved(w http.ResponseWriter, r *http.Request) {
	if !h.requireLibrary(w) {
		return
	}
	list, err := h.library.ListPipelines(r.Context())
	if err != nil {
		h.logger.Error("list pipelines failed", "error", err)
		common.WriteError(w, http.StatusInternalServerError, err)
		return
	}
	common.WriteJSON(w, http.StatusOK, map[string]any{"pipelines": list})
}

// Save upserts a pipeline. A body without id creates a new record.
func (h *Handlers) Save(w http.ResponseWriter, r *http.Request) {
	if !h.requireLibrary(w) {
		return
	}
	p, ok := readPipeline(w, r)
	if !ok {
		return
	}
	if id := chi.URLParam(r, "id"); id != "" {
		p.ID = id
	}
	rec, err := h.library.SavePipeline(r.Context(), p.ID, p.Name, p.graph())
	if err != nil {
		h.logger.Error("save pipeline failed", "error", err)
		common.WriteError(w, http.StatusInternalServerError, err)
		return
	}
	status := http.StatusOK
	if p.ID == "" {
		status = http.StatusCreated
	}
	common.WriteJSON(w, status, rec)
}

// GetSaved returns one saved pipeline with its graph.
func (h *Handlers) GetSaved(w http.ResponseWriter, r *http.Request) {
	if !h.requireLibrary(w) {
		return
	}
	rec, err := h.library.GetPipeline(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, state.ErrNotFound) {
		common.WriteError(w, http.StatusNotFound, err)
		return
	}
	if err != nil {
		common.WriteError(w, http.StatusInternalServerError, err)
		return
	}
	common.WriteJSON(w, http.StatusOK, rec)
}

// DeleteSaved removes a saved pipeline.
func (h *Handlers) DeleteSaved(w http.ResponseWriter, r *http.Request) {
	if !h.requireLibrary(w) {
		return
	}
	id := chi.URLParam(r, "id")
	ok, err := h.library.DeletePipeline(r.Context(), id)
	if err != nil {
		common.WriteError(w, http.StatusInternalServerError, err)
		return
	}
	if !ok {
		common.WriteError(w, http.StatusNotFound, fmt.Errorf("pipeline %s: %w", id, state.ErrNotFound))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
