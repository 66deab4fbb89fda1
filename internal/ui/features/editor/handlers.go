// Package editor provides the HTTP surface of an editing session: canvas
// commands, undo/redo, import/export, runs, and a Datastar stream that
// pushes the session state to the browser after every change.
package editor

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/sessions"
	"github.com/leapstack-labs/vectorflow/internal/canvas"
	"github.com/leapstack-labs/vectorflow/internal/editor"
	"github.com/leapstack-labs/vectorflow/internal/execution"
	"github.com/leapstack-labs/vectorflow/internal/pipefile"
	"github.com/leapstack-labs/vectorflow/internal/state"
	"github.com/leapstack-labs/vectorflow/internal/ui/features/common"
	"github.com/leapstack-labs/vectorflow/internal/ui/notifier"
	"github.com/leapstack-labs/vectorflow/internal/ui/workspace"
	"github.com/leapstack-labs/vectorflow/pkg/core"
	"github.com/starfederation/datastar-go/datastar"
)

// Handlers provides HTTP handlers for editing sessions.
type Handlers struct {
	hub          *workspace.Hub
	sessionStore sessions.Store
	notifier     *notifier.Notifier
	logger       *slog.Logger
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(hub *workspace.Hub, sessionStore sessions.Store, notify *notifier.Notifier, logger *slog.Logger) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handlers{
		hub:          hub,
		sessionStore: sessionStore,
		notifier:     notify,
		logger:       logger,
	}
}

// handlerFunc is a handler bound to the request's editing session.
type handlerFunc func(w http.ResponseWriter, r *http.Request, s *editor.Session)

// withSession resolves the workspace and its session before calling fn.
func (h *Handlers) withSession(fn handlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name, err := h.workspaceName(w, r)
		if err != nil {
			common.WriteError(w, http.StatusBadRequest, err)
			return
		}
		s, err := h.hub.Get(r.Context(), name)
		if err != nil {
			h.logger.Error("failed to open workspace", "workspace", name, "error", err)
			common.WriteError(w, http.StatusInternalServerError, err)
			return
		}
		fn(w, r, s)
	}
}

// statusCode maps session errors to HTTP status codes.
func statusCode(err error) int {
	switch {
	case errors.Is(err, common.ErrBadRequest),
		errors.Is(err, pipefile.ErrFormat),
		errors.Is(err, editor.ErrUnknownType),
		errors.Is(err, execution.ErrEmptyInput):
		return http.StatusBadRequest
	case errors.Is(err, state.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, execution.ErrNotPaused),
		errors.Is(err, execution.ErrRunActive),
		errors.Is(err, execution.ErrCancelled):
		return http.StatusConflict
	case errors.Is(err, execution.ErrNotRunnable):
		return http.StatusUnprocessableEntity
	case errors.Is(err, editor.ErrNoLibrary):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func fail(w http.ResponseWriter, err error) {
	common.WriteError(w, statusCode(err), err)
}

// ChangeResponse reports whether a command changed anything. Commands
// that do nothing are not errors.
type ChangeResponse struct {
	Changed bool `json:"changed"`
}

func changed(w http.ResponseWriter, ok bool) {
	common.WriteJSON(w, http.StatusOK, ChangeResponse{Changed: ok})
}

// --- State ---

// State is everything the browser renders for a session.
type State struct {
	Workspace string          `json:"workspace"`
	Canvas    canvas.View     `json:"canvas"`
	Status    editor.Status   `json:"status"`
	Types     []core.NodeType `json:"types,omitempty"`
}

func buildState(name string, s *editor.Session, withTypes bool) State {
	st := State{
		Workspace: name,
		Canvas:    s.Store().View(),
		Status:    s.Status(),
	}
	if withTypes {
		st.Types = s.Registry().List()
	}
	return st
}

// GetState returns the session state, including the node-type catalog.
func (h *Handlers) GetState(w http.ResponseWriter, r *http.Request) {
	name, err := h.workspaceName(w, r)
	if err != nil {
		common.WriteError(w, http.StatusBadRequest, err)
		return
	}
	s, err := h.hub.Get(r.Context(), name)
	if err != nil {
		common.WriteError(w, http.StatusInternalServerError, err)
		return
	}
	common.WriteJSON(w, http.StatusOK, buildState(name, s, true))
}

// Updates is the long-lived SSE endpoint. It patches the "editor" signal
// with the full state on connect and after every session change.
func (h *Handlers) Updates(w http.ResponseWriter, r *http.Request) {
	name, err := h.workspaceName(w, r)
	if err != nil {
		common.WriteError(w, http.StatusBadRequest, err)
		return
	}
	s, err := h.hub.Get(r.Context(), name)
	if err != nil {
		common.WriteError(w, http.StatusInternalServerError, err)
		return
	}

	// Subscribe before the first send so no change slips between them.
	updates := h.notifier.Subscribe(name)
	defer h.notifier.Unsubscribe(updates)

	sse := datastar.NewSSE(w, r)
	send := func(withTypes bool) {
		if err := sse.MarshalAndPatchSignals(map[string]any{"editor": buildState(name, s, withTypes)}); err != nil {
			_ = sse.ConsoleError(err)
		}
	}
	send(true)

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-updates:
			send(false)
		}
	}
}

// --- Canvas commands ---

type addNodeRequest struct {
	Type     string        `json:"type"`
	Position core.Position `json:"position"`
}

// AddNode creates a node with registry defaults.
func (h *Handlers) AddNode(w http.ResponseWriter, r *http.Request, s *editor.Session) {
	var req addNodeRequest
	if err := common.DecodeJSON(r, &req); err != nil {
		fail(w, err)
		return
	}
	id, err := s.AddNode(req.Type, req.Position)
	if err != nil {
		fail(w, err)
		return
	}
	common.WriteJSON(w, http.StatusCreated, map[string]string{"id": id})
}

// UpdateNodeData merges fields into a node's data.
func (h *Handlers) UpdateNodeData(w http.ResponseWriter, r *http.Request, s *editor.Session) {
	var partial map[string]any
	if err := common.DecodeJSON(r, &partial); err != nil {
		fail(w, err)
		return
	}
	changed(w, s.Store().UpdateNodeData(chi.URLParam(r, "id"), partial))
}

type handleRequest struct {
	Side canvas.Side `json:"side"`
	Name string      `json:"name"`
}

func (req handleRequest) validate() error {
	if req.Side != canvas.SideInput && req.Side != canvas.SideOutput {
		return fmt.Errorf("%w: side must be %q or %q", common.ErrBadRequest, canvas.SideInput, canvas.SideOutput)
	}
	return nil
}

// AddHandle declares an extra handle on a node.
func (h *Handlers) AddHandle(w http.ResponseWriter, r *http.Request, s *editor.Session) {
	var req handleRequest
	if err := common.DecodeJSON(r, &req); err != nil {
		fail(w, err)
		return
	}
	if err := req.validate(); err != nil {
		fail(w, err)
		return
	}
	changed(w, s.Store().AddHandle(chi.URLParam(r, "id"), req.Side, req.Name))
}

// RemoveHandle drops an extra handle and its edges.
func (h *Handlers) RemoveHandle(w http.ResponseWriter, r *http.Request, s *editor.Session) {
	req := handleRequest{Side: canvas.Side(chi.URLParam(r, "side")), Name: chi.URLParam(r, "name")}
	if err := req.validate(); err != nil {
		fail(w, err)
		return
	}
	changed(w, s.Store().RemoveHandle(chi.URLParam(r, "id"), req.Side, req.Name))
}

type sizeRequest struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// SetNodeSize records a node's measured size for layout.
func (h *Handlers) SetNodeSize(w http.ResponseWriter, r *http.Request, s *editor.Session) {
	var req sizeRequest
	if err := common.DecodeJSON(r, &req); err != nil {
		fail(w, err)
		return
	}
	s.Store().SetNodeSize(chi.URLParam(r, "id"), req.Width, req.Height)
	changed(w, true)
}

// MoveNodes repositions nodes as one undoable edit.
func (h *Handlers) MoveNodes(w http.ResponseWriter, r *http.Request, s *editor.Session) {
	var positions map[string]core.Position
	if err := common.DecodeJSON(r, &positions); err != nil {
		fail(w, err)
		return
	}
	changed(w, s.Store().MoveNodes(positions))
}

// Connect adds an edge.
func (h *Handlers) Connect(w http.ResponseWriter, r *http.Request, s *editor.Session) {
	var c core.Connection
	if err := common.DecodeJSON(r, &c); err != nil {
		fail(w, err)
		return
	}
	edge, ok := s.Store().Connect(c)
	if !ok {
		changed(w, false)
		return
	}
	common.WriteJSON(w, http.StatusCreated, edge)
}

type selectRequest struct {
	Nodes    []string `json:"nodes"`
	Edges    []string `json:"edges"`
	Additive bool     `json:"additive"`
}

// Select sets or extends the selection.
func (h *Handlers) Select(w http.ResponseWriter, r *http.Request, s *editor.Session) {
	var req selectRequest
	if err := common.DecodeJSON(r, &req); err != nil {
		fail(w, err)
		return
	}
	s.Store().Select(req.Nodes, req.Edges, req.Additive)
	changed(w, true)
}

// SelectAll selects every node and edge.
func (h *Handlers) SelectAll(w http.ResponseWriter, _ *http.Request, s *editor.Session) {
	s.Store().SelectAll()
	changed(w, true)
}

// ClearSelection deselects everything.
func (h *Handlers) ClearSelection(w http.ResponseWriter, _ *http.Request, s *editor.Session) {
	s.Store().ClearSelection()
	changed(w, true)
}

// DeleteSelected removes the selection.
func (h *Handlers) DeleteSelected(w http.ResponseWriter, _ *http.Request, s *editor.Session) {
	changed(w, s.Store().DeleteSelected())
}

type activeRequest struct {
	ID string `json:"id"`
}

// SetActive focuses a node; an empty id clears focus.
func (h *Handlers) SetActive(w http.ResponseWriter, r *http.Request, s *editor.Session) {
	var req activeRequest
	if err := common.DecodeJSON(r, &req); err != nil {
		fail(w, err)
		return
	}
	s.Store().SetActiveNode(req.ID)
	changed(w, true)
}

// Undo reverts the last edit.
func (h *Handlers) Undo(w http.ResponseWriter, _ *http.Request, s *editor.Session) {
	changed(w, s.Undo())
}

// Redo reapplies the last undone edit.
func (h *Handlers) Redo(w http.ResponseWriter, _ *http.Request, s *editor.Session) {
	changed(w, s.Redo())
}

// Clear empties the canvas and resets the id counters.
func (h *Handlers) Clear(w http.ResponseWriter, _ *http.Request, s *editor.Session) {
	changed(w, s.Store().Clear())
}

type renameRequest struct {
	Name string `json:"name"`
}

// Rename sets the pipeline name.
func (h *Handlers) Rename(w http.ResponseWriter, r *http.Request, s *editor.Session) {
	var req renameRequest
	if err := common.DecodeJSON(r, &req); err != nil {
		fail(w, err)
		return
	}
	changed(w, s.Store().Rename(req.Name))
}

// Layout auto-arranges the canvas. The direction query parameter is LR
// or TB; empty uses the configured direction.
func (h *Handlers) Layout(w http.ResponseWriter, r *http.Request, s *editor.Session) {
	dir := core.Direction(r.URL.Query().Get("direction"))
	if dir != "" && !dir.Valid() {
		fail(w, fmt.Errorf("%w: direction must be 'LR' or 'TB'", common.ErrBadRequest))
		return
	}
	changed(w, s.AutoLayout(dir))
}

// --- Files ---

// Import replaces the canvas with the posted pipeline document.
func (h *Handlers) Import(w http.ResponseWriter, r *http.Request, s *editor.Session) {
	if err := s.Import(r.Body); err != nil {
		fail(w, err)
		return
	}
	changed(w, true)
}

// Export downloads the canvas as a pipeline document.
func (h *Handlers) Export(w http.ResponseWriter, _ *http.Request, s *editor.Session) {
	var buf bytes.Buffer
	if err := s.Export(&buf); err != nil {
		fail(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", s.ExportName()))
	_, _ = w.Write(buf.Bytes())
}

// Validate checks the canvas now and returns the verdict.
func (h *Handlers) Validate(w http.ResponseWriter, r *http.Request, s *editor.Session) {
	v, err := s.Validate(r.Context())
	if err != nil {
		fail(w, err)
		return
	}
	common.WriteJSON(w, http.StatusOK, v)
}

// --- Runs ---

// Run starts a run of the canvas.
func (h *Handlers) Run(w http.ResponseWriter, r *http.Request, s *editor.Session) {
	if err := s.Run(r.Context()); err != nil {
		fail(w, err)
		return
	}
	common.WriteJSON(w, http.StatusAccepted, s.RunSnapshot())
}

type resumeRequest struct {
	Input string `json:"input"`
}

// Resume continues a paused run.
func (h *Handlers) Resume(w http.ResponseWriter, r *http.Request, s *editor.Session) {
	var req resumeRequest
	if err := common.DecodeJSON(r, &req); err != nil {
		fail(w, err)
		return
	}
	if err := s.Resume(r.Context(), req.Input); err != nil {
		fail(w, err)
		return
	}
	common.WriteJSON(w, http.StatusAccepted, s.RunSnapshot())
}

// Cancel stops the current run.
func (h *Handlers) Cancel(w http.ResponseWriter, _ *http.Request, s *editor.Session) {
	changed(w, s.Cancel())
}

// GetRun returns the run state.
func (h *Handlers) GetRun(w http.ResponseWriter, _ *http.Request, s *editor.Session) {
	common.WriteJSON(w, http.StatusOK, s.RunSnapshot())
}

// --- Library ---

type saveRequest struct {
	AsNew bool `json:"asNew"`
}

// SaveToLibrary stores the canvas in the pipeline library.
func (h *Handlers) SaveToLibrary(w http.ResponseWriter, r *http.Request, s *editor.Session) {
	var req saveRequest
	if err := common.DecodeJSON(r, &req); err != nil {
		fail(w, err)
		return
	}
	rec, err := s.SaveToLibrary(r.Context(), req.AsNew)
	if err != nil {
		fail(w, err)
		return
	}
	common.WriteJSON(w, http.StatusOK, rec.PipelineSummary)
}

// OpenFromLibrary loads a saved pipeline onto the canvas.
func (h *Handlers) OpenFromLibrary(w http.ResponseWriter, r *http.Request, s *editor.Session) {
	rec, err := s.OpenFromLibrary(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		fail(w, err)
		return
	}
	common.WriteJSON(w, http.StatusOK, rec.PipelineSummary)
}
