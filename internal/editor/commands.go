package editor

import (
	"context"
	"fmt"
	"io"

	"github.com/leapstack-labs/vectorflow/internal/layout"
	"github.com/leapstack-labs/vectorflow/internal/pipefile"
	"github.com/leapstack-labs/vectorflow/pkg/core"
)

// AddNode places a new node of nodeType at pos with its data seeded from
// the registry defaults. It returns the allocated id.
func (s *Session) AddNode(nodeType string, pos core.Position) (string, error) {
	if _, ok := s.registry.Lookup(nodeType); !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownType, nodeType)
	}
	id := s.store.NextID(nodeType)
	ok := s.store.AddNode(core.Node{
		ID:       id,
		Type:     nodeType,
		Position: pos,
		Data:     s.registry.Defaults(nodeType),
	})
	if !ok {
		return "", fmt.Errorf("node id %s already in use", id)
	}
	return id, nil
}

// AutoLayout repositions every node as one undoable edit. An empty
// direction uses the configured one. It reports whether anything moved.
func (s *Session) AutoLayout(dir core.Direction) bool {
	opts := s.cfg.Layout
	if dir != "" {
		opts.Direction = dir
	}
	return s.store.MoveNodes(layout.Positions(s.store.Nodes(), s.store.Edges(), opts))
}

// Import replaces the canvas with a pipeline document as one undoable
// edit. A malformed document leaves the canvas untouched and returns an
// error wrapping pipefile.ErrFormat.
func (s *Session) Import(r io.Reader) error {
	f, err := pipefile.Read(r)
	if err != nil {
		return err
	}
	s.store.Replace(pipefile.Graph(f))
	if f.Name != "" {
		s.store.Rename(f.Name)
	}
	s.setLibraryID("")
	return nil
}

// Export writes the canvas as a pipeline document.
func (s *Session) Export(w io.Writer) error {
	return pipefile.Write(w, pipefile.FromGraph(s.store.Name(), s.store.Snapshot()))
}

// ExportName returns the file name for Export.
func (s *Session) ExportName() string {
	return pipefile.FileName(s.store.Name())
}

// --- Library ---

func (s *Session) setLibraryID(id string) {
	s.mu.Lock()
	s.libraryID = id
	s.mu.Unlock()
}

// LibraryID returns the id of the saved pipeline the canvas belongs to.
func (s *Session) LibraryID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.libraryID
}

// SaveToLibrary saves the canvas to the pipeline library. The first save
// allocates an id; later saves update the same record unless asNew is set.
func (s *Session) SaveToLibrary(ctx context.Context, asNew bool) (*core.PipelineRecord, error) {
	if s.library == nil {
		return nil, ErrNoLibrary
	}
	id := s.LibraryID()
	if asNew {
		id = ""
	}
	rec, err := s.library.SavePipeline(ctx, id, s.store.Name(), s.store.Snapshot())
	if err != nil {
		return nil, fmt.Errorf("failed to save pipeline: %w", err)
	}
	s.setLibraryID(rec.ID)
	s.publish(ChangeSaved)
	return rec, nil
}

// OpenFromLibrary replaces the canvas with a saved pipeline as one
// undoable edit.
func (s *Session) OpenFromLibrary(ctx context.Context, id string) (*core.PipelineRecord, error) {
	if s.library == nil {
		return nil, ErrNoLibrary
	}
	rec, err := s.library.GetPipeline(ctx, id)
	if err != nil {
		return nil, err
	}
	s.store.Replace(rec.Data)
	s.store.Rename(rec.Name)
	s.setLibraryID(rec.ID)
	return rec, nil
}

// ListLibrary returns the saved pipelines, most recently updated first.
func (s *Session) ListLibrary(ctx context.Context) ([]core.PipelineSummary, error) {
	if s.library == nil {
		return nil, ErrNoLibrary
	}
	return s.library.ListPipelines(ctx)
}

// DeleteFromLibrary removes a saved pipeline. The canvas is untouched.
func (s *Session) DeleteFromLibrary(ctx context.Context, id string) (bool, error) {
	if s.library == nil {
		return false, ErrNoLibrary
	}
	ok, err := s.library.DeletePipeline(ctx, id)
	if err != nil {
		return false, err
	}
	if ok && s.LibraryID() == id {
		s.setLibraryID("")
	}
	return ok, nil
}
