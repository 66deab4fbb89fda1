// Package canvas holds the in-memory pipeline graph: nodes, edges, id
// allocation and the ephemeral selection/execution projection that the
// renderer reads but history ignores.
package canvas

import (
	"maps"
	"slices"
	"sync"

	"github.com/leapstack-labs/vectorflow/pkg/core"
	"github.com/oklog/ulid/v2"
)

// ChangeKind classifies a store notification.
type ChangeKind int

const (
	// ChangeGraph is a committed, history-tracked mutation.
	ChangeGraph ChangeKind = iota
	// ChangeRestore replaces the graph without a commit (undo, redo, draft load).
	ChangeRestore
	// ChangeMeta touches persisted fields outside the graph (name).
	ChangeMeta
	// ChangeEphemeral touches selection, focus or execution highlights.
	ChangeEphemeral
)

// Persisted reports whether the change alters the persisted projection.
func (k ChangeKind) Persisted() bool {
	return k != ChangeEphemeral
}

type size struct{ w, h float64 }

// View is what a renderer needs to paint the canvas.
type View struct {
	Name        string      `json:"name"`
	Nodes       []core.Node `json:"nodes"`
	Edges       []core.Edge `json:"edges"`
	ActiveNode  string      `json:"activeNode,omitempty"`
	Executing   []string    `json:"executing"`
	ActiveEdges []string    `json:"activeEdges"`
}

// Store is the single source of truth for the pipeline graph.
//
// Mutations are serialized; commit hooks and listeners run synchronously
// after each mutation and must not call back into mutating methods.
type Store struct {
	tx sync.Mutex
	mu sync.RWMutex

	name  string
	nodes []core.Node
	edges []core.Edge
	ids   *Allocator

	selNodes   map[string]struct{}
	selEdges   map[string]struct{}
	activeNode string
	sizes      map[string]size
	executing  map[string]struct{}
	liveEdges  map[string]struct{}

	newEdgeID func() string

	hooksMu   sync.RWMutex
	onCommit  []func(core.Graph)
	listeners []func(ChangeKind)
}

// Option configures a Store.
type Option func(*Store)

// WithEdgeIDs overrides edge id generation.
func WithEdgeIDs(fn func() string) Option {
	return func(s *Store) { s.newEdgeID = fn }
}

// WithName sets the initial pipeline name.
func WithName(name string) Option {
	return func(s *Store) { s.name = name }
}

// New creates an empty store.
func New(opts ...Option) *Store {
	s := &Store{
		name:      core.DefaultPipelineName,
		ids:       NewAllocator(nil),
		selNodes:  make(map[string]struct{}),
		selEdges:  make(map[string]struct{}),
		sizes:     make(map[string]size),
		executing: make(map[string]struct{}),
		liveEdges: make(map[string]struct{}),
		newEdgeID: func() string { return "e-" + ulid.Make().String() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// OnCommit registers a hook that receives a snapshot after every committed
// mutation. Hooks must treat the snapshot as read-only.
func (s *Store) OnCommit(fn func(core.Graph)) {
	s.hooksMu.Lock()
	defer s.hooksMu.Unlock()
	s.onCommit = append(s.onCommit, fn)
}

// Subscribe registers a listener for every change, committed or not.
func (s *Store) Subscribe(fn func(ChangeKind)) {
	s.hooksMu.Lock()
	defer s.hooksMu.Unlock()
	s.listeners = append(s.listeners, fn)
}

func (s *Store) emit(kind ChangeKind) {
	s.hooksMu.RLock()
	listeners := slices.Clone(s.listeners)
	s.hooksMu.RUnlock()
	for _, fn := range listeners {
		fn(kind)
	}
}

// commit runs fn under the write lock and, when it reports a change,
// publishes one snapshot to the commit hooks.
func (s *Store) commit(fn func() bool) bool {
	s.tx.Lock()
	defer s.tx.Unlock()

	s.mu.Lock()
	changed := fn()
	var snap core.Graph
	if changed {
		snap = s.snapshotLocked()
	}
	s.mu.Unlock()
	if !changed {
		return false
	}

	s.hooksMu.RLock()
	hooks := slices.Clone(s.onCommit)
	s.hooksMu.RUnlock()
	for _, h := range hooks {
		h(snap)
	}
	s.emit(ChangeGraph)
	return true
}

func (s *Store) indexOfNode(id string) int {
	return slices.IndexFunc(s.nodes, func(n core.Node) bool { return n.ID == id })
}

// AddNode appends a node. It is a no-op if the id is already present.
func (s *Store) AddNode(n core.Node) bool {
	return s.commit(func() bool {
		if n.ID == "" || s.indexOfNode(n.ID) >= 0 {
			return false
		}
		n = n.Clone()
		if n.Selected {
			s.selNodes[n.ID] = struct{}{}
		}
		if n.Width > 0 && n.Height > 0 {
			s.sizes[n.ID] = size{n.Width, n.Height}
		}
		n.Selected, n.Width, n.Height = false, 0, 0
		s.nodes = append(s.nodes, n)
		return true
	})
}

// UpdateNodeData shallow-merges partial into the node's data. It is a no-op
// if the node is absent or partial is empty.
func (s *Store) UpdateNodeData(id string, partial map[string]any) bool {
	return s.commit(func() bool {
		i := s.indexOfNode(id)
		if i < 0 || len(partial) == 0 {
			return false
		}
		data := core.CloneData(s.nodes[i].Data)
		maps.Copy(data, core.CloneData(partial))
		s.nodes[i].Data = data
		return true
	})
}

// Connect appends an edge between two existing nodes. Parallel edges are
// allowed. It returns the created edge.
func (s *Store) Connect(c core.Connection) (core.Edge, bool) {
	var created core.Edge
	ok := s.commit(func() bool {
		if s.indexOfNode(c.Source) < 0 || s.indexOfNode(c.Target) < 0 {
			return false
		}
		created = core.Edge{
			ID:           s.newEdgeID(),
			Source:       c.Source,
			Target:       c.Target,
			SourceHandle: c.SourceHandle,
			TargetHandle: c.TargetHandle,
			Label:        EdgeLabel(c.SourceHandle, c.TargetHandle),
		}
		s.edges = append(s.edges, created)
		return true
	})
	return created, ok
}

// DeleteSelected removes the selected nodes and edges, plus every edge that
// touches a removed node.
func (s *Store) DeleteSelected() bool {
	return s.commit(func() bool {
		if len(s.selNodes) == 0 && len(s.selEdges) == 0 {
			return false
		}
		removed := make(map[string]struct{})
		nodes := s.nodes[:0:0]
		for _, n := range s.nodes {
			if _, ok := s.selNodes[n.ID]; ok {
				removed[n.ID] = struct{}{}
				continue
			}
			nodes = append(nodes, n)
		}
		edges := s.edges[:0:0]
		for _, e := range s.edges {
			_, sel := s.selEdges[e.ID]
			_, srcGone := removed[e.Source]
			_, tgtGone := removed[e.Target]
			if sel || srcGone || tgtGone {
				continue
			}
			edges = append(edges, e)
		}
		changed := len(nodes) != len(s.nodes) || len(edges) != len(s.edges)
		s.nodes, s.edges = nodes, edges
		s.selNodes = make(map[string]struct{})
		s.selEdges = make(map[string]struct{})
		s.pruneLocked()
		return changed
	})
}

// Clear empties the graph and resets the id allocator. On an empty canvas
// it is not a commit, but resetting non-zero counters still emits
// ChangeMeta so the persisted counters follow.
func (s *Store) Clear() bool {
	counted := false
	changed := s.commit(func() bool {
		counted = len(s.ids.Counters()) > 0
		s.ids.Reset()
		s.activeNode = ""
		if len(s.nodes) == 0 && len(s.edges) == 0 {
			return false
		}
		s.nodes, s.edges = nil, nil
		s.pruneLocked()
		return true
	})
	if !changed && counted {
		s.emit(ChangeMeta)
	}
	return changed
}

// MoveNodes repositions existing nodes as a single commit. Unknown ids are
// ignored; it is a no-op if no position actually changes.
func (s *Store) MoveNodes(positions map[string]core.Position) bool {
	return s.commit(func() bool {
		changed := false
		for i := range s.nodes {
			p, ok := positions[s.nodes[i].ID]
			if ok && p != s.nodes[i].Position {
				s.nodes[i].Position = p
				changed = true
			}
		}
		return changed
	})
}

// Replace swaps the whole graph as one commit. Ids found in the new graph
// are observed by the allocator so they are never handed out again. Repeated
// node or edge ids keep their first occurrence and edges whose endpoints are
// missing are dropped.
func (s *Store) Replace(g core.Graph) bool {
	return s.commit(func() bool {
		s.setGraphLocked(consistent(g.Clone()))
		s.selNodes = make(map[string]struct{})
		s.selEdges = make(map[string]struct{})
		for _, n := range s.nodes {
			s.ids.Observe(n.Type, n.ID)
		}
		return true
	})
}

// AddHandle declares an extra handle on one side of a node. The name is
// normalized; empty or duplicate names are ignored.
func (s *Store) AddHandle(nodeID string, side Side, name string) bool {
	name = NormalizeHandle(name)
	return s.commit(func() bool {
		i := s.indexOfNode(nodeID)
		if i < 0 || name == "" {
			return false
		}
		current := s.nodes[i].StringList(side.dataKey())
		if slices.Contains(current, name) {
			return false
		}
		data := core.CloneData(s.nodes[i].Data)
		data[side.dataKey()] = append(current, name)
		s.nodes[i].Data = data
		return true
	})
}

// RemoveHandle drops an extra handle and every edge attached to it.
func (s *Store) RemoveHandle(nodeID string, side Side, name string) bool {
	return s.commit(func() bool {
		i := s.indexOfNode(nodeID)
		if i < 0 {
			return false
		}
		current := s.nodes[i].StringList(side.dataKey())
		idx := slices.Index(current, name)
		if idx < 0 {
			return false
		}
		data := core.CloneData(s.nodes[i].Data)
		data[side.dataKey()] = slices.Delete(current, idx, idx+1)
		s.nodes[i].Data = data

		s.edges = slices.DeleteFunc(s.edges, func(e core.Edge) bool {
			if side == SideOutput {
				return e.Source == nodeID && HandleLabel(e.SourceHandle) == name
			}
			return e.Target == nodeID && HandleLabel(e.TargetHandle) == name
		})
		return true
	})
}

// Rewind restores a graph produced by fn without notifying commit hooks.
// fn runs while mutations are blocked, so the graph it returns cannot race
// with a concurrent commit.
func (s *Store) Rewind(fn func() (core.Graph, bool)) bool {
	s.tx.Lock()
	defer s.tx.Unlock()

	g, ok := fn()
	if !ok {
		return false
	}
	s.mu.Lock()
	s.setGraphLocked(g.Clone())
	s.mu.Unlock()
	s.emit(ChangeRestore)
	return true
}

// Load restores a persisted canvas without creating a history entry.
func (s *Store) Load(state core.CanvasState) {
	s.tx.Lock()
	defer s.tx.Unlock()

	s.mu.Lock()
	s.setGraphLocked(consistent(core.Graph{Nodes: state.Nodes, Edges: state.Edges}.Clone()))
	if state.Name != "" {
		s.name = state.Name
	}
	s.ids.Restore(state.NodeIDs)
	s.mu.Unlock()
	s.emit(ChangeRestore)
}

func consistent(g core.Graph) core.Graph {
	nodeIDs := make(map[string]struct{}, len(g.Nodes))
	nodes := g.Nodes[:0]
	for _, n := range g.Nodes {
		if _, dup := nodeIDs[n.ID]; dup || n.ID == "" {
			continue
		}
		nodeIDs[n.ID] = struct{}{}
		nodes = append(nodes, n)
	}
	edgeIDs := make(map[string]struct{}, len(g.Edges))
	edges := g.Edges[:0]
	for _, e := range g.Edges {
		_, src := nodeIDs[e.Source]
		_, dst := nodeIDs[e.Target]
		if _, dup := edgeIDs[e.ID]; dup || !src || !dst {
			continue
		}
		edgeIDs[e.ID] = struct{}{}
		edges = append(edges, e)
	}
	return core.Graph{Nodes: nodes, Edges: edges}
}

func (s *Store) setGraphLocked(g core.Graph) {
	s.nodes = g.Nodes
	s.edges = g.Edges
	for i := range s.nodes {
		if s.nodes[i].Data == nil {
			s.nodes[i].Data = map[string]any{}
		}
		s.nodes[i].Selected = false
		s.nodes[i].Width, s.nodes[i].Height = 0, 0
	}
	for i := range s.edges {
		s.edges[i].Selected = false
	}
	s.pruneLocked()
}

// pruneLocked drops ephemeral state that refers to ids no longer present.
func (s *Store) pruneLocked() {
	nodeIDs := make(map[string]struct{}, len(s.nodes))
	for _, n := range s.nodes {
		nodeIDs[n.ID] = struct{}{}
	}
	edgeIDs := make(map[string]struct{}, len(s.edges))
	for _, e := range s.edges {
		edgeIDs[e.ID] = struct{}{}
	}
	for _, m := range []map[string]struct{}{s.selNodes, s.executing} {
		for id := range m {
			if _, ok := nodeIDs[id]; !ok {
				delete(m, id)
			}
		}
	}
	for _, m := range []map[string]struct{}{s.selEdges, s.liveEdges} {
		for id := range m {
			if _, ok := edgeIDs[id]; !ok {
				delete(m, id)
			}
		}
	}
	for id := range s.sizes {
		if _, ok := nodeIDs[id]; !ok {
			delete(s.sizes, id)
		}
	}
	if _, ok := nodeIDs[s.activeNode]; !ok {
		s.activeNode = ""
	}
}

// Rename sets the pipeline name. The name is persisted but not tracked by
// history.
func (s *Store) Rename(name string) bool {
	s.mu.Lock()
	if name == "" || name == s.name {
		s.mu.Unlock()
		return false
	}
	s.name = name
	s.mu.Unlock()
	s.emit(ChangeMeta)
	return true
}

// Name returns the pipeline name.
func (s *Store) Name() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.name
}

// NextID allocates a fresh id for nodeType, skipping ids already on the canvas.
func (s *Store) NextID(nodeType string) string {
	for {
		id := s.ids.Next(nodeType)
		if !s.HasNode(id) {
			return id
		}
	}
}

// HasNode reports whether a node with the given id exists.
func (s *Store) HasNode(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.indexOfNode(id) >= 0
}

// Snapshot returns the history-tracked projection: nodes and edges without
// selection, focus, measured sizes or execution highlights.
func (s *Store) Snapshot() core.Graph {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

func (s *Store) snapshotLocked() core.Graph {
	return core.Graph{Nodes: s.nodes, Edges: s.edges}.Clone()
}

// State returns the persisted projection.
func (s *Store) State() core.CanvasState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	g := s.snapshotLocked()
	return core.CanvasState{
		Name:    s.name,
		Nodes:   g.Nodes,
		Edges:   g.Edges,
		NodeIDs: s.ids.Counters(),
	}
}

// Nodes returns the nodes as the renderer sees them, with selection flags
// and measured sizes filled in.
func (s *Store) Nodes() []core.Node {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nodesLocked()
}

func (s *Store) nodesLocked() []core.Node {
	out := make([]core.Node, len(s.nodes))
	for i, n := range s.nodes {
		out[i] = n.Clone()
		_, out[i].Selected = s.selNodes[n.ID]
		if sz, ok := s.sizes[n.ID]; ok {
			out[i].Width, out[i].Height = sz.w, sz.h
		}
	}
	return out
}

// Edges returns the edges with selection flags filled in.
func (s *Store) Edges() []core.Edge {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.edgesLocked()
}

func (s *Store) edgesLocked() []core.Edge {
	out := slices.Clone(s.edges)
	for i := range out {
		_, out[i].Selected = s.selEdges[out[i].ID]
	}
	return out
}

// View returns everything a renderer needs in one consistent read.
func (s *Store) View() View {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return View{
		Name:        s.name,
		Nodes:       s.nodesLocked(),
		Edges:       s.edgesLocked(),
		ActiveNode:  s.activeNode,
		Executing:   sortedKeys(s.executing),
		ActiveEdges: sortedKeys(s.liveEdges),
	}
}

func sortedKeys(m map[string]struct{}) []string {
	return slices.Sorted(maps.Keys(m))
}
