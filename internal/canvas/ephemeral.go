package canvas

// Selection, focus, measured sizes and execution highlights never reach
// history or persistence. Every method here emits ChangeEphemeral.

// Select marks nodes and edges as selected. Without additive the previous
// selection is replaced. Unknown ids are ignored.
func (s *Store) Select(nodeIDs, edgeIDs []string, additive bool) {
	s.mu.Lock()
	if !additive {
		s.selNodes = make(map[string]struct{})
		s.selEdges = make(map[string]struct{})
	}
	for _, id := range nodeIDs {
		if s.indexOfNode(id) >= 0 {
			s.selNodes[id] = struct{}{}
		}
	}
	for _, id := range edgeIDs {
		for _, e := range s.edges {
			if e.ID == id {
				s.selEdges[id] = struct{}{}
			}
		}
	}
	s.mu.Unlock()
	s.emit(ChangeEphemeral)
}

// SelectAll selects every node and edge.
func (s *Store) SelectAll() {
	s.mu.Lock()
	for _, n := range s.nodes {
		s.selNodes[n.ID] = struct{}{}
	}
	for _, e := range s.edges {
		s.selEdges[e.ID] = struct{}{}
	}
	s.mu.Unlock()
	s.emit(ChangeEphemeral)
}

// ClearSelection deselects everything.
func (s *Store) ClearSelection() {
	s.mu.Lock()
	s.selNodes = make(map[string]struct{})
	s.selEdges = make(map[string]struct{})
	s.mu.Unlock()
	s.emit(ChangeEphemeral)
}

// Selection returns the selected node and edge ids, sorted.
func (s *Store) Selection() (nodeIDs, edgeIDs []string) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sortedKeys(s.selNodes), sortedKeys(s.selEdges)
}

// SetActiveNode focuses a node for configuration. An empty id clears focus.
func (s *Store) SetActiveNode(id string) {
	s.mu.Lock()
	if id != "" && s.indexOfNode(id) < 0 {
		s.mu.Unlock()
		return
	}
	s.activeNode = id
	s.mu.Unlock()
	s.emit(ChangeEphemeral)
}

// ActiveNode returns the focused node id.
func (s *Store) ActiveNode() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.activeNode
}

// SetNodeSize records the rendered size of a node for layout.
func (s *Store) SetNodeSize(id string, width, height float64) {
	s.mu.Lock()
	if s.indexOfNode(id) < 0 || width <= 0 || height <= 0 {
		s.mu.Unlock()
		return
	}
	s.sizes[id] = size{width, height}
	s.mu.Unlock()
	s.emit(ChangeEphemeral)
}

// SetExecuting replaces the set of nodes highlighted as executing.
func (s *Store) SetExecuting(ids []string) {
	s.mu.Lock()
	s.executing = make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if s.indexOfNode(id) >= 0 {
			s.executing[id] = struct{}{}
		}
	}
	s.mu.Unlock()
	s.emit(ChangeEphemeral)
}

// ActivateOutbound marks every edge leaving nodeID as carrying data.
func (s *Store) ActivateOutbound(nodeID string) {
	s.mu.Lock()
	for _, e := range s.edges {
		if e.Source == nodeID {
			s.liveEdges[e.ID] = struct{}{}
		}
	}
	s.mu.Unlock()
	s.emit(ChangeEphemeral)
}

// ResetInbound clears the data-flow marker on every edge entering nodeID.
func (s *Store) ResetInbound(nodeID string) {
	s.mu.Lock()
	for _, e := range s.edges {
		if e.Target == nodeID {
			delete(s.liveEdges, e.ID)
		}
	}
	s.mu.Unlock()
	s.emit(ChangeEphemeral)
}

// ClearActivity drops every execution highlight.
func (s *Store) ClearActivity() {
	s.mu.Lock()
	s.executing = make(map[string]struct{})
	s.liveEdges = make(map[string]struct{})
	s.mu.Unlock()
	s.emit(ChangeEphemeral)
}
