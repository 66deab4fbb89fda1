// Package history provides bounded linear undo/redo over whole-graph
// snapshots.
package history

import (
	"sync"

	"github.com/leapstack-labs/vectorflow/pkg/core"
)

// DefaultLimit is the capacity of the past stack.
const DefaultLimit = 50

// Tracked is the store surface history depends on.
type Tracked interface {
	Snapshot() core.Graph
	OnCommit(fn func(core.Graph))
	Rewind(fn func() (core.Graph, bool)) bool
}

// History records a snapshot after every committed mutation of a store.
//
// Lock order is store transaction, then History.mu: commits reach record
// while the store holds its transaction lock, and Undo/Redo take it via
// Rewind before touching the stacks.
type History struct {
	mu      sync.Mutex
	store   Tracked
	limit   int
	past    []core.Graph
	future  []core.Graph
	present core.Graph
}

// New attaches a history to store. A non-positive limit uses DefaultLimit.
func New(store Tracked, limit int) *History {
	if limit <= 0 {
		limit = DefaultLimit
	}
	h := &History{
		store:   store,
		limit:   limit,
		present: store.Snapshot(),
	}
	store.OnCommit(h.record)
	return h
}

func (h *History) record(g core.Graph) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.past = append(h.past, h.present)
	if len(h.past) > h.limit {
		h.past = h.past[len(h.past)-h.limit:]
	}
	h.present = g
	h.future = nil
}

// Undo restores the previous snapshot. It is a no-op when nothing is left
// to undo.
func (h *History) Undo() bool {
	return h.store.Rewind(func() (core.Graph, bool) {
		h.mu.Lock()
		defer h.mu.Unlock()
		if len(h.past) == 0 {
			return core.Graph{}, false
		}
		prev := h.past[len(h.past)-1]
		h.past = h.past[:len(h.past)-1]
		h.future = append(h.future, h.present)
		h.present = prev
		return prev, true
	})
}

// Redo reapplies the most recently undone snapshot. It is a no-op when the
// future stack is empty.
func (h *History) Redo() bool {
	return h.store.Rewind(func() (core.Graph, bool) {
		h.mu.Lock()
		defer h.mu.Unlock()
		if len(h.future) == 0 {
			return core.Graph{}, false
		}
		next := h.future[len(h.future)-1]
		h.future = h.future[:len(h.future)-1]
		h.past = append(h.past, h.present)
		h.present = next
		return next, true
	})
}

// Reset drops both stacks and takes the store's current graph as present.
// Used after loading a persisted draft.
func (h *History) Reset() {
	present := h.store.Snapshot()
	h.mu.Lock()
	defer h.mu.Unlock()
	h.past, h.future = nil, nil
	h.present = present
}

// CanUndo reports whether Undo would change the graph.
func (h *History) CanUndo() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.past) > 0
}

// CanRedo reports whether Redo would change the graph.
func (h *History) CanRedo() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.future) > 0
}

// Depth returns the sizes of the past and future stacks.
func (h *History) Depth() (past, future int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.past), len(h.future)
}
