// Package dag provides directed graph analysis for pipelines.
// It supports cycle detection, topological sorting, execution levels and
// connectivity queries. Parallel edges collapse into one dependency.
package dag

import (
	"fmt"
	"slices"
	"sort"

	"github.com/leapstack-labs/vectorflow/pkg/core"
)

// Node represents a node in the graph.
type Node struct {
	// ID is the unique identifier (pipeline node id)
	ID string
	// Type is the pipeline node type key
	Type string
}

// Graph represents a directed graph that may contain cycles.
type Graph struct {
	nodes   map[string]*Node
	edges   map[string][]string // parent -> children (dependents)
	parents map[string][]string // child -> parents (dependencies)
	loops   map[string]bool     // nodes with a self-loop
}

// NewGraph creates a new empty graph.
func NewGraph() *Graph {
	return &Graph{
		nodes:   make(map[string]*Node),
		edges:   make(map[string][]string),
		parents: make(map[string][]string),
		loops:   make(map[string]bool),
	}
}

// FromPipeline builds a graph from pipeline nodes and edges. Edges whose
// endpoints are missing are ignored.
func FromPipeline(nodes []core.Node, edges []core.Edge) *Graph {
	g := NewGraph()
	for _, n := range nodes {
		g.AddNode(n.ID, n.Type)
	}
	for _, e := range edges {
		_ = g.AddEdge(e.Source, e.Target)
	}
	return g
}

// AddNode adds a node to the graph, updating its type if it already exists.
func (g *Graph) AddNode(id, nodeType string) {
	if _, exists := g.nodes[id]; !exists {
		g.nodes[id] = &Node{ID: id, Type: nodeType}
		g.edges[id] = []string{}
		g.parents[id] = []string{}
	} else {
		g.nodes[id].Type = nodeType
	}
}

// AddEdge adds a directed edge from parent to child (child depends on parent).
// A self-loop is recorded as a cycle rather than rejected.
func (g *Graph) AddEdge(parentID, childID string) error {
	if _, exists := g.nodes[parentID]; !exists {
		return fmt.Errorf("parent node %q does not exist", parentID)
	}
	if _, exists := g.nodes[childID]; !exists {
		return fmt.Errorf("child node %q does not exist", childID)
	}

	if parentID == childID {
		g.loops[parentID] = true
		return nil
	}

	if !slices.Contains(g.edges[parentID], childID) {
		g.edges[parentID] = append(g.edges[parentID], childID)
		slices.Sort(g.edges[parentID])
	}
	if !slices.Contains(g.parents[childID], parentID) {
		g.parents[childID] = append(g.parents[childID], parentID)
		slices.Sort(g.parents[childID])
	}

	return nil
}

// GetNode returns a node by ID.
func (g *Graph) GetNode(id string) (*Node, bool) {
	node, exists := g.nodes[id]
	return node, exists
}

// GetParents returns the parents (dependencies) of a node.
func (g *Graph) GetParents(id string) []string {
	return g.parents[id]
}

// GetChildren returns the children (dependents) of a node.
func (g *Graph) GetChildren(id string) []string {
	return g.edges[id]
}

// InDegree counts distinct parents, plus one for a self-loop.
func (g *Graph) InDegree(id string) int {
	n := len(g.parents[id])
	if g.loops[id] {
		n++
	}
	return n
}

// OutDegree counts distinct children, plus one for a self-loop.
func (g *Graph) OutDegree(id string) int {
	n := len(g.edges[id])
	if g.loops[id] {
		n++
	}
	return n
}

// sortedIDs returns node ids in lexical order.
func (g *Graph) sortedIDs() []string {
	ids := make([]string, 0, len(g.nodes))
	for id := range g.nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// NodeCount returns the number of nodes in the graph.
func (g *Graph) NodeCount() int {
	return len(g.nodes)
}

// EdgeCount returns the number of distinct edges, self-loops included.
func (g *Graph) EdgeCount() int {
	count := len(g.loops)
	for _, children := range g.edges {
		count += len(children)
	}
	return count
}

// HasCycle returns true if the graph contains a cycle, along with the cycle
// path (first and last element are the same node).
func (g *Graph) HasCycle() (bool, []string) {
	for _, id := range g.sortedIDs() {
		if g.loops[id] {
			return true, []string{id, id}
		}
	}

	visited := make(map[string]bool)
	recStack := make(map[string]bool)
	path := make(map[string]string)

	var cyclePath []string

	var dfs func(id string) bool
	dfs = func(id string) bool {
		visited[id] = true
		recStack[id] = true

		for _, childID := range g.edges[id] {
			if !visited[childID] {
				path[childID] = id
				if dfs(childID) {
					return true
				}
			} else if recStack[childID] {
				cyclePath = []string{childID}
				for curr := id; curr != childID; curr = path[curr] {
					cyclePath = append([]string{curr}, cyclePath...)
				}
				cyclePath = append([]string{childID}, cyclePath...)
				return true
			}
		}

		recStack[id] = false
		return false
	}

	for _, id := range g.sortedIDs() {
		if !visited[id] {
			if dfs(id) {
				return true, cyclePath
			}
		}
	}

	return false, nil
}

// TopologicalSort returns node ids with dependencies before dependents.
// Returns an error if the graph contains a cycle.
func (g *Graph) TopologicalSort() ([]string, error) {
	if hasCycle, cyclePath := g.HasCycle(); hasCycle {
		return nil, fmt.Errorf("cycle detected: %v", cyclePath)
	}

	visited := make(map[string]bool)
	var result []string

	var visit func(id string)
	visit = func(id string) {
		if visited[id] {
			return
		}
		visited[id] = true

		for _, parentID := range g.parents[id] {
			visit(parentID)
		}

		result = append(result, id)
	}

	for _, id := range g.sortedIDs() {
		visit(id)
	}

	return result, nil
}

// GetExecutionLevels returns nodes grouped by execution level.
// Nodes at level N can run in parallel after level N-1 completes.
// Level 0 contains nodes with no dependencies.
func (g *Graph) GetExecutionLevels() ([][]string, error) {
	order, err := g.TopologicalSort()
	if err != nil {
		return nil, err
	}

	assigned := make(map[string]int, len(order))
	maxLevel := 0
	for _, id := range order {
		level := 0
		for _, parentID := range g.parents[id] {
			level = max(level, assigned[parentID]+1)
		}
		assigned[id] = level
		maxLevel = max(maxLevel, level)
	}

	if len(order) == 0 {
		return [][]string{}, nil
	}
	levels := make([][]string, maxLevel+1)
	for i := range levels {
		levels[i] = []string{}
	}
	for _, id := range order {
		levels[assigned[id]] = append(levels[assigned[id]], id)
	}
	for i := range levels {
		sort.Strings(levels[i])
	}

	return levels, nil
}

// LongestPath returns the number of edges on the longest path, or -1 when
// the graph is empty or cyclic.
func (g *Graph) LongestPath() int {
	levels, err := g.GetExecutionLevels()
	if err != nil || len(levels) == 0 {
		return -1
	}
	return len(levels) - 1
}

// GetRoots returns nodes with no parents and at least one child.
func (g *Graph) GetRoots() []string {
	var roots []string
	for _, id := range g.sortedIDs() {
		if g.InDegree(id) == 0 && g.OutDegree(id) > 0 {
			roots = append(roots, id)
		}
	}
	return roots
}

// GetLeaves returns nodes with no children and at least one parent.
func (g *Graph) GetLeaves() []string {
	var leaves []string
	for _, id := range g.sortedIDs() {
		if g.OutDegree(id) == 0 && g.InDegree(id) > 0 {
			leaves = append(leaves, id)
		}
	}
	return leaves
}

// GetIsolated returns nodes without any edge.
func (g *Graph) GetIsolated() []string {
	var isolated []string
	for _, id := range g.sortedIDs() {
		if g.InDegree(id) == 0 && g.OutDegree(id) == 0 {
			isolated = append(isolated, id)
		}
	}
	return isolated
}

// Components returns the number of weakly connected components.
func (g *Graph) Components() int {
	seen := make(map[string]bool, len(g.nodes))
	count := 0
	for _, start := range g.sortedIDs() {
		if seen[start] {
			continue
		}
		count++
		stack := []string{start}
		seen[start] = true
		for len(stack) > 0 {
			id := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			for _, next := range append(slices.Clone(g.edges[id]), g.parents[id]...) {
				if !seen[next] {
					seen[next] = true
					stack = append(stack, next)
				}
			}
		}
	}
	return count
}
