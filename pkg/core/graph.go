package core

import "maps"

// Position is a 2-D canvas coordinate of a node's top-left corner.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Node is a typed vertex of a pipeline graph.
//
// Data MAY carry "extraInputs" and "extraOutputs" string lists naming
// user-declared connection points.
type Node struct {
	ID       string         `json:"id"`
	Type     string         `json:"type"`
	Position Position       `json:"position"`
	Data     map[string]any `json:"data"`
	Width    float64        `json:"width,omitempty"`
	Height   float64        `json:"height,omitempty"`
	Selected bool           `json:"selected,omitempty"`
}

// Data keys for user-declared handles.
const (
	DataExtraInputs  = "extraInputs"
	DataExtraOutputs = "extraOutputs"
)

// Edge connects the output handle of one node to the input handle of another.
type Edge struct {
	ID           string `json:"id"`
	Source       string `json:"source"`
	Target       string `json:"target"`
	SourceHandle string `json:"sourceHandle,omitempty"`
	TargetHandle string `json:"targetHandle,omitempty"`
	Label        string `json:"label,omitempty"`
	Selected     bool   `json:"selected,omitempty"`
}

// Connection is a request to create an edge between two handles.
type Connection struct {
	Source       string `json:"source"`
	Target       string `json:"target"`
	SourceHandle string `json:"sourceHandle,omitempty"`
	TargetHandle string `json:"targetHandle,omitempty"`
}

// Graph is the (nodes, edges) pair tracked by history and consumed by layout.
type Graph struct {
	Nodes []Node `json:"nodes"`
	Edges []Edge `json:"edges"`
}

// Clone returns a deep copy of the graph. Node data maps are copied
// recursively so that later mutation of either copy is invisible to the other.
func (g Graph) Clone() Graph {
	out := Graph{
		Nodes: make([]Node, len(g.Nodes)),
		Edges: make([]Edge, len(g.Edges)),
	}
	for i, n := range g.Nodes {
		out.Nodes[i] = n.Clone()
	}
	copy(out.Edges, g.Edges)
	return out
}

// Empty reports whether the graph has neither nodes nor edges.
func (g Graph) Empty() bool {
	return len(g.Nodes) == 0 && len(g.Edges) == 0
}

// Node returns the node with the given id.
func (g Graph) Node(id string) (Node, bool) {
	for _, n := range g.Nodes {
		if n.ID == id {
			return n, true
		}
	}
	return Node{}, false
}

// Clone returns a deep copy of the node.
func (n Node) Clone() Node {
	out := n
	out.Data = CloneData(n.Data)
	return out
}

// StringList reads a string slice from node data, accepting both []string
// and the []any produced by JSON decoding.
func (n Node) StringList(key string) []string {
	switch v := n.Data[key].(type) {
	case []string:
		return append([]string(nil), v...)
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

// CloneData deep-copies a node data map.
func CloneData(data map[string]any) map[string]any {
	if data == nil {
		return map[string]any{}
	}
	out := make(map[string]any, len(data))
	for k, v := range data {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return CloneData(t)
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = cloneValue(item)
		}
		return out
	case []string:
		return append([]string(nil), t...)
	case map[string]string:
		return maps.Clone(t)
	default:
		return v
	}
}

// Direction is the flow axis used by auto-layout.
type Direction string

const (
	// DirectionLR lays ranks out left to right.
	DirectionLR Direction = "LR"
	// DirectionTB lays ranks out top to bottom.
	DirectionTB Direction = "TB"
)

// Valid reports whether d is a supported direction.
func (d Direction) Valid() bool {
	return d == DirectionLR || d == DirectionTB
}
