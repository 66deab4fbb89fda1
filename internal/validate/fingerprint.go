package validate

import (
	"encoding/hex"

	"github.com/bytedance/sonic"
	"github.com/leapstack-labs/vectorflow/pkg/core"
	"github.com/zeebo/blake3"
)

type fingerprintNode struct {
	ID   string         `json:"id"`
	Type string         `json:"type"`
	Data map[string]any `json:"data"`
}

type fingerprintEdge struct {
	Source       string `json:"s"`
	Target       string `json:"t"`
	SourceHandle string `json:"sh"`
	TargetHandle string `json:"th"`
}

// Fingerprint hashes the parts of a graph that affect analysis and
// validation. Positions, sizes and selection are excluded so dragging a
// node does not invalidate a verdict.
func Fingerprint(g core.Graph) string {
	view := struct {
		Nodes []fingerprintNode `json:"n"`
		Edges []fingerprintEdge `json:"e"`
	}{
		Nodes: make([]fingerprintNode, 0, len(g.Nodes)),
		Edges: make([]fingerprintEdge, 0, len(g.Edges)),
	}
	for _, n := range g.Nodes {
		view.Nodes = append(view.Nodes, fingerprintNode{ID: n.ID, Type: n.Type, Data: n.Data})
	}
	for _, e := range g.Edges {
		view.Edges = append(view.Edges, fingerprintEdge{e.Source, e.Target, e.SourceHandle, e.TargetHandle})
	}

	// ConfigStd sorts map keys, keeping the encoding stable.
	data, err := sonic.ConfigStd.Marshal(view)
	if err != nil {
		return ""
	}
	sum := blake3.Sum256(data)
	return hex.EncodeToString(sum[:16])
}
