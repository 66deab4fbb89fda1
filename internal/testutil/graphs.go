package testutil

import "github.com/leapstack-labs/vectorflow/pkg/core"

// Node builds a node at the origin.
func Node(id, typ string, data map[string]any) core.Node {
	return core.Node{ID: id, Type: typ, Data: data}
}

// Chain links nodes in order with default handles.
func Chain(nodes ...core.Node) core.Graph {
	g := core.Graph{Nodes: nodes, Edges: []core.Edge{}}
	for i := 1; i < len(nodes); i++ {
		g.Edges = append(g.Edges, core.Edge{
			ID:     "e-" + nodes[i-1].ID + "-" + nodes[i].ID,
			Source: nodes[i-1].ID,
			Target: nodes[i].ID,
		})
	}
	return g
}

// QAPipeline is input, text template, llm, output in a line. Every
// required field is filled so it validates clean against the builtins.
func QAPipeline() core.Graph {
	return Chain(
		Node("customInput-1", "customInput", map[string]any{"inputName": "question", "inputType": "Text"}),
		Node("text-1", "text", map[string]any{"text": "Answer briefly: {{question}}"}),
		Node("llm-1", "llm", map[string]any{"model": "gpt-4o-mini"}),
		Node("customOutput-1", "customOutput", map[string]any{"outputName": "answer", "outputType": "Text"}),
	)
}
