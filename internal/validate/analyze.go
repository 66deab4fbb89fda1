// Package validate analyzes pipeline graphs and checks them against the
// node-type registry. The combined verdict is the precondition the
// execution orchestrator consults before opening a run.
package validate

import (
	"fmt"
	"strings"

	"github.com/leapstack-labs/vectorflow/internal/dag"
	"github.com/leapstack-labs/vectorflow/pkg/core"
)

// Type keys that mark a pipeline's entry and exit points.
const (
	InputType  = "customInput"
	OutputType = "customOutput"
)

// Analyze computes the structural report for a graph. Parallel edges count
// once toward degrees, matching dependency semantics.
func Analyze(g core.Graph) core.Analysis {
	d := dag.FromPipeline(g.Nodes, g.Edges)

	a := core.Analysis{
		NumNodes:       len(g.Nodes),
		NumEdges:       len(g.Edges),
		NodeTypeCounts: make(map[string]int),
		SourceNodes:    orEmpty(d.GetRoots()),
		SinkNodes:      orEmpty(d.GetLeaves()),
		IsolatedNodes:  orEmpty(d.GetIsolated()),
		LongestPath:    -1,
		Warnings:       []string{},
	}

	for _, n := range g.Nodes {
		a.NodeTypeCounts[n.Type]++
		switch n.Type {
		case InputType:
			a.HasInputNode = true
		case OutputType:
			a.HasOutputNode = true
		}
	}

	hasCycle, cycle := d.HasCycle()
	a.IsDAG = !hasCycle
	a.Cycle = cycle
	if d.NodeCount() > 0 {
		a.ConnectedComponents = d.Components()
	}
	if a.IsDAG && d.NodeCount() > 0 {
		if plan, err := d.TopologicalSort(); err == nil {
			a.ExecutionPlan = plan
			a.LongestPath = d.LongestPath()
		}
	}

	if !a.HasInputNode {
		a.Warnings = append(a.Warnings, "No Input node found — pipeline has no entry point.")
	}
	if !a.HasOutputNode {
		a.Warnings = append(a.Warnings, "No Output node found — pipeline has no exit point.")
	}
	if !a.IsDAG {
		a.Warnings = append(a.Warnings, "Pipeline contains cycles — it is NOT a valid DAG.")
	}
	if len(a.IsolatedNodes) > 0 {
		a.Warnings = append(a.Warnings, fmt.Sprintf("%d node(s) have no connections: %s",
			len(a.IsolatedNodes), strings.Join(a.IsolatedNodes, ", ")))
	}
	if a.ConnectedComponents > 1 {
		a.Warnings = append(a.Warnings, fmt.Sprintf("Pipeline has %d disconnected sub-graphs.", a.ConnectedComponents))
	}

	return a
}

func orEmpty(ids []string) []string {
	if ids == nil {
		return []string{}
	}
	return ids
}
