package validate

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/leapstack-labs/vectorflow/internal/dag"
	"github.com/leapstack-labs/vectorflow/pkg/core"
)

var handleNamePattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Validate checks every node against its registry entry. Unknown types and
// empty required fields are errors; connection limits, handle names,
// disconnected nodes and parallel edges are warnings.
func Validate(g core.Graph, catalog core.TypeCatalog) core.ValidationReport {
	report := core.ValidationReport{Errors: []core.FieldError{}, Warnings: []string{}}
	d := dag.FromPipeline(g.Nodes, g.Edges)

	for _, node := range g.Nodes {
		meta, ok := catalog.Lookup(node.Type)
		if !ok {
			report.Errors = append(report.Errors, core.FieldError{
				NodeID:   node.ID,
				NodeType: node.Type,
				Field:    "type",
				Message:  fmt.Sprintf("Unknown node type '%s'.", node.Type),
			})
			continue
		}

		for _, f := range meta.Fields {
			if f.Required && blank(node.Data[f.Name]) {
				report.Errors = append(report.Errors, core.FieldError{
					NodeID:   node.ID,
					NodeType: node.Type,
					Field:    f.Name,
					Message:  fmt.Sprintf("Required field '%s' is empty.", f.Label),
				})
			}
		}

		extraIn := node.StringList(core.DataExtraInputs)
		extraOut := node.StringList(core.DataExtraOutputs)
		for _, h := range append(append([]string{}, extraIn...), extraOut...) {
			if !handleNamePattern.MatchString(h) {
				report.Warnings = append(report.Warnings, fmt.Sprintf(
					"Node '%s': extra handle '%s' has an invalid name (use letters, numbers, underscores only).",
					node.ID, h))
			}
		}

		if limit := effectiveMax(meta.MaxInputs, len(extraIn)); limit >= 0 {
			if in := d.InDegree(node.ID); in > limit {
				report.Warnings = append(report.Warnings, fmt.Sprintf(
					"Node '%s' (%s) has %d connections but supports at most %d (%d built-in + %d custom).",
					node.ID, node.Type, in, limit, meta.MaxInputs, len(extraIn)))
			}
		}
		if limit := effectiveMax(meta.MaxOutputs, len(extraOut)); limit >= 0 {
			if out := d.OutDegree(node.ID); out > limit {
				report.Warnings = append(report.Warnings, fmt.Sprintf(
					"Node '%s' (%s) has %d outgoing connections but supports at most %d.",
					node.ID, node.Type, out, limit))
			}
		}

		if len(g.Nodes) > 1 && d.InDegree(node.ID)+d.OutDegree(node.ID) == 0 {
			report.Warnings = append(report.Warnings, fmt.Sprintf("Node '%s' (%s) is disconnected.", node.ID, node.Type))
		}
	}

	report.Warnings = append(report.Warnings, parallelEdges(g.Edges)...)
	report.Valid = len(report.Errors) == 0
	return report
}

func effectiveMax(limit, extra int) int {
	if limit < 0 {
		return core.Unlimited
	}
	return limit + extra
}

func blank(v any) bool {
	switch val := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(val) == ""
	default:
		return false
	}
}

// parallelEdges reports edges sharing both endpoints and both handles.
// They are kept as-is; the runner gives them no defined ordering.
func parallelEdges(edges []core.Edge) []string {
	type key struct{ source, target, sourceHandle, targetHandle string }
	counts := make(map[key]int)
	var order []key
	for _, e := range edges {
		k := key{e.Source, e.Target, e.SourceHandle, e.TargetHandle}
		if counts[k] == 0 {
			order = append(order, k)
		}
		counts[k]++
	}

	var warnings []string
	for _, k := range order {
		if n := counts[k]; n > 1 {
			warnings = append(warnings, fmt.Sprintf(
				"%d parallel edges connect '%s' to '%s' on the same handles; their order is undefined.",
				n, k.source, k.target))
		}
	}
	return warnings
}
