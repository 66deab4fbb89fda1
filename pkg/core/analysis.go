package core

// Analysis is the structural report for a pipeline graph.
type Analysis struct {
	NumNodes            int            `json:"num_nodes"`
	NumEdges            int            `json:"num_edges"`
	IsDAG               bool           `json:"is_dag"`
	Cycle               []string       `json:"cycle,omitempty"`
	NodeTypeCounts      map[string]int `json:"node_type_counts"`
	SourceNodes         []string       `json:"source_nodes"`
	SinkNodes           []string       `json:"sink_nodes"`
	IsolatedNodes       []string       `json:"isolated_nodes"`
	ConnectedComponents int            `json:"connected_components"`
	LongestPath         int            `json:"longest_path"`
	HasInputNode        bool           `json:"has_input_node"`
	HasOutputNode       bool           `json:"has_output_node"`
	Warnings            []string       `json:"warnings"`
	ExecutionPlan       []string       `json:"execution_plan,omitempty"`
}

// FieldError is a validation failure attached to a node field.
type FieldError struct {
	NodeID   string `json:"node_id"`
	NodeType string `json:"node_type"`
	Field    string `json:"field,omitempty"`
	Message  string `json:"message"`
}

// ValidationReport lists schema errors and warnings for a graph.
type ValidationReport struct {
	Valid    bool         `json:"valid"`
	Errors   []FieldError `json:"errors"`
	Warnings []string     `json:"warnings"`
}

// Verdict combines analysis and validation for a graph revision.
type Verdict struct {
	Fingerprint string           `json:"fingerprint,omitempty"`
	Analysis    Analysis         `json:"analysis"`
	Validation  ValidationReport `json:"validation"`
}

// Runnable reports whether a run may be started against the graph.
func (v *Verdict) Runnable() bool {
	return v != nil && v.Analysis.IsDAG && v.Validation.Valid && v.Analysis.NumNodes > 0
}
