package core

// EventType names a frame of the execution stream.
type EventType string

const (
	EventRunStart     EventType = "run_start"
	EventNodeStart    EventType = "node_start"
	EventNodeChunk    EventType = "node_chunk"
	EventNodeComplete EventType = "node_complete"
	EventNodePaused   EventType = "node_paused"
	EventError        EventType = "error"
	EventRunComplete  EventType = "run_complete"

	// Aliases emitted by older runners.
	EventPipelineStart    EventType = "pipeline_start"
	EventPipelineComplete EventType = "pipeline_complete"
)

// Canonical folds legacy aliases into their current names.
func (t EventType) Canonical() EventType {
	switch t {
	case EventPipelineStart:
		return EventRunStart
	case EventPipelineComplete:
		return EventRunComplete
	default:
		return t
	}
}

// NodeMetrics are the usage figures reported for a completed node.
type NodeMetrics struct {
	TokensIn  int64   `json:"tokens_in"`
	TokensOut int64   `json:"tokens_out"`
	Cost      float64 `json:"cost"`
}

// Event is one frame of the execution stream.
type Event struct {
	Type       EventType    `json:"event"`
	RunID      string       `json:"run_id,omitempty"`
	PipelineID string       `json:"pipeline_id,omitempty"`
	NodeID     string       `json:"node_id,omitempty"`
	NodeType   string       `json:"node_type,omitempty"`
	Chunk      string       `json:"chunk,omitempty"`
	Message    string       `json:"message,omitempty"`
	Result     any          `json:"result,omitempty"`
	Metrics    *NodeMetrics `json:"metrics,omitempty"`
	Plan       []string     `json:"plan,omitempty"`
}

// Run returns the run id carried by the frame under either field name.
func (e Event) Run() string {
	if e.RunID != "" {
		return e.RunID
	}
	return e.PipelineID
}

// ExecuteRequest opens or resumes a run on the remote runner.
type ExecuteRequest struct {
	Nodes        []Node            `json:"nodes"`
	Edges        []Edge            `json:"edges"`
	RunID        string            `json:"run_id,omitempty"`
	ResumeNodeID string            `json:"resume_node_id,omitempty"`
	UserInput    string            `json:"user_input,omitempty"`
	Env          map[string]string `json:"env,omitempty"`
}
