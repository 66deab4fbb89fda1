package core

import "time"

// RunState is the orchestrator state of a run.
type RunState string

const (
	RunIdle       RunState = "idle"
	RunStarting   RunState = "starting"
	RunRunning    RunState = "running"
	RunNodeActive RunState = "node-active"
	RunPaused     RunState = "paused"
	RunComplete   RunState = "complete"
	RunError      RunState = "error"
	RunCancelled  RunState = "cancelled"
)

// Streaming reports whether a stream is (or is about to be) open.
func (s RunState) Streaming() bool {
	return s == RunStarting || s == RunRunning || s == RunNodeActive
}

// Active reports whether the run can still make progress.
func (s RunState) Active() bool {
	return s.Streaming() || s == RunPaused
}

// NodeStatus is the lifecycle of one node inside a run.
type NodeStatus string

const (
	NodePending  NodeStatus = "pending"
	NodeRunning  NodeStatus = "running"
	NodePaused   NodeStatus = "paused"
	NodeComplete NodeStatus = "complete"
	NodeError    NodeStatus = "error"
)

// RunMetrics are the cumulative totals of a run.
type RunMetrics struct {
	Tokens int64   `json:"tokens"`
	Cost   float64 `json:"cost"`
}

// LogLevel classifies a run log entry.
type LogLevel string

const (
	LogInfo    LogLevel = "info"
	LogSuccess LogLevel = "success"
	LogWarning LogLevel = "warning"
	LogError   LogLevel = "error"
	LogStream  LogLevel = "stream"
	LogResult  LogLevel = "result"
)

// LogEntry is one line of the run log.
type LogEntry struct {
	Time    time.Time `json:"time"`
	Level   LogLevel  `json:"level"`
	NodeID  string    `json:"node_id,omitempty"`
	Message string    `json:"message"`
}
