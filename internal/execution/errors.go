package execution

import (
	"errors"
	"fmt"

	"github.com/leapstack-labs/vectorflow/pkg/core"
)

var (
	// ErrEmptyInput is returned by Resume when the operator input is blank.
	ErrEmptyInput = errors.New("resume input is empty")
	// ErrNotPaused is returned by Resume when no node is paused.
	ErrNotPaused = errors.New("no node is paused")
	// ErrRunActive is returned when a stream is already open.
	ErrRunActive = errors.New("a run is already in progress")
	// ErrNotRunnable is returned when the gate rejects the graph.
	ErrNotRunnable = errors.New("pipeline is not runnable")
	// ErrStreamClosed marks a stream that ended before a terminal frame.
	ErrStreamClosed = errors.New("stream closed before the run finished")
	// ErrCancelled is returned by Start or Resume when Cancel wins the race
	// against opening the stream.
	ErrCancelled = errors.New("run cancelled")
)

// NotRunnableError carries the verdict that blocked a run.
type NotRunnableError struct {
	Verdict *core.Verdict
}

func (e *NotRunnableError) Error() string {
	if e.Verdict == nil {
		return ErrNotRunnable.Error()
	}
	switch {
	case e.Verdict.Analysis.NumNodes == 0:
		return "pipeline is not runnable: it has no nodes"
	case !e.Verdict.Analysis.IsDAG:
		return "pipeline is not runnable: it contains cycles"
	case len(e.Verdict.Validation.Errors) > 0:
		first := e.Verdict.Validation.Errors[0]
		return fmt.Sprintf("pipeline is not runnable: %d validation error(s), first on %s: %s",
			len(e.Verdict.Validation.Errors), first.NodeID, first.Message)
	default:
		return ErrNotRunnable.Error()
	}
}

func (e *NotRunnableError) Is(target error) bool {
	return target == ErrNotRunnable
}

// RunError is a failure reported by the runner in an error frame.
type RunError struct {
	Message string
}

func (e *RunError) Error() string {
	return "run failed: " + e.Message
}

// FrameError is a frame whose payload could not be decoded. The stream
// remains usable after it.
type FrameError struct {
	Payload string
	Err     error
}

func (e *FrameError) Error() string {
	return fmt.Sprintf("malformed frame %q: %v", truncate(e.Payload, 80), e.Err)
}

func (e *FrameError) Unwrap() error {
	return e.Err
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
