// Package execution drives pipeline runs against a streaming runner.
//
// The Orchestrator is a state machine:
//
//	idle → starting → {running ⇄ node-active} → {complete | error | cancelled}
//
// with paused reachable from node-active and left again through Resume.
// At most one stream is open at a time. Frames are applied strictly in
// arrival order, and a paused, error or complete frame stops processing
// of the stream that carried it.
package execution

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/leapstack-labs/vectorflow/pkg/core"
)

// Gate decides whether a graph may be run. validate.Checker satisfies it.
type Gate interface {
	Check(ctx context.Context, g core.Graph, name string) (*core.Verdict, error)
}

// Highlighter receives the ephemeral execution overlay. canvas.Store
// satisfies it; the orchestrator never touches history-tracked state.
type Highlighter interface {
	SetExecuting(ids []string)
	ActivateOutbound(nodeID string)
	ResetInbound(nodeID string)
	ClearActivity()
}

type noopHighlighter struct{}

func (noopHighlighter) SetExecuting([]string)  {}
func (noopHighlighter) ActivateOutbound(string) {}
func (noopHighlighter) ResetInbound(string)     {}
func (noopHighlighter) ClearActivity()          {}

// Snapshot is a point-in-time copy of the run.
type Snapshot struct {
	RunID        string                     `json:"run_id,omitempty"`
	State        core.RunState              `json:"state"`
	PausedNodeID string                     `json:"paused_node_id,omitempty"`
	PauseMessage string                     `json:"pause_message,omitempty"`
	Plan         []string                   `json:"plan,omitempty"`
	Statuses     map[string]core.NodeStatus `json:"statuses"`
	Results      map[string]any             `json:"results"`
	Metrics      core.RunMetrics            `json:"metrics"`
	Logs         []core.LogEntry            `json:"logs"`
	Error        string                     `json:"error,omitempty"`
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithGate sets the runnable precondition checked before every stream opens.
func WithGate(g Gate) Option {
	return func(o *Orchestrator) { o.gate = g }
}

// WithHighlighter sets the receiver of the execution overlay.
func WithHighlighter(h Highlighter) Option {
	return func(o *Orchestrator) {
		if h != nil {
			o.hl = h
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithSecrets sets the provider of the env map forwarded to the runner.
func WithSecrets(fn func() map[string]string) Option {
	return func(o *Orchestrator) { o.secrets = fn }
}

// WithClock overrides the time source for log entries.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// WithNotify registers a callback invoked after every state change. It is
// called without internal locks held.
func WithNotify(fn func()) Option {
	return func(o *Orchestrator) { o.notify = fn }
}

// WithRunIDs overrides run id generation.
func WithRunIDs(fn func() string) Option {
	return func(o *Orchestrator) { o.newRunID = fn }
}

type effect func(Highlighter)

// Orchestrator runs one logical pipeline run at a time.
type Orchestrator struct {
	runner   Runner
	gate     Gate
	hl       Highlighter
	logger   *slog.Logger
	secrets  func() map[string]string
	now      func() time.Time
	notify   func()
	newRunID func() string

	// fx orders overlay effects the same way as the state changes that
	// produced them. Acquired while mu is held, released after effects run.
	fx sync.Mutex

	mu           sync.Mutex
	state        core.RunState
	gen          uint64
	runID        string
	pausedNodeID string
	pauseMessage string
	plan         []string
	statuses     map[string]core.NodeStatus
	results      map[string]any
	metrics      core.RunMetrics
	logs         []core.LogEntry
	err          error
	current      string // node most recently started
	chunkLine    int    // index of the coalescing stream log line, -1 if none
	cancel       context.CancelFunc
	body         io.Closer
	done         chan struct{}
}

// New creates an orchestrator that opens streams through runner.
func New(runner Runner, opts ...Option) *Orchestrator {
	done := make(chan struct{})
	close(done)
	o := &Orchestrator{
		runner:    runner,
		hl:        noopHighlighter{},
		logger:    slog.Default(),
		now:       time.Now,
		newRunID:  uuid.NewString,
		state:     core.RunIdle,
		statuses:  make(map[string]core.NodeStatus),
		results:   make(map[string]any),
		chunkLine: -1,
		done:      done,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

type resumeContext struct {
	runID  string
	nodeID string
	input  string
}

// Start opens a fresh run of g. Any paused run is discarded and the
// metrics start from zero.
func (o *Orchestrator) Start(ctx context.Context, g core.Graph) error {
	return o.open(ctx, g, nil)
}

// Resume continues the paused run with the operator's input. It is
// rejected without contacting the runner when input is blank or nothing
// is paused. The run keeps its id.
func (o *Orchestrator) Resume(ctx context.Context, g core.Graph, input string) error {
	if strings.TrimSpace(input) == "" {
		return ErrEmptyInput
	}
	o.mu.Lock()
	if o.state != core.RunPaused || o.pausedNodeID == "" {
		o.mu.Unlock()
		return ErrNotPaused
	}
	rc := &resumeContext{runID: o.runID, nodeID: o.pausedNodeID, input: input}
	o.mu.Unlock()
	return o.open(ctx, g, rc)
}

func (o *Orchestrator) open(ctx context.Context, g core.Graph, rc *resumeContext) error {
	var (
		prev    core.RunState
		gen     uint64
		done    chan struct{}
		openErr error
	)
	o.update(func() ([]effect, bool) {
		if o.state.Streaming() {
			openErr = ErrRunActive
			return nil, false
		}
		if rc != nil && (o.state != core.RunPaused || o.runID != rc.runID) {
			openErr = ErrNotPaused
			return nil, false
		}
		prev = o.state
		o.gen++
		gen = o.gen
		o.state = core.RunStarting
		o.done = make(chan struct{})
		done = o.done
		return nil, true
	})
	if openErr != nil {
		return openErr
	}

	if o.gate != nil {
		verdict, err := o.gate.Check(ctx, g, "")
		if err == nil && !verdict.Runnable() {
			err = &NotRunnableError{Verdict: verdict}
		}
		if err != nil {
			o.update(func() ([]effect, bool) {
				if o.gen != gen {
					return nil, false
				}
				o.state = prev
				return nil, true
			})
			close(done)
			if errors.Is(err, ErrNotRunnable) {
				return err
			}
			return fmt.Errorf("failed to validate pipeline: %w", err)
		}
	}

	req := core.ExecuteRequest{Nodes: g.Nodes, Edges: g.Edges}
	if o.secrets != nil {
		req.Env = o.secrets()
	}
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))

	cancelled := false
	o.update(func() ([]effect, bool) {
		if o.gen != gen {
			cancelled = true
			return nil, false
		}
		o.cancel = cancel
		o.err = nil
		if rc == nil {
			o.runID = o.newRunID()
			o.plan = nil
			o.statuses = make(map[string]core.NodeStatus)
			o.results = make(map[string]any)
			o.metrics = core.RunMetrics{}
			o.logs = nil
			o.chunkLine = -1
			o.current = ""
			o.pausedNodeID, o.pauseMessage = "", ""
			o.logLocked(core.LogInfo, "", "Starting pipeline run")
			return []effect{func(h Highlighter) { h.ClearActivity() }}, true
		}
		o.statuses[rc.nodeID] = core.NodeComplete
		o.results[rc.nodeID] = rc.input
		o.pausedNodeID, o.pauseMessage = "", ""
		o.chunkLine = -1
		o.logLocked(core.LogInfo, rc.nodeID, "Resuming with input: "+rc.input)
		return []effect{func(h Highlighter) {
			h.SetExecuting(nil)
			h.ActivateOutbound(rc.nodeID)
		}}, true
	})
	if cancelled {
		cancel()
		close(done)
		return ErrCancelled
	}

	o.mu.Lock()
	req.RunID = o.runID
	o.mu.Unlock()
	if rc != nil {
		req.ResumeNodeID = rc.nodeID
		req.UserInput = rc.input
	}

	body, err := o.runner.Open(runCtx, req)
	if err != nil {
		cancel()
		o.update(func() ([]effect, bool) {
			if o.gen != gen {
				cancelled = true
				return nil, false
			}
			o.failLocked(err)
			return []effect{func(h Highlighter) { h.ClearActivity() }}, true
		})
		close(done)
		if cancelled {
			return ErrCancelled
		}
		return fmt.Errorf("failed to open run stream: %w", err)
	}

	body = &onceCloser{ReadCloser: body}
	o.update(func() ([]effect, bool) {
		if o.gen != gen {
			cancelled = true
			return nil, false
		}
		o.body = body
		return nil, false
	})
	if cancelled {
		_ = body.Close()
		cancel()
		close(done)
		return ErrCancelled
	}

	o.logger.Debug("run stream opened", "run_id", req.RunID, "resume_node", req.ResumeNodeID)
	go o.pump(gen, body, done)
	return nil
}

// pump reads frames until a terminal frame, a transport failure, or
// a cancel that closes the body.
func (o *Orchestrator) pump(gen uint64, body io.ReadCloser, done chan struct{}) {
	defer close(done)
	defer func() { _ = body.Close() }()

	dec := NewDecoder(body)
	for {
		ev, err := dec.Next()
		if err != nil {
			var fe *FrameError
			if errors.As(err, &fe) {
				o.logger.Warn("skipping malformed frame", "error", err)
				continue
			}
			o.streamEnded(gen, err)
			return
		}
		if stop := o.apply(gen, ev); stop {
			return
		}
	}
}

func (o *Orchestrator) streamEnded(gen uint64, cause error) {
	o.update(func() ([]effect, bool) {
		if o.gen != gen || !o.state.Streaming() {
			return nil, false
		}
		if errors.Is(cause, io.EOF) {
			o.failLocked(ErrStreamClosed)
		} else {
			o.failLocked(fmt.Errorf("%w: %w", ErrStreamClosed, cause))
		}
		return []effect{func(h Highlighter) { h.ClearActivity() }}, true
	})
}

// apply folds one frame into the run and reports whether the pump should
// stop reading.
func (o *Orchestrator) apply(gen uint64, ev core.Event) bool {
	stop := false
	o.update(func() ([]effect, bool) {
		if o.gen != gen || !o.state.Streaming() {
			stop = true
			return nil, false
		}

		switch ev.Type {
		case core.EventRunStart:
			if id := ev.Run(); id != "" {
				o.runID = id
			}
			if len(ev.Plan) > 0 {
				o.plan = append([]string(nil), ev.Plan...)
				for _, id := range ev.Plan {
					if _, seen := o.statuses[id]; !seen {
						o.statuses[id] = core.NodePending
					}
				}
			}
			o.state = core.RunRunning
			o.logLocked(core.LogInfo, "", fmt.Sprintf("Run %s started", o.runID))
			return nil, true

		case core.EventNodeStart:
			id := ev.NodeID
			o.statuses[id] = core.NodeRunning
			o.state = core.RunNodeActive
			o.current = id
			o.chunkLine = -1
			label := id
			if ev.NodeType != "" {
				label = fmt.Sprintf("%s (%s)", id, ev.NodeType)
			}
			o.logLocked(core.LogInfo, id, "Running "+label)
			return []effect{func(h Highlighter) {
				h.ResetInbound(id)
				h.SetExecuting([]string{id})
			}}, true

		case core.EventNodeChunk:
			if o.chunkLine >= 0 && o.chunkLine < len(o.logs) && o.logs[o.chunkLine].NodeID == ev.NodeID {
				o.logs[o.chunkLine].Message += ev.Chunk
			} else {
				o.logLocked(core.LogStream, ev.NodeID, ev.Chunk)
				o.chunkLine = len(o.logs) - 1
			}
			return nil, true

		case core.EventNodeComplete:
			id := ev.NodeID
			o.statuses[id] = core.NodeComplete
			if ev.Result != nil {
				o.results[id] = ev.Result
			}
			o.addMetricsLocked(ev.Metrics)
			o.state = core.RunRunning
			o.chunkLine = -1
			msg := "Completed " + id
			if ev.Result != nil {
				msg = fmt.Sprintf("%s: %v", msg, ev.Result)
			}
			o.logLocked(core.LogSuccess, id, msg)
			return []effect{func(h Highlighter) {
				h.SetExecuting(nil)
				h.ActivateOutbound(id)
			}}, true

		case core.EventNodePaused:
			o.state = core.RunPaused
			o.pausedNodeID = ev.NodeID
			o.pauseMessage = ev.Message
			o.statuses[ev.NodeID] = core.NodePaused
			if id := ev.Run(); id != "" {
				o.runID = id
			}
			o.logLocked(core.LogWarning, ev.NodeID, "Paused: "+ev.Message)
			o.closeStreamLocked()
			stop = true
			return nil, true

		case core.EventError:
			if o.current != "" && o.statuses[o.current] == core.NodeRunning {
				o.statuses[o.current] = core.NodeError
			}
			o.failLocked(&RunError{Message: ev.Message})
			stop = true
			return []effect{func(h Highlighter) { h.ClearActivity() }}, true

		case core.EventRunComplete:
			if ev.Metrics != nil {
				final := core.RunMetrics{Tokens: ev.Metrics.TokensIn + ev.Metrics.TokensOut, Cost: ev.Metrics.Cost}
				o.metrics.Tokens = max(o.metrics.Tokens, final.Tokens)
				o.metrics.Cost = max(o.metrics.Cost, final.Cost)
			}
			o.state = core.RunComplete
			o.logLocked(core.LogSuccess, "", fmt.Sprintf("Run complete: %d tokens, $%.6f", o.metrics.Tokens, o.metrics.Cost))
			o.closeStreamLocked()
			stop = true
			return []effect{func(h Highlighter) { h.ClearActivity() }}, true

		default:
			o.logger.Debug("ignoring unknown frame", "event", ev.Type)
			return nil, false
		}
	})
	return stop
}

// Cancel aborts the current run. It is a no-op when nothing is streaming
// or paused and reports whether a run was cancelled.
func (o *Orchestrator) Cancel() bool {
	cancelled := false
	o.update(func() ([]effect, bool) {
		if !o.state.Active() {
			return nil, false
		}
		o.gen++
		o.state = core.RunCancelled
		o.pausedNodeID, o.pauseMessage = "", ""
		o.logLocked(core.LogWarning, "", "Run cancelled")
		o.closeStreamLocked()
		cancelled = true
		return []effect{func(h Highlighter) { h.ClearActivity() }}, true
	})
	if cancelled {
		o.logger.Debug("run cancelled")
	}
	return cancelled
}

// Snapshot returns a copy of the run.
func (o *Orchestrator) Snapshot() Snapshot {
	o.mu.Lock()
	defer o.mu.Unlock()
	s := Snapshot{
		RunID:        o.runID,
		State:        o.state,
		PausedNodeID: o.pausedNodeID,
		PauseMessage: o.pauseMessage,
		Plan:         append([]string(nil), o.plan...),
		Statuses:     maps.Clone(o.statuses),
		Results:      maps.Clone(o.results),
		Metrics:      o.metrics,
		Logs:         append([]core.LogEntry(nil), o.logs...),
	}
	if o.err != nil {
		s.Error = o.err.Error()
	}
	return s
}

// State returns the current run state.
func (o *Orchestrator) State() core.RunState {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Err returns the failure that ended the run in the error state.
func (o *Orchestrator) Err() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.err
}

// Done returns a channel closed when the most recent Start or Resume has
// stopped streaming, whatever the outcome.
func (o *Orchestrator) Done() <-chan struct{} {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.done
}

// update runs fn under the state lock, then applies its overlay effects in
// order with the lock released. changed triggers the notify callback.
func (o *Orchestrator) update(fn func() ([]effect, bool)) {
	o.mu.Lock()
	effects, changed := fn()
	o.fx.Lock()
	o.mu.Unlock()
	for _, e := range effects {
		e(o.hl)
	}
	o.fx.Unlock()
	if changed && o.notify != nil {
		o.notify()
	}
}

func (o *Orchestrator) failLocked(err error) {
	o.state = core.RunError
	o.err = err
	o.logLocked(core.LogError, "", err.Error())
	o.closeStreamLocked()
}

func (o *Orchestrator) closeStreamLocked() {
	if o.cancel != nil {
		o.cancel()
		o.cancel = nil
	}
	if o.body != nil {
		_ = o.body.Close()
		o.body = nil
	}
}

// addMetricsLocked accumulates node metrics. Negative figures are dropped
// so totals never decrease within a run.
func (o *Orchestrator) addMetricsLocked(m *core.NodeMetrics) {
	if m == nil {
		return
	}
	if tokens := m.TokensIn + m.TokensOut; tokens > 0 {
		o.metrics.Tokens += tokens
	}
	if m.Cost > 0 {
		o.metrics.Cost += m.Cost
	}
}

func (o *Orchestrator) logLocked(level core.LogLevel, nodeID, msg string) {
	o.logs = append(o.logs, core.LogEntry{Time: o.now(), Level: level, NodeID: nodeID, Message: msg})
}

type onceCloser struct {
	io.ReadCloser
	once sync.Once
	err  error
}

func (c *onceCloser) Close() error {
	c.once.Do(func() { c.err = c.ReadCloser.Close() })
	return c.err
}
