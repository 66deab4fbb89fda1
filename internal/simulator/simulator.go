// Package simulator is the server side of the execution stream. It walks a
// pipeline in topological order and emits the frames a real runner would,
// producing simulated results and usage figures per node type. Runs that
// pause for operator input are parked in memory until resumed.
package simulator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/leapstack-labs/vectorflow/internal/dag"
	"github.com/leapstack-labs/vectorflow/pkg/core"
)

// DataRequireApproval is the node data flag that pauses a run before the
// node executes.
const DataRequireApproval = "require_approval"

// PauseMessage is sent with every node_paused frame.
const PauseMessage = "Execution paused for user input."

// DefaultParkTTL is how long a paused run waits for its resume before it
// is forgotten.
const DefaultParkTTL = time.Hour

// Emit delivers one frame to the client. An error aborts the run.
type Emit func(core.Event) error

type parkedRun struct {
	results  map[string]any
	totals   core.NodeMetrics
	parkedAt time.Time
}

// Service runs simulated pipelines.
type Service struct {
	logger    *slog.Logger
	stepDelay time.Duration
	newRunID  func() string
	now       func() time.Time
	parkTTL   time.Duration
	executors map[string]executor

	mu     sync.Mutex
	parked map[string]*parkedRun
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithStepDelay sets the pacing between frames. Zero disables all waits,
// including the delay node's.
func WithStepDelay(d time.Duration) Option {
	return func(s *Service) { s.stepDelay = d }
}

// WithRunIDs overrides run id generation.
func WithRunIDs(fn func() string) Option {
	return func(s *Service) { s.newRunID = fn }
}

// WithParkTTL sets how long a paused run is kept. Zero keeps it until
// resumed.
func WithParkTTL(d time.Duration) Option {
	return func(s *Service) { s.parkTTL = d }
}

// WithClock overrides the time source used to expire paused runs.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// New creates a simulator.
func New(opts ...Option) *Service {
	s := &Service{
		logger:    slog.Default(),
		stepDelay: 300 * time.Millisecond,
		newRunID:  uuid.NewString,
		now:       time.Now,
		parkTTL:   DefaultParkTTL,
		executors: builtinExecutors(),
		parked:    make(map[string]*parkedRun),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Parked reports whether a paused run is waiting under runID.
func (s *Service) Parked(runID string) bool {
	s.expire()
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.parked[runID]
	return ok
}

// Stream executes req and emits its frames in order. Failures of the
// pipeline itself are reported as error frames; the returned error is
// reserved for emit failures and cancellation.
func (s *Service) Stream(ctx context.Context, req core.ExecuteRequest, emit Emit) error {
	s.expire()
	runID := req.RunID
	if runID == "" {
		runID = s.newRunID()
	}

	g := dag.FromPipeline(req.Nodes, req.Edges)
	plan, err := g.TopologicalSort()
	if err != nil {
		return emit(core.Event{Type: core.EventError, RunID: runID, Message: "Graph contains cycles"})
	}

	run := &parkedRun{results: make(map[string]any)}
	start := 0
	if req.ResumeNodeID != "" {
		s.mu.Lock()
		parked, ok := s.parked[runID]
		s.mu.Unlock()
		if !ok {
			return emit(core.Event{Type: core.EventError, RunID: runID,
				Message: fmt.Sprintf("No paused run %s to resume.", runID)})
		}
		run = parked
		start = indexOf(plan, req.ResumeNodeID)
		if req.UserInput != "" {
			run.results[req.ResumeNodeID] = req.UserInput
			start++
		}
	}

	byID := make(map[string]core.Node, len(req.Nodes))
	for _, n := range req.Nodes {
		byID[n.ID] = n
	}

	logger := s.logger.With("run_id", runID)
	logger.Debug("run started", "plan", len(plan), "start", start)

	if err := emit(core.Event{Type: core.EventRunStart, RunID: runID, Plan: plan[start:]}); err != nil {
		return err
	}
	if err := s.sleep(ctx, s.stepDelay); err != nil {
		return err
	}

	for _, id := range plan[start:] {
		node := byID[id]
		if err := emit(core.Event{Type: core.EventNodeStart, RunID: runID, NodeID: id, NodeType: node.Type}); err != nil {
			return err
		}
		if err := s.sleep(ctx, s.stepDelay); err != nil {
			return err
		}

		if approval, _ := node.Data[DataRequireApproval].(bool); approval {
			s.mu.Lock()
			run.parkedAt = s.now()
			s.parked[runID] = run
			s.mu.Unlock()
			logger.Debug("run paused", "node", id)
			return emit(core.Event{Type: core.EventNodePaused, RunID: runID, NodeID: id, Message: PauseMessage})
		}

		nc := &nodeContext{
			ctx:     ctx,
			service: s,
			runID:   runID,
			node:    node,
			graph:   g,
			results: run.results,
			env:     req.Env,
			emit:    emit,
		}
		exec, ok := s.executors[node.Type]
		if !ok {
			exec = fallbackExecutor
		}
		out, err := exec(nc)
		if err != nil {
			var fe *failure
			if errors.As(err, &fe) {
				s.forget(runID)
				return emit(core.Event{Type: core.EventError, RunID: runID, NodeID: id, Message: fe.message})
			}
			return err
		}

		run.results[id] = out.result
		run.totals.TokensIn += out.metrics.TokensIn
		run.totals.TokensOut += out.metrics.TokensOut
		run.totals.Cost += out.metrics.Cost
		m := out.metrics
		if err := emit(core.Event{Type: core.EventNodeComplete, RunID: runID, NodeID: id, Result: out.result, Metrics: &m}); err != nil {
			return err
		}
		if err := s.sleep(ctx, s.stepDelay/2); err != nil {
			return err
		}
	}

	s.forget(runID)
	totals := run.totals
	logger.Debug("run complete", "tokens", totals.TokensIn+totals.TokensOut, "cost", totals.Cost)
	return emit(core.Event{Type: core.EventRunComplete, RunID: runID, Metrics: &totals})
}

func (s *Service) forget(runID string) {
	s.mu.Lock()
	delete(s.parked, runID)
	s.mu.Unlock()
}

// expire forgets paused runs that outlived the park TTL, such as runs whose
// client cancelled instead of resuming.
func (s *Service) expire() {
	if s.parkTTL <= 0 {
		return
	}
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, run := range s.parked {
		if now.Sub(run.parkedAt) > s.parkTTL {
			delete(s.parked, id)
			s.logger.Debug("paused run expired", "run_id", id)
		}
	}
}

func (s *Service) sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 || s.stepDelay <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func indexOf(plan []string, id string) int {
	for i, v := range plan {
		if v == id {
			return i
		}
	}
	return 0
}
