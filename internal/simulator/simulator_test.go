package simulator

import (
	"context"
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/leapstack-labs/vectorflow/internal/execution"
	"github.com/leapstack-labs/vectorflow/internal/testutil"
	"github.com/leapstack-labs/vectorflow/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newService(t *testing.T) *Service {
	t.Helper()
	return New(WithStepDelay(0), WithLogger(testutil.NewTestLogger(t)), WithRunIDs(func() string { return "sim-1" }))
}

func collect(t *testing.T, s *Service, req core.ExecuteRequest) []core.Event {
	t.Helper()
	var events []core.Event
	err := s.Stream(context.Background(), req, func(ev core.Event) error {
		events = append(events, ev)
		return nil
	})
	require.NoError(t, err)
	return events
}

func types(events []core.Event) []core.EventType {
	out := make([]core.EventType, 0, len(events))
	for _, ev := range events {
		out = append(out, ev.Type)
	}
	return out
}

func find(events []core.Event, typ core.EventType, nodeID string) (core.Event, bool) {
	for _, ev := range events {
		if ev.Type == typ && ev.NodeID == nodeID {
			return ev, true
		}
	}
	return core.Event{}, false
}

func chain(nodes ...core.Node) core.ExecuteRequest {
	req := core.ExecuteRequest{Nodes: nodes}
	for i := 1; i < len(nodes); i++ {
		req.Edges = append(req.Edges, core.Edge{
			ID:     nodes[i-1].ID + "-" + nodes[i].ID,
			Source: nodes[i-1].ID,
			Target: nodes[i].ID,
		})
	}
	return req
}

func n(id, typ string, data map[string]any) core.Node {
	return core.Node{ID: id, Type: typ, Data: data}
}

func TestStream_Chain(t *testing.T) {
	s := newService(t)
	events := collect(t, s, chain(
		n("in", "customInput", map[string]any{"inputName": "question"}),
		n("llm", "llm", map[string]any{"model": "gpt-4o-mini"}),
		n("out", "customOutput", nil),
	))

	require.NotEmpty(t, events)
	assert.Equal(t, core.EventRunStart, events[0].Type)
	assert.Equal(t, "sim-1", events[0].RunID)
	assert.Equal(t, []string{"in", "llm", "out"}, events[0].Plan)
	assert.Equal(t, core.EventRunComplete, events[len(events)-1].Type)

	chunks := 0
	for _, ev := range events {
		if ev.Type == core.EventNodeChunk {
			chunks++
			assert.Equal(t, "llm", ev.NodeID)
		}
	}
	assert.Equal(t, 12, chunks)

	in, ok := find(events, core.EventNodeComplete, "in")
	require.True(t, ok)
	assert.Equal(t, "question", in.Result)

	llm, ok := find(events, core.EventNodeComplete, "llm")
	require.True(t, ok)
	assert.Equal(t, int64(50), llm.Metrics.TokensIn)
	assert.Equal(t, int64(12), llm.Metrics.TokensOut)
	assert.InDelta(t, (50*0.005+12*0.015)/1000, llm.Metrics.Cost, 1e-12)
	assert.Contains(t, llm.Result, "gpt-4o-mini")

	out, ok := find(events, core.EventNodeComplete, "out")
	require.True(t, ok)
	assert.Equal(t, llm.Result, out.Result, "output passes the upstream result through")

	final := events[len(events)-1]
	require.NotNil(t, final.Metrics)
	assert.Equal(t, int64(62), final.Metrics.TokensIn+final.Metrics.TokensOut)
}

func TestStream_NodeTypes(t *testing.T) {
	tests := []struct {
		name    string
		node    core.Node
		result  any
		tokens  int64
		cost    float64
		errText string
	}{
		{name: "text", node: n("t", "text", map[string]any{"text": "hello"}), result: "hello"},
		{name: "transform", node: n("t", "transform", nil), result: "transform_result"},
		{name: "filter", node: n("t", "filter", nil), result: "filtered_result"},
		{name: "calculator", node: n("t", "calculator", map[string]any{"expression": "1+1"}), result: "calc(1+1) = 42"},
		{name: "classifier", node: n("t", "classifier", map[string]any{"labels": " spam , ham"}),
			result: map[string]any{"label": "spam", "score": 0.92}, tokens: 30, cost: 0.0005},
		{name: "delay", node: n("t", "delay", map[string]any{"delaySeconds": "2", "delayUnit": "Milliseconds"}), result: "Delayed 2 Milliseconds"},
		{name: "unknown type", node: n("t", "mystery", nil), result: "mystery_result", tokens: 5, cost: 0.0001},
		{name: "embedder without key", node: n("t", "embedder", nil), errText: "Embedder Error: OPENAI_API_KEY missing in settings."},
		{name: "notion without key", node: n("t", "notion", nil), errText: "Notion Error: Notion Token missing in settings."},
		{name: "email without key", node: n("t", "email", nil), errText: "Email Error: SENDGRID_API_KEY missing in settings."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			events := collect(t, newService(t), chain(tt.node))
			last := events[len(events)-1]
			if tt.errText != "" {
				assert.Equal(t, core.EventError, last.Type)
				assert.Equal(t, tt.errText, last.Message)
				_, completed := find(events, core.EventNodeComplete, "t")
				assert.False(t, completed)
				return
			}
			ev, ok := find(events, core.EventNodeComplete, "t")
			require.True(t, ok)
			assert.Equal(t, tt.result, ev.Result)
			assert.Equal(t, tt.tokens, ev.Metrics.TokensIn+ev.Metrics.TokensOut)
			assert.InDelta(t, tt.cost, ev.Metrics.Cost, 1e-12)
			assert.Equal(t, core.EventRunComplete, last.Type)
		})
	}
}

func TestStream_SecretFromEnv(t *testing.T) {
	req := chain(n("e", "embedder", map[string]any{"dimensions": "256"}))
	req.Env = map[string]string{"OPENAI_API_KEY": "sk-test"}
	events := collect(t, newService(t), req)

	ev, ok := find(events, core.EventNodeComplete, "e")
	require.True(t, ok)
	assert.Equal(t, "[vector:256d from text-embedding-3-small]", ev.Result)
	assert.InDelta(t, 0.00002, ev.Metrics.Cost, 1e-12)
}

func TestStream_Cycle(t *testing.T) {
	req := chain(n("a", "text", nil), n("b", "text", nil))
	req.Edges = append(req.Edges, core.Edge{ID: "back", Source: "b", Target: "a"})
	events := collect(t, newService(t), req)

	require.Len(t, events, 1)
	assert.Equal(t, core.EventError, events[0].Type)
	assert.Equal(t, "Graph contains cycles", events[0].Message)
}

func TestStream_PauseAndResume(t *testing.T) {
	s := newService(t)
	req := chain(
		n("in", "customInput", map[string]any{"inputName": "q"}),
		n("review", "text", map[string]any{"text": "draft", DataRequireApproval: true}),
		n("out", "customOutput", nil),
	)

	events := collect(t, s, req)
	assert.Equal(t, []core.EventType{
		core.EventRunStart,
		core.EventNodeStart, core.EventNodeComplete,
		core.EventNodeStart, core.EventNodePaused,
	}, types(events))
	paused := events[len(events)-1]
	assert.Equal(t, "review", paused.NodeID)
	assert.Equal(t, PauseMessage, paused.Message)
	assert.True(t, s.Parked("sim-1"))

	resume := req
	resume.RunID = "sim-1"
	resume.ResumeNodeID = "review"
	resume.UserInput = "looks good"
	events = collect(t, s, resume)

	assert.Equal(t, []string{"out"}, events[0].Plan)
	out, ok := find(events, core.EventNodeComplete, "out")
	require.True(t, ok)
	assert.Equal(t, "looks good", out.Result, "operator input becomes the paused node's result")
	assert.Equal(t, core.EventRunComplete, events[len(events)-1].Type)
	assert.False(t, s.Parked("sim-1"))
}

func TestStream_PausedRunExpires(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	s := New(
		WithStepDelay(0),
		WithLogger(testutil.NewTestLogger(t)),
		WithRunIDs(func() string { return "sim-1" }),
		WithParkTTL(time.Minute),
		WithClock(func() time.Time { return now }),
	)
	req := chain(n("review", "text", map[string]any{DataRequireApproval: true}))

	events := collect(t, s, req)
	require.Equal(t, core.EventNodePaused, events[len(events)-1].Type)

	now = now.Add(30 * time.Second)
	assert.True(t, s.Parked("sim-1"))

	now = now.Add(time.Minute)
	assert.False(t, s.Parked("sim-1"), "an abandoned pause is forgotten after the TTL")

	resume := req
	resume.RunID = "sim-1"
	resume.ResumeNodeID = "review"
	resume.UserInput = "too late"
	events = collect(t, s, resume)
	require.Len(t, events, 1)
	assert.Equal(t, core.EventError, events[0].Type)
}

func TestStream_ResumeUnknownRun(t *testing.T) {
	req := chain(n("a", "text", nil))
	req.RunID = "gone"
	req.ResumeNodeID = "a"
	req.UserInput = "x"
	events := collect(t, newService(t), req)

	require.Len(t, events, 1)
	assert.Equal(t, core.EventError, events[0].Type)
	assert.Contains(t, events[0].Message, "gone")
}

func TestStream_EmitErrorAborts(t *testing.T) {
	boom := errors.New("client went away")
	calls := 0
	err := newService(t).Stream(context.Background(), chain(n("a", "text", nil), n("b", "text", nil)), func(core.Event) error {
		calls++
		if calls == 2 {
			return boom
		}
		return nil
	})
	require.ErrorIs(t, err, boom)
	assert.Equal(t, 2, calls)
}

func TestStream_ContextCancelled(t *testing.T) {
	s := New(WithStepDelay(time.Hour), WithLogger(testutil.NewTestLogger(t)))
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	err := s.Stream(ctx, chain(n("a", "text", nil)), func(core.Event) error { return nil })
	require.ErrorIs(t, err, context.Canceled)
}

func waitDone(t *testing.T, o *execution.Orchestrator) {
	t.Helper()
	select {
	case <-o.Done():
	case <-time.After(3 * time.Second):
		t.Fatal("run did not finish")
	}
}

func TestLocalRunner_WithOrchestrator(t *testing.T) {
	s := newService(t)
	o := execution.New(s, execution.WithLogger(testutil.NewTestLogger(t)))
	g := core.Graph{
		Nodes: []core.Node{
			n("in", "customInput", map[string]any{"inputName": "q"}),
			n("llm", "llm", map[string]any{"model": "gpt-4o", DataRequireApproval: true}),
			n("out", "customOutput", nil),
		},
		Edges: chain(n("in", "", nil), n("llm", "", nil), n("out", "", nil)).Edges,
	}
	ctx := context.Background()

	require.NoError(t, o.Start(ctx, g))
	waitDone(t, o)
	snap := o.Snapshot()
	require.Equal(t, core.RunPaused, snap.State)
	assert.Equal(t, "llm", snap.PausedNodeID)
	assert.True(t, s.Parked(snap.RunID), "runner and orchestrator agree on the run id")

	require.NoError(t, o.Resume(ctx, g, "approved text"))
	waitDone(t, o)
	snap = o.Snapshot()
	assert.Equal(t, core.RunComplete, snap.State)
	assert.Equal(t, "approved text", snap.Results["out"])
}

func TestLocalRunner_CancelStopsSimulation(t *testing.T) {
	s := New(WithStepDelay(50*time.Millisecond), WithLogger(testutil.NewTestLogger(t)))
	o := execution.New(s, execution.WithLogger(testutil.NewTestLogger(t)))
	g := core.Graph{Nodes: []core.Node{n("a", "delay", map[string]any{"delaySeconds": "5"})}}

	require.NoError(t, o.Start(context.Background(), g))
	require.Eventually(t, func() bool { return o.State() == core.RunNodeActive }, 2*time.Second, 5*time.Millisecond)
	assert.True(t, o.Cancel())
	waitDone(t, o)
	assert.Equal(t, core.RunCancelled, o.State())
}

func TestServeHTTP_WithHTTPRunner(t *testing.T) {
	srv := httptest.NewServer(newService(t))
	defer srv.Close()

	o := execution.New(execution.NewHTTPRunner(srv.URL, nil), execution.WithLogger(testutil.NewTestLogger(t)))
	g := core.Graph{Nodes: []core.Node{n("a", "text", map[string]any{"text": "hi"})}}
	require.NoError(t, o.Start(context.Background(), g))
	waitDone(t, o)

	snap := o.Snapshot()
	assert.Equal(t, core.RunComplete, snap.State)
	assert.Equal(t, "hi", snap.Results["a"])
}
