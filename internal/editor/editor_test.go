package editor

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/leapstack-labs/vectorflow/internal/execution"
	"github.com/leapstack-labs/vectorflow/internal/pipefile"
	"github.com/leapstack-labs/vectorflow/internal/simulator"
	"github.com/leapstack-labs/vectorflow/internal/state"
	"github.com/leapstack-labs/vectorflow/internal/testutil"
	"github.com/leapstack-labs/vectorflow/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingDrafts counts saves on top of a real SQLite store.
type recordingDrafts struct {
	core.DraftStore

	mu    sync.Mutex
	saves []core.CanvasState
}

func (r *recordingDrafts) SaveDraft(ctx context.Context, key string, st *core.CanvasState) error {
	r.mu.Lock()
	r.saves = append(r.saves, *st)
	r.mu.Unlock()
	return r.DraftStore.SaveDraft(ctx, key, st)
}

func (r *recordingDrafts) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.saves)
}

func (r *recordingDrafts) last() core.CanvasState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.saves[len(r.saves)-1]
}

type fixture struct {
	session *Session
	drafts  *recordingDrafts
	sqlite  *state.SQLiteStore
}

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()
	db := state.NewSQLiteStore()
	require.NoError(t, db.Open(":memory:"))
	require.NoError(t, db.Migrate())
	t.Cleanup(func() { _ = db.Close() })

	drafts := &recordingDrafts{DraftStore: db}
	s, err := New(cfg, Deps{
		Runner:  simulator.New(simulator.WithStepDelay(0)),
		Drafts:  drafts,
		Library: db,
		Logger:  testutil.NewTestLogger(t),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return &fixture{session: s, drafts: drafts, sqlite: db}
}

func fastConfig() Config {
	cfg := DefaultConfig()
	cfg.AutosaveDebounce = 20 * time.Millisecond
	cfg.ValidateDebounce = 5 * time.Millisecond
	return cfg
}

func TestNew_RequiresRunner(t *testing.T) {
	_, err := New(DefaultConfig(), Deps{})
	require.Error(t, err)
}

func TestAddNode_SeedsDefaults(t *testing.T) {
	s := newFixture(t, fastConfig()).session

	id, err := s.AddNode("customInput", core.Position{X: 10, Y: 20})
	require.NoError(t, err)
	assert.Equal(t, "customInput-1", id)

	id2, err := s.AddNode("customInput", core.Position{})
	require.NoError(t, err)
	assert.Equal(t, "customInput-2", id2)

	nodes := s.Store().Nodes()
	require.Len(t, nodes, 2)
	assert.Equal(t, core.Position{X: 10, Y: 20}, nodes[0].Position)
	assert.Equal(t, "input", nodes[0].Data["inputName"])
	assert.Equal(t, "Text", nodes[0].Data["inputType"])

	past, _ := s.History().Depth()
	assert.Equal(t, 2, past)
}

func TestAddNode_UnknownType(t *testing.T) {
	s := newFixture(t, fastConfig()).session
	_, err := s.AddNode("teleporter", core.Position{})
	require.ErrorIs(t, err, ErrUnknownType)
	assert.Empty(t, s.Store().Nodes())
}

func TestAddNode_SkipsTakenIDs(t *testing.T) {
	s := newFixture(t, fastConfig()).session
	require.NoError(t, s.Import(strings.NewReader(`{"name":"x","nodes":[{"id":"text-1","type":"text"}],"edges":[]}`)))

	id, err := s.AddNode("text", core.Position{})
	require.NoError(t, err)
	assert.Equal(t, "text-2", id)
}

func TestAutosave_Debounced(t *testing.T) {
	f := newFixture(t, fastConfig())
	s := f.session

	for range 5 {
		_, err := s.AddNode("text", core.Position{})
		require.NoError(t, err)
	}
	s.Store().Rename("Burst")

	require.Eventually(t, func() bool { return f.drafts.count() >= 1 }, 2*time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, f.drafts.count(), "a burst of edits is written once")

	last := f.drafts.last()
	assert.Equal(t, "Burst", last.Name)
	assert.Len(t, last.Nodes, 5)
	assert.Equal(t, 5, last.NodeIDs["text"])
	assert.False(t, s.Status().SavedAt.IsZero())
}

func TestAutosave_IgnoresEphemeralChanges(t *testing.T) {
	f := newFixture(t, fastConfig())
	s := f.session
	id, err := s.AddNode("text", core.Position{})
	require.NoError(t, err)
	require.Eventually(t, func() bool { return f.drafts.count() == 1 }, 2*time.Second, 5*time.Millisecond)

	s.Store().Select([]string{id}, nil, false)
	s.Store().SetActiveNode(id)
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, 1, f.drafts.count())
}

func TestClose_FlushesPendingDraft(t *testing.T) {
	cfg := fastConfig()
	cfg.AutosaveDebounce = time.Hour
	f := newFixture(t, cfg)

	_, err := f.session.AddNode("llm", core.Position{})
	require.NoError(t, err)
	assert.Equal(t, 0, f.drafts.count())

	require.NoError(t, f.session.Close())
	assert.Equal(t, 1, f.drafts.count())
}

func TestRestore(t *testing.T) {
	f := newFixture(t, fastConfig())
	ctx := context.Background()

	found, err := f.session.Restore(ctx)
	require.NoError(t, err)
	assert.False(t, found)

	g := testutil.QAPipeline()
	require.NoError(t, f.sqlite.SaveDraft(ctx, DefaultDraftKey, &core.CanvasState{
		Name:    "Saved",
		Nodes:   g.Nodes,
		Edges:   g.Edges,
		NodeIDs: map[string]int{"text": 7},
	}))

	found, err = f.session.Restore(ctx)
	require.NoError(t, err)
	require.True(t, found)

	s := f.session
	assert.Equal(t, "Saved", s.Store().Name())
	assert.Len(t, s.Store().Nodes(), 4)
	assert.False(t, s.History().CanUndo(), "restore starts with empty history")

	id, err := s.AddNode("text", core.Position{})
	require.NoError(t, err)
	assert.Equal(t, "text-8", id, "id counters are restored")
}

func TestValidation_Debounced(t *testing.T) {
	s := newFixture(t, fastConfig()).session
	assert.Nil(t, s.Verdict())

	_, err := s.AddNode("llm", core.Position{})
	require.NoError(t, err)

	require.Eventually(t, func() bool { return s.Verdict() != nil }, 2*time.Second, 5*time.Millisecond)
	v := s.Verdict()
	assert.Equal(t, 1, v.Analysis.NumNodes)
	assert.True(t, v.Validation.Valid)
}

func TestValidate_Now(t *testing.T) {
	s := newFixture(t, fastConfig()).session
	require.NoError(t, s.Import(strings.NewReader(`{"name":"bad","nodes":[{"id":"x-1","type":"mystery"}],"edges":[]}`)))

	v, err := s.Validate(context.Background())
	require.NoError(t, err)
	assert.False(t, v.Validation.Valid)
	assert.Same(t, v, s.Status().Verdict)
}

func TestImportExport(t *testing.T) {
	s := newFixture(t, fastConfig()).session
	_, err := s.AddNode("text", core.Position{})
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, pipefile.Write(&buf, pipefile.FromGraph("QA", testutil.QAPipeline())))
	require.NoError(t, s.Import(&buf))

	assert.Equal(t, "QA", s.Store().Name())
	assert.Len(t, s.Store().Nodes(), 4)
	past, _ := s.History().Depth()
	assert.Equal(t, 2, past, "import is a single history entry")

	require.True(t, s.Undo())
	assert.Len(t, s.Store().Nodes(), 1)
	require.True(t, s.Redo())

	var out bytes.Buffer
	require.NoError(t, s.Export(&out))
	f, err := pipefile.Parse(out.Bytes())
	require.NoError(t, err)
	assert.Equal(t, "QA", f.Name)
	assert.Len(t, f.Edges, 3)
	assert.Equal(t, "QA.json", s.ExportName())
}

func TestImport_Malformed(t *testing.T) {
	s := newFixture(t, fastConfig()).session
	_, err := s.AddNode("text", core.Position{})
	require.NoError(t, err)

	err = s.Import(strings.NewReader(`{"nodes": "nope"}`))
	require.ErrorIs(t, err, pipefile.ErrFormat)
	assert.Len(t, s.Store().Nodes(), 1)
	past, _ := s.History().Depth()
	assert.Equal(t, 1, past)
}

func TestImport_RejectsInconsistentGraph(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want string
	}{
		{
			name: "duplicate node ids",
			doc:  `{"nodes":[{"id":"a","type":"text"},{"id":"a","type":"llm"}],"edges":[]}`,
			want: `duplicate node id "a"`,
		},
		{
			name: "edge to a missing node",
			doc:  `{"nodes":[{"id":"a","type":"text"}],"edges":[{"source":"a","target":"ghost"}]}`,
			want: `unknown node "ghost"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newFixture(t, fastConfig()).session
			_, err := s.AddNode("text", core.Position{})
			require.NoError(t, err)
			before := s.Store().Snapshot()

			err = s.Import(strings.NewReader(tt.doc))
			require.ErrorIs(t, err, pipefile.ErrFormat)
			assert.Contains(t, err.Error(), tt.want)
			assert.Equal(t, before, s.Store().Snapshot())
			past, _ := s.History().Depth()
			assert.Equal(t, 1, past)
		})
	}
}

func TestAutoLayout(t *testing.T) {
	s := newFixture(t, fastConfig()).session
	var buf bytes.Buffer
	require.NoError(t, pipefile.Write(&buf, pipefile.FromGraph("L", testutil.QAPipeline())))
	require.NoError(t, s.Import(&buf))

	require.True(t, s.AutoLayout(core.DirectionLR))
	nodes := s.Store().Nodes()
	for i := 1; i < len(nodes); i++ {
		assert.Greater(t, nodes[i].Position.X, nodes[i-1].Position.X)
	}
	assert.False(t, s.AutoLayout(core.DirectionLR), "layout is idempotent")

	require.True(t, s.AutoLayout(core.DirectionTB))
	past, _ := s.History().Depth()
	assert.Equal(t, 3, past)
}

func TestRun_ThroughSimulator(t *testing.T) {
	s := newFixture(t, fastConfig()).session
	var buf bytes.Buffer
	require.NoError(t, pipefile.Write(&buf, pipefile.FromGraph("QA", testutil.QAPipeline())))
	require.NoError(t, s.Import(&buf))

	var runChanges int
	var mu sync.Mutex
	unsubscribe := s.Subscribe(func(k ChangeKind) {
		if k == ChangeRun {
			mu.Lock()
			runChanges++
			mu.Unlock()
		}
	})
	defer unsubscribe()

	require.NoError(t, s.Run(context.Background()))
	select {
	case <-s.RunDone():
	case <-time.After(3 * time.Second):
		t.Fatal("run did not finish")
	}

	snap := s.RunSnapshot()
	assert.Equal(t, core.RunComplete, snap.State)
	assert.Equal(t, []string{"customInput-1", "text-1", "llm-1", "customOutput-1"}, snap.Plan)
	assert.Empty(t, s.Store().View().Executing, "overlay is cleared after the run")
	mu.Lock()
	assert.Positive(t, runChanges)
	mu.Unlock()

	past, _ := s.History().Depth()
	assert.Equal(t, 1, past, "runs never touch history")
}

func TestRun_BlockedByValidation(t *testing.T) {
	s := newFixture(t, fastConfig()).session
	err := s.Run(context.Background())
	require.ErrorIs(t, err, execution.ErrNotRunnable)
	assert.Equal(t, core.RunIdle, s.RunSnapshot().State)
}

func TestLibrary(t *testing.T) {
	s := newFixture(t, fastConfig()).session
	ctx := context.Background()
	_, err := s.AddNode("text", core.Position{})
	require.NoError(t, err)
	s.Store().Rename("Lib")

	rec, err := s.SaveToLibrary(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, rec.ID, s.LibraryID())

	again, err := s.SaveToLibrary(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, rec.ID, again.ID, "subsequent saves update the same record")

	copyRec, err := s.SaveToLibrary(ctx, true)
	require.NoError(t, err)
	assert.NotEqual(t, rec.ID, copyRec.ID)

	list, err := s.ListLibrary(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 2)

	s.Store().Clear()
	opened, err := s.OpenFromLibrary(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, "Lib", opened.Name)
	assert.Len(t, s.Store().Nodes(), 1)
	assert.Equal(t, rec.ID, s.LibraryID())

	_, err = s.OpenFromLibrary(ctx, "missing")
	require.ErrorIs(t, err, state.ErrNotFound)

	ok, err := s.DeleteFromLibrary(ctx, rec.ID)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Empty(t, s.LibraryID())
}

func TestLibrary_NotConfigured(t *testing.T) {
	s, err := New(DefaultConfig(), Deps{Runner: simulator.New(), Logger: testutil.NewTestLogger(t)})
	require.NoError(t, err)
	defer s.Close()

	_, err = s.SaveToLibrary(context.Background(), false)
	assert.ErrorIs(t, err, ErrNoLibrary)
	_, err = s.ListLibrary(context.Background())
	assert.ErrorIs(t, err, ErrNoLibrary)

	found, err := s.Restore(context.Background())
	require.NoError(t, err)
	assert.False(t, found)
}

func TestChangeKindString(t *testing.T) {
	assert.Equal(t, "canvas", ChangeCanvas.String())
	assert.Equal(t, "saved", ChangeSaved.String())
	assert.Equal(t, "ChangeKind(9)", ChangeKind(9).String())
}
