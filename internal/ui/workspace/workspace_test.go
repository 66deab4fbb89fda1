package workspace

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/leapstack-labs/vectorflow/internal/editor"
	"github.com/leapstack-labs/vectorflow/internal/simulator"
	"github.com/leapstack-labs/vectorflow/internal/state"
	"github.com/leapstack-labs/vectorflow/internal/testutil"
	"github.com/leapstack-labs/vectorflow/internal/ui/notifier"
	"github.com/leapstack-labs/vectorflow/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newHub(t *testing.T) (*Hub, *notifier.Notifier, *state.SQLiteStore) {
	t.Helper()
	db := state.NewSQLiteStore()
	require.NoError(t, db.Open(":memory:"))
	require.NoError(t, db.Migrate())
	t.Cleanup(func() { _ = db.Close() })

	notify := notifier.New()
	logger := testutil.NewTestLogger(t)
	hub := New(func(name string) (*editor.Session, error) {
		cfg := editor.DefaultConfig()
		cfg.DraftKey = DraftKey(editor.DefaultDraftKey, name)
		cfg.AutosaveDebounce = time.Hour
		return editor.New(cfg, editor.Deps{
			Runner: simulator.New(simulator.WithStepDelay(0)),
			Drafts: db,
			Logger: logger,
		})
	}, notify, logger)
	t.Cleanup(func() { _ = hub.Close() })
	return hub, notify, db
}

func TestValidName(t *testing.T) {
	tests := []struct {
		name string
		want bool
	}{
		{"default", true},
		{"team_a-2", true},
		{"", false},
		{"has space", false},
		{"../etc", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ValidName(tt.name))
		})
	}
}

func TestDraftKey(t *testing.T) {
	assert.Equal(t, "vectorflow-pipeline", DraftKey("vectorflow-pipeline", Default))
	assert.Equal(t, "vectorflow-pipeline", DraftKey("vectorflow-pipeline", ""))
	assert.Equal(t, "vectorflow-pipeline:team", DraftKey("vectorflow-pipeline", "team"))
}

func TestHub_GetReusesSessions(t *testing.T) {
	hub, _, _ := newHub(t)
	ctx := context.Background()

	a, err := hub.Get(ctx, "")
	require.NoError(t, err)
	b, err := hub.Get(ctx, Default)
	require.NoError(t, err)
	assert.Same(t, a, b)

	other, err := hub.Get(ctx, "other")
	require.NoError(t, err)
	assert.NotSame(t, a, other)
	assert.Equal(t, []string{"default", "other"}, hub.Names())

	_, err = hub.Get(ctx, "bad name")
	assert.ErrorIs(t, err, ErrInvalidName)
}

func TestHub_RestoresDraft(t *testing.T) {
	hub, _, db := newHub(t)
	ctx := context.Background()
	g := testutil.QAPipeline()
	require.NoError(t, db.SaveDraft(ctx, "vectorflow-pipeline:team", &core.CanvasState{Name: "Team", Nodes: g.Nodes, Edges: g.Edges}))

	s, err := hub.Get(ctx, "team")
	require.NoError(t, err)
	assert.Equal(t, "Team", s.Store().Name())
	assert.Len(t, s.Store().Nodes(), 4)
}

func TestHub_PublishesChanges(t *testing.T) {
	hub, notify, _ := newHub(t)
	s, err := hub.Get(context.Background(), "live")
	require.NoError(t, err)

	ch := notify.Subscribe("live")
	defer notify.Unsubscribe(ch)

	_, err = s.AddNode("text", core.Position{})
	require.NoError(t, err)

	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Fatal("no update published")
	}
}

func TestHub_CloseFlushesDrafts(t *testing.T) {
	hub, _, db := newHub(t)
	ctx := context.Background()
	s, err := hub.Get(ctx, Default)
	require.NoError(t, err)
	_, err = s.AddNode("llm", core.Position{})
	require.NoError(t, err)

	require.NoError(t, hub.Close())
	draft, err := db.LoadDraft(ctx, "vectorflow-pipeline")
	require.NoError(t, err)
	require.NotNil(t, draft)
	assert.Len(t, draft.Nodes, 1)

	_, err = hub.Get(ctx, Default)
	assert.Error(t, err)
}

func TestHub_FactoryError(t *testing.T) {
	boom := errors.New("boom")
	hub := New(func(string) (*editor.Session, error) { return nil, boom }, nil, testutil.NewTestLogger(t))
	_, err := hub.Get(context.Background(), "x")
	require.ErrorIs(t, err, boom)
	assert.Empty(t, hub.Names())
}
