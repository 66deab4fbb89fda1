// Package features provides shared test utilities for UI feature tests.
package features

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gorilla/sessions"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/vectorflow/internal/editor"
	"github.com/leapstack-labs/vectorflow/internal/registry"
	"github.com/leapstack-labs/vectorflow/internal/simulator"
	"github.com/leapstack-labs/vectorflow/internal/state"
	"github.com/leapstack-labs/vectorflow/internal/testutil"
	"github.com/leapstack-labs/vectorflow/internal/ui/notifier"
	"github.com/leapstack-labs/vectorflow/internal/ui/workspace"
)

// TestFixture holds all dependencies needed for UI handler tests.
type TestFixture struct {
	Registry     *registry.Registry
	Store        *state.SQLiteStore
	Runner       *simulator.Service
	Notifier     *notifier.Notifier
	SessionStore *sessions.CookieStore
	Hub          *workspace.Hub
}

// SetupTestFixture creates an in-memory store, a zero-delay simulator and
// a workspace hub whose sessions validate and autosave quickly.
func SetupTestFixture(t *testing.T) *TestFixture {
	t.Helper()

	logger := testutil.NewTestLogger(t)

	store := state.NewSQLiteStore()
	require.NoError(t, store.Open(":memory:"))
	require.NoError(t, store.Migrate())
	t.Cleanup(func() { _ = store.Close() })

	reg := registry.New()
	runner := simulator.New(simulator.WithStepDelay(0), simulator.WithLogger(logger))
	notify := notifier.New()

	hub := workspace.New(func(name string) (*editor.Session, error) {
		cfg := editor.DefaultConfig()
		cfg.DraftKey = workspace.DraftKey(editor.DefaultDraftKey, name)
		cfg.AutosaveDebounce = 10 * time.Millisecond
		cfg.ValidateDebounce = time.Millisecond
		return editor.New(cfg, editor.Deps{
			Registry: reg,
			Runner:   runner,
			Drafts:   store,
			Library:  store,
			Logger:   logger,
		})
	}, notify, logger)
	t.Cleanup(func() { _ = hub.Close() })

	return &TestFixture{
		Registry:     reg,
		Store:        store,
		Runner:       runner,
		Notifier:     notify,
		SessionStore: sessions.NewCookieStore([]byte("test-secret-test-secret-test-sec")),
		Hub:          hub,
	}
}

// Do sends a request with an optional JSON body through h.
func Do(t *testing.T, h http.Handler, method, path string, body any, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	t.Helper()

	var r io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		r = bytes.NewBufferString(b)
	case []byte:
		r = bytes.NewReader(b)
	default:
		data, err := sonic.Marshal(b)
		require.NoError(t, err)
		r = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, r)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

// DecodeBody unmarshals a recorded JSON response.
func DecodeBody(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.NoError(t, sonic.Unmarshal(rec.Body.Bytes(), v), "body: %s", rec.Body.String())
}
