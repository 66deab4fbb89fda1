// Package editor composes the pieces of a pipeline editing session: the
// canvas store and its history, the node-type registry, the validator, the
// run orchestrator and persistence.
//
// Edits are validated and autosaved on a debounce. The draft holds the
// persisted projection of the canvas (graph, name and id counters) under
// a fixed key; history is never persisted.
package editor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/leapstack-labs/vectorflow/internal/canvas"
	"github.com/leapstack-labs/vectorflow/internal/execution"
	"github.com/leapstack-labs/vectorflow/internal/history"
	"github.com/leapstack-labs/vectorflow/internal/layout"
	"github.com/leapstack-labs/vectorflow/internal/registry"
	"github.com/leapstack-labs/vectorflow/internal/validate"
	"github.com/leapstack-labs/vectorflow/pkg/core"
)

// DefaultDraftKey is the key the draft is stored under.
const DefaultDraftKey = "vectorflow-pipeline"

var (
	// ErrUnknownType is returned when adding a node of an unregistered type.
	ErrUnknownType = errors.New("unknown node type")
	// ErrNoLibrary is returned by library operations when no pipeline
	// store is configured.
	ErrNoLibrary = errors.New("no pipeline library configured")
)

// Config holds session settings.
type Config struct {
	DraftKey         string
	HistoryLimit     int
	AutosaveDebounce time.Duration
	ValidateDebounce time.Duration
	Layout           layout.Options
}

// DefaultConfig returns the standard session settings.
func DefaultConfig() Config {
	return Config{
		DraftKey:         DefaultDraftKey,
		HistoryLimit:     history.DefaultLimit,
		AutosaveDebounce: time.Second,
		ValidateDebounce: 500 * time.Millisecond,
		Layout:           layout.DefaultOptions(core.DirectionLR),
	}
}

// Deps are the collaborators of a session. Runner is required; a nil
// Registry uses the builtins and a nil Checker validates locally against
// the registry. Without Drafts nothing is autosaved; without Library the
// library operations return ErrNoLibrary.
type Deps struct {
	Registry *registry.Registry
	Checker  validate.Checker
	Runner   execution.Runner
	Drafts   core.DraftStore
	Library  core.PipelineStore
	Secrets  func() map[string]string
	Logger   *slog.Logger
}

// ChangeKind tells subscribers which part of the session changed.
type ChangeKind int

const (
	ChangeCanvas ChangeKind = iota
	ChangeVerdict
	ChangeRun
	ChangeSaved
)

func (k ChangeKind) String() string {
	switch k {
	case ChangeCanvas:
		return "canvas"
	case ChangeVerdict:
		return "verdict"
	case ChangeRun:
		return "run"
	case ChangeSaved:
		return "saved"
	default:
		return fmt.Sprintf("ChangeKind(%d)", int(k))
	}
}

// Session is one editing session over one canvas.
type Session struct {
	cfg      Config
	logger   *slog.Logger
	registry *registry.Registry
	checker  validate.Checker
	drafts   core.DraftStore
	library  core.PipelineStore

	store   *canvas.Store
	history *history.History
	run     *execution.Orchestrator

	ctx    context.Context
	cancel context.CancelFunc

	autosave   *debouncer
	validation *debouncer

	mu          sync.RWMutex
	verdict     *core.Verdict
	validateErr error
	saveErr     error
	savedAt     time.Time
	libraryID   string

	subsMu  sync.RWMutex
	subs    map[int]func(ChangeKind)
	nextSub int
}

// New creates a session with an empty canvas. Call Restore to load the
// saved draft.
func New(cfg Config, deps Deps) (*Session, error) {
	if deps.Runner == nil {
		return nil, fmt.Errorf("editor: runner is required")
	}
	def := DefaultConfig()
	if cfg.DraftKey == "" {
		cfg.DraftKey = def.DraftKey
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = def.HistoryLimit
	}
	if cfg.AutosaveDebounce < 0 {
		cfg.AutosaveDebounce = 0
	}
	if cfg.ValidateDebounce < 0 {
		cfg.ValidateDebounce = 0
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Registry == nil {
		deps.Registry = registry.New()
	}
	if deps.Checker == nil {
		deps.Checker = validate.NewLocal(deps.Registry)
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		cfg:      cfg,
		logger:   deps.Logger,
		registry: deps.Registry,
		checker:  deps.Checker,
		drafts:   deps.Drafts,
		library:  deps.Library,
		store:    canvas.New(),
		ctx:      ctx,
		cancel:   cancel,
		subs:     make(map[int]func(ChangeKind)),
	}
	s.history = history.New(s.store, cfg.HistoryLimit)
	s.run = execution.New(deps.Runner,
		execution.WithGate(deps.Checker),
		execution.WithHighlighter(s.store),
		execution.WithLogger(deps.Logger),
		execution.WithSecrets(deps.Secrets),
		execution.WithNotify(func() { s.publish(ChangeRun) }),
	)
	s.autosave = newDebouncer(cfg.AutosaveDebounce, s.saveDraft)
	s.validation = newDebouncer(cfg.ValidateDebounce, s.revalidate)

	s.store.Subscribe(s.onStoreChange)
	return s, nil
}

// onStoreChange runs inside store mutations and must not block.
func (s *Session) onStoreChange(kind canvas.ChangeKind) {
	if kind.Persisted() && s.drafts != nil {
		s.autosave.Trigger()
	}
	if kind == canvas.ChangeGraph || kind == canvas.ChangeRestore {
		s.validation.Trigger()
	}
	s.publish(ChangeCanvas)
}

// Subscribe registers fn for change notifications and returns a function
// that removes it. fn runs synchronously and must not block.
func (s *Session) Subscribe(fn func(ChangeKind)) (unsubscribe func()) {
	s.subsMu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.subsMu.Unlock()
	return func() {
		s.subsMu.Lock()
		delete(s.subs, id)
		s.subsMu.Unlock()
	}
}

func (s *Session) publish(kind ChangeKind) {
	s.subsMu.RLock()
	fns := make([]func(ChangeKind), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.subsMu.RUnlock()
	for _, fn := range fns {
		fn(kind)
	}
}

// Store returns the canvas store. Mutations through it are tracked by
// history, validated and autosaved like any other edit.
func (s *Session) Store() *canvas.Store { return s.store }

// History returns the undo/redo engine.
func (s *Session) History() *history.History { return s.history }

// Registry returns the node-type registry.
func (s *Session) Registry() *registry.Registry { return s.registry }

// Undo reverts the last committed edit.
func (s *Session) Undo() bool { return s.history.Undo() }

// Redo reapplies the last undone edit.
func (s *Session) Redo() bool { return s.history.Redo() }

// Close cancels any run, writes a pending draft and stops background work.
// It returns the last autosave error, if any.
func (s *Session) Close() error {
	s.run.Cancel()
	s.validation.Stop()
	s.autosave.Flush()
	s.cancel()

	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.saveErr
}

// --- Validation ---

func (s *Session) revalidate() {
	ctx, cancel := context.WithTimeout(s.ctx, 30*time.Second)
	defer cancel()
	if _, err := s.Validate(ctx); err != nil && !errors.Is(err, context.Canceled) {
		s.logger.Warn("validation failed", "error", err)
	}
}

// Validate checks the current graph now and records the verdict.
func (s *Session) Validate(ctx context.Context) (*core.Verdict, error) {
	v, err := s.checker.Check(ctx, s.store.Snapshot(), s.store.Name())

	s.mu.Lock()
	s.validateErr = err
	if err == nil {
		s.verdict = v
	}
	s.mu.Unlock()
	s.publish(ChangeVerdict)
	return v, err
}

// Verdict returns the most recent verdict, nil before the first check.
func (s *Session) Verdict() *core.Verdict {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.verdict
}

// Revalidate schedules a fresh check, dropping any cached verdict. Used
// when the type catalog changes underneath an unchanged graph.
func (s *Session) Revalidate() {
	if inv, ok := s.checker.(interface{ Invalidate() }); ok {
		inv.Invalidate()
	}
	s.validation.Trigger()
}

// --- Drafts ---

func (s *Session) saveDraft() {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(s.ctx), 10*time.Second)
	defer cancel()
	if err := s.SaveDraft(ctx); err != nil {
		s.logger.Error("autosave failed", "key", s.cfg.DraftKey, "error", err)
	}
}

// SaveDraft writes the persisted projection now.
func (s *Session) SaveDraft(ctx context.Context) error {
	if s.drafts == nil {
		return nil
	}
	state := s.store.State()
	err := s.drafts.SaveDraft(ctx, s.cfg.DraftKey, &state)

	s.mu.Lock()
	s.saveErr = err
	if err == nil {
		s.savedAt = time.Now()
	}
	s.mu.Unlock()
	s.publish(ChangeSaved)
	if err != nil {
		return fmt.Errorf("failed to save draft: %w", err)
	}
	return nil
}

// Restore loads the saved draft, if any, with empty history. It reports
// whether a draft was found.
func (s *Session) Restore(ctx context.Context) (bool, error) {
	if s.drafts == nil {
		return false, nil
	}
	state, err := s.drafts.LoadDraft(ctx, s.cfg.DraftKey)
	if err != nil {
		return false, fmt.Errorf("failed to load draft: %w", err)
	}
	if state == nil {
		return false, nil
	}
	s.store.Load(*state)
	s.history.Reset()
	s.autosave.Stop()
	s.logger.Debug("draft restored", "key", s.cfg.DraftKey, "nodes", len(state.Nodes), "edges", len(state.Edges))
	return true, nil
}

// --- Runs ---

// Run starts a run of the current graph.
func (s *Session) Run(ctx context.Context) error {
	return s.run.Start(ctx, s.store.Snapshot())
}

// Resume continues a paused run with the operator's input.
func (s *Session) Resume(ctx context.Context, input string) error {
	return s.run.Resume(ctx, s.store.Snapshot(), input)
}

// Cancel stops the current run. It reports whether a run was active.
func (s *Session) Cancel() bool {
	return s.run.Cancel()
}

// RunSnapshot returns the current run state.
func (s *Session) RunSnapshot() execution.Snapshot {
	return s.run.Snapshot()
}

// RunDone is closed when the current stream of the run ends.
func (s *Session) RunDone() <-chan struct{} {
	return s.run.Done()
}

// --- Status ---

// Status is the session summary shown next to the canvas.
type Status struct {
	Name            string             `json:"name"`
	CanUndo         bool               `json:"canUndo"`
	CanRedo         bool               `json:"canRedo"`
	Verdict         *core.Verdict      `json:"verdict,omitempty"`
	ValidationError string             `json:"validationError,omitempty"`
	SaveError       string             `json:"saveError,omitempty"`
	SavedAt         time.Time          `json:"savedAt,omitzero"`
	LibraryID       string             `json:"libraryId,omitempty"`
	Run             execution.Snapshot `json:"run"`
}

// Status returns the current session summary.
func (s *Session) Status() Status {
	st := Status{
		Name:    s.store.Name(),
		CanUndo: s.history.CanUndo(),
		CanRedo: s.history.CanRedo(),
		Run:     s.run.Snapshot(),
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	st.Verdict = s.verdict
	st.LibraryID = s.libraryID
	st.SavedAt = s.savedAt
	if s.validateErr != nil {
		st.ValidationError = s.validateErr.Error()
	}
	if s.saveErr != nil {
		st.SaveError = s.saveErr.Error()
	}
	return st
}
