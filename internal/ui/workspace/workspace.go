// Package workspace keeps one editor session per named workspace.
//
// Browsers pick a workspace through their session cookie; every browser on
// the same workspace edits the same canvas and sees the same live updates.
package workspace

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"slices"
	"sync"

	"github.com/leapstack-labs/vectorflow/internal/editor"
	"github.com/leapstack-labs/vectorflow/internal/ui/notifier"
)

// Default is the workspace used when none is chosen.
const Default = "default"

// ErrInvalidName is returned for workspace names outside [A-Za-z0-9_-]{1,64}.
var ErrInvalidName = errors.New("invalid workspace name")

var validName = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// ValidName reports whether name can be used as a workspace name.
func ValidName(name string) bool {
	return validName.MatchString(name)
}

// DraftKey returns the draft key for a workspace. The default workspace
// uses base unchanged.
func DraftKey(base, name string) string {
	if name == "" || name == Default {
		return base
	}
	return base + ":" + name
}

// Factory creates the session for a workspace.
type Factory func(name string) (*editor.Session, error)

// Hub owns the sessions.
type Hub struct {
	newSession Factory
	notify     *notifier.Notifier
	logger     *slog.Logger

	mu       sync.Mutex
	sessions map[string]*editor.Session
	unsubs   map[string]func()
	closed   bool
}

// New creates a hub. Session changes are published to notify under the
// workspace name.
func New(factory Factory, notify *notifier.Notifier, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		newSession: factory,
		notify:     notify,
		logger:     logger,
		sessions:   make(map[string]*editor.Session),
		unsubs:     make(map[string]func()),
	}
}

// Get returns the session for name, creating it and restoring its draft
// on first use.
func (h *Hub) Get(ctx context.Context, name string) (*editor.Session, error) {
	if name == "" {
		name = Default
	}
	if !ValidName(name) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidName, name)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, errors.New("workspace hub closed")
	}
	if s, ok := h.sessions[name]; ok {
		return s, nil
	}

	s, err := h.newSession(name)
	if err != nil {
		return nil, fmt.Errorf("failed to create workspace %s: %w", name, err)
	}
	restored, err := s.Restore(ctx)
	if err != nil {
		h.logger.Warn("draft restore failed, starting empty", "workspace", name, "error", err)
	}
	h.logger.Debug("workspace opened", "workspace", name, "restored", restored)

	h.sessions[name] = s
	if h.notify != nil {
		h.unsubs[name] = s.Subscribe(func(editor.ChangeKind) { h.notify.Publish(name) })
	}
	return s, nil
}

// Names returns the open workspaces, sorted.
func (h *Hub) Names() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	names := make([]string, 0, len(h.sessions))
	for name := range h.sessions {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Each calls fn for every open session.
func (h *Hub) Each(fn func(name string, s *editor.Session)) {
	h.mu.Lock()
	sessions := make(map[string]*editor.Session, len(h.sessions))
	for k, v := range h.sessions {
		sessions[k] = v
	}
	h.mu.Unlock()
	for name, s := range sessions {
		fn(name, s)
	}
}

// Close closes every session, flushing pending drafts.
func (h *Hub) Close() error {
	h.mu.Lock()
	h.closed = true
	sessions := h.sessions
	unsubs := h.unsubs
	h.sessions = make(map[string]*editor.Session)
	h.unsubs = make(map[string]func())
	h.mu.Unlock()

	var errs []error
	for name, s := range sessions {
		if unsub, ok := unsubs[name]; ok {
			unsub()
		}
		if err := s.Close(); err != nil {
			errs = append(errs, fmt.Errorf("workspace %s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}
