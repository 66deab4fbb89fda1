// Package ui provides the VectorFlow HTTP server: the pipeline service
// API, the editor API and the browser editor page.
package ui

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/sessions"
	"github.com/leapstack-labs/vectorflow/internal/editor"
	"github.com/leapstack-labs/vectorflow/internal/layout"
	"github.com/leapstack-labs/vectorflow/internal/registry"
	"github.com/leapstack-labs/vectorflow/internal/ui/notifier"
	"github.com/leapstack-labs/vectorflow/internal/ui/router"
	"github.com/leapstack-labs/vectorflow/internal/ui/workspace"
	"github.com/leapstack-labs/vectorflow/pkg/core"
	"golang.org/x/sync/errgroup"
)

// Server is the main UI server.
type Server struct {
	registry     *registry.Registry
	library      core.PipelineStore
	executor     http.Handler
	layout       layout.Options
	hub          *workspace.Hub
	notifier     *notifier.Notifier
	sessionStore *sessions.CookieStore
	port         int
	registryFile string
	version      string
	dev          bool
	logger       *slog.Logger
}

// Config holds configuration for the UI server.
type Config struct {
	// Sessions builds the editing session for a workspace.
	Sessions workspace.Factory
	Registry *registry.Registry
	// Library backs the saved pipeline endpoints; nil disables them.
	Library core.PipelineStore
	// Executor serves /api/v1/pipelines/execute; nil disables it.
	Executor      http.Handler
	Layout        layout.Options
	Port          int
	SessionSecret string
	// RegistryFile is an optional node-type override file watched for changes.
	RegistryFile string
	Version      string
	Dev          bool
	Logger       *slog.Logger
}

// NewServer creates a new UI server instance.
func NewServer(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	sessionStore := sessions.NewCookieStore([]byte(cfg.SessionSecret))
	sessionStore.MaxAge(86400 * 30) // 30 days
	sessionStore.Options.Path = "/"
	sessionStore.Options.HttpOnly = true
	sessionStore.Options.SameSite = http.SameSiteLaxMode

	notify := notifier.New()
	return &Server{
		registry:     cfg.Registry,
		library:      cfg.Library,
		executor:     cfg.Executor,
		layout:       cfg.Layout,
		hub:          workspace.New(cfg.Sessions, notify, logger),
		notifier:     notify,
		sessionStore: sessionStore,
		port:         cfg.Port,
		registryFile: cfg.RegistryFile,
		version:      cfg.Version,
		dev:          cfg.Dev,
		logger:       logger,
	}
}

// Handler builds the router with every route mounted.
func (s *Server) Handler() (http.Handler, error) {
	r := chi.NewMux()
	r.Use(
		middleware.RequestID,
		middleware.Logger,
		middleware.Recoverer,
		middleware.Compress(5, "application/json", "text/html", "text/css", "application/javascript"),
	)

	err := router.SetupRoutes(r, router.Deps{
		Registry:     s.registry,
		Library:      s.library,
		Executor:     s.executor,
		Layout:       s.layout,
		Hub:          s.hub,
		SessionStore: s.sessionStore,
		Notifier:     s.notifier,
		Logger:       s.logger,
		Version:      s.version,
	}, s.dev)
	if err != nil {
		return nil, fmt.Errorf("failed to setup routes: %w", err)
	}
	return r, nil
}

// Serve starts the UI server and blocks until the context is cancelled.
// Open sessions are flushed and closed on the way out.
func (s *Server) Serve(ctx context.Context) error {
	addr := fmt.Sprintf(":%d", s.port)
	s.logger.Info("starting UI server", "addr", fmt.Sprintf("http://localhost:%d", s.port))

	handler, err := s.Handler()
	if err != nil {
		return err
	}

	eg, egctx := errgroup.WithContext(ctx)

	srv := &http.Server{
		Addr:    addr,
		Handler: handler,
		BaseContext: func(_ net.Listener) context.Context {
			return egctx
		},
		ReadHeaderTimeout: 10 * time.Second,
	}

	if s.registryFile != "" {
		eg.Go(func() error {
			if err := s.registry.Watch(egctx, s.registryFile, s.logger, s.onRegistryReload); err != nil {
				// Not fatal; the server keeps the catalog it started with.
				s.logger.Error("failed to watch registry file", "file", s.registryFile, "error", err)
			}
			return nil
		})
	}

	eg.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	// Graceful shutdown
	eg.Go(func() error {
		<-egctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		s.logger.Debug("shutting down UI server...")
		return srv.Shutdown(shutdownCtx)
	})

	err = eg.Wait()
	if closeErr := s.hub.Close(); closeErr != nil {
		s.logger.Warn("failed to flush sessions", "error", closeErr)
	}
	return err
}

// Hub returns the server's workspace sessions.
func (s *Server) Hub() *workspace.Hub {
	return s.hub
}

// Notifier returns the server's notifier for SSE updates.
func (s *Server) Notifier() *notifier.Notifier {
	return s.notifier
}

// onRegistryReload revalidates every open session against the new
// catalog and pushes fresh state to connected browsers.
func (s *Server) onRegistryReload() {
	s.hub.Each(func(_ string, sess *editor.Session) {
		sess.Revalidate()
	})
	s.notifier.Broadcast()
}
