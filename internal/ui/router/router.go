// Package router sets up HTTP routes for the UI server.
package router

import (
	"log/slog"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/sessions"
	"github.com/leapstack-labs/vectorflow/internal/layout"
	"github.com/leapstack-labs/vectorflow/internal/registry"
	"github.com/leapstack-labs/vectorflow/internal/ui/features/common"
	editorFeature "github.com/leapstack-labs/vectorflow/internal/ui/features/editor"
	pipelinesFeature "github.com/leapstack-labs/vectorflow/internal/ui/features/pipelines"
	"github.com/leapstack-labs/vectorflow/internal/ui/notifier"
	"github.com/leapstack-labs/vectorflow/internal/ui/resources"
	"github.com/leapstack-labs/vectorflow/internal/ui/workspace"
	"github.com/leapstack-labs/vectorflow/pkg/core"
	"github.com/starfederation/datastar-go/datastar"
)

// Deps are the services the routes are built from. Library and Executor
// may be nil; their endpoints then answer 503.
type Deps struct {
	Registry     *registry.Registry
	Library      core.PipelineStore
	Executor     http.Handler
	Layout       layout.Options
	Hub          *workspace.Hub
	SessionStore sessions.Store
	Notifier     *notifier.Notifier
	Logger       *slog.Logger
	Version      string
}

// SetupRoutes configures all routes for the UI server.
func SetupRoutes(router chi.Router, deps Deps, isDev bool) error {
	// Hot reload endpoint for dev mode
	if isDev {
		setupReload(router)
	}

	router.Handle("/static/*", resources.Handler())
	router.Get("/", resources.Index)
	router.Get("/ping", ping(deps.Version))
	router.Get("/health", health(deps))

	pipelines := pipelinesFeature.NewHandlers(deps.Registry, deps.Library, deps.Executor, deps.Layout, deps.Logger)
	if err := pipelinesFeature.SetupRoutes(router, pipelines); err != nil {
		return err
	}

	editor := editorFeature.NewHandlers(deps.Hub, deps.SessionStore, deps.Notifier, deps.Logger)
	if err := editorFeature.SetupRoutes(router, editor); err != nil {
		return err
	}

	return nil
}

// HealthResponse reports the state of each service behind the API.
type HealthResponse struct {
	Status    string            `json:"status"`
	Version   string            `json:"version"`
	NodeTypes int               `json:"node_types"`
	Services  map[string]string `json:"services"`
}

func ping(version string) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		common.WriteJSON(w, http.StatusOK, map[string]string{"Ping": "Pong", "status": "ok", "version": version})
	}
}

func health(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		services := map[string]string{
			"graph_analysis": "ok",
			"validation":     "ok",
			"node_registry":  "ok",
			"auto_layout":    "ok",
		}
		services["execution"] = availability(deps.Executor != nil)
		services["pipeline_persistence"] = availability(deps.Library != nil)

		common.WriteJSON(w, http.StatusOK, HealthResponse{
			Status:    "healthy",
			Version:   deps.Version,
			NodeTypes: deps.Registry.Count(),
			Services:  services,
		})
	}
}

func availability(ok bool) string {
	if ok {
		return "ok"
	}
	return "unavailable"
}

func setupReload(router chi.Router) {
	reloadChan := make(chan struct{}, 1)
	var hotReloadOnce sync.Once

	router.Get("/reload", func(w http.ResponseWriter, r *http.Request) {
		sse := datastar.NewSSE(w, r)
		reload := func() { _ = sse.ExecuteScript("window.location.reload()") }
		hotReloadOnce.Do(reload)
		select {
		case <-reloadChan:
			reload()
		case <-r.Context().Done():
		}
	})

	router.Get("/hotreload", func(w http.ResponseWriter, _ *http.Request) {
		select {
		case reloadChan <- struct{}{}:
		default:
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
}
