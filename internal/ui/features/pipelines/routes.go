package pipelines

import (
	"github.com/go-chi/chi/v5"
)

// SetupRoutes registers the pipeline service routes.
func SetupRoutes(router chi.Router, handlers *Handlers) error {
	router.Route("/api/v1/pipelines", func(r chi.Router) {
		r.Post("/parse", handlers.Parse)
		r.Post("/validate", handlers.Validate)
		r.Get("/node-types", handlers.NodeTypes)
		r.Post("/auto-layout", handlers.AutoLayout)
		r.Post("/execute", handlers.Execute)

		r.Route("/saved", func(r chi.Router) {
			r.Get("/", handlers.ListSaved)
			r.Post("/", handlers.Save)
			r.Get("/{id}", handlers.GetSaved)
			r.Put("/{id}", handlers.Save)
			r.Delete("/{id}", handlers.DeleteSaved)
		})
	})
	return nil
}
