package editor

import (
	"github.com/go-chi/chi/v5"
)

// SetupRoutes registers the editing session routes.
func SetupRoutes(router chi.Router, handlers *Handlers) error {
	s := handlers.withSession

	router.Route("/api/v1/editor", func(r chi.Router) {
		r.Get("/", handlers.GetState)
		r.Get("/updates", handlers.Updates)

		r.Post("/nodes", s(handlers.AddNode))
		r.Put("/nodes/positions", s(handlers.MoveNodes))
		r.Patch("/nodes/{id}/data", s(handlers.UpdateNodeData))
		r.Put("/nodes/{id}/size", s(handlers.SetNodeSize))
		r.Post("/nodes/{id}/handles", s(handlers.AddHandle))
		r.Delete("/nodes/{id}/handles/{side}/{name}", s(handlers.RemoveHandle))
		r.Post("/edges", s(handlers.Connect))

		r.Post("/selection", s(handlers.Select))
		r.Post("/selection/all", s(handlers.SelectAll))
		r.Delete("/selection", s(handlers.ClearSelection))
		r.Post("/selection/delete", s(handlers.DeleteSelected))
		r.Put("/active", s(handlers.SetActive))

		r.Post("/undo", s(handlers.Undo))
		r.Post("/redo", s(handlers.Redo))
		r.Post("/clear", s(handlers.Clear))
		r.Put("/name", s(handlers.Rename))
		r.Post("/layout", s(handlers.Layout))

		r.Post("/import", s(handlers.Import))
		r.Get("/export", s(handlers.Export))
		r.Post("/validate", s(handlers.Validate))

		r.Get("/run", s(handlers.GetRun))
		r.Post("/run", s(handlers.Run))
		r.Post("/run/resume", s(handlers.Resume))
		r.Post("/run/cancel", s(handlers.Cancel))

		r.Post("/library", s(handlers.SaveToLibrary))
		r.Post("/library/{id}/open", s(handlers.OpenFromLibrary))
	})
	return nil
}
