package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/raido/internal/service"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
func NewRouter(svc *service.Service, authEnabled bool, token string, sseHandler http.Handler) chi.Router {
	h := NewHandler(svc)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	// Checklists and steps.
	r.Get("/checklists", h.ListChecklists)
	r.Post("/checklists", h.CreateChecklist)
	r.Get("/checklists/{id}", h.GetChecklist)
	r.Patch("/checklists/{id}", h.UpdateChecklist)
	r.Delete("/checklists/{id}", h.DeleteChecklist)
	r.Post("/checklists/{id}/steps", h.CreateStep)
	r.Post("/checklists/{id}/markers", h.CreateMarker)
	r.Patch("/steps/{id}", h.UpdateStep)
	r.Delete("/steps/{id}", h.DeleteStep)

	// Step execution log.
	r.Post("/steps/{id}/start", h.StartStep)
	r.Post("/steps/{id}/finish", h.FinishStep)

	// Reconstructed runs.
	r.Get("/runs", h.ListRuns)
	r.Delete("/runs", h.DeleteRun)

	// Manual sync triggers.
	r.Post("/sync/pull", h.SyncPull)
	r.Post("/sync/push", h.SyncPush)
	r.Post("/sync/reset", h.SyncReset)
	r.Get("/sync/status", h.SyncStatus)

	// SSE endpoint (protected by same auth middleware).
	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
