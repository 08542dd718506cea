package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/veslund/canon/internal/pageservice"
	canonsync "github.com/veslund/canon/internal/sync"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
// canonRoot is used to resolve the attachments directory.
func NewRouter(svc *pageservice.Service, engine *canonsync.Engine, authEnabled bool, token string, sseHandler http.Handler, canonRoot string) chi.Router {
	h := NewHandler(svc, engine)
	ah := NewAttachmentHandler(canonRoot)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	// Sync operations.
	r.Post("/sync/ingest", h.Ingest)
	r.Post("/sync/generate", h.Generate)
	r.Post("/sync/full", h.Full)

	// Dry-run diagnostics.
	r.Get("/diagnostics/*", h.Diagnostics)

	// Entity catalog.
	r.Get("/entities", h.Entities)

	// Pages.
	r.Get("/pages", h.ListPages)
	r.Get("/pages/*", h.GetPage)
	r.Put("/pages/*", h.PutPage)
	r.Delete("/pages/*", h.DeletePage)

	// Attachments upload (auth-protected).
	r.Post("/attachments", ah.Upload)

	// SSE endpoint (protected by same auth middleware).
	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
