// Package http provides HTTP routing and middleware configuration
// for the Dockhand service.
package http

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/d0dg3r/dockhand/internal/middleware"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
)

// NewRouter constructs and returns an HTTP handler that serves the Dockhand
// secrets API. It applies JSON content-type enforcement and request logging
// and mounts the vault configuration and sync endpoints under /api.
//
// Routes:
//
//	GET    /api/vault/config               → vaultHandler.GetConfig
//	PUT    /api/vault/config               → vaultHandler.SaveConfig
//	DELETE /api/vault/config               → vaultHandler.DeleteConfig
//	POST   /api/vault/test                 → vaultHandler.TestConnection
//	POST   /api/secrets/sync               → syncHandler.SyncAll
//	POST   /api/stacks/{stack}/secrets/sync → syncHandler.SyncStack
func NewRouter(
	syncHandler *SyncHandler,
	vaultHandler *VaultConfigHandler,
	logger *zap.Logger,
) http.Handler {
	r := chi.NewRouter()

	// Only allow requests with Content-Type: application/json
	r.Use(chiMiddleware.AllowContentType("application/json"))

	// Log each request and its metadata
	r.Use(middleware.WithRequestLogging(logger))

	// Mount API routes
	r.Route("/api", func(r chi.Router) {
		r.Route("/vault", func(r chi.Router) {
			r.Get("/config", vaultHandler.GetConfig)
			r.Put("/config", vaultHandler.SaveConfig)
			r.Delete("/config", vaultHandler.DeleteConfig)
			r.Post("/test", vaultHandler.TestConnection)
		})

		r.Post("/secrets/sync", syncHandler.SyncAll)
		r.Post("/stacks/{stack}/secrets/sync", syncHandler.SyncStack)
	})

	return r
}
