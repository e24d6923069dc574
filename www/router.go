// Package www is the HTTP surface: sync control, mirrored data reads, and
// the shop registry, all JSON.
package www

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/sessions"

	"shopsync/config"
	"shopsync/shopify"
	"shopsync/store"
	"shopsync/syncer"
)

type Handlers struct {
	db       *store.DB
	orch     *syncer.Orchestrator
	svc      *syncer.Service
	clients  *shopify.Factory
	sessions *sessions.CookieStore
}

func NewRouter(cfg *config.WebConfig, db *store.DB, orch *syncer.Orchestrator, svc *syncer.Service, clients *shopify.Factory) http.Handler {
	h := &Handlers{
		db:       db,
		orch:     orch,
		svc:      svc,
		clients:  clients,
		sessions: newSessionStore(cfg.SessionSecret),
	}
	h.ensureDefaultAdmin()

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", h.apiHealth)
		r.Post("/login", h.handleLogin)
		r.Post("/logout", h.handleLogout)

		// Sync control
		r.Post("/sync/{resource}/start", h.apiStartSync)
		r.Post("/sync/{resource}/cancel", h.apiCancelSync)
		r.Get("/sync/{resource}", h.apiSyncProgress)
		r.Get("/sync", h.apiListSyncRuns)

		// Mirrored data
		r.Get("/{resource}", h.apiListRecords)
		r.Get("/{resource}/count", h.apiCountRecords)
		r.Get("/{resource}/diff", h.apiDiffRecords)
		r.Get("/{resource}/{id:[0-9]+}", h.apiGetRecord)

		// Mutations need a session
		r.Group(func(r chi.Router) {
			r.Use(h.requireAuth)
			r.Delete("/{resource}/{id:[0-9]+}", h.apiDeleteRecord)

			r.Get("/shops", h.apiListShops)
			r.Post("/shops", h.apiUpsertShop)
			r.Delete("/shops/{name}", h.apiDeleteShop)
		})
	})

	return r
}

func (h *Handlers) apiHealth(w http.ResponseWriter, r *http.Request) {
	if err := h.db.Ping(); err != nil {
		h.jsonError(w, "database unavailable", http.StatusServiceUnavailable)
		return
	}
	h.jsonOK(w, map[string]string{"status": "ok"})
}
