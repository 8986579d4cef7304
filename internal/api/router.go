package api

import (
	"net/http"

	"github.com/bcnelson/labgroups/internal/api/middleware"
	"github.com/bcnelson/labgroups/internal/auth"
	"github.com/bcnelson/labgroups/internal/i18n"
	"github.com/bcnelson/labgroups/internal/service"
	"github.com/bcnelson/labgroups/internal/web"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// NewRouter creates a new HTTP router with all routes configured. resolver
// identifies the acting user; oidc is nil unless users log in through OIDC.
func NewRouter(
	groups *service.GroupService,
	catalog *i18n.Catalog,
	resolver auth.Resolver,
	oidc *web.OIDC,
	log *zap.Logger,
) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.Logging(log))
	r.Use(chimw.Recoverer)

	// Health check (no auth required)
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	})

	// Mount web UI with the actor resolved for every page
	r.Group(func(r chi.Router) {
		r.Use(auth.ResolveActor(resolver, groups.ResolveUser, log))
		r.Mount("/", web.NewRouter(groups, catalog, log, oidc))
	})

	return r
}
