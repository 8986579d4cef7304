package web

import (
	"embed"
	"html/template"
	"io/fs"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/bcnelson/labgroups/internal/auth"
	"github.com/bcnelson/labgroups/internal/domain"
	"github.com/bcnelson/labgroups/internal/i18n"
	"github.com/bcnelson/labgroups/internal/service"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

//go:embed templates/* static/*
var content embed.FS

// OIDC holds the login components used when users sign in through an OIDC
// provider. A nil *OIDC means identity comes from a trusted proxy header.
type OIDC struct {
	Provider *auth.OIDCProvider
	Sessions *auth.SessionManager
	States   *auth.StateStore
}

// Server holds dependencies for web handlers.
type Server struct {
	groups    *service.GroupService
	catalog   *i18n.Catalog
	log       *zap.Logger
	oidc      *OIDC
	templates map[string]*template.Template
	funcMap   template.FuncMap
}

// NewRouter creates the group management router. Mount it at the site root.
func NewRouter(groups *service.GroupService, catalog *i18n.Catalog, log *zap.Logger, oidc *OIDC) http.Handler {
	s := &Server{
		groups:  groups,
		catalog: catalog,
		log:     log,
		oidc:    oidc,
	}

	// Parse all templates
	s.templates = s.parseTemplates()

	r := chi.NewRouter()

	// Static files
	staticFS, _ := fs.Sub(content, "static")
	r.Handle("/static/*", http.StripPrefix("/static/", http.FileServer(http.FS(staticFS))))

	if oidc != nil {
		r.Get("/login", s.handleOIDCLogin)
		r.Get("/auth/callback", s.handleOIDCCallback)
		r.Get("/logout", s.handleLogout)
	}

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/groups/", http.StatusFound)
	})

	// Autocomplete sources for the member forms
	r.Get("/users/by_name", s.handleUsersByName)
	r.Get("/by_fqdn", s.handleSystemsByFQDN)

	r.Route("/groups", func(r chi.Router) {
		r.Get("/", s.handleIndex)
		r.Get("/by_name", s.handleByName)
		r.Post("/by_name", s.handleByName)
		r.Get("/new", s.handleNew)
		r.Get("/edit", s.handleEdit)
		r.Get("/get_group_users", s.handleGroupUsers)
		r.Get("/get_group_systems", s.handleGroupSystems)

		// Mutations need a known actor
		r.Group(func(r chi.Router) {
			r.Use(s.requireActor)

			r.Post("/save", s.handleSave)
			r.Post("/save_user", s.handleSaveUser)
			r.Post("/save_system", s.handleSaveSystem)
			r.Get("/removeUser", s.handleRemoveUser)
			r.Post("/removeUser", s.handleRemoveUser)
			r.Get("/removeSystem", s.handleRemoveSystem)
			r.Post("/removeSystem", s.handleRemoveSystem)
			r.Post("/remove", s.handleRemove)
		})
	})

	return r
}

// parseTemplates parses all templates with custom functions.
func (s *Server) parseTemplates() map[string]*template.Template {
	s.funcMap = template.FuncMap{
		"dict":  dict,
		"lower": strings.ToLower,
	}

	templates := make(map[string]*template.Template)

	// Read base template and components
	baseContent, _ := content.ReadFile("templates/base.html")
	flashContent, _ := content.ReadFile("templates/components/flash.html")
	gridContent, _ := content.ReadFile("templates/components/grid.html")
	formContent, _ := content.ReadFile("templates/components/form.html")

	// Combine base with components
	baseWithComponents := string(baseContent) + string(flashContent) + string(gridContent) + string(formContent)

	// Parse each page template separately with the base
	pageFiles, _ := fs.Glob(content, "templates/pages/*.html")
	for _, pagePath := range pageFiles {
		pageName := filepath.Base(pagePath)
		pageName = strings.TrimSuffix(pageName, ".html")

		pageContent, _ := content.ReadFile(pagePath)

		// Create new template for this page
		tmpl := template.New(pageName).Funcs(s.funcMap)
		tmpl, err := tmpl.Parse(baseWithComponents + string(pageContent))
		if err != nil {
			panic("failed to parse template " + pageName + ": " + err.Error())
		}

		templates[pageName] = tmpl
	}

	return templates
}

// dict creates a map from key-value pairs for use in templates.
func dict(values ...any) map[string]any {
	if len(values)%2 != 0 {
		return nil
	}
	m := make(map[string]any, len(values)/2)
	for i := 0; i < len(values); i += 2 {
		key, ok := values[i].(string)
		if !ok {
			continue
		}
		m[key] = values[i+1]
	}
	return m
}

// PageData holds common data passed to all page templates.
type PageData struct {
	Title        string
	Active       string // Current nav item
	Flash        *FlashMessage
	Actor        *domain.User
	LoginEnabled bool
	Content      any

	loc *i18n.Localizer
}

// Tr translates a message ID for the page's language.
func (p PageData) Tr(messageID string) string {
	if p.loc == nil {
		return messageID
	}
	return p.loc.T(messageID, nil)
}

// TrData translates a message ID with template fields given as key-value
// pairs.
func (p PageData) TrData(messageID string, kv ...any) string {
	if p.loc == nil {
		return messageID
	}
	return p.loc.T(messageID, dict(kv...))
}

// FlashMessage represents a flash message.
type FlashMessage struct {
	Type    string `json:"type"` // "success", "error", "info"
	Message string `json:"message"`
}
