package web

import (
	"bytes"
	"errors"
	"net/http"

	"github.com/bcnelson/labgroups/internal/auth"
	"github.com/bcnelson/labgroups/internal/domain"
	"github.com/bcnelson/labgroups/internal/i18n"
	"go.uber.org/zap"
)

// localizer returns the translator negotiated from the request.
func (s *Server) localizer(r *http.Request) *i18n.Localizer {
	return s.catalog.Localizer(r.Header.Get("Accept-Language"))
}

// newPage builds the common page data and consumes any pending flash message.
func (s *Server) newPage(w http.ResponseWriter, r *http.Request, titleID, active string) PageData {
	loc := s.localizer(r)
	return PageData{
		Title:        loc.T(titleID, nil),
		Active:       active,
		Flash:        popFlash(w, r),
		Actor:        auth.ActorFrom(r.Context()),
		LoginEnabled: s.oidc != nil,
		loc:          loc,
	}
}

// render executes a page template into a buffer and writes it with status.
func (s *Server) render(w http.ResponseWriter, status int, page string, data PageData) {
	tmpl, ok := s.templates[page]
	if !ok {
		http.Error(w, "Template not found: "+page, http.StatusInternalServerError)
		return
	}

	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, "base", data); err != nil {
		s.log.Error("template error", zap.String("page", page), zap.Error(err))
		http.Error(w, "Template error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	w.Write(buf.Bytes())
}

// renderError renders the error page with a translated message.
func (s *Server) renderError(w http.ResponseWriter, r *http.Request, status int, messageID string) {
	data := s.newPage(w, r, messageID, "")
	data.Content = data.Title
	s.render(w, status, "error", data)
}

// errorStatus maps a service error to an HTTP status and message ID.
// Unexpected errors are logged.
func (s *Server) errorStatus(r *http.Request, err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrGroupNotFound):
		return http.StatusNotFound, i18n.MsgGroupNotFound
	case errors.Is(err, domain.ErrUserNotFound):
		return http.StatusNotFound, i18n.MsgUnknownUser
	case errors.Is(err, domain.ErrSystemNotFound):
		return http.StatusNotFound, i18n.MsgUnknownSystem
	case errors.Is(err, domain.ErrMemberNotFound):
		return http.StatusNotFound, i18n.MsgMemberNotFound
	case errors.Is(err, domain.ErrAlreadyMember):
		return http.StatusConflict, i18n.MsgAlreadyMember
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, i18n.MsgNotFound
	case errors.Is(err, domain.ErrAlreadyExists):
		return http.StatusConflict, i18n.MsgGroupNameTaken
	case errors.Is(err, domain.ErrInvalidInput):
		return http.StatusBadRequest, i18n.MsgBadRequest
	case errors.Is(err, domain.ErrUnauthorized):
		return http.StatusUnauthorized, i18n.MsgUnauthorized
	default:
		s.log.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		return http.StatusInternalServerError, i18n.MsgInternalError
	}
}

// handleError renders the error page for err.
func (s *Server) handleError(w http.ResponseWriter, r *http.Request, err error) {
	status, msg := s.errorStatus(r, err)
	s.renderError(w, r, status, msg)
}

// handleJSONError writes a JSON error body for err.
func (s *Server) handleJSONError(w http.ResponseWriter, r *http.Request, err error) {
	status, msg := s.errorStatus(r, err)
	respondError(w, status, s.localizer(r).T(msg, nil))
}
