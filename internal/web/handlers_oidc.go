package web

import (
	"net/http"

	"github.com/bcnelson/labgroups/internal/auth"
	"github.com/bcnelson/labgroups/internal/i18n"
	"go.uber.org/zap"
)

// handleOIDCLogin initiates the OIDC login flow.
func (s *Server) handleOIDCLogin(w http.ResponseWriter, r *http.Request) {
	returnTo := r.URL.Query().Get("return_to")
	if !localPath(returnTo) {
		returnTo = "/groups/"
	}

	// Generate state and nonce
	stateData, err := s.oidc.States.Generate(w, returnTo)
	if err != nil {
		s.log.Error("generate OIDC state", zap.Error(err))
		s.renderError(w, r, http.StatusInternalServerError, i18n.MsgInternalError)
		return
	}

	// Redirect to OIDC provider
	authURL := s.oidc.Provider.AuthCodeURL(stateData.State, stateData.Nonce)
	http.Redirect(w, r, authURL, http.StatusSeeOther)
}

// handleOIDCCallback handles the OIDC callback after authentication.
func (s *Server) handleOIDCCallback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()

	// Check for error from provider
	if errParam := q.Get("error"); errParam != "" {
		s.log.Warn("OIDC provider returned error",
			zap.String("error", errParam),
			zap.String("description", q.Get("error_description")),
		)
		s.renderError(w, r, http.StatusUnauthorized, i18n.MsgUnauthorized)
		return
	}

	code := q.Get("code")
	if code == "" {
		s.renderError(w, r, http.StatusBadRequest, i18n.MsgBadRequest)
		return
	}

	stateData, err := s.oidc.States.Validate(r, q.Get("state"))
	if err != nil {
		s.log.Warn("OIDC state validation failed", zap.Error(err))
		s.renderError(w, r, http.StatusBadRequest, i18n.MsgBadRequest)
		return
	}
	s.oidc.States.Clear(w)

	identity, err := s.oidc.Provider.Exchange(ctx, code, stateData.Nonce)
	if err != nil {
		s.log.Warn("OIDC token exchange failed", zap.Error(err))
		s.renderError(w, r, http.StatusUnauthorized, i18n.MsgUnauthorized)
		return
	}

	// Only users known to the scheduler may act.
	if _, err := s.groups.ResolveUser(ctx, identity.UserName); err != nil {
		s.log.Warn("OIDC login for unknown user", zap.String("user_name", identity.UserName), zap.Error(err))
		s.renderError(w, r, http.StatusUnauthorized, i18n.MsgUnauthorized)
		return
	}

	session := &auth.Session{
		UserName: identity.UserName,
		Subject:  identity.Subject,
		Email:    identity.Email,
	}
	if err := s.oidc.Sessions.Create(w, session); err != nil {
		s.log.Error("create session", zap.Error(err))
		s.renderError(w, r, http.StatusInternalServerError, i18n.MsgInternalError)
		return
	}

	s.log.Info("user logged in", zap.String("user_name", identity.UserName))
	http.Redirect(w, r, stateData.ReturnTo, http.StatusSeeOther)
}

// handleLogout clears the session and returns to the group list.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	s.oidc.Sessions.Clear(w)
	http.Redirect(w, r, "/groups/", http.StatusSeeOther)
}
