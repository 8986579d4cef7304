package web

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/url"

	"github.com/bcnelson/labgroups/internal/auth"
	"github.com/bcnelson/labgroups/internal/i18n"
)

const flashCookieName = "labgroups_flash"

// requireActor is middleware that rejects anonymous requests. With OIDC
// login the user is sent to the login page instead.
func (s *Server) requireActor(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if auth.ActorFrom(r.Context()) != nil {
			next.ServeHTTP(w, r)
			return
		}

		if s.oidc != nil {
			returnTo := r.URL.RequestURI()
			if r.Method != http.MethodGet {
				returnTo = r.Referer()
				if u, err := url.Parse(returnTo); err == nil {
					returnTo = u.RequestURI()
				}
			}
			http.Redirect(w, r, "/login?return_to="+url.QueryEscape(returnTo), http.StatusSeeOther)
			return
		}

		s.renderError(w, r, http.StatusUnauthorized, i18n.MsgUnauthorized)
	})
}

// setFlash stores a message to show on the next page.
func setFlash(w http.ResponseWriter, kind, message string) {
	data, err := json.Marshal(&FlashMessage{Type: kind, Message: message})
	if err != nil {
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     flashCookieName,
		Value:    base64.RawURLEncoding.EncodeToString(data),
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

// popFlash returns and clears the pending flash message, if any.
func popFlash(w http.ResponseWriter, r *http.Request) *FlashMessage {
	cookie, err := r.Cookie(flashCookieName)
	if err != nil {
		return nil
	}
	http.SetCookie(w, &http.Cookie{
		Name:     flashCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	data, err := base64.RawURLEncoding.DecodeString(cookie.Value)
	if err != nil {
		return nil
	}
	var flash FlashMessage
	if err := json.Unmarshal(data, &flash); err != nil || flash.Message == "" {
		return nil
	}
	return &flash
}
