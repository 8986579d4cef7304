package auth

import (
	"crypto/subtle"
	"fmt"
	"net/http"
	"time"
)

const (
	// SessionCookieName is the name of the login session cookie.
	SessionCookieName = "labgroups_session"
)

// SessionManager handles encrypted session cookies.
type SessionManager struct {
	sealer   *Sealer
	duration time.Duration
	secure   bool // Use Secure flag on cookies (for HTTPS)
}

// Session is the data stored in the encrypted session cookie.
type Session struct {
	UserName  string    `json:"user_name"`
	Subject   string    `json:"sub"`
	Email     string    `json:"email,omitempty"`
	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
}

// NewSessionManager creates a new session manager with the given encryption key.
// The key must be exactly 32 bytes for AES-256.
func NewSessionManager(key []byte, duration time.Duration, secure bool) (*SessionManager, error) {
	sealer, err := NewSealer(key)
	if err != nil {
		return nil, fmt.Errorf("session: %w", err)
	}

	return &SessionManager{
		sealer:   sealer,
		duration: duration,
		secure:   secure,
	}, nil
}

// Create creates an encrypted session cookie.
func (sm *SessionManager) Create(w http.ResponseWriter, session *Session) error {
	session.CreatedAt = time.Now()
	session.ExpiresAt = time.Now().Add(sm.duration)

	encoded, err := sm.sealer.Seal(session)
	if err != nil {
		return fmt.Errorf("failed to seal session: %w", err)
	}

	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    encoded,
		Path:     "/",
		MaxAge:   int(sm.duration.Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   sm.secure,
	})

	return nil
}

// Get retrieves and validates the session from the cookie.
func (sm *SessionManager) Get(r *http.Request) (*Session, error) {
	cookie, err := r.Cookie(SessionCookieName)
	if err != nil {
		return nil, fmt.Errorf("session cookie not found: %w", err)
	}

	var session Session
	if err := sm.sealer.Open(cookie.Value, &session); err != nil {
		return nil, fmt.Errorf("invalid session: %w", err)
	}

	if time.Now().After(session.ExpiresAt) {
		return nil, fmt.Errorf("session expired")
	}

	return &session, nil
}

// UserName returns the user name of a valid session cookie.
func (sm *SessionManager) UserName(r *http.Request) (string, bool) {
	session, err := sm.Get(r)
	if err != nil || session.UserName == "" {
		return "", false
	}
	return session.UserName, true
}

// Clear clears the session cookie.
func (sm *SessionManager) Clear(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   sm.secure,
	})
}

// ConstantTimeCompare performs a constant-time comparison of two strings.
func ConstantTimeCompare(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
