package auth

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// StateCookieName carries the sealed login state between /login and the
// provider callback.
const StateCookieName = "labgroups_oidc_state"

const stateTTL = 5 * time.Minute

var (
	ErrStateExpired  = errors.New("login state expired")
	ErrStateMismatch = errors.New("login state mismatch")
)

// StateData is what a login attempt remembers until the callback: the CSRF
// state, the ID token nonce and the page the user started from.
type StateData struct {
	State     string    `json:"state"`
	Nonce     string    `json:"nonce"`
	ReturnTo  string    `json:"return_to,omitempty"`
	ExpiresAt time.Time `json:"expires_at"`
}

// StateStore keeps one pending login per browser in an encrypted cookie.
type StateStore struct {
	sealer *Sealer
	secure bool
}

func NewStateStore(key []byte, secure bool) (*StateStore, error) {
	sealer, err := NewSealer(key)
	if err != nil {
		return nil, fmt.Errorf("state store: %w", err)
	}
	return &StateStore{sealer: sealer, secure: secure}, nil
}

// Generate starts a login attempt that returns to returnTo.
func (ss *StateStore) Generate(w http.ResponseWriter, returnTo string) (*StateData, error) {
	data := &StateData{ReturnTo: returnTo, ExpiresAt: time.Now().Add(stateTTL)}

	var err error
	if data.State, err = GenerateSecureString(32); err != nil {
		return nil, fmt.Errorf("generate state: %w", err)
	}
	if data.Nonce, err = GenerateSecureString(32); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}

	sealed, err := ss.sealer.Seal(data)
	if err != nil {
		return nil, fmt.Errorf("seal state: %w", err)
	}
	http.SetCookie(w, ss.cookie(sealed, int(stateTTL/time.Second)))
	return data, nil
}

// Validate opens the pending login and checks it against the state the
// provider echoed back.
func (ss *StateStore) Validate(r *http.Request, state string) (*StateData, error) {
	c, err := r.Cookie(StateCookieName)
	if err != nil {
		return nil, fmt.Errorf("no pending login: %w", err)
	}

	var data StateData
	if err := ss.sealer.Open(c.Value, &data); err != nil {
		return nil, fmt.Errorf("open state: %w", err)
	}
	if time.Now().After(data.ExpiresAt) {
		return nil, ErrStateExpired
	}
	if !ConstantTimeCompare(data.State, state) {
		return nil, ErrStateMismatch
	}
	return &data, nil
}

// Clear drops the pending login.
func (ss *StateStore) Clear(w http.ResponseWriter) {
	http.SetCookie(w, ss.cookie("", -1))
}

func (ss *StateStore) cookie(value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     StateCookieName,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   ss.secure,
	}
}
