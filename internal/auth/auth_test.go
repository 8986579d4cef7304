package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/bcnelson/labgroups/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var testKey = []byte(strings.Repeat("k", 32))

func TestSealerRoundTrip(t *testing.T) {
	s, err := NewSealer(testKey)
	require.NoError(t, err)

	sealed, err := s.Seal(map[string]string{"user_name": "alice"})
	require.NoError(t, err)
	assert.NotContains(t, sealed, "alice")

	var got map[string]string
	require.NoError(t, s.Open(sealed, &got))
	assert.Equal(t, "alice", got["user_name"])

	other, err := NewSealer([]byte(strings.Repeat("x", 32)))
	require.NoError(t, err)
	assert.Error(t, other.Open(sealed, &got))
	assert.Error(t, s.Open("not-base64!", &got))
	assert.Error(t, s.Open("", &got))

	_, err = NewSealer([]byte("short"))
	assert.Error(t, err)
}

// cookieRequest returns a request carrying the cookies set on rec.
func cookieRequest(rec *httptest.ResponseRecorder) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	for _, c := range rec.Result().Cookies() {
		req.AddCookie(c)
	}
	return req
}

func TestSessionManager(t *testing.T) {
	sm, err := NewSessionManager(testKey, time.Hour, false)
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	require.NoError(t, sm.Create(rec, &Session{UserName: "alice", Subject: "sub-1"}))

	session, err := sm.Get(cookieRequest(rec))
	require.NoError(t, err)
	assert.Equal(t, "alice", session.UserName)

	name, ok := sm.UserName(cookieRequest(rec))
	assert.True(t, ok)
	assert.Equal(t, "alice", name)

	_, ok = sm.UserName(httptest.NewRequest(http.MethodGet, "/", nil))
	assert.False(t, ok)

	cleared := httptest.NewRecorder()
	sm.Clear(cleared)
	cookies := cleared.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, SessionCookieName, cookies[0].Name)
	assert.Less(t, cookies[0].MaxAge, 0)
}

func TestSessionExpired(t *testing.T) {
	sm, err := NewSessionManager(testKey, -time.Minute, false)
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	require.NoError(t, sm.Create(rec, &Session{UserName: "alice"}))

	_, err = sm.Get(cookieRequest(rec))
	assert.ErrorContains(t, err, "expired")
}

func TestStateStore(t *testing.T) {
	ss, err := NewStateStore(testKey, true)
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	data, err := ss.Generate(rec, "/groups/edit?id=1")
	require.NoError(t, err)
	assert.NotEmpty(t, data.State)
	assert.NotEmpty(t, data.Nonce)

	got, err := ss.Validate(cookieRequest(rec), data.State)
	require.NoError(t, err)
	assert.Equal(t, data.Nonce, got.Nonce)
	assert.Equal(t, "/groups/edit?id=1", got.ReturnTo)

	_, err = ss.Validate(cookieRequest(rec), "forged")
	assert.ErrorIs(t, err, ErrStateMismatch)

	_, err = ss.Validate(httptest.NewRequest(http.MethodGet, "/", nil), data.State)
	assert.Error(t, err)
}

func TestIdentityFromClaims(t *testing.T) {
	id, err := IdentityFromClaims(map[string]any{"preferred_username": "alice", "email": "a@example.com"}, "preferred_username")
	require.NoError(t, err)
	assert.Equal(t, "alice", id.UserName)
	assert.Equal(t, "a@example.com", id.Email)

	_, err = IdentityFromClaims(map[string]any{"email": "a@example.com"}, "preferred_username")
	assert.Error(t, err)
	_, err = IdentityFromClaims(map[string]any{"uid": 42}, "uid")
	assert.Error(t, err)
}

func TestResolveActor(t *testing.T) {
	alice := &domain.User{ID: 7, UserName: "alice"}
	lookup := func(ctx context.Context, name string) (*domain.User, error) {
		switch name {
		case "alice":
			return alice, nil
		case "broken":
			return nil, errors.New("db down")
		}
		return nil, domain.ErrNotFound
	}

	var seen *domain.User
	handler := ResolveActor(HeaderResolver{Header: "X-Remote-User"}, lookup, zap.NewNop())(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			seen = ActorFrom(r.Context())
		}))

	tests := []struct {
		header string
		want   *domain.User
	}{
		{"alice", alice},
		{"  alice ", alice},
		{"", nil},
		{"mallory", nil},
		{"broken", nil},
	}
	for _, tt := range tests {
		seen = nil
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if tt.header != "" {
			req.Header.Set("X-Remote-User", tt.header)
		}
		handler.ServeHTTP(httptest.NewRecorder(), req)
		assert.Equal(t, tt.want, seen, "header %q", tt.header)
	}
}
