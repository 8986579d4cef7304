package api_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/bcnelson/labgroups/internal/api"
	"github.com/bcnelson/labgroups/internal/api/middleware"
	"github.com/bcnelson/labgroups/internal/auth"
	"github.com/bcnelson/labgroups/internal/domain"
	"github.com/bcnelson/labgroups/internal/i18n"
	"github.com/bcnelson/labgroups/internal/service"
	"github.com/bcnelson/labgroups/internal/storage/memory"
	"github.com/bcnelson/labgroups/internal/validation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

// testServer creates a test server with in-memory storage
type testServer struct {
	handler http.Handler
	store   *memory.Store
	logs    *observer.ObservedLogs
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	store := memory.New()
	require.NoError(t, store.CreateUser(context.Background(), &domain.User{UserName: "admin", DisplayName: "Admin"}))

	core, logs := observer.New(zap.InfoLevel)
	log := zap.New(core)

	catalog, err := i18n.New("en")
	require.NoError(t, err)
	groups := service.NewGroupService(store, validation.New(), log, 20)
	handler := api.NewRouter(groups, catalog, auth.HeaderResolver{Header: "X-Remote-User"}, nil, log)

	return &testServer{handler: handler, store: store, logs: logs}
}

func (ts *testServer) request(method, path string, form url.Values, headers map[string]string) *httptest.ResponseRecorder {
	var req *http.Request
	if form != nil {
		req = httptest.NewRequest(method, path, strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	rr := httptest.NewRecorder()
	ts.handler.ServeHTTP(rr, req)
	return rr
}

func TestHealthEndpoint(t *testing.T) {
	ts := newTestServer(t)

	rr := ts.request(http.MethodGet, "/health", nil, nil)
	require.Equal(t, http.StatusOK, rr.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp["status"])
}

func TestRequestID(t *testing.T) {
	ts := newTestServer(t)

	rr := ts.request(http.MethodGet, "/health", nil, nil)
	assert.NotEmpty(t, rr.Header().Get(middleware.RequestIDHeader))

	rr = ts.request(http.MethodGet, "/health", nil, map[string]string{middleware.RequestIDHeader: "abc-123"})
	assert.Equal(t, "abc-123", rr.Header().Get(middleware.RequestIDHeader))
}

func TestAccessLog(t *testing.T) {
	ts := newTestServer(t)

	ts.request(http.MethodGet, "/groups/edit?id=42", nil, map[string]string{middleware.RequestIDHeader: "req-1"})

	entries := ts.logs.FilterMessage("request").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "/groups/edit", fields["path"])
	assert.Equal(t, int64(http.StatusNotFound), fields["status"])
	assert.Equal(t, "req-1", fields["request_id"])
}

func TestActorResolvedForWebRoutes(t *testing.T) {
	ts := newTestServer(t)
	form := url.Values{"group_name": {"qa-team"}, "display_name": {"QA Team"}}

	rr := ts.request(http.MethodPost, "/groups/save", form, nil)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = ts.request(http.MethodPost, "/groups/save", form, map[string]string{"X-Remote-User": "admin"})
	require.Equal(t, http.StatusSeeOther, rr.Code)

	saved := ts.logs.FilterMessage("group saved").All()
	require.Len(t, saved, 1)
	assert.Equal(t, "admin", saved[0].ContextMap()["actor"])

	rr = ts.request(http.MethodGet, "/groups/by_name?name=qa", nil, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"groups":["qa-team"]}`, rr.Body.String())
}

func TestRootRedirectsToGroups(t *testing.T) {
	ts := newTestServer(t)

	rr := ts.request(http.MethodGet, "/", nil, nil)
	assert.Equal(t, http.StatusFound, rr.Code)
	assert.Equal(t, "/groups/", rr.Header().Get("Location"))
}
