package web

import (
	"context"
	"database/sql"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"testing"

	"github.com/bcnelson/labgroups/internal/auth"
	"github.com/bcnelson/labgroups/internal/domain"
	"github.com/bcnelson/labgroups/internal/i18n"
	"github.com/bcnelson/labgroups/internal/service"
	"github.com/bcnelson/labgroups/internal/storage/memory"
	"github.com/bcnelson/labgroups/internal/validation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const actorHeader = "X-Remote-User"

type testEnv struct {
	handler http.Handler
	store   *memory.Store
	svc     *service.GroupService
	bob     *domain.User
	lab1    *domain.System
	secret  *domain.System
}

func newTestEnv(t *testing.T, oidc *OIDC) *testEnv {
	t.Helper()
	ctx := context.Background()
	store := memory.New()

	require.NoError(t, store.CreateUser(ctx, &domain.User{UserName: "admin", DisplayName: "Admin"}))
	bob := &domain.User{UserName: "bob", DisplayName: "Bob Smith"}
	require.NoError(t, store.CreateUser(ctx, bob))
	lab1 := &domain.System{FQDN: "lab1.example.com"}
	require.NoError(t, store.CreateSystem(ctx, lab1))
	secret := &domain.System{FQDN: "secret.example.com", Private: true, OwnerID: sql.NullInt64{Int64: bob.ID, Valid: true}}
	require.NoError(t, store.CreateSystem(ctx, secret))

	catalog, err := i18n.New("en")
	require.NoError(t, err)

	log := zap.NewNop()
	svc := service.NewGroupService(store, validation.New(), log, 20)
	router := NewRouter(svc, catalog, log, oidc)
	handler := auth.ResolveActor(auth.HeaderResolver{Header: actorHeader}, svc.ResolveUser, log)(router)

	return &testEnv{handler: handler, store: store, svc: svc, bob: bob, lab1: lab1, secret: secret}
}

func (e *testEnv) do(t *testing.T, method, target, actor string, form url.Values) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if form != nil {
		req = httptest.NewRequest(method, target, strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	if actor != "" {
		req.Header.Set(actorHeader, actor)
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) createGroup(t *testing.T, name, display string) int64 {
	t.Helper()
	rec := e.do(t, http.MethodPost, "/groups/save", "admin", url.Values{"group_name": {name}, "display_name": {display}})
	require.Equal(t, http.StatusSeeOther, rec.Code, rec.Body.String())

	page, err := e.svc.List(context.Background(), domain.ListOptions{PerPage: 1000})
	require.NoError(t, err)
	for _, g := range page.Groups {
		if g.GroupName == name {
			return g.ID
		}
	}
	t.Fatalf("group %s not created", name)
	return 0
}

func flashOf(t *testing.T, rec *httptest.ResponseRecorder) *FlashMessage {
	t.Helper()
	for _, c := range rec.Result().Cookies() {
		if c.Name == flashCookieName && c.Value != "" {
			data, err := base64.RawURLEncoding.DecodeString(c.Value)
			require.NoError(t, err)
			var f FlashMessage
			require.NoError(t, json.Unmarshal(data, &f))
			return &f
		}
	}
	return nil
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestCreateGroupAndSearch(t *testing.T) {
	e := newTestEnv(t, nil)

	rec := e.do(t, http.MethodPost, "/groups/save", "admin", url.Values{
		"group_name":   {"qa-team"},
		"display_name": {"QA Team"},
	})
	require.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/groups/", rec.Header().Get("Location"))
	flash := flashOf(t, rec)
	require.NotNil(t, flash)
	assert.Equal(t, "OK", flash.Message)

	rec = e.do(t, http.MethodGet, "/groups/by_name?name=qa", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	body := decode[map[string][]string](t, rec)
	assert.Equal(t, []string{"qa-team"}, body["groups"])

	rec = e.do(t, http.MethodPost, "/groups/by_name", "", url.Values{"name": {"QA"}})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"qa-team"}, decode[map[string][]string](t, rec)["groups"])

	rec = e.do(t, http.MethodGet, "/groups/by_name?name=zzz", "", nil)
	assert.Equal(t, []string{}, decode[map[string][]string](t, rec)["groups"])

	all, err := e.store.ListActivity(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "QA Team", all[0].NewValue)
}

func TestSaveValidation(t *testing.T) {
	e := newTestEnv(t, nil)

	tests := []struct {
		name    string
		form    url.Values
		status  int
		message string
	}{
		{"empty group name", url.Values{"group_name": {""}, "display_name": {"QA"}}, http.StatusBadRequest, "Please enter a value"},
		{"whitespace display name", url.Values{"group_name": {"qa"}, "display_name": {"   "}}, http.StatusBadRequest, "Please enter a value"},
		{"too long", url.Values{"group_name": {strings.Repeat("g", 257)}, "display_name": {"QA"}}, http.StatusBadRequest, "Enter a value not more than 256 characters long"},
		{"malformed id", url.Values{"group_id": {"abc"}, "group_name": {"qa"}, "display_name": {"QA"}}, http.StatusBadRequest, "Invalid request"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := e.do(t, http.MethodPost, "/groups/save", "admin", tt.form)
			assert.Equal(t, tt.status, rec.Code)
			assert.Contains(t, rec.Body.String(), tt.message)
		})
	}

	names, err := e.svc.SearchByName(context.Background(), "")
	require.NoError(t, err)
	assert.Empty(t, names, "rejected forms must not create groups")
	all, err := e.store.ListActivity(context.Background(), 0)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestSaveDuplicateAndUpdate(t *testing.T) {
	e := newTestEnv(t, nil)
	id := e.createGroup(t, "qa", "QA")
	e.createGroup(t, "dev", "Dev")

	rec := e.do(t, http.MethodPost, "/groups/save", "admin", url.Values{"group_name": {"qa"}, "display_name": {"Other"}})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), "Group name qa is already in use")

	// Renaming onto an existing name re-renders the edit page.
	rec = e.do(t, http.MethodPost, "/groups/save", "admin", url.Values{
		"group_id": {strconv.FormatInt(id, 10)}, "group_name": {"dev"}, "display_name": {"QA"},
	})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), `action="/groups/save_user"`)

	rec = e.do(t, http.MethodPost, "/groups/save", "admin", url.Values{
		"group_id": {strconv.FormatInt(id, 10)}, "group_name": {"qa"}, "display_name": {"Quality"},
	})
	require.Equal(t, http.StatusSeeOther, rec.Code)
	g, err := e.svc.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "Quality", g.DisplayName)

	rec = e.do(t, http.MethodPost, "/groups/save", "admin", url.Values{
		"group_id": {"9999"}, "group_name": {"x"}, "display_name": {"x"},
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMutationsRequireActor(t *testing.T) {
	e := newTestEnv(t, nil)
	id := strconv.FormatInt(e.createGroup(t, "qa", "QA"), 10)

	tests := []struct {
		method string
		target string
		form   url.Values
	}{
		{http.MethodPost, "/groups/save", url.Values{"group_name": {"x"}, "display_name": {"x"}}},
		{http.MethodPost, "/groups/save_user", url.Values{"group_id": {id}, userField: {"bob"}}},
		{http.MethodPost, "/groups/save_system", url.Values{"group_id": {id}, systemField: {"lab1.example.com"}}},
		{http.MethodGet, "/groups/removeUser?group_id=" + id + "&id=1", nil},
		{http.MethodGet, "/groups/removeSystem?group_id=" + id + "&id=1", nil},
		{http.MethodPost, "/groups/remove", url.Values{"id": {id}}},
	}
	for _, tt := range tests {
		rec := e.do(t, tt.method, tt.target, "", tt.form)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, tt.target)

		rec = e.do(t, tt.method, tt.target, "mallory", tt.form)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, tt.target)
	}

	names, err := e.svc.SearchByName(context.Background(), "x")
	require.NoError(t, err)
	assert.Empty(t, names)
	users, err := e.svc.GroupUsers(context.Background(), mustID(t, id))
	require.NoError(t, err)
	assert.Empty(t, users)
}

func mustID(t *testing.T, s string) int64 {
	t.Helper()
	id, err := strconv.ParseInt(s, 10, 64)
	require.NoError(t, err)
	return id
}

func TestRequireActorRedirectsToLogin(t *testing.T) {
	e := newTestEnv(t, &OIDC{})

	rec := e.do(t, http.MethodGet, "/groups/removeUser?group_id=1&id=2", "", nil)
	require.Equal(t, http.StatusSeeOther, rec.Code)
	loc, err := url.Parse(rec.Header().Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, "/login", loc.Path)
	assert.Equal(t, "/groups/removeUser?group_id=1&id=2", loc.Query().Get("return_to"))
}

func TestUserMembership(t *testing.T) {
	e := newTestEnv(t, nil)
	id := e.createGroup(t, "qa", "QA")
	gid := strconv.FormatInt(id, 10)

	rec := e.do(t, http.MethodPost, "/groups/save_user", "admin", url.Values{"group_id": {gid}, userField: {"bob"}})
	require.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, editURL(id), rec.Header().Get("Location"))

	rec = e.do(t, http.MethodGet, "/groups/get_group_users?group_id="+gid, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[[`+strconv.FormatInt(e.bob.ID, 10)+`, "Bob Smith"]]`, rec.Body.String())

	rec = e.do(t, http.MethodPost, "/groups/save_user", "admin", url.Values{"group_id": {gid}, userField: {"bob"}})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), "bob is already a member")

	rec = e.do(t, http.MethodPost, "/groups/save_user", "admin", url.Values{"group_id": {gid}, userField: {"ghost"}})
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "No user named ghost")
	assert.Contains(t, rec.Body.String(), `value="ghost"`)

	rec = e.do(t, http.MethodGet, editURL(id), "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "Bob Smith")
	assert.Contains(t, body, "/groups/removeUser?group_id="+gid+"&amp;id="+strconv.FormatInt(e.bob.ID, 10))
	assert.Contains(t, body, "Remove (-)")

	removeURL := "/groups/removeUser?group_id=" + gid + "&id=" + strconv.FormatInt(e.bob.ID, 10)
	rec = e.do(t, http.MethodGet, removeURL, "admin", nil)
	require.Equal(t, http.StatusSeeOther, rec.Code)
	flash := flashOf(t, rec)
	require.NotNil(t, flash)
	assert.Equal(t, "Bob Smith Removed", flash.Message)

	rec = e.do(t, http.MethodGet, removeURL, "admin", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "Member not found")

	groupLog, err := e.store.ListGroupActivity(context.Background(), id, 0)
	require.NoError(t, err)
	assert.Len(t, groupLog, 2, "one record per successful add and remove")
}

func TestSystemMembership(t *testing.T) {
	e := newTestEnv(t, nil)
	id := e.createGroup(t, "qa", "QA")
	gid := strconv.FormatInt(id, 10)

	rec := e.do(t, http.MethodPost, "/groups/save_system", "admin", url.Values{"group_id": {gid}, systemField: {"lab1.example.com"}})
	require.Equal(t, http.StatusSeeOther, rec.Code)

	rec = e.do(t, http.MethodPost, "/groups/save_system", "admin", url.Values{"group_id": {gid}, systemField: {"secret.example.com"}})
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "No system named secret.example.com")

	rec = e.do(t, http.MethodPost, "/groups/save_system", "bob", url.Values{"group_id": {gid}, systemField: {"secret.example.com"}})
	require.Equal(t, http.StatusSeeOther, rec.Code)

	rec = e.do(t, http.MethodGet, "/groups/get_group_systems?group_id="+gid, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	pairs := decode[[][]any](t, rec)
	require.Len(t, pairs, 2)
	assert.Equal(t, "lab1.example.com", pairs[0][1])

	rec = e.do(t, http.MethodPost, "/groups/removeSystem", "admin", url.Values{
		"group_id": {gid}, "id": {strconv.FormatInt(e.lab1.ID, 10)},
	})
	require.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "lab1.example.com Removed", flashOf(t, rec).Message)

	systemLog, err := e.store.ListSystemActivity(context.Background(), e.lab1.ID, 0)
	require.NoError(t, err)
	require.Len(t, systemLog, 2)
	assert.Equal(t, domain.ActionRemoved, systemLog[0].Action)
	assert.Equal(t, "QA", systemLog[0].OldValue)
}

func TestRemoveGroup(t *testing.T) {
	e := newTestEnv(t, nil)
	id := e.createGroup(t, "qa", "QA Team")
	gid := strconv.FormatInt(id, 10)
	e.do(t, http.MethodPost, "/groups/save_user", "admin", url.Values{"group_id": {gid}, userField: {"bob"}})

	rec := e.do(t, http.MethodPost, "/groups/remove", "admin", url.Values{"id": {gid}})
	require.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/groups/", rec.Header().Get("Location"))
	assert.Equal(t, "QA Team Deleted", flashOf(t, rec).Message)

	rec = e.do(t, http.MethodGet, editURL(id), "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "Group not found")

	rec = e.do(t, http.MethodGet, "/groups/get_group_users?group_id="+gid, "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	apiErr := decode[domain.APIError](t, rec)
	assert.Equal(t, http.StatusNotFound, apiErr.Code)

	rec = e.do(t, http.MethodPost, "/groups/remove", "admin", url.Values{"id": {gid}})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	all, err := e.store.ListActivity(context.Background(), 0)
	require.NoError(t, err)
	require.NotEmpty(t, all)
	assert.Equal(t, domain.ActivityPlain, all[0].Type)
	assert.Equal(t, "QA Team", all[0].OldValue)
}

func TestMalformedIDs(t *testing.T) {
	e := newTestEnv(t, nil)

	for _, target := range []string{
		"/groups/edit?id=abc",
		"/groups/edit",
		"/groups/get_group_users?group_id=x",
		"/groups/get_group_systems?group_id=-1",
		"/groups/removeUser?group_id=1&id=nope",
	} {
		rec := e.do(t, http.MethodGet, target, "admin", nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code, target)
	}
}

func TestIndexPagination(t *testing.T) {
	e := newTestEnv(t, nil)
	for _, name := range []string{"charlie", "alpha", "bravo"} {
		e.createGroup(t, name, strings.ToUpper(name))
	}

	rec := e.do(t, http.MethodGet, "/groups/?per_page=2", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "alpha")
	assert.Contains(t, body, "bravo")
	assert.NotContains(t, body, "charlie")
	assert.Contains(t, body, "Page 1 of 2")
	assert.Contains(t, body, `action="/groups/remove"`)
	assert.Contains(t, body, "order=-group_name")

	rec = e.do(t, http.MethodGet, "/groups/?per_page=2&page=2", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "charlie")

	rec = e.do(t, http.MethodGet, "/groups/?order=-group_name&per_page=1", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "charlie")
	assert.NotContains(t, rec.Body.String(), "alpha")
}

func TestFlashShownOnce(t *testing.T) {
	e := newTestEnv(t, nil)

	rec := e.do(t, http.MethodPost, "/groups/save", "admin", url.Values{"group_name": {"qa"}, "display_name": {"QA"}})
	require.Equal(t, http.StatusSeeOther, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/groups/", nil)
	for _, c := range rec.Result().Cookies() {
		req.AddCookie(c)
	}
	page := httptest.NewRecorder()
	e.handler.ServeHTTP(page, req)
	assert.Contains(t, page.Body.String(), `class="flash flash-success">OK<`)

	var cleared bool
	for _, c := range page.Result().Cookies() {
		if c.Name == flashCookieName && c.MaxAge < 0 {
			cleared = true
		}
	}
	assert.True(t, cleared)
}

func TestLocalizedPages(t *testing.T) {
	e := newTestEnv(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/groups/", nil)
	req.Header.Set("Accept-Language", "de-DE,de;q=0.9,en;q=0.5")
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "<title>Gruppen</title>")
	assert.Contains(t, rec.Body.String(), "Gruppenname")
}

func TestAutocomplete(t *testing.T) {
	e := newTestEnv(t, nil)

	rec := e.do(t, http.MethodGet, "/users/by_name?input=b", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"bob"}, decode[map[string][]string](t, rec)["matches"])

	rec = e.do(t, http.MethodGet, "/by_fqdn?input=", "", nil)
	assert.Equal(t, []string{"lab1.example.com"}, decode[map[string][]string](t, rec)["matches"])

	rec = e.do(t, http.MethodGet, "/by_fqdn?input=", "bob", nil)
	assert.Equal(t, []string{"lab1.example.com", "secret.example.com"}, decode[map[string][]string](t, rec)["matches"])
}

func TestBuildGrid(t *testing.T) {
	type row struct {
		id   int
		name string
	}
	cols := []Column[row]{
		{Header: "Name", SortKey: "name", Value: func(r row) string { return r.name }},
		{Header: " ", Action: func(r row) *Link { return &Link{Href: "/x?id=" + strconv.Itoa(r.id), Text: "Remove"} }},
	}

	g := SortableGrid(cols, []row{{1, "a"}, {2, "b"}}, func(key string) string { return "?order=" + key })
	require.Len(t, g.Headers, 2)
	assert.Equal(t, "?order=name", g.Headers[0].Href)
	assert.Empty(t, g.Headers[1].Href)
	require.Len(t, g.Rows, 2)
	assert.Equal(t, "b", g.Rows[1][0].Text)
	assert.Nil(t, g.Rows[1][0].Link)
	assert.Equal(t, "/x?id=2", g.Rows[1][1].Link.Href)

	empty := BuildGrid(cols, nil)
	assert.Empty(t, empty.Rows)
	assert.Len(t, empty.Headers, 2)
}

func TestLocalPath(t *testing.T) {
	assert.True(t, localPath("/groups/edit?id=1"))
	assert.False(t, localPath("//evil.example.com"))
	assert.False(t, localPath("https://evil.example.com"))
	assert.False(t, localPath(""))
}
