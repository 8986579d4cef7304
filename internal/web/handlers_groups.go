package web

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/bcnelson/labgroups/internal/auth"
	"github.com/bcnelson/labgroups/internal/domain"
	"github.com/bcnelson/labgroups/internal/i18n"
	"github.com/bcnelson/labgroups/internal/service"
	"github.com/bcnelson/labgroups/internal/validation"
)

const (
	maxPerPage   = 500
	timeLayout   = "2006-01-02 15:04:05"
	userField    = "user.text"
	systemField  = "system.text"
	flashSuccess = "success"
	flashError   = "error"
)

// FormView is the group form as shown to the user.
type FormView struct {
	ID          int64
	DisplayName string
	GroupName   string
	Errors      map[string]string
}

// EditData holds data for the group edit page.
type EditData struct {
	Form       FormView
	Users      Grid
	Systems    Grid
	History    Grid
	UserText   string
	SystemText string
}

// IndexData holds data for the group list page.
type IndexData struct {
	Grid    Grid
	Page    *domain.GroupPage
	PrevURL string
	NextURL string
}

func formView(f domain.GroupForm) FormView {
	return FormView{ID: f.ID, DisplayName: f.DisplayName, GroupName: f.GroupName}
}

// fieldErrors translates validation errors, keeping the first per field.
func fieldErrors(loc *i18n.Localizer, errs validation.ValidationErrors) map[string]string {
	out := make(map[string]string)
	for field, ve := range errs.ByField() {
		switch ve.Code {
		case "required":
			out[field] = loc.T(i18n.MsgRequired, nil)
		case "max":
			out[field] = loc.T(i18n.MsgTooLong, map[string]any{"Max": ve.Param})
		default:
			out[field] = ve.Message
		}
	}
	return out
}

func userColumns(loc *i18n.Localizer, groupID int64) []Column[*domain.User] {
	return []Column[*domain.User]{
		{
			Header: loc.T(i18n.MsgUserMembers, nil),
			Value:  func(u *domain.User) string { return u.DisplayName },
		},
		{
			Header: " ",
			Action: func(u *domain.User) *Link {
				return &Link{
					Href: "/groups/removeUser?group_id=" + strconv.FormatInt(groupID, 10) + "&id=" + strconv.FormatInt(u.ID, 10),
					Text: loc.T(i18n.MsgRemove, nil),
				}
			},
		},
	}
}

func systemColumns(loc *i18n.Localizer, groupID int64) []Column[*domain.System] {
	return []Column[*domain.System]{
		{
			Header: loc.T(i18n.MsgSystemMembers, nil),
			Value:  func(sys *domain.System) string { return sys.FQDN },
		},
		{
			Header: " ",
			Action: func(sys *domain.System) *Link {
				return &Link{
					Href: "/groups/removeSystem?group_id=" + strconv.FormatInt(groupID, 10) + "&id=" + strconv.FormatInt(sys.ID, 10),
					Text: loc.T(i18n.MsgRemove, nil),
				}
			},
		},
	}
}

func historyColumns(loc *i18n.Localizer) []Column[service.HistoryEntry] {
	return []Column[service.HistoryEntry]{
		{Header: loc.T(i18n.MsgCreated, nil), Value: func(e service.HistoryEntry) string { return e.Created.Format(timeLayout) }},
		{Header: loc.T(i18n.MsgUser, nil), Value: func(e service.HistoryEntry) string { return e.UserName }},
		{Header: loc.T(i18n.MsgAction, nil), Value: func(e service.HistoryEntry) string { return e.Action }},
		{Header: loc.T(i18n.MsgField, nil), Value: func(e service.HistoryEntry) string { return e.FieldName }},
		{Header: loc.T(i18n.MsgOldValue, nil), Value: func(e service.HistoryEntry) string { return e.OldValue }},
		{Header: loc.T(i18n.MsgNewValue, nil), Value: func(e service.HistoryEntry) string { return e.NewValue }},
	}
}

func groupColumns(loc *i18n.Localizer) []Column[*domain.Group] {
	return []Column[*domain.Group]{
		{
			Header:  loc.T(i18n.MsgGroupName, nil),
			SortKey: string(domain.OrderGroupName),
			Value:   func(g *domain.Group) string { return g.GroupName },
			Action: func(g *domain.Group) *Link {
				return &Link{Href: editURL(g.ID), Text: g.GroupName}
			},
		},
		{
			Header:  loc.T(i18n.MsgDisplayName, nil),
			SortKey: string(domain.OrderDisplayName),
			Value:   func(g *domain.Group) string { return g.DisplayName },
		},
		{
			Header: " ",
			Action: func(g *domain.Group) *Link {
				return &Link{
					Href:    "/groups/remove",
					Text:    loc.T(i18n.MsgRemove, nil),
					Method:  http.MethodPost,
					Confirm: loc.T(i18n.MsgConfirmDeleteText, nil),
					Params:  map[string]string{"id": strconv.FormatInt(g.ID, 10)},
				}
			},
		},
	}
}

// handleIndex renders the paginated group list.
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	perPage := parseInt(q.Get("per_page"), s.groups.PageSize())
	if perPage > maxPerPage {
		perPage = maxPerPage
	}

	page, err := s.groups.List(r.Context(), domain.ListOptions{
		Page:    parseInt(q.Get("page"), 1),
		PerPage: perPage,
		Order:   domain.GroupOrder(q.Get("order")),
	})
	if err != nil {
		s.handleError(w, r, err)
		return
	}

	data := s.newPage(w, r, i18n.MsgGroups, "groups")
	grid := SortableGrid(groupColumns(data.loc), page.Groups, func(key string) string {
		order := domain.GroupOrder(key)
		if page.Order == order {
			order = domain.GroupOrder("-" + key)
		}
		return indexURL(1, page.PerPage, order)
	})

	content := IndexData{Grid: grid, Page: page}
	if page.HasPrev() {
		content.PrevURL = indexURL(page.Page-1, page.PerPage, page.Order)
	}
	if page.HasNext() {
		content.NextURL = indexURL(page.Page+1, page.PerPage, page.Order)
	}
	data.Content = content

	s.render(w, http.StatusOK, "group_index", data)
}

// handleByName returns the names of groups starting with the name parameter.
func (s *Server) handleByName(w http.ResponseWriter, r *http.Request) {
	names, err := s.groups.SearchByName(r.Context(), strings.ToLower(r.FormValue("name")))
	if err != nil {
		s.handleJSONError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"groups": names})
}

// handleNew renders the empty create form. Query values prefill it.
func (s *Server) handleNew(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	s.renderNew(w, r, http.StatusOK, FormView{
		DisplayName: q.Get("display_name"),
		GroupName:   q.Get("group_name"),
	})
}

func (s *Server) renderNew(w http.ResponseWriter, r *http.Request, status int, form FormView) {
	data := s.newPage(w, r, i18n.MsgNewGroup, "groups")
	data.Content = form
	s.render(w, status, "group_new", data)
}

// handleEdit renders the edit form with member grids and recent history.
func (s *Server) handleEdit(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r.URL.Query().Get("id"))
	if err != nil {
		s.handleError(w, r, err)
		return
	}
	s.renderEdit(w, r, http.StatusOK, id, editState{})
}

// editState carries what a failed submission needs to show again.
type editState struct {
	form       *FormView
	flash      *FlashMessage
	userText   string
	systemText string
}

func (s *Server) renderEdit(w http.ResponseWriter, r *http.Request, status int, groupID int64, st editState) {
	ctx := r.Context()

	group, err := s.groups.Get(ctx, groupID)
	if err != nil {
		s.handleError(w, r, err)
		return
	}
	users, err := s.groups.GroupUsers(ctx, groupID)
	if err != nil {
		s.handleError(w, r, err)
		return
	}
	systems, err := s.groups.GroupSystems(ctx, groupID)
	if err != nil {
		s.handleError(w, r, err)
		return
	}
	history, err := s.groups.GroupHistory(ctx, groupID)
	if err != nil {
		s.handleError(w, r, err)
		return
	}

	data := s.newPage(w, r, i18n.MsgEditGroup, "groups")
	if st.flash != nil {
		data.Flash = st.flash
	}

	form := FormView{ID: group.ID, DisplayName: group.DisplayName, GroupName: group.GroupName}
	if st.form != nil {
		form = *st.form
	}

	data.Content = EditData{
		Form:       form,
		Users:      BuildGrid(userColumns(data.loc, groupID), users),
		Systems:    BuildGrid(systemColumns(data.loc, groupID), systems),
		History:    BuildGrid(historyColumns(data.loc), history),
		UserText:   st.userText,
		SystemText: st.systemText,
	}
	s.render(w, status, "group_edit", data)
}

// handleSave creates or updates a group.
func (s *Server) handleSave(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		s.renderError(w, r, http.StatusBadRequest, i18n.MsgBadRequest)
		return
	}
	id, err := parseOptionalID(r.PostFormValue("group_id"))
	if err != nil {
		s.handleError(w, r, err)
		return
	}

	form := domain.GroupForm{
		ID:          id,
		DisplayName: r.PostFormValue("display_name"),
		GroupName:   r.PostFormValue("group_name"),
	}
	loc := s.localizer(r)

	_, err = s.groups.Save(r.Context(), auth.ActorFrom(r.Context()), form)
	var verrs validation.ValidationErrors
	switch {
	case errors.As(err, &verrs):
		view := formView(form)
		view.Errors = fieldErrors(loc, verrs)
		s.renderForm(w, r, http.StatusBadRequest, view)
		return
	case errors.Is(err, domain.ErrAlreadyExists):
		view := formView(validation.NormalizeGroupForm(form))
		view.Errors = map[string]string{
			"group_name": loc.Name(i18n.MsgGroupNameTaken, view.GroupName),
		}
		s.renderForm(w, r, http.StatusConflict, view)
		return
	case err != nil:
		s.handleError(w, r, err)
		return
	}

	setFlash(w, flashSuccess, loc.T(i18n.MsgOK, nil))
	http.Redirect(w, r, "/groups/", http.StatusSeeOther)
}

// renderForm shows a rejected form again: the create form for new groups,
// the edit page otherwise.
func (s *Server) renderForm(w http.ResponseWriter, r *http.Request, status int, form FormView) {
	if form.ID == 0 {
		s.renderNew(w, r, status, form)
		return
	}
	s.renderEdit(w, r, status, form.ID, editState{form: &form})
}

// handleSaveUser adds a user to a group by user name.
func (s *Server) handleSaveUser(w http.ResponseWriter, r *http.Request) {
	groupID, err := parseID(r.PostFormValue("group_id"))
	if err != nil {
		s.handleError(w, r, err)
		return
	}
	name := strings.TrimSpace(r.PostFormValue(userField))

	if _, err := s.groups.AddUser(r.Context(), auth.ActorFrom(r.Context()), groupID, name); err != nil {
		s.membershipFailed(w, r, groupID, name, err, editState{userText: name})
		return
	}

	setFlash(w, flashSuccess, s.localizer(r).T(i18n.MsgOK, nil))
	http.Redirect(w, r, editURL(groupID), http.StatusSeeOther)
}

// handleSaveSystem adds a system to a group by fqdn.
func (s *Server) handleSaveSystem(w http.ResponseWriter, r *http.Request) {
	groupID, err := parseID(r.PostFormValue("group_id"))
	if err != nil {
		s.handleError(w, r, err)
		return
	}
	fqdn := strings.TrimSpace(r.PostFormValue(systemField))

	if _, err := s.groups.AddSystem(r.Context(), auth.ActorFrom(r.Context()), groupID, fqdn); err != nil {
		s.membershipFailed(w, r, groupID, fqdn, err, editState{systemText: fqdn})
		return
	}

	setFlash(w, flashSuccess, s.localizer(r).T(i18n.MsgOK, nil))
	http.Redirect(w, r, editURL(groupID), http.StatusSeeOther)
}

// handleRemoveUser removes a member user from a group.
func (s *Server) handleRemoveUser(w http.ResponseWriter, r *http.Request) {
	groupID, memberID, err := memberParams(r)
	if err != nil {
		s.handleError(w, r, err)
		return
	}

	user, err := s.groups.RemoveUser(r.Context(), auth.ActorFrom(r.Context()), groupID, memberID)
	if err != nil {
		s.membershipFailed(w, r, groupID, "", err, editState{})
		return
	}

	setFlash(w, flashSuccess, s.localizer(r).Name(i18n.MsgRemoved, user.DisplayName))
	http.Redirect(w, r, editURL(groupID), http.StatusSeeOther)
}

// handleRemoveSystem removes a member system from a group.
func (s *Server) handleRemoveSystem(w http.ResponseWriter, r *http.Request) {
	groupID, memberID, err := memberParams(r)
	if err != nil {
		s.handleError(w, r, err)
		return
	}

	system, err := s.groups.RemoveSystem(r.Context(), auth.ActorFrom(r.Context()), groupID, memberID)
	if err != nil {
		s.membershipFailed(w, r, groupID, "", err, editState{})
		return
	}

	setFlash(w, flashSuccess, s.localizer(r).Name(i18n.MsgRemoved, system.FQDN))
	http.Redirect(w, r, editURL(groupID), http.StatusSeeOther)
}

func memberParams(r *http.Request) (int64, int64, error) {
	groupID, err := parseID(r.FormValue("group_id"))
	if err != nil {
		return 0, 0, err
	}
	memberID, err := parseID(r.FormValue("id"))
	if err != nil {
		return 0, 0, err
	}
	return groupID, memberID, nil
}

// membershipFailed re-renders the edit page with the error, or shows the
// error page when the group itself cannot be shown.
func (s *Server) membershipFailed(w http.ResponseWriter, r *http.Request, groupID int64, name string, err error, st editState) {
	status, msg := s.errorStatus(r, err)
	if errors.Is(err, domain.ErrGroupNotFound) || status >= http.StatusInternalServerError || status == http.StatusUnauthorized {
		s.renderError(w, r, status, msg)
		return
	}
	st.flash = &FlashMessage{Type: flashError, Message: s.localizer(r).Name(msg, name)}
	s.renderEdit(w, r, status, groupID, st)
}

// handleRemove deletes a group.
func (s *Server) handleRemove(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r.PostFormValue("id"))
	if err != nil {
		s.handleError(w, r, err)
		return
	}

	group, err := s.groups.Delete(r.Context(), auth.ActorFrom(r.Context()), id)
	if err != nil {
		s.handleError(w, r, err)
		return
	}

	setFlash(w, flashSuccess, s.localizer(r).Name(i18n.MsgDeleted, group.DisplayName))
	http.Redirect(w, r, "/groups/", http.StatusSeeOther)
}

// handleGroupUsers returns a group's users as [user_id, display_name] pairs.
func (s *Server) handleGroupUsers(w http.ResponseWriter, r *http.Request) {
	groupID, err := parseID(r.URL.Query().Get("group_id"))
	if err != nil {
		s.handleJSONError(w, r, err)
		return
	}

	users, err := s.groups.GroupUsers(r.Context(), groupID)
	if err != nil {
		s.handleJSONError(w, r, err)
		return
	}

	pairs := make([][2]any, 0, len(users))
	for _, u := range users {
		pairs = append(pairs, [2]any{u.ID, u.DisplayName})
	}
	respondJSON(w, http.StatusOK, pairs)
}

// handleGroupSystems returns a group's systems as [id, fqdn] pairs.
func (s *Server) handleGroupSystems(w http.ResponseWriter, r *http.Request) {
	groupID, err := parseID(r.URL.Query().Get("group_id"))
	if err != nil {
		s.handleJSONError(w, r, err)
		return
	}

	systems, err := s.groups.GroupSystems(r.Context(), groupID)
	if err != nil {
		s.handleJSONError(w, r, err)
		return
	}

	pairs := make([][2]any, 0, len(systems))
	for _, sys := range systems {
		pairs = append(pairs, [2]any{sys.ID, sys.FQDN})
	}
	respondJSON(w, http.StatusOK, pairs)
}

// handleUsersByName feeds the user autocomplete field.
func (s *Server) handleUsersByName(w http.ResponseWriter, r *http.Request) {
	matches, err := s.groups.SearchUsers(r.Context(), r.URL.Query().Get("input"))
	if err != nil {
		s.handleJSONError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"matches": matches})
}

// handleSystemsByFQDN feeds the system autocomplete field. Private systems
// are only listed for their owner.
func (s *Server) handleSystemsByFQDN(w http.ResponseWriter, r *http.Request) {
	matches, err := s.groups.SearchSystems(r.Context(), auth.ActorFrom(r.Context()), r.URL.Query().Get("input"))
	if err != nil {
		s.handleJSONError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"matches": matches})
}
