package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bcnelson/labgroups/internal/domain"
	"github.com/bcnelson/labgroups/internal/logger"
	"github.com/bcnelson/labgroups/internal/storage"
	"github.com/bcnelson/labgroups/internal/validation"
	"go.uber.org/zap"
)

const (
	// SearchLimit caps autocomplete results.
	SearchLimit = 20
	// HistoryLimit caps the activity shown on the edit page.
	HistoryLimit = 50
)

// HistoryEntry is a group activity record with the acting user's name.
type HistoryEntry struct {
	*domain.Activity
	UserName string
}

// GroupService implements group management. Each mutation runs in a single
// storage transaction together with its activity records.
type GroupService struct {
	store     storage.Storage
	validator *validation.Validator
	log       *zap.Logger
	pageSize  int
}

// NewGroupService creates a new GroupService.
func NewGroupService(store storage.Storage, validator *validation.Validator, log *zap.Logger, pageSize int) *GroupService {
	if pageSize < 1 {
		pageSize = 20
	}
	return &GroupService{
		store:     store,
		validator: validator,
		log:       log,
		pageSize:  pageSize,
	}
}

// PageSize returns the default number of groups per page.
func (s *GroupService) PageSize() int {
	return s.pageSize
}

// SearchByName returns group names starting with prefix.
func (s *GroupService) SearchByName(ctx context.Context, prefix string) ([]string, error) {
	names, err := s.store.SearchGroupNames(ctx, prefix)
	if err != nil {
		return nil, fmt.Errorf("search group names: %w", err)
	}
	if names == nil {
		names = []string{}
	}
	return names, nil
}

// Get returns the group with the given id.
func (s *GroupService) Get(ctx context.Context, id int64) (*domain.Group, error) {
	return getGroup(ctx, s.store, id)
}

func getGroup(ctx context.Context, store storage.Storage, id int64) (*domain.Group, error) {
	group, err := store.GetGroup(ctx, id)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, domain.ErrGroupNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get group %d: %w", id, err)
	}
	return group, nil
}

// Validate normalizes and validates a submitted form without saving it.
func (s *GroupService) Validate(form domain.GroupForm) (domain.GroupForm, error) {
	return s.validator.GroupForm(form)
}

// Save creates a group when form has no id and updates it otherwise. Only
// creation is recorded in the activity log.
func (s *GroupService) Save(ctx context.Context, actor *domain.User, form domain.GroupForm) (*domain.Group, error) {
	if actor == nil {
		return nil, domain.ErrUnauthorized
	}
	form, err := s.validator.GroupForm(form)
	if err != nil {
		return nil, err
	}

	tx, err := s.store.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var group *domain.Group
	if form.IsNew() {
		group = &domain.Group{
			GroupName:   form.GroupName,
			DisplayName: form.DisplayName,
			Created:     time.Now().UTC(),
		}
		if err := tx.CreateGroup(ctx, group); err != nil {
			return nil, fmt.Errorf("create group: %w", err)
		}
		if err := tx.CreateActivity(ctx, domain.NewActivity(actor, domain.ActionAdded, "Group", "", group.DisplayName)); err != nil {
			return nil, fmt.Errorf("record activity: %w", err)
		}
	} else {
		group, err = getGroup(ctx, tx, form.ID)
		if err != nil {
			return nil, err
		}
		group.GroupName = form.GroupName
		group.DisplayName = form.DisplayName
		if err := tx.UpdateGroup(ctx, group); err != nil {
			return nil, fmt.Errorf("update group: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	s.log.Info("group saved",
		zap.Int64("group_id", group.ID),
		zap.String("group_name", group.GroupName),
		zap.Bool("created", form.IsNew()),
		logger.Actor(actor.UserName),
	)
	return group, nil
}

// AddUser adds the user named userName to the group.
func (s *GroupService) AddUser(ctx context.Context, actor *domain.User, groupID int64, userName string) (*domain.User, error) {
	if actor == nil {
		return nil, domain.ErrUnauthorized
	}

	tx, err := s.store.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	group, err := getGroup(ctx, tx, groupID)
	if err != nil {
		return nil, err
	}
	user, err := tx.GetUserByName(ctx, userName)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, domain.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user %q: %w", userName, err)
	}

	if err := tx.AddGroupUser(ctx, group.ID, user.ID); err != nil {
		return nil, membershipError(err)
	}
	if err := tx.CreateActivity(ctx, domain.NewGroupActivity(actor, group.ID, domain.ActionAdded, "User", "", user.UserName)); err != nil {
		return nil, fmt.Errorf("record activity: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	s.log.Info("user added to group",
		zap.Int64("group_id", group.ID),
		zap.String("user_name", user.UserName),
		logger.Actor(actor.UserName),
	)
	return user, nil
}

// AddSystem adds the system with the given fqdn to the group. Private systems
// can only be added by their owner.
func (s *GroupService) AddSystem(ctx context.Context, actor *domain.User, groupID int64, fqdn string) (*domain.System, error) {
	if actor == nil {
		return nil, domain.ErrUnauthorized
	}

	tx, err := s.store.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	group, err := getGroup(ctx, tx, groupID)
	if err != nil {
		return nil, err
	}
	system, err := tx.GetSystemByFQDN(ctx, fqdn)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, domain.ErrSystemNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get system %q: %w", fqdn, err)
	}
	if !system.VisibleTo(actor) {
		return nil, domain.ErrSystemNotFound
	}

	if err := tx.AddGroupSystem(ctx, group.ID, system.ID); err != nil {
		return nil, membershipError(err)
	}
	if err := tx.CreateActivity(ctx, domain.NewGroupActivity(actor, group.ID, domain.ActionAdded, "System", "", system.FQDN)); err != nil {
		return nil, fmt.Errorf("record group activity: %w", err)
	}
	if err := tx.CreateActivity(ctx, domain.NewSystemActivity(actor, system.ID, domain.ActionAdded, "Group", "", group.DisplayName)); err != nil {
		return nil, fmt.Errorf("record system activity: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	s.log.Info("system added to group",
		zap.Int64("group_id", group.ID),
		zap.String("fqdn", system.FQDN),
		logger.Actor(actor.UserName),
	)
	return system, nil
}

// RemoveUser removes a member user from the group. Removing a user that is not
// a member returns domain.ErrMemberNotFound.
func (s *GroupService) RemoveUser(ctx context.Context, actor *domain.User, groupID, userID int64) (*domain.User, error) {
	if actor == nil {
		return nil, domain.ErrUnauthorized
	}

	tx, err := s.store.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	group, err := getGroup(ctx, tx, groupID)
	if err != nil {
		return nil, err
	}
	user, err := tx.GetUser(ctx, userID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, domain.ErrMemberNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user %d: %w", userID, err)
	}

	if err := tx.RemoveGroupUser(ctx, group.ID, user.ID); err != nil {
		return nil, membershipError(err)
	}
	if err := tx.CreateActivity(ctx, domain.NewGroupActivity(actor, group.ID, domain.ActionRemoved, "User", user.UserName, "")); err != nil {
		return nil, fmt.Errorf("record activity: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	s.log.Info("user removed from group",
		zap.Int64("group_id", group.ID),
		zap.String("user_name", user.UserName),
		logger.Actor(actor.UserName),
	)
	return user, nil
}

// RemoveSystem removes a member system from the group. Removing a system that
// is not a member returns domain.ErrMemberNotFound.
func (s *GroupService) RemoveSystem(ctx context.Context, actor *domain.User, groupID, systemID int64) (*domain.System, error) {
	if actor == nil {
		return nil, domain.ErrUnauthorized
	}

	tx, err := s.store.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	group, err := getGroup(ctx, tx, groupID)
	if err != nil {
		return nil, err
	}
	system, err := tx.GetSystem(ctx, systemID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, domain.ErrMemberNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get system %d: %w", systemID, err)
	}

	if err := tx.RemoveGroupSystem(ctx, group.ID, system.ID); err != nil {
		return nil, membershipError(err)
	}
	if err := tx.CreateActivity(ctx, domain.NewGroupActivity(actor, group.ID, domain.ActionRemoved, "System", system.FQDN, "")); err != nil {
		return nil, fmt.Errorf("record group activity: %w", err)
	}
	if err := tx.CreateActivity(ctx, domain.NewSystemActivity(actor, system.ID, domain.ActionRemoved, "Group", group.DisplayName, "")); err != nil {
		return nil, fmt.Errorf("record system activity: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	s.log.Info("system removed from group",
		zap.Int64("group_id", group.ID),
		zap.String("fqdn", system.FQDN),
		logger.Actor(actor.UserName),
	)
	return system, nil
}

// Delete removes the group with its memberships and group history, and
// records the deletion.
func (s *GroupService) Delete(ctx context.Context, actor *domain.User, id int64) (*domain.Group, error) {
	if actor == nil {
		return nil, domain.ErrUnauthorized
	}

	tx, err := s.store.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	group, err := getGroup(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if err := tx.DeleteGroup(ctx, group.ID); err != nil {
		return nil, fmt.Errorf("delete group: %w", err)
	}
	if err := tx.CreateActivity(ctx, domain.NewActivity(actor, domain.ActionRemoved, "Group", group.DisplayName, "")); err != nil {
		return nil, fmt.Errorf("record activity: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	s.log.Info("group deleted",
		zap.Int64("group_id", group.ID),
		zap.String("group_name", group.GroupName),
		logger.Actor(actor.UserName),
	)
	return group, nil
}

// List returns one page of groups. Page and PerPage default to the first page
// of the configured size.
func (s *GroupService) List(ctx context.Context, opts domain.ListOptions) (*domain.GroupPage, error) {
	if opts.Page < 1 {
		opts.Page = 1
	}
	if opts.PerPage < 1 {
		opts.PerPage = s.pageSize
	}
	opts.Order = domain.ParseGroupOrder(string(opts.Order))

	groups, total, err := s.store.ListGroups(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("list groups: %w", err)
	}
	return &domain.GroupPage{
		Groups:  groups,
		Total:   total,
		Page:    opts.Page,
		PerPage: opts.PerPage,
		Order:   opts.Order,
	}, nil
}

// GroupUsers returns the member users of a group.
func (s *GroupService) GroupUsers(ctx context.Context, groupID int64) ([]*domain.User, error) {
	if _, err := getGroup(ctx, s.store, groupID); err != nil {
		return nil, err
	}
	users, err := s.store.ListGroupUsers(ctx, groupID)
	if err != nil {
		return nil, fmt.Errorf("list group users: %w", err)
	}
	return users, nil
}

// GroupSystems returns the member systems of a group.
func (s *GroupService) GroupSystems(ctx context.Context, groupID int64) ([]*domain.System, error) {
	if _, err := getGroup(ctx, s.store, groupID); err != nil {
		return nil, err
	}
	systems, err := s.store.ListGroupSystems(ctx, groupID)
	if err != nil {
		return nil, fmt.Errorf("list group systems: %w", err)
	}
	return systems, nil
}

// GroupHistory returns the most recent activity of a group, newest first.
func (s *GroupService) GroupHistory(ctx context.Context, groupID int64) ([]HistoryEntry, error) {
	activity, err := s.store.ListGroupActivity(ctx, groupID, HistoryLimit)
	if err != nil {
		return nil, fmt.Errorf("list group activity: %w", err)
	}

	names := make(map[int64]string)
	entries := make([]HistoryEntry, 0, len(activity))
	for _, a := range activity {
		name, ok := names[a.UserID]
		if !ok {
			if u, err := s.store.GetUser(ctx, a.UserID); err == nil {
				name = u.UserName
			}
			names[a.UserID] = name
		}
		entries = append(entries, HistoryEntry{Activity: a, UserName: name})
	}
	return entries, nil
}

// SearchUsers returns user names starting with prefix.
func (s *GroupService) SearchUsers(ctx context.Context, prefix string) ([]string, error) {
	users, err := s.store.SearchUsers(ctx, prefix, SearchLimit)
	if err != nil {
		return nil, fmt.Errorf("search users: %w", err)
	}
	matches := make([]string, 0, len(users))
	for _, u := range users {
		matches = append(matches, u.UserName)
	}
	return matches, nil
}

// SearchSystems returns the fqdns starting with prefix that actor may see.
// A nil actor sees only public systems.
func (s *GroupService) SearchSystems(ctx context.Context, actor *domain.User, prefix string) ([]string, error) {
	systems, err := s.store.SearchSystems(ctx, prefix, SearchLimit)
	if err != nil {
		return nil, fmt.Errorf("search systems: %w", err)
	}
	matches := make([]string, 0, len(systems))
	for _, sys := range systems {
		if sys.VisibleTo(actor) {
			matches = append(matches, sys.FQDN)
		}
	}
	return matches, nil
}

// ResolveUser looks up the acting user by name.
func (s *GroupService) ResolveUser(ctx context.Context, userName string) (*domain.User, error) {
	user, err := s.store.GetUserByName(ctx, userName)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, domain.ErrUserNotFound
	}
	return user, err
}

func membershipError(err error) error {
	switch {
	case errors.Is(err, domain.ErrAlreadyExists):
		return domain.ErrAlreadyMember
	case errors.Is(err, domain.ErrNotFound):
		return domain.ErrMemberNotFound
	default:
		return fmt.Errorf("update membership: %w", err)
	}
}
