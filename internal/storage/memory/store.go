package memory

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/bcnelson/labgroups/internal/domain"
	"github.com/bcnelson/labgroups/internal/storage"
)

type membership struct {
	groupID  int64
	memberID int64
}

// Store is an in-memory implementation of the storage interface for testing.
type Store struct {
	mu sync.RWMutex

	nextID int64

	users        map[int64]*domain.User
	systems      map[int64]*domain.System
	groups       map[int64]*domain.Group
	groupUsers   map[membership]struct{}
	groupSystems map[membership]struct{}
	activity     []*domain.Activity
}

// New creates a new in-memory store.
func New() *Store {
	return &Store{
		users:        make(map[int64]*domain.User),
		systems:      make(map[int64]*domain.System),
		groups:       make(map[int64]*domain.Group),
		groupUsers:   make(map[membership]struct{}),
		groupSystems: make(map[membership]struct{}),
	}
}

func (s *Store) Close() error { return nil }

func (s *Store) BeginTx(ctx context.Context) (storage.Transaction, error) {
	return &Tx{Store: s}, nil
}

// Tx is a pass-through transaction: writes apply immediately and Rollback
// does not undo them.
type Tx struct {
	*Store
}

func (t *Tx) Commit() error   { return nil }
func (t *Tx) Rollback() error { return nil }
func (t *Tx) Close() error    { return nil }
func (t *Tx) BeginTx(ctx context.Context) (storage.Transaction, error) {
	return nil, domain.ErrInvalidInput
}

func (s *Store) id() int64 {
	s.nextID++
	return s.nextID
}

func hasPrefixFold(s, prefix string) bool {
	return strings.HasPrefix(strings.ToLower(s), strings.ToLower(prefix))
}

func limitSlice[T any](items []T, limit int) []T {
	if limit > 0 && len(items) > limit {
		return items[:limit]
	}
	return items
}

// ============================================
// Users
// ============================================

func (s *Store) CreateUser(ctx context.Context, user *domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, u := range s.users {
		if u.UserName == user.UserName {
			return domain.ErrAlreadyExists
		}
	}
	user.ID = s.id()
	stored := *user
	s.users[user.ID] = &stored
	return nil
}

func (s *Store) GetUser(ctx context.Context, id int64) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	c := *u
	return &c, nil
}

func (s *Store) GetUserByName(ctx context.Context, userName string) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, u := range s.users {
		if u.UserName == userName {
			c := *u
			return &c, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (s *Store) SearchUsers(ctx context.Context, prefix string, limit int) ([]*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.User
	for _, u := range s.users {
		if hasPrefixFold(u.UserName, prefix) {
			c := *u
			result = append(result, &c)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].UserName < result[j].UserName })
	return limitSlice(result, limit), nil
}

// ============================================
// Systems
// ============================================

func (s *Store) CreateSystem(ctx context.Context, system *domain.System) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, sys := range s.systems {
		if sys.FQDN == system.FQDN {
			return domain.ErrAlreadyExists
		}
	}
	system.ID = s.id()
	stored := *system
	s.systems[system.ID] = &stored
	return nil
}

func (s *Store) GetSystem(ctx context.Context, id int64) (*domain.System, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sys, ok := s.systems[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	c := *sys
	return &c, nil
}

func (s *Store) GetSystemByFQDN(ctx context.Context, fqdn string) (*domain.System, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, sys := range s.systems {
		if sys.FQDN == fqdn {
			c := *sys
			return &c, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (s *Store) SearchSystems(ctx context.Context, prefix string, limit int) ([]*domain.System, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.System
	for _, sys := range s.systems {
		if hasPrefixFold(sys.FQDN, prefix) {
			c := *sys
			result = append(result, &c)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].FQDN < result[j].FQDN })
	return limitSlice(result, limit), nil
}

// ============================================
// Groups
// ============================================

func (s *Store) groupNameTaken(name string, exceptID int64) bool {
	for _, g := range s.groups {
		if g.GroupName == name && g.ID != exceptID {
			return true
		}
	}
	return false
}

func (s *Store) CreateGroup(ctx context.Context, group *domain.Group) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.groupNameTaken(group.GroupName, 0) {
		return domain.ErrAlreadyExists
	}
	group.ID = s.id()
	stored := *group
	s.groups[group.ID] = &stored
	return nil
}

func (s *Store) GetGroup(ctx context.Context, id int64) (*domain.Group, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	g, ok := s.groups[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	c := *g
	return &c, nil
}

func (s *Store) UpdateGroup(ctx context.Context, group *domain.Group) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.groups[group.ID]
	if !ok {
		return domain.ErrNotFound
	}
	if s.groupNameTaken(group.GroupName, group.ID) {
		return domain.ErrAlreadyExists
	}
	existing.GroupName = group.GroupName
	existing.DisplayName = group.DisplayName
	return nil
}

func (s *Store) DeleteGroup(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.groups[id]; !ok {
		return domain.ErrNotFound
	}
	delete(s.groups, id)

	// Mirror the ON DELETE CASCADE rules of the SQL schema.
	for m := range s.groupUsers {
		if m.groupID == id {
			delete(s.groupUsers, m)
		}
	}
	for m := range s.groupSystems {
		if m.groupID == id {
			delete(s.groupSystems, m)
		}
	}
	kept := s.activity[:0]
	for _, a := range s.activity {
		if a.GroupID.Valid && a.GroupID.Int64 == id {
			continue
		}
		kept = append(kept, a)
	}
	s.activity = kept
	return nil
}

func (s *Store) ListGroups(ctx context.Context, opts domain.ListOptions) ([]*domain.Group, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	groups := make([]*domain.Group, 0, len(s.groups))
	for _, g := range s.groups {
		c := *g
		groups = append(groups, &c)
	}

	column, desc := opts.Order.Column()
	sort.Slice(groups, func(i, j int) bool {
		a, b := groups[i].GroupName, groups[j].GroupName
		if column == "display_name" {
			a, b = groups[i].DisplayName, groups[j].DisplayName
		}
		if a == b {
			return groups[i].ID < groups[j].ID
		}
		if desc {
			return a > b
		}
		return a < b
	})

	total := len(groups)
	offset := opts.Offset()
	if offset >= total {
		return []*domain.Group{}, total, nil
	}
	groups = groups[offset:]
	return limitSlice(groups, opts.PerPage), total, nil
}

func (s *Store) SearchGroupNames(ctx context.Context, prefix string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := []string{}
	for _, g := range s.groups {
		if hasPrefixFold(g.GroupName, prefix) {
			names = append(names, g.GroupName)
		}
	}
	sort.Strings(names)
	return names, nil
}

// ============================================
// Memberships
// ============================================

func (s *Store) ListGroupUsers(ctx context.Context, groupID int64) ([]*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := []*domain.User{}
	for m := range s.groupUsers {
		if m.groupID != groupID {
			continue
		}
		if u, ok := s.users[m.memberID]; ok {
			c := *u
			users = append(users, &c)
		}
	}
	sort.Slice(users, func(i, j int) bool { return users[i].UserName < users[j].UserName })
	return users, nil
}

func (s *Store) ListGroupSystems(ctx context.Context, groupID int64) ([]*domain.System, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	systems := []*domain.System{}
	for m := range s.groupSystems {
		if m.groupID != groupID {
			continue
		}
		if sys, ok := s.systems[m.memberID]; ok {
			c := *sys
			systems = append(systems, &c)
		}
	}
	sort.Slice(systems, func(i, j int) bool { return systems[i].FQDN < systems[j].FQDN })
	return systems, nil
}

func (s *Store) AddGroupUser(ctx context.Context, groupID, userID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.groups[groupID]; !ok {
		return domain.ErrNotFound
	}
	if _, ok := s.users[userID]; !ok {
		return domain.ErrNotFound
	}
	m := membership{groupID: groupID, memberID: userID}
	if _, ok := s.groupUsers[m]; ok {
		return domain.ErrAlreadyExists
	}
	s.groupUsers[m] = struct{}{}
	return nil
}

func (s *Store) RemoveGroupUser(ctx context.Context, groupID, userID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m := membership{groupID: groupID, memberID: userID}
	if _, ok := s.groupUsers[m]; !ok {
		return domain.ErrNotFound
	}
	delete(s.groupUsers, m)
	return nil
}

func (s *Store) AddGroupSystem(ctx context.Context, groupID, systemID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.groups[groupID]; !ok {
		return domain.ErrNotFound
	}
	if _, ok := s.systems[systemID]; !ok {
		return domain.ErrNotFound
	}
	m := membership{groupID: groupID, memberID: systemID}
	if _, ok := s.groupSystems[m]; ok {
		return domain.ErrAlreadyExists
	}
	s.groupSystems[m] = struct{}{}
	return nil
}

func (s *Store) RemoveGroupSystem(ctx context.Context, groupID, systemID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m := membership{groupID: groupID, memberID: systemID}
	if _, ok := s.groupSystems[m]; !ok {
		return domain.ErrNotFound
	}
	delete(s.groupSystems, m)
	return nil
}

// ============================================
// Activity
// ============================================

func (s *Store) CreateActivity(ctx context.Context, activity *domain.Activity) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	activity.ID = s.id()
	stored := *activity
	s.activity = append(s.activity, &stored)
	return nil
}

// listActivity returns matching records newest first.
func (s *Store) listActivity(limit int, match func(*domain.Activity) bool) []*domain.Activity {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := []*domain.Activity{}
	for i := len(s.activity) - 1; i >= 0; i-- {
		a := s.activity[i]
		if !match(a) {
			continue
		}
		c := *a
		result = append(result, &c)
		if limit > 0 && len(result) == limit {
			break
		}
	}
	return result
}

func (s *Store) ListGroupActivity(ctx context.Context, groupID int64, limit int) ([]*domain.Activity, error) {
	return s.listActivity(limit, func(a *domain.Activity) bool {
		return a.GroupID.Valid && a.GroupID.Int64 == groupID
	}), nil
}

func (s *Store) ListSystemActivity(ctx context.Context, systemID int64, limit int) ([]*domain.Activity, error) {
	return s.listActivity(limit, func(a *domain.Activity) bool {
		return a.SystemID.Valid && a.SystemID.Int64 == systemID
	}), nil
}

func (s *Store) ListActivity(ctx context.Context, limit int) ([]*domain.Activity, error) {
	return s.listActivity(limit, func(*domain.Activity) bool { return true }), nil
}
