package storage

import (
	"context"

	"github.com/bcnelson/labgroups/internal/domain"
)

// Storage defines the interface for the storage layer.
// Implementations must be safe for concurrent use.
type Storage interface {
	// Close closes the storage connection.
	Close() error

	// Users
	CreateUser(ctx context.Context, user *domain.User) error
	GetUser(ctx context.Context, id int64) (*domain.User, error)
	GetUserByName(ctx context.Context, userName string) (*domain.User, error)
	SearchUsers(ctx context.Context, prefix string, limit int) ([]*domain.User, error)

	// Systems
	CreateSystem(ctx context.Context, system *domain.System) error
	GetSystem(ctx context.Context, id int64) (*domain.System, error)
	GetSystemByFQDN(ctx context.Context, fqdn string) (*domain.System, error)
	SearchSystems(ctx context.Context, prefix string, limit int) ([]*domain.System, error)

	// Groups
	CreateGroup(ctx context.Context, group *domain.Group) error
	GetGroup(ctx context.Context, id int64) (*domain.Group, error)
	UpdateGroup(ctx context.Context, group *domain.Group) error
	// DeleteGroup removes the group together with its memberships and its
	// group activity log.
	DeleteGroup(ctx context.Context, id int64) error
	ListGroups(ctx context.Context, opts domain.ListOptions) ([]*domain.Group, int, error)
	// SearchGroupNames matches group names case-insensitively by prefix.
	SearchGroupNames(ctx context.Context, prefix string) ([]string, error)

	// Memberships
	ListGroupUsers(ctx context.Context, groupID int64) ([]*domain.User, error)
	ListGroupSystems(ctx context.Context, groupID int64) ([]*domain.System, error)
	AddGroupUser(ctx context.Context, groupID, userID int64) error
	RemoveGroupUser(ctx context.Context, groupID, userID int64) error
	AddGroupSystem(ctx context.Context, groupID, systemID int64) error
	RemoveGroupSystem(ctx context.Context, groupID, systemID int64) error

	// Activity
	CreateActivity(ctx context.Context, activity *domain.Activity) error
	ListGroupActivity(ctx context.Context, groupID int64, limit int) ([]*domain.Activity, error)
	ListSystemActivity(ctx context.Context, systemID int64, limit int) ([]*domain.Activity, error)
	ListActivity(ctx context.Context, limit int) ([]*domain.Activity, error)

	// Transaction support
	BeginTx(ctx context.Context) (Transaction, error)
}

// Transaction represents a database transaction.
type Transaction interface {
	Storage
	Commit() error
	Rollback() error
}
