package sql

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/bcnelson/labgroups/internal/domain"
	"github.com/bcnelson/labgroups/internal/storage"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pressly/goose/v3"
)

//go:embed migrations/*/*.sql
var embedMigrations embed.FS

// isUniqueViolation checks if an error is a UNIQUE constraint violation.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	// SQLite
	if strings.Contains(errStr, "UNIQUE constraint failed") {
		return true
	}
	// PostgreSQL
	if strings.Contains(errStr, "duplicate key value violates unique constraint") {
		return true
	}
	return false
}

// wrapUniqueError converts UNIQUE violations to domain.ErrAlreadyExists.
func wrapUniqueError(err error) error {
	if isUniqueViolation(err) {
		return domain.ErrAlreadyExists
	}
	return err
}

// escapeLike escapes LIKE wildcards so user input matches literally.
func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

// sqliteDSN turns on foreign key enforcement, which the cascade rules
// depend on.
func sqliteDSN(dsn string) string {
	if strings.Contains(dsn, "_foreign_keys") || strings.Contains(dsn, "_fk=") {
		return dsn
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + "_foreign_keys=on"
}

// Store implements the storage.Storage interface using SQL.
type Store struct {
	db     *sqlx.DB
	driver string
}

// New creates a new SQL store. driver is "sqlite3" or "postgres".
func New(driver, dsn string) (*Store, error) {
	if driver == "sqlite3" {
		dsn = sqliteDSN(dsn)
	}

	db, err := sqlx.Connect(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}
	if driver == "sqlite3" {
		// SQLite allows a single writer; serialise to avoid SQLITE_BUSY.
		db.SetMaxOpenConns(1)
	}

	// Run migrations
	migrations, err := fs.Sub(embedMigrations, "migrations/"+driver)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("loading migrations: %w", err)
	}
	goose.SetBaseFS(migrations)
	if err := goose.SetDialect(driver); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting goose dialect: %w", err)
	}

	if err := goose.Up(db.DB, "."); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return &Store{db: db, driver: driver}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// BeginTx starts a new transaction.
func (s *Store) BeginTx(ctx context.Context) (storage.Transaction, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return &Tx{tx: tx, driver: s.driver}, nil
}

// Tx wraps a database transaction.
type Tx struct {
	tx     *sqlx.Tx
	driver string
}

// Commit commits the transaction.
func (t *Tx) Commit() error {
	return t.tx.Commit()
}

// Rollback rolls back the transaction.
func (t *Tx) Rollback() error {
	return t.tx.Rollback()
}

// Close is a no-op for transactions (they should be committed or rolled back).
func (t *Tx) Close() error {
	return nil
}

// BeginTx is not supported within a transaction.
func (t *Tx) BeginTx(ctx context.Context) (storage.Transaction, error) {
	return nil, fmt.Errorf("nested transactions not supported")
}

// helper to get the correct database interface
type dbInterface interface {
	sqlx.ExtContext
	SelectContext(ctx context.Context, dest any, query string, args ...any) error
	GetContext(ctx context.Context, dest any, query string, args ...any) error
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ErrNotFound
	}
	return err
}

// requireRows returns domain.ErrNotFound when the statement touched nothing.
func requireRows(result sql.Result, err error) error {
	if err != nil {
		return err
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// ============================================
// Users
// ============================================

const userColumns = `user_id, user_name, display_name, email_address`

func createUser(ctx context.Context, db dbInterface, user *domain.User) error {
	err := db.GetContext(ctx, &user.ID,
		`INSERT INTO users (user_name, display_name, email_address)
		 VALUES ($1, $2, $3) RETURNING user_id`,
		user.UserName, user.DisplayName, user.EmailAddress)
	return wrapUniqueError(err)
}

func (s *Store) CreateUser(ctx context.Context, user *domain.User) error {
	return createUser(ctx, s.db, user)
}

func (t *Tx) CreateUser(ctx context.Context, user *domain.User) error {
	return createUser(ctx, t.tx, user)
}

func getUser(ctx context.Context, db dbInterface, id int64) (*domain.User, error) {
	var user domain.User
	err := db.GetContext(ctx, &user,
		`SELECT `+userColumns+` FROM users WHERE user_id = $1`, id)
	if err != nil {
		return nil, notFound(err)
	}
	return &user, nil
}

func (s *Store) GetUser(ctx context.Context, id int64) (*domain.User, error) {
	return getUser(ctx, s.db, id)
}

func (t *Tx) GetUser(ctx context.Context, id int64) (*domain.User, error) {
	return getUser(ctx, t.tx, id)
}

func getUserByName(ctx context.Context, db dbInterface, userName string) (*domain.User, error) {
	var user domain.User
	err := db.GetContext(ctx, &user,
		`SELECT `+userColumns+` FROM users WHERE user_name = $1`, userName)
	if err != nil {
		return nil, notFound(err)
	}
	return &user, nil
}

func (s *Store) GetUserByName(ctx context.Context, userName string) (*domain.User, error) {
	return getUserByName(ctx, s.db, userName)
}

func (t *Tx) GetUserByName(ctx context.Context, userName string) (*domain.User, error) {
	return getUserByName(ctx, t.tx, userName)
}

func searchUsers(ctx context.Context, db dbInterface, prefix string, limit int) ([]*domain.User, error) {
	users := []*domain.User{}
	err := db.SelectContext(ctx, &users,
		`SELECT `+userColumns+` FROM users
		 WHERE LOWER(user_name) LIKE LOWER($1) ESCAPE '\'
		 ORDER BY user_name LIMIT $2`,
		escapeLike(prefix)+"%", limit)
	return users, err
}

func (s *Store) SearchUsers(ctx context.Context, prefix string, limit int) ([]*domain.User, error) {
	return searchUsers(ctx, s.db, prefix, limit)
}

func (t *Tx) SearchUsers(ctx context.Context, prefix string, limit int) ([]*domain.User, error) {
	return searchUsers(ctx, t.tx, prefix, limit)
}

// ============================================
// Systems
// ============================================

const systemColumns = `id, fqdn, owner_id, private`

func createSystem(ctx context.Context, db dbInterface, system *domain.System) error {
	err := db.GetContext(ctx, &system.ID,
		`INSERT INTO systems (fqdn, owner_id, private) VALUES ($1, $2, $3) RETURNING id`,
		system.FQDN, system.OwnerID, system.Private)
	return wrapUniqueError(err)
}

func (s *Store) CreateSystem(ctx context.Context, system *domain.System) error {
	return createSystem(ctx, s.db, system)
}

func (t *Tx) CreateSystem(ctx context.Context, system *domain.System) error {
	return createSystem(ctx, t.tx, system)
}

func getSystem(ctx context.Context, db dbInterface, id int64) (*domain.System, error) {
	var system domain.System
	err := db.GetContext(ctx, &system,
		`SELECT `+systemColumns+` FROM systems WHERE id = $1`, id)
	if err != nil {
		return nil, notFound(err)
	}
	return &system, nil
}

func (s *Store) GetSystem(ctx context.Context, id int64) (*domain.System, error) {
	return getSystem(ctx, s.db, id)
}

func (t *Tx) GetSystem(ctx context.Context, id int64) (*domain.System, error) {
	return getSystem(ctx, t.tx, id)
}

func getSystemByFQDN(ctx context.Context, db dbInterface, fqdn string) (*domain.System, error) {
	var system domain.System
	err := db.GetContext(ctx, &system,
		`SELECT `+systemColumns+` FROM systems WHERE fqdn = $1`, fqdn)
	if err != nil {
		return nil, notFound(err)
	}
	return &system, nil
}

func (s *Store) GetSystemByFQDN(ctx context.Context, fqdn string) (*domain.System, error) {
	return getSystemByFQDN(ctx, s.db, fqdn)
}

func (t *Tx) GetSystemByFQDN(ctx context.Context, fqdn string) (*domain.System, error) {
	return getSystemByFQDN(ctx, t.tx, fqdn)
}

func searchSystems(ctx context.Context, db dbInterface, prefix string, limit int) ([]*domain.System, error) {
	systems := []*domain.System{}
	err := db.SelectContext(ctx, &systems,
		`SELECT `+systemColumns+` FROM systems
		 WHERE LOWER(fqdn) LIKE LOWER($1) ESCAPE '\'
		 ORDER BY fqdn LIMIT $2`,
		escapeLike(prefix)+"%", limit)
	return systems, err
}

func (s *Store) SearchSystems(ctx context.Context, prefix string, limit int) ([]*domain.System, error) {
	return searchSystems(ctx, s.db, prefix, limit)
}

func (t *Tx) SearchSystems(ctx context.Context, prefix string, limit int) ([]*domain.System, error) {
	return searchSystems(ctx, t.tx, prefix, limit)
}

// ============================================
// Groups
// ============================================

const groupColumns = `group_id, group_name, display_name, created`

func createGroup(ctx context.Context, db dbInterface, group *domain.Group) error {
	err := db.GetContext(ctx, &group.ID,
		`INSERT INTO groups (group_name, display_name, created)
		 VALUES ($1, $2, $3) RETURNING group_id`,
		group.GroupName, group.DisplayName, group.Created)
	return wrapUniqueError(err)
}

func (s *Store) CreateGroup(ctx context.Context, group *domain.Group) error {
	return createGroup(ctx, s.db, group)
}

func (t *Tx) CreateGroup(ctx context.Context, group *domain.Group) error {
	return createGroup(ctx, t.tx, group)
}

func getGroup(ctx context.Context, db dbInterface, id int64) (*domain.Group, error) {
	var group domain.Group
	err := db.GetContext(ctx, &group,
		`SELECT `+groupColumns+` FROM groups WHERE group_id = $1`, id)
	if err != nil {
		return nil, notFound(err)
	}
	return &group, nil
}

func (s *Store) GetGroup(ctx context.Context, id int64) (*domain.Group, error) {
	return getGroup(ctx, s.db, id)
}

func (t *Tx) GetGroup(ctx context.Context, id int64) (*domain.Group, error) {
	return getGroup(ctx, t.tx, id)
}

func updateGroup(ctx context.Context, db dbInterface, group *domain.Group) error {
	result, err := db.ExecContext(ctx,
		`UPDATE groups SET group_name = $1, display_name = $2 WHERE group_id = $3`,
		group.GroupName, group.DisplayName, group.ID)
	return requireRows(result, wrapUniqueError(err))
}

func (s *Store) UpdateGroup(ctx context.Context, group *domain.Group) error {
	return updateGroup(ctx, s.db, group)
}

func (t *Tx) UpdateGroup(ctx context.Context, group *domain.Group) error {
	return updateGroup(ctx, t.tx, group)
}

func deleteGroup(ctx context.Context, db dbInterface, id int64) error {
	// Memberships and group activity go with the row via ON DELETE CASCADE.
	result, err := db.ExecContext(ctx, `DELETE FROM groups WHERE group_id = $1`, id)
	return requireRows(result, err)
}

func (s *Store) DeleteGroup(ctx context.Context, id int64) error {
	return deleteGroup(ctx, s.db, id)
}

func (t *Tx) DeleteGroup(ctx context.Context, id int64) error {
	return deleteGroup(ctx, t.tx, id)
}

// groupOrderClause maps a whitelisted order onto an ORDER BY clause.
func groupOrderClause(order domain.GroupOrder) string {
	column, desc := domain.ParseGroupOrder(string(order)).Column()
	if desc {
		return column + " DESC, group_id"
	}
	return column + ", group_id"
}

func listGroups(ctx context.Context, db dbInterface, opts domain.ListOptions) ([]*domain.Group, int, error) {
	var total int
	if err := db.GetContext(ctx, &total, `SELECT COUNT(*) FROM groups`); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + groupColumns + ` FROM groups ORDER BY ` + groupOrderClause(opts.Order)
	var args []any
	if opts.PerPage > 0 {
		query += ` LIMIT $1 OFFSET $2`
		args = append(args, opts.PerPage, opts.Offset())
	}

	groups := []*domain.Group{}
	if err := db.SelectContext(ctx, &groups, query, args...); err != nil {
		return nil, 0, err
	}
	return groups, total, nil
}

func (s *Store) ListGroups(ctx context.Context, opts domain.ListOptions) ([]*domain.Group, int, error) {
	return listGroups(ctx, s.db, opts)
}

func (t *Tx) ListGroups(ctx context.Context, opts domain.ListOptions) ([]*domain.Group, int, error) {
	return listGroups(ctx, t.tx, opts)
}

func searchGroupNames(ctx context.Context, db dbInterface, prefix string) ([]string, error) {
	names := []string{}
	err := db.SelectContext(ctx, &names,
		`SELECT group_name FROM groups
		 WHERE LOWER(group_name) LIKE LOWER($1) ESCAPE '\'
		 ORDER BY group_name`,
		escapeLike(prefix)+"%")
	return names, err
}

func (s *Store) SearchGroupNames(ctx context.Context, prefix string) ([]string, error) {
	return searchGroupNames(ctx, s.db, prefix)
}

func (t *Tx) SearchGroupNames(ctx context.Context, prefix string) ([]string, error) {
	return searchGroupNames(ctx, t.tx, prefix)
}

// ============================================
// Memberships
// ============================================

func listGroupUsers(ctx context.Context, db dbInterface, groupID int64) ([]*domain.User, error) {
	users := []*domain.User{}
	err := db.SelectContext(ctx, &users,
		`SELECT u.user_id, u.user_name, u.display_name, u.email_address
		 FROM users u JOIN user_group ug ON ug.user_id = u.user_id
		 WHERE ug.group_id = $1 ORDER BY u.user_name`, groupID)
	return users, err
}

func (s *Store) ListGroupUsers(ctx context.Context, groupID int64) ([]*domain.User, error) {
	return listGroupUsers(ctx, s.db, groupID)
}

func (t *Tx) ListGroupUsers(ctx context.Context, groupID int64) ([]*domain.User, error) {
	return listGroupUsers(ctx, t.tx, groupID)
}

func listGroupSystems(ctx context.Context, db dbInterface, groupID int64) ([]*domain.System, error) {
	systems := []*domain.System{}
	err := db.SelectContext(ctx, &systems,
		`SELECT s.id, s.fqdn, s.owner_id, s.private
		 FROM systems s JOIN system_group sg ON sg.system_id = s.id
		 WHERE sg.group_id = $1 ORDER BY s.fqdn`, groupID)
	return systems, err
}

func (s *Store) ListGroupSystems(ctx context.Context, groupID int64) ([]*domain.System, error) {
	return listGroupSystems(ctx, s.db, groupID)
}

func (t *Tx) ListGroupSystems(ctx context.Context, groupID int64) ([]*domain.System, error) {
	return listGroupSystems(ctx, t.tx, groupID)
}

func addGroupUser(ctx context.Context, db dbInterface, groupID, userID int64) error {
	_, err := db.ExecContext(ctx,
		`INSERT INTO user_group (user_id, group_id) VALUES ($1, $2)`, userID, groupID)
	return wrapUniqueError(err)
}

func (s *Store) AddGroupUser(ctx context.Context, groupID, userID int64) error {
	return addGroupUser(ctx, s.db, groupID, userID)
}

func (t *Tx) AddGroupUser(ctx context.Context, groupID, userID int64) error {
	return addGroupUser(ctx, t.tx, groupID, userID)
}

func removeGroupUser(ctx context.Context, db dbInterface, groupID, userID int64) error {
	result, err := db.ExecContext(ctx,
		`DELETE FROM user_group WHERE user_id = $1 AND group_id = $2`, userID, groupID)
	return requireRows(result, err)
}

func (s *Store) RemoveGroupUser(ctx context.Context, groupID, userID int64) error {
	return removeGroupUser(ctx, s.db, groupID, userID)
}

func (t *Tx) RemoveGroupUser(ctx context.Context, groupID, userID int64) error {
	return removeGroupUser(ctx, t.tx, groupID, userID)
}

func addGroupSystem(ctx context.Context, db dbInterface, groupID, systemID int64) error {
	_, err := db.ExecContext(ctx,
		`INSERT INTO system_group (system_id, group_id) VALUES ($1, $2)`, systemID, groupID)
	return wrapUniqueError(err)
}

func (s *Store) AddGroupSystem(ctx context.Context, groupID, systemID int64) error {
	return addGroupSystem(ctx, s.db, groupID, systemID)
}

func (t *Tx) AddGroupSystem(ctx context.Context, groupID, systemID int64) error {
	return addGroupSystem(ctx, t.tx, groupID, systemID)
}

func removeGroupSystem(ctx context.Context, db dbInterface, groupID, systemID int64) error {
	result, err := db.ExecContext(ctx,
		`DELETE FROM system_group WHERE system_id = $1 AND group_id = $2`, systemID, groupID)
	return requireRows(result, err)
}

func (s *Store) RemoveGroupSystem(ctx context.Context, groupID, systemID int64) error {
	return removeGroupSystem(ctx, s.db, groupID, systemID)
}

func (t *Tx) RemoveGroupSystem(ctx context.Context, groupID, systemID int64) error {
	return removeGroupSystem(ctx, t.tx, groupID, systemID)
}

// ============================================
// Activity
// ============================================

const activityColumns = `id, type, user_id, service, action, field_name, old_value, new_value, group_id, system_id, created`

func createActivity(ctx context.Context, db dbInterface, a *domain.Activity) error {
	return db.GetContext(ctx, &a.ID,
		`INSERT INTO activity (type, user_id, service, action, field_name, old_value, new_value, group_id, system_id, created)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10) RETURNING id`,
		a.Type, a.UserID, a.Service, a.Action, a.FieldName, a.OldValue, a.NewValue, a.GroupID, a.SystemID, a.Created)
}

func (s *Store) CreateActivity(ctx context.Context, activity *domain.Activity) error {
	return createActivity(ctx, s.db, activity)
}

func (t *Tx) CreateActivity(ctx context.Context, activity *domain.Activity) error {
	return createActivity(ctx, t.tx, activity)
}

// selectActivity runs an activity query, newest first. limit <= 0 means all.
func selectActivity(ctx context.Context, db dbInterface, where string, limit int, args ...any) ([]*domain.Activity, error) {
	query := `SELECT ` + activityColumns + ` FROM activity`
	if where != "" {
		query += ` WHERE ` + where
	}
	query += ` ORDER BY id DESC`
	if limit > 0 {
		args = append(args, limit)
		query += fmt.Sprintf(` LIMIT $%d`, len(args))
	}

	activity := []*domain.Activity{}
	err := db.SelectContext(ctx, &activity, query, args...)
	return activity, err
}

func (s *Store) ListGroupActivity(ctx context.Context, groupID int64, limit int) ([]*domain.Activity, error) {
	return selectActivity(ctx, s.db, `group_id = $1`, limit, groupID)
}

func (t *Tx) ListGroupActivity(ctx context.Context, groupID int64, limit int) ([]*domain.Activity, error) {
	return selectActivity(ctx, t.tx, `group_id = $1`, limit, groupID)
}

func (s *Store) ListSystemActivity(ctx context.Context, systemID int64, limit int) ([]*domain.Activity, error) {
	return selectActivity(ctx, s.db, `system_id = $1`, limit, systemID)
}

func (t *Tx) ListSystemActivity(ctx context.Context, systemID int64, limit int) ([]*domain.Activity, error) {
	return selectActivity(ctx, t.tx, `system_id = $1`, limit, systemID)
}

func (s *Store) ListActivity(ctx context.Context, limit int) ([]*domain.Activity, error) {
	return selectActivity(ctx, s.db, "", limit)
}

func (t *Tx) ListActivity(ctx context.Context, limit int) ([]*domain.Activity, error) {
	return selectActivity(ctx, t.tx, "", limit)
}
