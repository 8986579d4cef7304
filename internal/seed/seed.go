// Package seed loads users and systems from a YAML fixture. Group management
// only references these records, so a fresh database needs them before the
// UI is useful.
package seed

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"

	"github.com/bcnelson/labgroups/internal/domain"
	"github.com/bcnelson/labgroups/internal/storage"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// Fixture is the on-disk seed format.
type Fixture struct {
	Users   []UserFixture   `yaml:"users"`
	Systems []SystemFixture `yaml:"systems"`
}

// UserFixture describes one user.
type UserFixture struct {
	UserName     string `yaml:"user_name"`
	DisplayName  string `yaml:"display_name"`
	EmailAddress string `yaml:"email_address"`
}

// SystemFixture describes one system. Owner names a user by user_name.
type SystemFixture struct {
	FQDN    string `yaml:"fqdn"`
	Owner   string `yaml:"owner"`
	Private bool   `yaml:"private"`
}

// Result counts what Apply did.
type Result struct {
	UsersCreated   int
	UsersSkipped   int
	SystemsCreated int
	SystemsSkipped int
}

// Decode reads a fixture and rejects entries without their key field.
func Decode(r io.Reader) (*Fixture, error) {
	var f Fixture
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decode fixture: %w", err)
	}

	for i, u := range f.Users {
		if u.UserName == "" {
			return nil, fmt.Errorf("users[%d]: user_name is required", i)
		}
	}
	for i, s := range f.Systems {
		if s.FQDN == "" {
			return nil, fmt.Errorf("systems[%d]: fqdn is required", i)
		}
		if s.Private && s.Owner == "" {
			return nil, fmt.Errorf("systems[%d]: private system %s needs an owner", i, s.FQDN)
		}
	}
	return &f, nil
}

// Apply writes the fixture in one transaction. Users and systems whose key
// already exists are skipped, not updated.
func Apply(ctx context.Context, store storage.Storage, f *Fixture, log *zap.Logger) (Result, error) {
	var res Result

	tx, err := store.BeginTx(ctx)
	if err != nil {
		return res, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, uf := range f.Users {
		u := &domain.User{
			UserName:     uf.UserName,
			DisplayName:  uf.DisplayName,
			EmailAddress: uf.EmailAddress,
		}
		exists, err := found(tx.GetUserByName(ctx, uf.UserName))
		if err != nil {
			return res, fmt.Errorf("look up user %s: %w", uf.UserName, err)
		}
		if exists {
			res.UsersSkipped++
			log.Debug("user exists", zap.String("user_name", uf.UserName))
			continue
		}
		if err := tx.CreateUser(ctx, u); err != nil {
			return res, fmt.Errorf("create user %s: %w", uf.UserName, err)
		}
		res.UsersCreated++
	}

	for _, sf := range f.Systems {
		exists, err := found(tx.GetSystemByFQDN(ctx, sf.FQDN))
		if err != nil {
			return res, fmt.Errorf("look up system %s: %w", sf.FQDN, err)
		}
		if exists {
			res.SystemsSkipped++
			log.Debug("system exists", zap.String("fqdn", sf.FQDN))
			continue
		}

		sys := &domain.System{FQDN: sf.FQDN, Private: sf.Private}
		if sf.Owner != "" {
			owner, err := tx.GetUserByName(ctx, sf.Owner)
			if err != nil {
				return res, fmt.Errorf("system %s owner %s: %w", sf.FQDN, sf.Owner, err)
			}
			sys.OwnerID = sql.NullInt64{Int64: owner.ID, Valid: true}
		}
		if err := tx.CreateSystem(ctx, sys); err != nil {
			return res, fmt.Errorf("create system %s: %w", sf.FQDN, err)
		}
		res.SystemsCreated++
	}

	if err := tx.Commit(); err != nil {
		return res, fmt.Errorf("commit: %w", err)
	}

	log.Info("seed applied",
		zap.Int("users_created", res.UsersCreated),
		zap.Int("users_skipped", res.UsersSkipped),
		zap.Int("systems_created", res.SystemsCreated),
		zap.Int("systems_skipped", res.SystemsSkipped),
	)
	return res, nil
}

// found turns a lookup result into an existence check.
func found[T any](_ T, err error) (bool, error) {
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, domain.ErrNotFound):
		return false, nil
	default:
		return false, err
	}
}
