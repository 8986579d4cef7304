package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/bcnelson/labgroups/internal/storage/sql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func executeCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestSeedCommand(t *testing.T) {
	dir := t.TempDir()
	dsn := filepath.Join(dir, "seed.db")
	t.Setenv("DB_DRIVER", "sqlite3")
	t.Setenv("DB_DSN", dsn)
	t.Setenv("LOG_LEVEL", "error")

	file := filepath.Join(dir, "fixture.yaml")
	require.NoError(t, os.WriteFile(file, []byte(`
users:
  - user_name: carol
    display_name: Carol
systems:
  - fqdn: lab9.example.com
    owner: carol
`), 0o600))

	out, err := executeCommand(t, "--file", file)
	if err != nil && strings.Contains(err.Error(), "cgo") {
		t.Skipf("sqlite3 driver unavailable: %v", err)
	}
	require.NoError(t, err)
	assert.Contains(t, out, "users: 1 created, 0 skipped")
	assert.Contains(t, out, "systems: 1 created, 0 skipped")

	out, err = executeCommand(t, "-f", file)
	require.NoError(t, err)
	assert.Contains(t, out, "users: 0 created, 1 skipped")

	store, err := sql.New("sqlite3", dsn)
	require.NoError(t, err)
	defer store.Close()
	sys, err := store.GetSystemByFQDN(context.Background(), "lab9.example.com")
	require.NoError(t, err)
	assert.True(t, sys.OwnerID.Valid)
}

func TestSeedCommandMissingFile(t *testing.T) {
	_, err := executeCommand(t, "--file", filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestSeedCommandRejectsArgs(t *testing.T) {
	_, err := executeCommand(t, "extra")
	require.Error(t, err)
}
