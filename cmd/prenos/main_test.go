package main

import (
	"bytes"
	"context"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/erazemk/prenos/internal/auth"
	"github.com/erazemk/prenos/internal/model"
	"github.com/erazemk/prenos/internal/store"
)

func TestLevelRouter(t *testing.T) {
	var stdout, stderr bytes.Buffer
	logger := slog.New(newLevelRouter(&stdout, &stderr)).With("component", "test")

	logger.Debug("hidden")
	logger.Info("queued", "transfer", 1)
	logger.Warn("retrying")
	logger.Error("failed")

	assert.Contains(t, stdout.String(), "queued")
	assert.Contains(t, stdout.String(), "retrying")
	assert.Contains(t, stdout.String(), "component=test")
	assert.NotContains(t, stdout.String(), "failed")
	assert.NotContains(t, stdout.String(), "hidden")
	assert.Contains(t, stderr.String(), "failed")
	assert.Equal(t, 1, strings.Count(stderr.String(), "\n"))
}

func TestGeneratePassword(t *testing.T) {
	a, err := generatePassword(16)
	require.NoError(t, err)
	b, err := generatePassword(16)
	require.NoError(t, err)

	assert.Len(t, a, 16)
	assert.NotEqual(t, a, b)
	assert.NoError(t, model.ValidatePassword(a))
}

func TestOpenDatabaseCreatesAdmin(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prenos.sqlite3")

	database, password, err := initDatabase(path, "root")
	require.NoError(t, err)
	database.Close()

	// Opening an existing database keeps its users.
	database, err = openDatabase(path, "ignored")
	require.NoError(t, err)
	defer database.Close()

	admin, err := store.GetUserByUsername(context.Background(), database, "root")
	require.NoError(t, err)
	require.NotNil(t, admin)
	assert.Equal(t, model.RoleAdmin, admin.Role)
	assert.True(t, auth.CheckPassword(admin.PasswordHash, password))

	other, err := store.GetUserByUsername(context.Background(), database, "ignored")
	require.NoError(t, err)
	assert.Nil(t, other)
}
