package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tyrowin/groupchat/internal/config"
	"github.com/Tyrowin/groupchat/internal/model"
)

var epoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func openStores(t *testing.T) map[string]func() Store {
	t.Helper()
	sqlitePath := filepath.Join(t.TempDir(), "chat.db")
	dirPath := t.TempDir()
	mem := NewMemory()

	return map[string]func() Store{
		"sqlite": func() Store {
			s, err := NewSQLite(sqlitePath)
			require.NoError(t, err)
			return s
		},
		"dir": func() Store {
			s, err := NewDir(dirPath)
			require.NoError(t, err)
			return s
		},
		"memory": func() Store { return mem },
	}
}

func TestEmptyStoreLoadsEmptyData(t *testing.T) {
	for name, open := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			s := open()
			defer s.Close()

			data, err := s.Load(context.Background())
			require.NoError(t, err)
			assert.Empty(t, data.Users)
			assert.Empty(t, data.Messages)
			assert.Nil(t, data.Settings)
		})
	}
}

func TestSaveOverwritesWholeCollection(t *testing.T) {
	ctx := context.Background()
	name := "Alice"

	for driver, open := range openStores(t) {
		t.Run(driver, func(t *testing.T) {
			s := open()
			require.NoError(t, s.Save(ctx, Users, []model.User{
				{ID: "u1", Username: "alice", Role: model.RoleAdmin, Status: model.UserStatusActive, CreatedAt: epoch},
				{ID: "u2", Username: "bob", Role: model.RoleMember, Status: model.UserStatusPending, CreatedAt: epoch},
			}))
			require.NoError(t, s.Save(ctx, Users, []model.User{
				{ID: "u1", Username: "alice", DisplayName: &name, Role: model.RoleAdmin, Status: model.UserStatusActive, CreatedAt: epoch},
			}))
			require.NoError(t, s.Save(ctx, Settings, model.Settings{RegistrationOpen: false, RequireApproval: true}))
			require.NoError(t, s.Save(ctx, EmailBlacklist, []string{"spam@example.com"}))
			require.NoError(t, s.Save(ctx, Sessions, []model.Session{{Token: "t", UserID: "u1", CreatedAt: epoch}}))
			require.NoError(t, s.Close())

			// Reopen to prove the data survived.
			s = open()
			defer s.Close()
			data, err := s.Load(ctx)
			require.NoError(t, err)

			require.Len(t, data.Users, 1)
			assert.Equal(t, "u1", data.Users[0].ID)
			require.NotNil(t, data.Users[0].DisplayName)
			assert.Equal(t, "Alice", *data.Users[0].DisplayName)
			assert.True(t, data.Users[0].CreatedAt.Equal(epoch))

			require.NotNil(t, data.Settings)
			assert.Equal(t, model.Settings{RegistrationOpen: false, RequireApproval: true}, *data.Settings)
			assert.Equal(t, []string{"spam@example.com"}, data.EmailBlacklist)
			require.Len(t, data.Sessions, 1)
			assert.Equal(t, "t", data.Sessions[0].Token)
		})
	}
}

func TestSaveRejectsUnknownCollection(t *testing.T) {
	for driver, open := range openStores(t) {
		t.Run(driver, func(t *testing.T) {
			s := open()
			defer s.Close()
			err := s.Save(context.Background(), Collection("secrets"), []string{})
			assert.ErrorIs(t, err, ErrUnknownCollection)
		})
	}
}

func TestDirWritesPrettyJSONWithoutLeftovers(t *testing.T) {
	dir := t.TempDir()
	s, err := NewDir(dir)
	require.NoError(t, err)

	require.NoError(t, s.Save(context.Background(), EmailBlacklist, []string{"a@example.com"}))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "email_blacklist.json", entries[0].Name())

	raw, err := os.ReadFile(filepath.Join(dir, "email_blacklist.json"))
	require.NoError(t, err)
	assert.Equal(t, "[\n  \"a@example.com\"\n]", string(raw))
}

func TestDirLoadReportsCorruptCollection(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "messages.json"), []byte("{not json"), 0o600))

	s, err := NewDir(dir)
	require.NoError(t, err)
	_, err = s.Load(context.Background())
	assert.ErrorContains(t, err, "decoding messages")
}

func TestMemoryFailureInjection(t *testing.T) {
	m := NewMemory()
	boom := errors.New("disk full")

	m.FailWith(boom)
	assert.ErrorIs(t, m.Save(context.Background(), Messages, []model.Message{}), boom)
	assert.Equal(t, 0, m.Saves(Messages))

	m.FailWith(nil)
	require.NoError(t, m.Save(context.Background(), Messages, []model.Message{}))
	assert.Equal(t, 1, m.Saves(Messages))
}

func TestOpenSelectsDriver(t *testing.T) {
	s, err := Open(config.StoreConfig{Driver: config.StoreMemory})
	require.NoError(t, err)
	assert.IsType(t, &Memory{}, s)

	s, err = Open(config.StoreConfig{Driver: config.StoreFile, DataDir: t.TempDir()})
	require.NoError(t, err)
	assert.IsType(t, &Dir{}, s)

	s, err = Open(config.StoreConfig{Driver: config.StoreSQLite, DataDir: filepath.Join(t.TempDir(), "nested")})
	require.NoError(t, err)
	assert.IsType(t, &SQLite{}, s)
	require.NoError(t, s.Close())

	_, err = Open(config.StoreConfig{Driver: "postgres"})
	assert.Error(t, err)
}
