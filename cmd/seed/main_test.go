package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eventhub/internal/auth"
	"eventhub/internal/db"
	"eventhub/internal/logging"
	"eventhub/internal/repository"
	"eventhub/internal/service"
)

func TestLoadSeedData(t *testing.T) {
	embedded, err := loadSeedData("")
	require.NoError(t, err)
	require.Len(t, embedded.Users, 2)
	assert.Equal(t, "alice", embedded.Users[0].Username)

	path := filepath.Join(t.TempDir(), "seed.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"users":[{"username":"carol","email":"carol@example.com","password":"secret1"}]}`), 0o600))
	fromFile, err := loadSeedData(path)
	require.NoError(t, err)
	require.Len(t, fromFile.Users, 1)
	assert.Equal(t, "carol", fromFile.Users[0].Username)

	_, err = loadSeedData(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

func TestSeedIsIdempotent(t *testing.T) {
	gdb, err := db.NewSQLite(":memory:")
	require.NoError(t, err)
	require.NoError(t, db.Migrate(gdb))
	sqlDB, err := gdb.DB()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	logger := logging.Discard()
	authService := service.NewAuthService(repository.NewUserRepository(gdb), auth.NewJWTService("seed-secret", time.Hour), logger)
	eventService := service.NewEventService(repository.NewEventRepository(gdb), nil, nil, logger)
	data, err := loadSeedData("")
	require.NoError(t, err)
	ctx := context.Background()

	users, events, err := seed(ctx, authService, eventService, data)
	require.NoError(t, err)
	assert.Equal(t, 2, users)
	assert.Equal(t, 4, events)

	users, events, err = seed(ctx, authService, eventService, data)
	require.NoError(t, err)
	assert.Zero(t, users)
	assert.Zero(t, events)

	page, err := eventService.List(ctx, service.EventFilter{})
	require.NoError(t, err)
	assert.Equal(t, int64(4), page.Total)
	assert.Equal(t, "Book Club", page.Events[0].Title)
}
