package backend

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"expenses/internal/config"
	"expenses/internal/storage"
	"expenses/internal/storage/memory"
)

func TestFromAppConfig(t *testing.T) {
	_, err := FromAppConfig(nil)
	require.Error(t, err)

	_, err = FromAppConfig(&config.Config{DataBackend: "sheets"})
	require.Error(t, err)

	cfg, err := FromAppConfig(&config.Config{DataBackend: "postgres", DatabaseURL: "postgres://db/x"})
	require.NoError(t, err)
	assert.Equal(t, PostgresBackend, cfg.Type)
	assert.Equal(t, "postgres://db/x", cfg.DatabaseURL)
}

func TestConfig_Validate(t *testing.T) {
	assert.Error(t, Config{Type: "redis"}.Validate())
	assert.Error(t, Config{Type: SQLiteBackend}.Validate())
	assert.Error(t, Config{Type: PostgresBackend}.Validate())
	assert.NoError(t, Config{Type: MemoryBackend}.Validate())
}

func TestCreateBackend(t *testing.T) {
	ctx := context.Background()
	f := NewFactory(nil)

	t.Run("memory", func(t *testing.T) {
		res, err := f.CreateBackend(ctx, Config{Type: MemoryBackend})
		require.NoError(t, err)
		assert.IsType(t, &memory.Store{}, res.Repository)
		assert.NoError(t, res.Cleanup())
	})

	t.Run("sqlite", func(t *testing.T) {
		res, err := f.CreateBackend(ctx, Config{
			Type:         SQLiteBackend,
			SQLiteDBPath: filepath.Join(t.TempDir(), "db", "expenses.db"),
		})
		require.NoError(t, err)
		assert.IsType(t, &storage.SQLiteRepository{}, res.Repository)
		assert.NoError(t, res.Repository.Ping(ctx))
		assert.NoError(t, res.Cleanup())
	})

	t.Run("invalid", func(t *testing.T) {
		_, err := f.CreateBackend(ctx, Config{Type: SQLiteBackend})
		assert.Error(t, err)
	})
}
