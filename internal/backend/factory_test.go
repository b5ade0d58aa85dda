package backend

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gofinances/internal/config"
	"gofinances/internal/storage"
	"gofinances/internal/storage/memory"
)

func TestFromAppConfig(t *testing.T) {
	_, err := FromAppConfig(nil)
	assert.Error(t, err)

	_, err = FromAppConfig(&config.Config{DataBackend: "sheets"})
	assert.Error(t, err)

	cfg, err := FromAppConfig(&config.Config{DataBackend: "sqlite", SQLiteDBPath: "x.db"})
	require.NoError(t, err)
	assert.Equal(t, SQLiteBackend, cfg.Type)
	assert.Equal(t, "x.db", cfg.SQLiteDBPath)
}

func TestConfigValidate(t *testing.T) {
	assert.Error(t, Config{Type: "bogus"}.Validate())
	assert.Error(t, Config{Type: SQLiteBackend}.Validate())
	assert.NoError(t, Config{Type: MemoryBackend}.Validate())
}

func TestCreateBackend(t *testing.T) {
	ctx := context.Background()
	f := NewFactory(nil)

	t.Run("memory", func(t *testing.T) {
		store, err := f.CreateBackend(ctx, Config{Type: MemoryBackend})
		require.NoError(t, err)
		assert.IsType(t, &memory.Store{}, store)
		assert.NoError(t, store.Ping(ctx))
	})

	t.Run("sqlite", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "ledger.db")
		store, err := f.CreateBackend(ctx, Config{Type: SQLiteBackend, SQLiteDBPath: path})
		require.NoError(t, err)
		defer store.Close()
		assert.IsType(t, &storage.SQLiteRepository{}, store)
		assert.NoError(t, store.Ping(ctx))
		assert.FileExists(t, path)
	})

	t.Run("invalid", func(t *testing.T) {
		_, err := f.CreateBackend(ctx, Config{Type: "sheets"})
		assert.Error(t, err)
	})
}
