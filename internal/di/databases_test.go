package di

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/aristath/hybrid-trader/internal/config"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitializeDatabases(t *testing.T) {
	// Create temporary directory for test databases
	tmpDir := t.TempDir()

	cfg := &config.Config{
		DataDir: tmpDir,
	}

	container, err := InitializeDatabases(cfg, zerolog.Nop())
	require.NoError(t, err)
	require.NotNil(t, container)
	defer container.Close()

	// Verify all 3 databases are initialized
	assert.NotNil(t, container.ResultsDB)
	assert.NotNil(t, container.LedgerDB)
	assert.NotNil(t, container.CacheDB)
	assert.Len(t, container.Databases(), 3)

	// Verify database files are created
	assert.FileExists(t, filepath.Join(tmpDir, "results.db"))
	assert.FileExists(t, filepath.Join(tmpDir, "ledger.db"))
	assert.FileExists(t, filepath.Join(tmpDir, "cache.db"))

	// Verify schemas were applied
	var count int
	err = container.LedgerDB.Conn().QueryRow("SELECT COUNT(*) FROM trades").Scan(&count)
	require.NoError(t, err)
	assert.Equal(t, 0, count)

	err = container.ResultsDB.Conn().QueryRow("SELECT COUNT(*) FROM runs").Scan(&count)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestInitializeDatabases_InvalidPath(t *testing.T) {
	// A regular file where the data directory should be
	blocker := filepath.Join(t.TempDir(), "data")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0644))

	cfg := &config.Config{
		DataDir: blocker,
	}

	container, err := InitializeDatabases(cfg, zerolog.Nop())
	assert.Error(t, err)
	assert.Nil(t, container)
}
