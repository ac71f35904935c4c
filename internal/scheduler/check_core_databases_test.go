package scheduler

import (
	"path/filepath"
	"testing"

	"github.com/aristath/hybrid-trader/internal/database"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T, name string) *database.DB {
	db, err := database.New(database.Config{Path: filepath.Join(t.TempDir(), name+".db"), Name: name})
	require.NoError(t, err)
	require.NoError(t, db.Migrate())
	t.Cleanup(func() { db.Close() })
	return db
}

func TestCheckCoreDatabasesJob_Name(t *testing.T) {
	job := NewCheckCoreDatabasesJob(nil, zerolog.Nop())
	assert.Equal(t, "check_core_databases", job.Name())
}

func TestCheckCoreDatabasesJob_Run(t *testing.T) {
	job := NewCheckCoreDatabasesJob(map[string]*database.DB{
		"ledger":  openTestDB(t, "ledger"),
		"results": openTestDB(t, "results"),
		"missing": nil,
	}, zerolog.Nop())

	assert.NoError(t, job.Run())
}

func TestCheckCoreDatabasesJob_ClosedDatabase(t *testing.T) {
	db := openTestDB(t, "ledger")
	require.NoError(t, db.Close())

	job := NewCheckCoreDatabasesJob(map[string]*database.DB{"ledger": db}, zerolog.Nop())
	err := job.Run()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database ledger")
}
