package reliability

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/aristath/hybrid-trader/internal/database"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVacuumJob(t *testing.T) {
	db, err := database.New(database.Config{Path: filepath.Join(t.TempDir(), "cache.db"), Name: "cache"})
	require.NoError(t, err)
	defer db.Close()
	require.NoError(t, db.Migrate())

	job := NewVacuumJob(map[string]*database.DB{"cache": db, "unset": nil}, zerolog.Nop())
	assert.Equal(t, "weekly_vacuum", job.Name())
	assert.NoError(t, job.Run())

	require.NoError(t, db.Close())
	assert.Error(t, job.Run())
}

func TestExportRotationJob(t *testing.T) {
	bucket := newMemoryBucket()
	now := time.Date(2024, 5, 30, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		bucket.objects[exportKey("run", now.AddDate(0, 0, -10*(i+1)))] = []byte("x")
	}

	job := NewExportRotationJob(newTestExporter(bucket, now), 25, zerolog.Nop())
	assert.Equal(t, "export_rotation", job.Name())
	require.NoError(t, job.Run())
	assert.Len(t, bucket.objects, 3)
}
