package di

import (
	"testing"

	"github.com/aristath/hybrid-trader/internal/config"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		DataDir:         t.TempDir(),
		Port:            8001,
		MarketDataURL:   "http://127.0.0.1:1",
		MarketDataRPS:   5,
		ScheduleSpec:    "0 35 9 * * MON-FRI",
		StartingCapital: 1000,
		CommissionRate:  0.002,
		Run:             config.DefaultRunConfig(),
	}
}

func TestWire(t *testing.T) {
	cfg := testConfig(t)

	container, err := Wire(cfg, zerolog.Nop())
	require.NoError(t, err)
	require.NotNil(t, container)
	t.Cleanup(func() { container.Close() })

	// Verify container is fully populated
	assert.NotNil(t, container.EventManager)
	assert.NotNil(t, container.Registry)
	assert.NotNil(t, container.SnapshotSource)
	assert.NotNil(t, container.Executor)
	assert.NotNil(t, container.TradeRepo)
	assert.NotNil(t, container.ResultRepo)
	assert.NotNil(t, container.Orchestrator)
	assert.Nil(t, container.Exporter, "export is disabled without a bucket")

	assert.Equal(t, 1000.0, container.Account.Cash())

	// Verify jobs are registered
	jobs := container.Scheduler.Jobs()
	for _, name := range []string{
		"live_run",
		"flush_pending_orders",
		"check_wal_checkpoints",
		"check_core_databases",
		"weekly_vacuum",
	} {
		assert.Contains(t, jobs, name)
	}
	assert.NotContains(t, jobs, "export_rotation")
}

func TestWire_InvalidSchedule(t *testing.T) {
	cfg := testConfig(t)
	cfg.ScheduleSpec = "not a schedule"

	container, err := Wire(cfg, zerolog.Nop())
	require.Error(t, err)
	assert.Nil(t, container)
	assert.Contains(t, err.Error(), "live_run")
}
