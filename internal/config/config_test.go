package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("HYBRID_DATA_DIR", t.TempDir())

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8001, cfg.Port)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "0 35 9 * * MON-FRI", cfg.ScheduleSpec)
	assert.Equal(t, 1000.0, cfg.StartingCapital)
	assert.Equal(t, 0.002, cfg.CommissionRate)
	assert.False(t, cfg.ExportEnabled())
	assert.Equal(t, []string{"BTC-USD", "^N225"}, cfg.Run.Blacklist)
	assert.Equal(t, Duration(30*time.Second), cfg.Run.RetryTimeout)
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("HYBRID_DATA_DIR", t.TempDir())
	t.Setenv("HYBRID_PORT", "9100")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("HYBRID_INSTRUMENTS", "aapl, msft,,GOOG")
	t.Setenv("HYBRID_WORKER_LIMIT", "3")
	t.Setenv("HYBRID_RETRY_TIMEOUT", "5s")
	t.Setenv("HYBRID_STARTING_CAPITAL", "25000")
	t.Setenv("MARKET_DATA_RPS", "not-a-number")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9100, cfg.Port)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, []string{"aapl", "msft", "GOOG"}, cfg.Run.Instruments)
	assert.Equal(t, 3, cfg.Run.WorkerLimit)
	assert.Equal(t, Duration(5*time.Second), cfg.Run.RetryTimeout)
	assert.Equal(t, 25000.0, cfg.StartingCapital)
	assert.Equal(t, 25000.0, cfg.Run.StartingCapital)
	assert.Equal(t, 5.0, cfg.MarketDataRPS, "unparseable values fall back to the default")
}

func TestConfigValidate(t *testing.T) {
	valid := func() Config {
		return Config{Port: 8001, MarketDataURL: "http://x", StartingCapital: 1000, CommissionRate: 0.002}
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{name: "valid", mutate: func(c *Config) {}},
		{name: "bad port", mutate: func(c *Config) { c.Port = 0 }, wantErr: true},
		{name: "no market data url", mutate: func(c *Config) { c.MarketDataURL = "" }, wantErr: true},
		{name: "no capital", mutate: func(c *Config) { c.StartingCapital = 0 }, wantErr: true},
		{name: "commission too high", mutate: func(c *Config) { c.CommissionRate = 1 }, wantErr: true},
		{name: "export without keys", mutate: func(c *Config) { c.ExportBucket = "results" }, wantErr: true},
		{name: "export with keys", mutate: func(c *Config) {
			c.ExportBucket = "results"
			c.ExportAccessKey = "a"
			c.ExportSecretKey = "s"
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
