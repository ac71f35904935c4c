/**
 * Package di provides dependency injection type definitions.
 *
 * This package defines the Container type which holds all application dependencies.
 * The Container is the single source of truth for all service instances and is
 * passed to the HTTP server and the CLI for access to services.
 */
package di

import (
	"github.com/aristath/hybrid-trader/internal/clientdata"
	"github.com/aristath/hybrid-trader/internal/clients/marketdata"
	"github.com/aristath/hybrid-trader/internal/database"
	"github.com/aristath/hybrid-trader/internal/events"
	"github.com/aristath/hybrid-trader/internal/modules/market_hours"
	"github.com/aristath/hybrid-trader/internal/modules/portfolio"
	"github.com/aristath/hybrid-trader/internal/modules/trading"
	"github.com/aristath/hybrid-trader/internal/pipeline"
	"github.com/aristath/hybrid-trader/internal/reliability"
	"github.com/aristath/hybrid-trader/internal/scheduler"
	"github.com/prometheus/client_golang/prometheus"
)

// Container holds all application dependencies
type Container struct {
	// Databases (3 total)
	ResultsDB *database.DB
	LedgerDB  *database.DB
	CacheDB   *database.DB

	// Events
	EventBus     *events.Bus
	EventManager *events.Manager

	// Metrics
	Registry *prometheus.Registry
	Metrics  *pipeline.Metrics

	// Market data
	MarketData     *marketdata.Client
	SnapshotCache  *clientdata.Repository
	SnapshotSource *clientdata.CachedFetcher

	// Paper trading
	MarketHours *market_hours.MarketHoursService
	Account     *portfolio.Account
	Broker      *portfolio.PaperBroker
	Executor    *trading.Executor
	TradeRepo   *trading.TradeRepository

	// Runs
	ResultRepo   *pipeline.ResultRepository
	Exporter     *reliability.ResultExporter // nil when export is disabled
	Orchestrator *pipeline.Orchestrator

	Scheduler *scheduler.Scheduler
	Jobs      map[string]scheduler.Job // by name, for manual triggering
}

// Databases returns the open databases keyed by name
func (c *Container) Databases() map[string]*database.DB {
	dbs := make(map[string]*database.DB, 3)
	for name, db := range map[string]*database.DB{
		"results": c.ResultsDB,
		"ledger":  c.LedgerDB,
		"cache":   c.CacheDB,
	} {
		if db != nil {
			dbs[name] = db
		}
	}
	return dbs
}

// Close stops the scheduler and closes every database
func (c *Container) Close() error {
	if c.Scheduler != nil {
		c.Scheduler.Stop()
	}

	var firstErr error
	for _, db := range []*database.DB{c.ResultsDB, c.LedgerDB, c.CacheDB} {
		if db == nil {
			continue
		}
		if err := db.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
