// Package di provides dependency injection for service initialization.
package di

import (
	"context"
	"fmt"
	"time"

	"github.com/aristath/hybrid-trader/internal/clientdata"
	"github.com/aristath/hybrid-trader/internal/clients/marketdata"
	"github.com/aristath/hybrid-trader/internal/config"
	"github.com/aristath/hybrid-trader/internal/events"
	"github.com/aristath/hybrid-trader/internal/modules/market_hours"
	"github.com/aristath/hybrid-trader/internal/modules/portfolio"
	"github.com/aristath/hybrid-trader/internal/modules/trading"
	"github.com/aristath/hybrid-trader/internal/pipeline"
	"github.com/aristath/hybrid-trader/internal/reliability"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
)

// InitializeServices creates all services and wires them into the container.
// Databases must already be initialized.
func InitializeServices(container *Container, cfg *config.Config, log zerolog.Logger) error {
	if container == nil {
		return fmt.Errorf("container cannot be nil")
	}

	// ==========================================
	// STEP 1: Events and metrics
	// ==========================================
	container.EventBus = events.NewBus(log)
	container.EventManager = events.NewManager(container.EventBus, log)

	container.Registry = prometheus.NewRegistry()
	container.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	container.Metrics = pipeline.NewMetrics(container.Registry)

	// ==========================================
	// STEP 2: Market data
	// ==========================================
	container.MarketData = marketdata.NewClient(marketdata.Config{
		BaseURL: cfg.MarketDataURL,
		APIKey:  cfg.MarketDataAPIKey,
		RPS:     cfg.MarketDataRPS,
	}, log)
	container.SnapshotCache = clientdata.NewRepository(container.CacheDB.Conn())
	container.SnapshotSource = clientdata.NewCachedFetcher(container.MarketData, container.SnapshotCache, log)

	// ==========================================
	// STEP 3: Paper account and execution
	// ==========================================
	session, err := market_hours.NYSE()
	if err != nil {
		return fmt.Errorf("failed to load market session: %w", err)
	}
	container.MarketHours = market_hours.NewMarketHoursService(session, log)

	container.Account = portfolio.NewAccount(cfg.StartingCapital, log)
	container.Broker = portfolio.NewPaperBroker(container.Account, container.MarketHours, cfg.CommissionRate, log)
	container.TradeRepo = trading.NewTradeRepository(container.LedgerDB.Conn(), log)

	// The process defaults are only the executor's fallback policy; live runs
	// execute under their own RunConfig.
	eligibility := trading.NewEligibilityChecker(cfg.Run.Blacklist, cfg.Run.PositionCap, log)
	container.Executor = trading.NewExecutor(
		container.Broker,
		container.MarketHours,
		cfg.Run.Sizer(),
		eligibility,
		container.TradeRepo,
		trading.ModePaper,
		log,
	)

	// ==========================================
	// STEP 4: Runs
	// ==========================================
	container.ResultRepo = pipeline.NewResultRepository(container.ResultsDB.Conn(), log)

	if cfg.ExportEnabled() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		exporter, err := reliability.NewS3ResultExporter(ctx, reliability.S3Config{
			Bucket:    cfg.ExportBucket,
			Endpoint:  cfg.ExportEndpoint,
			Region:    cfg.ExportRegion,
			AccessKey: cfg.ExportAccessKey,
			SecretKey: cfg.ExportSecretKey,
		}, log)
		cancel()
		if err != nil {
			return fmt.Errorf("failed to create result exporter: %w", err)
		}
		container.Exporter = exporter
	}

	deps := pipeline.Deps{
		Fetcher:      container.SnapshotSource,
		Bars:         container.MarketData,
		Fundamentals: container.MarketData,
		Executor:     container.Executor,
		Ledger:       container.TradeRepo,
		History:      container.TradeRepo,
		Results:      container.ResultRepo,
		Events:       container.EventManager,
		Metrics:      container.Metrics,
	}
	// A nil *ResultExporter must not end up as a non-nil interface
	if container.Exporter != nil {
		deps.Exporter = container.Exporter
	}
	container.Orchestrator = pipeline.NewOrchestrator(deps, log)

	log.Info().
		Bool("export_enabled", cfg.ExportEnabled()).
		Float64("starting_capital", cfg.StartingCapital).
		Msg("Services initialized")

	return nil
}
