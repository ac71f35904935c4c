package backtest

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/aristath/hybrid-trader/internal/domain"
	"github.com/aristath/hybrid-trader/internal/modules/aggregator"
	"github.com/aristath/hybrid-trader/internal/modules/market_hours"
	"github.com/aristath/hybrid-trader/internal/modules/metrics"
	"github.com/aristath/hybrid-trader/internal/modules/portfolio"
	"github.com/aristath/hybrid-trader/internal/modules/strategy"
	"github.com/aristath/hybrid-trader/internal/modules/trading"
	"github.com/aristath/hybrid-trader/internal/work"
	"github.com/rs/zerolog"
)

// Exit reasons recorded on simulated trades
const (
	ExitStopLoss   = "stop loss"
	ExitTakeProfit = "take profit"
)

// Config parameterizes a replay. Every replay gets its own account.
type Config struct {
	RunID           string
	StartingCapital float64
	CommissionRate  float64
	StopLoss        float64 // fractional loss from average cost, 0 disables
	TakeProfit      float64 // fractional gain from average cost, 0 disables
	Sizer           trading.Sizer
	Blacklist       []string
	PositionCap     float64
	Strategies      []domain.StrategyID
	Thresholds      strategy.Thresholds
	RiskFreeRate    float64
	Benchmark       []domain.Bar
	Fundamentals    map[string]map[string]float64
	Workers         int
}

// Result is one instrument's replay outcome
type Result struct {
	Instrument  string                     `json:"instrument"`
	Bars        int                        `json:"bars"`
	Trades      []domain.TradeRecord       `json:"trades"`
	Decision    *domain.AggregatedDecision `json:"decision,omitempty"`
	EndingState domain.PortfolioState      `json:"ending_state"`
	EndingValue float64                    `json:"ending_value"`
	EquityCurve []float64                  `json:"equity_curve"`
	Metrics     domain.PerformanceMetrics  `json:"metrics"`
}

// Outcome pairs an instrument with its replay result or failure
type Outcome struct {
	Instrument string
	Result     *Result
	Err        error
}

// Engine drives strategies, aggregation and execution bar by bar
type Engine struct {
	cfg     Config
	builder SnapshotBuilder
	pool    *work.Pool
	log     zerolog.Logger
}

// NewEngine validates cfg and creates an engine
func NewEngine(cfg Config, log zerolog.Logger) (*Engine, error) {
	switch {
	case cfg.StartingCapital <= 0:
		return nil, domain.InvalidConfigf("starting capital must be positive, got %f", cfg.StartingCapital)
	case cfg.CommissionRate < 0 || cfg.CommissionRate >= 1:
		return nil, domain.InvalidConfigf("commission rate must be in [0, 1), got %f", cfg.CommissionRate)
	case cfg.StopLoss < 0 || cfg.StopLoss >= 1:
		return nil, domain.InvalidConfigf("stop loss must be in [0, 1), got %f", cfg.StopLoss)
	case cfg.TakeProfit < 0:
		return nil, domain.InvalidConfigf("take profit must not be negative, got %f", cfg.TakeProfit)
	}
	if err := cfg.Sizer.Validate(); err != nil {
		return nil, err
	}

	cfg.Thresholds = cfg.Thresholds.WithDefaults()
	builder := DefaultSnapshotBuilder()
	builder.ForecastHorizon = cfg.Thresholds.Prediction.HorizonDays

	return &Engine{
		cfg:     cfg,
		builder: builder,
		pool:    work.NewPool(cfg.Workers),
		log:     log.With().Str("service", "backtest").Logger(),
	}, nil
}

// Replay runs one instrument through its bars in chronological order.
// The snapshot for each bar only sees bars at or before it.
func (e *Engine) Replay(ctx context.Context, instrument string, bars []domain.Bar) (*Result, error) {
	if len(bars) == 0 {
		return nil, fmt.Errorf("%w: no bars for %s", domain.ErrDataUnavailable, instrument)
	}
	series := SortBars(bars)

	set, err := strategy.NewSet(e.cfg.Strategies, e.cfg.Thresholds)
	if err != nil {
		return nil, err
	}

	acct := portfolio.NewAccount(e.cfg.StartingCapital, e.log)
	clock := market_hours.AlwaysOpen{}
	broker := portfolio.NewPaperBroker(acct, clock, e.cfg.CommissionRate, e.log)
	exec := trading.NewExecutor(
		broker,
		clock,
		e.cfg.Sizer,
		trading.NewEligibilityChecker(e.cfg.Blacklist, e.cfg.PositionCap, e.log),
		nil,
		trading.ModeBacktest,
		e.log,
	)
	fundamentals := e.cfg.Fundamentals[key(instrument)]
	if fundamentals == nil {
		fundamentals = e.cfg.Fundamentals[instrument]
	}

	result := &Result{
		Instrument:  instrument,
		Bars:        len(series),
		Trades:      []domain.TradeRecord{},
		EquityCurve: make([]float64, 0, len(series)),
	}

	for i, bar := range series {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("%w: replay of %s stopped at bar %d: %w", domain.ErrCancelled, instrument, i, err)
		}

		exit := e.exitReason(acct.State(), instrument, bar.Close)
		if exit != "" {
			sell := domain.AggregatedDecision{
				Instrument: instrument,
				Action:     domain.ActionSell,
				Timestamp:  bar.Timestamp,
			}
			if err := e.execute(ctx, exec, sell, bar.Close, exit, result); err != nil {
				return nil, err
			}
		}

		// strategies see every bar so their rolling history stays contiguous
		snapshot := e.builder.Build(instrument, series, i, fundamentals)
		decision := aggregator.Decide(set, snapshot)
		result.Decision = &decision

		if exit == "" {
			if err := e.execute(ctx, exec, decision, bar.Close, decisionReason(decision), result); err != nil {
				return nil, err
			}
		}

		result.EquityCurve = append(result.EquityCurve, acct.State().Value(map[string]float64{instrument: bar.Close}))
	}

	result.EndingState = acct.State()
	result.EndingValue = result.EquityCurve[len(result.EquityCurve)-1]

	returns := metrics.ReturnsFromTrades(e.cfg.StartingCapital, result.Trades)
	benchmark := benchmarkReturns(e.cfg.Benchmark, series[0].Timestamp, result.Trades)
	result.Metrics = metrics.Calculate(returns, benchmark, e.cfg.RiskFreeRate)

	e.log.Info().
		Str("instrument", instrument).
		Int("bars", result.Bars).
		Int("trades", len(result.Trades)).
		Float64("ending_value", result.EndingValue).
		Msg("Replay complete")

	return result, nil
}

// ReplayAll replays every instrument in parallel, one single-threaded replay each.
// Outcomes are sorted by instrument.
func (e *Engine) ReplayAll(ctx context.Context, bars map[string][]domain.Bar) []Outcome {
	instruments := make([]string, 0, len(bars))
	for instrument := range bars {
		instruments = append(instruments, instrument)
	}
	sort.Strings(instruments)

	return work.Map(ctx, e.pool, len(instruments), func(ctx context.Context, i int) Outcome {
		instrument := instruments[i]
		result, err := e.Replay(ctx, instrument, bars[instrument])
		if err != nil {
			e.log.Error().Err(err).Str("instrument", instrument).Msg("Replay failed")
		}
		return Outcome{Instrument: instrument, Result: result, Err: err}
	})
}

func (e *Engine) execute(ctx context.Context, exec *trading.Executor, decision domain.AggregatedDecision, price float64, reason string, result *Result) error {
	outcome, err := exec.Execute(ctx, e.cfg.RunID, decision, price)
	if err != nil {
		return fmt.Errorf("failed to execute %s at %s: %w", decision.Action, decision.Timestamp.Format(time.RFC3339), err)
	}
	if outcome.Trade != nil {
		trade := *outcome.Trade
		trade.Reason = reason
		result.Trades = append(result.Trades, trade)
	}
	return nil
}

// exitReason checks the open position against stop-loss and take-profit
func (e *Engine) exitReason(state domain.PortfolioState, instrument string, price float64) string {
	pos, ok := state.Positions[instrument]
	if !ok || pos.Quantity <= 0 || pos.AverageCost <= 0 {
		return ""
	}
	change := price/pos.AverageCost - 1
	switch {
	case e.cfg.StopLoss > 0 && change <= -e.cfg.StopLoss:
		return ExitStopLoss
	case e.cfg.TakeProfit > 0 && change >= e.cfg.TakeProfit:
		return ExitTakeProfit
	}
	return ""
}

func decisionReason(d domain.AggregatedDecision) string {
	reason := fmt.Sprintf("votes buy=%d sell=%d hold=%d",
		d.VoteCounts[domain.ActionBuy], d.VoteCounts[domain.ActionSell], d.VoteCounts[domain.ActionHold])
	if d.TieBroken {
		reason += ", tie broken by sentiment"
	}
	return reason
}

// benchmarkReturns marks the benchmark at the replay start and at every trade,
// giving a series aligned with the trade returns. Returns nil when any mark is missing.
func benchmarkReturns(benchmark []domain.Bar, start time.Time, trades []domain.TradeRecord) []float64 {
	if len(benchmark) == 0 || len(trades) == 0 {
		return nil
	}
	series := SortBars(benchmark)
	closeAt := func(t time.Time) (float64, bool) {
		idx := sort.Search(len(series), func(i int) bool { return series[i].Timestamp.After(t) }) - 1
		if idx < 0 {
			return 0, false
		}
		return series[idx].Close, series[idx].Close > 0
	}

	values := make([]float64, 0, len(trades)+1)
	first, ok := closeAt(start)
	if !ok {
		return nil
	}
	values = append(values, first)
	for _, t := range trades {
		v, ok := closeAt(t.Timestamp)
		if !ok {
			return nil
		}
		values = append(values, v)
	}
	return metrics.ReturnsFromValues(values)
}
