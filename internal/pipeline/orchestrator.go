package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/aristath/hybrid-trader/internal/config"
	"github.com/aristath/hybrid-trader/internal/domain"
	"github.com/aristath/hybrid-trader/internal/events"
	"github.com/aristath/hybrid-trader/internal/modules/aggregator"
	"github.com/aristath/hybrid-trader/internal/modules/backtest"
	"github.com/aristath/hybrid-trader/internal/modules/metrics"
	"github.com/aristath/hybrid-trader/internal/modules/strategy"
	"github.com/aristath/hybrid-trader/internal/modules/trading"
	"github.com/aristath/hybrid-trader/internal/utils"
	"github.com/aristath/hybrid-trader/internal/work"
	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog"
)

// TradeHistory reads an instrument's recorded trades of one mode in execution order
type TradeHistory interface {
	GetByInstrumentAndMode(instrument, mode string, limit int) ([]domain.TradeRecord, error)
}

// FundamentalsSource supplies fundamentals for backtests
type FundamentalsSource interface {
	Fundamentals(ctx context.Context, instrument string) (map[string]float64, error)
}

// ResultExporter ships a finished run's result set to external storage
type ResultExporter interface {
	Export(ctx context.Context, result *RunResult) error
}

// Deps are the collaborators of an Orchestrator. Only the ones needed by the
// run kinds in use must be set.
type Deps struct {
	Fetcher      domain.SnapshotFetcher // live snapshots
	Bars         domain.BarSource       // backtest bars
	Fundamentals FundamentalsSource     // optional, backtests
	Executor     *trading.Executor      // live account
	Ledger       trading.TradeRecorder  // optional, records backtest trades
	History      TradeHistory           // optional, live tracking metrics
	Results      *ResultRepository      // optional
	Events       *events.Manager        // optional
	Metrics      *Metrics               // optional
	Exporter     ResultExporter         // optional
}

// maxStrategySets bounds the cached strategy sets across instruments and configurations
const maxStrategySets = 512

// Orchestrator runs the per-instrument pipeline over a set of instruments
type Orchestrator struct {
	deps Deps

	setsMu sync.Mutex
	sets   *lru.Cache[string, *strategy.Set]

	activeMu sync.Mutex
	active   map[string]context.CancelFunc

	now   func() time.Time
	newID func() string
	log   zerolog.Logger
}

// NewOrchestrator creates an orchestrator
func NewOrchestrator(deps Deps, log zerolog.Logger) *Orchestrator {
	// only fails for a non-positive size
	sets, _ := lru.New[string, *strategy.Set](maxStrategySets)
	return &Orchestrator{
		deps:   deps,
		sets:   sets,
		active: make(map[string]context.CancelFunc),
		now:    time.Now,
		newID:  func() string { return uuid.New().String() },
		log:    log.With().Str("service", "pipeline").Logger(),
	}
}

// task carries one instrument through its stages
type task struct {
	runID      string
	instrument string
	state      State

	snapshot     *domain.MarketSnapshot
	bars         []domain.Bar
	fundamentals map[string]float64
	decision     *domain.AggregatedDecision
	replay       *backtest.Result

	result InstrumentResult
}

type stageFunc func(ctx context.Context, t *task) error

// plan maps each stage to its work for one run kind
type plan struct {
	kind   RunKind
	stages map[Stage]stageFunc
}

// Run executes a live run: fetch snapshot, decide, execute against the
// account and track. Configuration errors abort before any instrument runs.
func (o *Orchestrator) Run(ctx context.Context, cfg config.RunConfig) (*RunResult, error) {
	run, err := o.Prepare(KindLive, cfg)
	if err != nil {
		return nil, err
	}
	return o.Execute(ctx, run)
}

// Backtest replays historical bars for every instrument in the date range
func (o *Orchestrator) Backtest(ctx context.Context, cfg config.RunConfig) (*RunResult, error) {
	run, err := o.Prepare(KindBacktest, cfg)
	if err != nil {
		return nil, err
	}
	return o.Execute(ctx, run)
}

// Prepare validates cfg and builds the run record without starting it
func (o *Orchestrator) Prepare(kind RunKind, cfg config.RunConfig) (Run, error) {
	cfg.Normalize()

	switch kind {
	case KindLive:
		if err := cfg.Validate(); err != nil {
			return Run{}, err
		}
		if o.deps.Fetcher == nil || o.deps.Executor == nil {
			return Run{}, domain.InvalidConfigf("live runs need a snapshot fetcher and an executor")
		}
	case KindBacktest:
		if err := cfg.ValidateBacktest(); err != nil {
			return Run{}, err
		}
		if o.deps.Bars == nil {
			return Run{}, domain.InvalidConfigf("backtests need a bar source")
		}
		if _, err := backtest.NewEngine(backtestConfig("", cfg, nil, nil), o.log); err != nil {
			return Run{}, err
		}
	default:
		return Run{}, domain.InvalidConfigf("unknown run kind %q", kind)
	}

	return Run{
		ID:        o.newID(),
		Kind:      kind,
		Status:    RunRunning,
		Config:    cfg,
		StartedAt: o.now(),
	}, nil
}

// Execute runs a prepared run to completion. Every requested instrument gets
// exactly one result, in request order.
func (o *Orchestrator) Execute(ctx context.Context, run Run) (*RunResult, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	o.track(run.ID, cancel)
	defer o.untrack(run.ID)

	log := o.log.With().Str("run_id", run.ID).Str("kind", string(run.Kind)).Logger()

	if o.deps.Results != nil {
		if err := o.deps.Results.CreateRun(run); err != nil {
			return nil, err
		}
	}

	p, err := o.plan(ctx, run)
	if err != nil {
		o.finish(run, RunFailed, err.Error(), nil)
		return nil, err
	}

	instruments := run.Config.Instruments
	o.emit(events.RunStarted, &events.RunStartedData{RunID: run.ID, Kind: string(run.Kind), Instruments: instruments})
	log.Info().Int("instruments", len(instruments)).Msg("Run started")

	progress := NewProgressReporter(o.deps.Events, run.ID, len(instruments))
	pool := work.NewPool(run.Config.WorkerLimit)

	results := work.Map(ctx, pool, len(instruments), func(ctx context.Context, i int) InstrumentResult {
		return o.runInstrument(ctx, run, p, instruments[i], progress, log)
	})

	status := RunCompleted
	switch {
	case ctx.Err() != nil:
		status = RunCancelled
	case allFailed(results):
		status = RunFailed
	}

	out := &RunResult{Run: run, Results: results}
	o.finish(run, status, "", out)

	succeeded, failed := out.Counts()
	log.Info().
		Str("status", string(status)).
		Int("succeeded", succeeded).
		Int("failed", failed).
		Dur("duration", out.Run.FinishedAt.Sub(run.StartedAt)).
		Msg("Run finished")

	return out, nil
}

// Cancel stops an in-flight run. It returns false if the run is not active.
func (o *Orchestrator) Cancel(runID string) bool {
	o.activeMu.Lock()
	cancel, ok := o.active[runID]
	o.activeMu.Unlock()
	if ok {
		cancel()
	}
	return ok
}

// Active returns the IDs of in-flight runs
func (o *Orchestrator) Active() []string {
	o.activeMu.Lock()
	defer o.activeMu.Unlock()

	ids := make([]string, 0, len(o.active))
	for id := range o.active {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (o *Orchestrator) track(runID string, cancel context.CancelFunc) {
	o.activeMu.Lock()
	o.active[runID] = cancel
	o.activeMu.Unlock()
}

func (o *Orchestrator) untrack(runID string) {
	o.activeMu.Lock()
	delete(o.active, runID)
	o.activeMu.Unlock()
}

// runInstrument drives one instrument through its stages. Stages run in
// order; the first failure, panic or cancellation ends the instrument as Failed.
func (o *Orchestrator) runInstrument(ctx context.Context, run Run, p plan, instrument string, progress *ProgressReporter, log zerolog.Logger) InstrumentResult {
	t := &task{
		runID:      run.ID,
		instrument: instrument,
		state:      StateFetch,
		result:     InstrumentResult{Instrument: instrument, Trades: []domain.TradeRecord{}},
	}

	for _, stage := range Stages {
		if err := ctx.Err(); err != nil {
			o.fail(t, stage, fmt.Errorf("%w: %w", domain.ErrCancelled, err), progress, run, log)
			break
		}

		timer := utils.NewTimer(string(stage)+" "+instrument, log)
		err := o.runStage(ctx, p.stages[stage], stage, t)
		o.deps.Metrics.observeStage(p.kind, stage, timer.Stop(), err != nil)

		if err != nil {
			if ctx.Err() != nil && !errors.Is(err, domain.ErrCancelled) {
				err = fmt.Errorf("%w: %w", domain.ErrCancelled, err)
			}
			o.fail(t, stage, err, progress, run, log)
			break
		}

		t.state = next(stage)
		progress.StageCompleted(instrument, stage)
	}

	if t.state == StateDone {
		t.result.State = StateDone
	}
	t.result.UpdatedAt = o.now()

	if o.deps.Results != nil {
		if err := o.deps.Results.SaveResult(run.ID, t.result); err != nil {
			log.Error().Err(err).Str("instrument", instrument).Msg("Failed to save instrument result")
		}
	}
	o.deps.Metrics.observeResult(p.kind, t.result)
	return t.result
}

func (o *Orchestrator) runStage(ctx context.Context, fn stageFunc, stage Stage, t *task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in %s stage: %v", stage, r)
		}
	}()
	if fn == nil {
		return nil
	}
	return fn(ctx, t)
}

func (o *Orchestrator) fail(t *task, stage Stage, err error, progress *ProgressReporter, run Run, log zerolog.Logger) {
	stageErr := &domain.StageError{Instrument: t.instrument, Stage: string(stage), Err: err}
	t.state = StateFailed
	t.result.State = StateFailed
	t.result.FailedStage = stage
	t.result.Error = err.Error()

	log.Error().
		Err(err).
		Str("instrument", t.instrument).
		Str("stage", string(stage)).
		Msg("Stage failed")

	progress.StageFailed(t.instrument, stage, stageErr.Error())
	o.emit(events.InstrumentFailed, &events.InstrumentFailedData{
		RunID:      run.ID,
		Instrument: t.instrument,
		Stage:      string(stage),
		Error:      err.Error(),
	})
}

func (o *Orchestrator) finish(run Run, status RunStatus, runErr string, out *RunResult) {
	finishedAt := o.now()
	run.Status = status
	run.Error = runErr
	run.FinishedAt = &finishedAt
	if out != nil {
		out.Run = run
	}

	if o.deps.Results != nil {
		if err := o.deps.Results.FinishRun(run.ID, status, runErr, finishedAt); err != nil {
			o.log.Error().Err(err).Str("run_id", run.ID).Msg("Failed to finish run record")
		}
	}
	o.deps.Metrics.observeRun(run.Kind, status)

	data := &events.RunCompletedData{
		RunID:      run.ID,
		Status:     string(status),
		DurationMs: finishedAt.Sub(run.StartedAt).Milliseconds(),
		Error:      runErr,
	}
	if out != nil {
		data.Succeeded, data.Failed = out.Counts()
	}
	o.emit(events.RunCompleted, data)

	if out != nil && o.deps.Exporter != nil {
		exportCtx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()
		if err := o.deps.Exporter.Export(exportCtx, out); err != nil {
			o.log.Warn().Err(err).Str("run_id", run.ID).Msg("Failed to export run results")
		}
	}
}

func (o *Orchestrator) emit(eventType events.EventType, data events.EventData) {
	if o.deps.Events != nil {
		o.deps.Events.EmitTyped(eventType, "pipeline", data)
	}
}

func (o *Orchestrator) plan(ctx context.Context, run Run) (plan, error) {
	if run.Kind == KindBacktest {
		return o.backtestPlan(ctx, run)
	}
	return o.livePlan(run), nil
}

// livePlan: Fetch the snapshot, Signal via strategies and aggregation,
// Execute against the shared account under the run's own policy, Track
// performance from the ledger's trades of the executor's mode.
func (o *Orchestrator) livePlan(run Run) plan {
	cfg := run.Config
	policy := fetchPolicy(cfg)
	execution := executionPolicy(cfg, o.log)

	return plan{kind: KindLive, stages: map[Stage]stageFunc{
		StageFetch: func(ctx context.Context, t *task) error {
			asOf := o.now()
			return policy.Do(ctx, func(ctx context.Context) error {
				snapshot, err := o.deps.Fetcher.FetchSnapshot(ctx, t.instrument, asOf)
				if err != nil {
					return err
				}
				t.snapshot = snapshot
				return nil
			})
		},
		StageSignal: func(ctx context.Context, t *task) error {
			set, err := o.strategySet(t.instrument, cfg)
			if err != nil {
				return err
			}
			decision := aggregator.Decide(set, t.snapshot)
			t.decision = &decision
			t.result.Decision = &decision
			return nil
		},
		StageExecute: func(ctx context.Context, t *task) error {
			price, _ := t.snapshot.Price()
			outcome, err := o.deps.Executor.ExecuteWith(ctx, t.runID, *t.decision, price, execution)
			if err != nil {
				return err
			}
			o.applyOutcome(t, outcome)
			return nil
		},
		StageTrack: func(ctx context.Context, t *task) error {
			if o.deps.History == nil {
				return nil
			}
			trades, err := o.deps.History.GetByInstrumentAndMode(t.instrument, o.deps.Executor.Mode(), -1)
			if err != nil {
				return fmt.Errorf("failed to load trade history: %w", err)
			}
			m := metrics.Calculate(metrics.ReturnsFromTrades(cfg.StartingCapital, trades), nil, cfg.RiskFreeRate)
			t.result.Metrics = &m
			return nil
		},
	}}
}

func (o *Orchestrator) applyOutcome(t *task, outcome domain.ExecutionOutcome) {
	switch {
	case outcome.Trade != nil:
		t.result.Trades = append(t.result.Trades, *outcome.Trade)
		o.emit(events.TradeExecuted, &events.TradeExecutedData{
			RunID:      t.runID,
			Instrument: outcome.Trade.Instrument,
			Side:       string(outcome.Trade.Action),
			Quantity:   outcome.Trade.Quantity,
			Price:      outcome.Trade.Price,
			TradeID:    outcome.Trade.ID,
			Mode:       outcome.Trade.Mode,
		})
	case outcome.Pending && outcome.Order != nil:
		t.result.Pending = append(t.result.Pending, *outcome.Order)
		o.emit(events.OrderPending, &events.OrderPendingData{
			RunID:      t.runID,
			Instrument: outcome.Order.Instrument,
			Side:       string(outcome.Order.Side),
			Quantity:   outcome.Order.Quantity,
			OrderID:    outcome.Order.ID,
		})
	default:
		t.result.Held = outcome.Reason
	}
}

// backtestPlan: Fetch bars, Signal by replaying them through the strategies
// and simulated executor, Execute by recording the simulated fills, Track
// the replay's metrics.
func (o *Orchestrator) backtestPlan(ctx context.Context, run Run) (plan, error) {
	cfg := run.Config
	policy := fetchPolicy(cfg)
	start, end, err := cfg.DateRange()
	if err != nil {
		return plan{}, err
	}

	var benchmark []domain.Bar
	if cfg.Benchmark != "" {
		err := policy.Do(ctx, func(ctx context.Context) error {
			bars, err := o.deps.Bars.HistoricalBars(ctx, cfg.Benchmark, start, end)
			benchmark = bars
			return err
		})
		if err != nil {
			o.log.Warn().Err(err).Str("benchmark", cfg.Benchmark).Msg("Benchmark unavailable, alpha and beta will be flagged")
			benchmark = nil
		}
	}

	return plan{kind: KindBacktest, stages: map[Stage]stageFunc{
		StageFetch: func(ctx context.Context, t *task) error {
			err := policy.Do(ctx, func(ctx context.Context) error {
				bars, err := o.deps.Bars.HistoricalBars(ctx, t.instrument, start, end)
				if err != nil {
					return err
				}
				t.bars = bars
				return nil
			})
			if err != nil {
				return err
			}
			if len(t.bars) == 0 {
				return fmt.Errorf("%w: no bars for %s between %s and %s", domain.ErrDataUnavailable, t.instrument, cfg.StartDate, cfg.EndDate)
			}
			if o.deps.Fundamentals != nil {
				fundamentals, err := o.deps.Fundamentals.Fundamentals(ctx, t.instrument)
				if err != nil && !errors.Is(err, domain.ErrDataUnavailable) {
					o.log.Warn().Err(err).Str("instrument", t.instrument).Msg("Fundamentals unavailable for backtest")
				}
				t.fundamentals = fundamentals
			}
			return nil
		},
		StageSignal: func(ctx context.Context, t *task) error {
			engine, err := backtest.NewEngine(backtestConfig(t.runID, cfg, benchmark, map[string]map[string]float64{t.instrument: t.fundamentals}), o.log)
			if err != nil {
				return err
			}
			replay, err := engine.Replay(ctx, t.instrument, t.bars)
			if err != nil {
				return err
			}
			t.replay = replay
			t.result.Decision = replay.Decision
			return nil
		},
		StageExecute: func(ctx context.Context, t *task) error {
			t.result.Trades = append(t.result.Trades, t.replay.Trades...)
			if o.deps.Ledger == nil {
				return nil
			}
			for _, trade := range t.replay.Trades {
				if err := o.deps.Ledger.Create(trade); err != nil {
					return fmt.Errorf("failed to record simulated trade: %w", err)
				}
			}
			return nil
		},
		StageTrack: func(ctx context.Context, t *task) error {
			m := t.replay.Metrics
			t.result.Metrics = &m
			t.result.EndingValue = t.replay.EndingValue
			return nil
		},
	}}, nil
}

// strategySet returns the cached strategy set for an instrument. Sets keep
// rolling history between live runs, keyed by the strategy configuration;
// the least recently used set is evicted once the cache is full.
func (o *Orchestrator) strategySet(instrument string, cfg config.RunConfig) (*strategy.Set, error) {
	fingerprint, err := json.Marshal(struct {
		IDs        []domain.StrategyID
		Thresholds strategy.Thresholds
	}{cfg.StrategyIDs(), cfg.Thresholds})
	if err != nil {
		return nil, fmt.Errorf("failed to fingerprint strategy config: %w", err)
	}
	key := instrument + "|" + string(fingerprint)

	o.setsMu.Lock()
	defer o.setsMu.Unlock()

	if set, ok := o.sets.Get(key); ok {
		return set, nil
	}
	set, err := strategy.NewSet(cfg.StrategyIDs(), cfg.Thresholds)
	if err != nil {
		return nil, err
	}
	o.sets.Add(key, set)
	return set, nil
}

// executionPolicy applies a live run's sizing, eligibility and commission
// settings to the shared account
func executionPolicy(cfg config.RunConfig, log zerolog.Logger) trading.Policy {
	commission := cfg.CommissionRate
	return trading.Policy{
		Sizer:          cfg.Sizer(),
		Eligibility:    trading.NewEligibilityChecker(cfg.Blacklist, cfg.PositionCap, log),
		CommissionRate: &commission,
	}
}

func fetchPolicy(cfg config.RunConfig) work.RetryPolicy {
	policy := cfg.RetryPolicy()
	policy.Retryable = func(err error) bool {
		return !errors.Is(err, domain.ErrDataUnavailable) && !errors.Is(err, domain.ErrInvalidConfiguration)
	}
	return policy
}

func backtestConfig(runID string, cfg config.RunConfig, benchmark []domain.Bar, fundamentals map[string]map[string]float64) backtest.Config {
	return backtest.Config{
		RunID:           runID,
		StartingCapital: cfg.StartingCapital,
		CommissionRate:  cfg.CommissionRate,
		StopLoss:        cfg.StopLoss,
		TakeProfit:      cfg.TakeProfit,
		Sizer:           cfg.Sizer(),
		Blacklist:       cfg.Blacklist,
		PositionCap:     cfg.PositionCap,
		Strategies:      cfg.Strategies,
		Thresholds:      cfg.Thresholds,
		RiskFreeRate:    cfg.RiskFreeRate,
		Benchmark:       benchmark,
		Fundamentals:    fundamentals,
		Workers:         1,
	}
}

func allFailed(results []InstrumentResult) bool {
	if len(results) == 0 {
		return false
	}
	for _, r := range results {
		if !r.Failed() {
			return false
		}
	}
	return true
}
