// Package trading sizes aggregated decisions into orders and executes them.
package trading

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/aristath/hybrid-trader/internal/domain"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Trading modes recorded on every trade
const (
	ModeLive     = "live"
	ModePaper    = "paper"
	ModeBacktest = "backtest"
)

// TradeRecorder persists trade records
type TradeRecorder interface {
	Create(trade domain.TradeRecord) error
}

// Policy is how a run sizes and screens its orders. Runs with different
// configurations share the executor's account but bring their own policy.
type Policy struct {
	Sizer       Sizer
	Eligibility *EligibilityChecker // nil skips eligibility checks
	// CommissionRate overrides the broker's rate when set
	CommissionRate *float64
}

// pendingOrder keeps the policy of the run that queued the order
type pendingOrder struct {
	order  *domain.Order
	policy Policy
}

// Executor turns decisions into orders against one account.
// All account reads, sizing and submissions are serialized by mu, so
// concurrent instrument tasks never size against stale buying power.
type Executor struct {
	mu       sync.Mutex
	broker   domain.Broker
	clock    domain.MarketClock
	policy   Policy
	recorder TradeRecorder
	mode     string

	pending    map[string][]*pendingOrder
	pendingSeq []string

	newID func() string
	log   zerolog.Logger
}

// NewExecutor creates an executor. sizer and eligibility form the default
// policy used by Execute. recorder may be nil.
func NewExecutor(
	broker domain.Broker,
	clock domain.MarketClock,
	sizer Sizer,
	eligibility *EligibilityChecker,
	recorder TradeRecorder,
	mode string,
	log zerolog.Logger,
) *Executor {
	return &Executor{
		broker:   broker,
		clock:    clock,
		policy:   Policy{Sizer: sizer, Eligibility: eligibility},
		recorder: recorder,
		mode:     mode,
		pending:  make(map[string][]*pendingOrder),
		newID:    func() string { return uuid.New().String() },
		log:      log.With().Str("service", "executor").Str("mode", mode).Logger(),
	}
}

// Mode returns the trading mode recorded on this executor's trades
func (e *Executor) Mode() string {
	return e.mode
}

// Execute acts on one decision at the given reference price.
//
// Hold decisions, ineligible instruments and zero-quantity sizing produce a
// held outcome. When the session is closed the order is queued as Pending.
// Broker rejections are recorded on the outcome and are not errors.
func (e *Executor) Execute(ctx context.Context, runID string, decision domain.AggregatedDecision, price float64) (domain.ExecutionOutcome, error) {
	return e.ExecuteWith(ctx, runID, decision, price, e.policy)
}

// ExecuteWith is Execute under a run's own policy
func (e *Executor) ExecuteWith(ctx context.Context, runID string, decision domain.AggregatedDecision, price float64, policy Policy) (domain.ExecutionOutcome, error) {
	outcome := domain.ExecutionOutcome{Decision: decision}

	if decision.Action != domain.ActionBuy && decision.Action != domain.ActionSell {
		outcome.Held = true
		outcome.Reason = "decision is Hold"
		return outcome, nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	state, err := e.broker.AccountState(ctx)
	if err != nil {
		return outcome, fmt.Errorf("failed to get account state: %w", err)
	}

	if policy.Eligibility != nil {
		if err := policy.Eligibility.Check(decision, state, price); err != nil {
			outcome.Held = true
			outcome.Reason = err.Error()
			return outcome, nil
		}
	}

	qty := quantity(policy.Sizer, decision.Action, decision.Instrument, state, price)
	if qty <= 0 {
		outcome.Held = true
		outcome.Reason = fmt.Sprintf("%v: sizing yielded zero quantity", domain.ErrInsufficientCapital)
		return outcome, nil
	}

	at := decision.Timestamp
	if at.IsZero() {
		at = time.Now()
	}
	order := &domain.Order{
		ID:             e.newID(),
		RunID:          runID,
		Instrument:     decision.Instrument,
		Side:           decision.Action,
		Quantity:       qty,
		ReferencePrice: price,
		CommissionRate: policy.CommissionRate,
		Status:         domain.OrderPending,
		CreatedAt:      at,
		UpdatedAt:      at,
	}

	if e.clock != nil && !e.clock.IsMarketOpen(at) {
		e.enqueue(&pendingOrder{order: order, policy: policy})
		queued := *order
		outcome.Order = &queued
		outcome.Pending = true
		outcome.Reason = "market closed, order queued"
		e.log.Info().
			Str("instrument", order.Instrument).
			Str("side", string(order.Side)).
			Int64("quantity", qty).
			Msg("Market closed, order pending")
		return outcome, nil
	}

	trade, err := e.submit(ctx, order, at)
	submitted := *order
	outcome.Order = &submitted
	if err != nil {
		if errors.Is(err, domain.ErrExecutionRejected) {
			outcome.Reason = err.Error()
			return outcome, nil
		}
		return outcome, err
	}
	outcome.Trade = trade
	return outcome, nil
}

// FlushPending submits queued orders FIFO per instrument if the session is open at t.
// Each order is re-checked against the current account under the policy of the
// run that queued it; an order that no longer fits any capital is dropped from
// the queue and stays Pending. An order whose submission fails without a broker
// decision goes back to the head of its queue unchanged.
func (e *Executor) FlushPending(ctx context.Context, t time.Time) ([]domain.ExecutionOutcome, error) {
	if e.clock != nil && !e.clock.IsMarketOpen(t) {
		return nil, nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	var outcomes []domain.ExecutionOutcome
	for len(e.pendingSeq) > 0 {
		instrument := e.pendingSeq[0]
		for len(e.pending[instrument]) > 0 {
			if err := ctx.Err(); err != nil {
				return outcomes, err
			}

			entry := e.pending[instrument][0]
			saved := *entry.order
			e.pending[instrument] = e.pending[instrument][1:]

			outcome, err := e.flushOne(ctx, entry, t)
			if err != nil {
				*entry.order = saved
				e.pending[instrument] = append([]*pendingOrder{entry}, e.pending[instrument]...)
				e.log.Error().Err(err).Str("order_id", saved.ID).Msg("Failed to flush pending order, kept queued")
				return outcomes, err
			}
			outcomes = append(outcomes, outcome)
		}
		delete(e.pending, instrument)
		e.pendingSeq = e.pendingSeq[1:]
	}

	if len(outcomes) > 0 {
		e.log.Info().Int("orders", len(outcomes)).Msg("Pending orders flushed")
	}
	return outcomes, nil
}

func (e *Executor) flushOne(ctx context.Context, entry *pendingOrder, t time.Time) (domain.ExecutionOutcome, error) {
	order, policy := entry.order, entry.policy
	decision := domain.AggregatedDecision{
		Instrument: order.Instrument,
		Action:     order.Side,
		Timestamp:  t,
	}
	outcome := domain.ExecutionOutcome{Decision: decision}

	state, err := e.broker.AccountState(ctx)
	if err != nil {
		return outcome, fmt.Errorf("failed to get account state: %w", err)
	}

	if policy.Eligibility != nil {
		if err := policy.Eligibility.Check(decision, state, order.ReferencePrice); err != nil {
			dropped := *order
			outcome.Order = &dropped
			outcome.Held = true
			outcome.Reason = err.Error()
			return outcome, nil
		}
	}

	allowed := quantity(policy.Sizer, order.Side, order.Instrument, state, order.ReferencePrice)
	if allowed < order.Quantity {
		order.Quantity = allowed
	}
	if order.Quantity <= 0 {
		dropped := *order
		outcome.Order = &dropped
		outcome.Held = true
		outcome.Reason = fmt.Sprintf("%v: no capital for pending order", domain.ErrInsufficientCapital)
		return outcome, nil
	}

	trade, err := e.submit(ctx, order, t)
	submitted := *order
	outcome.Order = &submitted
	if err != nil {
		if errors.Is(err, domain.ErrExecutionRejected) {
			outcome.Reason = err.Error()
			return outcome, nil
		}
		return outcome, err
	}
	outcome.Trade = trade
	return outcome, nil
}

// Pending returns copies of queued orders, FIFO per instrument
func (e *Executor) Pending() []domain.Order {
	e.mu.Lock()
	defer e.mu.Unlock()

	var out []domain.Order
	for _, instrument := range e.pendingSeq {
		for _, p := range e.pending[instrument] {
			out = append(out, *p.order)
		}
	}
	return out
}

func (e *Executor) enqueue(entry *pendingOrder) {
	instrument := entry.order.Instrument
	if len(e.pending[instrument]) == 0 {
		found := false
		for _, s := range e.pendingSeq {
			if s == instrument {
				found = true
				break
			}
		}
		if !found {
			e.pendingSeq = append(e.pendingSeq, instrument)
		}
	}
	e.pending[instrument] = append(e.pending[instrument], entry)
}

// quantity sizes buys from cash and sells the whole open position
func quantity(sizer Sizer, side domain.Action, instrument string, state domain.PortfolioState, price float64) int64 {
	switch side {
	case domain.ActionBuy:
		return sizer.Size(domain.AggregatedDecision{Action: domain.ActionBuy}, state.Cash, price)
	case domain.ActionSell:
		return state.Positions[instrument].Quantity
	}
	return 0
}

// submit moves the order through Submitted to Filled or Rejected and records the trade
func (e *Executor) submit(ctx context.Context, order *domain.Order, at time.Time) (*domain.TradeRecord, error) {
	if err := order.Transition(domain.OrderSubmitted, at); err != nil {
		return nil, err
	}

	fill, err := e.broker.SubmitOrder(ctx, *order)
	if err != nil {
		if !errors.Is(err, domain.ErrExecutionRejected) {
			// transport failure: the order never reached a terminal state
			return nil, fmt.Errorf("failed to submit order %s: %w", order.ID, err)
		}
		order.Reason = err.Error()
		_ = order.Transition(domain.OrderRejected, at)
		e.log.Warn().
			Err(err).
			Str("instrument", order.Instrument).
			Str("order_id", order.ID).
			Msg("Order rejected")
		return nil, err
	}
	if err := order.Transition(domain.OrderFilled, at); err != nil {
		return nil, err
	}

	state, err := e.broker.AccountState(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get account state after fill: %w", err)
	}

	trade := &domain.TradeRecord{
		ID:             order.ID,
		RunID:          order.RunID,
		Instrument:     order.Instrument,
		Action:         order.Side,
		Quantity:       fill.Quantity,
		Price:          fill.Price,
		Commission:     fill.Commission,
		Timestamp:      at,
		PortfolioValue: state.Value(map[string]float64{order.Instrument: fill.Price}),
		Mode:           e.mode,
	}

	if e.recorder != nil {
		if err := e.recorder.Create(*trade); err != nil {
			e.log.Error().Err(err).Str("trade_id", trade.ID).Msg("Failed to record trade")
		}
	}

	e.log.Info().
		Str("instrument", trade.Instrument).
		Str("action", string(trade.Action)).
		Int64("quantity", trade.Quantity).
		Float64("price", trade.Price).
		Float64("portfolio_value", trade.PortfolioValue).
		Msg("Order executed")

	return trade, nil
}
