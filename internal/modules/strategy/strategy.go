// Package strategy implements the closed set of trading strategies.
//
// Every strategy turns one MarketSnapshot into one Signal. Strategies never
// return errors: missing inputs degrade to Hold with the missing field named
// in the signal evidence.
package strategy

import (
	"fmt"
	"sync"

	"github.com/aristath/hybrid-trader/internal/domain"
)

// Strategy IDs registered in the fixed table
const (
	IndicatorTrend      domain.StrategyID = "indicator_trend"
	InstantBacktest     domain.StrategyID = "instant_backtest"
	MeanReversion       domain.StrategyID = "mean_reversion_momentum"
	VolatilityReversion domain.StrategyID = "volatility_reversion"
	Prediction          domain.StrategyID = "prediction"
	Value               domain.StrategyID = "value"
)

// Strategy evaluates a snapshot into a signal
type Strategy interface {
	ID() domain.StrategyID
	Evaluate(snapshot *domain.MarketSnapshot) domain.Signal
}

type constructor func(th Thresholds) Strategy

// registry is the fixed dispatch table. Order is the evaluation order.
var registry = []struct {
	id  domain.StrategyID
	new constructor
}{
	{IndicatorTrend, func(th Thresholds) Strategy { return newIndicatorStrategy(th.Trend) }},
	{InstantBacktest, func(th Thresholds) Strategy { return newInstantBacktestStrategy(th.InstantBacktest) }},
	{MeanReversion, func(th Thresholds) Strategy { return newMeanReversionStrategy(th.MeanReversion) }},
	{VolatilityReversion, func(th Thresholds) Strategy { return newVolatilityReversionStrategy(th.VolatilityReversion) }},
	{Prediction, func(th Thresholds) Strategy { return newPredictionStrategy(th.Prediction, th.Sentiment) }},
	{Value, func(th Thresholds) Strategy { return newValueStrategy(th.Value) }},
}

// IDs returns every registered strategy ID in evaluation order
func IDs() []domain.StrategyID {
	ids := make([]domain.StrategyID, len(registry))
	for i, entry := range registry {
		ids[i] = entry.id
	}
	return ids
}

// New builds a single strategy by ID
func New(id domain.StrategyID, th Thresholds) (Strategy, error) {
	th = th.WithDefaults()
	for _, entry := range registry {
		if entry.id == id {
			return entry.new(th), nil
		}
	}
	return nil, fmt.Errorf("%w: unknown strategy %q", domain.ErrInvalidConfiguration, id)
}

// Set is the group of strategies evaluated for one instrument.
// A Set owns the rolling history of its strategies, so it must not be
// shared between instruments.
type Set struct {
	mu         sync.Mutex
	strategies []Strategy
}

// NewSet builds a Set from the given IDs, or from every registered strategy when ids is empty
func NewSet(ids []domain.StrategyID, th Thresholds) (*Set, error) {
	if len(ids) == 0 {
		ids = IDs()
	}

	seen := make(map[domain.StrategyID]bool, len(ids))
	set := &Set{strategies: make([]Strategy, 0, len(ids))}
	for _, id := range ids {
		if seen[id] {
			return nil, fmt.Errorf("%w: strategy %q listed twice", domain.ErrInvalidConfiguration, id)
		}
		seen[id] = true

		s, err := New(id, th)
		if err != nil {
			return nil, err
		}
		set.strategies = append(set.strategies, s)
	}
	return set, nil
}

// Len returns the number of strategies in the set
func (s *Set) Len() int {
	return len(s.strategies)
}

// EvaluateAll runs every strategy against the snapshot.
// A strategy that panics yields Hold without affecting the others.
func (s *Set) EvaluateAll(snapshot *domain.MarketSnapshot) []domain.Signal {
	s.mu.Lock()
	defer s.mu.Unlock()

	signals := make([]domain.Signal, 0, len(s.strategies))
	for _, st := range s.strategies {
		signals = append(signals, safeEvaluate(st, snapshot))
	}
	return signals
}

func safeEvaluate(st Strategy, snapshot *domain.MarketSnapshot) (sig domain.Signal) {
	defer func() {
		if r := recover(); r != nil {
			sig = hold(st.ID(), snapshot, fmt.Sprintf("strategy panicked: %v", r), nil)
		}
	}()
	return st.Evaluate(snapshot)
}

func newSignal(id domain.StrategyID, snapshot *domain.MarketSnapshot, action domain.Action, reason string, evidence map[string]float64) domain.Signal {
	sig := domain.Signal{
		Source:   id,
		Action:   action,
		Reason:   reason,
		Evidence: evidence,
	}
	if snapshot != nil {
		sig.Instrument = snapshot.Instrument
		sig.Timestamp = snapshot.AsOf
	}
	return sig
}

func hold(id domain.StrategyID, snapshot *domain.MarketSnapshot, reason string, evidence map[string]float64) domain.Signal {
	return newSignal(id, snapshot, domain.ActionHold, reason, evidence)
}

// missing degrades to Hold and records the absent field in evidence
func missing(id domain.StrategyID, snapshot *domain.MarketSnapshot, field string) domain.Signal {
	return hold(id, snapshot,
		fmt.Sprintf("%v: %s", domain.ErrDataUnavailable, field),
		map[string]float64{"missing:" + field: 1})
}
