package aggregator

import (
	"github.com/aristath/hybrid-trader/internal/domain"
	"github.com/aristath/hybrid-trader/internal/modules/strategy"
)

// Decide runs every strategy in set against the snapshot and aggregates the
// signals. Live runs and backtest replay both decide through here.
func Decide(set *strategy.Set, snapshot *domain.MarketSnapshot) domain.AggregatedDecision {
	signals := set.EvaluateAll(snapshot)
	return Aggregate(snapshot.Instrument, signals, snapshot.NetSentiment(), snapshot.AsOf)
}
