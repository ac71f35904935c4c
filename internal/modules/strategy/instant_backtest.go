package strategy

import (
	"fmt"

	"github.com/aristath/hybrid-trader/internal/domain"
)

// instantBacktestStrategy walks the last N closes plus the current price and
// reports the first bar-over-bar drop or rise that crosses its threshold.
type instantBacktestStrategy struct {
	th InstantBacktestThresholds
}

func newInstantBacktestStrategy(th InstantBacktestThresholds) *instantBacktestStrategy {
	return &instantBacktestStrategy{th: th}
}

func (s *instantBacktestStrategy) ID() domain.StrategyID { return InstantBacktest }

func (s *instantBacktestStrategy) Evaluate(snapshot *domain.MarketSnapshot) domain.Signal {
	price, ok := snapshot.Price()
	if !ok {
		return missing(s.ID(), snapshot, "price")
	}
	closes := snapshot.Closes()
	if len(closes) == 0 {
		return missing(s.ID(), snapshot, "history")
	}
	if len(closes) > s.th.Lookback {
		closes = closes[len(closes)-s.th.Lookback:]
	}
	series := append(closes, price)

	for i := 1; i < len(series); i++ {
		prev, cur := series[i-1], series[i]
		if prev <= 0 {
			continue
		}
		evidence := map[string]float64{
			"previous": prev,
			"current":  cur,
			"bars_ago": float64(len(series) - 1 - i),
		}
		if cur <= prev*(1-s.th.Drop) {
			return newSignal(s.ID(), snapshot, domain.ActionBuy,
				fmt.Sprintf("%.0f%% drop from prior bar", s.th.Drop*100), evidence)
		}
		if cur >= prev*(1+s.th.Rise) {
			return newSignal(s.ID(), snapshot, domain.ActionSell,
				fmt.Sprintf("%.0f%% rise from prior bar", s.th.Rise*100), evidence)
		}
	}

	return hold(s.ID(), snapshot, "no favorable conditions in lookback",
		map[string]float64{"bars": float64(len(series))})
}
