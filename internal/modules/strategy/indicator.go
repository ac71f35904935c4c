package strategy

import (
	"fmt"

	"github.com/aristath/hybrid-trader/internal/domain"
)

// indicatorStrategy compares price against the forecast and counts
// indicators crossing their buy or sell band.
type indicatorStrategy struct {
	th TrendThresholds
}

func newIndicatorStrategy(th TrendThresholds) *indicatorStrategy {
	return &indicatorStrategy{th: th}
}

func (s *indicatorStrategy) ID() domain.StrategyID { return IndicatorTrend }

func (s *indicatorStrategy) Evaluate(snapshot *domain.MarketSnapshot) domain.Signal {
	price, ok := snapshot.Price()
	if !ok {
		return missing(s.ID(), snapshot, "price")
	}
	forecast, ok := snapshot.Forecast.Horizon(0)
	if !ok {
		return missing(s.ID(), snapshot, "forecast")
	}

	var present, buyVotes, sellVotes int
	for _, name := range domain.VotingIndicators {
		v, ok := snapshot.Indicator(name)
		if !ok {
			continue
		}
		band, ok := s.th.Indicators[name]
		if !ok {
			continue
		}
		present++
		if v < band.Buy {
			buyVotes++
		}
		if v > band.Sell {
			sellVotes++
		}
	}
	if present == 0 {
		return missing(s.ID(), snapshot, "indicators")
	}

	evidence := map[string]float64{
		"price":      price,
		"forecast":   forecast,
		"indicators": float64(present),
		"buy_votes":  float64(buyVotes),
		"sell_votes": float64(sellVotes),
	}

	healthy := true
	if z, ok := snapshot.Fundamental(domain.ScoreAltmanZ); ok {
		evidence["altman_z"] = z
		healthy = z > s.th.FinancialHealth
	}

	buyNeeded := s.th.MinAgreeing
	if price < forecast && healthy {
		buyNeeded = 1
	}
	sellNeeded := s.th.MinAgreeing
	if price > forecast {
		sellNeeded = 1
	}

	switch {
	case buyVotes >= buyNeeded:
		return newSignal(s.ID(), snapshot, domain.ActionBuy,
			fmt.Sprintf("%d of %d indicators below buy threshold (needed %d)", buyVotes, present, buyNeeded), evidence)
	case sellVotes >= sellNeeded:
		return newSignal(s.ID(), snapshot, domain.ActionSell,
			fmt.Sprintf("%d of %d indicators above sell threshold (needed %d)", sellVotes, present, sellNeeded), evidence)
	default:
		return hold(s.ID(), snapshot, "no strong buy or sell signal", evidence)
	}
}
