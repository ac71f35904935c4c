package strategy

import (
	"fmt"

	"github.com/aristath/hybrid-trader/internal/domain"
	"github.com/aristath/hybrid-trader/pkg/formulas"
)

// meanReversionStrategy buys below the moving average on positive momentum
// and sells above it on negative momentum. When the snapshot carries too
// little history it falls back to the prices it has observed itself.
type meanReversionStrategy struct {
	th       MeanReversionThresholds
	observed *RingBuffer[float64]
}

func newMeanReversionStrategy(th MeanReversionThresholds) *meanReversionStrategy {
	return &meanReversionStrategy{
		th:       th,
		observed: NewRingBuffer[float64](th.Window),
	}
}

func (s *meanReversionStrategy) ID() domain.StrategyID { return MeanReversion }

func (s *meanReversionStrategy) Evaluate(snapshot *domain.MarketSnapshot) domain.Signal {
	price, ok := snapshot.Price()
	if !ok {
		return missing(s.ID(), snapshot, "price")
	}

	series := snapshot.Closes()
	if len(series) < s.th.Window {
		series = s.observed.Values()
	}
	s.observed.Push(price)

	if len(series) < s.th.Window || len(series) < s.th.MomentumBars {
		return missing(s.ID(), snapshot, "history")
	}

	ma := formulas.SimpleMovingAverage(series, s.th.Window)
	base := series[len(series)-s.th.MomentumBars]
	if ma <= 0 || base <= 0 {
		return missing(s.ID(), snapshot, "history")
	}

	deviation := price - ma
	threshold := s.th.Deviation * ma
	momentum := (price - base) / base

	evidence := map[string]float64{
		"price":          price,
		"moving_average": ma,
		"deviation":      deviation,
		"threshold":      threshold,
		"momentum":       momentum,
	}

	switch {
	case deviation < -threshold && momentum > 0:
		return newSignal(s.ID(), snapshot, domain.ActionBuy,
			fmt.Sprintf("price %.2f below %d-bar average and momentum is positive", price, s.th.Window), evidence)
	case deviation > threshold && momentum < 0:
		return newSignal(s.ID(), snapshot, domain.ActionSell,
			fmt.Sprintf("price %.2f above %d-bar average and momentum is negative", price, s.th.Window), evidence)
	default:
		return hold(s.ID(), snapshot, "no strong buy or sell signal", evidence)
	}
}
