package strategy

import "github.com/aristath/hybrid-trader/internal/domain"

// volatilityReversionStrategy trades Bollinger band touches confirmed by RSI
type volatilityReversionStrategy struct {
	th VolatilityReversionThresholds
}

func newVolatilityReversionStrategy(th VolatilityReversionThresholds) *volatilityReversionStrategy {
	return &volatilityReversionStrategy{th: th}
}

func (s *volatilityReversionStrategy) ID() domain.StrategyID { return VolatilityReversion }

func (s *volatilityReversionStrategy) Evaluate(snapshot *domain.MarketSnapshot) domain.Signal {
	price, ok := snapshot.Price()
	if !ok {
		return missing(s.ID(), snapshot, "price")
	}
	upper, ok := snapshot.Indicator(domain.IndicatorBollingerUpper)
	if !ok {
		return missing(s.ID(), snapshot, domain.IndicatorBollingerUpper)
	}
	lower, ok := snapshot.Indicator(domain.IndicatorBollingerLower)
	if !ok {
		return missing(s.ID(), snapshot, domain.IndicatorBollingerLower)
	}
	rsi, ok := snapshot.Indicator(domain.IndicatorRSI)
	if !ok {
		return missing(s.ID(), snapshot, domain.IndicatorRSI)
	}

	evidence := map[string]float64{
		"price":      price,
		"upper_band": upper,
		"lower_band": lower,
		"rsi":        rsi,
	}

	switch {
	case price >= upper && rsi > s.th.Overbought:
		return newSignal(s.ID(), snapshot, domain.ActionSell,
			"price at or above upper band and RSI overbought", evidence)
	case price <= lower && rsi < s.th.Oversold:
		return newSignal(s.ID(), snapshot, domain.ActionBuy,
			"price at or below lower band and RSI oversold", evidence)
	default:
		return hold(s.ID(), snapshot, "no strong buy or sell signal", evidence)
	}
}
