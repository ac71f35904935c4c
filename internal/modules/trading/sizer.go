package trading

import (
	"math"

	"github.com/aristath/hybrid-trader/internal/domain"
)

// Sizer turns buying power into an order quantity
type Sizer struct {
	PositionFraction       float64
	MaxInvestmentPartition float64
}

// Size returns floor(min(bp*position_fraction, bp*max_investment_partition) / price).
// It returns 0 for non-positive price or buying power, or for a non-Buy decision.
func (s Sizer) Size(decision domain.AggregatedDecision, buyingPower, price float64) int64 {
	if decision.Action != domain.ActionBuy {
		return 0
	}
	return SizeFor(buyingPower, price, s.PositionFraction, s.MaxInvestmentPartition)
}

// SizeFor is the sizing formula without a decision
func SizeFor(buyingPower, price, positionFraction, maxInvestmentPartition float64) int64 {
	if price <= 0 || buyingPower <= 0 || positionFraction <= 0 || maxInvestmentPartition <= 0 {
		return 0
	}
	budget := math.Min(buyingPower*positionFraction, buyingPower*maxInvestmentPartition)
	return int64(math.Floor(budget / price))
}

// Validate checks both fractions are in (0, 1]
func (s Sizer) Validate() error {
	if s.PositionFraction <= 0 || s.PositionFraction > 1 {
		return domain.InvalidConfigf("position_fraction must be in (0, 1], got %f", s.PositionFraction)
	}
	if s.MaxInvestmentPartition <= 0 || s.MaxInvestmentPartition > 1 {
		return domain.InvalidConfigf("max_investment_partition must be in (0, 1], got %f", s.MaxInvestmentPartition)
	}
	return nil
}
