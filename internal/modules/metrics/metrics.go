// Package metrics derives risk-adjusted performance figures from a return series.
//
// Every function is pure. A metric whose inputs are empty or degenerate is
// NaN and its name is listed in PerformanceMetrics.Flags.
package metrics

import (
	"math"
	"sort"

	"github.com/aristath/hybrid-trader/internal/domain"
	"github.com/aristath/hybrid-trader/pkg/formulas"
)

// Metric names used in PerformanceMetrics.Flags
const (
	MetricSharpe           = "sharpe"
	MetricSortino          = "sortino"
	MetricMaxDrawdown      = "max_drawdown"
	MetricVolatility       = "volatility"
	MetricAnnualizedReturn = "annualized_return"
	MetricAlpha            = "alpha"
	MetricBeta             = "beta"
)

// PeriodsPerYear annualizes daily series
const PeriodsPerYear = formulas.TradingDaysPerYear

// spreads below epsilon are treated as zero variance
const epsilon = 1e-15

// Calculate computes every metric for returns. benchmark may be nil, in
// which case alpha and beta are flagged.
func Calculate(returns, benchmark []float64, riskFree float64) domain.PerformanceMetrics {
	m := domain.PerformanceMetrics{
		Sharpe:           Sharpe(returns, riskFree),
		Sortino:          Sortino(returns, riskFree),
		MaxDrawdown:      MaxDrawdown(returns),
		Volatility:       Volatility(returns),
		AnnualizedReturn: AnnualizedReturn(returns),
		Periods:          len(returns),
	}
	m.Alpha, m.Beta = AlphaBeta(returns, benchmark)

	values := map[string]float64{
		MetricSharpe:           m.Sharpe,
		MetricSortino:          m.Sortino,
		MetricMaxDrawdown:      m.MaxDrawdown,
		MetricVolatility:       m.Volatility,
		MetricAnnualizedReturn: m.AnnualizedReturn,
		MetricAlpha:            m.Alpha,
		MetricBeta:             m.Beta,
	}
	for name, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			m.Flags = append(m.Flags, name)
		}
	}
	sort.Strings(m.Flags)
	return m
}

// Sharpe = mean(r - rf) / std(r - rf) * sqrt(252), with sample std
func Sharpe(returns []float64, riskFree float64) float64 {
	if len(returns) < 2 {
		return math.NaN()
	}
	excess := make([]float64, len(returns))
	for i, r := range returns {
		excess[i] = r - riskFree
	}
	sd := formulas.StdDev(excess)
	if sd < epsilon || math.IsNaN(sd) {
		return math.NaN()
	}
	return formulas.Mean(excess) / sd * math.Sqrt(PeriodsPerYear)
}

// Sortino = (mean(r) - rf) / sqrt(mean(min(r,0)^2)) * sqrt(252)
func Sortino(returns []float64, riskFree float64) float64 {
	if len(returns) == 0 {
		return math.NaN()
	}
	var sumSq float64
	for _, r := range returns {
		if r < 0 {
			sumSq += r * r
		}
	}
	downside := math.Sqrt(sumSq / float64(len(returns)))
	if downside < epsilon {
		return math.NaN()
	}
	return (formulas.Mean(returns) - riskFree) / downside * math.Sqrt(PeriodsPerYear)
}

// MaxDrawdown = max(cummax(cumprod(1+r)) - cumprod(1+r))
func MaxDrawdown(returns []float64) float64 {
	if len(returns) == 0 {
		return math.NaN()
	}
	var peak, worst float64
	for i, g := range formulas.CumulativeGrowth(returns) {
		if i == 0 || g > peak {
			peak = g
		}
		if dd := peak - g; dd > worst {
			worst = dd
		}
	}
	return worst
}

// Volatility = std(r) * sqrt(252)
func Volatility(returns []float64) float64 {
	if len(returns) < 2 {
		return math.NaN()
	}
	if sd := formulas.StdDev(returns); sd < epsilon || math.IsNaN(sd) {
		return math.NaN()
	}
	return formulas.AnnualizedVolatility(returns)
}

// AnnualizedReturn = prod(1+r)^(252/len(r)) - 1
func AnnualizedReturn(returns []float64) float64 {
	if len(returns) == 0 {
		return math.NaN()
	}
	growth := formulas.CumulativeGrowth(returns)
	total := growth[len(growth)-1]
	if total <= 0 {
		// wiped out; a fractional power of a non-positive base is undefined
		return math.NaN()
	}
	return math.Pow(total, float64(PeriodsPerYear)/float64(len(returns))) - 1
}

// AlphaBeta regresses returns on benchmark: beta = cov/var, alpha = mean(r) - beta*mean(b).
// Series of different length are aligned on their most recent periods.
func AlphaBeta(returns, benchmark []float64) (alpha, beta float64) {
	n := len(returns)
	if len(benchmark) < n {
		n = len(benchmark)
	}
	if n < 2 {
		return math.NaN(), math.NaN()
	}
	r := returns[len(returns)-n:]
	b := benchmark[len(benchmark)-n:]

	v := formulas.Variance(b)
	if v < epsilon*epsilon || math.IsNaN(v) {
		return math.NaN(), math.NaN()
	}
	beta = formulas.Covariance(r, b) / v
	alpha = formulas.Mean(r) - beta*formulas.Mean(b)
	return alpha, beta
}

// ReturnsFromValues converts a portfolio value series into per-period returns
func ReturnsFromValues(values []float64) []float64 {
	return formulas.CalculateReturns(values)
}

// ReturnsFromTrades derives returns from consecutive trade portfolio values.
// A positive startingValue is used as the value before the first trade.
func ReturnsFromTrades(startingValue float64, trades []domain.TradeRecord) []float64 {
	values := make([]float64, 0, len(trades)+1)
	if startingValue > 0 {
		values = append(values, startingValue)
	}
	for _, t := range trades {
		values = append(values, t.PortfolioValue)
	}
	return ReturnsFromValues(values)
}
