package domain

import "time"

// Technical indicator names carried in MarketSnapshot.Indicators
const (
	IndicatorSMA            = "sma"
	IndicatorEMA            = "ema"
	IndicatorWMA            = "wma"
	IndicatorDEMA           = "dema"
	IndicatorTEMA           = "tema"
	IndicatorWilliams       = "williams"
	IndicatorRSI            = "rsi"
	IndicatorStdDev         = "std_dev"
	IndicatorADX            = "adx"
	IndicatorBollingerUpper = "bollinger_upper"
	IndicatorBollingerLower = "bollinger_lower"
)

// VotingIndicators are the nine indicators the trend strategy counts
var VotingIndicators = []string{
	IndicatorEMA,
	IndicatorWMA,
	IndicatorSMA,
	IndicatorTEMA,
	IndicatorDEMA,
	IndicatorWilliams,
	IndicatorRSI,
	IndicatorStdDev,
	IndicatorADX,
}

// Fundamental ratio names carried in MarketSnapshot.Fundamentals
const (
	RatioGrossProfitMargin     = "grossProfitMargin"
	RatioOperatingProfitMargin = "operatingProfitMargin"
	RatioNetProfitMargin       = "netProfitMargin"
	RatioDebtEquity            = "debtEquityRatio"
	RatioInterestCoverage      = "interestCoverage"
	RatioCurrent               = "currentRatio"
	RatioQuick                 = "quickRatio"
	RatioPriceEarnings         = "priceEarningsRatio"
	RatioPriceBook             = "priceBookValueRatio"
	RatioPriceSales            = "priceSalesRatio"
	ScoreAltmanZ               = "altmanZScore"
)

// Forecast is a point estimate for today plus optional days-ahead estimates
type Forecast struct {
	Today float64         `json:"today"`
	Ahead map[int]float64 `json:"ahead,omitempty"`
}

// Horizon returns the estimate for the given number of days ahead.
// Zero days is today's estimate.
func (f *Forecast) Horizon(days int) (float64, bool) {
	if f == nil {
		return 0, false
	}
	if days == 0 {
		return f.Today, f.Today > 0
	}
	v, ok := f.Ahead[days]
	return v, ok && v > 0
}

// Sentiment is the numeric output of the sentiment collaborator
type Sentiment struct {
	Score          float64 `json:"score"`
	Classification string  `json:"classification,omitempty"`
}

// MarketSnapshot is the immutable per-instrument, per-timestamp input to strategies.
//
// History holds completed bars strictly before AsOf, oldest first. Quote holds the
// price observed at AsOf. Snapshots never contain data timestamped after AsOf.
type MarketSnapshot struct {
	Instrument   string             `json:"instrument"`
	AsOf         time.Time          `json:"as_of"`
	Quote        *Quote             `json:"quote,omitempty"`
	History      []Bar              `json:"history,omitempty"`
	Indicators   map[string]float64 `json:"indicators,omitempty"`
	Fundamentals map[string]float64 `json:"fundamentals,omitempty"`
	Forecast     *Forecast          `json:"forecast,omitempty"`
	Sentiment    *Sentiment         `json:"sentiment,omitempty"`
}

// Price returns the current price: last trade, else bid/ask midpoint.
func (s *MarketSnapshot) Price() (float64, bool) {
	if s == nil || s.Quote == nil {
		return 0, false
	}
	if s.Quote.Last > 0 {
		return s.Quote.Last, true
	}
	if s.Quote.Bid > 0 && s.Quote.Ask > 0 {
		return (s.Quote.Bid + s.Quote.Ask) / 2, true
	}
	return 0, false
}

// Indicator returns a named indicator value
func (s *MarketSnapshot) Indicator(name string) (float64, bool) {
	if s == nil || s.Indicators == nil {
		return 0, false
	}
	v, ok := s.Indicators[name]
	return v, ok
}

// Fundamental returns a named fundamental ratio or score
func (s *MarketSnapshot) Fundamental(name string) (float64, bool) {
	if s == nil || s.Fundamentals == nil {
		return 0, false
	}
	v, ok := s.Fundamentals[name]
	return v, ok
}

// Closes returns the closing prices of History, oldest first
func (s *MarketSnapshot) Closes() []float64 {
	if s == nil {
		return nil
	}
	closes := make([]float64, len(s.History))
	for i, b := range s.History {
		closes[i] = b.Close
	}
	return closes
}

// PriorClose returns the close of the most recent completed bar
func (s *MarketSnapshot) PriorClose() (float64, bool) {
	if s == nil || len(s.History) == 0 {
		return 0, false
	}
	c := s.History[len(s.History)-1].Close
	return c, c > 0
}

// NetSentiment returns the sentiment score, or zero when absent
func (s *MarketSnapshot) NetSentiment() float64 {
	if s == nil || s.Sentiment == nil {
		return 0
	}
	return s.Sentiment.Score
}
