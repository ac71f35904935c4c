// Package domain provides core domain models and types.
package domain

import (
	"encoding/json"
	"math"
	"time"
)

// Action is a trade direction recommended by a strategy or decided by aggregation
type Action string

const (
	ActionBuy  Action = "Buy"
	ActionSell Action = "Sell"
	ActionHold Action = "Hold"
)

// Actions lists every action in a fixed order (used for deterministic iteration)
var Actions = []Action{ActionBuy, ActionSell, ActionHold}

// Valid reports whether a is one of Buy, Sell or Hold
func (a Action) Valid() bool {
	return a == ActionBuy || a == ActionSell || a == ActionHold
}

// StrategyID identifies a strategy in the registry
type StrategyID string

// Instrument is an immutable tradable symbol
type Instrument struct {
	Symbol    string    `json:"symbol"`
	Exchange  string    `json:"exchange,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Bar is one OHLCV period
type Bar struct {
	Timestamp time.Time `json:"timestamp"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    float64   `json:"volume"`
}

// Quote is the latest price information for an instrument
type Quote struct {
	Bid  float64 `json:"bid"`
	Ask  float64 `json:"ask"`
	Last float64 `json:"last"`
}

// Position represents an open holding
type Position struct {
	Instrument  string  `json:"instrument"`
	Quantity    int64   `json:"quantity"`
	AverageCost float64 `json:"average_cost"`
}

// PortfolioState is cash plus open positions. Mutated only by fills.
type PortfolioState struct {
	Cash      float64             `json:"cash"`
	Positions map[string]Position `json:"positions"`
}

// Clone returns a deep copy safe to hand out of a lock
func (p PortfolioState) Clone() PortfolioState {
	positions := make(map[string]Position, len(p.Positions))
	for k, v := range p.Positions {
		positions[k] = v
	}
	return PortfolioState{Cash: p.Cash, Positions: positions}
}

// Value returns cash plus positions marked at the given prices.
// Positions without a price are marked at average cost.
func (p PortfolioState) Value(prices map[string]float64) float64 {
	total := p.Cash
	for symbol, pos := range p.Positions {
		price, ok := prices[symbol]
		if !ok || price <= 0 {
			price = pos.AverageCost
		}
		total += float64(pos.Quantity) * price
	}
	return total
}

// TradeRecord is an append-only log entry written on every fill
type TradeRecord struct {
	ID             string    `json:"id"`
	RunID          string    `json:"run_id,omitempty"`
	Instrument     string    `json:"instrument"`
	Action         Action    `json:"action"`
	Quantity       int64     `json:"quantity"`
	Price          float64   `json:"price"`
	Commission     float64   `json:"commission"`
	Timestamp      time.Time `json:"timestamp"`
	PortfolioValue float64   `json:"portfolio_value"`
	Mode           string    `json:"mode"` // live, paper, backtest
	Reason         string    `json:"reason,omitempty"`
}

// PerformanceMetrics are derived from a return series.
// Metrics that could not be computed hold NaN and are listed in Flags.
type PerformanceMetrics struct {
	Sharpe           float64  `json:"sharpe"`
	Sortino          float64  `json:"sortino"`
	MaxDrawdown      float64  `json:"max_drawdown"`
	Volatility       float64  `json:"volatility"`
	AnnualizedReturn float64  `json:"annualized_return"`
	Alpha            float64  `json:"alpha"`
	Beta             float64  `json:"beta"`
	Periods          int      `json:"periods"`
	Flags            []string `json:"flags,omitempty"`
}

// Flagged reports whether the named metric is flagged as undefined
func (m PerformanceMetrics) Flagged(name string) bool {
	for _, f := range m.Flags {
		if f == name {
			return true
		}
	}
	return false
}

// MarshalJSON writes NaN metrics as null; encoding/json rejects NaN.
func (m PerformanceMetrics) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Sharpe           *float64 `json:"sharpe"`
		Sortino          *float64 `json:"sortino"`
		MaxDrawdown      *float64 `json:"max_drawdown"`
		Volatility       *float64 `json:"volatility"`
		AnnualizedReturn *float64 `json:"annualized_return"`
		Alpha            *float64 `json:"alpha"`
		Beta             *float64 `json:"beta"`
		Periods          int      `json:"periods"`
		Flags            []string `json:"flags,omitempty"`
	}{
		Sharpe:           finiteOrNil(m.Sharpe),
		Sortino:          finiteOrNil(m.Sortino),
		MaxDrawdown:      finiteOrNil(m.MaxDrawdown),
		Volatility:       finiteOrNil(m.Volatility),
		AnnualizedReturn: finiteOrNil(m.AnnualizedReturn),
		Alpha:            finiteOrNil(m.Alpha),
		Beta:             finiteOrNil(m.Beta),
		Periods:          m.Periods,
		Flags:            m.Flags,
	})
}

// UnmarshalJSON reads null metrics back as NaN
func (m *PerformanceMetrics) UnmarshalJSON(data []byte) error {
	var raw struct {
		Sharpe           *float64 `json:"sharpe"`
		Sortino          *float64 `json:"sortino"`
		MaxDrawdown      *float64 `json:"max_drawdown"`
		Volatility       *float64 `json:"volatility"`
		AnnualizedReturn *float64 `json:"annualized_return"`
		Alpha            *float64 `json:"alpha"`
		Beta             *float64 `json:"beta"`
		Periods          int      `json:"periods"`
		Flags            []string `json:"flags,omitempty"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	m.Sharpe = nilToNaN(raw.Sharpe)
	m.Sortino = nilToNaN(raw.Sortino)
	m.MaxDrawdown = nilToNaN(raw.MaxDrawdown)
	m.Volatility = nilToNaN(raw.Volatility)
	m.AnnualizedReturn = nilToNaN(raw.AnnualizedReturn)
	m.Alpha = nilToNaN(raw.Alpha)
	m.Beta = nilToNaN(raw.Beta)
	m.Periods = raw.Periods
	m.Flags = raw.Flags
	return nil
}

func finiteOrNil(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

func nilToNaN(v *float64) float64 {
	if v == nil {
		return math.NaN()
	}
	return *v
}
