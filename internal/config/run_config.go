package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/aristath/hybrid-trader/internal/domain"
	"github.com/aristath/hybrid-trader/internal/modules/strategy"
	"github.com/aristath/hybrid-trader/internal/modules/trading"
	"github.com/aristath/hybrid-trader/internal/utils"
	"github.com/aristath/hybrid-trader/internal/work"
	"gopkg.in/yaml.v3"
)

const dateLayout = "2006-01-02"

// Duration is a time.Duration read from "30s"-style strings or plain seconds
type Duration time.Duration

// MarshalJSON writes the duration as a string
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// UnmarshalJSON accepts "30s" or a number of seconds
func (d *Duration) UnmarshalJSON(data []byte) error {
	var raw interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	return d.set(raw)
}

// MarshalYAML writes the duration as a string
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// UnmarshalYAML accepts "30s" or a number of seconds
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var raw interface{}
	if err := node.Decode(&raw); err != nil {
		return err
	}
	return d.set(raw)
}

func (d *Duration) set(raw interface{}) error {
	switch v := raw.(type) {
	case float64:
		*d = Duration(time.Duration(v * float64(time.Second)))
	case int:
		*d = Duration(time.Duration(v) * time.Second)
	case string:
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", v, err)
		}
		*d = Duration(parsed)
	default:
		return fmt.Errorf("invalid duration %v", raw)
	}
	return nil
}

// RunConfig is the configuration for one live run or backtest
type RunConfig struct {
	Instruments            []string            `json:"instruments" yaml:"instruments"`
	StartDate              string              `json:"start_date,omitempty" yaml:"start_date"`
	EndDate                string              `json:"end_date,omitempty" yaml:"end_date"`
	PositionFraction       float64             `json:"position_fraction" yaml:"position_fraction"`
	MaxInvestmentPartition float64             `json:"max_investment_partition" yaml:"max_investment_partition"`
	Blacklist              []string            `json:"blacklist" yaml:"blacklist"`
	WorkerLimit            int                 `json:"worker_limit" yaml:"worker_limit"`
	RetryCount             int                 `json:"retry_count" yaml:"retry_count"`
	RetryTimeout           Duration            `json:"retry_timeout" yaml:"retry_timeout"`
	StartingCapital        float64             `json:"starting_capital" yaml:"starting_capital"`
	PositionCap            float64             `json:"position_cap,omitempty" yaml:"position_cap"`
	CommissionRate         float64             `json:"commission_rate" yaml:"commission_rate"`
	StopLoss               float64             `json:"stop_loss" yaml:"stop_loss"`
	TakeProfit             float64             `json:"take_profit" yaml:"take_profit"`
	Benchmark              string              `json:"benchmark,omitempty" yaml:"benchmark"`
	RiskFreeRate           float64             `json:"risk_free_rate" yaml:"risk_free_rate"`
	Strategies             []domain.StrategyID `json:"strategies,omitempty" yaml:"strategies"`
	Thresholds             strategy.Thresholds `json:"thresholds" yaml:"thresholds"`
}

// DefaultRunConfig returns the calibrated run defaults
func DefaultRunConfig() RunConfig {
	return RunConfig{
		PositionFraction:       0.02,
		MaxInvestmentPartition: 0.1,
		Blacklist:              []string{"BTC-USD", "^N225"},
		WorkerLimit:            8,
		RetryCount:             3,
		RetryTimeout:           Duration(30 * time.Second),
		StartingCapital:        1000,
		CommissionRate:         0.002,
		StopLoss:               0.04,
		TakeProfit:             0.02,
		RiskFreeRate:           0,
		Thresholds:             strategy.DefaultThresholds(),
	}
}

// LoadRunConfigFile reads a YAML run definition over the defaults
func LoadRunConfigFile(path string) (RunConfig, error) {
	cfg := DefaultRunConfig()

	file, err := os.Open(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to open run config: %w", err)
	}
	defer file.Close()

	decoder := yaml.NewDecoder(file)
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil {
		return cfg, domain.InvalidConfigf("failed to parse %s: %v", path, err)
	}

	cfg.Normalize()
	return cfg, nil
}

// Normalize upper-cases and trims instrument symbols
func (c *RunConfig) Normalize() {
	c.Instruments = utils.NormalizeSymbols(c.Instruments)
	c.Blacklist = utils.NormalizeSymbols(c.Blacklist)
	c.Benchmark = utils.NormalizeSymbol(c.Benchmark)
}

// Validate rejects configurations that must abort a run before any instrument is processed
func (c RunConfig) Validate() error {
	if len(c.Instruments) == 0 {
		return domain.InvalidConfigf("no instruments requested")
	}

	blacklisted := make(map[string]bool, len(c.Blacklist))
	for _, symbol := range c.Blacklist {
		blacklisted[utils.NormalizeSymbol(symbol)] = true
	}
	seen := make(map[string]bool, len(c.Instruments))
	for _, raw := range c.Instruments {
		symbol := utils.NormalizeSymbol(raw)
		if symbol == "" {
			return domain.InvalidConfigf("empty instrument symbol")
		}
		if seen[symbol] {
			return domain.InvalidConfigf("instrument %s requested twice", symbol)
		}
		if blacklisted[symbol] {
			return domain.InvalidConfigf("instrument %s is blacklisted", symbol)
		}
		seen[symbol] = true
	}

	if _, _, err := c.DateRange(); err != nil {
		return err
	}
	if err := c.Sizer().Validate(); err != nil {
		return err
	}
	if c.WorkerLimit <= 0 {
		return domain.InvalidConfigf("worker_limit must be positive, got %d", c.WorkerLimit)
	}
	if c.RetryCount < 0 {
		return domain.InvalidConfigf("retry_count must not be negative, got %d", c.RetryCount)
	}
	if c.RetryTimeout <= 0 {
		return domain.InvalidConfigf("retry_timeout must be positive")
	}
	if c.StartingCapital <= 0 {
		return domain.InvalidConfigf("starting_capital must be positive, got %v", c.StartingCapital)
	}
	if c.CommissionRate < 0 || c.CommissionRate >= 1 {
		return domain.InvalidConfigf("commission_rate must be in [0, 1), got %v", c.CommissionRate)
	}
	for _, id := range c.Strategies {
		if _, err := strategy.New(id, c.Thresholds); err != nil {
			return err
		}
	}
	return nil
}

// ValidateBacktest additionally requires a date range
func (c RunConfig) ValidateBacktest() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if c.StartDate == "" || c.EndDate == "" {
		return domain.InvalidConfigf("backtests require start_date and end_date")
	}
	return nil
}

// DateRange parses start and end dates. Both are zero when unset.
func (c RunConfig) DateRange() (start, end time.Time, err error) {
	if c.StartDate == "" && c.EndDate == "" {
		return time.Time{}, time.Time{}, nil
	}
	if c.StartDate == "" || c.EndDate == "" {
		return time.Time{}, time.Time{}, domain.InvalidConfigf("start_date and end_date must be set together")
	}
	start, err = time.Parse(dateLayout, c.StartDate)
	if err != nil {
		return time.Time{}, time.Time{}, domain.InvalidConfigf("malformed start_date %q", c.StartDate)
	}
	end, err = time.Parse(dateLayout, c.EndDate)
	if err != nil {
		return time.Time{}, time.Time{}, domain.InvalidConfigf("malformed end_date %q", c.EndDate)
	}
	if end.Before(start) {
		return time.Time{}, time.Time{}, domain.InvalidConfigf("end_date %s before start_date %s", c.EndDate, c.StartDate)
	}
	return start, end, nil
}

// Sizer returns the position sizer for this run
func (c RunConfig) Sizer() trading.Sizer {
	return trading.Sizer{
		PositionFraction:       c.PositionFraction,
		MaxInvestmentPartition: c.MaxInvestmentPartition,
	}
}

// RetryPolicy returns the fetch retry policy for this run
func (c RunConfig) RetryPolicy() work.RetryPolicy {
	return work.RetryPolicy{
		Retries: c.RetryCount,
		Timeout: time.Duration(c.RetryTimeout),
		Backoff: 200 * time.Millisecond,
	}
}

// StrategyIDs returns the configured strategies, or every registered one
func (c RunConfig) StrategyIDs() []domain.StrategyID {
	if len(c.Strategies) == 0 {
		return strategy.IDs()
	}
	return c.Strategies
}
