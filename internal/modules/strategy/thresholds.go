package strategy

import "github.com/aristath/hybrid-trader/internal/domain"

// Band is a buy/sell threshold pair for one indicator
type Band struct {
	Buy  float64 `json:"buy" yaml:"buy"`
	Sell float64 `json:"sell" yaml:"sell"`
}

// TrendThresholds configures the indicator/trend strategy
type TrendThresholds struct {
	Indicators map[string]Band `json:"indicators" yaml:"indicators"`
	// MinAgreeing is how many indicators must agree when price and forecast disagree
	MinAgreeing int `json:"min_agreeing" yaml:"min_agreeing"`
	// FinancialHealth is the Altman Z score required for the single-indicator buy path
	FinancialHealth float64 `json:"financial_health" yaml:"financial_health"`
}

// InstantBacktestThresholds configures the instant-backtest strategy
type InstantBacktestThresholds struct {
	Lookback int     `json:"lookback" yaml:"lookback"`
	Drop     float64 `json:"drop" yaml:"drop"`
	Rise     float64 `json:"rise" yaml:"rise"`
}

// MeanReversionThresholds configures the mean-reversion/momentum strategy
type MeanReversionThresholds struct {
	Window       int     `json:"window" yaml:"window"`
	MomentumBars int     `json:"momentum_bars" yaml:"momentum_bars"`
	Deviation    float64 `json:"deviation" yaml:"deviation"` // fraction of the moving average
}

// VolatilityReversionThresholds configures the volatility-reversion strategy
type VolatilityReversionThresholds struct {
	Oversold   float64 `json:"oversold" yaml:"oversold"`
	Overbought float64 `json:"overbought" yaml:"overbought"`
}

// PredictionThresholds configures the prediction strategy
type PredictionThresholds struct {
	NearForecast float64 `json:"near_forecast" yaml:"near_forecast"`
	Dip          float64 `json:"dip" yaml:"dip"`
	Upside       float64 `json:"upside" yaml:"upside"`
	HorizonDays  int     `json:"horizon_days" yaml:"horizon_days"`
}

// ValueThresholds configures the value/fundamentals strategy
type ValueThresholds struct {
	BuyMin    map[string]float64 `json:"buy_min" yaml:"buy_min"`
	BuyMax    map[string]float64 `json:"buy_max" yaml:"buy_max"`
	SellBelow map[string]float64 `json:"sell_below" yaml:"sell_below"`
}

// SentimentThresholds configures dynamic sentiment classification
type SentimentThresholds struct {
	Bullish       float64 `json:"bullish" yaml:"bullish"`
	Bearish       float64 `json:"bearish" yaml:"bearish"`
	Window        int     `json:"window" yaml:"window"`
	MinHistory    int     `json:"min_history" yaml:"min_history"`
	StdMultiplier float64 `json:"std_multiplier" yaml:"std_multiplier"`
}

// Thresholds holds every tunable constant used by the strategies
type Thresholds struct {
	Trend               TrendThresholds               `json:"trend" yaml:"trend"`
	InstantBacktest     InstantBacktestThresholds     `json:"instant_backtest" yaml:"instant_backtest"`
	MeanReversion       MeanReversionThresholds       `json:"mean_reversion" yaml:"mean_reversion"`
	VolatilityReversion VolatilityReversionThresholds `json:"volatility_reversion" yaml:"volatility_reversion"`
	Prediction          PredictionThresholds          `json:"prediction" yaml:"prediction"`
	Value               ValueThresholds               `json:"value" yaml:"value"`
	Sentiment           SentimentThresholds           `json:"sentiment" yaml:"sentiment"`
}

// DefaultThresholds returns the calibrated defaults
func DefaultThresholds() Thresholds {
	return Thresholds{
		Trend: TrendThresholds{
			Indicators: map[string]Band{
				domain.IndicatorSMA:      {Buy: 25, Sell: 75},
				domain.IndicatorEMA:      {Buy: 25, Sell: 75},
				domain.IndicatorWMA:      {Buy: 25, Sell: 75},
				domain.IndicatorDEMA:     {Buy: 25, Sell: 75},
				domain.IndicatorTEMA:     {Buy: 25, Sell: 75},
				domain.IndicatorRSI:      {Buy: 25, Sell: 75},
				domain.IndicatorWilliams: {Buy: -90, Sell: -10},
				domain.IndicatorADX:      {Buy: 20, Sell: 15},
				domain.IndicatorStdDev:   {Buy: 0.05, Sell: 0.20},
			},
			MinAgreeing:     3,
			FinancialHealth: 3.0,
		},
		InstantBacktest: InstantBacktestThresholds{Lookback: 30, Drop: 0.02, Rise: 0.05},
		MeanReversion:   MeanReversionThresholds{Window: 20, MomentumBars: 5, Deviation: 0.02},
		VolatilityReversion: VolatilityReversionThresholds{
			Oversold:   30,
			Overbought: 70,
		},
		Prediction: PredictionThresholds{NearForecast: 0.01, Dip: 0.02, Upside: 0.03, HorizonDays: 5},
		Value: ValueThresholds{
			BuyMin: map[string]float64{
				domain.RatioGrossProfitMargin:     0.30,
				domain.RatioOperatingProfitMargin: 0.10,
				domain.RatioNetProfitMargin:       0.05,
				domain.RatioInterestCoverage:      3.0,
				domain.RatioCurrent:               1.5,
				domain.RatioQuick:                 1.0,
			},
			BuyMax: map[string]float64{
				domain.RatioDebtEquity:    1.0,
				domain.RatioPriceEarnings: 20,
				domain.RatioPriceBook:     2.0,
				domain.RatioPriceSales:    3.0,
			},
			SellBelow: map[string]float64{
				domain.RatioQuick:   1.0,
				domain.RatioCurrent: 1.2,
			},
		},
		Sentiment: SentimentThresholds{
			Bullish:       0.42,
			Bearish:       -0.48,
			Window:        50,
			MinHistory:    5,
			StdMultiplier: 1.5,
		},
	}
}

// WithDefaults fills every unset field from DefaultThresholds.
// Maps are merged key by key so a partial override keeps the other defaults.
func (t Thresholds) WithDefaults() Thresholds {
	d := DefaultThresholds()

	t.Trend.Indicators = mergeBands(d.Trend.Indicators, t.Trend.Indicators)
	setInt(&t.Trend.MinAgreeing, d.Trend.MinAgreeing)
	setFloat(&t.Trend.FinancialHealth, d.Trend.FinancialHealth)

	setInt(&t.InstantBacktest.Lookback, d.InstantBacktest.Lookback)
	setFloat(&t.InstantBacktest.Drop, d.InstantBacktest.Drop)
	setFloat(&t.InstantBacktest.Rise, d.InstantBacktest.Rise)

	setInt(&t.MeanReversion.Window, d.MeanReversion.Window)
	setInt(&t.MeanReversion.MomentumBars, d.MeanReversion.MomentumBars)
	setFloat(&t.MeanReversion.Deviation, d.MeanReversion.Deviation)

	setFloat(&t.VolatilityReversion.Oversold, d.VolatilityReversion.Oversold)
	setFloat(&t.VolatilityReversion.Overbought, d.VolatilityReversion.Overbought)

	setFloat(&t.Prediction.NearForecast, d.Prediction.NearForecast)
	setFloat(&t.Prediction.Dip, d.Prediction.Dip)
	setFloat(&t.Prediction.Upside, d.Prediction.Upside)
	setInt(&t.Prediction.HorizonDays, d.Prediction.HorizonDays)

	t.Value.BuyMin = mergeFloats(d.Value.BuyMin, t.Value.BuyMin)
	t.Value.BuyMax = mergeFloats(d.Value.BuyMax, t.Value.BuyMax)
	t.Value.SellBelow = mergeFloats(d.Value.SellBelow, t.Value.SellBelow)

	setFloat(&t.Sentiment.Bullish, d.Sentiment.Bullish)
	setFloat(&t.Sentiment.Bearish, d.Sentiment.Bearish)
	setInt(&t.Sentiment.Window, d.Sentiment.Window)
	setInt(&t.Sentiment.MinHistory, d.Sentiment.MinHistory)
	setFloat(&t.Sentiment.StdMultiplier, d.Sentiment.StdMultiplier)

	return t
}

func setInt(v *int, def int) {
	if *v <= 0 {
		*v = def
	}
}

func setFloat(v *float64, def float64) {
	if *v == 0 {
		*v = def
	}
}

func mergeBands(base, override map[string]Band) map[string]Band {
	out := make(map[string]Band, len(base))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range override {
		out[k] = v
	}
	return out
}

func mergeFloats(base, override map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(base))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range override {
		out[k] = v
	}
	return out
}
