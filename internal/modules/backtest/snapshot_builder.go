// Package backtest replays the live decision path over historical bars.
package backtest

import (
	"github.com/aristath/hybrid-trader/internal/domain"
	"github.com/aristath/hybrid-trader/pkg/formulas"
)

// SnapshotBuilder derives a MarketSnapshot for bar i from bars[0..i] only.
//
// Moving averages are reported as the position of the average inside the
// trailing high/low range (0 to 100), matching the 25/75 trend bands.
// std_dev is relative to the last close. The forecast is a least-squares
// projection: Today is fitted from bars before i, Ahead from bars through i.
type SnapshotBuilder struct {
	HistoryWindow   int // completed bars carried in History
	CalcWindow      int // bars fed to the indicator formulas
	MAPeriod        int
	RSIPeriod       int
	WilliamsPeriod  int
	ADXPeriod       int
	StdDevPeriod    int
	BollingerPeriod int
	BollingerK      float64
	ForecastPeriod  int
	ForecastHorizon int
}

// DefaultSnapshotBuilder returns the builder used by the engine
func DefaultSnapshotBuilder() SnapshotBuilder {
	return SnapshotBuilder{
		HistoryWindow:   60,
		CalcWindow:      250,
		MAPeriod:        20,
		RSIPeriod:       14,
		WilliamsPeriod:  14,
		ADXPeriod:       14,
		StdDevPeriod:    20,
		BollingerPeriod: 20,
		BollingerK:      2,
		ForecastPeriod:  20,
		ForecastHorizon: 5,
	}
}

// Build returns the snapshot as of bars[i]. fundamentals are copied in as-is.
func (b SnapshotBuilder) Build(instrument string, bars []domain.Bar, i int, fundamentals map[string]float64) *domain.MarketSnapshot {
	if i < 0 || i >= len(bars) {
		return nil
	}
	bar := bars[i]

	snapshot := &domain.MarketSnapshot{
		Instrument: instrument,
		AsOf:       bar.Timestamp,
		Quote:      &domain.Quote{Last: bar.Close},
	}

	histStart := i - b.HistoryWindow
	if histStart < 0 {
		histStart = 0
	}
	if i > histStart {
		snapshot.History = append([]domain.Bar(nil), bars[histStart:i]...)
	}

	calcStart := i + 1 - b.CalcWindow
	if calcStart < 0 {
		calcStart = 0
	}
	window := bars[calcStart : i+1]
	highs, lows, closes := columns(window)

	snapshot.Indicators = b.indicators(bar.Close, highs, lows, closes)
	snapshot.Forecast = b.forecast(closes)

	if len(fundamentals) > 0 {
		snapshot.Fundamentals = make(map[string]float64, len(fundamentals))
		for k, v := range fundamentals {
			snapshot.Fundamentals[k] = v
		}
	}

	return snapshot
}

func (b SnapshotBuilder) indicators(price float64, highs, lows, closes []float64) map[string]float64 {
	out := make(map[string]float64)

	movingAverages := map[string]*float64{
		domain.IndicatorSMA:  formulas.CalculateSMA(closes, b.MAPeriod),
		domain.IndicatorEMA:  formulas.CalculateEMA(closes, b.MAPeriod),
		domain.IndicatorWMA:  formulas.CalculateWMA(closes, b.MAPeriod),
		domain.IndicatorDEMA: formulas.CalculateDEMA(closes, b.MAPeriod),
		domain.IndicatorTEMA: formulas.CalculateTEMA(closes, b.MAPeriod),
	}
	for name, ma := range movingAverages {
		if ma == nil {
			continue
		}
		if pos := formulas.CalculateRangePosition(*ma, highs, lows, b.MAPeriod); pos != nil {
			out[name] = *pos
		}
	}

	set := func(name string, v *float64) {
		if v != nil {
			out[name] = *v
		}
	}
	set(domain.IndicatorRSI, formulas.CalculateRSI(closes, b.RSIPeriod))
	set(domain.IndicatorWilliams, formulas.CalculateWilliamsR(highs, lows, closes, b.WilliamsPeriod))
	set(domain.IndicatorADX, formulas.CalculateADX(highs, lows, closes, b.ADXPeriod))

	if sd := formulas.CalculateStdDev(closes, b.StdDevPeriod); sd != nil && price > 0 {
		out[domain.IndicatorStdDev] = *sd / price
	}
	if bands := formulas.CalculateBollingerBands(closes, b.BollingerPeriod, b.BollingerK); bands != nil {
		out[domain.IndicatorBollingerUpper] = bands.Upper
		out[domain.IndicatorBollingerLower] = bands.Lower
	}

	if len(out) == 0 {
		return nil
	}
	return out
}

// forecast projects the closes; the last close belongs to the current bar
func (b SnapshotBuilder) forecast(closes []float64) *domain.Forecast {
	if len(closes) < 2 {
		return nil
	}
	today := formulas.ProjectLinear(closes[:len(closes)-1], b.ForecastPeriod, 1)
	if today == nil || *today <= 0 {
		return nil
	}

	f := &domain.Forecast{Today: *today}
	if ahead := formulas.ProjectLinear(closes, b.ForecastPeriod, b.ForecastHorizon); ahead != nil && *ahead > 0 {
		f.Ahead = map[int]float64{b.ForecastHorizon: *ahead}
	}
	return f
}

func columns(bars []domain.Bar) (highs, lows, closes []float64) {
	highs = make([]float64, len(bars))
	lows = make([]float64, len(bars))
	closes = make([]float64, len(bars))
	for i, bar := range bars {
		highs[i] = bar.High
		lows[i] = bar.Low
		closes[i] = bar.Close
	}
	return highs, lows, closes
}
