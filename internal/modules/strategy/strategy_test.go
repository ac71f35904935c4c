package strategy

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/aristath/hybrid-trader/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var asOf = time.Date(2024, 5, 6, 14, 30, 0, 0, time.UTC)

func snapshotAt(price float64) *domain.MarketSnapshot {
	return &domain.MarketSnapshot{
		Instrument: "AAPL",
		AsOf:       asOf,
		Quote:      &domain.Quote{Last: price},
	}
}

func historyOf(closes ...float64) []domain.Bar {
	bars := make([]domain.Bar, len(closes))
	for i, c := range closes {
		bars[i] = domain.Bar{Timestamp: asOf.AddDate(0, 0, i-len(closes)), Close: c}
	}
	return bars
}

func repeat(v float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}

func mustStrategy(t *testing.T, id domain.StrategyID) Strategy {
	t.Helper()
	s, err := New(id, Thresholds{})
	require.NoError(t, err)
	return s
}

func TestRegistry(t *testing.T) {
	ids := IDs()
	assert.Len(t, ids, 6)

	set, err := NewSet(nil, Thresholds{})
	require.NoError(t, err)
	assert.Equal(t, 6, set.Len())

	_, err = NewSet([]domain.StrategyID{Value, Value}, Thresholds{})
	assert.True(t, errors.Is(err, domain.ErrInvalidConfiguration))

	_, err = New("astrology", Thresholds{})
	assert.True(t, errors.Is(err, domain.ErrInvalidConfiguration))
}

func TestEmptySnapshotDegradesToHold(t *testing.T) {
	empty := &domain.MarketSnapshot{Instrument: "AAPL", AsOf: asOf}

	for _, id := range IDs() {
		t.Run(string(id), func(t *testing.T) {
			sig := mustStrategy(t, id).Evaluate(empty)
			assert.Equal(t, domain.ActionHold, sig.Action)
			assert.Equal(t, id, sig.Source)
			assert.Equal(t, "AAPL", sig.Instrument)
			assert.Equal(t, asOf, sig.Timestamp)

			found := false
			for k := range sig.Evidence {
				if strings.HasPrefix(k, "missing:") {
					found = true
				}
			}
			assert.True(t, found, "evidence should name the missing field: %v", sig.Evidence)
		})
	}
}

type panicky struct{}

func (panicky) ID() domain.StrategyID { return "panicky" }

func (panicky) Evaluate(*domain.MarketSnapshot) domain.Signal { panic("boom") }

func TestEvaluateAllIsolatesPanics(t *testing.T) {
	set := &Set{strategies: []Strategy{panicky{}, mustStrategy(t, VolatilityReversion)}}

	snap := snapshotAt(89)
	snap.Indicators = map[string]float64{
		domain.IndicatorBollingerUpper: 110,
		domain.IndicatorBollingerLower: 90,
		domain.IndicatorRSI:            25,
	}

	signals := set.EvaluateAll(snap)
	require.Len(t, signals, 2)
	assert.Equal(t, domain.ActionHold, signals[0].Action)
	assert.Contains(t, signals[0].Reason, "panicked")
	assert.Equal(t, domain.ActionBuy, signals[1].Action)
}

func TestIndicatorStrategy(t *testing.T) {
	tests := []struct {
		name       string
		price      float64
		indicators map[string]float64
		altmanZ    *float64
		want       domain.Action
	}{
		{
			name:       "price below forecast, one indicator suffices",
			price:      90,
			indicators: map[string]float64{domain.IndicatorRSI: 20},
			want:       domain.ActionBuy,
		},
		{
			name:       "weak financial health disables the fast path",
			price:      90,
			indicators: map[string]float64{domain.IndicatorRSI: 20},
			altmanZ:    floatPtr(2.0),
			want:       domain.ActionHold,
		},
		{
			name:       "strong financial health keeps the fast path",
			price:      90,
			indicators: map[string]float64{domain.IndicatorRSI: 20},
			altmanZ:    floatPtr(3.5),
			want:       domain.ActionBuy,
		},
		{
			name:  "three indicators agree against the forecast",
			price: 110,
			indicators: map[string]float64{
				domain.IndicatorSMA: 10,
				domain.IndicatorEMA: 10,
				domain.IndicatorRSI: 10,
			},
			want: domain.ActionBuy,
		},
		{
			name:  "two indicators are not enough against the forecast",
			price: 110,
			indicators: map[string]float64{
				domain.IndicatorSMA: 10,
				domain.IndicatorRSI: 10,
			},
			want: domain.ActionHold,
		},
		{
			name:       "price above forecast, one sell indicator suffices",
			price:      110,
			indicators: map[string]float64{domain.IndicatorRSI: 80},
			want:       domain.ActionSell,
		},
		{
			name:       "neutral indicators hold",
			price:      90,
			indicators: map[string]float64{domain.IndicatorRSI: 50, domain.IndicatorWilliams: -50},
			want:       domain.ActionHold,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			snap := snapshotAt(tt.price)
			snap.Forecast = &domain.Forecast{Today: 100}
			snap.Indicators = tt.indicators
			if tt.altmanZ != nil {
				snap.Fundamentals = map[string]float64{domain.ScoreAltmanZ: *tt.altmanZ}
			}

			sig := mustStrategy(t, IndicatorTrend).Evaluate(snap)
			assert.Equal(t, tt.want, sig.Action, sig.Reason)
			assert.Equal(t, 100.0, sig.Evidence["forecast"])
		})
	}
}

func TestIndicatorStrategyUsesConfiguredThresholds(t *testing.T) {
	th := Thresholds{Trend: TrendThresholds{Indicators: map[string]Band{domain.IndicatorRSI: {Buy: 10, Sell: 90}}}}
	s, err := New(IndicatorTrend, th)
	require.NoError(t, err)

	snap := snapshotAt(90)
	snap.Forecast = &domain.Forecast{Today: 100}
	snap.Indicators = map[string]float64{domain.IndicatorRSI: 20}

	assert.Equal(t, domain.ActionHold, s.Evaluate(snap).Action)
}

func TestInstantBacktestStrategy(t *testing.T) {
	tests := []struct {
		name    string
		history []float64
		price   float64
		want    domain.Action
	}{
		{name: "two percent drop", history: []float64{100, 100, 97}, price: 97, want: domain.ActionBuy},
		{name: "five percent rise", history: []float64{100}, price: 106, want: domain.ActionSell},
		{name: "first crossing wins", history: []float64{100, 106, 100}, price: 100, want: domain.ActionSell},
		{name: "flat series holds", history: []float64{100, 100.5, 101}, price: 100.8, want: domain.ActionHold},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			snap := snapshotAt(tt.price)
			snap.History = historyOf(tt.history...)
			assert.Equal(t, tt.want, mustStrategy(t, InstantBacktest).Evaluate(snap).Action)
		})
	}
}

func TestInstantBacktestLookbackIgnoresOlderBars(t *testing.T) {
	s, err := New(InstantBacktest, Thresholds{InstantBacktest: InstantBacktestThresholds{Lookback: 3}})
	require.NoError(t, err)

	snap := snapshotAt(100)
	// the crash at the start of history falls outside the 3-bar window
	snap.History = historyOf(100, 80, 100, 100, 100)
	assert.Equal(t, domain.ActionHold, s.Evaluate(snap).Action)
}

func TestMeanReversionStrategy(t *testing.T) {
	tests := []struct {
		name    string
		history []float64
		price   float64
		want    domain.Action
	}{
		{
			name:    "below average with positive momentum",
			history: append(repeat(100, 15), repeat(90, 5)...),
			price:   92,
			want:    domain.ActionBuy,
		},
		{
			name:    "above average with negative momentum",
			history: append(repeat(100, 15), repeat(110, 5)...),
			price:   108,
			want:    domain.ActionSell,
		},
		{
			name:    "near the average holds",
			history: repeat(100, 20),
			price:   100.5,
			want:    domain.ActionHold,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			snap := snapshotAt(tt.price)
			snap.History = historyOf(tt.history...)
			sig := mustStrategy(t, MeanReversion).Evaluate(snap)
			assert.Equal(t, tt.want, sig.Action, sig.Reason)
		})
	}
}

func TestMeanReversionFallsBackToObservedPrices(t *testing.T) {
	s := mustStrategy(t, MeanReversion)

	for i := 0; i < 20; i++ {
		sig := s.Evaluate(snapshotAt(100))
		assert.Equal(t, domain.ActionHold, sig.Action)
	}

	// twenty observed prices are now enough to compute the average
	sig := s.Evaluate(snapshotAt(100))
	assert.Equal(t, 100.0, sig.Evidence["moving_average"])
}

func TestVolatilityReversionStrategy(t *testing.T) {
	tests := []struct {
		name  string
		price float64
		rsi   float64
		want  domain.Action
	}{
		{name: "overbought at upper band", price: 111, rsi: 75, want: domain.ActionSell},
		{name: "oversold at lower band", price: 89, rsi: 25, want: domain.ActionBuy},
		{name: "band touch without oscillator confirmation", price: 89, rsi: 50, want: domain.ActionHold},
		{name: "inside the bands", price: 100, rsi: 20, want: domain.ActionHold},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			snap := snapshotAt(tt.price)
			snap.Indicators = map[string]float64{
				domain.IndicatorBollingerUpper: 110,
				domain.IndicatorBollingerLower: 90,
				domain.IndicatorRSI:            tt.rsi,
			}
			assert.Equal(t, tt.want, mustStrategy(t, VolatilityReversion).Evaluate(snap).Action)
		})
	}
}

func TestPredictionStrategy(t *testing.T) {
	tests := []struct {
		name  string
		price float64
		ahead map[int]float64
		want  domain.Action
	}{
		{name: "within one percent of today's forecast", price: 100.5, want: domain.ActionBuy},
		{name: "dip with forecast recovery", price: 95, ahead: map[int]float64{5: 98}, want: domain.ActionBuy},
		{name: "dip without enough upside", price: 95, ahead: map[int]float64{5: 97}, want: domain.ActionHold},
		{name: "dip without a horizon forecast", price: 95, want: domain.ActionHold},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			snap := snapshotAt(tt.price)
			snap.History = historyOf(100)
			snap.Forecast = &domain.Forecast{Today: 100, Ahead: tt.ahead}
			assert.Equal(t, tt.want, mustStrategy(t, Prediction).Evaluate(snap).Action)
		})
	}
}

func TestPredictionStrategyRecordsSentimentClass(t *testing.T) {
	snap := snapshotAt(100)
	snap.Forecast = &domain.Forecast{Today: 100}
	snap.Sentiment = &domain.Sentiment{Score: -0.6}

	sig := mustStrategy(t, Prediction).Evaluate(snap)
	assert.Equal(t, -0.6, sig.Evidence["sentiment"])
	assert.Equal(t, -1.0, sig.Evidence["sentiment_class"])
}

func healthyRatios() map[string]float64 {
	return map[string]float64{
		domain.RatioGrossProfitMargin:     0.4,
		domain.RatioOperatingProfitMargin: 0.2,
		domain.RatioNetProfitMargin:       0.1,
		domain.RatioInterestCoverage:      5,
		domain.RatioCurrent:               2,
		domain.RatioQuick:                 1.5,
		domain.RatioDebtEquity:            0.5,
		domain.RatioPriceEarnings:         15,
		domain.RatioPriceBook:             1.5,
		domain.RatioPriceSales:            2,
	}
}

func TestValueStrategy(t *testing.T) {
	tests := []struct {
		name   string
		modify func(map[string]float64)
		want   domain.Action
	}{
		{name: "every ratio clears", modify: func(map[string]float64) {}, want: domain.ActionBuy},
		{name: "quick ratio below floor", modify: func(r map[string]float64) { r[domain.RatioQuick] = 0.9 }, want: domain.ActionSell},
		{name: "current ratio below floor", modify: func(r map[string]float64) { r[domain.RatioCurrent] = 1.1 }, want: domain.ActionSell},
		{name: "current ratio between floor and buy bound", modify: func(r map[string]float64) { r[domain.RatioCurrent] = 1.3 }, want: domain.ActionHold},
		{name: "expensive on earnings", modify: func(r map[string]float64) { r[domain.RatioPriceEarnings] = 35 }, want: domain.ActionHold},
		{name: "missing ratio cannot buy", modify: func(r map[string]float64) { delete(r, domain.RatioPriceSales) }, want: domain.ActionHold},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ratios := healthyRatios()
			tt.modify(ratios)
			snap := snapshotAt(100)
			snap.Fundamentals = ratios
			assert.Equal(t, tt.want, mustStrategy(t, Value).Evaluate(snap).Action)
		})
	}
}

func TestSentimentTracker(t *testing.T) {
	tracker := NewSentimentTracker(DefaultThresholds().Sentiment)

	assert.Equal(t, SentimentBullish, tracker.Observe(0.5))
	assert.Equal(t, SentimentBearish, tracker.Observe(-0.5))
	assert.Equal(t, SentimentNeutral, tracker.Observe(0))

	tracker = NewSentimentTracker(DefaultThresholds().Sentiment)
	for _, s := range []float64{0.1, 0.1, 0.1, 0.1, 0.2} {
		tracker.Observe(s)
	}

	bullish, bearish := tracker.Thresholds()
	assert.InDelta(t, 0.18, bullish, 1e-9)
	assert.InDelta(t, 0.06, bearish, 1e-9)
	assert.Equal(t, SentimentBullish, tracker.Observe(0.19))
}

func TestRingBuffer(t *testing.T) {
	rb := NewRingBuffer[int](3)
	for i := 1; i <= 5; i++ {
		rb.Push(i)
	}
	assert.Equal(t, 3, rb.Len())
	assert.Equal(t, 3, rb.Cap())
	assert.Equal(t, []int{3, 4, 5}, rb.Values())
}

func TestThresholdsWithDefaultsMergesMaps(t *testing.T) {
	th := Thresholds{Trend: TrendThresholds{Indicators: map[string]Band{domain.IndicatorRSI: {Buy: 30, Sell: 70}}}}.WithDefaults()

	assert.Equal(t, Band{Buy: 30, Sell: 70}, th.Trend.Indicators[domain.IndicatorRSI])
	assert.Equal(t, Band{Buy: -90, Sell: -10}, th.Trend.Indicators[domain.IndicatorWilliams])
	assert.Equal(t, 3, th.Trend.MinAgreeing)
	assert.Equal(t, 30, th.InstantBacktest.Lookback)
}

func floatPtr(v float64) *float64 { return &v }
