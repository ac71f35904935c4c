package formulas

import (
	"github.com/markcheno/go-talib"
)

// BollingerBands represents Bollinger Bands values
type BollingerBands struct {
	Upper  float64 `json:"upper"`
	Middle float64 `json:"middle"`
	Lower  float64 `json:"lower"`
}

// CalculateBollingerBands calculates Bollinger Bands over the trailing window.
//
//	Middle = SMA(length)
//	Upper  = Middle + k * stddev
//	Lower  = Middle - k * stddev
//
// Returns nil if there is not enough data.
func CalculateBollingerBands(closes []float64, length int, k float64) *BollingerBands {
	if length < 2 || len(closes) < length {
		return nil
	}

	// MAType 0 = SMA
	upper, middle, lower := talib.BBands(closes, length, k, k, 0)
	last := len(upper) - 1
	if last < 0 || isNaN(upper[last]) {
		return nil
	}

	return &BollingerBands{
		Upper:  upper[last],
		Middle: middle[last],
		Lower:  lower[last],
	}
}

// CalculateSMA returns the latest simple moving average, or nil if insufficient data
func CalculateSMA(closes []float64, length int) *float64 {
	if length < 2 || len(closes) < length {
		return nil
	}
	return lastValue(talib.Sma(closes, length))
}

// CalculateEMA returns the latest exponential moving average, or nil if insufficient data
func CalculateEMA(closes []float64, length int) *float64 {
	if length < 2 || len(closes) < length {
		return nil
	}
	return lastValue(talib.Ema(closes, length))
}

// CalculateWMA returns the latest weighted moving average, or nil if insufficient data
func CalculateWMA(closes []float64, length int) *float64 {
	if length < 2 || len(closes) < length {
		return nil
	}
	return lastValue(talib.Wma(closes, length))
}

// CalculateDEMA returns the latest double exponential moving average.
// Needs 2*length-1 values.
func CalculateDEMA(closes []float64, length int) *float64 {
	if length < 2 || len(closes) < 2*length-1 {
		return nil
	}
	return lastValue(talib.Dema(closes, length))
}

// CalculateTEMA returns the latest triple exponential moving average.
// Needs 3*length-2 values.
func CalculateTEMA(closes []float64, length int) *float64 {
	if length < 2 || len(closes) < 3*length-2 {
		return nil
	}
	return lastValue(talib.Tema(closes, length))
}

// CalculateRSI calculates the Relative Strength Index
//
//	RSI = 100 - (100 / (1 + RS)), RS = average gain / average loss
//
// Returns nil if there are fewer than length+1 closes.
func CalculateRSI(closes []float64, length int) *float64 {
	if length < 2 || len(closes) < length+1 {
		return nil
	}
	return lastValue(talib.Rsi(closes, length))
}

// CalculateWilliamsR calculates Williams %R in the range [-100, 0]
func CalculateWilliamsR(highs, lows, closes []float64, length int) *float64 {
	if length < 2 || len(closes) < length || len(highs) != len(closes) || len(lows) != len(closes) {
		return nil
	}
	return lastValue(talib.WillR(highs, lows, closes, length))
}

// CalculateADX calculates the Average Directional Index.
// Needs 2*length values for the first defined output.
func CalculateADX(highs, lows, closes []float64, length int) *float64 {
	if length < 2 || len(closes) < 2*length || len(highs) != len(closes) || len(lows) != len(closes) {
		return nil
	}
	return lastValue(talib.Adx(highs, lows, closes, length))
}

// CalculateStdDev returns the latest rolling population standard deviation
func CalculateStdDev(closes []float64, length int) *float64 {
	if length < 2 || len(closes) < length {
		return nil
	}
	return lastValue(talib.StdDev(closes, length, 1.0))
}

// CalculateRangePosition places value within the trailing high/low range of the
// last length bars, scaled to [0, 100]. Returns nil on a flat range.
func CalculateRangePosition(value float64, highs, lows []float64, length int) *float64 {
	if length < 2 || len(highs) < length || len(lows) < length {
		return nil
	}
	hi := lastValue(talib.Max(highs, length))
	lo := lastValue(talib.Min(lows, length))
	if hi == nil || lo == nil || *hi <= *lo {
		return nil
	}
	pos := (value - *lo) / (*hi - *lo) * 100
	if pos < 0 {
		pos = 0
	} else if pos > 100 {
		pos = 100
	}
	return &pos
}

// ProjectLinear fits a least-squares line through the last length closes and
// extrapolates it ahead periods past the last close.
//
//	y(x) = intercept + slope * x, x = 0 for the oldest close
//
// ahead = 1 matches the time series forecast (TSF).
func ProjectLinear(closes []float64, length, ahead int) *float64 {
	if length < 2 || len(closes) < length || ahead < 0 {
		return nil
	}
	slope := lastValue(talib.LinearRegSlope(closes, length))
	intercept := lastValue(talib.LinearRegIntercept(closes, length))
	if slope == nil || intercept == nil {
		return nil
	}
	v := *intercept + *slope*float64(length-1+ahead)
	return &v
}

func lastValue(series []float64) *float64 {
	if len(series) == 0 {
		return nil
	}
	v := series[len(series)-1]
	if isNaN(v) {
		return nil
	}
	return &v
}
