package strategy

import (
	"gonum.org/v1/gonum/stat"
)

// Sentiment classifications
const (
	SentimentBullish = "bullish"
	SentimentBearish = "bearish"
	SentimentNeutral = "neutral"
)

// SentimentTracker classifies sentiment scores against cut-offs derived from
// the scores it has seen: mean ± StdMultiplier·σ once MinHistory scores exist,
// the configured defaults before that.
type SentimentTracker struct {
	th      SentimentThresholds
	history *RingBuffer[float64]
}

// NewSentimentTracker creates a tracker with a bounded history window
func NewSentimentTracker(th SentimentThresholds) *SentimentTracker {
	return &SentimentTracker{
		th:      th,
		history: NewRingBuffer[float64](th.Window),
	}
}

// Thresholds returns the current bullish and bearish cut-offs
func (t *SentimentTracker) Thresholds() (bullish, bearish float64) {
	if t.history.Len() < t.th.MinHistory {
		return t.th.Bullish, t.th.Bearish
	}
	mean, std := stat.PopMeanStdDev(t.history.Values(), nil)
	if std == 0 {
		return t.th.Bullish, t.th.Bearish
	}
	spread := t.th.StdMultiplier * std
	return mean + spread, mean - spread
}

// Observe classifies score against the current cut-offs, then records it
func (t *SentimentTracker) Observe(score float64) string {
	bullish, bearish := t.Thresholds()
	t.history.Push(score)

	switch {
	case score >= bullish:
		return SentimentBullish
	case score <= bearish:
		return SentimentBearish
	default:
		return SentimentNeutral
	}
}

// ClassificationValue maps a classification to +1, 0 or -1 for signal evidence
func ClassificationValue(class string) float64 {
	switch class {
	case SentimentBullish:
		return 1
	case SentimentBearish:
		return -1
	default:
		return 0
	}
}
