package clientdata

import "time"

// TTL constants per snapshot part.
// Keys already carry the calendar day, so a TTL only bounds how long an entry
// stays fresh within that day and when cleanup may drop it.
const (
	// Intraday price, refreshed often
	TTLQuote = 10 * time.Minute

	// Daily data (one fetch per instrument per day)
	TTLHistory      = 24 * time.Hour
	TTLIndicators   = 24 * time.Hour
	TTLForecast     = 24 * time.Hour
	TTLSentiment    = 24 * time.Hour
	TTLFundamentals = 24 * time.Hour
)

// TTLFor returns the TTL used when storing a kind
func TTLFor(kind Kind) time.Duration {
	switch kind {
	case KindQuote:
		return TTLQuote
	case KindHistory:
		return TTLHistory
	case KindIndicators:
		return TTLIndicators
	case KindForecast:
		return TTLForecast
	case KindSentiment:
		return TTLSentiment
	default:
		return TTLFundamentals
	}
}
