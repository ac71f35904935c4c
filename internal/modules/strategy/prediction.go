package strategy

import (
	"fmt"
	"math"

	"github.com/aristath/hybrid-trader/internal/domain"
)

// predictionStrategy buys when price tracks today's forecast, or on a dip
// that the multi-day forecast expects to recover. It also owns the sentiment
// history used to classify the snapshot's sentiment score.
type predictionStrategy struct {
	th        PredictionThresholds
	sentiment *SentimentTracker
}

func newPredictionStrategy(th PredictionThresholds, sth SentimentThresholds) *predictionStrategy {
	return &predictionStrategy{
		th:        th,
		sentiment: NewSentimentTracker(sth),
	}
}

func (s *predictionStrategy) ID() domain.StrategyID { return Prediction }

func (s *predictionStrategy) Evaluate(snapshot *domain.MarketSnapshot) domain.Signal {
	price, ok := snapshot.Price()
	if !ok {
		return missing(s.ID(), snapshot, "price")
	}
	today, ok := snapshot.Forecast.Horizon(0)
	if !ok {
		return missing(s.ID(), snapshot, "forecast")
	}

	evidence := map[string]float64{
		"price":          price,
		"forecast_today": today,
	}
	if snapshot.Sentiment != nil {
		class := s.sentiment.Observe(snapshot.Sentiment.Score)
		evidence["sentiment"] = snapshot.Sentiment.Score
		evidence["sentiment_class"] = ClassificationValue(class)
	}

	if math.Abs(price-today) <= s.th.NearForecast*today {
		return newSignal(s.ID(), snapshot, domain.ActionBuy,
			fmt.Sprintf("within %.0f%% of today's forecast", s.th.NearForecast*100), evidence)
	}

	prior, hasPrior := snapshot.PriorClose()
	ahead, hasAhead := snapshot.Forecast.Horizon(s.th.HorizonDays)
	if hasPrior {
		evidence["prior_close"] = prior
	}
	if hasAhead {
		evidence["forecast_ahead"] = ahead
	}
	if hasPrior && hasAhead && price <= (1-s.th.Dip)*prior && ahead >= (1+s.th.Upside)*price {
		return newSignal(s.ID(), snapshot, domain.ActionBuy,
			fmt.Sprintf("%.0f%% below prior close and forecast to rise %.0f%% in %d days",
				s.th.Dip*100, s.th.Upside*100, s.th.HorizonDays), evidence)
	}

	return hold(s.ID(), snapshot, "no buy signal", evidence)
}
