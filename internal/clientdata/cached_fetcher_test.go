package clientdata

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aristath/hybrid-trader/internal/domain"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	calls    map[Kind]int
	quoteErr error
	partErr  map[Kind]error
	history  []domain.Bar
}

func newFakeSource() *fakeSource {
	return &fakeSource{calls: map[Kind]int{}, partErr: map[Kind]error{}}
}

func (s *fakeSource) Quote(ctx context.Context, instrument string) (*domain.Quote, error) {
	s.calls[KindQuote]++
	if s.quoteErr != nil {
		return nil, s.quoteErr
	}
	return &domain.Quote{Last: 101.5}, nil
}

func (s *fakeSource) History(ctx context.Context, instrument string, asOf time.Time) ([]domain.Bar, error) {
	s.calls[KindHistory]++
	return s.history, s.partErr[KindHistory]
}

func (s *fakeSource) Indicators(ctx context.Context, instrument string, asOf time.Time) (map[string]float64, error) {
	s.calls[KindIndicators]++
	if err := s.partErr[KindIndicators]; err != nil {
		return nil, err
	}
	return map[string]float64{domain.IndicatorRSI: 22}, nil
}

func (s *fakeSource) Fundamentals(ctx context.Context, instrument string) (map[string]float64, error) {
	s.calls[KindFundamentals]++
	if err := s.partErr[KindFundamentals]; err != nil {
		return nil, err
	}
	return map[string]float64{domain.RatioCurrent: 1.8}, nil
}

func (s *fakeSource) Forecast(ctx context.Context, instrument string, asOf time.Time) (*domain.Forecast, error) {
	s.calls[KindForecast]++
	if err := s.partErr[KindForecast]; err != nil {
		return nil, err
	}
	return &domain.Forecast{Today: 102, Ahead: map[int]float64{5: 108}}, nil
}

func (s *fakeSource) Sentiment(ctx context.Context, instrument string, asOf time.Time) (*domain.Sentiment, error) {
	s.calls[KindSentiment]++
	if err := s.partErr[KindSentiment]; err != nil {
		return nil, err
	}
	return &domain.Sentiment{Score: 0.3}, nil
}

var fetchDay = time.Date(2024, 5, 6, 14, 0, 0, 0, time.UTC)

func TestCachedFetcherServesFreshPartsFromCache(t *testing.T) {
	source := newFakeSource()
	now := fetchDay
	fetcher := NewCachedFetcher(source, fixedRepository(setupTestDB(t), &now), zerolog.Nop())

	first, err := fetcher.FetchSnapshot(context.Background(), "aapl", fetchDay)
	require.NoError(t, err)
	second, err := fetcher.FetchSnapshot(context.Background(), "AAPL", fetchDay)
	require.NoError(t, err)

	for _, kind := range AllKinds {
		assert.Equal(t, 1, source.calls[kind], "kind %s fetched more than once", kind)
	}

	assert.Equal(t, "AAPL", first.Instrument)
	assert.Equal(t, first.Quote, second.Quote)
	assert.Equal(t, first.Indicators, second.Indicators)
	assert.Equal(t, first.Forecast, second.Forecast)
	assert.Equal(t, first.Sentiment, second.Sentiment)
	assert.Equal(t, map[int]float64{5: 108}, second.Forecast.Ahead)

	t.Run("expired quote is refetched, daily parts are not", func(t *testing.T) {
		now = now.Add(TTLQuote + time.Minute)
		_, err := fetcher.FetchSnapshot(context.Background(), "AAPL", fetchDay)
		require.NoError(t, err)
		assert.Equal(t, 2, source.calls[KindQuote])
		assert.Equal(t, 1, source.calls[KindIndicators])
	})

	t.Run("a new day is a new key", func(t *testing.T) {
		_, err := fetcher.FetchSnapshot(context.Background(), "AAPL", fetchDay.AddDate(0, 0, 1))
		require.NoError(t, err)
		assert.Equal(t, 2, source.calls[KindIndicators])
	})
}

func TestCachedFetcherUnavailablePartsAreEmpty(t *testing.T) {
	source := newFakeSource()
	source.partErr[KindFundamentals] = domain.ErrDataUnavailable
	source.partErr[KindSentiment] = domain.ErrDataUnavailable

	snapshot, err := NewCachedFetcher(source, nil, zerolog.Nop()).FetchSnapshot(context.Background(), "AAPL", fetchDay)
	require.NoError(t, err)

	assert.Nil(t, snapshot.Fundamentals)
	assert.Nil(t, snapshot.Sentiment)
	assert.NotNil(t, snapshot.Indicators)
	price, ok := snapshot.Price()
	assert.True(t, ok)
	assert.Equal(t, 101.5, price)
}

func TestCachedFetcherFailures(t *testing.T) {
	boom := errors.New("connection reset")

	t.Run("quote failure fails the snapshot", func(t *testing.T) {
		source := newFakeSource()
		source.quoteErr = boom

		_, err := NewCachedFetcher(source, nil, zerolog.Nop()).FetchSnapshot(context.Background(), "AAPL", fetchDay)
		assert.ErrorIs(t, err, boom)
	})

	t.Run("optional part transport failure fails the snapshot", func(t *testing.T) {
		source := newFakeSource()
		source.partErr[KindForecast] = boom

		_, err := NewCachedFetcher(source, nil, zerolog.Nop()).FetchSnapshot(context.Background(), "AAPL", fetchDay)
		assert.ErrorIs(t, err, boom)
		assert.Contains(t, err.Error(), "forecast")
	})

	t.Run("stale data from the same day is used when the fetch fails", func(t *testing.T) {
		source := newFakeSource()
		now := fetchDay
		fetcher := NewCachedFetcher(source, fixedRepository(setupTestDB(t), &now), zerolog.Nop())

		_, err := fetcher.FetchSnapshot(context.Background(), "AAPL", fetchDay)
		require.NoError(t, err)

		now = now.Add(time.Hour)
		source.quoteErr = boom
		snapshot, err := fetcher.FetchSnapshot(context.Background(), "AAPL", fetchDay)
		require.NoError(t, err)
		assert.Equal(t, 101.5, snapshot.Quote.Last)
		assert.Equal(t, 2, source.calls[KindQuote])
	})
}

func TestCachedFetcherTrimsHistoryToAsOf(t *testing.T) {
	source := newFakeSource()
	source.history = []domain.Bar{
		{Timestamp: fetchDay.AddDate(0, 0, -2), Close: 98},
		{Timestamp: fetchDay.AddDate(0, 0, -1), Close: 99},
		{Timestamp: fetchDay, Close: 100},
		{Timestamp: fetchDay.AddDate(0, 0, 1), Close: 101},
	}

	snapshot, err := NewCachedFetcher(source, nil, zerolog.Nop()).FetchSnapshot(context.Background(), "AAPL", fetchDay)
	require.NoError(t, err)

	require.Len(t, snapshot.History, 2)
	assert.Equal(t, 99.0, snapshot.History[1].Close)
}
