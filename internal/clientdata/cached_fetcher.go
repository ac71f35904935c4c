package clientdata

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aristath/hybrid-trader/internal/domain"
	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"
)

// Source fetches individual snapshot parts from the data-gathering collaborators.
// A part the collaborator does not have is reported as domain.ErrDataUnavailable.
type Source interface {
	Quote(ctx context.Context, instrument string) (*domain.Quote, error)
	History(ctx context.Context, instrument string, asOf time.Time) ([]domain.Bar, error)
	Indicators(ctx context.Context, instrument string, asOf time.Time) (map[string]float64, error)
	Fundamentals(ctx context.Context, instrument string) (map[string]float64, error)
	Forecast(ctx context.Context, instrument string, asOf time.Time) (*domain.Forecast, error)
	Sentiment(ctx context.Context, instrument string, asOf time.Time) (*domain.Sentiment, error)
}

// CachedFetcher assembles snapshots part by part, serving each part from the
// cache when an entry for the instrument, kind and day is still fresh.
type CachedFetcher struct {
	source Source
	repo   *Repository
	log    zerolog.Logger
}

// NewCachedFetcher creates a snapshot fetcher over source.
// repo is optional - if nil, caching is disabled.
func NewCachedFetcher(source Source, repo *Repository, log zerolog.Logger) *CachedFetcher {
	return &CachedFetcher{
		source: source,
		repo:   repo,
		log:    log.With().Str("service", "snapshot_cache").Logger(),
	}
}

// FetchSnapshot returns the snapshot for instrument at asOf.
// The quote is required. Other parts that are unavailable are left empty so
// strategies depending on them degrade to Hold.
func (f *CachedFetcher) FetchSnapshot(ctx context.Context, instrument string, asOf time.Time) (*domain.MarketSnapshot, error) {
	instrument = strings.ToUpper(strings.TrimSpace(instrument))
	snapshot := &domain.MarketSnapshot{Instrument: instrument, AsOf: asOf}

	quote, err := cachedPart(ctx, f, KindQuote, instrument, asOf, func(ctx context.Context) (*domain.Quote, error) {
		return f.source.Quote(ctx, instrument)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch quote for %s: %w", instrument, err)
	}
	snapshot.Quote = quote

	if snapshot.History, err = optionalPart(ctx, f, KindHistory, instrument, asOf, func(ctx context.Context) ([]domain.Bar, error) {
		return f.source.History(ctx, instrument, asOf)
	}); err != nil {
		return nil, err
	}
	if snapshot.Indicators, err = optionalPart(ctx, f, KindIndicators, instrument, asOf, func(ctx context.Context) (map[string]float64, error) {
		return f.source.Indicators(ctx, instrument, asOf)
	}); err != nil {
		return nil, err
	}
	if snapshot.Fundamentals, err = optionalPart(ctx, f, KindFundamentals, instrument, asOf, func(ctx context.Context) (map[string]float64, error) {
		return f.source.Fundamentals(ctx, instrument)
	}); err != nil {
		return nil, err
	}
	if snapshot.Forecast, err = optionalPart(ctx, f, KindForecast, instrument, asOf, func(ctx context.Context) (*domain.Forecast, error) {
		return f.source.Forecast(ctx, instrument, asOf)
	}); err != nil {
		return nil, err
	}
	if snapshot.Sentiment, err = optionalPart(ctx, f, KindSentiment, instrument, asOf, func(ctx context.Context) (*domain.Sentiment, error) {
		return f.source.Sentiment(ctx, instrument, asOf)
	}); err != nil {
		return nil, err
	}

	// History must not reach past asOf even when the collaborator returns more
	for i, bar := range snapshot.History {
		if !bar.Timestamp.Before(asOf) {
			snapshot.History = snapshot.History[:i]
			break
		}
	}

	return snapshot, nil
}

// optionalPart is cachedPart with ErrDataUnavailable mapped to an empty part
func optionalPart[T any](ctx context.Context, f *CachedFetcher, kind Kind, instrument string, asOf time.Time, fetch func(ctx context.Context) (T, error)) (T, error) {
	v, err := cachedPart(ctx, f, kind, instrument, asOf, fetch)
	if errors.Is(err, domain.ErrDataUnavailable) {
		f.log.Debug().
			Str("instrument", instrument).
			Str("kind", string(kind)).
			Msg("Snapshot part unavailable")
		var zero T
		return zero, nil
	}
	if err != nil {
		var zero T
		return zero, fmt.Errorf("failed to fetch %s for %s: %w", kind, instrument, err)
	}
	return v, nil
}

// cachedPart returns a fresh cached part or fetches and stores it.
// If the fetch fails, stale data for the same day is returned when available.
func cachedPart[T any](ctx context.Context, f *CachedFetcher, kind Kind, instrument string, asOf time.Time, fetch func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	key := CacheKey(instrument, kind, asOf)

	if f.repo != nil {
		data, err := f.repo.GetIfFresh(kind, key)
		if err == nil && data != nil {
			var cached T
			if err := msgpack.Unmarshal(data, &cached); err == nil {
				f.log.Debug().Str("key", key).Msg("Cache hit")
				return cached, nil
			}
		}
	}

	v, err := fetch(ctx)
	if err != nil {
		if errors.Is(err, domain.ErrDataUnavailable) || ctx.Err() != nil {
			return zero, err
		}
		if stale, ok := staleFromCache[T](f, kind, key); ok {
			f.log.Warn().
				Err(err).
				Str("key", key).
				Msg("Fetch failed, using stale cached data")
			return stale, nil
		}
		return zero, err
	}

	if f.repo != nil {
		if err := f.repo.Store(kind, key, v, TTLFor(kind)); err != nil {
			f.log.Warn().Err(err).Str("key", key).Msg("Failed to cache snapshot part")
		}
	}

	return v, nil
}

// staleFromCache retrieves a cached part even if expired.
func staleFromCache[T any](f *CachedFetcher, kind Kind, key string) (T, bool) {
	var zero T
	if f.repo == nil {
		return zero, false
	}

	data, err := f.repo.Get(kind, key)
	if err != nil || data == nil {
		return zero, false
	}

	var cached T
	if err := msgpack.Unmarshal(data, &cached); err != nil {
		return zero, false
	}
	return cached, true
}
