// Package marketdata is the HTTP client for the market data service that
// supplies quotes, bars, indicators, fundamentals, forecasts and sentiment.
package marketdata

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/aristath/hybrid-trader/internal/domain"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"
)

const (
	// DefaultHistoryDays is the trailing window requested for snapshot history
	DefaultHistoryDays = 120
	defaultTimeout     = 30 * time.Second
)

// Config configures the client
type Config struct {
	BaseURL     string
	APIKey      string
	RPS         float64 // requests per second, <= 0 disables limiting
	Burst       int
	HistoryDays int
}

// Client for the market data service
type Client struct {
	baseURL     string
	apiKey      string
	historyDays int
	client      *http.Client
	limiter     *rate.Limiter
	breaker     *gobreaker.CircuitBreaker
	log         zerolog.Logger
}

// NewClient creates a new market data client
func NewClient(cfg Config, log zerolog.Logger) *Client {
	historyDays := cfg.HistoryDays
	if historyDays <= 0 {
		historyDays = DefaultHistoryDays
	}

	var limiter *rate.Limiter
	if cfg.RPS > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RPS), burst)
	}

	c := &Client{
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:      cfg.APIKey,
		historyDays: historyDays,
		client:      &http.Client{Timeout: defaultTimeout},
		limiter:     limiter,
		log:         log.With().Str("client", "marketdata").Logger(),
	}
	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:     "marketdata",
		Interval: 60 * time.Second,
		Timeout:  60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.ConsecutiveFailures >= 5 {
				return true
			}
			return counts.Requests >= 20 && float64(counts.TotalFailures)/float64(counts.Requests) > 0.5
		},
		// Missing data is an answer, not a failing service
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, domain.ErrDataUnavailable) || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.log.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Circuit breaker state changed")
		},
	})
	return c
}

// Quote returns the latest quote
func (c *Client) Quote(ctx context.Context, instrument string) (*domain.Quote, error) {
	var quote domain.Quote
	if err := c.get(ctx, instrumentPath(instrument, "quote"), nil, &quote); err != nil {
		return nil, err
	}
	if quote.Last <= 0 && (quote.Bid <= 0 || quote.Ask <= 0) {
		return nil, fmt.Errorf("%w: no usable price for %s", domain.ErrDataUnavailable, instrument)
	}
	return &quote, nil
}

type barsResponse struct {
	Bars []domain.Bar `json:"bars"`
}

// HistoricalBars returns daily bars in [start, end], oldest first
func (c *Client) HistoricalBars(ctx context.Context, instrument string, start, end time.Time) ([]domain.Bar, error) {
	if end.Before(start) {
		return nil, domain.InvalidConfigf("end %s before start %s", end.Format(time.DateOnly), start.Format(time.DateOnly))
	}

	query := url.Values{}
	query.Set("start", start.Format(time.DateOnly))
	query.Set("end", end.Format(time.DateOnly))

	var resp barsResponse
	if err := c.get(ctx, instrumentPath(instrument, "bars"), query, &resp); err != nil {
		return nil, err
	}
	for i := 1; i < len(resp.Bars); i++ {
		if resp.Bars[i].Timestamp.Before(resp.Bars[i-1].Timestamp) {
			return nil, fmt.Errorf("%w: bars for %s out of order", domain.ErrFetchFailed, instrument)
		}
	}
	return resp.Bars, nil
}

// History returns the trailing window of bars ending at asOf
func (c *Client) History(ctx context.Context, instrument string, asOf time.Time) ([]domain.Bar, error) {
	return c.HistoricalBars(ctx, instrument, asOf.AddDate(0, 0, -c.historyDays), asOf)
}

type valuesResponse struct {
	Values map[string]float64 `json:"values"`
}

// Indicators returns technical indicator values as of asOf
func (c *Client) Indicators(ctx context.Context, instrument string, asOf time.Time) (map[string]float64, error) {
	var resp valuesResponse
	if err := c.get(ctx, instrumentPath(instrument, "indicators"), asOfQuery(asOf), &resp); err != nil {
		return nil, err
	}
	return nonEmpty(resp.Values, instrument, "indicators")
}

// Fundamentals returns the latest fundamental ratios and scores
func (c *Client) Fundamentals(ctx context.Context, instrument string) (map[string]float64, error) {
	var resp valuesResponse
	if err := c.get(ctx, instrumentPath(instrument, "fundamentals"), nil, &resp); err != nil {
		return nil, err
	}
	return nonEmpty(resp.Values, instrument, "fundamentals")
}

// Forecast returns the price forecast made as of asOf
func (c *Client) Forecast(ctx context.Context, instrument string, asOf time.Time) (*domain.Forecast, error) {
	var forecast domain.Forecast
	if err := c.get(ctx, instrumentPath(instrument, "forecast"), asOfQuery(asOf), &forecast); err != nil {
		return nil, err
	}
	return &forecast, nil
}

// Sentiment returns the net news sentiment as of asOf
func (c *Client) Sentiment(ctx context.Context, instrument string, asOf time.Time) (*domain.Sentiment, error) {
	var sentiment domain.Sentiment
	if err := c.get(ctx, instrumentPath(instrument, "sentiment"), asOfQuery(asOf), &sentiment); err != nil {
		return nil, err
	}
	return &sentiment, nil
}

// get performs a rate-limited, circuit-broken GET and decodes the JSON body.
// 404 maps to ErrDataUnavailable; transport errors and other statuses to ErrFetchFailed.
func (c *Client) get(ctx context.Context, path string, query url.Values, out interface{}) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("%w: rate limiter: %w", domain.ErrFetchFailed, err)
		}
	}

	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	_, err := c.breaker.Execute(func() (interface{}, error) {
		return nil, c.do(ctx, endpoint, out)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: %w", domain.ErrFetchFailed, err)
	}
	return err
}

func (c *Client) do(ctx context.Context, endpoint string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	c.log.Debug().Str("url", endpoint).Msg("Fetching")

	resp, err := c.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: %w", domain.ErrFetchFailed, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%w: %s", domain.ErrDataUnavailable, endpoint)
	case resp.StatusCode != http.StatusOK:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%w: status %d: %s", domain.ErrFetchFailed, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: failed to parse response: %w", domain.ErrFetchFailed, err)
	}
	return nil
}

func instrumentPath(instrument, resource string) string {
	return "/v1/instruments/" + url.PathEscape(strings.ToUpper(strings.TrimSpace(instrument))) + "/" + resource
}

func asOfQuery(asOf time.Time) url.Values {
	query := url.Values{}
	query.Set("as_of", asOf.UTC().Format(time.RFC3339))
	return query
}

func nonEmpty(values map[string]float64, instrument, kind string) (map[string]float64, error) {
	if len(values) == 0 {
		return nil, fmt.Errorf("%w: no %s for %s", domain.ErrDataUnavailable, kind, instrument)
	}
	return values, nil
}
