package backtest

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/aristath/hybrid-trader/internal/domain"
)

// BarReplay serves snapshots and bars from a fixed, in-memory bar set.
// It satisfies the same fetcher contract as the live market-data client,
// so the orchestrator can run unchanged over historical data.
type BarReplay struct {
	builder      SnapshotBuilder
	bars         map[string][]domain.Bar
	fundamentals map[string]map[string]float64
}

// NewBarReplay indexes bars per instrument in chronological order
func NewBarReplay(builder SnapshotBuilder, bars map[string][]domain.Bar, fundamentals map[string]map[string]float64) *BarReplay {
	indexed := make(map[string][]domain.Bar, len(bars))
	for instrument, series := range bars {
		indexed[key(instrument)] = SortBars(series)
	}
	ratios := make(map[string]map[string]float64, len(fundamentals))
	for instrument, f := range fundamentals {
		ratios[key(instrument)] = f
	}
	return &BarReplay{builder: builder, bars: indexed, fundamentals: ratios}
}

// FetchSnapshot builds the snapshot for the latest bar at or before asOf
func (r *BarReplay) FetchSnapshot(ctx context.Context, instrument string, asOf time.Time) (*domain.MarketSnapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	series := r.bars[key(instrument)]
	idx := sort.Search(len(series), func(i int) bool { return series[i].Timestamp.After(asOf) }) - 1
	if idx < 0 {
		return nil, fmt.Errorf("%w: no bars for %s at or before %s", domain.ErrDataUnavailable, instrument, asOf.Format(time.RFC3339))
	}
	return r.builder.Build(instrument, series, idx, r.fundamentals[key(instrument)]), nil
}

// HistoricalBars returns bars with start <= timestamp <= end
func (r *BarReplay) HistoricalBars(ctx context.Context, instrument string, start, end time.Time) ([]domain.Bar, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out []domain.Bar
	for _, b := range r.bars[key(instrument)] {
		if b.Timestamp.Before(start) || b.Timestamp.After(end) {
			continue
		}
		out = append(out, b)
	}
	return out, nil
}

// SortBars returns a chronologically ordered copy of bars
func SortBars(bars []domain.Bar) []domain.Bar {
	sorted := append([]domain.Bar(nil), bars...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})
	return sorted
}

func key(instrument string) string {
	return strings.ToUpper(strings.TrimSpace(instrument))
}
