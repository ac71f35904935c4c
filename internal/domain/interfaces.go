package domain

import (
	"context"
	"time"
)

// SnapshotFetcher produces market snapshots from data-gathering collaborators
type SnapshotFetcher interface {
	FetchSnapshot(ctx context.Context, instrument string, asOf time.Time) (*MarketSnapshot, error)
}

// BarSource returns ordered historical bars for replay
type BarSource interface {
	HistoricalBars(ctx context.Context, instrument string, start, end time.Time) ([]Bar, error)
}

// Broker is the brokerage/execution collaborator
type Broker interface {
	AccountState(ctx context.Context) (PortfolioState, error)
	SubmitOrder(ctx context.Context, order Order) (Fill, error)
}

// MarketClock reports whether the trading session is open
type MarketClock interface {
	IsMarketOpen(t time.Time) bool
}
