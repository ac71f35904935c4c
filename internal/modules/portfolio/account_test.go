package portfolio

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/aristath/hybrid-trader/internal/domain"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAccountApplyFill(t *testing.T) {
	acct := NewAccount(1000, zerolog.Nop())

	require.NoError(t, acct.ApplyFill(domain.Fill{Instrument: "AAPL", Side: domain.ActionBuy, Quantity: 2, Price: 100, Commission: 1}))
	require.NoError(t, acct.ApplyFill(domain.Fill{Instrument: "AAPL", Side: domain.ActionBuy, Quantity: 2, Price: 200}))

	state := acct.State()
	assert.InDelta(t, 1000-201-400, state.Cash, 1e-9)
	assert.Equal(t, int64(4), state.Positions["AAPL"].Quantity)
	assert.InDelta(t, 150, state.Positions["AAPL"].AverageCost, 1e-9)

	require.NoError(t, acct.ApplyFill(domain.Fill{Instrument: "AAPL", Side: domain.ActionSell, Quantity: 4, Price: 150, Commission: 2}))
	state = acct.State()
	assert.InDelta(t, 399+600-2, state.Cash, 1e-9)
	_, held := state.Positions["AAPL"]
	assert.False(t, held)
}

func TestAccountRejectsInvalidFills(t *testing.T) {
	acct := NewAccount(100, zerolog.Nop())

	err := acct.ApplyFill(domain.Fill{Instrument: "AAPL", Side: domain.ActionBuy, Quantity: 2, Price: 60})
	assert.True(t, errors.Is(err, domain.ErrInsufficientCapital))

	assert.Error(t, acct.ApplyFill(domain.Fill{Instrument: "AAPL", Side: domain.ActionSell, Quantity: 1, Price: 60}))
	assert.Error(t, acct.ApplyFill(domain.Fill{Instrument: "AAPL", Side: domain.ActionHold, Quantity: 1, Price: 60}))
	assert.Error(t, acct.ApplyFill(domain.Fill{Instrument: "AAPL", Side: domain.ActionBuy, Quantity: 0, Price: 60}))
	assert.Equal(t, 100.0, acct.Cash())
}

func TestAccountStateIsACopy(t *testing.T) {
	acct := NewAccount(1000, zerolog.Nop())
	require.NoError(t, acct.ApplyFill(domain.Fill{Instrument: "AAPL", Side: domain.ActionBuy, Quantity: 1, Price: 10}))

	state := acct.State()
	state.Positions["AAPL"] = domain.Position{Quantity: 99}
	state.Cash = 0

	assert.Equal(t, int64(1), acct.State().Positions["AAPL"].Quantity)
	assert.Equal(t, 990.0, acct.Cash())
}

func TestAccountConcurrentFills(t *testing.T) {
	acct := NewAccount(1000, zerolog.Nop())

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = acct.ApplyFill(domain.Fill{Instrument: "AAPL", Side: domain.ActionBuy, Quantity: 1, Price: 30})
		}()
	}
	wg.Wait()

	state := acct.State()
	// only 33 buys fit into 1000 cash
	assert.Equal(t, int64(33), state.Positions["AAPL"].Quantity)
	assert.InDelta(t, 10, state.Cash, 1e-9)
}

type closedClock struct{}

func (closedClock) IsMarketOpen(time.Time) bool { return false }

func TestPaperBroker(t *testing.T) {
	acct := NewAccount(1000, zerolog.Nop())
	broker := NewPaperBroker(acct, nil, 0.002, zerolog.Nop())
	ctx := context.Background()

	at := time.Date(2024, 5, 6, 15, 0, 0, 0, time.UTC)
	fill, err := broker.SubmitOrder(ctx, domain.Order{
		ID: "o1", Instrument: "AAPL", Side: domain.ActionBuy, Quantity: 4, ReferencePrice: 50, UpdatedAt: at,
	})
	require.NoError(t, err)
	assert.Equal(t, "o1", fill.OrderID)
	assert.InDelta(t, 0.4, fill.Commission, 1e-9)
	assert.Equal(t, at, fill.FilledAt)

	state, err := broker.AccountState(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 1000-200.4, state.Cash, 1e-9)

	_, err = broker.SubmitOrder(ctx, domain.Order{ID: "o2", Instrument: "AAPL", Side: domain.ActionBuy, Quantity: 100, ReferencePrice: 50})
	assert.True(t, errors.Is(err, domain.ErrExecutionRejected))

	assert.True(t, broker.IsMarketOpen(at))
	assert.False(t, NewPaperBroker(acct, closedClock{}, 0, zerolog.Nop()).IsMarketOpen(at))

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = broker.SubmitOrder(cancelled, domain.Order{ID: "o3", Instrument: "AAPL", Side: domain.ActionSell, Quantity: 1, ReferencePrice: 50})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPaperBrokerOrderCommissionRate(t *testing.T) {
	free := 0.0
	steep := 0.01

	tests := []struct {
		name string
		rate *float64
		want float64
	}{
		{"broker rate", nil, 0.4},
		{"zero override", &free, 0},
		{"order rate", &steep, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			broker := NewPaperBroker(NewAccount(1000, zerolog.Nop()), nil, 0.002, zerolog.Nop())
			fill, err := broker.SubmitOrder(context.Background(), domain.Order{
				ID: "o1", Instrument: "AAPL", Side: domain.ActionBuy, Quantity: 4, ReferencePrice: 50, CommissionRate: tt.rate,
			})
			require.NoError(t, err)
			assert.InDelta(t, tt.want, fill.Commission, 1e-9)
		})
	}
}
