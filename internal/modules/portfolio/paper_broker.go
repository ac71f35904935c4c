package portfolio

import (
	"context"
	"fmt"
	"time"

	"github.com/aristath/hybrid-trader/internal/domain"
	"github.com/rs/zerolog"
)

// PaperBroker fills orders at their reference price against an Account.
// It is the broker used for paper trading and backtest replay.
type PaperBroker struct {
	account        *Account
	clock          domain.MarketClock
	commissionRate float64
	now            func() time.Time
	log            zerolog.Logger
}

// NewPaperBroker creates a paper broker. A nil clock means the session is always open.
func NewPaperBroker(account *Account, clock domain.MarketClock, commissionRate float64, log zerolog.Logger) *PaperBroker {
	return &PaperBroker{
		account:        account,
		clock:          clock,
		commissionRate: commissionRate,
		now:            time.Now,
		log:            log.With().Str("component", "paper_broker").Logger(),
	}
}

// AccountState returns a copy of the account
func (b *PaperBroker) AccountState(ctx context.Context) (domain.PortfolioState, error) {
	if err := ctx.Err(); err != nil {
		return domain.PortfolioState{}, err
	}
	return b.account.State(), nil
}

// IsMarketOpen delegates to the configured clock
func (b *PaperBroker) IsMarketOpen(t time.Time) bool {
	if b.clock == nil {
		return true
	}
	return b.clock.IsMarketOpen(t)
}

// SubmitOrder fills the whole order at its reference price plus commission,
// charged at the order's own rate when it carries one.
// Orders the account cannot cover are rejected with ErrExecutionRejected.
func (b *PaperBroker) SubmitOrder(ctx context.Context, order domain.Order) (domain.Fill, error) {
	if err := ctx.Err(); err != nil {
		return domain.Fill{}, err
	}
	if err := order.Validate(); err != nil {
		return domain.Fill{}, fmt.Errorf("%w: %v", domain.ErrExecutionRejected, err)
	}

	rate := b.commissionRate
	if order.CommissionRate != nil {
		rate = *order.CommissionRate
	}

	filledAt := order.UpdatedAt
	if filledAt.IsZero() {
		filledAt = b.now()
	}

	fill := domain.Fill{
		OrderID:    order.ID,
		Instrument: order.Instrument,
		Side:       order.Side,
		Quantity:   order.Quantity,
		Price:      order.ReferencePrice,
		Commission: Commission(order.Quantity, order.ReferencePrice, rate),
		FilledAt:   filledAt,
	}

	if err := b.account.ApplyFill(fill); err != nil {
		b.log.Warn().Err(err).Str("order_id", order.ID).Msg("Order rejected")
		return domain.Fill{}, fmt.Errorf("%w: %v", domain.ErrExecutionRejected, err)
	}

	b.log.Info().
		Str("order_id", order.ID).
		Str("instrument", order.Instrument).
		Str("side", string(order.Side)).
		Int64("quantity", order.Quantity).
		Float64("price", fill.Price).
		Msg("Order filled")

	return fill, nil
}

// Commission returns the fee for a fill
func Commission(quantity int64, price, rate float64) float64 {
	return float64(quantity) * price * rate
}
