// Package portfolio owns account state: cash and open positions.
package portfolio

import (
	"fmt"
	"sync"

	"github.com/aristath/hybrid-trader/internal/domain"
	"github.com/rs/zerolog"
)

// Account is the single owner of a PortfolioState. Every mutation goes
// through ApplyFill under the account lock; readers get a deep copy.
type Account struct {
	mu    sync.Mutex
	state domain.PortfolioState
	log   zerolog.Logger
}

// NewAccount creates an account holding only cash
func NewAccount(startingCash float64, log zerolog.Logger) *Account {
	return &Account{
		state: domain.PortfolioState{
			Cash:      startingCash,
			Positions: make(map[string]domain.Position),
		},
		log: log.With().Str("component", "account").Logger(),
	}
}

// NewAccountFromState creates an account from an existing state
func NewAccountFromState(state domain.PortfolioState, log zerolog.Logger) *Account {
	a := NewAccount(0, log)
	a.state = state.Clone()
	return a
}

// State returns a copy of the current state
func (a *Account) State() domain.PortfolioState {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state.Clone()
}

// Cash returns the current cash balance
func (a *Account) Cash() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state.Cash
}

// ApplyFill books a fill against cash and positions.
// Buys must be covered by cash including commission; sells cannot exceed the held quantity.
func (a *Account) ApplyFill(fill domain.Fill) error {
	if fill.Quantity <= 0 || fill.Price <= 0 {
		return fmt.Errorf("invalid fill for %s: quantity %d at %f", fill.Instrument, fill.Quantity, fill.Price)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	notional := float64(fill.Quantity) * fill.Price
	pos := a.state.Positions[fill.Instrument]

	switch fill.Side {
	case domain.ActionBuy:
		cost := notional + fill.Commission
		if cost > a.state.Cash+1e-9 {
			return fmt.Errorf("%w: buy of %s costs %.2f, cash %.2f",
				domain.ErrInsufficientCapital, fill.Instrument, cost, a.state.Cash)
		}
		total := pos.Quantity + fill.Quantity
		pos.AverageCost = (float64(pos.Quantity)*pos.AverageCost + notional) / float64(total)
		pos.Quantity = total
		pos.Instrument = fill.Instrument
		a.state.Cash -= cost
		a.state.Positions[fill.Instrument] = pos

	case domain.ActionSell:
		if fill.Quantity > pos.Quantity {
			return fmt.Errorf("cannot sell %d %s, holding %d", fill.Quantity, fill.Instrument, pos.Quantity)
		}
		pos.Quantity -= fill.Quantity
		a.state.Cash += notional - fill.Commission
		if pos.Quantity == 0 {
			delete(a.state.Positions, fill.Instrument)
		} else {
			a.state.Positions[fill.Instrument] = pos
		}

	default:
		return fmt.Errorf("invalid fill side %q", fill.Side)
	}

	a.log.Debug().
		Str("instrument", fill.Instrument).
		Str("side", string(fill.Side)).
		Int64("quantity", fill.Quantity).
		Float64("price", fill.Price).
		Float64("cash", a.state.Cash).
		Msg("Fill applied")

	return nil
}
