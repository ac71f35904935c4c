package trading

import (
	"errors"
	"fmt"
	"strings"

	"github.com/aristath/hybrid-trader/internal/domain"
	"github.com/rs/zerolog"
)

// ErrNotEligible marks a decision downgraded to Hold by an eligibility check
var ErrNotEligible = errors.New("not eligible")

// EligibilityChecker validates a decision before sizing.
// Checks run in layers and the first failure wins.
type EligibilityChecker struct {
	blacklist   map[string]bool
	positionCap float64 // max share of portfolio value held in one instrument, 0 disables
	log         zerolog.Logger
}

// NewEligibilityChecker creates a checker for the given blacklist and position cap
func NewEligibilityChecker(blacklist []string, positionCap float64, log zerolog.Logger) *EligibilityChecker {
	bl := make(map[string]bool, len(blacklist))
	for _, s := range blacklist {
		bl[normalize(s)] = true
	}
	return &EligibilityChecker{
		blacklist:   bl,
		positionCap: positionCap,
		log:         log.With().Str("service", "eligibility").Logger(),
	}
}

// IsBlacklisted reports whether an instrument may never be traded
func (c *EligibilityChecker) IsBlacklisted(instrument string) bool {
	return c.blacklist[normalize(instrument)]
}

// Check returns an ErrNotEligible error when the decision must become Hold
func (c *EligibilityChecker) Check(decision domain.AggregatedDecision, state domain.PortfolioState, price float64) error {
	// Layer 1: blacklist applies to every action
	if c.IsBlacklisted(decision.Instrument) {
		return fmt.Errorf("%w: %s is blacklisted", ErrNotEligible, decision.Instrument)
	}

	// Layer 2: position cap limits further buying only
	if decision.Action == domain.ActionBuy && c.positionCap > 0 {
		pos, held := state.Positions[decision.Instrument]
		if held && pos.Quantity > 0 {
			total := state.Value(map[string]float64{decision.Instrument: price})
			exposure := float64(pos.Quantity) * price
			if total > 0 && exposure/total >= c.positionCap {
				c.log.Debug().
					Str("instrument", decision.Instrument).
					Float64("exposure", exposure/total).
					Float64("cap", c.positionCap).
					Msg("Position at cap")
				return fmt.Errorf("%w: %s already at position cap (%.1f%% of portfolio)",
					ErrNotEligible, decision.Instrument, exposure/total*100)
			}
		}
	}

	// Layer 3: nothing to sell
	if decision.Action == domain.ActionSell {
		if pos, held := state.Positions[decision.Instrument]; !held || pos.Quantity <= 0 {
			return fmt.Errorf("%w: no open position in %s to sell", ErrNotEligible, decision.Instrument)
		}
	}

	return nil
}

func normalize(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}
