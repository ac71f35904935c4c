// Package aggregator combines strategy signals into a single decision.
package aggregator

import (
	"sort"
	"time"

	"github.com/aristath/hybrid-trader/internal/domain"
)

// Aggregate tallies one vote per signal. The action with a strict plurality
// wins; on a tie for first place the sign of the net sentiment decides
// (positive Buy, negative Sell, zero Hold). It never fails, and the result
// does not depend on signal order.
func Aggregate(instrument string, signals []domain.Signal, sentiment float64, at time.Time) domain.AggregatedDecision {
	counts := make(map[domain.Action]int, len(domain.Actions))
	for _, a := range domain.Actions {
		counts[a] = 0
	}
	for _, sig := range signals {
		action := sig.Action
		if !action.Valid() {
			action = domain.ActionHold
		}
		counts[action]++
	}

	decision := domain.AggregatedDecision{
		Instrument: instrument,
		VoteCounts: counts,
		Sentiment:  sentiment,
		Timestamp:  at,
		Signals:    sortedSignals(signals),
	}

	if len(signals) == 0 {
		decision.Action = domain.ActionHold
		return decision
	}

	winner, unique := plurality(counts)
	if unique {
		decision.Action = winner
		return decision
	}

	decision.TieBroken = true
	decision.Action = TieBreak(sentiment)
	return decision
}

// TieBreak maps the sign of a sentiment score to an action
func TieBreak(sentiment float64) domain.Action {
	switch {
	case sentiment > 0:
		return domain.ActionBuy
	case sentiment < 0:
		return domain.ActionSell
	default:
		return domain.ActionHold
	}
}

// plurality returns the most voted action and whether it is the only one with that count
func plurality(counts map[domain.Action]int) (domain.Action, bool) {
	best := domain.ActionHold
	bestCount := -1
	unique := false
	for _, a := range domain.Actions {
		switch c := counts[a]; {
		case c > bestCount:
			best, bestCount, unique = a, c, true
		case c == bestCount:
			unique = false
		}
	}
	return best, unique
}

func sortedSignals(signals []domain.Signal) []domain.Signal {
	if len(signals) == 0 {
		return nil
	}
	out := make([]domain.Signal, len(signals))
	copy(out, signals)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Source != out[j].Source {
			return out[i].Source < out[j].Source
		}
		if out[i].Action != out[j].Action {
			return out[i].Action < out[j].Action
		}
		return out[i].Reason < out[j].Reason
	})
	return out
}
