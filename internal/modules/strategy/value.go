package strategy

import (
	"fmt"
	"sort"

	"github.com/aristath/hybrid-trader/internal/domain"
)

// valueStrategy screens fundamentals: buy only when every ratio clears its
// bound, sell when a liquidity ratio falls below its floor.
type valueStrategy struct {
	th ValueThresholds
}

func newValueStrategy(th ValueThresholds) *valueStrategy {
	return &valueStrategy{th: th}
}

func (s *valueStrategy) ID() domain.StrategyID { return Value }

func (s *valueStrategy) Evaluate(snapshot *domain.MarketSnapshot) domain.Signal {
	if snapshot == nil || len(snapshot.Fundamentals) == 0 {
		return missing(s.ID(), snapshot, "fundamentals")
	}

	evidence := make(map[string]float64)
	var failed, absent string

	check := func(bounds map[string]float64, passes func(v, bound float64) bool) {
		for _, key := range sortedKeys(bounds) {
			v, ok := snapshot.Fundamental(key)
			if !ok {
				evidence["missing:"+key] = 1
				if absent == "" {
					absent = key
				}
				continue
			}
			evidence[key] = v
			if failed == "" && !passes(v, bounds[key]) {
				failed = key
			}
		}
	}
	check(s.th.BuyMin, func(v, bound float64) bool { return v >= bound })
	check(s.th.BuyMax, func(v, bound float64) bool { return v <= bound })

	if failed == "" && absent == "" {
		return newSignal(s.ID(), snapshot, domain.ActionBuy, "all financial health thresholds met", evidence)
	}

	for _, key := range sortedKeys(s.th.SellBelow) {
		v, ok := snapshot.Fundamental(key)
		if ok && v < s.th.SellBelow[key] {
			return newSignal(s.ID(), snapshot, domain.ActionSell,
				fmt.Sprintf("%s %.2f below sell threshold %.2f", key, v, s.th.SellBelow[key]), evidence)
		}
	}

	if failed != "" {
		return hold(s.ID(), snapshot, fmt.Sprintf("%s does not meet its threshold", failed), evidence)
	}
	return hold(s.ID(), snapshot, fmt.Sprintf("%v: %s", domain.ErrDataUnavailable, absent), evidence)
}

func sortedKeys(m map[string]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
