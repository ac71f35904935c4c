package aggregator

import (
	"testing"

	"github.com/aristath/hybrid-trader/internal/domain"
	"github.com/aristath/hybrid-trader/internal/modules/strategy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecideWithoutDataHolds(t *testing.T) {
	set, err := strategy.NewSet(nil, strategy.DefaultThresholds())
	require.NoError(t, err)

	snapshot := &domain.MarketSnapshot{Instrument: "X", AsOf: at}
	decision := Decide(set, snapshot)

	assert.Equal(t, "X", decision.Instrument)
	assert.Equal(t, domain.ActionHold, decision.Action)
	assert.Equal(t, set.Len(), decision.VoteCounts[domain.ActionHold])
	assert.False(t, decision.TieBroken)
	assert.True(t, decision.Timestamp.Equal(at))
}
