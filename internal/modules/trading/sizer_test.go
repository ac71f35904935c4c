package trading

import (
	"math/rand"
	"testing"

	"github.com/aristath/hybrid-trader/internal/domain"
	"github.com/stretchr/testify/assert"
)

func TestSizerSize(t *testing.T) {
	sizer := Sizer{PositionFraction: 0.02, MaxInvestmentPartition: 0.1}
	buy := domain.AggregatedDecision{Action: domain.ActionBuy}

	tests := []struct {
		name        string
		decision    domain.AggregatedDecision
		buyingPower float64
		price       float64
		want        int64
	}{
		{name: "reference example", decision: buy, buyingPower: 10000, price: 50, want: 4},
		{name: "price above budget", decision: buy, buyingPower: 1000, price: 50, want: 0},
		{name: "zero price", decision: buy, buyingPower: 10000, price: 0, want: 0},
		{name: "negative buying power", decision: buy, buyingPower: -5, price: 10, want: 0},
		{name: "hold decision", decision: domain.AggregatedDecision{Action: domain.ActionHold}, buyingPower: 10000, price: 50, want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, sizer.Size(tt.decision, tt.buyingPower, tt.price))
		})
	}
}

func TestSizeNeverExceedsPartition(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 1000; i++ {
		bp := rng.Float64() * 1e6
		price := 0.01 + rng.Float64()*1000
		pf := rng.Float64()
		mip := rng.Float64()

		qty := SizeFor(bp, price, pf, mip)
		assert.GreaterOrEqual(t, qty, int64(0))
		assert.LessOrEqual(t, float64(qty)*price, bp*mip+1e-6)
	}
}

func TestSizerValidate(t *testing.T) {
	assert.NoError(t, Sizer{PositionFraction: 0.02, MaxInvestmentPartition: 0.1}.Validate())
	assert.NoError(t, Sizer{PositionFraction: 1, MaxInvestmentPartition: 1}.Validate())

	for _, s := range []Sizer{
		{PositionFraction: 0, MaxInvestmentPartition: 0.1},
		{PositionFraction: 0.02, MaxInvestmentPartition: 1.5},
		{PositionFraction: -0.1, MaxInvestmentPartition: 0.1},
	} {
		assert.ErrorIs(t, s.Validate(), domain.ErrInvalidConfiguration)
	}
}
