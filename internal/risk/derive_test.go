package risk

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/rcheng-dev/botconsole/internal/model"
)

func TestTierBoundaries(t *testing.T) {
	tests := []struct {
		ratio float64
		want  model.RiskTier
	}{
		{299.9, model.TierDanger},
		{300, model.TierWarning},
		{999.9, model.TierWarning},
		{1000, model.TierSafe},
		{0, model.TierDanger},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Tier(tt.ratio), "ratio %v", tt.ratio)
	}
}

func TestDeriveOpenPosition(t *testing.T) {
	p := model.PositionSnapshot{
		Side:             "long",
		Size:             10,
		EntryPrice:       60000,
		MarkPrice:        64000,
		InitialMargin:    320,
		MaintMarginRatio: 850,
		UnrealizedPnl:    48,
		TotalBalance:     1200,
		FreeBalance:      880,
	}

	d := Derive(p, Config{ContractMultiplier: 0.01})

	assert.Equal(t, model.TierWarning, d.Tier)
	assert.InDelta(t, 15.0, d.PnlRatioPct, 1e-9) // 48/320*100
	assert.InDelta(t, 6400.0, d.NotionalUSD, 1e-9)
	assert.InDelta(t, 0.1, d.QtyBTC, 1e-9)
	assert.Equal(t, 1200.0, d.TotalBalance)
}

func TestDeriveFallsBackToEntryPrice(t *testing.T) {
	p := model.PositionSnapshot{Side: "short", Size: 5, EntryPrice: 50000, InitialMargin: 100}
	d := Derive(p, Config{})
	assert.InDelta(t, 2500.0, d.NotionalUSD, 1e-9) // default multiplier 0.01
}

func TestDeriveFlatMatchesZeroState(t *testing.T) {
	flat := Derive(model.PositionSnapshot{TotalBalance: 500, FreeBalance: 500}, Config{})
	zero := Derive(model.PositionSnapshot{}, Config{})

	assert.Equal(t, model.TierNone, flat.Tier)
	assert.Zero(t, flat.PnlRatioPct)
	assert.Zero(t, flat.NotionalUSD)
	assert.Zero(t, flat.QtyBTC)
	assert.Equal(t, 500.0, flat.TotalBalance)

	// Identical to the just-initialized state except the balances.
	flat.TotalBalance, flat.FreeBalance = 0, 0
	assert.Equal(t, zero, flat)
}

func TestDeriveZeroMarginMeansZeroRatio(t *testing.T) {
	p := model.PositionSnapshot{Side: "long", UnrealizedPnl: 42}
	d := Derive(p, Config{})
	assert.Zero(t, d.PnlRatioPct)
}

func TestDeriveSanitizesNaN(t *testing.T) {
	p := model.PositionSnapshot{
		Side:          "long",
		Size:          math.NaN(),
		MarkPrice:     math.Inf(1),
		InitialMargin: 10,
		UnrealizedPnl: math.NaN(),
	}
	d := Derive(p, Config{})
	assert.False(t, math.IsNaN(d.NotionalUSD) || math.IsInf(d.NotionalUSD, 0))
	assert.False(t, math.IsNaN(d.PnlRatioPct))
	assert.Zero(t, d.QtyBTC)
}
