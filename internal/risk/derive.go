// Package risk derives display-ready risk metrics from raw position
// payloads. Everything here is a pure function: missing numerics are
// treated as zero before arithmetic and NaN/Inf never reach the output.
package risk

import (
	"math"

	"github.com/rcheng-dev/botconsole/internal/model"
)

// Maintenance margin ratio tier thresholds as reported by the exchange.
// Lower is closer to forced liquidation.
const (
	dangerBelow = 300.0
	safeAtLeast = 1000.0
)

// DefaultContractMultiplier is the BTC-USDT swap contracts-to-BTC factor.
// Contract-specific; always taken from configuration in real wiring.
const DefaultContractMultiplier = 0.01

// Config carries the exchange/contract-specific constants.
type Config struct {
	ContractMultiplier float64 `yaml:"contract_multiplier"`
}

func (c Config) multiplier() float64 {
	if c.ContractMultiplier > 0 {
		return c.ContractMultiplier
	}
	return DefaultContractMultiplier
}

// Tier buckets a maintenance margin ratio.
func Tier(maintMarginRatio float64) model.RiskTier {
	switch {
	case maintMarginRatio < dangerBelow:
		return model.TierDanger
	case maintMarginRatio < safeAtLeast:
		return model.TierWarning
	default:
		return model.TierSafe
	}
}

// Derive computes the derived view for a position snapshot. A snapshot
// without a side yields a flat view: balances pass through, every
// position-specific field is zero and the tier is absent, so a flat
// account renders identically to a just-initialized one.
func Derive(p model.PositionSnapshot, cfg Config) model.DerivedRisk {
	if p.Flat() {
		return model.DerivedRisk{
			Tier:         model.TierNone,
			TotalBalance: sanitize(p.TotalBalance),
			FreeBalance:  sanitize(p.FreeBalance),
		}
	}

	pnlRatio := 0.0
	if p.InitialMargin > 0 {
		pnlRatio = sanitize(p.UnrealizedPnl) / p.InitialMargin * 100
	}

	price := p.MarkPrice
	if price == 0 {
		price = p.EntryPrice
	}
	mult := cfg.multiplier()

	return model.DerivedRisk{
		Tier:         Tier(sanitize(p.MaintMarginRatio)),
		PnlRatioPct:  sanitize(pnlRatio),
		NotionalUSD:  sanitize(p.Size * price * mult),
		QtyBTC:       sanitize(p.Size * mult),
		TotalBalance: sanitize(p.TotalBalance),
		FreeBalance:  sanitize(p.FreeBalance),
	}
}

// sanitize collapses NaN/Inf to zero so malformed upstream numerics can
// never propagate into rendered output.
func sanitize(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}
