package equity

import "github.com/rcheng-dev/botconsole/internal/model"

// Summarize computes the client-side summary for the current-generation
// shapes. Max drawdown is a running-peak scan seeded with the initial
// balance, so the result is always <= 0. TotalReturnPct is zero when the
// initial balance is zero to avoid division artifacts.
func Summarize(series model.EquitySeries, initial, current float64) model.EquitySummary {
	totalReturn := 0.0
	if initial != 0 {
		totalReturn = (current - initial) / initial * 100
	}

	peak := initial
	maxDrawdown := 0.0
	for _, p := range series {
		if p.TotalEquity > peak {
			peak = p.TotalEquity
		}
		if peak > 0 {
			if dd := (p.TotalEquity - peak) / peak * 100; dd < maxDrawdown {
				maxDrawdown = dd
			}
		}
	}

	return model.EquitySummary{
		InitialBalance: initial,
		CurrentBalance: current,
		TotalReturnPct: totalReturn,
		MaxDrawdownPct: maxDrawdown,
	}
}
