// Package equity reconciles the two generations of equity-curve payloads
// into one canonical series and summary. The reconciler owns the fallback
// chain across endpoints; callers that see it fail keep their last-known-
// good state rather than clearing the display.
package equity

import (
	"context"
	"errors"
	"fmt"

	"github.com/rcheng-dev/botconsole/internal/model"
	"github.com/rcheng-dev/botconsole/internal/observ"
)

// ErrChainExhausted reports that neither endpoint generation produced a
// usable payload this cycle.
var ErrChainExhausted = errors.New("equity fallback chain exhausted")

// Source is the upstream surface the reconciler pulls from.
type Source interface {
	EquityOverview(ctx context.Context, rng string) (*OverviewResponse, error)
	EquityCurveLegacy(ctx context.Context) (*LegacyResponse, error)
}

// Origin records which branch of the chain produced the result.
type Origin string

const (
	OriginAggregate Origin = "aggregate"
	OriginModel     Origin = "model"
	OriginLegacy    Origin = "legacy"
)

// Result is the canonical (series, summary) pair.
type Result struct {
	Series  model.EquitySeries
	Summary model.EquitySummary
	Origin  Origin
	Model   string // which model key was selected, OriginModel only
}

type Reconciler struct {
	src Source
}

func NewReconciler(src Source) *Reconciler {
	return &Reconciler{src: src}
}

// Reconcile attempts, in strict order: current endpoint aggregate shape,
// current endpoint per-model shape, legacy endpoint. Each step advances
// only on failure of the previous. On total failure the error is returned
// and no Result is produced; the caller retains what it last displayed.
func (r *Reconciler) Reconcile(ctx context.Context, rng string) (Result, error) {
	ov, ovErr := r.src.EquityOverview(ctx, rng)
	if ovErr == nil {
		switch probe(ov) {
		case shapeAggregate:
			res, err := fromAggregate(ov)
			if err == nil {
				return res, nil
			}
			ovErr = err
		case shapeModelMap:
			res, err := fromModelMap(ov)
			if err == nil {
				return res, nil
			}
			ovErr = err
		case shapeError:
			ovErr = fmt.Errorf("overview endpoint error: %s", ov.Error)
		default:
			ovErr = fmt.Errorf("overview payload carries no recognizable series")
		}
	}
	observ.IncCounter("equity_fallback_total", map[string]string{"stage": "legacy"})

	leg, legErr := r.src.EquityCurveLegacy(ctx)
	if legErr == nil {
		if leg != nil && leg.Success {
			return fromLegacy(leg), nil
		}
		legErr = fmt.Errorf("legacy endpoint reported failure")
	}

	observ.Log("equity_chain_exhausted", map[string]any{
		"overview_err": fmt.Sprint(ovErr),
		"legacy_err":   fmt.Sprint(legErr),
	})
	return Result{}, fmt.Errorf("%w: overview: %v; legacy: %v", ErrChainExhausted, ovErr, legErr)
}

// fromAggregate sums the per-model balance components of each sample.
// Initial balance is the first sample's component sum; current balance is
// the aggregate total, which includes unrealized pnl the series may lag.
func fromAggregate(ov *OverviewResponse) (Result, error) {
	series := make(model.EquitySeries, 0, len(ov.AggregateSeries))
	for _, p := range ov.AggregateSeries {
		series = append(series, model.EquityPoint{Timestamp: p.Timestamp, TotalEquity: p.Total()})
	}
	if len(series) == 0 {
		return Result{}, fmt.Errorf("aggregate series is empty")
	}
	initial := series[0].TotalEquity
	current := ov.Aggregate.TotalEquity
	return Result{
		Series:  series,
		Summary: Summarize(series, initial, current),
		Origin:  OriginAggregate,
	}, nil
}

// fromModelMap selects the first keyed series in insertion order. The
// display reconciles to a single representative model rather than merging
// across models.
func fromModelMap(ov *OverviewResponse) (Result, error) {
	key, points, err := firstModelSeries(ov.Series)
	if err != nil {
		return Result{}, err
	}
	if len(points) == 0 {
		return Result{}, fmt.Errorf("series %q is empty", key)
	}
	series := make(model.EquitySeries, 0, len(points))
	for _, p := range points {
		series = append(series, model.EquityPoint{Timestamp: p.Timestamp, TotalEquity: p.Balance})
	}
	initial := series[0].TotalEquity
	current := series[len(series)-1].TotalEquity
	return Result{
		Series:  series,
		Summary: Summarize(series, initial, current),
		Origin:  OriginModel,
		Model:   key,
	}, nil
}

// fromLegacy uses the endpoint's pre-computed stats verbatim. The legacy
// service already folds unrealized pnl into its stats, so recomputing here
// would double-count; the asymmetry with the current endpoint is
// deliberate.
func fromLegacy(leg *LegacyResponse) Result {
	series := make(model.EquitySeries, 0, len(leg.Data))
	for _, p := range leg.Data {
		series = append(series, model.EquityPoint{Timestamp: p.Timestamp, TotalEquity: p.Balance})
	}
	return Result{
		Series: series,
		Summary: model.EquitySummary{
			InitialBalance: leg.Stats.InitialBalance,
			CurrentBalance: leg.Stats.CurrentBalance,
			TotalReturnPct: leg.Stats.TotalReturn,
			MaxDrawdownPct: leg.Stats.MaxDrawdown,
		},
		Origin: OriginLegacy,
	}
}
