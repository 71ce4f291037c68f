package loop

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rcheng-dev/botconsole/internal/equity"
	"github.com/rcheng-dev/botconsole/internal/logfeed"
	"github.com/rcheng-dev/botconsole/internal/model"
	"github.com/rcheng-dev/botconsole/internal/observ"
	"github.com/rcheng-dev/botconsole/internal/risk"
	"github.com/rcheng-dev/botconsole/internal/transport"
	"github.com/rcheng-dev/botconsole/internal/upstream"
)

// API is the slice of the upstream client the loop drives. Narrowed to an
// interface so tests can substitute a blocking fake.
type API interface {
	Status(ctx context.Context) (*upstream.StatusResponse, error)
	BotRuntime(ctx context.Context) (*upstream.BotRuntimeResponse, error)
	TradingLogs(ctx context.Context) (*upstream.TradingLogsResponse, error)
	SignalAccuracy(ctx context.Context) (*upstream.SignalAccuracyResponse, error)
	AIDecisions(ctx context.Context) ([]model.Decision, error)
	Trades(ctx context.Context) ([]model.TradeFill, error)
	StartBot(ctx context.Context) (*upstream.ActionResponse, error)
	StopBot(ctx context.Context) (*upstream.ActionResponse, error)
	RestartBot(ctx context.Context) (*upstream.ActionResponse, error)
	UpdateConfig(ctx context.Context, cfg map[string]any) (*upstream.ActionResponse, error)
}

// Reconciler resolves the equity fallback chain for a given range.
type Reconciler interface {
	Reconcile(ctx context.Context, rng string) (equity.Result, error)
}

type Config struct {
	FastInterval time.Duration
	SlowInterval time.Duration
	EquityRange  string
	Risk         risk.Config
}

// resource identifies a gated slow-cycle fetch. Fast-cycle fetches are not
// gated; overlapping status responses are last-write-wins.
type resource string

const (
	resLogs      resource = "logs"
	resDecisions resource = "decisions"
	resTrades    resource = "trades"
)

// Loop owns the poll cadences, the push channel, and all mutation of the
// rendered state. Fetches run on their own goroutines but every result is
// funneled back through the apply channel, so the loop goroutine is the
// single writer: guards, cadence state, and store updates never race.
type Loop struct {
	cfg   Config
	api   API
	rec   Reconciler
	store *Store
	norm  *logfeed.Normalizer
	buf   *logfeed.Buffer
	push  <-chan transport.EventEnvelope

	apply    chan func()
	control  chan func()
	inflight map[resource]bool
	paused   bool
	rng      string

	cyclesSinceEquity int
	now               func() time.Time
	runCtx            context.Context
}

func New(cfg Config, api API, rec Reconciler, store *Store, push <-chan transport.EventEnvelope) *Loop {
	if cfg.FastInterval <= 0 {
		cfg.FastInterval = 2 * time.Second
	}
	if cfg.SlowInterval <= 0 {
		cfg.SlowInterval = 30 * time.Second
	}
	if cfg.EquityRange == "" {
		cfg.EquityRange = "1d"
	}
	return &Loop{
		cfg:      cfg,
		api:      api,
		rec:      rec,
		store:    store,
		norm:     logfeed.New(),
		buf:      logfeed.NewBuffer(logfeed.DefaultCapacity),
		push:     push,
		apply:    make(chan func(), 64),
		control:  make(chan func(), 16),
		inflight: make(map[resource]bool),
		rng:      cfg.EquityRange,
		now:      time.Now,
		runCtx:   context.Background(),
	}
}

// Run drives both cadences until ctx is cancelled. Tickers are owned here
// and stopped on exit, so a stopped loop leaves no timers running.
func (l *Loop) Run(ctx context.Context) {
	l.runCtx = ctx
	fast := time.NewTicker(l.cfg.FastInterval)
	defer fast.Stop()
	slow := time.NewTicker(l.cfg.SlowInterval)
	defer slow.Stop()

	// Prime both cycles so the display is populated before the first tick.
	l.pullFast(ctx)
	l.pullSlow(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-fast.C:
			if !l.paused {
				l.pullFast(ctx)
			}
		case <-slow.C:
			l.pullSlow(ctx)
		case env, ok := <-l.push:
			if !ok {
				l.push = nil // channel closed; fall back to polling only
				continue
			}
			l.handlePush(env)
		case fn := <-l.apply:
			fn()
		case fn := <-l.control:
			fn()
		}
	}
}

// pullFast issues the status and runtime fetches. Not gated: a slow
// response is simply overwritten by a later one on arrival.
func (l *Loop) pullFast(ctx context.Context) {
	go func() {
		start := l.now()
		st, err := l.api.Status(ctx)
		l.observe("status", start, err)
		l.enqueue(ctx, func() {
			if err != nil {
				return
			}
			l.applyStatus(st)
		})
	}()
	go func() {
		start := l.now()
		rt, err := l.api.BotRuntime(ctx)
		l.observe("bot_runtime", start, err)
		l.enqueue(ctx, func() {
			if err != nil {
				return
			}
			l.applyRuntime(rt)
		})
	}()
}

// pullSlow issues the heavy fetches. Logs, decisions and trades are gated
// per resource; equity and accuracy are cheap enough to leave ungated.
func (l *Loop) pullSlow(ctx context.Context) {
	l.refreshEquity(ctx)
	l.refreshAccuracy(ctx)
	l.refreshLogs(ctx)
	l.refreshDecisions(ctx)
	l.refreshTrades(ctx)
}

func (l *Loop) refreshEquity(ctx context.Context) {
	rng := l.rng
	go func() {
		start := l.now()
		res, err := l.rec.Reconcile(ctx, rng)
		l.observe("equity", start, err)
		l.enqueue(ctx, func() {
			if err != nil {
				// Retain the last-known-good curve; just count the miss.
				l.cyclesSinceEquity++
				observ.SetGauge("cycles_since_equity", float64(l.cyclesSinceEquity), nil)
				return
			}
			l.cyclesSinceEquity = 0
			observ.SetGauge("cycles_since_equity", 0, nil)
			l.store.setEquity(res)
		})
	}()
}

func (l *Loop) refreshAccuracy(ctx context.Context) {
	go func() {
		start := l.now()
		resp, err := l.api.SignalAccuracy(ctx)
		l.observe("signal_accuracy", start, err)
		l.enqueue(ctx, func() {
			if err != nil || !resp.Success {
				return
			}
			l.store.setAccuracy(resp.Accuracy())
		})
	}()
}

// refreshLogs fetches and renormalizes the raw tail. Returns false when a
// previous fetch is still outstanding and this one was skipped.
func (l *Loop) refreshLogs(ctx context.Context) bool {
	if !l.acquire(resLogs) {
		return false
	}
	go func() {
		start := l.now()
		resp, err := l.api.TradingLogs(ctx)
		l.observe("trading_logs", start, err)
		l.enqueue(ctx, func() {
			l.release(resLogs)
			if err != nil || !resp.Success {
				return
			}
			// The upstream tail is oldest-first; the buffer wants newest-first.
			recs := l.norm.NormalizeAll(resp.Logs)
			for i, j := 0, len(recs)-1; i < j; i, j = i+1, j-1 {
				recs[i], recs[j] = recs[j], recs[i]
			}
			l.buf.Replace(recs)
			l.store.setLogs(l.buf.Records())
			observ.SetGauge("log_buffer_size", float64(l.buf.Len()), nil)
		})
	}()
	return true
}

func (l *Loop) refreshDecisions(ctx context.Context) bool {
	if !l.acquire(resDecisions) {
		return false
	}
	go func() {
		start := l.now()
		decisions, err := l.api.AIDecisions(ctx)
		l.observe("ai_decisions", start, err)
		l.enqueue(ctx, func() {
			l.release(resDecisions)
			if err != nil {
				return
			}
			l.store.setDecisions(decisions)
		})
	}()
	return true
}

func (l *Loop) refreshTrades(ctx context.Context) bool {
	if !l.acquire(resTrades) {
		return false
	}
	go func() {
		start := l.now()
		trades, err := l.api.Trades(ctx)
		l.observe("trades", start, err)
		l.enqueue(ctx, func() {
			l.release(resTrades)
			if err != nil {
				return
			}
			l.store.setTrades(trades)
		})
	}()
	return true
}

// acquire marks a resource in flight. Caller must be on the loop goroutine.
func (l *Loop) acquire(r resource) bool {
	if l.inflight[r] {
		observ.IncCounter("guard_skip_total", map[string]string{"resource": string(r)})
		return false
	}
	l.inflight[r] = true
	return true
}

func (l *Loop) release(r resource) {
	delete(l.inflight, r)
}

// enqueue hands a completion handler back to the loop goroutine. If the
// loop is shutting down the handler is dropped; guards die with the loop.
func (l *Loop) enqueue(ctx context.Context, fn func()) {
	select {
	case l.apply <- fn:
	case <-ctx.Done():
	}
}

// handlePush applies a pushed full snapshot through the exact same path a
// polled one takes, so push and pull can never diverge in interpretation.
func (l *Loop) handlePush(env transport.EventEnvelope) {
	if env.Type != transport.EventStatus {
		return
	}
	var st upstream.StatusResponse
	if err := json.Unmarshal(env.Payload, &st); err != nil {
		observ.Log("push_decode_error", map[string]any{"id": env.ID, "error": err.Error()})
		return
	}
	l.applyStatus(&st)
}

func (l *Loop) applyStatus(st *upstream.StatusResponse) {
	snap := st.Snapshot()
	var dr model.DerivedRisk
	if snap.Position != nil {
		dr = risk.Derive(*snap.Position, l.cfg.Risk)
	} else {
		dr = risk.Derive(model.PositionSnapshot{
			TotalBalance: st.CurrentBalance,
			FreeBalance:  st.CurrentBalance,
		}, l.cfg.Risk)
	}
	l.store.setStatus(snap, dr)
}

// applyRuntime derives the display runtime state. The upstream reports
// uptime in milliseconds; the start instant is anchored from it so the
// displayed uptime keeps ticking between polls.
func (l *Loop) applyRuntime(rt *upstream.BotRuntimeResponse) {
	if !rt.Running {
		l.store.setRuntime(model.BotRuntimeState{Running: false, StatusLabel: rt.Status})
		return
	}
	now := l.now()
	start := now
	switch {
	case rt.UptimeMs > 0:
		start = now.Add(-time.Duration(rt.UptimeMs) * time.Millisecond)
	default:
		if prev := l.store.runtime(); prev.Running && prev.StartInstant != nil {
			start = *prev.StartInstant
		}
	}
	l.store.setRuntime(model.BotRuntimeState{
		Running:      true,
		StatusLabel:  rt.Status,
		StartInstant: &start,
	})
}

func (l *Loop) observe(endpoint string, start time.Time, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	labels := map[string]string{"endpoint": endpoint, "outcome": outcome}
	observ.IncCounter("pull_total", labels)
	observ.RecordDuration("pull_latency", l.now().Sub(start), map[string]string{"endpoint": endpoint})
}
