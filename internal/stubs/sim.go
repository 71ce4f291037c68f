package stubs

import (
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/rcheng-dev/botconsole/internal/model"
)

// Simulator is a fake trading process: a price random walk, an
// occasionally-open position, and a log tail written in every format the
// real emitters produce. One Simulator backs every endpoint of a stub
// server, so the numbers agree with each other across panels.
type Simulator struct {
	mu  sync.Mutex
	rnd *rand.Rand

	running   bool
	startedAt time.Time
	testMode  bool

	price      float64
	signal     string
	confidence string
	signalTS   time.Time

	position *model.PositionSnapshot

	initialBalance float64
	balance        float64
	// Per-model equity components; /api/overview sums these.
	models map[string][]balancePoint
	order  []string

	decisions []model.Decision
	trades    []model.TradeFill
	logs      []string
	wins      int
	losses    int

	// LegacyOnly makes /api/overview answer 404 so a console pointed at
	// this stub exercises the legacy fallback.
	LegacyOnly bool

	tick int
}

type balancePoint struct {
	ts      time.Time
	balance float64
}

func NewSimulator(seed int64) *Simulator {
	s := &Simulator{
		rnd:            rand.New(rand.NewSource(seed)),
		running:        true,
		startedAt:      time.Now(),
		testMode:       true,
		price:          64000,
		signal:         "HOLD",
		confidence:     "N/A",
		signalTS:       time.Now(),
		initialBalance: 10000,
		balance:        10000,
		models:         map[string][]balancePoint{},
		order:          []string{"deepseek", "qwen"},
	}
	for _, m := range s.order {
		s.models[m] = []balancePoint{{ts: time.Now(), balance: s.balance / 2}}
	}
	s.emitLog("Trading bot started (test mode)")
	return s
}

// Tick advances the simulation one step. The stub server calls this on a
// timer; tests can call it directly for determinism.
func (s *Simulator) Tick() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	s.tick++

	drift := (s.rnd.Float64() - 0.5) * 120
	s.price = math.Max(1000, s.price+drift)
	s.emitLog(fmt.Sprintf("BTC price: %.2f USDT", s.price))

	switch {
	case s.position == nil && s.rnd.Float64() < 0.15:
		s.openPosition()
	case s.position != nil && s.rnd.Float64() < 0.2:
		s.closePosition()
	case s.position != nil:
		s.markPosition()
	}

	for _, m := range s.order {
		pts := s.models[m]
		last := pts[len(pts)-1].balance
		s.models[m] = append(pts, balancePoint{
			ts:      time.Now(),
			balance: math.Max(0, last+(s.rnd.Float64()-0.48)*15),
		})
	}
	s.balance = 0
	for _, m := range s.order {
		pts := s.models[m]
		s.balance += pts[len(pts)-1].balance
	}

	if s.tick%5 == 0 {
		s.emitSignal()
	}
}

func (s *Simulator) emitSignal() {
	signals := []string{"BUY", "SELL", "HOLD"}
	confidences := []string{"HIGH", "MEDIUM", "LOW"}
	s.signal = signals[s.rnd.Intn(len(signals))]
	s.confidence = confidences[s.rnd.Intn(len(confidences))]
	s.signalTS = time.Now()
	s.decisions = append([]model.Decision{{
		Timestamp:  s.signalTS,
		Signal:     s.signal,
		Confidence: s.confidence,
		Reason:     "momentum crossover",
		Executed:   s.signal != "HOLD",
	}}, s.decisions...)
	if len(s.decisions) > 50 {
		s.decisions = s.decisions[:50]
	}
	s.emitLog(fmt.Sprintf("Signal generated: %s (confidence %s)", s.signal, s.confidence))
}

func (s *Simulator) openPosition() {
	side := "LONG"
	if s.rnd.Float64() < 0.5 {
		side = "SHORT"
	}
	size := float64(50 + s.rnd.Intn(200)) // contracts
	s.position = &model.PositionSnapshot{
		Side:             side,
		Size:             size,
		EntryPrice:       s.price,
		MarkPrice:        s.price,
		Leverage:         10,
		InitialMargin:    size * s.price * 0.01 / 10,
		MaintMarginRatio: 400 + s.rnd.Float64()*1200,
		LiquidationPrice: s.price * 0.9,
		TotalBalance:     s.balance,
		FreeBalance:      s.balance * 0.7,
	}
	s.emitLog(fmt.Sprintf("Opened %s position: %.0f contracts @ %.2f", side, size, s.price))
}

func (s *Simulator) markPosition() {
	p := s.position
	p.MarkPrice = s.price
	diff := s.price - p.EntryPrice
	if p.Side == "SHORT" {
		diff = -diff
	}
	p.UnrealizedPnl = diff * p.Size * 0.01
	p.MaintMarginRatio = math.Max(100, p.MaintMarginRatio+(s.rnd.Float64()-0.5)*100)
	p.TotalBalance = s.balance
	p.FreeBalance = s.balance * 0.7
}

func (s *Simulator) closePosition() {
	p := s.position
	diff := s.price - p.EntryPrice
	if p.Side == "SHORT" {
		diff = -diff
	}
	pnl := diff * p.Size * 0.01
	if pnl >= 0 {
		s.wins++
	} else {
		s.losses++
	}
	side := "SELL"
	if p.Side == "SHORT" {
		side = "BUY"
	}
	s.trades = append([]model.TradeFill{{
		Timestamp:   time.Now(),
		Side:        side,
		Size:        p.Size,
		Price:       s.price,
		RealizedPnl: pnl,
	}}, s.trades...)
	if len(s.trades) > 50 {
		s.trades = s.trades[:50]
	}
	s.position = nil
	s.emitLog(fmt.Sprintf("Position closed, realized PnL %.2f USDT", pnl))
}

// emitLog writes one raw line, cycling through the formats real emitters
// use so the normalizer gets exercised end to end. Caller holds s.mu.
func (s *Simulator) emitLog(msg string) {
	now := time.Now()
	var line string
	switch len(s.logs) % 5 {
	case 0:
		line = fmt.Sprintf("[%s] INFO: %s", now.Format("2006-01-02 15:04:05"), msg)
	case 1:
		line = fmt.Sprintf("%s - INFO - %s", now.Format("2006-01-02 15:04:05,000"), msg)
	case 2:
		line = fmt.Sprintf("INFO: %s", msg)
	case 3:
		// Supervisor-prefixed, the way a pm2 tail looks.
		line = fmt.Sprintf("0|trading-bot | [%s] INFO: %s", now.Format("2006-01-02 15:04:05"), msg)
	default:
		line = msg
	}
	s.logs = append(s.logs, line)
	if len(s.logs) > 500 {
		s.logs = s.logs[len(s.logs)-500:]
	}
}

func (s *Simulator) Start() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return false
	}
	s.running = true
	s.startedAt = time.Now()
	s.emitLog("Trading bot started")
	return true
}

func (s *Simulator) Stop() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return false
	}
	s.running = false
	s.position = nil
	s.emitLog("Trading bot stopped")
	return true
}

func (s *Simulator) Restart() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running = true
	s.startedAt = time.Now()
	s.emitLog("Trading bot restarted")
}

func (s *Simulator) UpdateConfig(cfg map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v, ok := cfg["test_mode"].(bool); ok {
		s.testMode = v
		s.emitLog(fmt.Sprintf("Config updated: test_mode=%v", v))
	}
}
