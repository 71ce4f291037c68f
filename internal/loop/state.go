package loop

import (
	"sync"
	"time"

	"github.com/rcheng-dev/botconsole/internal/countdown"
	"github.com/rcheng-dev/botconsole/internal/equity"
	"github.com/rcheng-dev/botconsole/internal/model"
)

// Snapshot is the rendered state: everything the display layer needs,
// already normalized. Readers get copies; only the loop goroutine mutates
// the underlying store.
type Snapshot struct {
	Status  model.StatusSnapshot  `json:"status"`
	Risk    model.DerivedRisk     `json:"risk"`
	Runtime model.BotRuntimeState `json:"runtime"`

	Equity        model.EquitySeries  `json:"equity"`
	EquitySummary model.EquitySummary `json:"equity_summary"`
	EquityOrigin  string              `json:"equity_origin,omitempty"`
	EquityModel   string              `json:"equity_model,omitempty"`

	Accuracy  model.SignalAccuracy `json:"accuracy"`
	Decisions []model.Decision     `json:"decisions"`
	Trades    []model.TradeFill    `json:"trades"`
	Logs      []model.LogRecord    `json:"logs"`

	Countdown countdown.Countdown `json:"countdown"`
	Paused    bool                `json:"paused"`
	Updated   time.Time           `json:"updated"`
}

// Store holds the last-known-good snapshot. Failed refreshes never clear
// fields; the display retains what was last successfully shown.
type Store struct {
	mu   sync.RWMutex
	snap Snapshot
	now  func() time.Time
}

func NewStore() *Store {
	return &Store{now: time.Now}
}

// Snapshot returns a copy with the countdown evaluated at read time.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := s.snap
	out.Countdown = countdown.Next(s.now())
	out.Equity = append(model.EquitySeries(nil), s.snap.Equity...)
	out.Decisions = append([]model.Decision(nil), s.snap.Decisions...)
	out.Trades = append([]model.TradeFill(nil), s.snap.Trades...)
	out.Logs = append([]model.LogRecord(nil), s.snap.Logs...)
	return out
}

func (s *Store) setStatus(st model.StatusSnapshot, dr model.DerivedRisk) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap.Status = st
	s.snap.Risk = dr
	s.snap.Updated = s.now()
}

func (s *Store) setRuntime(rt model.BotRuntimeState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap.Runtime = rt
	s.snap.Updated = s.now()
}

func (s *Store) runtime() model.BotRuntimeState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap.Runtime
}

func (s *Store) setEquity(res equity.Result) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap.Equity = res.Series
	s.snap.EquitySummary = res.Summary
	s.snap.EquityOrigin = string(res.Origin)
	s.snap.EquityModel = res.Model
	s.snap.Updated = s.now()
}

func (s *Store) setAccuracy(a model.SignalAccuracy) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap.Accuracy = a
	s.snap.Updated = s.now()
}

func (s *Store) setDecisions(d []model.Decision) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap.Decisions = d
	s.snap.Updated = s.now()
}

func (s *Store) setTrades(tr []model.TradeFill) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap.Trades = tr
	s.snap.Updated = s.now()
}

func (s *Store) setLogs(recs []model.LogRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap.Logs = recs
	s.snap.Updated = s.now()
}

func (s *Store) setPaused(p bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap.Paused = p
}
