package upstream

import (
	"github.com/rcheng-dev/botconsole/internal/model"
)

// StatusResponse is the fast-cycle payload: live price, latest signal and
// the raw position. The push channel delivers the same shape.
type StatusResponse struct {
	BotRunning      bool                    `json:"bot_running"`
	Price           float64                 `json:"price"`
	Signal          string                  `json:"signal"`
	Confidence      string                  `json:"confidence"`
	SignalTimestamp string                  `json:"signal_timestamp"`
	Position        *model.PositionSnapshot `json:"position,omitempty"`
	Config          map[string]any          `json:"config,omitempty"`
	TradeCount      int                     `json:"trade_count"`
	TotalPnl        float64                 `json:"total_pnl"`
	CurrentBalance  float64                 `json:"current_balance"`
	InitialBalance  float64                 `json:"initial_balance"`
}

// Snapshot converts the wire payload to the canonical status entity.
func (s *StatusResponse) Snapshot() model.StatusSnapshot {
	return model.StatusSnapshot{
		Price:           s.Price,
		Signal:          s.Signal,
		Confidence:      s.Confidence,
		SignalTimestamp: s.SignalTimestamp,
		Position:        s.Position,
		TradeCount:      s.TradeCount,
		TotalPnl:        s.TotalPnl,
		CurrentBalance:  s.CurrentBalance,
		InitialBalance:  s.InitialBalance,
	}
}

// BotRuntimeResponse mirrors what the process supervisor reports.
type BotRuntimeResponse struct {
	Success  bool   `json:"success"`
	Running  bool   `json:"running"`
	Status   string `json:"status"`
	UptimeMs int64  `json:"uptime_ms"`
}

// ActionResponse is the result of the start/stop/restart/config POSTs.
type ActionResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// TradingLogsResponse carries raw, format-agnostic log lines.
type TradingLogsResponse struct {
	Success    bool     `json:"success"`
	Logs       []string `json:"logs"`
	FileExists bool     `json:"file_exists"`
	LogFile    string   `json:"log_file,omitempty"`
}

// SignalAccuracyResponse aggregates closed-trade outcomes.
type SignalAccuracyResponse struct {
	Success       bool           `json:"success"`
	TotalTrades   int            `json:"total_trades"`
	WinningTrades int            `json:"winning_trades"`
	LosingTrades  int            `json:"losing_trades"`
	AccuracyRate  float64        `json:"accuracy_rate"`
	Distribution  map[string]int `json:"signal_distribution"`
}

// Accuracy converts the wire payload to the canonical entity.
func (s *SignalAccuracyResponse) Accuracy() model.SignalAccuracy {
	dist := s.Distribution
	if dist == nil {
		dist = map[string]int{"BUY": 0, "SELL": 0, "HOLD": 0}
	}
	return model.SignalAccuracy{
		TotalTrades:   s.TotalTrades,
		WinningTrades: s.WinningTrades,
		LosingTrades:  s.LosingTrades,
		AccuracyRate:  s.AccuracyRate,
		Distribution:  dist,
	}
}
