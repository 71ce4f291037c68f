package model

import "time"

// Severity classifies a log record for display emphasis.
type Severity string

const (
	SeverityInfo    Severity = "INFO"
	SeveritySuccess Severity = "SUCCESS"
	SeverityWarning Severity = "WARNING"
	SeverityError   Severity = "ERROR"
)

// Category groups log records by what the bot was doing when it emitted them.
type Category string

const (
	CategorySignalBuy  Category = "SIGNAL_BUY"
	CategorySignalSell Category = "SIGNAL_SELL"
	CategoryPrice      Category = "PRICE"
	CategoryPosition   Category = "POSITION"
	CategoryGeneric    Category = "GENERIC"
)

// LogRecord is the normalized form of one raw log line. Message is never
// empty; lines that normalize to nothing are dropped before a record exists.
type LogRecord struct {
	TimeOfDay string   `json:"time_of_day"` // HH:MM:SS
	Message   string   `json:"message"`
	Severity  Severity `json:"severity"`
	Category  Category `json:"category"`
}

// EquityPoint is one sample of total account equity.
type EquityPoint struct {
	Timestamp   time.Time `json:"timestamp"`
	TotalEquity float64   `json:"total_equity"`
}

// EquitySeries is ordered ascending by timestamp.
type EquitySeries []EquityPoint

// EquitySummary is derived from the current series every reconciliation
// cycle; it is never persisted. MaxDrawdownPct is always <= 0.
type EquitySummary struct {
	InitialBalance float64 `json:"initial_balance"`
	CurrentBalance float64 `json:"current_balance"`
	TotalReturnPct float64 `json:"total_return_pct"`
	MaxDrawdownPct float64 `json:"max_drawdown_pct"`
}

// RiskTier buckets the maintenance margin ratio into display tiers.
type RiskTier string

const (
	TierSafe    RiskTier = "SAFE"
	TierWarning RiskTier = "WARNING"
	TierDanger  RiskTier = "DANGER"
	// TierNone marks a flat (no open position) derived view.
	TierNone RiskTier = ""
)

// PositionSnapshot carries the raw position payload as reported upstream.
// Side is empty when there is no open position; numeric fields may be zero
// when the exchange omitted them.
type PositionSnapshot struct {
	Side             string  `json:"side,omitempty"` // "long" | "short" | ""
	Size             float64 `json:"size"`
	EntryPrice       float64 `json:"entry_price"`
	MarkPrice        float64 `json:"mark_price"`
	Leverage         float64 `json:"leverage"`
	InitialMargin    float64 `json:"initial_margin"`
	MaintMarginRatio float64 `json:"maint_margin_ratio"`
	LiquidationPrice float64 `json:"liquidation_price"`
	UnrealizedPnl    float64 `json:"unrealized_pnl"`
	TotalBalance     float64 `json:"total_balance"`
	FreeBalance      float64 `json:"free_balance"`
}

// Flat reports whether the snapshot represents no open position.
func (p PositionSnapshot) Flat() bool { return p.Side == "" }

// DerivedRisk is the display-ready view computed from a PositionSnapshot.
type DerivedRisk struct {
	Tier        RiskTier `json:"tier,omitempty"`
	PnlRatioPct float64  `json:"pnl_ratio_pct"`
	NotionalUSD float64  `json:"notional_usd"`
	QtyBTC      float64  `json:"qty_btc"`

	// Balances pass through even when flat so the zero-state renders
	// identically to a just-initialized session.
	TotalBalance float64 `json:"total_balance"`
	FreeBalance  float64 `json:"free_balance"`
}

// BotRuntimeState mirrors what the process supervisor reports about the
// automation process. StartInstant is nil while the process is down.
type BotRuntimeState struct {
	Running      bool       `json:"running"`
	StatusLabel  string     `json:"status_label"`
	StartInstant *time.Time `json:"start_instant,omitempty"`
}

// StatusSnapshot is the fast-cycle pull result: live price, latest signal,
// and the raw position, plus the balance figures the status endpoint echoes.
type StatusSnapshot struct {
	Price           float64           `json:"price"`
	Signal          string            `json:"signal"`     // BUY | SELL | HOLD
	Confidence      string            `json:"confidence"` // HIGH | MEDIUM | LOW | N/A
	SignalTimestamp string            `json:"signal_timestamp"`
	Position        *PositionSnapshot `json:"position,omitempty"`
	TradeCount      int               `json:"trade_count"`
	TotalPnl        float64           `json:"total_pnl"`
	CurrentBalance  float64           `json:"current_balance"`
	InitialBalance  float64           `json:"initial_balance"`
}

// SignalAccuracy aggregates closed-trade outcomes and the signal mix.
type SignalAccuracy struct {
	TotalTrades   int            `json:"total_trades"`
	WinningTrades int            `json:"winning_trades"`
	LosingTrades  int            `json:"losing_trades"`
	AccuracyRate  float64        `json:"accuracy_rate"`
	Distribution  map[string]int `json:"signal_distribution"` // BUY / SELL / HOLD
}

// Decision is one AI decision row, newest-first in upstream arrays.
type Decision struct {
	Timestamp  time.Time `json:"timestamp"`
	Signal     string    `json:"signal"`
	Confidence string    `json:"confidence"`
	Reason     string    `json:"reason,omitempty"`
	Executed   bool      `json:"executed"`
}

// TradeFill is one executed trade row, newest-first in upstream arrays.
type TradeFill struct {
	Timestamp   time.Time `json:"timestamp"`
	Side        string    `json:"side"`
	Size        float64   `json:"size"`
	Price       float64   `json:"price"`
	RealizedPnl float64   `json:"realized_pnl"`
}
