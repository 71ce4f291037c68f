package logfeed

import (
	"strings"

	"github.com/rcheng-dev/botconsole/internal/model"
)

// classRule pairs a keyword set with the record classification it implies.
// Rules are evaluated in order: severity-bearing keywords outrank the
// directional (buy/sell) ones, which outrank topic keywords.
type classRule struct {
	keywords []string
	category model.Category
	severity model.Severity
}

var classRules = []classRule{
	{
		keywords: []string{"error", "failed", "failure", "exception", "traceback", "timeout"},
		category: model.CategoryGeneric,
		severity: model.SeverityError,
	},
	{
		keywords: []string{"warning", "warn", "caution", "retry"},
		category: model.CategoryGeneric,
		severity: model.SeverityWarning,
	},
	{
		keywords: []string{"buy", "open long", "go long", "bullish"},
		category: model.CategorySignalBuy,
		severity: model.SeverityInfo,
	},
	{
		keywords: []string{"sell", "open short", "go short", "bearish"},
		category: model.CategorySignalSell,
		severity: model.SeverityInfo,
	},
	{
		keywords: []string{"price", "btc", "usdt", "candle", "ohlcv", "kline"},
		category: model.CategoryPrice,
		severity: model.SeverityInfo,
	},
	{
		keywords: []string{"position", "holding", "margin", "leverage", "liquidation"},
		category: model.CategoryPosition,
		severity: model.SeverityInfo,
	},
	{
		keywords: []string{"success", "completed", "executed", "connected", "started"},
		category: model.CategoryGeneric,
		severity: model.SeveritySuccess,
	},
}

// Classify maps message content to a display category and the severity the
// content implies. Pure function of the trimmed text; callers combine the
// returned severity with any level parsed from the line framing.
func Classify(message string) (model.Category, model.Severity) {
	lower := strings.ToLower(message)
	for _, rule := range classRules {
		for _, kw := range rule.keywords {
			if strings.Contains(lower, kw) {
				return rule.category, rule.severity
			}
		}
	}
	return model.CategoryGeneric, model.SeverityInfo
}
