package logfeed

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/rcheng-dev/botconsole/internal/model"
)

func TestClassifyPriorityOrder(t *testing.T) {
	tests := []struct {
		message  string
		category model.Category
		severity model.Severity
	}{
		// severity-bearing keywords outrank directional ones
		{"failed to submit BUY order", model.CategoryGeneric, model.SeverityError},
		{"warning: sell signal below threshold", model.CategoryGeneric, model.SeverityWarning},

		{"BUY signal confirmed", model.CategorySignalBuy, model.SeverityInfo},
		{"opening short on breakdown, SELL", model.CategorySignalSell, model.SeverityInfo},
		{"BTC price update 64250.5", model.CategoryPrice, model.SeverityInfo},
		{"holding steady, margin healthy", model.CategoryPosition, model.SeverityInfo},
		{"order executed", model.CategoryGeneric, model.SeveritySuccess},
		{"nothing of note", model.CategoryGeneric, model.SeverityInfo},
	}

	for _, tt := range tests {
		cat, sev := Classify(tt.message)
		assert.Equal(t, tt.category, cat, "message %q", tt.message)
		assert.Equal(t, tt.severity, sev, "message %q", tt.message)
	}
}
