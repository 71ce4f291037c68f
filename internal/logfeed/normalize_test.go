package logfeed

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rcheng-dev/botconsole/internal/model"
)

func fixedClock() time.Time {
	return time.Date(2025, 11, 5, 9, 30, 15, 0, time.UTC)
}

func TestNormalizeRecognizedFormats(t *testing.T) {
	n := NewWithClock(fixedClock)

	tests := []struct {
		name      string
		line      string
		timeOfDay string
		message   string
		severity  model.Severity
	}{
		{
			name:      "level line",
			line:      "2025-11-05 17:42:02 - INFO - heartbeat ok",
			timeOfDay: "17:42:02",
			message:   "heartbeat ok",
			severity:  model.SeverityInfo,
		},
		{
			name:      "supervisor stamped",
			line:      "2025-11-05T17:42:02: strategy cycle begin",
			timeOfDay: "17:42:02",
			message:   "strategy cycle begin",
			severity:  model.SeverityInfo,
		},
		{
			name:      "millisecond level line",
			line:      "2025-11-05 17:42:02,123 - ERROR - order rejected",
			timeOfDay: "17:42:02",
			message:   "order rejected",
			severity:  model.SeverityError,
		},
		{
			name:      "bracketed",
			line:      "[2025-11-05 17:42:02] cycle done",
			timeOfDay: "17:42:02",
			message:   "cycle done",
			severity:  model.SeverityInfo,
		},
		{
			name:      "fallback with embedded time",
			line:      "something happened at 08:15:59 today",
			timeOfDay: "08:15:59",
			message:   "something happened at 08:15:59 today",
			severity:  model.SeverityInfo,
		},
		{
			name:      "fallback without any time",
			line:      "plain text with no stamp at all",
			timeOfDay: "09:30:15",
			message:   "plain text with no stamp at all",
			severity:  model.SeverityInfo,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, ok := n.Normalize(tt.line)
			require.True(t, ok)
			assert.Equal(t, tt.timeOfDay, rec.TimeOfDay)
			assert.Equal(t, tt.message, rec.Message)
			assert.Equal(t, tt.severity, rec.Severity)
		})
	}
}

func TestNormalizeStripsSupervisorPrefix(t *testing.T) {
	n := NewWithClock(fixedClock)

	rec, ok := n.Normalize("1|dsok-bot | 2025-11-05T17:42:02: cycle begin")
	require.True(t, ok)
	assert.Equal(t, "17:42:02", rec.TimeOfDay)
	assert.Equal(t, "cycle begin", rec.Message)
}

func TestNormalizeStripsResidualStamp(t *testing.T) {
	n := NewWithClock(fixedClock)

	// Double-stamped: supervisor frame wrapping an emitter stamp.
	rec, ok := n.Normalize("2025-11-05T17:42:02: 2025-11-05 17:42:01,999 - INFO - inner payload")
	require.True(t, ok)
	assert.Equal(t, "17:42:02", rec.TimeOfDay)
	assert.Equal(t, "inner payload", rec.Message)
	assert.False(t, strings.Contains(rec.Message, "2025-11-05"))
}

func TestNormalizeStripsResidualLevel(t *testing.T) {
	n := NewWithClock(fixedClock)

	tests := []struct {
		name     string
		line     string
		message  string
		severity model.Severity
	}{
		{
			name:     "bracket frame with level token",
			line:     "[2025-11-05 17:42:02] INFO: started",
			message:  "started",
			severity: model.SeverityInfo,
		},
		{
			name:     "bracket frame with error token folds severity",
			line:     "[2025-11-05 17:42:02] ERROR: order rejected",
			message:  "order rejected",
			severity: model.SeverityError,
		},
		{
			name:     "bare level line",
			line:     "WARNING: margin ratio deteriorating",
			message:  "margin ratio deteriorating",
			severity: model.SeverityWarning,
		},
		{
			name:     "supervisor wrap around bracket frame",
			line:     "0|trading-bot | [2025-11-05 17:42:02] INFO: cycle done",
			message:  "cycle done",
			severity: model.SeverityInfo,
		},
		{
			name:     "non-level word keeps its prefix",
			line:     "[2025-11-05 17:42:02] Price: 64000.12 USDT",
			message:  "Price: 64000.12 USDT",
			severity: model.SeverityInfo,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, ok := n.Normalize(tt.line)
			require.True(t, ok)
			assert.Equal(t, tt.message, rec.Message)
			assert.Equal(t, tt.severity, rec.Severity)
		})
	}
}

func TestNormalizeDropsEmptyMessages(t *testing.T) {
	n := NewWithClock(fixedClock)

	for _, line := range []string{
		"",
		"   ",
		"2025-11-05 17:42:02 - INFO - ",
		"2025-11-05T17:42:02:",
		"2025-11-05T17:42:02: 2025-11-05 17:42:01 - INFO -  ",
	} {
		_, ok := n.Normalize(line)
		assert.False(t, ok, "line %q should be dropped", line)
	}
}

func TestNormalizeDividerReplacement(t *testing.T) {
	n := NewWithClock(fixedClock)

	rec, ok := n.Normalize(strings.Repeat("=", 20))
	require.True(t, ok)
	assert.Equal(t, Divider, rec.Message)

	rec, ok = n.Normalize("2025-11-05 17:42:02 - INFO - " + strings.Repeat("-", 50))
	require.True(t, ok)
	assert.Equal(t, Divider, rec.Message)

	// Short runs are kept as-is.
	rec, ok = n.Normalize("=====")
	require.True(t, ok)
	assert.Equal(t, "=====", rec.Message)
}

func TestNormalizeIdempotent(t *testing.T) {
	n := NewWithClock(fixedClock)

	first, ok := n.Normalize("2025-11-05 17:42:02 - INFO - heartbeat ok")
	require.True(t, ok)

	// Re-normalizing an already-clean message must not change it.
	second, ok := n.Normalize(first.Message)
	require.True(t, ok)
	assert.Equal(t, first.Message, second.Message)

	div, ok := n.Normalize(Divider)
	require.True(t, ok)
	assert.Equal(t, Divider, div.Message)
}

func TestNormalizeAllDropsAndKeeps(t *testing.T) {
	n := NewWithClock(fixedClock)

	recs := n.NormalizeAll([]string{
		"2025-11-05 17:42:02 - INFO - one",
		"   ",
		"[2025-11-05 17:42:03] two",
	})
	require.Len(t, recs, 2)
	assert.Equal(t, "one", recs[0].Message)
	assert.Equal(t, "two", recs[1].Message)
}
