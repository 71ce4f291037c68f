package countdown

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// at builds an instant at the given wall-clock time in UTC+8.
func at(hour, min, sec int) time.Time {
	return time.Date(2025, 11, 5, hour, min, sec, 0, time.FixedZone("UTC+8", 8*60*60))
}

func TestNextGridBoundary(t *testing.T) {
	tests := []struct {
		name      string
		now       time.Time
		hour, min int
		remaining time.Duration
		imminent  bool
	}{
		{"mid slot", at(14, 58, 30), 15, 0, 90 * time.Second, false},
		{"one second out", at(14, 59, 59), 15, 0, 1 * time.Second, true},
		{"day rollover", at(23, 58, 0), 0, 0, 120 * time.Second, false},
		{"exact boundary rolls forward", at(14, 55, 0), 15, 0, 300 * time.Second, false},
		{"start of slot", at(14, 50, 0), 14, 55, 300 * time.Second, false},
		{"just inside threshold", at(14, 54, 1), 14, 55, 59 * time.Second, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cd := Next(tt.now)
			assert.Equal(t, tt.hour, cd.TargetHour)
			assert.Equal(t, tt.min, cd.TargetMinute)
			assert.Equal(t, tt.remaining, cd.Remaining)
			assert.Equal(t, tt.imminent, cd.Imminent)
		})
	}
}

func TestNextUsesExchangeOffsetNotLocal(t *testing.T) {
	// 06:58:30 UTC is 14:58:30 in UTC+8.
	now := time.Date(2025, 11, 5, 6, 58, 30, 0, time.UTC)
	cd := Next(now)
	assert.Equal(t, 15, cd.TargetHour)
	assert.Equal(t, 0, cd.TargetMinute)
	assert.Equal(t, 90*time.Second, cd.Remaining)
}
