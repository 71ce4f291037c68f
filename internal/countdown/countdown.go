// Package countdown computes the time remaining to the next fixed
// five-minute grid boundary. The trading process evaluates its strategy on
// that grid in exchange time (UTC+8), so the countdown is computed in that
// offset regardless of the host timezone.
package countdown

import "time"

// grid boundaries are the minutes {0,5,...,55} of each hour in UTC+8.
var exchangeZone = time.FixedZone("UTC+8", 8*60*60)

// imminentThreshold flags the countdown for display emphasis.
const imminentThreshold = 60 * time.Second

// Countdown is a pure classification of "now" against the grid.
type Countdown struct {
	TargetHour   int           `json:"target_hour"`
	TargetMinute int           `json:"target_minute"`
	Remaining    time.Duration `json:"remaining_ns"`
	Imminent     bool          `json:"imminent"`
}

// Next returns the countdown to the next grid boundary strictly after now.
func Next(now time.Time) Countdown {
	t := now.In(exchangeZone)
	hour, minute, sec := t.Hour(), t.Minute(), t.Second()

	nextMinute := minute - minute%5 + 5
	targetHour := hour
	if nextMinute >= 60 {
		nextMinute = 0
		targetHour = (hour + 1) % 24
	}

	remaining := time.Duration((nextMinute-minute)*60-sec) * time.Second
	if nextMinute == 0 {
		remaining = time.Duration((60-minute)*60-sec) * time.Second
	}
	// Wrap arithmetic can only underflow if the boundary coincides with
	// the current second; push to the same boundary a day later.
	if remaining <= 0 {
		remaining += 24 * time.Hour
	}

	return Countdown{
		TargetHour:   targetHour,
		TargetMinute: nextMinute,
		Remaining:    remaining,
		Imminent:     remaining < imminentThreshold,
	}
}
