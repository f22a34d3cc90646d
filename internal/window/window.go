package window

import "time"

// Quiet hours run from 22:30 through 05:30 the next morning, both bounds
// inclusive. The check is pure minute-of-day arithmetic on whatever clock
// value the caller passes in; callers pick the timezone by converting first.
const (
	startMinute = 22*60 + 30
	endMinute   = 5*60 + 30
)

// IsPenaltyWindow reports whether now falls inside the nightly penalty window.
func IsPenaltyWindow(now time.Time) bool {
	minute := now.Hour()*60 + now.Minute()
	return minute >= startMinute || minute <= endMinute
}
