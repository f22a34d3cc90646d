package window

import (
	"testing"
	"time"
)

func timeAtMinute(minute int) time.Time {
	return time.Date(2026, 8, 25, minute/60, minute%60, 0, 0, time.UTC)
}

func TestIsPenaltyWindowAllMinutes(t *testing.T) {
	for minute := 0; minute < 24*60; minute++ {
		expected := minute >= 1350 || minute <= 330
		if got := IsPenaltyWindow(timeAtMinute(minute)); got != expected {
			t.Fatalf("minute %d: expected %v got %v", minute, expected, got)
		}
	}
}

func TestIsPenaltyWindowBoundaries(t *testing.T) {
	cases := map[int]bool{
		1350: true,  // 22:30
		1349: false, // 22:29
		330:  true,  // 05:30
		331:  false, // 05:31
		0:    true,  // midnight
		720:  false, // noon
	}
	for minute, expected := range cases {
		if got := IsPenaltyWindow(timeAtMinute(minute)); got != expected {
			t.Fatalf("minute %d: expected %v got %v", minute, expected, got)
		}
	}
}

func TestIsPenaltyWindowUsesClockNotZone(t *testing.T) {
	zone := time.FixedZone("UTC+9", 9*3600)
	inside := time.Date(2026, 8, 25, 23, 0, 0, 0, zone)
	if !IsPenaltyWindow(inside) {
		t.Fatalf("expected 23:00 local to be inside the window")
	}
	outside := inside.UTC() // 14:00 UTC
	if IsPenaltyWindow(outside) {
		t.Fatalf("expected 14:00 UTC to be outside the window")
	}
}
