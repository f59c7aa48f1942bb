package markethours

import (
	"testing"
	"time"
)

func ist(y int, m time.Month, d, h, min int) time.Time {
	return time.Date(y, m, d, h, min, 0, 0, IST)
}

func TestContains(t *testing.T) {
	w := DefaultWindow()
	cases := []struct {
		name string
		t    time.Time
		want bool
	}{
		{"monday mid-session", ist(2025, 1, 6, 11, 0), true},
		{"exact open", ist(2025, 1, 6, 9, 25), true},
		{"just before open", ist(2025, 1, 6, 9, 24), false},
		{"exact close", ist(2025, 1, 6, 15, 0), true},
		{"after close", ist(2025, 1, 6, 15, 1), false},
		{"saturday", ist(2025, 1, 4, 11, 0), false},
		{"sunday", ist(2025, 1, 5, 11, 0), false},
	}
	for _, c := range cases {
		if got := w.Contains(c.t); got != c.want {
			t.Errorf("%s: Contains=%v, want %v", c.name, got, c.want)
		}
	}
}

func TestContains_ConvertsTimezone(t *testing.T) {
	w := DefaultWindow()
	// 05:30 UTC is 11:00 IST on a Monday.
	utc := time.Date(2025, 1, 6, 5, 30, 0, 0, time.UTC)
	if !w.Contains(utc) {
		t.Error("UTC time inside the IST session should pass the gate")
	}
}

func TestNextOpen(t *testing.T) {
	w := DefaultWindow()

	// Before open on a trading day: same-day open.
	got := w.NextOpen(ist(2025, 1, 6, 8, 0))
	if !got.Equal(ist(2025, 1, 6, 9, 25)) {
		t.Errorf("same-day open: got %v", got)
	}

	// Friday evening rolls to Monday.
	got = w.NextOpen(ist(2025, 1, 3, 16, 0))
	if !got.Equal(ist(2025, 1, 6, 9, 25)) {
		t.Errorf("weekend roll: got %v", got)
	}
}
