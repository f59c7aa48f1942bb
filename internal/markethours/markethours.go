// Package markethours gates scan cycles to the NSE trading session.
package markethours

import "time"

// IST is the Indian Standard Time location (UTC+5:30).
var IST = time.FixedZone("IST", 5*3600+30*60)

// Window is a trading-session window in a fixed location. The scanner runs
// 9:25 AM - 3:00 PM IST by default, trailing the 9:15 open so opening
// volatility settles before the first cycle.
type Window struct {
	OpenHour    int
	OpenMinute  int
	CloseHour   int
	CloseMinute int
	Location    *time.Location
}

// DefaultWindow returns the scanner's default session window.
func DefaultWindow() Window {
	return Window{OpenHour: 9, OpenMinute: 25, CloseHour: 15, CloseMinute: 0, Location: IST}
}

// Contains returns true if t falls within the window on a weekday.
func (w Window) Contains(t time.Time) bool {
	loc := w.Location
	if loc == nil {
		loc = IST
	}
	local := t.In(loc)
	wd := local.Weekday()
	if wd == time.Saturday || wd == time.Sunday {
		return false
	}
	hm := local.Hour()*60 + local.Minute()
	return hm >= w.OpenHour*60+w.OpenMinute && hm <= w.CloseHour*60+w.CloseMinute
}

// NextOpen returns the next window open at or after t.
func (w Window) NextOpen(t time.Time) time.Time {
	loc := w.Location
	if loc == nil {
		loc = IST
	}
	local := t.In(loc)

	open := time.Date(local.Year(), local.Month(), local.Day(), w.OpenHour, w.OpenMinute, 0, 0, loc)
	if local.Before(open) && isWeekday(local) {
		return open
	}
	d := local.AddDate(0, 0, 1)
	for !isWeekday(d) {
		d = d.AddDate(0, 0, 1)
	}
	return time.Date(d.Year(), d.Month(), d.Day(), w.OpenHour, w.OpenMinute, 0, 0, loc)
}

func isWeekday(t time.Time) bool {
	wd := t.Weekday()
	return wd >= time.Monday && wd <= time.Friday
}
