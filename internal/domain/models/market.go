package models

import "time"

// Bar represents a single OHLCV bar for one instrument and interval.
type Bar struct {
	Timestamp time.Time `json:"timestamp"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    float64   `json:"volume"`
}

// Interval identifies the bar interval of a series.
type Interval string

const (
	IntervalFiveMinute Interval = "5minute"
	IntervalDay        Interval = "day"
)

// InstrumentSeries is an ordered (timestamp ascending) bar history for one
// instrument, bounded to the last MaxBars bars.
type InstrumentSeries struct {
	Token    string   `json:"token"`
	Interval Interval `json:"interval"`
	Bars     []Bar    `json:"bars"`
	MaxBars  int      `json:"max_bars"`
}

// Append adds a bar and drops the oldest ones beyond MaxBars.
func (s *InstrumentSeries) Append(b Bar) {
	s.Bars = append(s.Bars, b)
	if s.MaxBars > 0 && len(s.Bars) > s.MaxBars {
		s.Bars = s.Bars[len(s.Bars)-s.MaxBars:]
	}
}

// Closes returns the close prices in timestamp order.
func (s *InstrumentSeries) Closes() []float64 {
	out := make([]float64, len(s.Bars))
	for i, b := range s.Bars {
		out[i] = b.Close
	}
	return out
}

// LastClose returns the most recent close, or 0 for an empty series.
func (s *InstrumentSeries) LastClose() float64 {
	if len(s.Bars) == 0 {
		return 0
	}
	return s.Bars[len(s.Bars)-1].Close
}
