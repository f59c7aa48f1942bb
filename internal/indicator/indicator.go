// Package indicator provides technical indicator calculations over ordered
// price series.
//
// All functions are pure: the same input slice always yields the same output,
// and no state is carried between calls. Inputs shorter than an indicator's
// minimum window fail with ErrInsufficientData and produce no partial result.
package indicator

import "errors"

// ErrInsufficientData is returned when a series is shorter than the
// indicator's minimum window.
var ErrInsufficientData = errors.New("indicator: insufficient data")

// Default periods matching the standard parameterizations.
const (
	DefaultRSIPeriod       = 14
	DefaultMACDFast        = 12
	DefaultMACDSlow        = 26
	DefaultMACDSignal      = 9
	DefaultBollingerPeriod = 20
	DefaultBollingerK      = 2.0
	DefaultATRPeriod       = 14
)

// MACDResult holds the three MACD outputs.
type MACDResult struct {
	Line      float64
	Signal    float64
	Histogram float64
}

// Bands holds Bollinger band levels. Upper >= Mid >= Lower always holds.
type Bands struct {
	Upper float64
	Mid   float64
	Lower float64
}
