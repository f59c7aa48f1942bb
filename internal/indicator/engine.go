package indicator

import (
	"math"
	"time"

	"NiftyScan/internal/domain/models"
)

// Snapshot value keys. Derived sub-values get their own key so rules can
// reference them directly.
const (
	KeyClose         = "close"
	KeyRSI           = "rsi"
	KeyMACDLine      = "macd_line"
	KeyMACDSignal    = "macd_signal"
	KeyMACDHistogram = "macd_histogram"
	KeyBBUpper       = "bb_upper"
	KeyBBMid         = "bb_mid"
	KeyBBLower       = "bb_lower"
	KeyATR           = "atr"
	KeyChange5m      = "change_5m_pct"
	KeyDistFromHigh  = "dist_from_high_pct"
	KeyWeeklyMove    = "weekly_move_pct"
)

// Compute produces an IndicatorSnapshot for one instrument from its intraday
// and daily series. An indicator whose window is not covered by the input is
// skipped; its key is simply absent from the snapshot. Returns
// ErrInsufficientData only when nothing at all could be computed.
func Compute(intraday, daily *models.InstrumentSeries, at time.Time) (*models.IndicatorSnapshot, error) {
	snap := &models.IndicatorSnapshot{
		Token:      intraday.Token,
		ComputedAt: at,
		Values:     make(map[string]float64),
	}

	closes := intraday.Closes()
	if len(closes) > 0 {
		snap.Values[KeyClose] = closes[len(closes)-1]
	}

	if v, err := RSI(closes, DefaultRSIPeriod); err == nil {
		snap.Values[KeyRSI] = v
	}
	if m, err := MACD(closes, DefaultMACDFast, DefaultMACDSlow, DefaultMACDSignal); err == nil {
		snap.Values[KeyMACDLine] = m.Line
		snap.Values[KeyMACDSignal] = m.Signal
		snap.Values[KeyMACDHistogram] = m.Histogram
	}
	if b, err := Bollinger(closes, DefaultBollingerPeriod, DefaultBollingerK); err == nil {
		snap.Values[KeyBBUpper] = b.Upper
		snap.Values[KeyBBMid] = b.Mid
		snap.Values[KeyBBLower] = b.Lower
	}
	if v, err := ATR(intraday.Bars, DefaultATRPeriod); err == nil {
		snap.Values[KeyATR] = v
	}

	// Momentum features from the raw series.
	if len(closes) >= 2 {
		prev := closes[len(closes)-2]
		cur := closes[len(closes)-1]
		if prev != 0 {
			snap.Values[KeyChange5m] = (cur - prev) / prev * 100
		}
		high := 0.0
		for _, b := range intraday.Bars {
			if b.High > high {
				high = b.High
			}
		}
		if cur != 0 {
			snap.Values[KeyDistFromHigh] = (high - cur) / cur * 100
		}
	}
	if daily != nil && len(daily.Bars) >= 2 {
		first := daily.Bars[0].Close
		last := daily.Bars[len(daily.Bars)-1].Close
		if first != 0 {
			snap.Values[KeyWeeklyMove] = math.Abs((last-first)/first) * 100
		}
	}

	if len(snap.Values) == 0 {
		return nil, ErrInsufficientData
	}
	return snap, nil
}
