package indicator

import (
	"math"

	"NiftyScan/internal/domain/models"
)

// ATR computes the Average True Range with Wilder smoothing. True range is
// max(high-low, |high-prevClose|, |low-prevClose|); the seed is the simple
// average of the first period true ranges. Requires period+1 bars.
func ATR(bars []models.Bar, period int) (float64, error) {
	if period <= 0 || len(bars) < period+1 {
		return 0, ErrInsufficientData
	}

	tr := func(cur, prev models.Bar) float64 {
		r := cur.High - cur.Low
		if d := math.Abs(cur.High - prev.Close); d > r {
			r = d
		}
		if d := math.Abs(cur.Low - prev.Close); d > r {
			r = d
		}
		return r
	}

	sum := 0.0
	for i := 1; i <= period; i++ {
		sum += tr(bars[i], bars[i-1])
	}
	p := float64(period)
	atr := sum / p

	for i := period + 1; i < len(bars); i++ {
		atr = (atr*(p-1) + tr(bars[i], bars[i-1])) / p
	}
	return atr, nil
}
