package indicator

// Bollinger computes Bollinger Bands: the period SMA of closes plus/minus
// k population standard deviations over the same window. Requires period
// closes.
func Bollinger(closes []float64, period int, k float64) (Bands, error) {
	if period <= 0 || len(closes) < period {
		return Bands{}, ErrInsufficientData
	}
	window := closes[len(closes)-period:]
	mid, err := SMA(closes, period)
	if err != nil {
		return Bands{}, err
	}
	dev := k * stddev(window, mid)
	return Bands{
		Upper: mid + dev,
		Mid:   mid,
		Lower: mid - dev,
	}, nil
}
