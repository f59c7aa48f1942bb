package indicator

import "math"

// SMA returns the simple moving average of the last period values.
func SMA(values []float64, period int) (float64, error) {
	if period <= 0 || len(values) < period {
		return 0, ErrInsufficientData
	}
	sum := 0.0
	for _, v := range values[len(values)-period:] {
		sum += v
	}
	return sum / float64(period), nil
}

// emaSeries computes the exponential moving average for each index >= period-1.
// The first value is the SMA of the first period samples; earlier indices are
// left as NaN so callers cannot use them by accident.
func emaSeries(values []float64, period int) []float64 {
	out := make([]float64, len(values))
	for i := range out {
		out[i] = math.NaN()
	}
	if len(values) < period {
		return out
	}
	sum := 0.0
	for _, v := range values[:period] {
		sum += v
	}
	prev := sum / float64(period)
	out[period-1] = prev
	mult := 2.0 / float64(period+1)
	for i := period; i < len(values); i++ {
		prev = values[i]*mult + prev*(1-mult)
		out[i] = prev
	}
	return out
}

// EMA returns the exponential moving average of the whole series.
func EMA(values []float64, period int) (float64, error) {
	if period <= 0 || len(values) < period {
		return 0, ErrInsufficientData
	}
	s := emaSeries(values, period)
	return s[len(s)-1], nil
}

// stddev returns the population standard deviation of values.
func stddev(values []float64, mean float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		d := v - mean
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(values)))
}
