package indicator

import "math"

// MACD computes the Moving Average Convergence Divergence: the difference of
// the fast and slow EMAs, a signal EMA over that difference, and their
// histogram. Requires at least slow+signal closes.
func MACD(closes []float64, fast, slow, signal int) (MACDResult, error) {
	if fast <= 0 || slow <= fast || signal <= 0 || len(closes) < slow+signal {
		return MACDResult{}, ErrInsufficientData
	}

	fastEMA := emaSeries(closes, fast)
	slowEMA := emaSeries(closes, slow)

	// MACD line exists once the slow EMA does.
	line := make([]float64, 0, len(closes)-slow+1)
	for i := slow - 1; i < len(closes); i++ {
		line = append(line, fastEMA[i]-slowEMA[i])
	}

	sig := emaSeries(line, signal)
	last := sig[len(sig)-1]
	if math.IsNaN(last) {
		return MACDResult{}, ErrInsufficientData
	}

	macd := line[len(line)-1]
	return MACDResult{
		Line:      macd,
		Signal:    last,
		Histogram: macd - last,
	}, nil
}
