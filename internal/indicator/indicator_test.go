package indicator

import (
	"errors"
	"math"
	"testing"
	"time"

	"NiftyScan/internal/domain/models"
)

func assertClose(t *testing.T, label string, got, want, tol float64) {
	t.Helper()
	if math.Abs(got-want) > tol {
		t.Errorf("%s: got %.6f, want %.6f (tol=%.6f)", label, got, want, tol)
	}
}

func bars(closes ...float64) []models.Bar {
	out := make([]models.Bar, len(closes))
	ts := time.Date(2025, 1, 6, 9, 25, 0, 0, time.UTC)
	for i, c := range closes {
		out[i] = models.Bar{
			Timestamp: ts.Add(time.Duration(i) * 5 * time.Minute),
			Open:      c, High: c + 0.5, Low: c - 0.5, Close: c, Volume: 1000,
		}
	}
	return out
}

func TestSMA_Correctness(t *testing.T) {
	// (100+102+104)/3 = 102, then shifting window: 103, 104
	prices := []float64{100, 102, 104, 103, 105}
	got, err := SMA(prices, 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	assertClose(t, "SMA(3)", got, 104.0, 1e-9)

	got, err = SMA(prices[:3], 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	assertClose(t, "SMA(3) first window", got, 102.0, 1e-9)
}

func TestRSI_AllGains(t *testing.T) {
	// Monotonically rising series has zero average loss -> RSI = 100.
	prices := make([]float64, 20)
	for i := range prices {
		prices[i] = 100 + float64(i)
	}
	got, err := RSI(prices, 14)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	assertClose(t, "RSI rising", got, 100.0, 1e-9)
}

func TestRSI_HandComputed(t *testing.T) {
	// RSI(2) over 100, 101, 100.5, 101.5:
	// deltas: +1, -0.5, +1
	// seed: avgGain=0.5 avgLoss=0.25
	// bar 3: avgGain=(0.5*1+1)/2=0.75, avgLoss=(0.25*1+0)/2=0.125
	// rs=6, rsi=100-100/7=85.714286
	got, err := RSI([]float64{100, 101, 100.5, 101.5}, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	assertClose(t, "RSI(2)", got, 85.714286, 1e-4)
}

func TestRSI_Bounds(t *testing.T) {
	prices := []float64{50, 40, 55, 35, 60, 30, 65, 25, 70, 20, 75, 15, 80, 10, 85, 5}
	got, err := RSI(prices, 14)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got < 0 || got > 100 {
		t.Errorf("RSI out of bounds: %f", got)
	}
}

func TestRSI_InsufficientData(t *testing.T) {
	_, err := RSI([]float64{1, 2, 3}, 14)
	if !errors.Is(err, ErrInsufficientData) {
		t.Errorf("want ErrInsufficientData, got %v", err)
	}
}

func TestMACD_ConstantSeries(t *testing.T) {
	// A flat series has identical EMAs everywhere: line, signal and
	// histogram are all exactly zero.
	prices := make([]float64, 40)
	for i := range prices {
		prices[i] = 250
	}
	m, err := MACD(prices, 12, 26, 9)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	assertClose(t, "macd line", m.Line, 0, 1e-9)
	assertClose(t, "macd signal", m.Signal, 0, 1e-9)
	assertClose(t, "macd hist", m.Histogram, 0, 1e-9)
}

func TestMACD_InsufficientData(t *testing.T) {
	prices := make([]float64, 34)
	for i := range prices {
		prices[i] = 100 + float64(i)
	}
	_, err := MACD(prices, 12, 26, 9)
	if !errors.Is(err, ErrInsufficientData) {
		t.Errorf("want ErrInsufficientData for 34 bars, got %v", err)
	}
}

func TestMACD_Deterministic(t *testing.T) {
	prices := make([]float64, 60)
	for i := range prices {
		prices[i] = 200 + 10*math.Sin(float64(i)/5)
	}
	a, err := MACD(prices, 12, 26, 9)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	b, _ := MACD(prices, 12, 26, 9)
	if a != b {
		t.Errorf("MACD not deterministic: %+v vs %+v", a, b)
	}
}

func TestBollinger_HandComputed(t *testing.T) {
	// Window 2, 4, 4, 4, 6: mean=4, population stddev=sqrt(8/5)
	prices := []float64{2, 4, 4, 4, 6}
	b, err := Bollinger(prices, 5, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	dev := 2 * math.Sqrt(8.0/5.0)
	assertClose(t, "bb mid", b.Mid, 4.0, 1e-9)
	assertClose(t, "bb upper", b.Upper, 4.0+dev, 1e-9)
	assertClose(t, "bb lower", b.Lower, 4.0-dev, 1e-9)
}

func TestBollinger_Ordering(t *testing.T) {
	prices := []float64{310, 305, 299, 312, 290, 301, 308, 295, 300, 303,
		299, 306, 311, 298, 302, 300, 297, 304, 309, 296}
	b, err := Bollinger(prices, 20, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !(b.Upper >= b.Mid && b.Mid >= b.Lower) {
		t.Errorf("band ordering violated: %+v", b)
	}
}

func TestATR_HandComputed(t *testing.T) {
	// Flat closes with 1.0 high-low range: every TR is 1.0, so ATR is 1.0
	// regardless of period or smoothing.
	bs := bars(100, 100, 100, 100, 100, 100)
	got, err := ATR(bs, 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	assertClose(t, "ATR flat", got, 1.0, 1e-9)
}

func TestATR_GapUsesPrevClose(t *testing.T) {
	// A gap up makes |high-prevClose| dominate high-low.
	bs := bars(100, 100)
	bs = append(bs, models.Bar{High: 110.5, Low: 109.5, Close: 110})
	// TRs: 1.0 (bar1), 10.5 (bar2: |110.5-100|)
	// ATR(2) seed = (1.0+10.5)/2 = 5.75
	got, err := ATR(bs, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	assertClose(t, "ATR gap", got, 5.75, 1e-9)
}

func TestATR_InsufficientData(t *testing.T) {
	_, err := ATR(bars(100, 101), 14)
	if !errors.Is(err, ErrInsufficientData) {
		t.Errorf("want ErrInsufficientData, got %v", err)
	}
}

func TestCompute_SkipsShortIndicators(t *testing.T) {
	intraday := &models.InstrumentSeries{Token: "738561", Interval: models.IntervalFiveMinute, Bars: bars(400, 420)}
	snap, err := Compute(intraday, nil, time.Now())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := snap.Value(KeyRSI); ok {
		t.Error("RSI should be absent for a 2-bar series")
	}
	change, ok := snap.Value(KeyChange5m)
	if !ok {
		t.Fatal("5m change should be present")
	}
	assertClose(t, "5m change", change, 5.0, 1e-9)
}

func TestCompute_WeeklyMove(t *testing.T) {
	intraday := &models.InstrumentSeries{Token: "738561", Bars: bars(200, 201)}
	daily := &models.InstrumentSeries{Token: "738561", Interval: models.IntervalDay, Bars: bars(200, 195, 204)}
	snap, err := Compute(intraday, daily, time.Now())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	move, ok := snap.Value(KeyWeeklyMove)
	if !ok {
		t.Fatal("weekly move should be present")
	}
	assertClose(t, "weekly move", move, 2.0, 1e-9)
}
