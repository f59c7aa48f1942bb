package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"NiftyScan/internal/domain/models"
	drepo "NiftyScan/internal/domain/repository"
	"NiftyScan/internal/markethours"
	"NiftyScan/internal/rules"
	"NiftyScan/internal/service/ratelimit"
	"NiftyScan/pkg/cache"
)

type fixedClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fixedClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// spikeSeries is an intraday series whose last bar jumped over 4% while
// sitting well below the session high, in the shortable price band.
func spikeSeries() []models.Bar {
	bars := intradayBars(250, 248, 246, 196, 195)
	spiked := intradayBars(205)[0]
	spiked.Timestamp = bars[len(bars)-1].Timestamp.Add(5 * time.Minute)
	return append(bars, spiked)
}

// flatSeries has no 5-minute move, so no rule matches.
func flatSeries() []models.Bar {
	return intradayBars(250, 248, 246, 200, 200, 200)
}

func dailyFlat() []models.Bar {
	return intradayBars(200, 200, 200, 200, 200)
}

func newTestScanner(src *fakeSource, universe []string, clock drepo.Clock) (*Scanner, *QuoteService) {
	quotes := NewQuoteService(src, cache.NewMemoryCache(), ratelimit.New(6000), noopMetrics{}, mustLogger(), QuoteServiceConfig{
		BackoffMin: 10 * time.Millisecond,
	})
	eval := rules.NewEvaluator(rules.Thresholds{})
	s := NewScanner(ScannerConfig{
		Universe:     universe,
		Workers:      4,
		CycleTimeout: 5 * time.Second,
	}, quotes, eval, clock, noopMetrics{}, mustLogger())
	return s, quotes
}

func sourceData(tokens map[string][]models.Bar) map[string][]models.Bar {
	data := make(map[string][]models.Bar)
	for token, bars := range tokens {
		data[seriesKey(token, models.IntervalFiveMinute)] = bars
		data[seriesKey(token, models.IntervalDay)] = dailyFlat()
	}
	return data
}

func TestScanCycleEmitsAlert(t *testing.T) {
	src := &fakeSource{data: sourceData(map[string][]models.Bar{
		"RELIANCE": spikeSeries(),
		"INFY":     flatSeries(),
	})}
	clock := &fixedClock{now: time.Date(2025, 7, 1, 5, 0, 0, 0, time.UTC)}
	s, _ := newTestScanner(src, []string{"RELIANCE", "INFY"}, clock)

	seq, err := s.RunOnce()
	if err != nil {
		t.Fatalf("cycle: %v", err)
	}
	if seq != 1 {
		t.Fatalf("expected seq 1, got %d", seq)
	}

	res := s.Current()
	if res.Seq != 1 || res.Scanned != 2 || res.Failed != 0 {
		t.Fatalf("unexpected result: seq=%d scanned=%d failed=%d", res.Seq, res.Scanned, res.Failed)
	}
	rec, ok := res.Alert("RELIANCE")
	if !ok {
		t.Fatalf("expected alert for RELIANCE")
	}
	if rec.Status != models.AlertActive || rec.Kind != models.AlertShortSellMomentum {
		t.Fatalf("unexpected record: %+v", rec)
	}
	if _, ok := res.Alert("INFY"); ok {
		t.Fatalf("INFY should not alert")
	}
}

func TestDuplicateUniverseTokensScanOnce(t *testing.T) {
	src := &fakeSource{data: sourceData(map[string][]models.Bar{
		"RELIANCE": spikeSeries(),
		"INFY":     flatSeries(),
	})}
	clock := &fixedClock{now: time.Date(2025, 7, 1, 5, 0, 0, 0, time.UTC)}
	s, _ := newTestScanner(src, []string{"RELIANCE", "INFY", "RELIANCE", "INFY"}, clock)

	done := make(chan error, 1)
	go func() {
		_, err := s.RunOnce()
		done <- err
	}()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("cycle: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("cycle stalled on duplicate tokens")
	}

	res := s.Current()
	if res.Scanned != 2 || res.Failed != 0 {
		t.Fatalf("expected scanned=2 failed=0, got scanned=%d failed=%d", res.Scanned, res.Failed)
	}
	if got := len(s.ListAlerts("ALL")); got != 1 {
		t.Fatalf("expected 1 alert, got %d", got)
	}
}

func TestAlertLifecycleAcrossCycles(t *testing.T) {
	src := &fakeSource{data: sourceData(map[string][]models.Bar{
		"RELIANCE": spikeSeries(),
	})}
	clock := &fixedClock{now: time.Date(2025, 7, 1, 5, 0, 0, 0, time.UTC)}
	s, quotes := newTestScanner(src, []string{"RELIANCE"}, clock)
	ctx := context.Background()

	if _, err := s.RunOnce(); err != nil {
		t.Fatalf("cycle 1: %v", err)
	}
	first, _ := s.Current().Alert("RELIANCE")
	if first.Status != models.AlertActive {
		t.Fatalf("cycle 1: expected ACTIVE, got %s", first.Status)
	}

	// Condition still true: the record must carry over unchanged.
	clock.Advance(time.Minute)
	_ = quotes.Invalidate(ctx, "RELIANCE")
	if _, err := s.RunOnce(); err != nil {
		t.Fatalf("cycle 2: %v", err)
	}
	second, _ := s.Current().Alert("RELIANCE")
	if second != first {
		t.Fatalf("re-trigger must not produce a new record")
	}

	// Condition gone: the alert clears but stays listed.
	src.mu.Lock()
	src.data[seriesKey("RELIANCE", models.IntervalFiveMinute)] = flatSeries()
	src.mu.Unlock()
	clock.Advance(time.Minute)
	_ = quotes.Invalidate(ctx, "RELIANCE")
	if _, err := s.RunOnce(); err != nil {
		t.Fatalf("cycle 3: %v", err)
	}
	third, ok := s.Current().Alert("RELIANCE")
	if !ok {
		t.Fatalf("cleared alert must stay queryable")
	}
	if third.Status != models.AlertCleared || third.ClearedAt == nil {
		t.Fatalf("expected CLEARED with timestamp, got %+v", third)
	}
	if first.Status != models.AlertActive {
		t.Fatalf("clearing must not mutate the prior record")
	}

	// Condition back: a fresh ACTIVE record replaces the cleared one.
	src.mu.Lock()
	src.data[seriesKey("RELIANCE", models.IntervalFiveMinute)] = spikeSeries()
	src.mu.Unlock()
	clock.Advance(time.Minute)
	_ = quotes.Invalidate(ctx, "RELIANCE")
	if _, err := s.RunOnce(); err != nil {
		t.Fatalf("cycle 4: %v", err)
	}
	fourth, _ := s.Current().Alert("RELIANCE")
	if fourth.Status != models.AlertActive || fourth == first {
		t.Fatalf("expected new ACTIVE record, got %+v", fourth)
	}
}

func TestFailedInstrumentKeepsPriorStatus(t *testing.T) {
	src := &fakeSource{data: sourceData(map[string][]models.Bar{
		"RELIANCE": spikeSeries(),
		"INFY":     flatSeries(),
		"TCS":      flatSeries(),
	})}
	clock := &fixedClock{now: time.Date(2025, 7, 1, 5, 0, 0, 0, time.UTC)}
	s, quotes := newTestScanner(src, []string{"RELIANCE", "INFY", "TCS"}, clock)
	ctx := context.Background()

	if _, err := s.RunOnce(); err != nil {
		t.Fatalf("cycle 1: %v", err)
	}
	active, _ := s.Current().Alert("RELIANCE")

	// RELIANCE starts failing upstream; the other two keep scanning.
	src.mu.Lock()
	src.errs = map[string]error{
		seriesKey("RELIANCE", models.IntervalFiveMinute): drepo.ErrTimeout,
	}
	src.mu.Unlock()
	for _, token := range []string{"RELIANCE", "INFY", "TCS"} {
		_ = quotes.Invalidate(ctx, token)
	}
	clock.Advance(time.Minute)

	if _, err := s.RunOnce(); err != nil {
		t.Fatalf("cycle 2: %v", err)
	}
	res := s.Current()
	if res.Scanned != 2 || res.Failed != 1 {
		t.Fatalf("expected scanned=2 failed=1, got scanned=%d failed=%d", res.Scanned, res.Failed)
	}
	kept, ok := res.Alert("RELIANCE")
	if !ok || kept != active {
		t.Fatalf("failed instrument must keep its last-known alert")
	}
}

func TestConcurrentTriggersCoalesce(t *testing.T) {
	block := make(chan struct{})
	src := &fakeSource{
		data:  sourceData(map[string][]models.Bar{"RELIANCE": flatSeries()}),
		block: block,
	}
	clock := &fixedClock{now: time.Date(2025, 7, 1, 5, 0, 0, 0, time.UTC)}
	s, _ := newTestScanner(src, []string{"RELIANCE"}, clock)

	started := 0
	busy := 0
	var mu sync.Mutex
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.TryStart()
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				started++
			case errors.Is(err, drepo.ErrBusy):
				busy++
			}
		}()
	}
	wg.Wait()

	if started != 1 || busy != 9 {
		t.Fatalf("expected 1 start and 9 busy, got %d and %d", started, busy)
	}

	close(block)
	// Wait for the background cycle to finish and swap.
	deadline := time.Now().Add(2 * time.Second)
	for s.Current().Seq != 1 {
		if time.Now().After(deadline) {
			t.Fatalf("cycle did not complete")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestMarketClosedGate(t *testing.T) {
	src := &fakeSource{data: sourceData(map[string][]models.Bar{"RELIANCE": flatSeries()})}
	// Sunday, well outside the session window.
	clock := &fixedClock{now: time.Date(2025, 7, 6, 5, 0, 0, 0, time.UTC)}
	quotes := NewQuoteService(src, cache.NewMemoryCache(), ratelimit.New(6000), noopMetrics{}, mustLogger(), QuoteServiceConfig{})
	s := NewScanner(ScannerConfig{
		Universe:    []string{"RELIANCE"},
		Window:      markethours.DefaultWindow(),
		GateEnabled: true,
	}, quotes, rules.NewEvaluator(rules.Thresholds{}), clock, noopMetrics{}, mustLogger())

	if _, err := s.TryStart(); !errors.Is(err, drepo.ErrMarketClosed) {
		t.Fatalf("expected ErrMarketClosed, got %v", err)
	}
	if _, err := s.RunOnce(); !errors.Is(err, drepo.ErrMarketClosed) {
		t.Fatalf("expected ErrMarketClosed, got %v", err)
	}
}

func TestCacheOutageAbortsCycleWithoutSwap(t *testing.T) {
	src := &fakeSource{data: sourceData(map[string][]models.Bar{"RELIANCE": spikeSeries()})}
	clock := &fixedClock{now: time.Date(2025, 7, 1, 5, 0, 0, 0, time.UTC)}
	s, _ := newTestScanner(src, []string{"RELIANCE"}, clock)

	if _, err := s.RunOnce(); err != nil {
		t.Fatalf("cycle 1: %v", err)
	}
	before := s.Current()

	// Swap in a broken cache: the next cycle must abort and keep the old result.
	broken := NewQuoteService(src, brokenCache{}, ratelimit.New(6000), noopMetrics{}, mustLogger(), QuoteServiceConfig{})
	s.quotes = broken

	_, err := s.RunOnce()
	if !errors.Is(err, drepo.ErrCacheUnavailable) {
		t.Fatalf("expected ErrCacheUnavailable, got %v", err)
	}
	if s.Current() != before {
		t.Fatalf("aborted cycle must not swap a partial result")
	}

	// The scanner must be idle again after the abort.
	s.quotes = newTestQuotes(src)
	if _, err := s.RunOnce(); err != nil {
		t.Fatalf("scanner did not recover: %v", err)
	}
}

func TestListAlertsFilters(t *testing.T) {
	src := &fakeSource{data: sourceData(map[string][]models.Bar{
		"RELIANCE": spikeSeries(),
		"INFY":     spikeSeries(),
	})}
	clock := &fixedClock{now: time.Date(2025, 7, 1, 5, 0, 0, 0, time.UTC)}
	s, quotes := newTestScanner(src, []string{"RELIANCE", "INFY"}, clock)
	ctx := context.Background()

	if _, err := s.RunOnce(); err != nil {
		t.Fatalf("cycle 1: %v", err)
	}

	// Clear INFY only.
	src.mu.Lock()
	src.data[seriesKey("INFY", models.IntervalFiveMinute)] = flatSeries()
	src.mu.Unlock()
	for _, token := range []string{"RELIANCE", "INFY"} {
		_ = quotes.Invalidate(ctx, token)
	}
	clock.Advance(time.Minute)
	if _, err := s.RunOnce(); err != nil {
		t.Fatalf("cycle 2: %v", err)
	}

	if got := len(s.ListAlerts(models.AlertActive)); got != 1 {
		t.Fatalf("expected 1 active, got %d", got)
	}
	if got := len(s.ListAlerts(models.AlertCleared)); got != 1 {
		t.Fatalf("expected 1 cleared, got %d", got)
	}
	if got := len(s.ListAlerts("ALL")); got != 2 {
		t.Fatalf("expected 2 total, got %d", got)
	}
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []string
}

func (n *recordingNotifier) NotifyAlert(ctx context.Context, a *models.AlertRecord) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, a.Token+":"+string(a.Status))
	return nil
}

func (n *recordingNotifier) Close() error { return nil }

func TestNotifierSeesOnlyTransitions(t *testing.T) {
	src := &fakeSource{data: sourceData(map[string][]models.Bar{"RELIANCE": spikeSeries()})}
	clock := &fixedClock{now: time.Date(2025, 7, 1, 5, 0, 0, 0, time.UTC)}
	s, quotes := newTestScanner(src, []string{"RELIANCE"}, clock)
	ctx := context.Background()

	n := &recordingNotifier{}
	s.SetNotifier(n)

	if _, err := s.RunOnce(); err != nil {
		t.Fatalf("cycle 1: %v", err)
	}
	// Still active: no second notification.
	_ = quotes.Invalidate(ctx, "RELIANCE")
	clock.Advance(time.Minute)
	if _, err := s.RunOnce(); err != nil {
		t.Fatalf("cycle 2: %v", err)
	}
	// Cleared: one more notification.
	src.mu.Lock()
	src.data[seriesKey("RELIANCE", models.IntervalFiveMinute)] = flatSeries()
	src.mu.Unlock()
	_ = quotes.Invalidate(ctx, "RELIANCE")
	clock.Advance(time.Minute)
	if _, err := s.RunOnce(); err != nil {
		t.Fatalf("cycle 3: %v", err)
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	want := []string{"RELIANCE:ACTIVE", "RELIANCE:CLEARED"}
	if len(n.events) != len(want) {
		t.Fatalf("expected %v, got %v", want, n.events)
	}
	for i := range want {
		if n.events[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, n.events)
		}
	}
}
