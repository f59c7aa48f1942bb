package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"NiftyScan/internal/domain/models"
	drepo "NiftyScan/internal/domain/repository"
	"NiftyScan/internal/service/ratelimit"
	"NiftyScan/pkg/cache"
	xlogger "NiftyScan/pkg/logger"
)

type fakeSource struct {
	mu      sync.Mutex
	fetches int
	data    map[string][]models.Bar
	errs    map[string]error
	block   chan struct{} // when set, FetchHistory waits on it
}

func seriesKey(token string, interval models.Interval) string {
	return token + "|" + string(interval)
}

func (f *fakeSource) FetchHistory(ctx context.Context, token string, interval models.Interval, lookback int) ([]models.Bar, error) {
	f.mu.Lock()
	f.fetches++
	block := f.block
	f.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.errs[seriesKey(token, interval)]; ok && err != nil {
		return nil, err
	}
	bars, ok := f.data[seriesKey(token, interval)]
	if !ok {
		return nil, drepo.ErrNotFound
	}
	return bars, nil
}

func (f *fakeSource) FetchLatest(ctx context.Context, token string) (models.Bar, error) {
	return models.Bar{}, drepo.ErrNotFound
}

func (f *fakeSource) fetchCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fetches
}

type noopMetrics struct{}

func (noopMetrics) RecordCycle(scanned, failed int, duration time.Duration) {}
func (noopMetrics) RecordFetch(interval string, cached bool)                {}
func (noopMetrics) RecordError(kind string)                                 {}
func (noopMetrics) RecordActiveAlerts(n int)                                {}
func (noopMetrics) RecordLatency(op string, seconds float64)                {}

func intradayBars(closes ...float64) []models.Bar {
	bars := make([]models.Bar, len(closes))
	base := time.Date(2025, 7, 1, 4, 0, 0, 0, time.UTC)
	for i, c := range closes {
		bars[i] = models.Bar{
			Timestamp: base.Add(time.Duration(i) * 5 * time.Minute),
			Open:      c,
			High:      c + 0.5,
			Low:       c - 0.5,
			Close:     c,
			Volume:    1000,
		}
	}
	return bars
}

func newTestQuotes(src drepo.QuoteSource) *QuoteService {
	c := cache.NewMemoryCache()
	lim := ratelimit.New(6000)
	return NewQuoteService(src, c, lim, noopMetrics{}, mustLogger(), QuoteServiceConfig{
		BackoffMin: 10 * time.Millisecond,
	})
}

func mustLogger() *xlogger.Logger {
	l, _ := xlogger.New(&xlogger.Config{Level: "error", Format: "json", Output: "stderr"})
	return l
}

func TestHistoryCacheFirst(t *testing.T) {
	src := &fakeSource{data: map[string][]models.Bar{
		seriesKey("INFY", models.IntervalFiveMinute): intradayBars(200, 201, 202),
	}}
	q := newTestQuotes(src)
	ctx := context.Background()

	bars, err := q.History(ctx, "INFY", models.IntervalFiveMinute, 10)
	if err != nil {
		t.Fatalf("first fetch: %v", err)
	}
	if len(bars) != 3 {
		t.Fatalf("expected 3 bars, got %d", len(bars))
	}

	// Second call must be served from cache.
	if _, err := q.History(ctx, "INFY", models.IntervalFiveMinute, 10); err != nil {
		t.Fatalf("cached fetch: %v", err)
	}
	if got := src.fetchCount(); got != 1 {
		t.Fatalf("expected 1 upstream fetch, got %d", got)
	}
}

func TestHistoryCollapsesConcurrentFetches(t *testing.T) {
	block := make(chan struct{})
	src := &fakeSource{
		data: map[string][]models.Bar{
			seriesKey("TCS", models.IntervalFiveMinute): intradayBars(300, 301),
		},
		block: block,
	}
	q := newTestQuotes(src)
	ctx := context.Background()

	const callers = 8
	var wg sync.WaitGroup
	errCh := make(chan error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			bars, err := q.History(ctx, "TCS", models.IntervalFiveMinute, 10)
			if err == nil && len(bars) != 2 {
				err = fmt.Errorf("got %d bars", len(bars))
			}
			errCh <- err
		}()
	}

	// Let the callers pile up behind the single in-flight fetch.
	time.Sleep(50 * time.Millisecond)
	close(block)
	wg.Wait()
	close(errCh)

	for err := range errCh {
		if err != nil {
			t.Fatalf("caller error: %v", err)
		}
	}
	if got := src.fetchCount(); got != 1 {
		t.Fatalf("expected exactly 1 upstream fetch, got %d", got)
	}
}

func TestHistoryRetriesTransientErrors(t *testing.T) {
	src := &fakeSource{
		data: map[string][]models.Bar{
			seriesKey("SBIN", models.IntervalDay): intradayBars(500, 501),
		},
		errs: map[string]error{
			seriesKey("SBIN", models.IntervalDay): drepo.ErrRateLimited,
		},
	}
	q := newTestQuotes(src)
	ctx := context.Background()

	// First attempt fails rate-limited; clear the error so the retry lands.
	go func() {
		time.Sleep(5 * time.Millisecond)
		src.mu.Lock()
		delete(src.errs, seriesKey("SBIN", models.IntervalDay))
		src.mu.Unlock()
	}()

	bars, err := q.History(ctx, "SBIN", models.IntervalDay, 8)
	if err != nil {
		t.Fatalf("expected retry to succeed: %v", err)
	}
	if len(bars) != 2 {
		t.Fatalf("expected 2 bars, got %d", len(bars))
	}
	if got := src.fetchCount(); got < 2 {
		t.Fatalf("expected at least 2 attempts, got %d", got)
	}
}

func TestHistoryFatalErrorNotRetried(t *testing.T) {
	src := &fakeSource{
		errs: map[string]error{
			seriesKey("GONE", models.IntervalDay): drepo.ErrNotFound,
		},
	}
	q := newTestQuotes(src)

	_, err := q.History(context.Background(), "GONE", models.IntervalDay, 8)
	if !errors.Is(err, drepo.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if got := src.fetchCount(); got != 1 {
		t.Fatalf("fatal error must not retry, got %d fetches", got)
	}
}

type brokenCache struct{}

func (brokenCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	return errors.New("connection refused")
}
func (brokenCache) Get(ctx context.Context, key string, dest interface{}) error {
	return errors.New("connection refused")
}
func (brokenCache) Delete(ctx context.Context, keys ...string) error { return errors.New("down") }
func (brokenCache) Exists(ctx context.Context, keys ...string) (bool, error) {
	return false, errors.New("down")
}
func (brokenCache) TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return false, errors.New("down")
}
func (brokenCache) Unlock(ctx context.Context, key string) error { return errors.New("down") }
func (brokenCache) Close() error                                 { return nil }

func TestHistoryCacheUnavailable(t *testing.T) {
	src := &fakeSource{data: map[string][]models.Bar{
		seriesKey("INFY", models.IntervalFiveMinute): intradayBars(200),
	}}
	q := NewQuoteService(src, brokenCache{}, ratelimit.New(6000), noopMetrics{}, mustLogger(), QuoteServiceConfig{})

	_, err := q.History(context.Background(), "INFY", models.IntervalFiveMinute, 10)
	if !errors.Is(err, drepo.ErrCacheUnavailable) {
		t.Fatalf("expected ErrCacheUnavailable, got %v", err)
	}
}
