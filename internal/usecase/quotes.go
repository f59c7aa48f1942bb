package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"NiftyScan/internal/domain/models"
	drepo "NiftyScan/internal/domain/repository"
	"NiftyScan/internal/service/kite"
	"NiftyScan/internal/service/ratelimit"
	"NiftyScan/pkg/cache"
	xlogger "NiftyScan/pkg/logger"
)

// QuoteServiceConfig carries fetch tuning.
type QuoteServiceConfig struct {
	IntradayTTL time.Duration
	DailyTTL    time.Duration
	LatestTTL   time.Duration
	RetryMax    int
	BackoffMin  time.Duration
}

// QuoteService serves bar history cache-first with refresh collapse: at most
// one upstream fetch per key is in flight, and concurrent callers for the
// same key wait for and share that fetch's result.
type QuoteService struct {
	source  drepo.QuoteSource
	cache   cache.Service
	limiter *ratelimit.Limiter
	metrics drepo.Metrics
	log     *xlogger.Logger
	cfg     QuoteServiceConfig

	mu       sync.Mutex
	inflight map[string]*fetchCall
}

type fetchCall struct {
	done chan struct{}
	bars []models.Bar
	err  error
}

// NewQuoteService creates a cached quote service.
func NewQuoteService(source drepo.QuoteSource, c cache.Service, limiter *ratelimit.Limiter, metrics drepo.Metrics, log *xlogger.Logger, cfg QuoteServiceConfig) *QuoteService {
	if cfg.RetryMax <= 0 {
		cfg.RetryMax = 3
	}
	if cfg.BackoffMin <= 0 {
		cfg.BackoffMin = 200 * time.Millisecond
	}
	return &QuoteService{
		source:   source,
		cache:    c,
		limiter:  limiter,
		metrics:  metrics,
		log:      log,
		cfg:      cfg,
		inflight: make(map[string]*fetchCall),
	}
}

// History returns up to lookback bars for the instrument, cache-first.
func (q *QuoteService) History(ctx context.Context, token string, interval models.Interval, lookback int) ([]models.Bar, error) {
	key := cache.Key("series", token, string(interval))

	var bars []models.Bar
	err := q.cache.Get(ctx, key, &bars)
	if err == nil {
		q.metrics.RecordFetch(string(interval), true)
		return bars, nil
	}
	if !errors.Is(err, cache.ErrCacheMiss) {
		return nil, fmt.Errorf("%w: %v", drepo.ErrCacheUnavailable, err)
	}

	q.mu.Lock()
	if call, ok := q.inflight[key]; ok {
		q.mu.Unlock()
		select {
		case <-call.done:
			return call.bars, call.err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	call := &fetchCall{done: make(chan struct{})}
	q.inflight[key] = call
	q.mu.Unlock()

	call.bars, call.err = q.fetchAndStore(ctx, key, token, interval, lookback)
	close(call.done)

	q.mu.Lock()
	delete(q.inflight, key)
	q.mu.Unlock()

	return call.bars, call.err
}

func (q *QuoteService) fetchAndStore(ctx context.Context, key, token string, interval models.Interval, lookback int) ([]models.Bar, error) {
	bars, err := q.fetchWithRetry(ctx, token, interval, lookback)
	if err != nil {
		return nil, err
	}
	q.metrics.RecordFetch(string(interval), false)

	ttl := q.cfg.IntradayTTL
	if interval == models.IntervalDay {
		ttl = q.cfg.DailyTTL
	}
	if err := q.cache.Set(ctx, key, bars, ttl); err != nil {
		return nil, fmt.Errorf("%w: %v", drepo.ErrCacheUnavailable, err)
	}
	return bars, nil
}

// fetchWithRetry retries transient adapter errors with doubling backoff up
// to RetryMax attempts. Fatal errors return immediately.
func (q *QuoteService) fetchWithRetry(ctx context.Context, token string, interval models.Interval, lookback int) ([]models.Bar, error) {
	backoff := q.cfg.BackoffMin
	var lastErr error
	for attempt := 0; attempt < q.cfg.RetryMax; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
		}

		if err := q.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		bars, err := q.source.FetchHistory(ctx, token, interval, lookback)
		if err == nil {
			return bars, nil
		}
		lastErr = err
		if !drepo.Transient(err) {
			break
		}
		q.metrics.RecordError("fetch_transient")
	}
	return nil, lastErr
}

// ApplyTick stores a live tick as the instrument's latest bar.
func (q *QuoteService) ApplyTick(ctx context.Context, t kite.Tick) error {
	key := cache.Key("latest", t.Token)
	return q.cache.Set(ctx, key, t.Bar(), q.cfg.LatestTTL)
}

// Latest returns the most recent bar, preferring the tick-fed cache entry.
func (q *QuoteService) Latest(ctx context.Context, token string) (models.Bar, error) {
	key := cache.Key("latest", token)
	var bar models.Bar
	err := q.cache.Get(ctx, key, &bar)
	if err == nil {
		return bar, nil
	}
	if !errors.Is(err, cache.ErrCacheMiss) {
		return models.Bar{}, fmt.Errorf("%w: %v", drepo.ErrCacheUnavailable, err)
	}

	bar, err = q.source.FetchLatest(ctx, token)
	if err != nil {
		return models.Bar{}, err
	}
	if err := q.cache.Set(ctx, key, bar, q.cfg.LatestTTL); err != nil {
		q.log.Warn("latest cache set failed", xlogger.String("token", token), xlogger.Error(err))
	}
	return bar, nil
}

// Invalidate drops cached series for an instrument.
func (q *QuoteService) Invalidate(ctx context.Context, token string) error {
	return q.cache.Delete(ctx,
		cache.Key("series", token, string(models.IntervalFiveMinute)),
		cache.Key("series", token, string(models.IntervalDay)),
		cache.Key("latest", token),
	)
}
