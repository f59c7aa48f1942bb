package di

import (
	"context"
	"fmt"
	"time"

	"NiftyScan/internal/domain/repository"
	"NiftyScan/internal/handler/api"
	mid "NiftyScan/internal/middleware"
	internalrepo "NiftyScan/internal/repository"
	"NiftyScan/internal/rules"
	"NiftyScan/internal/service/kite"
	"NiftyScan/internal/service/ratelimit"
	"NiftyScan/internal/usecase"
	"NiftyScan/pkg/cache"
	pkgch "NiftyScan/pkg/clickhouse"
	"NiftyScan/pkg/config"
	xhttp "NiftyScan/pkg/http"
	pkgkafka "NiftyScan/pkg/kafka"
	applogger "NiftyScan/pkg/logger"
	"NiftyScan/pkg/metrics"
	"NiftyScan/pkg/server"
)

// ProvideLogger creates the application logger.
func ProvideLogger(cfg *config.Config) (*applogger.Logger, error) {
	level := cfg.Logging.Level
	if level == "" {
		level = "info"
	}
	format := cfg.Logging.Format
	if format == "" {
		format = "console"
	}
	return applogger.New(&applogger.Config{
		Level:  level,
		Format: format,
		Output: cfg.Logging.Output,
	})
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics() repository.Metrics {
	return metrics.New()
}

// ProvideClock provides the wall clock.
func ProvideClock() repository.Clock {
	return repository.SystemClock{}
}

// ProvideCache creates the quote cache, Redis or in-memory per config.
func ProvideCache(cfg *config.Config) (cache.Service, error) {
	if cfg.Cache.Backend == "redis" {
		prefix := cfg.Cache.Redis.Prefix
		if prefix == "" {
			prefix = "niftyscan"
		}
		c, err := cache.NewRedisCache(
			cache.WithRedisAddr(cfg.Cache.Redis.Host, cfg.Cache.Redis.Port),
			cache.WithRedisAuth(cfg.Cache.Redis.Password, cfg.Cache.Redis.DB),
			cache.WithRedisPool(cfg.Cache.Redis.PoolSize, 2, 4*time.Second),
			cache.WithRedisPrefix(prefix),
		)
		if err != nil {
			return nil, fmt.Errorf("redis cache: %w", err)
		}
		return c, nil
	}
	return cache.NewMemoryCache(), nil
}

// ProvideQuoteSource creates the Kite REST adapter.
func ProvideQuoteSource(cfg *config.Config) repository.QuoteSource {
	return kite.New(cfg.Kite.BaseURL, cfg.Kite.APIKey, cfg.Kite.AccessToken, cfg.Kite.Timeout)
}

// ProvideRateLimiter creates the upstream API budget limiter.
func ProvideRateLimiter(cfg *config.Config) *ratelimit.Limiter {
	calls := cfg.Kite.RateLimit
	if calls <= 0 {
		calls = 180
	}
	return ratelimit.New(calls)
}

// ProvideQuoteService creates the cached quote service.
func ProvideQuoteService(
	source repository.QuoteSource,
	c cache.Service,
	limiter *ratelimit.Limiter,
	m repository.Metrics,
	log *applogger.Logger,
	cfg *config.Config,
) *usecase.QuoteService {
	return usecase.NewQuoteService(source, c, limiter, m, log, usecase.QuoteServiceConfig{
		IntradayTTL: cfg.Cache.IntradayTTL,
		DailyTTL:    cfg.Cache.DailyTTL,
		LatestTTL:   cfg.Cache.LatestTTL,
	})
}

// ProvideEvaluator creates the alert rule evaluator from configured thresholds.
func ProvideEvaluator(cfg *config.Config) *rules.Evaluator {
	return rules.NewEvaluator(rules.Thresholds{
		SpikePct:       cfg.Rules.SpikePct,
		PriceMin:       cfg.Rules.PriceMin,
		PriceMax:       cfg.Rules.PriceMax,
		CircuitDistPct: cfg.Rules.CircuitDistPct,
		WeeklyMovePct:  cfg.Rules.WeeklyMovePct,
		RSIFloor:       cfg.Rules.RSIFloor,
		ATRFloor:       cfg.Rules.ATRFloor,
	})
}

// ProvideScanner creates the scan scheduler and attaches optional sinks.
func ProvideScanner(
	cfg *config.Config,
	quotes *usecase.QuoteService,
	eval *rules.Evaluator,
	clock repository.Clock,
	m repository.Metrics,
	log *applogger.Logger,
	notifier repository.Notifier,
	audit repository.AuditStore,
) *usecase.Scanner {
	s := usecase.NewScanner(usecase.ScannerConfig{
		Universe:         cfg.Scan.Universe,
		Workers:          cfg.Scan.Workers,
		CycleTimeout:     cfg.Scan.CycleTimeout,
		IntradayLookback: cfg.Scan.IntradayLookback,
		DailyLookback:    cfg.Scan.DailyLookback,
		GateEnabled:      cfg.Scan.MarketHoursOnly,
	}, quotes, eval, clock, m, log)
	if notifier != nil {
		s.SetNotifier(notifier)
	}
	if audit != nil {
		s.SetAuditStore(audit)
	}
	return s
}

// ProvideNotifier creates the Kafka alert notifier when enabled.
func ProvideNotifier(cfg *config.Config, log *applogger.Logger) (repository.Notifier, error) {
	if !cfg.Kafka.Enabled {
		return nil, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithBatching(cfg.Kafka.Producer.BatchSize, cfg.Kafka.Producer.BatchBytes, cfg.Kafka.Producer.BatchTimeout),
		pkgkafka.WithTimeouts(cfg.Kafka.Producer.WriteTimeout, cfg.Kafka.Producer.ReadTimeout),
		pkgkafka.WithMaxAttempts(cfg.Kafka.Producer.MaxAttempts),
		pkgkafka.WithAsync(cfg.Kafka.Producer.Async),
		pkgkafka.WithHashByKey(true),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	n := internalrepo.NewKafkaNotifier(producer, cfg.Kafka.Topic)
	n.SetLogger(log)
	return n, nil
}

// ProvideAuditStore creates the ClickHouse audit store when enabled.
func ProvideAuditStore(cfg *config.Config, log *applogger.Logger) (repository.AuditStore, error) {
	if !cfg.ClickHouse.Enabled {
		return nil, nil
	}
	client, err := pkgch.NewClient(
		pkgch.WithAddr(cfg.ClickHouse.Host, cfg.ClickHouse.Port),
		pkgch.WithDatabase(cfg.ClickHouse.Database),
		pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithPool(4, 2),
		pkgch.WithHTTP(cfg.ClickHouse.UseHTTP),
		pkgch.WithAsyncInsert(cfg.ClickHouse.AsyncInsert, cfg.ClickHouse.WaitForAsync),
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout, cfg.ClickHouse.WriteTimeout),
		pkgch.WithMaxExecutionTime(cfg.ClickHouse.MaxExecutionTime),
	)
	if err != nil {
		return nil, fmt.Errorf("clickhouse client: %w", err)
	}

	store := internalrepo.NewCHAuditStore(client)
	store.SetLogger(log)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := store.Init(ctx); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("clickhouse schema: %w", err)
	}
	return store, nil
}

// ProvideTicker creates the Kite websocket stream when a URL is configured.
func ProvideTicker(cfg *config.Config) *kite.Ticker {
	if cfg.Kite.WebSocketURL == "" {
		return nil
	}
	return kite.NewTicker(
		cfg.Kite.WebSocketURL,
		cfg.Kite.APIKey,
		cfg.Kite.AccessToken,
		cfg.Scan.Universe,
		5*time.Second,
		25*time.Second,
	)
}

// ProvideTickPipeline builds the validation and throttle stage between the
// websocket stream and the quote cache.
func ProvideTickPipeline(quotes *usecase.QuoteService, m repository.Metrics) *mid.TickPipeline {
	return mid.NewTickPipeline(quotes, m,
		mid.WithMaxRPS(50),
		mid.WithBufferSize(2000),
	)
}

// ProvideHandler creates the HTTP handler for the query surface.
func ProvideHandler(log *applogger.Logger, scanner *usecase.Scanner) xhttp.Handler {
	return api.NewAlertsEchoHandler(log, scanner)
}

// ProvideApp creates the application server.
func ProvideApp(
	cfg *config.Config,
	log *applogger.Logger,
	scanner *usecase.Scanner,
	pipeline *mid.TickPipeline,
	ticker *kite.Ticker,
	handler xhttp.Handler,
	c cache.Service,
	notifier repository.Notifier,
	audit repository.AuditStore,
) *server.App {
	app := server.New(cfg, log, scanner, pipeline, ticker)
	app.SetHTTPHandler(handler)
	app.AddCloser(c.Close)
	if notifier != nil {
		app.AddCloser(notifier.Close)
	}
	if audit != nil {
		app.AddCloser(audit.Close)
	}
	return app
}
