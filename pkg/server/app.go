package server

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-co-op/gocron"

	"NiftyScan/internal/domain/repository"
	"NiftyScan/internal/middleware"
	"NiftyScan/internal/service/kite"
	"NiftyScan/internal/usecase"
	"NiftyScan/pkg/config"
	xhttp "NiftyScan/pkg/http"
	applogger "NiftyScan/pkg/logger"
)

// App encapsulates the entire application lifecycle: periodic scan trigger,
// live tick stream, HTTP server, and graceful shutdown.
type App struct {
	cfg      *config.Config
	log      *applogger.Logger
	scanner  *usecase.Scanner
	pipeline *middleware.TickPipeline
	ticker   *kite.Ticker

	httpServer  *xhttp.Server
	httpHandler xhttp.Handler
	cron        *gocron.Scheduler
	closers     []func() error
}

// New creates a new App instance with all dependencies.
func New(
	cfg *config.Config,
	log *applogger.Logger,
	scanner *usecase.Scanner,
	pipeline *middleware.TickPipeline,
	ticker *kite.Ticker,
) *App {
	return &App{
		cfg:      cfg,
		log:      log,
		scanner:  scanner,
		pipeline: pipeline,
		ticker:   ticker,
		cron:     gocron.NewScheduler(time.UTC),
	}
}

// SetHTTPHandler allows DI to inject an HTTP handler.
func (a *App) SetHTTPHandler(h xhttp.Handler) { a.httpHandler = h }

// AddCloser registers a resource to close on shutdown, in LIFO order.
func (a *App) AddCloser(c func() error) { a.closers = append(a.closers, c) }

// Run starts the application and blocks until interrupted.
func (a *App) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a.httpServer = xhttp.NewServer(a.httpHandler,
		xhttp.WithPort(a.cfg.Server.Port),
		xhttp.WithTimeouts(a.cfg.Server.ReadTimeout, a.cfg.Server.WriteTimeout, a.cfg.Server.ShutdownTimeout),
		xhttp.WithLogging(a.log, a.cfg.Server.SlowThreshold),
	)

	// Periodic scan trigger. RunOnce is synchronous so cycle failures
	// surface here; a cycle still running when the next tick fires is
	// reported as busy and the tick is dropped.
	interval := a.cfg.Scan.Interval
	if interval <= 0 {
		interval = time.Minute
	}
	if _, err := a.cron.Every(interval).Do(a.scanTick); err != nil {
		return err
	}
	a.cron.StartAsync()
	a.log.Info("scan scheduler started",
		applogger.Duration("interval", interval),
		applogger.Strings("universe", a.cfg.Scan.Universe),
	)

	// Live tick stream warms the latest-quote cache between cycles.
	if a.ticker != nil {
		a.pipeline.Start(ctx)
		go a.consumeTicks(ctx)
	}

	if err := a.httpServer.Start(); err != nil {
		a.log.Error("http server start error", applogger.Error(err))
		return err
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	a.log.Info("shutdown signal received")
	return a.shutdown(ctx)
}

func (a *App) scanTick() {
	seq, err := a.scanner.RunOnce()
	switch {
	case errors.Is(err, repository.ErrMarketClosed):
		a.log.Debug("scan skipped, market closed")
	case errors.Is(err, repository.ErrBusy):
		a.log.Warn("scan skipped, previous cycle still running")
	case err != nil:
		a.log.Error("scan cycle error", applogger.Uint64("seq", seq), applogger.Error(err))
	}
}

// consumeTicks reads the websocket stream and feeds ticks into the quote
// service, reconnecting with backoff on stream errors.
func (a *App) consumeTicks(ctx context.Context) {
	backoff := time.Second
	for {
		if err := a.ticker.Connect(ctx); err != nil {
			a.log.Warn("ticker connect error", applogger.Error(err))
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second

		if err := a.ticker.Subscribe(ctx); err != nil {
			a.log.Warn("ticker subscribe error", applogger.Error(err))
			_ = a.ticker.Close()
			continue
		}
		a.log.Info("ticker stream connected")

		ticks, errs := a.ticker.Read(ctx)
	consume:
		for {
			select {
			case <-ctx.Done():
				_ = a.ticker.Close()
				return
			case t, ok := <-ticks:
				if !ok {
					break consume
				}
				if err := a.pipeline.Process(ctx, t); err != nil {
					a.log.Debug("apply tick error",
						applogger.String("token", t.Token),
						applogger.Error(err),
					)
				}
			case err, ok := <-errs:
				if !ok {
					break consume
				}
				a.log.Warn("ticker stream error", applogger.Error(err))
				break consume
			}
		}
		_ = a.ticker.Close()
	}
}

// shutdown gracefully stops all services.
func (a *App) shutdown(ctx context.Context) error {
	a.cron.Stop()

	shutdownCtx, cancel := context.WithTimeout(ctx, a.cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := a.httpServer.Stop(shutdownCtx); err != nil {
		a.log.Error("http shutdown error", applogger.Error(err))
	}

	if a.ticker != nil {
		if err := a.ticker.Close(); err != nil {
			a.log.Warn("ticker close error", applogger.Error(err))
		}
		a.pipeline.Stop()
	}

	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.log.Warn("close error", applogger.Error(err))
		}
	}

	a.log.Info("shutdown complete")
	return nil
}
