package repository

import (
	"context"
	"time"

	"NiftyScan/internal/domain/models"
)

// QuoteSource fetches market data for one instrument. Implementations talk
// to the brokerage API and must respect the per-call context deadline.
type QuoteSource interface {
	// FetchLatest returns the most recent bar for the instrument.
	FetchLatest(ctx context.Context, token string) (models.Bar, error)

	// FetchHistory returns up to lookback bars at the given interval,
	// ordered timestamp ascending.
	FetchHistory(ctx context.Context, token string, interval models.Interval, lookback int) ([]models.Bar, error)
}

// Notifier publishes alert transitions to interested consumers.
type Notifier interface {
	NotifyAlert(ctx context.Context, alert *models.AlertRecord) error
	Close() error
}

// AuditStore appends completed cycles and alert transitions for audit.
type AuditStore interface {
	StoreCycle(ctx context.Context, cycle *models.ScanCycleResult) error
	Health(ctx context.Context) error
	Close() error
}

// Metrics records operational measurements.
type Metrics interface {
	RecordCycle(scanned, failed int, duration time.Duration)
	RecordFetch(interval string, cached bool)
	RecordError(kind string)
	RecordActiveAlerts(n int)
	RecordLatency(op string, seconds float64)
}

// Clock abstracts time for the scheduler and market-hours gate.
type Clock interface {
	Now() time.Time
}

// SystemClock is the wall clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }
