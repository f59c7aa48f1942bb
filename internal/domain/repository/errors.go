package repository

import "errors"

// Adapter and scheduler error taxonomy. RateLimited and Timeout are
// transient; Unauthorized and NotFound are fatal for the instrument.
var (
	ErrRateLimited      = errors.New("quote source: rate limited")
	ErrTimeout          = errors.New("quote source: timeout")
	ErrUnauthorized     = errors.New("quote source: unauthorized")
	ErrNotFound         = errors.New("quote source: instrument not found")
	ErrBusy             = errors.New("scan: cycle already running")
	ErrMarketClosed     = errors.New("scan: outside market hours")
	ErrCacheUnavailable = errors.New("cache: unavailable")
)

// Transient reports whether err is worth retrying with backoff.
func Transient(err error) bool {
	return errors.Is(err, ErrRateLimited) || errors.Is(err, ErrTimeout)
}
