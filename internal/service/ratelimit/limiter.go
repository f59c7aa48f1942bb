// Package ratelimit bounds calls against the brokerage API budget.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Limiter is a token bucket sized to an API-calls-per-minute budget shared
// by all scan workers.
type Limiter struct {
	mu         sync.Mutex
	tokens     float64
	capacity   float64
	refillRate float64 // tokens per second
	last       time.Time
}

// New creates a limiter allowing callsPerMinute sustained calls with a burst
// of the same size.
func New(callsPerMinute int) *Limiter {
	capacity := float64(callsPerMinute)
	return &Limiter{
		tokens:     capacity,
		capacity:   capacity,
		refillRate: capacity / 60.0,
		last:       time.Now(),
	}
}

// Allow consumes one token if available.
func (l *Limiter) Allow() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.refill(time.Now())
	if l.tokens >= 1 {
		l.tokens--
		return true
	}
	return false
}

// Wait blocks until a token is available or ctx is done.
func (l *Limiter) Wait(ctx context.Context) error {
	for {
		if l.Allow() {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(l.retryAfter()):
		}
	}
}

func (l *Limiter) refill(now time.Time) {
	elapsed := now.Sub(l.last).Seconds()
	if elapsed <= 0 {
		return
	}
	l.tokens += elapsed * l.refillRate
	if l.tokens > l.capacity {
		l.tokens = l.capacity
	}
	l.last = now
}

func (l *Limiter) retryAfter() time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()
	missing := 1 - l.tokens
	if missing <= 0 {
		return time.Millisecond
	}
	return time.Duration(missing / l.refillRate * float64(time.Second))
}
