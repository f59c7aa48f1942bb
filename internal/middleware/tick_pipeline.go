package middleware

import (
	"context"
	"fmt"
	"sync"
	"time"

	drepo "NiftyScan/internal/domain/repository"
	"NiftyScan/internal/service/kite"
)

// TickSink is the downstream the pipeline feeds.
type TickSink interface {
	ApplyTick(ctx context.Context, t kite.Tick) error
}

// TickPipeline sits between the websocket stream and the quote cache.
// It validates ticks, throttles per token, and buffers when the cache
// write fails so a transient cache hiccup does not lose the stream.
type TickPipeline struct {
	sink    TickSink
	metrics drepo.Metrics
	maxRPS  int
	bufSize int
	bufCh   chan kite.Tick
	stopCh  chan struct{}
	started bool
	mu      sync.Mutex
	// per-token last accepted time
	lastSeen map[string]time.Time
}

type PipelineOption func(*TickPipeline)

// WithMaxRPS sets the max accepted ticks per second per token.
func WithMaxRPS(n int) PipelineOption {
	return func(p *TickPipeline) {
		if n > 0 {
			p.maxRPS = n
		}
	}
}

// WithBufferSize sets the retry buffer size for failed cache writes.
func WithBufferSize(n int) PipelineOption {
	return func(p *TickPipeline) {
		if n > 0 {
			p.bufSize = n
		}
	}
}

// NewTickPipeline creates a new pipeline.
func NewTickPipeline(sink TickSink, metrics drepo.Metrics, opts ...PipelineOption) *TickPipeline {
	p := &TickPipeline{
		sink:     sink,
		metrics:  metrics,
		maxRPS:   20,
		bufSize:  1000,
		stopCh:   make(chan struct{}),
		lastSeen: make(map[string]time.Time),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.bufCh = make(chan kite.Tick, p.bufSize)
	return p
}

// Start launches background flushing of buffered ticks.
func (p *TickPipeline) Start(ctx context.Context) {
	p.mu.Lock()
	if p.started {
		p.mu.Unlock()
		return
	}
	p.started = true
	p.mu.Unlock()

	go func() {
		backoff := 50 * time.Millisecond
		for {
			select {
			case <-p.stopCh:
				return
			case t := <-p.bufCh:
				if err := p.sink.ApplyTick(ctx, t); err != nil {
					if backoff < 2*time.Second {
						backoff *= 2
					}
					p.metrics.RecordError("tick_pipeline_flush")
					time.Sleep(backoff)
					// requeue if space; drop otherwise
					select {
					case p.bufCh <- t:
					default:
						p.metrics.RecordError("tick_pipeline_buffer_drop")
					}
				} else {
					backoff = 50 * time.Millisecond
				}
			}
		}
	}()
}

// Stop stops the background flushing.
func (p *TickPipeline) Stop() {
	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return
	}
	p.started = false
	p.mu.Unlock()
	close(p.stopCh)
}

// Process validates, throttles, and forwards a tick, buffering on errors.
func (p *TickPipeline) Process(ctx context.Context, t kite.Tick) error {
	start := time.Now()
	if err := validateTick(t); err != nil {
		p.metrics.RecordError("tick_pipeline_validate")
		return err
	}
	if !p.allow(t.Token, start) {
		// throttled; record and drop silently
		p.metrics.RecordError("tick_pipeline_throttle")
		return nil
	}

	if err := p.sink.ApplyTick(ctx, t); err != nil {
		p.metrics.RecordError("tick_pipeline_apply")
		// buffer non-blocking
		select {
		case p.bufCh <- t:
		default:
			p.metrics.RecordError("tick_pipeline_buffer_full")
		}
		return fmt.Errorf("tick pipeline downstream: %w", err)
	}
	p.metrics.RecordLatency("tick_pipeline_process", time.Since(start).Seconds())
	return nil
}

func validateTick(t kite.Tick) error {
	if t.Token == "" {
		return fmt.Errorf("token empty")
	}
	if t.Timestamp.IsZero() {
		return fmt.Errorf("timestamp invalid")
	}
	if t.Price < 0 || t.Volume < 0 {
		return fmt.Errorf("negative price/volume")
	}
	return nil
}

func (p *TickPipeline) allow(token string, now time.Time) bool {
	if p.maxRPS <= 0 {
		return true
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	last := p.lastSeen[token]
	if last.IsZero() {
		p.lastSeen[token] = now
		return true
	}
	if now.Sub(last) < time.Second/time.Duration(p.maxRPS) {
		return false
	}
	p.lastSeen[token] = now
	return true
}
