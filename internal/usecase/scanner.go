package usecase

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"NiftyScan/internal/domain/models"
	drepo "NiftyScan/internal/domain/repository"
	"NiftyScan/internal/indicator"
	"NiftyScan/internal/markethours"
	"NiftyScan/internal/rules"
	xlogger "NiftyScan/pkg/logger"
)

// Scanner cycle states.
const (
	stateIdle int32 = iota
	stateRunning
	stateSwapping
)

// ScannerConfig carries scan tuning.
type ScannerConfig struct {
	Universe         []string
	Workers          int
	CycleTimeout     time.Duration
	IntradayLookback int
	DailyLookback    int
	Window           markethours.Window
	GateEnabled      bool
}

// Scanner drives full-universe scan cycles: fan out across a bounded worker
// pool, evaluate alerts, and publish the result with one atomic swap. At
// most one cycle runs at a time; overlapping triggers are rejected, never
// queued.
type Scanner struct {
	cfg     ScannerConfig
	quotes  *QuoteService
	eval    *rules.Evaluator
	clock   drepo.Clock
	metrics drepo.Metrics
	log     *xlogger.Logger

	notifier drepo.Notifier   // optional
	audit    drepo.AuditStore // optional

	state   atomic.Int32
	seq     atomic.Uint64
	current atomic.Pointer[models.ScanCycleResult]
}

// NewScanner creates a scanner over the given universe.
func NewScanner(cfg ScannerConfig, quotes *QuoteService, eval *rules.Evaluator, clock drepo.Clock, metrics drepo.Metrics, log *xlogger.Logger) *Scanner {
	if cfg.Workers <= 0 {
		cfg.Workers = 10
	}
	if cfg.CycleTimeout <= 0 {
		cfg.CycleTimeout = 45 * time.Second
	}
	if cfg.IntradayLookback <= 0 {
		cfg.IntradayLookback = 100
	}
	if cfg.DailyLookback <= 0 {
		cfg.DailyLookback = 8
	}
	if cfg.Window.Location == nil {
		cfg.Window = markethours.DefaultWindow()
	}
	// Dedupe the universe preserving order; the collect loop counts
	// distinct tokens, so a duplicate would stall every cycle until the
	// timeout.
	seen := make(map[string]struct{}, len(cfg.Universe))
	uniq := make([]string, 0, len(cfg.Universe))
	for _, token := range cfg.Universe {
		if _, ok := seen[token]; ok {
			continue
		}
		seen[token] = struct{}{}
		uniq = append(uniq, token)
	}
	cfg.Universe = uniq
	s := &Scanner{
		cfg:     cfg,
		quotes:  quotes,
		eval:    eval,
		clock:   clock,
		metrics: metrics,
		log:     log,
	}
	s.current.Store(models.NewScanCycleResult(0, time.Time{}, time.Time{}, 0, 0, nil))
	return s
}

// SetNotifier attaches an alert notifier.
func (s *Scanner) SetNotifier(n drepo.Notifier) { s.notifier = n }

// SetAuditStore attaches a cycle audit store.
func (s *Scanner) SetAuditStore(a drepo.AuditStore) { s.audit = a }

// TryStart begins a scan cycle in the background and returns its sequence
// number. Returns ErrBusy while a cycle is running (triggers coalesce, they
// do not queue) and ErrMarketClosed outside the session window.
func (s *Scanner) TryStart() (uint64, error) {
	if s.cfg.GateEnabled && !s.cfg.Window.Contains(s.clock.Now()) {
		return 0, drepo.ErrMarketClosed
	}
	if !s.state.CompareAndSwap(stateIdle, stateRunning) {
		return 0, drepo.ErrBusy
	}
	seq := s.seq.Add(1)
	go func() {
		if err := s.runCycle(seq); err != nil {
			s.log.Error("scan cycle failed", xlogger.Uint64("seq", seq), xlogger.Error(err))
		}
	}()
	return seq, nil
}

// RunOnce runs one cycle synchronously. Used by the periodic trigger so
// cycle-level failures surface to the scheduler loop.
func (s *Scanner) RunOnce() (uint64, error) {
	if s.cfg.GateEnabled && !s.cfg.Window.Contains(s.clock.Now()) {
		return 0, drepo.ErrMarketClosed
	}
	if !s.state.CompareAndSwap(stateIdle, stateRunning) {
		return 0, drepo.ErrBusy
	}
	seq := s.seq.Add(1)
	return seq, s.runCycle(seq)
}

type instrumentResult struct {
	token string
	snap  *models.IndicatorSnapshot
	err   error
}

// runCycle executes one full scan. Entered in stateRunning; always leaves
// the scanner in stateIdle. The market-hours gate is only checked at start:
// a cycle in flight when the session closes is allowed to finish.
func (s *Scanner) runCycle(seq uint64) error {
	defer s.state.Store(stateIdle)

	start := s.clock.Now()
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.CycleTimeout)
	defer cancel()

	jobs := make(chan string)
	results := make(chan instrumentResult, len(s.cfg.Universe))

	var wg sync.WaitGroup
	for i := 0; i < s.cfg.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for token := range jobs {
				snap, err := s.scanInstrument(ctx, token)
				results <- instrumentResult{token: token, snap: snap, err: err}
			}
		}()
	}

	go func() {
		defer close(jobs)
		for _, token := range s.cfg.Universe {
			select {
			case jobs <- token:
			case <-ctx.Done():
				return
			}
		}
	}()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	byToken := make(map[string]instrumentResult, len(s.cfg.Universe))
	var cacheErr error
collect:
	for len(byToken) < len(s.cfg.Universe) {
		select {
		case r := <-results:
			byToken[r.token] = r
			if r.err != nil && errors.Is(r.err, drepo.ErrCacheUnavailable) {
				cacheErr = r.err
				cancel()
				break collect
			}
		case <-ctx.Done():
			// Abandon in-flight instruments; they count as failures.
			break collect
		}
	}
	<-done

	if cacheErr != nil {
		// Cycle aborts without swapping a partial result.
		s.metrics.RecordError("cycle_cache_unavailable")
		return cacheErr
	}

	scanned, failed := 0, 0
	prev := s.current.Load()

	// Evaluate in two passes so alert ordering is stable: instruments with
	// an existing record keep their position, new alerts append in
	// universe order.
	now := s.clock.Now()
	next := make(map[string]*models.AlertRecord, len(s.cfg.Universe))
	for _, token := range s.cfg.Universe {
		prior, _ := prev.Alert(token)
		r, ok := byToken[token]
		if !ok || r.err != nil {
			failed++
			if r.err != nil {
				s.log.Warn("instrument scan failed", xlogger.String("token", token), xlogger.Error(r.err))
			}
			// Failed instruments keep their last-known alert status.
			if prior != nil {
				next[token] = prior
			}
			continue
		}
		scanned++
		if rec := s.eval.Evaluate(r.snap, prior, now); rec != nil {
			next[token] = rec
		}
	}

	alerts := make([]*models.AlertRecord, 0, len(next))
	seen := make(map[string]bool, len(next))
	for _, a := range prev.Alerts {
		if rec, ok := next[a.Token]; ok {
			alerts = append(alerts, rec)
			seen[a.Token] = true
		}
	}
	for _, token := range s.cfg.Universe {
		if rec, ok := next[token]; ok && !seen[token] {
			alerts = append(alerts, rec)
		}
	}

	finished := s.clock.Now()
	res := models.NewScanCycleResult(seq, start, finished, scanned, failed, alerts)

	s.state.Store(stateSwapping)
	s.current.Store(res)
	s.state.Store(stateIdle)

	s.metrics.RecordCycle(scanned, failed, finished.Sub(start))
	s.metrics.RecordActiveAlerts(len(res.ByStatus(models.AlertActive)))
	s.log.Info("scan cycle complete",
		xlogger.Uint64("seq", seq),
		xlogger.Int("scanned", scanned),
		xlogger.Int("failed", failed),
		xlogger.Int("alerts", len(alerts)),
	)

	s.publishTransitions(prev, res)
	if s.audit != nil {
		actx, acancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := s.audit.StoreCycle(actx, res); err != nil {
			s.log.Warn("audit store failed", xlogger.Error(err))
		}
		acancel()
	}
	return nil
}

// scanInstrument fetches history, computes indicators and returns the
// snapshot. Indicator windows not covered by the fetched history are simply
// absent from the snapshot.
func (s *Scanner) scanInstrument(ctx context.Context, token string) (*models.IndicatorSnapshot, error) {
	intradayBars, err := s.quotes.History(ctx, token, models.IntervalFiveMinute, s.cfg.IntradayLookback)
	if err != nil {
		return nil, err
	}
	dailyBars, err := s.quotes.History(ctx, token, models.IntervalDay, s.cfg.DailyLookback)
	if err != nil {
		return nil, err
	}

	intraday := &models.InstrumentSeries{Token: token, Interval: models.IntervalFiveMinute, Bars: intradayBars, MaxBars: s.cfg.IntradayLookback}
	daily := &models.InstrumentSeries{Token: token, Interval: models.IntervalDay, Bars: dailyBars, MaxBars: s.cfg.DailyLookback}

	// Overlay the tick-fed latest price so the 5-minute change reflects the
	// live market, not the last closed bar.
	if latest, lerr := s.quotes.Latest(ctx, token); lerr == nil && latest.Timestamp.After(lastTimestamp(intradayBars)) {
		intraday.Append(latest)
	}

	return indicator.Compute(intraday, daily, s.clock.Now())
}

func lastTimestamp(bars []models.Bar) time.Time {
	if len(bars) == 0 {
		return time.Time{}
	}
	return bars[len(bars)-1].Timestamp
}

// publishTransitions notifies newly ACTIVE and newly CLEARED alerts.
func (s *Scanner) publishTransitions(prev, cur *models.ScanCycleResult) {
	if s.notifier == nil {
		return
	}
	for _, a := range cur.Alerts {
		old, had := prev.Alert(a.Token)
		if had && old.Status == a.Status {
			continue
		}
		if !had && a.Status != models.AlertActive {
			continue
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := s.notifier.NotifyAlert(ctx, a); err != nil {
			s.metrics.RecordError("notify")
			s.log.Warn("alert notify failed", xlogger.String("token", a.Token), xlogger.Error(err))
		}
		cancel()
	}
}

// Current returns the latest complete cycle result.
func (s *Scanner) Current() *models.ScanCycleResult {
	return s.current.Load()
}

// ListAlerts returns alerts from the latest cycle filtered by status;
// status "ALL" returns everything.
func (s *Scanner) ListAlerts(status models.AlertStatus) []*models.AlertRecord {
	res := s.current.Load()
	if status == "ALL" || status == "" {
		return res.Alerts
	}
	return res.ByStatus(status)
}

// GetAlert returns the latest cycle's record for one instrument.
func (s *Scanner) GetAlert(token string) (*models.AlertRecord, bool) {
	return s.current.Load().Alert(token)
}
