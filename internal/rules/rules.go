// Package rules evaluates short-sell alert conditions against indicator
// snapshots. The rule set is a closed set of variants dispatched by the
// Evaluator; each rule is a pure predicate over one snapshot.
package rules

import (
	"time"

	"NiftyScan/internal/domain/models"
	"NiftyScan/internal/indicator"
)

// Thresholds carries the tunable rule parameters. Zero-value fields fall
// back to the originally calibrated defaults via Normalize.
type Thresholds struct {
	SpikePct        float64 `yaml:"spike_pct"`         // min 5-minute move, percent
	PriceMin        float64 `yaml:"price_min"`         // tradable band lower bound
	PriceMax        float64 `yaml:"price_max"`         // tradable band upper bound
	CircuitDistPct  float64 `yaml:"circuit_dist_pct"`  // min distance below recent high
	WeeklyMovePct   float64 `yaml:"weekly_move_pct"`   // max absolute weekly move
	RSIFloor        float64 `yaml:"rsi_floor"`         // oversold threshold
	ATRFloor        float64 `yaml:"atr_floor"`         // volatility floor
}

// Normalize fills unset thresholds with defaults.
func (t Thresholds) Normalize() Thresholds {
	if t.SpikePct == 0 {
		t.SpikePct = 4
	}
	if t.PriceMin == 0 {
		t.PriceMin = 150
	}
	if t.PriceMax == 0 {
		t.PriceMax = 900
	}
	if t.CircuitDistPct == 0 {
		t.CircuitDistPct = 10
	}
	if t.WeeklyMovePct == 0 {
		t.WeeklyMovePct = 5
	}
	if t.RSIFloor == 0 {
		t.RSIFloor = 30
	}
	if t.ATRFloor == 0 {
		t.ATRFloor = 2
	}
	return t
}

// Rule is one alert condition. Match must be pure and side-effect free.
type Rule interface {
	Kind() models.AlertKind
	Match(snap *models.IndicatorSnapshot) bool
}

// momentumRule flags a sharp intraday spike in an otherwise quiet stock:
// the profile a short seller fades. All inputs must be present in the
// snapshot for the rule to match.
type momentumRule struct {
	t Thresholds
}

func (r momentumRule) Kind() models.AlertKind { return models.AlertShortSellMomentum }

func (r momentumRule) Match(snap *models.IndicatorSnapshot) bool {
	change, ok := snap.Value(indicator.KeyChange5m)
	if !ok || change < r.t.SpikePct {
		return false
	}
	close, ok := snap.Value(indicator.KeyClose)
	if !ok || close < r.t.PriceMin || close > r.t.PriceMax {
		return false
	}
	dist, ok := snap.Value(indicator.KeyDistFromHigh)
	if !ok || dist < r.t.CircuitDistPct {
		return false
	}
	weekly, ok := snap.Value(indicator.KeyWeeklyMove)
	if !ok || weekly > r.t.WeeklyMovePct {
		return false
	}
	return true
}

// oversoldRule flags a breakdown already underway: RSI below the floor,
// price under the lower Bollinger band, with enough range to be worth
// trading.
type oversoldRule struct {
	t Thresholds
}

func (r oversoldRule) Kind() models.AlertKind { return models.AlertOversoldBreakdown }

func (r oversoldRule) Match(snap *models.IndicatorSnapshot) bool {
	rsi, ok := snap.Value(indicator.KeyRSI)
	if !ok || rsi >= r.t.RSIFloor {
		return false
	}
	close, ok := snap.Value(indicator.KeyClose)
	if !ok {
		return false
	}
	lower, ok := snap.Value(indicator.KeyBBLower)
	if !ok || close >= lower {
		return false
	}
	atr, ok := snap.Value(indicator.KeyATR)
	if !ok || atr <= r.t.ATRFloor {
		return false
	}
	return true
}

// Evaluator applies the rule set to one instrument's snapshot and prior
// alert, producing the alert record for the current cycle.
type Evaluator struct {
	rules []Rule
}

// NewEvaluator builds the standard rule set from thresholds.
func NewEvaluator(t Thresholds) *Evaluator {
	t = t.Normalize()
	return &Evaluator{rules: []Rule{momentumRule{t}, oversoldRule{t}}}
}

// Evaluate returns the instrument's alert record after this cycle, or nil if
// there has never been one. Condition true with no ACTIVE prior emits a new
// ACTIVE record; condition false with an ACTIVE prior clears it; condition
// true with an ACTIVE prior returns the prior unchanged.
func (e *Evaluator) Evaluate(snap *models.IndicatorSnapshot, prior *models.AlertRecord, now time.Time) *models.AlertRecord {
	for _, r := range e.rules {
		if !r.Match(snap) {
			continue
		}
		if prior != nil && prior.Status == models.AlertActive {
			return prior
		}
		values := make(map[string]float64, len(snap.Values))
		for k, v := range snap.Values {
			values[k] = v
		}
		return &models.AlertRecord{
			Token:       snap.Token,
			Kind:        r.Kind(),
			Status:      models.AlertActive,
			TriggeredAt: now,
			Values:      values,
		}
	}

	if prior != nil && prior.Status == models.AlertActive {
		cleared := prior.Clone()
		cleared.Status = models.AlertCleared
		cleared.ClearedAt = &now
		return cleared
	}
	return prior
}
