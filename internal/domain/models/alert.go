package models

import "time"

// IndicatorSnapshot holds the indicator values computed for one instrument
// in one scan cycle. Snapshots are immutable; a new cycle produces a new one.
type IndicatorSnapshot struct {
	Token      string             `json:"token"`
	ComputedAt time.Time          `json:"computed_at"`
	Values     map[string]float64 `json:"values"`
}

// Value returns a named indicator value and whether it was computed.
func (s *IndicatorSnapshot) Value(name string) (float64, bool) {
	v, ok := s.Values[name]
	return v, ok
}

// AlertKind identifies which rule produced an alert.
type AlertKind string

const (
	AlertShortSellMomentum AlertKind = "short_sell_momentum"
	AlertOversoldBreakdown AlertKind = "oversold_breakdown"
)

// AlertStatus is the lifecycle state of an alert.
type AlertStatus string

const (
	AlertActive  AlertStatus = "ACTIVE"
	AlertCleared AlertStatus = "CLEARED"
)

// AlertRecord is one alert for one instrument. Records transition from
// ACTIVE to CLEARED; they are never deleted within a scan session.
type AlertRecord struct {
	Token       string             `json:"token"`
	Kind        AlertKind          `json:"kind"`
	Status      AlertStatus        `json:"status"`
	TriggeredAt time.Time          `json:"triggered_at"`
	ClearedAt   *time.Time         `json:"cleared_at,omitempty"`
	Values      map[string]float64 `json:"values"`
}

// Clone returns a copy safe to mutate without touching the original.
func (a *AlertRecord) Clone() *AlertRecord {
	cp := *a
	cp.Values = make(map[string]float64, len(a.Values))
	for k, v := range a.Values {
		cp.Values[k] = v
	}
	if a.ClearedAt != nil {
		t := *a.ClearedAt
		cp.ClearedAt = &t
	}
	return &cp
}

// ScanCycleResult is the immutable outcome of one completed scan cycle.
// Readers always see a whole result; the scheduler swaps the pointer.
type ScanCycleResult struct {
	Seq        uint64         `json:"seq"`
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt time.Time      `json:"finished_at"`
	Scanned    int            `json:"scanned"`
	Failed     int            `json:"failed"`
	Alerts     []*AlertRecord `json:"alerts"`

	byToken map[string]*AlertRecord
}

// NewScanCycleResult builds a result with its per-token index. Alerts keep
// insertion order in the slice.
func NewScanCycleResult(seq uint64, started, finished time.Time, scanned, failed int, alerts []*AlertRecord) *ScanCycleResult {
	r := &ScanCycleResult{
		Seq:        seq,
		StartedAt:  started,
		FinishedAt: finished,
		Scanned:    scanned,
		Failed:     failed,
		Alerts:     alerts,
		byToken:    make(map[string]*AlertRecord, len(alerts)),
	}
	for _, a := range alerts {
		r.byToken[a.Token] = a
	}
	return r
}

// Alert returns the record for a token, if any.
func (r *ScanCycleResult) Alert(token string) (*AlertRecord, bool) {
	a, ok := r.byToken[token]
	return a, ok
}

// ByStatus returns alerts with the given status, in insertion order.
func (r *ScanCycleResult) ByStatus(status AlertStatus) []*AlertRecord {
	out := make([]*AlertRecord, 0, len(r.Alerts))
	for _, a := range r.Alerts {
		if a.Status == status {
			out = append(out, a)
		}
	}
	return out
}
