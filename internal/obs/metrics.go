package obs

import (
	"sync/atomic"
	"time"

	"livetrade/internal/risk"
)

const maxRiskReason = int(risk.ReasonPositionLimit)

// Counter names exported by Snapshot.Counters.
const (
	SessionsStartedTotal = "live_trading_sessions_total"
	SessionsStoppedTotal = "live_trading_sessions_stopped_total"
	TradesTotal          = "trades_total"
	TicksTotal           = "ticks_total"
	TickErrorsTotal      = "tick_errors_total"
	NotifyDropsTotal     = "notify_drops_total"
)

// Metrics collects lightweight counters and latency stats. A nil *Metrics is
// a valid no-op sink.
type Metrics struct {
	sessionsStarted  uint64
	sessionsStopped  uint64
	trades           uint64
	ticks            uint64
	tickErrors       uint64
	notifyDrops      uint64
	riskReasonCounts [maxRiskReason + 1]uint64

	tickLatency LatencyStats
}

// LatencyStats aggregates duration samples in nanoseconds.
type LatencyStats struct {
	count uint64
	sum   uint64
	min   uint64
	max   uint64
}

// LatencySnapshot is a point-in-time view of latency stats.
type LatencySnapshot struct {
	Count uint64        `json:"count"`
	Min   time.Duration `json:"min"`
	Max   time.Duration `json:"max"`
	Avg   time.Duration `json:"avg"`
}

// Snapshot captures the current metrics values.
type Snapshot struct {
	Counters         map[string]uint64 `json:"counters"`
	RiskReasonCounts map[string]uint64 `json:"risk_rejections"`
	TickLatency      LatencySnapshot   `json:"tick_latency"`
}

// NewMetrics allocates a metrics container.
func NewMetrics() *Metrics {
	return &Metrics{}
}

func (m *Metrics) IncSessionsStarted() { m.inc(sessionsStartedField) }
func (m *Metrics) IncSessionsStopped() { m.inc(sessionsStoppedField) }
func (m *Metrics) IncTrades()          { m.inc(tradesField) }
func (m *Metrics) IncTicks()           { m.inc(ticksField) }
func (m *Metrics) IncTickErrors()      { m.inc(tickErrorsField) }
func (m *Metrics) IncNotifyDrop()      { m.inc(notifyDropsField) }

// IncRiskRejection increments the risk reason counter.
func (m *Metrics) IncRiskRejection(reason risk.Reason) {
	if m == nil {
		return
	}
	idx := int(reason)
	if idx >= 0 && idx < len(m.riskReasonCounts) {
		atomic.AddUint64(&m.riskReasonCounts[idx], 1)
	}
}

// ObserveTick measures how long a tick held its session.
func (m *Metrics) ObserveTick(d time.Duration) {
	if m == nil {
		return
	}
	m.tickLatency.Observe(d)
}

type field uint8

const (
	sessionsStartedField field = iota
	sessionsStoppedField
	tradesField
	ticksField
	tickErrorsField
	notifyDropsField
)

func (m *Metrics) inc(f field) {
	if m == nil {
		return
	}
	atomic.AddUint64(m.counter(f), 1)
}

func (m *Metrics) counter(f field) *uint64 {
	switch f {
	case sessionsStartedField:
		return &m.sessionsStarted
	case sessionsStoppedField:
		return &m.sessionsStopped
	case tradesField:
		return &m.trades
	case ticksField:
		return &m.ticks
	case tickErrorsField:
		return &m.tickErrors
	default:
		return &m.notifyDrops
	}
}

// Counter returns the current value of a named counter.
func (m *Metrics) Counter(name string) uint64 {
	return m.Snapshot().Counters[name]
}

// Snapshot returns a copy of the current metrics values.
func (m *Metrics) Snapshot() Snapshot {
	if m == nil {
		return Snapshot{Counters: map[string]uint64{}, RiskReasonCounts: map[string]uint64{}}
	}
	riskCounts := make(map[string]uint64)
	for i := range m.riskReasonCounts {
		if v := atomic.LoadUint64(&m.riskReasonCounts[i]); v > 0 {
			riskCounts[risk.Reason(i).String()] = v
		}
	}
	return Snapshot{
		Counters: map[string]uint64{
			SessionsStartedTotal: atomic.LoadUint64(&m.sessionsStarted),
			SessionsStoppedTotal: atomic.LoadUint64(&m.sessionsStopped),
			TradesTotal:          atomic.LoadUint64(&m.trades),
			TicksTotal:           atomic.LoadUint64(&m.ticks),
			TickErrorsTotal:      atomic.LoadUint64(&m.tickErrors),
			NotifyDropsTotal:     atomic.LoadUint64(&m.notifyDrops),
		},
		RiskReasonCounts: riskCounts,
		TickLatency:      m.tickLatency.Snapshot(),
	}
}

// Observe records a duration sample.
func (l *LatencyStats) Observe(d time.Duration) {
	if d < 0 {
		return
	}
	nanos := uint64(d)
	atomic.AddUint64(&l.count, 1)
	atomic.AddUint64(&l.sum, nanos)

	for {
		min := atomic.LoadUint64(&l.min)
		if min != 0 && nanos >= min {
			break
		}
		if atomic.CompareAndSwapUint64(&l.min, min, nanos) {
			break
		}
	}

	for {
		max := atomic.LoadUint64(&l.max)
		if nanos <= max {
			break
		}
		if atomic.CompareAndSwapUint64(&l.max, max, nanos) {
			break
		}
	}
}

// Snapshot returns the aggregated latency stats.
func (l *LatencyStats) Snapshot() LatencySnapshot {
	count := atomic.LoadUint64(&l.count)
	if count == 0 {
		return LatencySnapshot{}
	}
	sum := atomic.LoadUint64(&l.sum)
	min := atomic.LoadUint64(&l.min)
	max := atomic.LoadUint64(&l.max)
	return LatencySnapshot{
		Count: count,
		Min:   time.Duration(min),
		Max:   time.Duration(max),
		Avg:   time.Duration(sum / count),
	}
}
