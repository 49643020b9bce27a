package obs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"livetrade/internal/risk"
)

func TestMetricsCounters(t *testing.T) {
	m := NewMetrics()
	m.IncSessionsStarted()
	m.IncSessionsStarted()
	m.IncTrades()
	m.IncTicks()
	m.IncTickErrors()
	m.IncNotifyDrop()
	m.IncSessionsStopped()
	m.IncRiskRejection(risk.ReasonMaxQty)
	m.IncRiskRejection(risk.Reason(99))
	m.ObserveTick(2 * time.Millisecond)
	m.ObserveTick(4 * time.Millisecond)

	snap := m.Snapshot()
	assert.Equal(t, uint64(2), snap.Counters[SessionsStartedTotal])
	assert.Equal(t, uint64(1), snap.Counters[SessionsStoppedTotal])
	assert.Equal(t, uint64(1), snap.Counters[TradesTotal])
	assert.Equal(t, uint64(1), snap.Counters[TicksTotal])
	assert.Equal(t, uint64(1), snap.Counters[TickErrorsTotal])
	assert.Equal(t, uint64(1), snap.Counters[NotifyDropsTotal])
	assert.Equal(t, map[string]uint64{"max_qty": 1}, snap.RiskReasonCounts)
	assert.Equal(t, LatencySnapshot{Count: 2, Min: 2 * time.Millisecond, Max: 4 * time.Millisecond, Avg: 3 * time.Millisecond}, snap.TickLatency)
	assert.Equal(t, uint64(1), m.Counter(TradesTotal))
}

func TestNilSinks(t *testing.T) {
	var m *Metrics
	m.IncTrades()
	m.ObserveTick(time.Second)
	assert.Equal(t, uint64(0), m.Counter(TradesTotal))

	var tr *Tracer
	ctx, span := tr.Start(context.Background(), "noop")
	span.End(nil)
	assert.Equal(t, uint64(0), TraceID(ctx))
	assert.Nil(t, tr.Records())
}

func TestTracerRecordsSpans(t *testing.T) {
	tr := NewTracer(2)

	ctx, span := tr.Start(context.Background(), "start_live_trading_session")
	id := TraceID(ctx)
	require.NotZero(t, id)

	_, child := tr.Start(ctx, "child")
	child.End(errors.New("boom"))
	span.End(nil)
	span.End(nil)

	_, third := tr.Start(context.Background(), "stop_live_trading_session")
	third.End(nil)

	records := tr.Records()
	require.Len(t, records, 2)
	assert.Equal(t, "start_live_trading_session", records[0].Name)
	assert.Equal(t, id, records[0].TraceID)
	assert.Equal(t, "stop_live_trading_session", records[1].Name)
	assert.NotEqual(t, id, records[1].TraceID)
	assert.Equal(t, uint64(1), tr.Latency("child").Count)
	assert.Equal(t, uint64(0), tr.Latency("missing").Count)
}

func TestTraceGenerator(t *testing.T) {
	g := NewTraceGenerator(10)
	assert.Equal(t, uint64(11), g.Next())
	assert.Equal(t, uint64(12), g.Next())

	var nilGen *TraceGenerator
	assert.Equal(t, uint64(0), nilGen.Next())
}
