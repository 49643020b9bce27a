package obs

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// TraceGenerator creates monotonically increasing trace IDs.
type TraceGenerator struct {
	next uint64
}

// NewTraceGenerator returns a generator seeded with the given value.
func NewTraceGenerator(seed uint64) *TraceGenerator {
	if seed == 0 {
		seed = uint64(time.Now().UTC().UnixNano())
	}
	return &TraceGenerator{next: seed}
}

// Next returns the next trace ID.
func (g *TraceGenerator) Next() uint64 {
	if g == nil {
		return 0
	}
	return atomic.AddUint64(&g.next, 1)
}

type traceKey struct{}

// TraceID returns the trace ID carried by ctx, or zero.
func TraceID(ctx context.Context) uint64 {
	id, _ := ctx.Value(traceKey{}).(uint64)
	return id
}

// Span measures one traced operation. End must be called exactly once.
type Span interface {
	End(err error)
}

// SpanRecord is a finished span kept by the Tracer.
type SpanRecord struct {
	TraceID  uint64        `json:"trace_id"`
	Name     string        `json:"name"`
	Start    time.Time     `json:"start"`
	Duration time.Duration `json:"duration"`
	Err      string        `json:"error,omitempty"`
}

// Tracer records spans in a bounded in-memory ring and aggregates their
// latency per name. A nil *Tracer is a valid no-op sink.
type Tracer struct {
	gen      *TraceGenerator
	capacity int

	mu      sync.Mutex
	records []SpanRecord
	next    int
	latency map[string]*LatencyStats
}

// NewTracer keeps at most capacity finished spans.
func NewTracer(capacity int) *Tracer {
	if capacity <= 0 {
		capacity = 1
	}
	return &Tracer{
		gen:      NewTraceGenerator(0),
		capacity: capacity,
		latency:  make(map[string]*LatencyStats),
	}
}

// Start opens a span. A trace ID already in ctx is reused.
func (t *Tracer) Start(ctx context.Context, name string) (context.Context, Span) {
	if t == nil {
		return ctx, noopSpan{}
	}
	id := TraceID(ctx)
	if id == 0 {
		id = t.gen.Next()
		ctx = context.WithValue(ctx, traceKey{}, id)
	}
	return ctx, &span{tracer: t, traceID: id, name: name, start: time.Now()}
}

// Records returns finished spans, oldest first.
func (t *Tracer) Records() []SpanRecord {
	if t == nil {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]SpanRecord, 0, len(t.records))
	if len(t.records) == t.capacity {
		out = append(out, t.records[t.next:]...)
		out = append(out, t.records[:t.next]...)
		return out
	}
	return append(out, t.records...)
}

// Latency returns the aggregated duration for spans with name.
func (t *Tracer) Latency(name string) LatencySnapshot {
	if t == nil {
		return LatencySnapshot{}
	}
	t.mu.Lock()
	stats, ok := t.latency[name]
	t.mu.Unlock()
	if !ok {
		return LatencySnapshot{}
	}
	return stats.Snapshot()
}

func (t *Tracer) finish(rec SpanRecord) {
	t.mu.Lock()
	defer t.mu.Unlock()
	stats, ok := t.latency[rec.Name]
	if !ok {
		stats = &LatencyStats{}
		t.latency[rec.Name] = stats
	}
	stats.Observe(rec.Duration)

	if len(t.records) < t.capacity {
		t.records = append(t.records, rec)
		return
	}
	t.records[t.next] = rec
	t.next = (t.next + 1) % t.capacity
}

type span struct {
	tracer  *Tracer
	traceID uint64
	name    string
	start   time.Time
	ended   uint32
}

func (s *span) End(err error) {
	if !atomic.CompareAndSwapUint32(&s.ended, 0, 1) {
		return
	}
	rec := SpanRecord{
		TraceID:  s.traceID,
		Name:     s.name,
		Start:    s.start,
		Duration: time.Since(s.start),
	}
	if err != nil {
		rec.Err = err.Error()
	}
	s.tracer.finish(rec)
}

type noopSpan struct{}

func (noopSpan) End(error) {}
