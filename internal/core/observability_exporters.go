package core

import (
	"context"
	"encoding/json"
	"expvar"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"
)

var expvarSeq uint64

// ExpvarMetricsRecorder publishes per-operation call counts and latency totals
// through expvar for deployments that scrape /debug/vars.
type ExpvarMetricsRecorder struct {
	name string
	mu   sync.Mutex
	ops  map[string]*operationStats
}

type operationStats struct {
	Calls      int64   `json:"calls"`
	Failures   int64   `json:"failures"`
	TotalMS    float64 `json:"total_ms"`
	MaxMS      float64 `json:"max_ms"`
	LastResult string  `json:"last_result"`
}

// ExpvarMetricsSnapshot is a read-only copy of the recorded metrics.
type ExpvarMetricsSnapshot struct {
	Operations map[string]operationStats `json:"operations"`
	RecordedAt time.Time                 `json:"recorded_at"`
}

// NewExpvarMetricsRecorder publishes a recorder under name, generating a
// unique name when empty. expvar names are process-global.
func NewExpvarMetricsRecorder(name string) *ExpvarMetricsRecorder {
	if name == "" {
		name = fmt.Sprintf("itemcore_mutations_%d", atomic.AddUint64(&expvarSeq, 1))
	}
	rec := &ExpvarMetricsRecorder{name: name, ops: make(map[string]*operationStats)}
	expvar.Publish(name, expvar.Func(func() any { return rec.Snapshot() }))
	return rec
}

// Name returns the expvar export name.
func (r *ExpvarMetricsRecorder) Name() string {
	return r.name
}

// Snapshot copies the current counters.
func (r *ExpvarMetricsRecorder) Snapshot() ExpvarMetricsSnapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]operationStats, len(r.ops))
	for op, stats := range r.ops {
		out[op] = *stats
	}
	return ExpvarMetricsSnapshot{Operations: out, RecordedAt: time.Now().UTC()}
}

// Observe implements MetricsRecorder.
func (r *ExpvarMetricsRecorder) Observe(_ context.Context, operation string, success bool, duration time.Duration) {
	if operation == "" {
		return
	}
	ms := float64(duration) / float64(time.Millisecond)

	r.mu.Lock()
	defer r.mu.Unlock()
	stats, ok := r.ops[operation]
	if !ok {
		stats = &operationStats{}
		r.ops[operation] = stats
	}
	stats.Calls++
	stats.TotalMS += ms
	if ms > stats.MaxMS {
		stats.MaxMS = ms
	}
	stats.LastResult = "success"
	if !success {
		stats.Failures++
		stats.LastResult = "error"
	}
}

// JSONTraceEntry is one span written by JSONTraceTracer.
type JSONTraceEntry struct {
	Operation  string            `json:"operation"`
	Attributes map[string]string `json:"attributes,omitempty"`
	Status     string            `json:"status"`
	DurationMS float64           `json:"duration_ms"`
	Error      string            `json:"error,omitempty"`
	StartedAt  time.Time         `json:"started_at"`
	EndedAt    time.Time         `json:"ended_at"`
}

// JSONTraceTracer writes spans as JSON lines and keeps them for inspection.
type JSONTraceTracer struct {
	mu      sync.Mutex
	entries []JSONTraceEntry
	enc     *json.Encoder
}

// NewJSONTracer constructs a tracer writing to w; a nil writer only retains spans.
func NewJSONTracer(w io.Writer) *JSONTraceTracer {
	t := &JSONTraceTracer{}
	if w != nil {
		t.enc = json.NewEncoder(w)
	}
	return t
}

// Entries returns a copy of the recorded spans.
func (t *JSONTraceTracer) Entries() []JSONTraceEntry {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]JSONTraceEntry(nil), t.entries...)
}

// Start implements Tracer.
func (t *JSONTraceTracer) Start(ctx context.Context, operation string, attrs ...SpanAttribute) (context.Context, TraceSpan) {
	span := &jsonTraceSpan{tracer: t, operation: operation, started: time.Now().UTC()}
	if len(attrs) > 0 {
		span.attrs = make(map[string]string, len(attrs))
		for _, a := range attrs {
			span.attrs[a.Key] = a.Value
		}
	}
	return ctx, span
}

type jsonTraceSpan struct {
	tracer    *JSONTraceTracer
	operation string
	attrs     map[string]string
	started   time.Time
	ended     atomic.Bool
}

func (s *jsonTraceSpan) End(err error) {
	if !s.ended.CompareAndSwap(false, true) {
		return
	}
	ended := time.Now().UTC()
	entry := JSONTraceEntry{
		Operation:  s.operation,
		Attributes: s.attrs,
		Status:     "success",
		DurationMS: float64(ended.Sub(s.started)) / float64(time.Millisecond),
		StartedAt:  s.started,
		EndedAt:    ended,
	}
	if err != nil {
		entry.Status = "error"
		entry.Error = err.Error()
	}

	s.tracer.mu.Lock()
	defer s.tracer.mu.Unlock()
	s.tracer.entries = append(s.tracer.entries, entry)
	if s.tracer.enc != nil {
		_ = s.tracer.enc.Encode(entry)
	}
}
