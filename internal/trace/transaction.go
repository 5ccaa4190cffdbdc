package trace

import (
	"math/rand"
	"time"

	"github.com/faultline-hq/faultline-go/internal/protocol"
	"github.com/faultline-hq/faultline-go/internal/shared/id"
)

// DefaultName is used when a transaction is started without a name.
const DefaultName = "<unlabeled transaction>"

const defaultMaxSpans = 1000

// EventSink receives the event a sampled transaction produces on finish.
type EventSink interface {
	CaptureEvent(event *protocol.Event)
}

// SamplingContext is handed to a Sampler when a transaction starts.
type SamplingContext struct {
	Transaction   *Transaction
	ParentSampled Sampled
}

// Sampler returns the sample rate (0..1) for a starting transaction.
type Sampler func(ctx SamplingContext) float64

// TransactionOptions configures a new transaction.
type TransactionOptions struct {
	Name        string
	Op          string
	Description string
	Source      string
	StartTime   time.Time

	// Trace continuation from an upstream caller.
	TraceID       id.TraceID
	ParentSpanID  id.SpanID
	ParentSampled Sampled

	// Sampling inputs: an explicit decision wins, then the sampler, then the
	// parent's decision, then the rate.
	Sampled    Sampled
	Sampler    Sampler
	SampleRate float64

	MaxSpans int
	Sink     EventSink

	// Rand overrides the sampling coin flip in tests.
	Rand func() float64
}

// ContinueFromTrace fills the continuation fields from an incoming
// traceparent header. Malformed headers are reported and leave the options
// untouched, starting a fresh trace.
func (o *TransactionOptions) ContinueFromTrace(header string) error {
	traceID, spanID, sampled, err := ParseTraceparent(header)
	if err != nil {
		return err
	}
	o.TraceID = traceID
	o.ParentSpanID = spanID
	o.ParentSampled = sampled
	return nil
}

// Transaction is the root span of a trace. It carries the name, the sampling
// decision for the whole tree, and the bounded list of children to serialize.
type Transaction struct {
	Span

	Name          string
	Source        string
	ParentSampled Sampled

	contexts     map[string]map[string]any
	measurements map[string]float64
	recorded     []*Span
	maxSpans     int
	sink         EventSink
}

// NewTransaction constructs a transaction and fixes its sampling decision.
func NewTransaction(opts TransactionOptions) *Transaction {
	t := &Transaction{
		Name:          opts.Name,
		Source:        opts.Source,
		ParentSampled: opts.ParentSampled,
		maxSpans:      opts.MaxSpans,
		sink:          opts.Sink,
	}
	if t.Name == "" {
		t.Name = DefaultName
	}
	if t.Source == "" {
		t.Source = "custom"
	}
	if t.maxSpans <= 0 {
		t.maxSpans = defaultMaxSpans
	}

	t.Span = Span{
		TraceID:      opts.TraceID,
		SpanID:       id.NewSpanID(),
		ParentSpanID: opts.ParentSpanID,
		Op:           opts.Op,
		Description:  opts.Description,
		StartTime:    opts.StartTime,
	}
	if t.TraceID.IsZero() {
		t.TraceID = id.NewTraceID()
	}
	if t.StartTime.IsZero() {
		t.StartTime = time.Now()
	}
	t.Span.transaction = t

	t.Sampled = decideSampling(t, opts)
	return t
}

// decideSampling fixes the decision once, at construction.
func decideSampling(t *Transaction, opts TransactionOptions) Sampled {
	if opts.Sampled != SampledUndefined {
		return opts.Sampled
	}

	var rate float64
	switch {
	case opts.Sampler != nil:
		rate = opts.Sampler(SamplingContext{
			Transaction:   t,
			ParentSampled: opts.ParentSampled,
		})
	case opts.ParentSampled != SampledUndefined:
		return opts.ParentSampled
	default:
		rate = opts.SampleRate
	}

	if rate <= 0 {
		return SampledFalse
	}
	if rate >= 1 {
		return SampledTrue
	}

	coin := rand.Float64
	if opts.Rand != nil {
		coin = opts.Rand
	}
	if coin() < rate {
		return SampledTrue
	}
	return SampledFalse
}

// SetName renames the transaction. No-op once finished.
func (t *Transaction) SetName(name string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.EndTime.IsZero() {
		return
	}
	t.Name = name
}

// SetMeasurement records a numeric measurement on the transaction.
func (t *Transaction) SetMeasurement(name string, value float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.EndTime.IsZero() {
		return
	}
	if t.measurements == nil {
		t.measurements = make(map[string]float64)
	}
	t.measurements[name] = value
}

// SetContext attaches a named context object to the eventual event.
func (t *Transaction) SetContext(key string, value map[string]any) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.EndTime.IsZero() {
		return
	}
	if t.contexts == nil {
		t.contexts = make(map[string]map[string]any)
	}
	t.contexts[key] = value
}

// recordChild appends a child to the serialized list unless the cap is
// reached. The transaction itself counts as the first of maxSpans units, so
// the list holds at most maxSpans-1 children.
func (t *Transaction) recordChild(child *Span) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.recorded) < t.maxSpans-1 {
		t.recorded = append(t.recorded, child)
	}
}

// RecordedSpans returns the children that will be serialized, in creation
// order.
func (t *Transaction) RecordedSpans() []*Span {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]*Span(nil), t.recorded...)
}

// Finish closes the transaction and, if it was sampled, emits the event to
// the sink. Finishing an unsampled transaction only closes the span.
// Children that never finished are omitted from the payload.
func (t *Transaction) Finish() {
	t.mu.Lock()
	if !t.EndTime.IsZero() {
		t.mu.Unlock()
		return
	}
	t.finishLocked()

	if t.Sampled != SampledTrue || t.sink == nil {
		t.mu.Unlock()
		return
	}

	event := &protocol.Event{
		Type:            protocol.EventTypeTransaction,
		Transaction:     t.Name,
		TransactionInfo: &protocol.TransactionInfo{Source: t.Source},
		StartTimestamp:  t.StartTime,
		Timestamp:       t.EndTime,
		Contexts:        t.eventContextsLocked(),
	}
	if len(t.tags) > 0 {
		event.Tags = make(map[string]string, len(t.tags))
		for k, v := range t.tags {
			event.Tags[k] = v
		}
	}
	if len(t.measurements) > 0 {
		event.Measurements = make(map[string]float64, len(t.measurements))
		for k, v := range t.measurements {
			event.Measurements[k] = v
		}
	}
	recorded := append([]*Span(nil), t.recorded...)
	sink := t.sink
	t.mu.Unlock()

	for _, child := range recorded {
		if payload := child.payload(); payload != nil {
			event.Spans = append(event.Spans, payload)
		}
	}
	sink.CaptureEvent(event)
}

// eventContextsLocked merges the user-set contexts with the mandatory trace
// context. Callers must hold t.mu.
func (t *Transaction) eventContextsLocked() map[string]map[string]any {
	contexts := make(map[string]map[string]any, len(t.contexts)+1)
	for k, v := range t.contexts {
		contexts[k] = v
	}

	traceContext := map[string]any{
		"trace_id": t.TraceID.String(),
		"span_id":  t.SpanID.String(),
	}
	if t.Op != "" {
		traceContext["op"] = t.Op
	}
	if t.Status != "" {
		traceContext["status"] = string(t.Status)
	}
	if !t.ParentSpanID.IsZero() {
		traceContext["parent_span_id"] = t.ParentSpanID.String()
	}
	contexts["trace"] = traceContext
	return contexts
}
