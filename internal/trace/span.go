package trace

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/faultline-hq/faultline-go/internal/protocol"
	"github.com/faultline-hq/faultline-go/internal/shared/id"
)

// Sampled is the tri-state sampling decision carried by spans.
type Sampled int8

const (
	SampledFalse     Sampled = -1
	SampledUndefined Sampled = 0
	SampledTrue      Sampled = 1
)

// Bool collapses the tri-state; undefined counts as false.
func (s Sampled) Bool() bool {
	return s == SampledTrue
}

// Status describes how a span ended, in its wire form.
type Status string

const (
	StatusOK               Status = "ok"
	StatusCancelled        Status = "cancelled"
	StatusInternalError    Status = "internal_error"
	StatusDeadlineExceeded Status = "deadline_exceeded"
	StatusUnknown          Status = "unknown"
)

// Span is a single timed unit of work within a trace. A span is open until
// Finish is called and rejects mutation afterwards.
type Span struct {
	TraceID      id.TraceID
	SpanID       id.SpanID
	ParentSpanID id.SpanID
	Op           string
	Description  string
	StartTime    time.Time
	EndTime      time.Time
	Status       Status
	Sampled      Sampled

	mu          sync.Mutex
	tags        map[string]string
	data        map[string]any
	transaction *Transaction // containing transaction; nil for orphans
}

// SpanOption mutates a span at construction time.
type SpanOption func(*Span)

// SpanOptions are the caller-supplied fields for starting a span. Name is
// carried only so starters can reject it: spans are anonymous by contract.
type SpanOptions struct {
	Name        string
	Description string
	StartTime   time.Time
}

// WithDescription sets the human-readable description.
func WithDescription(description string) SpanOption {
	return func(s *Span) {
		s.Description = description
	}
}

// WithStartTime overrides the start timestamp.
func WithStartTime(t time.Time) SpanOption {
	return func(s *Span) {
		s.StartTime = t
	}
}

// NewSpan creates an orphan span: a fresh trace with no containing
// transaction. Orphan spans can be timed and finished but are never
// serialized, since only transactions produce events.
func NewSpan(op string, opts ...SpanOption) *Span {
	s := &Span{
		TraceID:   id.NewTraceID(),
		SpanID:    id.NewSpanID(),
		Op:        op,
		StartTime: time.Now(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// StartChild creates a child span sharing the parent's trace. The sampling
// decision comes from the containing transaction when one is reachable;
// otherwise the child inherits the parent's own decision. A child started
// after the transaction's span cap is still fully usable, just unrecorded.
func (s *Span) StartChild(op string, opts ...SpanOption) *Span {
	child := &Span{
		TraceID:      s.TraceID,
		SpanID:       id.NewSpanID(),
		ParentSpanID: s.SpanID,
		Op:           op,
		StartTime:    time.Now(),
		Sampled:      s.Sampled,
		transaction:  s.transaction,
	}
	for _, opt := range opts {
		opt(child)
	}
	if tx := s.transaction; tx != nil {
		child.Sampled = tx.Sampled
		tx.recordChild(child)
	}
	return child
}

// Finish closes the span. Calling Finish again is a no-op.
func (s *Span) Finish() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.finishLocked()
}

func (s *Span) finishLocked() {
	if !s.EndTime.IsZero() {
		return
	}
	s.EndTime = time.Now()
	if s.EndTime.Before(s.StartTime) {
		s.EndTime = s.StartTime
	}
}

// IsFinished reports whether the span has ended.
func (s *Span) IsFinished() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.EndTime.IsZero()
}

// SetTag attaches a tag. No-op once the span is finished.
func (s *Span) SetTag(key, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.EndTime.IsZero() {
		return
	}
	if s.tags == nil {
		s.tags = make(map[string]string)
	}
	s.tags[key] = value
}

// SetData attaches arbitrary data. No-op once the span is finished.
func (s *Span) SetData(key string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.EndTime.IsZero() {
		return
	}
	if s.data == nil {
		s.data = make(map[string]any)
	}
	s.data[key] = value
}

// SetStatus records how the span ended. No-op once finished.
func (s *Span) SetStatus(status Status) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.EndTime.IsZero() {
		return
	}
	s.Status = status
}

// Transaction returns the containing transaction, the transaction itself when
// the span is a transaction's root, or nil for orphans.
func (s *Span) Transaction() *Transaction {
	return s.transaction
}

// ToTraceparent renders the span's position for propagation:
// "<trace_id>-<span_id>[-<0|1>]". The sampled flag is omitted while the
// decision is undefined.
func (s *Span) ToTraceparent() string {
	switch s.Sampled {
	case SampledTrue:
		return fmt.Sprintf("%s-%s-1", s.TraceID, s.SpanID)
	case SampledFalse:
		return fmt.Sprintf("%s-%s-0", s.TraceID, s.SpanID)
	default:
		return fmt.Sprintf("%s-%s", s.TraceID, s.SpanID)
	}
}

// ParseTraceparent parses an incoming propagation header into its parts.
func ParseTraceparent(header string) (id.TraceID, id.SpanID, Sampled, error) {
	parts := strings.Split(strings.TrimSpace(header), "-")
	if len(parts) != 2 && len(parts) != 3 {
		return id.TraceID{}, id.SpanID{}, SampledUndefined,
			fmt.Errorf("malformed traceparent %q", header)
	}

	traceID, err := id.ParseTraceID(parts[0])
	if err != nil {
		return id.TraceID{}, id.SpanID{}, SampledUndefined, err
	}
	spanID, err := id.ParseSpanID(parts[1])
	if err != nil {
		return id.TraceID{}, id.SpanID{}, SampledUndefined, err
	}

	sampled := SampledUndefined
	if len(parts) == 3 {
		switch parts[2] {
		case "1":
			sampled = SampledTrue
		case "0":
			sampled = SampledFalse
		default:
			return id.TraceID{}, id.SpanID{}, SampledUndefined,
				fmt.Errorf("malformed traceparent sampled flag %q", parts[2])
		}
	}
	return traceID, spanID, sampled, nil
}

// payload renders the span for inclusion in a transaction event, or nil if
// the span never finished.
func (s *Span) payload() *protocol.SpanPayload {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.EndTime.IsZero() {
		return nil
	}

	p := &protocol.SpanPayload{
		TraceID:     s.TraceID.String(),
		SpanID:      s.SpanID.String(),
		Op:          s.Op,
		Description: s.Description,
		Status:      string(s.Status),
		StartTime:   s.StartTime,
		EndTime:     s.EndTime,
	}
	if !s.ParentSpanID.IsZero() {
		p.ParentSpanID = s.ParentSpanID.String()
	}
	if len(s.tags) > 0 {
		p.Tags = make(map[string]string, len(s.tags))
		for k, v := range s.tags {
			p.Tags[k] = v
		}
	}
	if len(s.data) > 0 {
		p.Data = make(map[string]any, len(s.data))
		for k, v := range s.data {
			p.Data[k] = v
		}
	}
	return p
}
