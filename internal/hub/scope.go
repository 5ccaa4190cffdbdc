package hub

import (
	"sync"
	"time"

	"github.com/faultline-hq/faultline-go/internal/protocol"
	"github.com/faultline-hq/faultline-go/internal/trace"
)

const defaultMaxBreadcrumbs = 100

// Scope holds the ambient state of one logical unit of isolation: the active
// span, tags, and the breadcrumb trail. All methods are safe for concurrent
// use.
type Scope struct {
	mu             sync.RWMutex
	span           *trace.Span
	tags           map[string]string
	breadcrumbs    []*protocol.Breadcrumb
	maxBreadcrumbs int
}

// NewScope creates an empty scope.
func NewScope() *Scope {
	return &Scope{
		tags:           make(map[string]string),
		maxBreadcrumbs: defaultMaxBreadcrumbs,
	}
}

// SetSpan makes the span the scope's active span. For a transaction, pass
// its root span (&tx.Span).
func (s *Scope) SetSpan(span *trace.Span) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.span = span
}

// Span returns the active span, or nil.
func (s *Scope) Span() *trace.Span {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.span
}

// Transaction resolves the transaction owning the active span: the active
// span itself when it is a transaction root, its containing transaction when
// it is a descendant, nil when there is no active span or it is an orphan.
// This accessor never mutates the active-span pointer.
func (s *Scope) Transaction() *trace.Transaction {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.span == nil {
		return nil
	}
	return s.span.Transaction()
}

// SetTag sets an ambient tag copied onto every captured event.
func (s *Scope) SetTag(key, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tags[key] = value
}

// RemoveTag deletes an ambient tag.
func (s *Scope) RemoveTag(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tags, key)
}

// SetMaxBreadcrumbs bounds the breadcrumb ring.
func (s *Scope) SetMaxBreadcrumbs(max int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if max > 0 {
		s.maxBreadcrumbs = max
	}
}

// AddBreadcrumb appends to the trail, evicting the oldest entry once the
// ring is full.
func (s *Scope) AddBreadcrumb(crumb *protocol.Breadcrumb) {
	if crumb == nil {
		return
	}
	if crumb.Timestamp.IsZero() {
		crumb.Timestamp = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.breadcrumbs = append(s.breadcrumbs, crumb)
	if len(s.breadcrumbs) > s.maxBreadcrumbs {
		s.breadcrumbs = s.breadcrumbs[1:]
	}
}

// ClearBreadcrumbs empties the trail.
func (s *Scope) ClearBreadcrumbs() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.breadcrumbs = nil
}

// Clone copies the scope by value: the child shares the active-span pointer
// but owns independent tag and breadcrumb storage, so mutating the clone
// never affects the original.
func (s *Scope) Clone() *Scope {
	s.mu.RLock()
	defer s.mu.RUnlock()

	clone := &Scope{
		span:           s.span,
		tags:           make(map[string]string, len(s.tags)),
		breadcrumbs:    append([]*protocol.Breadcrumb(nil), s.breadcrumbs...),
		maxBreadcrumbs: s.maxBreadcrumbs,
	}
	for k, v := range s.tags {
		clone.tags[k] = v
	}
	return clone
}

// ApplyToEvent decorates an outgoing event with the scope's ambient state.
// Event-local tags win over scope tags.
func (s *Scope) ApplyToEvent(event *protocol.Event) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.tags) > 0 {
		if event.Tags == nil {
			event.Tags = make(map[string]string, len(s.tags))
		}
		for k, v := range s.tags {
			if _, ok := event.Tags[k]; !ok {
				event.Tags[k] = v
			}
		}
	}

	if len(s.breadcrumbs) > 0 && event.Breadcrumbs == nil {
		event.Breadcrumbs = append([]*protocol.Breadcrumb(nil), s.breadcrumbs...)
	}

	// Link error events into the active trace.
	if s.span != nil && event.Type != protocol.EventTypeTransaction {
		if event.Contexts == nil {
			event.Contexts = make(map[string]map[string]any)
		}
		if _, ok := event.Contexts["trace"]; !ok {
			event.Contexts["trace"] = map[string]any{
				"trace_id": s.span.TraceID.String(),
				"span_id":  s.span.SpanID.String(),
			}
		}
	}
}
