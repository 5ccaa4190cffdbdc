package hub

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/faultline-hq/faultline-go/internal/client"
	"github.com/faultline-hq/faultline-go/internal/protocol"
	"github.com/faultline-hq/faultline-go/internal/shared/id"
	"github.com/faultline-hq/faultline-go/internal/trace"
)

// ErrSpanName is returned when a caller passes a name to StartSpan. Names
// are a transaction-only concept.
var ErrSpanName = errors.New("spans cannot be named, only transactions can")

// layer is one (client, scope) frame of the hub stack.
type layer struct {
	client *client.Client
	scope  *Scope
}

// Hub is the per-execution-context stack resolving the current client and
// scope.
type Hub struct {
	mu    sync.RWMutex
	stack []*layer
}

var currentHub = New(nil, NewScope())

// CurrentHub returns the process-wide fallback hub.
func CurrentHub() *Hub {
	return currentHub
}

// New creates a hub with a single layer.
func New(c *client.Client, s *Scope) *Hub {
	if s == nil {
		s = NewScope()
	}
	if c != nil {
		s.SetMaxBreadcrumbs(c.Options().MaxBreadcrumbs)
	}
	return &Hub{stack: []*layer{{client: c, scope: s}}}
}

func (h *Hub) top() *layer {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.stack[len(h.stack)-1]
}

// Client returns the current client, or nil if none is bound.
func (h *Hub) Client() *client.Client {
	return h.top().client
}

// Scope returns the current scope.
func (h *Hub) Scope() *Scope {
	return h.top().scope
}

// BindClient replaces the client of the current layer.
func (h *Hub) BindClient(c *client.Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	top := h.stack[len(h.stack)-1]
	top.client = c
	if c != nil {
		top.scope.SetMaxBreadcrumbs(c.Options().MaxBreadcrumbs)
	}
}

// PushScope pushes a new layer carrying the same client and a copy of the
// current scope, and returns the copy.
func (h *Hub) PushScope() *Scope {
	h.mu.Lock()
	defer h.mu.Unlock()

	top := h.stack[len(h.stack)-1]
	scope := top.scope.Clone()
	h.stack = append(h.stack, &layer{client: top.client, scope: scope})
	return scope
}

// PopScope removes the top layer. The base layer is never popped.
func (h *Hub) PopScope() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.stack) > 1 {
		h.stack = h.stack[:len(h.stack)-1]
	}
}

// WithScope runs f inside a pushed scope that is popped afterwards, restoring
// the previous ambient state even if f panics.
func (h *Hub) WithScope(f func(scope *Scope)) {
	scope := h.PushScope()
	defer h.PopScope()
	f(scope)
}

// Clone returns an independent hub for a new execution context: same client,
// copied scope. The fork must happen in the parent before the goroutine
// starts.
func (h *Hub) Clone() *Hub {
	top := h.top()
	return New(top.client, top.scope.Clone())
}

// StartTransaction starts a transaction and makes it the scope's active
// span. Passing a prebuilt transaction returns it unchanged, so callers can
// preconfigure sampling before starting.
func (h *Hub) StartTransaction(existing *trace.Transaction, opts trace.TransactionOptions) *trace.Transaction {
	if existing != nil {
		return existing
	}

	top := h.top()
	if c := top.client; c != nil {
		options := c.Options()
		if opts.Sampler == nil {
			opts.Sampler = options.TracesSampler
		}
		if opts.SampleRate == 0 {
			opts.SampleRate = options.TracesSampleRate
		}
		if opts.MaxSpans == 0 {
			opts.MaxSpans = options.MaxSpans
		}
		if opts.Sink == nil {
			opts.Sink = &scopedSink{client: c, scope: top.scope}
		}
	}

	tx := trace.NewTransaction(opts)
	top.scope.SetSpan(&tx.Span)
	return tx
}

// StartSpan starts a span under the scope's active span, or an orphan span
// with a fresh trace when there is none, and makes it the active span.
// Supplying a name is an invalid-argument error: only transactions have
// names.
func (h *Hub) StartSpan(op string, opts trace.SpanOptions) (*trace.Span, error) {
	if opts.Name != "" {
		return nil, ErrSpanName
	}

	var spanOpts []trace.SpanOption
	if opts.Description != "" {
		spanOpts = append(spanOpts, trace.WithDescription(opts.Description))
	}
	if !opts.StartTime.IsZero() {
		spanOpts = append(spanOpts, trace.WithStartTime(opts.StartTime))
	}

	scope := h.Scope()
	var span *trace.Span
	if parent := scope.Span(); parent != nil {
		span = parent.StartChild(op, spanOpts...)
	} else {
		span = trace.NewSpan(op, spanOpts...)
	}
	scope.SetSpan(span)
	return span, nil
}

// CaptureEvent captures through the current client, decorated by the current
// scope. Without a client this is a no-op.
func (h *Hub) CaptureEvent(event *protocol.Event) *id.EventID {
	top := h.top()
	if top.client == nil {
		return nil
	}
	return top.client.CaptureEvent(event, top.scope)
}

// CaptureMessage captures a message event through the current client.
func (h *Hub) CaptureMessage(message string) *id.EventID {
	top := h.top()
	if top.client == nil {
		return nil
	}
	return top.client.CaptureMessage(message, top.scope)
}

// CaptureException captures an error through the current client.
func (h *Hub) CaptureException(err error) *id.EventID {
	top := h.top()
	if top.client == nil {
		return nil
	}
	return top.client.CaptureException(err, top.scope)
}

// AddBreadcrumb records a breadcrumb on the current scope.
func (h *Hub) AddBreadcrumb(crumb *protocol.Breadcrumb) {
	h.Scope().AddBreadcrumb(crumb)
}

// Flush drains the current client's transport, bounded by timeout.
func (h *Hub) Flush(timeout time.Duration) bool {
	if c := h.Client(); c != nil {
		return c.Flush(timeout)
	}
	return true
}

// scopedSink routes a finished transaction's event through the client,
// decorated by the scope that was current when the transaction started.
type scopedSink struct {
	client *client.Client
	scope  *Scope
}

func (s *scopedSink) CaptureEvent(event *protocol.Event) {
	s.client.CaptureEvent(event, s.scope)
}

type hubContextKey struct{}

// SetOnContext attaches the hub to a context.
func SetOnContext(ctx context.Context, h *Hub) context.Context {
	return context.WithValue(ctx, hubContextKey{}, h)
}

// FromContext returns the hub attached to the context, falling back to
// CurrentHub.
func FromContext(ctx context.Context) *Hub {
	if h, ok := ctx.Value(hubContextKey{}).(*Hub); ok {
		return h
	}
	return CurrentHub()
}

// HasHubOnContext reports whether the context carries its own hub.
func HasHubOnContext(ctx context.Context) bool {
	_, ok := ctx.Value(hubContextKey{}).(*Hub)
	return ok
}
