package hub

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/faultline-hq/faultline-go/internal/client"
	"github.com/faultline-hq/faultline-go/internal/protocol"
	"github.com/faultline-hq/faultline-go/internal/trace"
)

type transportRecorder struct {
	mu        sync.Mutex
	envelopes []*protocol.Envelope
}

func (r *transportRecorder) CaptureEnvelope(env *protocol.Envelope) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.envelopes = append(r.envelopes, env)
}

func (r *transportRecorder) Flush(time.Duration) bool { return true }
func (r *transportRecorder) Close(time.Duration) bool { return true }

func (r *transportRecorder) captured() []*protocol.Envelope {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*protocol.Envelope(nil), r.envelopes...)
}

func newTestHub(t *testing.T, options client.Options) (*Hub, *transportRecorder) {
	t.Helper()

	recorder := &transportRecorder{}
	options.DSN = "https://key@collector.example.com/1"
	options.Transport = recorder

	c, err := client.New(options)
	require.NoError(t, err)
	return New(c, NewScope()), recorder
}

func TestStartTransactionSetsScope(t *testing.T) {
	h, _ := newTestHub(t, client.Options{TracesSampleRate: 1})

	tx := h.StartTransaction(nil, trace.TransactionOptions{Name: "checkout", Op: "http.server"})

	require.NotNil(t, tx)
	assert.Equal(t, "checkout", tx.Name)
	assert.Equal(t, trace.SampledTrue, tx.Sampled)
	assert.Same(t, tx, h.Scope().Transaction())
}

func TestStartTransactionPassthrough(t *testing.T) {
	h, _ := newTestHub(t, client.Options{TracesSampleRate: 1})

	preexisting := trace.NewTransaction(trace.TransactionOptions{
		Name:    "/interactions/other-dogs/new-dog",
		Op:      "greeting.sniff",
		Sampled: trace.SampledFalse,
	})
	result := h.StartTransaction(preexisting, trace.TransactionOptions{Name: "ignored"})

	// The exact instance comes back unchanged, sampling decision included.
	assert.Same(t, preexisting, result)
	assert.Equal(t, "/interactions/other-dogs/new-dog", result.Name)
	assert.Equal(t, trace.SampledFalse, result.Sampled)
}

func TestTransactionFinishEmitsThroughClient(t *testing.T) {
	h, recorder := newTestHub(t, client.Options{TracesSampleRate: 1})

	tx := h.StartTransaction(nil, trace.TransactionOptions{Name: "emit"})
	tx.StartChild("step").Finish()
	tx.Finish()

	envelopes := recorder.captured()
	require.Len(t, envelopes, 1)
	require.Len(t, envelopes[0].Items, 1)
	assert.Equal(t, "transaction", envelopes[0].Items[0].Header.Type)
	assert.Contains(t, string(envelopes[0].Items[0].Payload), `"transaction":"emit"`)
}

func TestUnsampledTransactionFinishEmitsNothing(t *testing.T) {
	h, recorder := newTestHub(t, client.Options{TracesSampleRate: 0})

	tx := h.StartTransaction(nil, trace.TransactionOptions{Name: "silent"})
	tx.Finish()

	assert.Empty(t, recorder.captured())
}

func TestStartSpanRejectsName(t *testing.T) {
	h, recorder := newTestHub(t, client.Options{TracesSampleRate: 1})

	span, err := h.StartSpan("foo", trace.SpanOptions{Name: "not allowed"})

	require.ErrorIs(t, err, ErrSpanName)
	assert.Nil(t, span)
	assert.Empty(t, recorder.captured())
	// Hub state is untouched by the failed call.
	assert.Nil(t, h.Scope().Span())
}

func TestStartSpanUnderActiveTransaction(t *testing.T) {
	h, _ := newTestHub(t, client.Options{TracesSampleRate: 1})

	tx := h.StartTransaction(nil, trace.TransactionOptions{Name: "parented"})
	span, err := h.StartSpan("db.query", trace.SpanOptions{Description: "SELECT 1"})
	require.NoError(t, err)

	assert.Equal(t, tx.TraceID, span.TraceID)
	assert.Equal(t, tx.Span.SpanID, span.ParentSpanID)
	// Legacy behavior: the new span becomes the active span.
	assert.Same(t, span, h.Scope().Span())
	assert.Same(t, tx, h.Scope().Transaction())
}

func TestStartSpanWithoutParentIsOrphan(t *testing.T) {
	h, _ := newTestHub(t, client.Options{TracesSampleRate: 1})

	span, err := h.StartSpan("lonely", trace.SpanOptions{})
	require.NoError(t, err)

	assert.Nil(t, span.Transaction())
	assert.Nil(t, h.Scope().Transaction())
	assert.Same(t, span, h.Scope().Span())
}

func TestCaptureMessageAppliesScope(t *testing.T) {
	h, recorder := newTestHub(t, client.Options{})
	h.Scope().SetTag("region", "eu")

	eventID := h.CaptureMessage("hi")
	require.NotNil(t, eventID)

	envelopes := recorder.captured()
	require.Len(t, envelopes, 1)
	assert.Contains(t, string(envelopes[0].Items[0].Payload), `"region":"eu"`)
}

func TestHubWithoutClientNoops(t *testing.T) {
	h := New(nil, NewScope())

	assert.Nil(t, h.CaptureMessage("void"))
	assert.True(t, h.Flush(time.Second))

	tx := h.StartTransaction(nil, trace.TransactionOptions{Name: "clientless"})
	require.NotNil(t, tx)
	tx.Finish()
}

func TestPushPopScope(t *testing.T) {
	h, _ := newTestHub(t, client.Options{})
	h.Scope().SetTag("base", "yes")

	inner := h.PushScope()
	inner.SetTag("inner", "yes")
	assert.Same(t, inner, h.Scope())
	h.PopScope()

	event := &protocol.Event{}
	h.Scope().ApplyToEvent(event)
	assert.Equal(t, "yes", event.Tags["base"])
	assert.NotContains(t, event.Tags, "inner")

	// The base layer survives excess pops.
	h.PopScope()
	h.PopScope()
	assert.NotNil(t, h.Scope())
}

func TestWithScopeRestores(t *testing.T) {
	h, _ := newTestHub(t, client.Options{})
	outer := h.Scope()

	h.WithScope(func(scope *Scope) {
		scope.SetSpan(trace.NewSpan("temp"))
		assert.Same(t, scope, h.Scope())
	})

	assert.Same(t, outer, h.Scope())
	assert.Nil(t, h.Scope().Span())
}

func TestCloneForksStack(t *testing.T) {
	h, _ := newTestHub(t, client.Options{TracesSampleRate: 1})
	tx := h.StartTransaction(nil, trace.TransactionOptions{Name: "parent"})

	child := h.Clone()

	// Fork sees the parent's active span and client.
	assert.Same(t, h.Client(), child.Client())
	assert.Same(t, tx, child.Scope().Transaction())

	// Mutation in the forked context never leaks back.
	child.Scope().SetSpan(nil)
	assert.Same(t, tx, h.Scope().Transaction())
}

func TestHubOnContext(t *testing.T) {
	h, _ := newTestHub(t, client.Options{})
	ctx := context.Background()

	assert.False(t, HasHubOnContext(ctx))
	assert.Same(t, CurrentHub(), FromContext(ctx))

	ctx = SetOnContext(ctx, h)
	assert.True(t, HasHubOnContext(ctx))
	assert.Same(t, h, FromContext(ctx))
}
