package transport

import (
	"compress/gzip"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/faultline-hq/faultline-go/internal/protocol"
	"github.com/faultline-hq/faultline-go/internal/ratelimit"
	"github.com/faultline-hq/faultline-go/internal/shared/id"
)

type outcomeRecorder struct {
	mu   sync.Mutex
	lost [][2]string
}

func (r *outcomeRecorder) RecordLostEvent(reason string, category ratelimit.Category) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lost = append(r.lost, [2]string{reason, string(category)})
}

func (r *outcomeRecorder) recorded() [][2]string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([][2]string(nil), r.lost...)
}

type testServer struct {
	*httptest.Server
	mu     sync.Mutex
	bodies []string
	status int
	header http.Header
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	ts := &testServer{status: http.StatusOK, header: http.Header{}}
	ts.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gz, err := gzip.NewReader(r.Body)
		require.NoError(t, err)
		body, err := io.ReadAll(gz)
		require.NoError(t, err)

		ts.mu.Lock()
		ts.bodies = append(ts.bodies, string(body))
		status := ts.status
		for k, vs := range ts.header {
			for _, v := range vs {
				w.Header().Add(k, v)
			}
		}
		ts.mu.Unlock()
		w.WriteHeader(status)
	}))
	t.Cleanup(ts.Close)
	return ts
}

func (ts *testServer) respond(status int, header http.Header) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	ts.status = status
	if header != nil {
		ts.header = header
	}
}

func (ts *testServer) requests() []string {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return append([]string(nil), ts.bodies...)
}

func (ts *testServer) dsn(t *testing.T) *protocol.DSN {
	t.Helper()
	raw := fmt.Sprintf("http://key@%s/132", strings.TrimPrefix(ts.URL, "http://"))
	dsn, err := protocol.ParseDSN(raw)
	require.NoError(t, err)
	return dsn
}

func envelopeOfType(t *testing.T, itemType string) *protocol.Envelope {
	t.Helper()
	env, err := protocol.NewEventEnvelope(&protocol.Event{
		EventID:   id.NewEventID(),
		Type:      itemType,
		Timestamp: time.Now().UTC(),
	}, nil)
	require.NoError(t, err)
	return env
}

func transactionEnvelope(t *testing.T) *protocol.Envelope {
	return envelopeOfType(t, protocol.EventTypeTransaction)
}

func errorEnvelope(t *testing.T) *protocol.Envelope {
	return envelopeOfType(t, "")
}

func TestCaptureAndFlush(t *testing.T) {
	ts := newTestServer(t)
	tr := NewHTTPTransport(Options{DSN: ts.dsn(t)})
	defer tr.Close(time.Second)

	tr.CaptureEnvelope(errorEnvelope(t))
	require.True(t, tr.Flush(5*time.Second))

	bodies := ts.requests()
	require.Len(t, bodies, 1)
	assert.Contains(t, bodies[0], `"type":"event"`)
}

func TestCategoryLimitLearnedFromResponse(t *testing.T) {
	for _, status := range []int{http.StatusOK, http.StatusTooManyRequests} {
		t.Run(fmt.Sprintf("status%d", status), func(t *testing.T) {
			ts := newTestServer(t)
			ts.respond(status, http.Header{
				ratelimit.Header: []string{"4711:transaction:organization"},
			})

			outcomes := &outcomeRecorder{}
			tr := NewHTTPTransport(Options{DSN: ts.dsn(t), Outcomes: outcomes})
			defer tr.Close(time.Second)

			tr.CaptureEnvelope(transactionEnvelope(t))
			require.True(t, tr.Flush(5*time.Second))
			require.Len(t, ts.requests(), 1)

			// Transactions are now embargoed; errors still flow.
			tr.CaptureEnvelope(transactionEnvelope(t))
			tr.CaptureEnvelope(transactionEnvelope(t))
			require.True(t, tr.Flush(5*time.Second))
			assert.Len(t, ts.requests(), 1)

			tr.CaptureEnvelope(errorEnvelope(t))
			require.True(t, tr.Flush(5*time.Second))
			assert.Len(t, ts.requests(), 2)

			assert.Equal(t, [][2]string{
				{ReasonRateLimitBackoff, "transaction"},
				{ReasonRateLimitBackoff, "transaction"},
			}, outcomes.recorded())
		})
	}
}

func TestBlanketLimitWithoutCategory(t *testing.T) {
	ts := newTestServer(t)
	ts.respond(http.StatusOK, http.Header{
		ratelimit.Header: []string{"4711::organization"},
	})

	tr := NewHTTPTransport(Options{DSN: ts.dsn(t)})
	defer tr.Close(time.Second)

	tr.CaptureEnvelope(transactionEnvelope(t))
	require.True(t, tr.Flush(5*time.Second))
	require.Len(t, ts.requests(), 1)

	// Every category is suppressed, listed or not.
	tr.CaptureEnvelope(transactionEnvelope(t))
	tr.CaptureEnvelope(errorEnvelope(t))
	require.True(t, tr.Flush(5*time.Second))
	assert.Len(t, ts.requests(), 1)
}

func TestSimple429AppliesRetryAfter(t *testing.T) {
	ts := newTestServer(t)
	ts.respond(http.StatusTooManyRequests, http.Header{
		"Retry-After": []string{"4"},
	})

	tr := NewHTTPTransport(Options{DSN: ts.dsn(t)})
	defer tr.Close(time.Second)

	tr.CaptureEnvelope(transactionEnvelope(t))
	require.True(t, tr.Flush(5*time.Second))
	require.Len(t, ts.requests(), 1)

	tr.CaptureEnvelope(transactionEnvelope(t))
	tr.CaptureEnvelope(errorEnvelope(t))
	require.True(t, tr.Flush(5*time.Second))
	assert.Len(t, ts.requests(), 1)
}

func TestMalformedDirectivesLearnNothing(t *testing.T) {
	ts := newTestServer(t)
	ts.respond(http.StatusOK, http.Header{
		ratelimit.Header: []string{"not a directive, ,,,"},
	})

	tr := NewHTTPTransport(Options{DSN: ts.dsn(t)})
	defer tr.Close(time.Second)

	tr.CaptureEnvelope(errorEnvelope(t))
	require.True(t, tr.Flush(5*time.Second))
	tr.CaptureEnvelope(errorEnvelope(t))
	require.True(t, tr.Flush(5*time.Second))

	assert.Len(t, ts.requests(), 2)
}

func TestFullyFilteredEnvelopeNeverSends(t *testing.T) {
	ts := newTestServer(t)
	ts.respond(http.StatusOK, http.Header{
		ratelimit.Header: []string{"4711::organization"},
	})

	outcomes := &outcomeRecorder{}
	tr := NewHTTPTransport(Options{DSN: ts.dsn(t), Outcomes: outcomes})
	defer tr.Close(time.Second)

	tr.CaptureEnvelope(errorEnvelope(t))
	require.True(t, tr.Flush(5*time.Second))
	require.Len(t, ts.requests(), 1)

	// All items filtered: no network call at all, just outcomes.
	tr.CaptureEnvelope(errorEnvelope(t))
	require.True(t, tr.Flush(5*time.Second))
	assert.Len(t, ts.requests(), 1)
	assert.Equal(t, [][2]string{{ReasonRateLimitBackoff, "error"}}, outcomes.recorded())
}

func TestQueueOverflowDropsIncoming(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{}, 16)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started <- struct{}{}
		<-release
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()
	defer close(release)

	dsn, err := protocol.ParseDSN(
		fmt.Sprintf("http://key@%s/132", strings.TrimPrefix(srv.URL, "http://")))
	require.NoError(t, err)

	outcomes := &outcomeRecorder{}
	tr := NewHTTPTransport(Options{DSN: dsn, QueueSize: 1, Outcomes: outcomes})
	defer tr.Close(time.Second)

	// First envelope: wait until the worker is inside the send so the queue
	// slot is demonstrably free again.
	tr.CaptureEnvelope(errorEnvelope(t))
	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("worker never started sending")
	}

	// Second fills the queue, third overflows and is dropped.
	tr.CaptureEnvelope(errorEnvelope(t))
	tr.CaptureEnvelope(errorEnvelope(t))

	assert.Equal(t, [][2]string{{ReasonQueueOverflow, "error"}}, outcomes.recorded())
}

func TestFlushTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()
	defer close(release)

	dsn, err := protocol.ParseDSN(
		fmt.Sprintf("http://key@%s/132", strings.TrimPrefix(srv.URL, "http://")))
	require.NoError(t, err)

	tr := NewHTTPTransport(Options{DSN: dsn})

	tr.CaptureEnvelope(errorEnvelope(t))
	assert.False(t, tr.Flush(50*time.Millisecond))
}

func TestCloseThenCaptureDropsFast(t *testing.T) {
	ts := newTestServer(t)
	tr := NewHTTPTransport(Options{DSN: ts.dsn(t)})

	assert.True(t, tr.Close(5*time.Second))

	done := make(chan struct{})
	go func() {
		tr.CaptureEnvelope(errorEnvelope(t))
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("capture after close blocked")
	}

	assert.Empty(t, ts.requests())
	// Closing again is a harmless no-op.
	assert.True(t, tr.Close(time.Second))
}

func TestServerErrorDropsWithoutRetry(t *testing.T) {
	ts := newTestServer(t)
	ts.respond(http.StatusInternalServerError, nil)

	tr := NewHTTPTransport(Options{DSN: ts.dsn(t)})
	defer tr.Close(time.Second)

	tr.CaptureEnvelope(errorEnvelope(t))
	require.True(t, tr.Flush(5*time.Second))

	// Exactly one attempt; best-effort means no retry.
	assert.Len(t, ts.requests(), 1)
}

func TestNoopTransport(t *testing.T) {
	tr := NewNoop()

	tr.CaptureEnvelope(nil)
	assert.True(t, tr.Flush(time.Second))
	assert.True(t, tr.Close(time.Second))
}
