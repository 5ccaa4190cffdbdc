package transport

import (
	"bytes"
	"sync/atomic"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/klauspost/compress/gzip"
	"go.uber.org/zap"

	"github.com/faultline-hq/faultline-go/internal/logging"
	"github.com/faultline-hq/faultline-go/internal/monitoring"
	"github.com/faultline-hq/faultline-go/internal/protocol"
	"github.com/faultline-hq/faultline-go/internal/ratelimit"
)

// Outcome reasons reported when an item is dropped before send.
const (
	ReasonRateLimitBackoff = "ratelimit_backoff"
	ReasonQueueOverflow    = "queue_overflow"
)

const (
	defaultQueueSize   = 30
	defaultSendTimeout = 30 * time.Second
)

// OutcomeRecorder receives a record for every item dropped before send.
type OutcomeRecorder interface {
	RecordLostEvent(reason string, category ratelimit.Category)
}

// Transport accepts envelopes for asynchronous, best-effort delivery.
type Transport interface {
	CaptureEnvelope(env *protocol.Envelope)
	Flush(timeout time.Duration) bool
	Close(timeout time.Duration) bool
}

// Options configures an HTTPTransport.
type Options struct {
	DSN         *protocol.DSN
	QueueSize   int
	SendTimeout time.Duration
	Logger      *logging.Logger
	Outcomes    OutcomeRecorder
	Metrics     *monitoring.Metrics

	// Now is the clock used for rate-limit decisions. Tests override it.
	Now func() time.Time
}

// request is one unit of worker input: an envelope to send, an optional
// barrier to acknowledge, or a shutdown marker.
type request struct {
	env  *protocol.Envelope
	done chan struct{}
	quit bool
}

// HTTPTransport is the production Transport: a bounded queue drained by one
// worker goroutine that posts gzip-compressed envelopes over HTTP.
type HTTPTransport struct {
	dsn        *protocol.DSN
	url        string
	client     *resty.Client
	limits     *ratelimit.Limits
	queue      chan request
	stop       chan struct{}
	workerDone chan struct{}
	closed     atomic.Bool
	log        *logging.Logger
	outcomes   OutcomeRecorder
	metrics    *monitoring.Metrics
	now        func() time.Time
}

// NewHTTPTransport creates the transport and starts its worker.
func NewHTTPTransport(opts Options) *HTTPTransport {
	if opts.QueueSize <= 0 {
		opts.QueueSize = defaultQueueSize
	}
	if opts.SendTimeout <= 0 {
		opts.SendTimeout = defaultSendTimeout
	}
	if opts.Logger == nil {
		opts.Logger = logging.Nop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	authName, authValue := opts.DSN.AuthHeader()
	client := resty.New().
		SetTimeout(opts.SendTimeout).
		SetHeader("User-Agent", protocol.SDKName+"/"+protocol.SDKVersion).
		SetHeader("Content-Type", "application/x-faultline-envelope").
		SetHeader("Content-Encoding", "gzip").
		SetHeader(authName, authValue)

	t := &HTTPTransport{
		dsn:        opts.DSN,
		url:        opts.DSN.EnvelopeURL(),
		client:     client,
		limits:     ratelimit.NewLimits(),
		queue:      make(chan request, opts.QueueSize),
		stop:       make(chan struct{}),
		workerDone: make(chan struct{}),
		log:        opts.Logger,
		outcomes:   opts.Outcomes,
		metrics:    opts.Metrics,
		now:        opts.Now,
	}

	go t.worker()
	return t
}

// CaptureEnvelope filters the envelope through active rate limits and
// enqueues what survives. It never blocks: on a full queue the incoming
// envelope is dropped and an outcome is recorded per item.
func (t *HTTPTransport) CaptureEnvelope(env *protocol.Envelope) {
	if t.closed.Load() {
		t.log.Debug("envelope dropped, transport closed")
		return
	}

	now := t.now()
	kept := env.Items[:0:0]
	for _, item := range env.Items {
		category := item.Category()
		if t.limits.IsDisabled(category, now) {
			t.recordLost(ReasonRateLimitBackoff, category)
			t.log.Debug("item dropped by rate limit", zap.String("category", string(category)))
			continue
		}
		kept = append(kept, item)
	}
	if len(kept) == 0 {
		return
	}

	filtered := &protocol.Envelope{Header: env.Header, Items: kept}
	select {
	case t.queue <- request{env: filtered}:
	default:
		for _, item := range kept {
			t.recordLost(ReasonQueueOverflow, item.Category())
		}
		t.log.Debug("envelope dropped, queue full",
			zap.String("event_id", string(env.Header.EventID)))
	}
}

// Flush blocks until every envelope enqueued before the call has been
// attempted, or the timeout elapses. Returns whether the drain completed.
func (t *HTTPTransport) Flush(timeout time.Duration) bool {
	if t.closed.Load() {
		return false
	}
	return t.barrier(time.Now().Add(timeout), false)
}

// Close flushes and shuts down the worker. Envelopes captured afterwards are
// silently dropped. On timeout, queued-but-unsent envelopes are abandoned.
func (t *HTTPTransport) Close(timeout time.Duration) bool {
	if t.closed.Swap(true) {
		return true
	}
	ok := t.barrier(time.Now().Add(timeout), true)
	if !ok {
		close(t.stop)
	}
	return ok
}

// barrier enqueues a marker and waits for the worker to reach it. FIFO order
// guarantees all earlier envelopes were attempted by then.
func (t *HTTPTransport) barrier(deadline time.Time, quit bool) bool {
	wait := time.Until(deadline)
	if wait < 0 {
		wait = 0
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()

	done := make(chan struct{})
	select {
	case t.queue <- request{done: done, quit: quit}:
	case <-t.workerDone:
		return false
	case <-timer.C:
		return false
	}

	select {
	case <-done:
		return true
	case <-t.workerDone:
		return false
	case <-timer.C:
		return false
	}
}

func (t *HTTPTransport) worker() {
	defer close(t.workerDone)
	for {
		select {
		case <-t.stop:
			return
		case req := <-t.queue:
			if req.env != nil {
				t.send(req.env)
			}
			if req.done != nil {
				close(req.done)
			}
			if req.quit {
				return
			}
		}
	}
}

// send performs one delivery attempt. Every failure mode degrades to a debug
// log and a dropped envelope; nothing here may panic or block forever.
func (t *HTTPTransport) send(env *protocol.Envelope) {
	body, err := env.Serialize()
	if err != nil {
		t.log.Debug("envelope serialization failed", zap.Error(err))
		t.recordSendFailure("serialize")
		return
	}

	var compressed bytes.Buffer
	gz := gzip.NewWriter(&compressed)
	if _, err := gz.Write(body); err == nil {
		err = gz.Close()
	}
	if err != nil {
		t.log.Debug("envelope compression failed", zap.Error(err))
		t.recordSendFailure("serialize")
		return
	}

	t.log.Debug("sending envelope",
		zap.String("event_id", string(env.Header.EventID)),
		zap.Int("items", len(env.Items)))

	resp, err := t.client.R().SetBody(compressed.Bytes()).Post(t.url)
	if err != nil {
		t.log.Debug("envelope send failed", zap.Error(err))
		t.recordSendFailure("network")
		return
	}

	t.limits.ApplyResponse(resp.StatusCode(), resp.Header(), t.now())

	switch status := resp.StatusCode(); {
	case status >= 200 && status < 300:
		if t.metrics != nil {
			t.metrics.RecordSent()
		}
	default:
		t.log.Debug("collector rejected envelope",
			zap.Int("status", status),
			zap.String("event_id", string(env.Header.EventID)))
		t.recordSendFailure("status")
	}
}

func (t *HTTPTransport) recordLost(reason string, category ratelimit.Category) {
	if t.outcomes != nil {
		t.outcomes.RecordLostEvent(reason, category)
	}
}

func (t *HTTPTransport) recordSendFailure(kind string) {
	if t.metrics != nil {
		t.metrics.RecordSendFailure(kind)
	}
}

// noopTransport swallows everything. Used when the client has no DSN.
type noopTransport struct{}

// NewNoop returns a transport that drops every envelope immediately.
func NewNoop() Transport {
	return noopTransport{}
}

func (noopTransport) CaptureEnvelope(*protocol.Envelope) {}
func (noopTransport) Flush(time.Duration) bool           { return true }
func (noopTransport) Close(time.Duration) bool           { return true }
