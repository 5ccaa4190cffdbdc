package client

import (
	"fmt"
	"math/rand"
	"time"

	"go.uber.org/zap"

	"github.com/faultline-hq/faultline-go/internal/logging"
	"github.com/faultline-hq/faultline-go/internal/monitoring"
	"github.com/faultline-hq/faultline-go/internal/protocol"
	"github.com/faultline-hq/faultline-go/internal/shared/id"
	"github.com/faultline-hq/faultline-go/internal/trace"
	"github.com/faultline-hq/faultline-go/internal/transport"
)

const (
	defaultFlushTimeout   = 2 * time.Second
	defaultMaxSpans       = 1000
	defaultMaxBreadcrumbs = 100
)

// EventModifier lets ambient state (a scope) decorate an event before it is
// enqueued.
type EventModifier interface {
	ApplyToEvent(event *protocol.Event)
}

// Options configures a Client. The zero value is usable: without a DSN the
// client swallows everything.
type Options struct {
	// DSN locates the collector. Empty disables sending.
	DSN string

	// Debug enables the SDK's internal diagnostic logging.
	Debug bool

	Environment string
	Release     string
	ServerName  string

	// SampleRate applies to error events; 0 means 1.0 (keep everything).
	SampleRate float64

	// TracesSampleRate and TracesSampler feed the per-transaction decision.
	TracesSampleRate float64
	TracesSampler    trace.Sampler

	MaxSpans       int
	MaxBreadcrumbs int
	QueueSize      int
	FlushTimeout   time.Duration

	// Transport overrides the HTTP transport; tests inject recorders here.
	Transport transport.Transport

	// Outcomes receives drop records; defaults to none.
	Outcomes transport.OutcomeRecorder

	// Metrics receives delivery counters when set.
	Metrics *monitoring.Metrics

	Logger *logging.Logger
}

// Client builds outgoing events and feeds the transport.
type Client struct {
	options   Options
	dsn       *protocol.DSN
	transport transport.Transport
	log       *logging.Logger
}

// New creates a Client. An empty DSN yields a disabled client whose captures
// all no-op; an invalid DSN is an error.
func New(options Options) (*Client, error) {
	if options.SampleRate <= 0 {
		options.SampleRate = 1.0
	}
	if options.MaxSpans <= 0 {
		options.MaxSpans = defaultMaxSpans
	}
	if options.MaxBreadcrumbs <= 0 {
		options.MaxBreadcrumbs = defaultMaxBreadcrumbs
	}
	if options.FlushTimeout <= 0 {
		options.FlushTimeout = defaultFlushTimeout
	}
	if options.Logger == nil {
		if options.Debug {
			options.Logger = logging.NewDebug()
		} else {
			options.Logger = logging.Nop()
		}
	}

	c := &Client{
		options: options,
		log:     options.Logger,
	}

	if options.DSN != "" {
		dsn, err := protocol.ParseDSN(options.DSN)
		if err != nil {
			return nil, fmt.Errorf("create client: %w", err)
		}
		c.dsn = dsn
	}

	switch {
	case options.Transport != nil:
		c.transport = options.Transport
	case c.dsn == nil:
		c.log.Debug("no DSN configured, events will be dropped")
		c.transport = transport.NewNoop()
	default:
		c.transport = transport.NewHTTPTransport(transport.Options{
			DSN:       c.dsn,
			QueueSize: options.QueueSize,
			Logger:    c.log,
			Outcomes:  options.Outcomes,
			Metrics:   options.Metrics,
		})
	}

	return c, nil
}

// Options returns the client's effective options.
func (c *Client) Options() Options {
	return c.options
}

// CaptureEvent finalizes the event and enqueues it. Returns the event ID, or
// nil when the event was sampled out.
func (c *Client) CaptureEvent(event *protocol.Event, modifiers ...EventModifier) *id.EventID {
	if event == nil {
		return nil
	}

	// Error events are sampled here; transactions made their decision at
	// start time.
	if event.Type != protocol.EventTypeTransaction && c.options.SampleRate < 1 {
		if rand.Float64() >= c.options.SampleRate {
			c.log.Debug("event dropped by sample rate")
			return nil
		}
	}

	c.prepare(event)
	for _, modifier := range modifiers {
		modifier.ApplyToEvent(event)
	}

	envelope, err := protocol.NewEventEnvelope(event, c.dsn)
	if err != nil {
		c.log.Debug("event could not be enveloped", zap.Error(err))
		return nil
	}

	c.log.Debug("sending event",
		zap.String("event_id", string(event.EventID)),
		zap.String("type", event.ItemType()))
	c.transport.CaptureEnvelope(envelope)

	eventID := event.EventID
	return &eventID
}

// CaptureMessage captures an informational message event.
func (c *Client) CaptureMessage(message string, modifiers ...EventModifier) *id.EventID {
	return c.CaptureEvent(&protocol.Event{
		Message: message,
		Level:   protocol.LevelInfo,
	}, modifiers...)
}

// CaptureException captures an error as an event.
func (c *Client) CaptureException(err error, modifiers ...EventModifier) *id.EventID {
	if err == nil {
		return nil
	}
	return c.CaptureEvent(&protocol.Event{
		Message: err.Error(),
		Level:   protocol.LevelError,
	}, modifiers...)
}

// prepare stamps the defaults every outgoing event carries.
func (c *Client) prepare(event *protocol.Event) {
	if event.EventID == "" {
		event.EventID = id.NewEventID()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	if event.Platform == "" {
		event.Platform = "go"
	}
	if event.Environment == "" {
		event.Environment = c.options.Environment
	}
	if event.Release == "" {
		event.Release = c.options.Release
	}
	if event.ServerName == "" {
		event.ServerName = c.options.ServerName
	}
	event.SDK = protocol.SDKInfo{Name: protocol.SDKName, Version: protocol.SDKVersion}
}

// Flush drains the transport queue, bounded by timeout.
func (c *Client) Flush(timeout time.Duration) bool {
	return c.transport.Flush(timeout)
}

// Close flushes and shuts the transport down.
func (c *Client) Close(timeout time.Duration) bool {
	return c.transport.Close(timeout)
}
