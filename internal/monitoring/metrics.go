package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/faultline-hq/faultline-go/internal/ratelimit"
)

// Metrics holds the delivery-path Prometheus metrics.
type Metrics struct {
	// Delivery metrics
	EnvelopesSent prometheus.Counter
	SendFailures  *prometheus.CounterVec

	// Loss metrics
	LostEvents *prometheus.CounterVec
}

// NewMetrics creates the metrics collector, registered against reg. Passing
// nil uses the default registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		EnvelopesSent: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "faultline_envelopes_sent_total",
				Help: "Total number of envelopes accepted by the collector",
			},
		),
		SendFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "faultline_send_failures_total",
				Help: "Total number of envelopes dropped after a send attempt",
			},
			[]string{"kind"},
		),
		LostEvents: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "faultline_lost_events_total",
				Help: "Total number of items dropped before send, by reason and category",
			},
			[]string{"reason", "category"},
		),
	}
}

// RecordLostEvent counts an item that never reached the collector. It
// satisfies the transport's outcome sink contract.
func (m *Metrics) RecordLostEvent(reason string, category ratelimit.Category) {
	m.LostEvents.WithLabelValues(reason, string(category)).Inc()
}

// RecordSent counts a successfully delivered envelope.
func (m *Metrics) RecordSent() {
	m.EnvelopesSent.Inc()
}

// RecordSendFailure counts a dropped envelope by failure kind
// ("network", "status", "serialize").
func (m *Metrics) RecordSendFailure(kind string) {
	m.SendFailures.WithLabelValues(kind).Inc()
}
