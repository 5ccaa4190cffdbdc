/*
Package monitoring provides Prometheus metrics for the SDK's delivery path.

# Overview

The transport is best-effort: envelopes are dropped under rate limiting, queue
overflow, and network failure. This package counts what happened so the host
application can see it, without the SDK ever blocking or retrying.

# Metrics

- faultline_envelopes_sent_total: envelopes accepted by the collector
- faultline_send_failures_total: envelopes dropped by failure kind
- faultline_lost_events_total: items dropped before send, by reason and category

Metrics register against an injectable prometheus.Registerer so embedding
applications (and tests) control registration.
*/
package monitoring
