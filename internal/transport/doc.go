// Package transport delivers envelopes to the collector asynchronously.
//
// Capture paths never touch the network: CaptureEnvelope filters items
// through the rate limiter, records outcomes for anything dropped, and hands
// the rest to a bounded queue consumed by a single background worker. The
// worker owns all I/O and is the only writer to the rate-limit state.
//
// Delivery is best-effort. A failed send is logged at debug level and
// dropped; there is no retry queue. Flush and Close are the only blocking
// operations and both are bounded by an explicit timeout.
package transport
