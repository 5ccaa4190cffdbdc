// Package client orchestrates capture: it applies sampling, stamps events
// with SDK metadata, wraps them in envelopes, and hands them to the
// transport. Capture is fire-and-forget; transport trouble never reaches the
// capturing call site.
package client
