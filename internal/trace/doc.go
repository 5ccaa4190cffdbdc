// Package trace models the causal tree of work that becomes a transaction
// event: spans, the transaction that roots them, and the sampling decision
// fixed at the root.
//
// A span is open until finished and immutable afterwards. A transaction
// records at most maxSpans-1 children (it counts as the first recorded
// unit itself); spans started past the cap are real, finishable spans that
// simply never appear in the serialized event. Truncation, not rejection.
//
// Finishing a sampled transaction builds the outgoing event and hands it to
// an injected sink; an unsampled transaction finishes silently.
package trace
