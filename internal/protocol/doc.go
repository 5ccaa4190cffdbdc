// Package protocol defines the wire-facing data model: DSN handling, the
// outgoing event shape, and the envelope format.
//
// An envelope is a newline-delimited JSON batch: one envelope header line,
// then for each item a header line followed by the raw payload line. Items
// carry a type from which their rate-limiting category derives.
//
// Serialization uses bytedance/sonic; the payloads here are flat structs with
// no custom marshalers, so the fast path always applies.
package protocol
