// Package id provides centralized identifier generation for the SDK.
//
// This package offers the three identifier kinds the telemetry protocol uses:
//   - TraceID: 128-bit, shared by a transaction and every descendant span
//   - SpanID: 64-bit, unique per span within a trace
//   - EventID: 128-bit UUID (dashless hex), one per outgoing event
//
// Design Principles:
//   - Crypto-grade entropy by default, injectable for deterministic tests
//   - Fixed-size byte arrays with lowercase-hex string forms
//   - Zero value means "absent" (e.g. no parent span)
package id

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"sync"

	"github.com/google/uuid"
)

// TraceID identifies a whole trace. Fixed at transaction creation.
type TraceID [16]byte

// SpanID identifies a single span within a trace.
type SpanID [8]byte

// EventID identifies an outgoing event (dashless UUID hex).
type EventID string

// String returns the lowercase-hex form of the trace ID.
func (t TraceID) String() string {
	return hex.EncodeToString(t[:])
}

// IsZero reports whether the trace ID is unset.
func (t TraceID) IsZero() bool {
	return t == TraceID{}
}

// String returns the lowercase-hex form of the span ID.
func (s SpanID) String() string {
	return hex.EncodeToString(s[:])
}

// IsZero reports whether the span ID is unset.
func (s SpanID) IsZero() bool {
	return s == SpanID{}
}

// ParseTraceID parses a 32-character hex string into a TraceID.
func ParseTraceID(s string) (TraceID, error) {
	var t TraceID
	if len(s) != 32 {
		return t, fmt.Errorf("trace id must be 32 hex characters, got %d", len(s))
	}
	if _, err := hex.Decode(t[:], []byte(s)); err != nil {
		return TraceID{}, fmt.Errorf("invalid trace id %q: %w", s, err)
	}
	return t, nil
}

// ParseSpanID parses a 16-character hex string into a SpanID.
func ParseSpanID(s string) (SpanID, error) {
	var id SpanID
	if len(s) != 16 {
		return id, fmt.Errorf("span id must be 16 hex characters, got %d", len(s))
	}
	if _, err := hex.Decode(id[:], []byte(s)); err != nil {
		return SpanID{}, fmt.Errorf("invalid span id %q: %w", s, err)
	}
	return id, nil
}

// Generator generates protocol identifiers from an entropy source.
type Generator struct {
	entropy   io.Reader
	entropyMu sync.Mutex // Protects entropy reader
}

var (
	// Default generator with cryptographically secure entropy
	defaultGenerator *Generator
	once             sync.Once
)

// Default returns the singleton generator instance.
func Default() *Generator {
	once.Do(func() {
		defaultGenerator = NewGenerator()
	})
	return defaultGenerator
}

// NewGenerator creates a new generator backed by crypto/rand.
func NewGenerator() *Generator {
	return &Generator{
		entropy: rand.Reader,
	}
}

// NewGeneratorWithEntropy creates a generator with a custom entropy source.
// Useful for testing with deterministic entropy.
func NewGeneratorWithEntropy(entropy io.Reader) *Generator {
	return &Generator{
		entropy: entropy,
	}
}

// TraceID generates a new 128-bit trace ID.
func (g *Generator) TraceID() TraceID {
	var t TraceID
	g.read(t[:])
	return t
}

// SpanID generates a new 64-bit span ID.
func (g *Generator) SpanID() SpanID {
	var s SpanID
	g.read(s[:])
	return s
}

// EventID generates a new event ID as dashless UUID hex.
func (g *Generator) EventID() EventID {
	g.entropyMu.Lock()
	defer g.entropyMu.Unlock()

	u, err := uuid.NewRandomFromReader(g.entropy)
	if err != nil {
		// crypto/rand does not fail in practice; keep the guarantee anyway.
		u = uuid.New()
	}
	return EventID(hex.EncodeToString(u[:]))
}

func (g *Generator) read(b []byte) {
	g.entropyMu.Lock()
	defer g.entropyMu.Unlock()
	io.ReadFull(g.entropy, b) //nolint:errcheck // crypto/rand does not fail
}

// NewTraceID generates a trace ID from the default generator.
func NewTraceID() TraceID {
	return Default().TraceID()
}

// NewSpanID generates a span ID from the default generator.
func NewSpanID() SpanID {
	return Default().SpanID()
}

// NewEventID generates an event ID from the default generator.
func NewEventID() EventID {
	return Default().EventID()
}
