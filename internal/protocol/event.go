package protocol

import (
	"time"

	"github.com/faultline-hq/faultline-go/internal/shared/id"
)

// Level is the severity attached to an event or breadcrumb.
type Level string

const (
	LevelDebug   Level = "debug"
	LevelInfo    Level = "info"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
	LevelFatal   Level = "fatal"
)

// Event types as they appear in item headers. An empty type means a plain
// error event.
const (
	EventTypeTransaction = "transaction"
)

// SDKInfo describes the SDK that produced an event.
type SDKInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// TransactionInfo carries metadata about how a transaction got its name.
type TransactionInfo struct {
	Source string `json:"source"`
}

// Breadcrumb is one entry of the ambient trail attached to events.
type Breadcrumb struct {
	Type      string         `json:"type,omitempty"`
	Category  string         `json:"category,omitempty"`
	Message   string         `json:"message,omitempty"`
	Level     Level          `json:"level,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
	Data      map[string]any `json:"data,omitempty"`
}

// SpanPayload is the serialized form of a finished child span.
type SpanPayload struct {
	TraceID      string            `json:"trace_id"`
	SpanID       string            `json:"span_id"`
	ParentSpanID string            `json:"parent_span_id,omitempty"`
	Op           string            `json:"op,omitempty"`
	Description  string            `json:"description,omitempty"`
	Status       string            `json:"status,omitempty"`
	Tags         map[string]string `json:"tags,omitempty"`
	Data         map[string]any    `json:"data,omitempty"`
	StartTime    time.Time         `json:"start_timestamp"`
	EndTime      time.Time         `json:"timestamp"`
}

// Event is the unit of capture: either an error-style event or a finished
// transaction with its recorded spans.
type Event struct {
	EventID         id.EventID                `json:"event_id"`
	Type            string                    `json:"type,omitempty"`
	Level           Level                     `json:"level,omitempty"`
	Message         string                    `json:"message,omitempty"`
	Platform        string                    `json:"platform,omitempty"`
	Environment     string                    `json:"environment,omitempty"`
	Release         string                    `json:"release,omitempty"`
	ServerName      string                    `json:"server_name,omitempty"`
	Transaction     string                    `json:"transaction,omitempty"`
	TransactionInfo *TransactionInfo          `json:"transaction_info,omitempty"`
	Tags            map[string]string         `json:"tags,omitempty"`
	Contexts        map[string]map[string]any `json:"contexts,omitempty"`
	Breadcrumbs     []*Breadcrumb             `json:"breadcrumbs,omitempty"`
	Spans           []*SpanPayload            `json:"spans,omitempty"`
	Measurements    map[string]float64        `json:"measurements,omitempty"`
	StartTimestamp  time.Time                 `json:"start_timestamp,omitzero"`
	Timestamp       time.Time                 `json:"timestamp"`
	SDK             SDKInfo                   `json:"sdk"`
}

// ItemType returns the envelope item type for the event.
func (e *Event) ItemType() string {
	if e.Type == EventTypeTransaction {
		return EventTypeTransaction
	}
	return "event"
}
