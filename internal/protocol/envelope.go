package protocol

import (
	"bytes"
	"fmt"
	"time"

	"github.com/bytedance/sonic"

	"github.com/faultline-hq/faultline-go/internal/ratelimit"
	"github.com/faultline-hq/faultline-go/internal/shared/id"
)

// EnvelopeHeader is the first line of a serialized envelope.
type EnvelopeHeader struct {
	EventID id.EventID `json:"event_id,omitempty"`
	SentAt  time.Time  `json:"sent_at"`
	DSN     string     `json:"dsn,omitempty"`
	SDK     SDKInfo    `json:"sdk"`
}

// ItemHeader precedes each item payload line.
type ItemHeader struct {
	Type   string `json:"type"`
	Length int    `json:"length"`
}

// Item is one payload within an envelope.
type Item struct {
	Header  ItemHeader
	Payload []byte
}

// Category maps the item type onto its rate-limiting category.
func (i *Item) Category() ratelimit.Category {
	switch i.Header.Type {
	case "transaction":
		return ratelimit.CategoryTransaction
	case "session":
		return ratelimit.CategorySession
	case "attachment":
		return ratelimit.CategoryAttachment
	default:
		return ratelimit.CategoryError
	}
}

// Envelope is an ordered batch of items sent in one network call.
type Envelope struct {
	Header EnvelopeHeader
	Items  []*Item
}

// NewEventEnvelope wraps a single event into an envelope. The event payload
// is serialized eagerly so enqueueing never races with later mutation.
func NewEventEnvelope(event *Event, dsn *DSN) (*Envelope, error) {
	payload, err := sonic.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("serialize event %s: %w", event.EventID, err)
	}

	header := EnvelopeHeader{
		EventID: event.EventID,
		SentAt:  time.Now().UTC(),
		SDK:     SDKInfo{Name: SDKName, Version: SDKVersion},
	}
	if dsn != nil {
		header.DSN = dsn.String()
	}

	return &Envelope{
		Header: header,
		Items: []*Item{{
			Header:  ItemHeader{Type: event.ItemType(), Length: len(payload)},
			Payload: payload,
		}},
	}, nil
}

// Serialize renders the envelope in its newline-delimited wire form.
func (e *Envelope) Serialize() ([]byte, error) {
	var buf bytes.Buffer

	header, err := sonic.Marshal(e.Header)
	if err != nil {
		return nil, fmt.Errorf("serialize envelope header: %w", err)
	}
	buf.Write(header)
	buf.WriteByte('\n')

	for _, item := range e.Items {
		itemHeader, err := sonic.Marshal(item.Header)
		if err != nil {
			return nil, fmt.Errorf("serialize item header: %w", err)
		}
		buf.Write(itemHeader)
		buf.WriteByte('\n')
		buf.Write(item.Payload)
		buf.WriteByte('\n')
	}

	return buf.Bytes(), nil
}
