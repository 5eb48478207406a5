package pipeline

import (
	"encoding/json"
	"time"
)

// Event is one canonical event produced by an adapter from a raw webhook
// payload. A single delivery can fan out to multiple events when the source
// batches them in one request body.
type Event struct {
	OrganizationID int64
	Source         string

	// RawType is the source's own event-type string, EventType the canonical
	// vocabulary entry it maps to. An unmapped RawType yields
	// models.EventTypeUnknown, never an error.
	RawType   string
	EventType string

	// Timestamp is the event time reported by the source, or the ingestion
	// time when the source omitted or mangled it.
	Timestamp time.Time

	// Raw is the single raw event object this Event came from, kept so
	// identity extraction can run against the original bytes.
	Raw json.RawMessage

	Metadata map[string]any
}
