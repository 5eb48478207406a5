package models

import "time"

// EventTypeUnknown is the canonical event type assigned when no mapping entry
// exists for a raw event type. Unknown signals are still persisted so the
// mapping table can be extended later.
const EventTypeUnknown = "unknown"

// MetadataKeyOriginalEventType is the metadata key under which adapters
// preserve the source's raw event-type string for audit.
const MetadataKeyOriginalEventType = "original_event_type"

// Signal is an immutable record of one normalized, identity-resolved event.
// Signals are append-only: they are never updated or deleted, including
// duplicates appended by a retried webhook delivery.
//
// ContactID and AccountID are nil when identity resolution found no matching
// identifiers; that is a valid outcome, not an error.
type Signal struct {
	ID             int64
	OrganizationID int64
	Source         string
	EventType      string
	ContactID      *int64
	AccountID      *int64
	Timestamp      time.Time
	Metadata       map[string]any
	CreatedAt      time.Time
}
