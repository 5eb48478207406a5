package pipeline

import (
	"context"
	"encoding/json"
	"time"

	"github.com/revsignal/revsignal/internal/identity"
)

// PostHogAdapter handles posthog webhook deliveries. One event per request:
// the raw type is in event, the event time in timestamp as RFC 3339, the
// person in distinct_id, and everything else under properties.
type PostHogAdapter struct {
	types TypeMapper
}

func NewPostHogAdapter(types TypeMapper) *PostHogAdapter {
	return &PostHogAdapter{types: types}
}

func (a *PostHogAdapter) Source() string { return "posthog" }

func (a *PostHogAdapter) Normalize(ctx context.Context, orgID int64, payload json.RawMessage) ([]*Event, error) {
	obj, err := decodeObject(payload)
	if err != nil {
		return nil, err
	}

	var ts time.Time
	if s := obj.str("timestamp"); s != "" {
		// A malformed timestamp falls through to ingestion time.
		ts, _ = time.Parse(time.RFC3339, s)
	}
	return []*Event{newEvent(ctx, a.types, orgID, a.Source(), obj.str("event"), ts, payload, obj)}, nil
}

func (a *PostHogAdapter) ExtractContact(raw json.RawMessage) identity.ContactRef {
	obj, err := decodeObject(raw)
	if err != nil {
		return identity.ContactRef{}
	}

	ref := identity.ContactRef{ExternalID: obj.str("distinct_id")}
	if props := obj.obj("properties"); props != nil {
		ref.Email = props.str("$email")
	}
	return ref
}

func (a *PostHogAdapter) ExtractAccount(raw json.RawMessage) identity.AccountRef {
	obj, err := decodeObject(raw)
	if err != nil {
		return identity.AccountRef{}
	}
	props := obj.obj("properties")
	if props == nil {
		return identity.AccountRef{}
	}
	return identity.AccountRef{ExternalID: props.str("company_id")}
}
