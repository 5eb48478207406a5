package pipeline

import (
	"context"
	"encoding/json"
	"time"

	"github.com/revsignal/revsignal/internal/identity"
)

// CustomerIOAdapter handles customer.io reporting webhooks. One event per
// request: the raw type is in metric, the event time in timestamp as epoch
// seconds, and the recipient under data.
type CustomerIOAdapter struct {
	types TypeMapper
}

func NewCustomerIOAdapter(types TypeMapper) *CustomerIOAdapter {
	return &CustomerIOAdapter{types: types}
}

func (a *CustomerIOAdapter) Source() string { return "customerio" }

func (a *CustomerIOAdapter) Normalize(ctx context.Context, orgID int64, payload json.RawMessage) ([]*Event, error) {
	obj, err := decodeObject(payload)
	if err != nil {
		return nil, err
	}

	ts := obj.epochTime("timestamp", time.Second)
	return []*Event{newEvent(ctx, a.types, orgID, a.Source(), obj.str("metric"), ts, payload, obj)}, nil
}

func (a *CustomerIOAdapter) ExtractContact(raw json.RawMessage) identity.ContactRef {
	obj, err := decodeObject(raw)
	if err != nil {
		return identity.ContactRef{}
	}

	// Recent payloads nest the recipient under data; older ones are flat.
	fields := obj.obj("data")
	if fields == nil {
		fields = obj
	}
	return identity.ContactRef{
		ExternalID: fields.str("customer_id"),
		Email:      fields.str("email_address"),
	}
}

// ExtractAccount always returns an empty ref: customer.io messaging events
// carry no company identifier, so account linkage comes from the contact's
// existing association if any.
func (a *CustomerIOAdapter) ExtractAccount(raw json.RawMessage) identity.AccountRef {
	return identity.AccountRef{}
}
