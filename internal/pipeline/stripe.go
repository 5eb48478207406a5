package pipeline

import (
	"context"
	"encoding/json"
	"time"

	"github.com/revsignal/revsignal/internal/identity"
)

// StripeAdapter handles stripe webhook deliveries. Stripe sends one event per
// request: the raw type is in type, the event time in created as epoch
// seconds, and the affected resource under data.object.
type StripeAdapter struct {
	types TypeMapper
}

func NewStripeAdapter(types TypeMapper) *StripeAdapter {
	return &StripeAdapter{types: types}
}

func (a *StripeAdapter) Source() string { return "stripe" }

func (a *StripeAdapter) Normalize(ctx context.Context, orgID int64, payload json.RawMessage) ([]*Event, error) {
	obj, err := decodeObject(payload)
	if err != nil {
		return nil, err
	}

	ts := obj.epochTime("created", time.Second)
	return []*Event{newEvent(ctx, a.types, orgID, a.Source(), obj.str("type"), ts, payload, obj)}, nil
}

func (a *StripeAdapter) ExtractContact(raw json.RawMessage) identity.ContactRef {
	object := a.dataObject(raw)
	if object == nil {
		return identity.ContactRef{}
	}
	return identity.ContactRef{
		ExternalID: object.str("id"),
		Email:      object.str("email"),
		Name:       object.str("name"),
	}
}

// ExtractAccount reads the company out of the resource's metadata. Stripe has
// no first-class company object; deployments that track one put it in
// metadata.company_id.
func (a *StripeAdapter) ExtractAccount(raw json.RawMessage) identity.AccountRef {
	object := a.dataObject(raw)
	if object == nil {
		return identity.AccountRef{}
	}
	md := object.obj("metadata")
	if md == nil {
		return identity.AccountRef{}
	}
	return identity.AccountRef{ExternalID: md.str("company_id")}
}

func (a *StripeAdapter) dataObject(raw json.RawMessage) rawObject {
	obj, err := decodeObject(raw)
	if err != nil {
		return nil
	}
	data := obj.obj("data")
	if data == nil {
		return nil
	}
	return data.obj("object")
}
