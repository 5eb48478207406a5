package pipeline

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/revsignal/revsignal/internal/identity"
)

// HubSpotAdapter handles hubspot webhook deliveries. HubSpot batches
// subscription events, so the top level is usually an array; a single object
// is accepted too. The raw type lives in subscriptionType and the event time
// in occurredAt as epoch milliseconds.
type HubSpotAdapter struct {
	types TypeMapper
}

func NewHubSpotAdapter(types TypeMapper) *HubSpotAdapter {
	return &HubSpotAdapter{types: types}
}

func (a *HubSpotAdapter) Source() string { return "hubspot" }

func (a *HubSpotAdapter) Normalize(ctx context.Context, orgID int64, payload json.RawMessage) ([]*Event, error) {
	raws, err := decodeEnvelope(payload)
	if err != nil {
		return nil, err
	}

	events := make([]*Event, 0, len(raws))
	for _, raw := range raws {
		obj, err := decodeObject(raw)
		if err != nil {
			return nil, err
		}
		ts := obj.epochTime("occurredAt", time.Millisecond)
		events = append(events, newEvent(ctx, a.types, orgID, a.Source(), obj.str("subscriptionType"), ts, raw, obj))
	}
	return events, nil
}

// ExtractContact prefers sourceId over objectId: objectId can reference a
// company or deal depending on the subscription, while sourceId is the
// acting contact when hubspot supplies it.
func (a *HubSpotAdapter) ExtractContact(raw json.RawMessage) identity.ContactRef {
	obj, err := decodeObject(raw)
	if err != nil {
		return identity.ContactRef{}
	}

	ref := identity.ContactRef{ExternalID: obj.str("sourceId")}
	if ref.ExternalID == "" {
		ref.ExternalID = obj.str("objectId")
	}

	if props := obj.obj("properties"); props != nil {
		ref.Email = props.str("email")
		ref.Name = strings.TrimSpace(props.str("firstname") + " " + props.str("lastname"))
	}
	return ref
}

func (a *HubSpotAdapter) ExtractAccount(raw json.RawMessage) identity.AccountRef {
	obj, err := decodeObject(raw)
	if err != nil {
		return identity.AccountRef{}
	}

	ref := identity.AccountRef{ExternalID: obj.str("companyId")}
	if ref.ExternalID == "" {
		ref.ExternalID = obj.str("associatedCompanyId")
	}
	if props := obj.obj("properties"); props != nil {
		ref.Name = props.str("company")
	}
	return ref
}
