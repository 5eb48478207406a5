// Package pipeline turns raw webhook payloads into persisted signals. Each
// supported source gets an Adapter that knows that source's payload shape;
// the Pipeline fans normalized events out to identity resolution and storage.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/revsignal/revsignal/internal/identity"
	"github.com/revsignal/revsignal/internal/models"
	"github.com/revsignal/revsignal/internal/telemetry"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Adapter normalizes one source's raw payloads into canonical events and
// extracts identity references from them. Extraction is best-effort: missing
// or malformed fields yield zero-value refs, never errors. Only a payload
// whose top level cannot be decoded at all makes Normalize fail.
type Adapter interface {
	Source() string
	Normalize(ctx context.Context, orgID int64, payload json.RawMessage) ([]*Event, error)
	ExtractContact(raw json.RawMessage) identity.ContactRef
	ExtractAccount(raw json.RawMessage) identity.AccountRef
}

// TypeMapper translates a source's raw event type into the canonical
// vocabulary. Both mapping.Table and mapping.Loader satisfy it.
type TypeMapper interface {
	Lookup(source, rawType string) (string, bool)
}

// rawObject is a decoded JSON object with tolerant typed accessors. Webhook
// payloads vary between deployments of the same product, so field access
// never fails, it just comes back empty.
type rawObject map[string]any

func decodeObject(raw json.RawMessage) (rawObject, error) {
	var obj rawObject
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, fmt.Errorf("failed to decode payload object: %w", err)
	}
	return obj, nil
}

// decodeEnvelope collapses the array-or-single top-level convention into a
// slice of raw event objects.
func decodeEnvelope(payload json.RawMessage) ([]json.RawMessage, error) {
	trimmed := trimLeadingSpace(payload)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var events []json.RawMessage
		if err := json.Unmarshal(payload, &events); err != nil {
			return nil, fmt.Errorf("failed to decode payload array: %w", err)
		}
		return events, nil
	}

	if _, err := decodeObject(payload); err != nil {
		return nil, err
	}
	return []json.RawMessage{payload}, nil
}

func trimLeadingSpace(raw []byte) []byte {
	for i, c := range raw {
		switch c {
		case ' ', '\t', '\r', '\n':
			continue
		default:
			return raw[i:]
		}
	}
	return nil
}

// str returns the field as a string, stringifying JSON numbers so numeric
// identifiers like hubspot's objectId work either way.
func (o rawObject) str(key string) string {
	switch v := o[key].(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return ""
	}
}

func (o rawObject) num(key string) (float64, bool) {
	v, ok := o[key].(float64)
	return v, ok
}

func (o rawObject) obj(key string) rawObject {
	v, ok := o[key].(map[string]any)
	if !ok {
		return nil
	}
	return rawObject(v)
}

// epochTime reads an epoch field, scaled by unit (time.Second or
// time.Millisecond). Zero time means the field was absent or malformed.
func (o rawObject) epochTime(key string, unit time.Duration) time.Time {
	v, ok := o.num(key)
	if !ok || v <= 0 {
		return time.Time{}
	}
	return time.Unix(0, int64(v)*int64(unit)).UTC()
}

func timestampOrNow(ts time.Time) time.Time {
	if ts.IsZero() {
		return time.Now().UTC()
	}
	return ts
}

// newEvent assembles an Event, resolving the canonical type and preserving
// the full raw object plus the original type string in metadata. Mapping
// misses are metered and logged here so every adapter reports them the same
// way.
func newEvent(ctx context.Context, types TypeMapper, orgID int64, source, rawType string, ts time.Time, raw json.RawMessage, obj rawObject) *Event {
	canonical, ok := types.Lookup(source, rawType)
	if !ok {
		telemetry.GetMetrics().MappingMissesTotal.Add(ctx, 1,
			metric.WithAttributes(attribute.String("source", source)))
		zerolog.Ctx(ctx).Warn().
			Int64("org_id", orgID).
			Str("source", source).
			Str("raw_type", rawType).
			Msg("No mapping entry for raw event type")
	}

	metadata := make(map[string]any, len(obj)+1)
	for k, v := range obj {
		metadata[k] = v
	}
	metadata[models.MetadataKeyOriginalEventType] = rawType

	return &Event{
		OrganizationID: orgID,
		Source:         source,
		RawType:        rawType,
		EventType:      canonical,
		Timestamp:      timestampOrNow(ts),
		Raw:            raw,
		Metadata:       metadata,
	}
}
