package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/revsignal/revsignal/internal/identity"
	"github.com/revsignal/revsignal/internal/models"
	"github.com/revsignal/revsignal/internal/store"
	"github.com/revsignal/revsignal/internal/telemetry"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Pipeline is the single entry point for webhook deliveries: it picks the
// adapter for the source, normalizes the payload into canonical events, and
// resolves and persists each event concurrently.
type Pipeline struct {
	adapters map[string]Adapter
	resolver *identity.Resolver
	signals  store.SignalStore
}

// New wires a Pipeline. Registering two adapters with the same source label
// is a programming error and panics at startup.
func New(resolver *identity.Resolver, signals store.SignalStore, adapters ...Adapter) *Pipeline {
	p := &Pipeline{
		adapters: make(map[string]Adapter, len(adapters)),
		resolver: resolver,
		signals:  signals,
	}
	for _, adapter := range adapters {
		if _, exists := p.adapters[adapter.Source()]; exists {
			panic(fmt.Sprintf("duplicate adapter for source %q", adapter.Source()))
		}
		p.adapters[adapter.Source()] = adapter
	}
	return p
}

// Sources returns the source labels the pipeline accepts.
func (p *Pipeline) Sources() []string {
	sources := make([]string, 0, len(p.adapters))
	for source := range p.adapters {
		sources = append(sources, source)
	}
	return sources
}

// Normalize processes one webhook delivery for an organization. An unknown
// source label or an undecodable payload is an error; so is any store
// failure, joined per event so one event's failure never blocks its
// siblings. Events with no resolvable identity are still persisted.
func (p *Pipeline) Normalize(ctx context.Context, source string, orgID int64, payload json.RawMessage) error {
	if orgID <= 0 {
		return fmt.Errorf("organization id is required")
	}
	adapter, ok := p.adapters[source]
	if !ok {
		return fmt.Errorf("unknown source %q", source)
	}

	deliveryID, err := uuid.NewV7()
	if err != nil {
		return fmt.Errorf("failed to generate delivery id: %w", err)
	}
	logger := zerolog.Ctx(ctx).With().
		Str("delivery_id", deliveryID.String()).
		Str("source", source).
		Int64("org_id", orgID).
		Logger()
	ctx = logger.WithContext(ctx)

	m := telemetry.GetMetrics()
	sourceAttr := metric.WithAttributes(attribute.String("source", source))
	m.DeliveriesTotal.Add(ctx, 1, sourceAttr)
	start := time.Now()
	defer func() {
		m.NormalizeDuration.Record(ctx, float64(time.Since(start).Milliseconds()), sourceAttr)
	}()

	events, err := adapter.Normalize(ctx, orgID, payload)
	if err != nil {
		m.DeliveryErrorsTotal.Add(ctx, 1, sourceAttr)
		return fmt.Errorf("failed to normalize %s delivery: %w", source, err)
	}
	m.EventsNormalizedTotal.Add(ctx, int64(len(events)), sourceAttr)

	errs := make([]error, len(events))
	var wg sync.WaitGroup
	for i, event := range events {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = p.process(ctx, adapter, event)
		}()
	}
	wg.Wait()

	if err := errors.Join(errs...); err != nil {
		m.DeliveryErrorsTotal.Add(ctx, 1, sourceAttr)
		return err
	}

	logger.Info().
		Int("events", len(events)).
		Msg("Delivery normalized")
	return nil
}

func (p *Pipeline) process(ctx context.Context, adapter Adapter, event *Event) error {
	resolved, err := p.resolver.Resolve(ctx, event.OrganizationID, event.Source,
		adapter.ExtractContact(event.Raw), adapter.ExtractAccount(event.Raw))
	if err != nil {
		return fmt.Errorf("event %q: %w", event.RawType, err)
	}

	signal := &models.Signal{
		OrganizationID: event.OrganizationID,
		Source:         event.Source,
		EventType:      event.EventType,
		ContactID:      resolved.ContactID,
		AccountID:      resolved.AccountID,
		Timestamp:      event.Timestamp,
		Metadata:       event.Metadata,
	}

	m := telemetry.GetMetrics()
	sourceAttr := metric.WithAttributes(attribute.String("source", event.Source))
	if err := p.signals.Create(ctx, signal); err != nil {
		m.SignalErrorsTotal.Add(ctx, 1, sourceAttr)
		return fmt.Errorf("event %q: failed to persist signal: %w", event.RawType, err)
	}
	m.SignalsPersistedTotal.Add(ctx, 1, sourceAttr)

	zerolog.Ctx(ctx).Debug().
		Int64("signal_id", signal.ID).
		Str("event_type", signal.EventType).
		Msg("Signal persisted")
	return nil
}
