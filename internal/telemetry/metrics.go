package telemetry

import (
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const (
	meterName = "github.com/revsignal/revsignal"
)

// Metrics holds all the OpenTelemetry metric instruments
type Metrics struct {
	// Normalization metrics
	EventsNormalizedTotal metric.Int64Counter
	DeliveriesTotal       metric.Int64Counter
	DeliveryErrorsTotal   metric.Int64Counter
	NormalizeDuration     metric.Float64Histogram

	// Mapping table metrics
	MappingMissesTotal metric.Int64Counter

	// Identity resolution metrics
	ContactsResolvedTotal metric.Int64Counter
	AccountsResolvedTotal metric.Int64Counter
	IdentityMissesTotal   metric.Int64Counter

	// Signal metrics
	SignalsPersistedTotal metric.Int64Counter
	SignalErrorsTotal     metric.Int64Counter
}

var (
	once    sync.Once
	metrics *Metrics
)

// GetMetrics returns the singleton Metrics instance, initializing it if necessary
func GetMetrics() *Metrics {
	once.Do(func() {
		metrics = initMetrics()
	})
	return metrics
}

// initMetrics creates and registers all metric instruments
func initMetrics() *Metrics {
	meter := otel.GetMeterProvider().Meter(meterName)

	m := &Metrics{}

	m.EventsNormalizedTotal, _ = meter.Int64Counter(
		"revsignal.events.normalized.total",
		metric.WithDescription("Total number of raw events normalized into canonical events"),
		metric.WithUnit("{event}"),
	)

	m.DeliveriesTotal, _ = meter.Int64Counter(
		"revsignal.deliveries.total",
		metric.WithDescription("Total number of webhook deliveries processed"),
		metric.WithUnit("{delivery}"),
	)

	m.DeliveryErrorsTotal, _ = meter.Int64Counter(
		"revsignal.deliveries.errors.total",
		metric.WithDescription("Total number of webhook deliveries that failed structurally"),
		metric.WithUnit("{error}"),
	)

	m.NormalizeDuration, _ = meter.Float64Histogram(
		"revsignal.normalize.duration",
		metric.WithDescription("Duration of end-to-end delivery normalization"),
		metric.WithUnit("ms"),
	)

	m.MappingMissesTotal, _ = meter.Int64Counter(
		"revsignal.mapping.misses.total",
		metric.WithDescription("Total number of raw event types with no mapping entry"),
		metric.WithUnit("{event}"),
	)

	m.ContactsResolvedTotal, _ = meter.Int64Counter(
		"revsignal.identity.contacts.resolved.total",
		metric.WithDescription("Total number of events resolved to a contact"),
		metric.WithUnit("{event}"),
	)

	m.AccountsResolvedTotal, _ = meter.Int64Counter(
		"revsignal.identity.accounts.resolved.total",
		metric.WithDescription("Total number of events resolved to an account"),
		metric.WithUnit("{event}"),
	)

	m.IdentityMissesTotal, _ = meter.Int64Counter(
		"revsignal.identity.misses.total",
		metric.WithDescription("Total number of events with no resolvable identifiers"),
		metric.WithUnit("{event}"),
	)

	m.SignalsPersistedTotal, _ = meter.Int64Counter(
		"revsignal.signals.persisted.total",
		metric.WithDescription("Total number of signals persisted"),
		metric.WithUnit("{signal}"),
	)

	m.SignalErrorsTotal, _ = meter.Int64Counter(
		"revsignal.signals.errors.total",
		metric.WithDescription("Total number of signal persistence failures"),
		metric.WithUnit("{error}"),
	)

	return m
}
