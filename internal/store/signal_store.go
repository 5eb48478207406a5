package store

import (
	"context"
	"errors"

	"github.com/revsignal/revsignal/internal/models"
)

// Sentinel errors for signal store operations
var (
	ErrSignalInvalid = errors.New("signal missing organization or source")
)

// SignalStats summarizes the stored signals for an organization. It backs the
// operator-facing observability endpoints used to spot unmapped event types
// and unresolved identities.
type SignalStats struct {
	Total         int64
	UnknownType   int64
	BySource      map[string]int64
	TopEventTypes []EventTypeCount
}

// EventTypeCount is one entry of SignalStats.TopEventTypes.
type EventTypeCount struct {
	EventType string
	Count     int64
}

// SignalStore persists normalized events as immutable signals. Signals are
// append-only: there are no update or delete operations, and a retried webhook
// delivery simply appends again.
type SignalStore interface {
	// Create persists one signal. OrganizationID and Source are hard
	// preconditions; Create returns ErrSignalInvalid when either is missing,
	// which indicates a caller bug rather than a runtime condition.
	Create(ctx context.Context, signal *models.Signal) error

	// ListBySource returns up to limit signals from one source for an
	// organization, newest first.
	ListBySource(ctx context.Context, orgID int64, source string, limit int) ([]*models.Signal, error)

	// ListByAccount returns up to limit signals referencing an account,
	// newest first.
	ListByAccount(ctx context.Context, accountID int64, limit int) ([]*models.Signal, error)

	// ListUnknownType returns up to limit signals whose event type is
	// "unknown", newest first. Operators use this to backfill mapping entries.
	ListUnknownType(ctx context.Context, orgID int64, limit int) ([]*models.Signal, error)

	// ListUnresolved returns up to limit signals missing both contact and
	// account resolution, newest first. Operators use this to improve adapter
	// identifier extraction.
	ListUnresolved(ctx context.Context, orgID int64, limit int) ([]*models.Signal, error)

	// Stats returns aggregate counts for an organization.
	Stats(ctx context.Context, orgID int64) (*SignalStats, error)
}
