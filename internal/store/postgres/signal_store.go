package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/revsignal/revsignal/internal/models"
	"github.com/revsignal/revsignal/internal/store"
	"github.com/rs/zerolog/log"
)

// SignalStore implements store.SignalStore using PostgreSQL. Signals are
// append-only; no update or delete statements exist in this store.
type SignalStore struct {
	pool *pgxpool.Pool
}

// NewSignalStore creates a new PostgreSQL-backed signal store.
// It shares the connection pool with other stores.
func NewSignalStore(pool *pgxpool.Pool) *SignalStore {
	return &SignalStore{pool: pool}
}

const signalColumns = `
	id, organization_id, source, event_type, contact_id, account_id,
	timestamp, metadata, created_at
`

// Create persists one signal. OrganizationID and Source are hard
// preconditions; a missing value is a caller bug.
func (s *SignalStore) Create(ctx context.Context, signal *models.Signal) error {
	if signal.OrganizationID == 0 || signal.Source == "" {
		return store.ErrSignalInvalid
	}

	if signal.Timestamp.IsZero() {
		signal.Timestamp = time.Now()
	}

	metadata, err := json.Marshal(signal.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	query := `
		INSERT INTO signals (
			organization_id, source, event_type, contact_id, account_id,
			timestamp, metadata, created_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8
		)
		RETURNING id
	`

	now := time.Now()
	err = s.pool.QueryRow(ctx, query,
		signal.OrganizationID,
		signal.Source,
		signal.EventType,
		signal.ContactID,
		signal.AccountID,
		signal.Timestamp,
		metadata,
		now,
	).Scan(&signal.ID)

	if err != nil {
		return fmt.Errorf("failed to create signal: %w", mapPostgresError(err))
	}

	signal.CreatedAt = now

	log.Debug().
		Int64("signal_id", signal.ID).
		Int64("org_id", signal.OrganizationID).
		Str("source", signal.Source).
		Str("event_type", signal.EventType).
		Msg("Stored signal")

	return nil
}

// ListBySource returns up to limit signals from one source, newest first.
func (s *SignalStore) ListBySource(ctx context.Context, orgID int64, source string, limit int) ([]*models.Signal, error) {
	query := `
		SELECT ` + signalColumns + `
		FROM signals
		WHERE organization_id = $1 AND source = $2
		ORDER BY timestamp DESC
		LIMIT $3
	`

	return s.querySignals(ctx, query, orgID, source, defaultLimit(limit))
}

// ListByAccount returns up to limit signals referencing an account, newest first.
func (s *SignalStore) ListByAccount(ctx context.Context, accountID int64, limit int) ([]*models.Signal, error) {
	query := `
		SELECT ` + signalColumns + `
		FROM signals
		WHERE account_id = $1
		ORDER BY timestamp DESC
		LIMIT $2
	`

	return s.querySignals(ctx, query, accountID, defaultLimit(limit))
}

// ListUnknownType returns up to limit signals with an unmapped event type,
// newest first.
func (s *SignalStore) ListUnknownType(ctx context.Context, orgID int64, limit int) ([]*models.Signal, error) {
	query := `
		SELECT ` + signalColumns + `
		FROM signals
		WHERE organization_id = $1 AND event_type = $2
		ORDER BY timestamp DESC
		LIMIT $3
	`

	return s.querySignals(ctx, query, orgID, models.EventTypeUnknown, defaultLimit(limit))
}

// ListUnresolved returns up to limit signals missing both contact and account
// resolution, newest first.
func (s *SignalStore) ListUnresolved(ctx context.Context, orgID int64, limit int) ([]*models.Signal, error) {
	query := `
		SELECT ` + signalColumns + `
		FROM signals
		WHERE organization_id = $1 AND contact_id IS NULL AND account_id IS NULL
		ORDER BY timestamp DESC
		LIMIT $2
	`

	return s.querySignals(ctx, query, orgID, defaultLimit(limit))
}

// Stats returns aggregate counts for an organization.
func (s *SignalStore) Stats(ctx context.Context, orgID int64) (*store.SignalStats, error) {
	stats := &store.SignalStats{
		BySource: make(map[string]int64),
	}

	err := s.pool.QueryRow(ctx, `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE event_type = $2)
		FROM signals
		WHERE organization_id = $1
	`, orgID, models.EventTypeUnknown).Scan(&stats.Total, &stats.UnknownType)
	if err != nil {
		return nil, fmt.Errorf("failed to count signals: %w", mapPostgresError(err))
	}

	rows, err := s.pool.Query(ctx, `
		SELECT source, COUNT(*)
		FROM signals
		WHERE organization_id = $1
		GROUP BY source
	`, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to count signals by source: %w", mapPostgresError(err))
	}
	defer rows.Close()

	for rows.Next() {
		var source string
		var count int64
		if err := rows.Scan(&source, &count); err != nil {
			return nil, fmt.Errorf("failed to scan source count: %w", err)
		}
		stats.BySource[source] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating source counts: %w", err)
	}

	typeRows, err := s.pool.Query(ctx, `
		SELECT event_type, COUNT(*) AS count
		FROM signals
		WHERE organization_id = $1
		GROUP BY event_type
		ORDER BY count DESC, event_type
		LIMIT 10
	`, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to count signals by event type: %w", mapPostgresError(err))
	}
	defer typeRows.Close()

	for typeRows.Next() {
		var entry store.EventTypeCount
		if err := typeRows.Scan(&entry.EventType, &entry.Count); err != nil {
			return nil, fmt.Errorf("failed to scan event type count: %w", err)
		}
		stats.TopEventTypes = append(stats.TopEventTypes, entry)
	}
	if err := typeRows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating event type counts: %w", err)
	}

	return stats, nil
}

func (s *SignalStore) querySignals(ctx context.Context, query string, args ...any) ([]*models.Signal, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list signals: %w", mapPostgresError(err))
	}
	defer rows.Close()

	var signals []*models.Signal
	for rows.Next() {
		signal, err := scanSignal(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan signal: %w", err)
		}
		signals = append(signals, signal)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating signals: %w", err)
	}

	return signals, nil
}

func scanSignal(row pgx.Row) (*models.Signal, error) {
	var sig models.Signal
	var metadata []byte

	err := row.Scan(
		&sig.ID,
		&sig.OrganizationID,
		&sig.Source,
		&sig.EventType,
		&sig.ContactID,
		&sig.AccountID,
		&sig.Timestamp,
		&metadata,
		&sig.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &sig.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
		}
	}

	return &sig, nil
}

func defaultLimit(limit int) int {
	if limit <= 0 {
		return 50
	}
	return limit
}
