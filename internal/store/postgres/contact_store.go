package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/revsignal/revsignal/internal/models"
	"github.com/revsignal/revsignal/internal/store"
	"github.com/rs/zerolog/log"
)

// ContactStore implements store.ContactStore using PostgreSQL.
type ContactStore struct {
	pool *pgxpool.Pool
}

// NewContactStore creates a new PostgreSQL-backed contact store.
// It shares the connection pool with other stores.
func NewContactStore(pool *pgxpool.Pool) *ContactStore {
	return &ContactStore{pool: pool}
}

const contactColumns = `
	id, organization_id, account_id, email, name, external_ids,
	stage, created_at, updated_at
`

// Create creates a new contact in the database.
func (s *ContactStore) Create(ctx context.Context, contact *models.Contact) error {
	kind, value, err := creationIdentity(contact.ExternalIDs)
	if err != nil {
		return fmt.Errorf("contact: %w", err)
	}

	externalIDs, err := json.Marshal(contact.ExternalIDs)
	if err != nil {
		return fmt.Errorf("failed to marshal external_ids: %w", err)
	}

	if contact.Stage == "" {
		contact.Stage = models.ContactStageLead
	}

	now := time.Now()
	query := `
		INSERT INTO contacts (
			organization_id, account_id, email, name, external_ids,
			external_id_kind, external_id_value,
			stage, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $9
		)
		RETURNING id
	`

	err = s.pool.QueryRow(ctx, query,
		contact.OrganizationID,
		contact.AccountID,
		nullIfEmpty(contact.Email),
		nullIfEmpty(contact.Name),
		externalIDs,
		kind,
		value,
		contact.Stage,
		now,
	).Scan(&contact.ID)

	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrContactAlreadyExists
		}
		return fmt.Errorf("failed to create contact: %w", mapPostgresError(err))
	}

	contact.CreatedAt = now
	contact.UpdatedAt = now

	return nil
}

// Get retrieves a contact by ID.
func (s *ContactStore) Get(ctx context.Context, contactID int64) (*models.Contact, error) {
	query := `SELECT ` + contactColumns + ` FROM contacts WHERE id = $1`

	contact, err := scanContact(s.pool.QueryRow(ctx, query, contactID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrContactNotFound
		}
		return nil, fmt.Errorf("failed to get contact: %w", mapPostgresError(err))
	}

	return contact, nil
}

// FindByExternalID looks up a contact by JSONB containment on the external-id
// map, scoped to the organization.
func (s *ContactStore) FindByExternalID(ctx context.Context, orgID int64, source, externalID string) (*models.Contact, error) {
	return s.findByKindValue(ctx, orgID, models.ContactExternalIDKind(source), externalID)
}

// FindOrCreateByExternalID returns the contact matching (organization, source,
// external id), creating it when absent. Same conditional-insert race handling
// as AccountStore.FindOrCreateByExternalID.
func (s *ContactStore) FindOrCreateByExternalID(ctx context.Context, orgID int64, source, externalID, email, name string) (*models.Contact, error) {
	kind := models.ContactExternalIDKind(source)

	contact, err := s.findByKindValue(ctx, orgID, kind, externalID)
	if err == nil {
		return contact, nil
	}
	if !errors.Is(err, store.ErrContactNotFound) {
		return nil, err
	}

	externalIDs, err := json.Marshal(map[string]string{kind: externalID})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal external_ids: %w", err)
	}

	now := time.Now()
	query := `
		INSERT INTO contacts (
			organization_id, email, name, external_ids,
			external_id_kind, external_id_value,
			stage, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $8
		)
		ON CONFLICT (organization_id, external_id_kind, external_id_value) DO NOTHING
		RETURNING id
	`

	var contactID int64
	err = s.pool.QueryRow(ctx, query,
		orgID,
		nullIfEmpty(email),
		nullIfEmpty(name),
		externalIDs,
		kind,
		externalID,
		models.ContactStageLead,
		now,
	).Scan(&contactID)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// Another caller created the contact concurrently; return the winner
			return s.findByKindValue(ctx, orgID, kind, externalID)
		}
		return nil, fmt.Errorf("failed to create contact: %w", mapPostgresError(err))
	}

	log.Info().
		Int64("contact_id", contactID).
		Int64("org_id", orgID).
		Str("source", source).
		Str("external_id", externalID).
		Msg("Created contact")

	return &models.Contact{
		ID:             contactID,
		OrganizationID: orgID,
		Email:          email,
		Name:           name,
		ExternalIDs:    map[string]string{kind: externalID},
		Stage:          models.ContactStageLead,
		CreatedAt:      now,
		UpdatedAt:      now,
	}, nil
}

// AssignAccount links a contact to an account.
func (s *ContactStore) AssignAccount(ctx context.Context, contactID, accountID int64) error {
	query := `
		UPDATE contacts
		SET account_id = $2, updated_at = $3
		WHERE id = $1
	`

	result, err := s.pool.Exec(ctx, query, contactID, accountID, time.Now())
	if err != nil {
		return fmt.Errorf("failed to assign account: %w", mapPostgresError(err))
	}

	if result.RowsAffected() == 0 {
		return store.ErrContactNotFound
	}

	return nil
}

// UpdateStage sets the lifecycle stage of a contact.
func (s *ContactStore) UpdateStage(ctx context.Context, contactID int64, stage models.ContactStage) error {
	query := `
		UPDATE contacts
		SET stage = $2, updated_at = $3
		WHERE id = $1
	`

	result, err := s.pool.Exec(ctx, query, contactID, stage, time.Now())
	if err != nil {
		return fmt.Errorf("failed to update contact stage: %w", mapPostgresError(err))
	}

	if result.RowsAffected() == 0 {
		return store.ErrContactNotFound
	}

	return nil
}

// ListByOrganization returns all contacts for an organization, newest first.
func (s *ContactStore) ListByOrganization(ctx context.Context, orgID int64) ([]*models.Contact, error) {
	query := `
		SELECT ` + contactColumns + `
		FROM contacts
		WHERE organization_id = $1
		ORDER BY created_at DESC
	`

	return s.queryContacts(ctx, query, orgID)
}

// ListByAccount returns all contacts linked to an account, newest first.
func (s *ContactStore) ListByAccount(ctx context.Context, accountID int64) ([]*models.Contact, error) {
	query := `
		SELECT ` + contactColumns + `
		FROM contacts
		WHERE account_id = $1
		ORDER BY created_at DESC
	`

	return s.queryContacts(ctx, query, accountID)
}

func (s *ContactStore) queryContacts(ctx context.Context, query string, args ...any) ([]*models.Contact, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list contacts: %w", mapPostgresError(err))
	}
	defer rows.Close()

	var contacts []*models.Contact
	for rows.Next() {
		contact, err := scanContact(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan contact: %w", err)
		}
		contacts = append(contacts, contact)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating contacts: %w", err)
	}

	return contacts, nil
}

func (s *ContactStore) findByKindValue(ctx context.Context, orgID int64, kind, value string) (*models.Contact, error) {
	pair, err := json.Marshal(map[string]string{kind: value})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal external id pair: %w", err)
	}

	query := `
		SELECT ` + contactColumns + `
		FROM contacts
		WHERE organization_id = $1 AND external_ids @> $2
	`

	contact, err := scanContact(s.pool.QueryRow(ctx, query, orgID, pair))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrContactNotFound
		}
		return nil, fmt.Errorf("failed to find contact by external id: %w", mapPostgresError(err))
	}

	return contact, nil
}

func scanContact(row pgx.Row) (*models.Contact, error) {
	var c models.Contact
	var email, name *string
	var externalIDs []byte

	err := row.Scan(
		&c.ID,
		&c.OrganizationID,
		&c.AccountID,
		&email,
		&name,
		&externalIDs,
		&c.Stage,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if email != nil {
		c.Email = *email
	}
	if name != nil {
		c.Name = *name
	}
	if err := json.Unmarshal(externalIDs, &c.ExternalIDs); err != nil {
		return nil, fmt.Errorf("failed to unmarshal external_ids: %w", err)
	}

	return &c, nil
}

// nullIfEmpty converts empty strings to NULL for optional text columns.
func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
