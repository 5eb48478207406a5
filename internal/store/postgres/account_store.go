package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/revsignal/revsignal/internal/models"
	"github.com/revsignal/revsignal/internal/store"
	"github.com/rs/zerolog/log"
)

// AccountStore implements store.AccountStore using PostgreSQL.
type AccountStore struct {
	pool *pgxpool.Pool
}

// NewAccountStore creates a new PostgreSQL-backed account store.
// It shares the connection pool with other stores.
func NewAccountStore(pool *pgxpool.Pool) *AccountStore {
	return &AccountStore{pool: pool}
}

const accountColumns = `
	id, organization_id, name, domain, external_ids,
	stage, stage_updated_at, created_at, updated_at
`

// Create creates a new account in the database.
func (s *AccountStore) Create(ctx context.Context, account *models.Account) error {
	kind, value, err := creationIdentity(account.ExternalIDs)
	if err != nil {
		return fmt.Errorf("account: %w", err)
	}

	externalIDs, err := json.Marshal(account.ExternalIDs)
	if err != nil {
		return fmt.Errorf("failed to marshal external_ids: %w", err)
	}

	if account.Stage == "" {
		account.Stage = models.AccountStageVisitor
	}

	now := time.Now()
	query := `
		INSERT INTO accounts (
			organization_id, name, domain, external_ids,
			external_id_kind, external_id_value,
			stage, stage_updated_at, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $8, $8
		)
		RETURNING id
	`

	var domain any
	if account.Domain != "" {
		domain = account.Domain
	}

	err = s.pool.QueryRow(ctx, query,
		account.OrganizationID,
		account.Name,
		domain,
		externalIDs,
		kind,
		value,
		account.Stage,
		now,
	).Scan(&account.ID)

	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrAccountAlreadyExists
		}
		return fmt.Errorf("failed to create account: %w", mapPostgresError(err))
	}

	account.StageUpdatedAt = now
	account.CreatedAt = now
	account.UpdatedAt = now

	return nil
}

// Get retrieves an account by ID.
func (s *AccountStore) Get(ctx context.Context, accountID int64) (*models.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1`

	account, err := scanAccount(s.pool.QueryRow(ctx, query, accountID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrAccountNotFound
		}
		return nil, fmt.Errorf("failed to get account: %w", mapPostgresError(err))
	}

	return account, nil
}

// FindByExternalID looks up an account by JSONB containment on the external-id
// map, scoped to the organization. The containment check keeps the lookup
// correct when an account later gains additional external-id kinds.
func (s *AccountStore) FindByExternalID(ctx context.Context, orgID int64, source, externalID string) (*models.Account, error) {
	return s.findByKindValue(ctx, orgID, models.CompanyExternalIDKind(source), externalID)
}

// FindOrCreateByExternalID returns the account matching (organization, source,
// external id), creating it when absent. Creation uses a conditional insert
// guarded by a unique index; on conflict the winner's row is re-read, so
// concurrent callers all observe the same account.
func (s *AccountStore) FindOrCreateByExternalID(ctx context.Context, orgID int64, source, externalID, name string) (*models.Account, error) {
	kind := models.CompanyExternalIDKind(source)

	account, err := s.findByKindValue(ctx, orgID, kind, externalID)
	if err == nil {
		return account, nil
	}
	if !errors.Is(err, store.ErrAccountNotFound) {
		return nil, err
	}

	if name == "" {
		name = fmt.Sprintf("Account %s", externalID)
	}

	externalIDs, err := json.Marshal(map[string]string{kind: externalID})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal external_ids: %w", err)
	}

	now := time.Now()
	query := `
		INSERT INTO accounts (
			organization_id, name, external_ids,
			external_id_kind, external_id_value,
			stage, stage_updated_at, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $7, $7
		)
		ON CONFLICT (organization_id, external_id_kind, external_id_value) DO NOTHING
		RETURNING id
	`

	var accountID int64
	err = s.pool.QueryRow(ctx, query,
		orgID,
		name,
		externalIDs,
		kind,
		externalID,
		models.AccountStageVisitor,
		now,
	).Scan(&accountID)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// Another caller created the account concurrently; return the winner
			return s.findByKindValue(ctx, orgID, kind, externalID)
		}
		return nil, fmt.Errorf("failed to create account: %w", mapPostgresError(err))
	}

	log.Info().
		Int64("account_id", accountID).
		Int64("org_id", orgID).
		Str("source", source).
		Str("external_id", externalID).
		Msg("Created account")

	return &models.Account{
		ID:             accountID,
		OrganizationID: orgID,
		Name:           name,
		ExternalIDs:    map[string]string{kind: externalID},
		Stage:          models.AccountStageVisitor,
		StageUpdatedAt: now,
		CreatedAt:      now,
		UpdatedAt:      now,
	}, nil
}

// UpdateStage sets the lifecycle stage of an account.
func (s *AccountStore) UpdateStage(ctx context.Context, accountID int64, stage models.AccountStage) error {
	query := `
		UPDATE accounts
		SET stage = $2, stage_updated_at = $3, updated_at = $3
		WHERE id = $1
	`

	result, err := s.pool.Exec(ctx, query, accountID, stage, time.Now())
	if err != nil {
		return fmt.Errorf("failed to update account stage: %w", mapPostgresError(err))
	}

	if result.RowsAffected() == 0 {
		return store.ErrAccountNotFound
	}

	return nil
}

// ListByOrganization returns all accounts for an organization, newest first.
func (s *AccountStore) ListByOrganization(ctx context.Context, orgID int64) ([]*models.Account, error) {
	query := `
		SELECT ` + accountColumns + `
		FROM accounts
		WHERE organization_id = $1
		ORDER BY created_at DESC
	`

	rows, err := s.pool.Query(ctx, query, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", mapPostgresError(err))
	}
	defer rows.Close()

	var accounts []*models.Account
	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}
		accounts = append(accounts, account)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating accounts: %w", err)
	}

	return accounts, nil
}

func (s *AccountStore) findByKindValue(ctx context.Context, orgID int64, kind, value string) (*models.Account, error) {
	pair, err := json.Marshal(map[string]string{kind: value})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal external id pair: %w", err)
	}

	query := `
		SELECT ` + accountColumns + `
		FROM accounts
		WHERE organization_id = $1 AND external_ids @> $2
	`

	account, err := scanAccount(s.pool.QueryRow(ctx, query, orgID, pair))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrAccountNotFound
		}
		return nil, fmt.Errorf("failed to find account by external id: %w", mapPostgresError(err))
	}

	return account, nil
}

func scanAccount(row pgx.Row) (*models.Account, error) {
	var a models.Account
	var domain *string
	var externalIDs []byte

	err := row.Scan(
		&a.ID,
		&a.OrganizationID,
		&a.Name,
		&domain,
		&externalIDs,
		&a.Stage,
		&a.StageUpdatedAt,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if domain != nil {
		a.Domain = *domain
	}
	if err := json.Unmarshal(externalIDs, &a.ExternalIDs); err != nil {
		return nil, fmt.Errorf("failed to unmarshal external_ids: %w", err)
	}

	return &a, nil
}

// creationIdentity picks the guard (kind, value) pair a row is created under.
// With several kinds present the lexicographically first is used so the choice
// is deterministic.
func creationIdentity(externalIDs map[string]string) (string, string, error) {
	if len(externalIDs) == 0 {
		return "", "", fmt.Errorf("at least one external id is required")
	}

	kinds := make([]string, 0, len(externalIDs))
	for kind := range externalIDs {
		kinds = append(kinds, kind)
	}
	sort.Strings(kinds)

	return kinds[0], externalIDs[kinds[0]], nil
}
