package store

import (
	"context"
	"errors"

	"github.com/revsignal/revsignal/internal/models"
)

// Sentinel errors for account store operations
var (
	ErrAccountNotFound      = errors.New("account not found")
	ErrAccountAlreadyExists = errors.New("account already exists")
)

// AccountStore defines the interface for account storage operations. Accounts
// represent external companies and are scoped to an organization.
type AccountStore interface {
	// Create creates a new account. Returns ErrAccountAlreadyExists when an
	// account with the same (organization, external-id kind, value) already
	// exists.
	Create(ctx context.Context, account *models.Account) error

	// Get retrieves an account by ID.
	// Returns ErrAccountNotFound if the account doesn't exist.
	Get(ctx context.Context, accountID int64) (*models.Account, error)

	// FindByExternalID looks up an account whose external-id map contains the
	// (kind, value) pair for the given source, scoped to the organization.
	// The lookup is a keyed-map containment check, so it stays correct when an
	// account later gains additional external-id kinds from other sources.
	// Returns ErrAccountNotFound when no account matches.
	FindByExternalID(ctx context.Context, orgID int64, source, externalID string) (*models.Account, error)

	// FindOrCreateByExternalID returns the account matching (organization,
	// source, external id), creating it when absent. Concurrent calls with the
	// same key must result in exactly one account row; every caller observes
	// the same ID. A lookup-then-insert without a creation guard does not
	// satisfy this contract.
	//
	// name is best-effort display data used only at creation time; an empty
	// name falls back to a placeholder derived from the external id.
	FindOrCreateByExternalID(ctx context.Context, orgID int64, source, externalID, name string) (*models.Account, error)

	// UpdateStage sets the lifecycle stage of an account.
	// Returns ErrAccountNotFound if the account doesn't exist.
	UpdateStage(ctx context.Context, accountID int64, stage models.AccountStage) error

	// ListByOrganization returns all accounts for an organization, newest first.
	ListByOrganization(ctx context.Context, orgID int64) ([]*models.Account, error)
}
