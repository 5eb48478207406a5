package store

import (
	"context"
	"errors"

	"github.com/revsignal/revsignal/internal/models"
)

// Sentinel errors for contact store operations
var (
	ErrContactNotFound      = errors.New("contact not found")
	ErrContactAlreadyExists = errors.New("contact already exists")
)

// ContactStore defines the interface for contact storage operations. Contacts
// represent external people and are scoped to an organization.
type ContactStore interface {
	// Create creates a new contact. Returns ErrContactAlreadyExists when a
	// contact with the same (organization, external-id kind, value) already
	// exists.
	Create(ctx context.Context, contact *models.Contact) error

	// Get retrieves a contact by ID.
	// Returns ErrContactNotFound if the contact doesn't exist.
	Get(ctx context.Context, contactID int64) (*models.Contact, error)

	// FindByExternalID looks up a contact whose external-id map contains the
	// (kind, value) pair for the given source, scoped to the organization.
	// Returns ErrContactNotFound when no contact matches.
	FindByExternalID(ctx context.Context, orgID int64, source, externalID string) (*models.Contact, error)

	// FindOrCreateByExternalID returns the contact matching (organization,
	// source, external id), creating it when absent. Same exactly-once
	// creation contract as AccountStore.FindOrCreateByExternalID: concurrent
	// calls with one key produce one row and identical IDs.
	//
	// email and name are best-effort display data applied only at creation.
	FindOrCreateByExternalID(ctx context.Context, orgID int64, source, externalID, email, name string) (*models.Contact, error)

	// AssignAccount links a contact to an account.
	// Returns ErrContactNotFound if the contact doesn't exist.
	AssignAccount(ctx context.Context, contactID, accountID int64) error

	// UpdateStage sets the lifecycle stage of a contact.
	// Returns ErrContactNotFound if the contact doesn't exist.
	UpdateStage(ctx context.Context, contactID int64, stage models.ContactStage) error

	// ListByOrganization returns all contacts for an organization, newest first.
	ListByOrganization(ctx context.Context, orgID int64) ([]*models.Contact, error)

	// ListByAccount returns all contacts linked to an account, newest first.
	ListByAccount(ctx context.Context, accountID int64) ([]*models.Contact, error)
}
