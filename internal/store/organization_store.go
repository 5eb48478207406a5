package store

import (
	"context"
	"errors"

	"github.com/revsignal/revsignal/internal/models"
)

// Sentinel errors for organization store operations
var (
	ErrOrganizationNotFound = errors.New("organization not found")
)

// OrganizationStore defines read access to organizations (tenants).
// Organizations are administered outside the ingestion pipeline; the pipeline
// only needs to verify that a routed organization id exists.
type OrganizationStore interface {
	// Get retrieves an organization by ID.
	// Returns ErrOrganizationNotFound if the organization doesn't exist.
	Get(ctx context.Context, orgID int64) (*models.Organization, error)
}
