package memory

import (
	"context"
	"sync"
	"time"

	"github.com/revsignal/revsignal/internal/models"
	"github.com/revsignal/revsignal/internal/store"
)

// OrganizationStore implements store.OrganizationStore using in-memory storage.
// Intended for tests and local development.
type OrganizationStore struct {
	mu sync.RWMutex

	nextID int64
	orgs   map[int64]*models.Organization
}

// NewOrganizationStore creates a new in-memory organization store.
func NewOrganizationStore() *OrganizationStore {
	return &OrganizationStore{
		nextID: 1,
		orgs:   make(map[int64]*models.Organization),
	}
}

// Add seeds an organization. Organizations are administered outside the
// pipeline, so the in-memory store only needs a way to seed tenants for tests.
func (s *OrganizationStore) Add(name string) *models.Organization {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	org := &models.Organization{
		ID:        s.nextID,
		Name:      name,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.nextID++
	s.orgs[org.ID] = org

	clone := *org
	return &clone
}

// Get retrieves an organization by ID.
func (s *OrganizationStore) Get(ctx context.Context, orgID int64) (*models.Organization, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	org, exists := s.orgs[orgID]
	if !exists {
		return nil, store.ErrOrganizationNotFound
	}

	clone := *org
	return &clone, nil
}
