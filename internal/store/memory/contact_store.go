package memory

import (
	"context"
	"sync"
	"time"

	"github.com/revsignal/revsignal/internal/models"
	"github.com/revsignal/revsignal/internal/store"
)

// ContactStore implements store.ContactStore using in-memory storage.
// Intended for tests and local development - data is lost on restart.
type ContactStore struct {
	mu sync.Mutex

	nextID   int64
	contacts map[int64]*models.Contact
}

// NewContactStore creates a new in-memory contact store.
func NewContactStore() *ContactStore {
	return &ContactStore{
		nextID:   1,
		contacts: make(map[int64]*models.Contact),
	}
}

// Create creates a new contact in memory.
func (s *ContactStore) Create(ctx context.Context, contact *models.Contact) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for kind, value := range contact.ExternalIDs {
		if s.findByKindValue(contact.OrganizationID, kind, value) != nil {
			return store.ErrContactAlreadyExists
		}
	}

	now := time.Now()
	contact.ID = s.nextID
	s.nextID++
	contact.CreatedAt = now
	contact.UpdatedAt = now
	if contact.Stage == "" {
		contact.Stage = models.ContactStageLead
	}

	s.contacts[contact.ID] = cloneContact(contact)

	return nil
}

// Get retrieves a contact by ID.
func (s *ContactStore) Get(ctx context.Context, contactID int64) (*models.Contact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	contact, exists := s.contacts[contactID]
	if !exists {
		return nil, store.ErrContactNotFound
	}

	return cloneContact(contact), nil
}

// FindByExternalID looks up a contact by (kind, value) containment within the
// organization scope.
func (s *ContactStore) FindByExternalID(ctx context.Context, orgID int64, source, externalID string) (*models.Contact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	kind := models.ContactExternalIDKind(source)
	if contact := s.findByKindValue(orgID, kind, externalID); contact != nil {
		return cloneContact(contact), nil
	}

	return nil, store.ErrContactNotFound
}

// FindOrCreateByExternalID returns the matching contact, creating it when
// absent. The store mutex serializes concurrent callers, so exactly one
// contact is ever created per key.
func (s *ContactStore) FindOrCreateByExternalID(ctx context.Context, orgID int64, source, externalID, email, name string) (*models.Contact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	kind := models.ContactExternalIDKind(source)
	if contact := s.findByKindValue(orgID, kind, externalID); contact != nil {
		return cloneContact(contact), nil
	}

	now := time.Now()
	contact := &models.Contact{
		ID:             s.nextID,
		OrganizationID: orgID,
		Email:          email,
		Name:           name,
		ExternalIDs:    map[string]string{kind: externalID},
		Stage:          models.ContactStageLead,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	s.nextID++
	s.contacts[contact.ID] = contact

	return cloneContact(contact), nil
}

// AssignAccount links a contact to an account.
func (s *ContactStore) AssignAccount(ctx context.Context, contactID, accountID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	contact, exists := s.contacts[contactID]
	if !exists {
		return store.ErrContactNotFound
	}

	contact.AccountID = &accountID
	contact.UpdatedAt = time.Now()

	return nil
}

// UpdateStage sets the lifecycle stage of a contact.
func (s *ContactStore) UpdateStage(ctx context.Context, contactID int64, stage models.ContactStage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	contact, exists := s.contacts[contactID]
	if !exists {
		return store.ErrContactNotFound
	}

	contact.Stage = stage
	contact.UpdatedAt = time.Now()

	return nil
}

// ListByOrganization returns all contacts for an organization, newest first.
func (s *ContactStore) ListByOrganization(ctx context.Context, orgID int64) ([]*models.Contact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var result []*models.Contact
	for id := s.nextID - 1; id >= 1; id-- {
		contact, exists := s.contacts[id]
		if !exists || contact.OrganizationID != orgID {
			continue
		}
		result = append(result, cloneContact(contact))
	}

	return result, nil
}

// ListByAccount returns all contacts linked to an account, newest first.
func (s *ContactStore) ListByAccount(ctx context.Context, accountID int64) ([]*models.Contact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var result []*models.Contact
	for id := s.nextID - 1; id >= 1; id-- {
		contact, exists := s.contacts[id]
		if !exists || contact.AccountID == nil || *contact.AccountID != accountID {
			continue
		}
		result = append(result, cloneContact(contact))
	}

	return result, nil
}

// findByKindValue scans the external-id maps for a matching pair. Callers must
// hold the mutex.
func (s *ContactStore) findByKindValue(orgID int64, kind, value string) *models.Contact {
	for _, contact := range s.contacts {
		if contact.OrganizationID != orgID {
			continue
		}
		if contact.ExternalIDs[kind] == value {
			return contact
		}
	}
	return nil
}

func cloneContact(contact *models.Contact) *models.Contact {
	clone := *contact
	clone.ExternalIDs = make(map[string]string, len(contact.ExternalIDs))
	for k, v := range contact.ExternalIDs {
		clone.ExternalIDs[k] = v
	}
	if contact.AccountID != nil {
		id := *contact.AccountID
		clone.AccountID = &id
	}
	return &clone
}
