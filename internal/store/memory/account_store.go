package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/revsignal/revsignal/internal/models"
	"github.com/revsignal/revsignal/internal/store"
)

// AccountStore implements store.AccountStore using in-memory storage.
// Intended for tests and local development - data is lost on restart.
type AccountStore struct {
	mu sync.Mutex

	nextID   int64
	accounts map[int64]*models.Account
}

// NewAccountStore creates a new in-memory account store.
func NewAccountStore() *AccountStore {
	return &AccountStore{
		nextID:   1,
		accounts: make(map[int64]*models.Account),
	}
}

// Create creates a new account in memory.
func (s *AccountStore) Create(ctx context.Context, account *models.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Enforce the (organization, kind, value) uniqueness invariant
	for kind, value := range account.ExternalIDs {
		if s.findByKindValue(account.OrganizationID, kind, value) != nil {
			return store.ErrAccountAlreadyExists
		}
	}

	now := time.Now()
	account.ID = s.nextID
	s.nextID++
	account.CreatedAt = now
	account.UpdatedAt = now
	if account.Stage == "" {
		account.Stage = models.AccountStageVisitor
		account.StageUpdatedAt = now
	}

	clone := cloneAccount(account)
	s.accounts[account.ID] = clone

	return nil
}

// Get retrieves an account by ID.
func (s *AccountStore) Get(ctx context.Context, accountID int64) (*models.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	account, exists := s.accounts[accountID]
	if !exists {
		return nil, store.ErrAccountNotFound
	}

	return cloneAccount(account), nil
}

// FindByExternalID looks up an account by (kind, value) containment within the
// organization scope.
func (s *AccountStore) FindByExternalID(ctx context.Context, orgID int64, source, externalID string) (*models.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	kind := models.CompanyExternalIDKind(source)
	if account := s.findByKindValue(orgID, kind, externalID); account != nil {
		return cloneAccount(account), nil
	}

	return nil, store.ErrAccountNotFound
}

// FindOrCreateByExternalID returns the matching account, creating it when
// absent. The store mutex serializes concurrent callers, so exactly one
// account is ever created per key.
func (s *AccountStore) FindOrCreateByExternalID(ctx context.Context, orgID int64, source, externalID, name string) (*models.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	kind := models.CompanyExternalIDKind(source)
	if account := s.findByKindValue(orgID, kind, externalID); account != nil {
		return cloneAccount(account), nil
	}

	if name == "" {
		name = fmt.Sprintf("Account %s", externalID)
	}

	now := time.Now()
	account := &models.Account{
		ID:             s.nextID,
		OrganizationID: orgID,
		Name:           name,
		ExternalIDs:    map[string]string{kind: externalID},
		Stage:          models.AccountStageVisitor,
		StageUpdatedAt: now,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	s.nextID++
	s.accounts[account.ID] = account

	return cloneAccount(account), nil
}

// UpdateStage sets the lifecycle stage of an account.
func (s *AccountStore) UpdateStage(ctx context.Context, accountID int64, stage models.AccountStage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	account, exists := s.accounts[accountID]
	if !exists {
		return store.ErrAccountNotFound
	}

	now := time.Now()
	account.Stage = stage
	account.StageUpdatedAt = now
	account.UpdatedAt = now

	return nil
}

// ListByOrganization returns all accounts for an organization, newest first.
func (s *AccountStore) ListByOrganization(ctx context.Context, orgID int64) ([]*models.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var result []*models.Account
	// Iterate ids descending so newest created come first
	for id := s.nextID - 1; id >= 1; id-- {
		account, exists := s.accounts[id]
		if !exists || account.OrganizationID != orgID {
			continue
		}
		result = append(result, cloneAccount(account))
	}

	return result, nil
}

// findByKindValue scans the external-id maps for a matching pair. Callers must
// hold the mutex.
func (s *AccountStore) findByKindValue(orgID int64, kind, value string) *models.Account {
	for _, account := range s.accounts {
		if account.OrganizationID != orgID {
			continue
		}
		if account.ExternalIDs[kind] == value {
			return account
		}
	}
	return nil
}

func cloneAccount(account *models.Account) *models.Account {
	clone := *account
	clone.ExternalIDs = make(map[string]string, len(account.ExternalIDs))
	for k, v := range account.ExternalIDs {
		clone.ExternalIDs[k] = v
	}
	return &clone
}
