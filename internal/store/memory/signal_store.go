package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/revsignal/revsignal/internal/models"
	"github.com/revsignal/revsignal/internal/store"
)

// SignalStore implements store.SignalStore using in-memory storage.
// Intended for tests and local development - data is lost on restart.
type SignalStore struct {
	mu sync.Mutex

	nextID  int64
	signals []*models.Signal
}

// NewSignalStore creates a new in-memory signal store.
func NewSignalStore() *SignalStore {
	return &SignalStore{nextID: 1}
}

// Create persists one signal. Signals are append-only.
func (s *SignalStore) Create(ctx context.Context, signal *models.Signal) error {
	if signal.OrganizationID == 0 || signal.Source == "" {
		return store.ErrSignalInvalid
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	signal.ID = s.nextID
	s.nextID++
	signal.CreatedAt = time.Now()
	if signal.Timestamp.IsZero() {
		signal.Timestamp = signal.CreatedAt
	}

	s.signals = append(s.signals, cloneSignal(signal))

	return nil
}

// ListBySource returns up to limit signals from one source, newest first.
func (s *SignalStore) ListBySource(ctx context.Context, orgID int64, source string, limit int) ([]*models.Signal, error) {
	return s.list(limit, func(sig *models.Signal) bool {
		return sig.OrganizationID == orgID && sig.Source == source
	})
}

// ListByAccount returns up to limit signals referencing an account, newest first.
func (s *SignalStore) ListByAccount(ctx context.Context, accountID int64, limit int) ([]*models.Signal, error) {
	return s.list(limit, func(sig *models.Signal) bool {
		return sig.AccountID != nil && *sig.AccountID == accountID
	})
}

// ListUnknownType returns up to limit signals with an unmapped event type,
// newest first.
func (s *SignalStore) ListUnknownType(ctx context.Context, orgID int64, limit int) ([]*models.Signal, error) {
	return s.list(limit, func(sig *models.Signal) bool {
		return sig.OrganizationID == orgID && sig.EventType == models.EventTypeUnknown
	})
}

// ListUnresolved returns up to limit signals missing both contact and account
// resolution, newest first.
func (s *SignalStore) ListUnresolved(ctx context.Context, orgID int64, limit int) ([]*models.Signal, error) {
	return s.list(limit, func(sig *models.Signal) bool {
		return sig.OrganizationID == orgID && sig.ContactID == nil && sig.AccountID == nil
	})
}

// Stats returns aggregate counts for an organization.
func (s *SignalStore) Stats(ctx context.Context, orgID int64) (*store.SignalStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := &store.SignalStats{
		BySource: make(map[string]int64),
	}
	byEventType := make(map[string]int64)

	for _, sig := range s.signals {
		if sig.OrganizationID != orgID {
			continue
		}
		stats.Total++
		stats.BySource[sig.Source]++
		byEventType[sig.EventType]++
		if sig.EventType == models.EventTypeUnknown {
			stats.UnknownType++
		}
	}

	for eventType, count := range byEventType {
		stats.TopEventTypes = append(stats.TopEventTypes, store.EventTypeCount{
			EventType: eventType,
			Count:     count,
		})
	}
	sort.Slice(stats.TopEventTypes, func(i, j int) bool {
		if stats.TopEventTypes[i].Count != stats.TopEventTypes[j].Count {
			return stats.TopEventTypes[i].Count > stats.TopEventTypes[j].Count
		}
		return stats.TopEventTypes[i].EventType < stats.TopEventTypes[j].EventType
	})
	if len(stats.TopEventTypes) > 10 {
		stats.TopEventTypes = stats.TopEventTypes[:10]
	}

	return stats, nil
}

func (s *SignalStore) list(limit int, match func(*models.Signal) bool) ([]*models.Signal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var result []*models.Signal
	for i := len(s.signals) - 1; i >= 0; i-- {
		if !match(s.signals[i]) {
			continue
		}
		result = append(result, cloneSignal(s.signals[i]))
		if limit > 0 && len(result) == limit {
			break
		}
	}

	return result, nil
}

func cloneSignal(signal *models.Signal) *models.Signal {
	clone := *signal
	if signal.ContactID != nil {
		id := *signal.ContactID
		clone.ContactID = &id
	}
	if signal.AccountID != nil {
		id := *signal.AccountID
		clone.AccountID = &id
	}
	clone.Metadata = make(map[string]any, len(signal.Metadata))
	for k, v := range signal.Metadata {
		clone.Metadata[k] = v
	}
	return &clone
}
