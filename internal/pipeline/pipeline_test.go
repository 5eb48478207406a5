package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"

	"github.com/revsignal/revsignal/internal/identity"
	"github.com/revsignal/revsignal/internal/mapping"
	"github.com/revsignal/revsignal/internal/models"
	"github.com/revsignal/revsignal/internal/store/memory"
	"github.com/stretchr/testify/require"
)

// flakySignalStore injects a bounded number of Create failures in front of
// the real memory store.
type flakySignalStore struct {
	*memory.SignalStore

	mu       sync.Mutex
	failures int
	err      error
}

func (s *flakySignalStore) failNext(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures++
	s.err = err
}

func (s *flakySignalStore) Create(ctx context.Context, signal *models.Signal) error {
	s.mu.Lock()
	if s.failures > 0 {
		s.failures--
		err := s.err
		s.mu.Unlock()
		return err
	}
	s.mu.Unlock()
	return s.SignalStore.Create(ctx, signal)
}

type fixture struct {
	pipeline *Pipeline
	accounts *memory.AccountStore
	contacts *memory.ContactStore
	signals  *flakySignalStore
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	accounts := memory.NewAccountStore()
	contacts := memory.NewContactStore()
	signals := &flakySignalStore{SignalStore: memory.NewSignalStore()}
	table := mapping.Default()

	pipeline := New(identity.NewResolver(accounts, contacts), signals,
		NewHubSpotAdapter(table),
		NewStripeAdapter(table),
		NewCustomerIOAdapter(table),
		NewPostHogAdapter(table),
	)
	return &fixture{pipeline: pipeline, accounts: accounts, contacts: contacts, signals: signals}
}

func (f *fixture) signalsFor(t *testing.T, source string) []*models.Signal {
	t.Helper()
	signals, err := f.signals.ListBySource(context.Background(), 1, source, 100)
	require.NoError(t, err)
	return signals
}

func TestPipeline_Normalize(t *testing.T) {
	ctx := context.Background()

	t.Run("crm contact creation without a company", func(t *testing.T) {
		f := newFixture(t)

		payload := json.RawMessage(`[{"subscriptionType": "contact.creation", "objectId": 123, "sourceId": "55", "occurredAt": 1714521600000}]`)
		require.NoError(t, f.pipeline.Normalize(ctx, "hubspot", 1, payload))

		signals := f.signalsFor(t, "hubspot")
		require.Len(t, signals, 1)
		require.Equal(t, "contact_created", signals[0].EventType)
		require.NotNil(t, signals[0].ContactID)
		require.Nil(t, signals[0].AccountID)

		contact, err := f.contacts.Get(ctx, *signals[0].ContactID)
		require.NoError(t, err)
		require.Equal(t, "55", contact.ExternalIDs["hubspot_contact_id"])
	})

	t.Run("analytics event creates contact and account", func(t *testing.T) {
		f := newFixture(t)

		payload := json.RawMessage(`{"event": "$pageview", "timestamp": "2024-05-01T00:00:00Z",
			"distinct_id": "u1", "properties": {"company_id": "acme"}}`)
		require.NoError(t, f.pipeline.Normalize(ctx, "posthog", 1, payload))

		signals := f.signalsFor(t, "posthog")
		require.Len(t, signals, 1)
		require.NotNil(t, signals[0].ContactID)
		require.NotNil(t, signals[0].AccountID)

		account, err := f.accounts.Get(ctx, *signals[0].AccountID)
		require.NoError(t, err)
		require.Equal(t, "acme", account.ExternalIDs["posthog_company_id"])
	})

	t.Run("concurrent deliveries for one customer create one entity pair", func(t *testing.T) {
		f := newFixture(t)

		payload := json.RawMessage(`{"type": "invoice.paid", "created": 1714521600,
			"data": {"object": {"id": "cus_9", "metadata": {"company_id": "acme-co"}}}}`)

		const deliveries = 16
		var wg sync.WaitGroup
		errs := make([]error, deliveries)
		for i := range deliveries {
			wg.Add(1)
			go func() {
				defer wg.Done()
				errs[i] = f.pipeline.Normalize(ctx, "stripe", 1, payload)
			}()
		}
		wg.Wait()
		for _, err := range errs {
			require.NoError(t, err)
		}

		contacts, err := f.contacts.ListByOrganization(ctx, 1)
		require.NoError(t, err)
		require.Len(t, contacts, 1)

		accounts, err := f.accounts.ListByOrganization(ctx, 1)
		require.NoError(t, err)
		require.Len(t, accounts, 1)

		// Every retried delivery still appends its own signal
		require.Len(t, f.signalsFor(t, "stripe"), deliveries)
	})

	t.Run("unmapped type is persisted as unknown", func(t *testing.T) {
		f := newFixture(t)

		payload := json.RawMessage(`{"metric": "sms_sent", "timestamp": 1714521600,
			"data": {"customer_id": "c-1"}}`)
		require.NoError(t, f.pipeline.Normalize(ctx, "customerio", 1, payload))

		unknown, err := f.signals.ListUnknownType(ctx, 1, 10)
		require.NoError(t, err)
		require.Len(t, unknown, 1)
		require.Equal(t, models.EventTypeUnknown, unknown[0].EventType)
		require.Equal(t, "sms_sent", unknown[0].Metadata[models.MetadataKeyOriginalEventType])
	})

	t.Run("event with no identifiers is persisted unresolved", func(t *testing.T) {
		f := newFixture(t)

		payload := json.RawMessage(`{"metric": "email_bounced", "timestamp": 1714521600}`)
		require.NoError(t, f.pipeline.Normalize(ctx, "customerio", 1, payload))

		unresolved, err := f.signals.ListUnresolved(ctx, 1, 10)
		require.NoError(t, err)
		require.Len(t, unresolved, 1)
	})

	t.Run("unknown source is rejected", func(t *testing.T) {
		f := newFixture(t)
		err := f.pipeline.Normalize(ctx, "zendesk", 1, json.RawMessage(`{}`))
		require.ErrorContains(t, err, "unknown source")
	})

	t.Run("organization id is mandatory", func(t *testing.T) {
		f := newFixture(t)
		err := f.pipeline.Normalize(ctx, "stripe", 0, json.RawMessage(`{}`))
		require.ErrorContains(t, err, "organization id")
	})

	t.Run("undecodable payload is rejected and nothing persisted", func(t *testing.T) {
		f := newFixture(t)
		err := f.pipeline.Normalize(ctx, "hubspot", 1, json.RawMessage(`[not json`))
		require.Error(t, err)
		require.Empty(t, f.signalsFor(t, "hubspot"))
	})

	t.Run("one failing event does not block its siblings", func(t *testing.T) {
		f := newFixture(t)
		f.signals.failNext(fmt.Errorf("disk on fire"))

		payload := json.RawMessage(`[
			{"subscriptionType": "contact.creation", "sourceId": "1"},
			{"subscriptionType": "contact.creation", "sourceId": "2"},
			{"subscriptionType": "contact.creation", "sourceId": "3"}
		]`)
		err := f.pipeline.Normalize(ctx, "hubspot", 1, payload)
		require.ErrorContains(t, err, "disk on fire")

		// The two siblings of the failed event still landed
		require.Len(t, f.signalsFor(t, "hubspot"), 2)
	})
}

func TestPipeline_DuplicateAdapterPanics(t *testing.T) {
	table := mapping.Default()
	require.Panics(t, func() {
		New(identity.NewResolver(memory.NewAccountStore(), memory.NewContactStore()), memory.NewSignalStore(),
			NewStripeAdapter(table), NewStripeAdapter(table))
	})
}
