package memory

import (
	"context"
	"sync"
	"testing"

	"github.com/revsignal/revsignal/internal/models"
	"github.com/revsignal/revsignal/internal/store"
	"github.com/stretchr/testify/require"
)

func TestAccountStore_FindOrCreateByExternalID(t *testing.T) {
	t.Run("creates account on first call", func(t *testing.T) {
		st := NewAccountStore()
		ctx := context.Background()

		account, err := st.FindOrCreateByExternalID(ctx, 1, "hubspot", "hs-100", "Acme Inc")
		require.NoError(t, err)
		require.NotZero(t, account.ID)
		require.Equal(t, int64(1), account.OrganizationID)
		require.Equal(t, "Acme Inc", account.Name)
		require.Equal(t, "hs-100", account.ExternalIDs["hubspot_company_id"])
		require.Equal(t, models.AccountStageVisitor, account.Stage)
	})

	t.Run("second call returns the same account", func(t *testing.T) {
		st := NewAccountStore()
		ctx := context.Background()

		first, err := st.FindOrCreateByExternalID(ctx, 1, "stripe", "cus_9", "")
		require.NoError(t, err)

		second, err := st.FindOrCreateByExternalID(ctx, 1, "stripe", "cus_9", "Ignored Name")
		require.NoError(t, err)
		require.Equal(t, first.ID, second.ID)

		accounts, err := st.ListByOrganization(ctx, 1)
		require.NoError(t, err)
		require.Len(t, accounts, 1)
	})

	t.Run("empty name falls back to placeholder", func(t *testing.T) {
		st := NewAccountStore()
		ctx := context.Background()

		account, err := st.FindOrCreateByExternalID(ctx, 1, "stripe", "cus_9", "")
		require.NoError(t, err)
		require.Equal(t, "Account cus_9", account.Name)
	})

	t.Run("same external id in another organization creates a new account", func(t *testing.T) {
		st := NewAccountStore()
		ctx := context.Background()

		first, err := st.FindOrCreateByExternalID(ctx, 1, "hubspot", "hs-100", "Acme")
		require.NoError(t, err)

		second, err := st.FindOrCreateByExternalID(ctx, 2, "hubspot", "hs-100", "Acme")
		require.NoError(t, err)
		require.NotEqual(t, first.ID, second.ID)
	})

	t.Run("concurrent calls with one key create exactly one account", func(t *testing.T) {
		st := NewAccountStore()
		ctx := context.Background()

		const callers = 32
		ids := make([]int64, callers)

		var wg sync.WaitGroup
		for i := range callers {
			wg.Add(1)
			go func() {
				defer wg.Done()
				account, err := st.FindOrCreateByExternalID(ctx, 1, "stripe", "cus_9", "")
				require.NoError(t, err)
				ids[i] = account.ID
			}()
		}
		wg.Wait()

		for _, id := range ids {
			require.Equal(t, ids[0], id)
		}

		accounts, err := st.ListByOrganization(ctx, 1)
		require.NoError(t, err)
		require.Len(t, accounts, 1)
	})
}

func TestAccountStore_FindByExternalID(t *testing.T) {
	t.Run("matches after account gains additional kinds", func(t *testing.T) {
		st := NewAccountStore()
		ctx := context.Background()

		err := st.Create(ctx, &models.Account{
			OrganizationID: 1,
			Name:           "Acme",
			ExternalIDs: map[string]string{
				"hubspot_company_id": "hs-100",
				"stripe_company_id":  "cus_9",
			},
		})
		require.NoError(t, err)

		byHubspot, err := st.FindByExternalID(ctx, 1, "hubspot", "hs-100")
		require.NoError(t, err)

		byStripe, err := st.FindByExternalID(ctx, 1, "stripe", "cus_9")
		require.NoError(t, err)
		require.Equal(t, byHubspot.ID, byStripe.ID)
	})

	t.Run("no match returns ErrAccountNotFound", func(t *testing.T) {
		st := NewAccountStore()
		ctx := context.Background()

		_, err := st.FindByExternalID(ctx, 1, "hubspot", "missing")
		require.ErrorIs(t, err, store.ErrAccountNotFound)
	})
}

func TestAccountStore_UpdateStage(t *testing.T) {
	t.Run("updates stage", func(t *testing.T) {
		st := NewAccountStore()
		ctx := context.Background()

		account, err := st.FindOrCreateByExternalID(ctx, 1, "hubspot", "hs-100", "Acme")
		require.NoError(t, err)

		err = st.UpdateStage(ctx, account.ID, models.AccountStageActivated)
		require.NoError(t, err)

		updated, err := st.Get(ctx, account.ID)
		require.NoError(t, err)
		require.Equal(t, models.AccountStageActivated, updated.Stage)
	})

	t.Run("missing account returns ErrAccountNotFound", func(t *testing.T) {
		st := NewAccountStore()
		err := st.UpdateStage(context.Background(), 42, models.AccountStageChurned)
		require.ErrorIs(t, err, store.ErrAccountNotFound)
	})
}
