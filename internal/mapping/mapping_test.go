package mapping

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/revsignal/revsignal/internal/models"
	"github.com/stretchr/testify/require"
)

func TestTable_CanonicalType(t *testing.T) {
	table, err := Parse([]byte(`
hubspot:
  contact.creation: contact_created
stripe:
  customer.created: customer_created
`))
	require.NoError(t, err)

	t.Run("configured pairs return the configured value", func(t *testing.T) {
		require.Equal(t, "contact_created", table.CanonicalType("hubspot", "contact.creation"))
		require.Equal(t, "customer_created", table.CanonicalType("stripe", "customer.created"))
	})

	t.Run("unmapped raw type returns unknown", func(t *testing.T) {
		canonical, ok := table.Lookup("hubspot", "contact.merge")
		require.False(t, ok)
		require.Equal(t, models.EventTypeUnknown, canonical)
	})

	t.Run("unknown source returns unknown", func(t *testing.T) {
		canonical, ok := table.Lookup("salesforce", "anything")
		require.False(t, ok)
		require.Equal(t, models.EventTypeUnknown, canonical)
	})

	t.Run("empty strings return unknown", func(t *testing.T) {
		require.Equal(t, models.EventTypeUnknown, table.CanonicalType("", ""))
	})
}

func TestDefault(t *testing.T) {
	table := Default()

	// Spot-check vocabulary for every shipped source
	require.Equal(t, "contact_created", table.CanonicalType("hubspot", "contact.creation"))
	require.Equal(t, "subscription_started", table.CanonicalType("stripe", "customer.subscription.created"))
	require.Equal(t, "email_opened", table.CanonicalType("customerio", "email_opened"))
	require.Equal(t, "page_viewed", table.CanonicalType("posthog", "$pageview"))
	require.ElementsMatch(t, []string{"hubspot", "stripe", "customerio", "posthog"}, table.Sources())
}

func TestParse_Invalid(t *testing.T) {
	_, err := Parse([]byte("not: [valid: mapping"))
	require.Error(t, err)
}

func TestLoader(t *testing.T) {
	writeMapping := func(t *testing.T, path, body string) {
		t.Helper()
		require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	}

	t.Run("initial load", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "mapping.yaml")
		writeMapping(t, path, "hubspot:\n  contact.creation: contact_created\n")

		loader, err := NewLoader(path)
		require.NoError(t, err)
		require.Equal(t, "contact_created", loader.CanonicalType("hubspot", "contact.creation"))
	})

	t.Run("missing file fails", func(t *testing.T) {
		_, err := NewLoader(filepath.Join(t.TempDir(), "absent.yaml"))
		require.Error(t, err)
	})

	t.Run("reloads on change", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "mapping.yaml")
		writeMapping(t, path, "hubspot:\n  contact.creation: contact_created\n")

		loader, err := NewLoader(path)
		require.NoError(t, err)

		stop, err := loader.Watch()
		require.NoError(t, err)
		defer stop()

		writeMapping(t, path, "hubspot:\n  contact.creation: contact_created\n  contact.merge: contact_merged\n")

		require.Eventually(t, func() bool {
			_, ok := loader.Lookup("hubspot", "contact.merge")
			return ok
		}, 5*time.Second, 20*time.Millisecond)
	})

	t.Run("bad reload keeps previous table", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "mapping.yaml")
		writeMapping(t, path, "hubspot:\n  contact.creation: contact_created\n")

		loader, err := NewLoader(path)
		require.NoError(t, err)

		stop, err := loader.Watch()
		require.NoError(t, err)
		defer stop()

		writeMapping(t, path, "hubspot: [broken")

		// Give the watcher a moment; the old table must survive
		time.Sleep(200 * time.Millisecond)
		require.Equal(t, "contact_created", loader.CanonicalType("hubspot", "contact.creation"))
	})
}
