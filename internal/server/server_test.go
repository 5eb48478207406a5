package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/revsignal/revsignal/internal/identity"
	"github.com/revsignal/revsignal/internal/mapping"
	"github.com/revsignal/revsignal/internal/models"
	"github.com/revsignal/revsignal/internal/pipeline"
	"github.com/revsignal/revsignal/internal/store/memory"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) (*httptest.Server, *models.Organization) {
	t.Helper()

	orgs := memory.NewOrganizationStore()
	org := orgs.Add("Acme")

	accounts := memory.NewAccountStore()
	contacts := memory.NewContactStore()
	signals := memory.NewSignalStore()
	table := mapping.Default()

	p := pipeline.New(identity.NewResolver(accounts, contacts), signals,
		pipeline.NewHubSpotAdapter(table),
		pipeline.NewStripeAdapter(table),
		pipeline.NewCustomerIOAdapter(table),
		pipeline.NewPostHogAdapter(table),
	)

	ts := httptest.NewServer(NewServer(p, signals, orgs).Handler(zerolog.Nop()))
	t.Cleanup(ts.Close)
	return ts, org
}

func post(t *testing.T, ts *httptest.Server, path, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(ts.URL+path, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func get(t *testing.T, ts *httptest.Server, path string) *http.Response {
	t.Helper()
	resp, err := http.Get(ts.URL + path)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decodeSignals(t *testing.T, resp *http.Response) []map[string]any {
	t.Helper()
	var body struct {
		Signals []map[string]any `json:"signals"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return body.Signals
}

func TestHealthEndpoint(t *testing.T) {
	ts, _ := newTestServer(t)

	resp := get(t, ts, "/health")
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestWebhookIngress(t *testing.T) {
	t.Run("accepts a stripe delivery and persists the signal", func(t *testing.T) {
		ts, org := newTestServer(t)

		resp := post(t, ts, fmt.Sprintf("/webhooks/stripe/%d", org.ID), `{
			"type": "customer.subscription.created",
			"created": 1714521600,
			"data": {"object": {"id": "cus_9", "metadata": {"company_id": "acme-co"}}}
		}`)
		require.Equal(t, http.StatusAccepted, resp.StatusCode)

		listResp := get(t, ts, fmt.Sprintf("/v1/organizations/%d/signals?source=stripe", org.ID))
		require.Equal(t, http.StatusOK, listResp.StatusCode)

		signals := decodeSignals(t, listResp)
		require.Len(t, signals, 1)
		require.Equal(t, "subscription_started", signals[0]["event_type"])
		require.NotNil(t, signals[0]["contact_id"])
		require.NotNil(t, signals[0]["account_id"])
	})

	t.Run("accepts a batched hubspot delivery", func(t *testing.T) {
		ts, org := newTestServer(t)

		resp := post(t, ts, fmt.Sprintf("/webhooks/hubspot/%d", org.ID), `[
			{"subscriptionType": "contact.creation", "sourceId": "55"},
			{"subscriptionType": "contact.propertyChange", "sourceId": "55"}
		]`)
		require.Equal(t, http.StatusAccepted, resp.StatusCode)

		listResp := get(t, ts, fmt.Sprintf("/v1/organizations/%d/signals?source=hubspot", org.ID))
		require.Len(t, decodeSignals(t, listResp), 2)
	})

	t.Run("rejects unknown source", func(t *testing.T) {
		ts, org := newTestServer(t)
		resp := post(t, ts, fmt.Sprintf("/webhooks/zendesk/%d", org.ID), `{}`)
		require.Equal(t, http.StatusNotFound, resp.StatusCode)
	})

	t.Run("rejects unknown organization", func(t *testing.T) {
		ts, _ := newTestServer(t)
		resp := post(t, ts, "/webhooks/stripe/999", `{"type": "invoice.paid"}`)
		require.Equal(t, http.StatusNotFound, resp.StatusCode)
	})

	t.Run("rejects malformed organization id", func(t *testing.T) {
		ts, _ := newTestServer(t)
		resp := post(t, ts, "/webhooks/stripe/not-a-number", `{}`)
		require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("rejects bodies that are not JSON", func(t *testing.T) {
		ts, org := newTestServer(t)
		resp := post(t, ts, fmt.Sprintf("/webhooks/stripe/%d", org.ID), `not json at all`)
		require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("rejects array envelopes for single-event sources", func(t *testing.T) {
		ts, org := newTestServer(t)
		resp := post(t, ts, fmt.Sprintf("/webhooks/stripe/%d", org.ID), `[{"type": "invoice.paid"}]`)
		require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}

func TestSignalQueries(t *testing.T) {
	seed := func(t *testing.T) (*httptest.Server, *models.Organization) {
		ts, org := newTestServer(t)
		// One mapped+resolved, one unmapped, one unresolved
		post(t, ts, fmt.Sprintf("/webhooks/posthog/%d", org.ID),
			`{"event": "$pageview", "distinct_id": "u1", "properties": {"company_id": "acme"}}`)
		post(t, ts, fmt.Sprintf("/webhooks/posthog/%d", org.ID),
			`{"event": "made up event", "distinct_id": "u1"}`)
		post(t, ts, fmt.Sprintf("/webhooks/customerio/%d", org.ID),
			`{"metric": "email_opened", "timestamp": 1714521600}`)
		return ts, org
	}

	t.Run("requires source on the list endpoint", func(t *testing.T) {
		ts, org := seed(t)
		resp := get(t, ts, fmt.Sprintf("/v1/organizations/%d/signals", org.ID))
		require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("lists unknown-type signals", func(t *testing.T) {
		ts, org := seed(t)
		resp := get(t, ts, fmt.Sprintf("/v1/organizations/%d/signals/unknown", org.ID))
		require.Equal(t, http.StatusOK, resp.StatusCode)

		signals := decodeSignals(t, resp)
		require.Len(t, signals, 1)
		require.Equal(t, "unknown", signals[0]["event_type"])

		metadata, ok := signals[0]["metadata"].(map[string]any)
		require.True(t, ok)
		require.Equal(t, "made up event", metadata[models.MetadataKeyOriginalEventType])
	})

	t.Run("lists unresolved signals", func(t *testing.T) {
		ts, org := seed(t)
		resp := get(t, ts, fmt.Sprintf("/v1/organizations/%d/signals/unresolved", org.ID))
		require.Equal(t, http.StatusOK, resp.StatusCode)

		signals := decodeSignals(t, resp)
		require.Len(t, signals, 1)
		require.Equal(t, "customerio", signals[0]["source"])
	})

	t.Run("serves aggregate stats", func(t *testing.T) {
		ts, org := seed(t)
		resp := get(t, ts, fmt.Sprintf("/v1/organizations/%d/signals/stats", org.ID))
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var stats struct {
			Total       int64            `json:"total"`
			UnknownType int64            `json:"unknown_type"`
			BySource    map[string]int64 `json:"by_source"`
		}
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&stats))
		require.Equal(t, int64(3), stats.Total)
		require.Equal(t, int64(1), stats.UnknownType)
		require.Equal(t, int64(2), stats.BySource["posthog"])
		require.Equal(t, int64(1), stats.BySource["customerio"])
	})

	t.Run("unknown organization is rejected", func(t *testing.T) {
		ts, _ := newTestServer(t)
		resp := get(t, ts, "/v1/organizations/999/signals/stats")
		require.Equal(t, http.StatusNotFound, resp.StatusCode)
	})
}
