package server

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	internalhttp "github.com/revsignal/revsignal/internal/http"
	"github.com/revsignal/revsignal/internal/store"
	"github.com/rs/zerolog"
)

// maxDeliveryBytes caps a webhook body. The largest legitimate deliveries are
// hubspot batches, which stay well under this.
const maxDeliveryBytes = 1 << 20

// handleWebhook ingests one delivery: POST /webhooks/{source}/{org_id}.
// Accepted deliveries return 202; signals are already persisted by then, the
// status only tells the provider not to retry.
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	source := r.PathValue("source")
	if !s.envelopes.Knows(source) {
		writeError(w, http.StatusNotFound, "unknown source")
		return
	}

	orgID, err := strconv.ParseInt(r.PathValue("org_id"), 10, 64)
	if err != nil || orgID <= 0 {
		writeError(w, http.StatusBadRequest, "invalid organization id")
		return
	}
	if _, err := s.orgs.Get(ctx, orgID); err != nil {
		if errors.Is(err, store.ErrOrganizationNotFound) {
			writeError(w, http.StatusNotFound, "unknown organization")
			return
		}
		zerolog.Ctx(ctx).Error().Err(err).Msg("Organization lookup failed")
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxDeliveryBytes))
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, "payload too large")
		return
	}

	if err := s.envelopes.Validate(source, body); err != nil {
		zerolog.Ctx(ctx).Warn().
			Err(err).
			Str("source", source).
			Int64("org_id", orgID).
			Str("client_ip", internalhttp.ClientIPFromContext(ctx)).
			Msg("Rejected malformed delivery")
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := s.pipeline.Normalize(ctx, source, orgID, body); err != nil {
		zerolog.Ctx(ctx).Error().
			Err(err).
			Str("source", source).
			Int64("org_id", orgID).
			Str("client_ip", internalhttp.ClientIPFromContext(ctx)).
			Msg("Delivery processing failed")
		writeError(w, http.StatusInternalServerError, "delivery processing failed")
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}
