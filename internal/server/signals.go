package server

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/revsignal/revsignal/internal/models"
	"github.com/revsignal/revsignal/internal/store"
	"github.com/rs/zerolog"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

// signalResponse is the wire shape of a signal. The storage model stays free
// of transport tags.
type signalResponse struct {
	ID             int64          `json:"id"`
	OrganizationID int64          `json:"organization_id"`
	Source         string         `json:"source"`
	EventType      string         `json:"event_type"`
	ContactID      *int64         `json:"contact_id,omitempty"`
	AccountID      *int64         `json:"account_id,omitempty"`
	Timestamp      time.Time      `json:"timestamp"`
	Metadata       map[string]any `json:"metadata,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
}

type signalListResponse struct {
	Signals []signalResponse `json:"signals"`
}

func toSignalResponses(signals []*models.Signal) signalListResponse {
	out := signalListResponse{Signals: make([]signalResponse, 0, len(signals))}
	for _, s := range signals {
		out.Signals = append(out.Signals, signalResponse{
			ID:             s.ID,
			OrganizationID: s.OrganizationID,
			Source:         s.Source,
			EventType:      s.EventType,
			ContactID:      s.ContactID,
			AccountID:      s.AccountID,
			Timestamp:      s.Timestamp,
			Metadata:       s.Metadata,
			CreatedAt:      s.CreatedAt,
		})
	}
	return out
}

type statsResponse struct {
	Total         int64                    `json:"total"`
	UnknownType   int64                    `json:"unknown_type"`
	BySource      map[string]int64         `json:"by_source"`
	TopEventTypes []eventTypeCountResponse `json:"top_event_types"`
}

type eventTypeCountResponse struct {
	EventType string `json:"event_type"`
	Count     int64  `json:"count"`
}

// orgFromPath parses and verifies the org_id path segment. A false return
// means the response has been written.
func (s *Server) orgFromPath(w http.ResponseWriter, r *http.Request) (int64, bool) {
	orgID, err := strconv.ParseInt(r.PathValue("org_id"), 10, 64)
	if err != nil || orgID <= 0 {
		writeError(w, http.StatusBadRequest, "invalid organization id")
		return 0, false
	}
	if _, err := s.orgs.Get(r.Context(), orgID); err != nil {
		if errors.Is(err, store.ErrOrganizationNotFound) {
			writeError(w, http.StatusNotFound, "unknown organization")
			return 0, false
		}
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("Organization lookup failed")
		writeError(w, http.StatusInternalServerError, "internal error")
		return 0, false
	}
	return orgID, true
}

func listLimit(r *http.Request) int {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return defaultListLimit
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 {
		return defaultListLimit
	}
	return min(limit, maxListLimit)
}

// handleListSignals serves GET /v1/organizations/{org_id}/signals?source=X.
func (s *Server) handleListSignals(w http.ResponseWriter, r *http.Request) {
	orgID, ok := s.orgFromPath(w, r)
	if !ok {
		return
	}

	source := r.URL.Query().Get("source")
	if source == "" {
		writeError(w, http.StatusBadRequest, "source query parameter is required")
		return
	}

	signals, err := s.signals.ListBySource(r.Context(), orgID, source, listLimit(r))
	if err != nil {
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("Signal query failed")
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, toSignalResponses(signals))
}

// handleListUnknown serves the signals whose raw event type had no mapping
// entry, so operators can extend the mapping table.
func (s *Server) handleListUnknown(w http.ResponseWriter, r *http.Request) {
	orgID, ok := s.orgFromPath(w, r)
	if !ok {
		return
	}

	signals, err := s.signals.ListUnknownType(r.Context(), orgID, listLimit(r))
	if err != nil {
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("Signal query failed")
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, toSignalResponses(signals))
}

// handleListUnresolved serves the signals with neither contact nor account.
func (s *Server) handleListUnresolved(w http.ResponseWriter, r *http.Request) {
	orgID, ok := s.orgFromPath(w, r)
	if !ok {
		return
	}

	signals, err := s.signals.ListUnresolved(r.Context(), orgID, listLimit(r))
	if err != nil {
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("Signal query failed")
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, toSignalResponses(signals))
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	orgID, ok := s.orgFromPath(w, r)
	if !ok {
		return
	}

	stats, err := s.signals.Stats(r.Context(), orgID)
	if err != nil {
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("Signal stats failed")
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	resp := statsResponse{
		Total:         stats.Total,
		UnknownType:   stats.UnknownType,
		BySource:      stats.BySource,
		TopEventTypes: make([]eventTypeCountResponse, 0, len(stats.TopEventTypes)),
	}
	for _, entry := range stats.TopEventTypes {
		resp.TopEventTypes = append(resp.TopEventTypes, eventTypeCountResponse(entry))
	}
	writeJSON(w, http.StatusOK, resp)
}
