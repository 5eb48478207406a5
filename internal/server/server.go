// Package server exposes the webhook ingress and the signal query endpoints
// over HTTP.
package server

import (
	"encoding/json"
	"net/http"

	internalhttp "github.com/revsignal/revsignal/internal/http"
	"github.com/revsignal/revsignal/internal/logger"
	"github.com/revsignal/revsignal/internal/pipeline"
	"github.com/revsignal/revsignal/internal/store"
	"github.com/rs/cors"
	"github.com/rs/zerolog"
)

// Server wraps the HTTP surface around the normalization pipeline and the
// signal stores.
type Server struct {
	pipeline  *pipeline.Pipeline
	signals   store.SignalStore
	orgs      store.OrganizationStore
	envelopes *envelopeValidator
}

// NewServer creates a server. It panics when a registered pipeline source has
// no envelope schema, which is a wiring bug caught at startup.
func NewServer(p *pipeline.Pipeline, signals store.SignalStore, orgs store.OrganizationStore) *Server {
	return &Server{
		pipeline:  p,
		signals:   signals,
		orgs:      orgs,
		envelopes: newEnvelopeValidator(p.Sources()),
	}
}

// Handler returns the HTTP handler for the server.
func (s *Server) Handler(log zerolog.Logger) http.Handler {
	mux := http.NewServeMux()

	// Health check endpoint for load balancer
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	mux.HandleFunc("POST /webhooks/{source}/{org_id}", s.handleWebhook)

	mux.HandleFunc("GET /v1/organizations/{org_id}/signals", s.handleListSignals)
	mux.HandleFunc("GET /v1/organizations/{org_id}/signals/unknown", s.handleListUnknown)
	mux.HandleFunc("GET /v1/organizations/{org_id}/signals/unresolved", s.handleListUnresolved)
	mux.HandleFunc("GET /v1/organizations/{org_id}/signals/stats", s.handleStats)

	handler := cors.New(cors.Options{
		AllowedMethods: []string{http.MethodGet, http.MethodPost},
		AllowedHeaders: []string{"Content-Type"},
	}).Handler(mux)
	handler = internalhttp.ClientIPMiddleware()(handler)

	return logger.NewRequests(log).Wrap(handler)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}
