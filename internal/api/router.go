package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	// Vendor fulfillment endpoint (bearer auth checked in the handler:
	// protocol errors ride on HTTP 200, only missing credentials use 401)
	r.Post("/fulfillment", s.handleFulfillment)

	// OAuth account-linking endpoints
	r.Route("/oauth", func(r chi.Router) {
		r.Get("/auth", s.handleAuthorize)
		r.Post("/token", s.handleToken)
		r.Post("/revoke", s.handleRevoke)
	})

	// Health check and metrics (no auth required)
	r.Get("/health", s.handleHealth)
	r.Get("/metrics", s.handleMetrics)

	return r
}

// handleHealth returns the server health status.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	status := "ok"
	broker := false
	if s.mqtt != nil && s.mqtt.IsConnected() {
		broker = true
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":         status,
		"version":        s.version,
		"mqtt_connected": broker,
	})
}
