package api

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/willbeckett/homelink-core/internal/fulfillment"
)

// handleFulfillment is the single vendor webhook. All intents arrive here
// as POSTs with a bearer access token from the linking flow.
//
// The HTTP status layer is only used for transport-level failures: a
// missing or unparseable Authorization header gets a 401. Everything
// else, including an invalid or revoked token, returns 200 with a
// protocol error envelope, which is what the vendor's dispatcher
// expects.
func (s *Server) handleFulfillment(w http.ResponseWriter, r *http.Request) {
	token, ok := bearerToken(r)
	if !ok {
		writeUnauthorized(w, "missing bearer token")
		return
	}

	var req fulfillment.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusOK, fulfillment.ErrorResponse("", fulfillment.ErrorCodeProtocolError, "malformed request body"))
		return
	}

	claims, err := s.authority.Validate(token)
	if err != nil {
		s.logger.Warn("fulfillment auth failure", "error", err, "request_id", req.RequestID)
		writeJSON(w, http.StatusOK, fulfillment.ErrorResponse(req.RequestID, fulfillment.ErrorCodeAuthFailure, "invalid access token"))
		return
	}

	s.logger.Debug("fulfillment request", "request_id", req.RequestID, "client_id", claims.ClientID)
	writeJSON(w, http.StatusOK, s.fulfillment.Handle(r.Context(), req))
}

// bearerToken extracts the token from the Authorization header. The
// second return is false when the header is absent or not Bearer-shaped.
func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", false
	}
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") || token == "" {
		return "", false
	}
	return strings.TrimSpace(token), true
}
