package api

import (
	"errors"
	"net/http"
	"net/url"

	"github.com/willbeckett/homelink-core/internal/oauth"
)

// handleAuthorize starts the account-linking flow.
//
// GET /oauth/auth?response_type=code&client_id=...&redirect_uri=...&state=...
//
// On success the browser is redirected back to the platform's redirect
// URI with a single-use authorization code and the unchanged state. The
// redirect URI is never used before it passes the allow-list: a request
// with an unknown client or unregistered redirect gets a 400 here rather
// than sending the user agent anywhere.
func (s *Server) handleAuthorize(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	clientID := q.Get("client_id")
	redirectURI := q.Get("redirect_uri")
	state := q.Get("state")
	scope := q.Get("scope")

	if clientID == "" || redirectURI == "" {
		writeBadRequest(w, "client_id and redirect_uri are required")
		return
	}
	if q.Get("response_type") != "code" {
		writeBadRequest(w, "response_type must be code")
		return
	}

	code, err := s.authority.Authorize(r.Context(), clientID, redirectURI, scope)
	if err != nil {
		switch {
		case errors.Is(err, oauth.ErrInvalidClient), errors.Is(err, oauth.ErrInvalidRedirect):
			writeBadRequest(w, "unknown client or redirect URI")
		default:
			s.logger.Error("authorize failed", "error", err, "client_id", clientID)
			writeInternalError(w, "authorization failed")
		}
		return
	}

	location, err := url.Parse(redirectURI)
	if err != nil {
		// Allow-listed URIs are parsed at config load; this is unreachable
		// in practice but never redirect on a parse failure.
		writeBadRequest(w, "invalid redirect URI")
		return
	}
	params := location.Query()
	params.Set("code", code)
	if state != "" {
		params.Set("state", state)
	}
	location.RawQuery = params.Encode()

	s.logger.Info("authorization code issued", "client_id", clientID)
	http.Redirect(w, r, location.String(), http.StatusFound)
}

// handleToken is the token endpoint for both halves of the linking flow:
// code exchange and refresh. Responses follow RFC 6749 token shapes.
func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeOAuthError(w, http.StatusBadRequest, oauthErrInvalidRequest)
		return
	}

	clientID, clientSecret := clientCredentials(r)
	if clientID == "" {
		writeOAuthError(w, http.StatusUnauthorized, oauthErrInvalidClient)
		return
	}

	var (
		pair *oauth.TokenPair
		err  error
	)
	switch grantType := r.PostForm.Get("grant_type"); grantType {
	case "authorization_code":
		pair, err = s.authority.Exchange(r.Context(),
			r.PostForm.Get("code"),
			clientID, clientSecret,
			r.PostForm.Get("redirect_uri"),
		)
	case "refresh_token":
		pair, err = s.authority.Refresh(r.Context(),
			r.PostForm.Get("refresh_token"),
			clientID, clientSecret,
		)
	default:
		writeOAuthError(w, http.StatusBadRequest, oauthErrUnsupported)
		return
	}

	if err != nil {
		s.writeTokenError(w, err, clientID)
		return
	}

	// Token responses must not be cached or logged by intermediaries.
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Pragma", "no-cache")
	writeJSON(w, http.StatusOK, pair)
}

// handleRevoke invalidates a refresh token (RFC 7009 shape). Revoking an
// unknown token still returns 200 so callers cannot probe for valid ones.
func (s *Server) handleRevoke(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeOAuthError(w, http.StatusBadRequest, oauthErrInvalidRequest)
		return
	}

	token := r.PostForm.Get("token")
	if token == "" {
		writeOAuthError(w, http.StatusBadRequest, oauthErrInvalidRequest)
		return
	}

	if err := s.authority.Revoke(r.Context(), token); err != nil && !errors.Is(err, oauth.ErrInvalidGrant) {
		s.logger.Error("revocation failed", "error", err)
		writeInternalError(w, "revocation failed")
		return
	}

	w.WriteHeader(http.StatusOK)
}

// writeTokenError maps authority errors onto RFC 6749 token-endpoint
// error codes. Anything unexpected is logged and surfaced as a 500.
func (s *Server) writeTokenError(w http.ResponseWriter, err error, clientID string) {
	switch {
	case errors.Is(err, oauth.ErrInvalidClient), errors.Is(err, oauth.ErrUnauthorized):
		writeOAuthError(w, http.StatusUnauthorized, oauthErrInvalidClient)
	case errors.Is(err, oauth.ErrInvalidGrant), errors.Is(err, oauth.ErrInvalidRedirect):
		writeOAuthError(w, http.StatusBadRequest, oauthErrInvalidGrant)
	default:
		s.logger.Error("token endpoint failure", "error", err, "client_id", clientID)
		writeInternalError(w, "token request failed")
	}
}

// clientCredentials extracts OAuth client credentials from HTTP Basic
// auth or, failing that, the form body.
func clientCredentials(r *http.Request) (string, string) {
	if id, secret, ok := r.BasicAuth(); ok {
		return id, secret
	}
	return r.PostForm.Get("client_id"), r.PostForm.Get("client_secret")
}
