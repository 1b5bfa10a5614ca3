// Package oauth implements the credential authority for account linking.
//
// The voice-assistant platform links a user account to this service by
// walking the standard authorization-code flow: an authorization code is
// issued against a static client allow-list, exchanged once for an access
// and refresh token pair, and refreshed when the access token expires.
// Every fulfillment request then carries the access token as a bearer
// credential.
//
// # Architecture
//
//	GET  /oauth/auth  ──▶ Authorize ──▶ oauth_grants (SQLite)
//	POST /oauth/token ──▶ Exchange / Refresh ──▶ oauth_refresh_tokens (SQLite)
//	POST /fulfillment ──▶ Validate (signature + denylist, no DB hit)
//
// Grants and refresh tokens are persisted hashed (SHA-256); raw secrets
// exist only in transit. Access tokens are HS256 JWTs carrying the client
// and scope, so validation on the hot path is a signature check plus an
// in-memory revocation lookup.
//
// State machines:
//
//	grant: issued → redeemed | expired       (single-use, atomic redemption)
//	pair:  active → rotated | revoked | expired
//
// Refresh tokens rotate on every use. Client secrets and the stored
// artifacts are never compared as plain strings: secrets go through
// constant-time comparison and codes/tokens are looked up by hash.
package oauth
