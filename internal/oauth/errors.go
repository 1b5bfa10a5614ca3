package oauth

import "errors"

// Domain errors for the oauth package.
//
// The first three map directly onto standard OAuth error codes
// (invalid_client, invalid_grant) in the HTTP layer; ErrUnauthorized maps
// onto a 401 or a protocol-level authentication error depending on the
// surface.
var (
	// ErrInvalidClient is returned when a client ID is not in the static
	// allow-list or the presented secret does not match.
	ErrInvalidClient = errors.New("oauth: invalid client")

	// ErrInvalidRedirect is returned when a redirect URI is not in the
	// client's allow-list.
	ErrInvalidRedirect = errors.New("oauth: invalid redirect uri")

	// ErrInvalidGrant is returned when an authorization code or refresh
	// token is unknown, expired, revoked, already redeemed, or bound to a
	// different client or redirect target.
	ErrInvalidGrant = errors.New("oauth: invalid grant")

	// ErrUnauthorized is returned when an access token is missing,
	// malformed, expired, or revoked.
	ErrUnauthorized = errors.New("oauth: unauthorized")
)
