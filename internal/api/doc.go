// Package api implements the HTTP server for Homelink Core.
//
// This package provides:
//   - The vendor fulfillment webhook (discovery, state query, command dispatch)
//   - OAuth 2.0 account-linking endpoints (authorize, token, revoke)
//   - Health and metrics surfaces for monitoring
//   - Middleware stack (request ID, logging, recovery, body limits)
//   - TLS support for production deployments
//
// # Architecture
//
// The server sits between the voice-assistant platform and the in-memory
// device state store. Fulfillment requests carry a bearer access token
// minted by the linking flow; the token is validated on every request
// before any intent is dispatched.
//
// # Error Layers
//
// The vendor dispatcher distinguishes transport failures from protocol
// failures. Only a missing or unparseable Authorization header produces
// an HTTP 401; every other failure, including an invalid token, is an
// HTTP 200 carrying a protocol error envelope. The OAuth endpoints use
// the flat RFC 6749 error shape instead.
package api
