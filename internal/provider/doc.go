// Package provider is the boundary to the external application-state
// provider.
//
// The provider aggregates device attributes outside this process (its own
// update path is out of scope here). The core calls one read endpoint to
// enrich QUERY responses and reporter payloads; when the provider is down
// or disabled, the state store alone serves responses and nothing fails.
package provider
