// Package fulfillment implements the vendor intent protocol.
//
// A single entry point accepts the fulfillment envelope and dispatches on
// the intent: SYNC enumerates the static device registry for discovery,
// QUERY shapes current state into the vendor's attribute sets, and
// EXECUTE is rejected with notSupported because the deployed sensors are
// read-only. DISCONNECT acknowledges account unlinking.
//
// Untyped payloads stop at this boundary: the envelope's raw payload is
// converted to a closed variant per intent on receipt, and everything
// below works with structured records.
//
// Protocol errors (unknown device, unknown intent, malformed payloads)
// are encoded in the response body with the request's correlation
// identifier preserved; they never surface as transport failures.
package fulfillment
