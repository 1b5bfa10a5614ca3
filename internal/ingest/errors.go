package ingest

import (
	"errors"

	"github.com/willbeckett/homelink-core/internal/device"
)

// Domain errors for the ingest package.
var (
	// ErrMalformedPayload is returned when a bus message cannot be decoded
	// into a telemetry update. Malformed messages are dropped and counted,
	// never fatal.
	ErrMalformedPayload = errors.New("ingest: malformed payload")

	// ErrSubscribeFailed is returned when the initial topic subscription
	// cannot be established.
	ErrSubscribeFailed = errors.New("ingest: subscribe failed")
)

// isUnknownTrait classifies a store rejection for metrics.
func isUnknownTrait(err error) bool {
	return errors.Is(err, device.ErrUnknownTrait)
}
