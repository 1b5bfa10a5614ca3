package device

import "errors"

// Domain errors for the device package.
//
// These errors can be checked using errors.Is() for error handling:
//
//	if errors.Is(err, device.ErrNotFound) {
//	    // handle unknown device
//	}
var (
	// ErrNotFound is returned when a device ID is not in the static registry.
	ErrNotFound = errors.New("device: not found")

	// ErrUnknownTrait is returned when an update names a capability the
	// device does not declare.
	ErrUnknownTrait = errors.New("device: unknown trait")

	// ErrInvalidDeviceType is returned when a configured device type is not
	// a recognised sensor subtype.
	ErrInvalidDeviceType = errors.New("device: invalid type")

	// ErrDuplicateDevice is returned when the static registry declares the
	// same device ID twice.
	ErrDuplicateDevice = errors.New("device: duplicate id")
)
