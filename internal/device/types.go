package device

import "time"

// DeviceType classifies a sensor by the quantity it measures.
type DeviceType string

const (
	TypeTemperatureSensor DeviceType = "sensor.temperature"
	TypeHumiditySensor    DeviceType = "sensor.humidity"
	TypePressureSensor    DeviceType = "sensor.pressure"
)

// ValidDeviceTypes lists every recognised device type.
var ValidDeviceTypes = []DeviceType{
	TypeTemperatureSensor,
	TypeHumiditySensor,
	TypePressureSensor,
}

// IsValid reports whether the device type is one of the recognised sensor
// subtypes.
func (t DeviceType) IsValid() bool {
	for _, valid := range ValidDeviceTypes {
		if t == valid {
			return true
		}
	}
	return false
}

// Device describes a registered sensor. Devices are created at process start
// from static configuration and are immutable afterwards; only the associated
// State changes at runtime.
type Device struct {
	// ID is the stable device identifier used on the bus, in fulfillment
	// requests, and in registry pushes.
	ID string `json:"id"`

	// Type is the sensor subtype (e.g. sensor.humidity).
	Type DeviceType `json:"type"`

	// Traits is the declared capability set, in declaration order.
	// Each trait names a reading the device publishes (e.g. "humidity").
	Traits []string `json:"traits"`

	// Name is the display name surfaced to the voice-assistant platform.
	Name string `json:"name"`

	// Room is a hint for the vendor's room placement UI. May be empty.
	Room string `json:"room,omitempty"`
}

// HasTrait reports whether the device declares the given capability.
func (d Device) HasTrait(trait string) bool {
	for _, t := range d.Traits {
		if t == trait {
			return true
		}
	}
	return false
}

// clone returns an independent copy of the device so callers cannot mutate
// the store's registry through a returned value.
func (d Device) clone() Device {
	cpy := d
	cpy.Traits = make([]string, len(d.Traits))
	copy(cpy.Traits, d.Traits)
	return cpy
}

// State holds the last-known telemetry for one device. States are mutated
// exclusively through Store.Upsert and read through Store.Get and
// Store.Snapshot.
type State struct {
	// Readings maps capability name to the most recent numeric value.
	Readings map[string]float64 `json:"readings"`

	// UpdatedAt is the source timestamp of the newest applied reading.
	// Zero until the first update arrives.
	UpdatedAt time.Time `json:"updated_at"`
}

// Online reports whether the state is fresh enough to serve as current.
// A device with no update yet, or none within the staleness window, is
// treated as offline and its readings must not be surfaced as current
// values.
func (s State) Online(now time.Time, window time.Duration) bool {
	if s.UpdatedAt.IsZero() {
		return false
	}
	return now.Sub(s.UpdatedAt) <= window
}

// clone returns an independent copy of the state.
func (s State) clone() State {
	cpy := s
	cpy.Readings = make(map[string]float64, len(s.Readings))
	for k, v := range s.Readings {
		cpy.Readings[k] = v
	}
	return cpy
}
