package device

import (
	"fmt"
	"sync"
	"time"

	"github.com/willbeckett/homelink-core/internal/infrastructure/config"
)

// Store is the single source of truth for device identity and last-known
// telemetry. It holds the static registry built at construction plus one
// mutable State per device.
//
// Concurrency contract: many concurrent readers, serialized writers. Upsert
// takes the write lock for the duration of one map update only; Snapshot and
// Get copy under the read lock so callers never observe a partially applied
// update and never hold store locks across their own I/O.
type Store struct {
	mu sync.RWMutex

	// devices and order are immutable after NewStore.
	devices map[string]Device
	order   []string

	states map[string]State

	// revision increments on every applied update. The reporter compares
	// revisions between cycles for delta suppression.
	revision uint64

	// staleDropped counts updates rejected by the monotonic timestamp
	// invariant. Surfaced via metrics, never returned as an error.
	staleDropped uint64

	window time.Duration
}

// NewStore builds the registry from static configuration.
//
// Every configured device must carry a recognised type, a unique ID, and at
// least one trait. The registry order follows configuration order and is
// stable for the lifetime of the process, which keeps SYNC responses
// order-stable.
func NewStore(cfg config.DevicesConfig) (*Store, error) {
	s := &Store{
		devices: make(map[string]Device, len(cfg.Registry)),
		order:   make([]string, 0, len(cfg.Registry)),
		states:  make(map[string]State, len(cfg.Registry)),
		window:  time.Duration(cfg.StalenessWindow) * time.Second,
	}

	for _, dc := range cfg.Registry {
		if _, exists := s.devices[dc.ID]; exists {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateDevice, dc.ID)
		}

		dt := DeviceType(dc.Type)
		if !dt.IsValid() {
			return nil, fmt.Errorf("%w: %q for device %s", ErrInvalidDeviceType, dc.Type, dc.ID)
		}

		traits := make([]string, len(dc.Traits))
		copy(traits, dc.Traits)

		s.devices[dc.ID] = Device{
			ID:     dc.ID,
			Type:   dt,
			Traits: traits,
			Name:   dc.Name,
			Room:   dc.Room,
		}
		s.order = append(s.order, dc.ID)
		s.states[dc.ID] = State{Readings: make(map[string]float64)}
	}

	return s, nil
}

// Upsert applies a telemetry reading to a device's state.
//
// The monotonic ordering invariant: an update is applied only if its
// timestamp is not older than the currently stored timestamp. Out-of-order
// or duplicate updates are dropped silently (nil return) and counted.
//
// Returns:
//   - ErrNotFound if the device is not in the static registry
//   - ErrUnknownTrait if the device does not declare the capability
//   - nil otherwise, whether the update was applied or dropped as stale
func (s *Store) Upsert(deviceID, capability string, value float64, timestamp time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	dev, ok := s.devices[deviceID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, deviceID)
	}
	if !dev.HasTrait(capability) {
		return fmt.Errorf("%w: %s does not declare %q", ErrUnknownTrait, deviceID, capability)
	}

	state := s.states[deviceID]
	if timestamp.Before(state.UpdatedAt) {
		s.staleDropped++
		return nil
	}

	state.Readings[capability] = value
	state.UpdatedAt = timestamp
	s.states[deviceID] = state
	s.revision++

	return nil
}

// Get returns a single device and an independent copy of its current state.
func (s *Store) Get(deviceID string) (Device, State, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	dev, ok := s.devices[deviceID]
	if !ok {
		return Device{}, State{}, fmt.Errorf("%w: %s", ErrNotFound, deviceID)
	}

	return dev.clone(), s.states[deviceID].clone(), nil
}

// Snapshot returns a consistent point-in-time copy of all device states,
// keyed by device ID, plus the store revision at the moment of the copy.
//
// The returned map is independent of the store; callers may iterate or
// mutate it freely while upserts continue.
func (s *Store) Snapshot() (map[string]State, uint64) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := make(map[string]State, len(s.states))
	for id, state := range s.states {
		snap[id] = state.clone()
	}

	return snap, s.revision
}

// Devices returns the static registry in configuration order.
func (s *Store) Devices() []Device {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Device, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.devices[id].clone())
	}
	return out
}

// StalenessWindow returns the configured maximum reading age.
func (s *Store) StalenessWindow() time.Duration {
	return s.window
}

// Revision returns the current store revision without copying state.
func (s *Store) Revision() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.revision
}

// StaleDropped returns the number of updates rejected as out-of-order.
func (s *Store) StaleDropped() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.staleDropped
}
