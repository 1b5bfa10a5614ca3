// Package device provides the device registry and the shared state store.
//
// The store is the single source of truth for device identity, capability
// metadata, and last-known telemetry. The ingestion bridge is its only
// writer; the fulfillment handler and the state reporter read from it.
//
// # Architecture
//
//	mqtt bridge ──Upsert──▶ ┌───────────┐
//	                        │   Store   │ ──Get/Devices──▶ fulfillment
//	                        └───────────┘ ──Snapshot─────▶ reporter
//
// Devices are registered once, at process start, from static configuration.
// Nothing is added or removed at runtime; only per-device State mutates.
//
// Telemetry for one device is applied in non-decreasing timestamp order.
// An update carrying a timestamp older than the stored one is dropped
// silently and counted (StaleDropped); there is no ordering guarantee
// across different devices.
//
// A device with no applied update inside the staleness window reports
// offline through State.Online, and readers must surface unknown rather
// than the last numeric value.
//
// # Usage
//
//	store, err := device.NewStore(cfg.Devices)
//	if err != nil {
//	    return err
//	}
//
//	// Bridge side.
//	err = store.Upsert("humidity-1", "humidity", 55, reading.Timestamp)
//
//	// Reader side.
//	snap, rev := store.Snapshot()
package device
