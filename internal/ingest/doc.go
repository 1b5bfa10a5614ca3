// Package ingest consumes sensor telemetry from the message bus and feeds
// the device state store.
//
// # Architecture
//
// The bridge holds the system's only subscription to sensor topics. One
// wildcard pattern (<site>/sensor/+) covers every capability; the
// capability name comes from the topic, the device identity and reading
// from the JSON payload.
//
//	broker ──<site>/sensor/+──▶ Bridge ──Upsert──▶ device.Store
//	                               │
//	                               └──WriteReading──▶ telemetry sink (optional)
//
// Failure containment: malformed payloads, unknown devices, and unknown
// capabilities are dropped and counted, never returned to the MQTT layer
// as errors. Connection loss is handled by the MQTT client's reconnect
// logic; the bridge re-arms its subscription through the OnConnect
// callback and no messages are synthesized for the gap.
//
// # Usage
//
//	bridge, err := ingest.New(ingest.Options{
//	    Bus:   mqttClient,
//	    Store: store,
//	    Site:  cfg.Site.ID,
//	    QoS:   byte(cfg.MQTT.QoS),
//	})
//	if err != nil {
//	    return err
//	}
//	if err := bridge.Start(); err != nil {
//	    return err
//	}
package ingest
