package ingest

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// minTopicParts is the minimum number of parts in a valid sensor topic
// (<site>/<deviceClass>/<capability>).
const minTopicParts = 3

// Reading is the wire payload published by sensor firmware.
//
// Example:
//
//	{"sensor_id": "humidity-1", "value": 55.2, "timestamp": "2026-08-30T10:15:00Z"}
type Reading struct {
	SensorID  string    `json:"sensor_id"`
	Value     float64   `json:"value"`
	Timestamp time.Time `json:"timestamp"`
}

// update is a validated telemetry tuple ready for the state store.
type update struct {
	DeviceID   string
	Capability string
	Value      float64
	Timestamp  time.Time
}

// parseUpdate decodes a bus message into a validated update.
//
// The capability comes from the topic's final segment; the device identity
// and reading come from the payload. A payload missing sensor_id is
// malformed and rejected; a missing timestamp is substituted with the
// receive time, since cheap firmware often has no clock.
func parseUpdate(topic string, payload []byte) (update, error) {
	parts := strings.Split(topic, "/")
	if len(parts) < minTopicParts {
		return update{}, fmt.Errorf("%w: topic %q", ErrMalformedPayload, topic)
	}
	capability := parts[len(parts)-1]
	if capability == "" || capability == "+" {
		return update{}, fmt.Errorf("%w: topic %q has no capability segment", ErrMalformedPayload, topic)
	}

	var r Reading
	if err := json.Unmarshal(payload, &r); err != nil {
		return update{}, fmt.Errorf("%w: %w", ErrMalformedPayload, err)
	}
	if r.SensorID == "" {
		return update{}, fmt.Errorf("%w: missing sensor_id", ErrMalformedPayload)
	}
	if r.Timestamp.IsZero() {
		r.Timestamp = time.Now()
	}

	return update{
		DeviceID:   r.SensorID,
		Capability: capability,
		Value:      r.Value,
		Timestamp:  r.Timestamp,
	}, nil
}
