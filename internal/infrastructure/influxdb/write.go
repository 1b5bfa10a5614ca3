package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// WriteReading records a sensor reading applied by the ingestion bridge.
//
// The write is non-blocking; data is batched and sent asynchronously. The
// point carries the source timestamp, not the write time, so the series
// reflects when the sensor measured rather than when the reading arrived.
//
// Parameters:
//   - deviceID: Stable device identifier (e.g., "humidity-1")
//   - capability: The trait the value belongs to (e.g., "humidity")
//   - value: The numeric reading
//   - timestamp: Source timestamp from the sensor payload
//
// Example:
//
//	client.WriteReading("humidity-1", "humidity", 55.2, reading.Timestamp)
func (c *Client) WriteReading(deviceID, capability string, value float64, timestamp time.Time) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"sensor_readings",
		map[string]string{
			"device_id":  deviceID,
			"capability": capability,
		},
		map[string]interface{}{
			"value": value,
		},
		timestamp,
	)

	c.writeAPI.WritePoint(point)
}

// WritePoint writes a custom point with full control over tags and fields.
//
// Use this for measurements that don't fit the reading helper, such as
// process-level counters.
//
// Parameters:
//   - measurement: The measurement name (table)
//   - tags: Key-value pairs for indexing (low cardinality)
//   - fields: Key-value pairs for the actual data
//
// Example:
//
//	client.WritePoint("ingest_stats",
//	    map[string]string{"site": "home"},
//	    map[string]interface{}{"applied": 1042, "malformed": 3})
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]interface{}) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, time.Now())
	c.writeAPI.WritePoint(point)
}

// WritePointWithTime writes a custom point with a specific timestamp.
//
// Use this when the timestamp is not "now" (e.g., delayed data).
func (c *Client) WritePointWithTime(measurement string, tags map[string]string, fields map[string]interface{}, timestamp time.Time) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, timestamp)
	c.writeAPI.WritePoint(point)
}
