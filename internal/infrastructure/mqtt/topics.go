package mqtt

import "fmt"

// Topic layout for sensor telemetry:
//
//	<site>/<deviceClass>/<capability>
//
// e.g. home/sensor/temperature. The site segment comes from config so
// several installations can share one broker. System topics live under a
// fixed prefix independent of site, so operational tooling can find them.
const (
	// TopicPrefixSystem is the base for system topics.
	TopicPrefixSystem = "homelink/system"

	// DeviceClassSensor is the device class segment for read-only sensors.
	// The deployed fleet is sensors only; actuator classes would slot in
	// beside this constant.
	DeviceClassSensor = "sensor"
)

// Topics provides builders for Homelink MQTT topics.
// Using these helpers ensures consistent topic naming across the codebase.
//
//	topics := mqtt.Topics{Site: "home"}
//	topics.Sensor("temperature") // "home/sensor/temperature"
type Topics struct {
	// Site is the installation identifier, the first topic segment.
	Site string
}

// Sensor returns the telemetry topic for one sensor capability.
//
// Example: home/sensor/humidity
func (t Topics) Sensor(capability string) string {
	return fmt.Sprintf("%s/%s/%s", t.Site, DeviceClassSensor, capability)
}

// AllSensors returns a pattern matching every sensor capability topic for
// the site.
//
// Pattern: home/sensor/+
func (t Topics) AllSensors() string {
	return fmt.Sprintf("%s/%s/+", t.Site, DeviceClassSensor)
}

// SystemStatus returns the system status topic used for the online/offline
// status messages and the Last Will and Testament.
//
// Example: homelink/system/status
func (Topics) SystemStatus() string {
	return fmt.Sprintf("%s/status", TopicPrefixSystem)
}
