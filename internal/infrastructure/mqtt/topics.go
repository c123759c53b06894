package mqtt

import (
	"fmt"
	"strings"
)

// Topic prefixes for the energy saving MQTT hierarchy.
const (
	// TopicPrefixTelemetry is the base for device readings.
	// Scheme: energysaving/telemetry/{datacenter}/{device_type}/{device}/{measurement}
	TopicPrefixTelemetry = "energysaving/telemetry"

	// TopicPrefixIngest is the base for ingest feedback topics.
	TopicPrefixIngest = "energysaving/ingest"

	// TopicPrefixSystem is the base for system topics.
	TopicPrefixSystem = "energysaving/system"
)

// telemetryLevels is the number of levels after the telemetry prefix.
const telemetryLevels = 4

// Topics provides builders for energy saving MQTT topics.
// Using these helpers ensures consistent topic naming across the codebase.
//
//	topic := mqtt.Topics{}.Telemetry("dc1", "sensor_attribute", "pdu-01", "phase_a")
//	// Returns: "energysaving/telemetry/dc1/sensor_attribute/pdu-01/phase_a"
type Topics struct{}

// Telemetry returns the topic a device publishes one measurement on.
func (Topics) Telemetry(datacenter, deviceType, device, measurement string) string {
	return fmt.Sprintf("%s/%s/%s/%s/%s", TopicPrefixTelemetry, datacenter, deviceType, device, measurement)
}

// DatacenterTelemetry returns the wildcard matching every reading of one datacenter.
//
// Example: energysaving/telemetry/dc1/+/+/+
func (Topics) DatacenterTelemetry(datacenter string) string {
	return fmt.Sprintf("%s/%s/+/+/+", TopicPrefixTelemetry, datacenter)
}

// AllTelemetry returns the wildcard matching every reading.
//
// Example: energysaving/telemetry/+/+/+/+
func (Topics) AllTelemetry() string {
	return TopicPrefixTelemetry + "/+/+/+/+"
}

// IngestRejected returns the topic rejected readings of a datacenter are reported on.
//
// Example: energysaving/ingest/dc1/rejected
func (Topics) IngestRejected(datacenter string) string {
	return fmt.Sprintf("%s/%s/rejected", TopicPrefixIngest, datacenter)
}

// IngestStatus returns the retained state topic of the ingest bridge.
//
// Example: energysaving/ingest/status
func (Topics) IngestStatus() string {
	return TopicPrefixIngest + "/status"
}

// SystemStatus returns the topic for core online/offline status.
//
// Example: energysaving/system/status
func (Topics) SystemStatus() string {
	return TopicPrefixSystem + "/status"
}

// TelemetryTopic is a parsed telemetry topic.
type TelemetryTopic struct {
	Datacenter  string
	DeviceType  string
	Device      string
	Measurement string
}

// ParseTelemetryTopic splits a telemetry topic into its levels.
// Returns ErrInvalidTopic if the topic is outside the telemetry hierarchy,
// has the wrong depth or an empty level.
func ParseTelemetryTopic(topic string) (TelemetryTopic, error) {
	rest, ok := strings.CutPrefix(topic, TopicPrefixTelemetry+"/")
	if !ok {
		return TelemetryTopic{}, fmt.Errorf("%w: %q is not a telemetry topic", ErrInvalidTopic, topic)
	}

	parts := strings.Split(rest, "/")
	if len(parts) != telemetryLevels {
		return TelemetryTopic{}, fmt.Errorf("%w: %q has %d levels, want %d", ErrInvalidTopic, topic, len(parts), telemetryLevels)
	}
	for _, p := range parts {
		if p == "" {
			return TelemetryTopic{}, fmt.Errorf("%w: %q has an empty level", ErrInvalidTopic, topic)
		}
	}

	return TelemetryTopic{
		Datacenter:  parts[0],
		DeviceType:  parts[1],
		Device:      parts[2],
		Measurement: parts[3],
	}, nil
}
