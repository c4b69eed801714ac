package mqtt

import (
	"fmt"
	"strings"
)

// TopicPrefix is the root of the SmartChill topic hierarchy.
const TopicPrefix = "Group17/SmartChill"

// Topic suffixes for the per-device configuration protocol.
const (
	SuffixConfigUpdate = "config_update"
	SuffixConfigData   = "config_data"
	SuffixConfigAck    = "config_ack"
	SuffixConfigError  = "config_error"
)

// DoorEventSensor is the pseudo-sensor name used for door events.
const DoorEventSensor = "door_event"

// Topics provides builders for SmartChill MQTT topics.
// Using these helpers ensures consistent topic naming across the codebase.
//
//	topics := mqtt.Topics{}
//	t := topics.Sensor("FridgeXL", "SmartChill_112233", "temperature")
//	// Returns: "Group17/SmartChill/Devices/FridgeXL/SmartChill_112233/temperature"
type Topics struct{}

// Sensor returns the topic a device publishes a sensor stream on.
//
// Example: Group17/SmartChill/Devices/FridgeXL/SmartChill_112233/temperature
func (Topics) Sensor(model, deviceID, sensor string) string {
	return fmt.Sprintf("%s/Devices/%s/%s/%s", TopicPrefix, model, deviceID, sensor)
}

// DoorEvent returns the topic a device publishes door open/close events on.
//
// Example: Group17/SmartChill/Devices/FridgeXL/SmartChill_112233/door_event
func (Topics) DoorEvent(model, deviceID string) string {
	return fmt.Sprintf("%s/Devices/%s/%s/%s", TopicPrefix, model, deviceID, DoorEventSensor)
}

// Alert returns the topic a control service publishes alerts on.
//
// Example: Group17/SmartChill/SmartChill_112233/Alerts/DoorTimeout
func (Topics) Alert(deviceID, kind string) string {
	return fmt.Sprintf("%s/%s/Alerts/%s", TopicPrefix, deviceID, kind)
}

// ConfigUpdate returns the topic a service receives configuration
// requests on for one device.
//
// Example: Group17/SmartChill/doortimer/SmartChill_112233/config_update
func (Topics) ConfigUpdate(service, deviceID string) string {
	return fmt.Sprintf("%s/%s/%s/%s", TopicPrefix, service, deviceID, SuffixConfigUpdate)
}

// ConfigData returns the topic a service replies to get_config requests on.
func (Topics) ConfigData(service, deviceID string) string {
	return fmt.Sprintf("%s/%s/%s/%s", TopicPrefix, service, deviceID, SuffixConfigData)
}

// ConfigAck returns the topic a service acknowledges applied updates on.
func (Topics) ConfigAck(service, deviceID string) string {
	return fmt.Sprintf("%s/%s/%s/%s", TopicPrefix, service, deviceID, SuffixConfigAck)
}

// ConfigError returns the topic a service reports rejected updates on.
func (Topics) ConfigError(service, deviceID string) string {
	return fmt.Sprintf("%s/%s/%s/%s", TopicPrefix, service, deviceID, SuffixConfigError)
}

// ServiceStatus returns the retained liveness topic for a service.
// Used for online/offline announcements and the Last Will.
//
// Example: Group17/SmartChill/doortimer/status
func (Topics) ServiceStatus(service string) string {
	return fmt.Sprintf("%s/%s/status", TopicPrefix, service)
}

// =============================================================================
// Wildcard Patterns for Subscriptions
// =============================================================================

// AllSensor returns a pattern matching one sensor stream across all
// models and devices.
//
// Pattern: Group17/SmartChill/Devices/+/+/{sensor}
func (Topics) AllSensor(sensor string) string {
	return fmt.Sprintf("%s/Devices/+/+/%s", TopicPrefix, sensor)
}

// AllDoorEvents returns a pattern matching door events from every device.
//
// Pattern: Group17/SmartChill/Devices/+/+/door_event
func (Topics) AllDoorEvents() string {
	return Topics{}.AllSensor(DoorEventSensor)
}

// AllAlerts returns a pattern matching every alert from every device.
//
// Pattern: Group17/SmartChill/+/Alerts/#
func (Topics) AllAlerts() string {
	return fmt.Sprintf("%s/+/Alerts/#", TopicPrefix)
}

// AllConfigUpdates returns a pattern matching configuration requests for
// every device of one service.
//
// Pattern: Group17/SmartChill/{service}/+/config_update
func (Topics) AllConfigUpdates(service string) string {
	return fmt.Sprintf("%s/%s/+/%s", TopicPrefix, service, SuffixConfigUpdate)
}

// AllConfigReplies returns patterns matching the three configuration reply
// suffixes across every service and device. The notifier subscribes to
// these to route replies back to waiting chats.
func (Topics) AllConfigReplies() []string {
	return []string{
		fmt.Sprintf("%s/+/+/%s", TopicPrefix, SuffixConfigData),
		fmt.Sprintf("%s/+/+/%s", TopicPrefix, SuffixConfigAck),
		fmt.Sprintf("%s/+/+/%s", TopicPrefix, SuffixConfigError),
	}
}

// =============================================================================
// Topic Parsers
// =============================================================================

// SensorTopic holds the components of a parsed sensor or door-event topic.
type SensorTopic struct {
	Model    string
	DeviceID string
	Sensor   string
}

// ParseSensorTopic extracts model, device and sensor from a sensor topic.
// Returns false if the topic is not under the Devices hierarchy.
func ParseSensorTopic(topic string) (SensorTopic, bool) {
	rest, ok := strings.CutPrefix(topic, TopicPrefix+"/Devices/")
	if !ok {
		return SensorTopic{}, false
	}
	parts := strings.Split(rest, "/")
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return SensorTopic{}, false
	}
	return SensorTopic{Model: parts[0], DeviceID: parts[1], Sensor: parts[2]}, true
}

// AlertTopic holds the components of a parsed alert topic.
type AlertTopic struct {
	DeviceID string
	Kind     string
}

// ParseAlertTopic extracts device and alert kind from an alert topic.
// The kind is the final topic segment, which callers use as the
// alert-type fallback when the payload does not carry one.
func ParseAlertTopic(topic string) (AlertTopic, bool) {
	rest, ok := strings.CutPrefix(topic, TopicPrefix+"/")
	if !ok {
		return AlertTopic{}, false
	}
	parts := strings.Split(rest, "/")
	if len(parts) < 3 || parts[1] != "Alerts" {
		return AlertTopic{}, false
	}
	return AlertTopic{DeviceID: parts[0], Kind: parts[len(parts)-1]}, true
}

// ConfigTopic holds the components of a parsed configuration topic.
type ConfigTopic struct {
	Service  string
	DeviceID string
	Suffix   string
}

// ParseConfigTopic extracts service, device and suffix from a
// configuration protocol topic (config_update and the three replies).
func ParseConfigTopic(topic string) (ConfigTopic, bool) {
	rest, ok := strings.CutPrefix(topic, TopicPrefix+"/")
	if !ok {
		return ConfigTopic{}, false
	}
	parts := strings.Split(rest, "/")
	if len(parts) != 3 {
		return ConfigTopic{}, false
	}
	switch parts[2] {
	case SuffixConfigUpdate, SuffixConfigData, SuffixConfigAck, SuffixConfigError:
		return ConfigTopic{Service: parts[0], DeviceID: parts[1], Suffix: parts[2]}, true
	}
	return ConfigTopic{}, false
}
