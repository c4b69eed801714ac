package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// WriteReading records a single sensor reading.
//
// This is the primary method for refrigeration telemetry. The write is
// non-blocking; data is batched and sent asynchronously.
//
// Parameters:
//   - deviceID: Device identifier (e.g., "SmartChill_112233")
//   - sensor: The sensor name (e.g., "temperature", "humidity", "gas")
//   - value: The numeric value to record
//   - at: The reading's timestamp from the SenML record
//
// Example:
//
//	client.WriteReading("SmartChill_112233", "temperature", 4.2, reading.Timestamp)
func (c *Client) WriteReading(deviceID, sensor string, value float64, at time.Time) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"sensor_readings",
		map[string]string{
			"device_id": deviceID,
			"sensor":    sensor,
		},
		map[string]interface{}{
			"value": value,
		},
		at,
	)

	c.writeAPI.WritePoint(point)
}

// WriteDoorDuration records how long a door stayed open.
//
// Written by the door-timer service when a door closes, so fleet-wide
// open-duration trends can be graphed.
//
// Parameters:
//   - deviceID: Device identifier
//   - seconds: Open duration in seconds
//   - timedOut: Whether the open exceeded the configured threshold
func (c *Client) WriteDoorDuration(deviceID string, seconds float64, timedOut bool) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"door_events",
		map[string]string{
			"device_id": deviceID,
		},
		map[string]interface{}{
			"open_seconds": seconds,
			"timed_out":    timedOut,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WriteAlert records an alert emission for fleet health dashboards.
//
// Parameters:
//   - deviceID: Device the alert concerns
//   - alertType: Alert kind (e.g., "door_timeout", "spoilage", "malfunction")
//   - severity: One of info, warning, critical
func (c *Client) WriteAlert(deviceID, alertType, severity string) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"alerts",
		map[string]string{
			"device_id":  deviceID,
			"alert_type": alertType,
			"severity":   severity,
		},
		map[string]interface{}{
			"count": 1,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WritePoint writes a custom point with full control over tags and fields.
//
// Use this for measurements that don't fit the helper methods.
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]interface{}) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, time.Now())
	c.writeAPI.WritePoint(point)
}
