// Package control implements the SmartChill control services: door-timer,
// spoilage and status monitoring.
//
// The three services share one skeleton: a bus subscription feeding a
// non-blocking handler, a per-device settings file with a config_update
// protocol, auto-registration of unknown devices against the registry,
// and a periodic service-registration heartbeat.
//
// Each service evaluates its own slice of the sensor streams:
//
//   - DoorTimer watches door_event streams and alerts when a door stays
//     open past max_door_open_seconds.
//   - Spoilage watches gas readings against gas_threshold_ppm.
//   - Status checks temperature and humidity ranges and forwards
//     telemetry to InfluxDB.
package control
