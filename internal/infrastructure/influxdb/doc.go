// Package influxdb provides InfluxDB connectivity for SmartChill services.
//
// It wraps the official influxdb-client-go v2 library with SmartChill
// patterns for connection management, telemetry writing, and health
// monitoring.
//
// # Purpose
//
// This package handles time-series storage for:
//   - Refrigeration telemetry (temperature, humidity, gas ppm)
//   - Door open/close durations
//   - Alert events emitted by the control services
//
// # Usage
//
//	cfg := config.InfluxDBConfig{
//	    URL:    "http://localhost:8086",
//	    Token:  "your-token",
//	    Org:    "group17",
//	    Bucket: "smartchill",
//	}
//
//	client, err := influxdb.Connect(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	client.WriteReading("SmartChill_112233", "temperature", 4.2, time.Now())
//
// # Thread Safety
//
// All methods are safe for concurrent use from multiple goroutines.
// The underlying write API uses non-blocking batched writes.
//
// # Error Handling
//
// Write operations are non-blocking and batch errors are logged via a callback.
// Connection and health check errors are returned directly.
package influxdb
