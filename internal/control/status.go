package control

import (
	"context"
	"fmt"
	"time"

	"github.com/group17/smartchill/internal/infrastructure/logging"
	"github.com/group17/smartchill/internal/senml"
)

// ReadingSink receives sensor readings for time-series storage.
// Implemented by the influxdb client; nil disables telemetry.
type ReadingSink interface {
	WriteReading(deviceID, sensor string, value float64, at time.Time)
}

// Status checks temperature and humidity streams against each device's
// configured ranges and forwards every reading to the telemetry sink.
//
// Malfunction alerts are gated by enable_malfunction_alerts; telemetry is
// written regardless so dashboards keep their history even when a device
// is muted.
type Status struct {
	service
	telemetry ReadingSink
}

// NewStatus builds the status service core.
func NewStatus(serviceID string, bus Bus, settings *SettingsStore, prober DeviceProber, logger *logging.Logger) *Status {
	return &Status{
		service: service{
			id:       serviceID,
			bus:      bus,
			settings: settings,
			prober:   prober,
			logger:   logger,
		},
	}
}

// SetTelemetry attaches an optional telemetry sink for readings.
func (s *Status) SetTelemetry(sink ReadingSink) {
	s.telemetry = sink
}

// HandleReading processes one message from a temperature or humidity topic.
func (s *Status) HandleReading(_ string, payload []byte) error {
	msg, err := senml.Decode(payload)
	if err != nil {
		s.logger.Debug("undecodable reading dropped", "error", err)
		return nil
	}

	if !s.ensureKnown(context.Background(), msg.DeviceID) {
		return nil
	}

	for _, rec := range msg.Records {
		if rec.Value == nil {
			continue
		}
		switch rec.Name {
		case "temperature":
			s.record(msg.DeviceID, rec.Name, *rec.Value, rec.Timestamp)
			s.checkTemperature(msg.DeviceID, *rec.Value)
		case "humidity":
			s.record(msg.DeviceID, rec.Name, *rec.Value, rec.Timestamp)
			s.checkHumidity(msg.DeviceID, *rec.Value)
		}
	}
	return nil
}

// record forwards a reading to the telemetry sink, if attached.
func (s *Status) record(deviceID, sensor string, value float64, at time.Time) {
	if s.telemetry != nil {
		s.telemetry.WriteReading(deviceID, sensor, value, at)
	}
}

// checkTemperature raises a malfunction alert when a reading leaves the
// device's configured band.
func (s *Status) checkTemperature(deviceID string, celsius float64) {
	min := s.settings.FloatSetting(deviceID, "temp_min_celsius", 0)
	max := s.settings.FloatSetting(deviceID, "temp_max_celsius", 8)
	if celsius >= min && celsius <= max {
		return
	}
	if !s.settings.BoolSetting(deviceID, "enable_malfunction_alerts", true) {
		s.logger.Debug("malfunction alert suppressed by device config",
			"device_id", deviceID, "temperature", celsius)
		return
	}

	s.publishAlert(deviceID, KindMalfunction, AlertMalfunction, SeverityWarning,
		fmt.Sprintf("Temperature %.1f°C outside range %.1f..%.1f°C", celsius, min, max))
}

// checkHumidity raises a malfunction alert when humidity exceeds the
// device's configured maximum.
func (s *Status) checkHumidity(deviceID string, percent float64) {
	max := s.settings.FloatSetting(deviceID, "humidity_max_percent", 85)
	if percent <= max {
		return
	}
	if !s.settings.BoolSetting(deviceID, "enable_malfunction_alerts", true) {
		s.logger.Debug("malfunction alert suppressed by device config",
			"device_id", deviceID, "humidity", percent)
		return
	}

	s.publishAlert(deviceID, KindMalfunction, AlertMalfunction, SeverityWarning,
		fmt.Sprintf("Humidity %.0f%% exceeds maximum %.0f%%", percent, max))
}
