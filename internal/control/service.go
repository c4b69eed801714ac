package control

import (
	"context"
	"time"

	"github.com/group17/smartchill/internal/infrastructure/logging"
	"github.com/group17/smartchill/internal/infrastructure/mqtt"
)

// Bus is the publish side of the MQTT client the services need.
type Bus interface {
	PublishJSON(topic string, payload any) error
}

// DeviceProber answers whether a device exists in the registry. Implemented
// by the catalog client.
type DeviceProber interface {
	DeviceExists(ctx context.Context, deviceID string) (bool, error)
}

// probeTimeout bounds the registry round-trip made from the bus callback
// path when an unknown device shows up.
const probeTimeout = 6 * time.Second

// service is the shared core of the three control services: settings,
// bus access, auto-registration and the config_update protocol.
type service struct {
	id       string
	bus      Bus
	settings *SettingsStore
	prober   DeviceProber
	logger   *logging.Logger
	topics   mqtt.Topics
}

// ensureKnown admits a device into this service's settings, consulting the
// registry for devices seen for the first time.
//
// Returns true when the device may be processed. Unknown-to-the-registry
// devices are dropped; a registry outage also drops the event (it will
// retry naturally on the device's next publication).
func (s *service) ensureKnown(ctx context.Context, deviceID string) bool {
	if s.settings.Known(deviceID) {
		return true
	}

	probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	exists, err := s.prober.DeviceExists(probeCtx, deviceID)
	if err != nil {
		s.logger.Warn("registry probe failed, dropping event", "device_id", deviceID, "error", err)
		return false
	}
	if !exists {
		s.logger.Debug("event from unregistered device dropped", "device_id", deviceID)
		return false
	}

	created, err := s.settings.EnsureDevice(deviceID)
	if err != nil {
		s.logger.Error("settings write failed for new device", "device_id", deviceID, "error", err)
	}
	if created {
		s.logger.Info("device auto-registered in service settings", "device_id", deviceID)
	}
	return true
}

// publishAlert sends an alert on the device's Alerts topic, stamping the
// service identity and the device's cooldown window.
func (s *service) publishAlert(deviceID, kind, alertType, severity, message string) {
	alert := Alert{
		AlertType:       alertType,
		DeviceID:        deviceID,
		Message:         message,
		Severity:        severity,
		Timestamp:       time.Now().UTC(),
		Service:         s.id,
		CooldownMinutes: s.settings.IntSetting(deviceID, "alert_cooldown_minutes", 0),
	}

	topic := s.topics.Alert(deviceID, kind)
	if err := s.bus.PublishJSON(topic, alert); err != nil {
		s.logger.Error("alert publish failed", "topic", topic, "error", err)
		return
	}
	s.logger.Info("alert published",
		"device_id", deviceID,
		"alert_type", alertType,
		"severity", severity,
	)
}
