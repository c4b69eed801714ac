package control

import (
	"context"
	"fmt"
	"sync"

	"github.com/group17/smartchill/internal/infrastructure/logging"
	"github.com/group17/smartchill/internal/senml"
)

// Spoilage watches gas readings against each device's gas_threshold_ppm.
//
// With enable_continuous_alerts set, every above-threshold reading raises
// an alert (the notifier's cooldown limits delivery). Otherwise only the
// transition into an excursion alerts, and the flag rearms once a reading
// drops back under the threshold.
type Spoilage struct {
	service
	mu    sync.Mutex
	above map[string]bool
}

// NewSpoilage builds the spoilage service core.
func NewSpoilage(serviceID string, bus Bus, settings *SettingsStore, prober DeviceProber, logger *logging.Logger) *Spoilage {
	return &Spoilage{
		service: service{
			id:       serviceID,
			bus:      bus,
			settings: settings,
			prober:   prober,
			logger:   logger,
		},
		above: make(map[string]bool),
	}
}

// HandleReading processes one message from a gas sensor topic.
func (s *Spoilage) HandleReading(_ string, payload []byte) error {
	msg, err := senml.Decode(payload)
	if err != nil {
		s.logger.Debug("undecodable gas reading dropped", "error", err)
		return nil
	}

	if !s.ensureKnown(context.Background(), msg.DeviceID) {
		return nil
	}

	for _, rec := range msg.Records {
		if rec.Name != "gas" || rec.Value == nil {
			continue
		}
		s.evaluate(msg.DeviceID, *rec.Value)
	}
	return nil
}

// evaluate compares one gas reading to the device's threshold.
func (s *Spoilage) evaluate(deviceID string, ppm float64) {
	threshold := float64(s.settings.IntSetting(deviceID, "gas_threshold_ppm", 400))
	continuous := s.settings.BoolSetting(deviceID, "enable_continuous_alerts", false)

	s.mu.Lock()
	wasAbove := s.above[deviceID]
	s.above[deviceID] = ppm > threshold
	s.mu.Unlock()

	if ppm <= threshold {
		if wasAbove {
			s.logger.Info("gas level back under threshold", "device_id", deviceID, "ppm", ppm)
		}
		return
	}

	// single-alert mode only fires on the transition into the excursion
	if !continuous && wasAbove {
		return
	}

	s.publishAlert(deviceID, KindSpoilage, AlertSpoilage, SeverityCritical,
		fmt.Sprintf("Gas level %.0f ppm exceeds threshold %.0f ppm, contents may be spoiling", ppm, threshold))
}
