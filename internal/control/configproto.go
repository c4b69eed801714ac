package control

import (
	"encoding/json"
	"time"

	"github.com/group17/smartchill/internal/infrastructure/mqtt"
)

// configRequest is the decoded body of a config_update message. A message
// carrying {"request": "get_config"} is a read; anything else is treated
// as an update mapping of setting keys.
type configRequest struct {
	Request string `json:"request"`
}

// configDataReply answers a get_config request.
type configDataReply struct {
	DeviceID      string         `json:"device_id"`
	Timestamp     time.Time      `json:"timestamp"`
	ConfigVersion int            `json:"configVersion"`
	Config        map[string]any `json:"config"`
}

// configAckReply confirms an applied update.
type configAckReply struct {
	DeviceID      string         `json:"device_id"`
	Timestamp     time.Time      `json:"timestamp"`
	ConfigVersion int            `json:"configVersion"`
	UpdatedConfig map[string]any `json:"updated_config"`
}

// configErrorReply reports a rejected update.
type configErrorReply struct {
	DeviceID  string    `json:"device_id"`
	Timestamp time.Time `json:"timestamp"`
	Error     string    `json:"error"`
}

// HandleConfigUpdate processes a message on this service's config_update
// topic: get_config requests answer on config_data, update mappings
// validate then answer on config_ack or config_error.
//
// Runs on the bus callback path, so it never blocks on anything but the
// settings file write.
func (s *service) HandleConfigUpdate(topic string, payload []byte) error {
	parsed, ok := mqtt.ParseConfigTopic(topic)
	if !ok || parsed.Suffix != mqtt.SuffixConfigUpdate {
		s.logger.Debug("ignoring message on unexpected config topic", "topic", topic)
		return nil
	}
	deviceID := parsed.DeviceID

	var req configRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		s.replyError(deviceID, "payload is not valid JSON")
		return nil
	}

	if req.Request == "get_config" {
		s.replyData(deviceID)
		return nil
	}

	var updates map[string]any
	if err := json.Unmarshal(payload, &updates); err != nil {
		s.replyError(deviceID, "payload is not a settings mapping")
		return nil
	}
	// the request marker is not a setting
	delete(updates, "request")

	normalized, err := ValidateUpdate(updates)
	if err != nil {
		s.replyError(deviceID, err.Error())
		return nil
	}

	applied, version, err := s.settings.ApplyUpdate(deviceID, normalized)
	if err != nil {
		// mutation stands in memory; surface the persistence failure
		s.logger.Error("settings persist failed after update", "device_id", deviceID, "error", err)
	}

	s.replyAck(deviceID, version, applied)
	return nil
}

// replyData publishes the merged effective config on config_data.
func (s *service) replyData(deviceID string) {
	reply := configDataReply{
		DeviceID:      deviceID,
		Timestamp:     time.Now().UTC(),
		ConfigVersion: s.settings.Version(),
		Config:        s.settings.Effective(deviceID),
	}
	topic := s.topics.ConfigData(s.id, deviceID)
	if err := s.bus.PublishJSON(topic, reply); err != nil {
		s.logger.Error("config_data publish failed", "topic", topic, "error", err)
	}
}

// replyAck publishes the applied subset on config_ack.
func (s *service) replyAck(deviceID string, version int, applied map[string]any) {
	reply := configAckReply{
		DeviceID:      deviceID,
		Timestamp:     time.Now().UTC(),
		ConfigVersion: version,
		UpdatedConfig: applied,
	}
	topic := s.topics.ConfigAck(s.id, deviceID)
	if err := s.bus.PublishJSON(topic, reply); err != nil {
		s.logger.Error("config_ack publish failed", "topic", topic, "error", err)
	}
}

// replyError publishes a short reason on config_error.
func (s *service) replyError(deviceID, reason string) {
	reply := configErrorReply{
		DeviceID:  deviceID,
		Timestamp: time.Now().UTC(),
		Error:     reason,
	}
	topic := s.topics.ConfigError(s.id, deviceID)
	if err := s.bus.PublishJSON(topic, reply); err != nil {
		s.logger.Error("config_error publish failed", "topic", topic, "error", err)
	}
	s.logger.Warn("config update rejected", "device_id", deviceID, "reason", reason)
}
