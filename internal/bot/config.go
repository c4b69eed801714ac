package bot

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/group17/smartchill/internal/control"
	"github.com/group17/smartchill/internal/infrastructure/mqtt"
)

// controlServices are the services a device's settings live in, in menu
// order.
var controlServices = []string{"doortimer", "spoilage", "status"}

// configData mirrors the config_data reply payload.
type configData struct {
	DeviceID      string         `json:"device_id"`
	ConfigVersion int            `json:"configVersion"`
	Config        map[string]any `json:"config"`
}

// configAck mirrors the config_ack reply payload.
type configAck struct {
	DeviceID      string         `json:"device_id"`
	ConfigVersion int            `json:"configVersion"`
	UpdatedConfig map[string]any `json:"updated_config"`
}

// configError mirrors the config_error reply payload.
type configError struct {
	DeviceID string `json:"device_id"`
	Error    string `json:"error"`
}

// =============================================================================
// Inline button callbacks
// =============================================================================

// handleCallback dispatches an inline button press by its data prefix:
// dev: picks a device, svc: a service, act: show or edit, cfg: a setting.
func (e *Engine) handleCallback(u Update) {
	if err := e.chat.AnswerCallback(u.CallbackID, ""); err != nil {
		e.logger.Debug("answering callback failed", "chat_id", u.ChatID, "error", err)
	}

	data := u.CallbackData
	switch {
	case strings.HasPrefix(data, "dev:"):
		e.callbackDevice(u.ChatID, strings.TrimPrefix(data, "dev:"))
	case strings.HasPrefix(data, "svc:"):
		e.callbackService(u.ChatID, strings.TrimPrefix(data, "svc:"))
	case strings.HasPrefix(data, "act:"):
		e.callbackAction(u.ChatID, strings.TrimPrefix(data, "act:"))
	case strings.HasPrefix(data, "cfg:"):
		e.callbackSetting(u.ChatID, strings.TrimPrefix(data, "cfg:"))
	default:
		e.logger.Debug("unknown callback data", "chat_id", u.ChatID, "data", data)
	}
}

func (e *Engine) callbackDevice(chatID, deviceID string) {
	e.mu.Lock()
	s, ok := e.sessions[chatID]
	if !ok {
		e.mu.Unlock()
		return
	}
	s.deviceID = deviceID
	f := s.flow
	messageID := s.menuMessageID
	if f == flowRename {
		s.state = stateAwaitingRename
	}
	e.mu.Unlock()

	switch f {
	case flowRename:
		e.editMessage(chatID, messageID, fmt.Sprintf("Send the new name for %s (up to 50 characters).", deviceID))
	case flowConfigure:
		rows := make([][]Button, 0, len(controlServices))
		for _, svc := range controlServices {
			rows = append(rows, []Button{{Label: svc, Data: "svc:" + svc}})
		}
		e.editKeyboard(chatID, messageID, fmt.Sprintf("Settings for %s. Which service?", deviceID), rows)
	}
}

func (e *Engine) callbackService(chatID, svc string) {
	e.mu.Lock()
	s, ok := e.sessions[chatID]
	if !ok || s.deviceID == "" {
		e.mu.Unlock()
		return
	}
	s.service = svc
	messageID := s.menuMessageID
	e.mu.Unlock()

	rows := [][]Button{
		{{Label: "Show settings", Data: "act:show"}},
		{{Label: "Edit settings", Data: "act:edit"}},
	}
	e.editKeyboard(chatID, messageID, fmt.Sprintf("%s settings:", svc), rows)
}

// callbackAction publishes a get_config request and parks the chat until
// the service answers on config_data.
func (e *Engine) callbackAction(chatID, mode string) {
	e.mu.Lock()
	s, ok := e.sessions[chatID]
	if !ok || s.deviceID == "" || s.service == "" {
		e.mu.Unlock()
		return
	}
	s.mode = mode
	s.state = stateAwaitingConfigResponse
	deviceID, svc, messageID := s.deviceID, s.service, s.menuMessageID
	e.pending[pendingKey{svc, deviceID}] = pendingRequest{
		chatID:    chatID,
		mode:      mode,
		messageID: messageID,
	}
	e.mu.Unlock()

	topic := e.topics.ConfigUpdate(svc, deviceID)
	if err := e.bus.PublishJSON(topic, map[string]string{"request": "get_config"}); err != nil {
		e.logger.Warn("get_config publish failed", "topic", topic, "error", err)
		e.clearPending(svc, deviceID)
		e.resetSession(chatID)
		e.send(chatID, "Couldn't reach the appliance services, try again later.")
		return
	}

	e.editMessage(chatID, messageID, fmt.Sprintf("Fetching %s settings for %s...", svc, deviceID))
}

func (e *Engine) callbackSetting(chatID, key string) {
	e.mu.Lock()
	s, ok := e.sessions[chatID]
	if !ok || s.deviceID == "" || s.service == "" {
		e.mu.Unlock()
		return
	}
	s.settingKey = key
	s.state = stateAwaitingConfigValue
	messageID := s.menuMessageID
	e.mu.Unlock()

	hint := control.SettingHint(key)
	if hint == "" {
		hint = "a value"
	}
	e.editMessage(chatID, messageID, fmt.Sprintf("Send a new value for %s (%s), or /cancel.", key, hint))
}

// =============================================================================
// Config value input and replies
// =============================================================================

// handleConfigValue validates the typed value locally, then publishes the
// update and waits for the service's ack.
func (e *Engine) handleConfigValue(chatID, text string) {
	e.mu.Lock()
	s, ok := e.sessions[chatID]
	if !ok {
		e.mu.Unlock()
		return
	}
	deviceID, svc, key, messageID := s.deviceID, s.service, s.settingKey, s.menuMessageID
	e.mu.Unlock()

	value, err := control.ParseSettingValue(key, text)
	if err != nil {
		e.send(chatID, fmt.Sprintf("That value won't work: %v. Expected %s. Try again or /cancel.", err, control.SettingHint(key)))
		return
	}

	// The lock was released for the parse, so the session may have been
	// dropped in the meantime (user blocked the bot). Re-fetch.
	e.mu.Lock()
	s, ok = e.sessions[chatID]
	if !ok {
		e.mu.Unlock()
		return
	}
	s.state = stateAwaitingConfigAck
	e.pending[pendingKey{svc, deviceID}] = pendingRequest{
		chatID:     chatID,
		mode:       "ack",
		settingKey: key,
		messageID:  messageID,
	}
	e.mu.Unlock()

	topic := e.topics.ConfigUpdate(svc, deviceID)
	if err := e.bus.PublishJSON(topic, map[string]any{key: value}); err != nil {
		e.logger.Warn("config update publish failed", "topic", topic, "error", err)
		e.clearPending(svc, deviceID)
		e.resetSession(chatID)
		e.send(chatID, "Couldn't reach the appliance services, try again later.")
	}
}

// HandleConfigReply resolves a config_data, config_ack or config_error
// message back to the chat waiting on it. Replies with no pending request
// belong to other consumers and are ignored.
func (e *Engine) HandleConfigReply(topic string, payload []byte) {
	parsed, ok := mqtt.ParseConfigTopic(topic)
	if !ok || parsed.Suffix == mqtt.SuffixConfigUpdate {
		return
	}

	e.mu.Lock()
	req, ok := e.pending[pendingKey{parsed.Service, parsed.DeviceID}]
	if ok {
		delete(e.pending, pendingKey{parsed.Service, parsed.DeviceID})
	}
	e.mu.Unlock()
	if !ok {
		return
	}

	switch parsed.Suffix {
	case mqtt.SuffixConfigData:
		e.replyConfigData(req, parsed, payload)
	case mqtt.SuffixConfigAck:
		e.replyConfigAck(req, payload)
	case mqtt.SuffixConfigError:
		e.replyConfigError(req, payload)
	}
}

func (e *Engine) replyConfigData(req pendingRequest, parsed mqtt.ConfigTopic, payload []byte) {
	var data configData
	if err := json.Unmarshal(payload, &data); err != nil {
		e.logger.Warn("malformed config_data", "error", err)
		e.resetSession(req.chatID)
		e.send(req.chatID, "The service sent an unreadable reply, try again.")
		return
	}

	if req.mode == "show" {
		e.resetSession(req.chatID)
		e.editMessage(req.chatID, req.messageID, renderConfig(parsed.Service, parsed.DeviceID, data))
		return
	}

	// edit mode: one button per setting
	keys := make([]string, 0, len(data.Config))
	for k := range data.Config {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	rows := make([][]Button, 0, len(keys))
	for _, k := range keys {
		label := fmt.Sprintf("%s = %v", k, data.Config[k])
		rows = append(rows, []Button{{Label: label, Data: "cfg:" + k}})
	}
	e.setState(req.chatID, stateIdle)
	e.editKeyboard(req.chatID, req.messageID,
		fmt.Sprintf("%s settings for %s. Pick one to change:", parsed.Service, parsed.DeviceID), rows)
}

func (e *Engine) replyConfigAck(req pendingRequest, payload []byte) {
	var ack configAck
	if err := json.Unmarshal(payload, &ack); err != nil {
		e.logger.Warn("malformed config_ack", "error", err)
	}

	e.resetSession(req.chatID)
	if v, ok := ack.UpdatedConfig[req.settingKey]; ok {
		e.send(req.chatID, fmt.Sprintf("Saved: %s is now %v (config version %d).", req.settingKey, v, ack.ConfigVersion))
		return
	}
	e.send(req.chatID, "Saved.")
}

func (e *Engine) replyConfigError(req pendingRequest, payload []byte) {
	var ce configError
	if err := json.Unmarshal(payload, &ce); err != nil || ce.Error == "" {
		ce.Error = "the service rejected the update"
	}

	e.resetSession(req.chatID)
	e.send(req.chatID, fmt.Sprintf("Update rejected: %s", ce.Error))
}

// renderConfig formats a read-only settings view.
func renderConfig(service, deviceID string, data configData) string {
	keys := make([]string, 0, len(data.Config))
	for k := range data.Config {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	fmt.Fprintf(&b, "%s settings for %s (version %d):\n", service, deviceID, data.ConfigVersion)
	for _, k := range keys {
		fmt.Fprintf(&b, "• %s: %v\n", k, data.Config[k])
	}
	return strings.TrimRight(b.String(), "\n")
}

func (e *Engine) clearPending(service, deviceID string) {
	e.mu.Lock()
	delete(e.pending, pendingKey{service, deviceID})
	e.mu.Unlock()
}

func (e *Engine) editMessage(chatID string, messageID int, text string) {
	if messageID == 0 {
		e.send(chatID, text)
		return
	}
	if err := e.chat.Edit(chatID, messageID, text); err != nil {
		e.logger.Debug("editing message failed, sending fresh", "chat_id", chatID, "error", err)
		e.send(chatID, text)
	}
}

func (e *Engine) editKeyboard(chatID string, messageID int, text string, rows [][]Button) {
	if messageID == 0 {
		if _, err := e.chat.SendKeyboard(chatID, text, rows); err != nil {
			e.logger.Warn("sending keyboard failed", "chat_id", chatID, "error", err)
		}
		return
	}
	if err := e.chat.EditKeyboard(chatID, messageID, text, rows); err != nil {
		e.logger.Debug("editing keyboard failed, sending fresh", "chat_id", chatID, "error", err)
		if _, err := e.chat.SendKeyboard(chatID, text, rows); err != nil {
			e.logger.Warn("sending keyboard failed", "chat_id", chatID, "error", err)
		}
	}
}
