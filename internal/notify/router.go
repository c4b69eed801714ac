package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/group17/smartchill/internal/control"
	"github.com/group17/smartchill/internal/infrastructure/logging"
	"github.com/group17/smartchill/internal/infrastructure/mqtt"
	"github.com/group17/smartchill/internal/registry"
)

const (
	// resolveTimeout bounds the registry lookups for a single alert.
	resolveTimeout = 6 * time.Second

	// defaultCooldownMinutes applies when an alert arrives without a
	// cooldown_minutes field, such as from an older service build.
	defaultCooldownMinutes = 15
)

// Sender delivers a text message to a Telegram chat.
type Sender interface {
	Send(chatID, text string) error
}

// Directory resolves devices and users through the registry.
type Directory interface {
	GetDevice(ctx context.Context, deviceID string) (*registry.Device, error)
	GetUser(ctx context.Context, userID string) (*registry.User, error)
}

// AlertLog records delivered alerts. Implemented by *History.
type AlertLog interface {
	Record(ctx context.Context, chatID string, alert control.Alert) error
}

// Router consumes the Alerts hierarchy, resolves each alert to the owning
// user's Telegram chat, applies the per-chat cooldown and hands formatted
// messages to the sender. It also forwards configuration protocol replies
// to the bot's pending-request tracking.
type Router struct {
	sender    Sender
	directory Directory
	history   AlertLog
	cooldown  *Cooldown
	logger    *logging.Logger

	// onConfigReply receives config_data, config_ack and config_error
	// payloads. Set before subscribing; not guarded by a lock.
	onConfigReply func(topic string, payload []byte)
}

// NewRouter creates an alert router. history may be nil to skip local
// persistence, for example in tests.
func NewRouter(sender Sender, directory Directory, history AlertLog, logger *logging.Logger) *Router {
	return &Router{
		sender:    sender,
		directory: directory,
		history:   history,
		cooldown:  NewCooldown(),
		logger:    logger,
	}
}

// SetConfigReplyHandler registers the callback for configuration replies.
// Call before subscribing to the reply topics.
func (r *Router) SetConfigReplyHandler(handler func(topic string, payload []byte)) {
	r.onConfigReply = handler
}

// HandleAlert processes one message from the Alerts hierarchy.
//
// Malformed payloads, alerts for unassigned devices and alerts for users
// without a linked chat are dropped with a log line. Registry outages are
// returned as errors so the caller's logging shows the real cause.
func (r *Router) HandleAlert(topic string, payload []byte) error {
	var wire struct {
		control.Alert
		// UserID addresses a user directly, skipping device ownership.
		UserID string `json:"user_id"`
	}
	if err := json.Unmarshal(payload, &wire); err != nil {
		r.logger.Warn("dropping malformed alert", "topic", topic, "error", err)
		return nil
	}
	alert := wire.Alert

	parsed, parsedOK := mqtt.ParseAlertTopic(topic)
	if alert.DeviceID == "" && parsedOK {
		alert.DeviceID = parsed.DeviceID
	}
	if alert.DeviceID == "" && wire.UserID == "" {
		r.logger.Warn("dropping unaddressed alert", "topic", topic)
		return nil
	}
	if alert.AlertType == "" && parsedOK {
		alert.AlertType = control.AlertTypeForKind(parsed.Kind)
	}

	ctx, cancel := context.WithTimeout(context.Background(), resolveTimeout)
	defer cancel()

	var (
		chatID     string
		deviceName string
		err        error
	)
	if wire.UserID != "" {
		chatID, err = r.resolveUserChat(ctx, wire.UserID)
		deviceName = alert.DeviceID
	} else {
		chatID, deviceName, err = r.resolveChat(ctx, alert.DeviceID)
	}
	if err != nil {
		return fmt.Errorf("notify: resolving chat: %w", err)
	}
	if chatID == "" {
		r.logger.Debug("alert has no deliverable chat",
			"device_id", alert.DeviceID, "alert_type", alert.AlertType)
		return nil
	}

	window := time.Duration(alert.CooldownMinutes) * time.Minute
	if alert.CooldownMinutes <= 0 {
		window = defaultCooldownMinutes * time.Minute
	}
	if !r.cooldown.Allow(chatID, alert.AlertType, alert.DeviceID, window) {
		r.logger.Debug("alert suppressed by cooldown",
			"device_id", alert.DeviceID, "alert_type", alert.AlertType, "chat_id", chatID)
		return nil
	}

	if err := r.sender.Send(chatID, FormatAlert(alert, deviceName)); err != nil {
		return fmt.Errorf("notify: sending alert to chat %s: %w", chatID, err)
	}
	r.cooldown.MarkSent(chatID, alert.AlertType, alert.DeviceID)

	r.logger.Info("alert delivered",
		"device_id", alert.DeviceID, "alert_type", alert.AlertType,
		"severity", alert.Severity, "chat_id", chatID)

	if r.history != nil {
		if err := r.history.Record(ctx, chatID, alert); err != nil {
			// Delivery already happened, history is best effort.
			r.logger.Warn("recording alert history failed", "error", err)
		}
	}
	return nil
}

// resolveUserChat returns the linked chat for a user addressed directly.
func (r *Router) resolveUserChat(ctx context.Context, userID string) (string, error) {
	user, err := r.directory.GetUser(ctx, userID)
	if err != nil {
		return "", err
	}
	if user.TelegramChatID == nil {
		return "", nil
	}
	return *user.TelegramChatID, nil
}

// resolveChat walks device -> owner -> user -> telegram chat. An empty
// chat ID with nil error means the alert has nowhere to go.
func (r *Router) resolveChat(ctx context.Context, deviceID string) (chatID, deviceName string, err error) {
	device, err := r.directory.GetDevice(ctx, deviceID)
	if err != nil {
		return "", "", err
	}
	if device.Owner == nil || *device.Owner == "" {
		return "", "", nil
	}

	user, err := r.directory.GetUser(ctx, *device.Owner)
	if err != nil {
		return "", "", err
	}
	if user.TelegramChatID == nil || *user.TelegramChatID == "" {
		return "", "", nil
	}

	deviceName = deviceID
	if device.UserDeviceName != nil && *device.UserDeviceName != "" {
		deviceName = *device.UserDeviceName
	}
	return *user.TelegramChatID, deviceName, nil
}

// HandleConfigReply forwards a configuration protocol reply to the bot.
func (r *Router) HandleConfigReply(topic string, payload []byte) error {
	if r.onConfigReply == nil {
		r.logger.Debug("config reply with no handler", "topic", topic)
		return nil
	}
	r.onConfigReply(topic, payload)
	return nil
}
