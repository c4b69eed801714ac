package bot

import (
	"context"

	"github.com/group17/smartchill/internal/notify"
	"github.com/group17/smartchill/internal/registry"
)

// Update is one incoming event from the chat platform, flattened to the
// fields the engine dispatches on.
type Update struct {
	// ChatID identifies the conversation, as a decimal string.
	ChatID string

	// Text is the message body. Empty for callbacks and status updates.
	Text string

	// CallbackID and CallbackData are set for inline button presses.
	CallbackID   string
	CallbackData string

	// MessageID is the message the pressed keyboard is attached to.
	MessageID int

	// Blocked is true when the user blocked or removed the bot.
	Blocked bool
}

// Button is one inline keyboard button.
type Button struct {
	Label string
	Data  string
}

// Chat sends messages back to the platform.
type Chat interface {
	Send(chatID, text string) error
	SendKeyboard(chatID, text string, rows [][]Button) (messageID int, err error)
	Edit(chatID string, messageID int, text string) error
	EditKeyboard(chatID string, messageID int, text string, rows [][]Button) error
	AnswerCallback(callbackID, text string) error
}

// Catalog is the registry surface the engine needs. Implemented by
// *catalog.Client.
type Catalog interface {
	GetDevice(ctx context.Context, idOrMAC string) (*registry.Device, error)
	GetUser(ctx context.Context, userID string) (*registry.User, error)
	UserByChat(ctx context.Context, chatID string) (*registry.User, error)
	UserDevices(ctx context.Context, userID string) ([]*registry.Device, error)
	CreateUser(ctx context.Context, userID, userName, chatID string) (*registry.User, error)
	AssignDevice(ctx context.Context, userID, deviceID, deviceName string) (*registry.Device, error)
	LinkTelegram(ctx context.Context, userID, chatID string) (*registry.User, error)
	RenameDevice(ctx context.Context, deviceID, name string) (*registry.Device, error)
}

// Bus publishes configuration requests to the control services.
type Bus interface {
	PublishJSON(topic string, payload any) error
}

// AlertHistory serves the /history command. Implemented by
// *notify.History.
type AlertHistory interface {
	Recent(ctx context.Context, chatID string, limit int) ([]notify.HistoryEntry, error)
}
