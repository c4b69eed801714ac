package bot

import (
	"context"
	"fmt"
	"strconv"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/group17/smartchill/internal/infrastructure/logging"
)

// pollTimeout is the long-poll timeout for GetUpdates, in seconds.
const pollTimeout = 30

// commandMenu is pushed to Telegram's command menu when
// telegram.set_descriptions_on_start is enabled.
var commandMenu = []tgbotapi.BotCommand{
	{Command: "register", Description: "Link this chat to an appliance"},
	{Command: "adddevice", Description: "Add another appliance"},
	{Command: "mydevices", Description: "List your appliances"},
	{Command: "rename", Description: "Rename an appliance"},
	{Command: "configure", Description: "View or change settings"},
	{Command: "history", Description: "Recent alerts"},
	{Command: "help", Description: "All commands"},
	{Command: "cancel", Description: "Abandon the current action"},
}

// Telegram adapts go-telegram-bot-api to the Chat interface and the
// notifier's Sender. Chat IDs cross the boundary as decimal strings, the
// form the registry stores them in.
type Telegram struct {
	api    *tgbotapi.BotAPI
	logger *logging.Logger
}

// NewTelegram authenticates against the Bot API.
func NewTelegram(token string, logger *logging.Logger) (*Telegram, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("bot: authenticating with telegram: %w", err)
	}
	logger.Info("telegram bot authenticated", "username", api.Self.UserName)
	return &Telegram{api: api, logger: logger}, nil
}

// SetCommandMenu publishes the command list so clients show it in the
// input field menu.
func (t *Telegram) SetCommandMenu() error {
	if _, err := t.api.Request(tgbotapi.NewSetMyCommands(commandMenu...)); err != nil {
		return fmt.Errorf("bot: setting command menu: %w", err)
	}
	return nil
}

// Send delivers a plain text message. Implements notify.Sender.
func (t *Telegram) Send(chatID, text string) error {
	id, err := parseChatID(chatID)
	if err != nil {
		return err
	}
	if _, err := t.api.Send(tgbotapi.NewMessage(id, text)); err != nil {
		return fmt.Errorf("bot: sending message: %w", err)
	}
	return nil
}

// SendKeyboard delivers a message with an inline keyboard and returns the
// message ID for later edits.
func (t *Telegram) SendKeyboard(chatID, text string, rows [][]Button) (int, error) {
	id, err := parseChatID(chatID)
	if err != nil {
		return 0, err
	}
	msg := tgbotapi.NewMessage(id, text)
	msg.ReplyMarkup = inlineKeyboard(rows)
	sent, err := t.api.Send(msg)
	if err != nil {
		return 0, fmt.Errorf("bot: sending keyboard: %w", err)
	}
	return sent.MessageID, nil
}

// Edit replaces a message's text and drops its keyboard.
func (t *Telegram) Edit(chatID string, messageID int, text string) error {
	id, err := parseChatID(chatID)
	if err != nil {
		return err
	}
	if _, err := t.api.Send(tgbotapi.NewEditMessageText(id, messageID, text)); err != nil {
		return fmt.Errorf("bot: editing message: %w", err)
	}
	return nil
}

// EditKeyboard replaces a message's text and keyboard in place.
func (t *Telegram) EditKeyboard(chatID string, messageID int, text string, rows [][]Button) error {
	id, err := parseChatID(chatID)
	if err != nil {
		return err
	}
	edit := tgbotapi.NewEditMessageTextAndMarkup(id, messageID, text, inlineKeyboard(rows))
	if _, err := t.api.Send(edit); err != nil {
		return fmt.Errorf("bot: editing keyboard: %w", err)
	}
	return nil
}

// AnswerCallback acknowledges a button press so the client stops its
// progress indicator.
func (t *Telegram) AnswerCallback(callbackID, text string) error {
	if _, err := t.api.Request(tgbotapi.NewCallback(callbackID, text)); err != nil {
		return fmt.Errorf("bot: answering callback: %w", err)
	}
	return nil
}

// Updates starts long polling and returns a channel of converted updates.
// The channel closes when the context ends.
func (t *Telegram) Updates(ctx context.Context) <-chan Update {
	cfg := tgbotapi.NewUpdate(0)
	cfg.Timeout = pollTimeout
	raw := t.api.GetUpdatesChan(cfg)

	out := make(chan Update)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				t.api.StopReceivingUpdates()
				return
			case upd, ok := <-raw:
				if !ok {
					return
				}
				converted, ok := convertUpdate(upd)
				if !ok {
					continue
				}
				select {
				case out <- converted:
				case <-ctx.Done():
					t.api.StopReceivingUpdates()
					return
				}
			}
		}
	}()
	return out
}

// convertUpdate flattens a Telegram update to the engine's Update form.
// Updates the engine has no use for report ok=false.
func convertUpdate(u tgbotapi.Update) (Update, bool) {
	switch {
	case u.Message != nil:
		return Update{
			ChatID:    strconv.FormatInt(u.Message.Chat.ID, 10),
			Text:      u.Message.Text,
			MessageID: u.Message.MessageID,
		}, true

	case u.CallbackQuery != nil:
		cq := u.CallbackQuery
		out := Update{
			CallbackID:   cq.ID,
			CallbackData: cq.Data,
		}
		if cq.Message != nil {
			out.ChatID = strconv.FormatInt(cq.Message.Chat.ID, 10)
			out.MessageID = cq.Message.MessageID
		}
		return out, out.ChatID != ""

	case u.MyChatMember != nil:
		status := u.MyChatMember.NewChatMember.Status
		if status != "kicked" && status != "left" {
			return Update{}, false
		}
		return Update{
			ChatID:  strconv.FormatInt(u.MyChatMember.Chat.ID, 10),
			Blocked: true,
		}, true
	}
	return Update{}, false
}

// inlineKeyboard converts button rows to the Bot API markup form.
func inlineKeyboard(rows [][]Button) tgbotapi.InlineKeyboardMarkup {
	out := make([][]tgbotapi.InlineKeyboardButton, 0, len(rows))
	for _, row := range rows {
		buttons := make([]tgbotapi.InlineKeyboardButton, 0, len(row))
		for _, b := range row {
			buttons = append(buttons, tgbotapi.NewInlineKeyboardButtonData(b.Label, b.Data))
		}
		out = append(out, buttons)
	}
	return tgbotapi.NewInlineKeyboardMarkup(out...)
}

func parseChatID(chatID string) (int64, error) {
	id, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("bot: invalid chat id %q: %w", chatID, err)
	}
	return id, nil
}
