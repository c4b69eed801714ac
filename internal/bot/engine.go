package bot

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/group17/smartchill/internal/catalog"
	"github.com/group17/smartchill/internal/infrastructure/logging"
	"github.com/group17/smartchill/internal/infrastructure/mqtt"
	"github.com/group17/smartchill/internal/notify"
	"github.com/group17/smartchill/internal/registry"
)

const (
	// lookupTimeout bounds registry calls made while handling one update.
	lookupTimeout = 6 * time.Second

	// historyLimit is how many alerts /history shows.
	historyLimit = 10
)

// usernamePattern validates usernames: 3 to 32 characters of letters,
// digits, underscore, dot and hyphen.
var usernamePattern = regexp.MustCompile(`^[A-Za-z0-9_.-]{3,32}$`)

// chatState enumerates the per-chat conversation states.
type chatState int

const (
	stateIdle chatState = iota
	stateAwaitingMAC
	stateAwaitingUsername
	stateAwaitingNewDeviceMAC
	stateAwaitingRename
	stateAwaitingConfigValue
	stateAwaitingConfigResponse
	stateAwaitingConfigAck
)

// chatFlow records what an inline device pick is for.
type chatFlow int

const (
	flowNone chatFlow = iota
	flowRename
	flowConfigure
)

// session is the conversation state for one chat.
type session struct {
	state chatState
	flow  chatFlow

	// registration flow
	mac      string
	deviceID string

	// configuration flow
	service    string
	mode       string // "show" or "edit"
	settingKey string

	// menuMessageID is the inline keyboard message being walked through.
	menuMessageID int
}

// pendingKey routes a configuration reply back to the requesting chat.
type pendingKey struct {
	service  string
	deviceID string
}

// pendingRequest is one outstanding configuration exchange.
type pendingRequest struct {
	chatID     string
	mode       string
	settingKey string
	messageID  int
}

// Engine dispatches chat platform updates through per-chat state
// machines and drives the registration, rename and configuration flows.
//
// Thread Safety:
//   - HandleUpdate and HandleConfigReply are safe to call concurrently;
//     session and pending tables are guarded by the engine's mutex and
//     never held across network calls.
type Engine struct {
	chat    Chat
	catalog Catalog
	bus     Bus
	history AlertHistory
	logger  *logging.Logger
	topics  mqtt.Topics

	mu       sync.Mutex
	sessions map[string]*session
	pending  map[pendingKey]pendingRequest
}

// NewEngine creates an interaction engine. history may be nil, which
// turns /history into a polite shrug.
func NewEngine(chat Chat, cat Catalog, bus Bus, history AlertHistory, logger *logging.Logger) *Engine {
	return &Engine{
		chat:     chat,
		catalog:  cat,
		bus:      bus,
		history:  history,
		logger:   logger,
		sessions: make(map[string]*session),
		pending:  make(map[pendingKey]pendingRequest),
	}
}

// Run consumes updates until the channel closes or the context ends.
func (e *Engine) Run(ctx context.Context, updates <-chan Update) {
	for {
		select {
		case <-ctx.Done():
			return
		case u, ok := <-updates:
			if !ok {
				return
			}
			e.HandleUpdate(u)
		}
	}
}

// HandleUpdate dispatches one platform event.
func (e *Engine) HandleUpdate(u Update) {
	if u.ChatID == "" {
		return
	}

	if u.Blocked {
		e.dropSession(u.ChatID)
		return
	}
	if u.CallbackData != "" {
		e.handleCallback(u)
		return
	}

	text := strings.TrimSpace(u.Text)
	if strings.HasPrefix(text, "/") {
		e.handleCommand(u.ChatID, text)
		return
	}
	e.handleText(u.ChatID, text)
}

// session returns the state for a chat, creating it on first contact.
// Callers hold no lock; the returned pointer is only mutated via the
// engine's helpers.
func (e *Engine) session(chatID string) *session {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, ok := e.sessions[chatID]
	if !ok {
		s = &session{}
		e.sessions[chatID] = s
	}
	return s
}

func (e *Engine) setState(chatID string, st chatState) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if s, ok := e.sessions[chatID]; ok {
		s.state = st
	}
}

func (e *Engine) resetSession(chatID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if s, ok := e.sessions[chatID]; ok {
		*s = session{}
	}
}

func (e *Engine) dropSession(chatID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.sessions, chatID)
}

func (e *Engine) stateOf(chatID string) chatState {
	e.mu.Lock()
	defer e.mu.Unlock()
	if s, ok := e.sessions[chatID]; ok {
		return s.state
	}
	return stateIdle
}

func lookupContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), lookupTimeout)
}

// send delivers a message and logs delivery failures; the engine always
// keeps going.
func (e *Engine) send(chatID, text string) {
	if err := e.chat.Send(chatID, text); err != nil {
		e.logger.Warn("sending reply failed", "chat_id", chatID, "error", err)
	}
}

// =============================================================================
// Commands
// =============================================================================

func (e *Engine) handleCommand(chatID, text string) {
	cmd := strings.ToLower(strings.Fields(text)[0])
	if at := strings.Index(cmd, "@"); at > 0 {
		cmd = cmd[:at]
	}

	// A command in the middle of a flow abandons the flow first.
	if cmd != "/cancel" && e.stateOf(chatID) != stateIdle {
		e.resetSession(chatID)
	}

	switch cmd {
	case "/start":
		e.cmdStart(chatID)
	case "/help":
		e.send(chatID, helpText)
	case "/register":
		e.session(chatID)
		e.setState(chatID, stateAwaitingMAC)
		e.send(chatID, "Send the MAC address printed on your appliance's label (for example AA:BB:CC:11:22:33).")
	case "/adddevice":
		e.cmdAddDevice(chatID)
	case "/mydevices":
		e.cmdMyDevices(chatID)
	case "/rename":
		e.cmdPickDevice(chatID, flowRename, "Which appliance do you want to rename?")
	case "/configure":
		e.cmdPickDevice(chatID, flowConfigure, "Which appliance do you want to configure?")
	case "/history":
		e.cmdHistory(chatID)
	case "/cancel":
		e.resetSession(chatID)
		e.send(chatID, "Cancelled.")
	default:
		e.send(chatID, "Unknown command. Try /help.")
	}
}

const helpText = `SmartChill commands:
/register - link this chat to an appliance
/adddevice - add another appliance to your account
/mydevices - list your appliances
/rename - rename an appliance
/configure - view or change appliance settings
/history - your recent alerts
/cancel - abandon the current action`

func (e *Engine) cmdStart(chatID string) {
	ctx, cancel := lookupContext()
	defer cancel()

	user, err := e.catalog.UserByChat(ctx, chatID)
	switch {
	case err == nil:
		e.send(chatID, fmt.Sprintf("Welcome back, %s! Use /mydevices to see your appliances or /help for everything else.", user.UserName))
	case errors.Is(err, catalog.ErrNotFound):
		e.send(chatID, "Welcome to SmartChill! Use /register to link your first appliance.")
	default:
		e.sendRegistryDown(chatID, err)
	}
}

func (e *Engine) cmdAddDevice(chatID string) {
	ctx, cancel := lookupContext()
	defer cancel()

	_, err := e.catalog.UserByChat(ctx, chatID)
	switch {
	case err == nil:
		e.session(chatID)
		e.setState(chatID, stateAwaitingNewDeviceMAC)
		e.send(chatID, "Send the MAC address of the appliance you want to add.")
	case errors.Is(err, catalog.ErrNotFound):
		e.send(chatID, "This chat isn't linked to an account yet. Use /register first.")
	default:
		e.sendRegistryDown(chatID, err)
	}
}

func (e *Engine) cmdMyDevices(chatID string) {
	devices, err := e.devicesForChat(chatID)
	if err != nil {
		return // devicesForChat already replied
	}
	if len(devices) == 0 {
		e.send(chatID, "You have no appliances yet. Use /adddevice to add one.")
		return
	}

	var b strings.Builder
	b.WriteString("Your appliances:\n")
	for _, d := range devices {
		fmt.Fprintf(&b, "• %s (%s, %s)\n", displayName(d), d.DeviceID, d.Model)
	}
	e.send(chatID, strings.TrimRight(b.String(), "\n"))
}

func (e *Engine) cmdPickDevice(chatID string, f chatFlow, prompt string) {
	devices, err := e.devicesForChat(chatID)
	if err != nil {
		return
	}
	if len(devices) == 0 {
		e.send(chatID, "You have no appliances yet. Use /adddevice to add one.")
		return
	}

	rows := make([][]Button, 0, len(devices))
	for _, d := range devices {
		rows = append(rows, []Button{{Label: displayName(d), Data: "dev:" + d.DeviceID}})
	}
	messageID, err := e.chat.SendKeyboard(chatID, prompt, rows)
	if err != nil {
		e.logger.Warn("sending device menu failed", "chat_id", chatID, "error", err)
		return
	}

	e.mu.Lock()
	s, ok := e.sessions[chatID]
	if !ok {
		s = &session{}
		e.sessions[chatID] = s
	}
	s.flow = f
	s.menuMessageID = messageID
	e.mu.Unlock()
}

func (e *Engine) cmdHistory(chatID string) {
	if e.history == nil {
		e.send(chatID, "Alert history isn't available right now.")
		return
	}
	ctx, cancel := lookupContext()
	defer cancel()

	entries, err := e.history.Recent(ctx, chatID, historyLimit)
	if err != nil {
		e.logger.Warn("history lookup failed", "chat_id", chatID, "error", err)
		e.send(chatID, "Couldn't read your alert history, try again later.")
		return
	}
	e.send(chatID, notify.FormatHistory(entries))
}

// devicesForChat resolves the chat's user and their devices, replying to
// the user itself on failure.
func (e *Engine) devicesForChat(chatID string) ([]*registry.Device, error) {
	ctx, cancel := lookupContext()
	defer cancel()

	user, err := e.catalog.UserByChat(ctx, chatID)
	if errors.Is(err, catalog.ErrNotFound) {
		e.send(chatID, "This chat isn't linked to an account yet. Use /register first.")
		return nil, err
	}
	if err != nil {
		e.sendRegistryDown(chatID, err)
		return nil, err
	}

	devices, err := e.catalog.UserDevices(ctx, user.UserID)
	if err != nil {
		e.sendRegistryDown(chatID, err)
		return nil, err
	}
	return devices, nil
}

func (e *Engine) sendRegistryDown(chatID string, err error) {
	e.logger.Warn("registry call failed", "chat_id", chatID, "error", err)
	e.send(chatID, "The device registry isn't reachable right now, please try again in a minute.")
}

func displayName(d *registry.Device) string {
	if d.UserDeviceName != nil && *d.UserDeviceName != "" {
		return *d.UserDeviceName
	}
	return d.DeviceID
}

// =============================================================================
// Stateful text input
// =============================================================================

func (e *Engine) handleText(chatID, text string) {
	switch e.stateOf(chatID) {
	case stateAwaitingMAC, stateAwaitingNewDeviceMAC:
		e.handleMACSubmission(chatID, text)
	case stateAwaitingUsername:
		e.handleUsername(chatID, text)
	case stateAwaitingRename:
		e.handleRenameValue(chatID, text)
	case stateAwaitingConfigValue:
		e.handleConfigValue(chatID, text)
	case stateAwaitingConfigResponse, stateAwaitingConfigAck:
		e.send(chatID, "Still waiting for the appliance service to respond. /cancel to abort.")
	default:
		e.send(chatID, "I didn't understand that. Try /help.")
	}
}

// handleMACSubmission implements the registration flow entry: normalize
// the MAC, look the device up and either confirm, reject, assign or ask
// for a username.
func (e *Engine) handleMACSubmission(chatID, text string) {
	mac, err := registry.NormalizeMAC(text)
	if err != nil {
		e.send(chatID, "That doesn't look like a MAC address. Expected 12 hex characters, like AA:BB:CC:11:22:33. Try again or /cancel.")
		return
	}

	ctx, cancel := lookupContext()
	defer cancel()

	device, err := e.catalog.GetDevice(ctx, mac)
	if errors.Is(err, catalog.ErrNotFound) {
		e.resetSession(chatID)
		e.send(chatID, "No SmartChill appliance with that MAC address has reported in. Check the label and start over with /register.")
		return
	}
	if err != nil {
		e.resetSession(chatID)
		e.sendRegistryDown(chatID, err)
		return
	}

	user, err := e.catalog.UserByChat(ctx, chatID)
	if err != nil && !errors.Is(err, catalog.ErrNotFound) {
		e.resetSession(chatID)
		e.sendRegistryDown(chatID, err)
		return
	}
	linked := err == nil

	if device.Owner != nil && *device.Owner != "" {
		e.resetSession(chatID)
		if linked && *device.Owner == user.UserID {
			e.send(chatID, fmt.Sprintf("%s is already linked to your account.", displayName(device)))
		} else {
			e.send(chatID, "This appliance is already registered to another account.")
		}
		return
	}

	if linked {
		if _, err := e.catalog.AssignDevice(ctx, user.UserID, device.DeviceID, ""); err != nil {
			e.resetSession(chatID)
			e.sendRegistryDown(chatID, err)
			return
		}
		e.resetSession(chatID)
		e.send(chatID, fmt.Sprintf("Done! %s is now on your account. Use /rename to give it a friendly name.", device.DeviceID))
		return
	}

	// New user: remember the device and ask for a username.
	e.mu.Lock()
	if s, ok := e.sessions[chatID]; ok {
		s.mac = mac
		s.deviceID = device.DeviceID
		s.state = stateAwaitingUsername
	}
	e.mu.Unlock()
	e.send(chatID, "Almost there. Choose a username (3-32 characters: letters, digits, _ . -).")
}

func (e *Engine) handleUsername(chatID, text string) {
	name := strings.TrimSpace(text)
	if !usernamePattern.MatchString(name) {
		e.send(chatID, "Usernames are 3-32 characters of letters, digits, _ . - only. Try another.")
		return
	}

	e.mu.Lock()
	deviceID := ""
	if s, ok := e.sessions[chatID]; ok {
		deviceID = s.deviceID
	}
	e.mu.Unlock()

	ctx, cancel := lookupContext()
	defer cancel()

	user, err := e.catalog.CreateUser(ctx, strings.ToLower(name), name, chatID)
	if errors.Is(err, catalog.ErrConflict) {
		e.send(chatID, "That username is taken, try another.")
		return
	}
	if err != nil {
		e.resetSession(chatID)
		e.sendRegistryDown(chatID, err)
		return
	}

	if _, err := e.catalog.AssignDevice(ctx, user.UserID, deviceID, ""); err != nil {
		e.resetSession(chatID)
		e.sendRegistryDown(chatID, err)
		return
	}

	e.resetSession(chatID)
	e.send(chatID, fmt.Sprintf("Welcome aboard, %s! %s is now on your account. You'll get alerts here when it needs attention.", user.UserName, deviceID))
}

func (e *Engine) handleRenameValue(chatID, text string) {
	e.mu.Lock()
	deviceID := ""
	if s, ok := e.sessions[chatID]; ok {
		deviceID = s.deviceID
	}
	e.mu.Unlock()

	ctx, cancel := lookupContext()
	defer cancel()

	device, err := e.catalog.RenameDevice(ctx, deviceID, strings.TrimSpace(text))
	if errors.Is(err, catalog.ErrBadRequest) {
		e.send(chatID, "Names are 1 to 50 characters. Try another.")
		return
	}
	if err != nil {
		e.resetSession(chatID)
		e.sendRegistryDown(chatID, err)
		return
	}

	e.resetSession(chatID)
	e.send(chatID, fmt.Sprintf("Renamed to %s.", displayName(device)))
}
