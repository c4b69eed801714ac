package notify

import (
	"strings"
	"sync"
	"time"
)

// resolutionPrefix marks alert types that announce recovery rather than a
// new problem. They bypass the cooldown and never update it.
const resolutionPrefix = "door_closed"

// Cooldown suppresses repeat deliveries of the same alert to the same
// chat for the same device inside a configurable window.
//
// The key is chat + alert type + device; different devices or alert
// types never suppress each other.
type Cooldown struct {
	mu       sync.Mutex
	lastSent map[string]time.Time

	// now is swappable for tests.
	now func() time.Time
}

// NewCooldown creates an empty cooldown tracker.
func NewCooldown() *Cooldown {
	return &Cooldown{
		lastSent: make(map[string]time.Time),
		now:      time.Now,
	}
}

// cooldownKey builds the suppression key.
func cooldownKey(chatID, alertType, deviceID string) string {
	return chatID + "\x00" + alertType + "\x00" + deviceID
}

// IsResolution reports whether an alert type is a recovery announcement.
func IsResolution(alertType string) bool {
	return strings.HasPrefix(alertType, resolutionPrefix)
}

// Allow reports whether an alert may be delivered now.
//
// Resolution events are always allowed. For everything else the alert is
// allowed when no prior delivery exists or the window has elapsed.
func (c *Cooldown) Allow(chatID, alertType, deviceID string, window time.Duration) bool {
	if IsResolution(alertType) {
		return true
	}
	if window <= 0 {
		return true
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	last, ok := c.lastSent[cooldownKey(chatID, alertType, deviceID)]
	if !ok {
		return true
	}
	return c.now().Sub(last) >= window
}

// MarkSent records a successful delivery. Resolution events are ignored
// so they never delay the next real alert.
func (c *Cooldown) MarkSent(chatID, alertType, deviceID string) {
	if IsResolution(alertType) {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastSent[cooldownKey(chatID, alertType, deviceID)] = c.now()
}
