package control

import "time"

// Alert severities.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityCritical = "critical"
)

// Alert types emitted by the control services. The notifier treats the
// "door_closed" type as a resolution event that bypasses its cooldown.
const (
	AlertDoorTimeout = "door_timeout"
	AlertDoorClosed  = "door_closed"
	AlertSpoilage    = "spoilage"
	AlertMalfunction = "malfunction"
)

// Alert topic kinds (the final topic segment under Alerts/).
const (
	KindDoorTimeout = "DoorTimeout"
	KindDoorClosed  = "DoorClosed"
	KindSpoilage    = "Spoilage"
	KindMalfunction = "Malfunction"
)

// AlertTypeForKind maps a topic kind segment back to its alert type.
// Returns the kind unchanged when it is not one of the known segments.
func AlertTypeForKind(kind string) string {
	switch kind {
	case KindDoorTimeout:
		return AlertDoorTimeout
	case KindDoorClosed:
		return AlertDoorClosed
	case KindSpoilage:
		return AlertSpoilage
	case KindMalfunction:
		return AlertMalfunction
	}
	return kind
}

// Alert is the payload published on the Alerts hierarchy.
type Alert struct {
	AlertType string    `json:"alert_type"`
	DeviceID  string    `json:"device_id"`
	Message   string    `json:"message"`
	Severity  string    `json:"severity"`
	Timestamp time.Time `json:"timestamp"`
	Service   string    `json:"service"`
	// CooldownMinutes carries the device's alert_cooldown_minutes so the
	// notifier can apply the right suppression window without a second
	// settings lookup.
	CooldownMinutes int `json:"cooldown_minutes,omitempty"`
}
