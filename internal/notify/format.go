package notify

import (
	"fmt"
	"strings"
	"time"

	"github.com/group17/smartchill/internal/control"
)

// alertTitles maps alert types to the headline shown in Telegram.
var alertTitles = map[string]string{
	control.AlertDoorTimeout: "Door left open",
	control.AlertDoorClosed:  "Door closed",
	control.AlertSpoilage:    "Spoilage risk",
	control.AlertMalfunction: "Malfunction",
}

// severityIcon picks the emoji prefix for a severity level.
func severityIcon(severity string) string {
	switch severity {
	case control.SeverityCritical:
		return "\U0001F6A8" // police light
	case control.SeverityWarning:
		return "⚠️" // warning sign
	default:
		return "ℹ️" // information
	}
}

// alertTitle returns the headline for an alert type, falling back to the
// raw type with underscores spaced out for types added after this build.
func alertTitle(alertType string) string {
	if title, ok := alertTitles[alertType]; ok {
		return title
	}
	return strings.ReplaceAll(alertType, "_", " ")
}

// FormatAlert renders an alert as the Telegram message body.
//
// deviceName is the user's name for the device when assigned, otherwise
// the device ID. The device ID is always included so support staff can
// correlate messages with fleet telemetry.
func FormatAlert(alert control.Alert, deviceName string) string {
	var b strings.Builder

	fmt.Fprintf(&b, "%s %s\n", severityIcon(alert.Severity), alertTitle(alert.AlertType))
	if deviceName != "" && deviceName != alert.DeviceID {
		fmt.Fprintf(&b, "Device: %s (%s)\n", deviceName, alert.DeviceID)
	} else {
		fmt.Fprintf(&b, "Device: %s\n", alert.DeviceID)
	}
	if alert.Message != "" {
		b.WriteString(alert.Message)
		b.WriteString("\n")
	}

	at := alert.Timestamp
	if at.IsZero() {
		at = time.Now()
	}
	b.WriteString(at.UTC().Format("2 Jan 2006 15:04 MST"))

	return b.String()
}

// FormatHistory renders recent history entries for the /history command.
func FormatHistory(entries []HistoryEntry) string {
	if len(entries) == 0 {
		return "No alerts on record."
	}

	var b strings.Builder
	b.WriteString("Recent alerts:\n")
	for _, entry := range entries {
		fmt.Fprintf(&b, "%s %s  %s  %s\n",
			severityIcon(entry.Severity),
			entry.SentAt.UTC().Format("02 Jan 15:04"),
			entry.DeviceID,
			alertTitle(entry.AlertType),
		)
	}
	return strings.TrimRight(b.String(), "\n")
}
