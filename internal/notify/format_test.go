package notify

import (
	"strings"
	"testing"
	"time"

	"github.com/group17/smartchill/internal/control"
)

func TestFormatAlertWithDeviceName(t *testing.T) {
	text := FormatAlert(control.Alert{
		AlertType: control.AlertSpoilage,
		DeviceID:  "SmartChill_112233",
		Message:   "Gas level 520 ppm above threshold 400 ppm",
		Severity:  control.SeverityCritical,
		Timestamp: time.Date(2026, 8, 24, 12, 30, 0, 0, time.UTC),
	}, "Kitchen Fridge")

	for _, want := range []string{
		"\U0001F6A8",
		"Spoilage risk",
		"Kitchen Fridge (SmartChill_112233)",
		"Gas level 520 ppm",
		"24 Aug 2026 12:30 UTC",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("message missing %q:\n%s", want, text)
		}
	}
}

func TestFormatAlertUnnamedDevice(t *testing.T) {
	text := FormatAlert(control.Alert{
		AlertType: control.AlertDoorClosed,
		DeviceID:  "SmartChill_112233",
		Severity:  control.SeverityInfo,
		Timestamp: time.Now(),
	}, "SmartChill_112233")

	if strings.Contains(text, "(SmartChill_112233)") {
		t.Errorf("unnamed device should not repeat its ID in parentheses:\n%s", text)
	}
	if !strings.Contains(text, "Device: SmartChill_112233") {
		t.Errorf("device line missing:\n%s", text)
	}
	if !strings.Contains(text, "ℹ️") {
		t.Errorf("info icon missing:\n%s", text)
	}
}

func TestFormatAlertUnknownTypeFallsBack(t *testing.T) {
	text := FormatAlert(control.Alert{
		AlertType: "compressor_stall",
		DeviceID:  "SmartChill_112233",
		Severity:  control.SeverityWarning,
		Timestamp: time.Now(),
	}, "")

	if !strings.Contains(text, "compressor stall") {
		t.Errorf("unknown type not humanised:\n%s", text)
	}
}

func TestFormatHistory(t *testing.T) {
	text := FormatHistory([]HistoryEntry{
		{
			DeviceID:  "SmartChill_112233",
			AlertType: control.AlertDoorTimeout,
			Severity:  control.SeverityWarning,
			SentAt:    time.Date(2026, 8, 24, 12, 30, 0, 0, time.UTC),
		},
		{
			DeviceID:  "SmartChill_445566",
			AlertType: control.AlertSpoilage,
			Severity:  control.SeverityCritical,
			SentAt:    time.Date(2026, 8, 23, 9, 15, 0, 0, time.UTC),
		},
	})

	for _, want := range []string{"Door left open", "Spoilage risk", "24 Aug 12:30", "23 Aug 09:15"} {
		if !strings.Contains(text, want) {
			t.Errorf("history missing %q:\n%s", want, text)
		}
	}
}

func TestFormatHistoryEmpty(t *testing.T) {
	if got := FormatHistory(nil); got != "No alerts on record." {
		t.Errorf("empty history = %q", got)
	}
}
