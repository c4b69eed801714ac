package control

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/group17/smartchill/internal/infrastructure/logging"
	"github.com/group17/smartchill/internal/senml"
)

func newTestDoorTimer(t *testing.T) (*DoorTimer, *fakeBus) {
	t.Helper()
	bus := &fakeBus{}
	prober := &fakeProber{known: map[string]bool{
		"SmartChill_112233": true,
		"SmartChill_445566": true,
	}}
	dt := NewDoorTimer("doortimer", bus, newTestSettings(t, DoorTimerDefaults()), prober, logging.Default("doortimer-test"))
	return dt, bus
}

func doorEventPayload(t *testing.T, deviceID, event string) []byte {
	t.Helper()
	data, err := senml.Encode(senml.NewDoorEvent(deviceID, event))
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	return data
}

// backdate shifts a tracked open door into the past.
func (d *DoorTimer) backdate(deviceID string, by time.Duration) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if state, ok := d.open[deviceID]; ok {
		state.openedAt = state.openedAt.Add(-by)
	}
}

func TestDoorTimeoutFiresOnce(t *testing.T) {
	dt, bus := newTestDoorTimer(t)

	dt.HandleDoorEvent("", doorEventPayload(t, "SmartChill_112233", "door_opened"))
	if len(dt.OpenDoors()) != 1 {
		t.Fatal("door not tracked after door_opened")
	}

	// under the 60s default: no alert yet
	dt.checkOpenDoors()
	if got := bus.onTopic("Group17/SmartChill/SmartChill_112233/Alerts/DoorTimeout"); len(got) != 0 {
		t.Fatalf("alert before threshold: %v", got)
	}

	// past the threshold: exactly one alert, re-checks stay silent
	dt.backdate("SmartChill_112233", 61*time.Second)
	dt.checkOpenDoors()
	dt.checkOpenDoors()
	dt.checkOpenDoors()

	alerts := bus.onTopic("Group17/SmartChill/SmartChill_112233/Alerts/DoorTimeout")
	if len(alerts) != 1 {
		t.Fatalf("timeout alerts = %d, want exactly 1", len(alerts))
	}
	var alert Alert
	json.Unmarshal(alerts[0].payload, &alert)
	if alert.AlertType != AlertDoorTimeout || alert.Severity != SeverityWarning {
		t.Errorf("alert = %+v", alert)
	}
	if alert.Service != "doortimer" {
		t.Errorf("service = %q", alert.Service)
	}
}

func TestDoorClosedResolutionAfterTimeout(t *testing.T) {
	dt, bus := newTestDoorTimer(t)

	dt.HandleDoorEvent("", doorEventPayload(t, "SmartChill_112233", "door_opened"))
	dt.backdate("SmartChill_112233", 90*time.Second)
	dt.checkOpenDoors()

	dt.HandleDoorEvent("", doorEventPayload(t, "SmartChill_112233", "door_closed"))

	closed := bus.onTopic("Group17/SmartChill/SmartChill_112233/Alerts/DoorClosed")
	if len(closed) != 1 {
		t.Fatalf("DoorClosed alerts = %d, want 1", len(closed))
	}
	var alert Alert
	json.Unmarshal(closed[0].payload, &alert)
	if alert.AlertType != AlertDoorClosed || alert.Severity != SeverityInfo {
		t.Errorf("alert = %+v", alert)
	}
	if len(dt.OpenDoors()) != 0 {
		t.Error("door still tracked after close")
	}
}

func TestDoorClosedWithoutTimeoutIsSilent(t *testing.T) {
	dt, bus := newTestDoorTimer(t)

	dt.HandleDoorEvent("", doorEventPayload(t, "SmartChill_112233", "door_opened"))
	dt.HandleDoorEvent("", doorEventPayload(t, "SmartChill_112233", "door_closed"))

	if got := bus.onTopic("Group17/SmartChill/SmartChill_112233/Alerts/DoorClosed"); len(got) != 0 {
		t.Errorf("DoorClosed alert without prior timeout: %v", got)
	}
}

func TestDoorClosedResolutionRespectsToggle(t *testing.T) {
	dt, bus := newTestDoorTimer(t)
	dt.settings.ApplyUpdate("SmartChill_112233", map[string]any{"enable_door_closed_alerts": false})

	dt.HandleDoorEvent("", doorEventPayload(t, "SmartChill_112233", "door_opened"))
	dt.backdate("SmartChill_112233", 90*time.Second)
	dt.checkOpenDoors()
	dt.HandleDoorEvent("", doorEventPayload(t, "SmartChill_112233", "door_closed"))

	if got := bus.onTopic("Group17/SmartChill/SmartChill_112233/Alerts/DoorClosed"); len(got) != 0 {
		t.Errorf("DoorClosed alert despite disabled toggle: %v", got)
	}
}

func TestDoorClosedWithoutOpenIsNoOp(t *testing.T) {
	dt, bus := newTestDoorTimer(t)

	dt.HandleDoorEvent("", doorEventPayload(t, "SmartChill_112233", "door_closed"))

	if len(bus.all()) != 0 {
		t.Errorf("unexpected publishes: %v", bus.all())
	}
	if len(dt.OpenDoors()) != 0 {
		t.Error("phantom open door tracked")
	}
}

func TestDoorEventFromUnregisteredDeviceDropped(t *testing.T) {
	dt, _ := newTestDoorTimer(t)

	dt.HandleDoorEvent("", doorEventPayload(t, "SmartChill_999999", "door_opened"))
	if len(dt.OpenDoors()) != 0 {
		t.Error("event from unregistered device tracked")
	}
}

func TestDoorTimerPerDeviceThreshold(t *testing.T) {
	dt, bus := newTestDoorTimer(t)
	dt.settings.ApplyUpdate("SmartChill_445566", map[string]any{"max_door_open_seconds": 300})

	dt.HandleDoorEvent("", doorEventPayload(t, "SmartChill_112233", "door_opened"))
	dt.HandleDoorEvent("", doorEventPayload(t, "SmartChill_445566", "door_opened"))
	dt.backdate("SmartChill_112233", 90*time.Second)
	dt.backdate("SmartChill_445566", 90*time.Second)
	dt.checkOpenDoors()

	if got := bus.onTopic("Group17/SmartChill/SmartChill_112233/Alerts/DoorTimeout"); len(got) != 1 {
		t.Errorf("default-threshold device alerts = %d, want 1", len(got))
	}
	if got := bus.onTopic("Group17/SmartChill/SmartChill_445566/Alerts/DoorTimeout"); len(got) != 0 {
		t.Errorf("relaxed-threshold device alerts = %d, want 0", len(got))
	}
}
