package control

import (
	"testing"

	"github.com/group17/smartchill/internal/infrastructure/logging"
	"github.com/group17/smartchill/internal/senml"
)

func newTestSpoilage(t *testing.T) (*Spoilage, *fakeBus) {
	t.Helper()
	bus := &fakeBus{}
	prober := &fakeProber{known: map[string]bool{"SmartChill_112233": true}}
	sp := NewSpoilage("spoilage", bus, newTestSettings(t, SpoilageDefaults()), prober, logging.Default("spoilage-test"))
	return sp, bus
}

func gasPayload(t *testing.T, deviceID string, ppm float64) []byte {
	t.Helper()
	data, err := senml.Encode(senml.NewReading(deviceID, "gas", ppm, "ppm"))
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	return data
}

func TestSpoilageSingleAlertPerExcursion(t *testing.T) {
	sp, bus := newTestSpoilage(t)
	topic := "Group17/SmartChill/SmartChill_112233/Alerts/Spoilage"

	// default threshold 400, single-alert mode
	sp.HandleReading("", gasPayload(t, "SmartChill_112233", 450))
	sp.HandleReading("", gasPayload(t, "SmartChill_112233", 500))
	sp.HandleReading("", gasPayload(t, "SmartChill_112233", 480))

	if got := bus.onTopic(topic); len(got) != 1 {
		t.Fatalf("alerts during excursion = %d, want 1", len(got))
	}

	// recovery rearms the alert
	sp.HandleReading("", gasPayload(t, "SmartChill_112233", 300))
	sp.HandleReading("", gasPayload(t, "SmartChill_112233", 450))

	if got := bus.onTopic(topic); len(got) != 2 {
		t.Errorf("alerts after rearm = %d, want 2", len(got))
	}
}

func TestSpoilageContinuousMode(t *testing.T) {
	sp, bus := newTestSpoilage(t)
	sp.settings.ApplyUpdate("SmartChill_112233", map[string]any{"enable_continuous_alerts": true})
	topic := "Group17/SmartChill/SmartChill_112233/Alerts/Spoilage"

	sp.HandleReading("", gasPayload(t, "SmartChill_112233", 450))
	sp.HandleReading("", gasPayload(t, "SmartChill_112233", 500))
	sp.HandleReading("", gasPayload(t, "SmartChill_112233", 480))

	if got := bus.onTopic(topic); len(got) != 3 {
		t.Errorf("continuous alerts = %d, want 3", len(got))
	}
}

func TestSpoilageBelowThresholdSilent(t *testing.T) {
	sp, bus := newTestSpoilage(t)

	sp.HandleReading("", gasPayload(t, "SmartChill_112233", 399))
	sp.HandleReading("", gasPayload(t, "SmartChill_112233", 400)) // boundary is not an excursion

	if len(bus.all()) != 0 {
		t.Errorf("unexpected alerts: %v", bus.all())
	}
}

func TestSpoilagePerDeviceThreshold(t *testing.T) {
	sp, bus := newTestSpoilage(t)
	sp.settings.ApplyUpdate("SmartChill_112233", map[string]any{"gas_threshold_ppm": 800})

	sp.HandleReading("", gasPayload(t, "SmartChill_112233", 600))
	if len(bus.all()) != 0 {
		t.Errorf("alert under raised threshold: %v", bus.all())
	}

	sp.HandleReading("", gasPayload(t, "SmartChill_112233", 900))
	if got := bus.onTopic("Group17/SmartChill/SmartChill_112233/Alerts/Spoilage"); len(got) != 1 {
		t.Errorf("alerts = %d, want 1", len(got))
	}
}

func TestSpoilageIgnoresOtherSensors(t *testing.T) {
	sp, bus := newTestSpoilage(t)

	payload, _ := senml.Encode(senml.NewReading("SmartChill_112233", "temperature", 999, "Cel"))
	sp.HandleReading("", payload)

	if len(bus.all()) != 0 {
		t.Errorf("alerted on non-gas reading: %v", bus.all())
	}
}
