package control

import (
	"sync"
	"testing"
	"time"

	"github.com/group17/smartchill/internal/infrastructure/logging"
	"github.com/group17/smartchill/internal/senml"
)

// fakeReadings records telemetry writes.
type fakeReadings struct {
	mu       sync.Mutex
	readings []struct {
		deviceID string
		sensor   string
		value    float64
	}
}

func (f *fakeReadings) WriteReading(deviceID, sensor string, value float64, _ time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.readings = append(f.readings, struct {
		deviceID string
		sensor   string
		value    float64
	}{deviceID, sensor, value})
}

func (f *fakeReadings) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.readings)
}

func newTestStatus(t *testing.T) (*Status, *fakeBus, *fakeReadings) {
	t.Helper()
	bus := &fakeBus{}
	prober := &fakeProber{known: map[string]bool{"SmartChill_112233": true}}
	st := NewStatus("status", bus, newTestSettings(t, StatusDefaults()), prober, logging.Default("status-test"))
	sink := &fakeReadings{}
	st.SetTelemetry(sink)
	return st, bus, sink
}

func readingPayload(t *testing.T, deviceID, sensor string, value float64) []byte {
	t.Helper()
	data, err := senml.Encode(senml.NewReading(deviceID, sensor, value, ""))
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	return data
}

func TestStatusInRangeIsSilent(t *testing.T) {
	st, bus, sink := newTestStatus(t)

	st.HandleReading("", readingPayload(t, "SmartChill_112233", "temperature", 4.0))
	st.HandleReading("", readingPayload(t, "SmartChill_112233", "humidity", 70))

	if len(bus.all()) != 0 {
		t.Errorf("alerts for in-range readings: %v", bus.all())
	}
	if sink.count() != 2 {
		t.Errorf("telemetry writes = %d, want 2", sink.count())
	}
}

func TestStatusTemperatureOutOfRange(t *testing.T) {
	st, bus, _ := newTestStatus(t)
	topic := "Group17/SmartChill/SmartChill_112233/Alerts/Malfunction"

	// default band 0..8
	st.HandleReading("", readingPayload(t, "SmartChill_112233", "temperature", 12.5))
	if got := bus.onTopic(topic); len(got) != 1 {
		t.Fatalf("high temperature alerts = %d, want 1", len(got))
	}

	st.HandleReading("", readingPayload(t, "SmartChill_112233", "temperature", -3))
	if got := bus.onTopic(topic); len(got) != 2 {
		t.Errorf("low temperature alerts = %d, want 2", len(got))
	}
}

func TestStatusHumidityOverMax(t *testing.T) {
	st, bus, _ := newTestStatus(t)

	st.HandleReading("", readingPayload(t, "SmartChill_112233", "humidity", 90))
	if got := bus.onTopic("Group17/SmartChill/SmartChill_112233/Alerts/Malfunction"); len(got) != 1 {
		t.Errorf("humidity alerts = %d, want 1", len(got))
	}
}

func TestStatusAlertsGatedByToggle(t *testing.T) {
	st, bus, sink := newTestStatus(t)
	st.settings.ApplyUpdate("SmartChill_112233", map[string]any{"enable_malfunction_alerts": false})

	st.HandleReading("", readingPayload(t, "SmartChill_112233", "temperature", 12.5))

	if len(bus.all()) != 0 {
		t.Errorf("alert despite disabled toggle: %v", bus.all())
	}
	// telemetry keeps flowing even when alerts are muted
	if sink.count() != 1 {
		t.Errorf("telemetry writes = %d, want 1", sink.count())
	}
}

func TestStatusPerDeviceBand(t *testing.T) {
	st, bus, _ := newTestStatus(t)
	st.settings.ApplyUpdate("SmartChill_112233", map[string]any{
		"temp_min_celsius": 2.0,
		"temp_max_celsius": 6.0,
	})

	st.HandleReading("", readingPayload(t, "SmartChill_112233", "temperature", 7.0))
	if got := bus.onTopic("Group17/SmartChill/SmartChill_112233/Alerts/Malfunction"); len(got) != 1 {
		t.Errorf("alerts = %d, want 1 for tightened band", len(got))
	}
}
