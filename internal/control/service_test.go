package control

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/group17/smartchill/internal/infrastructure/logging"
)

// fakeBus records every publish for assertions.
type fakeBus struct {
	mu        sync.Mutex
	published []publication
}

type publication struct {
	topic   string
	payload []byte
}

func (b *fakeBus) PublishJSON(topic string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	b.mu.Lock()
	b.published = append(b.published, publication{topic: topic, payload: data})
	b.mu.Unlock()
	return nil
}

func (b *fakeBus) all() []publication {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]publication(nil), b.published...)
}

func (b *fakeBus) onTopic(topic string) []publication {
	var out []publication
	for _, p := range b.all() {
		if p.topic == topic {
			out = append(out, p)
		}
	}
	return out
}

// fakeProber answers device-existence probes from a fixed set.
type fakeProber struct {
	known map[string]bool
	err   error
	calls int
}

func (p *fakeProber) DeviceExists(_ context.Context, deviceID string) (bool, error) {
	p.calls++
	if p.err != nil {
		return false, p.err
	}
	return p.known[deviceID], nil
}

func newTestService(t *testing.T, defaults map[string]any, prober *fakeProber) (*service, *fakeBus) {
	t.Helper()
	bus := &fakeBus{}
	return &service{
		id:       "testsvc",
		bus:      bus,
		settings: newTestSettings(t, defaults),
		prober:   prober,
		logger:   logging.Default("control-test"),
	}, bus
}

func TestEnsureKnownAdmitsRegisteredDevice(t *testing.T) {
	prober := &fakeProber{known: map[string]bool{"SmartChill_112233": true}}
	svc, _ := newTestService(t, DoorTimerDefaults(), prober)

	if !svc.ensureKnown(context.Background(), "SmartChill_112233") {
		t.Fatal("registered device rejected")
	}
	if !svc.settings.Known("SmartChill_112233") {
		t.Error("device not added to settings")
	}

	// second event skips the probe
	svc.ensureKnown(context.Background(), "SmartChill_112233")
	if prober.calls != 1 {
		t.Errorf("probe calls = %d, want 1", prober.calls)
	}
}

func TestEnsureKnownDropsUnregisteredDevice(t *testing.T) {
	prober := &fakeProber{known: map[string]bool{}}
	svc, _ := newTestService(t, DoorTimerDefaults(), prober)

	if svc.ensureKnown(context.Background(), "SmartChill_999999") {
		t.Error("unregistered device admitted")
	}
	if svc.settings.Known("SmartChill_999999") {
		t.Error("unregistered device added to settings")
	}
}

func TestEnsureKnownDropsOnRegistryOutage(t *testing.T) {
	prober := &fakeProber{err: errors.New("connection refused")}
	svc, _ := newTestService(t, DoorTimerDefaults(), prober)

	if svc.ensureKnown(context.Background(), "SmartChill_112233") {
		t.Error("event admitted while registry unreachable")
	}
}

func TestConfigProtocolGetConfig(t *testing.T) {
	prober := &fakeProber{known: map[string]bool{"SmartChill_112233": true}}
	svc, bus := newTestService(t, DoorTimerDefaults(), prober)

	topic := "Group17/SmartChill/testsvc/SmartChill_112233/config_update"
	if err := svc.HandleConfigUpdate(topic, []byte(`{"request":"get_config"}`)); err != nil {
		t.Fatalf("HandleConfigUpdate: %v", err)
	}

	replies := bus.onTopic("Group17/SmartChill/testsvc/SmartChill_112233/config_data")
	if len(replies) != 1 {
		t.Fatalf("config_data replies = %d, want 1", len(replies))
	}
	var data configDataReply
	if err := json.Unmarshal(replies[0].payload, &data); err != nil {
		t.Fatalf("decode reply: %v", err)
	}
	if data.DeviceID != "SmartChill_112233" {
		t.Errorf("device_id = %q", data.DeviceID)
	}
	if data.Config["max_door_open_seconds"] != float64(60) {
		t.Errorf("config = %v, want default 60", data.Config["max_door_open_seconds"])
	}
}

func TestConfigProtocolValidUpdateAcks(t *testing.T) {
	prober := &fakeProber{known: map[string]bool{"SmartChill_112233": true}}
	svc, bus := newTestService(t, DoorTimerDefaults(), prober)

	before := svc.settings.Version()
	topic := "Group17/SmartChill/testsvc/SmartChill_112233/config_update"
	svc.HandleConfigUpdate(topic, []byte(`{"max_door_open_seconds": 120}`))

	acks := bus.onTopic("Group17/SmartChill/testsvc/SmartChill_112233/config_ack")
	if len(acks) != 1 {
		t.Fatalf("config_ack replies = %d, want 1", len(acks))
	}
	var ack configAckReply
	json.Unmarshal(acks[0].payload, &ack)
	if ack.UpdatedConfig["max_door_open_seconds"] != float64(120) {
		t.Errorf("updated_config = %v", ack.UpdatedConfig)
	}
	if ack.ConfigVersion <= before {
		t.Errorf("configVersion = %d, want > %d", ack.ConfigVersion, before)
	}

	// a later get_config sees the new value
	svc.HandleConfigUpdate(topic, []byte(`{"request":"get_config"}`))
	replies := bus.onTopic("Group17/SmartChill/testsvc/SmartChill_112233/config_data")
	var data configDataReply
	json.Unmarshal(replies[len(replies)-1].payload, &data)
	if data.Config["max_door_open_seconds"] != float64(120) {
		t.Errorf("config after update = %v, want 120", data.Config["max_door_open_seconds"])
	}
}

func TestConfigProtocolInvalidUpdateErrors(t *testing.T) {
	prober := &fakeProber{known: map[string]bool{"SmartChill_112233": true}}
	svc, bus := newTestService(t, DoorTimerDefaults(), prober)

	before := svc.settings.Version()
	topic := "Group17/SmartChill/testsvc/SmartChill_112233/config_update"
	svc.HandleConfigUpdate(topic, []byte(`{"max_door_open_seconds": 10}`))

	errsTopic := "Group17/SmartChill/testsvc/SmartChill_112233/config_error"
	errReplies := bus.onTopic(errsTopic)
	if len(errReplies) != 1 {
		t.Fatalf("config_error replies = %d, want 1", len(errReplies))
	}
	var errReply configErrorReply
	json.Unmarshal(errReplies[0].payload, &errReply)
	if errReply.Error == "" {
		t.Error("error reason empty")
	}

	if svc.settings.Version() != before {
		t.Errorf("configVersion changed on rejected update: %d -> %d", before, svc.settings.Version())
	}
	if len(bus.onTopic("Group17/SmartChill/testsvc/SmartChill_112233/config_ack")) != 0 {
		t.Error("config_ack published for rejected update")
	}
}

func TestConfigProtocolMalformedPayload(t *testing.T) {
	prober := &fakeProber{known: map[string]bool{"SmartChill_112233": true}}
	svc, bus := newTestService(t, DoorTimerDefaults(), prober)

	topic := "Group17/SmartChill/testsvc/SmartChill_112233/config_update"
	svc.HandleConfigUpdate(topic, []byte(`{not json`))

	if len(bus.onTopic("Group17/SmartChill/testsvc/SmartChill_112233/config_error")) != 1 {
		t.Error("expected config_error for malformed payload")
	}
}
