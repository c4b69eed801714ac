package control

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/group17/smartchill/internal/infrastructure/logging"
	"github.com/group17/smartchill/internal/senml"
)

// Door event values carried in the SenML string field.
const (
	doorOpened = "door_opened"
	doorClosed = "door_closed"
)

// defaultMonitorTick bounds the monitoring loop when no device configures
// a shorter check_interval.
const defaultMonitorTick = 5 * time.Second

// doorState tracks one open door.
//
// openedAt uses the monotonic clock so duration checks survive wall-clock
// adjustments; openedWall is only for alert text.
type doorState struct {
	openedAt   time.Time
	openedWall time.Time
	alerted    bool
}

// TelemetrySink receives door durations for fleet dashboards. Implemented
// by the influxdb client; nil disables telemetry.
type TelemetrySink interface {
	WriteDoorDuration(deviceID string, seconds float64, timedOut bool)
}

// DoorTimer watches door_event streams and alerts when a door stays open
// past the device's max_door_open_seconds.
//
// State machine per device:
//
//	Closed -> (door_opened) -> Open -> (duration >= threshold) -> Alerted
//	       -> (door_closed) -> emit DoorClosed -> Closed
//
// The timeout alert fires exactly once per open period; the DoorClosed
// resolution fires only if a timeout was alerted and the device has
// enable_door_closed_alerts set.
type DoorTimer struct {
	service
	mu        sync.Mutex
	open      map[string]*doorState
	telemetry TelemetrySink
}

// NewDoorTimer builds the door-timer service core.
func NewDoorTimer(serviceID string, bus Bus, settings *SettingsStore, prober DeviceProber, logger *logging.Logger) *DoorTimer {
	return &DoorTimer{
		service: service{
			id:       serviceID,
			bus:      bus,
			settings: settings,
			prober:   prober,
			logger:   logger,
		},
		open: make(map[string]*doorState),
	}
}

// SetTelemetry attaches an optional telemetry sink for door durations.
func (d *DoorTimer) SetTelemetry(sink TelemetrySink) {
	d.telemetry = sink
}

// HandleDoorEvent processes one message from a door_event topic.
// Non-door payloads and unknown devices are dropped.
func (d *DoorTimer) HandleDoorEvent(_ string, payload []byte) error {
	msg, err := senml.Decode(payload)
	if err != nil {
		d.logger.Debug("undecodable door event dropped", "error", err)
		return nil
	}

	if !d.ensureKnown(context.Background(), msg.DeviceID) {
		return nil
	}

	for _, rec := range msg.Records {
		if rec.Name != "door_event" {
			continue
		}
		switch rec.String {
		case doorOpened:
			d.onOpened(msg.DeviceID, rec.Timestamp)
		case doorClosed:
			d.onClosed(msg.DeviceID)
		default:
			d.logger.Debug("unknown door event value", "device_id", msg.DeviceID, "value", rec.String)
		}
	}
	return nil
}

// onOpened starts (or restarts) tracking an open door.
func (d *DoorTimer) onOpened(deviceID string, at time.Time) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.open[deviceID] = &doorState{
		openedAt:   time.Now(),
		openedWall: at,
	}
	d.logger.Debug("door opened", "device_id", deviceID)
}

// onClosed finishes tracking and emits the resolution alert when a
// timeout was previously raised.
func (d *DoorTimer) onClosed(deviceID string) {
	d.mu.Lock()
	state, ok := d.open[deviceID]
	delete(d.open, deviceID)
	d.mu.Unlock()

	if !ok {
		// close without a tracked open; nothing to resolve
		d.logger.Debug("door_closed without prior door_opened", "device_id", deviceID)
		return
	}

	openFor := time.Since(state.openedAt)
	if d.telemetry != nil {
		d.telemetry.WriteDoorDuration(deviceID, openFor.Seconds(), state.alerted)
	}

	if state.alerted && d.settings.BoolSetting(deviceID, "enable_door_closed_alerts", true) {
		d.publishAlert(deviceID, KindDoorClosed, AlertDoorClosed, SeverityInfo,
			fmt.Sprintf("Door closed after %.0f seconds", openFor.Seconds()))
	}
	d.logger.Debug("door closed", "device_id", deviceID, "open_seconds", openFor.Seconds())
}

// Monitor runs the timeout-checking loop until the context is cancelled.
//
// The tick interval is re-derived every iteration as the minimum
// check_interval across configured devices, so tightening a device's
// setting takes effect without a restart.
func (d *DoorTimer) Monitor(ctx context.Context) {
	for {
		tick := d.settings.MinCheckInterval(defaultMonitorTick)
		select {
		case <-ctx.Done():
			return
		case <-time.After(tick):
			d.checkOpenDoors()
		}
	}
}

// checkOpenDoors raises a DoorTimeout for every door open past its
// device's threshold that has not yet been alerted.
func (d *DoorTimer) checkOpenDoors() {
	type timeout struct {
		deviceID string
		openFor  time.Duration
		limit    int
	}

	d.mu.Lock()
	var due []timeout
	for deviceID, state := range d.open {
		if state.alerted {
			continue
		}
		limit := d.settings.IntSetting(deviceID, "max_door_open_seconds", 60)
		openFor := time.Since(state.openedAt)
		if openFor >= time.Duration(limit)*time.Second {
			state.alerted = true
			due = append(due, timeout{deviceID: deviceID, openFor: openFor, limit: limit})
		}
	}
	d.mu.Unlock()

	// publish outside the lock
	for _, t := range due {
		d.publishAlert(t.deviceID, KindDoorTimeout, AlertDoorTimeout, SeverityWarning,
			fmt.Sprintf("Door open for %.0f seconds (limit %d)", t.openFor.Seconds(), t.limit))
	}
}

// OpenDoors returns the devices currently tracked as open. Used by tests
// and the health endpoint.
func (d *DoorTimer) OpenDoors() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]string, 0, len(d.open))
	for id := range d.open {
		out = append(out, id)
	}
	return out
}
