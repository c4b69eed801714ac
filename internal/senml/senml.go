// Package senml implements the SenML-like record format used for sensor
// events and door events on the SmartChill bus.
//
// A pack looks like:
//
//	{"bn": "SmartChill_112233/", "bt": 1719830000, "e": [
//	    {"n": "temperature", "v": 4.2, "u": "Cel", "t": 0}
//	]}
//
// Entry timestamps are relative to the base time; Decode resolves them to
// absolute values. Unknown top-level fields survive a decode/encode
// round-trip untouched.
package senml

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Sentinel errors for codec failures.
var (
	// ErrEmptyPack is returned when a payload decodes to no entries.
	ErrEmptyPack = errors.New("senml: pack has no entries")

	// ErrMalformed is returned when a payload is not valid SenML JSON.
	ErrMalformed = errors.New("senml: malformed payload")
)

// Entry is a single measurement or event inside a pack.
// Exactly one of Value or StringValue is expected to be set.
type Entry struct {
	Name        string   `json:"n"`
	Value       *float64 `json:"v,omitempty"`
	StringValue string   `json:"vs,omitempty"`
	Unit        string   `json:"u,omitempty"`
	Time        float64  `json:"t,omitempty"`
}

// Pack is the wire form of a SenML message.
type Pack struct {
	BaseName string  `json:"bn"`
	BaseTime float64 `json:"bt"`
	Entries  []Entry `json:"e"`

	// extra holds unrecognised top-level fields so they pass through
	// encode/decode unchanged.
	extra map[string]json.RawMessage
}

// packAlias avoids recursion in the custom JSON methods.
type packAlias struct {
	BaseName string  `json:"bn"`
	BaseTime float64 `json:"bt"`
	Entries  []Entry `json:"e"`
}

// UnmarshalJSON decodes a pack, stashing unknown top-level fields.
func (p *Pack) UnmarshalJSON(data []byte) error {
	var alias packAlias
	if err := json.Unmarshal(data, &alias); err != nil {
		return err
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	delete(raw, "bn")
	delete(raw, "bt")
	delete(raw, "e")

	p.BaseName = alias.BaseName
	p.BaseTime = alias.BaseTime
	p.Entries = alias.Entries
	if len(raw) > 0 {
		p.extra = raw
	}
	return nil
}

// MarshalJSON encodes a pack, re-emitting any preserved unknown fields.
func (p Pack) MarshalJSON() ([]byte, error) {
	out := make(map[string]json.RawMessage, len(p.extra)+3)
	for k, v := range p.extra {
		out[k] = v
	}

	bn, err := json.Marshal(p.BaseName)
	if err != nil {
		return nil, err
	}
	bt, err := json.Marshal(p.BaseTime)
	if err != nil {
		return nil, err
	}
	entries := p.Entries
	if entries == nil {
		entries = []Entry{}
	}
	e, err := json.Marshal(entries)
	if err != nil {
		return nil, err
	}
	out["bn"] = bn
	out["bt"] = bt
	out["e"] = e

	return json.Marshal(out)
}

// Record is one decoded measurement with its absolute timestamp and the
// device identity derived from the pack's base name.
type Record struct {
	DeviceID string
	Name     string
	Value    *float64
	String   string
	Unit     string
	// Timestamp is bt+t resolved to a wall-clock instant (UTC).
	Timestamp time.Time
}

// Message is a fully decoded pack.
type Message struct {
	DeviceID string
	BaseTime float64
	Records  []Record

	pack Pack
}

// Pack returns the underlying wire pack, including preserved unknown fields.
func (m *Message) Pack() Pack {
	return m.pack
}

// Decode parses a SenML payload and resolves relative timestamps.
//
// The device identity is the last path segment of the base name with any
// trailing slash stripped.
func Decode(payload []byte) (*Message, error) {
	var pack Pack
	if err := json.Unmarshal(payload, &pack); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	if len(pack.Entries) == 0 {
		return nil, ErrEmptyPack
	}

	deviceID := DeviceIDFromBaseName(pack.BaseName)

	msg := &Message{
		DeviceID: deviceID,
		BaseTime: pack.BaseTime,
		Records:  make([]Record, 0, len(pack.Entries)),
		pack:     pack,
	}

	for _, e := range pack.Entries {
		abs := pack.BaseTime + e.Time
		msg.Records = append(msg.Records, Record{
			DeviceID:  deviceID,
			Name:      e.Name,
			Value:     e.Value,
			String:    e.StringValue,
			Unit:      e.Unit,
			Timestamp: secondsToTime(abs),
		})
	}

	return msg, nil
}

// Encode serialises a pack to its wire form.
func Encode(pack Pack) ([]byte, error) {
	return json.Marshal(pack)
}

// DeviceIDFromBaseName extracts the device identity from a base name.
// A trailing slash is stripped and the last path segment returned.
func DeviceIDFromBaseName(bn string) string {
	bn = strings.TrimSuffix(bn, "/")
	if idx := strings.LastIndex(bn, "/"); idx >= 0 {
		return bn[idx+1:]
	}
	return bn
}

// NewReading builds a single-entry pack for a numeric sensor reading.
func NewReading(deviceID, sensor string, value float64, unit string) Pack {
	v := value
	return Pack{
		BaseName: deviceID + "/",
		BaseTime: float64(time.Now().Unix()),
		Entries: []Entry{
			{Name: sensor, Value: &v, Unit: unit},
		},
	}
}

// NewDoorEvent builds a single-entry pack for a door state transition.
// Event is "door_opened" or "door_closed".
func NewDoorEvent(deviceID, event string) Pack {
	return Pack{
		BaseName: deviceID + "/",
		BaseTime: float64(time.Now().Unix()),
		Entries: []Entry{
			{Name: "door_event", StringValue: event},
		},
	}
}

// secondsToTime converts fractional Unix seconds into a UTC time.
func secondsToTime(sec float64) time.Time {
	whole := int64(sec)
	frac := sec - float64(whole)
	return time.Unix(whole, int64(frac*float64(time.Second))).UTC()
}
