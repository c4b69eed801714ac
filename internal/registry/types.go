package registry

import (
	"encoding/json"
	"time"
)

// Document is the versioned root of the registry. It is the single
// authoritative record of devices, users and services in the fleet, and
// is what the snapshot file contains.
type Document struct {
	SchemaVersion int              `json:"schemaVersion"`
	ProjectOwner  string           `json:"projectOwner"`
	ProjectName   string           `json:"projectName"`
	LastUpdate    time.Time        `json:"lastUpdate"`
	Broker        Broker           `json:"broker"`
	DeviceModels  map[string]Model `json:"deviceModels"`
	Devices       []*Device        `json:"devicesList"`
	Users         []*User          `json:"usersList"`
	Services      []*Service       `json:"servicesList"`
}

// Broker describes the fleet's MQTT endpoint, recorded in the document so
// devices can discover it from the registry.
type Broker struct {
	Address string `json:"address"`
	Port    int    `json:"port"`
}

// Model describes a supported device model: which sensors it carries and
// the bus configuration template pushed to new devices.
type Model struct {
	Sensors    []string       `json:"sensors"`
	MQTTConfig map[string]any `json:"mqtt_config,omitempty"`
}

// Device is one refrigeration unit. Identity is the MAC address; the
// deviceID is derived from it and never changes.
//
// Invariant: UserAssigned ⇔ Owner != nil ⇔ AssignmentTime != nil.
type Device struct {
	DeviceID         string         `json:"deviceID"`
	MACAddress       string         `json:"mac_address"`
	Model            string         `json:"model"`
	FirmwareVersion  string         `json:"firmware_version,omitempty"`
	Sensors          []string       `json:"sensors"`
	MQTTTopics       []string       `json:"mqtt_topics"`
	MQTTConfig       map[string]any `json:"mqtt_config,omitempty"`
	Status           string         `json:"status"`
	UserAssigned     bool           `json:"user_assigned"`
	Owner            *string        `json:"owner"`
	UserDeviceName   *string        `json:"user_device_name"`
	RegistrationTime time.Time      `json:"registration_time"`
	AssignmentTime   *time.Time     `json:"assignment_time"`
	LastSync         time.Time      `json:"last_sync"`
}

// deviceAlias mirrors Device for custom unmarshalling without recursion.
type deviceAlias Device

// deviceWire accepts the historical "assigned_user" synonym for "owner".
// Only "owner" is ever emitted.
type deviceWire struct {
	deviceAlias
	AssignedUser *string `json:"assigned_user"`
}

// UnmarshalJSON decodes a device, accepting assigned_user as an input
// synonym for owner.
func (d *Device) UnmarshalJSON(data []byte) error {
	var wire deviceWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	*d = Device(wire.deviceAlias)
	if d.Owner == nil && wire.AssignedUser != nil {
		d.Owner = wire.AssignedUser
	}
	return nil
}

// Clone returns an independent copy of the device. Callers receive clones
// from the store so they can never mutate indexed state.
func (d *Device) Clone() *Device {
	if d == nil {
		return nil
	}
	cpy := *d
	if d.Sensors != nil {
		cpy.Sensors = append([]string(nil), d.Sensors...)
	}
	if d.MQTTTopics != nil {
		cpy.MQTTTopics = append([]string(nil), d.MQTTTopics...)
	}
	if d.MQTTConfig != nil {
		cpy.MQTTConfig = make(map[string]any, len(d.MQTTConfig))
		for k, v := range d.MQTTConfig {
			cpy.MQTTConfig[k] = v
		}
	}
	cpy.Owner = cloneString(d.Owner)
	cpy.UserDeviceName = cloneString(d.UserDeviceName)
	cpy.AssignmentTime = cloneTime(d.AssignmentTime)
	return &cpy
}

// User is an end user, optionally linked to a Telegram chat.
//
// Invariant: every entry in Devices refers to a Device whose Owner equals
// UserID, and vice versa.
type User struct {
	UserID           string       `json:"userID"`
	UserName         string       `json:"userName"`
	TelegramChatID   *string      `json:"telegram_chat_id"`
	Devices          []UserDevice `json:"devicesList"`
	RegistrationTime time.Time    `json:"registration_time"`
}

// UserDevice is the user-side half of an assignment.
type UserDevice struct {
	DeviceID   string `json:"deviceID"`
	DeviceName string `json:"deviceName"`
}

// Clone returns an independent copy of the user.
func (u *User) Clone() *User {
	if u == nil {
		return nil
	}
	cpy := *u
	cpy.TelegramChatID = cloneString(u.TelegramChatID)
	if u.Devices != nil {
		cpy.Devices = append([]UserDevice(nil), u.Devices...)
	}
	return &cpy
}

// Service is a long-running process registered with the registry.
type Service struct {
	ServiceID        string    `json:"serviceID"`
	Name             string    `json:"name"`
	Description      string    `json:"description"`
	Endpoints        []string  `json:"endpoints"`
	Type             string    `json:"type,omitempty"`
	Version          string    `json:"version,omitempty"`
	Status           string    `json:"status"`
	RegistrationTime time.Time `json:"registration_time"`
	LastUpdate       time.Time `json:"lastUpdate"`
}

// Clone returns an independent copy of the service.
func (s *Service) Clone() *Service {
	if s == nil {
		return nil
	}
	cpy := *s
	if s.Endpoints != nil {
		cpy.Endpoints = append([]string(nil), s.Endpoints...)
	}
	return &cpy
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
