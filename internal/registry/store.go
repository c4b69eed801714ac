package registry

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/group17/smartchill/internal/infrastructure/mqtt"
)

// maxDeviceNameLen is the longest accepted user device name.
const maxDeviceNameLen = 50

// Logger defines the logging interface used by the Store.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// EventType identifies a registry mutation broadcast to observers.
type EventType string

// Event types emitted by the Store.
const (
	EventDeviceRegistered  EventType = "device_registered"
	EventDeviceSynced      EventType = "device_synced"
	EventDeviceAssigned    EventType = "device_assigned"
	EventDeviceUnassigned  EventType = "device_unassigned"
	EventDeviceRenamed     EventType = "device_renamed"
	EventUserCreated       EventType = "user_created"
	EventUserDeleted       EventType = "user_deleted"
	EventTelegramLinked    EventType = "telegram_linked"
	EventServiceRegistered EventType = "service_registered"
)

// Event is a registry change notification, delivered to the websocket hub.
type Event struct {
	Type    EventType `json:"type"`
	Payload any       `json:"payload,omitempty"`
}

// Store is the in-memory registry: the document plus O(1) indices and the
// invariants between devices and users.
//
// Every mutating operation runs under one exclusive critical section
// covering invariant check, mutation, index fix-up and the snapshot write.
// A failed snapshot write does not roll the mutation back; the operation
// returns an error wrapping ErrSnapshot and a later write may persist it.
//
// All returned entities are clones; callers can never mutate indexed state.
type Store struct {
	mu       sync.RWMutex
	doc      *Document
	snapshot *Snapshot

	byDeviceID  map[string]*Device
	byMAC       map[string]*Device
	byUserID    map[string]*User
	byChatID    map[string]*User
	byModel     map[string][]*Device
	byServiceID map[string]*Service

	logger  Logger
	onEvent func(Event)
}

// NewStore builds a Store over the given document.
//
// The snapshot may be nil, in which case mutations are memory-only
// (used by tests).
func NewStore(doc *Document, snapshot *Snapshot) *Store {
	if doc.DeviceModels == nil {
		doc.DeviceModels = make(map[string]Model)
	}
	s := &Store{
		doc:         doc,
		snapshot:    snapshot,
		byDeviceID:  make(map[string]*Device),
		byMAC:       make(map[string]*Device),
		byUserID:    make(map[string]*User),
		byChatID:    make(map[string]*User),
		byModel:     make(map[string][]*Device),
		byServiceID: make(map[string]*Service),
		logger:      noopLogger{},
	}
	s.rebuildIndices()
	return s
}

// SetLogger sets the logger for the store.
func (s *Store) SetLogger(logger Logger) {
	s.logger = logger
}

// SetOnEvent registers a callback invoked after each successful mutation.
// The callback runs outside the critical section with a cloned payload.
func (s *Store) SetOnEvent(fn func(Event)) {
	s.onEvent = fn
}

// rebuildIndices repopulates every index from the document lists.
func (s *Store) rebuildIndices() {
	for _, d := range s.doc.Devices {
		s.indexDevice(d)
	}
	for _, u := range s.doc.Users {
		s.indexUser(u)
	}
	for _, svc := range s.doc.Services {
		s.byServiceID[svc.ServiceID] = svc
	}
}

func (s *Store) indexDevice(d *Device) {
	s.byDeviceID[d.DeviceID] = d
	if norm, err := NormalizeMAC(d.MACAddress); err == nil {
		s.byMAC[norm] = d
	}
	s.byModel[d.Model] = append(s.byModel[d.Model], d)
}

func (s *Store) indexUser(u *User) {
	s.byUserID[u.UserID] = u
	if u.TelegramChatID != nil {
		s.byChatID[*u.TelegramChatID] = u
	}
}

// emit delivers an event to the observer, if any.
func (s *Store) emit(evt Event) {
	if s.onEvent != nil {
		s.onEvent(evt)
	}
}

// persist schedules the snapshot write for the current document state.
// Must be called with the write lock held.
func (s *Store) persist() error {
	if s.snapshot == nil {
		return nil
	}
	if err := s.snapshot.Save(s.doc); err != nil {
		s.logger.Error("snapshot write failed", "error", err)
		return fmt.Errorf("%w: %w", ErrSnapshot, err)
	}
	return nil
}

// normalizeChatID canonicalises a chat identifier to its decimal form.
func normalizeChatID(chat string) (string, error) {
	chat = strings.TrimSpace(chat)
	if chat == "" {
		return "", ErrInvalidChatID
	}
	n, err := strconv.ParseInt(chat, 10, 64)
	if err != nil {
		return "", fmt.Errorf("%w: %q", ErrInvalidChatID, chat)
	}
	return strconv.FormatInt(n, 10), nil
}

// =============================================================================
// Device operations
// =============================================================================

// RegisterDevice creates a device from its first registration, or syncs an
// existing one.
//
// Registration is idempotent by MAC: a second registration of the same MAC
// returns the existing record with only last_sync updated, even when the
// model or sensor list differ (first write wins on structure).
//
// Returns the device, whether it was newly created, and an error. An
// ErrSnapshot error still carries a valid device: the in-memory mutation
// stands.
func (s *Store) RegisterDevice(mac, model string, sensors []string, firmware string) (*Device, bool, error) {
	norm, err := NormalizeMAC(mac)
	if err != nil {
		return nil, false, err
	}

	s.mu.Lock()

	if existing, ok := s.byMAC[norm]; ok {
		existing.LastSync = time.Now().UTC()
		clone := existing.Clone()
		err := s.persist()
		s.mu.Unlock()
		s.emit(Event{Type: EventDeviceSynced, Payload: clone})
		return clone, false, err
	}

	m, ok := s.doc.DeviceModels[model]
	if !ok {
		s.mu.Unlock()
		return nil, false, fmt.Errorf("%w: %q", ErrUnsupportedModel, model)
	}

	if len(sensors) == 0 {
		sensors = append([]string(nil), m.Sensors...)
	}

	now := time.Now().UTC()
	d := &Device{
		DeviceID:         DeriveDeviceID(norm),
		MACAddress:       norm,
		Model:            model,
		FirmwareVersion:  firmware,
		Sensors:          append([]string(nil), sensors...),
		MQTTTopics:       deviceTopics(model, DeriveDeviceID(norm), sensors),
		MQTTConfig:       m.MQTTConfig,
		Status:           "registered",
		RegistrationTime: now,
		LastSync:         now,
	}

	s.doc.Devices = append(s.doc.Devices, d)
	s.indexDevice(d)
	clone := d.Clone()
	perr := s.persist()
	s.mu.Unlock()

	s.logger.Info("device registered", "device_id", d.DeviceID, "model", model)
	s.emit(Event{Type: EventDeviceRegistered, Payload: clone})
	return clone, true, perr
}

// deviceTopics derives the topics a device publishes on: one per sensor
// plus the door event stream.
func deviceTopics(model, deviceID string, sensors []string) []string {
	topics := mqtt.Topics{}
	out := make([]string, 0, len(sensors)+1)
	for _, sensor := range sensors {
		out = append(out, topics.Sensor(model, deviceID, sensor))
	}
	out = append(out, topics.DoorEvent(model, deviceID))
	return out
}

// Device returns a device by ID.
func (s *Store) Device(id string) (*Device, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.byDeviceID[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrDeviceNotFound, id)
	}
	return d.Clone(), nil
}

// DeviceByMAC returns a device by MAC address, in any separator/case form.
func (s *Store) DeviceByMAC(mac string) (*Device, error) {
	norm, err := NormalizeMAC(mac)
	if err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.byMAC[norm]
	if !ok {
		return nil, fmt.Errorf("%w: mac %s", ErrDeviceNotFound, norm)
	}
	return d.Clone(), nil
}

// DeviceExists reports whether a device ID is registered.
func (s *Store) DeviceExists(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.byDeviceID[id]
	return ok
}

// Devices returns all devices in registration order.
func (s *Store) Devices() []*Device {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Device, 0, len(s.doc.Devices))
	for _, d := range s.doc.Devices {
		out = append(out, d.Clone())
	}
	return out
}

// UnassignedDevices returns devices without an owner.
func (s *Store) UnassignedDevices() []*Device {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Device
	for _, d := range s.doc.Devices {
		if !d.UserAssigned {
			out = append(out, d.Clone())
		}
	}
	return out
}

// DevicesByModel returns all devices of one model.
func (s *Store) DevicesByModel(model string) []*Device {
	s.mu.RLock()
	defer s.mu.RUnlock()
	devices := s.byModel[model]
	out := make([]*Device, 0, len(devices))
	for _, d := range devices {
		out = append(out, d.Clone())
	}
	return out
}

// UnassignDevice clears a device's owner.
//
// Unassigning an unowned device is not an error: the second return value
// reports the already_unassigned condition so callers can surface it.
func (s *Store) UnassignDevice(deviceID string) (bool, error) {
	s.mu.Lock()

	d, ok := s.byDeviceID[deviceID]
	if !ok {
		s.mu.Unlock()
		return false, fmt.Errorf("%w: %q", ErrDeviceNotFound, deviceID)
	}
	if !d.UserAssigned {
		s.mu.Unlock()
		return true, nil
	}

	s.detachOwner(d)
	clone := d.Clone()
	perr := s.persist()
	s.mu.Unlock()

	s.logger.Info("device unassigned", "device_id", deviceID)
	s.emit(Event{Type: EventDeviceUnassigned, Payload: clone})
	return false, perr
}

// detachOwner removes the device↔user link from both sides.
// Must be called with the write lock held and UserAssigned true.
func (s *Store) detachOwner(d *Device) {
	if d.Owner != nil {
		if u, ok := s.byUserID[*d.Owner]; ok {
			for i, entry := range u.Devices {
				if entry.DeviceID == d.DeviceID {
					u.Devices = append(u.Devices[:i], u.Devices[i+1:]...)
					break
				}
			}
		}
	}
	d.Owner = nil
	d.UserAssigned = false
	d.UserDeviceName = nil
	d.AssignmentTime = nil
}

// RenameDevice sets the owner-facing label on a device and mirrors it in
// the owner's device list. Names are limited to 50 characters and must not
// be empty.
func (s *Store) RenameDevice(deviceID, name string) (*Device, error) {
	if name == "" {
		return nil, ErrInvalidName
	}
	if len(name) > maxDeviceNameLen {
		return nil, fmt.Errorf("%w: %d characters (max %d)", ErrNameTooLong, len(name), maxDeviceNameLen)
	}

	s.mu.Lock()

	d, ok := s.byDeviceID[deviceID]
	if !ok {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: %q", ErrDeviceNotFound, deviceID)
	}

	d.UserDeviceName = &name
	if d.Owner != nil {
		if u, ok := s.byUserID[*d.Owner]; ok {
			for i := range u.Devices {
				if u.Devices[i].DeviceID == deviceID {
					u.Devices[i].DeviceName = name
					break
				}
			}
		}
	}

	clone := d.Clone()
	perr := s.persist()
	s.mu.Unlock()

	s.emit(Event{Type: EventDeviceRenamed, Payload: clone})
	return clone, perr
}

// =============================================================================
// User operations
// =============================================================================

// CreateUser creates a user. User IDs are stored lowercase and compared
// case-insensitively; the optional chat ID must be unique fleet-wide.
func (s *Store) CreateUser(userID, userName, chatID string) (*User, error) {
	userID = strings.ToLower(strings.TrimSpace(userID))
	if userID == "" {
		return nil, ErrInvalidName
	}
	if userName == "" {
		userName = userID
	}

	var normChat string
	if chatID != "" {
		var err error
		normChat, err = normalizeChatID(chatID)
		if err != nil {
			return nil, err
		}
	}

	s.mu.Lock()

	if _, exists := s.byUserID[userID]; exists {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: %q", ErrDuplicateUser, userID)
	}
	if normChat != "" {
		if _, exists := s.byChatID[normChat]; exists {
			s.mu.Unlock()
			return nil, fmt.Errorf("%w: chat %s", ErrDuplicateChatID, normChat)
		}
	}

	u := &User{
		UserID:           userID,
		UserName:         userName,
		Devices:          []UserDevice{},
		RegistrationTime: time.Now().UTC(),
	}
	if normChat != "" {
		u.TelegramChatID = &normChat
	}

	s.doc.Users = append(s.doc.Users, u)
	s.indexUser(u)
	clone := u.Clone()
	perr := s.persist()
	s.mu.Unlock()

	s.logger.Info("user created", "user_id", userID)
	s.emit(Event{Type: EventUserCreated, Payload: clone})
	return clone, perr
}

// User returns a user by ID (case-insensitive).
func (s *Store) User(userID string) (*User, error) {
	userID = strings.ToLower(userID)
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.byUserID[userID]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUserNotFound, userID)
	}
	return u.Clone(), nil
}

// UserByChat returns the user linked to a Telegram chat.
func (s *Store) UserByChat(chatID string) (*User, error) {
	norm, err := normalizeChatID(chatID)
	if err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.byChatID[norm]
	if !ok {
		return nil, fmt.Errorf("%w: chat %s", ErrUserNotFound, norm)
	}
	return u.Clone(), nil
}

// Users returns all users in registration order.
func (s *Store) Users() []*User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*User, 0, len(s.doc.Users))
	for _, u := range s.doc.Users {
		out = append(out, u.Clone())
	}
	return out
}

// UserDevices returns the devices owned by a user.
func (s *Store) UserDevices(userID string) ([]*Device, error) {
	userID = strings.ToLower(userID)
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.byUserID[userID]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUserNotFound, userID)
	}
	out := make([]*Device, 0, len(u.Devices))
	for _, entry := range u.Devices {
		if d, ok := s.byDeviceID[entry.DeviceID]; ok {
			out = append(out, d.Clone())
		}
	}
	return out, nil
}

// DeleteUser removes a user, first unassigning every device they own.
//
// Returns the deleted user and the IDs of the devices that were
// unassigned by the cascade.
func (s *Store) DeleteUser(userID string) (*User, []string, error) {
	userID = strings.ToLower(userID)

	s.mu.Lock()

	u, ok := s.byUserID[userID]
	if !ok {
		s.mu.Unlock()
		return nil, nil, fmt.Errorf("%w: %q", ErrUserNotFound, userID)
	}

	// Cascade: clear ownership on every device before removing the user.
	unassigned := make([]string, 0, len(u.Devices))
	for _, entry := range u.Devices {
		if d, ok := s.byDeviceID[entry.DeviceID]; ok {
			d.Owner = nil
			d.UserAssigned = false
			d.UserDeviceName = nil
			d.AssignmentTime = nil
			unassigned = append(unassigned, d.DeviceID)
		}
	}
	u.Devices = nil

	delete(s.byUserID, userID)
	if u.TelegramChatID != nil {
		delete(s.byChatID, *u.TelegramChatID)
	}
	for i, candidate := range s.doc.Users {
		if candidate.UserID == userID {
			s.doc.Users = append(s.doc.Users[:i], s.doc.Users[i+1:]...)
			break
		}
	}

	clone := u.Clone()
	perr := s.persist()
	s.mu.Unlock()

	s.logger.Info("user deleted", "user_id", userID, "unassigned_devices", len(unassigned))
	s.emit(Event{Type: EventUserDeleted, Payload: clone})
	return clone, unassigned, perr
}

// AssignDevice gives a device to a user, updating both sides atomically.
//
// The optional name labels the device for its owner; empty defaults to the
// device ID. Assigning an owned device fails with ErrDeviceAlreadyAssigned.
func (s *Store) AssignDevice(userID, deviceID, name string) (*Device, error) {
	userID = strings.ToLower(userID)
	if name == "" {
		name = deviceID
	}
	if len(name) > maxDeviceNameLen {
		return nil, fmt.Errorf("%w: %d characters (max %d)", ErrNameTooLong, len(name), maxDeviceNameLen)
	}

	s.mu.Lock()

	u, ok := s.byUserID[userID]
	if !ok {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: %q", ErrUserNotFound, userID)
	}
	d, ok := s.byDeviceID[deviceID]
	if !ok {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: %q", ErrDeviceNotFound, deviceID)
	}
	if d.UserAssigned {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: %q", ErrDeviceAlreadyAssigned, deviceID)
	}

	now := time.Now().UTC()
	owner := userID
	d.Owner = &owner
	d.UserAssigned = true
	d.UserDeviceName = &name
	d.AssignmentTime = &now
	u.Devices = append(u.Devices, UserDevice{DeviceID: deviceID, DeviceName: name})

	clone := d.Clone()
	perr := s.persist()
	s.mu.Unlock()

	s.logger.Info("device assigned", "device_id", deviceID, "user_id", userID)
	s.emit(Event{Type: EventDeviceAssigned, Payload: clone})
	return clone, perr
}

// LinkTelegram binds a Telegram chat to a user. A chat may be linked to at
// most one user at a time; relinking the same chat to the same user is a
// no-op.
func (s *Store) LinkTelegram(userID, chatID string) (*User, error) {
	userID = strings.ToLower(userID)
	norm, err := normalizeChatID(chatID)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()

	u, ok := s.byUserID[userID]
	if !ok {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: %q", ErrUserNotFound, userID)
	}
	if existing, taken := s.byChatID[norm]; taken && existing.UserID != userID {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: chat %s", ErrDuplicateChatID, norm)
	}

	if u.TelegramChatID != nil {
		delete(s.byChatID, *u.TelegramChatID)
	}
	u.TelegramChatID = &norm
	s.byChatID[norm] = u

	clone := u.Clone()
	perr := s.persist()
	s.mu.Unlock()

	s.emit(Event{Type: EventTelegramLinked, Payload: clone})
	return clone, perr
}

// =============================================================================
// Service operations
// =============================================================================

// RegisterService upserts a service descriptor by serviceID.
//
// Re-registration updates the record in place and bumps lastUpdate; the
// second return value reports whether the record was newly created.
func (s *Store) RegisterService(in Service) (*Service, bool, error) {
	if in.ServiceID == "" {
		return nil, false, ErrInvalidName
	}
	now := time.Now().UTC()
	if in.Status == "" {
		in.Status = "active"
	}

	s.mu.Lock()

	existing, ok := s.byServiceID[in.ServiceID]
	if ok {
		existing.Name = in.Name
		existing.Description = in.Description
		existing.Endpoints = append([]string(nil), in.Endpoints...)
		existing.Type = in.Type
		existing.Version = in.Version
		existing.Status = in.Status
		existing.LastUpdate = now
		clone := existing.Clone()
		perr := s.persist()
		s.mu.Unlock()
		return clone, false, perr
	}

	svc := in.Clone()
	svc.RegistrationTime = now
	svc.LastUpdate = now
	s.doc.Services = append(s.doc.Services, svc)
	s.byServiceID[svc.ServiceID] = svc

	clone := svc.Clone()
	perr := s.persist()
	s.mu.Unlock()

	s.logger.Info("service registered", "service_id", svc.ServiceID)
	s.emit(Event{Type: EventServiceRegistered, Payload: clone})
	return clone, true, perr
}

// Service returns a service by ID.
func (s *Store) Service(id string) (*Service, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	svc, ok := s.byServiceID[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrServiceNotFound, id)
	}
	return svc.Clone(), nil
}

// Services returns all services in registration order.
func (s *Store) Services() []*Service {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Service, 0, len(s.doc.Services))
	for _, svc := range s.doc.Services {
		out = append(out, svc.Clone())
	}
	return out
}

// =============================================================================
// Model and aggregation reads
// =============================================================================

// Models returns the model map.
func (s *Store) Models() map[string]Model {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]Model, len(s.doc.DeviceModels))
	for name, m := range s.doc.DeviceModels {
		out[name] = m
	}
	return out
}

// ModelByName returns one model descriptor.
func (s *Store) ModelByName(name string) (Model, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.doc.DeviceModels[name]
	if !ok {
		return Model{}, fmt.Errorf("%w: %q", ErrModelNotFound, name)
	}
	return m, nil
}

// Topics returns the derived MQTT topics of every device.
func (s *Store) Topics() map[string][]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string][]string, len(s.doc.Devices))
	for _, d := range s.doc.Devices {
		out[d.DeviceID] = append([]string(nil), d.MQTTTopics...)
	}
	return out
}

// TopicsForDevice returns one device's derived MQTT topics.
func (s *Store) TopicsForDevice(deviceID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.byDeviceID[deviceID]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrDeviceNotFound, deviceID)
	}
	return append([]string(nil), d.MQTTTopics...), nil
}

// Stats summarises the registry for the /info endpoint.
type Stats struct {
	SchemaVersion int       `json:"schemaVersion"`
	ProjectOwner  string    `json:"projectOwner"`
	ProjectName   string    `json:"projectName"`
	LastUpdate    time.Time `json:"lastUpdate"`
	Broker        Broker    `json:"broker"`
	DeviceCount   int       `json:"devices_count"`
	AssignedCount int       `json:"assigned_devices_count"`
	UserCount     int       `json:"users_count"`
	ServiceCount  int       `json:"services_count"`
	ModelNames    []string  `json:"models"`
}

// Aggregate computes registry statistics.
func (s *Store) Aggregate() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	assigned := 0
	for _, d := range s.doc.Devices {
		if d.UserAssigned {
			assigned++
		}
	}
	models := make([]string, 0, len(s.doc.DeviceModels))
	for name := range s.doc.DeviceModels {
		models = append(models, name)
	}

	return Stats{
		SchemaVersion: s.doc.SchemaVersion,
		ProjectOwner:  s.doc.ProjectOwner,
		ProjectName:   s.doc.ProjectName,
		LastUpdate:    s.doc.LastUpdate,
		Broker:        s.doc.Broker,
		DeviceCount:   len(s.doc.Devices),
		AssignedCount: assigned,
		UserCount:     len(s.doc.Users),
		ServiceCount:  len(s.doc.Services),
		ModelNames:    models,
	}
}
