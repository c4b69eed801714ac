package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/group17/smartchill/internal/registry"
)

// registerDeviceRequest is the body for POST /devices/register.
type registerDeviceRequest struct {
	MACAddress      string   `json:"mac_address"`
	Model           string   `json:"model"`
	Sensors         []string `json:"sensors"`
	FirmwareVersion string   `json:"firmware_version"`
}

// handleRegisterDevice creates a device or refreshes an existing one.
//
// Registration is idempotent by MAC address: the first call returns 201
// with the full document, later calls return 200 with last_sync refreshed
// and the original structure untouched.
func (s *Server) handleRegisterDevice(w http.ResponseWriter, r *http.Request) {
	var req registerDeviceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body: "+err.Error())
		return
	}
	if req.MACAddress == "" {
		writeBadRequest(w, "mac_address is required")
		return
	}
	if req.Model == "" {
		writeBadRequest(w, "model is required")
		return
	}

	device, created, err := s.store.RegisterDevice(req.MACAddress, req.Model, req.Sensors, req.FirmwareVersion)
	if err != nil {
		writeStoreError(w, err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, status, device)
}

// handleListDevices returns every registered device.
func (s *Server) handleListDevices(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.store.Devices())
}

// handleGetDevice returns one device by ID, or by MAC address when the
// path segment looks like one (contains separators or 12 hex characters).
func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if device, err := s.store.Device(id); err == nil {
		writeJSON(w, http.StatusOK, device)
		return
	}

	// Fall back to MAC lookup so clients holding only the hardware
	// address can resolve the document.
	device, err := s.store.DeviceByMAC(id)
	if err != nil {
		writeNotFound(w, "device not found: "+id)
		return
	}
	writeJSON(w, http.StatusOK, device)
}

// handleDeviceExists reports whether a device ID is registered without
// transferring the full document.
func (s *Server) handleDeviceExists(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	writeJSON(w, http.StatusOK, map[string]any{
		"device_id": id,
		"exists":    s.store.DeviceExists(id),
		"timestamp": time.Now().UTC(),
	})
}

// handleUnassignedDevices returns devices without an owner.
func (s *Server) handleUnassignedDevices(w http.ResponseWriter, _ *http.Request) {
	devices := s.store.UnassignedDevices()
	if devices == nil {
		// empty list, never null
		devices = []*registry.Device{}
	}
	writeJSON(w, http.StatusOK, devices)
}

// handleDevicesByModel returns every device of one model.
func (s *Server) handleDevicesByModel(w http.ResponseWriter, r *http.Request) {
	model := chi.URLParam(r, "model")
	writeJSON(w, http.StatusOK, s.store.DevicesByModel(model))
}

// handleUnassignDevice clears a device's owner.
//
// Unassigning a device that has no owner is reported, not failed, so
// retried requests stay idempotent.
func (s *Server) handleUnassignDevice(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	already, err := s.store.UnassignDevice(id)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	message := "device unassigned"
	if already {
		message = "device was not assigned"
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"device_id":          id,
		"success":            true,
		"message":            message,
		"already_unassigned": already,
	})
}

// renameDeviceRequest is the body for POST /devices/{id}/rename.
// "name" is accepted as a synonym for "user_device_name".
type renameDeviceRequest struct {
	UserDeviceName string `json:"user_device_name"`
	Name           string `json:"name"`
}

func (r renameDeviceRequest) value() string {
	if r.UserDeviceName != "" {
		return r.UserDeviceName
	}
	return r.Name
}

// handleRenameDevice sets the owner-facing label on a device.
func (s *Server) handleRenameDevice(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req renameDeviceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body: "+err.Error())
		return
	}

	device, err := s.store.RenameDevice(id, req.value())
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, device)
}

// handleAllTopics returns the derived MQTT topics of every device.
func (s *Server) handleAllTopics(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.store.Topics())
}

// handleDeviceTopics returns one device's derived MQTT topics.
func (s *Server) handleDeviceTopics(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "device_id")

	topics, err := s.store.TopicsForDevice(id)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"deviceID": id,
		"topics":   topics,
	})
}
