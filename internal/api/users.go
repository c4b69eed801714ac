package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// createUserRequest is the body for POST /users.
type createUserRequest struct {
	UserID         string `json:"userID"`
	UserName       string `json:"userName"`
	TelegramChatID string `json:"telegram_chat_id"`
}

// handleCreateUser creates a user account.
func (s *Server) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body: "+err.Error())
		return
	}
	if req.UserID == "" {
		writeBadRequest(w, "userID is required")
		return
	}

	user, err := s.store.CreateUser(req.UserID, req.UserName, req.TelegramChatID)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, user)
}

// handleListUsers returns every registered user.
func (s *Server) handleListUsers(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.store.Users())
}

// handleGetUser returns one user by ID.
func (s *Server) handleGetUser(w http.ResponseWriter, r *http.Request) {
	user, err := s.store.User(chi.URLParam(r, "id"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// handleDeleteUser removes a user, unassigning every device they own.
func (s *Server) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	user, unassigned, err := s.store.DeleteUser(chi.URLParam(r, "id"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if unassigned == nil {
		unassigned = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"deleted_user":       user,
		"unassigned_devices": unassigned,
	})
}

// handleUserDevices returns the full device documents a user owns.
func (s *Server) handleUserDevices(w http.ResponseWriter, r *http.Request) {
	devices, err := s.store.UserDevices(chi.URLParam(r, "id"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, devices)
}

// handleUserByChat resolves the user linked to a Telegram chat.
func (s *Server) handleUserByChat(w http.ResponseWriter, r *http.Request) {
	user, err := s.store.UserByChat(chi.URLParam(r, "chat_id"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// assignDeviceRequest is the body for POST /users/{id}/assign-device.
// The camel-case keys are accepted as synonyms for the snake_case ones.
type assignDeviceRequest struct {
	DeviceID        string `json:"device_id"`
	DeviceName      string `json:"device_name"`
	DeviceIDAlias   string `json:"deviceID"`
	DeviceNameAlias string `json:"deviceName"`
}

func (r assignDeviceRequest) deviceID() string {
	if r.DeviceID != "" {
		return r.DeviceID
	}
	return r.DeviceIDAlias
}

func (r assignDeviceRequest) deviceName() string {
	if r.DeviceName != "" {
		return r.DeviceName
	}
	return r.DeviceNameAlias
}

// handleAssignDevice gives a device to the user, updating both sides of
// the ownership link in one step.
func (s *Server) handleAssignDevice(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "id")

	var req assignDeviceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body: "+err.Error())
		return
	}
	if req.deviceID() == "" {
		writeBadRequest(w, "device_id is required")
		return
	}

	device, err := s.store.AssignDevice(userID, req.deviceID(), req.deviceName())
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, device)
}

// linkTelegramRequest is the body for POST /users/{id}/link_telegram.
type linkTelegramRequest struct {
	ChatID string `json:"chat_id"`
}

// handleLinkTelegram binds a Telegram chat to the user.
func (s *Server) handleLinkTelegram(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "id")

	var req linkTelegramRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body: "+err.Error())
		return
	}
	if req.ChatID == "" {
		writeBadRequest(w, "chat_id is required")
		return
	}

	user, err := s.store.LinkTelegram(userID, req.ChatID)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}
