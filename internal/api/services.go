package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/group17/smartchill/internal/registry"
)

// handleRegisterService upserts a service descriptor.
//
// Services re-register periodically as a heartbeat; the first call returns
// 201 and later calls 200 with lastUpdate refreshed.
func (s *Server) handleRegisterService(w http.ResponseWriter, r *http.Request) {
	var req registry.Service
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body: "+err.Error())
		return
	}
	if req.ServiceID == "" {
		writeBadRequest(w, "serviceID is required")
		return
	}

	svc, created, err := s.store.RegisterService(req)
	if err != nil {
		writeStoreError(w, err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, status, svc)
}

// handleListServices returns every registered service.
func (s *Server) handleListServices(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.store.Services())
}

// handleGetService returns one service by ID.
func (s *Server) handleGetService(w http.ResponseWriter, r *http.Request) {
	svc, err := s.store.Service(chi.URLParam(r, "id"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, svc)
}

// handleListModels returns the supported device model catalogue.
func (s *Server) handleListModels(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.store.Models())
}

// handleGetModel returns one model descriptor.
func (s *Server) handleGetModel(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "model")
	model, err := s.store.ModelByName(name)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"model":       name,
		"sensors":     model.Sensors,
		"mqtt_config": model.MQTTConfig,
	})
}
