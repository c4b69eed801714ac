package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	r.Get("/health", s.handleHealth)
	r.Get("/info", s.handleInfo)

	// Device endpoints
	r.Route("/devices", func(r chi.Router) {
		r.Get("/", s.handleListDevices)
		r.Post("/register", s.handleRegisterDevice)
		r.Get("/unassigned", s.handleUnassignedDevices)
		r.Get("/by-model/{model}", s.handleDevicesByModel)

		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", s.handleGetDevice)
			r.Get("/exists", s.handleDeviceExists)
			r.Post("/unassign", s.handleUnassignDevice)
			r.Post("/rename", s.handleRenameDevice)
		})
	})

	// User endpoints
	r.Route("/users", func(r chi.Router) {
		r.Get("/", s.handleListUsers)
		r.Post("/", s.handleCreateUser)
		r.Get("/by-chat/{chat_id}", s.handleUserByChat)

		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", s.handleGetUser)
			r.Delete("/", s.handleDeleteUser)
			r.Get("/devices", s.handleUserDevices)
			r.Post("/assign-device", s.handleAssignDevice)
			r.Post("/link_telegram", s.handleLinkTelegram)
		})
	})

	// Service endpoints
	r.Route("/services", func(r chi.Router) {
		r.Get("/", s.handleListServices)
		r.Post("/register", s.handleRegisterService)
		r.Get("/{id}", s.handleGetService)
	})

	// Model catalogue
	r.Route("/models", func(r chi.Router) {
		r.Get("/", s.handleListModels)
		r.Get("/{model}", s.handleGetModel)
	})

	// Derived MQTT topic discovery
	r.Route("/mqtt/topics", func(r chi.Router) {
		r.Get("/", s.handleAllTopics)
		r.Get("/{device_id}", s.handleDeviceTopics)
	})

	// Registry event stream
	r.Get("/ws", s.handleWebSocket)

	return r
}

// handleHealth returns the server health status with registry counts.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	stats := s.store.Aggregate()
	writeJSON(w, http.StatusOK, map[string]any{
		"status":         "ok",
		"service":        "registry",
		"version":        s.version,
		"timestamp":      time.Now().UTC(),
		"devices_count":  stats.DeviceCount,
		"services_count": stats.ServiceCount,
	})
}

// handleInfo returns registry statistics and project identity.
func (s *Server) handleInfo(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.store.Aggregate())
}
