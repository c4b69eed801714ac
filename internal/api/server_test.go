package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/group17/smartchill/internal/infrastructure/config"
	"github.com/group17/smartchill/internal/infrastructure/logging"
	"github.com/group17/smartchill/internal/registry"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()

	doc := registry.SeedDocument()
	doc.DeviceModels["FridgeXL"] = registry.Model{Sensors: []string{"temperature", "humidity", "gas"}}
	doc.DeviceModels["FridgeMini"] = registry.Model{Sensors: []string{"temperature"}}

	srv, err := New(Deps{
		Config:  config.APIConfig{Host: "127.0.0.1", Port: 0},
		Logger:  logging.Default("registry-test"),
		Store:   registry.NewStore(doc, nil),
		Version: "test",
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return srv
}

func doRequest(t *testing.T, handler http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decoding response %q: %v", rec.Body.String(), err)
	}
	return v
}

func TestNewRequiresDependencies(t *testing.T) {
	if _, err := New(Deps{Store: registry.NewStore(registry.SeedDocument(), nil)}); err == nil {
		t.Error("expected error when logger missing")
	}
	if _, err := New(Deps{Logger: logging.Default("test")}); err == nil {
		t.Error("expected error when store missing")
	}
}

func TestHealthEndpoint(t *testing.T) {
	router := newTestServer(t).buildRouter()

	rec := doRequest(t, router, http.MethodGet, "/health", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	body := decodeBody[map[string]any](t, rec)
	if body["status"] != "ok" {
		t.Errorf("status field = %v", body["status"])
	}
	if body["service"] != "registry" {
		t.Errorf("service field = %v", body["service"])
	}
	if _, ok := body["timestamp"].(string); !ok {
		t.Errorf("timestamp field = %v", body["timestamp"])
	}
	if body["devices_count"] != float64(0) {
		t.Errorf("devices_count = %v, want 0", body["devices_count"])
	}
	if body["services_count"] != float64(0) {
		t.Errorf("services_count = %v, want 0", body["services_count"])
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "application/json") {
		t.Errorf("Content-Type = %q", ct)
	}
}

func TestRegisterDeviceLifecycle(t *testing.T) {
	router := newTestServer(t).buildRouter()

	// first registration creates
	rec := doRequest(t, router, http.MethodPost, "/devices/register", map[string]any{
		"mac_address": "aa:bb:cc:11:22:33",
		"model":       "FridgeXL",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("first register status = %d, want 201: %s", rec.Code, rec.Body.String())
	}
	created := decodeBody[map[string]any](t, rec)
	if created["deviceID"] != "SmartChill_112233" {
		t.Errorf("deviceID = %v", created["deviceID"])
	}

	// re-registration syncs
	rec = doRequest(t, router, http.MethodPost, "/devices/register", map[string]any{
		"mac_address": "AA-BB-CC-11-22-33",
		"model":       "FridgeXL",
	})
	if rec.Code != http.StatusOK {
		t.Errorf("re-register status = %d, want 200", rec.Code)
	}

	// unsupported model rejected
	rec = doRequest(t, router, http.MethodPost, "/devices/register", map[string]any{
		"mac_address": "aa:bb:cc:44:55:66",
		"model":       "Toaster",
	})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad model status = %d, want 400", rec.Code)
	}

	// lookup by ID and by MAC
	rec = doRequest(t, router, http.MethodGet, "/devices/SmartChill_112233", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("get by id status = %d", rec.Code)
	}
	rec = doRequest(t, router, http.MethodGet, "/devices/aa:bb:cc:11:22:33", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("get by mac status = %d", rec.Code)
	}
	rec = doRequest(t, router, http.MethodGet, "/devices/SmartChill_999999", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("missing device status = %d, want 404", rec.Code)
	}

	// exists probe
	rec = doRequest(t, router, http.MethodGet, "/devices/SmartChill_112233/exists", nil)
	exists := decodeBody[map[string]any](t, rec)
	if exists["exists"] != true {
		t.Errorf("exists = %v, want true", exists["exists"])
	}
	if exists["device_id"] != "SmartChill_112233" {
		t.Errorf("device_id = %v", exists["device_id"])
	}
	if _, ok := exists["timestamp"].(string); !ok {
		t.Errorf("timestamp field = %v", exists["timestamp"])
	}
	rec = doRequest(t, router, http.MethodGet, "/devices/SmartChill_999999/exists", nil)
	exists = decodeBody[map[string]any](t, rec)
	if exists["exists"] != false {
		t.Errorf("exists = %v, want false", exists["exists"])
	}
}

func TestUserDeviceAssignmentFlow(t *testing.T) {
	router := newTestServer(t).buildRouter()

	doRequest(t, router, http.MethodPost, "/devices/register", map[string]any{
		"mac_address": "aa:bb:cc:11:22:33",
		"model":       "FridgeXL",
	})

	// create user
	rec := doRequest(t, router, http.MethodPost, "/users", map[string]any{
		"userID":   "Alice",
		"userName": "Alice Smith",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create user status = %d: %s", rec.Code, rec.Body.String())
	}

	// duplicate user conflicts
	rec = doRequest(t, router, http.MethodPost, "/users", map[string]any{"userID": "alice"})
	if rec.Code != http.StatusConflict {
		t.Errorf("duplicate user status = %d, want 409", rec.Code)
	}

	// assign
	rec = doRequest(t, router, http.MethodPost, "/users/alice/assign-device", map[string]any{
		"device_id":   "SmartChill_112233",
		"device_name": "Kitchen fridge",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("assign status = %d: %s", rec.Code, rec.Body.String())
	}

	// double-assign conflicts
	rec = doRequest(t, router, http.MethodPost, "/users/alice/assign-device", map[string]any{
		"device_id": "SmartChill_112233",
	})
	if rec.Code != http.StatusConflict {
		t.Errorf("double assign status = %d, want 409", rec.Code)
	}

	// rename over the 50-character limit is rejected
	rec = doRequest(t, router, http.MethodPost, "/devices/SmartChill_112233/rename", map[string]any{
		"user_device_name": strings.Repeat("x", 51),
	})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("long rename status = %d, want 400", rec.Code)
	}

	rec = doRequest(t, router, http.MethodPost, "/devices/SmartChill_112233/rename", map[string]any{
		"user_device_name": "Garage fridge",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("rename status = %d", rec.Code)
	}

	// user's device list mirrors the rename
	rec = doRequest(t, router, http.MethodGet, "/users/alice/devices", nil)
	devices := decodeBody[[]map[string]any](t, rec)
	if len(devices) != 1 || devices[0]["user_device_name"] != "Garage fridge" {
		t.Errorf("user devices = %v", devices)
	}

	// unassign, then once more for idempotency
	rec = doRequest(t, router, http.MethodPost, "/devices/SmartChill_112233/unassign", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("unassign status = %d", rec.Code)
	}
	result := decodeBody[map[string]any](t, rec)
	if result["already_unassigned"] != false {
		t.Errorf("already_unassigned = %v, want false", result["already_unassigned"])
	}
	if _, ok := result["message"].(string); !ok {
		t.Errorf("message field = %v", result["message"])
	}
	rec = doRequest(t, router, http.MethodPost, "/devices/SmartChill_112233/unassign", nil)
	result = decodeBody[map[string]any](t, rec)
	if result["already_unassigned"] != true {
		t.Errorf("already_unassigned = %v, want true", result["already_unassigned"])
	}

	// unassigned listing now includes the device
	rec = doRequest(t, router, http.MethodGet, "/devices/unassigned", nil)
	unassigned := decodeBody[[]map[string]any](t, rec)
	if len(unassigned) != 1 {
		t.Errorf("unassigned = %v, want one device", unassigned)
	}
}

func TestRequestBodySynonyms(t *testing.T) {
	router := newTestServer(t).buildRouter()

	doRequest(t, router, http.MethodPost, "/devices/register", map[string]any{
		"mac_address": "aa:bb:cc:11:22:33",
		"model":       "FridgeXL",
	})
	doRequest(t, router, http.MethodPost, "/users", map[string]any{"userID": "alice"})

	// camel-case keys remain accepted next to the documented snake_case
	rec := doRequest(t, router, http.MethodPost, "/users/alice/assign-device", map[string]any{
		"deviceID":   "SmartChill_112233",
		"deviceName": "Kitchen fridge",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("camel-case assign status = %d: %s", rec.Code, rec.Body.String())
	}

	rec = doRequest(t, router, http.MethodPost, "/devices/SmartChill_112233/rename", map[string]any{
		"name": "Garage fridge",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("name-key rename status = %d: %s", rec.Code, rec.Body.String())
	}
	device := decodeBody[map[string]any](t, rec)
	if device["user_device_name"] != "Garage fridge" {
		t.Errorf("user_device_name = %v", device["user_device_name"])
	}
}

func TestDeleteUserCascade(t *testing.T) {
	router := newTestServer(t).buildRouter()

	doRequest(t, router, http.MethodPost, "/devices/register", map[string]any{
		"mac_address": "aa:bb:cc:11:22:33",
		"model":       "FridgeXL",
	})
	doRequest(t, router, http.MethodPost, "/users", map[string]any{"userID": "alice"})
	doRequest(t, router, http.MethodPost, "/users/alice/assign-device", map[string]any{
		"deviceID": "SmartChill_112233",
	})

	rec := doRequest(t, router, http.MethodDelete, "/users/alice", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("delete status = %d", rec.Code)
	}
	result := decodeBody[map[string]any](t, rec)
	unassigned, _ := result["unassigned_devices"].([]any)
	if len(unassigned) != 1 {
		t.Errorf("unassigned_devices = %v, want one entry", result["unassigned_devices"])
	}
	deleted, _ := result["deleted_user"].(map[string]any)
	if deleted["userID"] != "alice" {
		t.Errorf("deleted_user = %v, want the full user record", result["deleted_user"])
	}

	rec = doRequest(t, router, http.MethodGet, "/users/alice", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("deleted user status = %d, want 404", rec.Code)
	}
}

func TestTelegramLinking(t *testing.T) {
	router := newTestServer(t).buildRouter()

	doRequest(t, router, http.MethodPost, "/users", map[string]any{"userID": "alice"})

	rec := doRequest(t, router, http.MethodPost, "/users/alice/link_telegram", map[string]any{
		"chat_id": "12345",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("link status = %d: %s", rec.Code, rec.Body.String())
	}

	rec = doRequest(t, router, http.MethodGet, "/users/by-chat/12345", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("by-chat status = %d", rec.Code)
	}
	user := decodeBody[map[string]any](t, rec)
	if user["userID"] != "alice" {
		t.Errorf("userID = %v", user["userID"])
	}

	// non-numeric chat rejected
	rec = doRequest(t, router, http.MethodPost, "/users/alice/link_telegram", map[string]any{
		"chat_id": "not-a-number",
	})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad chat status = %d, want 400", rec.Code)
	}
}

func TestServiceRegistration(t *testing.T) {
	router := newTestServer(t).buildRouter()

	rec := doRequest(t, router, http.MethodPost, "/services/register", map[string]any{
		"serviceID": "doortimer",
		"name":      "Door Timer",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("first register status = %d", rec.Code)
	}

	rec = doRequest(t, router, http.MethodPost, "/services/register", map[string]any{
		"serviceID": "doortimer",
		"name":      "Door Timer",
	})
	if rec.Code != http.StatusOK {
		t.Errorf("re-register status = %d, want 200", rec.Code)
	}

	rec = doRequest(t, router, http.MethodGet, "/services/doortimer", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("get service status = %d", rec.Code)
	}
	rec = doRequest(t, router, http.MethodGet, "/services/unknown", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("missing service status = %d, want 404", rec.Code)
	}
}

func TestModelAndTopicDiscovery(t *testing.T) {
	router := newTestServer(t).buildRouter()

	doRequest(t, router, http.MethodPost, "/devices/register", map[string]any{
		"mac_address": "aa:bb:cc:11:22:33",
		"model":       "FridgeXL",
	})

	rec := doRequest(t, router, http.MethodGet, "/models", nil)
	models := decodeBody[map[string]any](t, rec)
	if _, ok := models["FridgeXL"]; !ok {
		t.Errorf("models = %v, want FridgeXL", models)
	}

	rec = doRequest(t, router, http.MethodGet, "/models/Toaster", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("missing model status = %d, want 404", rec.Code)
	}

	rec = doRequest(t, router, http.MethodGet, "/mqtt/topics/SmartChill_112233", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("topics status = %d", rec.Code)
	}
	topics := decodeBody[map[string]any](t, rec)
	list, _ := topics["topics"].([]any)
	// three sensors plus the door event stream
	if len(list) != 4 {
		t.Errorf("topics = %v, want 4", list)
	}
}

func TestInfoAggregates(t *testing.T) {
	router := newTestServer(t).buildRouter()

	doRequest(t, router, http.MethodPost, "/devices/register", map[string]any{
		"mac_address": "aa:bb:cc:11:22:33",
		"model":       "FridgeXL",
	})

	rec := doRequest(t, router, http.MethodGet, "/info", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("info status = %d", rec.Code)
	}
	info := decodeBody[map[string]any](t, rec)
	if info["devices_count"] != float64(1) {
		t.Errorf("devices_count = %v, want 1", info["devices_count"])
	}
	if info["projectName"] != "SmartChill" {
		t.Errorf("projectName = %v", info["projectName"])
	}
}
