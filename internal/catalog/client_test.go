package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/group17/smartchill/internal/infrastructure/config"
	"github.com/group17/smartchill/internal/infrastructure/logging"
	"github.com/group17/smartchill/internal/registry"
)

func newClientFor(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(config.CatalogConfig{URL: srv.URL}, 2*time.Second, logging.Default("catalog-test"))
}

func TestDeviceExists(t *testing.T) {
	c := newClientFor(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/devices/SmartChill_112233/exists" {
			t.Errorf("path = %s", r.URL.Path)
		}
		json.NewEncoder(w).Encode(map[string]any{"device_id": "SmartChill_112233", "exists": true, "timestamp": time.Now()})
	}))

	exists, err := c.DeviceExists(context.Background(), "SmartChill_112233")
	if err != nil {
		t.Fatalf("DeviceExists: %v", err)
	}
	if !exists {
		t.Error("exists = false, want true")
	}
}

func TestDeviceExistsTransportFailureIsError(t *testing.T) {
	c := New(config.CatalogConfig{URL: "http://127.0.0.1:1"}, 500*time.Millisecond, logging.Default("catalog-test"))

	_, err := c.DeviceExists(context.Background(), "SmartChill_112233")
	if !errors.Is(err, ErrUnavailable) {
		t.Errorf("error = %v, want ErrUnavailable", err)
	}
}

func TestStatusCodeMapping(t *testing.T) {
	tests := []struct {
		name   string
		status int
		want   error
	}{
		{name: "not found", status: http.StatusNotFound, want: ErrNotFound},
		{name: "conflict", status: http.StatusConflict, want: ErrConflict},
		{name: "bad request", status: http.StatusBadRequest, want: ErrBadRequest},
		{name: "server error", status: http.StatusInternalServerError, want: ErrUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newClientFor(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				json.NewEncoder(w).Encode(map[string]any{"message": "boom"})
			}))

			_, err := c.GetDevice(context.Background(), "SmartChill_112233")
			if !errors.Is(err, tt.want) {
				t.Errorf("error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestGetUserDecodesDocument(t *testing.T) {
	c := newClientFor(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		json.NewEncoder(w).Encode(registry.User{
			UserID:   "alice",
			UserName: "Alice",
			Devices:  []registry.UserDevice{{DeviceID: "SmartChill_112233", DeviceName: "Kitchen"}},
		})
	}))

	u, err := c.GetUser(context.Background(), "alice")
	if err != nil {
		t.Fatalf("GetUser: %v", err)
	}
	if u.UserID != "alice" || len(u.Devices) != 1 {
		t.Errorf("user = %+v", u)
	}
}

func TestRegisterWithBackoffRetriesUntilSuccess(t *testing.T) {
	// shrink the schedule so the test runs fast
	orig := registerBackoff
	registerBackoff = []time.Duration{time.Millisecond, time.Millisecond}
	defer func() { registerBackoff = orig }()

	attempts := 0
	c := newClientFor(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		attempts++
		if attempts < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(registry.Service{ServiceID: "doortimer"})
	}))

	err := c.RegisterWithBackoff(context.Background(), registry.Service{ServiceID: "doortimer"})
	if err != nil {
		t.Fatalf("RegisterWithBackoff: %v", err)
	}
	if attempts != 3 {
		t.Errorf("attempts = %d, want 3", attempts)
	}
}

func TestRegisterWithBackoffGivesUpAfterSchedule(t *testing.T) {
	orig := registerBackoff
	registerBackoff = []time.Duration{time.Millisecond}
	defer func() { registerBackoff = orig }()

	attempts := 0
	c := newClientFor(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		attempts++
		w.WriteHeader(http.StatusInternalServerError)
	}))

	err := c.RegisterWithBackoff(context.Background(), registry.Service{ServiceID: "doortimer"})
	if err == nil {
		t.Fatal("expected error after exhausted schedule")
	}
	// initial attempt plus one retry
	if attempts != 2 {
		t.Errorf("attempts = %d, want 2", attempts)
	}
}

func TestKeepRegisteredRetriesWithinTick(t *testing.T) {
	orig := registerBackoff
	registerBackoff = []time.Duration{time.Millisecond}
	defer func() { registerBackoff = orig }()

	var mu sync.Mutex
	var stamps []time.Time
	c := newClientFor(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		mu.Lock()
		stamps = append(stamps, time.Now())
		n := len(stamps)
		mu.Unlock()
		// initial batch fails entirely; the first tick's batch fails
		// once, then succeeds on its retry
		if n < 4 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(registry.Service{ServiceID: "doortimer"})
	}))

	const interval = 250 * time.Millisecond
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		defer close(done)
		c.KeepRegistered(ctx, registry.Service{ServiceID: "doortimer"}, interval)
	}()

	deadline := time.After(2 * time.Second)
	for {
		mu.Lock()
		n := len(stamps)
		mu.Unlock()
		if n >= 4 {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("attempts = %d, want 4", n)
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()
	<-done

	// attempts 3 and 4 belong to the same tick's batch, so the gap
	// between them is the backoff delay, not the registration interval
	mu.Lock()
	gap := stamps[3].Sub(stamps[2])
	mu.Unlock()
	if gap > interval/2 {
		t.Errorf("retry gap = %v, want a backoff retry within the tick", gap)
	}
}

func TestRegisterWithBackoffHonoursContext(t *testing.T) {
	orig := registerBackoff
	registerBackoff = []time.Duration{time.Minute}
	defer func() { registerBackoff = orig }()

	c := newClientFor(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := c.RegisterWithBackoff(ctx, registry.Service{ServiceID: "doortimer"})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("error = %v, want context.DeadlineExceeded", err)
	}
}
