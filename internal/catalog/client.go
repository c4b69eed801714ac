// Package catalog provides the HTTP client used by control services and
// the notifier to talk to the registry API.
//
// Every call carries a context and uses a short per-request timeout so a
// slow or absent registry never stalls the MQTT pipeline of the caller.
package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/group17/smartchill/internal/infrastructure/config"
	"github.com/group17/smartchill/internal/infrastructure/logging"
	"github.com/group17/smartchill/internal/registry"
)

// Sentinel errors for callers that need to branch on outcome.
var (
	// ErrNotFound is returned when the registry reports 404.
	ErrNotFound = errors.New("catalog: not found")

	// ErrConflict is returned when the registry reports 409.
	ErrConflict = errors.New("catalog: conflict")

	// ErrBadRequest is returned when the registry rejects the input.
	ErrBadRequest = errors.New("catalog: bad request")

	// ErrUnavailable is returned when the registry cannot be reached.
	ErrUnavailable = errors.New("catalog: registry unreachable")
)

// Client talks to the registry HTTP API.
type Client struct {
	baseURL string
	http    *http.Client
	logger  *logging.Logger
}

// New creates a catalog client from configuration.
func New(cfg config.CatalogConfig, timeout time.Duration, logger *logging.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(cfg.URL, "/"),
		http:    &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

// apiError mirrors the registry's structured error body.
type apiError struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// do executes a request and decodes the JSON response into out (when
// non-nil). Registry error bodies are mapped to the package sentinels.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var apiErr apiError
		//nolint:errcheck // Error body is advisory; the status code decides
		json.NewDecoder(resp.Body).Decode(&apiErr)
		return statusError(resp.StatusCode, apiErr.Message)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decoding response: %w", err)
		}
	}
	return nil
}

// statusError maps an HTTP status code onto a package sentinel.
func statusError(status int, message string) error {
	var base error
	switch status {
	case http.StatusNotFound:
		base = ErrNotFound
	case http.StatusConflict:
		base = ErrConflict
	case http.StatusBadRequest:
		base = ErrBadRequest
	default:
		base = ErrUnavailable
	}
	if message == "" {
		return fmt.Errorf("%w (status %d)", base, status)
	}
	return fmt.Errorf("%w: %s", base, message)
}

// =============================================================================
// Devices
// =============================================================================

// DeviceExists probes the registry for a device ID.
//
// A transport failure is an error, not a negative: callers that gate
// auto-registration on this answer must not treat "registry down" as
// "unknown device".
func (c *Client) DeviceExists(ctx context.Context, deviceID string) (bool, error) {
	var result struct {
		Exists bool `json:"exists"`
	}
	if err := c.do(ctx, http.MethodGet, "/devices/"+url.PathEscape(deviceID)+"/exists", nil, &result); err != nil {
		return false, err
	}
	return result.Exists, nil
}

// GetDevice fetches one device document by ID or MAC.
func (c *Client) GetDevice(ctx context.Context, deviceID string) (*registry.Device, error) {
	var d registry.Device
	if err := c.do(ctx, http.MethodGet, "/devices/"+url.PathEscape(deviceID), nil, &d); err != nil {
		return nil, err
	}
	return &d, nil
}

// Devices fetches every registered device.
func (c *Client) Devices(ctx context.Context) ([]*registry.Device, error) {
	var out []*registry.Device
	if err := c.do(ctx, http.MethodGet, "/devices/", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// UnassignedDevices fetches devices without an owner.
func (c *Client) UnassignedDevices(ctx context.Context) ([]*registry.Device, error) {
	var out []*registry.Device
	if err := c.do(ctx, http.MethodGet, "/devices/unassigned", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// RegisterDevice registers a device by MAC address on behalf of the
// hardware (used by provisioning tools).
func (c *Client) RegisterDevice(ctx context.Context, mac, model string, sensors []string, firmware string) (*registry.Device, error) {
	req := map[string]any{
		"mac_address":      mac,
		"model":            model,
		"sensors":          sensors,
		"firmware_version": firmware,
	}
	var d registry.Device
	if err := c.do(ctx, http.MethodPost, "/devices/register", req, &d); err != nil {
		return nil, err
	}
	return &d, nil
}

// UnassignDevice clears a device's owner.
func (c *Client) UnassignDevice(ctx context.Context, deviceID string) error {
	return c.do(ctx, http.MethodPost, "/devices/"+url.PathEscape(deviceID)+"/unassign", nil, nil)
}

// RenameDevice sets the owner-facing label on a device.
func (c *Client) RenameDevice(ctx context.Context, deviceID, name string) (*registry.Device, error) {
	var d registry.Device
	if err := c.do(ctx, http.MethodPost, "/devices/"+url.PathEscape(deviceID)+"/rename", map[string]string{"user_device_name": name}, &d); err != nil {
		return nil, err
	}
	return &d, nil
}

// =============================================================================
// Users
// =============================================================================

// GetUser fetches one user by ID.
func (c *Client) GetUser(ctx context.Context, userID string) (*registry.User, error) {
	var u registry.User
	if err := c.do(ctx, http.MethodGet, "/users/"+url.PathEscape(userID), nil, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

// UserByChat resolves the user linked to a Telegram chat.
func (c *Client) UserByChat(ctx context.Context, chatID string) (*registry.User, error) {
	var u registry.User
	if err := c.do(ctx, http.MethodGet, "/users/by-chat/"+url.PathEscape(chatID), nil, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

// UserDevices fetches the devices a user owns.
func (c *Client) UserDevices(ctx context.Context, userID string) ([]*registry.Device, error) {
	var out []*registry.Device
	if err := c.do(ctx, http.MethodGet, "/users/"+url.PathEscape(userID)+"/devices", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// CreateUser creates a user, optionally pre-linked to a Telegram chat.
func (c *Client) CreateUser(ctx context.Context, userID, userName, chatID string) (*registry.User, error) {
	req := map[string]string{
		"userID":           userID,
		"userName":         userName,
		"telegram_chat_id": chatID,
	}
	var u registry.User
	if err := c.do(ctx, http.MethodPost, "/users/", req, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

// AssignDevice gives a device to a user.
func (c *Client) AssignDevice(ctx context.Context, userID, deviceID, deviceName string) (*registry.Device, error) {
	req := map[string]string{
		"device_id":   deviceID,
		"device_name": deviceName,
	}
	var d registry.Device
	if err := c.do(ctx, http.MethodPost, "/users/"+url.PathEscape(userID)+"/assign-device", req, &d); err != nil {
		return nil, err
	}
	return &d, nil
}

// LinkTelegram binds a Telegram chat to a user.
func (c *Client) LinkTelegram(ctx context.Context, userID, chatID string) (*registry.User, error) {
	var u registry.User
	if err := c.do(ctx, http.MethodPost, "/users/"+url.PathEscape(userID)+"/link_telegram", map[string]string{"chat_id": chatID}, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

// =============================================================================
// Services
// =============================================================================

// RegisterService upserts this process's service descriptor.
func (c *Client) RegisterService(ctx context.Context, svc registry.Service) error {
	return c.do(ctx, http.MethodPost, "/services/register", svc, nil)
}
