package control

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// settingsFileMode is the permission set for the settings file.
const settingsFileMode = 0o600

// settingsFile is the on-disk shape of a service's configuration.
type settingsFile struct {
	ConfigVersion int                       `json:"configVersion"`
	LastUpdate    time.Time                 `json:"lastUpdate"`
	Defaults      map[string]any            `json:"defaults"`
	Devices       map[string]map[string]any `json:"devices"`
}

// SettingsStore holds a control service's per-device configuration:
// a defaults block plus a sub-map of per-device overrides, persisted as
// one JSON file.
//
// Reads return merged copies; writes run under an exclusive lock covering
// mutation and the file write. A failed write does not roll the in-memory
// change back.
type SettingsStore struct {
	path string
	mu   sync.RWMutex
	data settingsFile
}

// LoadSettings opens (or initialises) a service's settings file.
//
// When the file does not exist the store starts at configVersion 1 with
// the given defaults and no devices. Defaults passed here also backfill
// keys missing from an existing file, so new settings get a value after
// an upgrade.
func LoadSettings(path string, defaults map[string]any) (*SettingsStore, error) {
	s := &SettingsStore{
		path: path,
		data: settingsFile{
			ConfigVersion: 1,
			Defaults:      make(map[string]any),
			Devices:       make(map[string]map[string]any),
		},
	}

	raw, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		// first boot, start from defaults
	case err != nil:
		return nil, fmt.Errorf("reading settings: %w", err)
	default:
		if err := json.Unmarshal(raw, &s.data); err != nil {
			return nil, fmt.Errorf("parsing settings: %w", err)
		}
		if s.data.Defaults == nil {
			s.data.Defaults = make(map[string]any)
		}
		if s.data.Devices == nil {
			s.data.Devices = make(map[string]map[string]any)
		}
		if s.data.ConfigVersion < 1 {
			s.data.ConfigVersion = 1
		}
	}

	for k, v := range defaults {
		if _, ok := s.data.Defaults[k]; !ok {
			s.data.Defaults[k] = v
		}
	}

	return s, nil
}

// Version returns the current configuration version.
func (s *SettingsStore) Version() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data.ConfigVersion
}

// Effective returns the merged configuration for one device: defaults
// overlaid with the device's own overrides. The result is a copy.
func (s *SettingsStore) Effective(deviceID string) map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.effectiveLocked(deviceID)
}

func (s *SettingsStore) effectiveLocked(deviceID string) map[string]any {
	merged := make(map[string]any, len(s.data.Defaults))
	for k, v := range s.data.Defaults {
		merged[k] = v
	}
	for k, v := range s.data.Devices[deviceID] {
		merged[k] = v
	}
	return merged
}

// Known reports whether a device has an entry in the settings file.
func (s *SettingsStore) Known(deviceID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.data.Devices[deviceID]
	return ok
}

// Devices returns the IDs of every device with an entry.
func (s *SettingsStore) Devices() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.data.Devices))
	for id := range s.data.Devices {
		out = append(out, id)
	}
	return out
}

// EnsureDevice creates an empty override entry for a device, so it starts
// on the defaults. Reports whether the entry was newly created; existing
// entries are untouched and nothing is persisted for them.
func (s *SettingsStore) EnsureDevice(deviceID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.data.Devices[deviceID]; ok {
		return false, nil
	}
	s.data.Devices[deviceID] = make(map[string]any)
	return true, s.persistLocked()
}

// ApplyUpdate merges validated settings into a device's overrides, bumps
// configVersion and persists.
//
// The caller is responsible for running the update through ValidateUpdate
// first; ApplyUpdate stores what it is given. Returns the applied subset
// and the new version.
func (s *SettingsStore) ApplyUpdate(deviceID string, updates map[string]any) (map[string]any, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	overrides, ok := s.data.Devices[deviceID]
	if !ok {
		overrides = make(map[string]any)
		s.data.Devices[deviceID] = overrides
	}

	applied := make(map[string]any, len(updates))
	for k, v := range updates {
		overrides[k] = v
		applied[k] = v
	}

	s.data.ConfigVersion++
	return applied, s.data.ConfigVersion, s.persistLocked()
}

// IntSetting reads one integer setting from a device's effective config,
// falling back to def when absent or the wrong type.
func (s *SettingsStore) IntSetting(deviceID, key string, def int) int {
	switch v := s.Effective(deviceID)[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	}
	return def
}

// FloatSetting reads one numeric setting from a device's effective config.
func (s *SettingsStore) FloatSetting(deviceID, key string, def float64) float64 {
	switch v := s.Effective(deviceID)[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	}
	return def
}

// BoolSetting reads one boolean setting from a device's effective config.
func (s *SettingsStore) BoolSetting(deviceID, key string, def bool) bool {
	if v, ok := s.Effective(deviceID)[key].(bool); ok {
		return v
	}
	return def
}

// MinCheckInterval returns the smallest check_interval across devices with
// entries, as a Duration. Used to derive the monitoring loop's tick rate.
func (s *SettingsStore) MinCheckInterval(def time.Duration) time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()

	min := def
	for id := range s.data.Devices {
		cfg := s.effectiveLocked(id)
		if v, ok := numericValue(cfg["check_interval"]); ok && v >= 1 {
			d := time.Duration(v) * time.Second
			if d < min {
				min = d
			}
		}
	}
	return min
}

// persistLocked writes the settings file atomically (temp file + rename).
// Must be called with the write lock held.
func (s *SettingsStore) persistLocked() error {
	s.data.LastUpdate = time.Now().UTC()

	raw, err := json.MarshalIndent(s.data, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: %w", ErrSettingsPersist, err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("%w: %w", ErrSettingsPersist, err)
	}

	tmp, err := os.CreateTemp(dir, ".settings-*.json")
	if err != nil {
		return fmt.Errorf("%w: %w", ErrSettingsPersist, err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("%w: %w", ErrSettingsPersist, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("%w: %w", ErrSettingsPersist, err)
	}
	if err := os.Chmod(tmpName, settingsFileMode); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("%w: %w", ErrSettingsPersist, err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("%w: %w", ErrSettingsPersist, err)
	}

	return nil
}

// Default settings blocks for the three services.

// DoorTimerDefaults returns the door-timer service's default settings.
func DoorTimerDefaults() map[string]any {
	return map[string]any{
		"max_door_open_seconds":     60,
		"check_interval":            5,
		"enable_door_closed_alerts": true,
		"alert_cooldown_minutes":    5,
	}
}

// SpoilageDefaults returns the spoilage service's default settings.
func SpoilageDefaults() map[string]any {
	return map[string]any{
		"gas_threshold_ppm":        400,
		"check_interval":           5,
		"enable_continuous_alerts": false,
		"alert_cooldown_minutes":   15,
	}
}

// StatusDefaults returns the status service's default settings.
func StatusDefaults() map[string]any {
	return map[string]any{
		"temp_min_celsius":          0.0,
		"temp_max_celsius":          8.0,
		"humidity_max_percent":      85.0,
		"enable_malfunction_alerts": true,
		"check_interval":            5,
		"alert_cooldown_minutes":    10,
	}
}
