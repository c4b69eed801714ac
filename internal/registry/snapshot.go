package registry

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

// snapshotFileMode is the permission set for the registry document.
const snapshotFileMode = 0o600

// Snapshot persists the registry document as a single JSON file.
//
// Saves serialize through an internal mutex so concurrent mutating
// operations never interleave partial writes; readers of the in-memory
// store are unaffected. Each save replaces the whole file atomically
// (write to temp file, then rename).
type Snapshot struct {
	path string
	mu   sync.Mutex
}

// NewSnapshot creates a snapshot bound to the given file path.
func NewSnapshot(path string) *Snapshot {
	return &Snapshot{path: path}
}

// Load reads the document from disk.
//
// When the file does not exist a well-defined empty document is returned:
// schemaVersion 1, the seed admin user, empty lists. Any other read or
// parse failure is an error.
func (s *Snapshot) Load() (*Document, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return SeedDocument(), nil
		}
		return nil, fmt.Errorf("reading snapshot: %w", err)
	}

	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing snapshot: %w", err)
	}
	if doc.DeviceModels == nil {
		doc.DeviceModels = make(map[string]Model)
	}
	return &doc, nil
}

// Save writes the document to disk, stamping LastUpdate first.
//
// The write is a whole-file replacement: the document is marshalled to a
// temp file in the same directory and renamed over the target.
func (s *Snapshot) Save(doc *Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc.LastUpdate = time.Now().UTC()

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshalling snapshot: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("creating snapshot directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".registry-*.json")
	if err != nil {
		return fmt.Errorf("creating temp snapshot: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("writing snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("closing snapshot: %w", err)
	}
	if err := os.Chmod(tmpName, snapshotFileMode); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("setting snapshot permissions: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replacing snapshot: %w", err)
	}

	return nil
}

// SeedDocument returns the document used on first boot: schema version 1,
// a seed admin user, the supported fleet models, and no devices or
// services. Seeding the models means a clean deployment accepts device
// registrations without hand-editing the snapshot; additional models are
// added by editing the snapshot file.
func SeedDocument() *Document {
	now := time.Now().UTC()
	return &Document{
		SchemaVersion: 1,
		ProjectOwner:  "Group17",
		ProjectName:   "SmartChill",
		LastUpdate:    now,
		Broker: Broker{
			Address: "localhost",
			Port:    1883,
		},
		DeviceModels: map[string]Model{
			"FridgeXL":   {Sensors: []string{"temperature", "humidity", "gas"}},
			"FridgeMini": {Sensors: []string{"temperature"}},
		},
		Devices:      []*Device{},
		Users: []*User{
			{
				UserID:           "admin",
				UserName:         "Administrator",
				Devices:          []UserDevice{},
				RegistrationTime: now,
			},
		},
		Services: []*Service{},
	}
}
